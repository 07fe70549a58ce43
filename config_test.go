package keyrelay_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kr "github.com/ineyio/keyrelay"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := kr.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:5000", cfg.Listen)
	assert.Equal(t, "PLACEHOLDER_GEMINI_TOKEN", cfg.PlaceholderToken)
	assert.Equal(t, []int{429}, cfg.Upstream.QuotaStatusCodes)
	assert.Equal(t, 120*time.Second, cfg.Upstream.Timeout)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	t.Setenv("KEYRELAY_TEST_TOKEN", "secret-token")
	path := writeFile(t, "config.yaml", `
listen: "127.0.0.1:8080"
placeholder_token: "${KEYRELAY_TEST_TOKEN}"
upstream:
  timeout: 30s
  quota_status_codes: [429, 403]
log:
  level: debug
  format: json
`)

	cfg, err := kr.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "secret-token", cfg.PlaceholderToken)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, []int{429, 403}, cfg.Upstream.QuotaStatusCodes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched fields keep their defaults.
	assert.Equal(t, kr.DefaultKeysFile, cfg.KeysFile)
	assert.Equal(t, kr.DefaultUpstreamBaseURL, cfg.Upstream.BaseURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := kr.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, kr.ErrConfiguration)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "listen: [unterminated")
	_, err := kr.LoadConfig(path)
	assert.ErrorIs(t, err, kr.ErrConfiguration)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*kr.Config)
	}{
		{"empty listen", func(c *kr.Config) { c.Listen = "" }},
		{"empty token", func(c *kr.Config) { c.PlaceholderToken = "" }},
		{"empty keys file", func(c *kr.Config) { c.KeysFile = "" }},
		{"bad base url", func(c *kr.Config) { c.Upstream.BaseURL = "ftp://example.com" }},
		{"zero timeout", func(c *kr.Config) { c.Upstream.Timeout = 0 }},
		{"success status as quota", func(c *kr.Config) { c.Upstream.QuotaStatusCodes = []int{200} }},
		{"bad log level", func(c *kr.Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *kr.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := kr.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), kr.ErrConfiguration)
		})
	}
}
