package keyrelay

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListen           = "0.0.0.0:5000"
	DefaultPlaceholderToken = "PLACEHOLDER_GEMINI_TOKEN"
	DefaultKeysFile         = "key.txt"
	DefaultUsageFile        = "key_usage.txt"
	DefaultModel            = "gemini-2.0-flash"
	DefaultUpstreamBaseURL  = "https://generativelanguage.googleapis.com"
	DefaultUpstreamTimeout  = 120 * time.Second
)

// Config is the top-level proxy configuration.
type Config struct {
	Listen           string         `yaml:"listen"`
	PlaceholderToken string         `yaml:"placeholder_token"`
	KeysFile         string         `yaml:"keys_file"`
	UsageFile        string         `yaml:"usage_file"`
	DefaultModel     string         `yaml:"default_model"`
	Upstream         UpstreamConfig `yaml:"upstream"`
	Log              LogConfig      `yaml:"log"`
}

// UpstreamConfig configures the outbound client.
type UpstreamConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	QuotaStatusCodes []int         `yaml:"quota_status_codes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Listen:           DefaultListen,
		PlaceholderToken: DefaultPlaceholderToken,
		KeysFile:         DefaultKeysFile,
		UsageFile:        DefaultUsageFile,
		DefaultModel:     DefaultModel,
		Upstream: UpstreamConfig{
			BaseURL:          DefaultUpstreamBaseURL,
			Timeout:          DefaultUpstreamTimeout,
			QuotaStatusCodes: []int{429},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrConfiguration)
	}
	if c.PlaceholderToken == "" {
		return fmt.Errorf("%w: placeholder_token is required", ErrConfiguration)
	}
	if c.KeysFile == "" {
		return fmt.Errorf("%w: keys_file is required", ErrConfiguration)
	}
	if c.UsageFile == "" {
		return fmt.Errorf("%w: usage_file is required", ErrConfiguration)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("%w: default_model is required", ErrConfiguration)
	}

	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("%w: upstream.base_url must be an http(s) URL, got %q", ErrConfiguration, c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("%w: upstream.timeout must be positive", ErrConfiguration)
	}
	for i, code := range c.Upstream.QuotaStatusCodes {
		if code < 400 || code > 599 {
			return fmt.Errorf("%w: upstream.quota_status_codes[%d]: %d is not an error status", ErrConfiguration, i, code)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level: invalid level %q", ErrConfiguration, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format: invalid format %q", ErrConfiguration, c.Log.Format)
	}

	return nil
}
