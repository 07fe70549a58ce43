package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/usage"
)

func runUsageCmd(t *testing.T, snap keyrelay.Snapshot) string {
	t.Helper()
	dir := t.TempDir()
	usagePath := filepath.Join(dir, "usage.json")
	require.NoError(t, usage.NewFileStore(usagePath).Save(snap))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"usage", "--usage-file", usagePath, "--keys", filepath.Join(dir, "missing.txt")})
	t.Cleanup(func() {
		rootCmd.SetOut(os.Stdout)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestUsageCmd_Today(t *testing.T) {
	out := runUsageCmd(t, keyrelay.Snapshot{
		Date:      keyrelay.TrackingDate(time.Now()),
		Counts:    map[string]int64{"AIza-key-1111": 3, "AIza-key-2222": 5},
		Exhausted: []string{"AIza-key-2222"},
	})

	assert.Contains(t, out, "Date: "+keyrelay.TrackingDate(time.Now()))
	assert.Contains(t, out, "KEY")
	assert.Regexp(t, `TOTAL\s+8`, out)
	assert.NotContains(t, out, "AIza-key-1111")
}

func TestUsageCmd_StaleSnapshot(t *testing.T) {
	out := runUsageCmd(t, keyrelay.Snapshot{
		Date:      "2000-01-01",
		Counts:    map[string]int64{"AIza-key-1111": 1400},
		Exhausted: []string{"AIza-key-1111"},
	})

	assert.Equal(t, "No usage recorded today (last: 2000-01-01)\n", out)
}
