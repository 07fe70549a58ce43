// Command keyrelay runs the Gemini key-pool proxy.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ineyio/keyrelay"
)

var (
	configPath string
	usageFile  string
	keysFile   string
)

var rootCmd = &cobra.Command{
	Use:   "keyrelay",
	Short: "Gemini API key-pool proxy",
	Long: `keyrelay fronts a pool of Gemini API keys behind one placeholder token.

It rotates keys round-robin, tracks per-key daily usage, retries quota-limited
requests on the next key, and translates OpenAI-style chat completions to Gemini.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; explicit environment always wins.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&keysFile, "keys", "", "credential file (one key per line)")
	rootCmd.PersistentFlags().StringVar(&usageFile, "usage-file", "", "usage snapshot file")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when one is given and applies flag overrides.
func loadConfig(cmd *cobra.Command) (keyrelay.Config, error) {
	cfg := keyrelay.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = keyrelay.LoadConfig(configPath); err != nil {
			return keyrelay.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("keys") {
		cfg.KeysFile = keysFile
	}
	if flags.Changed("usage-file") {
		cfg.UsageFile = usageFile
	}
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if flags.Changed("token") {
		cfg.PlaceholderToken = placeholderToken
	}

	if err := cfg.Validate(); err != nil {
		return keyrelay.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg keyrelay.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
