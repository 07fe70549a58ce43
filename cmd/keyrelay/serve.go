package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/meter"
	"github.com/ineyio/keyrelay/provider/gemini"
	"github.com/ineyio/keyrelay/server"
	"github.com/ineyio/keyrelay/usage"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr       string
	placeholderToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (host:port)")
	serveCmd.Flags().StringVar(&placeholderToken, "token", "", "placeholder token clients must present")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)

	creds, err := keyrelay.LoadCredentials(cfg.KeysFile)
	if err != nil {
		return err
	}
	pool, err := keyrelay.NewKeyPool(creds)
	if err != nil {
		return err
	}
	logger.Info("credentials loaded", "keys", pool.Size(), "file", cfg.KeysFile)

	store := keyrelay.NewUsageStore(pool, usage.NewFileStore(cfg.UsageFile),
		keyrelay.WithUsageLogger(logger))

	m := meter.NewLogMeter(logger)
	client := gemini.NewClient(
		gemini.WithBaseURL(cfg.Upstream.BaseURL),
		gemini.WithTimeout(cfg.Upstream.Timeout),
	)
	dispatcher, err := keyrelay.NewDispatcher(pool, store, client,
		keyrelay.WithMeter(m),
		keyrelay.WithQuotaSignal(keyrelay.StatusQuotaSignal(cfg.Upstream.QuotaStatusCodes...)),
	)
	if err != nil {
		return err
	}

	srv := server.New(dispatcher, cfg.PlaceholderToken,
		server.WithLogger(logger),
		server.WithMeter(m),
		server.WithDefaultModel(cfg.DefaultModel),
	)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "upstream", cfg.Upstream.BaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
