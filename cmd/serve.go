package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/api"
)

const shutdownGrace = 15 * time.Second

// newServeCmd creates the 'serve' subcommand hosting the read-only HTTP API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the read-only documents and runs API",
		Long: `Starts the HTTP server exposing health probes, Prometheus metrics, and
the read-only /v1 endpoints over the document and run stores. The server
runs until SIGINT or SIGTERM, then drains in-flight requests.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	server := api.NewServer(appInstance.Docs, appInstance.Runs, cfg.API, logger)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("addr", cfg.API.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
