package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dragondrop-dev/dragondrop/internal/config"
	"github.com/dragondrop-dev/dragondrop/pkg/upload"
)

type serveOptions struct {
	port int
	host string
}

func serveCmd(g *globalOptions) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the upload server",
		Long: `Start the upload server.

The server receives widget uploads and manual form submissions,
relays widget notifications over WebSocket and exposes Prometheus
metrics. Expired temp files are removed periodically.

Examples:
  dragondrop serve
  dragondrop serve --port=8080
  dragondrop serve --host=0.0.0.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(g.dir)
			if err != nil {
				return err
			}
			if opts.port > 0 {
				cfg.Server.Port = opts.port
			}
			if opts.host != "" {
				cfg.Server.Host = opts.host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, slog.Default())
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from dragondrop.json)")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind to (default from dragondrop.json)")

	return cmd
}

// runServe serves until ctx is done, then shuts down gracefully.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = logger.With("component", "serve")

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go upload.RunCleanup(cleanupCtx, srv.store, cfg.CleanupInterval(), cfg.TempExpiry(), logger)

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner()
	printf("  serve\n\n")
	success("Listening on %s", cfg.URL())
	info("Uploads:  %s", cfg.Server.UploadPath)
	info("Manual:   %s", cfg.Server.ManualPath)
	info("Relay:    %s", cfg.Server.RelayPath)
	if cfg.Server.MetricsPath != "" {
		info("Metrics:  %s", cfg.Server.MetricsPath)
	}
	info("Storage:  %s", cfg.Storage.Driver)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	printf("\n  Shutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		warn("Shutdown: %v", err)
		return err
	}
	return nil
}
