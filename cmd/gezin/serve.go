package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/gezin/internal/config"
	"github.com/dukerupert/gezin/internal/metrics"
	"github.com/dukerupert/gezin/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 8000, "listen port")
	f.String("store-locking", "mutex", "file backend write locking: mutex or none")
	f.Bool("unique-ids", false, "reject creates whose id already exists")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "allowed CORS origins (* for any)")
	f.Float64("rate-limit-rps", 0, "per-client requests per second, 0 disables limiting")
	f.Int("rate-limit-burst", 10, "per-client burst size")
	f.Bool("metrics", true, "expose /metrics")

	mustBind(config.KeyHost, f.Lookup("host"))
	mustBind(config.KeyPort, f.Lookup("port"))
	mustBind(config.KeyStoreLocking, f.Lookup("store-locking"))
	mustBind(config.KeyUniqueIDs, f.Lookup("unique-ids"))
	mustBind(config.KeyCORSOrigins, f.Lookup("cors-origins"))
	mustBind(config.KeyRateLimitRPS, f.Lookup("rate-limit-rps"))
	mustBind(config.KeyRateLimitBurst, f.Lookup("rate-limit-burst"))
	mustBind(config.KeyMetricsEnabled, f.Lookup("metrics"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	srv, err := server.New(ctx, server.Options{
		Backend:        backend,
		UniqueIDs:      cfg.UniqueIDs,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        m,
		Backup:         backupConfig(cfg),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.Start(ctx)
	defer srv.Stop()

	// No write timeout: change-feed connections are long lived.
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", httpServer.Addr,
			"backend", backend.Name(),
			"version", version,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
