// Package main is the entry point for the ad lifecycle API server.
//
// It loads configuration, wires the lifecycle service over PostgreSQL, mounts
// the owner endpoints under /v1 and serves them until SIGINT or SIGTERM.
// With METRICS_BACKEND=prometheus the sweep and HTTP metrics share one
// registry exposed at /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"adlifecycle/internal/api/handlers"
	"adlifecycle/internal/app"
	"adlifecycle/internal/config"
	"adlifecycle/internal/core"
	"adlifecycle/internal/telemetry"
	"adlifecycle/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("ad lifecycle API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a, err := app.New(startCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}

	srv, err := newServer(cfg, a, logger)
	if err != nil {
		a.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	return runHTTPServer(srv, cfg, logger)
}

// newServer builds the chi server over the wired components.
func newServer(cfg *config.Config, a *app.App, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	if prom := a.Metrics.Prometheus; prom != nil {
		srv.Metrics = telemetry.NewPrometheusHTTPMetrics("", prom.Registry())
		srv.MetricsHandler = prom.Handler()
	}
	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "database", Target: a.Pool})
	srv.Closers = append(srv.Closers, a.Close)

	adHandler := handlers.NewAdHandler(a.Service, a.Feed, srv.Validator, types.RealClock{}, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		adHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Releases the pool and broker connections.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
