// Package core provides the HTTP chassis for the ad lifecycle API. It builds
// a chi router, applies the cross-cutting middleware (recovery, request IDs,
// logging, metrics, owner identity) and exposes health and metrics endpoints.
// Domain handlers register themselves via V1RouteRegistrars.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"adlifecycle/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the API dependencies. Fields other than Config and Logger are
// optional and may be set after NewServer, before MountRoutes.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler is served at GET /metrics when non-nil.
	MetricsHandler http.Handler
	HealthProbes   []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They run inside the
	// owner-authenticated group.
	V1RouteRegistrars []func(chi.Router)

	// Closers run on Shutdown in order.
	Closers []func()

	router *chi.Mux
}

// NewServer creates a Server with an empty router.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources such as the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, closeFn := range s.Closers {
		closeFn()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
