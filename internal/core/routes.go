package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"adlifecycle/internal/types"
)

// defaultRequestTimeout is the soft timeout applied to request contexts.
const defaultRequestTimeout = 29 * time.Second

// OwnerHeader carries the authenticated owner ID set by the gateway.
const OwnerHeader = "X-Owner-ID"

// MountRoutes registers middleware and routes. Call it once, after all
// optional Server fields are set.
//
// Middleware order:
//  1. Recoverer        - outermost, catches all panics.
//  2. ContextTimeout   - soft deadline for handlers.
//  3. RequestID        - correlation ID for logs and notifications.
//  4. SecurityHeaders
//  5. RequestLogger
//  6. Metrics
//
// The /v1 group additionally requires the owner header.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(s.MetricsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(OwnerMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses the incoming X-Request-Id or generates one, stores
// it in the context and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}

// OwnerMiddleware requires the owner header and stores its value in the
// context. Identity is established upstream; this layer only propagates it.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get(OwnerHeader)
		if ownerID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthOwnerMissing,
				"missing "+OwnerHeader+" header", nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithOwnerID(r.Context(), ownerID)))
	})
}
