// Package handlers contains the HTTP handlers of the ad lifecycle API.
//
// Routes (all under /v1, owner header required):
//   - POST /ads/{id}/renew
//   - PUT  /ads/{id}/auto-renew
//   - GET  /ads/expiration-stats
//   - GET  /notifications
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"adlifecycle/internal/core"
	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// AdLifecycleService is the subset of lifecycle.Service used by AdHandler.
type AdLifecycleService interface {
	RenewAd(ctx context.Context, adID, ownerID string, now time.Time) (*lifecycle.RenewResult, error)
	SetAutoRenew(ctx context.Context, adID, ownerID string, enabled bool) (*lifecycle.ToggleResult, error)
	GetExpirationStats(ctx context.Context, now time.Time) (*types.ExpirationStats, error)
}

// NotificationFeed lists an owner's notifications.
type NotificationFeed interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]types.OwnerNotification, error)
}

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// AdHandler maps HTTP requests to the lifecycle service.
type AdHandler struct {
	service   AdLifecycleService
	feed      NotificationFeed
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewAdHandler creates an AdHandler. feed may be nil, in which case the
// notifications route is not mounted.
func NewAdHandler(svc AdLifecycleService, feed NotificationFeed, val *core.Validator, clock types.Clock, logger *slog.Logger) *AdHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AdHandler{
		service:   svc,
		feed:      feed,
		validator: val,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the endpoints. The owner middleware must already apply.
func (h *AdHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ads/expiration-stats", h.HandleExpirationStats)
	r.Post("/ads/{id}/renew", h.HandleRenew)
	r.Put("/ads/{id}/auto-renew", h.HandleSetAutoRenew)
	if h.feed != nil {
		r.Get("/notifications", h.HandleListNotifications)
	}
}

// AutoRenewRequest is the body of PUT /ads/{id}/auto-renew.
type AutoRenewRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// HandleRenew handles POST /v1/ads/{id}/renew.
func (h *AdHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	adID, ownerID, ok := h.identify(w, r)
	if !ok {
		return
	}

	res, err := h.service.RenewAd(r.Context(), adID, ownerID, h.clock.Now())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "renew failed", "ad_id", adID, "error", err)
		core.Error(w, r, err)
		return
	}
	if !res.Success {
		core.Error(w, r, reasonError(res.Reason, res.Message))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

// HandleSetAutoRenew handles PUT /v1/ads/{id}/auto-renew.
func (h *AdHandler) HandleSetAutoRenew(w http.ResponseWriter, r *http.Request) {
	adID, ownerID, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req AutoRenewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.service.SetAutoRenew(r.Context(), adID, ownerID, *req.Enabled)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "auto-renew toggle failed", "ad_id", adID, "error", err)
		core.Error(w, r, err)
		return
	}
	if !res.Success {
		core.Error(w, r, reasonError(res.Reason, res.Message))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

// HandleExpirationStats handles GET /v1/ads/expiration-stats.
func (h *AdHandler) HandleExpirationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetExpirationStats(r.Context(), h.clock.Now())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// HandleListNotifications handles GET /v1/notifications?limit=N.
func (h *AdHandler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := types.GetOwnerID(r.Context())

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFeedLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
				"limit must be an integer between 1 and 100", err,
				map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	items, err := h.feed.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// identify extracts the ad ID path parameter and the owner from the context.
func (h *AdHandler) identify(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	adID := chi.URLParam(r, "id")
	if adID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidID, "ad id is required", nil))
		return "", "", false
	}
	ownerID, ok := types.GetOwnerID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthOwnerMissing, "owner is not identified", nil))
		return "", "", false
	}
	return adID, ownerID, true
}

// reasonError converts a precondition failure into its API error.
func reasonError(reason lifecycle.Reason, message string) *types.AppError {
	code := reason.ErrorCode()
	if code == "" {
		code = types.ErrCodeInternalUnexpected
	}
	return types.NewAppErrorWithDetails(code, message, nil, map[string]any{"reason": string(reason)})
}
