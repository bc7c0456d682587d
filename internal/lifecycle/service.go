package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adlifecycle/internal/types"
)

// Reason is the typed outcome of a manual operation.
type Reason string

const (
	ReasonOK           Reason = "ok"
	ReasonNotFound     Reason = "not_found"
	ReasonGone         Reason = "gone"
	ReasonForbidden    Reason = "forbidden"
	ReasonInvalidState Reason = "invalid_state"
)

// ErrorCode maps a failure reason to the API error code.
func (r Reason) ErrorCode() types.ErrorCode {
	switch r {
	case ReasonNotFound:
		return types.ErrCodeNotFoundAd
	case ReasonGone:
		return types.ErrCodeGoneAd
	case ReasonForbidden:
		return types.ErrCodePermissionNotOwner
	case ReasonInvalidState:
		return types.ErrCodeConflictInvalidState
	default:
		return ""
	}
}

// RenewResult is returned by RenewAd. Precondition failures are reported here,
// not as errors, so callers can render Message directly.
type RenewResult struct {
	Success      bool       `json:"success"`
	Reason       Reason     `json:"reason"`
	Message      string     `json:"message"`
	NewExpiresAt *time.Time `json:"new_expires_at,omitempty"`
}

// ToggleResult is returned by SetAutoRenew.
type ToggleResult struct {
	Success   bool   `json:"success"`
	Reason    Reason `json:"reason"`
	Message   string `json:"message"`
	AutoRenew bool   `json:"auto_renew"`
}

// Service implements the owner-triggered operations and the stats reporter.
type Service struct {
	store    AdStore
	stats    StatsStore
	notifier Notifier
	messages MessageBuilder
	logger   *slog.Logger
}

// NewService creates a Service. notifier may be nil to disable notifications.
func NewService(store AdStore, stats StatsStore, notifier Notifier, messages MessageBuilder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		stats:    stats,
		notifier: notifier,
		messages: messages,
		logger:   logger,
	}
}

// checkAccess applies the shared preconditions in order: not found, gone, forbidden.
func checkAccess(ad *types.Ad, ownerID string) (Reason, string) {
	switch {
	case ad == nil:
		return ReasonNotFound, "Ad not found."
	case ad.DeletedAt != nil:
		return ReasonGone, "Ad has been deleted and can no longer be changed."
	case ad.OwnerID != ownerID:
		return ReasonForbidden, "You do not own this ad."
	default:
		return ReasonOK, ""
	}
}

// lockForOwner opens a transaction and locks the ad. A missing row yields a nil
// ad rather than an error.
func (s *Service) lockForOwner(ctx context.Context, adID string) (AdTx, *types.Ad, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	ad, err := tx.LockAd(ctx, adID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAd {
			return tx, nil, nil
		}
		_ = tx.Rollback(ctx)
		return nil, nil, fmt.Errorf("locking ad %s: %w", adID, err)
	}
	return tx, ad, nil
}

// RenewAd starts a fresh published period for an ad the requester owns.
// Renewal is allowed while published (extends early) and while expired
// (rescues from the grace period), never once deleted.
func (s *Service) RenewAd(ctx context.Context, adID, ownerID string, now time.Time) (*RenewResult, error) {
	now = now.UTC()

	tx, ad, err := s.lockForOwner(ctx, adID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if reason, msg := checkAccess(ad, ownerID); reason != ReasonOK {
		return &RenewResult{Reason: reason, Message: msg}, nil
	}
	if st := StateOf(ad); st != StatePublished && st != StateExpired {
		return &RenewResult{
			Reason:  ReasonInvalidState,
			Message: fmt.Sprintf("Ads in status %q cannot be renewed.", ad.Status),
		}, nil
	}

	ApplyRenewal(ad, now)
	if err := Validate(ad); err != nil {
		return nil, err
	}
	if err := tx.SaveLifecycle(ctx, ad); err != nil {
		return nil, fmt.Errorf("saving renewal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing renewal: %w", err)
	}

	s.logger.InfoContext(ctx, "ad renewed",
		"ad_id", ad.ID,
		"renewal_count", ad.RenewalCount,
		"expires_at", ad.ExpiresAt,
	)
	s.emit(ctx, s.messages.Renewed(ad, now))

	return &RenewResult{
		Success:      true,
		Reason:       ReasonOK,
		Message:      fmt.Sprintf("Ad renewed until %s.", ad.ExpiresAt.Format("2006-01-02")),
		NewExpiresAt: ad.ExpiresAt,
	}, nil
}

// SetAutoRenew flips the ad's auto-renew flag. No other lifecycle field changes;
// the next sweep picks the ad up at expiry. Setting the current value is a
// successful no-op.
func (s *Service) SetAutoRenew(ctx context.Context, adID, ownerID string, enabled bool) (*ToggleResult, error) {
	tx, ad, err := s.lockForOwner(ctx, adID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if reason, msg := checkAccess(ad, ownerID); reason != ReasonOK {
		return &ToggleResult{Reason: reason, Message: msg}, nil
	}

	if ad.AutoRenew != enabled {
		ad.AutoRenew = enabled
		if err := tx.SaveLifecycle(ctx, ad); err != nil {
			return nil, fmt.Errorf("saving auto-renew: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing auto-renew: %w", err)
		}
		s.logger.InfoContext(ctx, "auto-renew updated", "ad_id", ad.ID, "enabled", enabled)
	}

	msg := "Auto-renew disabled."
	if enabled {
		msg = "Auto-renew enabled."
	}
	return &ToggleResult{Success: true, Reason: ReasonOK, Message: msg, AutoRenew: enabled}, nil
}

// emit sends n and logs delivery failure. The transition has already committed.
func (s *Service) emit(ctx context.Context, n types.OwnerNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit notification",
			"ad_id", n.AdID,
			"event", n.Event,
			"error", err,
		)
	}
}
