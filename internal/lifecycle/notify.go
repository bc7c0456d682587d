package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"adlifecycle/internal/types"
)

// Notifier delivers owner notifications. Implementations live in
// internal/notifications and internal/db.
type Notifier interface {
	Emit(ctx context.Context, n types.OwnerNotification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n types.OwnerNotification) error

// Emit calls f(ctx, n).
func (f NotifierFunc) Emit(ctx context.Context, n types.OwnerNotification) error {
	return f(ctx, n)
}

// MessageBuilder renders the owner-facing notification for a transition.
// BaseURL is the dashboard root used for action links; empty yields relative links.
type MessageBuilder struct {
	BaseURL string
}

// ActionURL returns the dashboard link for the ad.
func (b MessageBuilder) ActionURL(adID string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/dashboard/ads/" + adID
}

// ForStage builds the notification emitted after stage s committed on ad.
func (b MessageBuilder) ForStage(s Stage, ad *types.Ad, now time.Time) types.OwnerNotification {
	n := types.OwnerNotification{
		ID:        uuid.NewString(),
		OwnerID:   ad.OwnerID,
		AdID:      ad.ID,
		ActionURL: b.ActionURL(ad.ID),
		CreatedAt: now.UTC(),
	}

	switch s {
	case StageDeletion:
		n.Kind = types.KindAlert
		n.Event = types.EventAdDeleted
		n.Title = "Ad deleted"
		n.Message = fmt.Sprintf("Your ad %q was permanently deleted after its grace period ended.", ad.Title)
		n.ActionURL = ""
	case StageAutoRenewal:
		n.Kind = types.KindInfo
		n.Event = types.EventAdAutoRenewed
		n.Title = "Ad renewed automatically"
		n.Message = fmt.Sprintf("Your ad %q was renewed for another %d days.", ad.Title, LifetimeDays)
	case StageExpiration:
		n.Kind = types.KindWarning
		n.Event = types.EventAdExpired
		n.Title = "Ad expired"
		n.Message = fmt.Sprintf("Your ad %q has expired. Renew it within %d days or it will be deleted.", ad.Title, GracePeriodDays)
	case StageWarning7d:
		n.Kind = types.KindWarning
		n.Event = types.EventAdExpiring7d
		n.Title = "Ad expires soon"
		n.Message = fmt.Sprintf("Your ad %q expires in %d days.", ad.Title, daysUntil(ad.ExpiresAt, now))
	case StageWarning24h:
		n.Kind = types.KindWarning
		n.Event = types.EventAdExpiring24h
		n.Title = "Ad expires tomorrow"
		n.Message = fmt.Sprintf("Your ad %q expires within 24 hours.", ad.Title)
	case StageDeletionWarning:
		n.Kind = types.KindAlert
		n.Event = types.EventAdDeletionImminent
		n.Title = "Last chance to renew"
		n.Message = fmt.Sprintf("Your ad %q will be permanently deleted within 24 hours unless you renew it.", ad.Title)
	}
	return n
}

// Renewed builds the notification for a manual renewal.
func (b MessageBuilder) Renewed(ad *types.Ad, now time.Time) types.OwnerNotification {
	return types.OwnerNotification{
		ID:        uuid.NewString(),
		OwnerID:   ad.OwnerID,
		AdID:      ad.ID,
		Kind:      types.KindInfo,
		Event:     types.EventAdRenewed,
		Title:     "Ad renewed",
		Message:   fmt.Sprintf("Your ad %q is published for another %d days.", ad.Title, LifetimeDays),
		ActionURL: b.ActionURL(ad.ID),
		CreatedAt: now.UTC(),
	}
}

// daysUntil rounds up so "6 days 3 hours" reads as 7.
func daysUntil(t *time.Time, now time.Time) int {
	if t == nil {
		return 0
	}
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
