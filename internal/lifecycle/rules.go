// Package lifecycle holds the ad expiration state machine: the pure rules that
// decide which transition applies to an ad at a given instant, the mutations
// that apply them, and the owner-facing manual operations.
package lifecycle

import (
	"fmt"
	"time"

	"adlifecycle/internal/types"
)

// Lifecycle constants. These are fixed product rules, not runtime config.
const (
	LifetimeDays    = 60
	Warning7Days    = 7
	Warning24Hours  = 1 // expressed in days
	GracePeriodDays = 7

	Lifetime       = LifetimeDays * 24 * time.Hour
	Warning7dLead  = Warning7Days * 24 * time.Hour
	Warning24hLead = Warning24Hours * 24 * time.Hour
	GracePeriod    = GracePeriodDays * 24 * time.Hour
)

// State is the explicit lifecycle state derived from an ad's columns.
type State string

const (
	StatePublished State = "published"
	StateExpired   State = "expired"
	StateDeleted   State = "deleted"
	// StateInactive covers statuses owned by other flows (draft, review, rejected).
	StateInactive State = "inactive"
)

// StateOf derives the lifecycle state. Soft deletion wins over status.
func StateOf(ad *types.Ad) State {
	switch {
	case ad.DeletedAt != nil:
		return StateDeleted
	case ad.Status == types.StatusPublished:
		return StatePublished
	case ad.Status == types.StatusExpired:
		return StateExpired
	default:
		return StateInactive
	}
}

// IsDueForDeletion: expired, grace period elapsed, not yet deleted.
func IsDueForDeletion(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusExpired &&
		ad.DeletionScheduledAt != nil &&
		!ad.DeletionScheduledAt.After(now)
}

// IsDueForAutoRenewal: published, lifetime elapsed, owner opted in.
func IsDueForAutoRenewal(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusPublished &&
		ad.ExpiresAt != nil &&
		!ad.ExpiresAt.After(now) &&
		ad.AutoRenew
}

// IsDueForExpiration: published, lifetime elapsed, auto-renew off.
func IsDueForExpiration(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusPublished &&
		ad.ExpiresAt != nil &&
		!ad.ExpiresAt.After(now) &&
		!ad.AutoRenew
}

// IsDueFor7dWarning: expiry falls in (now+1d, now+7d] and the warning is unsent.
func IsDueFor7dWarning(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusPublished &&
		ad.ExpiresAt != nil &&
		!ad.ExpiresAt.After(now.Add(Warning7dLead)) &&
		ad.ExpiresAt.After(now.Add(Warning24hLead)) &&
		!ad.ExpirationWarning7d
}

// IsDueFor24hWarning: expiry is at most one day away and the warning is unsent.
func IsDueFor24hWarning(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusPublished &&
		ad.ExpiresAt != nil &&
		!ad.ExpiresAt.After(now.Add(Warning24hLead)) &&
		!ad.ExpirationWarning24h
}

// IsDueForDeletionWarning: deletion is at most one day away and the last-chance
// notice is unsent.
func IsDueForDeletionWarning(ad *types.Ad, now time.Time) bool {
	return ad.DeletedAt == nil &&
		ad.Status == types.StatusExpired &&
		ad.DeletionScheduledAt != nil &&
		!ad.DeletionScheduledAt.After(now.Add(Warning24hLead)) &&
		!ad.DeletionWarning
}

// Stage is one transition of the sweep. The declaration order is the sweep order.
type Stage int

const (
	StageDeletion Stage = iota
	StageAutoRenewal
	StageExpiration
	StageWarning7d
	StageWarning24h
	StageDeletionWarning
)

// Stages lists every stage in the order a sweep must run them.
// Expiration precedes the warnings so an ad expiring in this sweep is never
// also told it is "expiring soon".
var Stages = []Stage{
	StageDeletion,
	StageAutoRenewal,
	StageExpiration,
	StageWarning7d,
	StageWarning24h,
	StageDeletionWarning,
}

var stageNames = map[Stage]string{
	StageDeletion:        "deletion",
	StageAutoRenewal:     "auto_renewal",
	StageExpiration:      "expiration",
	StageWarning7d:       "warning_7d",
	StageWarning24h:      "warning_24h",
	StageDeletionWarning: "deletion_warning",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage resolves a stage from its string name.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle stage %q", name)
}

// Due reports whether the stage's guard holds for ad at now.
func (s Stage) Due(ad *types.Ad, now time.Time) bool {
	switch s {
	case StageDeletion:
		return IsDueForDeletion(ad, now)
	case StageAutoRenewal:
		return IsDueForAutoRenewal(ad, now)
	case StageExpiration:
		return IsDueForExpiration(ad, now)
	case StageWarning7d:
		return IsDueFor7dWarning(ad, now)
	case StageWarning24h:
		return IsDueFor24hWarning(ad, now)
	case StageDeletionWarning:
		return IsDueForDeletionWarning(ad, now)
	default:
		return false
	}
}

// Decide returns the first stage, in sweep order, whose guard holds.
func Decide(ad *types.Ad, now time.Time) (Stage, bool) {
	for _, s := range Stages {
		if s.Due(ad, now) {
			return s, true
		}
	}
	return 0, false
}

// Validate checks the state invariants an ad must satisfy outside a transaction:
// a published ad carries an expiry, an expired ad carries a deletion schedule,
// and only an expired ad carries one.
func Validate(ad *types.Ad) error {
	switch StateOf(ad) {
	case StateDeleted:
		return nil
	case StatePublished:
		if ad.ExpiresAt == nil {
			return invariantError(ad, "published ad has no expires_at")
		}
		if ad.DeletionScheduledAt != nil {
			return invariantError(ad, "published ad has deletion_scheduled_at")
		}
	case StateExpired:
		if ad.DeletionScheduledAt == nil {
			return invariantError(ad, "expired ad has no deletion_scheduled_at")
		}
	default:
		if ad.DeletionScheduledAt != nil {
			return invariantError(ad, "inactive ad has deletion_scheduled_at")
		}
	}
	return nil
}

func invariantError(ad *types.Ad, msg string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeInternalInvariant, msg, nil,
		map[string]any{"ad_id": ad.ID, "status": string(ad.Status)})
}
