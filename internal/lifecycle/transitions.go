package lifecycle

import (
	"time"

	"adlifecycle/internal/types"
)

// Publish moves a draft or approved ad into its first published period.
func Publish(ad *types.Ad, now time.Time) {
	t := now.UTC()
	ad.Status = types.StatusPublished
	ad.PublishedAt = &t
	exp := t.Add(Lifetime)
	ad.ExpiresAt = &exp
	ad.ExpiredAt = nil
	ad.DeletionScheduledAt = nil
	ad.ExpirationWarning7d = false
	ad.ExpirationWarning24h = false
	ad.DeletionWarning = false
	ad.UpdatedAt = t
}

// ApplyRenewal starts a fresh published period. Manual and automatic renewal
// share it so both leave the ad in the same state.
func ApplyRenewal(ad *types.Ad, now time.Time) {
	t := now.UTC()
	exp := t.Add(Lifetime)
	ad.Status = types.StatusPublished
	ad.ExpiresAt = &exp
	ad.ExpiredAt = nil
	ad.DeletionScheduledAt = nil
	ad.RenewalCount++
	ad.LastRenewalAt = &t
	ad.ExpirationWarning7d = false
	ad.ExpirationWarning24h = false
	ad.DeletionWarning = false
	ad.UpdatedAt = t
}

// ApplyExpiration ends the published period and opens the grace period.
func ApplyExpiration(ad *types.Ad, now time.Time) {
	t := now.UTC()
	scheduled := t.Add(GracePeriod)
	ad.Status = types.StatusExpired
	ad.ExpiredAt = &t
	ad.DeletionScheduledAt = &scheduled
	ad.DeletionWarning = false
	ad.UpdatedAt = t
}

// ApplySoftDelete marks the ad terminal. The row is kept for the owner's
// notification history; dependents are purged separately in the same tx.
func ApplySoftDelete(ad *types.Ad, now time.Time) {
	t := now.UTC()
	ad.DeletedAt = &t
	ad.UpdatedAt = t
}

// Apply performs the stage's mutation on ad.
func (s Stage) Apply(ad *types.Ad, now time.Time) {
	switch s {
	case StageDeletion:
		ApplySoftDelete(ad, now)
	case StageAutoRenewal:
		ApplyRenewal(ad, now)
	case StageExpiration:
		ApplyExpiration(ad, now)
	case StageWarning7d:
		ad.ExpirationWarning7d = true
		ad.UpdatedAt = now.UTC()
	case StageWarning24h:
		ad.ExpirationWarning24h = true
		ad.UpdatedAt = now.UTC()
	case StageDeletionWarning:
		ad.DeletionWarning = true
		ad.UpdatedAt = now.UTC()
	}
}

// Cascades reports whether the stage removes the ad's dependent records.
func (s Stage) Cascades() bool {
	return s == StageDeletion
}
