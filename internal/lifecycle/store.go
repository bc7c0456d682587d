package lifecycle

import (
	"context"
	"time"

	"adlifecycle/internal/types"
)

// AdStore is the persistence surface the sweep and the manual operations need.
//
// The transactional flow is:
//  1. ListDue identifies candidate ids for a stage outside any transaction.
//  2. For each id, BeginTx starts a transaction.
//  3. LockAd acquires a FOR UPDATE lock and returns the current row.
//  4. The caller re-checks the guard, mutates, and calls SaveLifecycle
//     (plus PurgeDependents for deletions).
//  5. Commit / Rollback finalizes the transaction.
type AdStore interface {
	// ListDue returns up to limit ids of ads matching the stage's guard at now,
	// in ascending id order, strictly after afterID.
	ListDue(ctx context.Context, stage Stage, now time.Time, afterID string, limit int) ([]string, error)

	// BeginTx starts a new transaction. The returned AdTx must be committed
	// or rolled back by the caller.
	BeginTx(ctx context.Context) (AdTx, error)
}

// AdTx is the set of operations performed on one ad inside one transaction.
type AdTx interface {
	// LockAd returns the ad row locked for update. Returns an AppError with
	// ErrCodeNotFoundAd when no row exists.
	LockAd(ctx context.Context, adID string) (*types.Ad, error)

	// SaveLifecycle persists every lifecycle column of ad.
	SaveLifecycle(ctx context.Context, ad *types.Ad) error

	// PurgeDependents removes messages, conversations, favorites and alerts
	// referencing the ad, in that order.
	PurgeDependents(ctx context.Context, adID string) (types.CascadeResult, error)

	Commit(ctx context.Context) error

	// Rollback is safe to call after Commit (no-op).
	Rollback(ctx context.Context) error
}

// StatsStore provides the read-only counts behind ExpirationStats.
// Every count excludes soft-deleted ads.
type StatsStore interface {
	CountByStatus(ctx context.Context, status types.AdStatus) (int64, error)
	CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountAutoRenewPublished(ctx context.Context) (int64, error)
}
