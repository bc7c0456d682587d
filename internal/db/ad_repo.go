package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// adColumns is the column list shared by every query that materializes an Ad.
const adColumns = `id, owner_id, title, status,
	published_at, expires_at, expired_at, deletion_scheduled_at,
	auto_renew, renewal_count, last_renewal_at,
	expiration_warning_7d, expiration_warning_24h, deletion_warning,
	deleted_at, created_at, updated_at`

func scanAd(row pgx.Row) (*types.Ad, error) {
	var ad types.Ad
	err := row.Scan(
		&ad.ID, &ad.OwnerID, &ad.Title, &ad.Status,
		&ad.PublishedAt, &ad.ExpiresAt, &ad.ExpiredAt, &ad.DeletionScheduledAt,
		&ad.AutoRenew, &ad.RenewalCount, &ad.LastRenewalAt,
		&ad.ExpirationWarning7d, &ad.ExpirationWarning24h, &ad.DeletionWarning,
		&ad.DeletedAt, &ad.CreatedAt, &ad.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

// stageFilter returns the WHERE fragment and arguments selecting ads due for
// stage at now. It mirrors the guard in lifecycle.Stage.Due so the listing
// query and the in-transaction re-check agree. Placeholders start at $1.
func stageFilter(stage lifecycle.Stage, now time.Time) (string, []any, error) {
	switch stage {
	case lifecycle.StageDeletion:
		return `status = 'expired' AND deletion_scheduled_at <= $1`,
			[]any{now}, nil
	case lifecycle.StageAutoRenewal:
		return `status = 'published' AND expires_at <= $1 AND auto_renew = TRUE`,
			[]any{now}, nil
	case lifecycle.StageExpiration:
		return `status = 'published' AND expires_at <= $1 AND auto_renew = FALSE`,
			[]any{now}, nil
	case lifecycle.StageWarning7d:
		return `status = 'published' AND expires_at <= $1 AND expires_at > $2 AND expiration_warning_7d = FALSE`,
			[]any{now.Add(lifecycle.Warning7dLead), now.Add(lifecycle.Warning24hLead)}, nil
	case lifecycle.StageWarning24h:
		return `status = 'published' AND expires_at <= $1 AND expiration_warning_24h = FALSE`,
			[]any{now.Add(lifecycle.Warning24hLead)}, nil
	case lifecycle.StageDeletionWarning:
		return `status = 'expired' AND deletion_scheduled_at <= $1 AND deletion_warning = FALSE`,
			[]any{now.Add(lifecycle.Warning24hLead)}, nil
	default:
		return "", nil, fmt.Errorf("no filter for stage %s", stage)
	}
}

// AdRepository provides data access for the ads table and its dependents.
// It implements lifecycle.AdStore and lifecycle.StatsStore.
type AdRepository struct {
	db DBTX
	tx TxBeginner
}

// NewAdRepository creates an AdRepository. tx may be nil for read-only use
// (stats, lookups); BeginTx then fails.
func NewAdRepository(db DBTX, tx TxBeginner) *AdRepository {
	return &AdRepository{db: db, tx: tx}
}

// NewAdRepositoryFromPool creates an AdRepository backed by a pool.
func NewAdRepositoryFromPool(p Pool) *AdRepository {
	return NewAdRepository(p, p)
}

// ListDue returns ids of non-deleted ads matching the stage guard, keyset
// paginated by id.
//
// SQL: SELECT id FROM ads
//
//	WHERE deleted_at IS NULL AND <stage filter> AND id > $n
//	ORDER BY id LIMIT $m
func (r *AdRepository) ListDue(ctx context.Context, stage lifecycle.Stage, now time.Time, afterID string, limit int) ([]string, error) {
	filter, args, err := stageFilter(stage, now)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "unknown sweep stage", err)
	}
	n := len(args)
	query := fmt.Sprintf(
		`SELECT id FROM ads
		 WHERE deleted_at IS NULL AND %s AND id > $%d
		 ORDER BY id
		 LIMIT $%d`, filter, n+1, n+2)
	args = append(args, afterID, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due ads", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan ad id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due ads", err)
	}
	return ids, nil
}

// GetByID returns the ad regardless of deletion state.
func (r *AdRepository) GetByID(ctx context.Context, id string) (*types.Ad, error) {
	ad, err := scanAd(r.db.QueryRow(ctx, `SELECT `+adColumns+` FROM ads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAd, "ad not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get ad", err)
	}
	return ad, nil
}

// BeginTx implements lifecycle.AdStore.
func (r *AdRepository) BeginTx(ctx context.Context) (lifecycle.AdTx, error) {
	if r.tx == nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "repository has no transaction source", nil)
	}
	tx, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	return newAdTx(tx, tx), nil
}

// CountByStatus counts non-deleted ads in status.
//
// SQL: SELECT COUNT(*) FROM ads WHERE status = $1 AND deleted_at IS NULL
func (r *AdRepository) CountByStatus(ctx context.Context, status types.AdStatus) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ads WHERE status = $1 AND deleted_at IS NULL`,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count ads by status", err)
	}
	return n, nil
}

// CountExpiringBetween counts published ads with from < expires_at <= to.
func (r *AdRepository) CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ads
		 WHERE status = 'published'
		   AND expires_at > $1 AND expires_at <= $2
		   AND deleted_at IS NULL`,
		from, to,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count expiring ads", err)
	}
	return n, nil
}

// CountAutoRenewPublished counts published ads with auto-renew enabled.
func (r *AdRepository) CountAutoRenewPublished(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ads
		 WHERE status = 'published' AND auto_renew = TRUE AND deleted_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count auto-renew ads", err)
	}
	return n, nil
}

// txFinisher is the commit/rollback half of pgx.Tx.
type txFinisher interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// adTx implements lifecycle.AdTx on top of a single pgx transaction.
type adTx struct {
	db  DBTX
	fin txFinisher
}

func newAdTx(db DBTX, fin txFinisher) *adTx {
	return &adTx{db: db, fin: fin}
}

// LockAd selects the ad row FOR UPDATE.
func (t *adTx) LockAd(ctx context.Context, adID string) (*types.Ad, error) {
	ad, err := scanAd(t.db.QueryRow(ctx,
		`SELECT `+adColumns+` FROM ads WHERE id = $1 FOR UPDATE`, adID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAd, "ad not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock ad", err)
	}
	return ad, nil
}

// SaveLifecycle writes every column the lifecycle owns.
//
// SQL: UPDATE ads SET status = $2, ..., updated_at = $14 WHERE id = $1
func (t *adTx) SaveLifecycle(ctx context.Context, ad *types.Ad) error {
	tag, err := t.db.Exec(ctx,
		`UPDATE ads SET
		   status = $2,
		   expires_at = $3,
		   expired_at = $4,
		   deletion_scheduled_at = $5,
		   auto_renew = $6,
		   renewal_count = $7,
		   last_renewal_at = $8,
		   expiration_warning_7d = $9,
		   expiration_warning_24h = $10,
		   deletion_warning = $11,
		   deleted_at = $12,
		   published_at = $13,
		   updated_at = $14
		 WHERE id = $1`,
		ad.ID,
		string(ad.Status),
		ad.ExpiresAt,
		ad.ExpiredAt,
		ad.DeletionScheduledAt,
		ad.AutoRenew,
		ad.RenewalCount,
		ad.LastRenewalAt,
		ad.ExpirationWarning7d,
		ad.ExpirationWarning24h,
		ad.DeletionWarning,
		ad.DeletedAt,
		ad.PublishedAt,
		ad.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save ad lifecycle", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAd, "ad not found", nil)
	}
	return nil
}

// PurgeDependents deletes the ad's dependent records. Messages go first since
// they reference conversations.
func (t *adTx) PurgeDependents(ctx context.Context, adID string) (types.CascadeResult, error) {
	var res types.CascadeResult

	steps := []struct {
		name string
		sql  string
		dst  *int64
	}{
		{"messages", `DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE ad_id = $1)`, &res.Messages},
		{"conversations", `DELETE FROM conversations WHERE ad_id = $1`, &res.Conversations},
		{"favorites", `DELETE FROM favorites WHERE ad_id = $1`, &res.Favorites},
		{"alerts", `DELETE FROM alerts WHERE ad_id = $1`, &res.Alerts},
	}
	for _, s := range steps {
		tag, err := t.db.Exec(ctx, s.sql, adID)
		if err != nil {
			return res, types.NewAppError(types.ErrCodeInternalDB, "failed to delete "+s.name, err)
		}
		*s.dst = tag.RowsAffected()
	}
	return res, nil
}

func (t *adTx) Commit(ctx context.Context) error {
	if err := t.fin.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// Rollback is a no-op after Commit (pgx returns ErrTxClosed, which is ignored).
func (t *adTx) Rollback(ctx context.Context) error {
	if err := t.fin.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to roll back transaction", err)
	}
	return nil
}
