package db

import (
	"context"
	"time"

	"adlifecycle/internal/types"
)

// NotificationRepository persists the owner notification feed. It implements
// lifecycle.Notifier so the feed can be one of the configured sinks.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Emit inserts the notification. Re-emitting the same ID is a no-op, so a
// retried delivery never duplicates a feed entry.
//
// SQL: INSERT INTO notifications (...) VALUES (...) ON CONFLICT (id) DO NOTHING
func (r *NotificationRepository) Emit(ctx context.Context, n types.OwnerNotification) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, owner_id, ad_id, kind, event, title, message, action_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		 ON CONFLICT (id) DO NOTHING`,
		n.ID,
		n.OwnerID,
		n.AdID,
		string(n.Kind),
		string(n.Event),
		n.Title,
		n.Message,
		nilIfEmpty(n.ActionURL),
		nilIfZeroTime(n.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// ListByOwner returns the owner's most recent notifications, newest first.
//
// SQL: SELECT ... FROM notifications WHERE owner_id = $1
//
//	ORDER BY created_at DESC, id DESC LIMIT $2
func (r *NotificationRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]types.OwnerNotification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, ad_id, kind, event, title, message,
		        COALESCE(action_url, ''), created_at
		 FROM notifications
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	out := make([]types.OwnerNotification, 0)
	for rows.Next() {
		var n types.OwnerNotification
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.AdID, &n.Kind, &n.Event,
			&n.Title, &n.Message, &n.ActionURL, &n.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notifications", err)
	}
	return out, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
