package types

import "time"

// Ad is a time-bounded listing governed by the expiration lifecycle.
// A soft-deleted ad keeps its row; DeletedAt marks it terminal.
type Ad struct {
	ID      string   `json:"id" db:"id"`
	OwnerID string   `json:"owner_id" db:"owner_id"`
	Title   string   `json:"title" db:"title"`
	Status  AdStatus `json:"status" db:"status"`

	PublishedAt         *time.Time `json:"published_at,omitempty" db:"published_at"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ExpiredAt           *time.Time `json:"expired_at,omitempty" db:"expired_at"`
	DeletionScheduledAt *time.Time `json:"deletion_scheduled_at,omitempty" db:"deletion_scheduled_at"`

	// Renewal
	AutoRenew     bool       `json:"auto_renew" db:"auto_renew"`
	RenewalCount  int        `json:"renewal_count" db:"renewal_count"`
	LastRenewalAt *time.Time `json:"last_renewal_at,omitempty" db:"last_renewal_at"`

	// Warning flags. Each is set at most once per published period.
	ExpirationWarning7d  bool `json:"expiration_warning_7d" db:"expiration_warning_7d"`
	ExpirationWarning24h bool `json:"expiration_warning_24h" db:"expiration_warning_24h"`
	DeletionWarning      bool `json:"deletion_warning" db:"deletion_warning"`

	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsDeleted reports whether the ad has been soft-deleted.
func (a *Ad) IsDeleted() bool {
	return a.DeletedAt != nil
}

// Clone returns a deep copy of the ad. Time pointers are copied so that
// mutating the clone never aliases the original.
func (a *Ad) Clone() *Ad {
	if a == nil {
		return nil
	}
	c := *a
	c.PublishedAt = cloneTime(a.PublishedAt)
	c.ExpiresAt = cloneTime(a.ExpiresAt)
	c.ExpiredAt = cloneTime(a.ExpiredAt)
	c.DeletionScheduledAt = cloneTime(a.DeletionScheduledAt)
	c.LastRenewalAt = cloneTime(a.LastRenewalAt)
	c.DeletedAt = cloneTime(a.DeletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CascadeResult counts dependent records removed when an ad is soft-deleted.
type CascadeResult struct {
	Messages      int64 `json:"messages"`
	Conversations int64 `json:"conversations"`
	Favorites     int64 `json:"favorites"`
	Alerts        int64 `json:"alerts"`
}

// Total returns the number of dependent rows removed.
func (c CascadeResult) Total() int64 {
	return c.Messages + c.Conversations + c.Favorites + c.Alerts
}

// ExpirationStats is the dashboard summary of lifecycle state.
// Soft-deleted ads are excluded from every count.
type ExpirationStats struct {
	TotalPublished      int64     `json:"total_published"`
	ExpiringWithin7Days int64     `json:"expiring_within_7_days"`
	TotalExpired        int64     `json:"total_expired"`
	TotalWithAutoRenew  int64     `json:"total_with_auto_renew"`
	GeneratedAt         time.Time `json:"generated_at"`
}
