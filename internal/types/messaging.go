package types

import "time"

// OwnerNotification is an in-app message delivered to an ad owner.
// It is the payload written to the feed table and published to queues.
type OwnerNotification struct {
	ID        string           `json:"id" db:"id"`
	OwnerID   string           `json:"owner_id" db:"owner_id"`
	AdID      string           `json:"ad_id" db:"ad_id"`
	Kind      NotificationKind `json:"kind" db:"kind"`
	Event     EventType        `json:"event" db:"event"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	ActionURL string           `json:"action_url,omitempty" db:"action_url"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
