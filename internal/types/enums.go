package types

// AdStatus is the persisted status column of an ad.
// Only StatusPublished and StatusExpired are produced by the expiration engine;
// the remaining values are owned by the publishing and moderation flows.
type AdStatus string

const (
	StatusDraft         AdStatus = "draft"
	StatusPendingReview AdStatus = "pending_review"
	StatusPublished     AdStatus = "published"
	StatusExpired       AdStatus = "expired"
	StatusRejected      AdStatus = "rejected"
)

// NotificationKind is the severity shown to the owner.
type NotificationKind string

const (
	KindInfo    NotificationKind = "info"
	KindWarning NotificationKind = "warning"
	KindAlert   NotificationKind = "alert"
)

// EventType identifies which lifecycle transition produced a notification.
type EventType string

const (
	EventAdRenewed          EventType = "ad.renewed"
	EventAdAutoRenewed      EventType = "ad.auto_renewed"
	EventAdExpired          EventType = "ad.expired"
	EventAdDeleted          EventType = "ad.deleted"
	EventAdExpiring7d       EventType = "ad.expiring_7d"
	EventAdExpiring24h      EventType = "ad.expiring_24h"
	EventAdDeletionImminent EventType = "ad.deletion_imminent"
)
