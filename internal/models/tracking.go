// internal/models/tracking.go
package models

import "time"

// TrackingEventType enumerates the types of email engagement events.
type TrackingEventType string

const (
	EventOpen        TrackingEventType = "open"
	EventClick       TrackingEventType = "click"
	EventUnsubscribe TrackingEventType = "unsubscribe"
	EventBounce      TrackingEventType = "bounce"
)

// TrackingEvent is an append-only record of recipient engagement. Open and
// unsubscribe are idempotent per (campaign, recipient); clicks append per URL.
type TrackingEvent struct {
	ID          int64             `json:"id"`
	OrgID       int64             `json:"orgId"`
	CampaignID  int64             `json:"campaignId"`
	RecipientID int64             `json:"recipientId"`
	EventType   TrackingEventType `json:"eventType"`
	URL         string            `json:"url,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Unsubscribe is the per-(org, email) opt-out record. Once present, resolution
// excludes the address from every future campaign in that org.
type Unsubscribe struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"orgId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
