// internal/models/campaign.go
package models

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Campaign is a single email broadcast definition. The web layer owns it while
// the status is draft or scheduled; once a send begins only the worker loop
// mutates it. Counters are monotonically non-decreasing.
type Campaign struct {
	ID              int64          `json:"id"`
	OrgID           int64          `json:"orgId"`
	Subject         string         `json:"subject"`
	ContentHTML     string         `json:"contentHtml"`
	Filter          string         `json:"filter"` // JSON recipient filter document
	Status          CampaignStatus `json:"status"`
	TotalRecipients int            `json:"totalRecipients"`
	SentCount       int            `json:"sentCount"`
	FailedCount     int            `json:"failedCount"`
	OpenCount       int            `json:"openCount"`
	ClickCount      int            `json:"clickCount"`
	BounceCount     int            `json:"bounceCount"`
	UnsubCount      int            `json:"unsubCount"`
	ScheduledAt     *time.Time     `json:"scheduledAt,omitempty"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
