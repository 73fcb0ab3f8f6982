// internal/models/job.go
package models

import "time"

// JobStatus enumerates the lifecycle states of a send job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is one attempt to execute a campaign's send. At most one job per campaign
// may hold processing at a time; the claim semantics enforce it. Jobs are kept
// for audit, never deleted.
type Job struct {
	ID             int64      `json:"id"`
	OrgID          int64      `json:"orgId"`
	CampaignID     int64      `json:"campaignId"`
	Status         JobStatus  `json:"status"`
	RunAt          time.Time  `json:"runAt"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"maxAttempts"`
	LockedBy       string     `json:"lockedBy,omitempty"`
	LockedAt       *time.Time `json:"lockedAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ItemStatus enumerates the states of a job item. Transitions are monotone:
// pending -> processing -> sent|failed, with a lease-timeout reset back to
// pending for crash recovery.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusSent       ItemStatus = "sent"
	ItemStatusFailed     ItemStatus = "failed"
)

// JobItem is one recipient's unit of delivery work within a job.
type JobItem struct {
	ID           int64      `json:"id"`
	JobID        int64      `json:"jobId"`
	CampaignID   int64      `json:"campaignId"`
	RecipientID  int64      `json:"recipientId"`
	Status       ItemStatus `json:"status"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
