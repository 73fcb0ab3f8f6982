// internal/models/recipient.go
package models

import "time"

// RecipientStatus enumerates delivery outcomes for a snapshotted recipient.
type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "pending"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
)

// Recipient is the persisted snapshot of one recipient for one campaign. The
// set is captured once per job run so filter changes cannot alter an in-flight
// campaign.
type Recipient struct {
	ID           int64           `json:"id"`
	CampaignID   int64           `json:"campaignId"`
	CustomerID   int64           `json:"customerId"`
	Email        string          `json:"email"`
	Status       RecipientStatus `json:"status"`
	SentAt       *time.Time      `json:"sentAt,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ResolvedRecipient is the resolver's output before persistence: one customer
// with a deliverable address, ordered by customer id.
type ResolvedRecipient struct {
	CustomerID int64  `json:"customerId"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company"`
	City       string `json:"city"`
	Phone      string `json:"phone"`
}
