// internal/store/campaignstore.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campaign-workers/internal/models"
)

// CampaignStore persists campaign rows. Once a send begins, only the worker
// loop writes here; the web layer owns draft and scheduled campaigns.
type CampaignStore struct {
	db *sql.DB
}

func NewCampaignStore(db *sql.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

// GetByID fetches a campaign.
func (s *CampaignStore) GetByID(ctx context.Context, campaignID int64) (*models.Campaign, error) {
	query := `
		SELECT id, org_id, subject, content_html, filter, status,
			total_recipients, sent_count, failed_count, open_count, click_count,
			bounce_count, unsub_count, scheduled_at, sent_at, created_at, updated_at
		FROM campaigns WHERE id = $1`

	var c models.Campaign
	err := s.db.QueryRowContext(ctx, query, campaignID).Scan(
		&c.ID, &c.OrgID, &c.Subject, &c.ContentHTML, &c.Filter, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.OpenCount,
		&c.ClickCount, &c.BounceCount, &c.UnsubCount,
		&c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get campaign %d: %w", campaignID, err)
	}
	return &c, nil
}

// MarkSending freezes total_recipients and moves the campaign to sending.
// Called once, right after the snapshot is taken.
func (s *CampaignStore) MarkSending(ctx context.Context, campaignID int64, totalRecipients int, now time.Time) error {
	query := `
		UPDATE campaigns
		SET status = 'sending', total_recipients = $2, updated_at = $3
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, campaignID, totalRecipients, now); err != nil {
		return fmt.Errorf("mark campaign %d sending: %w", campaignID, err)
	}
	return nil
}

// Finalize derives the campaign's terminal state from item outcomes. Partial
// success is still sent; failed is reserved for zero recipients reached.
// GREATEST keeps the counters monotone if a finalize races a re-run.
func (s *CampaignStore) Finalize(ctx context.Context, campaignID int64, status models.CampaignStatus, sentCount, failedCount int, now time.Time) error {
	query := `
		UPDATE campaigns
		SET status = $2,
			sent_count = GREATEST(sent_count, $3),
			failed_count = GREATEST(failed_count, $4),
			sent_at = CASE WHEN $2 = 'sent' THEN $5 ELSE sent_at END,
			updated_at = $5
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, campaignID, status, sentCount, failedCount, now); err != nil {
		return fmt.Errorf("finalize campaign %d: %w", campaignID, err)
	}
	return nil
}

// MarkFailed records a job-level failure (resolution error past max attempts,
// zero recipients) on the campaign.
func (s *CampaignStore) MarkFailed(ctx context.Context, campaignID int64, now time.Time) error {
	query := `UPDATE campaigns SET status = 'failed', updated_at = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, campaignID, now); err != nil {
		return fmt.Errorf("mark campaign %d failed: %w", campaignID, err)
	}
	return nil
}

// IncrementCounter bumps one of the engagement counters. The column is chosen
// here, never interpolated from input.
func (s *CampaignStore) IncrementCounter(ctx context.Context, campaignID int64, event models.TrackingEventType, now time.Time) error {
	var column string
	switch event {
	case models.EventOpen:
		column = "open_count"
	case models.EventClick:
		column = "click_count"
	case models.EventUnsubscribe:
		column = "unsub_count"
	case models.EventBounce:
		column = "bounce_count"
	default:
		return fmt.Errorf("unknown tracking event %q", event)
	}

	query := fmt.Sprintf(
		`UPDATE campaigns SET %s = %s + 1, updated_at = $2 WHERE id = $1`,
		column, column,
	)
	if _, err := s.db.ExecContext(ctx, query, campaignID, now); err != nil {
		return fmt.Errorf("increment %s for campaign %d: %w", column, campaignID, err)
	}
	return nil
}

// DB exposes the underlying handle for collaborators that share the
// connection pool.
func (s *CampaignStore) DB() *sql.DB {
	return s.db
}
