// internal/store/recipientstore.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campaign-workers/internal/models"
)

// RecipientStore persists the per-campaign recipient snapshot and the job
// items consumed by the delivery loop.
type RecipientStore struct {
	db *sql.DB
}

func NewRecipientStore(db *sql.DB) *RecipientStore {
	return &RecipientStore{db: db}
}

// PendingItem is a pending job item joined with its snapshotted recipient, the
// unit handed to the delivery pool.
type PendingItem struct {
	ItemID      int64
	JobID       int64
	CampaignID  int64
	RecipientID int64
	CustomerID  int64
	Email       string
	FirstName   string
	LastName    string
	Company     string
	City        string
	Phone       string
}

// OutcomeCounts summarizes item states for one job.
type OutcomeCounts struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}

// Terminal reports whether every item has reached sent or failed.
func (c OutcomeCounts) Terminal() bool {
	return c.Pending == 0 && c.Processing == 0
}

// Total returns the number of items across all states.
func (c OutcomeCounts) Total() int {
	return c.Pending + c.Processing + c.Sent + c.Failed
}

// CountItems returns the number of job items that exist for a job, regardless
// of state. Zero means the job has not been snapshotted yet.
func (s *RecipientStore) CountItems(ctx context.Context, jobID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_items WHERE job_id = $1`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items for job %d: %w", jobID, err)
	}
	return n, nil
}

// Snapshot persists the resolved recipient list as campaign_recipients rows
// and pending job_items, in one transaction. The recipient insert is
// idempotent per (campaign, customer) and the item insert per (job,
// recipient), so retrying a partially snapshotted job converges on the same
// set. Variables are frozen here so later customer edits cannot change an
// in-flight campaign.
func (s *RecipientStore) Snapshot(ctx context.Context, jobID, campaignID int64, resolved []models.ResolvedRecipient, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	recipientQuery := `
		INSERT INTO campaign_recipients
			(campaign_id, customer_id, email, first_name, last_name, company, city, phone, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
		ON CONFLICT (campaign_id, customer_id)
			DO UPDATE SET email = EXCLUDED.email
		RETURNING id`

	itemQuery := `
		INSERT INTO job_items (job_id, campaign_id, recipient_id, status, updated_at)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (job_id, recipient_id) DO NOTHING`

	for _, r := range resolved {
		var recipientID int64
		err := tx.QueryRowContext(ctx, recipientQuery,
			campaignID, r.CustomerID, r.Email, r.FirstName, r.LastName,
			r.Company, r.City, r.Phone, now,
		).Scan(&recipientID)
		if err != nil {
			return fmt.Errorf("snapshot recipient %d: %w", r.CustomerID, err)
		}

		if _, err := tx.ExecContext(ctx, itemQuery, jobID, campaignID, recipientID, now); err != nil {
			return fmt.Errorf("snapshot item for recipient %d: %w", recipientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ResetStaleItems moves items stuck in processing past the lease timeout back
// to pending. Returns the number reset.
func (s *RecipientStore) ResetStaleItems(ctx context.Context, jobID int64, leaseTimeout time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-leaseTimeout)
	query := `
		UPDATE job_items
		SET status = 'pending', updated_at = $2
		WHERE job_id = $1 AND status = 'processing' AND updated_at < $3`

	res, err := s.db.ExecContext(ctx, query, jobID, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale items for job %d: %w", jobID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingItems lists up to limit pending items for a job with their
// snapshotted recipient data, ordered by item id for a stable drain order.
func (s *RecipientStore) PendingItems(ctx context.Context, jobID int64, limit int) ([]PendingItem, error) {
	query := `
		SELECT ji.id, ji.job_id, ji.campaign_id, ji.recipient_id,
			cr.customer_id, cr.email,
			COALESCE(cr.first_name, ''), COALESCE(cr.last_name, ''),
			COALESCE(cr.company, ''), COALESCE(cr.city, ''), COALESCE(cr.phone, '')
		FROM job_items ji
		JOIN campaign_recipients cr ON cr.id = ji.recipient_id
		WHERE ji.job_id = $1 AND ji.status = 'pending'
		ORDER BY ji.id
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending items for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var it PendingItem
		if err := rows.Scan(
			&it.ItemID, &it.JobID, &it.CampaignID, &it.RecipientID,
			&it.CustomerID, &it.Email,
			&it.FirstName, &it.LastName, &it.Company, &it.City, &it.Phone,
		); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkItemProcessing claims a single item for delivery. Returns false when the
// item is no longer pending, which means another pass already took it.
func (s *RecipientStore) MarkItemProcessing(ctx context.Context, itemID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_items SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'pending'`, itemID, now)
	if err != nil {
		return false, fmt.Errorf("mark item %d processing: %w", itemID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkItemSent records a successful delivery on both the item and its
// recipient row.
func (s *RecipientStore) MarkItemSent(ctx context.Context, itemID, recipientID int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sent tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE job_items SET status = 'sent', sent_at = $2, updated_at = $2
		WHERE id = $1`, itemID, now); err != nil {
		return fmt.Errorf("mark item %d sent: %w", itemID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'sent', sent_at = $2
		WHERE id = $1`, recipientID, now); err != nil {
		return fmt.Errorf("mark recipient %d sent: %w", recipientID, err)
	}

	return tx.Commit()
}

// MarkItemFailed records a per-recipient delivery failure. The error stays on
// the item and recipient; it never escalates to the job.
func (s *RecipientStore) MarkItemFailed(ctx context.Context, itemID, recipientID int64, errMessage string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failed tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE job_items SET status = 'failed', error_message = $2, updated_at = $3
		WHERE id = $1`, itemID, errMessage, now); err != nil {
		return fmt.Errorf("mark item %d failed: %w", itemID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'failed', error_message = $2
		WHERE id = $1`, recipientID, errMessage); err != nil {
		return fmt.Errorf("mark recipient %d failed: %w", recipientID, err)
	}

	return tx.Commit()
}

// Outcomes tallies item states for a job.
func (s *RecipientStore) Outcomes(ctx context.Context, jobID int64) (OutcomeCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM job_items
		WHERE job_id = $1 GROUP BY status`, jobID)
	if err != nil {
		return OutcomeCounts{}, fmt.Errorf("tally outcomes for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var counts OutcomeCounts
	for rows.Next() {
		var status models.ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return OutcomeCounts{}, fmt.Errorf("scan outcome row: %w", err)
		}
		switch status {
		case models.ItemStatusPending:
			counts.Pending = n
		case models.ItemStatusProcessing:
			counts.Processing = n
		case models.ItemStatusSent:
			counts.Sent = n
		case models.ItemStatusFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}
