// internal/store/jobstore.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"campaign-workers/internal/models"
)

// ErrAlreadyQueued is returned by Enqueue when the campaign already has an
// active (queued or processing) job.
var ErrAlreadyQueued = errors.New("campaign already has an active job")

// JobStore persists send jobs. The job row doubles as the mutual-exclusion
// primitive: claim-before-process with lease-timeout recovery.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, org_id, campaign_id, status, run_at, attempts, max_attempts,
	COALESCE(locked_by, ''), locked_at, COALESCE(last_error, ''), created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.ID, &j.OrgID, &j.CampaignID, &j.Status, &j.RunAt, &j.Attempts,
		&j.MaxAttempts, &j.LockedBy, &j.LockedAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts a queued job for the campaign unless an active one already
// exists, in which case it returns ErrAlreadyQueued. runAt may be in the
// future for scheduled sends.
func (s *JobStore) Enqueue(ctx context.Context, orgID, campaignID int64, runAt time.Time, maxAttempts int) (*models.Job, error) {
	query := `
		INSERT INTO jobs (org_id, campaign_id, status, run_at, max_attempts)
		SELECT $1, $2, 'queued', $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM jobs
			WHERE campaign_id = $2 AND status IN ('queued', 'processing')
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, orgID, campaignID, runAt, maxAttempts))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isActiveJobConflict(err) {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// isActiveJobConflict reports whether err is the unique violation raised by
// uq_jobs_active_campaign when two Enqueue calls race past the NOT EXISTS
// check; the index is the backstop the guard alone cannot provide under
// concurrent transactions.
func isActiveJobConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" &&
		pqErr.Constraint == "uq_jobs_active_campaign"
}

// ClaimNextDue atomically claims the oldest due queued job for workerID.
// Returns (nil, nil) when nothing is due. Under concurrent callers at most one
// wins any given job: the claim is a conditional update over a SKIP LOCKED
// selection, FIFO by run_at then id.
func (s *JobStore) ClaimNextDue(ctx context.Context, workerID string, now time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'processing', locked_by = $1, locked_at = $2,
			attempts = attempts + 1, updated_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued' AND run_at <= $2
			ORDER BY run_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, workerID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Heartbeat refreshes the claim's lock time so a long-running drain is not
// mistaken for a crashed worker by ReleaseStale. A no-op when the job is no
// longer held by workerID.
func (s *JobStore) Heartbeat(ctx context.Context, jobID int64, workerID string, now time.Time) error {
	query := `
		UPDATE jobs
		SET locked_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing' AND locked_by = $2`

	if _, err := s.db.ExecContext(ctx, query, jobID, workerID, now); err != nil {
		return fmt.Errorf("heartbeat job %d: %w", jobID, err)
	}
	return nil
}

// ReleaseStale resets processing jobs whose lock is older than lockTimeout
// back to queued, so a crashed worker's job becomes claimable again. Returns
// the number of jobs released.
func (s *JobStore) ReleaseStale(ctx context.Context, lockTimeout time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-lockTimeout)
	query := `
		UPDATE jobs
		SET status = 'queued', locked_by = NULL, locked_at = NULL, updated_at = $1
		WHERE status = 'processing' AND locked_at < $2`

	res, err := s.db.ExecContext(ctx, query, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkTerminal transitions a processing job to completed, failed or cancelled.
// Only the worker loop calls this, after per-item outcomes are fully known.
func (s *JobStore) MarkTerminal(ctx context.Context, jobID int64, status models.JobStatus, lastError string, now time.Time) error {
	query := `
		UPDATE jobs
		SET status = $2, last_error = NULLIF($3, ''), locked_by = NULL,
			locked_at = NULL, updated_at = $4
		WHERE id = $1 AND status = 'processing'`

	res, err := s.db.ExecContext(ctx, query, jobID, status, lastError, now)
	if err != nil {
		return fmt.Errorf("mark job %d %s: %w", jobID, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark job %d %s: job not in processing", jobID, status)
	}
	return nil
}

// Requeue returns a processing job to queued so a later pass picks it up
// again: after a retryable failure, or when the time budget ran out with
// items still pending. lastError is kept for operators, empty on a plain
// budget continuation.
func (s *JobStore) Requeue(ctx context.Context, jobID int64, lastError string, now time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'queued', locked_by = NULL, locked_at = NULL,
			last_error = NULLIF($2, ''), updated_at = $3
		WHERE id = $1 AND status = 'processing'`

	if _, err := s.db.ExecContext(ctx, query, jobID, lastError, now); err != nil {
		return fmt.Errorf("requeue job %d: %w", jobID, err)
	}
	return nil
}

// Cancel marks an active job cancelled out-of-band. The worker observes the
// status between items and stops early.
func (s *JobStore) Cancel(ctx context.Context, jobID int64, now time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status IN ('queued', 'processing')`

	_, err := s.db.ExecContext(ctx, query, jobID, now)
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", jobID, err)
	}
	return nil
}

// GetStatus rereads the current status of a job.
func (s *JobStore) GetStatus(ctx context.Context, jobID int64) (models.JobStatus, error) {
	var status models.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get job %d status: %w", jobID, err)
	}
	return status, nil
}

// GetByID fetches a job row.
func (s *JobStore) GetByID(ctx context.Context, jobID int64) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", jobID, err)
	}
	return job, nil
}
