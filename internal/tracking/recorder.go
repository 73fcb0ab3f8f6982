// internal/tracking/recorder.go
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"
	"campaign-workers/internal/common/metrics"
	"campaign-workers/internal/models"
	"campaign-workers/internal/store"
)

// Recorder verifies signed tracking requests and persists the resulting
// events. The HTTP routing that receives the requests lives outside this
// core; the routes call these methods with the raw parameters.
type Recorder struct {
	db        *sql.DB
	signer    *Signer
	campaigns *store.CampaignStore
	logger    logger.Logger
}

func NewRecorder(db *sql.DB, signer *Signer, campaigns *store.CampaignStore, log logger.Logger) *Recorder {
	return &Recorder{
		db:        db,
		signer:    signer,
		campaigns: campaigns,
		logger:    log.WithFields(map[string]interface{}{"component": "tracking"}),
	}
}

// RecordOpen records an open event. Idempotent per (campaign, recipient):
// only the first occurrence inserts a row and bumps the campaign counter.
func (r *Recorder) RecordOpen(ctx context.Context, campaignID, recipientID int64, signature string, now time.Time) error {
	if !r.signer.Verify(PurposeOpen, campaignID, recipientID, "", signature) {
		return errors.NewSignatureInvalidError(PurposeOpen)
	}

	first, err := r.insertUnique(ctx, campaignID, recipientID, models.EventOpen, "", now)
	if err != nil {
		return err
	}
	if first {
		metrics.TrackingEvents.WithLabelValues(string(models.EventOpen)).Inc()
		return r.campaigns.IncrementCounter(ctx, campaignID, models.EventOpen, now)
	}
	return nil
}

// RecordClick records a click event and returns the original destination for
// the redirect. Clicks append: each recorded click bumps the counter.
func (r *Recorder) RecordClick(ctx context.Context, campaignID, recipientID int64, target, signature string, now time.Time) (string, error) {
	if !r.signer.Verify(PurposeClick, campaignID, recipientID, target, signature) {
		return "", errors.NewSignatureInvalidError(PurposeClick)
	}

	orgID, err := r.campaignOrg(ctx, campaignID)
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tracking_events (org_id, campaign_id, recipient_id, event_type, url, created_at)
		VALUES ($1, $2, $3, 'click', $4, $5)`,
		orgID, campaignID, recipientID, target, now)
	if err != nil {
		return "", errors.NewQueryExecutionFailedError("insert click event", err)
	}

	metrics.TrackingEvents.WithLabelValues(string(models.EventClick)).Inc()
	if err := r.campaigns.IncrementCounter(ctx, campaignID, models.EventClick, now); err != nil {
		return "", err
	}
	return target, nil
}

// RecordUnsubscribe records the opt-out, upserts the per-(org, email) record
// consumed by the resolver, and bumps the counter on first occurrence.
func (r *Recorder) RecordUnsubscribe(ctx context.Context, campaignID, recipientID int64, signature string, now time.Time) error {
	if !r.signer.Verify(PurposeUnsubscribe, campaignID, recipientID, "", signature) {
		return errors.NewSignatureInvalidError(PurposeUnsubscribe)
	}

	first, err := r.insertUnique(ctx, campaignID, recipientID, models.EventUnsubscribe, "", now)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	orgID, err := r.campaignOrg(ctx, campaignID)
	if err != nil {
		return err
	}

	var email string
	err = r.db.QueryRowContext(ctx,
		`SELECT email FROM campaign_recipients WHERE id = $1`, recipientID,
	).Scan(&email)
	if err != nil {
		return errors.NewQueryExecutionFailedError("lookup recipient email", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO unsubscribes (org_id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, email) DO NOTHING`,
		orgID, email, now)
	if err != nil {
		return errors.NewQueryExecutionFailedError("insert unsubscribe", err)
	}

	r.logger.Info("recipient unsubscribed", map[string]interface{}{
		"campaignId":  campaignID,
		"recipientId": recipientID,
	})
	metrics.TrackingEvents.WithLabelValues(string(models.EventUnsubscribe)).Inc()
	return r.campaigns.IncrementCounter(ctx, campaignID, models.EventUnsubscribe, now)
}

// insertUnique inserts an event that is idempotent per (campaign, recipient,
// type) and reports whether this call was the first occurrence.
func (r *Recorder) insertUnique(ctx context.Context, campaignID, recipientID int64, event models.TrackingEventType, url string, now time.Time) (bool, error) {
	orgID, err := r.campaignOrg(ctx, campaignID)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tracking_events (org_id, campaign_id, recipient_id, event_type, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id, recipient_id, event_type) WHERE event_type <> 'click'
		DO NOTHING`,
		orgID, campaignID, recipientID, event, url, now)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError(fmt.Sprintf("insert %s event", event), err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *Recorder) campaignOrg(ctx context.Context, campaignID int64) (int64, error) {
	var orgID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT org_id FROM campaigns WHERE id = $1`, campaignID,
	).Scan(&orgID)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("lookup campaign org", err)
	}
	return orgID, nil
}
