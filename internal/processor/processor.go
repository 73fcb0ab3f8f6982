// internal/processor/processor.go
package processor

import (
	"context"
	"sync"
	"time"

	"campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"
	"campaign-workers/internal/common/metrics"
	"campaign-workers/internal/content"
	"campaign-workers/internal/models"
	"campaign-workers/internal/ratelimit"
	"campaign-workers/internal/store"
	"campaign-workers/internal/transport"
)

// JobStore is the queue surface the processor consumes.
type JobStore interface {
	ClaimNextDue(ctx context.Context, workerID string, now time.Time) (*models.Job, error)
	Heartbeat(ctx context.Context, jobID int64, workerID string, now time.Time) error
	ReleaseStale(ctx context.Context, lockTimeout time.Duration, now time.Time) (int64, error)
	Requeue(ctx context.Context, jobID int64, lastError string, now time.Time) error
	MarkTerminal(ctx context.Context, jobID int64, status models.JobStatus, lastError string, now time.Time) error
	GetStatus(ctx context.Context, jobID int64) (models.JobStatus, error)
}

// RecipientStore is the snapshot and item surface the processor consumes.
type RecipientStore interface {
	CountItems(ctx context.Context, jobID int64) (int, error)
	Snapshot(ctx context.Context, jobID, campaignID int64, resolved []models.ResolvedRecipient, now time.Time) error
	ResetStaleItems(ctx context.Context, jobID int64, leaseTimeout time.Duration, now time.Time) (int64, error)
	PendingItems(ctx context.Context, jobID int64, limit int) ([]store.PendingItem, error)
	MarkItemProcessing(ctx context.Context, itemID int64, now time.Time) (bool, error)
	MarkItemSent(ctx context.Context, itemID, recipientID int64, now time.Time) error
	MarkItemFailed(ctx context.Context, itemID, recipientID int64, errMessage string, now time.Time) error
	Outcomes(ctx context.Context, jobID int64) (store.OutcomeCounts, error)
}

// CampaignStore is the campaign surface the processor consumes.
type CampaignStore interface {
	GetByID(ctx context.Context, campaignID int64) (*models.Campaign, error)
	MarkSending(ctx context.Context, campaignID int64, totalRecipients int, now time.Time) error
	Finalize(ctx context.Context, campaignID int64, status models.CampaignStatus, sentCount, failedCount int, now time.Time) error
	MarkFailed(ctx context.Context, campaignID int64, now time.Time) error
}

// Resolver turns a campaign filter into the recipient list.
type Resolver interface {
	Resolve(ctx context.Context, orgID int64, filterDoc string) ([]models.ResolvedRecipient, error)
}

// Config holds the worker-loop tunables.
type Config struct {
	Concurrency      int           // in-flight transport calls per job
	FetchBatch       int           // pending items fetched per round
	LockTimeout      time.Duration // job lease before stale recovery
	ItemLeaseTimeout time.Duration // item lease before reset to pending
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = 20
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Minute
	}
	if c.ItemLeaseTimeout <= 0 {
		c.ItemLeaseTimeout = 2 * time.Minute
	}
}

// Summary reports one ProcessDueJobs pass.
type Summary struct {
	Claimed        int   `json:"claimed"`
	ProcessedJobs  int   `json:"processedJobs"`
	ProcessedItems int   `json:"processedItems"`
	Sent           int   `json:"sent"`
	Failed         int   `json:"failed"`
	ElapsedMs      int64 `json:"elapsedMs"`
}

// Processor drives one run of "process due jobs within a time budget". All
// coordination between workers goes through the persisted job and item rows;
// Processor itself holds no cross-call state.
type Processor struct {
	jobs         JobStore
	recipients   RecipientStore
	campaigns    CampaignStore
	resolver     Resolver
	personalizer *content.Personalizer
	transport    transport.Transport
	limiter      *ratelimit.Limiter
	logger       logger.Logger
	cfg          Config
}

func New(
	jobs JobStore,
	recipients RecipientStore,
	campaigns CampaignStore,
	resolver Resolver,
	personalizer *content.Personalizer,
	tr transport.Transport,
	limiter *ratelimit.Limiter,
	log logger.Logger,
	cfg Config,
) *Processor {
	cfg.applyDefaults()
	return &Processor{
		jobs:         jobs,
		recipients:   recipients,
		campaigns:    campaigns,
		resolver:     resolver,
		personalizer: personalizer,
		transport:    tr,
		limiter:      limiter,
		logger:       log.WithFields(map[string]interface{}{"component": "processor"}),
		cfg:          cfg,
	}
}

// ProcessDueJobs claims up to maxJobs due jobs and drives their delivery
// within timeBudget. The budget is cooperative: it is checked between items,
// so a slow transport call can overrun by at most one item's latency. Items
// left pending are picked up by a future pass.
func (p *Processor) ProcessDueJobs(ctx context.Context, workerID string, timeBudget time.Duration, maxJobs int) (*Summary, error) {
	start := time.Now()
	deadline := start.Add(timeBudget)
	summary := &Summary{}

	released, err := p.jobs.ReleaseStale(ctx, p.cfg.LockTimeout, start)
	if err != nil {
		return summary, err
	}
	if released > 0 {
		metrics.JobsReleasedStale.Add(float64(released))
		p.logger.Warn("released stale jobs", map[string]interface{}{
			"workerId": workerID,
			"count":    released,
		})
	}

	for summary.Claimed < maxJobs && time.Now().Before(deadline) && ctx.Err() == nil {
		job, err := p.jobs.ClaimNextDue(ctx, workerID, time.Now())
		if err != nil {
			summary.ElapsedMs = time.Since(start).Milliseconds()
			return summary, err
		}
		if job == nil {
			break
		}

		summary.Claimed++
		metrics.JobsClaimed.Inc()
		p.processJob(ctx, job, deadline, summary)
	}

	summary.ElapsedMs = time.Since(start).Milliseconds()
	return summary, nil
}

// processJob runs one claimed job to a terminal state, or as far as the
// budget allows. Job-level errors never panic the pass: they are recorded on
// the job and the loop moves on.
func (p *Processor) processJob(ctx context.Context, job *models.Job, deadline time.Time, summary *Summary) {
	jobStart := time.Now()
	log := p.logger.WithFields(map[string]interface{}{
		"jobId":      job.ID,
		"campaignId": job.CampaignID,
		"attempt":    job.Attempts,
	})
	log.Info("processing job", nil)

	defer func() {
		metrics.JobDuration.Observe(time.Since(jobStart).Seconds())
	}()

	campaign, err := p.campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("load campaign", err), log)
		return
	}

	// Snapshot once: the recipient set is frozen on the first claim so filter
	// edits cannot alter an in-flight campaign.
	itemCount, err := p.recipients.CountItems(ctx, job.ID)
	if err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("count items", err), log)
		return
	}
	if itemCount == 0 {
		if !p.snapshotJob(ctx, job, campaign, log) {
			return
		}
	}

	// Resume after crash: items stuck in processing past the lease go back to
	// pending before the drain.
	reset, err := p.recipients.ResetStaleItems(ctx, job.ID, p.cfg.ItemLeaseTimeout, time.Now())
	if err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("reset stale items", err), log)
		return
	}
	if reset > 0 {
		log.Warn("reset stale items", map[string]interface{}{"count": reset})
	}

	sent, failed, processed, stopped := p.drainItems(ctx, job, campaign, deadline, log)
	summary.ProcessedItems += processed
	summary.Sent += sent
	summary.Failed += failed

	p.finalizeJob(ctx, job, stopped, summary, log)
}

// snapshotJob resolves the audience and persists the recipient and item rows.
// Returns false when the job reached a terminal or requeued state here.
func (p *Processor) snapshotJob(ctx context.Context, job *models.Job, campaign *models.Campaign, log logger.Logger) bool {
	resolved, err := p.resolver.Resolve(ctx, campaign.OrgID, campaign.Filter)
	if err != nil {
		p.failOrRetry(ctx, job, err, log)
		return false
	}

	if len(resolved) == 0 {
		// A filter matching nobody is a configuration problem, terminal right
		// away rather than retried.
		now := time.Now()
		noRecipients := errors.NewNoRecipientsError(campaign.ID)
		if err := p.jobs.MarkTerminal(ctx, job.ID, models.JobStatusFailed, noRecipients.Message, now); err != nil {
			log.WithError(err).Error("failed to mark job failed", nil)
		}
		if err := p.campaigns.MarkFailed(ctx, campaign.ID, now); err != nil {
			log.WithError(err).Error("failed to mark campaign failed", nil)
		}
		metrics.JobsCompleted.WithLabelValues(string(models.JobStatusFailed)).Inc()
		log.Warn("no recipients matched filter", nil)
		return false
	}

	now := time.Now()
	if err := p.recipients.Snapshot(ctx, job.ID, campaign.ID, resolved, now); err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("snapshot", err), log)
		return false
	}
	if err := p.campaigns.MarkSending(ctx, campaign.ID, len(resolved), now); err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("mark sending", err), log)
		return false
	}

	log.Info("recipient snapshot taken", map[string]interface{}{"recipients": len(resolved)})
	return true
}

type itemResult struct {
	sent bool
}

// drainItems delivers pending items with bounded concurrency. It stops early
// on the deadline, context cancellation, job cancellation, or the campaign
// rate limit, leaving the remaining items pending. stopped reports whether
// the drain ended before the backlog did.
func (p *Processor) drainItems(ctx context.Context, job *models.Job, campaign *models.Campaign, deadline time.Time, log logger.Logger) (sent, failed, processed int, stopped bool) {
	sem := make(chan struct{}, p.cfg.Concurrency)

	for {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return sent, failed, processed, true
		}

		// Renew the lease once per batch so a long drain stays claimed.
		if err := p.jobs.Heartbeat(ctx, job.ID, job.LockedBy, time.Now()); err != nil {
			log.WithError(err).Warn("lease heartbeat failed", nil)
		}

		items, err := p.recipients.PendingItems(ctx, job.ID, p.cfg.FetchBatch)
		if err != nil {
			log.WithError(err).Error("failed to fetch pending items", nil)
			return sent, failed, processed, true
		}
		if len(items) == 0 {
			return sent, failed, processed, false
		}

		results := make(chan itemResult, len(items))
		dispatched := 0
		var wg sync.WaitGroup

		for _, item := range items {
			if time.Now().After(deadline) || ctx.Err() != nil {
				stopped = true
				break
			}

			status, err := p.jobs.GetStatus(ctx, job.ID)
			if err != nil {
				log.WithError(err).Error("failed to reread job status", nil)
				stopped = true
				break
			}
			if status == models.JobStatusCancelled {
				log.Info("job cancelled, stopping drain", nil)
				stopped = true
				break
			}

			if !p.limiter.Allow(ctx, campaign.ID, time.Now()) {
				rateErr := errors.NewRateLimitedError(campaign.ID, p.limiter.Limit())
				log.WithError(rateErr).Info("campaign rate limit reached, leaving items for next pass", nil)
				stopped = true
				break
			}

			claimed, err := p.recipients.MarkItemProcessing(ctx, item.ItemID, time.Now())
			if err != nil {
				log.WithError(err).Error("failed to claim item", nil)
				continue
			}
			if !claimed {
				continue
			}

			dispatched++
			wg.Add(1)
			sem <- struct{}{}
			metrics.ItemsInFlight.Inc()
			go func(it store.PendingItem) {
				defer wg.Done()
				defer func() {
					<-sem
					metrics.ItemsInFlight.Dec()
				}()
				results <- p.deliverItem(ctx, campaign, it, log)
			}(item)
		}

		wg.Wait()
		for i := 0; i < dispatched; i++ {
			r := <-results
			processed++
			if r.sent {
				sent++
			} else {
				failed++
			}
		}

		if stopped {
			return sent, failed, processed, true
		}
	}
}

// deliverItem personalizes and sends one email, then records the outcome on
// the item and its recipient. A transport failure stays on this item; it
// never blocks the rest of the job.
func (p *Processor) deliverItem(ctx context.Context, campaign *models.Campaign, item store.PendingItem, log logger.Logger) itemResult {
	vars := content.VariablesFor(models.ResolvedRecipient{
		CustomerID: item.CustomerID,
		Email:      item.Email,
		FirstName:  item.FirstName,
		LastName:   item.LastName,
		Company:    item.Company,
		City:       item.City,
		Phone:      item.Phone,
	})
	html := p.personalizer.Personalize(campaign.ContentHTML, campaign.ID, item.RecipientID, vars)

	result, err := p.transport.SendEmail(ctx, item.Email, campaign.Subject, html)
	now := time.Now()
	if err != nil {
		metrics.EmailsFailed.WithLabelValues(string(errors.CodeOf(err))).Inc()
		log.Warn("delivery failed", map[string]interface{}{
			"itemId": item.ItemID,
			"email":  item.Email,
			"error":  err.Error(),
		})
		if markErr := p.recipients.MarkItemFailed(ctx, item.ItemID, item.RecipientID, err.Error(), now); markErr != nil {
			log.WithError(markErr).Error("failed to record item failure", nil)
		}
		return itemResult{sent: false}
	}

	metrics.EmailsSent.Inc()
	log.Debug("delivered", map[string]interface{}{
		"itemId":    item.ItemID,
		"messageId": result.MessageID,
	})
	if markErr := p.recipients.MarkItemSent(ctx, item.ItemID, item.RecipientID, now); markErr != nil {
		log.WithError(markErr).Error("failed to record item success", nil)
	}
	return itemResult{sent: true}
}

// finalizeJob settles job and campaign state from item outcomes. When the
// drain stopped early the job goes back to queued so a future pass finishes
// it; terminal states are set only once every item is terminal.
func (p *Processor) finalizeJob(ctx context.Context, job *models.Job, stopped bool, summary *Summary, log logger.Logger) {
	now := time.Now()

	status, err := p.jobs.GetStatus(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("failed to reread job status", nil)
		return
	}
	if status == models.JobStatusCancelled {
		// Operator cancellation: remaining items stay pending, the job keeps
		// its cancelled status. The campaign settles from what already went
		// out: partial sends stay sent, nothing sent reverts to draft.
		outcomes, err := p.recipients.Outcomes(ctx, job.ID)
		if err != nil {
			log.WithError(err).Error("failed to tally outcomes", nil)
			return
		}
		campaignStatus := models.CampaignStatusDraft
		if outcomes.Sent > 0 {
			campaignStatus = models.CampaignStatusSent
		}
		if err := p.campaigns.Finalize(ctx, job.CampaignID, campaignStatus, outcomes.Sent, outcomes.Failed, now); err != nil {
			log.WithError(err).Error("failed to finalize campaign", nil)
		}
		metrics.JobsCompleted.WithLabelValues(string(models.JobStatusCancelled)).Inc()
		summary.ProcessedJobs++
		return
	}

	outcomes, err := p.recipients.Outcomes(ctx, job.ID)
	if err != nil {
		p.failOrRetry(ctx, job, errors.NewQueryExecutionFailedError("tally outcomes", err), log)
		return
	}

	if stopped || !outcomes.Terminal() {
		if err := p.jobs.Requeue(ctx, job.ID, "", now); err != nil {
			log.WithError(err).Error("failed to requeue job", nil)
		}
		log.Info("budget exhausted, job requeued", map[string]interface{}{
			"pending": outcomes.Pending, "sent": outcomes.Sent, "failed": outcomes.Failed,
		})
		return
	}

	// Partial success is still sent; failed is reserved for zero recipients
	// reached.
	if outcomes.Sent > 0 {
		if err := p.campaigns.Finalize(ctx, job.CampaignID, models.CampaignStatusSent, outcomes.Sent, outcomes.Failed, now); err != nil {
			log.WithError(err).Error("failed to finalize campaign", nil)
		}
		if err := p.jobs.MarkTerminal(ctx, job.ID, models.JobStatusCompleted, "", now); err != nil {
			log.WithError(err).Error("failed to complete job", nil)
		}
		metrics.JobsCompleted.WithLabelValues(string(models.JobStatusCompleted)).Inc()
	} else {
		if err := p.campaigns.Finalize(ctx, job.CampaignID, models.CampaignStatusFailed, 0, outcomes.Failed, now); err != nil {
			log.WithError(err).Error("failed to finalize campaign", nil)
		}
		if err := p.jobs.MarkTerminal(ctx, job.ID, models.JobStatusFailed, "all deliveries failed", now); err != nil {
			log.WithError(err).Error("failed to fail job", nil)
		}
		metrics.JobsCompleted.WithLabelValues(string(models.JobStatusFailed)).Inc()
	}

	summary.ProcessedJobs++
	log.Info("job finalized", map[string]interface{}{
		"sent": outcomes.Sent, "failed": outcomes.Failed,
	})
}

// failOrRetry applies the job-level failure policy: retryable errors requeue
// until attempts reach max_attempts, everything else (and exhausted retries)
// is terminal for both the job and its campaign.
func (p *Processor) failOrRetry(ctx context.Context, job *models.Job, cause error, log logger.Logger) {
	now := time.Now()

	if errors.IsRetryable(cause) && job.Attempts < job.MaxAttempts {
		if err := p.jobs.Requeue(ctx, job.ID, cause.Error(), now); err != nil {
			log.WithError(err).Error("failed to requeue job after error", nil)
		}
		log.Warn("job failed, will retry", map[string]interface{}{
			"error":       cause.Error(),
			"attempt":     job.Attempts,
			"maxAttempts": job.MaxAttempts,
		})
		return
	}

	lastError := cause.Error()
	if errors.IsRetryable(cause) {
		lastError = errors.NewMaxAttemptsExceededError(job.Attempts, cause.Error()).Error()
	}

	if err := p.jobs.MarkTerminal(ctx, job.ID, models.JobStatusFailed, lastError, now); err != nil {
		log.WithError(err).Error("failed to mark job failed", nil)
	}
	if err := p.campaigns.MarkFailed(ctx, job.CampaignID, now); err != nil {
		log.WithError(err).Error("failed to mark campaign failed", nil)
	}
	metrics.JobsCompleted.WithLabelValues(string(models.JobStatusFailed)).Inc()
	log.Error("job failed terminally", map[string]interface{}{"error": cause.Error()})
}
