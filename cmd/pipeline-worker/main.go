// cmd/pipeline-worker/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campaign-workers/internal/common/config"
	"campaign-workers/internal/common/database"
	"campaign-workers/internal/common/logger"
	"campaign-workers/internal/content"
	"campaign-workers/internal/processor"
	"campaign-workers/internal/ratelimit"
	"campaign-workers/internal/resolver"
	"campaign-workers/internal/store"
	"campaign-workers/internal/tracking"
	"campaign-workers/internal/transport"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline worker...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log = logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL initialization")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis (only needed for rate limiting) ---
	var limiter *ratelimit.Limiter
	if cfg.Pipeline.RatePerMinute > 0 {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis initialization")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")

		limiter = ratelimit.NewLimiter(rdb.GetClient(), cfg.Pipeline.RatePerMinute, log)
	} else {
		limiter = ratelimit.NewLimiter(nil, 0, log)
	}

	// --- Init transport ---
	mailer, err := transport.New(ctx, cfg.Transport, log)
	if err != nil {
		zapLog.Fatal("transport init failed", zap.Error(err))
	}
	zapLog.Info("Transport initialized", zap.String("provider", cfg.Transport.Provider))

	// --- Wire the pipeline ---
	db := pg.GetDB()
	signer := tracking.NewSigner(cfg.Tracking.Secret, cfg.Tracking.BaseURL)
	proc := processor.New(
		store.NewJobStore(db),
		store.NewRecipientStore(db),
		store.NewCampaignStore(db),
		resolver.NewResolver(db, log),
		content.NewPersonalizer(signer),
		mailer,
		limiter,
		log,
		processor.Config{
			Concurrency:      cfg.Pipeline.Concurrency,
			LockTimeout:      config.GetDuration(cfg.Pipeline.LockTimeout),
			ItemLeaseTimeout: config.GetDuration(cfg.Pipeline.ItemLeaseTimeout),
		},
	)

	// --- Metrics endpoint ---
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLog.Info("metrics endpoint listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				zapLog.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	workerID := fmt.Sprintf("%s-%s", hostname(), uuid.NewString()[:8])
	timeBudget := config.GetDuration(cfg.Pipeline.TimeBudget)
	pollInterval := config.GetDuration(cfg.Pipeline.PollInterval)

	runPass := func() {
		summary, err := proc.ProcessDueJobs(ctx, workerID, timeBudget, cfg.Pipeline.MaxJobsPerPass)
		if err != nil {
			zapLog.Error("pass failed", zap.Error(err))
			return
		}
		zapLog.Info("pass finished",
			zap.Int("claimed", summary.Claimed),
			zap.Int("processedJobs", summary.ProcessedJobs),
			zap.Int("processedItems", summary.ProcessedItems),
			zap.Int("sent", summary.Sent),
			zap.Int("failed", summary.Failed),
			zap.Int64("elapsedMs", summary.ElapsedMs),
		)
	}

	if *once {
		runPass()
		return
	}

	// The poll loop stands in for an external cron trigger: each tick is one
	// independent budgeted pass.
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	runPass()
	for {
		select {
		case <-ctx.Done():
			zapLog.Info("shutting down")
			return
		case <-ticker.C:
			runPass()
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return h
}
