// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"campaign-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// bucketKeyFormat keys the counter to a wall-clock minute.
const bucketKeyFormat = "200601021504"

// Limiter caps how many sends a campaign may perform per minute, coordinated
// across workers through a Redis counter. A zero limit disables limiting.
type Limiter struct {
	client *redis.Client
	limit  int
	logger logger.Logger
}

func NewLimiter(client *redis.Client, perMinute int, log logger.Logger) *Limiter {
	return &Limiter{
		client: client,
		limit:  perMinute,
		logger: log.WithFields(map[string]interface{}{"component": "ratelimit"}),
	}
}

// Allow reports whether the campaign may send one more email this minute.
// A Redis failure fails open: delivery keeps flowing and the incident shows
// up in the logs instead of stalling campaigns.
func (l *Limiter) Allow(ctx context.Context, campaignID int64, now time.Time) bool {
	if l == nil || l.limit <= 0 || l.client == nil {
		return true
	}

	key := fmt.Sprintf("campaign:%d:rate:%s", campaignID, now.UTC().Format(bucketKeyFormat))

	used, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate counter unavailable, allowing send", map[string]interface{}{
			"campaignId": campaignID,
			"error":      err.Error(),
		})
		return true
	}
	if used == 1 {
		// First hit in this bucket owns the expiry.
		l.client.Expire(ctx, key, 2*time.Minute)
	}

	return used <= int64(l.limit)
}

// Limit returns the configured per-minute cap.
func (l *Limiter) Limit() int {
	if l == nil {
		return 0
	}
	return l.limit
}
