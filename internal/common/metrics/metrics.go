// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_claimed_total",
			Help: "Total number of send jobs claimed by workers",
		},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Total number of send jobs reaching a terminal state",
		},
		[]string{"status"},
	)

	JobsReleasedStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_released_stale_total",
			Help: "Total number of stale processing jobs reset to queued",
		},
	)

	EmailsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_emails_sent_total",
			Help: "Total number of emails delivered by the transport",
		},
	)

	EmailsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_emails_failed_total",
			Help: "Total number of per-recipient delivery failures",
		},
		[]string{"error_code"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pipeline_job_duration_seconds",
			Help: "Duration of a single job drain in seconds",
		},
	)

	ItemsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_items_in_flight",
			Help: "Number of job items currently being delivered",
		},
	)

	TrackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tracking_events_total",
			Help: "Total number of accepted tracking events",
		},
		[]string{"type"},
	)
)
