package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics for monitoring API performance.
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Background job metrics for monitoring the asynq worker fleet.
var (
	// JobProcessedTotal counts total tasks processed by type, queue, and outcome.
	JobProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_processed_total",
			Help: "Total background jobs processed",
		},
		[]string{"task_type", "queue", "status"},
	)

	// JobDurationSeconds measures task processing duration in seconds.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type", "queue"},
	)
)
