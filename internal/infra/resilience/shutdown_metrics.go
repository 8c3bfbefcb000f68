package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShutdownMetrics provides Prometheus metrics for graceful-shutdown monitoring.
type ShutdownMetrics struct {
	// activeRequests tracks the number of requests currently in flight.
	activeRequests prometheus.Gauge

	// shutdownInProgress is 1 while a drain is underway.
	shutdownInProgress prometheus.Gauge

	// rejections counts requests refused because shutdown had started.
	rejections prometheus.Counter

	// drainDuration measures how long the drain took, by result.
	drainDuration *prometheus.HistogramVec
}

// NewShutdownMetrics creates and registers shutdown metrics with the given registry.
// If registry is nil, a new registry is created.
func NewShutdownMetrics(registry *prometheus.Registry) *ShutdownMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdown_active_requests",
			Help: "Number of requests currently tracked by the shutdown coordinator",
		},
	)

	shutdownInProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdown_in_progress",
			Help: "1 while the process is draining for shutdown, 0 otherwise",
		},
	)

	rejections := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shutdown_rejected_requests_total",
			Help: "Total number of requests rejected because shutdown had started",
		},
	)

	drainDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "shutdown_drain_duration_seconds",
			Help: "Duration of the shutdown drain phase by result (success, timeout)",
			Buckets: []float64{
				0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0,
			},
		},
		[]string{"result"},
	)

	// Register metrics with registry.
	// Errors are intentionally ignored as they indicate metrics are already registered,
	// which is expected when creating multiple coordinators in the same process.
	_ = registry.Register(activeRequests)
	_ = registry.Register(shutdownInProgress)
	_ = registry.Register(rejections)
	_ = registry.Register(drainDuration)

	return &ShutdownMetrics{
		activeRequests:     activeRequests,
		shutdownInProgress: shutdownInProgress,
		rejections:         rejections,
		drainDuration:      drainDuration,
	}
}

// SetActiveRequests updates the in-flight request gauge.
func (m *ShutdownMetrics) SetActiveRequests(count int64) {
	m.activeRequests.Set(float64(count))
}

// SetShutdownInProgress flags whether a drain is underway.
func (m *ShutdownMetrics) SetShutdownInProgress(inProgress bool) {
	if inProgress {
		m.shutdownInProgress.Set(1)
	} else {
		m.shutdownInProgress.Set(0)
	}
}

// RecordRejection counts a request refused during shutdown.
func (m *ShutdownMetrics) RecordRejection() {
	m.rejections.Inc()
}

// RecordShutdownDuration records how long the drain took.
// result should be one of: "success", "timeout"
func (m *ShutdownMetrics) RecordShutdownDuration(duration time.Duration, result string) {
	m.drainDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Reset re-zeroes the gauges. Useful for testing.
func (m *ShutdownMetrics) Reset() {
	m.activeRequests.Set(0)
	m.shutdownInProgress.Set(0)
}

// NoopShutdownMetrics returns a no-op metrics implementation for testing.
func NoopShutdownMetrics() *ShutdownMetrics {
	return NewShutdownMetrics(prometheus.NewRegistry())
}
