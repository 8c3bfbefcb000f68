package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RetryMetrics provides Prometheus metrics for retry monitoring.
type RetryMetrics struct {
	// operationTotal counts completed retry-wrapped operations by outcome.
	operationTotal *prometheus.CounterVec

	// attemptTotal counts individual attempts, labeled with the attempt number.
	attemptTotal *prometheus.CounterVec

	// durationSeconds measures total operation duration including backoff waits.
	durationSeconds *prometheus.HistogramVec
}

// NewRetryMetrics creates and registers retry metrics with the given registry.
// If registry is nil, a new registry is created.
func NewRetryMetrics(registry *prometheus.Registry) *RetryMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_total",
			Help: "Total number of retry-wrapped operations by result (success, failure, exhausted)",
		},
		[]string{"name", "result"},
	)

	attemptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of attempts grouped by the attempt count at completion",
		},
		[]string{"name", "attempts"},
	)

	durationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "retry_operation_duration_seconds",
			Help: "Total duration of retry-wrapped operations including backoff delays",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
			},
		},
		[]string{"name", "result"},
	)

	// Register metrics with registry.
	// Errors are intentionally ignored as they indicate metrics are already registered,
	// which is expected when creating multiple retriers in the same process.
	_ = registry.Register(operationTotal)
	_ = registry.Register(attemptTotal)
	_ = registry.Register(durationSeconds)

	return &RetryMetrics{
		operationTotal:  operationTotal,
		attemptTotal:    attemptTotal,
		durationSeconds: durationSeconds,
	}
}

// RecordOperation records a completed operation with its result, the number of
// attempts it took, and the total duration in seconds.
// result should be one of: "success", "failure", "exhausted"
func (m *RetryMetrics) RecordOperation(name, result string, attempts int, durationSeconds float64) {
	m.operationTotal.WithLabelValues(name, result).Inc()
	m.attemptTotal.WithLabelValues(name, itoa(attempts)).Inc()
	m.durationSeconds.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *RetryMetrics) Reset() {
	m.operationTotal.Reset()
	m.attemptTotal.Reset()
	m.durationSeconds.Reset()
}

// NoopRetryMetrics returns a no-op metrics implementation for testing.
func NoopRetryMetrics() *RetryMetrics {
	return NewRetryMetrics(prometheus.NewRegistry())
}

// itoa converts an int to its decimal string without pulling strconv into
// the hot path signature; attempt counts are tiny so the loop is cheap.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
