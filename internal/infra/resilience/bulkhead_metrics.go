package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BulkheadMetrics provides Prometheus metrics for bulkhead monitoring.
type BulkheadMetrics struct {
	// active tracks the number of in-flight operations per bulkhead.
	active *prometheus.GaugeVec

	// waiting tracks the number of operations queued for a slot.
	waiting *prometheus.GaugeVec

	// operationTotal counts operations by result.
	operationTotal *prometheus.CounterVec

	// waitDuration measures how long operations waited for a slot.
	waitDuration *prometheus.HistogramVec
}

// NewBulkheadMetrics creates and registers bulkhead metrics with the given registry.
// If registry is nil, a new registry is created.
func NewBulkheadMetrics(registry *prometheus.Registry) *BulkheadMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	active := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_active_operations",
			Help: "Number of operations currently executing inside the bulkhead",
		},
		[]string{"name"},
	)

	waiting := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_waiting_operations",
			Help: "Number of operations waiting for a bulkhead slot",
		},
		[]string{"name"},
	)

	operationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_operations_total",
			Help: "Total number of bulkhead operations by result (success, rejected, error)",
		},
		[]string{"name", "result"},
	)

	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bulkhead_wait_duration_seconds",
			Help: "Time operations spent waiting for a bulkhead slot",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
			},
		},
		[]string{"name"},
	)

	// Register metrics with registry.
	// Errors are intentionally ignored as they indicate metrics are already registered,
	// which is expected when creating multiple bulkheads in the same process.
	_ = registry.Register(active)
	_ = registry.Register(waiting)
	_ = registry.Register(operationTotal)
	_ = registry.Register(waitDuration)

	return &BulkheadMetrics{
		active:         active,
		waiting:        waiting,
		operationTotal: operationTotal,
		waitDuration:   waitDuration,
	}
}

// SetActive updates the active-operations gauge for a bulkhead.
func (m *BulkheadMetrics) SetActive(name string, count int) {
	m.active.WithLabelValues(name).Set(float64(count))
}

// SetWaiting updates the waiting-operations gauge for a bulkhead.
func (m *BulkheadMetrics) SetWaiting(name string, count int) {
	m.waiting.WithLabelValues(name).Set(float64(count))
}

// RecordOperation increments the operation counter for a bulkhead.
// result should be one of: "success", "rejected", "error"
func (m *BulkheadMetrics) RecordOperation(name, result string) {
	m.operationTotal.WithLabelValues(name, result).Inc()
}

// RecordWaitDuration records how long an operation waited for a slot.
func (m *BulkheadMetrics) RecordWaitDuration(name string, durationSeconds float64) {
	m.waitDuration.WithLabelValues(name).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *BulkheadMetrics) Reset() {
	m.active.Reset()
	m.waiting.Reset()
	m.operationTotal.Reset()
	m.waitDuration.Reset()
}

// NoopBulkheadMetrics returns a no-op metrics implementation for testing.
func NoopBulkheadMetrics() *BulkheadMetrics {
	return NewBulkheadMetrics(prometheus.NewRegistry())
}
