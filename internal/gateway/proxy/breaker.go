package proxy

import (
	"sync"
	"time"

	"github.com/nimbusgate/core/internal/gateway/route"
	"github.com/nimbusgate/core/internal/infra/resilience"
)

// BreakerRegistry lazily creates and caches one circuit breaker per upstream
// target: each target tracks its own rolling window of failures with a
// single writer serializing state transitions. Built on
// internal/infra/resilience.NewCircuitBreaker, which already wraps
// sony/gobreaker with metrics and logging hooks.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]resilience.CircuitBreaker
	metrics  *resilience.CircuitBreakerMetrics
}

// NewBreakerRegistry builds an empty registry. metrics may be nil.
func NewBreakerRegistry(metrics *resilience.CircuitBreakerMetrics) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]resilience.CircuitBreaker),
		metrics:  metrics,
	}
}

// For returns the breaker for target, creating one from policy on first use.
// A zero-value policy falls back to sensible defaults.
func (r *BreakerRegistry) For(target string, policy route.CircuitBreakerPolicy) resilience.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[target]; ok {
		return cb
	}

	cooldown := time.Duration(policy.CooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	minRequests := policy.MinimumRequests
	if minRequests == 0 {
		minRequests = 5
	}
	// policy.FailureRatioThreshold has no equivalent in resilience.CircuitBreakerConfig,
	// which only trips on an absolute consecutive-failure count; MinimumRequests is
	// reused as that threshold.

	cfg := resilience.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          cooldown,
		FailureThreshold: int(minRequests),
	}

	var opts []resilience.CircuitBreakerOption
	if r.metrics != nil {
		opts = append(opts, resilience.WithMetrics(r.metrics))
	}

	cb := resilience.NewCircuitBreaker(target, cfg, opts...)
	r.breakers[target] = cb
	return cb
}

// State reports the current breaker state for target, or StateClosed if no
// breaker has been created for it yet (i.e. it has never seen a request).
func (r *BreakerRegistry) State(target string) resilience.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[target]; ok {
		return cb.State()
	}
	return resilience.StateClosed
}
