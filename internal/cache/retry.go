package cache

import (
	"context"
	"errors"
	"time"
)

// Retryer retries transient failures of an idempotent operation. The
// resilience layer's Retrier satisfies this; the narrow interface keeps
// this package free of an infra dependency.
type Retryer interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// retryingCache decorates a Cache so counter increments survive transient
// backend blips. Only Increment is retried: it is the one operation the
// rate-limit counters depend on, and the one the error-handling contract
// allows automatic retries for.
type retryingCache struct {
	Cache
	retry Retryer
}

// WithIncrementRetry wraps c so Increment retries through r. A nil r
// returns c unchanged.
func WithIncrementRetry(c Cache, r Retryer) Cache {
	if r == nil {
		return c
	}
	return &retryingCache{Cache: c, retry: r}
}

func (c *retryingCache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var value int64
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var incErr error
		value, incErr = c.Cache.Increment(ctx, key, delta, ttl)
		return incErr
	})
	return value, err
}

// errCASUnsupported signals a wrapped backend without compare-and-swap.
var errCASUnsupported = errors.New("cache: compare-and-swap not supported by backend")

// CompareAndSwap passes through to the wrapped backend so the decorator
// doesn't hide the optional capability. CAS is not retried: a lost swap is
// already reported through swapped=false.
func (c *retryingCache) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) (bool, error) {
	cas, ok := c.Cache.(CompareAndSwapper)
	if !ok {
		return false, errCASUnsupported
	}
	return cas.CompareAndSwap(ctx, key, oldValue, newValue, ttl)
}

var _ Cache = (*retryingCache)(nil)
var _ CompareAndSwapper = (*retryingCache)(nil)
