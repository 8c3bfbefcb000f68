// Package ratelimit implements the edge plane's rate-limit engine:
// multi-dimensional (per-IP, per-principal, per-key, per-route) enforcement
// with fixed-window and sliding-window (token bucket) algorithms, violation
// escalation, timed blocks, and a critical-operation bypass — all backed by
// the Shared Cache Abstraction's atomic counters (internal/cache), the same
// increment-with-TTL primitive.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nimbusgate/core/internal/cache"
)

// Dimension identifies which quota axis a Decision was evaluated against,
// in precedence order: route-specific > API-key tier > principal > IP.
type Dimension string

const (
	DimensionRoute     Dimension = "route"
	DimensionAPIKey    Dimension = "apikey"
	DimensionPrincipal Dimension = "principal"
	DimensionIP        Dimension = "ip"
)

// Algorithm selects the counting strategy for a Quota.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Quota describes the limit applied along one dimension.
type Quota struct {
	Dimension      Dimension
	Algorithm      Algorithm
	WindowSeconds  int64   // fixed-window bucket width
	Capacity       int64   // fixed-window: max requests per window; sliding: burst size
	ReplenishRate  float64 // sliding window: tokens/sec refill rate

	// ViolationThreshold is the number of consecutive violations on this
	// dimension before a timed block is triggered. Zero disables escalation.
	ViolationThreshold int
	// BlockDuration is how long a triggered block lasts.
	BlockDuration time.Duration
}

// Key identifies one instance of a dimension, e.g. Dimension=principal,
// Value="user-123".
type Key struct {
	Dimension Dimension
	Value     string
}

func (k Key) String() string { return string(k.Dimension) + ":" + k.Value }

// Decision is the result of Engine.Allow.
type Decision struct {
	Allowed      bool
	Dimension    Dimension
	Limit        int64
	Remaining    int64
	ResetAtUnix  int64 // epoch ms, for X-RateLimit-Reset
	RetryAfter   int   // seconds, only meaningful when !Allowed
	Bypassed     bool  // true if a critical-operation bypass applied
	BlockedUntil time.Time
}

// DegradedMode controls engine behavior when the cache is unreachable.
// This is a deterministic configuration choice, not a heuristic.
type DegradedMode int

const (
	// FailOpen allows all requests (optionally metered by an in-process
	// leaky-bucket fallback) when the cache errors.
	FailOpen DegradedMode = iota
	// FailClosed denies all requests when the cache errors.
	FailClosed
)

// Fallback is the in-process leaky-bucket used in FailOpen mode so a cache
// outage doesn't silently remove rate limiting altogether.
type Fallback interface {
	Allow(key string, capacity int64, window time.Duration) bool
}

// Engine enforces multi-dimensional rate limiting.
type Engine struct {
	cache    cache.Cache
	degraded DegradedMode
	fallback Fallback
	now      func() time.Time

	// bypassCounter is incremented (via cache, best-effort) whenever a
	// critical-operation bypass is applied; bypassed requests must still
	// be counted.
	bypassCounterKey string
}

// Option configures an Engine.
type Option func(*Engine)

// WithDegradedMode sets the cache-unavailable policy. Default FailOpen.
func WithDegradedMode(m DegradedMode) Option {
	return func(e *Engine) { e.degraded = m }
}

// WithFallback sets the in-process leaky-bucket used in FailOpen mode.
func WithFallback(f Fallback) Option {
	return func(e *Engine) { e.fallback = f }
}

// WithClock overrides the engine's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine backed by c.
func New(c cache.Cache, opts ...Option) *Engine {
	e := &Engine{
		cache:            c,
		degraded:         FailOpen,
		now:              time.Now,
		bypassCounterKey: "ratelimit:bypass:count",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveQuota picks the applicable Quota for a request out of candidates
// honoring the dimension precedence (route > api-key tier > principal > IP): the
// first non-nil quota in that order wins. Callers build the candidate list
// from the Route Resolver's matched route, the caller's ApiKey tier, the
// authenticated Principal, and the client IP.
func ResolveQuota(route, apiKeyTier, principal, ip *Quota) *Quota {
	for _, q := range []*Quota{route, apiKeyTier, principal, ip} {
		if q != nil {
			return q
		}
	}
	return nil
}

// Allow evaluates key against quota. If bypass is true (a trusted header
// from an allow-listed principal role), the request is always
// allowed but still recorded in the bypass observability counter.
func (e *Engine) Allow(ctx context.Context, key Key, quota Quota, bypass bool) (Decision, error) {
	if bypass {
		e.recordBypass(ctx)
		return Decision{Allowed: true, Dimension: key.Dimension, Bypassed: true, Limit: quota.Capacity}, nil
	}

	blocked, blockedUntil, err := e.isBlocked(ctx, key)
	if err != nil {
		return e.degradedDecision(key, quota, err)
	}
	if blocked {
		return Decision{
			Allowed:      false,
			Dimension:    key.Dimension,
			Limit:        quota.Capacity,
			Remaining:    0,
			ResetAtUnix:  blockedUntil.UnixMilli(),
			RetryAfter:   retryAfterSeconds(blockedUntil.Sub(e.now())),
			BlockedUntil: blockedUntil,
		}, nil
	}

	var decision Decision
	switch quota.Algorithm {
	case AlgorithmSlidingWindow:
		decision, err = e.allowSlidingWindow(ctx, key, quota)
	default:
		decision, err = e.allowFixedWindow(ctx, key, quota)
	}
	if err != nil {
		return e.degradedDecision(key, quota, err)
	}

	if !decision.Allowed {
		if escalated := e.recordViolation(ctx, key, quota); escalated {
			blockUntil := e.now().Add(quota.BlockDuration)
			decision.BlockedUntil = blockUntil
			decision.RetryAfter = int(math.Ceil(quota.BlockDuration.Seconds()))
		}
	} else {
		e.clearViolations(ctx, key)
	}

	return decision, nil
}

func (e *Engine) degradedDecision(key Key, quota Quota, cacheErr error) (Decision, error) {
	if e.degraded == FailClosed {
		return Decision{}, fmt.Errorf("ratelimit: cache unavailable, fail-closed: %w", cacheErr)
	}
	if e.fallback != nil {
		window := time.Duration(quota.WindowSeconds) * time.Second
		if window == 0 {
			window = time.Minute
		}
		allowed := e.fallback.Allow(key.String(), quota.Capacity, window)
		return Decision{Allowed: allowed, Dimension: key.Dimension, Limit: quota.Capacity}, nil
	}
	// Fail-open with no fallback configured: allow unconditionally.
	return Decision{Allowed: true, Dimension: key.Dimension, Limit: quota.Capacity}, nil
}

// allowFixedWindow implements the fixed-window algorithm: counter keyed
// by (dimension, window-id = floor(now/windowSeconds)); allow iff the
// post-increment value is <= capacity.
func (e *Engine) allowFixedWindow(ctx context.Context, key Key, quota Quota) (Decision, error) {
	windowSeconds := quota.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	now := e.now()
	windowID := now.Unix() / windowSeconds
	counterKey := fmt.Sprintf("ratelimit:fw:%s:%d", key.String(), windowID)

	count, err := e.cache.Increment(ctx, counterKey, 1, time.Duration(windowSeconds)*time.Second)
	if err != nil {
		return Decision{}, err
	}

	remaining := quota.Capacity - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.Unix((windowID+1)*windowSeconds, 0)

	return Decision{
		Allowed:     count <= quota.Capacity,
		Dimension:   key.Dimension,
		Limit:       quota.Capacity,
		Remaining:   remaining,
		ResetAtUnix: resetAt.UnixMilli(),
		RetryAfter:  int(math.Ceil(time.Until(resetAt).Seconds())),
	}, nil
}

// tokenBucketState is the CAS-guarded value for the sliding-window
// algorithm: capacity=burst, refilled at replenishRate tokens/sec.
type tokenBucketState struct {
	tokens     float64
	lastRefill int64 // unix nanos
}

// allowSlidingWindow implements the token-bucket algorithm via the
// cache's CompareAndSwap primitive when available, falling back to a
// best-effort Increment-based approximation otherwise (a correctness
// shortfall the engine documents rather than hides: without CAS, concurrent
// requests can both observe a token and both succeed).
func (e *Engine) allowSlidingWindow(ctx context.Context, key Key, quota Quota) (Decision, error) {
	counterKey := fmt.Sprintf("ratelimit:sw:%s", key.String())
	cas, hasCAS := e.cache.(cache.CompareAndSwapper)
	if !hasCAS {
		return e.allowSlidingWindowApprox(ctx, key, quota, counterKey)
	}

	ttl := time.Hour // bucket state survives longer than any single window
	for attempt := 0; attempt < 8; attempt++ {
		raw, err := e.cache.Get(ctx, counterKey)
		var state tokenBucketState
		var oldRaw []byte
		now := e.now()
		if err != nil {
			state = tokenBucketState{tokens: float64(quota.Capacity), lastRefill: now.UnixNano()}
		} else {
			oldRaw = raw
			state = decodeBucket(raw)
			elapsed := time.Duration(now.UnixNano() - state.lastRefill)
			state.tokens = math.Min(float64(quota.Capacity), state.tokens+elapsed.Seconds()*quota.ReplenishRate)
			state.lastRefill = now.UnixNano()
		}

		allowed := state.tokens >= 1
		if allowed {
			state.tokens--
		}
		newRaw := encodeBucket(state)

		swapped, err := cas.CompareAndSwap(ctx, counterKey, oldRaw, newRaw, ttl)
		if err != nil {
			return Decision{}, err
		}
		if !swapped {
			continue // lost the race, retry
		}

		retryAfter := 0
		if !allowed {
			retryAfter = int(math.Ceil((1 - state.tokens) / quota.ReplenishRate))
		}
		return Decision{
			Allowed:     allowed,
			Dimension:   key.Dimension,
			Limit:       quota.Capacity,
			Remaining:   int64(state.tokens),
			ResetAtUnix: now.Add(time.Duration(retryAfter) * time.Second).UnixMilli(),
			RetryAfter:  retryAfter,
		}, nil
	}
	return Decision{}, fmt.Errorf("ratelimit: exhausted CAS retries for %s", key)
}

func (e *Engine) allowSlidingWindowApprox(ctx context.Context, key Key, quota Quota, counterKey string) (Decision, error) {
	windowSeconds := int64(1)
	if quota.ReplenishRate > 0 {
		windowSeconds = int64(math.Ceil(1 / quota.ReplenishRate))
	}
	count, err := e.cache.Increment(ctx, counterKey, 1, time.Duration(windowSeconds)*time.Second)
	if err != nil {
		return Decision{}, err
	}
	allowed := count <= quota.Capacity
	remaining := quota.Capacity - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:     allowed,
		Dimension:   key.Dimension,
		Limit:       quota.Capacity,
		Remaining:   remaining,
		ResetAtUnix: e.now().Add(time.Duration(windowSeconds) * time.Second).UnixMilli(),
		RetryAfter:  int(windowSeconds),
	}, nil
}

func encodeBucket(s tokenBucketState) []byte {
	return []byte(fmt.Sprintf("%d|%d", int64(s.tokens*1e6), s.lastRefill))
}

func decodeBucket(raw []byte) tokenBucketState {
	var tokensFixed, lastRefill int64
	_, _ = fmt.Sscanf(string(raw), "%d|%d", &tokensFixed, &lastRefill)
	return tokenBucketState{tokens: float64(tokensFixed) / 1e6, lastRefill: lastRefill}
}

// retryAfterSeconds rounds a remaining duration up to whole seconds,
// clamped at zero for deadlines that already passed.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// violationsKey and blockKey namespace the escalation state.
func violationsKey(key Key) string { return "ratelimit:violations:" + key.String() }
func blockKey(key Key) string      { return "ratelimit:block:" + key.String() }

const violationsTTL = time.Hour

// recordViolation increments the consecutive-violations counter and
// triggers a timed block if the tier-dependent threshold is exceeded.
// Returns true if a block was triggered by this call.
func (e *Engine) recordViolation(ctx context.Context, key Key, quota Quota) bool {
	if quota.ViolationThreshold <= 0 {
		return false
	}
	count, err := e.cache.Increment(ctx, violationsKey(key), 1, violationsTTL)
	if err != nil {
		return false
	}
	if count < int64(quota.ViolationThreshold) {
		return false
	}
	blockDuration := quota.BlockDuration
	if blockDuration <= 0 {
		blockDuration = time.Minute
	}
	// The value is the absolute deadline so later blocked requests report
	// the remaining tier-dependent duration, not a fixed guess.
	blockUntil := e.now().Add(blockDuration)
	_ = e.cache.Set(ctx, blockKey(key), []byte(strconv.FormatInt(blockUntil.Unix(), 10)), blockDuration)
	return true
}

// clearViolations resets the consecutive-violations counter on a successful
// request.
func (e *Engine) clearViolations(ctx context.Context, key Key) {
	_ = e.cache.Delete(ctx, violationsKey(key))
}

// isBlocked reports whether key is currently under a timed block and the
// deadline recorded when the block was triggered.
func (e *Engine) isBlocked(ctx context.Context, key Key) (bool, time.Time, error) {
	raw, err := e.cache.Get(ctx, blockKey(key))
	if err == cache.ErrMiss {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	unix, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// Unparseable flag (older writer): fall back to the entry's TTL
		// lower bound so the block still denies.
		return true, e.now().Add(time.Minute), nil
	}
	return true, time.Unix(unix, 0).UTC(), nil
}

// Reset explicitly clears both the violations counter and the block flag
// for key.
func (e *Engine) Reset(ctx context.Context, key Key) error {
	if err := e.cache.Delete(ctx, violationsKey(key)); err != nil {
		return err
	}
	return e.cache.Delete(ctx, blockKey(key))
}

func (e *Engine) recordBypass(ctx context.Context) {
	_, _ = e.cache.Increment(ctx, e.bypassCounterKey, 1, 0)
}

// BypassCount returns the current value of the bypass observability
// counter, primarily for tests and metrics scraping.
func (e *Engine) BypassCount(ctx context.Context) (int64, error) {
	raw, err := e.cache.Get(ctx, e.bypassCounterKey)
	if err == cache.ErrMiss {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	_, _ = fmt.Sscanf(string(raw), "%d", &n)
	return n, nil
}
