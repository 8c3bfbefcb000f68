// Package cache is the shared cache abstraction: the single dependency
// surface consumed by the rate-limit engine, the notification core's digest
// accumulator, the outbound producer, and the auth session service's
// revocation set. The port covers key-value with TTL, atomic counters, set
// membership, pattern delete, and pub/sub.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates the key was not found in cache.
var ErrMiss = errors.New("cache: key not found")

// Cache is the minimal contract the edge plane consumes. Implementations must
// provide at-most-one-writer semantics for Increment via atomic operations
// (a Lua script for Redis, a compare-and-swap loop for the in-memory
// implementation) — never a read-then-write race.
type Cache interface {
	// Get returns the raw value stored at key, or ErrMiss if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A zero ttl means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. It is not an error if key does not exist.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds delta to the integer stored at key,
	// returning the post-increment value. If the key does not yet exist,
	// it is created with value 0 before the increment is applied. When
	// ttl > 0 and this is the first increment (i.e. the key did not exist),
	// the TTL is set atomically with the increment — never as two ops.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// SetAdd adds member to the set at key, applying ttl to the set itself
	// when ttl > 0 (refreshing it on every add).
	SetAdd(ctx context.Context, key string, member string, ttl time.Duration) error

	// SetRemove removes member from the set at key.
	SetRemove(ctx context.Context, key string, member string) error

	// SetSize returns the number of members in the set at key.
	SetSize(ctx context.Context, key string) (int64, error)

	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// DeletePattern deletes every key matching a glob pattern (e.g.
	// "ratelimit:route:*"). Cleanup is best-effort: implementations may
	// silently skip keys they fail to delete rather than erroring out.
	DeletePattern(ctx context.Context, pattern string) error

	// Publish delivers payload to every active Subscribe-r of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe returns a channel of payloads published to topic. The
	// returned cancel function must be called to release resources; the
	// channel is closed after cancel is invoked or ctx is done.
	Subscribe(ctx context.Context, topic string) (msgs <-chan []byte, cancel func(), err error)
}

// CompareAndSwapper is an optional capability some Cache implementations
// expose for algorithms (like the sliding-window token bucket) that
// need a single atomic read-modify-write on a structured value rather than
// a plain integer increment. Implementations that can't support CAS natively
// fall back to Increment-based approximations.
type CompareAndSwapper interface {
	// CompareAndSwap atomically replaces the value at key with newValue iff
	// the current value equals oldValue (oldValue == nil matches "absent").
	// Returns swapped=false without error if the current value didn't match.
	CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) (swapped bool, err error)
}
