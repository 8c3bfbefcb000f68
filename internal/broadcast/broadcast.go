// Package broadcast implements the collaborative real-time fan-out: a
// topic-keyed pub/sub over the Shared Cache Abstraction's publish/subscribe
// primitive, so a multi-instance gateway still delivers frames to
// subscribers connected to a different process than the publisher. Ordering
// is per-topic FIFO to each subscriber; permission checks run before
// publish and a denial is delivered only to the originating subscription.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/nimbusgate/core/internal/cache"
	"github.com/nimbusgate/core/internal/ctxutil"
)

// FrameType enumerates the typed frames state-changing operations publish.
type FrameType string

const (
	FrameTrackAdded       FrameType = "TRACK_ADDED"
	FrameTrackRemoved     FrameType = "TRACK_REMOVED"
	FrameTrackReordered   FrameType = "TRACK_REORDERED"
	FrameUserJoined       FrameType = "USER_JOINED"
	FrameUserLeft         FrameType = "USER_LEFT"
	FramePermissionDenied FrameType = "PERMISSION_DENIED"
)

// Frame is one broadcast message.
type Frame struct {
	Type      FrameType       `json:"type"`
	Topic     string          `json:"topic"`
	SenderID  string          `json:"senderId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// topicRe validates the recognized topic shapes: playlist/{id} and
// hive/{id}/presence.
var topicRe = regexp.MustCompile(`^(playlist/[A-Za-z0-9_-]+|hive/[A-Za-z0-9_-]+/presence)$`)

// ValidTopic reports whether topic is one of the recognized shapes.
func ValidTopic(topic string) bool { return topicRe.MatchString(topic) }

// PermissionChecker gates state-changing publishes. Implementations decide
// from the principal and topic; presence frames (join/leave) are typically
// open while track mutations require membership.
type PermissionChecker interface {
	Allowed(ctx context.Context, p ctxutil.Principal, topic string, frameType FrameType) bool
}

// AllowAll permits every publish; the default for topics without an access
// policy.
type AllowAll struct{}

// Allowed implements PermissionChecker.
func (AllowAll) Allowed(context.Context, ctxutil.Principal, string, FrameType) bool { return true }

// Hub is the broadcast fan-out. Subscriptions each hold their own cache
// subscription, so the cache's per-topic ordering reaches every subscriber
// unchanged.
type Hub struct {
	cache       cache.Cache
	permissions PermissionChecker
	now         func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithPermissions installs a permission checker.
func WithPermissions(p PermissionChecker) Option {
	return func(h *Hub) { h.permissions = p }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub builds a Hub over c.
func NewHub(c cache.Cache, opts ...Option) *Hub {
	h := &Hub{cache: c, permissions: AllowAll{}, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

const topicKeyPrefix = "broadcast:"

// Subscription is one client's attachment to a topic. Frames arrive on
// Frames() in publish order; local frames (PERMISSION_DENIED) are delivered
// on the same channel without passing through the topic.
type Subscription struct {
	topic  string
	frames chan Frame
	cancel func()

	mu     sync.Mutex
	closed bool
}

// Frames returns the subscriber's ordered frame stream. The channel is
// closed when the subscription ends.
func (s *Subscription) Frames() <-chan Frame { return s.frames }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Close detaches the subscription.
func (s *Subscription) Close() { s.cancel() }

// deliver pushes a local frame to this subscriber only. The frame is
// dropped if the subscription is closed or its buffer is full.
func (s *Subscription) deliver(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- f:
	default:
	}
}

// finish marks the subscription closed and closes the frame stream.
func (s *Subscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	close(s.frames)
}

// Subscribe attaches to a topic. The returned subscription must be closed
// when the client disconnects.
func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if !ValidTopic(topic) {
		return nil, fmt.Errorf("broadcast: invalid topic %q", topic)
	}

	msgs, cancel, err := h.cache.Subscribe(ctx, topicKeyPrefix+topic)
	if err != nil {
		return nil, fmt.Errorf("broadcast: subscribe %s: %w", topic, err)
	}

	sub := &Subscription{
		topic:  topic,
		frames: make(chan Frame, 32),
	}
	sub.cancel = cancel

	// A single pump goroutine per subscription preserves the cache's
	// per-topic delivery order.
	go func() {
		defer sub.finish()
		for raw := range msgs {
			var f Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			select {
			case sub.frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// Publish delivers a typed frame to every subscriber of topic, in FIFO
// order per subscriber. The permission check runs first; on denial a
// PERMISSION_DENIED frame goes only to the originating subscription and
// nothing reaches the topic.
func (h *Hub) Publish(ctx context.Context, origin *Subscription, p ctxutil.Principal, topic string, frameType FrameType, payload any) error {
	if !ValidTopic(topic) {
		return fmt.Errorf("broadcast: invalid topic %q", topic)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("broadcast: payload: %w", err)
	}

	frame := Frame{
		Type:      frameType,
		Topic:     topic,
		SenderID:  p.Subject,
		Payload:   data,
		Timestamp: h.now().UTC(),
	}

	if !h.permissions.Allowed(ctx, p, topic, frameType) {
		if origin != nil {
			denial := Frame{
				Type:      FramePermissionDenied,
				Topic:     topic,
				SenderID:  p.Subject,
				Timestamp: h.now().UTC(),
			}
			origin.deliver(denial)
		}
		return nil
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("broadcast: encode frame: %w", err)
	}
	if err := h.cache.Publish(ctx, topicKeyPrefix+topic, raw); err != nil {
		return fmt.Errorf("broadcast: publish %s: %w", topic, err)
	}
	return nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return data, nil
}
