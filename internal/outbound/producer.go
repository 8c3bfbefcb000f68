package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sethvargo/go-retry"

	"github.com/nimbusgate/core/internal/infra/observability"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_publish_total",
			Help: "Total outbound publish outcomes by routing key and status",
		},
		[]string{"routing_key", "status"},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_retry_total",
			Help: "Total outbound publish retries",
		},
		[]string{"routing_key"},
	)

	deadLetterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_dead_letter_total",
			Help: "Total messages routed to the dead-letter exchange",
		},
		[]string{"routing_key"},
	)
)

// ErrDeadLettered is returned (wrapped) by Publish when the message
// exhausted its retry budget and was routed to the DLX instead of being
// acknowledged by the broker.
var ErrDeadLettered = errors.New("outbound: message dead-lettered")

// Transport is the broker-facing side of the producer. Publish must return
// only after the broker acknowledged receipt (not delivery). PublishDead
// routes a message to the dead-letter exchange with its failure headers.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	PublishDead(ctx context.Context, msg Message) error
	Close() error
}

// Producer is the port the notification core depends on.
type Producer interface {
	// Publish delivers msg, retrying up to msg.MaxRetries times and
	// dead-lettering on exhaustion. The returned error wraps
	// ErrDeadLettered when the message ended up on the DLX.
	Publish(ctx context.Context, msg Message) error

	// PublishBatch is best-effort per item; the returned slice has one
	// entry per input message (nil on success).
	PublishBatch(ctx context.Context, msgs []Message) []error

	// PublishAsync publishes in the background and reports broker
	// acknowledgement on the returned channel. true means the broker
	// acknowledged receipt, not that the message was delivered.
	PublishAsync(ctx context.Context, msg Message) <-chan bool
}

// Dispatcher implements Producer over a Transport with bounded exponential
// backoff between attempts. Retries preserve the message id.
type Dispatcher struct {
	transport    Transport
	initialDelay time.Duration
	maxDelay     time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackoff overrides the retry backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(d *Dispatcher) {
		d.initialDelay = initial
		d.maxDelay = max
	}
}

// NewDispatcher builds a Dispatcher around transport.
func NewDispatcher(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:    transport,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish attempts delivery. On publish error with retry budget left the
// retry count is incremented and the same message republished; once
// retry-count exceeds max-retries the message goes to the DLX with its
// failure reason attached.
func (d *Dispatcher) Publish(ctx context.Context, msg Message) error {
	backoff := retry.WithCappedDuration(d.maxDelay, retry.NewExponential(d.initialDelay))

	var lastErr error
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(msg.MaxRetries), backoff), func(ctx context.Context) error {
		if err := d.transport.Publish(ctx, msg); err != nil {
			lastErr = err
			if msg.RetryCount < msg.MaxRetries {
				msg.RetryCount++
				retryTotal.WithLabelValues(msg.RoutingKey).Inc()
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		publishTotal.WithLabelValues(msg.RoutingKey, "success").Inc()
		return nil
	}
	if lastErr != nil {
		err = lastErr
	}

	return d.deadLetter(ctx, msg, err)
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg Message, cause error) error {
	msg.FailureReason = cause.Error()
	publishTotal.WithLabelValues(msg.RoutingKey, "error").Inc()

	if dlqErr := d.transport.PublishDead(ctx, msg); dlqErr != nil {
		observability.LoggerFromContext(ctx, slog.Default()).Error("outbound: dead-letter publish failed",
			"message_id", msg.ID,
			"routing_key", msg.RoutingKey,
			"correlation_id", msg.CorrelationID,
			"error", dlqErr,
		)
		return fmt.Errorf("outbound: publish failed and dead-letter failed: %w", errors.Join(cause, dlqErr))
	}

	deadLetterTotal.WithLabelValues(msg.RoutingKey).Inc()
	observability.LoggerFromContext(ctx, slog.Default()).Warn("outbound: message dead-lettered",
		"message_id", msg.ID,
		"routing_key", msg.RoutingKey,
		"retry_count", msg.RetryCount,
		"failure_reason", msg.FailureReason,
		"correlation_id", msg.CorrelationID,
	)
	return fmt.Errorf("%w: %s", ErrDeadLettered, msg.FailureReason)
}

// PublishBatch publishes each message independently; a failure on one item
// never short-circuits the rest.
func (d *Dispatcher) PublishBatch(ctx context.Context, msgs []Message) []error {
	errs := make([]error, len(msgs))
	for i, msg := range msgs {
		errs[i] = d.Publish(ctx, msg)
	}
	return errs
}

// PublishAsync publishes in the background. The returned channel is
// buffered so the producer goroutine never blocks on a caller that gave up.
func (d *Dispatcher) PublishAsync(ctx context.Context, msg Message) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		done <- d.Publish(context.WithoutCancel(ctx), msg) == nil
	}()
	return done
}
