package outbound

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nimbusgate/core/internal/worker"
)

// QueueDead holds dead-lettered messages for operator inspection, alongside
// the critical/default/low queues the worker server drains.
const QueueDead = "dead"

// Enqueuer is the narrow slice of worker.Client the transport needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqTransport is the primary Outbound Producer transport: a Redis-backed
// durable queue. The routing key becomes the task type and the 0-9 priority
// maps onto the worker's weighted queues (7-9 critical, 3-6 default,
// 0-2 low).
type AsynqTransport struct {
	client Enqueuer
}

// NewAsynqTransport wraps an asynq enqueuer as a Transport.
func NewAsynqTransport(client Enqueuer) *AsynqTransport {
	return &AsynqTransport{client: client}
}

// QueueForPriority maps a broker priority band to an asynq queue name.
func QueueForPriority(priority int) string {
	switch {
	case priority >= 7:
		return worker.QueueCritical
	case priority >= 3:
		return worker.QueueDefault
	default:
		return worker.QueueLow
	}
}

// Publish enqueues msg on the queue matching its priority band. The full
// message (including correlation-id and retry-count) is the task payload so
// consumers see the same headers other transports carry natively.
func (t *AsynqTransport) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("asynq transport: marshal: %w", err)
	}
	task := asynq.NewTask(msg.RoutingKey, payload)
	opts := []asynq.Option{
		asynq.Queue(QueueForPriority(msg.Priority)),
		asynq.TaskID(msg.ID),
		// The dispatcher owns retry and dead-letter policy; a redelivered
		// task must not also be retried by asynq.
		asynq.MaxRetry(0),
	}
	if _, err := t.client.Enqueue(ctx, task, opts...); err != nil {
		return fmt.Errorf("asynq transport: enqueue %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// PublishDead parks msg on the dead queue. The failure headers travel in
// the payload; TaskID keeps the original message identity for deduplication.
func (t *AsynqTransport) PublishDead(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("asynq transport: marshal dead: %w", err)
	}
	task := asynq.NewTask(msg.RoutingKey, payload)
	if _, err := t.client.Enqueue(ctx, task, asynq.Queue(QueueDead), asynq.TaskID(msg.ID), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("asynq transport: enqueue dead %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// Close is a no-op; the underlying client is owned by the caller.
func (t *AsynqTransport) Close() error { return nil }
