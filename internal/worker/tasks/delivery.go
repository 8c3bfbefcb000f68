package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/nimbusgate/core/internal/outbound"
)

// DeliveryTypes are the queue task types the delivery handler consumes:
// the same routing keys the Outbound Producer publishes.
var DeliveryTypes = []string{
	outbound.RoutingKeyCreated,
	outbound.RoutingKeyPriorityHigh,
	outbound.ChannelRoutingKey("email", "send"),
	outbound.ChannelRoutingKey("push", "send"),
	outbound.ChannelRoutingKey("digest", "pending"),
}

// DeliveryHandler hands outbound messages to their channel transport. The
// SMTP/push transports themselves live outside this repo; this handler is
// the queue-interface endpoint that acknowledges receipt and records the
// handoff.
type DeliveryHandler struct {
	logger *zap.Logger
}

// NewDeliveryHandler creates a handler with injected logger.
func NewDeliveryHandler(logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{logger: logger}
}

// Handle processes one delivery task.
func (h *DeliveryHandler) Handle(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	var msg outbound.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		h.logger.Error("invalid delivery payload",
			zap.Error(err),
			zap.String("task_type", t.Type()),
			zap.String("task_id", taskID),
		)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("delivering notification message",
		zap.String("task_type", t.Type()),
		zap.String("task_id", taskID),
		zap.String("message_id", msg.ID),
		zap.String("notification_id", msg.NotificationID),
		zap.String("correlation_id", msg.CorrelationID),
		zap.Int("priority", msg.Priority),
		zap.Int("retry_count", msg.RetryCount),
	)
	return nil
}
