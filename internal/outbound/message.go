// Package outbound implements the edge plane's Outbound Producer: it takes
// an OutboundMessage and publishes it through a broker transport with
// bounded retry and dead-letter semantics. The notification core and any
// cross-service event emission go through this package; the concrete
// transports (asynq, RabbitMQ, Kafka) live behind the Transport interface.
package outbound

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys used by the notification plane.
const (
	RoutingKeyCreated      = "notification.created"
	RoutingKeyPriorityHigh = "notification.priority.high"
)

// ChannelRoutingKey builds the channel-specific routing key
// notification.{channel}.{action}, e.g. notification.email.send.
func ChannelRoutingKey(channel, action string) string {
	return "notification." + channel + "." + action
}

// Broker message headers. DLX-only headers are set when a message exceeds
// its retry budget and is routed to the dead-letter exchange.
const (
	HeaderCorrelationID = "x-correlation-id"
	HeaderRetryCount    = "x-retry-count"
	HeaderFailureReason = "x-failure-reason"
	HeaderOriginalQueue = "x-original-queue"
	HeaderFailedAt      = "x-failed-at"
)

// MaxPriority is the highest broker priority; Message.Priority is clamped
// into [0, MaxPriority].
const MaxPriority = 9

// Message is one unit of outbound work. Retries preserve the message
// identity (same ID) so consumers can deduplicate.
type Message struct {
	ID             string          `json:"id"`
	NotificationID string          `json:"notificationId,omitempty"`
	RoutingKey     string          `json:"routingKey"`
	Priority       int             `json:"priority"`
	Body           json.RawMessage `json:"body"`
	CorrelationID  string          `json:"correlationId"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	FailureReason  string          `json:"failureReason,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
}

// NewMessage builds a Message with a fresh id and the given JSON payload.
func NewMessage(routingKey string, priority int, body any, correlationID string, maxRetries int) (Message, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Message{}, err
	}
	if priority < 0 {
		priority = 0
	}
	if priority > MaxPriority {
		priority = MaxPriority
	}
	return Message{
		ID:            uuid.New().String(),
		RoutingKey:    routingKey,
		Priority:      priority,
		Body:          data,
		CorrelationID: correlationID,
		MaxRetries:    maxRetries,
		EnqueuedAt:    time.Now().UTC(),
	}, nil
}
