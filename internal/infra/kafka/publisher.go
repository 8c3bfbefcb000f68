// Package kafka provides the Kafka Outbound Producer transport. All
// notification traffic flows through one topic; the routing key becomes the
// message key so every message for a routing key lands on the same
// partition. Dead-lettered messages go to a companion topic.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nimbusgate/core/internal/infra/config"
	"github.com/nimbusgate/core/internal/observability"
	"github.com/nimbusgate/core/internal/outbound"
)

var (
	// publishTotal tracks total publish attempts.
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_publish_total",
			Help: "Total number of Kafka publish attempts",
		},
		[]string{"topic", "status"},
	)

	// publishErrors tracks failed publish attempts.
	publishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_publish_errors_total",
			Help: "Total number of Kafka publish errors",
		},
		[]string{"topic", "error_type"},
	)

	// publishDuration tracks publish latency.
	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_publish_duration_seconds",
			Help:    "Kafka publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

// Transport implements outbound.Transport over a sarama sync producer.
type Transport struct {
	producer  sarama.SyncProducer
	logger    observability.Logger
	topic     string
	deadTopic string
}

// NewTransport creates a Kafka transport with acknowledged writes.
func NewTransport(cfg *config.KafkaConfig, logger observability.Logger) (*Transport, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Timeout = cfg.Timeout
	if saramaConfig.Producer.Timeout == 0 {
		saramaConfig.Producer.Timeout = 10 * time.Second
	}

	switch strings.ToLower(cfg.RequiredAcks) {
	case "none":
		saramaConfig.Producer.RequiredAcks = sarama.NoResponse
	case "local":
		saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	default: // "all" or empty
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	}

	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	} else {
		saramaConfig.ClientID = "nimbusgate-core"
	}

	if cfg.TLSEnabled {
		saramaConfig.Net.TLS.Enable = true
		// TLS config would be expanded here for production
	}

	if cfg.SASLEnabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.SASLUsername
		saramaConfig.Net.SASL.Password = cfg.SASLPassword

		switch strings.ToUpper(cfg.SASLMechanism) {
		case "SCRAM-SHA-256":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	brokers := cfg.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		logger.Error("failed to create Kafka producer",
			observability.String("brokers", strings.Join(brokers, ",")),
			observability.Err(err))
		return nil, fmt.Errorf("create sync producer: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "notifications"
	}
	deadTopic := cfg.DeadTopic
	if deadTopic == "" {
		deadTopic = topic + ".dlq"
	}

	t := &Transport{
		producer:  producer,
		logger:    logger,
		topic:     topic,
		deadTopic: deadTopic,
	}

	logger.Info("Kafka transport initialized",
		observability.String("brokers", strings.Join(brokers, ",")),
		observability.String("topic", topic),
		observability.String("dead_topic", deadTopic),
		observability.String("client_id", saramaConfig.ClientID))

	return t, nil
}

// Publish sends msg to the primary topic and waits for the broker ack.
func (t *Transport) Publish(ctx context.Context, msg outbound.Message) error {
	headers := []sarama.RecordHeader{
		{Key: []byte(outbound.HeaderCorrelationID), Value: []byte(msg.CorrelationID)},
		{Key: []byte(outbound.HeaderRetryCount), Value: []byte(fmt.Sprintf("%d", msg.RetryCount))},
	}
	return t.send(t.topic, msg, headers)
}

// PublishDead routes msg to the dead-letter topic with failure headers.
func (t *Transport) PublishDead(ctx context.Context, msg outbound.Message) error {
	headers := []sarama.RecordHeader{
		{Key: []byte(outbound.HeaderCorrelationID), Value: []byte(msg.CorrelationID)},
		{Key: []byte(outbound.HeaderRetryCount), Value: []byte(fmt.Sprintf("%d", msg.RetryCount))},
		{Key: []byte(outbound.HeaderFailureReason), Value: []byte(msg.FailureReason)},
		{Key: []byte(outbound.HeaderOriginalQueue), Value: []byte(t.topic)},
		{Key: []byte(outbound.HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	}
	return t.send(t.deadTopic, msg, headers)
}

func (t *Transport) send(topic string, msg outbound.Message, headers []sarama.RecordHeader) error {
	start := time.Now()

	producerMsg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(msg.RoutingKey),
		Value:   sarama.ByteEncoder(msg.Body),
		Headers: headers,
	}

	partition, offset, err := t.producer.SendMessage(producerMsg)
	duration := time.Since(start)
	publishDuration.WithLabelValues(topic).Observe(duration.Seconds())

	if err != nil {
		publishTotal.WithLabelValues(topic, "error").Inc()
		publishErrors.WithLabelValues(topic, "send").Inc()
		t.logger.Error("kafka publish failed",
			observability.String("topic", topic),
			observability.String("message_id", msg.ID),
			observability.String("routing_key", msg.RoutingKey),
			observability.Err(err))
		return fmt.Errorf("publish to kafka: %w", err)
	}

	publishTotal.WithLabelValues(topic, "success").Inc()
	t.logger.Debug("message published",
		observability.String("topic", topic),
		observability.String("message_id", msg.ID),
		observability.String("routing_key", msg.RoutingKey),
		observability.Int("partition", int(partition)),
		observability.Int64("offset", offset),
		observability.Duration("duration", duration))

	return nil
}

// Close shuts down the producer.
func (t *Transport) Close() error {
	return t.producer.Close()
}
