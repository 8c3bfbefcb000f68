package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/infra/config"
	"github.com/nimbusgate/core/internal/observability"
	"github.com/nimbusgate/core/internal/outbound"
)

func testLogger() observability.Logger {
	return observability.NewNopLoggerInterface()
}

func newMockTransport(t *testing.T) (*mocks.SyncProducer, *Transport) {
	t.Helper()

	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer := mocks.NewSyncProducer(t, cfg)
	transport := &Transport{
		producer:  producer,
		logger:    testLogger(),
		topic:     "notifications",
		deadTopic: "notifications.dlq",
	}
	return producer, transport
}

func testMessage(t *testing.T) outbound.Message {
	t.Helper()
	msg, err := outbound.NewMessage(outbound.RoutingKeyCreated, 5, map[string]string{"key": "value"}, "corr-1", 2)
	require.NoError(t, err)
	return msg
}

func TestNewTransport_InvalidBrokers(t *testing.T) {
	cfg := &config.KafkaConfig{
		Enabled:  true,
		Brokers:  []string{"invalid-broker-that-does-not-exist:9092"},
		ClientID: "test-client",
		Timeout:  100 * time.Millisecond,
	}

	transport, err := NewTransport(cfg, testLogger())
	assert.Error(t, err)
	assert.Nil(t, transport)
}

func TestPublish_Success(t *testing.T) {
	producer, transport := newMockTransport(t)
	defer producer.Close()

	msg := testMessage(t)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		assert.JSONEq(t, `{"key":"value"}`, string(value))
		return nil
	})

	assert.NoError(t, transport.Publish(context.Background(), msg))
}

func TestPublish_RoutingKeyIsMessageKey(t *testing.T) {
	producer, transport := newMockTransport(t)
	defer producer.Close()

	msg := testMessage(t)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		key, err := pm.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, outbound.RoutingKeyCreated, string(key))
		assert.Equal(t, "notifications", pm.Topic)
		return nil
	})

	assert.NoError(t, transport.Publish(context.Background(), msg))
}

func TestPublish_Error(t *testing.T) {
	producer, transport := newMockTransport(t)
	defer producer.Close()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := transport.Publish(context.Background(), testMessage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to kafka")
}

func TestPublishDead_UsesDeadTopicAndFailureHeaders(t *testing.T) {
	producer, transport := newMockTransport(t)
	defer producer.Close()

	msg := testMessage(t)
	msg.RetryCount = 2
	msg.FailureReason = "broker unavailable"

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		assert.Equal(t, "notifications.dlq", pm.Topic)
		headers := map[string]string{}
		for _, h := range pm.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		assert.Equal(t, "broker unavailable", headers[outbound.HeaderFailureReason])
		assert.Equal(t, "2", headers[outbound.HeaderRetryCount])
		assert.Equal(t, "notifications", headers[outbound.HeaderOriginalQueue])
		assert.NotEmpty(t, headers[outbound.HeaderFailedAt])
		return nil
	})

	assert.NoError(t, transport.PublishDead(context.Background(), msg))
}

func TestKafkaConfig_IsEnabled(t *testing.T) {
	assert.True(t, config.KafkaConfig{Enabled: true}.IsEnabled())
	assert.False(t, config.KafkaConfig{Enabled: false}.IsEnabled())
}

func TestClose_Success(t *testing.T) {
	producer, transport := newMockTransport(t)
	_ = producer

	assert.NoError(t, transport.Close())
}
