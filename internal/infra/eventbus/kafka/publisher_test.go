package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sitescout/sitescout/internal/domain/events"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

const testEvent events.EventType = "test.event"

func newTestPublisher(t *testing.T) (*DomainEventPublisher, *mocks.SyncProducer) {
	t.Helper()

	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	var tracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

	return NewDomainEventPublisher(producer, "scan-events", log, tracer), producer
}

func TestPublishSendsEnvelopeToTopic(t *testing.T) {
	t.Parallel()

	pub, producer := newTestPublisher(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "scan-events" {
			return errors.New("wrong topic " + msg.Topic)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if env.Type != testEvent {
			return errors.New("wrong event type " + string(env.Type))
		}
		return nil
	})

	evt := events.NewDomainEvent(testEvent, map[string]string{"scan_id": "abc"})
	require.NoError(t, pub.PublishDomainEvent(context.Background(), evt))
	require.NoError(t, pub.Close())
}

func TestPublishHashPartitionsByKey(t *testing.T) {
	t.Parallel()

	pub, producer := newTestPublisher(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Key == nil {
			return errors.New("expected a routing key")
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "scan-42" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	evt := events.NewDomainEvent(testEvent, nil)
	require.NoError(t, pub.PublishDomainEvent(context.Background(), evt, events.WithKey("scan-42")))
	require.NoError(t, pub.Close())
}

func TestPublishPropagatesSendFailure(t *testing.T) {
	t.Parallel()

	pub, producer := newTestPublisher(t)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	evt := events.NewDomainEvent(testEvent, nil)
	err := pub.PublishDomainEvent(context.Background(), evt)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}
