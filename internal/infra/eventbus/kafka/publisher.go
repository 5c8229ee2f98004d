// Package kafka publishes domain events to Kafka for consumption by
// downstream systems.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitescout/sitescout/internal/domain/events"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

// Config contains the settings needed to connect a producer to a Kafka
// cluster.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewSyncProducer creates and configures a Kafka sync producer with the
// provided settings.
func NewSyncProducer(cfg *Config) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0

	return sarama.NewSyncProducer(cfg.Brokers, config)
}

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// envelope is the wire format for published events.
type envelope struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload"`
}

// DomainEventPublisher implements the events.DomainEventPublisher interface
// using Kafka as the underlying message transport. It adapts domain-level
// events to Kafka messages for reliable, asynchronous event distribution.
type DomainEventPublisher struct {
	producer sarama.SyncProducer
	topic    string

	log    *logger.Logger
	tracer trace.Tracer
}

// NewDomainEventPublisher creates a new publisher that will distribute domain
// events through the provided sync producer.
func NewDomainEventPublisher(producer sarama.SyncProducer, topic string, log *logger.Logger, tracer trace.Tracer) *DomainEventPublisher {
	return &DomainEventPublisher{
		producer: producer,
		topic:    topic,
		log:      log.With("component", "kafka_publisher"),
		tracer:   tracer,
	}
}

// PublishDomainEvent sends a domain event to Kafka. Events that carry a
// routing key are hash-partitioned by that key so events for the same scan
// land on the same partition in order.
func (pub *DomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	ctx, span := pub.tracer.Start(ctx, "kafka_publisher.publish_domain_event",
		trace.WithAttributes(
			attribute.String("event_type", string(event.Type)),
			attribute.String("topic", pub.topic),
		))
	defer span.End()

	for _, opt := range opts {
		opt(&event)
	}

	data, err := json.Marshal(envelope{
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal event")
		return fmt.Errorf("marshaling event %s: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: pub.topic,
		Value: sarama.ByteEncoder(data),
	}
	if event.Key != "" {
		msg.Key = sarama.StringEncoder(event.Key)
	}

	partition, offset, err := pub.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return fmt.Errorf("sending event %s: %w", event.Type, err)
	}

	span.SetAttributes(
		attribute.Int64("partition", int64(partition)),
		attribute.Int64("offset", offset),
	)
	pub.log.Debug(ctx, "published domain event",
		"event_type", event.Type, "partition", partition, "offset", offset)

	return nil
}

// Close shuts down the underlying producer, flushing any buffered messages.
func (pub *DomainEventPublisher) Close() error { return pub.producer.Close() }
