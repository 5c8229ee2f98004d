// Package events provides domain event handling capabilities for
// communicating state changes across system boundaries in a decoupled way.
package events

import (
	"context"
	"time"
)

// EventType identifies the category of a domain event for routing and handling.
type EventType string

// DomainEvent encapsulates event data flowing out of the orchestrator,
// providing a standardized format for external observers.
type DomainEvent struct {
	// Type identifies the category of this event.
	Type EventType

	// Key enables consistent event routing, typically a scan id that
	// events can be grouped or partitioned by.
	Key string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends
	// on the EventType.
	Payload any
}

// NewDomainEvent creates an event of the given type with the payload.
func NewDomainEvent(eventType EventType, payload any) DomainEvent {
	return DomainEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// PublishOption configures routing behavior for a published event.
type PublishOption func(*DomainEvent)

// WithKey sets the routing key for the event.
func WithKey(key string) PublishOption {
	return func(e *DomainEvent) { e.Key = key }
}

// DomainEventPublisher publishes domain events to notify other parts of the
// system about important domain changes. It provides a technology-agnostic
// interface to decouple event producers from the underlying messaging
// infrastructure.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers.
	// Returns an error if publishing fails.
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}
