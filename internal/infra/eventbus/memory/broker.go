// Package memory provides an in-memory implementation of the event
// publishing system. It offers a lightweight, non-persistent broker suitable
// for single-process deployments and tests where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sitescout/sitescout/internal/domain/events"
)

var _ events.DomainEventPublisher = (*Broker)(nil)

// Handler processes a single domain event. Returning an error stops delivery
// of that event to subsequent handlers.
type Handler func(ctx context.Context, event events.DomainEvent) error

// registration wraps a handler so unsubscription can remove it by identity
// rather than by position, which shifts as earlier registrations leave.
type registration struct {
	handler Handler
}

// Broker provides an in-memory implementation of events.DomainEventPublisher.
// It enables decoupled communication between components through synchronous
// fan-out to registered handlers.
type Broker struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]*registration
	all      []*registration
}

// NewBroker creates and initializes a new in-memory event broker with no
// registered handlers.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]*registration)}
}

// Subscribe registers a handler for a specific event type. Multiple handlers
// can be registered for the same type and all receive published events. The
// registration lasts until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, eventType events.EventType, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	reg := &registration{handler: handler}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], reg)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[eventType] = remove(b.handlers[eventType], reg)
	}()

	return nil
}

// SubscribeAll registers a handler that receives every published event
// regardless of type.
func (b *Broker) SubscribeAll(ctx context.Context, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	reg := &registration{handler: handler}
	b.mu.Lock()
	b.all = append(b.all, reg)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, reg)
	}()

	return nil
}

// remove drops one registration by identity, preserving the order of the
// rest.
func remove(regs []*registration, target *registration) []*registration {
	for i, reg := range regs {
		if reg == target {
			return append(regs[:i], regs[i+1:]...)
		}
	}
	return regs
}

// PublishDomainEvent broadcasts an event to all handlers subscribed to its
// type, stopping at the first error. Handlers are copied before iteration to
// avoid holding the lock while executing them.
func (b *Broker) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, opt := range opts {
		opt(&event)
	}

	b.mu.RLock()
	handlersCopy := make([]Handler, 0, len(b.handlers[event.Type])+len(b.all))
	for _, reg := range b.handlers[event.Type] {
		handlersCopy = append(handlersCopy, reg.handler)
	}
	for _, reg := range b.all {
		handlersCopy = append(handlersCopy, reg.handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
