package shared

import (
	"context"
	"fmt"
)

// EventHandler reacts to committed ledger events. Projections, sagas and
// cache invalidators all implement it.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types to deliver; empty means every type
	EventTypes() []string
}

// NamedHandler is implemented by handlers that report a stable name used in
// logs, failure records and idempotency keys.
type NamedHandler interface {
	EventHandler
	Name() string
}

// EventPublisher hands committed events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber manages handler registrations
type EventSubscriber interface {
	// Subscribe registers handler for eventTypes, or for the handler's own
	// EventTypes when none are given
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is a publisher with subscriptions and a lifecycle. Stop drains
// in-flight deliveries before returning.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HandlerName returns the handler's name if it has one, else its type name
func HandlerName(h EventHandler) string {
	if n, ok := h.(NamedHandler); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
