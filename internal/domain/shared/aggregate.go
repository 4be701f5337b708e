package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all event-sourced aggregate roots
type AggregateRoot interface {
	AggregateID() uuid.UUID
	TenantID() uuid.UUID
	AggregateType() string
	// Version is the sequence of the last applied event, 0 for a new stream
	Version() int64
	// UncommittedEvents returns events raised since the last commit
	UncommittedEvents() []DomainEvent
	// MarkCommitted clears uncommitted events after a successful append
	MarkCommitted()
	// Rehydrate folds persisted history into the aggregate
	Rehydrate(id, tenantID uuid.UUID, history []DomainEvent) error
}

// Snapshotter is implemented by aggregates whose state can be captured and
// restored for long streams.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error
}

// ApplyFunc applies one event to the concrete aggregate state
type ApplyFunc func(event DomainEvent) error

// EventSourcedAggregate provides identity, versioning and the uncommitted
// event queue for aggregates. Concrete aggregates embed it and keep their
// state in an immutable record replaced on every apply.
type EventSourcedAggregate struct {
	id            uuid.UUID
	tenantID      uuid.UUID
	aggregateType string
	version       int64
	uncommitted   []DomainEvent
}

// NewEventSourcedAggregate creates the base for an aggregate of the given type
func NewEventSourcedAggregate(aggregateType string, id, tenantID uuid.UUID) EventSourcedAggregate {
	return EventSourcedAggregate{
		id:            id,
		tenantID:      tenantID,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate identifier
func (a *EventSourcedAggregate) AggregateID() uuid.UUID {
	return a.id
}

// TenantID returns the owning tenant
func (a *EventSourcedAggregate) TenantID() uuid.UUID {
	return a.tenantID
}

// AggregateType returns the aggregate type name
func (a *EventSourcedAggregate) AggregateType() string {
	return a.aggregateType
}

// Version returns the current version
func (a *EventSourcedAggregate) Version() int64 {
	return a.version
}

// PersistedVersion returns the version the event store last acknowledged
func (a *EventSourcedAggregate) PersistedVersion() int64 {
	return a.version - int64(len(a.uncommitted))
}

// UncommittedEvents returns pending events
func (a *EventSourcedAggregate) UncommittedEvents() []DomainEvent {
	return a.uncommitted
}

// MarkCommitted clears the pending events
func (a *EventSourcedAggregate) MarkCommitted() {
	a.uncommitted = nil
}

// Raise stamps the next sequence on the event, applies it and queues it.
// The version moves only when apply succeeds, so a rejected event leaves
// the aggregate untouched.
func (a *EventSourcedAggregate) Raise(event DomainEvent, apply ApplyFunc) error {
	if s, ok := event.(sequenceAssigner); ok {
		s.assignSequence(a.version + 1)
	}
	if err := apply(event); err != nil {
		return err
	}
	a.version++
	a.uncommitted = append(a.uncommitted, event)
	return nil
}

// Replay applies persisted history. Each event must belong to this
// aggregate and tenant and carry the next contiguous sequence.
func (a *EventSourcedAggregate) Replay(id, tenantID uuid.UUID, history []DomainEvent, apply ApplyFunc) error {
	if a.id == uuid.Nil {
		a.id = id
	}
	if a.tenantID == uuid.Nil {
		a.tenantID = tenantID
	}
	if a.id != id {
		return fmt.Errorf("replay %s: aggregate id %s does not match %s", a.aggregateType, id, a.id)
	}
	if a.tenantID != tenantID {
		return ErrTenantMismatch
	}
	for _, event := range history {
		if event.TenantID() != a.tenantID {
			return ErrTenantMismatch.WithDetail("event_id", event.EventID().String())
		}
		if event.AggregateID() != a.id {
			return fmt.Errorf("replay %s: event %s belongs to aggregate %s", a.aggregateType, event.EventID(), event.AggregateID())
		}
		if event.Sequence() != a.version+1 {
			return fmt.Errorf("replay %s %s: expected sequence %d, got %d", a.aggregateType, a.id, a.version+1, event.Sequence())
		}
		if err := apply(event); err != nil {
			return fmt.Errorf("replay %s %s at sequence %d: %w", a.aggregateType, a.id, event.Sequence(), err)
		}
		a.version++
	}
	return nil
}

// RestoreVersion sets identity and version from a snapshot
func (a *EventSourcedAggregate) RestoreVersion(id, tenantID uuid.UUID, version int64) {
	a.id = id
	a.tenantID = tenantID
	a.version = version
	a.uncommitted = nil
}

// IsNew reports whether the aggregate has never been persisted
func (a *EventSourcedAggregate) IsNew() bool {
	return a.PersistedVersion() == 0
}
