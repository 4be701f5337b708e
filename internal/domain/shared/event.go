package shared

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
	// Sequence is the version of the aggregate after this event was applied
	Sequence() int64
	// SchemaVersion returns the version of the event payload schema
	SchemaVersion() int
}

// UniqueClaim reserves a value that must be unique within a tenant, such as
// an account code or an invoice number.
type UniqueClaim struct {
	Scope string
	Value string
}

// UniqueClaimer is implemented by events that reserve unique values. The
// event store enforces claims in the same transaction as the append.
type UniqueClaimer interface {
	UniqueClaims() []UniqueClaim
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggID         uuid.UUID `json:"aggregate_id"`
	AggType       string    `json:"aggregate_type"`
	TenantIDValue uuid.UUID `json:"tenant_id"`
	Seq           int64     `json:"sequence"`
	Version       int       `json:"schema_version,omitempty"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// TenantID returns the tenant ID
func (e *BaseDomainEvent) TenantID() uuid.UUID {
	return e.TenantIDValue
}

// Sequence returns the aggregate version produced by this event
func (e *BaseDomainEvent) Sequence() int64 {
	return e.Seq
}

// SchemaVersion returns the schema version of the event
// Returns 1 if no version is set
func (e *BaseDomainEvent) SchemaVersion() int {
	if e.Version == 0 {
		return 1
	}
	return e.Version
}

func (e *BaseDomainEvent) assignSequence(seq int64) {
	e.Seq = seq
}

type sequenceAssigner interface {
	assignSequence(seq int64)
}

// NewEventID returns a time-ordered identifier for an event
func NewEventID() uuid.UUID {
	return uuid.UUID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// NewBaseDomainEvent creates a new base domain event with default schema version 1.
// The sequence is assigned when the aggregate raises the event.
func NewBaseDomainEvent(eventType, aggType string, aggID, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:            NewEventID(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		AggID:         aggID,
		AggType:       aggType,
		TenantIDValue: tenantID,
		Version:       1,
	}
}
