package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// FailureKind identifies which asynchronous step failed
type FailureKind string

const (
	// FailureKindProjection is a read-model handler failure
	FailureKindProjection FailureKind = "PROJECTION"
	// FailureKindSaga is a secondary step of a cross-aggregate coordination
	FailureKindSaga FailureKind = "SAGA"
)

// FailureStatus represents the status of a recorded failure
type FailureStatus string

const (
	FailureStatusOpen     FailureStatus = "OPEN"
	FailureStatusResolved FailureStatus = "RESOLVED"
)

// ProcessingFailure records a non-fatal failure that happened after an event
// was durably appended. It carries enough context to replay the event or
// retry the step by hand.
type ProcessingFailure struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Kind          FailureKind
	Handler       string
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Sequence      int64
	Position      int64
	LastError     string
	Attempts      int
	Status        FailureStatus
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewProcessingFailure creates an open failure record for an event
func NewProcessingFailure(kind FailureKind, handler string, event DomainEvent, cause error) *ProcessingFailure {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ProcessingFailure{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		Kind:          kind,
		Handler:       handler,
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Sequence:      event.Sequence(),
		LastError:     msg,
		Attempts:      1,
		Status:        FailureStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// WithPosition records the global log position of the failed event
func (f *ProcessingFailure) WithPosition(position int64) *ProcessingFailure {
	f.Position = position
	return f
}

// RecordAttempt notes another failed attempt
func (f *ProcessingFailure) RecordAttempt(cause error) {
	f.Attempts++
	if cause != nil {
		f.LastError = cause.Error()
	}
	f.UpdatedAt = time.Now().UTC()
}

// Resolve marks the failure as repaired
func (f *ProcessingFailure) Resolve() error {
	if f.Status == FailureStatusResolved {
		return errors.New("failure already resolved")
	}
	now := time.Now().UTC()
	f.Status = FailureStatusResolved
	f.ResolvedAt = &now
	f.UpdatedAt = now
	return nil
}

// IsOpen returns true if the failure still needs attention
func (f *ProcessingFailure) IsOpen() bool {
	return f.Status == FailureStatusOpen
}

// FailureRecorder persists processing failures for reconciliation
type FailureRecorder interface {
	Record(ctx context.Context, failure *ProcessingFailure) error
}

// FailureRepository defines the interface for failure persistence
type FailureRepository interface {
	FailureRecorder
	// FindOpen returns open failures for a tenant, newest first
	FindOpen(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*ProcessingFailure, int64, error)
	// FindByID retrieves a single failure scoped to the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ProcessingFailure, error)
	// Update persists status changes
	Update(ctx context.Context, failure *ProcessingFailure) error
}
