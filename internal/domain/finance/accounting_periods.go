package finance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeAccountingPeriods is the stream type of a tenant's period register
const AggregateTypeAccountingPeriods = "AccountingPeriods"

// Accounting period event types
const (
	EventTypePeriodClosed   = "PeriodClosed"
	EventTypePeriodReopened = "PeriodReopened"
)

// PeriodClosedEvent is raised when a fiscal period is closed for posting
type PeriodClosedEvent struct {
	shared.BaseDomainEvent
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	ClosedAt time.Time `json:"closed_at"`
	ClosedBy string    `json:"closed_by,omitempty"`
}

// EventType returns the event type name
func (e *PeriodClosedEvent) EventType() string {
	return EventTypePeriodClosed
}

// PeriodReopenedEvent is raised when a closed fiscal period is opened again
type PeriodReopenedEvent struct {
	shared.BaseDomainEvent
	Label      string    `json:"label"`
	Reason     string    `json:"reason"`
	ReopenedAt time.Time `json:"reopened_at"`
}

// EventType returns the event type name
func (e *PeriodReopenedEvent) EventType() string {
	return EventTypePeriodReopened
}

// ClosedPeriod records when a period was closed
type ClosedPeriod struct {
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	ClosedAt time.Time `json:"closed_at"`
	ClosedBy string    `json:"closed_by,omitempty"`
}

// AccountingPeriodsState is the immutable set of closed periods of a tenant
type AccountingPeriodsState struct {
	TenantID valueobject.TenantID    `json:"tenant_id"`
	Closed   map[string]ClosedPeriod `json:"closed"`
}

// IsClosed reports whether the period label is closed
func (s AccountingPeriodsState) IsClosed(label string) bool {
	_, ok := s.Closed[label]
	return ok
}

func (s AccountingPeriodsState) copyClosed() map[string]ClosedPeriod {
	closed := make(map[string]ClosedPeriod, len(s.Closed)+1)
	for k, v := range s.Closed {
		closed[k] = v
	}
	return closed
}

// Apply folds one event into the period register
func (s AccountingPeriodsState) Apply(event shared.DomainEvent) (AccountingPeriodsState, error) {
	switch e := event.(type) {
	case *PeriodClosedEvent:
		closed := s.copyClosed()
		closed[e.Label] = ClosedPeriod{Label: e.Label, Start: e.Start, End: e.End, ClosedAt: e.ClosedAt, ClosedBy: e.ClosedBy}
		s.TenantID = valueobject.TenantID(e.TenantID())
		s.Closed = closed
		return s, nil
	case *PeriodReopenedEvent:
		closed := s.copyClosed()
		delete(closed, e.Label)
		s.Closed = closed
		return s, nil
	default:
		return s, fmt.Errorf("accounting periods: unsupported event %s", event.EventType())
	}
}

// AccountingPeriodsID returns the id of the tenant's period register stream
func AccountingPeriodsID(tenantID valueobject.TenantID) uuid.UUID {
	return uuid.NewSHA1(tenantID.UUID(), []byte("accounting-periods"))
}

// AccountingPeriods tracks which fiscal periods of a tenant are closed.
// There is one stream per tenant.
type AccountingPeriods struct {
	shared.EventSourcedAggregate
	state    AccountingPeriodsState
	calendar FiscalCalendar
}

// NewAccountingPeriods returns the empty period register of a tenant
func NewAccountingPeriods(tenantID valueobject.TenantID, calendar FiscalCalendar) *AccountingPeriods {
	return &AccountingPeriods{
		EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeAccountingPeriods, AccountingPeriodsID(tenantID), tenantID.UUID()),
		state:                 AccountingPeriodsState{TenantID: tenantID},
		calendar:              calendar,
	}
}

func (p *AccountingPeriods) newEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeAccountingPeriods, p.AggregateID(), p.TenantID())
}

func (p *AccountingPeriods) apply(event shared.DomainEvent) error {
	next, err := p.state.Apply(event)
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

// Rehydrate replays persisted history into the register
func (p *AccountingPeriods) Rehydrate(id, tenantID uuid.UUID, history []shared.DomainEvent) error {
	return p.Replay(id, tenantID, history, p.apply)
}

// State returns a copy of the current state
func (p *AccountingPeriods) State() AccountingPeriodsState {
	return p.state
}

// IsClosed reports whether the period label is closed. AccountingPeriods
// satisfies PeriodStatus.
func (p *AccountingPeriods) IsClosed(label string) bool {
	return p.state.IsClosed(label)
}

// ClosedLabels returns the closed period labels in sorted order
func (p *AccountingPeriods) ClosedLabels() []string {
	labels := make([]string, 0, len(p.state.Closed))
	for l := range p.state.Closed {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// ClosePeriod closes a period that has ended relative to now
func (p *AccountingPeriods) ClosePeriod(label, closedBy string, now time.Time) error {
	period, err := p.calendar.ParsePeriod(strings.TrimSpace(label))
	if err != nil {
		return err
	}
	if !period.HasEnded(now) {
		return ErrPeriodNotEnded.
			WithDetail("period", period.Label).
			WithDetail("ends", period.End.Format(time.DateOnly))
	}
	if p.state.IsClosed(period.Label) {
		return ErrPeriodAlreadyClosed.WithDetail("period", period.Label)
	}
	return p.Raise(&PeriodClosedEvent{
		BaseDomainEvent: p.newEvent(EventTypePeriodClosed),
		Label:           period.Label,
		Start:           period.Start,
		End:             period.End,
		ClosedAt:        now.UTC(),
		ClosedBy:        strings.TrimSpace(closedBy),
	}, p.apply)
}

// ReopenPeriod opens a closed period again
func (p *AccountingPeriods) ReopenPeriod(label, reason string, now time.Time) error {
	label = strings.TrimSpace(label)
	if !p.state.IsClosed(label) {
		return ErrPeriodNotClosed.WithDetail("period", label)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRequiredField.WithDetail("field", "reason")
	}
	return p.Raise(&PeriodReopenedEvent{
		BaseDomainEvent: p.newEvent(EventTypePeriodReopened),
		Label:           label,
		Reason:          reason,
		ReopenedAt:      now.UTC(),
	}, p.apply)
}

// SnapshotState captures the current state for the snapshot store
func (p *AccountingPeriods) SnapshotState() ([]byte, error) {
	return json.Marshal(p.state)
}

// RestoreSnapshot loads state captured by SnapshotState
func (p *AccountingPeriods) RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error {
	var s AccountingPeriodsState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore accounting periods snapshot: %w", err)
	}
	p.state = s
	p.RestoreVersion(id, tenantID, version)
	return nil
}
