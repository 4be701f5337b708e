package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// Journal event types
const (
	EventTypeJournalEntryCreated  = "JournalEntryCreated"
	EventTypeJournalLineAdded     = "JournalLineAdded"
	EventTypeJournalLineRemoved   = "JournalLineRemoved"
	EventTypeJournalEntryPosted   = "JournalEntryPosted"
	EventTypeJournalEntryReversed = "JournalEntryReversed"
)

// JournalNumberClaimScope is the uniqueness scope for journal numbers within a tenant
const JournalNumberClaimScope = "journal_number"

// JournalEntryCreatedEvent is raised when a draft journal is created
type JournalEntryCreatedEvent struct {
	shared.BaseDomainEvent
	JournalID    valueobject.JournalID  `json:"journal_id"`
	Number       string                 `json:"number"`
	Type         JournalType            `json:"type"`
	JournalDate  time.Time              `json:"journal_date"`
	Description  string                 `json:"description"`
	Currency     valueobject.Currency   `json:"currency"`
	FiscalYear   string                 `json:"fiscal_year"`
	FiscalPeriod string                 `json:"fiscal_period"`
	Lines        []JournalLine          `json:"lines,omitempty"`
	IsReversing  bool                   `json:"is_reversing"`
	ReversesID   *valueobject.JournalID `json:"reverses_id,omitempty"`
}

// EventType returns the event type name
func (e *JournalEntryCreatedEvent) EventType() string {
	return EventTypeJournalEntryCreated
}

// UniqueClaims reserves the journal number within the tenant
func (e *JournalEntryCreatedEvent) UniqueClaims() []shared.UniqueClaim {
	return []shared.UniqueClaim{{Scope: JournalNumberClaimScope, Value: e.Number}}
}

// JournalLineAddedEvent is raised when a line is appended to a draft journal
type JournalLineAddedEvent struct {
	shared.BaseDomainEvent
	JournalID valueobject.JournalID `json:"journal_id"`
	Line      JournalLine           `json:"line"`
}

// EventType returns the event type name
func (e *JournalLineAddedEvent) EventType() string {
	return EventTypeJournalLineAdded
}

// JournalLineRemovedEvent is raised when a line is removed from a draft journal
type JournalLineRemovedEvent struct {
	shared.BaseDomainEvent
	JournalID valueobject.JournalID `json:"journal_id"`
	LineNo    int                   `json:"line_no"`
}

// EventType returns the event type name
func (e *JournalLineRemovedEvent) EventType() string {
	return EventTypeJournalLineRemoved
}

// JournalEntryPostedEvent is raised when a balanced journal is posted. It
// carries the full line set so projections never need the draft history.
type JournalEntryPostedEvent struct {
	shared.BaseDomainEvent
	JournalID    valueobject.JournalID `json:"journal_id"`
	Number       string                `json:"number"`
	Type         JournalType           `json:"type"`
	JournalDate  time.Time             `json:"journal_date"`
	FiscalYear   string                `json:"fiscal_year"`
	FiscalPeriod string                `json:"fiscal_period"`
	Lines        []JournalLine         `json:"lines"`
	TotalDebit   valueobject.Money     `json:"total_debit"`
	TotalCredit  valueobject.Money     `json:"total_credit"`
	PostedAt     time.Time             `json:"posted_at"`
}

// EventType returns the event type name
func (e *JournalEntryPostedEvent) EventType() string {
	return EventTypeJournalEntryPosted
}

// JournalEntryReversedEvent is raised on the original journal when a
// reversing journal is issued for it
type JournalEntryReversedEvent struct {
	shared.BaseDomainEvent
	JournalID      valueobject.JournalID `json:"journal_id"`
	ReversalID     valueobject.JournalID `json:"reversal_id"`
	ReversalNumber string                `json:"reversal_number"`
	ReversalDate   time.Time             `json:"reversal_date"`
	Reason         string                `json:"reason"`
}

// EventType returns the event type name
func (e *JournalEntryReversedEvent) EventType() string {
	return EventTypeJournalEntryReversed
}
