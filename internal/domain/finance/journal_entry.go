package finance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeJournalEntry is the stream type of journal entries
const AggregateTypeJournalEntry = "JournalEntry"

// postingTolerance bounds the debit/credit difference of a postable journal.
// It is fixed; report variance thresholds are passed to BuildTrialBalance.
var postingTolerance = decimal.RequireFromString("0.01")

// PostingTolerance returns the debit/credit difference a journal must stay below to post
func PostingTolerance() decimal.Decimal {
	return postingTolerance
}

// JournalType classifies a journal and determines its number prefix
type JournalType string

const (
	JournalTypeGeneral          JournalType = "GENERAL"
	JournalTypeSales            JournalType = "SALES"
	JournalTypePurchase         JournalType = "PURCHASE"
	JournalTypeCashReceipt      JournalType = "CASH_RECEIPT"
	JournalTypeCashDisbursement JournalType = "CASH_DISBURSEMENT"
	JournalTypeAdjustment       JournalType = "ADJUSTMENT"
	JournalTypeReversal         JournalType = "REVERSAL"
)

var journalPrefixes = map[JournalType]string{
	JournalTypeGeneral:          "GJ",
	JournalTypeSales:            "SJ",
	JournalTypePurchase:         "PJ",
	JournalTypeCashReceipt:      "CR",
	JournalTypeCashDisbursement: "CD",
	JournalTypeAdjustment:       "AJ",
	JournalTypeReversal:         "RJ",
}

// IsValid checks if the journal type is valid
func (t JournalType) IsValid() bool {
	_, ok := journalPrefixes[t]
	return ok
}

// String returns the string representation of JournalType
func (t JournalType) String() string {
	return string(t)
}

// Prefix returns the journal number prefix, e.g. GJ for general journals
func (t JournalType) Prefix() string {
	return journalPrefixes[t]
}

// JournalStatus represents the lifecycle status of a journal entry
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// String returns the string representation of JournalStatus
func (s JournalStatus) String() string {
	return string(s)
}

// JournalLine is one side of a double entry. Exactly one of Debit and
// Credit is non-zero.
type JournalLine struct {
	LineNo    int                   `json:"line_no"`
	AccountID valueobject.AccountID `json:"account_id"`
	Debit     valueobject.Money     `json:"debit"`
	Credit    valueobject.Money     `json:"credit"`
	Memo      string                `json:"memo,omitempty"`
}

// IsDebit reports whether the line is on the debit side
func (l JournalLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// Swapped returns the line with debit and credit exchanged
func (l JournalLine) Swapped() JournalLine {
	l.Debit, l.Credit = l.Credit, l.Debit
	return l
}

// JournalLineInput carries the caller-supplied part of a journal line.
// A nil side is treated as zero.
type JournalLineInput struct {
	AccountID valueobject.AccountID
	Debit     *valueobject.Money
	Credit    *valueobject.Money
	Memo      string
}

// NewJournalLine validates a line in the given currency
func NewJournalLine(currency valueobject.Currency, input JournalLineInput) (JournalLine, error) {
	if input.AccountID.IsZero() {
		return JournalLine{}, ErrRequiredField.WithDetail("field", "account_id")
	}
	debit, err := lineSide(currency, "debit", input.Debit)
	if err != nil {
		return JournalLine{}, err
	}
	credit, err := lineSide(currency, "credit", input.Credit)
	if err != nil {
		return JournalLine{}, err
	}
	if debit.IsZero() == credit.IsZero() {
		return JournalLine{}, ErrInvalidLine.
			WithDetail("debit", debit.StringFixed(2)).
			WithDetail("credit", credit.StringFixed(2))
	}
	return JournalLine{
		AccountID: input.AccountID,
		Debit:     debit,
		Credit:    credit,
		Memo:      strings.TrimSpace(input.Memo),
	}, nil
}

func lineSide(currency valueobject.Currency, field string, m *valueobject.Money) (valueobject.Money, error) {
	if m == nil {
		return valueobject.Zero(currency), nil
	}
	if m.Currency() != currency {
		return valueobject.Money{}, shared.ErrCurrencyMismatch.
			WithDetail("journal_currency", string(currency)).
			WithDetail(field+"_currency", string(m.Currency()))
	}
	if m.IsNegative() {
		return valueobject.Money{}, ErrInvalidAmount.WithDetail(field, m.String())
	}
	return m.RoundMinor(), nil
}

// AccountPosting is the net effect of a posted journal on one account
type AccountPosting struct {
	AccountID valueobject.AccountID `json:"account_id"`
	Debit     valueobject.Money     `json:"debit"`
	Credit    valueobject.Money     `json:"credit"`
}

// PostingsByAccount totals journal lines per account in order of first appearance
func PostingsByAccount(currency valueobject.Currency, lines []JournalLine) []AccountPosting {
	index := make(map[valueobject.AccountID]int, len(lines))
	postings := make([]AccountPosting, 0, len(lines))
	for _, l := range lines {
		i, ok := index[l.AccountID]
		if !ok {
			i = len(postings)
			index[l.AccountID] = i
			postings = append(postings, AccountPosting{
				AccountID: l.AccountID,
				Debit:     valueobject.Zero(currency),
				Credit:    valueobject.Zero(currency),
			})
		}
		postings[i].Debit = postings[i].Debit.MustAdd(l.Debit)
		postings[i].Credit = postings[i].Credit.MustAdd(l.Credit)
	}
	return postings
}

// JournalState is the immutable current state of a journal entry
type JournalState struct {
	ID             valueobject.JournalID  `json:"id"`
	TenantID       valueobject.TenantID   `json:"tenant_id"`
	Number         string                 `json:"number"`
	Type           JournalType            `json:"type"`
	JournalDate    time.Time              `json:"journal_date"`
	Description    string                 `json:"description"`
	Currency       valueobject.Currency   `json:"currency"`
	FiscalYear     string                 `json:"fiscal_year"`
	FiscalPeriod   string                 `json:"fiscal_period"`
	Lines          []JournalLine          `json:"lines"`
	NextLineNo     int                    `json:"next_line_no"`
	TotalDebit     valueobject.Money      `json:"total_debit"`
	TotalCredit    valueobject.Money      `json:"total_credit"`
	Status         JournalStatus          `json:"status"`
	IsReversing    bool                   `json:"is_reversing"`
	ReversesID     *valueobject.JournalID `json:"reverses_id,omitempty"`
	ReversedByID   *valueobject.JournalID `json:"reversed_by_id,omitempty"`
	ReversalReason string                 `json:"reversal_reason,omitempty"`
	ReversalNumber string                 `json:"reversal_number,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	PostedAt       *time.Time             `json:"posted_at,omitempty"`
	ReversedAt     *time.Time             `json:"reversed_at,omitempty"`
}

func (s JournalState) withLines(lines []JournalLine) JournalState {
	s.Lines = lines
	s.TotalDebit = valueobject.Zero(s.Currency)
	s.TotalCredit = valueobject.Zero(s.Currency)
	for _, l := range lines {
		s.TotalDebit = s.TotalDebit.MustAdd(l.Debit)
		s.TotalCredit = s.TotalCredit.MustAdd(l.Credit)
	}
	return s
}

// IsBalanced reports whether debits equal credits within PostingTolerance
func (s JournalState) IsBalanced() bool {
	diff := s.TotalDebit.Amount().Sub(s.TotalCredit.Amount()).Abs()
	return diff.LessThan(postingTolerance)
}

// Apply folds one event into the journal state
func (s JournalState) Apply(event shared.DomainEvent) (JournalState, error) {
	at := event.OccurredAt()
	switch e := event.(type) {
	case *JournalEntryCreatedEvent:
		next := JournalState{
			ID:           e.JournalID,
			TenantID:     valueobject.TenantID(e.TenantID()),
			Number:       e.Number,
			Type:         e.Type,
			JournalDate:  e.JournalDate,
			Description:  e.Description,
			Currency:     e.Currency,
			FiscalYear:   e.FiscalYear,
			FiscalPeriod: e.FiscalPeriod,
			NextLineNo:   len(e.Lines) + 1,
			Status:       JournalStatusDraft,
			IsReversing:  e.IsReversing,
			ReversesID:   e.ReversesID,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		lines := make([]JournalLine, len(e.Lines))
		copy(lines, e.Lines)
		return next.withLines(lines), nil
	case *JournalLineAddedEvent:
		if e.Line.Debit.Currency() != s.Currency || e.Line.Credit.Currency() != s.Currency {
			return s, fmt.Errorf("journal %s: line currency does not match %s", s.ID, s.Currency)
		}
		lines := make([]JournalLine, 0, len(s.Lines)+1)
		lines = append(lines, s.Lines...)
		lines = append(lines, e.Line)
		s = s.withLines(lines)
		s.NextLineNo = e.Line.LineNo + 1
	case *JournalLineRemovedEvent:
		lines := make([]JournalLine, 0, len(s.Lines))
		for _, l := range s.Lines {
			if l.LineNo != e.LineNo {
				lines = append(lines, l)
			}
		}
		s = s.withLines(lines)
	case *JournalEntryPostedEvent:
		t := e.PostedAt
		s.Status = JournalStatusPosted
		s.PostedAt = &t
	case *JournalEntryReversedEvent:
		t := e.ReversalDate
		reversal := e.ReversalID
		s.Status = JournalStatusReversed
		s.ReversedByID = &reversal
		s.ReversalReason = e.Reason
		s.ReversalNumber = e.ReversalNumber
		s.ReversedAt = &t
	default:
		return s, fmt.Errorf("journal: unsupported event %s", event.EventType())
	}
	s.UpdatedAt = at
	return s, nil
}

// FoldJournal rebuilds journal state from its full history
func FoldJournal(history []shared.DomainEvent) (JournalState, error) {
	var s JournalState
	for _, e := range history {
		var err error
		if s, err = s.Apply(e); err != nil {
			return JournalState{}, err
		}
	}
	return s, nil
}

// JournalEntry is the event-sourced double-entry journal aggregate
type JournalEntry struct {
	shared.EventSourcedAggregate
	state JournalState
}

// NewEmptyJournalEntry returns a journal ready to be rehydrated from history
func NewEmptyJournalEntry() *JournalEntry {
	return &JournalEntry{EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeJournalEntry, uuid.Nil, uuid.Nil)}
}

// CreateJournalInput holds the header and initial lines of a new journal
type CreateJournalInput struct {
	Number      string
	Type        JournalType
	JournalDate time.Time
	Description string
	Currency    valueobject.Currency
	Lines       []JournalLineInput
}

// NewJournalEntry validates input and creates a draft journal. The fiscal
// period is derived from the journal date.
func NewJournalEntry(tenantID valueobject.TenantID, calendar FiscalCalendar, input CreateJournalInput) (*JournalEntry, error) {
	return newJournalEntry(tenantID, valueobject.NewJournalID(), calendar, input, nil)
}

func newJournalEntry(
	tenantID valueobject.TenantID,
	id valueobject.JournalID,
	calendar FiscalCalendar,
	input CreateJournalInput,
	reverses *valueobject.JournalID,
) (*JournalEntry, error) {
	if tenantID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "tenant_id")
	}
	if !input.Type.IsValid() {
		return nil, ErrInvalidJournalType.WithDetail("type", string(input.Type))
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return nil, ErrRequiredField.WithDetail("field", "number")
	}
	if !strings.HasPrefix(number, input.Type.Prefix()+"-") {
		return nil, ErrInvalidJournalNumber.WithDetail("number", number).WithDetail("prefix", input.Type.Prefix())
	}
	if input.JournalDate.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "journal_date")
	}
	if !input.Currency.IsValid() {
		return nil, ErrInvalidCurrency.WithDetail("currency", string(input.Currency))
	}
	lines := make([]JournalLine, 0, len(input.Lines))
	for i, li := range input.Lines {
		line, err := NewJournalLine(input.Currency, li)
		if err != nil {
			return nil, err
		}
		line.LineNo = i + 1
		lines = append(lines, line)
	}

	j := &JournalEntry{
		EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeJournalEntry, id.UUID(), tenantID.UUID()),
	}
	period := calendar.PeriodFor(input.JournalDate)
	event := &JournalEntryCreatedEvent{
		BaseDomainEvent: j.newEvent(EventTypeJournalEntryCreated),
		JournalID:       id,
		Number:          number,
		Type:            input.Type,
		JournalDate:     input.JournalDate.UTC(),
		Description:     strings.TrimSpace(input.Description),
		Currency:        input.Currency,
		FiscalYear:      period.FiscalYear,
		FiscalPeriod:    period.Label,
		Lines:           lines,
		IsReversing:     reverses != nil,
		ReversesID:      reverses,
	}
	if err := j.Raise(event, j.apply); err != nil {
		return nil, err
	}
	return j, nil
}

// ReversalIDFor returns the deterministic id of the journal reversing original.
// Retrying a reversal therefore always targets the same stream.
func ReversalIDFor(original valueobject.JournalID) valueobject.JournalID {
	return valueobject.JournalID(uuid.NewSHA1(original.UUID(), []byte("reversal")))
}

func (j *JournalEntry) newEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeJournalEntry, j.AggregateID(), j.TenantID())
}

func (j *JournalEntry) apply(event shared.DomainEvent) error {
	next, err := j.state.Apply(event)
	if err != nil {
		return err
	}
	j.state = next
	return nil
}

// Rehydrate replays persisted history into the journal
func (j *JournalEntry) Rehydrate(id, tenantID uuid.UUID, history []shared.DomainEvent) error {
	return j.Replay(id, tenantID, history, j.apply)
}

// State returns a copy of the current state
func (j *JournalEntry) State() JournalState {
	return j.state
}

// ID returns the typed journal id
func (j *JournalEntry) ID() valueobject.JournalID {
	return j.state.ID
}

// Status returns the journal status
func (j *JournalEntry) Status() JournalStatus {
	return j.state.Status
}

// Lines returns the journal lines
func (j *JournalEntry) Lines() []JournalLine {
	return j.state.Lines
}

// Postings returns the per-account totals of the journal's lines
func (j *JournalEntry) Postings() []AccountPosting {
	return PostingsByAccount(j.state.Currency, j.state.Lines)
}

// AddLine appends a line to a draft journal
func (j *JournalEntry) AddLine(input JournalLineInput) (JournalLine, error) {
	if j.state.Status != JournalStatusDraft {
		return JournalLine{}, ErrJournalNotDraft.WithDetail("status", j.state.Status.String())
	}
	line, err := NewJournalLine(j.state.Currency, input)
	if err != nil {
		return JournalLine{}, err
	}
	line.LineNo = j.state.NextLineNo
	err = j.Raise(&JournalLineAddedEvent{
		BaseDomainEvent: j.newEvent(EventTypeJournalLineAdded),
		JournalID:       j.state.ID,
		Line:            line,
	}, j.apply)
	if err != nil {
		return JournalLine{}, err
	}
	return line, nil
}

// RemoveLine removes a line from a draft journal
func (j *JournalEntry) RemoveLine(lineNo int) error {
	if j.state.Status != JournalStatusDraft {
		return ErrJournalNotDraft.WithDetail("status", j.state.Status.String())
	}
	found := false
	for _, l := range j.state.Lines {
		if l.LineNo == lineNo {
			found = true
			break
		}
	}
	if !found {
		return shared.ErrNotFound.WithDetail("line_no", fmt.Sprint(lineNo))
	}
	return j.Raise(&JournalLineRemovedEvent{
		BaseDomainEvent: j.newEvent(EventTypeJournalLineRemoved),
		JournalID:       j.state.ID,
		LineNo:          lineNo,
	}, j.apply)
}

// ValidateForPosting checks the double-entry rules without raising events
func (j *JournalEntry) ValidateForPosting(periods PeriodStatus) error {
	if j.state.Status != JournalStatusDraft {
		return ErrJournalNotDraft.WithDetail("status", j.state.Status.String())
	}
	var debits, credits int
	for _, l := range j.state.Lines {
		if l.IsDebit() {
			debits++
		} else {
			credits++
		}
	}
	if debits == 0 || credits == 0 {
		return ErrJournalEmpty
	}
	if !j.state.IsBalanced() {
		return shared.ErrUnbalancedEntry.
			WithDetail("total_debit", j.state.TotalDebit.StringFixed(2)).
			WithDetail("total_credit", j.state.TotalCredit.StringFixed(2))
	}
	if periods == nil {
		periods = OpenPeriods{}
	}
	if periods.IsClosed(j.state.FiscalPeriod) {
		return shared.ErrClosedPeriod.WithDetail("period", j.state.FiscalPeriod)
	}
	return nil
}

// Post finalizes a balanced draft journal into an open period
func (j *JournalEntry) Post(periods PeriodStatus, at time.Time) error {
	if err := j.ValidateForPosting(periods); err != nil {
		return err
	}
	lines := make([]JournalLine, len(j.state.Lines))
	copy(lines, j.state.Lines)
	return j.Raise(&JournalEntryPostedEvent{
		BaseDomainEvent: j.newEvent(EventTypeJournalEntryPosted),
		JournalID:       j.state.ID,
		Number:          j.state.Number,
		Type:            j.state.Type,
		JournalDate:     j.state.JournalDate,
		FiscalYear:      j.state.FiscalYear,
		FiscalPeriod:    j.state.FiscalPeriod,
		Lines:           lines,
		TotalDebit:      j.state.TotalDebit,
		TotalCredit:     j.state.TotalCredit,
		PostedAt:        at.UTC(),
	}, j.apply)
}

// ReverseInput describes the reversing journal to issue
type ReverseInput struct {
	Number       string
	ReversalDate time.Time
	Reason       string
}

// Reverse issues a posted reversing journal with every line swapped and
// marks this journal Reversed. The reversal's id is ReversalIDFor(original).
// The caller persists this journal first so a concurrent second reversal
// fails on the version check.
func (j *JournalEntry) Reverse(calendar FiscalCalendar, periods PeriodStatus, input ReverseInput, at time.Time) (*JournalEntry, error) {
	switch j.state.Status {
	case JournalStatusPosted:
	case JournalStatusReversed:
		return nil, ErrJournalAlreadyReversed.WithDetail("reversed_by", j.state.ReversedByID.String())
	default:
		return nil, ErrJournalNotPosted.WithDetail("status", j.state.Status.String())
	}
	if input.ReversalDate.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "reversal_date")
	}
	if input.ReversalDate.UTC().Before(j.state.JournalDate) {
		return nil, ErrReversalDateTooEarly.
			WithDetail("journal_date", j.state.JournalDate.Format(time.DateOnly)).
			WithDetail("reversal_date", input.ReversalDate.UTC().Format(time.DateOnly))
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, ErrRequiredField.WithDetail("field", "reason")
	}

	reversal, err := j.buildReversal(calendar, periods, input.Number, input.ReversalDate, reason, at)
	if err != nil {
		return nil, err
	}

	err = j.Raise(&JournalEntryReversedEvent{
		BaseDomainEvent: j.newEvent(EventTypeJournalEntryReversed),
		JournalID:       j.state.ID,
		ReversalID:      reversal.ID(),
		ReversalNumber:  reversal.state.Number,
		ReversalDate:    reversal.state.JournalDate,
		Reason:          reason,
	}, j.apply)
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// ReissueReversal rebuilds the reversing journal recorded on an already
// reversed journal. It recovers a reversal whose own stream was never written;
// the rebuilt journal has the same id, number, date and lines.
func (j *JournalEntry) ReissueReversal(calendar FiscalCalendar, periods PeriodStatus, at time.Time) (*JournalEntry, error) {
	if j.state.Status != JournalStatusReversed || j.state.ReversedAt == nil {
		return nil, ErrJournalNotPosted.WithDetail("status", j.state.Status.String())
	}
	return j.buildReversal(calendar, periods, j.state.ReversalNumber, *j.state.ReversedAt, j.state.ReversalReason, at)
}

// buildReversal creates the posted mirror image of this journal
func (j *JournalEntry) buildReversal(calendar FiscalCalendar, periods PeriodStatus, number string, date time.Time, reason string, at time.Time) (*JournalEntry, error) {
	lines := make([]JournalLineInput, 0, len(j.state.Lines))
	for _, l := range j.state.Lines {
		swapped := l.Swapped()
		lines = append(lines, JournalLineInput{
			AccountID: swapped.AccountID,
			Debit:     &swapped.Debit,
			Credit:    &swapped.Credit,
			Memo:      swapped.Memo,
		})
	}
	originalID := j.state.ID
	reversal, err := newJournalEntry(valueobject.TenantID(j.TenantID()), ReversalIDFor(originalID), calendar, CreateJournalInput{
		Number:      number,
		Type:        JournalTypeReversal,
		JournalDate: date,
		Description: fmt.Sprintf("Reversal of %s: %s", j.state.Number, reason),
		Currency:    j.state.Currency,
		Lines:       lines,
	}, &originalID)
	if err != nil {
		return nil, err
	}
	if err := reversal.Post(periods, at); err != nil {
		return nil, err
	}
	return reversal, nil
}

// SnapshotState captures the current state for the snapshot store
func (j *JournalEntry) SnapshotState() ([]byte, error) {
	return json.Marshal(j.state)
}

// RestoreSnapshot loads state captured by SnapshotState
func (j *JournalEntry) RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error {
	var s JournalState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore journal snapshot: %w", err)
	}
	j.state = s
	j.RestoreVersion(id, tenantID, version)
	return nil
}
