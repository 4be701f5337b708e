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

// AggregateTypeInvoice is the stream type of invoices
const AggregateTypeInvoice = "Invoice"

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusApproved  InvoiceStatus = "APPROVED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusApproved, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice can no longer change
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// LineItem is one priced line of an invoice with its computed tax amounts
type LineItem struct {
	LineNo      int               `json:"line_no"`
	Description string            `json:"description"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   valueobject.Money `json:"unit_price"`
	Amount      valueobject.Money `json:"amount"`
	VATCategory VATCategory       `json:"vat_category"`
	VATRate     decimal.Decimal   `json:"vat_rate"`
	VATAmount   valueobject.Money `json:"vat_amount"`
	Duty        valueobject.Money `json:"duty"`
	AdvanceTax  valueobject.Money `json:"advance_tax"`
}

// Total returns amount + VAT + duty + advance tax for the line
func (l LineItem) Total() valueobject.Money {
	return l.Amount.MustAdd(l.VATAmount).MustAdd(l.Duty).MustAdd(l.AdvanceTax)
}

// LineItemInput carries the caller-supplied part of a line item
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   valueobject.Money
	VATCategory VATCategory
	Duty        *valueobject.Money
	AdvanceTax  *valueobject.Money
}

// NewLineItem validates input and computes amount and VAT for a line in the given currency
func NewLineItem(currency valueobject.Currency, input LineItemInput) (LineItem, error) {
	desc := strings.TrimSpace(input.Description)
	if desc == "" {
		return LineItem{}, ErrRequiredField.WithDetail("field", "description")
	}
	if !input.Quantity.IsPositive() {
		return LineItem{}, ErrInvalidQuantity.WithDetail("quantity", input.Quantity.String())
	}
	if input.UnitPrice.Currency() != currency {
		return LineItem{}, shared.ErrCurrencyMismatch.
			WithDetail("invoice_currency", string(currency)).
			WithDetail("unit_price_currency", string(input.UnitPrice.Currency()))
	}
	if !input.UnitPrice.IsPositive() {
		return LineItem{}, ErrInvalidAmount.WithDetail("unit_price", input.UnitPrice.String())
	}
	if !input.VATCategory.IsValid() {
		return LineItem{}, ErrInvalidVATCategory.WithDetail("category", string(input.VATCategory))
	}
	duty, err := optionalCharge(currency, "duty", input.Duty)
	if err != nil {
		return LineItem{}, err
	}
	advanceTax, err := optionalCharge(currency, "advance_tax", input.AdvanceTax)
	if err != nil {
		return LineItem{}, err
	}

	amount := input.UnitPrice.Multiply(input.Quantity).RoundMinor()
	return LineItem{
		Description: desc,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Amount:      amount,
		VATCategory: input.VATCategory,
		VATRate:     input.VATCategory.Rate(),
		VATAmount:   CalculateVAT(amount, input.VATCategory),
		Duty:        duty,
		AdvanceTax:  advanceTax,
	}, nil
}

func optionalCharge(currency valueobject.Currency, field string, m *valueobject.Money) (valueobject.Money, error) {
	if m == nil {
		return valueobject.Zero(currency), nil
	}
	if m.Currency() != currency {
		return valueobject.Money{}, shared.ErrCurrencyMismatch.WithDetail("field", field)
	}
	if m.IsNegative() {
		return valueobject.Money{}, ErrInvalidAmount.WithDetail(field, m.String())
	}
	return m.RoundMinor(), nil
}

// InvoiceTotals holds the invoice-level sums. ZeroRated and Exempt are the
// parts of Subtotal carried by lines of those categories.
type InvoiceTotals struct {
	Subtotal   valueobject.Money `json:"subtotal"`
	VAT        valueobject.Money `json:"vat"`
	Duty       valueobject.Money `json:"duty"`
	AdvanceTax valueobject.Money `json:"advance_tax"`
	GrandTotal valueobject.Money `json:"grand_total"`
	ZeroRated  valueobject.Money `json:"zero_rated"`
	Exempt     valueobject.Money `json:"exempt"`
}

// CalculateInvoiceTotals sums line amounts; grand total = subtotal + VAT + duty + advance tax
func CalculateInvoiceTotals(currency valueobject.Currency, lines []LineItem) InvoiceTotals {
	t := InvoiceTotals{
		Subtotal:   valueobject.Zero(currency),
		VAT:        valueobject.Zero(currency),
		Duty:       valueobject.Zero(currency),
		AdvanceTax: valueobject.Zero(currency),
		ZeroRated:  valueobject.Zero(currency),
		Exempt:     valueobject.Zero(currency),
	}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.MustAdd(l.Amount)
		t.VAT = t.VAT.MustAdd(l.VATAmount)
		t.Duty = t.Duty.MustAdd(l.Duty)
		t.AdvanceTax = t.AdvanceTax.MustAdd(l.AdvanceTax)
		switch l.VATCategory {
		case VATCategoryZero:
			t.ZeroRated = t.ZeroRated.MustAdd(l.Amount)
		case VATCategoryExempt:
			t.Exempt = t.Exempt.MustAdd(l.Amount)
		}
	}
	t.GrandTotal = t.Subtotal.MustAdd(t.VAT).MustAdd(t.Duty).MustAdd(t.AdvanceTax)
	return t
}

// AppliedPayment is a payment recorded against the invoice
type AppliedPayment struct {
	PaymentID  valueobject.PaymentID `json:"payment_id"`
	Amount     valueobject.Money     `json:"amount"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// InvoiceState is the immutable current state of an invoice
type InvoiceState struct {
	ID               valueobject.InvoiceID `json:"id"`
	TenantID         valueobject.TenantID  `json:"tenant_id"`
	Number           string                `json:"number"`
	VendorID         valueobject.PartyID   `json:"vendor_id"`
	CustomerID       valueobject.PartyID   `json:"customer_id"`
	Currency         valueobject.Currency  `json:"currency"`
	IssueDate        time.Time             `json:"issue_date"`
	DueDate          *time.Time            `json:"due_date,omitempty"`
	FiscalYear       string                `json:"fiscal_year"`
	FiscalPeriod     string                `json:"fiscal_period"`
	Lines            []LineItem            `json:"lines"`
	NextLineNo       int                   `json:"next_line_no"`
	Totals           InvoiceTotals         `json:"totals"`
	Status           InvoiceStatus         `json:"status"`
	PaidAmount       valueobject.Money     `json:"paid_amount"`
	RemainingBalance valueobject.Money     `json:"remaining_balance"`
	Payments         []AppliedPayment      `json:"payments,omitempty"`
	RegulatoryNumber string                `json:"regulatory_number,omitempty"`
	CancelReason     string                `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ApprovedAt       *time.Time            `json:"approved_at,omitempty"`
	PaidAt           *time.Time            `json:"paid_at,omitempty"`
	CancelledAt      *time.Time            `json:"cancelled_at,omitempty"`
}

func (s InvoiceState) withLines(lines []LineItem) InvoiceState {
	s.Lines = lines
	s.Totals = CalculateInvoiceTotals(s.Currency, lines)
	s.RemainingBalance = s.Totals.GrandTotal.MustSubtract(s.PaidAmount)
	return s
}

// Apply folds one event into the invoice state
func (s InvoiceState) Apply(event shared.DomainEvent) (InvoiceState, error) {
	at := event.OccurredAt()
	switch e := event.(type) {
	case *InvoiceCreatedEvent:
		next := InvoiceState{
			ID:           e.InvoiceID,
			TenantID:     valueobject.TenantID(e.TenantID()),
			Number:       e.Number,
			VendorID:     e.VendorID,
			CustomerID:   e.CustomerID,
			Currency:     e.Currency,
			IssueDate:    e.IssueDate,
			DueDate:      e.DueDate,
			FiscalYear:   e.FiscalYear,
			FiscalPeriod: e.FiscalPeriod,
			NextLineNo:   1,
			Status:       InvoiceStatusDraft,
			PaidAmount:   valueobject.Zero(e.Currency),
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		return next.withLines(nil), nil
	case *InvoiceLineItemAddedEvent:
		if e.Line.Amount.Currency() != s.Currency {
			return s, fmt.Errorf("invoice %s: line currency %s does not match %s", s.ID, e.Line.Amount.Currency(), s.Currency)
		}
		lines := make([]LineItem, 0, len(s.Lines)+1)
		lines = append(lines, s.Lines...)
		lines = append(lines, e.Line)
		s = s.withLines(lines)
		s.NextLineNo = e.Line.LineNo + 1
		s.UpdatedAt = at
		return s, nil
	case *InvoiceLineItemRemovedEvent:
		lines := make([]LineItem, 0, len(s.Lines))
		for _, l := range s.Lines {
			if l.LineNo != e.LineNo {
				lines = append(lines, l)
			}
		}
		s = s.withLines(lines)
		s.UpdatedAt = at
		return s, nil
	case *InvoiceApprovedEvent:
		s.Status = InvoiceStatusApproved
		s.RegulatoryNumber = e.RegulatoryNumber
		s.ApprovedAt = &at
		s.UpdatedAt = at
		return s, nil
	case *InvoicePaymentRecordedEvent:
		paid, err := s.PaidAmount.Add(e.Amount)
		if err != nil {
			return s, err
		}
		payments := make([]AppliedPayment, 0, len(s.Payments)+1)
		payments = append(payments, s.Payments...)
		payments = append(payments, AppliedPayment{PaymentID: e.PaymentID, Amount: e.Amount, RecordedAt: at})
		s.Payments = payments
		s.PaidAmount = paid
		s.RemainingBalance = s.Totals.GrandTotal.MustSubtract(paid)
		s.UpdatedAt = at
		return s, nil
	case *InvoiceFullyPaidEvent:
		s.Status = InvoiceStatusPaid
		s.PaidAt = &at
		s.UpdatedAt = at
		return s, nil
	case *InvoiceCancelledEvent:
		s.Status = InvoiceStatusCancelled
		s.CancelReason = e.Reason
		s.CancelledAt = &at
		s.UpdatedAt = at
		return s, nil
	default:
		return s, fmt.Errorf("invoice: unsupported event %s", event.EventType())
	}
}

// FoldInvoice rebuilds invoice state from its full history
func FoldInvoice(history []shared.DomainEvent) (InvoiceState, error) {
	var s InvoiceState
	for _, e := range history {
		var err error
		if s, err = s.Apply(e); err != nil {
			return InvoiceState{}, err
		}
	}
	return s, nil
}

// Invoice is the event-sourced sales invoice aggregate
type Invoice struct {
	shared.EventSourcedAggregate
	state InvoiceState
}

// NewEmptyInvoice returns an invoice ready to be rehydrated from history
func NewEmptyInvoice() *Invoice {
	return &Invoice{EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeInvoice, uuid.Nil, uuid.Nil)}
}

// CreateInvoiceInput holds the header fields of a new invoice
type CreateInvoiceInput struct {
	Number     string
	VendorID   valueobject.PartyID
	CustomerID valueobject.PartyID
	Currency   valueobject.Currency
	IssueDate  time.Time
	DueDate    *time.Time
}

// CreateInvoice validates input and creates a draft invoice. The fiscal year
// and period are derived from the issue date.
func CreateInvoice(tenantID valueobject.TenantID, calendar FiscalCalendar, input CreateInvoiceInput) (*Invoice, error) {
	if tenantID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "tenant_id")
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return nil, ErrRequiredField.WithDetail("field", "number")
	}
	if input.VendorID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "vendor_id")
	}
	if input.CustomerID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "customer_id")
	}
	if !input.Currency.IsValid() {
		return nil, ErrInvalidCurrency.WithDetail("currency", string(input.Currency))
	}
	if input.IssueDate.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "issue_date")
	}
	if input.DueDate != nil && input.DueDate.Before(input.IssueDate) {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date must not be before the issue date")
	}

	id := valueobject.NewInvoiceID()
	inv := &Invoice{
		EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeInvoice, id.UUID(), tenantID.UUID()),
	}
	period := calendar.PeriodFor(input.IssueDate)
	event := &InvoiceCreatedEvent{
		BaseDomainEvent: inv.newEvent(EventTypeInvoiceCreated),
		InvoiceID:       id,
		Number:          number,
		VendorID:        input.VendorID,
		CustomerID:      input.CustomerID,
		Currency:        input.Currency,
		IssueDate:       input.IssueDate.UTC(),
		DueDate:         input.DueDate,
		FiscalYear:      period.FiscalYear,
		FiscalPeriod:    period.Label,
	}
	if err := inv.Raise(event, inv.apply); err != nil {
		return nil, err
	}
	return inv, nil
}

func (i *Invoice) newEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeInvoice, i.AggregateID(), i.TenantID())
}

func (i *Invoice) apply(event shared.DomainEvent) error {
	next, err := i.state.Apply(event)
	if err != nil {
		return err
	}
	i.state = next
	return nil
}

// Rehydrate replays persisted history into the invoice
func (i *Invoice) Rehydrate(id, tenantID uuid.UUID, history []shared.DomainEvent) error {
	return i.Replay(id, tenantID, history, i.apply)
}

// State returns a copy of the current state
func (i *Invoice) State() InvoiceState {
	return i.state
}

// ID returns the typed invoice id
func (i *Invoice) ID() valueobject.InvoiceID {
	return i.state.ID
}

// Status returns the invoice status
func (i *Invoice) Status() InvoiceStatus {
	return i.state.Status
}

// Totals returns the current invoice totals
func (i *Invoice) Totals() InvoiceTotals {
	return i.state.Totals
}

// PaidAmount returns the sum of recorded payments
func (i *Invoice) PaidAmount() valueobject.Money {
	return i.state.PaidAmount
}

// RemainingBalance returns grand total minus paid amount
func (i *Invoice) RemainingBalance() valueobject.Money {
	return i.state.RemainingBalance
}

// HasPayment reports whether the payment was already recorded
func (i *Invoice) HasPayment(paymentID valueobject.PaymentID) bool {
	for _, p := range i.state.Payments {
		if p.PaymentID == paymentID {
			return true
		}
	}
	return false
}

// AddLineItem appends a line to a draft invoice and recalculates totals
func (i *Invoice) AddLineItem(input LineItemInput) (LineItem, error) {
	if i.state.Status != InvoiceStatusDraft {
		return LineItem{}, ErrInvoiceNotDraft.WithDetail("status", i.state.Status.String())
	}
	line, err := NewLineItem(i.state.Currency, input)
	if err != nil {
		return LineItem{}, err
	}
	line.LineNo = i.state.NextLineNo
	err = i.Raise(&InvoiceLineItemAddedEvent{
		BaseDomainEvent: i.newEvent(EventTypeInvoiceLineItemAdded),
		InvoiceID:       i.state.ID,
		Line:            line,
	}, i.apply)
	if err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// RemoveLineItem removes a line from a draft invoice
func (i *Invoice) RemoveLineItem(lineNo int) error {
	if i.state.Status != InvoiceStatusDraft {
		return ErrInvoiceNotDraft.WithDetail("status", i.state.Status.String())
	}
	found := false
	for _, l := range i.state.Lines {
		if l.LineNo == lineNo {
			found = true
			break
		}
	}
	if !found {
		return shared.ErrNotFound.WithDetail("line_no", fmt.Sprint(lineNo))
	}
	return i.Raise(&InvoiceLineItemRemovedEvent{
		BaseDomainEvent: i.newEvent(EventTypeInvoiceLineItemRemoved),
		InvoiceID:       i.state.ID,
		LineNo:          lineNo,
	}, i.apply)
}

// Approve moves a draft invoice to Approved and assigns its regulatory number
func (i *Invoice) Approve(regulatoryNumber string) error {
	if i.state.Status != InvoiceStatusDraft {
		return ErrInvalidTransition.WithDetail("from", i.state.Status.String()).WithDetail("to", InvoiceStatusApproved.String())
	}
	if len(i.state.Lines) == 0 || !i.state.Totals.GrandTotal.IsPositive() {
		return ErrInvoiceEmpty
	}
	regulatoryNumber = strings.TrimSpace(regulatoryNumber)
	if regulatoryNumber == "" {
		return ErrRequiredField.WithDetail("field", "regulatory_number")
	}
	return i.Raise(&InvoiceApprovedEvent{
		BaseDomainEvent:  i.newEvent(EventTypeInvoiceApproved),
		InvoiceID:        i.state.ID,
		RegulatoryNumber: regulatoryNumber,
		IssueDate:        i.state.IssueDate,
		FiscalPeriod:     i.state.FiscalPeriod,
		Totals:           i.state.Totals,
	}, i.apply)
}

// RecordPayment applies a payment to an approved invoice. When the remaining
// balance reaches exactly zero a separate fully-paid event moves the invoice
// to Paid; partial payments leave the status unchanged. Recording the same
// payment twice is a no-op and returns false.
func (i *Invoice) RecordPayment(paymentID valueobject.PaymentID, amount valueobject.Money) (bool, error) {
	if paymentID.IsZero() {
		return false, ErrRequiredField.WithDetail("field", "payment_id")
	}
	if i.HasPayment(paymentID) {
		return false, nil
	}
	if i.state.Status == InvoiceStatusPaid {
		return false, shared.ErrOverpayment.
			WithDetail("amount", amount.String()).
			WithDetail("remaining_balance", i.state.RemainingBalance.String())
	}
	if i.state.Status != InvoiceStatusApproved {
		return false, ErrInvoiceNotApproved.WithDetail("status", i.state.Status.String())
	}
	if amount.Currency() != i.state.Currency {
		return false, shared.ErrCurrencyMismatch.
			WithDetail("invoice_currency", string(i.state.Currency)).
			WithDetail("payment_currency", string(amount.Currency()))
	}
	if !amount.IsPositive() {
		return false, ErrInvalidAmount.WithDetail("amount", amount.String())
	}
	if over, _ := amount.GreaterThan(i.state.RemainingBalance); over {
		return false, shared.ErrOverpayment.
			WithDetail("amount", amount.String()).
			WithDetail("remaining_balance", i.state.RemainingBalance.String())
	}

	paid := i.state.PaidAmount.MustAdd(amount)
	remaining := i.state.Totals.GrandTotal.MustSubtract(paid)
	err := i.Raise(&InvoicePaymentRecordedEvent{
		BaseDomainEvent:  i.newEvent(EventTypeInvoicePaymentRecorded),
		InvoiceID:        i.state.ID,
		PaymentID:        paymentID,
		Amount:           amount,
		PaidAmount:       paid,
		RemainingBalance: remaining,
	}, i.apply)
	if err != nil {
		return false, err
	}
	if i.state.RemainingBalance.IsZero() {
		err = i.Raise(&InvoiceFullyPaidEvent{
			BaseDomainEvent: i.newEvent(EventTypeInvoiceFullyPaid),
			InvoiceID:       i.state.ID,
			GrandTotal:      i.state.Totals.GrandTotal,
		}, i.apply)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Cancel cancels a draft or approved invoice. An approved invoice that has
// already received payments cannot be cancelled.
func (i *Invoice) Cancel(reason string) error {
	if i.state.Status != InvoiceStatusDraft && i.state.Status != InvoiceStatusApproved {
		return ErrInvalidTransition.WithDetail("from", i.state.Status.String()).WithDetail("to", InvoiceStatusCancelled.String())
	}
	if !i.state.PaidAmount.IsZero() {
		return ErrInvoiceHasPayments.WithDetail("paid_amount", i.state.PaidAmount.String())
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRequiredField.WithDetail("field", "reason")
	}
	return i.Raise(&InvoiceCancelledEvent{
		BaseDomainEvent: i.newEvent(EventTypeInvoiceCancelled),
		InvoiceID:       i.state.ID,
		Reason:          reason,
		PreviousStatus:  i.state.Status,
		IssueDate:       i.state.IssueDate,
		FiscalPeriod:    i.state.FiscalPeriod,
		Totals:          i.state.Totals,
	}, i.apply)
}

// SnapshotState captures the current state for the snapshot store
func (i *Invoice) SnapshotState() ([]byte, error) {
	return json.Marshal(i.state)
}

// RestoreSnapshot loads state captured by SnapshotState
func (i *Invoice) RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error {
	var s InvoiceState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore invoice snapshot: %w", err)
	}
	i.state = s
	i.RestoreVersion(id, tenantID, version)
	return nil
}
