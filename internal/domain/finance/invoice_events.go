package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// Invoice event types
const (
	EventTypeInvoiceCreated         = "InvoiceCreated"
	EventTypeInvoiceLineItemAdded   = "InvoiceLineItemAdded"
	EventTypeInvoiceLineItemRemoved = "InvoiceLineItemRemoved"
	EventTypeInvoiceApproved        = "InvoiceApproved"
	EventTypeInvoicePaymentRecorded = "InvoicePaymentRecorded"
	EventTypeInvoiceFullyPaid       = "InvoiceFullyPaid"
	EventTypeInvoiceCancelled       = "InvoiceCancelled"
)

// InvoiceNumberClaimScope is the uniqueness scope for invoice numbers within a tenant
const InvoiceNumberClaimScope = "invoice_number"

// InvoiceCreatedEvent is raised when a draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID    valueobject.InvoiceID `json:"invoice_id"`
	Number       string                `json:"number"`
	VendorID     valueobject.PartyID   `json:"vendor_id"`
	CustomerID   valueobject.PartyID   `json:"customer_id"`
	Currency     valueobject.Currency  `json:"currency"`
	IssueDate    time.Time             `json:"issue_date"`
	DueDate      *time.Time            `json:"due_date,omitempty"`
	FiscalYear   string                `json:"fiscal_year"`
	FiscalPeriod string                `json:"fiscal_period"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return EventTypeInvoiceCreated
}

// UniqueClaims reserves the invoice number within the tenant
func (e *InvoiceCreatedEvent) UniqueClaims() []shared.UniqueClaim {
	return []shared.UniqueClaim{{Scope: InvoiceNumberClaimScope, Value: e.Number}}
}

// InvoiceLineItemAddedEvent is raised when a line is appended to a draft invoice
type InvoiceLineItemAddedEvent struct {
	shared.BaseDomainEvent
	InvoiceID valueobject.InvoiceID `json:"invoice_id"`
	Line      LineItem              `json:"line"`
}

// EventType returns the event type name
func (e *InvoiceLineItemAddedEvent) EventType() string {
	return EventTypeInvoiceLineItemAdded
}

// InvoiceLineItemRemovedEvent is raised when a line is removed from a draft invoice
type InvoiceLineItemRemovedEvent struct {
	shared.BaseDomainEvent
	InvoiceID valueobject.InvoiceID `json:"invoice_id"`
	LineNo    int                   `json:"line_no"`
}

// EventType returns the event type name
func (e *InvoiceLineItemRemovedEvent) EventType() string {
	return EventTypeInvoiceLineItemRemoved
}

// InvoiceApprovedEvent is raised when a draft invoice is approved and numbered
type InvoiceApprovedEvent struct {
	shared.BaseDomainEvent
	InvoiceID        valueobject.InvoiceID `json:"invoice_id"`
	RegulatoryNumber string                `json:"regulatory_number"`
	IssueDate        time.Time             `json:"issue_date"`
	FiscalPeriod     string                `json:"fiscal_period"`
	Totals           InvoiceTotals         `json:"totals"`
}

// EventType returns the event type name
func (e *InvoiceApprovedEvent) EventType() string {
	return EventTypeInvoiceApproved
}

// InvoicePaymentRecordedEvent is raised when a payment is applied to an approved invoice
type InvoicePaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID        valueobject.InvoiceID `json:"invoice_id"`
	PaymentID        valueobject.PaymentID `json:"payment_id"`
	Amount           valueobject.Money     `json:"amount"`
	PaidAmount       valueobject.Money     `json:"paid_amount"`
	RemainingBalance valueobject.Money     `json:"remaining_balance"`
}

// EventType returns the event type name
func (e *InvoicePaymentRecordedEvent) EventType() string {
	return EventTypeInvoicePaymentRecorded
}

// InvoiceFullyPaidEvent is raised after the payment that brings the remaining balance to zero
type InvoiceFullyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID  valueobject.InvoiceID `json:"invoice_id"`
	GrandTotal valueobject.Money     `json:"grand_total"`
}

// EventType returns the event type name
func (e *InvoiceFullyPaidEvent) EventType() string {
	return EventTypeInvoiceFullyPaid
}

// InvoiceCancelledEvent is raised when a draft or approved invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID      valueobject.InvoiceID `json:"invoice_id"`
	Reason         string                `json:"reason"`
	PreviousStatus InvoiceStatus         `json:"previous_status"`
	IssueDate      time.Time             `json:"issue_date"`
	FiscalPeriod   string                `json:"fiscal_period"`
	Totals         InvoiceTotals         `json:"totals"`
}

// EventType returns the event type name
func (e *InvoiceCancelledEvent) EventType() string {
	return EventTypeInvoiceCancelled
}
