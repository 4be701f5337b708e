package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// Payment event types
const (
	EventTypePaymentCreated           = "PaymentCreated"
	EventTypePaymentWalletInitiated   = "PaymentWalletInitiated"
	EventTypePaymentCompleted         = "PaymentCompleted"
	EventTypePaymentFailed            = "PaymentFailed"
	EventTypePaymentReconciled        = "PaymentReconciled"
	EventTypePaymentReversed          = "PaymentReversed"
	EventTypePaymentAppliedToInvoice  = "PaymentAppliedToInvoice"
	EventTypePaymentInvoiceSyncFailed = "PaymentInvoiceSyncFailed"
)

// PaymentNumberClaimScope is the uniqueness scope for payment numbers within a tenant
const PaymentNumberClaimScope = "payment_number"

// PaymentCreatedEvent is raised when a pending payment is registered against an invoice
type PaymentCreatedEvent struct {
	shared.BaseDomainEvent
	PaymentID valueobject.PaymentID `json:"payment_id"`
	Number    string                `json:"number"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id"`
	Amount    valueobject.Money     `json:"amount"`
	Method    PaymentMethod         `json:"method"`
}

// EventType returns the event type name
func (e *PaymentCreatedEvent) EventType() string {
	return EventTypePaymentCreated
}

// UniqueClaims reserves the payment number within the tenant
func (e *PaymentCreatedEvent) UniqueClaims() []shared.UniqueClaim {
	return []shared.UniqueClaim{{Scope: PaymentNumberClaimScope, Value: e.Number}}
}

// PaymentWalletInitiatedEvent is raised when a mobile wallet push is started
type PaymentWalletInitiatedEvent struct {
	shared.BaseDomainEvent
	PaymentID       valueobject.PaymentID `json:"payment_id"`
	WalletReference string                `json:"wallet_reference"`
	InitiatedAt     time.Time             `json:"initiated_at"`
}

// EventType returns the event type name
func (e *PaymentWalletInitiatedEvent) EventType() string {
	return EventTypePaymentWalletInitiated
}

// PaymentCompletedEvent is raised when funds are confirmed
type PaymentCompletedEvent struct {
	shared.BaseDomainEvent
	PaymentID         valueobject.PaymentID `json:"payment_id"`
	InvoiceID         valueobject.InvoiceID `json:"invoice_id"`
	Amount            valueobject.Money     `json:"amount"`
	Method            PaymentMethod         `json:"method"`
	ExternalReference string                `json:"external_reference,omitempty"`
	CompletedAt       time.Time             `json:"completed_at"`
}

// EventType returns the event type name
func (e *PaymentCompletedEvent) EventType() string {
	return EventTypePaymentCompleted
}

// PaymentFailedEvent is raised when a payment did not settle
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	PaymentID valueobject.PaymentID `json:"payment_id"`
	Reason    string                `json:"reason"`
	FailedAt  time.Time             `json:"failed_at"`
}

// EventType returns the event type name
func (e *PaymentFailedEvent) EventType() string {
	return EventTypePaymentFailed
}

// PaymentReconciledEvent is raised when a completed payment is matched to a bank statement line
type PaymentReconciledEvent struct {
	shared.BaseDomainEvent
	PaymentID     valueobject.PaymentID `json:"payment_id"`
	BankReference string                `json:"bank_reference"`
	ReconciledAt  time.Time             `json:"reconciled_at"`
}

// EventType returns the event type name
func (e *PaymentReconciledEvent) EventType() string {
	return EventTypePaymentReconciled
}

// PaymentReversedEvent is raised when a completed payment is returned
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	PaymentID  valueobject.PaymentID `json:"payment_id"`
	InvoiceID  valueobject.InvoiceID `json:"invoice_id"`
	Amount     valueobject.Money     `json:"amount"`
	Reason     string                `json:"reason"`
	ReversedAt time.Time             `json:"reversed_at"`
}

// EventType returns the event type name
func (e *PaymentReversedEvent) EventType() string {
	return EventTypePaymentReversed
}

// PaymentAppliedToInvoiceEvent records that the invoice side of settlement succeeded
type PaymentAppliedToInvoiceEvent struct {
	shared.BaseDomainEvent
	PaymentID valueobject.PaymentID `json:"payment_id"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id"`
	AppliedAt time.Time             `json:"applied_at"`
}

// EventType returns the event type name
func (e *PaymentAppliedToInvoiceEvent) EventType() string {
	return EventTypePaymentAppliedToInvoice
}

// PaymentInvoiceSyncFailedEvent records that the payment completed but could
// not be recorded against its invoice and needs reconciliation.
type PaymentInvoiceSyncFailedEvent struct {
	shared.BaseDomainEvent
	PaymentID valueobject.PaymentID `json:"payment_id"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id"`
	Reason    string                `json:"reason"`
	Attempt   int                   `json:"attempt"`
	FailedAt  time.Time             `json:"failed_at"`
}

// EventType returns the event type name
func (e *PaymentInvoiceSyncFailedEvent) EventType() string {
	return EventTypePaymentInvoiceSyncFailed
}
