package finance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypePayment is the stream type of payments
const AggregateTypePayment = "Payment"

// PaymentMethod is how a payment is settled
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodTelebirr     PaymentMethod = "TELEBIRR" // mobile wallet
	PaymentMethodCBEBirr      PaymentMethod = "CBE_BIRR" // mobile wallet
	PaymentMethodMPesa        PaymentMethod = "M_PESA"   // mobile wallet
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCheck, PaymentMethodCash, PaymentMethodCard,
		PaymentMethodTelebirr, PaymentMethodCBEBirr, PaymentMethodMPesa:
		return true
	}
	return false
}

// IsMobileWallet returns true for methods that go through wallet initiation
func (m PaymentMethod) IsMobileWallet() bool {
	return m == PaymentMethodTelebirr || m == PaymentMethodCBEBirr || m == PaymentMethodMPesa
}

// PaymentStatus represents the lifecycle status of a payment
type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "PENDING"
	PaymentStatusWalletInitiated PaymentStatus = "WALLET_INITIATED"
	PaymentStatusCompleted       PaymentStatus = "COMPLETED"
	PaymentStatusFailed          PaymentStatus = "FAILED"
	PaymentStatusReconciled      PaymentStatus = "RECONCILED"
	PaymentStatusReversed        PaymentStatus = "REVERSED"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusWalletInitiated, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusReconciled, PaymentStatusReversed:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal returns true for Failed, Reconciled and Reversed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusReconciled || s == PaymentStatusReversed
}

// IsSettled returns true once funds have been confirmed
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusReconciled
}

// PaymentState is the immutable current state of a payment
type PaymentState struct {
	ID                  valueobject.PaymentID `json:"id"`
	TenantID            valueobject.TenantID  `json:"tenant_id"`
	Number              string                `json:"number"`
	InvoiceID           valueobject.InvoiceID `json:"invoice_id"`
	Amount              valueobject.Money     `json:"amount"`
	Method              PaymentMethod         `json:"method"`
	Status              PaymentStatus         `json:"status"`
	WalletReference     string                `json:"wallet_reference,omitempty"`
	ExternalReference   string                `json:"external_reference,omitempty"`
	BankReference       string                `json:"bank_reference,omitempty"`
	FailureReason       string                `json:"failure_reason,omitempty"`
	ReversalReason      string                `json:"reversal_reason,omitempty"`
	InvoiceApplied      bool                  `json:"invoice_applied"`
	InvoiceSyncError    string                `json:"invoice_sync_error,omitempty"`
	InvoiceSyncAttempts int                   `json:"invoice_sync_attempts"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	InitiatedAt         *time.Time            `json:"initiated_at,omitempty"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
	FailedAt            *time.Time            `json:"failed_at,omitempty"`
	ReconciledAt        *time.Time            `json:"reconciled_at,omitempty"`
	ReversedAt          *time.Time            `json:"reversed_at,omitempty"`
	InvoiceAppliedAt    *time.Time            `json:"invoice_applied_at,omitempty"`
}

// Apply folds one event into the payment state
func (s PaymentState) Apply(event shared.DomainEvent) (PaymentState, error) {
	at := event.OccurredAt()
	switch e := event.(type) {
	case *PaymentCreatedEvent:
		return PaymentState{
			ID:        e.PaymentID,
			TenantID:  valueobject.TenantID(e.TenantID()),
			Number:    e.Number,
			InvoiceID: e.InvoiceID,
			Amount:    e.Amount,
			Method:    e.Method,
			Status:    PaymentStatusPending,
			CreatedAt: at,
			UpdatedAt: at,
		}, nil
	case *PaymentWalletInitiatedEvent:
		t := e.InitiatedAt
		s.Status = PaymentStatusWalletInitiated
		s.WalletReference = e.WalletReference
		s.InitiatedAt = &t
	case *PaymentCompletedEvent:
		t := e.CompletedAt
		s.Status = PaymentStatusCompleted
		s.ExternalReference = e.ExternalReference
		s.CompletedAt = &t
	case *PaymentFailedEvent:
		t := e.FailedAt
		s.Status = PaymentStatusFailed
		s.FailureReason = e.Reason
		s.FailedAt = &t
	case *PaymentReconciledEvent:
		t := e.ReconciledAt
		s.Status = PaymentStatusReconciled
		s.BankReference = e.BankReference
		s.ReconciledAt = &t
	case *PaymentReversedEvent:
		t := e.ReversedAt
		s.Status = PaymentStatusReversed
		s.ReversalReason = e.Reason
		s.ReversedAt = &t
	case *PaymentAppliedToInvoiceEvent:
		t := e.AppliedAt
		s.InvoiceApplied = true
		s.InvoiceSyncError = ""
		s.InvoiceAppliedAt = &t
	case *PaymentInvoiceSyncFailedEvent:
		s.InvoiceSyncError = e.Reason
		s.InvoiceSyncAttempts = e.Attempt
	default:
		return s, fmt.Errorf("payment: unsupported event %s", event.EventType())
	}
	s.UpdatedAt = at
	return s, nil
}

// FoldPayment rebuilds payment state from its full history
func FoldPayment(history []shared.DomainEvent) (PaymentState, error) {
	var s PaymentState
	for _, e := range history {
		var err error
		if s, err = s.Apply(e); err != nil {
			return PaymentState{}, err
		}
	}
	return s, nil
}

// Payment is the event-sourced settlement aggregate. A payment always
// belongs to exactly one invoice.
type Payment struct {
	shared.EventSourcedAggregate
	state PaymentState
}

// NewEmptyPayment returns a payment ready to be rehydrated from history
func NewEmptyPayment() *Payment {
	return &Payment{EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypePayment, uuid.Nil, uuid.Nil)}
}

// CreatePayment validates input and registers a pending payment
func CreatePayment(
	tenantID valueobject.TenantID,
	number string,
	invoiceID valueobject.InvoiceID,
	amount valueobject.Money,
	method PaymentMethod,
) (*Payment, error) {
	if tenantID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "tenant_id")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrRequiredField.WithDetail("field", "number")
	}
	if invoiceID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "invoice_id")
	}
	if !amount.Currency().IsValid() {
		return nil, ErrInvalidCurrency.WithDetail("currency", string(amount.Currency()))
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount.WithDetail("amount", amount.String())
	}
	if !method.IsValid() {
		return nil, ErrInvalidPaymentMethod.WithDetail("method", string(method))
	}

	id := valueobject.NewPaymentID()
	p := &Payment{
		EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypePayment, id.UUID(), tenantID.UUID()),
	}
	event := &PaymentCreatedEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentCreated),
		PaymentID:       id,
		Number:          number,
		InvoiceID:       invoiceID,
		Amount:          amount,
		Method:          method,
	}
	if err := p.Raise(event, p.apply); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Payment) newEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypePayment, p.AggregateID(), p.TenantID())
}

func (p *Payment) apply(event shared.DomainEvent) error {
	next, err := p.state.Apply(event)
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

// Rehydrate replays persisted history into the payment
func (p *Payment) Rehydrate(id, tenantID uuid.UUID, history []shared.DomainEvent) error {
	return p.Replay(id, tenantID, history, p.apply)
}

// State returns a copy of the current state
func (p *Payment) State() PaymentState {
	return p.state
}

// ID returns the typed payment id
func (p *Payment) ID() valueobject.PaymentID {
	return p.state.ID
}

// Status returns the payment status
func (p *Payment) Status() PaymentStatus {
	return p.state.Status
}

// InvoiceID returns the invoice this payment settles
func (p *Payment) InvoiceID() valueobject.InvoiceID {
	return p.state.InvoiceID
}

// Amount returns the payment amount
func (p *Payment) Amount() valueobject.Money {
	return p.state.Amount
}

// InvoiceApplied reports whether the invoice side of settlement succeeded
func (p *Payment) InvoiceApplied() bool {
	return p.state.InvoiceApplied
}

func (p *Payment) transitionError(to PaymentStatus) error {
	return ErrInvalidTransition.WithDetail("from", p.state.Status.String()).WithDetail("to", to.String())
}

// InitiateWallet starts a mobile wallet push for a pending wallet payment
func (p *Payment) InitiateWallet(reference string, at time.Time) error {
	if !p.state.Method.IsMobileWallet() {
		return ErrNotWalletPayment.WithDetail("method", string(p.state.Method))
	}
	if p.state.Status != PaymentStatusPending {
		return p.transitionError(PaymentStatusWalletInitiated)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ErrRequiredField.WithDetail("field", "wallet_reference")
	}
	return p.Raise(&PaymentWalletInitiatedEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentWalletInitiated),
		PaymentID:       p.state.ID,
		WalletReference: reference,
		InitiatedAt:     at.UTC(),
	}, p.apply)
}

// Complete confirms the payment. Wallet payments must be initiated first.
func (p *Payment) Complete(externalReference string, at time.Time) error {
	switch p.state.Status {
	case PaymentStatusPending:
		if p.state.Method.IsMobileWallet() {
			return ErrWalletNotInitiated.WithDetail("method", string(p.state.Method))
		}
	case PaymentStatusWalletInitiated:
	default:
		return p.transitionError(PaymentStatusCompleted)
	}
	return p.Raise(&PaymentCompletedEvent{
		BaseDomainEvent:   p.newEvent(EventTypePaymentCompleted),
		PaymentID:         p.state.ID,
		InvoiceID:         p.state.InvoiceID,
		Amount:            p.state.Amount,
		Method:            p.state.Method,
		ExternalReference: strings.TrimSpace(externalReference),
		CompletedAt:       at.UTC(),
	}, p.apply)
}

// Fail marks a payment that never settled. Completed payments cannot fail.
func (p *Payment) Fail(reason string, at time.Time) error {
	switch p.state.Status {
	case PaymentStatusPending, PaymentStatusWalletInitiated:
	case PaymentStatusCompleted, PaymentStatusReconciled, PaymentStatusReversed:
		return ErrPaymentCompleted.WithDetail("status", p.state.Status.String())
	default:
		return p.transitionError(PaymentStatusFailed)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRequiredField.WithDetail("field", "reason")
	}
	return p.Raise(&PaymentFailedEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentFailed),
		PaymentID:       p.state.ID,
		Reason:          reason,
		FailedAt:        at.UTC(),
	}, p.apply)
}

// Reconcile matches a completed payment to its bank statement line
func (p *Payment) Reconcile(bankReference string, at time.Time) error {
	if p.state.Status != PaymentStatusCompleted {
		return ErrPaymentNotCompleted.WithDetail("status", p.state.Status.String())
	}
	bankReference = strings.TrimSpace(bankReference)
	if bankReference == "" {
		return ErrRequiredField.WithDetail("field", "bank_reference")
	}
	return p.Raise(&PaymentReconciledEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentReconciled),
		PaymentID:       p.state.ID,
		BankReference:   bankReference,
		ReconciledAt:    at.UTC(),
	}, p.apply)
}

// Reverse returns a completed payment
func (p *Payment) Reverse(reason string, at time.Time) error {
	if p.state.Status != PaymentStatusCompleted {
		return ErrPaymentNotCompleted.WithDetail("status", p.state.Status.String())
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRequiredField.WithDetail("field", "reason")
	}
	return p.Raise(&PaymentReversedEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentReversed),
		PaymentID:       p.state.ID,
		InvoiceID:       p.state.InvoiceID,
		Amount:          p.state.Amount,
		Reason:          reason,
		ReversedAt:      at.UTC(),
	}, p.apply)
}

// MarkAppliedToInvoice records that the invoice accepted this payment.
// It is a no-op when already recorded.
func (p *Payment) MarkAppliedToInvoice(at time.Time) error {
	if p.state.InvoiceApplied {
		return nil
	}
	if !p.state.Status.IsSettled() {
		return ErrPaymentNotCompleted.WithDetail("status", p.state.Status.String())
	}
	return p.Raise(&PaymentAppliedToInvoiceEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentAppliedToInvoice),
		PaymentID:       p.state.ID,
		InvoiceID:       p.state.InvoiceID,
		AppliedAt:       at.UTC(),
	}, p.apply)
}

// MarkInvoiceSyncFailed records that the invoice could not be updated for
// this completed payment. The payment itself stays settled.
func (p *Payment) MarkInvoiceSyncFailed(reason string, at time.Time) error {
	if p.state.InvoiceApplied {
		return ErrInvalidTransition.WithDetail("invoice_applied", "true")
	}
	if !p.state.Status.IsSettled() {
		return ErrPaymentNotCompleted.WithDetail("status", p.state.Status.String())
	}
	return p.Raise(&PaymentInvoiceSyncFailedEvent{
		BaseDomainEvent: p.newEvent(EventTypePaymentInvoiceSyncFailed),
		PaymentID:       p.state.ID,
		InvoiceID:       p.state.InvoiceID,
		Reason:          reason,
		Attempt:         p.state.InvoiceSyncAttempts + 1,
		FailedAt:        at.UTC(),
	}, p.apply)
}

// SnapshotState captures the current state for the snapshot store
func (p *Payment) SnapshotState() ([]byte, error) {
	return json.Marshal(p.state)
}

// RestoreSnapshot loads state captured by SnapshotState
func (p *Payment) RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error {
	var s PaymentState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore payment snapshot: %w", err)
	}
	p.state = s
	p.RestoreVersion(id, tenantID, version)
	return nil
}
