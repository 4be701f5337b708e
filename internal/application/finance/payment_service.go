package finance

import (
	"context"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/application/numbering"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Saga names used for failure records and metrics
const (
	SagaPaymentInvoice  = "payment_invoice_saga"
	SagaJournalAccounts = "journal_account_saga"
)

// ErrInvoiceSyncFailed is returned when a completed payment could not be applied to its invoice
var ErrInvoiceSyncFailed = shared.NewDomainError("INVOICE_SYNC_FAILED", "Payment could not be applied to its invoice")

// CompletePaymentResult reports the payment completion and the outcome of
// applying it to the invoice
type CompletePaymentResult struct {
	application.CommandResult
	InvoiceApplied bool   `json:"invoice_applied"`
	SyncError      string `json:"sync_error,omitempty"`
}

// PaymentService handles payment commands and drives the payment→invoice saga
type PaymentService struct {
	payments finance.PaymentRepository
	invoices finance.InvoiceRepository
	numbers  *numbering.Generator
	failures shared.FailureRecorder
	opts     serviceOptions
}

// NewPaymentService creates a new PaymentService. failures may be nil, in
// which case saga failures are only logged and counted.
func NewPaymentService(
	payments finance.PaymentRepository,
	invoices finance.InvoiceRepository,
	numbers *numbering.Generator,
	failures shared.FailureRecorder,
	opts ...ServiceOption,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		invoices: invoices,
		numbers:  numbers,
		failures: failures,
		opts:     newServiceOptions(opts),
	}
}

// Create registers a pending payment. The invoice must be approved and the
// amount must not exceed its remaining balance at this point; the invoice
// checks again when the payment is applied.
func (s *PaymentService) Create(ctx context.Context, cmd CreatePaymentCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	inv, err := s.invoices.Load(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return application.CommandResult{}, err
	}
	switch inv.Status() {
	case finance.InvoiceStatusApproved:
	case finance.InvoiceStatusPaid:
		return application.CommandResult{}, shared.ErrOverpayment.
			WithDetail("amount", cmd.Amount.String()).
			WithDetail("remaining_balance", inv.RemainingBalance().String())
	default:
		return application.CommandResult{}, finance.ErrInvoiceNotApproved.WithDetail("status", inv.Status().String())
	}
	amount, err := money(cmd.Amount, inv.State().Currency)
	if err != nil {
		return application.CommandResult{}, err
	}
	if over, _ := amount.GreaterThan(inv.RemainingBalance()); over {
		return application.CommandResult{}, shared.ErrOverpayment.
			WithDetail("amount", amount.String()).
			WithDetail("remaining_balance", inv.RemainingBalance().String())
	}

	number := cmd.Number
	if number == "" {
		number = s.numbers.PaymentNumber()
	}
	payment, err := finance.CreatePayment(cmd.TenantID, number, cmd.InvoiceID, amount, finance.PaymentMethod(cmd.Method))
	if err != nil {
		return application.CommandResult{}, err
	}
	result, err := create(ctx, s.payments.Save, payment)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("payment created",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("payment_id", payment.ID().String()),
		zap.String("invoice_id", cmd.InvoiceID.String()),
		zap.String("amount", amount.String()),
	)
	return result, nil
}

// InitiateWallet starts a mobile wallet payment
func (s *PaymentService) InitiateWallet(ctx context.Context, cmd InitiateWalletCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.PaymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			return p.InitiateWallet(cmd.WalletReference, s.opts.clock.Now())
		},
	)
}

// Complete settles a payment and then applies it to its invoice.
//
// The two steps write to different streams. Once the payment is completed
// the call succeeds even when the invoice update fails: the payment then
// carries a PaymentInvoiceSyncFailed event, a saga failure is recorded and
// RetryInvoiceApplication can finish the work later.
func (s *PaymentService) Complete(ctx context.Context, cmd CompletePaymentCommand) (CompletePaymentResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return CompletePaymentResult{}, err
	}
	var completed shared.DomainEvent
	result, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.PaymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			if err := p.Complete(cmd.ExternalReference, s.opts.clock.Now()); err != nil {
				return err
			}
			events := p.UncommittedEvents()
			completed = events[len(events)-1]
			return nil
		},
	)
	if err != nil {
		return CompletePaymentResult{}, err
	}
	s.opts.logger.Info("payment completed",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("payment_id", cmd.PaymentID.String()),
	)

	out, err := s.applyToInvoice(ctx, cmd.TenantID, cmd.PaymentID, completed)
	if err != nil {
		// the completion is durable; the missing invoice step shows up as an unapplied payment
		s.opts.logger.Error("payment invoice step could not start",
			zap.String("payment_id", cmd.PaymentID.String()),
			zap.Error(err),
		)
		return CompletePaymentResult{CommandResult: result, SyncError: err.Error()}, nil
	}
	out.EventCount += result.EventCount
	return out, nil
}

// RetryInvoiceApplication applies a completed payment to its invoice again.
// It is a no-op for payments that were already applied.
func (s *PaymentService) RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (CompletePaymentResult, error) {
	out, err := s.applyToInvoice(ctx, tenantID, paymentID, nil)
	if err != nil {
		return out, err
	}
	if !out.InvoiceApplied {
		return out, ErrInvoiceSyncFailed.WithDetail("payment_id", paymentID.String()).WithDetail("reason", out.SyncError)
	}
	return out, nil
}

// applyToInvoice runs the second saga step and records its outcome on the
// payment. trigger is the event reported when the failure cannot be
// recorded on the payment itself.
func (s *PaymentService) applyToInvoice(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID, trigger shared.DomainEvent) (CompletePaymentResult, error) {
	payment, err := s.payments.Load(ctx, tenantID, paymentID)
	if err != nil {
		return CompletePaymentResult{}, err
	}
	if payment.InvoiceApplied() {
		return CompletePaymentResult{CommandResult: application.ResultOf(payment, 0), InvoiceApplied: true}, nil
	}
	if !payment.Status().IsSettled() {
		return CompletePaymentResult{}, finance.ErrPaymentNotCompleted.WithDetail("status", payment.Status().String())
	}

	invoiceResult, applyErr := execute(ctx, s.opts.retry,
		func(ctx context.Context) (*finance.Invoice, error) {
			return s.invoices.Load(ctx, tenantID, payment.InvoiceID())
		},
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			_, err := inv.RecordPayment(payment.ID(), payment.Amount())
			return err
		},
	)
	if applyErr == nil {
		result, err := execute(ctx, s.opts.retry,
			s.loader(tenantID, paymentID),
			s.payments.Save,
			func(p *finance.Payment) error {
				return p.MarkAppliedToInvoice(s.opts.clock.Now())
			},
		)
		if err != nil {
			return CompletePaymentResult{}, err
		}
		result.EventCount += invoiceResult.EventCount
		return CompletePaymentResult{CommandResult: result, InvoiceApplied: true}, nil
	}

	s.opts.logger.Warn("payment could not be applied to invoice",
		zap.String("tenant_id", tenantID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.String("invoice_id", payment.InvoiceID().String()),
		zap.Error(applyErr),
	)
	s.opts.metrics.RecordSagaFailure(ctx, SagaPaymentInvoice)

	var failed shared.DomainEvent
	result, markErr := execute(ctx, s.opts.retry,
		s.loader(tenantID, paymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			if err := p.MarkInvoiceSyncFailed(applyErr.Error(), s.opts.clock.Now()); err != nil {
				return err
			}
			events := p.UncommittedEvents()
			failed = events[len(events)-1]
			return nil
		},
	)
	if markErr != nil {
		s.opts.logger.Error("failed to mark payment invoice sync failure",
			zap.String("payment_id", paymentID.String()),
			zap.Error(markErr),
		)
		result = application.ResultOf(payment, 0)
	}
	if failed != nil {
		trigger = failed
	}
	recordSagaFailure(ctx, s.failures, s.opts.logger, SagaPaymentInvoice, trigger, applyErr)
	return CompletePaymentResult{CommandResult: result, SyncError: applyErr.Error()}, nil
}

// Fail marks a pending payment as failed
func (s *PaymentService) Fail(ctx context.Context, cmd FailPaymentCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.PaymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			return p.Fail(cmd.Reason, s.opts.clock.Now())
		},
	)
}

// Reconcile matches a completed payment to a bank statement line
func (s *PaymentService) Reconcile(ctx context.Context, cmd ReconcilePaymentCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.PaymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			return p.Reconcile(cmd.BankReference, s.opts.clock.Now())
		},
	)
}

// Reverse reverses a completed payment. The invoice keeps the recorded
// amount; refunds are booked with a journal.
func (s *PaymentService) Reverse(ctx context.Context, cmd ReversePaymentCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.PaymentID),
		s.payments.Save,
		func(p *finance.Payment) error {
			return p.Reverse(cmd.Reason, s.opts.clock.Now())
		},
	)
}

func (s *PaymentService) loader(tenantID valueobject.TenantID, id valueobject.PaymentID) func(context.Context) (*finance.Payment, error) {
	return func(ctx context.Context) (*finance.Payment, error) {
		return s.payments.Load(ctx, tenantID, id)
	}
}

// recordSagaFailure stores a saga failure for reconciliation. A nil recorder
// or trigger leaves only the log line.
func recordSagaFailure(ctx context.Context, recorder shared.FailureRecorder, logger *zap.Logger, saga string, trigger shared.DomainEvent, cause error) {
	if recorder == nil || trigger == nil {
		return
	}
	failure := shared.NewProcessingFailure(shared.FailureKindSaga, saga, trigger, cause)
	if err := recorder.Record(ctx, failure); err != nil {
		logger.Error("failed to record saga failure",
			zap.String("saga", saga),
			zap.String("event_id", trigger.EventID().String()),
			zap.Error(err),
		)
	}
}
