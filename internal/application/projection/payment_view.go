package projection

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// PaymentViewProjection maintains payment_views, including the saga outcome
// flags the reconciliation report reads
type PaymentViewProjection struct {
	views       report.PaymentViewRepository
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewPaymentViewProjection creates the payment view projection
func NewPaymentViewProjection(views report.PaymentViewRepository, invalidator *Invalidator, logger *zap.Logger) *PaymentViewProjection {
	return &PaymentViewProjection{views: views, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *PaymentViewProjection) Name() string {
	return PaymentViews
}

// EventTypes returns the event types this handler is interested in
func (p *PaymentViewProjection) EventTypes() []string {
	return []string{
		finance.EventTypePaymentCreated,
		finance.EventTypePaymentWalletInitiated,
		finance.EventTypePaymentCompleted,
		finance.EventTypePaymentFailed,
		finance.EventTypePaymentReconciled,
		finance.EventTypePaymentReversed,
		finance.EventTypePaymentAppliedToInvoice,
		finance.EventTypePaymentInvoiceSyncFailed,
	}
}

// Handle folds one payment event into its view
func (p *PaymentViewProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())
	paymentID := valueobject.PaymentID(event.AggregateID())

	var view *report.PaymentView
	if created, ok := event.(*finance.PaymentCreatedEvent); ok {
		view = &report.PaymentView{
			ID:        created.PaymentID,
			TenantID:  tenantID,
			Number:    created.Number,
			InvoiceID: created.InvoiceID,
			Amount:    created.Amount.Amount(),
			Currency:  created.Amount.Currency(),
			Method:    created.Method,
			Status:    finance.PaymentStatusPending,
			CreatedAt: created.OccurredAt(),
		}
	} else {
		current, err := p.views.FindByID(ctx, tenantID, paymentID)
		if err != nil {
			return fmt.Errorf("payment view %s: %w", paymentID, err)
		}
		if stale(current.LastSequence, event) {
			return nil
		}
		view = current

		switch e := event.(type) {
		case *finance.PaymentWalletInitiatedEvent:
			view.Status = finance.PaymentStatusWalletInitiated
			view.WalletReference = e.WalletReference
		case *finance.PaymentCompletedEvent:
			completedAt := e.CompletedAt
			view.Status = finance.PaymentStatusCompleted
			view.ExternalReference = e.ExternalReference
			view.CompletedAt = &completedAt
		case *finance.PaymentFailedEvent:
			view.Status = finance.PaymentStatusFailed
			view.FailureReason = e.Reason
		case *finance.PaymentReconciledEvent:
			view.Status = finance.PaymentStatusReconciled
			view.BankReference = e.BankReference
		case *finance.PaymentReversedEvent:
			view.Status = finance.PaymentStatusReversed
			view.FailureReason = e.Reason
		case *finance.PaymentAppliedToInvoiceEvent:
			view.InvoiceApplied = true
			view.SyncError = ""
		case *finance.PaymentInvoiceSyncFailedEvent:
			view.SyncError = e.Reason
			view.SyncAttempts = e.Attempt
		default:
			return unexpected(PaymentViews, event)
		}
	}
	view.LastSequence = event.Sequence()
	view.UpdatedAt = event.OccurredAt()

	written, err := p.views.Upsert(ctx, view)
	if err != nil {
		return fmt.Errorf("failed to write payment view %s: %w", paymentID, err)
	}
	if !written {
		return nil
	}
	p.invalidator.Entity(ctx, tenantID, cache.KindPayment, paymentID)
	return nil
}
