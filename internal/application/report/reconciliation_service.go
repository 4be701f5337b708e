package report

import (
	"context"

	financeapp "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceApplier repeats the invoice step of the payment saga
type InvoiceApplier interface {
	RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (financeapp.CompletePaymentResult, error)
}

// PostingApplier repeats the account step of the journal saga
type PostingApplier interface {
	RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error
}

// ReconciliationService lists the work the ledger could not finish on its
// own and repairs it on request
type ReconciliationService struct {
	payments report.PaymentViewRepository
	failures shared.FailureRepository
	invoices InvoiceApplier
	postings PostingApplier
	logger   *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	payments report.PaymentViewRepository,
	failures shared.FailureRepository,
	invoices InvoiceApplier,
	postings PostingApplier,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		payments: payments,
		failures: failures,
		invoices: invoices,
		postings: postings,
		logger:   logger,
	}
}

// UnappliedPayments lists settled payments whose invoice was never updated
func (s *ReconciliationService) UnappliedPayments(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[report.PaymentView], error) {
	filter = filter.Normalize()
	items, total, err := s.payments.FindUnapplied(ctx, tenantID, filter)
	if err != nil {
		return shared.Paginated[report.PaymentView]{}, err
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Failures lists open projection and saga failures, newest first. A
// non-empty filter.Search narrows the list to one handler.
func (s *ReconciliationService) Failures(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[*shared.ProcessingFailure], error) {
	filter = filter.Normalize()
	items, total, err := s.failures.FindOpen(ctx, tenantID.UUID(), filter)
	if err != nil {
		return shared.Paginated[*shared.ProcessingFailure]{}, err
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// RetryInvoiceApplication applies a settled payment to its invoice and, on
// success, resolves the payment's open saga failures
func (s *ReconciliationService) RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (financeapp.CompletePaymentResult, error) {
	result, err := s.invoices.RetryInvoiceApplication(ctx, tenantID, paymentID)
	if err != nil {
		return result, err
	}
	if err := s.resolveFor(ctx, tenantID, financeapp.SagaPaymentInvoice, paymentID.UUID()); err != nil {
		return result, err
	}
	s.logger.Info("payment applied to invoice on retry",
		zap.String("tenant_id", tenantID.String()),
		zap.String("payment_id", paymentID.String()),
	)
	return result, nil
}

// RetryAccountPostings applies a posted journal to the accounts still
// missing it and, on success, resolves the journal's open saga failures
func (s *ReconciliationService) RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error {
	if err := s.postings.RetryAccountPostings(ctx, tenantID, journalID); err != nil {
		return err
	}
	if err := s.resolveFor(ctx, tenantID, financeapp.SagaJournalAccounts, journalID.UUID()); err != nil {
		return err
	}
	s.logger.Info("journal applied to accounts on retry",
		zap.String("tenant_id", tenantID.String()),
		zap.String("journal_id", journalID.String()),
	)
	return nil
}

// ResolveFailure marks a failure as handled by hand
func (s *ReconciliationService) ResolveFailure(ctx context.Context, tenantID valueobject.TenantID, id uuid.UUID) error {
	failure, err := s.failures.FindByID(ctx, tenantID.UUID(), id)
	if err != nil {
		return err
	}
	if err := failure.Resolve(); err != nil {
		return shared.ErrInvalidState.WithDetail("failure", err.Error())
	}
	return s.failures.Update(ctx, failure)
}

// resolveFor resolves every open failure of handler on one aggregate
func (s *ReconciliationService) resolveFor(ctx context.Context, tenantID valueobject.TenantID, handler string, aggregateID uuid.UUID) error {
	filter := shared.Filter{Page: 1, PageSize: shared.MaxPageSize, Search: handler}
	for {
		failures, total, err := s.failures.FindOpen(ctx, tenantID.UUID(), filter)
		if err != nil {
			return err
		}
		resolved := 0
		for _, f := range failures {
			if f.AggregateID != aggregateID {
				continue
			}
			if err := f.Resolve(); err != nil {
				continue
			}
			if err := s.failures.Update(ctx, f); err != nil {
				return err
			}
			resolved++
		}
		if resolved > 0 {
			// resolved rows leave the open set, so this page now holds later rows
			continue
		}
		if int64(filter.Page*filter.PageSize) >= total {
			return nil
		}
		filter.Page++
	}
}
