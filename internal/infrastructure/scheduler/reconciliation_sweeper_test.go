package scheduler

import (
	"context"
	"testing"
	"time"

	financeapp "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) UnappliedPayments(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[report.PaymentView], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[report.PaymentView]), args.Error(1)
}

func (m *MockReconciler) Failures(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[*shared.ProcessingFailure], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[*shared.ProcessingFailure]), args.Error(1)
}

func (m *MockReconciler) RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (financeapp.CompletePaymentResult, error) {
	args := m.Called(ctx, tenantID, paymentID)
	return args.Get(0).(financeapp.CompletePaymentResult), args.Error(1)
}

func (m *MockReconciler) RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error {
	args := m.Called(ctx, tenantID, journalID)
	return args.Error(0)
}

type staticTenants struct {
	unapplied []valueobject.TenantID
	failing   []uuid.UUID
	err       error
}

func (s staticTenants) UnappliedTenants(context.Context) ([]valueobject.TenantID, error) {
	return s.unapplied, s.err
}

func (s staticTenants) OpenTenants(_ context.Context, handlers ...string) ([]uuid.UUID, error) {
	if len(handlers) != 1 || handlers[0] != financeapp.SagaJournalAccounts {
		return nil, nil
	}
	return s.failing, s.err
}

func paymentPage(ids ...valueobject.PaymentID) shared.Paginated[report.PaymentView] {
	items := make([]report.PaymentView, len(ids))
	for i, id := range ids {
		items[i] = report.PaymentView{ID: id}
	}
	return shared.Paginated[report.PaymentView]{Items: items, Total: int64(len(items)), Page: 1}
}

func failurePage(aggregateIDs ...uuid.UUID) shared.Paginated[*shared.ProcessingFailure] {
	items := make([]*shared.ProcessingFailure, len(aggregateIDs))
	for i, id := range aggregateIDs {
		items[i] = &shared.ProcessingFailure{
			ID:          uuid.New(),
			Handler:     financeapp.SagaJournalAccounts,
			AggregateID: id,
			Status:      shared.FailureStatusOpen,
		}
	}
	return shared.Paginated[*shared.ProcessingFailure]{Items: items, Total: int64(len(items)), Page: 1}
}

var journalFailureFilter = shared.Filter{Page: 1, PageSize: shared.MaxPageSize, Search: financeapp.SagaJournalAccounts}

func TestNewReconciliationSweeper_Defaults(t *testing.T) {
	s := NewReconciliationSweeper(SweeperConfig{BatchSize: 1000}, new(MockReconciler), staticTenants{}, staticTenants{}, zap.NewNop())

	assert.Equal(t, 5*time.Minute, s.config.Interval)
	assert.Equal(t, 50, s.config.BatchSize)
}

func TestReconciliationSweeper_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("retries payments and journals of every tenant once", func(t *testing.T) {
		paying := valueobject.NewTenantID()
		both := valueobject.NewTenantID()
		stuck, flaky := valueobject.NewPaymentID(), valueobject.NewPaymentID()
		journal := valueobject.NewJournalID()

		r := new(MockReconciler)
		r.On("UnappliedPayments", ctx, paying, shared.Filter{Page: 1, PageSize: 10}).Return(paymentPage(stuck, flaky), nil)
		r.On("UnappliedPayments", ctx, both, shared.Filter{Page: 1, PageSize: 10}).Return(paymentPage(), nil)
		r.On("RetryInvoiceApplication", ctx, paying, stuck).Return(financeapp.CompletePaymentResult{InvoiceApplied: true}, nil)
		r.On("RetryInvoiceApplication", ctx, paying, flaky).Return(financeapp.CompletePaymentResult{}, financeapp.ErrInvoiceSyncFailed)
		r.On("Failures", ctx, paying, journalFailureFilter).Return(failurePage(), nil)
		// two failed lines of the same journal
		r.On("Failures", ctx, both, journalFailureFilter).Return(failurePage(journal.UUID(), journal.UUID()), nil)
		r.On("RetryAccountPostings", ctx, both, journal).Return(nil).Once()

		tenants := staticTenants{
			unapplied: []valueobject.TenantID{paying, both},
			failing:   []uuid.UUID{both.UUID()},
		}
		s := NewReconciliationSweeper(SweeperConfig{Interval: time.Hour, BatchSize: 10}, r, tenants, tenants, zap.NewNop())

		result, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{
			Tenants:          2,
			PaymentsApplied:  1,
			PaymentsFailed:   1,
			JournalsRepaired: 1,
		}, result)
		r.AssertExpectations(t)
	})

	t.Run("batch size caps the journals retried", func(t *testing.T) {
		tenantID := valueobject.NewTenantID()
		first, second := valueobject.NewJournalID(), valueobject.NewJournalID()

		r := new(MockReconciler)
		r.On("UnappliedPayments", ctx, tenantID, mock.Anything).Return(paymentPage(), nil)
		r.On("Failures", ctx, tenantID, journalFailureFilter).Return(failurePage(first.UUID(), second.UUID()), nil)
		r.On("RetryAccountPostings", ctx, tenantID, first).Return(assert.AnError)

		tenants := staticTenants{failing: []uuid.UUID{tenantID.UUID()}}
		s := NewReconciliationSweeper(SweeperConfig{Interval: time.Hour, BatchSize: 1}, r, tenants, tenants, zap.NewNop())

		result, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.JournalsFailed)
		r.AssertNotCalled(t, "RetryAccountPostings", ctx, tenantID, second)
	})

	t.Run("tenant listing error aborts the sweep", func(t *testing.T) {
		r := new(MockReconciler)
		tenants := staticTenants{err: assert.AnError}
		s := NewReconciliationSweeper(DefaultSweeperConfig(), r, tenants, tenants, zap.NewNop())

		_, err := s.Sweep(ctx)
		assert.ErrorIs(t, err, assert.AnError)
		r.AssertNotCalled(t, "UnappliedPayments", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReconciliationSweeper_StartStop(t *testing.T) {
	r := new(MockReconciler)
	s := NewReconciliationSweeper(SweeperConfig{Interval: time.Hour}, r, staticTenants{}, staticTenants{}, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	// starting twice is a no-op
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(ctx))
}
