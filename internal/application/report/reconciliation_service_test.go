package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/ledger/internal/application"
	financeapp "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockInvoiceApplier is a mock implementation of InvoiceApplier
type MockInvoiceApplier struct {
	mock.Mock
}

func (m *MockInvoiceApplier) RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (financeapp.CompletePaymentResult, error) {
	args := m.Called(ctx, tenantID, paymentID)
	return args.Get(0).(financeapp.CompletePaymentResult), args.Error(1)
}

// MockPostingApplier is a mock implementation of PostingApplier
type MockPostingApplier struct {
	mock.Mock
}

func (m *MockPostingApplier) RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error {
	args := m.Called(ctx, tenantID, journalID)
	return args.Error(0)
}

type reconciliationFixture struct {
	ctx      context.Context
	tenantID valueobject.TenantID
	payments *persistence.GormPaymentViewRepository
	failures *persistence.GormProjectionFailureRepository
	invoices *MockInvoiceApplier
	postings *MockPostingApplier
	svc      *ReconciliationService
}

func newReconciliationFixture(t *testing.T) *reconciliationFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))
	require.NoError(t, tenant.NewGuard(persistence.TenantTables()...).Register(db))

	f := &reconciliationFixture{
		ctx:      context.Background(),
		tenantID: valueobject.NewTenantID(),
		payments: persistence.NewGormPaymentViewRepository(db),
		failures: persistence.NewGormProjectionFailureRepository(db),
		invoices: new(MockInvoiceApplier),
		postings: new(MockPostingApplier),
	}
	f.svc = NewReconciliationService(f.payments, f.failures, f.invoices, f.postings, zap.NewNop())
	return f
}

func (f *reconciliationFixture) recordFailure(t *testing.T, handler string, aggregateID uuid.UUID) *shared.ProcessingFailure {
	t.Helper()
	now := time.Now().UTC()
	failure := &shared.ProcessingFailure{
		ID:          uuid.New(),
		TenantID:    f.tenantID.UUID(),
		Kind:        shared.FailureKindSaga,
		Handler:     handler,
		EventID:     uuid.New(),
		EventType:   finance.EventTypePaymentInvoiceSyncFailed,
		AggregateID: aggregateID,
		LastError:   "storage unavailable",
		Attempts:    1,
		Status:      shared.FailureStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.failures.Record(f.ctx, failure))
	return failure
}

func (f *reconciliationFixture) paymentView(t *testing.T, status finance.PaymentStatus, applied bool) valueobject.PaymentID {
	t.Helper()
	now := time.Now().UTC()
	view := &report.PaymentView{
		ID:             valueobject.NewPaymentID(),
		TenantID:       f.tenantID,
		Number:         "PAY-" + uuid.NewString()[:8],
		InvoiceID:      valueobject.NewInvoiceID(),
		Amount:         decimal.NewFromInt(500),
		Currency:       valueobject.ETB,
		Method:         finance.PaymentMethodBankTransfer,
		Status:         status,
		InvoiceApplied: applied,
		LastSequence:   2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := f.payments.Upsert(f.ctx, view)
	require.NoError(t, err)
	return view.ID
}

func TestReconciliationService_UnappliedPayments(t *testing.T) {
	f := newReconciliationFixture(t)
	stuck := f.paymentView(t, finance.PaymentStatusCompleted, false)
	f.paymentView(t, finance.PaymentStatusCompleted, true)
	f.paymentView(t, finance.PaymentStatusPending, false)

	page, err := f.svc.UnappliedPayments(f.ctx, f.tenantID, shared.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, stuck, page.Items[0].ID)
	assert.Equal(t, 1, page.Page)

	other, err := f.svc.UnappliedPayments(f.ctx, valueobject.NewTenantID(), shared.Filter{})
	require.NoError(t, err)
	assert.Zero(t, other.Total)
}

func TestReconciliationService_RetryInvoiceApplication(t *testing.T) {
	f := newReconciliationFixture(t)
	paymentID := valueobject.NewPaymentID()
	failure := f.recordFailure(t, financeapp.SagaPaymentInvoice, paymentID.UUID())
	unrelated := f.recordFailure(t, financeapp.SagaPaymentInvoice, uuid.New())

	t.Run("failed retry keeps the failure open", func(t *testing.T) {
		f.invoices.On("RetryInvoiceApplication", f.ctx, f.tenantID, paymentID).
			Return(financeapp.CompletePaymentResult{}, financeapp.ErrInvoiceSyncFailed).Once()

		_, err := f.svc.RetryInvoiceApplication(f.ctx, f.tenantID, paymentID)
		assert.ErrorIs(t, err, financeapp.ErrInvoiceSyncFailed)

		open, err := f.failures.FindByID(f.ctx, f.tenantID.UUID(), failure.ID)
		require.NoError(t, err)
		assert.True(t, open.IsOpen())
	})

	t.Run("successful retry resolves the payment's failures", func(t *testing.T) {
		f.invoices.On("RetryInvoiceApplication", f.ctx, f.tenantID, paymentID).
			Return(financeapp.CompletePaymentResult{
				CommandResult:  application.CommandResult{AggregateID: paymentID.UUID(), Version: 5, EventCount: 1},
				InvoiceApplied: true,
			}, nil).Once()

		result, err := f.svc.RetryInvoiceApplication(f.ctx, f.tenantID, paymentID)
		require.NoError(t, err)
		assert.True(t, result.InvoiceApplied)

		resolved, err := f.failures.FindByID(f.ctx, f.tenantID.UUID(), failure.ID)
		require.NoError(t, err)
		assert.False(t, resolved.IsOpen())
		assert.NotNil(t, resolved.ResolvedAt)

		still, err := f.failures.FindByID(f.ctx, f.tenantID.UUID(), unrelated.ID)
		require.NoError(t, err)
		assert.True(t, still.IsOpen())
	})

	f.invoices.AssertExpectations(t)
}

func TestReconciliationService_RetryAccountPostings(t *testing.T) {
	f := newReconciliationFixture(t)
	journalID := valueobject.NewJournalID()
	for i := 0; i < 3; i++ {
		f.recordFailure(t, financeapp.SagaJournalAccounts, journalID.UUID())
	}
	paymentFailure := f.recordFailure(t, financeapp.SagaPaymentInvoice, journalID.UUID())

	f.postings.On("RetryAccountPostings", f.ctx, f.tenantID, journalID).Return(nil).Once()
	require.NoError(t, f.svc.RetryAccountPostings(f.ctx, f.tenantID, journalID))

	open, err := f.svc.Failures(f.ctx, f.tenantID, shared.Filter{Search: financeapp.SagaJournalAccounts})
	require.NoError(t, err)
	assert.Zero(t, open.Total)

	// only the journal saga's failures are resolved
	all, err := f.svc.Failures(f.ctx, f.tenantID, shared.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), all.Total)
	assert.Equal(t, paymentFailure.ID, all.Items[0].ID)

	t.Run("applier error is returned", func(t *testing.T) {
		f.postings.On("RetryAccountPostings", f.ctx, f.tenantID, journalID).Return(finance.ErrAccountInactive).Once()
		assert.ErrorIs(t, f.svc.RetryAccountPostings(f.ctx, f.tenantID, journalID), finance.ErrAccountInactive)
	})
}

func TestReconciliationService_ResolveFailure(t *testing.T) {
	f := newReconciliationFixture(t)
	failure := f.recordFailure(t, "account_view", uuid.New())

	require.NoError(t, f.svc.ResolveFailure(f.ctx, f.tenantID, failure.ID))

	t.Run("resolving twice is an invalid state", func(t *testing.T) {
		err := f.svc.ResolveFailure(f.ctx, f.tenantID, failure.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("another tenant cannot see it", func(t *testing.T) {
		err := f.svc.ResolveFailure(f.ctx, valueobject.NewTenantID(), failure.ID)
		assert.True(t, shared.IsNotFound(err))
	})
}
