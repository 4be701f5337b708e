package finance

import (
	"fmt"
	"testing"
	"time"

	"github.com/erp/ledger/internal/application/projection"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type queryFixture struct {
	*ledgerFixture
	cache   *cache.MemoryStore
	keys    cache.Keys
	queries *QueryService
}

// newQueryFixture adds an sqlite read model, the projections and a cached
// query service to the ledger fixture
func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	f := newLedgerFixture(t)

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

	stores := ReadStores{
		Accounts:      persistence.NewGormAccountViewRepository(db),
		Invoices:      persistence.NewGormInvoiceViewRepository(db),
		Payments:      persistence.NewGormPaymentViewRepository(db),
		Journals:      persistence.NewGormJournalViewRepository(db),
		Balances:      persistence.NewGormAccountBalanceRepository(db),
		Summaries:     persistence.NewGormPeriodSummaryRepository(db),
		ClosedPeriods: persistence.NewGormClosedPeriodRepository(db),
	}
	memory := cache.NewMemoryStore()
	t.Cleanup(func() { _ = memory.Close() })
	keys := cache.NewKeys("test")

	invalidator := projection.NewInvalidator(memory, keys, zap.NewNop())
	for _, p := range projection.All(projection.Repositories(stores), f.calendar, invalidator, zap.NewNop()) {
		f.bus.Subscribe(p)
	}

	return &queryFixture{
		ledgerFixture: f,
		cache:         memory,
		keys:          keys,
		queries:       NewQueryService(stores, memory, keys, DefaultCacheTTL()),
	}
}

func TestQueryService_AccountViewFollowsEvents(t *testing.T) {
	f := newQueryFixture(t)
	id := f.openAccount(t, "1000", "Cash", finance.AccountTypeAsset)
	f.dispatch(t)

	view, err := f.queries.GetAccount(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, "Cash", view.Name)
	assert.True(t, view.Active)

	_, err = f.accounts.Rename(f.ctx, RenameAccountCommand{TenantID: f.tenantID, AccountID: id, Name: "Cash on hand"})
	require.NoError(t, err)

	// the cached view is served until the rename is projected
	view, err = f.queries.GetAccount(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, "Cash", view.Name)

	f.dispatch(t)
	view, err = f.queries.GetAccount(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, "Cash on hand", view.Name)

	t.Run("rename drops cached reports", func(t *testing.T) {
		key := f.keys.TrialBalance(f.tenantID, "FY2025/26")
		require.NoError(t, f.cache.Set(f.ctx, key, []byte(`{"rows":[]}`), time.Minute))

		_, err := f.accounts.Rename(f.ctx, RenameAccountCommand{TenantID: f.tenantID, AccountID: id, Name: "Main cash"})
		require.NoError(t, err)
		f.dispatch(t)

		_, found, err := f.cache.Get(f.ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.queries.GetAccount(f.ctx, f.tenantID, valueobject.NewAccountID())
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("another tenant sees nothing", func(t *testing.T) {
		_, err := f.queries.GetAccount(f.ctx, valueobject.NewTenantID(), id)
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestQueryService_JournalsAndBalances(t *testing.T) {
	f := newQueryFixture(t)
	accts := f.journalAccounts(t)
	journalID := f.postJournal(t, accts, "1000")
	f.dispatch(t)

	journal, err := f.queries.GetJournal(f.ctx, f.tenantID, journalID)
	require.NoError(t, err)
	assert.Equal(t, finance.JournalStatusPosted, journal.Status)
	assert.True(t, journal.TotalDebit.Equal(decimal.NewFromInt(1000)))

	balance, err := f.queries.GetAccountBalance(f.ctx, f.tenantID, accts.cash, "FY2025/26")
	require.NoError(t, err)
	assert.True(t, balance.DebitTotal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(1), balance.PostingCount)

	cash, err := f.queries.GetAccount(f.ctx, f.tenantID, accts.cash)
	require.NoError(t, err)
	assert.True(t, cash.Balance.Equal(decimal.NewFromInt(1000)))

	_, err = f.journals.Reverse(f.ctx, ReverseJournalCommand{TenantID: f.tenantID, JournalID: journalID, Reason: "wrong amount"})
	require.NoError(t, err)
	f.dispatch(t)

	balance, err = f.queries.GetAccountBalance(f.ctx, f.tenantID, accts.cash, "FY2025/26")
	require.NoError(t, err)
	assert.True(t, balance.DebitTotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, balance.CreditTotal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(2), balance.PostingCount)

	cash, err = f.queries.GetAccount(f.ctx, f.tenantID, accts.cash)
	require.NoError(t, err)
	assert.True(t, cash.Balance.IsZero())

	list, err := f.queries.ListJournals(f.ctx, f.tenantID, report.JournalViewFilter{FiscalPeriod: "FY2025/26-P04"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)

	original, err := f.queries.GetJournal(f.ctx, f.tenantID, journalID)
	require.NoError(t, err)
	assert.Equal(t, finance.JournalStatusReversed, original.Status)
	require.NotNil(t, original.ReversedByID)
	assert.Equal(t, finance.ReversalIDFor(journalID), *original.ReversedByID)
}

func TestQueryService_InvoicesPaymentsAndSummaries(t *testing.T) {
	f := newQueryFixture(t)
	invoiceID := f.approvedInvoice(t)
	paymentID := f.createPayment(t, invoiceID, 57500, finance.PaymentMethodBankTransfer)
	f.dispatch(t)

	unpaid, err := f.queries.ListInvoices(f.ctx, f.tenantID, report.InvoiceViewFilter{Status: finance.InvoiceStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), unpaid.Total)

	_, err = f.payments.Complete(f.ctx, CompletePaymentCommand{TenantID: f.tenantID, PaymentID: paymentID})
	require.NoError(t, err)
	f.dispatch(t)

	invoice, err := f.queries.GetInvoice(f.ctx, f.tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusPaid, invoice.Status)
	assert.True(t, invoice.GrandTotal.Equal(decimal.NewFromInt(57500)))
	assert.True(t, invoice.RemainingBalance.IsZero())

	// the cached list was dropped by the invoice projection
	unpaid, err = f.queries.ListInvoices(f.ctx, f.tenantID, report.InvoiceViewFilter{Status: finance.InvoiceStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(0), unpaid.Total)

	payment, err := f.queries.GetPayment(f.ctx, f.tenantID, paymentID)
	require.NoError(t, err)
	assert.Equal(t, finance.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.InvoiceApplied)

	payments, err := f.queries.ListPayments(f.ctx, f.tenantID, report.PaymentViewFilter{InvoiceID: &invoiceID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), payments.Total)

	summary, err := f.queries.GetPeriodSummary(f.ctx, f.tenantID, "FY2025/26-P04")
	require.NoError(t, err)
	assert.True(t, summary.InvoicedAmount.Equal(decimal.NewFromInt(57500)))
	assert.True(t, summary.VATAmount.Equal(decimal.NewFromInt(7500)))
	assert.True(t, summary.PaidAmount.Equal(decimal.NewFromInt(57500)))

	summaries, err := f.queries.ListPeriodSummaries(f.ctx, f.tenantID, "FY2025/26")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestQueryService_ClosedPeriods(t *testing.T) {
	f := newQueryFixture(t)
	_, err := f.periods.Close(f.ctx, ClosePeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P01", ClosedBy: "controller"})
	require.NoError(t, err)
	f.dispatch(t)

	closed, err := f.queries.ListClosedPeriods(f.ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "FY2025/26-P01", closed[0].Label)
	assert.True(t, closed[0].End.Before(time.Date(2025, time.August, 2, 0, 0, 0, 0, time.UTC)))

	_, err = f.periods.Reopen(f.ctx, ReopenPeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P01", Reason: "audit adjustment"})
	require.NoError(t, err)
	f.dispatch(t)

	closed, err = f.queries.ListClosedPeriods(f.ctx, f.tenantID)
	require.NoError(t, err)
	assert.Empty(t, closed)
}
