package finance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/ledger/internal/application/numbering"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Mocks and repository wrappers
// =============================================================================

// MockFailureRecorder is a mock implementation of shared.FailureRecorder
type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) Record(ctx context.Context, failure *shared.ProcessingFailure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

var errStorageDown = errors.New("storage unavailable")

// flakyInvoiceRepository fails every Save while failing is set
type flakyInvoiceRepository struct {
	finance.InvoiceRepository
	failing atomic.Bool
}

func (r *flakyInvoiceRepository) Save(ctx context.Context, invoice *finance.Invoice) error {
	if r.failing.Load() {
		return errStorageDown
	}
	return r.InvoiceRepository.Save(ctx, invoice)
}

// flakyJournalRepository fails the next Save of the journal with the given id
type flakyJournalRepository struct {
	finance.JournalRepository
	failFor atomic.Value
}

func (r *flakyJournalRepository) failNextSave(id valueobject.JournalID) {
	r.failFor.Store(id)
}

func (r *flakyJournalRepository) Save(ctx context.Context, journal *finance.JournalEntry) error {
	if id, ok := r.failFor.Load().(valueobject.JournalID); ok && id == journal.ID() {
		r.failFor.Store(valueobject.JournalID{})
		return errStorageDown
	}
	return r.JournalRepository.Save(ctx, journal)
}

// =============================================================================
// Fixture
// =============================================================================

var fixtureNow = time.Date(2025, time.October, 15, 9, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	ctx      context.Context
	tenantID valueobject.TenantID
	store    *eventstore.MemoryEventStore
	clock    *shared.FixedClock
	calendar finance.FiscalCalendar
	numbers  *numbering.Generator
	failures *MockFailureRecorder

	accountRepo *eventstore.AccountRepository
	invoiceRepo *flakyInvoiceRepository
	paymentRepo *eventstore.PaymentRepository
	journalRepo *flakyJournalRepository
	periodsRepo *eventstore.AccountingPeriodsRepository
	accounts    *AccountService
	invoices    *InvoiceService
	payments    *PaymentService
	journals    *JournalService
	periods     *PeriodService
	postingSaga *PostingSaga
	bus         *event.InMemoryEventBus
	catchUp     *event.CatchUpProcessor
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := eventstore.NewMemoryEventStore()
	clock := &shared.FixedClock{At: fixtureNow}
	calendar := finance.DefaultFiscalCalendar()
	numbers := numbering.New(numbering.WithClock(clock))
	failures := new(MockFailureRecorder)

	opts := []ServiceOption{
		WithClock(clock),
		WithRetryPolicy(eventstore.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
		WithLogger(zap.NewNop()),
	}

	f := &ledgerFixture{
		ctx:         context.Background(),
		tenantID:    valueobject.NewTenantID(),
		store:       store,
		clock:       clock,
		calendar:    calendar,
		numbers:     numbers,
		failures:    failures,
		accountRepo: eventstore.NewAccountRepository(store),
		invoiceRepo: &flakyInvoiceRepository{InvoiceRepository: eventstore.NewInvoiceRepository(store)},
		paymentRepo: eventstore.NewPaymentRepository(store),
		journalRepo: &flakyJournalRepository{JournalRepository: eventstore.NewJournalRepository(store)},
		periodsRepo: eventstore.NewAccountingPeriodsRepository(store, calendar),
	}
	f.accounts = NewAccountService(f.accountRepo, opts...)
	f.invoices = NewInvoiceService(f.invoiceRepo, calendar, numbers, opts...)
	f.payments = NewPaymentService(f.paymentRepo, f.invoiceRepo, numbers, failures, opts...)
	f.journals = NewJournalService(f.journalRepo, f.accountRepo, f.periodsRepo, calendar, numbers, opts...)
	f.periods = NewPeriodService(f.periodsRepo, opts...)
	f.postingSaga = NewPostingSaga(f.accountRepo, f.journalRepo, failures, opts...)

	f.bus = event.NewInMemoryEventBus(zap.NewNop())
	f.bus.Subscribe(f.postingSaga)
	f.catchUp = event.NewCatchUpProcessor(store, f.bus, event.NewMemoryCheckpointStore(), event.CatchUpProcessorConfig{
		Name:         "test",
		BatchSize:    50,
		PollInterval: time.Second,
	}, zap.NewNop())
	return f
}

// dispatch runs the catch-up processor until the log is drained, including
// the events the saga appends while handling
func (f *ledgerFixture) dispatch(t *testing.T) {
	t.Helper()
	for i := 0; i < 10; i++ {
		n, err := f.catchUp.CatchUp(f.ctx)
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
	t.Fatal("event log did not drain")
}

func (f *ledgerFixture) openAccount(t *testing.T, code, name string, accountType finance.AccountType) valueobject.AccountID {
	t.Helper()
	result, err := f.accounts.Open(f.ctx, OpenAccountCommand{
		TenantID: f.tenantID,
		Code:     code,
		Name:     name,
		Type:     accountType.String(),
		Currency: "ETB",
	})
	require.NoError(t, err)
	return valueobject.AccountID(result.AggregateID)
}

func (f *ledgerFixture) balanceOf(t *testing.T, id valueobject.AccountID) decimal.Decimal {
	t.Helper()
	account, err := f.accountRepo.Load(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	return account.Balance().Amount()
}

// approvedInvoice creates and approves a 10 x 5000 ETB invoice at the standard rate
func (f *ledgerFixture) approvedInvoice(t *testing.T) valueobject.InvoiceID {
	t.Helper()
	result, err := f.invoices.Create(f.ctx, CreateInvoiceCommand{
		TenantID:   f.tenantID,
		VendorID:   valueobject.NewPartyID(),
		CustomerID: valueobject.NewPartyID(),
		Currency:   "ETB",
		IssueDate:  time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
		Lines: []LineItemCommand{
			{Description: "Consulting days", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(5000), VATCategory: "standard"},
		},
	})
	require.NoError(t, err)
	id := valueobject.InvoiceID(result.AggregateID)
	_, err = f.invoices.Approve(f.ctx, ApproveInvoiceCommand{TenantID: f.tenantID, InvoiceID: id})
	require.NoError(t, err)
	return id
}

func (f *ledgerFixture) loadInvoice(t *testing.T, id valueobject.InvoiceID) *finance.Invoice {
	t.Helper()
	inv, err := f.invoiceRepo.Load(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	return inv
}

func (f *ledgerFixture) loadPayment(t *testing.T, id valueobject.PaymentID) *finance.Payment {
	t.Helper()
	p, err := f.paymentRepo.Load(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	return p
}

func (f *ledgerFixture) loadJournal(t *testing.T, id valueobject.JournalID) *finance.JournalEntry {
	t.Helper()
	j, err := f.journalRepo.Load(f.ctx, f.tenantID, id)
	require.NoError(t, err)
	return j
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
