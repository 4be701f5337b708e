package finance

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
)

// ReadStores groups the read-model repositories the query service reads from
type ReadStores struct {
	Accounts      report.AccountViewRepository
	Invoices      report.InvoiceViewRepository
	Payments      report.PaymentViewRepository
	Journals      report.JournalViewRepository
	Balances      report.AccountBalanceRepository
	Summaries     report.PeriodSummaryRepository
	ClosedPeriods report.ClosedPeriodRepository
}

// CacheTTL sets how long query results stay cached
type CacheTTL struct {
	Entity time.Duration
	List   time.Duration
}

// DefaultCacheTTL returns the default query cache lifetimes
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{Entity: 5 * time.Minute, List: time.Minute}
}

// QueryService answers reads from the projected read model, through the cache.
// Reads may lag the event log briefly.
type QueryService struct {
	stores ReadStores
	cache  shared.Cache
	keys   cache.Keys
	ttl    CacheTTL
}

// NewQueryService creates a new QueryService. A nil cache disables caching.
func NewQueryService(stores ReadStores, c shared.Cache, keys cache.Keys, ttl CacheTTL) *QueryService {
	if c == nil {
		c = cache.NoopStore{}
	}
	return &QueryService{stores: stores, cache: c, keys: keys, ttl: ttl}
}

// GetAccount returns one account view
func (s *QueryService) GetAccount(ctx context.Context, tenantID valueobject.TenantID, id valueobject.AccountID) (*report.AccountView, error) {
	return cache.GetOrLoad(ctx, s.cache, s.keys.Entity(tenantID, cache.KindAccount, id), s.ttl.Entity,
		func(ctx context.Context) (*report.AccountView, error) {
			return s.stores.Accounts.FindByID(ctx, tenantID, id)
		})
}

// ListAccounts lists account views, filtered by type and active flag
func (s *QueryService) ListAccounts(ctx context.Context, tenantID valueobject.TenantID, filter report.AccountViewFilter) (shared.Paginated[report.AccountView], error) {
	filter.Filter = filter.Normalize()
	return cache.GetOrLoad(ctx, s.cache, s.keys.List(tenantID, cache.KindAccount, filter), s.ttl.List,
		func(ctx context.Context) (shared.Paginated[report.AccountView], error) {
			items, total, err := s.stores.Accounts.FindAll(ctx, tenantID, filter)
			if err != nil {
				return shared.Paginated[report.AccountView]{}, err
			}
			return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
		})
}

// GetInvoice returns one invoice view
func (s *QueryService) GetInvoice(ctx context.Context, tenantID valueobject.TenantID, id valueobject.InvoiceID) (*report.InvoiceView, error) {
	return cache.GetOrLoad(ctx, s.cache, s.keys.Entity(tenantID, cache.KindInvoice, id), s.ttl.Entity,
		func(ctx context.Context) (*report.InvoiceView, error) {
			return s.stores.Invoices.FindByID(ctx, tenantID, id)
		})
}

// ListInvoices lists invoice views, filtered by status, customer and fiscal year
func (s *QueryService) ListInvoices(ctx context.Context, tenantID valueobject.TenantID, filter report.InvoiceViewFilter) (shared.Paginated[report.InvoiceView], error) {
	filter.Filter = filter.Normalize()
	return cache.GetOrLoad(ctx, s.cache, s.keys.List(tenantID, cache.KindInvoice, filter), s.ttl.List,
		func(ctx context.Context) (shared.Paginated[report.InvoiceView], error) {
			items, total, err := s.stores.Invoices.FindAll(ctx, tenantID, filter)
			if err != nil {
				return shared.Paginated[report.InvoiceView]{}, err
			}
			return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
		})
}

// GetPayment returns one payment view
func (s *QueryService) GetPayment(ctx context.Context, tenantID valueobject.TenantID, id valueobject.PaymentID) (*report.PaymentView, error) {
	return cache.GetOrLoad(ctx, s.cache, s.keys.Entity(tenantID, cache.KindPayment, id), s.ttl.Entity,
		func(ctx context.Context) (*report.PaymentView, error) {
			return s.stores.Payments.FindByID(ctx, tenantID, id)
		})
}

// ListPayments lists payment views, filtered by invoice and status
func (s *QueryService) ListPayments(ctx context.Context, tenantID valueobject.TenantID, filter report.PaymentViewFilter) (shared.Paginated[report.PaymentView], error) {
	filter.Filter = filter.Normalize()
	return cache.GetOrLoad(ctx, s.cache, s.keys.List(tenantID, cache.KindPayment, filter), s.ttl.List,
		func(ctx context.Context) (shared.Paginated[report.PaymentView], error) {
			items, total, err := s.stores.Payments.FindAll(ctx, tenantID, filter)
			if err != nil {
				return shared.Paginated[report.PaymentView]{}, err
			}
			return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
		})
}

// GetJournal returns one journal view
func (s *QueryService) GetJournal(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (*report.JournalView, error) {
	return cache.GetOrLoad(ctx, s.cache, s.keys.Entity(tenantID, cache.KindJournal, id), s.ttl.Entity,
		func(ctx context.Context) (*report.JournalView, error) {
			return s.stores.Journals.FindByID(ctx, tenantID, id)
		})
}

// ListJournals lists journal views, filtered by fiscal period and status
func (s *QueryService) ListJournals(ctx context.Context, tenantID valueobject.TenantID, filter report.JournalViewFilter) (shared.Paginated[report.JournalView], error) {
	filter.Filter = filter.Normalize()
	return cache.GetOrLoad(ctx, s.cache, s.keys.List(tenantID, cache.KindJournal, filter), s.ttl.List,
		func(ctx context.Context) (shared.Paginated[report.JournalView], error) {
			items, total, err := s.stores.Journals.FindAll(ctx, tenantID, filter)
			if err != nil {
				return shared.Paginated[report.JournalView]{}, err
			}
			return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
		})
}

type balanceKey struct {
	AccountID  valueobject.AccountID `json:"account_id"`
	FiscalYear string                `json:"fiscal_year"`
}

// GetAccountBalance returns one account's activity in a fiscal year. It is
// cached under the balance list namespace, which every posting clears.
func (s *QueryService) GetAccountBalance(ctx context.Context, tenantID valueobject.TenantID, accountID valueobject.AccountID, fiscalYear string) (*report.AccountBalanceView, error) {
	key := s.keys.List(tenantID, cache.KindBalance, balanceKey{AccountID: accountID, FiscalYear: fiscalYear})
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl.List,
		func(ctx context.Context) (*report.AccountBalanceView, error) {
			return s.stores.Balances.FindByAccount(ctx, tenantID, accountID, fiscalYear)
		})
}

// GetPeriodSummary returns the invoice and payment totals of a fiscal period
func (s *QueryService) GetPeriodSummary(ctx context.Context, tenantID valueobject.TenantID, fiscalPeriod string) (*report.PeriodSummaryView, error) {
	key := s.keys.List(tenantID, cache.KindPeriodSummary, fiscalPeriod)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl.List,
		func(ctx context.Context) (*report.PeriodSummaryView, error) {
			return s.stores.Summaries.FindByPeriod(ctx, tenantID, fiscalPeriod)
		})
}

// ListPeriodSummaries returns every period summary of a fiscal year
func (s *QueryService) ListPeriodSummaries(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) ([]report.PeriodSummaryView, error) {
	key := s.keys.List(tenantID, cache.KindPeriodSummary, "year:"+fiscalYear)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl.List,
		func(ctx context.Context) ([]report.PeriodSummaryView, error) {
			return s.stores.Summaries.FindByYear(ctx, tenantID, fiscalYear)
		})
}

// ListClosedPeriods returns the projected closed periods. It is read
// uncached; closing a period is rare and the table is small.
func (s *QueryService) ListClosedPeriods(ctx context.Context, tenantID valueobject.TenantID) ([]report.ClosedPeriodView, error) {
	return s.stores.ClosedPeriods.FindAll(ctx, tenantID)
}
