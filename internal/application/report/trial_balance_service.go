// Package report builds the ledger's financial reports from the projected
// account balances and exposes the reconciliation queue.
package report

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TrialBalanceOption configures a TrialBalanceService
type TrialBalanceOption func(*TrialBalanceService)

// WithReportCache caches generated trial balances for ttl
func WithReportCache(c shared.Cache, keys cache.Keys, ttl time.Duration) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.cache = c
		s.keys = keys
		s.ttl = ttl
	}
}

// WithReportCurrency sets the reporting currency
func WithReportCurrency(currency valueobject.Currency) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.currency = currency
	}
}

// WithReportTolerance sets the variance below which a report is balanced
func WithReportTolerance(tolerance decimal.Decimal) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.tolerance = tolerance
	}
}

// WithReportClock sets the clock stamped on generated reports
func WithReportClock(clock shared.Clock) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.clock = clock
	}
}

// WithReportMetrics sets the metrics sink for generation time
func WithReportMetrics(metrics *telemetry.LedgerMetrics) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.metrics = metrics
	}
}

// WithReportLogger sets the service logger
func WithReportLogger(logger *zap.Logger) TrialBalanceOption {
	return func(s *TrialBalanceService) {
		s.logger = logger
	}
}

// TrialBalanceService generates trial balances and the statements derived
// from them
type TrialBalanceService struct {
	balances  report.AccountBalanceRepository
	calendar  finance.FiscalCalendar
	cache     shared.Cache
	keys      cache.Keys
	ttl       time.Duration
	currency  valueobject.Currency
	tolerance decimal.Decimal
	clock     shared.Clock
	metrics   *telemetry.LedgerMetrics
	logger    *zap.Logger
}

// NewTrialBalanceService creates a new TrialBalanceService
func NewTrialBalanceService(balances report.AccountBalanceRepository, calendar finance.FiscalCalendar, opts ...TrialBalanceOption) *TrialBalanceService {
	s := &TrialBalanceService{
		balances:  balances,
		calendar:  calendar,
		cache:     cache.NoopStore{},
		keys:      cache.NewKeys(""),
		ttl:       15 * time.Minute,
		currency:  valueobject.DefaultCurrency,
		tolerance: finance.PostingTolerance(),
		clock:     shared.SystemClock{},
		metrics:   telemetry.NewNopLedgerMetrics(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns the trial balance of a fiscal year. Balances are
// cumulative through the end of the year. A cached report is returned when
// no posting has touched the tenant since it was built.
func (s *TrialBalanceService) Generate(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) (*finance.TrialBalance, error) {
	startYear, err := s.calendar.ParseYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	key := s.keys.TrialBalance(tenantID, fiscalYear)
	if tb, ok, err := cache.GetJSON[*finance.TrialBalance](ctx, s.cache, key); err == nil && ok {
		return tb, nil
	}

	lease := cache.AcquireFill(ctx, s.cache, key)
	start := time.Now()
	inputs, err := s.balances.CumulativeBalances(ctx, tenantID, startYear)
	if err != nil {
		lease.Release(ctx)
		return nil, err
	}
	tb := finance.BuildTrialBalance(tenantID, fiscalYear, s.currency, inputs, s.clock.Now(),
		finance.WithVarianceTolerance(s.tolerance))
	elapsed := time.Since(start)
	tb.ExecutionDurationMs = elapsed.Milliseconds()
	s.metrics.RecordTrialBalanceDuration(ctx, elapsed)

	if !tb.IsBalanced() {
		s.logger.Warn("trial balance does not balance",
			zap.String("tenant_id", tenantID.String()),
			zap.String("fiscal_year", fiscalYear),
			zap.String("total_debit", tb.TotalDebit.StringFixed(2)),
			zap.String("total_credit", tb.TotalCredit.StringFixed(2)),
		)
	}
	if _, err := lease.Fill(ctx, tb, s.ttl); err != nil {
		s.logger.Warn("failed to cache trial balance", zap.String("key", key), zap.Error(err))
	}
	return tb, nil
}

// IncomeStatement returns revenue and expenses of the fiscal year alone
func (s *TrialBalanceService) IncomeStatement(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) (*report.IncomeStatement, error) {
	startYear, err := s.calendar.ParseYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	through, err := s.balances.CumulativeBalances(ctx, tenantID, startYear)
	if err != nil {
		return nil, err
	}
	before, err := s.balances.CumulativeBalances(ctx, tenantID, startYear-1)
	if err != nil {
		return nil, err
	}
	tb := finance.BuildTrialBalance(tenantID, fiscalYear, s.currency, yearActivity(through, before), s.clock.Now(),
		finance.WithVarianceTolerance(s.tolerance))
	return report.NewIncomeStatement(tb), nil
}

// BalanceSheet returns the financial position at the end of the fiscal year
func (s *TrialBalanceService) BalanceSheet(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) (*report.BalanceSheet, error) {
	tb, err := s.Generate(ctx, tenantID, fiscalYear)
	if err != nil {
		return nil, err
	}
	return report.NewBalanceSheet(tb), nil
}

// yearActivity subtracts the balances carried in from earlier years
func yearActivity(through, before []finance.AccountBalanceInput) []finance.AccountBalanceInput {
	opening := make(map[valueobject.AccountID]finance.AccountBalanceInput, len(before))
	for _, in := range before {
		opening[in.AccountID] = in
	}
	out := make([]finance.AccountBalanceInput, 0, len(through))
	for _, in := range through {
		if o, ok := opening[in.AccountID]; ok {
			in.DebitTotal = in.DebitTotal.Sub(o.DebitTotal)
			in.CreditTotal = in.CreditTotal.Sub(o.CreditTotal)
		}
		if in.DebitTotal.Equal(decimal.Zero) && in.CreditTotal.Equal(decimal.Zero) {
			continue
		}
		out = append(out, in)
	}
	return out
}
