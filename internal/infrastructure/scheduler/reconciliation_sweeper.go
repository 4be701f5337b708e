package scheduler

import (
	"context"
	"sync"
	"time"

	financeapp "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler repairs the saga work left behind by failed dispatches
type Reconciler interface {
	UnappliedPayments(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[report.PaymentView], error)
	Failures(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) (shared.Paginated[*shared.ProcessingFailure], error)
	RetryInvoiceApplication(ctx context.Context, tenantID valueobject.TenantID, paymentID valueobject.PaymentID) (financeapp.CompletePaymentResult, error)
	RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error
}

// PaymentTenantProvider lists the tenants owing an invoice update
type PaymentTenantProvider interface {
	UnappliedTenants(ctx context.Context) ([]valueobject.TenantID, error)
}

// FailureTenantProvider lists the tenants with open failures of the given handlers
type FailureTenantProvider interface {
	OpenTenants(ctx context.Context, handlers ...string) ([]uuid.UUID, error)
}

// SweeperConfig holds configuration for the reconciliation sweeper
type SweeperConfig struct {
	// Interval is the pause between two sweeps
	Interval time.Duration

	// BatchSize caps the payments and journals retried per tenant and sweep
	BatchSize int
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  5 * time.Minute,
		BatchSize: 50,
	}
}

// SweepResult summarizes one sweep over all tenants
type SweepResult struct {
	Tenants          int
	PaymentsApplied  int
	PaymentsFailed   int
	JournalsRepaired int
	JournalsFailed   int
}

// ReconciliationSweeper periodically retries the invoice updates of settled
// payments and the account postings of journals whose saga step failed
type ReconciliationSweeper struct {
	config     SweeperConfig
	reconciler Reconciler
	payments   PaymentTenantProvider
	failures   FailureTenantProvider
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReconciliationSweeper creates a new reconciliation sweeper
func NewReconciliationSweeper(
	config SweeperConfig,
	reconciler Reconciler,
	payments PaymentTenantProvider,
	failures FailureTenantProvider,
	logger *zap.Logger,
) *ReconciliationSweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 || config.BatchSize > shared.MaxPageSize {
		config.BatchSize = defaults.BatchSize
	}
	return &ReconciliationSweeper{
		config:     config,
		reconciler: reconciler,
		payments:   payments,
		failures:   failures,
		logger:     logger,
	}
}

// Start starts the sweeper
func (s *ReconciliationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Reconciliation sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// Stop stops the sweeper and waits for a running sweep to return
func (s *ReconciliationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns whether the sweeper is running
func (s *ReconciliationSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *ReconciliationSweeper) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("Reconciliation sweep failed", zap.Error(err))
				continue
			}
			if result.PaymentsApplied+result.PaymentsFailed+result.JournalsRepaired+result.JournalsFailed > 0 {
				s.logger.Info("Reconciliation sweep finished",
					zap.Int("tenants", result.Tenants),
					zap.Int("payments_applied", result.PaymentsApplied),
					zap.Int("payments_failed", result.PaymentsFailed),
					zap.Int("journals_repaired", result.JournalsRepaired),
					zap.Int("journals_failed", result.JournalsFailed),
				)
			}
		}
	}
}

// Sweep runs one repair pass over every tenant that needs it. Failures of
// single payments or journals are logged and counted, only an error listing
// the tenants aborts the sweep.
func (s *ReconciliationSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	tenants, err := s.tenants(ctx)
	if err != nil {
		return result, err
	}
	result.Tenants = len(tenants)

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.sweepPayments(ctx, tenantID, &result)
		s.sweepJournals(ctx, tenantID, &result)
	}
	return result, nil
}

// tenants merges both providers, keeping the first-seen order
func (s *ReconciliationSweeper) tenants(ctx context.Context) ([]valueobject.TenantID, error) {
	unapplied, err := s.payments.UnappliedTenants(ctx)
	if err != nil {
		return nil, err
	}
	failing, err := s.failures.OpenTenants(ctx, financeapp.SagaJournalAccounts)
	if err != nil {
		return nil, err
	}

	seen := make(map[valueobject.TenantID]struct{}, len(unapplied)+len(failing))
	tenants := make([]valueobject.TenantID, 0, len(unapplied)+len(failing))
	add := func(id valueobject.TenantID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		tenants = append(tenants, id)
	}
	for _, id := range unapplied {
		add(id)
	}
	for _, id := range failing {
		add(valueobject.TenantID(id))
	}
	return tenants, nil
}

func (s *ReconciliationSweeper) sweepPayments(ctx context.Context, tenantID valueobject.TenantID, result *SweepResult) {
	page, err := s.reconciler.UnappliedPayments(ctx, tenantID, shared.Filter{Page: 1, PageSize: s.config.BatchSize})
	if err != nil {
		s.logger.Error("Failed to list unapplied payments",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return
	}

	for _, payment := range page.Items {
		if _, err := s.reconciler.RetryInvoiceApplication(ctx, tenantID, payment.ID); err != nil {
			result.PaymentsFailed++
			s.logger.Warn("Invoice update still failing",
				zap.String("tenant_id", tenantID.String()),
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.PaymentsApplied++
	}
}

func (s *ReconciliationSweeper) sweepJournals(ctx context.Context, tenantID valueobject.TenantID, result *SweepResult) {
	page, err := s.reconciler.Failures(ctx, tenantID, shared.Filter{
		Page:     1,
		PageSize: shared.MaxPageSize,
		Search:   financeapp.SagaJournalAccounts,
	})
	if err != nil {
		s.logger.Error("Failed to list posting failures",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return
	}

	// one journal can fail on several of its lines
	journals := make([]valueobject.JournalID, 0, len(page.Items))
	seen := make(map[uuid.UUID]struct{}, len(page.Items))
	for _, failure := range page.Items {
		if _, ok := seen[failure.AggregateID]; ok {
			continue
		}
		seen[failure.AggregateID] = struct{}{}
		journals = append(journals, valueobject.JournalID(failure.AggregateID))
		if len(journals) == s.config.BatchSize {
			break
		}
	}

	for _, journalID := range journals {
		if err := s.reconciler.RetryAccountPostings(ctx, tenantID, journalID); err != nil {
			result.JournalsFailed++
			s.logger.Warn("Account postings still failing",
				zap.String("tenant_id", tenantID.String()),
				zap.String("journal_id", journalID.String()),
				zap.Error(err),
			)
			continue
		}
		result.JournalsRepaired++
	}
}
