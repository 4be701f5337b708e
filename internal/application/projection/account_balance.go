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

// AccountBalanceProjection accumulates posted journal lines into per-account
// yearly totals. It reads journal postings rather than account events so the
// trial balance does not depend on the account saga having caught up.
type AccountBalanceProjection struct {
	balances    report.AccountBalanceRepository
	calendar    finance.FiscalCalendar
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewAccountBalanceProjection creates the account balance projection
func NewAccountBalanceProjection(
	balances report.AccountBalanceRepository,
	calendar finance.FiscalCalendar,
	invalidator *Invalidator,
	logger *zap.Logger,
) *AccountBalanceProjection {
	return &AccountBalanceProjection{balances: balances, calendar: calendar, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *AccountBalanceProjection) Name() string {
	return AccountBalances
}

// EventTypes returns the event types this handler is interested in
func (p *AccountBalanceProjection) EventTypes() []string {
	return []string{finance.EventTypeJournalEntryPosted}
}

// Handle adds a posted journal's lines to the balances of its fiscal year
func (p *AccountBalanceProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	posted, ok := event.(*finance.JournalEntryPostedEvent)
	if !ok {
		return unexpected(AccountBalances, event)
	}
	tenantID := valueobject.TenantID(event.TenantID())

	startYear, err := p.calendar.ParseYear(posted.FiscalYear)
	if err != nil {
		return fmt.Errorf("journal %s: %w", posted.JournalID, err)
	}

	postings := finance.PostingsByAccount(posted.TotalDebit.Currency(), posted.Lines)
	deltas := make([]report.AccountBalanceDelta, 0, len(postings))
	for _, ap := range postings {
		deltas = append(deltas, report.AccountBalanceDelta{
			AccountID:       ap.AccountID,
			FiscalYear:      posted.FiscalYear,
			FiscalYearStart: startYear,
			Debit:           ap.Debit.Amount(),
			Credit:          ap.Credit.Amount(),
			Postings:        1,
		})
	}

	applied, err := p.balances.ApplyDeltas(ctx, tenantID, AccountBalances, event.EventID(), deltas)
	if err != nil {
		return fmt.Errorf("failed to apply journal %s to balances: %w", posted.JournalID, err)
	}
	if !applied {
		p.logger.Debug("journal already applied to balances",
			zap.String("journal_id", posted.JournalID.String()),
			zap.String("event_id", event.EventID().String()),
		)
		return nil
	}
	p.invalidator.Lists(ctx, tenantID, cache.KindBalance)
	p.invalidator.Reports(ctx, tenantID)
	return nil
}
