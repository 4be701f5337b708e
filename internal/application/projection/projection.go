// Package projection keeps the read model in step with the event log. Each
// handler owns one read table and is named after it, so a failure record or
// a rebuild request names the table to repair.
package projection

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Projection names. They equal the read tables the projections write.
const (
	AccountViews    = "account_views"
	InvoiceViews    = "invoice_views"
	PaymentViews    = "payment_views"
	JournalViews    = "journal_views"
	AccountBalances = "account_balances"
	PeriodSummaries = "period_summaries"
	ClosedPeriods   = "closed_periods"
)

// Names lists every projection in registration order
func Names() []string {
	return []string{
		AccountViews,
		InvoiceViews,
		PaymentViews,
		JournalViews,
		AccountBalances,
		PeriodSummaries,
		ClosedPeriods,
	}
}

// Repositories groups the read-model stores the projections write to
type Repositories struct {
	Accounts      report.AccountViewRepository
	Invoices      report.InvoiceViewRepository
	Payments      report.PaymentViewRepository
	Journals      report.JournalViewRepository
	Balances      report.AccountBalanceRepository
	Summaries     report.PeriodSummaryRepository
	ClosedPeriods report.ClosedPeriodRepository
}

// All builds every projection
func All(repos Repositories, calendar finance.FiscalCalendar, invalidator *Invalidator, logger *zap.Logger) []shared.NamedHandler {
	return []shared.NamedHandler{
		NewAccountViewProjection(repos.Accounts, invalidator, logger),
		NewInvoiceViewProjection(repos.Invoices, invalidator, logger),
		NewPaymentViewProjection(repos.Payments, invalidator, logger),
		NewJournalViewProjection(repos.Journals, invalidator, logger),
		NewAccountBalanceProjection(repos.Balances, calendar, invalidator, logger),
		NewPeriodSummaryProjection(repos.Summaries, calendar, invalidator, logger),
		NewClosedPeriodProjection(repos.ClosedPeriods, logger),
	}
}

// Select returns the projections whose names are listed, or all of them when
// names is empty. An unknown name is an error.
func Select(projections []shared.NamedHandler, names ...string) ([]shared.EventHandler, error) {
	byName := make(map[string]shared.NamedHandler, len(projections))
	for _, p := range projections {
		byName[p.Name()] = p
	}
	if len(names) == 0 {
		out := make([]shared.EventHandler, 0, len(projections))
		for _, p := range projections {
			out = append(out, p)
		}
		return out, nil
	}
	out := make([]shared.EventHandler, 0, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown projection %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

func unexpected(projection string, event shared.DomainEvent) error {
	return fmt.Errorf("%s: unexpected event %s", projection, event.EventType())
}

// stale reports whether a row projection already reflects the event
func stale(lastSequence int64, event shared.DomainEvent) bool {
	return event.Sequence() <= lastSequence
}
