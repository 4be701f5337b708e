package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PeriodSummaryProjection accumulates invoice and payment activity per fiscal
// period. Approved invoices count in their issue period; payments count in the
// period they completed or were reversed in.
type PeriodSummaryProjection struct {
	summaries   report.PeriodSummaryRepository
	calendar    finance.FiscalCalendar
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewPeriodSummaryProjection creates the period summary projection
func NewPeriodSummaryProjection(
	summaries report.PeriodSummaryRepository,
	calendar finance.FiscalCalendar,
	invalidator *Invalidator,
	logger *zap.Logger,
) *PeriodSummaryProjection {
	return &PeriodSummaryProjection{summaries: summaries, calendar: calendar, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *PeriodSummaryProjection) Name() string {
	return PeriodSummaries
}

// EventTypes returns the event types this handler is interested in
func (p *PeriodSummaryProjection) EventTypes() []string {
	return []string{
		finance.EventTypeInvoiceApproved,
		finance.EventTypeInvoiceCancelled,
		finance.EventTypePaymentCompleted,
		finance.EventTypePaymentReversed,
	}
}

// Handle adds the event's contribution to its period
func (p *PeriodSummaryProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())

	delta, err := p.deltaFor(event)
	if err != nil {
		return err
	}

	applied, err := p.summaries.ApplyDelta(ctx, tenantID, PeriodSummaries, event.EventID(), delta)
	if err != nil {
		return fmt.Errorf("failed to apply %s to period %s: %w", event.EventType(), delta.FiscalPeriod, err)
	}
	if !applied {
		return nil
	}
	p.invalidator.Lists(ctx, tenantID, cache.KindPeriodSummary)
	return nil
}

func (p *PeriodSummaryProjection) deltaFor(event shared.DomainEvent) (report.PeriodSummaryDelta, error) {
	switch e := event.(type) {
	case *finance.InvoiceApprovedEvent:
		delta, err := p.labelled(e.FiscalPeriod)
		if err != nil {
			return delta, err
		}
		addInvoiceTotals(&delta, e.Totals, decimal.NewFromInt(1))
		delta.InvoiceCount = 1
		return delta, nil

	case *finance.InvoiceCancelledEvent:
		delta, err := p.labelled(e.FiscalPeriod)
		if err != nil {
			return delta, err
		}
		// only an approved invoice was counted; a draft contributes nothing
		if e.PreviousStatus == finance.InvoiceStatusApproved {
			addInvoiceTotals(&delta, e.Totals, decimal.NewFromInt(-1))
			delta.InvoiceCount = -1
		}
		delta.CancelledCount = 1
		return delta, nil

	case *finance.PaymentCompletedEvent:
		delta := p.dated(e.CompletedAt)
		delta.PaidAmount = e.Amount.Amount()
		delta.PaymentCount = 1
		return delta, nil

	case *finance.PaymentReversedEvent:
		delta := p.dated(e.ReversedAt)
		delta.PaidAmount = e.Amount.Amount().Neg()
		return delta, nil

	default:
		return report.PeriodSummaryDelta{}, unexpected(PeriodSummaries, event)
	}
}

func (p *PeriodSummaryProjection) labelled(label string) (report.PeriodSummaryDelta, error) {
	period, err := p.calendar.ParsePeriod(label)
	if err != nil {
		return report.PeriodSummaryDelta{}, err
	}
	return emptyDelta(period), nil
}

func (p *PeriodSummaryProjection) dated(at time.Time) report.PeriodSummaryDelta {
	return emptyDelta(p.calendar.PeriodFor(at))
}

func emptyDelta(period finance.FiscalPeriod) report.PeriodSummaryDelta {
	return report.PeriodSummaryDelta{
		FiscalPeriod:    period.Label,
		FiscalYear:      period.FiscalYear,
		InvoicedAmount:  decimal.Zero,
		Subtotal:        decimal.Zero,
		VATAmount:       decimal.Zero,
		ZeroRatedAmount: decimal.Zero,
		ExemptAmount:    decimal.Zero,
		DutyAmount:      decimal.Zero,
		AdvanceTax:      decimal.Zero,
		PaidAmount:      decimal.Zero,
	}
}

func addInvoiceTotals(delta *report.PeriodSummaryDelta, t finance.InvoiceTotals, sign decimal.Decimal) {
	delta.InvoicedAmount = t.GrandTotal.Amount().Mul(sign)
	delta.Subtotal = t.Subtotal.Amount().Mul(sign)
	delta.VATAmount = t.VAT.Amount().Mul(sign)
	delta.ZeroRatedAmount = t.ZeroRated.Amount().Mul(sign)
	delta.ExemptAmount = t.Exempt.Amount().Mul(sign)
	delta.DutyAmount = t.Duty.Amount().Mul(sign)
	delta.AdvanceTax = t.AdvanceTax.Amount().Mul(sign)
}
