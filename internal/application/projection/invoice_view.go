package projection

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceViewProjection maintains invoice_views
type InvoiceViewProjection struct {
	views       report.InvoiceViewRepository
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewInvoiceViewProjection creates the invoice view projection
func NewInvoiceViewProjection(views report.InvoiceViewRepository, invalidator *Invalidator, logger *zap.Logger) *InvoiceViewProjection {
	return &InvoiceViewProjection{views: views, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *InvoiceViewProjection) Name() string {
	return InvoiceViews
}

// EventTypes returns the event types this handler is interested in
func (p *InvoiceViewProjection) EventTypes() []string {
	return []string{
		finance.EventTypeInvoiceCreated,
		finance.EventTypeInvoiceLineItemAdded,
		finance.EventTypeInvoiceLineItemRemoved,
		finance.EventTypeInvoiceApproved,
		finance.EventTypeInvoicePaymentRecorded,
		finance.EventTypeInvoiceFullyPaid,
		finance.EventTypeInvoiceCancelled,
	}
}

// Handle folds one invoice event into its view
func (p *InvoiceViewProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())
	invoiceID := valueobject.InvoiceID(event.AggregateID())

	var view *report.InvoiceView
	if created, ok := event.(*finance.InvoiceCreatedEvent); ok {
		view = &report.InvoiceView{
			ID:               created.InvoiceID,
			TenantID:         tenantID,
			Number:           created.Number,
			VendorID:         created.VendorID,
			CustomerID:       created.CustomerID,
			Currency:         created.Currency,
			IssueDate:        created.IssueDate,
			DueDate:          created.DueDate,
			FiscalYear:       created.FiscalYear,
			FiscalPeriod:     created.FiscalPeriod,
			Status:           finance.InvoiceStatusDraft,
			Lines:            []report.InvoiceLineView{},
			CreatedAt:        created.OccurredAt(),
			Subtotal:         decimal.Zero,
			VATTotal:         decimal.Zero,
			DutyTotal:        decimal.Zero,
			AdvanceTaxTotal:  decimal.Zero,
			GrandTotal:       decimal.Zero,
			PaidAmount:       decimal.Zero,
			RemainingBalance: decimal.Zero,
		}
	} else {
		current, err := p.views.FindByID(ctx, tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice view %s: %w", invoiceID, err)
		}
		if stale(current.LastSequence, event) {
			return nil
		}
		view = current

		switch e := event.(type) {
		case *finance.InvoiceLineItemAddedEvent:
			view.Lines = append(view.Lines, invoiceLineView(e.Line))
			recomputeInvoiceTotals(view)
		case *finance.InvoiceLineItemRemovedEvent:
			lines := make([]report.InvoiceLineView, 0, len(view.Lines))
			for _, l := range view.Lines {
				if l.LineNo != e.LineNo {
					lines = append(lines, l)
				}
			}
			view.Lines = lines
			recomputeInvoiceTotals(view)
		case *finance.InvoiceApprovedEvent:
			view.Status = finance.InvoiceStatusApproved
			view.RegulatoryNumber = e.RegulatoryNumber
			view.Subtotal = e.Totals.Subtotal.Amount()
			view.VATTotal = e.Totals.VAT.Amount()
			view.DutyTotal = e.Totals.Duty.Amount()
			view.AdvanceTaxTotal = e.Totals.AdvanceTax.Amount()
			view.GrandTotal = e.Totals.GrandTotal.Amount()
			view.RemainingBalance = e.Totals.GrandTotal.Amount()
		case *finance.InvoicePaymentRecordedEvent:
			view.PaidAmount = e.PaidAmount.Amount()
			view.RemainingBalance = e.RemainingBalance.Amount()
		case *finance.InvoiceFullyPaidEvent:
			view.Status = finance.InvoiceStatusPaid
			view.RemainingBalance = decimal.Zero
		case *finance.InvoiceCancelledEvent:
			view.Status = finance.InvoiceStatusCancelled
			view.CancelReason = e.Reason
		default:
			return unexpected(InvoiceViews, event)
		}
	}
	view.LastSequence = event.Sequence()
	view.UpdatedAt = event.OccurredAt()

	written, err := p.views.Upsert(ctx, view)
	if err != nil {
		return fmt.Errorf("failed to write invoice view %s: %w", invoiceID, err)
	}
	if !written {
		return nil
	}
	p.invalidator.Entity(ctx, tenantID, cache.KindInvoice, invoiceID)
	return nil
}

func invoiceLineView(l finance.LineItem) report.InvoiceLineView {
	return report.InvoiceLineView{
		LineNo:      l.LineNo,
		Description: l.Description,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice.Amount(),
		Amount:      l.Amount.Amount(),
		VATCategory: l.VATCategory,
		VATRate:     l.VATRate,
		VATAmount:   l.VATAmount.Amount(),
		Duty:        l.Duty.Amount(),
		AdvanceTax:  l.AdvanceTax.Amount(),
	}
}

// recomputeInvoiceTotals refreshes draft totals from the view's lines
func recomputeInvoiceTotals(view *report.InvoiceView) {
	subtotal, vat, duty, advance := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range view.Lines {
		subtotal = subtotal.Add(l.Amount)
		vat = vat.Add(l.VATAmount)
		duty = duty.Add(l.Duty)
		advance = advance.Add(l.AdvanceTax)
	}
	view.Subtotal = subtotal
	view.VATTotal = vat
	view.DutyTotal = duty
	view.AdvanceTaxTotal = advance
	view.GrandTotal = subtotal.Add(vat).Add(duty).Add(advance)
	view.RemainingBalance = view.GrandTotal.Sub(view.PaidAmount)
}
