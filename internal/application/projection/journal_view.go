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

// JournalViewProjection maintains journal_views
type JournalViewProjection struct {
	views       report.JournalViewRepository
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewJournalViewProjection creates the journal view projection
func NewJournalViewProjection(views report.JournalViewRepository, invalidator *Invalidator, logger *zap.Logger) *JournalViewProjection {
	return &JournalViewProjection{views: views, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *JournalViewProjection) Name() string {
	return JournalViews
}

// EventTypes returns the event types this handler is interested in
func (p *JournalViewProjection) EventTypes() []string {
	return []string{
		finance.EventTypeJournalEntryCreated,
		finance.EventTypeJournalLineAdded,
		finance.EventTypeJournalLineRemoved,
		finance.EventTypeJournalEntryPosted,
		finance.EventTypeJournalEntryReversed,
	}
}

// Handle folds one journal event into its view
func (p *JournalViewProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())
	journalID := valueobject.JournalID(event.AggregateID())

	var view *report.JournalView
	if created, ok := event.(*finance.JournalEntryCreatedEvent); ok {
		view = &report.JournalView{
			ID:           created.JournalID,
			TenantID:     tenantID,
			Number:       created.Number,
			Type:         created.Type,
			JournalDate:  created.JournalDate,
			Description:  created.Description,
			Currency:     created.Currency,
			FiscalYear:   created.FiscalYear,
			FiscalPeriod: created.FiscalPeriod,
			Status:       finance.JournalStatusDraft,
			IsReversing:  created.IsReversing,
			ReversesID:   created.ReversesID,
			CreatedAt:    created.OccurredAt(),
		}
		view.Lines = journalLineViews(created.Lines)
		recomputeJournalTotals(view)
	} else {
		current, err := p.views.FindByID(ctx, tenantID, journalID)
		if err != nil {
			return fmt.Errorf("journal view %s: %w", journalID, err)
		}
		if stale(current.LastSequence, event) {
			return nil
		}
		view = current

		switch e := event.(type) {
		case *finance.JournalLineAddedEvent:
			view.Lines = append(view.Lines, journalLineViews([]finance.JournalLine{e.Line})...)
			recomputeJournalTotals(view)
		case *finance.JournalLineRemovedEvent:
			lines := make([]report.JournalLineView, 0, len(view.Lines))
			for _, l := range view.Lines {
				if l.LineNo != e.LineNo {
					lines = append(lines, l)
				}
			}
			view.Lines = lines
			recomputeJournalTotals(view)
		case *finance.JournalEntryPostedEvent:
			postedAt := e.PostedAt
			view.Status = finance.JournalStatusPosted
			view.Lines = journalLineViews(e.Lines)
			view.TotalDebit = e.TotalDebit.Amount()
			view.TotalCredit = e.TotalCredit.Amount()
			view.PostedAt = &postedAt
		case *finance.JournalEntryReversedEvent:
			reversalID := e.ReversalID
			view.Status = finance.JournalStatusReversed
			view.ReversedByID = &reversalID
		default:
			return unexpected(JournalViews, event)
		}
	}
	view.LastSequence = event.Sequence()
	view.UpdatedAt = event.OccurredAt()

	written, err := p.views.Upsert(ctx, view)
	if err != nil {
		return fmt.Errorf("failed to write journal view %s: %w", journalID, err)
	}
	if !written {
		return nil
	}
	p.invalidator.Entity(ctx, tenantID, cache.KindJournal, journalID)
	return nil
}

func journalLineViews(lines []finance.JournalLine) []report.JournalLineView {
	out := make([]report.JournalLineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, report.JournalLineView{
			LineNo:    l.LineNo,
			AccountID: l.AccountID,
			Debit:     l.Debit.Amount(),
			Credit:    l.Credit.Amount(),
			Memo:      l.Memo,
		})
	}
	return out
}

func recomputeJournalTotals(view *report.JournalView) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range view.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	view.TotalDebit = debit
	view.TotalCredit = credit
}
