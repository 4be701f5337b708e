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

// AccountViewProjection maintains account_views
type AccountViewProjection struct {
	views       report.AccountViewRepository
	invalidator *Invalidator
	logger      *zap.Logger
}

// NewAccountViewProjection creates the account view projection
func NewAccountViewProjection(views report.AccountViewRepository, invalidator *Invalidator, logger *zap.Logger) *AccountViewProjection {
	return &AccountViewProjection{views: views, invalidator: invalidator, logger: logger}
}

// Name returns the projection name
func (p *AccountViewProjection) Name() string {
	return AccountViews
}

// EventTypes returns the event types this handler is interested in
func (p *AccountViewProjection) EventTypes() []string {
	return []string{
		finance.EventTypeAccountOpened,
		finance.EventTypeAccountRenamed,
		finance.EventTypeAccountBalanceChanged,
		finance.EventTypeAccountDeactivated,
	}
}

// Handle folds one account event into its view
func (p *AccountViewProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())
	accountID := valueobject.AccountID(event.AggregateID())

	var view *report.AccountView
	if opened, ok := event.(*finance.AccountOpenedEvent); ok {
		view = &report.AccountView{
			ID:        opened.AccountID,
			TenantID:  tenantID,
			Code:      opened.Code,
			Name:      opened.Name,
			Type:      opened.Type,
			ParentID:  opened.ParentID,
			Currency:  opened.Currency,
			Balance:   decimal.Zero,
			Active:    true,
			CreatedAt: opened.OccurredAt(),
		}
	} else {
		current, err := p.views.FindByID(ctx, tenantID, accountID)
		if err != nil {
			return fmt.Errorf("account view %s: %w", accountID, err)
		}
		if stale(current.LastSequence, event) {
			return nil
		}
		view = current

		switch e := event.(type) {
		case *finance.AccountRenamedEvent:
			view.Name = e.Name
		case *finance.AccountBalanceChangedEvent:
			view.Balance = e.Balance.Amount()
		case *finance.AccountDeactivatedEvent:
			at := e.OccurredAt()
			view.Active = false
			view.DeactivatedAt = &at
		default:
			return unexpected(AccountViews, event)
		}
	}
	view.LastSequence = event.Sequence()
	view.UpdatedAt = event.OccurredAt()

	written, err := p.views.Upsert(ctx, view)
	if err != nil {
		return fmt.Errorf("failed to write account view %s: %w", accountID, err)
	}
	if !written {
		p.logger.Debug("account view already current",
			zap.String("account_id", accountID.String()),
			zap.Int64("sequence", event.Sequence()),
		)
		return nil
	}
	p.invalidator.Entity(ctx, tenantID, cache.KindAccount, accountID)
	if _, renamed := event.(*finance.AccountRenamedEvent); renamed {
		// trial balance rows carry the account name
		p.invalidator.Reports(ctx, tenantID)
	}
	return nil
}
