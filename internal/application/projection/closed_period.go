package projection

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// ClosedPeriodProjection mirrors the period register into closed_periods.
// Saving and deleting by label are naturally idempotent.
type ClosedPeriodProjection struct {
	periods report.ClosedPeriodRepository
	logger  *zap.Logger
}

// NewClosedPeriodProjection creates the closed period projection
func NewClosedPeriodProjection(periods report.ClosedPeriodRepository, logger *zap.Logger) *ClosedPeriodProjection {
	return &ClosedPeriodProjection{periods: periods, logger: logger}
}

// Name returns the projection name
func (p *ClosedPeriodProjection) Name() string {
	return ClosedPeriods
}

// EventTypes returns the event types this handler is interested in
func (p *ClosedPeriodProjection) EventTypes() []string {
	return []string{finance.EventTypePeriodClosed, finance.EventTypePeriodReopened}
}

// Handle records or removes a closed period
func (p *ClosedPeriodProjection) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := valueobject.TenantID(event.TenantID())
	switch e := event.(type) {
	case *finance.PeriodClosedEvent:
		if err := p.periods.Save(ctx, &report.ClosedPeriodView{
			TenantID: tenantID,
			Label:    e.Label,
			Start:    e.Start,
			End:      e.End,
			ClosedAt: e.ClosedAt,
			ClosedBy: e.ClosedBy,
		}); err != nil {
			return fmt.Errorf("failed to record closed period %s: %w", e.Label, err)
		}
	case *finance.PeriodReopenedEvent:
		if err := p.periods.Delete(ctx, tenantID, e.Label); err != nil {
			return fmt.Errorf("failed to remove closed period %s: %w", e.Label, err)
		}
	default:
		return unexpected(ClosedPeriods, event)
	}
	return nil
}
