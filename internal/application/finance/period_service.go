package finance

import (
	"context"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// PeriodService closes and reopens fiscal periods
type PeriodService struct {
	periods finance.AccountingPeriodsRepository
	opts    serviceOptions
}

// NewPeriodService creates a new PeriodService
func NewPeriodService(periods finance.AccountingPeriodsRepository, opts ...ServiceOption) *PeriodService {
	return &PeriodService{
		periods: periods,
		opts:    newServiceOptions(opts),
	}
}

// Close closes a period that has ended. Journals dated into it can no
// longer be posted.
func (s *PeriodService) Close(ctx context.Context, cmd ClosePeriodCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	result, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID),
		s.periods.Save,
		func(p *finance.AccountingPeriods) error {
			return p.ClosePeriod(cmd.Period, cmd.ClosedBy, s.opts.clock.Now())
		},
	)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("period closed",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("period", cmd.Period),
		zap.String("closed_by", cmd.ClosedBy),
	)
	return result, nil
}

// Reopen opens a closed period again
func (s *PeriodService) Reopen(ctx context.Context, cmd ReopenPeriodCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	result, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID),
		s.periods.Save,
		func(p *finance.AccountingPeriods) error {
			return p.ReopenPeriod(cmd.Period, cmd.Reason, s.opts.clock.Now())
		},
	)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("period reopened",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("period", cmd.Period),
	)
	return result, nil
}

// ClosedPeriods returns the closed period labels from the event stream itself
func (s *PeriodService) ClosedPeriods(ctx context.Context, tenantID valueobject.TenantID) ([]string, error) {
	periods, err := s.periods.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return periods.ClosedLabels(), nil
}

func (s *PeriodService) loader(tenantID valueobject.TenantID) func(context.Context) (*finance.AccountingPeriods, error) {
	return func(ctx context.Context) (*finance.AccountingPeriods, error) {
		return s.periods.Load(ctx, tenantID)
	}
}
