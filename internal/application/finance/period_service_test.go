package finance

import (
	"testing"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodService(t *testing.T) {
	f := newLedgerFixture(t)

	result, err := f.periods.Close(f.ctx, ClosePeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P02", ClosedBy: "controller"})
	require.NoError(t, err)
	assert.Equal(t, finance.AccountingPeriodsID(f.tenantID), result.AggregateID)

	closed, err := f.periods.ClosedPeriods(f.ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{"FY2025/26-P02"}, closed)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{
			name: "current period has not ended",
			run: func() error {
				_, err := f.periods.Close(f.ctx, ClosePeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P04"})
				return err
			},
			wantErr: finance.ErrPeriodNotEnded,
		},
		{
			name: "closing twice",
			run: func() error {
				_, err := f.periods.Close(f.ctx, ClosePeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P02"})
				return err
			},
			wantErr: finance.ErrPeriodAlreadyClosed,
		},
		{
			name: "reopening an open period",
			run: func() error {
				_, err := f.periods.Reopen(f.ctx, ReopenPeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P01", Reason: "audit"})
				return err
			},
			wantErr: finance.ErrPeriodNotClosed,
		},
		{
			name: "malformed label",
			run: func() error {
				_, err := f.periods.Close(f.ctx, ClosePeriodCommand{TenantID: f.tenantID, Period: "2025-09"})
				return err
			},
			wantErr: finance.ErrInvalidPeriodLabel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}

	_, err = f.periods.Reopen(f.ctx, ReopenPeriodCommand{TenantID: f.tenantID, Period: "FY2025/26-P02", Reason: "late supplier bill"})
	require.NoError(t, err)
	closed, err = f.periods.ClosedPeriods(f.ctx, f.tenantID)
	require.NoError(t, err)
	assert.Empty(t, closed)
}
