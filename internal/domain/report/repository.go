package report

import (
	"context"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AccountViewFilter narrows account list queries
type AccountViewFilter struct {
	shared.Filter
	Type   finance.AccountType `json:"type,omitempty"`
	Active *bool               `json:"active,omitempty"`
}

// InvoiceViewFilter narrows invoice list queries
type InvoiceViewFilter struct {
	shared.Filter
	Status     finance.InvoiceStatus `json:"status,omitempty"`
	CustomerID *valueobject.PartyID  `json:"customer_id,omitempty"`
	FiscalYear string                `json:"fiscal_year,omitempty"`
}

// PaymentViewFilter narrows payment list queries
type PaymentViewFilter struct {
	shared.Filter
	InvoiceID *valueobject.InvoiceID `json:"invoice_id,omitempty"`
	Status    finance.PaymentStatus  `json:"status,omitempty"`
}

// JournalViewFilter narrows journal list queries
type JournalViewFilter struct {
	shared.Filter
	FiscalPeriod string                `json:"fiscal_period,omitempty"`
	Status       finance.JournalStatus `json:"status,omitempty"`
}

// AccountViewRepository persists and queries account views
type AccountViewRepository interface {
	// FindByID returns the view; shared.ErrNotFound when missing
	FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.AccountID) (*AccountView, error)

	// FindAll returns one page of views and the total count
	FindAll(ctx context.Context, tenantID valueobject.TenantID, filter AccountViewFilter) ([]AccountView, int64, error)

	// Upsert writes the view unless a newer or equal sequence is already stored.
	// Returns false when the write was skipped.
	Upsert(ctx context.Context, view *AccountView) (bool, error)
}

// InvoiceViewRepository persists and queries invoice views
type InvoiceViewRepository interface {
	FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.InvoiceID) (*InvoiceView, error)
	FindAll(ctx context.Context, tenantID valueobject.TenantID, filter InvoiceViewFilter) ([]InvoiceView, int64, error)
	Upsert(ctx context.Context, view *InvoiceView) (bool, error)
}

// PaymentViewRepository persists and queries payment views
type PaymentViewRepository interface {
	FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.PaymentID) (*PaymentView, error)
	FindAll(ctx context.Context, tenantID valueobject.TenantID, filter PaymentViewFilter) ([]PaymentView, int64, error)
	Upsert(ctx context.Context, view *PaymentView) (bool, error)

	// FindUnapplied returns settled payments whose invoice update never succeeded
	FindUnapplied(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) ([]PaymentView, int64, error)
}

// JournalViewRepository persists and queries journal views
type JournalViewRepository interface {
	FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (*JournalView, error)
	FindAll(ctx context.Context, tenantID valueobject.TenantID, filter JournalViewFilter) ([]JournalView, int64, error)
	Upsert(ctx context.Context, view *JournalView) (bool, error)
}

// AccountBalanceRepository maintains pre-aggregated account activity per fiscal year
type AccountBalanceRepository interface {
	// ApplyDeltas adds the deltas once per (projection, event). Returns false
	// when the event was already applied.
	ApplyDeltas(ctx context.Context, tenantID valueobject.TenantID, projection string, eventID uuid.UUID, deltas []AccountBalanceDelta) (bool, error)

	// FindByAccount returns one account's totals for a fiscal year
	FindByAccount(ctx context.Context, tenantID valueobject.TenantID, accountID valueobject.AccountID, fiscalYear string) (*AccountBalanceView, error)

	// CumulativeBalances sums every account's activity from the first fiscal
	// year up to and including the one starting in throughStartYear
	CumulativeBalances(ctx context.Context, tenantID valueobject.TenantID, throughStartYear int) ([]finance.AccountBalanceInput, error)
}

// PeriodSummaryRepository maintains per-period invoice and payment totals
type PeriodSummaryRepository interface {
	ApplyDelta(ctx context.Context, tenantID valueobject.TenantID, projection string, eventID uuid.UUID, delta PeriodSummaryDelta) (bool, error)
	FindByPeriod(ctx context.Context, tenantID valueobject.TenantID, fiscalPeriod string) (*PeriodSummaryView, error)
	FindByYear(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) ([]PeriodSummaryView, error)
}

// ClosedPeriodRepository mirrors the tenant's closed fiscal periods
type ClosedPeriodRepository interface {
	Save(ctx context.Context, view *ClosedPeriodView) error
	Delete(ctx context.Context, tenantID valueobject.TenantID, label string) error
	FindAll(ctx context.Context, tenantID valueobject.TenantID) ([]ClosedPeriodView, error)
}

// ProjectionResetter clears every row a projection wrote so it can be rebuilt
type ProjectionResetter interface {
	ResetProjection(ctx context.Context, projection string) error
}
