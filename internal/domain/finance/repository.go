package finance

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// AccountRepository loads and saves account streams
type AccountRepository interface {
	// Load rehydrates an account; shared.ErrNotFound when the stream is empty
	Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.AccountID) (*Account, error)

	// Save appends the account's uncommitted events at its persisted version
	Save(ctx context.Context, account *Account) error
}

// InvoiceRepository loads and saves invoice streams
type InvoiceRepository interface {
	Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.InvoiceID) (*Invoice, error)
	Save(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository loads and saves payment streams
type PaymentRepository interface {
	Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.PaymentID) (*Payment, error)
	Save(ctx context.Context, payment *Payment) error
}

// JournalRepository loads and saves journal entry streams
type JournalRepository interface {
	Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (*JournalEntry, error)
	Save(ctx context.Context, journal *JournalEntry) error

	// Exists reports whether the journal stream has any events
	Exists(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (bool, error)
}

// AccountingPeriodsRepository loads and saves the per-tenant period register.
// Load returns an empty register when the tenant has never closed a period.
type AccountingPeriodsRepository interface {
	Load(ctx context.Context, tenantID valueobject.TenantID) (*AccountingPeriods, error)
	Save(ctx context.Context, periods *AccountingPeriods) error
}
