package eventstore

import (
	"context"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// AccountRepository stores Account streams
type AccountRepository struct {
	*Repository[*finance.Account]
}

// NewAccountRepository creates an account repository
func NewAccountRepository(store Store, opts ...RepositoryOption) *AccountRepository {
	return &AccountRepository{NewRepository(store, finance.NewEmptyAccount, opts...)}
}

// Load rehydrates an account
func (r *AccountRepository) Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.AccountID) (*finance.Account, error) {
	return r.Repository.Load(ctx, tenantID.UUID(), id.UUID())
}

// InvoiceRepository stores Invoice streams
type InvoiceRepository struct {
	*Repository[*finance.Invoice]
}

// NewInvoiceRepository creates an invoice repository
func NewInvoiceRepository(store Store, opts ...RepositoryOption) *InvoiceRepository {
	return &InvoiceRepository{NewRepository(store, finance.NewEmptyInvoice, opts...)}
}

// Load rehydrates an invoice
func (r *InvoiceRepository) Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.InvoiceID) (*finance.Invoice, error) {
	return r.Repository.Load(ctx, tenantID.UUID(), id.UUID())
}

// PaymentRepository stores Payment streams
type PaymentRepository struct {
	*Repository[*finance.Payment]
}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository(store Store, opts ...RepositoryOption) *PaymentRepository {
	return &PaymentRepository{NewRepository(store, finance.NewEmptyPayment, opts...)}
}

// Load rehydrates a payment
func (r *PaymentRepository) Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.PaymentID) (*finance.Payment, error) {
	return r.Repository.Load(ctx, tenantID.UUID(), id.UUID())
}

// JournalRepository stores JournalEntry streams
type JournalRepository struct {
	*Repository[*finance.JournalEntry]
}

// NewJournalRepository creates a journal repository
func NewJournalRepository(store Store, opts ...RepositoryOption) *JournalRepository {
	return &JournalRepository{NewRepository(store, finance.NewEmptyJournalEntry, opts...)}
}

// Load rehydrates a journal entry
func (r *JournalRepository) Load(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (*finance.JournalEntry, error) {
	return r.Repository.Load(ctx, tenantID.UUID(), id.UUID())
}

// Exists reports whether the journal stream has any events
func (r *JournalRepository) Exists(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (bool, error) {
	return r.Repository.Exists(ctx, tenantID.UUID(), id.UUID())
}

// AccountingPeriodsRepository stores the per-tenant period register
type AccountingPeriodsRepository struct {
	*Repository[*finance.AccountingPeriods]
	calendar finance.FiscalCalendar
}

// NewAccountingPeriodsRepository creates a period register repository
func NewAccountingPeriodsRepository(store Store, calendar finance.FiscalCalendar, opts ...RepositoryOption) *AccountingPeriodsRepository {
	factory := func() *finance.AccountingPeriods {
		return finance.NewAccountingPeriods(valueobject.TenantID{}, calendar)
	}
	return &AccountingPeriodsRepository{
		Repository: NewRepository(store, factory, opts...),
		calendar:   calendar,
	}
}

// Load returns the tenant's register, empty when nothing was ever closed
func (r *AccountingPeriodsRepository) Load(ctx context.Context, tenantID valueobject.TenantID) (*finance.AccountingPeriods, error) {
	periods := finance.NewAccountingPeriods(tenantID, r.calendar)
	if _, err := r.Hydrate(ctx, periods); err != nil {
		return nil, err
	}
	return periods, nil
}

var (
	_ finance.AccountRepository           = (*AccountRepository)(nil)
	_ finance.InvoiceRepository           = (*InvoiceRepository)(nil)
	_ finance.PaymentRepository           = (*PaymentRepository)(nil)
	_ finance.JournalRepository           = (*JournalRepository)(nil)
	_ finance.AccountingPeriodsRepository = (*AccountingPeriodsRepository)(nil)
)
