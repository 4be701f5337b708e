package report

import (
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AccountView is the denormalized read model of an account
// This is a CQRS read model optimized for querying
type AccountView struct {
	ID            valueobject.AccountID   `json:"id"`
	TenantID      valueobject.TenantID    `json:"tenant_id"`
	Code          valueobject.AccountCode `json:"code"`
	Name          string                  `json:"name"`
	Type          finance.AccountType     `json:"type"`
	ParentID      *valueobject.AccountID  `json:"parent_id,omitempty"`
	Currency      valueobject.Currency    `json:"currency"`
	Balance       decimal.Decimal         `json:"balance"` // in the account's normal direction
	Active        bool                    `json:"active"`
	LastSequence  int64                   `json:"last_sequence"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	DeactivatedAt *time.Time              `json:"deactivated_at,omitempty"`
}

// InvoiceLineView is one line item of an invoice view
type InvoiceLineView struct {
	LineNo      int                 `json:"line_no"`
	Description string              `json:"description"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Amount      decimal.Decimal     `json:"amount"`
	VATCategory finance.VATCategory `json:"vat_category"`
	VATRate     decimal.Decimal     `json:"vat_rate"`
	VATAmount   decimal.Decimal     `json:"vat_amount"`
	Duty        decimal.Decimal     `json:"duty"`
	AdvanceTax  decimal.Decimal     `json:"advance_tax"`
}

// InvoiceView is the denormalized read model of an invoice
type InvoiceView struct {
	ID               valueobject.InvoiceID `json:"id"`
	TenantID         valueobject.TenantID  `json:"tenant_id"`
	Number           string                `json:"number"`
	VendorID         valueobject.PartyID   `json:"vendor_id"`
	CustomerID       valueobject.PartyID   `json:"customer_id"`
	Currency         valueobject.Currency  `json:"currency"`
	IssueDate        time.Time             `json:"issue_date"`
	DueDate          *time.Time            `json:"due_date,omitempty"`
	FiscalYear       string                `json:"fiscal_year"`
	FiscalPeriod     string                `json:"fiscal_period"`
	Status           finance.InvoiceStatus `json:"status"`
	Lines            []InvoiceLineView     `json:"lines"`
	Subtotal         decimal.Decimal       `json:"subtotal"`
	VATTotal         decimal.Decimal       `json:"vat_total"`
	DutyTotal        decimal.Decimal       `json:"duty_total"`
	AdvanceTaxTotal  decimal.Decimal       `json:"advance_tax_total"`
	GrandTotal       decimal.Decimal       `json:"grand_total"`
	PaidAmount       decimal.Decimal       `json:"paid_amount"`
	RemainingBalance decimal.Decimal       `json:"remaining_balance"`
	RegulatoryNumber string                `json:"regulatory_number,omitempty"`
	CancelReason     string                `json:"cancel_reason,omitempty"`
	LastSequence     int64                 `json:"last_sequence"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// PaymentView is the denormalized read model of a payment
type PaymentView struct {
	ID                valueobject.PaymentID `json:"id"`
	TenantID          valueobject.TenantID  `json:"tenant_id"`
	Number            string                `json:"number"`
	InvoiceID         valueobject.InvoiceID `json:"invoice_id"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          valueobject.Currency  `json:"currency"`
	Method            finance.PaymentMethod `json:"method"`
	Status            finance.PaymentStatus `json:"status"`
	WalletReference   string                `json:"wallet_reference,omitempty"`
	ExternalReference string                `json:"external_reference,omitempty"`
	BankReference     string                `json:"bank_reference,omitempty"`
	FailureReason     string                `json:"failure_reason,omitempty"`
	InvoiceApplied    bool                  `json:"invoice_applied"`
	SyncError         string                `json:"sync_error,omitempty"`
	SyncAttempts      int                   `json:"sync_attempts"`
	LastSequence      int64                 `json:"last_sequence"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

// JournalLineView is one line of a journal view
type JournalLineView struct {
	LineNo    int                   `json:"line_no"`
	AccountID valueobject.AccountID `json:"account_id"`
	Debit     decimal.Decimal       `json:"debit"`
	Credit    decimal.Decimal       `json:"credit"`
	Memo      string                `json:"memo,omitempty"`
}

// JournalView is the denormalized read model of a journal entry
type JournalView struct {
	ID           valueobject.JournalID  `json:"id"`
	TenantID     valueobject.TenantID   `json:"tenant_id"`
	Number       string                 `json:"number"`
	Type         finance.JournalType    `json:"type"`
	JournalDate  time.Time              `json:"journal_date"`
	Description  string                 `json:"description"`
	Currency     valueobject.Currency   `json:"currency"`
	FiscalYear   string                 `json:"fiscal_year"`
	FiscalPeriod string                 `json:"fiscal_period"`
	Status       finance.JournalStatus  `json:"status"`
	Lines        []JournalLineView      `json:"lines"`
	TotalDebit   decimal.Decimal        `json:"total_debit"`
	TotalCredit  decimal.Decimal        `json:"total_credit"`
	IsReversing  bool                   `json:"is_reversing"`
	ReversesID   *valueobject.JournalID `json:"reverses_id,omitempty"`
	ReversedByID *valueobject.JournalID `json:"reversed_by_id,omitempty"`
	LastSequence int64                  `json:"last_sequence"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	PostedAt     *time.Time             `json:"posted_at,omitempty"`
}

// AccountBalanceView is the pre-aggregated activity of one account in one fiscal year
type AccountBalanceView struct {
	TenantID        valueobject.TenantID  `json:"tenant_id"`
	AccountID       valueobject.AccountID `json:"account_id"`
	FiscalYear      string                `json:"fiscal_year"`
	FiscalYearStart int                   `json:"fiscal_year_start"`
	DebitTotal      decimal.Decimal       `json:"debit_total"`
	CreditTotal     decimal.Decimal       `json:"credit_total"`
	PostingCount    int64                 `json:"posting_count"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Net returns debits minus credits
func (v AccountBalanceView) Net() decimal.Decimal {
	return v.DebitTotal.Sub(v.CreditTotal)
}

// PeriodSummaryView is the per-period financial summary of a tenant
type PeriodSummaryView struct {
	TenantID        valueobject.TenantID `json:"tenant_id"`
	FiscalPeriod    string               `json:"fiscal_period"`
	FiscalYear      string               `json:"fiscal_year"`
	InvoicedAmount  decimal.Decimal      `json:"invoiced_amount"` // grand totals of approved invoices
	Subtotal        decimal.Decimal      `json:"subtotal"`
	VATAmount       decimal.Decimal      `json:"vat_amount"`
	ZeroRatedAmount decimal.Decimal      `json:"zero_rated_amount"`
	ExemptAmount    decimal.Decimal      `json:"exempt_amount"`
	DutyAmount      decimal.Decimal      `json:"duty_amount"`
	AdvanceTax      decimal.Decimal      `json:"advance_tax"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	InvoiceCount    int64                `json:"invoice_count"`
	PaymentCount    int64                `json:"payment_count"`
	CancelledCount  int64                `json:"cancelled_count"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// AccountBalanceDelta is an additive change to one account's yearly totals
type AccountBalanceDelta struct {
	AccountID       valueobject.AccountID
	FiscalYear      string
	FiscalYearStart int
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Postings        int64
}

// PeriodSummaryDelta is an additive change to one period summary
type PeriodSummaryDelta struct {
	FiscalPeriod    string
	FiscalYear      string
	InvoicedAmount  decimal.Decimal
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	ZeroRatedAmount decimal.Decimal
	ExemptAmount    decimal.Decimal
	DutyAmount      decimal.Decimal
	AdvanceTax      decimal.Decimal
	PaidAmount      decimal.Decimal
	InvoiceCount    int64
	PaymentCount    int64
	CancelledCount  int64
}

// ClosedPeriodView lists a closed fiscal period of a tenant
type ClosedPeriodView struct {
	TenantID valueobject.TenantID `json:"tenant_id"`
	Label    string               `json:"label"`
	Start    time.Time            `json:"start"`
	End      time.Time            `json:"end"`
	ClosedAt time.Time            `json:"closed_at"`
	ClosedBy string               `json:"closed_by,omitempty"`
}
