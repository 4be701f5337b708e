package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ===================== Account Commands =====================

// OpenAccountCommand opens a ledger account
type OpenAccountCommand struct {
	TenantID valueobject.TenantID   `json:"tenant_id" validate:"required"`
	Code     string                 `json:"code" validate:"required,max=32"`
	Name     string                 `json:"name" validate:"required,max=200"`
	Type     string                 `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID *valueobject.AccountID `json:"parent_id,omitempty"`
	Currency string                 `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// RenameAccountCommand changes an account's display name
type RenameAccountCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	AccountID valueobject.AccountID `json:"account_id" validate:"required"`
	Name      string                `json:"name" validate:"required,max=200"`
}

// DeactivateAccountCommand closes an account for further postings
type DeactivateAccountCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	AccountID valueobject.AccountID `json:"account_id" validate:"required"`
	Reason    string                `json:"reason,omitempty" validate:"max=500"`
}

// ===================== Invoice Commands =====================

// LineItemCommand is one priced line of an invoice
type LineItemCommand struct {
	Description string           `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal  `json:"unit_price" validate:"gt=0"`
	VATCategory string           `json:"vat_category" validate:"required,oneof=standard reduced minimal zero exempt"`
	Duty        *decimal.Decimal `json:"duty,omitempty" validate:"omitempty,gte=0"`
	AdvanceTax  *decimal.Decimal `json:"advance_tax,omitempty" validate:"omitempty,gte=0"`
}

// CreateInvoiceCommand creates a draft invoice, optionally with its lines.
// Number defaults to a generated INV- number.
type CreateInvoiceCommand struct {
	TenantID   valueobject.TenantID `json:"tenant_id" validate:"required"`
	Number     string               `json:"number,omitempty" validate:"max=64"`
	VendorID   valueobject.PartyID  `json:"vendor_id" validate:"required"`
	CustomerID valueobject.PartyID  `json:"customer_id" validate:"required"`
	Currency   string               `json:"currency,omitempty" validate:"omitempty,len=3"`
	IssueDate  time.Time            `json:"issue_date" validate:"required"`
	DueDate    *time.Time           `json:"due_date,omitempty"`
	Lines      []LineItemCommand    `json:"lines,omitempty" validate:"dive"`
}

// AddInvoiceLineCommand adds a line to a draft invoice
type AddInvoiceLineCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	Line      LineItemCommand       `json:"line"`
}

// RemoveInvoiceLineCommand removes a line from a draft invoice
type RemoveInvoiceLineCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	LineNo    int                   `json:"line_no" validate:"gt=0"`
}

// ApproveInvoiceCommand approves a draft invoice. RegulatoryNumber defaults
// to a generated REG- number.
type ApproveInvoiceCommand struct {
	TenantID         valueobject.TenantID  `json:"tenant_id" validate:"required"`
	InvoiceID        valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	RegulatoryNumber string                `json:"regulatory_number,omitempty" validate:"max=64"`
}

// CancelInvoiceCommand cancels an invoice that has no payment
type CancelInvoiceCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	Reason    string                `json:"reason" validate:"required,max=500"`
}

// RecordInvoicePaymentCommand records a payment against an approved invoice directly
type RecordInvoicePaymentCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	PaymentID valueobject.PaymentID `json:"payment_id" validate:"required"`
	Amount    decimal.Decimal       `json:"amount" validate:"gt=0"`
}

// ===================== Payment Commands =====================

// CreatePaymentCommand registers a pending payment for an invoice. Number
// defaults to a generated PAY- number; the currency is the invoice's.
type CreatePaymentCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	Number    string                `json:"number,omitempty" validate:"max=64"`
	InvoiceID valueobject.InvoiceID `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal       `json:"amount" validate:"gt=0"`
	Method    string                `json:"method" validate:"required,oneof=BANK_TRANSFER CHECK CASH CARD TELEBIRR CBE_BIRR M_PESA"`
}

// InitiateWalletCommand starts a mobile wallet payment
type InitiateWalletCommand struct {
	TenantID        valueobject.TenantID  `json:"tenant_id" validate:"required"`
	PaymentID       valueobject.PaymentID `json:"payment_id" validate:"required"`
	WalletReference string                `json:"wallet_reference" validate:"required,max=128"`
}

// CompletePaymentCommand settles a payment and applies it to its invoice
type CompletePaymentCommand struct {
	TenantID          valueobject.TenantID  `json:"tenant_id" validate:"required"`
	PaymentID         valueobject.PaymentID `json:"payment_id" validate:"required"`
	ExternalReference string                `json:"external_reference,omitempty" validate:"max=128"`
}

// FailPaymentCommand marks a pending payment as failed
type FailPaymentCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	PaymentID valueobject.PaymentID `json:"payment_id" validate:"required"`
	Reason    string                `json:"reason" validate:"required,max=500"`
}

// ReconcilePaymentCommand matches a completed payment to a bank statement line
type ReconcilePaymentCommand struct {
	TenantID      valueobject.TenantID  `json:"tenant_id" validate:"required"`
	PaymentID     valueobject.PaymentID `json:"payment_id" validate:"required"`
	BankReference string                `json:"bank_reference" validate:"required,max=128"`
}

// ReversePaymentCommand reverses a settled payment
type ReversePaymentCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	PaymentID valueobject.PaymentID `json:"payment_id" validate:"required"`
	Reason    string                `json:"reason" validate:"required,max=500"`
}

// ===================== Journal Commands =====================

// JournalLineCommand is one side of a double entry. Exactly one of Debit and
// Credit must be positive.
type JournalLineCommand struct {
	AccountID valueobject.AccountID `json:"account_id" validate:"required"`
	Debit     *decimal.Decimal      `json:"debit,omitempty" validate:"omitempty,gte=0"`
	Credit    *decimal.Decimal      `json:"credit,omitempty" validate:"omitempty,gte=0"`
	Memo      string                `json:"memo,omitempty" validate:"max=500"`
}

// CreateJournalCommand creates a draft journal. Number defaults to a
// generated number with the type's prefix.
type CreateJournalCommand struct {
	TenantID    valueobject.TenantID `json:"tenant_id" validate:"required"`
	Number      string               `json:"number,omitempty" validate:"max=64"`
	Type        string               `json:"type" validate:"required,oneof=GENERAL SALES PURCHASE CASH_RECEIPT CASH_DISBURSEMENT ADJUSTMENT"`
	JournalDate time.Time            `json:"journal_date" validate:"required"`
	Description string               `json:"description,omitempty" validate:"max=500"`
	Currency    string               `json:"currency,omitempty" validate:"omitempty,len=3"`
	Lines       []JournalLineCommand `json:"lines,omitempty" validate:"dive"`
	// Post posts the journal right after creating it
	Post bool `json:"post,omitempty"`
}

// AddJournalLineCommand adds a line to a draft journal
type AddJournalLineCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	JournalID valueobject.JournalID `json:"journal_id" validate:"required"`
	Line      JournalLineCommand    `json:"line"`
}

// RemoveJournalLineCommand removes a line from a draft journal
type RemoveJournalLineCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	JournalID valueobject.JournalID `json:"journal_id" validate:"required"`
	LineNo    int                   `json:"line_no" validate:"gt=0"`
}

// PostJournalCommand posts a balanced draft journal
type PostJournalCommand struct {
	TenantID  valueobject.TenantID  `json:"tenant_id" validate:"required"`
	JournalID valueobject.JournalID `json:"journal_id" validate:"required"`
}

// ReverseJournalCommand reverses a posted journal. ReversalDate defaults to
// the original journal date; Number defaults to a generated RJ- number.
type ReverseJournalCommand struct {
	TenantID     valueobject.TenantID  `json:"tenant_id" validate:"required"`
	JournalID    valueobject.JournalID `json:"journal_id" validate:"required"`
	Number       string                `json:"number,omitempty" validate:"max=64"`
	ReversalDate *time.Time            `json:"reversal_date,omitempty"`
	Reason       string                `json:"reason" validate:"required,max=500"`
}

// ===================== Period Commands =====================

// ClosePeriodCommand closes a fiscal period for posting
type ClosePeriodCommand struct {
	TenantID valueobject.TenantID `json:"tenant_id" validate:"required"`
	Period   string               `json:"period" validate:"required"`
	ClosedBy string               `json:"closed_by,omitempty" validate:"max=128"`
}

// ReopenPeriodCommand opens a closed fiscal period again
type ReopenPeriodCommand struct {
	TenantID valueobject.TenantID `json:"tenant_id" validate:"required"`
	Period   string               `json:"period" validate:"required"`
	Reason   string               `json:"reason" validate:"required,max=500"`
}
