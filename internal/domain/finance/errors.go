package finance

import "github.com/erp/ledger/internal/domain/shared"

// Ledger rule violations. Validation-kind errors reject malformed input
// before any event is produced; the rest block a state transition.
var (
	ErrInvalidAccountCode   = shared.NewValidationError("INVALID_ACCOUNT_CODE", "Account code must match NNNN or NNNN-NN[-NN...]")
	ErrInvalidAccountType   = shared.NewValidationError("INVALID_ACCOUNT_TYPE", "Unknown account type")
	ErrInvalidAmount        = shared.NewValidationError("INVALID_AMOUNT", "Amount must be positive")
	ErrInvalidCurrency      = shared.NewValidationError("INVALID_CURRENCY", "Unsupported currency")
	ErrInvalidLine          = shared.NewValidationError("INVALID_JOURNAL_LINE", "Journal line must have exactly one non-zero side")
	ErrInvalidVATCategory   = shared.NewValidationError("INVALID_VAT_CATEGORY", "Unknown VAT category")
	ErrInvalidQuantity      = shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive")
	ErrInvalidPaymentMethod = shared.NewValidationError("INVALID_PAYMENT_METHOD", "Unknown payment method")
	ErrInvalidJournalType   = shared.NewValidationError("INVALID_JOURNAL_TYPE", "Unknown journal type")
	ErrInvalidJournalNumber = shared.NewValidationError("INVALID_JOURNAL_NUMBER", "Journal number must carry its type prefix")
	ErrInvalidPeriodLabel   = shared.NewValidationError("INVALID_PERIOD_LABEL", "Fiscal period label is malformed")
	ErrRequiredField        = shared.NewValidationError("REQUIRED_FIELD", "A required field is missing")
	ErrReversalDateTooEarly = shared.NewValidationError("REVERSAL_DATE_BEFORE_ORIGINAL", "Reversal must be dated on or after the original journal")

	ErrAccountInactive        = shared.NewInvariantError("ACCOUNT_INACTIVE", "Account is deactivated")
	ErrAccountHasBalance      = shared.NewInvariantError("ACCOUNT_HAS_BALANCE", "Account with non-zero balance cannot be deactivated")
	ErrInvoiceNotDraft        = shared.NewInvariantError("INVOICE_NOT_DRAFT", "Invoice can only be changed while in draft")
	ErrInvoiceEmpty           = shared.NewInvariantError("INVOICE_EMPTY", "Invoice must have at least one line item with a positive total")
	ErrInvoiceNotApproved     = shared.NewInvariantError("INVOICE_NOT_APPROVED", "Payments can only be recorded against approved invoices")
	ErrInvoiceHasPayments     = shared.NewInvariantError("INVOICE_HAS_PAYMENTS", "Invoice with recorded payments cannot be cancelled")
	ErrInvalidTransition      = shared.NewInvariantError("INVALID_STATUS_TRANSITION", "Status transition is not allowed")
	ErrPaymentCompleted       = shared.NewInvariantError("PAYMENT_ALREADY_COMPLETED", "A completed payment cannot be marked failed")
	ErrPaymentNotCompleted    = shared.NewInvariantError("PAYMENT_NOT_COMPLETED", "Payment must be completed first")
	ErrWalletNotInitiated     = shared.NewInvariantError("WALLET_NOT_INITIATED", "Mobile wallet payment must be initiated before settlement")
	ErrNotWalletPayment       = shared.NewInvariantError("NOT_WALLET_PAYMENT", "Only mobile wallet payments can be initiated")
	ErrJournalNotDraft        = shared.NewInvariantError("JOURNAL_NOT_DRAFT", "Journal can only be changed while in draft")
	ErrJournalNotPosted       = shared.NewInvariantError("JOURNAL_NOT_POSTED", "Only posted journals can be reversed")
	ErrJournalAlreadyReversed = shared.NewInvariantError("JOURNAL_ALREADY_REVERSED", "Journal has already been reversed")
	ErrJournalEmpty           = shared.NewInvariantError("JOURNAL_EMPTY", "Journal needs at least one debit and one credit line")
	ErrPeriodNotEnded         = shared.NewInvariantError("PERIOD_NOT_ENDED", "Only periods that have ended can be closed")
	ErrPeriodAlreadyClosed    = shared.NewInvariantError("PERIOD_ALREADY_CLOSED", "Period is already closed")
	ErrPeriodNotClosed        = shared.NewInvariantError("PERIOD_NOT_CLOSED", "Period is not closed")
)
