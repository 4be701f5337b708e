package event

import (
	"github.com/erp/ledger/internal/domain/finance"
)

// RegisterLedgerEvents registers every ledger event type with the serializer.
// This must be called during application startup before loading any stream.
func RegisterLedgerEvents(s *EventSerializer) {
	// Account events
	s.Register(finance.EventTypeAccountOpened, &finance.AccountOpenedEvent{})
	s.Register(finance.EventTypeAccountRenamed, &finance.AccountRenamedEvent{})
	s.Register(finance.EventTypeAccountBalanceChanged, &finance.AccountBalanceChangedEvent{})
	s.Register(finance.EventTypeAccountDeactivated, &finance.AccountDeactivatedEvent{})

	// Invoice events
	s.Register(finance.EventTypeInvoiceCreated, &finance.InvoiceCreatedEvent{})
	s.Register(finance.EventTypeInvoiceLineItemAdded, &finance.InvoiceLineItemAddedEvent{})
	s.Register(finance.EventTypeInvoiceLineItemRemoved, &finance.InvoiceLineItemRemovedEvent{})
	s.Register(finance.EventTypeInvoiceApproved, &finance.InvoiceApprovedEvent{})
	s.Register(finance.EventTypeInvoicePaymentRecorded, &finance.InvoicePaymentRecordedEvent{})
	s.Register(finance.EventTypeInvoiceFullyPaid, &finance.InvoiceFullyPaidEvent{})
	s.Register(finance.EventTypeInvoiceCancelled, &finance.InvoiceCancelledEvent{})

	// Payment events
	s.Register(finance.EventTypePaymentCreated, &finance.PaymentCreatedEvent{})
	s.Register(finance.EventTypePaymentWalletInitiated, &finance.PaymentWalletInitiatedEvent{})
	s.Register(finance.EventTypePaymentCompleted, &finance.PaymentCompletedEvent{})
	s.Register(finance.EventTypePaymentFailed, &finance.PaymentFailedEvent{})
	s.Register(finance.EventTypePaymentReconciled, &finance.PaymentReconciledEvent{})
	s.Register(finance.EventTypePaymentReversed, &finance.PaymentReversedEvent{})
	s.Register(finance.EventTypePaymentAppliedToInvoice, &finance.PaymentAppliedToInvoiceEvent{})
	s.Register(finance.EventTypePaymentInvoiceSyncFailed, &finance.PaymentInvoiceSyncFailedEvent{})

	// Journal events
	s.Register(finance.EventTypeJournalEntryCreated, &finance.JournalEntryCreatedEvent{})
	s.Register(finance.EventTypeJournalLineAdded, &finance.JournalLineAddedEvent{})
	s.Register(finance.EventTypeJournalLineRemoved, &finance.JournalLineRemovedEvent{})
	s.Register(finance.EventTypeJournalEntryPosted, &finance.JournalEntryPostedEvent{})
	s.Register(finance.EventTypeJournalEntryReversed, &finance.JournalEntryReversedEvent{})

	// Fiscal period events
	s.Register(finance.EventTypePeriodClosed, &finance.PeriodClosedEvent{})
	s.Register(finance.EventTypePeriodReopened, &finance.PeriodReopenedEvent{})
}

// NewLedgerSerializer returns a serializer with every ledger event registered
func NewLedgerSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterLedgerEvents(s)
	return s
}
