package valueobject

import (
	"fmt"

	"github.com/google/uuid"
)

// TenantID identifies the tenant that owns every aggregate and read row
type TenantID uuid.UUID

// AccountID identifies a ledger account
type AccountID uuid.UUID

// InvoiceID identifies an invoice
type InvoiceID uuid.UUID

// PaymentID identifies a payment
type PaymentID uuid.UUID

// JournalID identifies a journal entry
type JournalID uuid.UUID

// PartyID identifies a vendor or customer
type PartyID uuid.UUID

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, s, err)
	}
	return id, nil
}

func unmarshalID(kind string, dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	id, err := parseID(kind, string(b))
	if err != nil {
		return err
	}
	*dst = id
	return nil
}

// NewTenantID generates a tenant id
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// ParseTenantID parses a tenant id
func ParseTenantID(s string) (TenantID, error) {
	id, err := parseID("tenant", s)
	return TenantID(id), err
}

func (id TenantID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id TenantID) String() string { return uuid.UUID(id).String() }
func (id TenantID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *TenantID) UnmarshalText(b []byte) error {
	return unmarshalID("tenant", (*uuid.UUID)(id), b)
}

// NewAccountID generates an account id
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// ParseAccountID parses an account id
func ParseAccountID(s string) (AccountID, error) {
	id, err := parseID("account", s)
	return AccountID(id), err
}

func (id AccountID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id AccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *AccountID) UnmarshalText(b []byte) error {
	return unmarshalID("account", (*uuid.UUID)(id), b)
}

// NewInvoiceID generates an invoice id
func NewInvoiceID() InvoiceID { return InvoiceID(uuid.New()) }

// ParseInvoiceID parses an invoice id
func ParseInvoiceID(s string) (InvoiceID, error) {
	id, err := parseID("invoice", s)
	return InvoiceID(id), err
}

func (id InvoiceID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id InvoiceID) String() string { return uuid.UUID(id).String() }
func (id InvoiceID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id InvoiceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *InvoiceID) UnmarshalText(b []byte) error {
	return unmarshalID("invoice", (*uuid.UUID)(id), b)
}

// NewPaymentID generates a payment id
func NewPaymentID() PaymentID { return PaymentID(uuid.New()) }

// ParsePaymentID parses a payment id
func ParsePaymentID(s string) (PaymentID, error) {
	id, err := parseID("payment", s)
	return PaymentID(id), err
}

func (id PaymentID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id PaymentID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *PaymentID) UnmarshalText(b []byte) error {
	return unmarshalID("payment", (*uuid.UUID)(id), b)
}

// NewJournalID generates a journal id
func NewJournalID() JournalID { return JournalID(uuid.New()) }

// ParseJournalID parses a journal id
func ParseJournalID(s string) (JournalID, error) {
	id, err := parseID("journal", s)
	return JournalID(id), err
}

func (id JournalID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id JournalID) String() string { return uuid.UUID(id).String() }
func (id JournalID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id JournalID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *JournalID) UnmarshalText(b []byte) error {
	return unmarshalID("journal", (*uuid.UUID)(id), b)
}

// NewPartyID generates a party id
func NewPartyID() PartyID { return PartyID(uuid.New()) }

// ParsePartyID parses a vendor or customer id
func ParsePartyID(s string) (PartyID, error) {
	id, err := parseID("party", s)
	return PartyID(id), err
}

func (id PartyID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id PartyID) String() string { return uuid.UUID(id).String() }
func (id PartyID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id PartyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *PartyID) UnmarshalText(b []byte) error {
	return unmarshalID("party", (*uuid.UUID)(id), b)
}
