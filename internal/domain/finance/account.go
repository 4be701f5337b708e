package finance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeAccount is the stream type of ledger accounts
const AggregateTypeAccount = "Account"

// AccountType classifies an account in the chart of accounts
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AllAccountTypes lists account types in reporting order
var AllAccountTypes = []AccountType{
	AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense,
}

// IsValid checks if the account type is valid
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// String returns the string representation of AccountType
func (t AccountType) String() string {
	return string(t)
}

// IsDebitNormal returns true for accounts that grow with debits (Asset, Expense)
func (t AccountType) IsDebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// AccountState is the immutable current state of an account. Apply returns
// a new state and never modifies the receiver.
type AccountState struct {
	ID            valueobject.AccountID   `json:"id"`
	TenantID      valueobject.TenantID    `json:"tenant_id"`
	Code          valueobject.AccountCode `json:"code"`
	Name          string                  `json:"name"`
	Type          AccountType             `json:"type"`
	ParentID      *valueobject.AccountID  `json:"parent_id,omitempty"`
	Currency      valueobject.Currency    `json:"currency"`
	Balance       valueobject.Money       `json:"balance"`
	Active        bool                    `json:"active"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	DeactivatedAt *time.Time              `json:"deactivated_at,omitempty"`
}

// Apply folds one event into the account state
func (s AccountState) Apply(event shared.DomainEvent) (AccountState, error) {
	switch e := event.(type) {
	case *AccountOpenedEvent:
		next := AccountState{
			ID:        e.AccountID,
			TenantID:  valueobject.TenantID(e.TenantID()),
			Code:      e.Code,
			Name:      e.Name,
			Type:      e.Type,
			ParentID:  e.ParentID,
			Currency:  e.Currency,
			Balance:   valueobject.Zero(e.Currency),
			Active:    true,
			CreatedAt: e.OccurredAt(),
			UpdatedAt: e.OccurredAt(),
		}
		return next, nil
	case *AccountRenamedEvent:
		s.Name = e.Name
		s.UpdatedAt = e.OccurredAt()
		return s, nil
	case *AccountBalanceChangedEvent:
		if e.Balance.Currency() != s.Currency {
			return s, fmt.Errorf("account %s: balance currency %s does not match %s", s.ID, e.Balance.Currency(), s.Currency)
		}
		s.Balance = e.Balance
		s.UpdatedAt = e.OccurredAt()
		return s, nil
	case *AccountDeactivatedEvent:
		at := e.OccurredAt()
		s.Active = false
		s.DeactivatedAt = &at
		s.UpdatedAt = at
		return s, nil
	default:
		return s, fmt.Errorf("account: unsupported event %s", event.EventType())
	}
}

// FoldAccount rebuilds account state from its full history
func FoldAccount(history []shared.DomainEvent) (AccountState, error) {
	var s AccountState
	for _, e := range history {
		var err error
		if s, err = s.Apply(e); err != nil {
			return AccountState{}, err
		}
	}
	return s, nil
}

// Account is the event-sourced ledger account aggregate
type Account struct {
	shared.EventSourcedAggregate
	state AccountState
}

// NewEmptyAccount returns an account ready to be rehydrated from history
func NewEmptyAccount() *Account {
	return &Account{EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeAccount, uuid.Nil, uuid.Nil)}
}

// OpenAccount validates input and creates a new account
func OpenAccount(
	tenantID valueobject.TenantID,
	code string,
	name string,
	accountType AccountType,
	parentID *valueobject.AccountID,
	currency valueobject.Currency,
) (*Account, error) {
	if tenantID.IsZero() {
		return nil, ErrRequiredField.WithDetail("field", "tenant_id")
	}
	accountCode, err := valueobject.NewAccountCode(code)
	if err != nil {
		return nil, ErrInvalidAccountCode.WithDetail("code", code)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRequiredField.WithDetail("field", "name")
	}
	if !accountType.IsValid() {
		return nil, ErrInvalidAccountType.WithDetail("type", string(accountType))
	}
	if !currency.IsValid() {
		return nil, ErrInvalidCurrency.WithDetail("currency", string(currency))
	}

	id := valueobject.NewAccountID()
	a := &Account{
		EventSourcedAggregate: shared.NewEventSourcedAggregate(AggregateTypeAccount, id.UUID(), tenantID.UUID()),
	}
	event := &AccountOpenedEvent{
		BaseDomainEvent: a.newEvent(EventTypeAccountOpened),
		AccountID:       id,
		Code:            accountCode,
		Name:            name,
		Type:            accountType,
		ParentID:        parentID,
		Currency:        currency,
	}
	if err := a.Raise(event, a.apply); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) newEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeAccount, a.AggregateID(), a.TenantID())
}

func (a *Account) apply(event shared.DomainEvent) error {
	next, err := a.state.Apply(event)
	if err != nil {
		return err
	}
	a.state = next
	return nil
}

// Rehydrate replays persisted history into the account
func (a *Account) Rehydrate(id, tenantID uuid.UUID, history []shared.DomainEvent) error {
	return a.Replay(id, tenantID, history, a.apply)
}

// State returns a copy of the current state
func (a *Account) State() AccountState {
	return a.state
}

// ID returns the typed account id
func (a *Account) ID() valueobject.AccountID {
	return a.state.ID
}

// Code returns the account code
func (a *Account) Code() valueobject.AccountCode {
	return a.state.Code
}

// Type returns the account type
func (a *Account) Type() AccountType {
	return a.state.Type
}

// Currency returns the balance currency
func (a *Account) Currency() valueobject.Currency {
	return a.state.Currency
}

// Balance returns the running balance in the account's normal direction
func (a *Account) Balance() valueobject.Money {
	return a.state.Balance
}

// IsActive reports whether the account accepts postings
func (a *Account) IsActive() bool {
	return a.state.Active
}

// Rename changes the account's display name
func (a *Account) Rename(name string) error {
	if !a.state.Active {
		return ErrAccountInactive
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRequiredField.WithDetail("field", "name")
	}
	if name == a.state.Name {
		return nil
	}
	return a.Raise(&AccountRenamedEvent{
		BaseDomainEvent: a.newEvent(EventTypeAccountRenamed),
		AccountID:       a.state.ID,
		Name:            name,
	}, a.apply)
}

// ApplyJournalPosting moves the running balance by the journal's debit and
// credit totals for this account. The balance grows with debits on
// debit-normal accounts and with credits on credit-normal ones. The event
// claims the (account, journal) pair, so the event store rejects a second
// application of the same journal with IsPostingApplied.
func (a *Account) ApplyJournalPosting(journalID valueobject.JournalID, debit, credit valueobject.Money) error {
	if !a.state.Active {
		return ErrAccountInactive.WithDetail("account_code", a.state.Code.String())
	}
	if debit.Currency() != a.state.Currency || credit.Currency() != a.state.Currency {
		return shared.ErrCurrencyMismatch.
			WithDetail("account_currency", string(a.state.Currency)).
			WithDetail("posting_currency", string(debit.Currency()))
	}
	if debit.IsNegative() || credit.IsNegative() || (debit.IsZero() && credit.IsZero()) {
		return ErrInvalidAmount.WithDetail("debit", debit.StringFixed(2)).WithDetail("credit", credit.StringFixed(2))
	}

	delta := debit.MustSubtract(credit)
	if !a.state.Type.IsDebitNormal() {
		delta = delta.Negate()
	}
	event := &AccountBalanceChangedEvent{
		BaseDomainEvent: a.newEvent(EventTypeAccountBalanceChanged),
		AccountID:       a.state.ID,
		JournalID:       journalID,
		Debit:           debit,
		Credit:          credit,
		Balance:         a.state.Balance.MustAdd(delta),
	}
	return a.Raise(event, a.apply)
}

// IsPostingApplied reports whether err is the event store rejecting a
// journal that the account already holds
func IsPostingApplied(err error) bool {
	var de *shared.DomainError
	if !errors.As(err, &de) || !errors.Is(de, shared.ErrAlreadyExists) {
		return false
	}
	return de.Details["scope"] == AccountPostingClaimScope
}

// Deactivate closes the account. Accounts carrying a balance cannot be deactivated.
func (a *Account) Deactivate(reason string) error {
	if !a.state.Active {
		return ErrInvalidTransition.WithDetail("status", "INACTIVE")
	}
	if !a.state.Balance.IsZero() {
		return ErrAccountHasBalance.WithDetail("balance", a.state.Balance.String())
	}
	return a.Raise(&AccountDeactivatedEvent{
		BaseDomainEvent: a.newEvent(EventTypeAccountDeactivated),
		AccountID:       a.state.ID,
		Reason:          strings.TrimSpace(reason),
	}, a.apply)
}

// SnapshotState captures the current state for the snapshot store
func (a *Account) SnapshotState() ([]byte, error) {
	return json.Marshal(a.state)
}

// RestoreSnapshot loads state captured by SnapshotState
func (a *Account) RestoreSnapshot(id, tenantID uuid.UUID, version int64, data []byte) error {
	var s AccountState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore account snapshot: %w", err)
	}
	a.state = s
	a.RestoreVersion(id, tenantID, version)
	return nil
}
