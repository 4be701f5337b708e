package finance

import (
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// Account event types
const (
	EventTypeAccountOpened         = "AccountOpened"
	EventTypeAccountRenamed        = "AccountRenamed"
	EventTypeAccountBalanceChanged = "AccountBalanceChanged"
	EventTypeAccountDeactivated    = "AccountDeactivated"
)

// AccountCodeClaimScope is the uniqueness scope for account codes within a tenant
const AccountCodeClaimScope = "account_code"

// AccountPostingClaimScope is the uniqueness scope for journals applied to an account
const AccountPostingClaimScope = "account_posting"

// AccountOpenedEvent is raised when a ledger account is created
type AccountOpenedEvent struct {
	shared.BaseDomainEvent
	AccountID valueobject.AccountID   `json:"account_id"`
	Code      valueobject.AccountCode `json:"code"`
	Name      string                  `json:"name"`
	Type      AccountType             `json:"type"`
	ParentID  *valueobject.AccountID  `json:"parent_id,omitempty"`
	Currency  valueobject.Currency    `json:"currency"`
}

// EventType returns the event type name
func (e *AccountOpenedEvent) EventType() string {
	return EventTypeAccountOpened
}

// UniqueClaims reserves the account code within the tenant
func (e *AccountOpenedEvent) UniqueClaims() []shared.UniqueClaim {
	return []shared.UniqueClaim{{Scope: AccountCodeClaimScope, Value: e.Code.String()}}
}

// AccountRenamedEvent is raised when an account's display name changes
type AccountRenamedEvent struct {
	shared.BaseDomainEvent
	AccountID valueobject.AccountID `json:"account_id"`
	Name      string                `json:"name"`
}

// EventType returns the event type name
func (e *AccountRenamedEvent) EventType() string {
	return EventTypeAccountRenamed
}

// AccountBalanceChangedEvent is raised when a posted journal touches the account.
// Debit and Credit are the journal's totals for this account.
type AccountBalanceChangedEvent struct {
	shared.BaseDomainEvent
	AccountID valueobject.AccountID `json:"account_id"`
	JournalID valueobject.JournalID `json:"journal_id"`
	Debit     valueobject.Money     `json:"debit"`
	Credit    valueobject.Money     `json:"credit"`
	Balance   valueobject.Money     `json:"balance"`
}

// EventType returns the event type name
func (e *AccountBalanceChangedEvent) EventType() string {
	return EventTypeAccountBalanceChanged
}

// UniqueClaims reserves the (account, journal) pair so a journal is applied
// to the account at most once
func (e *AccountBalanceChangedEvent) UniqueClaims() []shared.UniqueClaim {
	return []shared.UniqueClaim{{Scope: AccountPostingClaimScope, Value: PostingClaimValue(e.AccountID, e.JournalID)}}
}

// PostingClaimValue is the claim value of a journal applied to an account
func PostingClaimValue(accountID valueobject.AccountID, journalID valueobject.JournalID) string {
	return accountID.String() + "/" + journalID.String()
}

// AccountDeactivatedEvent is raised when an account is closed for further postings
type AccountDeactivatedEvent struct {
	shared.BaseDomainEvent
	AccountID valueobject.AccountID `json:"account_id"`
	Reason    string                `json:"reason,omitempty"`
}

// EventType returns the event type name
func (e *AccountDeactivatedEvent) EventType() string {
	return EventTypeAccountDeactivated
}
