package finance

import (
	"sort"
	"time"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TrialBalanceStatus represents the result status of a trial balance
type TrialBalanceStatus string

const (
	TrialBalanceStatusBalanced   TrialBalanceStatus = "BALANCED"   // Debit equals Credit
	TrialBalanceStatusUnbalanced TrialBalanceStatus = "UNBALANCED" // Debit does not equal Credit
)

// IsValid checks if the status is a valid TrialBalanceStatus
func (s TrialBalanceStatus) IsValid() bool {
	return s == TrialBalanceStatusBalanced || s == TrialBalanceStatusUnbalanced
}

// String returns the string representation
func (s TrialBalanceStatus) String() string {
	return string(s)
}

// IsBalanced returns true if the trial balance is balanced
func (s TrialBalanceStatus) IsBalanced() bool {
	return s == TrialBalanceStatusBalanced
}

// AccountBalanceInput is the pre-aggregated activity of one account used to
// build a trial balance. Debit and credit totals are cumulative up to the
// reported fiscal year.
type AccountBalanceInput struct {
	AccountID   valueobject.AccountID
	Code        valueobject.AccountCode
	Name        string
	Type        AccountType
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

// NormalBalance returns the balance in the account's normal direction:
// debits minus credits for debit-normal accounts, the reverse otherwise.
func (in AccountBalanceInput) NormalBalance() decimal.Decimal {
	if in.Type.IsDebitNormal() {
		return in.DebitTotal.Sub(in.CreditTotal)
	}
	return in.CreditTotal.Sub(in.DebitTotal)
}

// TrialBalanceLine is one account row of a trial balance
type TrialBalanceLine struct {
	AccountID valueobject.AccountID   `json:"account_id"`
	Code      valueobject.AccountCode `json:"code"`
	Name      string                  `json:"name"`
	Type      AccountType             `json:"type"`
	Balance   decimal.Decimal         `json:"balance"` // in the account's normal direction
	Debit     decimal.Decimal         `json:"debit"`
	Credit    decimal.Decimal         `json:"credit"`
}

// NewTrialBalanceLine places the account's balance in its column. Debit-normal
// accounts land in the debit column and credit-normal ones in the credit
// column; a negative balance moves to the opposite column as its absolute value.
func NewTrialBalanceLine(in AccountBalanceInput) TrialBalanceLine {
	line := TrialBalanceLine{
		AccountID: in.AccountID,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Balance:   in.NormalBalance(),
		Debit:     decimal.Zero,
		Credit:    decimal.Zero,
	}
	debitSide := in.Type.IsDebitNormal()
	if line.Balance.IsNegative() {
		debitSide = !debitSide
	}
	if debitSide {
		line.Debit = line.Balance.Abs()
	} else {
		line.Credit = line.Balance.Abs()
	}
	return line
}

// TrialBalanceGroup holds the lines of one account type with subtotals
type TrialBalanceGroup struct {
	Type        AccountType        `json:"type"`
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
	Count       int                `json:"count"`
}

// TrialBalance lists every account balance of a tenant for a fiscal year
type TrialBalance struct {
	TenantID    valueobject.TenantID `json:"tenant_id"`
	FiscalYear  string               `json:"fiscal_year"`
	Currency    valueobject.Currency `json:"currency"`
	GeneratedAt time.Time            `json:"generated_at"`
	Status      TrialBalanceStatus   `json:"status"`
	Lines       []TrialBalanceLine   `json:"lines"`
	Groups      []TrialBalanceGroup  `json:"groups"`
	TotalDebit  decimal.Decimal      `json:"total_debit"`
	TotalCredit decimal.Decimal      `json:"total_credit"`
	Difference  decimal.Decimal      `json:"difference"` // TotalDebit - TotalCredit
	Tolerance   decimal.Decimal      `json:"tolerance"`  // largest Difference still balanced

	// Execution metadata
	ExecutionDurationMs int64 `json:"execution_duration_ms"`
}

// IsBalanced returns true if debits equal credits within Tolerance
func (tb *TrialBalance) IsBalanced() bool {
	return tb.Status.IsBalanced()
}

// Group returns the group of the given account type, or nil when it has no lines
func (tb *TrialBalance) Group(t AccountType) *TrialBalanceGroup {
	for i := range tb.Groups {
		if tb.Groups[i].Type == t {
			return &tb.Groups[i]
		}
	}
	return nil
}

// BuildOption configures BuildTrialBalance
type BuildOption func(*TrialBalance)

// WithVarianceTolerance sets the largest difference still reported as
// balanced. Negative values are ignored.
func WithVarianceTolerance(tolerance decimal.Decimal) BuildOption {
	return func(tb *TrialBalance) {
		if !tolerance.IsNegative() {
			tb.Tolerance = tolerance
		}
	}
}

// BuildTrialBalance classifies each account balance into the debit or credit
// column, totals both columns and groups lines by account type. Accounts with
// a zero balance are omitted. The result is unbalanced when the columns differ
// by more than the variance tolerance, PostingTolerance unless overridden.
func BuildTrialBalance(
	tenantID valueobject.TenantID,
	fiscalYear string,
	currency valueobject.Currency,
	balances []AccountBalanceInput,
	generatedAt time.Time,
	opts ...BuildOption,
) *TrialBalance {
	tb := &TrialBalance{
		TenantID:    tenantID,
		FiscalYear:  fiscalYear,
		Currency:    currency,
		GeneratedAt: generatedAt.UTC(),
		Lines:       make([]TrialBalanceLine, 0, len(balances)),
		Groups:      make([]TrialBalanceGroup, 0, len(AllAccountTypes)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		Tolerance:   PostingTolerance(),
	}
	for _, opt := range opts {
		opt(tb)
	}
	for _, in := range balances {
		line := NewTrialBalanceLine(in)
		if line.Balance.IsZero() {
			continue
		}
		tb.Lines = append(tb.Lines, line)
	}
	sort.Slice(tb.Lines, func(i, j int) bool {
		return tb.Lines[i].Code.String() < tb.Lines[j].Code.String()
	})

	for _, t := range AllAccountTypes {
		group := TrialBalanceGroup{Type: t, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
		for _, line := range tb.Lines {
			if line.Type != t {
				continue
			}
			group.Lines = append(group.Lines, line)
			group.TotalDebit = group.TotalDebit.Add(line.Debit)
			group.TotalCredit = group.TotalCredit.Add(line.Credit)
			group.Count++
		}
		if group.Count > 0 {
			tb.Groups = append(tb.Groups, group)
		}
		tb.TotalDebit = tb.TotalDebit.Add(group.TotalDebit)
		tb.TotalCredit = tb.TotalCredit.Add(group.TotalCredit)
	}

	tb.Difference = tb.TotalDebit.Sub(tb.TotalCredit)
	tb.Status = TrialBalanceStatusBalanced
	if tb.Difference.Abs().GreaterThan(tb.Tolerance) {
		tb.Status = TrialBalanceStatusUnbalanced
	}
	return tb
}
