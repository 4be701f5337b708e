package report

import (
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// StatementLine is one account row of a financial statement
type StatementLine struct {
	AccountID valueobject.AccountID   `json:"account_id"`
	Code      valueobject.AccountCode `json:"code"`
	Name      string                  `json:"name"`
	Amount    decimal.Decimal         `json:"amount"` // in the account's normal direction
}

// StatementSection groups the lines of one account type
type StatementSection struct {
	Type  finance.AccountType `json:"type"`
	Lines []StatementLine     `json:"lines"`
	Total decimal.Decimal     `json:"total"`
}

func sectionFrom(tb *finance.TrialBalance, t finance.AccountType) StatementSection {
	section := StatementSection{Type: t, Lines: []StatementLine{}, Total: decimal.Zero}
	group := tb.Group(t)
	if group == nil {
		return section
	}
	for _, l := range group.Lines {
		section.Lines = append(section.Lines, StatementLine{
			AccountID: l.AccountID,
			Code:      l.Code,
			Name:      l.Name,
			Amount:    l.Balance,
		})
		section.Total = section.Total.Add(l.Balance)
	}
	return section
}

// IncomeStatement is the profit and loss view of a fiscal year
type IncomeStatement struct {
	TenantID    valueobject.TenantID `json:"tenant_id"`
	FiscalYear  string               `json:"fiscal_year"`
	Currency    valueobject.Currency `json:"currency"`
	GeneratedAt time.Time            `json:"generated_at"`
	Revenue     StatementSection     `json:"revenue"`
	Expenses    StatementSection     `json:"expenses"`
	NetIncome   decimal.Decimal      `json:"net_income"` // Revenue - Expenses
	NetMargin   decimal.Decimal      `json:"net_margin"` // NetIncome / Revenue * 100
}

// NewIncomeStatement derives the income statement from a trial balance
func NewIncomeStatement(tb *finance.TrialBalance) *IncomeStatement {
	s := &IncomeStatement{
		TenantID:    tb.TenantID,
		FiscalYear:  tb.FiscalYear,
		Currency:    tb.Currency,
		GeneratedAt: tb.GeneratedAt,
		Revenue:     sectionFrom(tb, finance.AccountTypeRevenue),
		Expenses:    sectionFrom(tb, finance.AccountTypeExpense),
		NetMargin:   decimal.Zero,
	}
	s.NetIncome = s.Revenue.Total.Sub(s.Expenses.Total)
	if !s.Revenue.Total.IsZero() {
		s.NetMargin = s.NetIncome.Div(s.Revenue.Total).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return s
}

// IsProfitable returns true when revenue exceeds expenses
func (s *IncomeStatement) IsProfitable() bool {
	return s.NetIncome.IsPositive()
}

// BalanceSheet is the financial position at the end of a fiscal year.
// Current earnings close revenue and expense into equity.
type BalanceSheet struct {
	TenantID             valueobject.TenantID `json:"tenant_id"`
	FiscalYear           string               `json:"fiscal_year"`
	Currency             valueobject.Currency `json:"currency"`
	GeneratedAt          time.Time            `json:"generated_at"`
	Assets               StatementSection     `json:"assets"`
	Liabilities          StatementSection     `json:"liabilities"`
	Equity               StatementSection     `json:"equity"`
	CurrentEarnings      decimal.Decimal      `json:"current_earnings"`
	TotalEquity          decimal.Decimal      `json:"total_equity"`                 // Equity + CurrentEarnings
	LiabilitiesAndEquity decimal.Decimal      `json:"total_liabilities_and_equity"` // Liabilities + TotalEquity
	Difference           decimal.Decimal      `json:"difference"`                   // Assets - LiabilitiesAndEquity
	Tolerance            decimal.Decimal      `json:"tolerance"`
}

// NewBalanceSheet derives the balance sheet from a trial balance
func NewBalanceSheet(tb *finance.TrialBalance) *BalanceSheet {
	income := NewIncomeStatement(tb)
	bs := &BalanceSheet{
		TenantID:        tb.TenantID,
		FiscalYear:      tb.FiscalYear,
		Currency:        tb.Currency,
		GeneratedAt:     tb.GeneratedAt,
		Assets:          sectionFrom(tb, finance.AccountTypeAsset),
		Liabilities:     sectionFrom(tb, finance.AccountTypeLiability),
		Equity:          sectionFrom(tb, finance.AccountTypeEquity),
		CurrentEarnings: income.NetIncome,
		Tolerance:       tb.Tolerance,
	}
	bs.TotalEquity = bs.Equity.Total.Add(bs.CurrentEarnings)
	bs.LiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.TotalEquity)
	bs.Difference = bs.Assets.Total.Sub(bs.LiabilitiesAndEquity)
	return bs
}

// IsBalanced returns true when assets equal liabilities plus equity within
// the trial balance's tolerance
func (bs *BalanceSheet) IsBalanced() bool {
	return !bs.Difference.Abs().GreaterThan(bs.Tolerance)
}
