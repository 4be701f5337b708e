package report

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(code string, accountType finance.AccountType, debit, credit int64) finance.AccountBalanceInput {
	c, err := valueobject.NewAccountCode(code)
	if err != nil {
		panic(err)
	}
	return finance.AccountBalanceInput{
		AccountID:   valueobject.NewAccountID(),
		Code:        c,
		Name:        "Account " + code,
		Type:        accountType,
		DebitTotal:  decimal.NewFromInt(debit),
		CreditTotal: decimal.NewFromInt(credit),
	}
}

func sampleTrialBalance() *finance.TrialBalance {
	balances := []finance.AccountBalanceInput{
		input("1000", finance.AccountTypeAsset, 12000, 2000),
		input("1100", finance.AccountTypeAsset, 3000, 0),
		input("2000", finance.AccountTypeLiability, 0, 4000),
		input("3000", finance.AccountTypeEquity, 0, 5000),
		input("4000", finance.AccountTypeRevenue, 0, 10000),
		input("6000", finance.AccountTypeExpense, 6000, 0),
	}
	return finance.BuildTrialBalance(valueobject.NewTenantID(), "FY2025/26", valueobject.ETB, balances, time.Now())
}

func TestNewIncomeStatement(t *testing.T) {
	t.Run("net income is revenue minus expenses", func(t *testing.T) {
		tb := sampleTrialBalance()
		require.True(t, tb.IsBalanced())

		s := NewIncomeStatement(tb)

		assert.Equal(t, "FY2025/26", s.FiscalYear)
		assert.True(t, s.Revenue.Total.Equal(decimal.NewFromInt(10000)))
		assert.True(t, s.Expenses.Total.Equal(decimal.NewFromInt(6000)))
		assert.True(t, s.NetIncome.Equal(decimal.NewFromInt(4000)))
		assert.True(t, s.NetMargin.Equal(decimal.NewFromInt(40)))
		assert.True(t, s.IsProfitable())
		assert.Len(t, s.Revenue.Lines, 1)
	})

	t.Run("no revenue gives zero margin", func(t *testing.T) {
		tb := finance.BuildTrialBalance(valueobject.NewTenantID(), "FY2025/26", valueobject.ETB, []finance.AccountBalanceInput{
			input("1000", finance.AccountTypeAsset, 0, 500),
			input("6000", finance.AccountTypeExpense, 500, 0),
		}, time.Now())

		s := NewIncomeStatement(tb)

		assert.True(t, s.NetMargin.IsZero())
		assert.True(t, s.NetIncome.Equal(decimal.NewFromInt(-500)))
		assert.False(t, s.IsProfitable())
		assert.Empty(t, s.Revenue.Lines)
	})
}

func TestNewBalanceSheet(t *testing.T) {
	t.Run("assets equal liabilities plus equity and earnings", func(t *testing.T) {
		bs := NewBalanceSheet(sampleTrialBalance())

		assert.True(t, bs.Assets.Total.Equal(decimal.NewFromInt(13000)))
		assert.True(t, bs.Liabilities.Total.Equal(decimal.NewFromInt(4000)))
		assert.True(t, bs.Equity.Total.Equal(decimal.NewFromInt(5000)))
		assert.True(t, bs.CurrentEarnings.Equal(decimal.NewFromInt(4000)))
		assert.True(t, bs.TotalEquity.Equal(decimal.NewFromInt(9000)))
		assert.True(t, bs.LiabilitiesAndEquity.Equal(decimal.NewFromInt(13000)))
		assert.True(t, bs.IsBalanced())
	})

	t.Run("unbalanced ledger shows a difference", func(t *testing.T) {
		tb := finance.BuildTrialBalance(valueobject.NewTenantID(), "FY2025/26", valueobject.ETB, []finance.AccountBalanceInput{
			input("1000", finance.AccountTypeAsset, 1000, 0),
			input("2000", finance.AccountTypeLiability, 0, 900),
		}, time.Now())

		bs := NewBalanceSheet(tb)

		assert.False(t, bs.IsBalanced())
		assert.True(t, bs.Difference.Equal(decimal.NewFromInt(100)))
	})

	t.Run("uses the trial balance tolerance", func(t *testing.T) {
		balances := []finance.AccountBalanceInput{
			input("1000", finance.AccountTypeAsset, 1000, 0),
			input("2000", finance.AccountTypeLiability, 0, 900),
		}
		tb := finance.BuildTrialBalance(valueobject.NewTenantID(), "FY2025/26", valueobject.ETB, balances, time.Now(),
			finance.WithVarianceTolerance(decimal.NewFromInt(100)))

		bs := NewBalanceSheet(tb)

		assert.True(t, bs.Tolerance.Equal(decimal.NewFromInt(100)))
		assert.True(t, bs.IsBalanced())
	})
}
