package finance

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrialBalanceStatus(t *testing.T) {
	t.Run("IsValid returns true for valid statuses", func(t *testing.T) {
		assert.True(t, TrialBalanceStatusBalanced.IsValid())
		assert.True(t, TrialBalanceStatusUnbalanced.IsValid())
	})

	t.Run("IsValid returns false for invalid status", func(t *testing.T) {
		assert.False(t, TrialBalanceStatus("INVALID").IsValid())
	})

	t.Run("IsBalanced returns correct boolean", func(t *testing.T) {
		assert.True(t, TrialBalanceStatusBalanced.IsBalanced())
		assert.False(t, TrialBalanceStatusUnbalanced.IsBalanced())
	})
}

func balanceInput(code string, accountType AccountType, debit, credit string) AccountBalanceInput {
	c, err := valueobject.NewAccountCode(code)
	if err != nil {
		panic(err)
	}
	return AccountBalanceInput{
		AccountID:   valueobject.NewAccountID(),
		Code:        c,
		Name:        "Account " + code,
		Type:        accountType,
		DebitTotal:  decimal.RequireFromString(debit),
		CreditTotal: decimal.RequireFromString(credit),
	}
}

func TestNewTrialBalanceLine(t *testing.T) {
	tests := []struct {
		name   string
		input  AccountBalanceInput
		debit  string
		credit string
	}{
		{"asset with debit balance", balanceInput("1000", AccountTypeAsset, "500", "100"), "400", "0"},
		{"asset overdrawn moves to credit", balanceInput("1000", AccountTypeAsset, "100", "300"), "0", "200"},
		{"expense with debit balance", balanceInput("6000", AccountTypeExpense, "75", "0"), "75", "0"},
		{"liability with credit balance", balanceInput("2000", AccountTypeLiability, "0", "900"), "0", "900"},
		{"revenue with debit balance moves to debit", balanceInput("4000", AccountTypeRevenue, "50", "20"), "30", "0"},
		{"equity with credit balance", balanceInput("3000", AccountTypeEquity, "10", "1010"), "0", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := NewTrialBalanceLine(tt.input)
			assert.True(t, line.Debit.Equal(decimal.RequireFromString(tt.debit)), "debit %s", line.Debit)
			assert.True(t, line.Credit.Equal(decimal.RequireFromString(tt.credit)), "credit %s", line.Credit)
		})
	}
}

func TestBuildTrialBalance(t *testing.T) {
	tenantID := valueobject.NewTenantID()
	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	t.Run("balanced ledger", func(t *testing.T) {
		balances := []AccountBalanceInput{
			balanceInput("4000", AccountTypeRevenue, "0", "5000"),
			balanceInput("1000", AccountTypeAsset, "7000", "1500"),
			balanceInput("1100", AccountTypeAsset, "1000", "0"),
			balanceInput("2000", AccountTypeLiability, "0", "2000"),
			balanceInput("6000", AccountTypeExpense, "1500", "0"),
			balanceInput("3000", AccountTypeEquity, "0", "1000"),
		}
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now)

		assert.True(t, tb.IsBalanced())
		assert.True(t, tb.TotalDebit.Equal(decimal.NewFromInt(8000)))
		assert.True(t, tb.TotalCredit.Equal(decimal.NewFromInt(8000)))
		assert.True(t, tb.Difference.IsZero())

		require.Len(t, tb.Lines, 6)
		assert.Equal(t, "1000", tb.Lines[0].Code.String())
		assert.Equal(t, "6000", tb.Lines[5].Code.String())

		assets := tb.Group(AccountTypeAsset)
		require.NotNil(t, assets)
		assert.Equal(t, 2, assets.Count)
		assert.True(t, assets.TotalDebit.Equal(decimal.NewFromInt(6500)))
		require.Len(t, tb.Groups, 5)
		assert.Equal(t, AccountTypeAsset, tb.Groups[0].Type)
		assert.Equal(t, AccountTypeExpense, tb.Groups[4].Type)
	})

	t.Run("variance above tolerance is unbalanced", func(t *testing.T) {
		balances := []AccountBalanceInput{
			balanceInput("1000", AccountTypeAsset, "100.02", "0"),
			balanceInput("3000", AccountTypeEquity, "0", "100"),
		}
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now)
		assert.False(t, tb.IsBalanced())
		assert.Equal(t, TrialBalanceStatusUnbalanced, tb.Status)
		assert.True(t, tb.Difference.Equal(decimal.RequireFromString("0.02")))
	})

	t.Run("variance within tolerance is balanced", func(t *testing.T) {
		balances := []AccountBalanceInput{
			balanceInput("1000", AccountTypeAsset, "100.01", "0"),
			balanceInput("3000", AccountTypeEquity, "0", "100"),
		}
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now)
		assert.True(t, tb.IsBalanced())
	})

	t.Run("variance tolerance can be widened for reports", func(t *testing.T) {
		balances := []AccountBalanceInput{
			balanceInput("1000", AccountTypeAsset, "100.40", "0"),
			balanceInput("3000", AccountTypeEquity, "0", "100"),
		}
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now,
			WithVarianceTolerance(decimal.RequireFromString("0.5")))
		assert.True(t, tb.IsBalanced())
		assert.True(t, tb.Tolerance.Equal(decimal.RequireFromString("0.5")))

		strict := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now)
		assert.False(t, strict.IsBalanced())
		assert.True(t, strict.Tolerance.Equal(PostingTolerance()))
	})

	t.Run("negative tolerance is ignored", func(t *testing.T) {
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, nil, now,
			WithVarianceTolerance(decimal.RequireFromString("-1")))
		assert.True(t, tb.Tolerance.Equal(PostingTolerance()))
	})

	t.Run("zero balances are omitted", func(t *testing.T) {
		balances := []AccountBalanceInput{
			balanceInput("1000", AccountTypeAsset, "100", "100"),
		}
		tb := BuildTrialBalance(tenantID, "FY2025/26", valueobject.ETB, balances, now)
		assert.Empty(t, tb.Lines)
		assert.Empty(t, tb.Groups)
		assert.True(t, tb.IsBalanced())
	})
}
