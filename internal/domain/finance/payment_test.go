package finance_test

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(t *testing.T, method finance.PaymentMethod) *finance.Payment {
	t.Helper()
	p, err := finance.CreatePayment(valueobject.NewTenantID(), "PAY-0001", valueobject.NewInvoiceID(), etb("1000"), method)
	require.NoError(t, err)
	return p
}

func TestPaymentMethod_IsMobileWallet(t *testing.T) {
	tests := []struct {
		method finance.PaymentMethod
		want   bool
	}{
		{finance.PaymentMethodBankTransfer, false},
		{finance.PaymentMethodCheck, false},
		{finance.PaymentMethodCash, false},
		{finance.PaymentMethodCard, false},
		{finance.PaymentMethodTelebirr, true},
		{finance.PaymentMethodCBEBirr, true},
		{finance.PaymentMethodMPesa, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			assert.True(t, tt.method.IsValid())
			assert.Equal(t, tt.want, tt.method.IsMobileWallet())
		})
	}
}

func TestCreatePayment(t *testing.T) {
	t.Run("starts pending", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		assert.Equal(t, finance.PaymentStatusPending, p.Status())
		assert.True(t, p.Amount().Equals(etb("1000")))
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := finance.CreatePayment(valueobject.NewTenantID(), "PAY-1", valueobject.NewInvoiceID(), etb("0"), finance.PaymentMethodCash)
		assert.ErrorIs(t, err, finance.ErrInvalidAmount)
	})

	t.Run("rejects unknown method", func(t *testing.T) {
		_, err := finance.CreatePayment(valueobject.NewTenantID(), "PAY-1", valueobject.NewInvoiceID(), etb("1"), "BARTER")
		assert.ErrorIs(t, err, finance.ErrInvalidPaymentMethod)
	})
}

func TestPayment_Transitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("bank transfer completes directly", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		require.NoError(t, p.Complete("TRX-1", now))
		assert.Equal(t, finance.PaymentStatusCompleted, p.Status())
	})

	t.Run("wallet payment must be initiated first", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodTelebirr)
		assert.ErrorIs(t, p.Complete("TRX-1", now), finance.ErrWalletNotInitiated)

		require.NoError(t, p.InitiateWallet("TB-123", now))
		assert.Equal(t, finance.PaymentStatusWalletInitiated, p.Status())
		require.NoError(t, p.Complete("TRX-1", now))
		assert.Equal(t, finance.PaymentStatusCompleted, p.Status())
	})

	t.Run("only wallet payments are initiated", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodCash)
		assert.ErrorIs(t, p.InitiateWallet("X", now), finance.ErrNotWalletPayment)
	})

	t.Run("completed payment cannot fail", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodCard)
		require.NoError(t, p.Complete("TRX-1", now))
		err := p.Fail("card declined", now)
		assert.ErrorIs(t, err, finance.ErrPaymentCompleted)
		assert.True(t, shared.IsInvariant(err))
		assert.Equal(t, finance.PaymentStatusCompleted, p.Status())
	})

	t.Run("reconcile and reverse require completed", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodCheck)
		assert.ErrorIs(t, p.Reconcile("BANK-1", now), finance.ErrPaymentNotCompleted)
		assert.ErrorIs(t, p.Reverse("bounced", now), finance.ErrPaymentNotCompleted)

		require.NoError(t, p.Complete("CHK-1", now))
		require.NoError(t, p.Reconcile("BANK-1", now))
		assert.Equal(t, finance.PaymentStatusReconciled, p.Status())
		assert.True(t, p.Status().IsTerminal())
		assert.ErrorIs(t, p.Reverse("late", now), finance.ErrPaymentNotCompleted)
	})

	t.Run("reverse a completed payment", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		require.NoError(t, p.Complete("TRX-1", now))
		require.NoError(t, p.Reverse("customer refund", now))
		assert.Equal(t, finance.PaymentStatusReversed, p.Status())
	})

	t.Run("failed payment is terminal", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodMPesa)
		require.NoError(t, p.Fail("timeout", now))
		assert.ErrorIs(t, p.Complete("TRX", now), finance.ErrInvalidTransition)
		assert.ErrorIs(t, p.Fail("again", now), finance.ErrInvalidTransition)
	})
}

func TestPayment_InvoiceApplication(t *testing.T) {
	now := time.Now().UTC()

	t.Run("sync failure keeps payment completed and counts attempts", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		require.NoError(t, p.Complete("TRX-1", now))
		require.NoError(t, p.MarkInvoiceSyncFailed("overpayment", now))
		require.NoError(t, p.MarkInvoiceSyncFailed("overpayment", now))

		state := p.State()
		assert.Equal(t, finance.PaymentStatusCompleted, state.Status)
		assert.False(t, state.InvoiceApplied)
		assert.Equal(t, 2, state.InvoiceSyncAttempts)
		assert.Equal(t, "overpayment", state.InvoiceSyncError)
	})

	t.Run("applied is recorded once", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		require.NoError(t, p.Complete("TRX-1", now))
		require.NoError(t, p.MarkAppliedToInvoice(now))
		version := p.Version()
		require.NoError(t, p.MarkAppliedToInvoice(now))
		assert.Equal(t, version, p.Version())
		assert.True(t, p.InvoiceApplied())
		assert.ErrorIs(t, p.MarkInvoiceSyncFailed("late", now), finance.ErrInvalidTransition)
	})

	t.Run("pending payment cannot be applied", func(t *testing.T) {
		p := newPayment(t, finance.PaymentMethodBankTransfer)
		assert.ErrorIs(t, p.MarkAppliedToInvoice(now), finance.ErrPaymentNotCompleted)
	})
}

func TestPayment_Replay(t *testing.T) {
	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	p := newPayment(t, finance.PaymentMethodCBEBirr)
	require.NoError(t, p.InitiateWallet("CBE-7", now))
	require.NoError(t, p.Complete("TRX-7", now))
	require.NoError(t, p.MarkAppliedToInvoice(now))

	state, err := finance.FoldPayment(p.UncommittedEvents())
	require.NoError(t, err)
	assert.Equal(t, p.State(), state)
}
