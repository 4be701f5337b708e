package finance

import (
	"strings"
	"testing"
	"time"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceService_Create(t *testing.T) {
	f := newLedgerFixture(t)
	issue := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)

	t.Run("creates draft with lines and generated number", func(t *testing.T) {
		result, err := f.invoices.Create(f.ctx, CreateInvoiceCommand{
			TenantID:   f.tenantID,
			VendorID:   valueobject.NewPartyID(),
			CustomerID: valueobject.NewPartyID(),
			IssueDate:  issue,
			Lines: []LineItemCommand{
				{Description: "Consulting days", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(5000), VATCategory: "standard"},
				{Description: "Export freight", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(2000), VATCategory: "zero"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.EventCount)

		inv := f.loadInvoice(t, valueobject.InvoiceID(result.AggregateID))
		state := inv.State()
		assert.True(t, strings.HasPrefix(state.Number, "INV-"))
		assert.Equal(t, finance.InvoiceStatusDraft, state.Status)
		assert.Equal(t, valueobject.ETB, state.Currency)
		assert.Equal(t, "FY2025/26", state.FiscalYear)
		assert.True(t, state.Totals.Subtotal.Amount().Equal(decimal.NewFromInt(52000)))
		assert.True(t, state.Totals.VAT.Amount().Equal(decimal.NewFromInt(7500)))
		assert.True(t, state.Totals.ZeroRated.Amount().Equal(decimal.NewFromInt(2000)))
		assert.True(t, state.Totals.GrandTotal.Amount().Equal(decimal.NewFromInt(59500)))
	})

	t.Run("keeps explicit number", func(t *testing.T) {
		result, err := f.invoices.Create(f.ctx, CreateInvoiceCommand{
			TenantID:   f.tenantID,
			Number:     "INV-2025-0042",
			VendorID:   valueobject.NewPartyID(),
			CustomerID: valueobject.NewPartyID(),
			IssueDate:  issue,
		})
		require.NoError(t, err)
		assert.Equal(t, "INV-2025-0042", f.loadInvoice(t, valueobject.InvoiceID(result.AggregateID)).State().Number)
	})

	t.Run("invalid line is rejected before anything is stored", func(t *testing.T) {
		before := f.store.Len()
		_, err := f.invoices.Create(f.ctx, CreateInvoiceCommand{
			TenantID:   f.tenantID,
			VendorID:   valueobject.NewPartyID(),
			CustomerID: valueobject.NewPartyID(),
			IssueDate:  issue,
			Lines: []LineItemCommand{
				{Description: "Free sample", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(10), VATCategory: "standard"},
			},
		})
		assert.ErrorIs(t, err, application.ErrInvalidCommand)
		assert.Equal(t, before, f.store.Len())
	})
}

func TestInvoiceService_LinesAndApproval(t *testing.T) {
	f := newLedgerFixture(t)
	result, err := f.invoices.Create(f.ctx, CreateInvoiceCommand{
		TenantID:   f.tenantID,
		VendorID:   valueobject.NewPartyID(),
		CustomerID: valueobject.NewPartyID(),
		IssueDate:  time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	id := valueobject.InvoiceID(result.AggregateID)

	t.Run("empty invoice cannot be approved", func(t *testing.T) {
		_, err := f.invoices.Approve(f.ctx, ApproveInvoiceCommand{TenantID: f.tenantID, InvoiceID: id})
		assert.ErrorIs(t, err, finance.ErrInvoiceEmpty)
	})

	_, err = f.invoices.AddLine(f.ctx, AddInvoiceLineCommand{
		TenantID:  f.tenantID,
		InvoiceID: id,
		Line:      LineItemCommand{Description: "Licence", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000), VATCategory: "standard"},
	})
	require.NoError(t, err)
	_, err = f.invoices.AddLine(f.ctx, AddInvoiceLineCommand{
		TenantID:  f.tenantID,
		InvoiceID: id,
		Line:      LineItemCommand{Description: "Training", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(500), VATCategory: "exempt"},
	})
	require.NoError(t, err)
	_, err = f.invoices.RemoveLine(f.ctx, RemoveInvoiceLineCommand{TenantID: f.tenantID, InvoiceID: id, LineNo: 2})
	require.NoError(t, err)

	inv := f.loadInvoice(t, id)
	assert.Len(t, inv.State().Lines, 1)
	assert.True(t, inv.Totals().GrandTotal.Amount().Equal(decimal.NewFromInt(1150)))

	_, err = f.invoices.Approve(f.ctx, ApproveInvoiceCommand{TenantID: f.tenantID, InvoiceID: id})
	require.NoError(t, err)
	inv = f.loadInvoice(t, id)
	assert.Equal(t, finance.InvoiceStatusApproved, inv.Status())
	assert.True(t, strings.HasPrefix(inv.State().RegulatoryNumber, "REG-"))

	t.Run("approved invoice is frozen", func(t *testing.T) {
		_, err := f.invoices.AddLine(f.ctx, AddInvoiceLineCommand{
			TenantID:  f.tenantID,
			InvoiceID: id,
			Line:      LineItemCommand{Description: "Late add", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1), VATCategory: "standard"},
		})
		assert.ErrorIs(t, err, finance.ErrInvoiceNotDraft)
	})
}

func TestInvoiceService_RecordPayment(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.approvedInvoice(t)

	inv := f.loadInvoice(t, id)
	require.True(t, inv.Totals().GrandTotal.Amount().Equal(decimal.NewFromInt(57500)))

	first := valueobject.NewPaymentID()
	_, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
		TenantID: f.tenantID, InvoiceID: id, PaymentID: first, Amount: decimal.NewFromInt(20000),
	})
	require.NoError(t, err)
	inv = f.loadInvoice(t, id)
	assert.Equal(t, finance.InvoiceStatusApproved, inv.Status())
	assert.True(t, inv.RemainingBalance().Amount().Equal(decimal.NewFromInt(37500)))

	t.Run("same payment twice is a no-op", func(t *testing.T) {
		result, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
			TenantID: f.tenantID, InvoiceID: id, PaymentID: first, Amount: decimal.NewFromInt(20000),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, result.EventCount)
	})

	t.Run("more than remaining is an overpayment", func(t *testing.T) {
		_, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
			TenantID: f.tenantID, InvoiceID: id, PaymentID: valueobject.NewPaymentID(), Amount: decimal.NewFromInt(40000),
		})
		assert.ErrorIs(t, err, shared.ErrOverpayment)
	})

	result, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
		TenantID: f.tenantID, InvoiceID: id, PaymentID: valueobject.NewPaymentID(), Amount: decimal.NewFromInt(37500),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventCount)
	inv = f.loadInvoice(t, id)
	assert.Equal(t, finance.InvoiceStatusPaid, inv.Status())
	assert.True(t, inv.RemainingBalance().IsZero())

	t.Run("paid invoice rejects further payments", func(t *testing.T) {
		_, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
			TenantID: f.tenantID, InvoiceID: id, PaymentID: valueobject.NewPaymentID(), Amount: decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, shared.ErrOverpayment)
	})

	t.Run("paid invoice cannot be cancelled", func(t *testing.T) {
		_, err := f.invoices.Cancel(f.ctx, CancelInvoiceCommand{TenantID: f.tenantID, InvoiceID: id, Reason: "customer dispute"})
		assert.ErrorIs(t, err, finance.ErrInvalidTransition)
	})
}

func TestInvoiceService_Cancel(t *testing.T) {
	f := newLedgerFixture(t)

	t.Run("approved without payments", func(t *testing.T) {
		id := f.approvedInvoice(t)
		_, err := f.invoices.Cancel(f.ctx, CancelInvoiceCommand{TenantID: f.tenantID, InvoiceID: id, Reason: "issued twice"})
		require.NoError(t, err)
		assert.Equal(t, finance.InvoiceStatusCancelled, f.loadInvoice(t, id).Status())
	})

	t.Run("approved with a partial payment", func(t *testing.T) {
		id := f.approvedInvoice(t)
		_, err := f.invoices.RecordPayment(f.ctx, RecordInvoicePaymentCommand{
			TenantID: f.tenantID, InvoiceID: id, PaymentID: valueobject.NewPaymentID(), Amount: decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		_, err = f.invoices.Cancel(f.ctx, CancelInvoiceCommand{TenantID: f.tenantID, InvoiceID: id, Reason: "issued twice"})
		assert.ErrorIs(t, err, finance.ErrInvoiceHasPayments)
	})

	t.Run("reason is required", func(t *testing.T) {
		id := f.approvedInvoice(t)
		_, err := f.invoices.Cancel(f.ctx, CancelInvoiceCommand{TenantID: f.tenantID, InvoiceID: id})
		assert.ErrorIs(t, err, application.ErrInvalidCommand)
	})
}
