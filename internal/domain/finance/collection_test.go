package finance

import (
	"testing"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectPayment_PartialThenOverpayment(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	inv := generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 450000)).Invoice

	first := collect(t, h, 200000, day(2026, 3, 3))
	require.Len(t, first.Payment.Allocations, 1)
	assert.Nil(t, first.Credit)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.Equal(t, int64(250000), balanceOf(t, h).Outstanding.Minor())

	second := collect(t, h, 300000, day(2026, 3, 5))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, second.Credit)
	assert.Equal(t, int64(-50000), second.Credit.Amount.Minor())
	assert.Equal(t, CarryForwardSourceOverpayment, second.Credit.Source)
	assert.Equal(t, "2026-04", second.Credit.ToPeriod)

	require.Len(t, second.Payment.Allocations, 2)
	assert.Equal(t, AllocationTargetInvoiceLine, second.Payment.Allocations[0].TargetType)
	assert.Equal(t, int64(250000), second.Payment.Allocations[0].Amount.Minor())
	assert.Equal(t, AllocationTargetCarryForward, second.Payment.Allocations[1].TargetType)
	assert.Equal(t, int64(50000), second.Payment.Allocations[1].Amount.Minor())

	b := balanceOf(t, h)
	assert.True(t, b.Outstanding.IsZero())
	assert.Equal(t, int64(50000), b.Credit.Minor())
	assert.Equal(t, int64(-50000), b.Net.Minor())
	assert.Empty(t, b.OpenInvoices)
	assertLineBounds(t, h)

	t.Run("credit reaches the next invoice", func(t *testing.T) {
		april := generate(t, h, valueobject.Month(2026, 4), day(2026, 4, 1), feeItem(t, "tuition", 450000))
		require.Len(t, april.Invoice.Lines, 2)
		assert.Equal(t, LineKindCarryForward, april.Invoice.Lines[1].Kind)
		assert.Equal(t, int64(400000), april.Invoice.Outstanding().Minor())
		require.Len(t, april.Adjustments, 1)
		assert.Equal(t, AdjustmentCreditApplied, april.Adjustments[0].Kind)
		assert.Empty(t, h.PendingCarryForwards())
		assert.Equal(t, int64(400000), balanceOf(t, h).Outstanding.Minor())
	})
}

func TestCollectPayment_OverpaymentRejected(t *testing.T) {
	h := newHistory()
	inv := generate(t, h, valueobject.Month(2026, 3), day(2026, 3, 1), feeItem(t, "tuition", 1000)).Invoice
	in := collectInput(h, 1500, day(2026, 3, 2))
	in.Policy.AllowCreditCarry = false

	_, err := CollectPayment(h, in)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindOverpaymentRejected))
	assert.True(t, inv.Lines[0].AmountPaid.IsZero(), "nothing applied on rejection")
	assert.Empty(t, h.Payments)

	in.Amount = inr(1000)
	res, err := CollectPayment(h, in)
	require.NoError(t, err)
	assert.Nil(t, res.Credit)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

func TestCollectPayment_Validation(t *testing.T) {
	h := newHistory()
	generate(t, h, valueobject.Month(2026, 3), day(2026, 3, 1), feeItem(t, "tuition", 1000))

	in := collectInput(h, 0, day(2026, 3, 2))
	_, err := CollectPayment(h, in)
	assertCode(t, err, "INVALID_AMOUNT")

	in = collectInput(h, 500, day(2026, 3, 2))
	in.Method = PaymentMethodOnline
	_, err = CollectPayment(h, in)
	assertCode(t, err, "REFERENCE_REQUIRED")

	in.Amount = valueobject.MustNewMoney(500, valueobject.USD)
	in.ExternalReference = "TXN-1"
	_, err = CollectPayment(h, in)
	assertCode(t, err, "CURRENCY_MISMATCH")
}

func TestCollectPayment_PaysOldestInvoiceFirst(t *testing.T) {
	h := newHistory()
	feb := generate(t, h, valueobject.Month(2026, 2), day(2026, 2, 1), feeItem(t, "tuition", 1000)).Invoice
	mar := generate(t, h, valueobject.Month(2026, 3), day(2026, 3, 1), feeItem(t, "tuition", 1000), feeItem(t, "bus", 300)).Invoice

	res := collect(t, h, 1500, day(2026, 3, 2))
	require.Len(t, res.Payment.Allocations, 2)
	assert.Equal(t, feb.ID, *res.Payment.Allocations[0].InvoiceID)
	assert.Equal(t, InvoiceStatusPaid, feb.Status)
	assert.Equal(t, mar.Lines[0].ID, *res.Payment.Allocations[1].InvoiceLineID)
	assert.Equal(t, int64(800), mar.Outstanding().Minor())
	assertLineBounds(t, h)
}

func TestPayment_CheckBalanced(t *testing.T) {
	h := newHistory()
	p, err := NewPayment(h.StudentID, inr(500), PaymentMethodCash, "", "x", "", day(2026, 3, 1))
	require.NoError(t, err)
	assert.Nil(t, p.ExternalReference)
	assertCode(t, p.CheckBalanced(), "UNBALANCED_ALLOCATION")

	inv := newTestInvoice(t, 1000)
	p.AllocateToLine(inv.ID, inv.Lines[0].ID, inr(500))
	require.NoError(t, p.CheckBalanced())
	assert.Equal(t, 1, p.Allocations[0].Sequence)
	assert.Equal(t, p.ID, p.Allocations[0].PaymentID)
}

func TestNewPayment_TransactionLimit(t *testing.T) {
	h := newHistory()
	_, err := NewPayment(h.StudentID, inr(valueobject.MaxTransactionMinor), PaymentMethodCash, "", "x", "", day(2026, 3, 1))
	require.NoError(t, err)

	_, err = NewPayment(h.StudentID, inr(valueobject.MaxTransactionMinor+1), PaymentMethodCash, "", "x", "", day(2026, 3, 1))
	assertCode(t, err, "AMOUNT_TOO_LARGE")
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod(" cheque ")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCheque, m)
	assert.True(t, m.RequiresReference())
	assert.False(t, PaymentMethodCash.RequiresReference())

	_, err = ParsePaymentMethod("barter")
	assertCode(t, err, "INVALID_PAYMENT_METHOD")
}
