package finance

import (
	"testing"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice(t *testing.T, fees ...int64) *Invoice {
	t.Helper()
	march := valueobject.Month(2026, 3)
	inv, err := NewInvoice(uuid.New(), march.Key(), 1, valueobject.INR, DueDateFor(march, dueDays), day(2026, 3, 1), "test")
	require.NoError(t, err)
	for i, fee := range fees {
		_, err := inv.AddFeeLine(FeeLine{
			FeeItemID:   uuid.New(),
			Revision:    1,
			ItemKey:     string(rune('a' + i)),
			Description: "fee",
			Gross:       inr(fee),
			Discount:    inr(0),
		})
		require.NoError(t, err)
	}
	inv.Refresh(day(2026, 3, 1))
	return inv
}

func TestNewInvoice_Validation(t *testing.T) {
	due := day(2026, 3, 11)
	_, err := NewInvoice(uuid.Nil, "2026-03", 1, valueobject.INR, due, due, "x")
	assertCode(t, err, "INVALID_STUDENT")
	_, err = NewInvoice(uuid.New(), " ", 1, valueobject.INR, due, due, "x")
	assertCode(t, err, "INVALID_PERIOD")
	_, err = NewInvoice(uuid.New(), "2026-03", 0, valueobject.INR, due, due, "x")
	assertCode(t, err, "INVALID_SEQUENCE")

	inv, err := NewInvoice(uuid.New(), "2026-03", 3, valueobject.INR, due, due, "x")
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusOpen, inv.Status)
	assert.Contains(t, inv.InvoiceNumber, "INV-2026-03-")
	assert.Contains(t, inv.InvoiceNumber, "-003")
}

func TestInvoice_AddFeeLine(t *testing.T) {
	inv := newTestInvoice(t)

	t.Run("discount above gross rejected", func(t *testing.T) {
		_, err := inv.AddFeeLine(FeeLine{FeeItemID: uuid.New(), Gross: inr(100), Discount: inr(101)})
		assertCode(t, err, "INVALID_DISCOUNT")
	})

	t.Run("currency mismatch rejected", func(t *testing.T) {
		_, err := inv.AddFeeLine(FeeLine{FeeItemID: uuid.New(), Gross: valueobject.MustNewMoney(100, valueobject.USD), Discount: inr(0)})
		assertCode(t, err, "CURRENCY_MISMATCH")
	})

	t.Run("net is gross less discount", func(t *testing.T) {
		line, err := inv.AddFeeLine(FeeLine{FeeItemID: uuid.New(), Revision: 2, ItemKey: "tuition", Gross: inr(1000), Discount: inr(250)})
		require.NoError(t, err)
		assert.Equal(t, int64(750), line.Net.Minor())
		assert.Equal(t, 2, line.FeeItemRevision)
		assert.Equal(t, 1, line.Position)
	})
}

func TestInvoice_DeriveStatus(t *testing.T) {
	inv := newTestInvoice(t, 1000, 500)
	beforeDue := day(2026, 3, 5)
	afterDue := day(2026, 3, 20)

	assert.Equal(t, InvoiceStatusOpen, inv.DeriveStatus(beforeDue))
	assert.Equal(t, InvoiceStatusOverdue, inv.DeriveStatus(afterDue))

	require.NoError(t, inv.ApplyPayment(inv.Lines[0].ID, inr(400), beforeDue))
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.Equal(t, InvoiceStatusOverdue, inv.DeriveStatus(afterDue))

	require.NoError(t, inv.ApplyPayment(inv.Lines[0].ID, inr(600), beforeDue))
	require.NoError(t, inv.ApplyPayment(inv.Lines[1].ID, inr(500), beforeDue))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, InvoiceStatusPaid, inv.DeriveStatus(afterDue))
	assert.True(t, inv.Status.IsTerminal())
}

func TestInvoice_ApplyPayment_NeverExceedsNet(t *testing.T) {
	inv := newTestInvoice(t, 1000)
	line := inv.Lines[0].ID

	err := inv.ApplyPayment(line, inr(1001), day(2026, 3, 2))
	assertCode(t, err, "OVER_ALLOCATION")
	assert.True(t, inv.Lines[0].AmountPaid.IsZero())

	require.NoError(t, inv.ApplyPayment(line, inr(1000), day(2026, 3, 2)))
	assertCode(t, inv.ApplyPayment(line, inr(1), day(2026, 3, 2)), "OVER_ALLOCATION")

	assertCode(t, inv.RevertPayment(line, inr(1001), day(2026, 3, 3)), "INVALID_REVERSAL")
	require.NoError(t, inv.RevertPayment(line, inr(300), day(2026, 3, 3)))
	assert.Equal(t, int64(300), inv.Outstanding().Minor())
}

func TestInvoice_OrderedLines(t *testing.T) {
	inv := newTestInvoice(t, 100)
	entry := &CarryForwardEntry{ID: uuid.New(), FromPeriod: "2026-02", ToPeriod: "2026-03", Amount: inr(300)}
	_, err := inv.AddCarryForwardLine(entry, inr(0))
	require.NoError(t, err)
	_, err = inv.AddFeeLine(FeeLine{FeeItemID: uuid.New(), Gross: inr(200), Discount: inr(0)})
	require.NoError(t, err)

	last := inv.OrderedLines(false)
	assert.Equal(t, LineKindFee, last[0].Kind)
	assert.Equal(t, LineKindFee, last[1].Kind)
	assert.Equal(t, LineKindCarryForward, last[2].Kind)

	first := inv.OrderedLines(true)
	assert.Equal(t, LineKindCarryForward, first[0].Kind)
	assert.Equal(t, 1, first[1].Position)
}

func TestInvoice_ApplyCredits(t *testing.T) {
	inv := newTestInvoice(t, 300, 400)
	credit := &CarryForwardEntry{ID: uuid.New(), FromPeriod: "2026-02", ToPeriod: "2026-03", Amount: inr(-500)}
	_, err := inv.AddCarryForwardLine(credit, inr(0))
	require.NoError(t, err)

	transfers := inv.ApplyCredits(false, day(2026, 3, 1))
	require.Len(t, transfers, 2)
	assert.Equal(t, int64(300), transfers[0].Amount.Minor())
	assert.Equal(t, int64(200), transfers[1].Amount.Minor())

	assert.Equal(t, int64(300), inv.Lines[0].AmountPaid.Minor())
	assert.Equal(t, int64(200), inv.Lines[1].AmountPaid.Minor())
	assert.Equal(t, int64(-500), inv.Lines[2].AmountPaid.Minor())
	assert.Equal(t, int64(200), inv.Outstanding().Minor())
	assert.True(t, inv.UnusedCredit().IsZero())
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
}

func TestInvoice_ApplyCredits_LeavesSurplus(t *testing.T) {
	inv := newTestInvoice(t, 300)
	credit := &CarryForwardEntry{ID: uuid.New(), FromPeriod: "2026-02", ToPeriod: "2026-03", Amount: inr(-500)}
	_, err := inv.AddCarryForwardLine(credit, inr(0))
	require.NoError(t, err)

	inv.ApplyCredits(false, day(2026, 3, 1))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(200), inv.UnusedCredit().Minor())
	assert.Equal(t, int64(-200), inv.Lines[1].Remaining().Minor())
}

func TestInvoice_Void(t *testing.T) {
	t.Run("compensation preserves payments and brought forward balance", func(t *testing.T) {
		inv := newTestInvoice(t, 1000)
		debt := &CarryForwardEntry{ID: uuid.New(), FromPeriod: "2026-02", ToPeriod: "2026-03", Amount: inr(600)}
		_, err := inv.AddCarryForwardLine(debt, inr(100))
		require.NoError(t, err)
		require.NoError(t, inv.ApplyPayment(inv.Lines[0].ID, inr(250), day(2026, 3, 2)))

		comp, err := inv.Void("wrong class", day(2026, 3, 3))
		require.NoError(t, err)
		// 600 brought forward less 350 paid into the invoice
		assert.Equal(t, int64(250), comp.Minor())
		assert.Equal(t, InvoiceStatusVoid, inv.Status)
		assert.True(t, inv.Outstanding().IsZero())
		assert.Len(t, inv.GetDomainEvents(), 1)
	})

	t.Run("paid invoice yields credit", func(t *testing.T) {
		inv := newTestInvoice(t, 1000)
		require.NoError(t, inv.ApplyPayment(inv.Lines[0].ID, inr(1000), day(2026, 3, 2)))
		comp, err := inv.Void("duplicate", day(2026, 3, 3))
		require.NoError(t, err)
		assert.Equal(t, int64(-1000), comp.Minor())
	})

	t.Run("rejected twice or after reconciliation", func(t *testing.T) {
		inv := newTestInvoice(t, 1000)
		_, err := inv.Void("", day(2026, 3, 3))
		assertCode(t, err, "INVALID_REASON")
		_, err = inv.Void("x", day(2026, 3, 3))
		require.NoError(t, err)
		_, err = inv.Void("x", day(2026, 3, 3))
		assertCode(t, err, "INVOICE_ALREADY_VOID")

		other := newTestInvoice(t, 1000)
		other.MarkReconciled(day(2026, 4, 1))
		_, err = other.Void("x", day(2026, 4, 2))
		assertCode(t, err, "INVOICE_RECONCILED")
	})
}

func TestInvoice_CarryForwardRemainder(t *testing.T) {
	inv := newTestInvoice(t, 1000, 500)
	require.NoError(t, inv.ApplyPayment(inv.Lines[0].ID, inr(700), day(2026, 3, 2)))

	carried := inv.CarryForwardRemainder(day(2026, 4, 1))
	assert.Equal(t, int64(800), carried.Minor())
	assert.True(t, inv.Outstanding().IsZero())
	assert.Equal(t, int64(700), inv.Lines[0].AmountPaid.Minor(), "payments are untouched")
	assert.Equal(t, InvoiceStatusOverdue, inv.DeriveStatus(day(2026, 4, 1)))
}
