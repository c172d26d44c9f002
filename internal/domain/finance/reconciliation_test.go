package finance

import (
	"testing"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosePeriod_FinesAndCarriesUnpaidInvoice(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	inv := generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000)).Invoice
	rule := flatFine(t, 100)

	out := closePeriod(t, h, march, day(2026, 4, 1), rule)
	require.Len(t, out.Results, 1)
	res := out.Results[0]

	require.NotNil(t, res.FineLine)
	assert.Equal(t, LineKindFine, res.FineLine.Kind)
	assert.Equal(t, int64(100), res.FineLine.Net.Minor())
	assert.Equal(t, day(2026, 4, 1), res.FineLine.CreatedAt)

	require.NotNil(t, res.CarryForward)
	assert.Equal(t, int64(1100), res.CarryForward.Amount.Minor())
	assert.Equal(t, "2026-03", res.CarryForward.FromPeriod)
	assert.Equal(t, "2026-04", res.CarryForward.ToPeriod)
	assert.Equal(t, CarryForwardSourcePeriodClose, res.CarryForward.Source)

	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
	assert.True(t, inv.IsReconciled())
	assert.Len(t, res.Adjustments, 2)

	b := balanceOf(t, h)
	assert.Equal(t, int64(1100), b.Outstanding.Minor())
	assert.Equal(t, int64(1100), b.Charged.Minor())

	t.Run("second close changes nothing", func(t *testing.T) {
		before := Checksum(h)
		again := closePeriod(t, h, march, day(2026, 4, 2), rule)
		assert.Empty(t, again.Results)
		assert.Equal(t, 1, again.Skipped)
		assert.Len(t, inv.Lines, 2)
		assert.Equal(t, before, Checksum(h))
	})

	t.Run("carried debt lands on next invoice and is payable", func(t *testing.T) {
		april := generate(t, h, valueobject.Month(2026, 4), day(2026, 4, 2), feeItem(t, "tuition", 1000)).Invoice
		require.Len(t, april.Lines, 2)
		assert.Equal(t, int64(1100), april.Lines[1].Net.Minor())
		assert.Equal(t, int64(2100), balanceOf(t, h).Outstanding.Minor())

		collect(t, h, 2100, day(2026, 4, 5))
		assert.Equal(t, InvoiceStatusPaid, april.Status)
		assert.True(t, balanceOf(t, h).Outstanding.IsZero())
		assertLineBounds(t, h)
	})
}

func TestClosePeriod_InvoiceNotYetDueIsUntouched(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	inv := generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000)).Invoice

	out := closePeriod(t, h, march, day(2026, 3, 5), flatFine(t, 100))
	assert.Equal(t, 1, out.NotYetDue)
	assert.Empty(t, out.Results)
	assert.False(t, inv.IsReconciled())
	assert.Len(t, inv.Lines, 1)
	assert.Equal(t, InvoiceStatusOpen, inv.Status)

	report := NewReconciliationReport("2026-03", "2026-04", valueobject.INR, false, day(2026, 3, 5))
	report.Merge(out)
	assert.Empty(t, report.Failures)
	assert.False(t, report.Complete(), "an invoice not yet due keeps the period open")
}

func TestClosePeriod_PaidInvoiceCarriesCredit(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000))
	collect(t, h, 1300, day(2026, 3, 2))

	april := valueobject.Month(2026, 4)
	inv := generate(t, h, april, day(2026, 4, 1), feeItem(t, "bus", 100)).Invoice
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(200), inv.UnusedCredit().Minor())

	out := closePeriod(t, h, april, day(2026, 5, 1), flatFine(t, 100))
	require.Len(t, out.Results, 1)
	assert.Nil(t, out.Results[0].FineLine)
	require.NotNil(t, out.Results[0].CarryForward)
	assert.Equal(t, int64(-200), out.Results[0].CarryForward.Amount.Minor())
	assert.Equal(t, InvoiceStatusPaid, inv.Status)

	b := balanceOf(t, h)
	assert.Equal(t, int64(200), b.Credit.Minor())
	assert.True(t, b.Outstanding.IsZero())
}

func TestReconciliationReport_Merge(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000))
	out := closePeriod(t, h, march, day(2026, 4, 1), flatFine(t, 100))

	report := NewReconciliationReport("2026-03", "2026-04", valueobject.INR, false, day(2026, 4, 1))
	report.Merge(out)
	assert.Equal(t, 1, report.StudentsProcessed)
	assert.Equal(t, 1, report.InvoicesReconciled)
	assert.Equal(t, 1, report.InvoicesOverdue)
	assert.Equal(t, int64(100), report.FinesTotal.Minor())
	assert.Equal(t, int64(1100), report.CarriedDebt.Minor())
	assert.True(t, report.Complete())

	pc := NewPeriodClose(report, "admin")
	assert.True(t, pc.IsClosed())
	require.NoError(t, pc.Reopen("admin", day(2026, 4, 3)))
	assert.False(t, pc.IsClosed())
	assertCode(t, pc.Reopen("admin", day(2026, 4, 3)), "PERIOD_NOT_CLOSED")
}
