package finance

import (
	"errors"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dueDays = 10

var cal = valueobject.DefaultCalendar()

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inr(minor int64) valueobject.Money {
	return valueobject.MustNewMoney(minor, valueobject.INR)
}

func newHistory() *LedgerHistory {
	return &LedgerHistory{StudentID: uuid.New(), Currency: valueobject.INR}
}

func feeItem(t *testing.T, key string, amount int64) catalog.ApplicableItem {
	t.Helper()
	def, err := catalog.NewFeeItemDefinition(catalog.FeeItemParams{
		ItemKey:       key,
		Name:          key,
		Amount:        inr(amount),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeAll},
		EffectiveFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
	return catalog.ApplicableItem{Definition: def, Occurrences: 1, Gross: def.Amount}
}

// generate builds the next invoice for the history's student and records it
func generate(t *testing.T, h *LedgerHistory, period valueobject.BillingPeriod, now time.Time, items ...catalog.ApplicableItem) *GenerationResult {
	t.Helper()
	res, err := GenerateInvoice(GenerationInput{
		StudentID: h.StudentID,
		Period:    period,
		Calendar:  cal,
		Sequence:  int64(len(h.Invoices) + 1),
		Currency:  h.Currency,
		DueDate:   DueDateFor(period, dueDays),
		Now:       now,
		Actor:     "test",
		Items:     items,
		Pending:   h.PendingCarryForwards(),
		Policy:    DefaultAllocationPolicy(),
	})
	require.NoError(t, err)
	h.Invoices = append(h.Invoices, res.Invoice)
	h.Adjustments = append(h.Adjustments, res.Adjustments...)
	return res
}

func collectInput(h *LedgerHistory, amount int64, now time.Time) CollectionInput {
	return CollectionInput{
		StudentID:  h.StudentID,
		Amount:     inr(amount),
		Method:     PaymentMethodCash,
		RecordedBy: "cashier",
		Now:        now,
		Calendar:   cal,
		Policy:     DefaultAllocationPolicy(),
	}
}

func collect(t *testing.T, h *LedgerHistory, amount int64, now time.Time) *CollectionResult {
	t.Helper()
	res, err := CollectPayment(h, collectInput(h, amount, now))
	require.NoError(t, err)
	res.Apply(h)
	return res
}

func closePeriod(t *testing.T, h *LedgerHistory, period valueobject.BillingPeriod, asOf time.Time, rule *catalog.FineRule) *StudentCloseOutcome {
	t.Helper()
	out, err := CloseStudentPeriod(h.StudentID, h.Invoices, CloseInput{
		Period:     period.Key(),
		NextPeriod: cal.Next(period).Key(),
		AsOf:       asOf,
		FineRule:   rule,
		Actor:      "test",
	})
	require.NoError(t, err)
	for _, r := range out.Results {
		if r.CarryForward != nil {
			h.CarryForwards = append(h.CarryForwards, r.CarryForward)
		}
		h.Adjustments = append(h.Adjustments, r.Adjustments...)
	}
	return out
}

func flatFine(t *testing.T, amount int64) *catalog.FineRule {
	t.Helper()
	rule, err := catalog.NewFineRule(catalog.FineRuleParams{
		Name:      "late fee",
		Kind:      catalog.FineKindFixedAmount,
		Amount:    inr(amount),
		ValidFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
	return rule
}

func balanceOf(t *testing.T, h *LedgerHistory) *LedgerBalance {
	t.Helper()
	b, err := ComputeBalance(h)
	require.NoError(t, err)
	return b
}

// assertLineBounds checks the paid bounds of every line in the history
func assertLineBounds(t *testing.T, h *LedgerHistory) {
	t.Helper()
	for _, inv := range h.Invoices {
		for _, l := range inv.Lines {
			if l.IsCredit() {
				assert.LessOrEqual(t, l.Net.Minor(), l.AmountPaid.Minor(), "credit line %s", l.ID)
				assert.LessOrEqual(t, l.AmountPaid.Minor(), int64(0), "credit line %s", l.ID)
				continue
			}
			assert.GreaterOrEqual(t, l.AmountPaid.Minor(), int64(0), "line %s", l.ID)
			assert.LessOrEqual(t, l.AmountPaid.Minor(), l.Net.Minor(), "line %s", l.ID)
		}
	}
	for _, p := range h.Payments {
		assert.True(t, p.Allocated().Equals(p.Amount), "payment %s allocations", p.ID)
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T", err)
	assert.Equal(t, code, de.Code)
}
