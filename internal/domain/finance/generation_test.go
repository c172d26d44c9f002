package finance

import (
	"testing"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice_AppliesDiscount(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	rule, err := catalog.NewDiscountRule(catalog.DiscountRuleParams{
		Name:            "sibling",
		Target:          catalog.DiscountTargetCategory,
		Category:        "SIBLING",
		ItemKey:         "tuition",
		Kind:            catalog.DiscountKindPercentage,
		RateBasisPoints: 1000,
		ValidFrom:       day(2026, 1, 1),
	})
	require.NoError(t, err)

	res, err := GenerateInvoice(GenerationInput{
		StudentID: h.StudentID,
		Period:    march,
		Calendar:  cal,
		Sequence:  1,
		Currency:  valueobject.INR,
		DueDate:   DueDateFor(march, dueDays),
		Now:       day(2026, 3, 1),
		Items:     []catalog.ApplicableItem{feeItem(t, "tuition", 450000), feeItem(t, "bus", 50000)},
		Discounts: func(itemKey string) (*catalog.DiscountRule, error) {
			if itemKey == "TUITION" {
				return rule, nil
			}
			return nil, nil
		},
		Policy: DefaultAllocationPolicy(),
	})
	require.NoError(t, err)
	inv := res.Invoice

	require.Len(t, inv.Lines, 2)
	assert.Equal(t, int64(45000), inv.Lines[0].Discount.Minor())
	assert.Equal(t, int64(405000), inv.Lines[0].Net.Minor())
	require.NotNil(t, inv.Lines[0].DiscountRuleID)
	assert.Equal(t, rule.ID, *inv.Lines[0].DiscountRuleID)
	assert.Nil(t, inv.Lines[1].DiscountRuleID)
	assert.Equal(t, int64(455000), inv.TotalNet().Minor())
	assert.Equal(t, day(2026, 3, 11), inv.DueDate)
	assert.Equal(t, InvoiceStatusOpen, inv.Status)
	require.Len(t, inv.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeInvoiceGenerated, inv.GetDomainEvents()[0].EventType())
}

func TestGenerateInvoice_NothingToInvoice(t *testing.T) {
	march := valueobject.Month(2026, 3)
	h := newHistory()
	_, err := GenerateInvoice(GenerationInput{
		StudentID: h.StudentID,
		Period:    march,
		Calendar:  cal,
		Sequence:  1,
		Currency:  valueobject.INR,
		DueDate:   DueDateFor(march, dueDays),
		Now:       day(2026, 3, 1),
	})
	assertCode(t, err, "NOTHING_TO_INVOICE")
}

func TestGenerateInvoice_CarryForwardOnly(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000))
	closePeriod(t, h, march, day(2026, 4, 1), nil)

	april := valueobject.Month(2026, 4)
	inv := generate(t, h, april, day(2026, 4, 1)).Invoice
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, LineKindCarryForward, inv.Lines[0].Kind)
	assert.Equal(t, int64(1000), inv.Outstanding().Minor())
}

func TestGenerateInvoice_FutureCarryForwardWaits(t *testing.T) {
	h := newHistory()
	march := valueobject.Month(2026, 3)
	generate(t, h, march, day(2026, 3, 1), feeItem(t, "tuition", 1000))
	collect(t, h, 1500, day(2026, 3, 2))

	// credit targets April, so a replacement March invoice does not see it
	replacementPeriod := valueobject.Month(2026, 3)
	inv := generate(t, h, replacementPeriod, day(2026, 3, 3), feeItem(t, "bus", 200)).Invoice
	assert.Len(t, inv.Lines, 1)
	assert.Len(t, h.PendingCarryForwards(), 1)
}

func TestDueDateFor(t *testing.T) {
	term := cal.Term(2026, 1)
	assert.Equal(t, day(2026, 4, 11), DueDateFor(term, 10))
}
