package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFineRuleCompute(t *testing.T) {
	due := day(2026, 3, 10)
	capAmount := inr(5000)

	tests := []struct {
		name   string
		params FineRuleParams
		unpaid int64
		asOf   time.Time
		want   int64
	}{
		{
			name:   "flat fine once overdue",
			params: FineRuleParams{Kind: FineKindFixedAmount, Amount: inr(10000)},
			unpaid: 100000,
			asOf:   day(2026, 4, 1),
			want:   10000,
		},
		{
			name:   "no fine on the due date",
			params: FineRuleParams{Kind: FineKindFixedAmount, Amount: inr(10000)},
			unpaid: 100000,
			asOf:   due,
			want:   0,
		},
		{
			name:   "no fine inside grace",
			params: FineRuleParams{Kind: FineKindFixedAmount, Amount: inr(10000), GraceDays: 30},
			unpaid: 100000,
			asOf:   day(2026, 4, 1),
			want:   0,
		},
		{
			name:   "no fine when nothing is unpaid",
			params: FineRuleParams{Kind: FineKindFixedAmount, Amount: inr(10000)},
			unpaid: 0,
			asOf:   day(2026, 4, 1),
			want:   0,
		},
		{
			name:   "daily percentage",
			params: FineRuleParams{Kind: FineKindPercentagePerDay, RateBasisPoints: 10},
			unpaid: 100000,
			asOf:   day(2026, 3, 20),
			want:   1000,
		},
		{
			name:   "partial day counts as a day",
			params: FineRuleParams{Kind: FineKindPercentagePerDay, RateBasisPoints: 10},
			unpaid: 100000,
			asOf:   due.Add(time.Hour),
			want:   100,
		},
		{
			name:   "daily percentage capped",
			params: FineRuleParams{Kind: FineKindPercentagePerDay, RateBasisPoints: 100, Cap: &capAmount},
			unpaid: 100000,
			asOf:   day(2026, 4, 30),
			want:   5000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			p.Name = "fine"
			p.ValidFrom = day(2026, 1, 1)
			rule, err := NewFineRule(p)
			require.NoError(t, err)

			got, err := rule.Compute(inr(tt.unpaid), due, tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Minor())
		})
	}
}

func TestNewFineRuleValidation(t *testing.T) {
	_, err := NewFineRule(FineRuleParams{Name: "x", Kind: FineKindFixedAmount, ValidFrom: day(2026, 1, 1)})
	assertCode(t, err, "INVALID_AMOUNT")

	_, err = NewFineRule(FineRuleParams{Name: "x", Kind: FineKindPercentagePerDay, ValidFrom: day(2026, 1, 1)})
	assertCode(t, err, "INVALID_RATE")

	_, err = NewFineRule(FineRuleParams{Name: "x", Kind: FineKindFixedAmount, Amount: inr(1), GraceDays: -1, ValidFrom: day(2026, 1, 1)})
	assertCode(t, err, "INVALID_GRACE")

	_, err = NewFineRule(FineRuleParams{Name: "x", Kind: FineKindFixedAmount, Amount: inr(1)})
	assertCode(t, err, "INVALID_VALIDITY")
}
