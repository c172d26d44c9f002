package catalog

import (
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyOccurrences(t *testing.T) {
	cal := valueobject.DefaultCalendar()
	mustPeriod := func(key string) valueobject.BillingPeriod {
		p, err := cal.ParsePeriod(key)
		require.NoError(t, err)
		return p
	}
	from := day(2026, 1, 1)

	tests := []struct {
		name   string
		freq   Frequency
		period string
		from   time.Time
		to     time.Time
		want   int
	}{
		{"monthly in month", FrequencyMonthly, "2026-03", from, time.Time{}, 1},
		{"monthly in quarter", FrequencyMonthly, "2026-Q2", from, time.Time{}, 3},
		{"monthly in academic year", FrequencyMonthly, "2026", from, time.Time{}, 12},
		{"monthly ending mid quarter", FrequencyMonthly, "2026-Q2", from, day(2026, 5, 16), 2},
		{"monthly starting mid month still billed", FrequencyMonthly, "2026-03", day(2026, 3, 15), time.Time{}, 1},
		{"monthly before window", FrequencyMonthly, "2025-12", from, time.Time{}, 0},
		{"quarterly in quarter start month", FrequencyQuarterly, "2026-04", from, time.Time{}, 1},
		{"quarterly off month", FrequencyQuarterly, "2026-05", from, time.Time{}, 0},
		{"quarterly in year", FrequencyQuarterly, "2026", from, time.Time{}, 4},
		{"term in term start month", FrequencyTerm, "2026-08", from, time.Time{}, 1},
		{"term in term", FrequencyTerm, "2026-T3", from, time.Time{}, 1},
		{"term off month", FrequencyTerm, "2026-09", from, time.Time{}, 0},
		{"yearly in year start", FrequencyYearly, "2026-04", from, time.Time{}, 1},
		{"yearly in year", FrequencyYearly, "2026", from, time.Time{}, 1},
		{"yearly off month", FrequencyYearly, "2026-03", from, time.Time{}, 0},
		{"one time in its month", FrequencyOneTime, "2026-01", from, time.Time{}, 1},
		{"one time later month", FrequencyOneTime, "2026-02", from, time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.freq.Occurrences(cal, mustPeriod(tt.period), tt.from, tt.to))
		})
	}
}
