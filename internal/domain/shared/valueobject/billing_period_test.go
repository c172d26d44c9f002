package valueobject

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendarParsePeriod(t *testing.T) {
	cal := DefaultCalendar()

	tests := []struct {
		input string
		key   string
		kind  PeriodKind
		start time.Time
		end   time.Time
	}{
		{"2026-03", "2026-03", PeriodMonth, date(2026, 3, 1), date(2026, 4, 1)},
		{"2026-12", "2026-12", PeriodMonth, date(2026, 12, 1), date(2027, 1, 1)},
		{"2026-q2", "2026-Q2", PeriodQuarter, date(2026, 4, 1), date(2026, 7, 1)},
		{"2026-T1", "2026-T1", PeriodTerm, date(2026, 4, 1), date(2026, 8, 1)},
		{"2026-T3", "2026-T3", PeriodTerm, date(2026, 12, 1), date(2027, 4, 1)},
		{"2026", "2026", PeriodYear, date(2026, 4, 1), date(2027, 4, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := cal.ParsePeriod(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.key, p.Key())
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.start, p.Start())
			assert.Equal(t, tt.end, p.End())
		})
	}

	for _, bad := range []string{"", "26-03", "2026-13", "2026-00", "2026-Q5", "2026-T4", "2026/03", "abcd"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := cal.ParsePeriod(bad)
			assert.ErrorIs(t, err, ErrInvalidPeriod)
		})
	}
}

func TestCalendarTermsAcrossYearBoundary(t *testing.T) {
	cal := Calendar{TermStartMonths: []time.Month{time.September, time.January, time.May}, YearStartMonth: time.September}
	require.NoError(t, cal.Validate())

	t2 := cal.Term(2026, 2)
	assert.Equal(t, date(2027, 1, 1), t2.Start())
	assert.Equal(t, date(2027, 5, 1), t2.End())

	t3 := cal.Term(2026, 3)
	assert.Equal(t, date(2027, 9, 1), t3.End())
	assert.Equal(t, "2027-T1", cal.Next(t3).Key())
}

func TestCalendarNextAndPrevious(t *testing.T) {
	cal := DefaultCalendar()
	cases := map[string]string{
		"2026-03": "2026-04",
		"2026-12": "2027-01",
		"2026-Q4": "2027-Q1",
		"2026-T2": "2026-T3",
		"2026-T3": "2027-T1",
		"2026":    "2027",
	}
	for from, want := range cases {
		p, err := cal.ParsePeriod(from)
		require.NoError(t, err)
		next := cal.Next(p)
		assert.Equal(t, want, next.Key(), "next of %s", from)
		assert.Equal(t, from, cal.Previous(next).Key(), "previous of %s", want)
	}
}

func TestCalendarValidate(t *testing.T) {
	assert.NoError(t, DefaultCalendar().Validate())
	assert.Error(t, Calendar{YearStartMonth: time.April}.Validate())
	assert.Error(t, Calendar{TermStartMonths: []time.Month{time.April, time.April}, YearStartMonth: time.April}.Validate())
	assert.Error(t, Calendar{TermStartMonths: []time.Month{13}, YearStartMonth: time.April}.Validate())
}

func TestBillingPeriodHelpers(t *testing.T) {
	p := Month(2026, time.March)
	assert.True(t, p.Contains(date(2026, 3, 31)))
	assert.False(t, p.Contains(date(2026, 4, 1)))
	assert.True(t, p.Overlaps(date(2026, 1, 1), time.Time{}))
	assert.False(t, p.Overlaps(date(2026, 1, 1), date(2026, 3, 1)))
	assert.False(t, p.Overlaps(date(2026, 4, 1), time.Time{}))

	q := Quarter(2026, 1)
	assert.Equal(t, []time.Time{date(2026, 1, 1), date(2026, 2, 1), date(2026, 3, 1)}, q.MonthStarts())
	assert.Equal(t, "2026-03", MonthContaining(time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)).Key())
}
