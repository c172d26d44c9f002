package catalog

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
)

// Frequency is how often a fee item recurs
type Frequency string

const (
	FrequencyOneTime   Frequency = "ONE_TIME"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyTerm      Frequency = "TERM"
	FrequencyYearly    Frequency = "YEARLY"
)

// IsValid checks if the frequency is a known value
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyMonthly, FrequencyQuarterly, FrequencyTerm, FrequencyYearly:
		return true
	}
	return false
}

// Occurrences counts the cycles of f that start inside the period and overlap
// the effective window [from, to). A zero to means open-ended. A one-time
// item occurs once, in the period containing from.
func (f Frequency) Occurrences(cal valueobject.Calendar, p valueobject.BillingPeriod, from, to time.Time) int {
	if f == FrequencyOneTime {
		if p.Contains(from) && (to.IsZero() || from.Before(to)) {
			return 1
		}
		return 0
	}
	n := 0
	for _, start := range p.MonthStarts() {
		end, ok := f.cycleAt(cal, start)
		if !ok {
			continue
		}
		if from.Before(end) && (to.IsZero() || to.After(start)) {
			n++
		}
	}
	return n
}

// cycleAt returns the end of the cycle that starts at monthStart, if one does
func (f Frequency) cycleAt(cal valueobject.Calendar, monthStart time.Time) (time.Time, bool) {
	switch f {
	case FrequencyMonthly:
		return monthStart.AddDate(0, 1, 0), true
	case FrequencyQuarterly:
		if (monthStart.Month()-1)%3 == 0 {
			return monthStart.AddDate(0, 3, 0), true
		}
	case FrequencyTerm:
		if cal.IsTermStart(monthStart.Month()) {
			for i := 1; i <= 12; i++ {
				next := monthStart.AddDate(0, i, 0)
				if cal.IsTermStart(next.Month()) {
					return next, true
				}
			}
		}
	case FrequencyYearly:
		if monthStart.Month() == cal.YearStartMonth {
			return monthStart.AddDate(1, 0, 0), true
		}
	}
	return time.Time{}, false
}
