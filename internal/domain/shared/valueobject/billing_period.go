package valueobject

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// PeriodKind is the granularity of a billing period
type PeriodKind string

const (
	PeriodMonth   PeriodKind = "MONTH"
	PeriodQuarter PeriodKind = "QUARTER"
	PeriodTerm    PeriodKind = "TERM"
	PeriodYear    PeriodKind = "YEAR"
)

var ErrInvalidPeriod = errors.New("invalid billing period")

// Calendar describes how the institution slices the year into terms and
// academic years. All period boundaries are midnight UTC.
type Calendar struct {
	TermStartMonths []time.Month
	YearStartMonth  time.Month
}

// DefaultCalendar is an April-to-March academic year with three terms
func DefaultCalendar() Calendar {
	return Calendar{
		TermStartMonths: []time.Month{time.April, time.August, time.December},
		YearStartMonth:  time.April,
	}
}

// Validate checks the calendar is usable
func (c Calendar) Validate() error {
	if c.YearStartMonth < time.January || c.YearStartMonth > time.December {
		return fmt.Errorf("year start month %d out of range", c.YearStartMonth)
	}
	if len(c.TermStartMonths) == 0 {
		return errors.New("at least one term start month is required")
	}
	seen := make(map[time.Month]bool, len(c.TermStartMonths))
	for _, m := range c.TermStartMonths {
		if m < time.January || m > time.December {
			return fmt.Errorf("term start month %d out of range", m)
		}
		if seen[m] {
			return fmt.Errorf("term start month %d repeated", m)
		}
		seen[m] = true
	}
	return nil
}

// BillingPeriod is a named billing cycle: "2026-03", "2026-Q1", "2026-T2" or "2026".
// Start is inclusive and End exclusive.
type BillingPeriod struct {
	key   string
	kind  PeriodKind
	year  int
	index int
	start time.Time
	end   time.Time
}

// Key returns the canonical period key
func (p BillingPeriod) Key() string { return p.key }

// String returns the canonical period key
func (p BillingPeriod) String() string { return p.key }

// Kind returns the period granularity
func (p BillingPeriod) Kind() PeriodKind { return p.kind }

// Start returns the first instant of the period
func (p BillingPeriod) Start() time.Time { return p.start }

// End returns the first instant after the period
func (p BillingPeriod) End() time.Time { return p.end }

// IsZero reports whether the period is unset
func (p BillingPeriod) IsZero() bool { return p.key == "" }

// Contains reports whether t falls inside the period
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.start) && t.Before(p.end)
}

// Overlaps reports whether [from, to) intersects the period. A zero to is open-ended.
func (p BillingPeriod) Overlaps(from, to time.Time) bool {
	if !to.IsZero() && !to.After(p.start) {
		return false
	}
	return from.Before(p.end)
}

// ParsePeriod parses a canonical period key
func (c Calendar) ParsePeriod(s string) (BillingPeriod, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 4 {
		return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || year < 1900 || year > 9999 {
		return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	rest := s[4:]
	switch {
	case rest == "":
		return c.Year(year), nil
	case len(rest) == 3 && rest[0] == '-' && rest[1] >= '0' && rest[1] <= '9':
		month, err := strconv.Atoi(rest[1:])
		if err != nil || month < 1 || month > 12 {
			return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		return Month(year, time.Month(month)), nil
	case len(rest) == 3 && rest[:2] == "-Q":
		q := int(rest[2] - '0')
		if q < 1 || q > 4 {
			return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		return Quarter(year, q), nil
	case len(rest) >= 3 && rest[:2] == "-T":
		t, err := strconv.Atoi(rest[2:])
		if err != nil || t < 1 || t > len(c.TermStartMonths) {
			return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		return c.Term(year, t), nil
	}
	return BillingPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Month returns the calendar month period
func Month(year int, month time.Month) BillingPeriod {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		key:   fmt.Sprintf("%04d-%02d", year, int(month)),
		kind:  PeriodMonth,
		year:  year,
		index: int(month),
		start: start,
		end:   start.AddDate(0, 1, 0),
	}
}

// Quarter returns the calendar quarter period (Q1 = January to March)
func Quarter(year, q int) BillingPeriod {
	start := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		key:   fmt.Sprintf("%04d-Q%d", year, q),
		kind:  PeriodQuarter,
		year:  year,
		index: q,
		start: start,
		end:   start.AddDate(0, 3, 0),
	}
}

// Year returns the academic year that starts in the given calendar year
func (c Calendar) Year(year int) BillingPeriod {
	start := time.Date(year, c.YearStartMonth, 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		key:   fmt.Sprintf("%04d", year),
		kind:  PeriodYear,
		year:  year,
		start: start,
		end:   start.AddDate(1, 0, 0),
	}
}

// Term returns term n (1-based) of the academic cycle labelled year.
// Terms whose start month is not after the previous term's roll into the next calendar year.
func (c Calendar) Term(year, n int) BillingPeriod {
	starts := c.termStarts(year)
	start := starts[n-1]
	var end time.Time
	if n < len(starts) {
		end = starts[n]
	} else {
		end = c.termStarts(year + 1)[0]
	}
	return BillingPeriod{
		key:   fmt.Sprintf("%04d-T%d", year, n),
		kind:  PeriodTerm,
		year:  year,
		index: n,
		start: start,
		end:   end,
	}
}

func (c Calendar) termStarts(year int) []time.Time {
	starts := make([]time.Time, len(c.TermStartMonths))
	y := year
	for i, m := range c.TermStartMonths {
		if i > 0 && m <= c.TermStartMonths[i-1] {
			y++
		}
		starts[i] = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
	return starts
}

// IsTermStart reports whether a month opens a term
func (c Calendar) IsTermStart(m time.Month) bool {
	return slices.Contains(c.TermStartMonths, m)
}

// Next returns the period of the same kind that follows p
func (c Calendar) Next(p BillingPeriod) BillingPeriod {
	switch p.kind {
	case PeriodMonth:
		next := p.start.AddDate(0, 1, 0)
		return Month(next.Year(), next.Month())
	case PeriodQuarter:
		if p.index == 4 {
			return Quarter(p.year+1, 1)
		}
		return Quarter(p.year, p.index+1)
	case PeriodTerm:
		if p.index == len(c.TermStartMonths) {
			return c.Term(p.year+1, 1)
		}
		return c.Term(p.year, p.index+1)
	case PeriodYear:
		return c.Year(p.year + 1)
	}
	return BillingPeriod{}
}

// Previous returns the period of the same kind that precedes p
func (c Calendar) Previous(p BillingPeriod) BillingPeriod {
	switch p.kind {
	case PeriodMonth:
		prev := p.start.AddDate(0, -1, 0)
		return Month(prev.Year(), prev.Month())
	case PeriodQuarter:
		if p.index == 1 {
			return Quarter(p.year-1, 4)
		}
		return Quarter(p.year, p.index-1)
	case PeriodTerm:
		if p.index == 1 {
			return c.Term(p.year-1, len(c.TermStartMonths))
		}
		return c.Term(p.year, p.index-1)
	case PeriodYear:
		return c.Year(p.year - 1)
	}
	return BillingPeriod{}
}

// MonthContaining returns the month period that contains t
func MonthContaining(t time.Time) BillingPeriod {
	t = t.UTC()
	return Month(t.Year(), t.Month())
}

// MonthStarts lists the first day of every month that begins inside p
func (p BillingPeriod) MonthStarts() []time.Time {
	var out []time.Time
	for d := p.start; d.Before(p.end); d = d.AddDate(0, 1, 0) {
		out = append(out, d)
	}
	return out
}

// DateOnly truncates t to midnight UTC
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
