package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	INR Currency = "INR"
	USD Currency = "USD"
	EUR Currency = "EUR"
	JPY Currency = "JPY"
)

// DefaultCurrency is the ledger currency when none is configured
const DefaultCurrency = INR

// MaxMinorAmount bounds every amount so sums over a ledger cannot overflow int64
const MaxMinorAmount int64 = 1_000_000_000_000_000

// MaxTransactionMinor bounds a single fee, discount, fine or payment.
// A ledger of a million such entries still sums within MaxMinorAmount.
const MaxTransactionMinor int64 = 1_000_000_000_000

var (
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrFractionalMinor   = errors.New("amount has more decimal places than the currency allows")
	ErrEmptyCurrency     = errors.New("currency cannot be empty")
	ErrUnknownCurrency   = errors.New("unknown currency code")
	ErrInvalidBasisPoint = errors.New("basis points must be between 0 and 10000")
)

// ParseCurrency validates an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrEmptyCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return Currency(unit.String()), nil
}

// Scale returns the number of minor-unit digits of the currency (2 for INR, 0 for JPY)
func (c Currency) Scale() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// Money is an immutable amount held as an integer count of minor units.
// No operation on Money produces a fractional minor unit.
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates Money from minor units (paise, cents)
func NewMoney(minor int64, cur Currency) (Money, error) {
	if cur == "" {
		return Money{}, ErrEmptyCurrency
	}
	if minor > MaxMinorAmount || minor < -MaxMinorAmount {
		return Money{}, ErrAmountOutOfRange
	}
	return Money{minor: minor, currency: cur}, nil
}

// MustNewMoney is NewMoney that panics on error. Use with constants only.
func MustNewMoney(minor int64, cur Currency) Money {
	m, err := NewMoney(minor, cur)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromDecimal converts a major-unit decimal (4500.50) into Money.
// Values finer than the currency's minor unit are rejected, not rounded.
func NewMoneyFromDecimal(major decimal.Decimal, cur Currency) (Money, error) {
	if cur == "" {
		return Money{}, ErrEmptyCurrency
	}
	scaled := major.Shift(cur.Scale())
	if !scaled.Equal(scaled.Truncate(0)) {
		return Money{}, ErrFractionalMinor
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(MaxMinorAmount)) {
		return Money{}, ErrAmountOutOfRange
	}
	return NewMoney(scaled.IntPart(), cur)
}

// NewMoneyFromString parses a major-unit string such as "4500.00"
func NewMoneyFromString(major string, cur Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(major))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoneyFromDecimal(d, cur)
}

// Zero returns a zero-value Money in the specified currency
func Zero(cur Currency) Money {
	return Money{currency: cur}
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// WithinTransactionLimit reports whether the amount may be charged or paid in one entry
func (m Money) WithinTransactionLimit() bool {
	return m.minor <= MaxTransactionMinor && m.minor >= -MaxTransactionMinor
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.minor < 0
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.minor+other.minor, m.currency)
}

// MustAdd adds and panics on currency mismatch
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract returns a new Money with other subtracted
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.minor-other.minor, m.currency)
}

// MustSubtract subtracts and panics on currency mismatch
func (m Money) MustSubtract(other Money) Money {
	result, err := m.Subtract(other)
	if err != nil {
		panic(err)
	}
	return result
}

// MultiplyByInt multiplies by a whole factor
func (m Money) MultiplyByInt(factor int64) (Money, error) {
	product := decimal.NewFromInt(m.minor).Mul(decimal.NewFromInt(factor))
	if product.Abs().GreaterThan(decimal.NewFromInt(MaxMinorAmount)) {
		return Money{}, ErrAmountOutOfRange
	}
	return Money{minor: product.IntPart(), currency: m.currency}, nil
}

// ApplyBasisPoints returns m × bps / 10000 rounded half away from zero.
// 1000 basis points is 10%.
func (m Money) ApplyBasisPoints(bps int64) (Money, error) {
	if bps < 0 || bps > 10000 {
		return Money{}, ErrInvalidBasisPoint
	}
	return m.scaleBasisPoints(bps), nil
}

// ApplyRate is ApplyBasisPoints without the 100% ceiling, for accruals such as
// daily fines that may exceed the base over many days.
func (m Money) ApplyRate(bps int64, times int64) (Money, error) {
	if bps < 0 || times < 0 {
		return Money{}, ErrInvalidBasisPoint
	}
	product := decimal.NewFromInt(m.minor).
		Mul(decimal.NewFromInt(bps)).
		Mul(decimal.NewFromInt(times)).
		Shift(-4).
		Round(0)
	if product.Abs().GreaterThan(decimal.NewFromInt(MaxMinorAmount)) {
		return Money{}, ErrAmountOutOfRange
	}
	return Money{minor: product.IntPart(), currency: m.currency}, nil
}

func (m Money) scaleBasisPoints(bps int64) Money {
	v := decimal.NewFromInt(m.minor).Mul(decimal.NewFromInt(bps)).Shift(-4).Round(0)
	return Money{minor: v.IntPart(), currency: m.currency}
}

// Negate returns the negated amount
func (m Money) Negate() Money {
	return Money{minor: -m.minor, currency: m.currency}
}

// Abs returns the absolute value
func (m Money) Abs() Money {
	if m.minor < 0 {
		return m.Negate()
	}
	return m
}

// Min returns the smaller of two amounts in the same currency
func (m Money) Min(other Money) Money {
	if other.minor < m.minor {
		return Money{minor: other.minor, currency: m.currency}
	}
	return m
}

// Max returns the larger of two amounts in the same currency
func (m Money) Max(other Money) Money {
	if other.minor > m.minor {
		return Money{minor: other.minor, currency: m.currency}
	}
	return m
}

// Equals returns true if both amount and currency match
func (m Money) Equals(other Money) bool {
	return m.minor == other.minor && m.currency == other.currency
}

// LessThan compares two amounts of the same currency
func (m Money) LessThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.minor < other.minor, nil
}

// GreaterThan compares two amounts of the same currency
func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.minor > other.minor, nil
}

// Decimal returns the amount in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -m.currency.Scale())
}

// Major formats the amount in major units with the currency's fixed scale ("4500.00")
func (m Money) Major() string {
	return m.Decimal().StringFixed(m.currency.Scale())
}

// String returns "4500.00 INR"
func (m Money) String() string {
	return m.Major() + " " + string(m.currency)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
}

// MarshalJSON emits both the major-unit string and the exact minor units
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.Major(),
		Minor:    m.minor,
		Currency: string(m.currency),
	})
}

// UnmarshalJSON accepts {"minor":..., "currency":...} or {"amount":"...", "currency":...}.
// When both are present they must agree.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   *string `json:"amount"`
		Minor    *int64  `json:"minor"`
		Currency string  `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cur, err := ParseCurrency(raw.Currency)
	if err != nil {
		return err
	}
	switch {
	case raw.Minor != nil:
		parsed, err := NewMoney(*raw.Minor, cur)
		if err != nil {
			return err
		}
		if raw.Amount != nil {
			fromMajor, err := NewMoneyFromString(*raw.Amount, cur)
			if err != nil {
				return err
			}
			if !fromMajor.Equals(parsed) {
				return errors.New("amount and minor disagree")
			}
		}
		*m = parsed
	case raw.Amount != nil:
		parsed, err := NewMoneyFromString(*raw.Amount, cur)
		if err != nil {
			return err
		}
		*m = parsed
	default:
		return errors.New("money requires amount or minor")
	}
	return nil
}

// Sum adds amounts that share a currency; an empty list sums to zero in cur
func Sum(cur Currency, amounts ...Money) (Money, error) {
	total := Zero(cur)
	for _, a := range amounts {
		var err error
		total, err = total.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
