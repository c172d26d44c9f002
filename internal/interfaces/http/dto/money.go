package dto

import (
	"strings"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
)

// AmountInput accepts an amount either as integer minor units or as a
// decimal string in major units. When both are sent they must agree.
type AmountInput struct {
	AmountMinor *int64 `json:"amountMinor"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

// IsSet reports whether any amount was supplied
func (a AmountInput) IsSet() bool {
	return a.AmountMinor != nil || strings.TrimSpace(a.Amount) != ""
}

// ToMoney converts the input using fallback when no currency was sent
func (a AmountInput) ToMoney(fallback valueobject.Currency) (valueobject.Money, error) {
	m, err := a.toMoney(fallback)
	if err != nil {
		return valueobject.Money{}, err
	}
	if !m.WithinTransactionLimit() {
		return valueobject.Money{}, shared.NewValidationError("AMOUNT_TOO_LARGE", "amount exceeds the single transaction limit").
			WithDetail("max_minor", valueobject.MaxTransactionMinor)
	}
	return m, nil
}

func (a AmountInput) toMoney(fallback valueobject.Currency) (valueobject.Money, error) {
	cur := fallback
	if strings.TrimSpace(a.Currency) != "" {
		parsed, err := valueobject.ParseCurrency(a.Currency)
		if err != nil {
			return valueobject.Money{}, shared.NewValidationError("INVALID_CURRENCY", err.Error())
		}
		cur = parsed
	}

	major := strings.TrimSpace(a.Amount)
	switch {
	case a.AmountMinor == nil && major == "":
		return valueobject.Money{}, shared.NewValidationError("AMOUNT_REQUIRED", "amountMinor or amount is required")
	case a.AmountMinor != nil:
		m, err := valueobject.NewMoney(*a.AmountMinor, cur)
		if err != nil {
			return valueobject.Money{}, shared.NewValidationError("INVALID_AMOUNT", err.Error())
		}
		if major != "" {
			fromMajor, err := valueobject.NewMoneyFromString(major, cur)
			if err != nil {
				return valueobject.Money{}, shared.NewValidationError("INVALID_AMOUNT", err.Error())
			}
			if !fromMajor.Equals(m) {
				return valueobject.Money{}, shared.NewValidationError("AMOUNT_MISMATCH", "amount and amountMinor disagree")
			}
		}
		return m, nil
	default:
		m, err := valueobject.NewMoneyFromString(major, cur)
		if err != nil {
			return valueobject.Money{}, shared.NewValidationError("INVALID_AMOUNT", err.Error())
		}
		return m, nil
	}
}

// OptionalMoney converts an optional amount such as a cap; nil stays nil
func OptionalMoney(a *AmountInput, fallback valueobject.Currency) (*valueobject.Money, error) {
	if a == nil || !a.IsSet() {
		return nil, nil
	}
	m, err := a.ToMoney(fallback)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
