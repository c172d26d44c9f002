package dto

import (
	"testing"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minor(v int64) *int64 { return &v }

func TestAmountInput_ToMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   AmountInput
		want    int64
		cur     valueobject.Currency
		errCode string
	}{
		{name: "minor units", input: AmountInput{AmountMinor: minor(450000)}, want: 450000, cur: valueobject.INR},
		{name: "major units", input: AmountInput{Amount: "4500.00"}, want: 450000, cur: valueobject.INR},
		{name: "both agree", input: AmountInput{AmountMinor: minor(150), Amount: "1.50"}, want: 150, cur: valueobject.INR},
		{name: "explicit currency", input: AmountInput{Amount: "12", Currency: "usd"}, want: 1200, cur: valueobject.USD},
		{name: "zero-decimal currency", input: AmountInput{Amount: "500", Currency: "JPY"}, want: 500, cur: valueobject.JPY},
		{name: "both disagree", input: AmountInput{AmountMinor: minor(100), Amount: "2.00"}, errCode: "AMOUNT_MISMATCH"},
		{name: "missing", input: AmountInput{}, errCode: "AMOUNT_REQUIRED"},
		{name: "fractional minor unit", input: AmountInput{Amount: "1.005"}, errCode: "INVALID_AMOUNT"},
		{name: "not a number", input: AmountInput{Amount: "ten"}, errCode: "INVALID_AMOUNT"},
		{name: "above the transaction limit", input: AmountInput{AmountMinor: minor(valueobject.MaxTransactionMinor + 1)}, errCode: "AMOUNT_TOO_LARGE"},
		{name: "above the limit in major units", input: AmountInput{Amount: "10000000000.01"}, errCode: "AMOUNT_TOO_LARGE"},
		{name: "at the limit", input: AmountInput{AmountMinor: minor(valueobject.MaxTransactionMinor)}, want: valueobject.MaxTransactionMinor, cur: valueobject.INR},
		{name: "unknown currency", input: AmountInput{Amount: "1", Currency: "XYZ1"}, errCode: "INVALID_CURRENCY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.input.ToMoney(valueobject.INR)
			if tt.errCode != "" {
				require.Error(t, err)
				assert.True(t, shared.IsKind(err, shared.KindValidation))
				var de *shared.DomainError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, tt.errCode, de.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Minor())
			assert.Equal(t, tt.cur, m.Currency())
		})
	}
}

func TestOptionalMoney(t *testing.T) {
	m, err := OptionalMoney(nil, valueobject.INR)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = OptionalMoney(&AmountInput{}, valueobject.INR)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = OptionalMoney(&AmountInput{AmountMinor: minor(2500)}, valueobject.INR)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(2500), m.Minor())
}
