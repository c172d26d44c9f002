package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inr(minor int64) valueobject.Money {
	return valueobject.MustNewMoney(minor, valueobject.INR)
}

func testProfile() StudentProfile {
	return StudentProfile{
		StudentID: uuid.New(),
		ClassID:   "GRADE-5",
		SectionID: "A",
		Category:  "STAFF",
		Status:    StudentStatusActive,
	}
}

func newItem(t *testing.T, key string, amount int64, freq Frequency, app Applicability) *FeeItemDefinition {
	t.Helper()
	def, err := NewFeeItemDefinition(FeeItemParams{
		ItemKey:       key,
		Name:          key,
		Amount:        inr(amount),
		Frequency:     freq,
		Applicability: app,
		EffectiveFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
	return def
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T", err)
	assert.Equal(t, code, de.Code)
}
