package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeeItemDefinition(t *testing.T) {
	t.Run("normalizes key and dates", func(t *testing.T) {
		def, err := NewFeeItemDefinition(FeeItemParams{
			ItemKey:       " tuition ",
			Name:          "Tuition",
			Amount:        inr(500000),
			Frequency:     FrequencyMonthly,
			Applicability: Applicability{Scope: ScopeClass, ClassID: "GRADE-5"},
			EffectiveFrom: day(2026, 1, 1).Add(13 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, "TUITION", def.ItemKey)
		assert.Equal(t, 1, def.Revision)
		assert.Equal(t, FeeItemStatusActive, def.Status)
		assert.Equal(t, day(2026, 1, 1), def.EffectiveFrom)
	})

	tests := []struct {
		name   string
		mutate func(p *FeeItemParams)
		code   string
	}{
		{"bad key", func(p *FeeItemParams) { p.ItemKey = "tu ition" }, "INVALID_ITEM_KEY"},
		{"empty name", func(p *FeeItemParams) { p.Name = " " }, "INVALID_NAME"},
		{"zero amount", func(p *FeeItemParams) { p.Amount = inr(0) }, "INVALID_AMOUNT"},
		{"unknown frequency", func(p *FeeItemParams) { p.Frequency = "WEEKLY" }, "INVALID_FREQUENCY"},
		{"class scope without class", func(p *FeeItemParams) { p.Applicability = Applicability{Scope: ScopeClass} }, "INVALID_SCOPE"},
		{"student scope without student", func(p *FeeItemParams) { p.Applicability = Applicability{Scope: ScopeStudent} }, "INVALID_SCOPE"},
		{"missing effective date", func(p *FeeItemParams) { p.EffectiveFrom = time.Time{} }, "INVALID_EFFECTIVE_DATE"},
		{"inverted window", func(p *FeeItemParams) { to := day(2025, 12, 31); p.EffectiveTo = &to }, "INVALID_EFFECTIVE_DATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := FeeItemParams{
				ItemKey:       "TUITION",
				Name:          "Tuition",
				Amount:        inr(500000),
				Frequency:     FrequencyMonthly,
				Applicability: Applicability{Scope: ScopeAll},
				EffectiveFrom: day(2026, 1, 1),
			}
			tt.mutate(&params)
			_, err := NewFeeItemDefinition(params)
			require.Error(t, err)
			assertCode(t, err, tt.code)
		})
	}
}

func TestFeeItemRevise(t *testing.T) {
	def := newItem(t, "TUITION", 500000, FrequencyMonthly, Applicability{Scope: ScopeClass, ClassID: "GRADE-5"})

	next, err := def.Revise(FeeItemParams{
		Name:          "Tuition",
		Amount:        inr(550000),
		Frequency:     FrequencyMonthly,
		Applicability: Applicability{Scope: ScopeClass, ClassID: "GRADE-5"},
		EffectiveFrom: day(2026, 4, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, FeeItemStatusSuperseded, def.Status)
	assert.Equal(t, 2, next.Revision)
	assert.Equal(t, "TUITION", next.ItemKey)
	require.NotNil(t, next.SupersedesID)
	assert.Equal(t, def.ID, *next.SupersedesID)
	assert.Equal(t, def.ID, def.LineageID)
	assert.Equal(t, def.LineageID, next.LineageID)
	assert.NotEqual(t, def.ID, next.ID)
	assert.Equal(t, int64(500000), def.Amount.Minor(), "old revision keeps its amount")

	t.Run("superseded revision cannot be revised again", func(t *testing.T) {
		_, err := def.Revise(FeeItemParams{Name: "x"})
		assertCode(t, err, "FEE_ITEM_NOT_ACTIVE")
	})

	t.Run("key cannot change", func(t *testing.T) {
		_, err := next.Revise(FeeItemParams{ItemKey: "BUS", Name: "Bus"})
		assertCode(t, err, "INVALID_ITEM_KEY")
	})
}

func TestFeeItemRetire(t *testing.T) {
	def := newItem(t, "BUS", 120000, FrequencyMonthly, Applicability{Scope: ScopeAll})
	require.NoError(t, def.Retire())
	assert.False(t, def.IsActive())
	assertCode(t, def.Retire(), "FEE_ITEM_NOT_ACTIVE")
}

func TestApplicabilityMatches(t *testing.T) {
	profile := testProfile()
	other := uuid.New()

	tests := []struct {
		name string
		app  Applicability
		want bool
	}{
		{"student match", Applicability{Scope: ScopeStudent, StudentID: &profile.StudentID}, true},
		{"student mismatch", Applicability{Scope: ScopeStudent, StudentID: &other}, false},
		{"category match", Applicability{Scope: ScopeCategory, Category: "STAFF"}, true},
		{"category narrowed to class", Applicability{Scope: ScopeCategory, Category: "STAFF", ClassID: "GRADE-5"}, true},
		{"category narrowed to other class", Applicability{Scope: ScopeCategory, Category: "STAFF", ClassID: "GRADE-6"}, false},
		{"section match", Applicability{Scope: ScopeSection, ClassID: "GRADE-5", SectionID: "A"}, true},
		{"section mismatch", Applicability{Scope: ScopeSection, ClassID: "GRADE-5", SectionID: "B"}, false},
		{"class match", Applicability{Scope: ScopeClass, ClassID: "GRADE-5"}, true},
		{"class mismatch", Applicability{Scope: ScopeClass, ClassID: "GRADE-6"}, false},
		{"all", Applicability{Scope: ScopeAll}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.app.Matches(profile))
		})
	}
}
