package persistence

import (
	"context"
	"testing"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTuition(t *testing.T, amount int64) *catalog.FeeItemDefinition {
	t.Helper()
	def, err := catalog.NewFeeItemDefinition(catalog.FeeItemParams{
		ItemKey:       "tuition",
		Name:          "Tuition",
		Amount:        inr(amount),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeAll},
		EffectiveFrom: day(2026, 4, 1),
	})
	require.NoError(t, err)
	return def
}

func TestGormFeeItemRepository_Revisions(t *testing.T) {
	repo := NewGormFeeItemRepository(newTestDB(t))
	ctx := context.Background()

	v1 := newTuition(t, 400000)
	require.NoError(t, repo.Save(ctx, v1))

	v2, err := v1.Revise(catalog.FeeItemParams{
		Name:          "Tuition",
		Amount:        inr(450000),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeAll},
		EffectiveFrom: day(2026, 6, 1),
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveRevision(ctx, v1, v2))

	revisions, err := repo.FindRevisions(ctx, "TUITION")
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, catalog.FeeItemStatusSuperseded, revisions[0].Status)
	assert.Equal(t, 2, revisions[1].Revision)
	assert.Equal(t, v1.ID, *revisions[1].SupersedesID)

	// a second revise from the same stale copy loses
	stale := newTuition(t, 1)
	stale.ID = v1.ID
	stale.LineageID = v1.LineageID
	stale.ItemKey = v1.ItemKey
	v3, err := stale.Revise(catalog.FeeItemParams{
		Name: "Tuition", Amount: inr(500000), Frequency: catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeAll}, EffectiveFrom: day(2026, 7, 1),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveRevision(ctx, stale, v3), shared.ErrConcurrencyConflict)

	billable, err := repo.FindBillable(ctx, valueobject.Month(2026, 6))
	require.NoError(t, err)
	require.Len(t, billable, 1)
	assert.Equal(t, int64(450000), billable[0].Amount.Minor())

	list, total, err := repo.FindAll(ctx, catalog.FeeItemFilter{Filter: shared.DefaultFilter(), ItemKey: "TUITION"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)
}

func TestGormFeeItemRepository_ScopedOverrideOfSameKey(t *testing.T) {
	repo := NewGormFeeItemRepository(newTestDB(t))
	ctx := context.Background()

	classWide := newTuition(t, 100000)
	require.NoError(t, repo.Save(ctx, classWide))

	override, err := catalog.NewFeeItemDefinition(catalog.FeeItemParams{
		ItemKey:       "tuition",
		Name:          "Tuition (staff ward)",
		Amount:        inr(80000),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeCategory, Category: "STAFF_WARD"},
		EffectiveFrom: day(2026, 4, 1),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, override))
	assert.NotEqual(t, classWide.LineageID, override.LineageID)

	// each lineage revises independently
	revised, err := override.Revise(catalog.FeeItemParams{
		Name:          "Tuition (staff ward)",
		Amount:        inr(75000),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeCategory, Category: "STAFF_WARD"},
		EffectiveFrom: day(2026, 4, 1),
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveRevision(ctx, override, revised))
	assert.Equal(t, 2, revised.Revision)

	period := valueobject.Month(2026, 5)
	billable, err := repo.FindBillable(ctx, period)
	require.NoError(t, err)
	require.Len(t, billable, 2)

	resolver := catalog.NewResolver(valueobject.DefaultCalendar())
	staff := catalog.StudentProfile{StudentID: uuid.New(), ClassID: "C5", Category: "STAFF_WARD", Status: catalog.StudentStatusActive}
	items, err := resolver.ApplicableItems(staff, period, billable)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(75000), items[0].Gross.Minor())

	general := catalog.StudentProfile{StudentID: uuid.New(), ClassID: "C5", Category: "GENERAL", Status: catalog.StudentStatusActive}
	items, err = resolver.ApplicableItems(general, period, billable)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100000), items[0].Gross.Minor())
}

func TestGormFeeItemRepository_RetireAndFind(t *testing.T) {
	repo := NewGormFeeItemRepository(newTestDB(t))
	ctx := context.Background()

	def := newTuition(t, 100000)
	require.NoError(t, repo.Save(ctx, def))
	require.NoError(t, def.Retire())
	require.NoError(t, repo.Save(ctx, def))

	got, err := repo.FindByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.FeeItemStatusRetired, got.Status)

	billable, err := repo.FindBillable(ctx, valueobject.Month(2026, 4))
	require.NoError(t, err)
	assert.Empty(t, billable)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestGormDiscountRuleRepository_FindCandidates(t *testing.T) {
	repo := NewGormDiscountRuleRepository(newTestDB(t), valueobject.INR)
	ctx := context.Background()
	studentID := uuid.New()

	sibling, err := catalog.NewDiscountRule(catalog.DiscountRuleParams{
		Name:            "Sibling",
		Target:          catalog.DiscountTargetCategory,
		Category:        "sibling",
		Kind:            catalog.DiscountKindPercentage,
		RateBasisPoints: 1000,
		ValidFrom:       day(2026, 1, 1),
	})
	require.NoError(t, err)
	personal, err := catalog.NewDiscountRule(catalog.DiscountRuleParams{
		Name:      "Scholarship",
		Target:    catalog.DiscountTargetStudent,
		StudentID: &studentID,
		Kind:      catalog.DiscountKindFixedAmount,
		Amount:    inr(50000),
		ValidFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sibling))
	require.NoError(t, repo.Save(ctx, personal))

	profile, err := catalog.NewStudentProfile(studentID, "Asha", "5", "A", "SIBLING")
	require.NoError(t, err)
	candidates, err := repo.FindCandidates(ctx, *profile)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	other, err := catalog.NewStudentProfile(uuid.New(), "Ravi", "5", "A", "")
	require.NoError(t, err)
	candidates, err = repo.FindCandidates(ctx, *other)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	got, err := repo.FindByID(ctx, personal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.Amount.Minor())
}

func TestGormFineRuleRepository(t *testing.T) {
	repo := NewGormFineRuleRepository(newTestDB(t), valueobject.INR)
	ctx := context.Background()

	rule, err := catalog.NewFineRule(catalog.FineRuleParams{
		Name:            "Daily",
		Kind:            catalog.FineKindPercentagePerDay,
		RateBasisPoints: 10,
		GraceDays:       3,
		ValidFrom:       day(2026, 1, 1),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rule))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, valueobject.INR, active[0].Amount.Currency())

	rule.Deactivate()
	require.NoError(t, repo.Save(ctx, rule))
	active, err = repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGormStudentProfileRepository_Upsert(t *testing.T) {
	repo := NewGormStudentProfileRepository(newTestDB(t))
	ctx := context.Background()
	id := uuid.New()

	p, err := catalog.NewStudentProfile(id, "Asha", "5", "A", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))

	p.ClassID = "6"
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "6", got.ClassID)
}
