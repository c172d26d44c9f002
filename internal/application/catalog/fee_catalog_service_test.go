package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/feeledger/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cal = valueobject.DefaultCalendar()

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inr(minor int64) valueobject.Money {
	return valueobject.MustNewMoney(minor, valueobject.INR)
}

func period(t *testing.T, key string) valueobject.BillingPeriod {
	t.Helper()
	p, err := cal.ParsePeriod(key)
	require.NoError(t, err)
	return p
}

func newTestService(t *testing.T) *FeeCatalogService {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB
	return NewFeeCatalogService(Repositories{
		FeeItems:  persistence.NewGormFeeItemRepository(db),
		Discounts: persistence.NewGormDiscountRuleRepository(db, valueobject.INR),
		Fines:     persistence.NewGormFineRuleRepository(db, valueobject.INR),
		Profiles:  persistence.NewGormStudentProfileRepository(db),
	}, cal, valueobject.INR, nil)
}

func tuition(amount int64, scope catalog.Applicability) catalog.FeeItemParams {
	return catalog.FeeItemParams{
		ItemKey:       "tuition",
		Name:          "Tuition",
		Amount:        inr(amount),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: scope,
		EffectiveFrom: day(2026, 1, 1),
	}
}

func putStudent(t *testing.T, svc *FeeCatalogService, category string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := svc.PutProfile(context.Background(), ProfileRequest{
		StudentID: id, FullName: "Asha Rao", ClassID: "C5", SectionID: "B", Category: category,
	})
	require.NoError(t, err)
	return id
}

func code(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func TestFeeCatalogService_FeeItems(t *testing.T) {
	ctx := context.Background()

	t.Run("create normalizes the key and rejects a duplicate", func(t *testing.T) {
		svc := newTestService(t)
		def, err := svc.CreateFeeItem(ctx, tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.NoError(t, err)
		assert.Equal(t, "TUITION", def.ItemKey)
		assert.Equal(t, 1, def.Revision)

		_, err = svc.CreateFeeItem(ctx, tuition(90000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindConflict))
		assert.Equal(t, "FEE_ITEM_EXISTS", code(err))

		// a narrower scope is a separate definition
		_, err = svc.CreateFeeItem(ctx, tuition(90000, catalog.Applicability{Scope: catalog.ScopeClass, ClassID: "C5"}))
		assert.NoError(t, err)
	})

	t.Run("currency must match the ledger", func(t *testing.T) {
		svc := newTestService(t)
		params := tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll})
		params.Amount = valueobject.MustNewMoney(100, valueobject.USD)
		_, err := svc.CreateFeeItem(ctx, params)
		assert.Equal(t, "CURRENCY_MISMATCH", code(err))
	})

	t.Run("revise supersedes the active revision", func(t *testing.T) {
		svc := newTestService(t)
		first, err := svc.CreateFeeItem(ctx, tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.NoError(t, err)

		params := tuition(120000, catalog.Applicability{Scope: catalog.ScopeAll})
		params.EffectiveFrom = day(2026, 4, 1)
		second, err := svc.ReviseFeeItem(ctx, first.ID, params)
		require.NoError(t, err)
		assert.Equal(t, 2, second.Revision)
		require.NotNil(t, second.SupersedesID)
		assert.Equal(t, first.ID, *second.SupersedesID)

		history, err := svc.FeeItemHistory(ctx, "TUITION")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, catalog.FeeItemStatusSuperseded, history[0].Status)

		_, err = svc.ReviseFeeItem(ctx, first.ID, params)
		assert.Equal(t, "FEE_ITEM_NOT_ACTIVE", code(err))

		studentID := putStudent(t, svc, "GENERAL")
		items, err := svc.ResolveApplicableItems(ctx, studentID, period(t, "2026-04"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(120000), items[0].Gross.Minor())
	})

	t.Run("retired items are not billed", func(t *testing.T) {
		svc := newTestService(t)
		def, err := svc.CreateFeeItem(ctx, tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.NoError(t, err)
		_, err = svc.RetireFeeItem(ctx, def.ID)
		require.NoError(t, err)

		studentID := putStudent(t, svc, "GENERAL")
		items, err := svc.ResolveApplicableItems(ctx, studentID, period(t, "2026-03"))
		require.NoError(t, err)
		assert.Empty(t, items)

		_, err = svc.RetireFeeItem(ctx, def.ID)
		assert.Error(t, err)
	})

	t.Run("the most specific scope wins", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.CreateFeeItem(ctx, tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.NoError(t, err)
		_, err = svc.CreateFeeItem(ctx, tuition(80000, catalog.Applicability{Scope: catalog.ScopeCategory, Category: "STAFF_WARD"}))
		require.NoError(t, err)

		staff := putStudent(t, svc, "staff_ward")
		items, err := svc.ResolveApplicableItems(ctx, staff, period(t, "2026-03"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(80000), items[0].Gross.Minor())

		general := putStudent(t, svc, "GENERAL")
		items, err = svc.ResolveApplicableItems(ctx, general, period(t, "2026-03"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(100000), items[0].Gross.Minor())
	})

	t.Run("list filters by key", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.CreateFeeItem(ctx, tuition(100000, catalog.Applicability{Scope: catalog.ScopeAll}))
		require.NoError(t, err)
		bus := tuition(20000, catalog.Applicability{Scope: catalog.ScopeAll})
		bus.ItemKey, bus.Name = "TRANSPORT", "Transport"
		_, err = svc.CreateFeeItem(ctx, bus)
		require.NoError(t, err)

		items, total, err := svc.ListFeeItems(ctx, catalog.FeeItemFilter{ItemKey: "TRANSPORT"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "TRANSPORT", items[0].ItemKey)
	})
}

func TestFeeCatalogService_Discounts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	studentID := putStudent(t, svc, "SIBLING")

	category, err := svc.CreateDiscount(ctx, catalog.DiscountRuleParams{
		Name:            "Sibling concession",
		Target:          catalog.DiscountTargetCategory,
		Category:        "SIBLING",
		Kind:            catalog.DiscountKindPercentage,
		RateBasisPoints: 500,
		ValidFrom:       day(2026, 1, 1),
	})
	require.NoError(t, err)

	rule, err := svc.ResolveDiscount(ctx, studentID, "TUITION", period(t, "2026-03"))
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, category.ID, rule.ID)

	personal, err := svc.CreateDiscount(ctx, catalog.DiscountRuleParams{
		Name:      "Scholarship",
		Target:    catalog.DiscountTargetStudent,
		StudentID: &studentID,
		Kind:      catalog.DiscountKindFixedAmount,
		Amount:    inr(25000),
		ValidFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)

	rule, err = svc.ResolveDiscount(ctx, studentID, "TUITION", period(t, "2026-03"))
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, personal.ID, rule.ID)

	t.Run("equal priority is a configuration error", func(t *testing.T) {
		_, err := svc.CreateDiscount(ctx, catalog.DiscountRuleParams{
			Name:      "Second scholarship",
			Target:    catalog.DiscountTargetStudent,
			StudentID: &studentID,
			Kind:      catalog.DiscountKindFixedAmount,
			Amount:    inr(1000),
			ValidFrom: day(2026, 1, 1),
		})
		require.NoError(t, err)

		_, err = svc.ResolveDiscount(ctx, studentID, "TUITION", period(t, "2026-03"))
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindConfiguration))
		assert.Equal(t, "AMBIGUOUS_DISCOUNT", code(err))
	})

	t.Run("deactivated rules no longer apply", func(t *testing.T) {
		rules, _, err := svc.ListDiscounts(ctx, catalog.DiscountRuleFilter{StudentID: &studentID, ActiveOnly: true})
		require.NoError(t, err)
		for _, r := range rules {
			_, err := svc.DeactivateDiscount(ctx, r.ID)
			require.NoError(t, err)
		}

		rule, err := svc.ResolveDiscount(ctx, studentID, "TUITION", period(t, "2026-03"))
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, category.ID, rule.ID)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := svc.UpdateDiscount(ctx, category.ID, catalog.DiscountRuleParams{
			Name:            "Sibling concession",
			Target:          catalog.DiscountTargetCategory,
			Category:        "SIBLING",
			Kind:            catalog.DiscountKindPercentage,
			RateBasisPoints: 750,
			ValidFrom:       day(2026, 1, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(750), updated.RateBasisPoints)

		stored, err := svc.GetDiscount(ctx, category.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(750), stored.RateBasisPoints)
	})
}

func TestFeeCatalogService_FineRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	none, err := svc.FineRule(ctx, period(t, "2026-03"))
	require.NoError(t, err)
	assert.Nil(t, none)

	rule, err := svc.CreateFineRule(ctx, catalog.FineRuleParams{
		Name:      "Late fee",
		Kind:      catalog.FineKindFixedAmount,
		Amount:    inr(10000),
		ValidFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)

	found, err := svc.FineRule(ctx, period(t, "2026-03"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rule.ID, found.ID)

	_, err = svc.CreateFineRule(ctx, catalog.FineRuleParams{
		Name:            "Daily interest",
		Kind:            catalog.FineKindPercentagePerDay,
		RateBasisPoints: 10,
		ValidFrom:       day(2026, 3, 1),
	})
	require.NoError(t, err)
	_, err = svc.FineRule(ctx, period(t, "2026-03"))
	assert.Equal(t, "AMBIGUOUS_FINE_RULE", code(err))

	_, err = svc.DeactivateFineRule(ctx, rule.ID)
	require.NoError(t, err)
	found, err = svc.FineRule(ctx, period(t, "2026-03"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, catalog.FineKindPercentagePerDay, found.Kind)

	rules, total, err := svc.ListFineRules(ctx, shared.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rules, 2)
}

func TestFeeCatalogService_Profiles(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id := uuid.New()

	_, err := svc.StudentProfile(ctx, id)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))

	_, err = svc.PutProfile(ctx, ProfileRequest{StudentID: id, FullName: "Asha Rao", ClassID: "C5", Category: "GENERAL"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.PutProfile(ctx, ProfileRequest{StudentID: id, FullName: "Asha Rao", ClassID: "C6", Category: "GENERAL", Active: &inactive})
	require.NoError(t, err)

	profile, err := svc.StudentProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "C6", profile.ClassID)
	assert.False(t, profile.IsActive())

	_, err = svc.PutProfile(ctx, ProfileRequest{StudentID: id})
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}
