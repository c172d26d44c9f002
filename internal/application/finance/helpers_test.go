package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	catalogapp "github.com/feeledger/backend/internal/application/catalog"
	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/feeledger/backend/internal/infrastructure/event"
	"github.com/feeledger/backend/internal/infrastructure/lock"
	"github.com/feeledger/backend/internal/infrastructure/persistence"
	"github.com/feeledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inr(minor int64) valueobject.Money {
	return valueobject.MustNewMoney(minor, valueobject.INR)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeArchive keeps reports in memory and can be told to fail
type fakeArchive struct {
	mu      sync.Mutex
	reports map[string]*finance.ReconciliationReport
	err     error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{reports: make(map[string]*finance.ReconciliationReport)}
}

func (a *fakeArchive) Archive(_ context.Context, report *finance.ReconciliationReport) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	location := fmt.Sprintf("reports/%s/%d.json", report.Period, len(a.reports)+1)
	a.reports[location] = report
	return location, nil
}

func (a *fakeArchive) ReportURL(_ context.Context, location string) (string, time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.reports[location]; !ok {
		return "", time.Time{}, shared.NewNotFoundError("reconciliation report", location)
	}
	return "https://reports.example.test/" + location, day(2026, 5, 1), nil
}

type fixture struct {
	db             *gorm.DB
	store          *persistence.GormLedgerStore
	catalog        *catalogapp.FeeCatalogService
	leases         *lock.MemoryLeaseManager
	archive        *fakeArchive
	clock          *testClock
	logs           *observer.ObservedLogs
	invoices       *InvoiceService
	collections    *CollectionService
	ledger         *LedgerQueryService
	reconciliation *ReconciliationService
}

func newFixture(t *testing.T, collectionOpts ...CollectionServiceOption) *fixture {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	policy := DefaultPolicy()
	outbox := event.NewOutboxPublisher(event.NewLedgerSerializer())
	store := persistence.NewGormLedgerStore(db, policy.Currency, persistence.WithOutbox(outbox))
	feeCatalog := catalogapp.NewFeeCatalogService(catalogapp.Repositories{
		FeeItems:  persistence.NewGormFeeItemRepository(db),
		Discounts: persistence.NewGormDiscountRuleRepository(db, policy.Currency),
		Fines:     persistence.NewGormFineRuleRepository(db, policy.Currency),
		Profiles:  persistence.NewGormStudentProfileRepository(db),
	}, policy.Calendar, policy.Currency, logger)

	clock := &testClock{now: day(2026, 3, 1)}
	leases := lock.NewMemoryLeaseManager()
	archive := newFakeArchive()

	fx := &fixture{
		db:      db,
		store:   store,
		catalog: feeCatalog,
		leases:  leases,
		archive: archive,
		clock:   clock,
		logs:    logs,
	}
	fx.invoices = NewInvoiceService(store, feeCatalog, leases, policy,
		WithInvoiceLogger(logger), WithInvoiceClock(clock.Now))
	opts := append([]CollectionServiceOption{
		WithCollectionLogger(logger), WithCollectionClock(clock.Now),
	}, collectionOpts...)
	fx.collections = NewCollectionService(store, feeCatalog, leases, policy, opts...)
	fx.ledger = NewLedgerQueryService(store, feeCatalog)
	fx.reconciliation = NewReconciliationService(store, feeCatalog, leases, policy,
		WithReconciliationLogger(logger), WithReconciliationClock(clock.Now), WithReportArchive(archive))
	return fx
}

func profileRequest(id uuid.UUID, active *bool) catalogapp.ProfileRequest {
	return catalogapp.ProfileRequest{
		StudentID: id,
		FullName:  "Student " + id.String()[:8],
		ClassID:   "C5",
		SectionID: "A",
		Category:  "GENERAL",
		Active:    active,
	}
}

func (fx *fixture) student(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := fx.catalog.PutProfile(context.Background(), profileRequest(id, nil))
	require.NoError(t, err)
	return id
}

func (fx *fixture) feeItem(t *testing.T, key string, minor int64) {
	t.Helper()
	_, err := fx.catalog.CreateFeeItem(context.Background(), catalog.FeeItemParams{
		ItemKey:       key,
		Name:          key,
		Amount:        inr(minor),
		Frequency:     catalog.FrequencyMonthly,
		Applicability: catalog.Applicability{Scope: catalog.ScopeAll},
		EffectiveFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
}

func (fx *fixture) studentDiscount(t *testing.T, studentID uuid.UUID, bps int64) {
	t.Helper()
	_, err := fx.catalog.CreateDiscount(context.Background(), catalog.DiscountRuleParams{
		Name:            "Sibling",
		Target:          catalog.DiscountTargetStudent,
		StudentID:       &studentID,
		Kind:            catalog.DiscountKindPercentage,
		RateBasisPoints: bps,
		ValidFrom:       day(2026, 1, 1),
	})
	require.NoError(t, err)
}

func (fx *fixture) flatFine(t *testing.T, minor int64) {
	t.Helper()
	_, err := fx.catalog.CreateFineRule(context.Background(), catalog.FineRuleParams{
		Name:      "Late fee",
		Kind:      catalog.FineKindFixedAmount,
		Amount:    inr(minor),
		ValidFrom: day(2026, 1, 1),
	})
	require.NoError(t, err)
}

func (fx *fixture) generate(t *testing.T, studentID uuid.UUID, period string) *finance.Invoice {
	t.Helper()
	res, err := fx.invoices.Generate(context.Background(), GenerateInvoiceRequest{
		StudentID: studentID,
		Period:    period,
		Actor:     "accountant",
	})
	require.NoError(t, err)
	return res.Invoice
}

func (fx *fixture) cash(t *testing.T, studentID uuid.UUID, minor int64) *CollectionOutcome {
	t.Helper()
	out, err := fx.collections.Collect(context.Background(), CollectPaymentRequest{
		StudentID: studentID,
		Amount:    inr(minor),
		Method:    finance.PaymentMethodCash,
		Actor:     "cashier",
	})
	require.NoError(t, err)
	return out
}

// outboxTypes lists the event types written to the outbox, oldest first
func (fx *fixture) outboxTypes(t *testing.T) []string {
	t.Helper()
	var rows []models.OutboxEntryModel
	require.NoError(t, fx.db.Order("created_at asc").Find(&rows).Error)
	types := make([]string, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.EventType)
	}
	return types
}

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
