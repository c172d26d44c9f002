package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	catalogapp "github.com/feeledger/backend/internal/application/catalog"
	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/feeledger/backend/internal/infrastructure/event"
	"github.com/feeledger/backend/internal/infrastructure/lock"
	"github.com/feeledger/backend/internal/infrastructure/persistence"
	"github.com/feeledger/backend/internal/infrastructure/storage"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
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

type testServer struct {
	engine  *gin.Engine
	clock   *testClock
	catalog *catalogapp.FeeCatalogService
}

// newTestServer wires the handlers over an in-memory sqlite ledger
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB
	logger := zap.NewNop()

	policy := financeapp.DefaultPolicy()
	store := persistence.NewGormLedgerStore(db, policy.Currency,
		persistence.WithOutbox(event.NewOutboxPublisher(event.NewLedgerSerializer())))
	feeCatalog := catalogapp.NewFeeCatalogService(catalogapp.Repositories{
		FeeItems:  persistence.NewGormFeeItemRepository(db),
		Discounts: persistence.NewGormDiscountRuleRepository(db, policy.Currency),
		Fines:     persistence.NewGormFineRuleRepository(db, policy.Currency),
		Profiles:  persistence.NewGormStudentProfileRepository(db),
	}, policy.Calendar, policy.Currency, logger)
	leases := lock.NewMemoryLeaseManager()
	clock := &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	invoices := financeapp.NewInvoiceService(store, feeCatalog, leases, policy,
		financeapp.WithInvoiceLogger(logger), financeapp.WithInvoiceClock(clock.Now))
	collections := financeapp.NewCollectionService(store, feeCatalog, leases, policy,
		financeapp.WithCollectionLogger(logger), financeapp.WithCollectionClock(clock.Now))
	ledger := financeapp.NewLedgerQueryService(store, feeCatalog)
	reconciliation := financeapp.NewReconciliationService(store, feeCatalog, leases, policy,
		financeapp.WithReconciliationLogger(logger), financeapp.WithReconciliationClock(clock.Now),
		financeapp.WithReportArchive(storage.NewMemoryReportArchive()))

	invoiceHandler := NewInvoiceHandler(invoices)
	paymentHandler := NewPaymentHandler(collections, policy.Currency)
	studentHandler := NewStudentHandler(ledger, feeCatalog, policy.Calendar)
	periodHandler := NewPeriodHandler(reconciliation)
	catalogHandler := NewCatalogHandler(feeCatalog, policy.Currency)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Actor())
	api := engine.Group("/api/v1")

	api.POST("/invoices/generate", invoiceHandler.Generate)
	api.GET("/invoices/:id", invoiceHandler.Get)
	api.POST("/invoices/:id/void", invoiceHandler.Void)

	api.POST("/payments/collect", paymentHandler.Collect)
	api.GET("/payments/:id", paymentHandler.Get)
	api.POST("/payments/:id/reverse", paymentHandler.Reverse)
	api.POST("/payments/webhooks/online", paymentHandler.OnlineWebhook)

	api.GET("/students/:id/invoices", invoiceHandler.ListByStudent)
	api.GET("/students/:id/payments", paymentHandler.ListByStudent)
	api.GET("/students/:id/balance", studentHandler.Balance)
	api.GET("/students/:id/statement", studentHandler.Statement)
	api.GET("/students/:id/carry-forwards", studentHandler.CarryForwards)
	api.GET("/students/:id/fee-items", studentHandler.ApplicableItems)
	api.GET("/students/:id/profile", studentHandler.GetProfile)
	api.PUT("/students/:id/profile", studentHandler.PutProfile)

	api.GET("/periods", periodHandler.List)
	api.GET("/periods/:period", periodHandler.Get)
	api.GET("/periods/:period/report", periodHandler.Report)
	api.POST("/periods/:period/close", periodHandler.Close)
	api.POST("/periods/:period/reopen", periodHandler.Reopen)

	api.GET("/catalog/fee-items", catalogHandler.ListFeeItems)
	api.POST("/catalog/fee-items", catalogHandler.CreateFeeItem)
	api.GET("/catalog/fee-items/:id", catalogHandler.GetFeeItem)
	api.GET("/catalog/fee-items/:id/revisions", catalogHandler.FeeItemRevisions)
	api.PUT("/catalog/fee-items/:id", catalogHandler.ReviseFeeItem)
	api.DELETE("/catalog/fee-items/:id", catalogHandler.RetireFeeItem)
	api.GET("/catalog/discounts", catalogHandler.ListDiscounts)
	api.POST("/catalog/discounts", catalogHandler.CreateDiscount)
	api.GET("/catalog/discounts/:id", catalogHandler.GetDiscount)
	api.PUT("/catalog/discounts/:id", catalogHandler.UpdateDiscount)
	api.DELETE("/catalog/discounts/:id", catalogHandler.DeactivateDiscount)
	api.GET("/catalog/fine-rules", catalogHandler.ListFineRules)
	api.POST("/catalog/fine-rules", catalogHandler.CreateFineRule)
	api.DELETE("/catalog/fine-rules/:id", catalogHandler.DeactivateFineRule)

	return &testServer{engine: engine, clock: clock, catalog: feeCatalog}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, "test-user")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// student registers a GENERAL student in class C5
func (s *testServer) student(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.catalog.PutProfile(context.Background(), catalogapp.ProfileRequest{
		StudentID: id,
		FullName:  "Test Student",
		ClassID:   "C5",
		SectionID: "A",
		Category:  "GENERAL",
	})
	require.NoError(t, err)
	return id
}

func (s *testServer) feeItem(t *testing.T, key string, minor int64) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/catalog/fee-items", map[string]any{
		"itemKey":       key,
		"name":          key,
		"amountMinor":   minor,
		"frequency":     "MONTHLY",
		"applicability": map[string]any{"scope": "ALL"},
		"effectiveFrom": "2026-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataOf(t, w)["id"].(string)
}

func (s *testServer) generate(t *testing.T, studentID uuid.UUID, period string) map[string]any {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/invoices/generate", map[string]any{
		"studentId": studentID.String(),
		"period":    period,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataOf(t, w)["invoice"].(map[string]any)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decode(t, w)
	require.True(t, resp.Success, w.Body.String())
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func listOf(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	resp := decode(t, w)
	require.True(t, resp.Success, w.Body.String())
	data, ok := resp.Data.([]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

// minorOf reads the minor units of a money field
func minorOf(t *testing.T, m map[string]any, field string) int64 {
	t.Helper()
	money, ok := m[field].(map[string]any)
	require.True(t, ok, "%s is %T", field, m[field])
	return int64(money["minor"].(float64))
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	resp := decode(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}
