package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodHandler_CloseAndReopen(t *testing.T) {
	s := newTestServer(t)
	s.feeItem(t, "TUITION", 100000)
	w := s.do(t, http.MethodPost, "/api/v1/catalog/fine-rules", map[string]any{
		"name":      "Late fee",
		"kind":      "FIXED_AMOUNT",
		"amount":    map[string]any{"amountMinor": 5000},
		"validFrom": "2026-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	studentID := s.student(t)
	s.generate(t, studentID, "2026-03")
	s.clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	w = s.do(t, http.MethodPost, "/api/v1/periods/2026-03/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := dataOf(t, w)
	assert.Equal(t, true, body["complete"])
	report := body["report"].(map[string]any)
	assert.Equal(t, "2026-04", report["nextPeriod"])
	assert.Equal(t, float64(1), report["invoicesOverdue"])

	w = s.do(t, http.MethodGet, "/api/v1/periods/2026-03", nil)
	require.Equal(t, http.StatusOK, w.Code)
	closed := dataOf(t, w)
	assert.Equal(t, "CLOSED", closed["status"])
	assert.Equal(t, "test-user", closed["closedBy"])

	w = s.do(t, http.MethodGet, "/api/v1/students/"+studentID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(105000), minorOf(t, dataOf(t, w), "balance"))

	t.Run("second close conflicts", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/periods/2026-03/close", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "PERIOD_ALREADY_CLOSED", errorOf(t, w).Kind)
	})

	t.Run("forced close", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/periods/2026-03/close?force=true", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		report := dataOf(t, w)["report"].(map[string]any)
		assert.Equal(t, true, report["forced"])
		assert.Equal(t, float64(0), report["invoicesReconciled"])
	})

	t.Run("report link", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/periods/2026-03/report", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		link := dataOf(t, w)
		assert.Equal(t, "2026-03", link["period"])
		assert.Contains(t, link["url"], "memory://reports/")
	})

	t.Run("list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/periods?pageSize=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 10, resp.Meta.PageSize)
		assert.NotZero(t, resp.Meta.Total)
	})

	t.Run("reopen", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/periods/2026-03/reopen", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "REOPENED", dataOf(t, w)["status"])

		w = s.do(t, http.MethodPost, "/api/v1/periods/2026-03/reopen", nil)
		assert.Equal(t, "PERIOD_NOT_CLOSED", errorOf(t, w).Code)
	})
}

func TestPeriodHandler_InvalidPeriod(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/periods/2026-13/close", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PERIOD", errorOf(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/v1/periods/2026-03/close?force=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/periods/2026-03", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
