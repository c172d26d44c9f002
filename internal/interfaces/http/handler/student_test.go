package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentHandler_Profile(t *testing.T) {
	s := newTestServer(t)
	studentID := uuid.NewString()
	path := "/api/v1/students/" + studentID + "/profile"

	w := s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, path, map[string]any{"fullName": "Asha"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	fields := errorOf(t, w).Fields
	require.NotEmpty(t, fields)
	assert.Equal(t, "classId", fields[0].Field)

	w = s.do(t, http.MethodPut, path, map[string]any{
		"fullName": "Asha",
		"classId":  "C5",
		"category": "staff-ward",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := dataOf(t, w)
	assert.Equal(t, "C5", profile["classId"])
	assert.Equal(t, "ACTIVE", profile["status"])

	w = s.do(t, http.MethodPut, path, map[string]any{"classId": "C5", "active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "INACTIVE", dataOf(t, w)["status"])
}

func TestStudentHandler_BalanceAndStatement(t *testing.T) {
	s := newTestServer(t)
	s.feeItem(t, "TUITION", 100000)
	studentID := s.student(t)
	s.generate(t, studentID, "2026-03")
	base := "/api/v1/students/" + studentID.String()

	w := s.do(t, http.MethodGet, base+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balance := dataOf(t, w)
	assert.Equal(t, int64(100000), minorOf(t, balance, "balance"))
	assert.Zero(t, minorOf(t, balance, "credit"))
	assert.Equal(t, "INR", balance["currency"])
	assert.NotEmpty(t, balance["checksum"])
	assert.Len(t, balance["openInvoices"], 1)

	w = s.do(t, http.MethodPost, "/api/v1/payments/collect", map[string]any{
		"studentId":   studentID.String(),
		"amountMinor": 130000,
		"method":      "CASH",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, base+"/statement", nil)
	require.Equal(t, http.StatusOK, w.Code)
	statement := dataOf(t, w)
	assert.Len(t, statement["invoices"], 1)
	assert.Len(t, statement["payments"], 1)
	assert.Len(t, statement["carryForwards"], 1)
	stmtBalance := statement["balance"].(map[string]any)
	assert.Equal(t, int64(30000), minorOf(t, stmtBalance, "credit"))
	assert.NotEqual(t, balance["checksum"], stmtBalance["checksum"])

	w = s.do(t, http.MethodGet, base+"/carry-forwards", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := listOf(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].(map[string]any)["credit"])

	w = s.do(t, http.MethodGet, "/api/v1/students/"+uuid.NewString()+"/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandler_ApplicableItems(t *testing.T) {
	s := newTestServer(t)
	s.feeItem(t, "TUITION", 100000)
	studentID := s.student(t)
	path := "/api/v1/students/" + studentID.String() + "/fee-items"

	w := s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, path+"?period=2026-Q1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := listOf(t, w)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, float64(3), item["occurrences"])
	assert.Equal(t, int64(300000), minorOf(t, item, "gross"))
}
