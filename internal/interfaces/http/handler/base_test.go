package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		code    string
		message string
	}{
		{
			name:   "validation",
			err:    shared.NewValidationError("INVALID_PERIOD", "invalid billing period"),
			status: http.StatusBadRequest,
			kind:   "VALIDATION_ERROR",
			code:   "INVALID_PERIOD",
		},
		{
			name:   "configuration",
			err:    shared.NewConfigurationError("AMBIGUOUS_DISCOUNT", "two discounts match"),
			status: http.StatusUnprocessableEntity,
			kind:   "CONFIGURATION_ERROR",
			code:   "AMBIGUOUS_DISCOUNT",
		},
		{
			name:   "wrapped overpayment",
			err:    fmt.Errorf("collect: %w", shared.NewOverpaymentRejectedError(500, "INR")),
			status: http.StatusConflict,
			kind:   "OVERPAYMENT_REJECTED",
		},
		{
			name:   "storage hides the cause",
			err:    shared.NewStorageError("save invoice", errors.New("dial tcp 10.0.0.5:5432")),
			status: http.StatusServiceUnavailable,
			kind:   "STORAGE_ERROR",
		},
		{
			name:    "unknown",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			kind:    "INTERNAL_ERROR",
			message: "An unexpected error occurred",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			r := gin.New()
			r.Use(middleware.RequestID())
			r.GET("/", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-1")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			info := errorOf(t, w)
			assert.Equal(t, tt.kind, info.Kind)
			assert.Equal(t, "req-1", info.RequestID)
			if tt.code != "" {
				assert.Equal(t, tt.code, info.Code)
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, info.Message)
			}
			assert.NotContains(t, w.Body.String(), "10.0.0.5")
		})
	}
}

func TestBaseHandler_SuccessWithMetaDefaultsPage(t *testing.T) {
	h := &BaseHandler{}
	r := gin.New()
	r.GET("/", func(c *gin.Context) { h.SuccessWithMeta(c, []string{"a"}, 45, 0, 20) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Page)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
