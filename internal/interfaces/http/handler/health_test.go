package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := HealthCheck{Name: "database", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		state  string
		result map[string]any
	}{
		{
			name:   "all dependencies up",
			checks: []HealthCheck{ok},
			status: http.StatusOK,
			state:  "healthy",
			result: map[string]any{"database": "ok"},
		},
		{
			name:   "one dependency down",
			checks: []HealthCheck{ok, down},
			status: http.StatusServiceUnavailable,
			state:  "unhealthy",
			result: map[string]any{"database": "ok", "redis": "error"},
		},
		{
			name:   "no checks",
			status: http.StatusOK,
			state:  "healthy",
			result: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(tt.checks...).Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.state, body["status"])
			assert.Equal(t, tt.result, body["checks"])
			assert.NotEmpty(t, body["time"])
		})
	}
}
