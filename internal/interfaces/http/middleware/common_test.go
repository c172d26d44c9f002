package middleware

import (
	"net/http"
	"testing"

	"github.com/feeledger/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantOrigin  string
		wantStatus  int
		credentials bool
	}{
		{name: "empty whitelist", origin: "https://school.example", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "allowed origin", origins: []string{"https://school.example"}, origin: "https://school.example", method: http.MethodGet, wantOrigin: "https://school.example", wantStatus: http.StatusOK, credentials: true},
		{name: "other origin", origins: []string{"https://school.example"}, origin: "https://evil.example", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusOK, credentials: true},
		{name: "preflight", origins: []string{"https://school.example"}, origin: "https://school.example", method: http.MethodOptions, wantOrigin: "https://school.example", wantStatus: http.StatusNoContent},
		{name: "preflight from other origin", origins: []string{"https://school.example"}, origin: "https://evil.example", method: http.MethodOptions, wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowOrigins = tt.origins
			cfg.AllowCredentials = tt.credentials
			r := gin.New()
			r.Use(CORS(cfg))
			r.GET("/health", okHandler)

			w := serve(r, tt.method, "/health", map[string]string{"Origin": tt.origin})

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), ActorHeader)
				assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
			}
			if tt.wantOrigin == "*" {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var fromCtx string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		fromCtx = logger.GetRequestID(c.Request.Context())
		okHandler(c)
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/", nil)
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 32)
		assert.Equal(t, id, fromCtx)
	})

	t.Run("client supplied", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "req-42"})
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", fromCtx)
	})

	t.Run("oversized id is replaced", func(t *testing.T) {
		long := make([]byte, MaxRequestIDLength+1)
		for i := range long {
			long[i] = 'a'
		}
		w := serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: string(long)})
		assert.Len(t, w.Header().Get(RequestIDHeader), 32)
	})
}

func TestSecure(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r := gin.New()
		r.Use(Secure(DefaultSecurityConfig()))
		r.GET("/", okHandler)

		w := serve(r, http.MethodGet, "/", nil)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("hsts", func(t *testing.T) {
		cfg := DefaultSecurityConfig()
		cfg.HSTSEnabled = true
		r := gin.New()
		r.Use(Secure(cfg))
		r.GET("/", okHandler)

		w := serve(r, http.MethodGet, "/", nil)
		assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	})
}
