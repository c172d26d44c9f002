package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func swaggerRouter(cfg SwaggerConfig) *gin.Engine {
	r := gin.New()
	r.GET("/swagger/*any", SwaggerProtection(cfg), okHandler)
	return r
}

func swaggerFrom(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSwaggerProtection(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SwaggerConfig
		remote string
		want   int
	}{
		{name: "disabled", cfg: SwaggerConfig{}, remote: "127.0.0.1:1234", want: http.StatusNotFound},
		{name: "open", cfg: SwaggerConfig{Enabled: true}, remote: "203.0.113.9:1234", want: http.StatusOK},
		{name: "listed ip", cfg: SwaggerConfig{Enabled: true, AllowedIPs: []string{"127.0.0.1"}}, remote: "127.0.0.1:1234", want: http.StatusOK},
		{name: "inside cidr", cfg: SwaggerConfig{Enabled: true, AllowedIPs: []string{"10.20.0.0/16"}}, remote: "10.20.4.7:1234", want: http.StatusOK},
		{name: "outside cidr", cfg: SwaggerConfig{Enabled: true, AllowedIPs: []string{"10.20.0.0/16"}}, remote: "10.21.0.1:1234", want: http.StatusForbidden},
		{name: "only malformed entries", cfg: SwaggerConfig{Enabled: true, AllowedIPs: []string{"office"}}, remote: "127.0.0.1:1234", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := swaggerFrom(swaggerRouter(tt.cfg), tt.remote)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSwaggerProtection_ErrorBody(t *testing.T) {
	w := swaggerFrom(swaggerRouter(SwaggerConfig{Enabled: true, AllowedIPs: []string{"10.0.0.1"}}), "192.0.2.1:1")
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}
