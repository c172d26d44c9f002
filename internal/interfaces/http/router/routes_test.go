package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/interfaces/http/handler"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag/v2"

	_ "github.com/feeledger/backend/docs"
)

func unwiredHandlers() Handlers {
	return Handlers{
		Invoices: handler.NewInvoiceHandler(nil),
		Payments: handler.NewPaymentHandler(nil, valueobject.INR),
		Students: handler.NewStudentHandler(nil, nil, valueobject.DefaultCalendar()),
		Periods:  handler.NewPeriodHandler(nil),
		Catalog:  handler.NewCatalogHandler(nil, valueobject.INR),
	}
}

func TestRegisterAPI_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	r := NewRouter(engine)

	routes := RegisterAPI(r, unwiredHandlers(), "")
	r.Setup()

	expected := []Route{
		{http.MethodPost, "/api/v1/invoices/generate"},
		{http.MethodGet, "/api/v1/invoices/:id"},
		{http.MethodPost, "/api/v1/invoices/:id/void"},
		{http.MethodPost, "/api/v1/payments/collect"},
		{http.MethodGet, "/api/v1/payments/:id"},
		{http.MethodPost, "/api/v1/payments/:id/reverse"},
		{http.MethodPost, "/api/v1/payments/webhooks/online"},
		{http.MethodGet, "/api/v1/students/:id/invoices"},
		{http.MethodGet, "/api/v1/students/:id/payments"},
		{http.MethodGet, "/api/v1/students/:id/balance"},
		{http.MethodGet, "/api/v1/students/:id/statement"},
		{http.MethodGet, "/api/v1/students/:id/carry-forwards"},
		{http.MethodGet, "/api/v1/students/:id/fee-items"},
		{http.MethodGet, "/api/v1/students/:id/profile"},
		{http.MethodPut, "/api/v1/students/:id/profile"},
		{http.MethodGet, "/api/v1/periods"},
		{http.MethodGet, "/api/v1/periods/:period"},
		{http.MethodGet, "/api/v1/periods/:period/report"},
		{http.MethodPost, "/api/v1/periods/:period/close"},
		{http.MethodPost, "/api/v1/periods/:period/reopen"},
		{http.MethodGet, "/api/v1/catalog/fee-items"},
		{http.MethodPost, "/api/v1/catalog/fee-items"},
		{http.MethodGet, "/api/v1/catalog/fee-items/:id"},
		{http.MethodGet, "/api/v1/catalog/fee-items/:id/revisions"},
		{http.MethodPut, "/api/v1/catalog/fee-items/:id"},
		{http.MethodDelete, "/api/v1/catalog/fee-items/:id"},
		{http.MethodGet, "/api/v1/catalog/discounts"},
		{http.MethodPost, "/api/v1/catalog/discounts"},
		{http.MethodGet, "/api/v1/catalog/discounts/:id"},
		{http.MethodPut, "/api/v1/catalog/discounts/:id"},
		{http.MethodDelete, "/api/v1/catalog/discounts/:id"},
		{http.MethodGet, "/api/v1/catalog/fine-rules"},
		{http.MethodPost, "/api/v1/catalog/fine-rules"},
		{http.MethodDelete, "/api/v1/catalog/fine-rules/:id"},
	}
	assert.ElementsMatch(t, expected, routes)

	registered := make(map[Route]bool)
	for _, info := range engine.Routes() {
		registered[Route{Method: info.Method, Path: info.Path}] = true
	}
	for _, route := range expected {
		assert.True(t, registered[route], "%s %s not mounted", route.Method, route.Path)
	}
}

func TestRegisterAPI_WebhookRequiresSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	r := NewRouter(engine)
	RegisterAPI(r, unwiredHandlers(), "s3cret")
	r.Setup()

	tests := []struct {
		name   string
		secret string
	}{
		{name: "missing header"},
		{name: "wrong secret", secret: "guess"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/online", nil)
			if tt.secret != "" {
				req.Header.Set(middleware.WebhookSecretHeader, tt.secret)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "WEBHOOK_UNAUTHORIZED")
		})
	}
}

func TestRegisterAPI_RoutesAreDocumented(t *testing.T) {
	gin.SetMode(gin.TestMode)
	routes := RegisterAPI(NewRouter(gin.New()), unwiredHandlers(), "")

	raw, err := swag.ReadDoc()
	require.NoError(t, err)

	var doc struct {
		BasePath string                                `json:"basePath"`
		Paths    map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)

	param := regexp.MustCompile(`:(\w+)`)
	for _, route := range routes {
		path := param.ReplaceAllString(strings.TrimPrefix(route.Path, doc.BasePath), "{$1}")
		ops, ok := doc.Paths[path]
		if !assert.True(t, ok, "%s is not documented", path) {
			continue
		}
		_, ok = ops[strings.ToLower(route.Method)]
		assert.True(t, ok, "%s %s is not documented", route.Method, path)
	}
}
