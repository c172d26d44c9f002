package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func tracedRouter(status int) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Actor(), Tracing(TracingConfig{ServiceName: "test", Enabled: true}), SpanAttributes())
	r.POST("/api/v1/payments/:id/reverse", func(c *gin.Context) {
		c.Status(status)
	})
	return r
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	r := gin.New()
	r.Use(Tracing(TracingConfig{Enabled: false}))
	r.GET("/", okHandler)

	w := serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_SpanCarriesRequestAndActor(t *testing.T) {
	sr := setupTestTracer(t)
	r := tracedRouter(http.StatusOK)

	w := serve(r, http.MethodPost, "/api/v1/payments/abc/reverse", map[string]string{
		RequestIDHeader: "req-7",
		ActorHeader:     "accountant",
	})
	require.Equal(t, http.StatusOK, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "req-7", attrs["request_id"].AsString())
	assert.Equal(t, "accountant", attrs["actor_id"].AsString())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanAttributes_MarksErrors(t *testing.T) {
	tests := []struct {
		status int
		msg    string
	}{
		{http.StatusBadRequest, "Client Error"},
		{http.StatusNotFound, "Not Found"},
		{http.StatusConflict, "Conflict"},
		{http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)
			r := tracedRouter(tt.status)

			serve(r, http.MethodPost, "/api/v1/payments/abc/reverse", nil)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, spans[0].Status().Description)
			}
			assert.Equal(t, int64(tt.status), spanAttrs(spans[0])["http.status_code"].AsInt64())
		})
	}
}

func TestSpanAttributes_WithoutSpan(t *testing.T) {
	r := gin.New()
	r.Use(SpanAttributes())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
