// Package middleware provides the HTTP middleware of the fee ledger API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength bounds client supplied request ids
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "feeledger",
		Enabled:     true,
	}
}

// Tracing starts a server span per request through otelgin. Spans are named
// after the route pattern ("POST /api/v1/payments/collect").
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes adds request_id and actor_id to the server span and marks
// it failed for 4xx answers. otelgin marks 5xx answers itself once this
// handler returns. Place it after Tracing, RequestID and Actor.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := GetRequestID(c); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
			span.SetAttributes(attribute.String("actor_id", GetActor(c)))
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		if status < http.StatusInternalServerError {
			msg := "Client Error"
			switch status {
			case http.StatusNotFound:
				msg = "Not Found"
			case http.StatusConflict:
				msg = "Conflict"
			}
			span.SetStatus(codes.Error, msg)
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
