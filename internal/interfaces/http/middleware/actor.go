package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/logger"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ActorHeader names the acting user; set by the trusted gateway
	ActorHeader = "X-Actor-ID"
	// ActorKey is the gin context key of the acting user
	ActorKey = "actor_id"
	// DefaultActor is recorded when no actor is supplied
	DefaultActor = "system"
	// MaxActorLength bounds the header so it cannot bloat ledger rows
	MaxActorLength = 100
	// WebhookSecretHeader carries the payment gateway's shared secret
	WebhookSecretHeader = "X-Webhook-Secret"
)

// Actor resolves the acting user from X-Actor-ID and stores it in the gin
// context and the request context
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = DefaultActor
		}
		if len(actor) > MaxActorLength {
			actor = actor[:MaxActorLength]
		}
		c.Set(ActorKey, actor)
		c.Request = c.Request.WithContext(logger.WithActorID(c.Request.Context(), actor))
		c.Next()
	}
}

// GetActor returns the acting user resolved by Actor
func GetActor(c *gin.Context) string {
	if actor := c.GetString(ActorKey); actor != "" {
		return actor
	}
	return DefaultActor
}

// WebhookAuth rejects webhook deliveries that do not carry the shared secret.
// An empty secret disables the check.
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.GetGinLogger(c).Warn("Webhook delivery rejected", zap.String("reason", "bad secret"))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				string(shared.KindValidation), "WEBHOOK_UNAUTHORIZED", "webhook secret missing or invalid", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
