package event

import (
	"context"
	"sync/atomic"

	"github.com/feeledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyStats counts what an IdempotentHandler did with the events it saw
type IdempotencyStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// IdempotencyMetrics accumulates IdempotencyStats; it may be shared by several handlers
type IdempotencyMetrics struct {
	processed, duplicate, failed atomic.Int64
}

// Stats returns a snapshot
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed: m.processed.Load(),
		Duplicate: m.duplicate.Load(),
		Failed:    m.failed.Load(),
	}
}

// IdempotentHandler wraps an EventHandler so each event id is handled once,
// even when the outbox redelivers it after a crash.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides shared.DefaultIdempotencyConfig
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics records into metrics instead of a private counter set
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler wraps handler
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Metrics returns the counters this handler records into
func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return h.metrics
}

// Handle runs the wrapped handler unless the event id was already claimed.
// A failed run releases the claim so the outbox retry can handle it again.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	log := h.logger.With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)
	key := "event:" + event.EventID().String()

	claimed, err := h.store.Remember(ctx, key, event.EventType(), h.config.TTL)
	switch {
	case err != nil:
		log.Warn("failed to check idempotency, processing anyway", zap.Error(err))
	case !claimed:
		h.metrics.duplicate.Add(1)
		log.Debug("duplicate event detected, skipping")
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.metrics.failed.Add(1)
		log.Error("event handler failed", zap.Error(err))
		if claimed {
			if ferr := h.store.Forget(ctx, key); ferr != nil {
				log.Warn("failed to release idempotency key", zap.Error(ferr))
			}
		}
		return err
	}

	h.metrics.processed.Add(1)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
