package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers the outcome recorded under an idempotency key,
// such as the payment created for a gateway reference. It is a fast path in
// front of the ledger's own uniqueness guarantees, never a replacement.
type IdempotencyStore interface {
	// Remember stores value under key for ttl.
	// Returns false, leaving the existing value in place, if the key is already held.
	Remember(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Lookup returns the value remembered under key
	Lookup(ctx context.Context, key string) (string, bool, error)

	// Forget drops a key, e.g. when the operation it guarded failed
	Forget(ctx context.Context, key string) error

	// Close releases the store's resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a key is remembered
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}

// WebhookReferenceKey is the idempotency key for an online payment reference
func WebhookReferenceKey(reference string) string {
	return "webhook:payment:" + reference
}
