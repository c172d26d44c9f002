package shared

import (
	"context"

	"github.com/google/uuid"
)

// Lease is an exclusive hold on a key. Release must be called exactly once.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseManager hands out exclusive per-key leases.
// Acquire blocks until the lease is granted, the context is done, or the
// backend gives up, in which case ErrLeaseNotObtained is returned.
type LeaseManager interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// StudentLeaseKey is the lease key that serializes ledger writes for one student
func StudentLeaseKey(studentID uuid.UUID) string {
	return "feeledger:student:" + studentID.String()
}

// WithLease runs fn while holding the lease for key
func WithLease(ctx context.Context, leases LeaseManager, key string, fn func(ctx context.Context) error) (err error) {
	lease, err := leases.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		// Release with a fresh context so a cancelled caller still frees the key
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}
