package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Policy is the institution's billing configuration as the services use it
type Policy struct {
	Currency     valueobject.Currency
	Calendar     valueobject.Calendar
	Allocation   finance.AllocationPolicy
	DueDays      int
	LeaseTimeout time.Duration
	CloseWorkers int
}

// DefaultPolicy returns an INR policy on the default calendar
func DefaultPolicy() Policy {
	return Policy{
		Currency:     valueobject.INR,
		Calendar:     valueobject.DefaultCalendar(),
		Allocation:   finance.DefaultAllocationPolicy(),
		DueDays:      10,
		LeaseTimeout: 10 * time.Second,
		CloseWorkers: 8,
	}
}

// ParsePeriod parses a period key, reporting a bad key as a ValidationError
func (p Policy) ParsePeriod(key string) (valueobject.BillingPeriod, error) {
	period, err := p.Calendar.ParsePeriod(key)
	if err != nil {
		return valueobject.BillingPeriod{}, shared.NewValidationError("INVALID_PERIOD",
			fmt.Sprintf("invalid billing period %q", key))
	}
	return period, nil
}

// FeeCatalog is the slice of the fee structure catalog the ledger consumes.
// Only the resolve queries are used, never raw CRUD.
type FeeCatalog interface {
	StudentProfile(ctx context.Context, studentID uuid.UUID) (*catalog.StudentProfile, error)
	ApplicableItems(ctx context.Context, profile catalog.StudentProfile, period valueobject.BillingPeriod) ([]catalog.ApplicableItem, error)
	DiscountLookup(ctx context.Context, profile catalog.StudentProfile, period valueobject.BillingPeriod) (func(itemKey string) (*catalog.DiscountRule, error), error)
	FineRule(ctx context.Context, period valueobject.BillingPeriod) (*catalog.FineRule, error)
}

// ReportArchive stores finished reconciliation reports
type ReportArchive interface {
	// Archive stores the report and returns where it was put
	Archive(ctx context.Context, report *finance.ReconciliationReport) (string, error)
	// ReportURL returns a time-limited download link for an archived report
	ReportURL(ctx context.Context, location string) (string, time.Time, error)
}

// Metrics records measurements the event stream does not carry
type Metrics interface {
	RecordCloseDuration(ctx context.Context, period string, d time.Duration, err error)
	RecordLeaseFailure(ctx context.Context, scope string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCloseDuration(context.Context, string, time.Duration, error) {}
func (noopMetrics) RecordLeaseFailure(context.Context, string)                        {}

// leaser serializes work per key. Only acquisition is bounded by the
// timeout; the work itself runs on the caller's context.
type leaser struct {
	leases  shared.LeaseManager
	timeout time.Duration
	metrics Metrics
}

func (l leaser) with(ctx context.Context, scope, key string, fn func(ctx context.Context) error) (err error) {
	acquireCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	lease, err := l.leases.Acquire(acquireCtx, key)
	if err != nil {
		l.metrics.RecordLeaseFailure(ctx, scope)
		return err
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}

func (l leaser) student(ctx context.Context, scope string, studentID uuid.UUID, fn func(ctx context.Context) error) error {
	return l.with(ctx, scope, shared.StudentLeaseKey(studentID), fn)
}

// PeriodLeaseKey is the lease key that serializes closes of one period
// against each other and against invoicing into it
func PeriodLeaseKey(period string) string {
	return "feeledger:period:" + period
}

// collectEvents drains the pending events of the given aggregates
func collectEvents(aggs ...shared.AggregateRoot) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, a := range aggs {
		out = append(out, a.GetDomainEvents()...)
	}
	return out
}

func clearEvents(aggs ...shared.AggregateRoot) {
	for _, a := range aggs {
		a.ClearDomainEvents()
	}
}
