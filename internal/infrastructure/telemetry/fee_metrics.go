package telemetry

import (
	"context"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FeeMetrics records ledger activity. It subscribes to the event bus so the
// services never call it directly; Close durations and lease contention are
// recorded by the services that measure them.
type FeeMetrics struct {
	invoicesGenerated *Counter
	invoicesVoided    *Counter
	billedMinor       *Counter
	paymentsCollected *Counter
	collectedMinor    *Counter
	creditMinor       *Counter
	paymentsReversed  *Counter
	periodsClosed     *Counter
	finesMinor        *Counter
	closeDuration     *Histogram
	leaseWaits        *Counter
}

// NewFeeMetrics creates the ledger instruments on meter
func NewFeeMetrics(meter metric.Meter) (*FeeMetrics, error) {
	var (
		m   FeeMetrics
		err error
	)
	counters := []struct {
		dst  **Counter
		name string
		desc string
		unit string
	}{
		{&m.invoicesGenerated, "feeledger.invoices.generated", "Invoices generated", "{invoice}"},
		{&m.invoicesVoided, "feeledger.invoices.voided", "Invoices voided", "{invoice}"},
		{&m.billedMinor, "feeledger.billed.amount", "Net amount billed, in minor units", "{minor}"},
		{&m.paymentsCollected, "feeledger.payments.collected", "Payments recorded", "{payment}"},
		{&m.collectedMinor, "feeledger.collected.amount", "Amount collected, in minor units", "{minor}"},
		{&m.creditMinor, "feeledger.credit_carry.amount", "Overpayment carried forward as credit, in minor units", "{minor}"},
		{&m.paymentsReversed, "feeledger.payments.reversed", "Payments reversed", "{payment}"},
		{&m.periodsClosed, "feeledger.periods.closed", "Billing periods closed", "{period}"},
		{&m.finesMinor, "feeledger.fines.amount", "Late fines applied, in minor units", "{minor}"},
		{&m.leaseWaits, "feeledger.lease.failures", "Student leases that could not be obtained", "{lease}"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}
	m.closeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "feeledger.period_close.duration",
		Description: "Wall time of a period close",
		Unit:        "s",
		Boundaries:  CloseDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// EventTypes implements shared.EventHandler
func (m *FeeMetrics) EventTypes() []string {
	return []string{
		finance.EventTypeInvoiceGenerated,
		finance.EventTypeInvoiceVoided,
		finance.EventTypePaymentCollected,
		finance.EventTypePaymentReversed,
		finance.EventTypePeriodClosed,
	}
}

// Handle implements shared.EventHandler
func (m *FeeMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *finance.InvoiceGeneratedEvent:
		period := AttrBillingPeriod.String(e.BillingPeriod)
		m.invoicesGenerated.Inc(ctx, period)
		m.billedMinor.Add(ctx, e.TotalNet.Minor(), period)
	case *finance.InvoiceVoidedEvent:
		m.invoicesVoided.Inc(ctx)
	case *finance.PaymentCollectedEvent:
		method := AttrPaymentMethod.String(e.Method.String())
		m.paymentsCollected.Inc(ctx, method)
		m.collectedMinor.Add(ctx, e.Amount.Minor(), method)
		if e.CreditCarry.IsPositive() {
			m.creditMinor.Add(ctx, e.CreditCarry.Minor(), method)
		}
	case *finance.PaymentReversedEvent:
		m.paymentsReversed.Inc(ctx)
	case *finance.PeriodClosedEvent:
		attrs := []attribute.KeyValue{AttrBillingPeriod.String(e.Period), attribute.Bool("forced", e.Forced)}
		m.periodsClosed.Inc(ctx, attrs...)
		if e.FinesTotal.IsPositive() {
			m.finesMinor.Add(ctx, e.FinesTotal.Minor(), attrs...)
		}
	}
	return nil
}

// RecordCloseDuration records how long a period close took
func (m *FeeMetrics) RecordCloseDuration(ctx context.Context, period string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(shared.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.closeDuration.RecordDuration(ctx, d, AttrBillingPeriod.String(period), AttrOutcome.String(outcome))
}

// RecordLeaseFailure counts a lease that was not granted
func (m *FeeMetrics) RecordLeaseFailure(ctx context.Context, scope string) {
	m.leaseWaits.Inc(ctx, attribute.String("scope", scope))
}

var _ shared.EventHandler = (*FeeMetrics)(nil)
