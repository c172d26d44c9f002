package finance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu            sync.Mutex
	closes        []string
	closeErrors   int
	leaseFailures []string
}

func (m *recordingMetrics) RecordCloseDuration(_ context.Context, period string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, period)
	if err != nil {
		m.closeErrors++
	}
}

func (m *recordingMetrics) RecordLeaseFailure(_ context.Context, scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaseFailures = append(m.leaseFailures, scope)
}

func TestReconciliationService_ClosePeriod(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.feeItem(t, "TUITION", 100000)
	fx.flatFine(t, 10000)
	unpaid := fx.student(t)
	settled := fx.student(t)
	unpaidInv := fx.generate(t, unpaid, "2026-03")
	settledInv := fx.generate(t, settled, "2026-03")
	fx.cash(t, settled, 100000)

	fx.clock.Set(day(2026, 4, 1))
	report, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.Equal(t, "2026-04", report.NextPeriod)
	assert.Equal(t, 2, report.StudentsProcessed)
	assert.Equal(t, 2, report.InvoicesReconciled)
	assert.Equal(t, 1, report.InvoicesOverdue)
	assert.Equal(t, int64(10000), report.FinesTotal.Minor())
	assert.Equal(t, int64(110000), report.CarriedDebt.Minor())
	require.NotNil(t, report.FineRuleID)
	assert.NotEmpty(t, report.ReportLocation)

	overdue, err := fx.invoices.GetInvoice(ctx, unpaidInv.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusOverdue, overdue.Status)
	assert.True(t, overdue.IsReconciled())

	paid, err := fx.invoices.GetInvoice(ctx, settledInv.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusPaid, paid.Status)
	assert.True(t, paid.IsReconciled())

	entries, err := fx.ledger.ListCarryForwards(ctx, unpaid)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, finance.CarryForwardSourcePeriodClose, entries[0].Entry.Source)
	assert.Equal(t, "2026-04", entries[0].Entry.ToPeriod)
	assert.Equal(t, int64(110000), entries[0].Entry.Amount.Minor())
	assert.True(t, entries[0].Pending)

	pc, err := fx.reconciliation.GetPeriodClose(ctx, "2026-03")
	require.NoError(t, err)
	assert.True(t, pc.IsClosed())
	assert.Equal(t, report.ReportLocation, pc.ReportLocation)
	assert.Contains(t, fx.outboxTypes(t), finance.EventTypePeriodClosed)

	t.Run("debt is billed in the next period", func(t *testing.T) {
		april := fx.generate(t, unpaid, "2026-04")
		assert.Equal(t, int64(210000), april.Outstanding().Minor())

		balance, err := fx.ledger.GetBalance(ctx, unpaid)
		require.NoError(t, err)
		assert.Equal(t, int64(210000), balance.Outstanding.Minor())
	})

	t.Run("second close is rejected", func(t *testing.T) {
		_, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindPeriodAlreadyClosed))
	})

	t.Run("forced close skips reconciled invoices", func(t *testing.T) {
		forced, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", true, "admin")
		require.NoError(t, err)
		assert.True(t, forced.Forced)
		assert.Equal(t, 0, forced.InvoicesReconciled)
		assert.Equal(t, 2, forced.InvoicesSkipped)
		assert.True(t, forced.FinesTotal.IsZero())

		entries, err := fx.ledger.ListCarryForwards(ctx, unpaid)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("reopen", func(t *testing.T) {
		reopened, err := fx.reconciliation.ReopenPeriod(ctx, "2026-03", "admin")
		require.NoError(t, err)
		assert.False(t, reopened.IsClosed())
		assert.Equal(t, finance.PeriodCloseStatusReopened, reopened.Status)

		_, err = fx.reconciliation.ReopenPeriod(ctx, "2026-03", "admin")
		assert.Error(t, err)

		closes, total, err := fx.reconciliation.ListPeriodCloses(ctx, shared.Filter{})
		require.NoError(t, err)
		assert.NotZero(t, total)
		assert.NotEmpty(t, closes)
	})

	t.Run("report url", func(t *testing.T) {
		_, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
		require.NoError(t, err)

		archived, err := fx.reconciliation.ReportURL(ctx, "2026-03")
		require.NoError(t, err)
		assert.Equal(t, "2026-03", archived.Period)
		assert.Contains(t, archived.URL, archived.Location)
		assert.False(t, archived.ExpiresAt.IsZero())
	})
}

func TestReconciliationService_NotYetDue(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.feeItem(t, "TUITION", 100000)
	studentID := fx.student(t)
	inv := fx.generate(t, studentID, "2026-03")

	fx.clock.Set(day(2026, 3, 5))
	report, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, report.InvoicesNotYetDue)
	assert.Equal(t, 0, report.InvoicesReconciled)

	assert.False(t, report.Complete())

	stored, err := fx.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsReconciled())

	_, err = fx.reconciliation.GetPeriodClose(ctx, "2026-03")
	assert.True(t, shared.IsKind(err, shared.KindNotFound), "the period stays open")

	fx.clock.Set(day(2026, 4, 1))
	rerun, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)
	assert.True(t, rerun.Complete())
	assert.Equal(t, 1, rerun.InvoicesReconciled)

	pc, err := fx.reconciliation.GetPeriodClose(ctx, "2026-03")
	require.NoError(t, err)
	assert.True(t, pc.IsClosed())
}

func TestReconciliationService_IncompleteClose(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.feeItem(t, "TUITION", 100000)
	busy := fx.student(t)
	free := fx.student(t)
	fx.generate(t, busy, "2026-03")
	fx.generate(t, free, "2026-03")
	fx.clock.Set(day(2026, 4, 1))

	metrics := &recordingMetrics{}
	policy := DefaultPolicy()
	policy.LeaseTimeout = 50 * time.Millisecond
	svc := NewReconciliationService(fx.store, fx.catalog, fx.leases, policy,
		WithReconciliationClock(fx.clock.Now), WithReconciliationMetrics(metrics))

	held, err := fx.leases.Acquire(ctx, shared.StudentLeaseKey(busy))
	require.NoError(t, err)

	report, err := svc.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)
	assert.False(t, report.Complete())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, busy, report.Failures[0].StudentID)
	assert.Equal(t, 1, report.InvoicesReconciled)
	assert.Equal(t, []string{"close"}, metrics.leaseFailures)

	_, err = svc.GetPeriodClose(ctx, "2026-03")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))

	require.NoError(t, held.Release(ctx))
	rerun, err := svc.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)
	assert.True(t, rerun.Complete())
	assert.Equal(t, 1, rerun.InvoicesReconciled)
	assert.Equal(t, 1, rerun.InvoicesSkipped)
	assert.Len(t, metrics.closes, 2)
	assert.Zero(t, metrics.closeErrors)
}

func TestReconciliationService_ArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.feeItem(t, "TUITION", 100000)
	studentID := fx.student(t)
	fx.generate(t, studentID, "2026-03")
	fx.clock.Set(day(2026, 4, 1))
	fx.archive.err = errors.New("bucket unavailable")

	report, err := fx.reconciliation.ClosePeriod(ctx, "2026-03", false, "admin")
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Empty(t, report.ReportLocation)
	assert.Equal(t, 1, fx.logs.FilterMessage("Failed to archive reconciliation report").Len())

	_, err = fx.reconciliation.ReportURL(ctx, "2026-03")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestReconciliationService_Validation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.reconciliation.ClosePeriod(ctx, "2026-13", false, "admin")
	assert.Equal(t, "INVALID_PERIOD", errorCode(err))

	_, err = fx.reconciliation.ReopenPeriod(ctx, "2026-03", "admin")
	assert.Equal(t, "PERIOD_NOT_CLOSED", errorCode(err))
}
