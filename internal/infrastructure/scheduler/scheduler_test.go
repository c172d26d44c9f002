package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 1,
		JobTimeout:        time.Second,
		RetryAttempts:     2,
		RetryDelay:        10 * time.Millisecond,
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob("2026-04", 1)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Fail("db down")
	assert.True(t, job.ShouldRetry())
	job.ScheduleRetry(time.Minute)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	require.NotNil(t, job.NextRetryAt)

	job.Fail("db down")
	assert.False(t, job.ShouldRetry())

	job.Complete()
	assert.Equal(t, JobStatusSuccess, job.Status)
}

func TestSchedulerConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	assert.NoError(t, DefaultSchedulerConfig().Validate())

	bad := testConfig()
	bad.MaxConcurrentJobs = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = testConfig()
	bad.JobTimeout = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	_, err := NewScheduler(bad, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type recordingExecutor struct {
	mu      sync.Mutex
	periods []string
	fail    int
}

func (e *recordingExecutor) Execute(_ context.Context, job *Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.periods = append(e.periods, job.Period)
	if e.fail > 0 {
		e.fail--
		return errors.New("transient")
	}
	return nil
}

func (e *recordingExecutor) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.periods...)
}

func startScheduler(t *testing.T, exec JobExecutor) *Scheduler {
	t.Helper()
	s, err := NewScheduler(testConfig(), exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestScheduler_SubmitJob_NotRunning(t *testing.T) {
	s, err := NewScheduler(testConfig(), &recordingExecutor{}, zap.NewNop())
	require.NoError(t, err)
	assert.ErrorIs(t, s.SchedulePeriodClose("2026-04"), ErrSchedulerNotRunning)
}

func TestScheduler_RunsAndRetries(t *testing.T) {
	exec := &recordingExecutor{fail: 1}
	s := startScheduler(t, exec)

	require.NoError(t, s.SchedulePeriodClose("2026-04"))

	assert.Eventually(t, func() bool { return len(exec.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"2026-04", "2026-04"}, exec.calls())
}

type blockingExecutor struct {
	started chan string
	release chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, job *Job) error {
	e.started <- job.Period
	select {
	case <-e.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestScheduler_PeriodQueuedOnce(t *testing.T) {
	exec := &blockingExecutor{started: make(chan string, 4), release: make(chan struct{})}
	s := startScheduler(t, exec)

	require.NoError(t, s.SchedulePeriodClose("2026-04"))
	assert.Equal(t, "2026-04", <-exec.started)

	assert.ErrorIs(t, s.SchedulePeriodClose("2026-04"), ErrPeriodAlreadyQueued)
	require.NoError(t, s.SchedulePeriodClose("2026-05"), "other periods still queue")

	close(exec.release)
	assert.Equal(t, "2026-05", <-exec.started)
	assert.Eventually(t, func() bool {
		return s.SchedulePeriodClose("2026-04") == nil
	}, time.Second, 5*time.Millisecond, "a finished period can be queued again")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := startScheduler(t, &recordingExecutor{})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.SchedulePeriodClose("2026-04"), ErrSchedulerNotRunning)
}

func TestDuePeriod(t *testing.T) {
	tests := []struct {
		now  time.Time
		days int
		want string
	}{
		{time.Date(2026, 5, 5, 23, 0, 0, 0, time.UTC), 5, "2026-03"},
		{time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC), 5, "2026-04"},
		{time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), 0, "2026-02"},
		{time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 3, "2025-12"},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format(time.RFC3339), func(t *testing.T) {
			assert.Equal(t, tt.want, DuePeriod(tt.now, tt.days))
		})
	}
}

func TestCloseTrigger_SchedulesEachPeriodOnce(t *testing.T) {
	exec := &recordingExecutor{}
	s := startScheduler(t, exec)
	trigger := NewCloseTrigger(CloseTriggerConfig{CloseAfterDays: 5}, s, zap.NewNop())

	clock := time.Date(2026, 5, 6, 1, 0, 0, 0, time.UTC)
	trigger.now = func() time.Time { return clock }

	trigger.checkAndTrigger()
	trigger.checkAndTrigger()
	assert.Equal(t, "2026-04", trigger.LastScheduled())

	clock = time.Date(2026, 6, 6, 1, 0, 0, 0, time.UTC)
	trigger.checkAndTrigger()

	assert.Eventually(t, func() bool { return len(exec.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"2026-04", "2026-05"}, exec.calls())
}

type fakeCloser struct {
	report *finance.ReconciliationReport
	err    error
	actor  string
}

func (f *fakeCloser) ClosePeriod(_ context.Context, period string, force bool, actor string) (*finance.ReconciliationReport, error) {
	f.actor = actor
	return f.report, f.err
}

func TestCloseExecutor(t *testing.T) {
	ctx := context.Background()
	job := NewJob("2026-04", 0)
	report := finance.NewReconciliationReport("2026-04", "2026-05", valueobject.INR, false, time.Now())

	closer := &fakeCloser{report: report}
	require.NoError(t, NewCloseExecutor(closer, zap.NewNop()).Execute(ctx, job))
	assert.Equal(t, SchedulerActor, closer.actor)

	closer = &fakeCloser{err: shared.NewPeriodAlreadyClosedError("2026-04")}
	assert.NoError(t, NewCloseExecutor(closer, zap.NewNop()).Execute(ctx, job))

	closer = &fakeCloser{err: shared.NewStorageError("close", errors.New("db down"))}
	assert.Error(t, NewCloseExecutor(closer, zap.NewNop()).Execute(ctx, job))

	partial := finance.NewReconciliationReport("2026-04", "2026-05", valueobject.INR, false, time.Now())
	partial.Fail(uuid.New(), errors.New("lease timeout"))
	closer = &fakeCloser{report: partial}
	assert.Error(t, NewCloseExecutor(closer, zap.NewNop()).Execute(ctx, job))

	early := finance.NewReconciliationReport("2026-04", "2026-05", valueobject.INR, false, time.Now())
	early.InvoicesNotYetDue = 2
	closer = &fakeCloser{report: early}
	err := NewCloseExecutor(closer, zap.NewNop()).Execute(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 invoices not yet due")
}
