package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// SchedulerActor is recorded as the closer of periods closed automatically
const SchedulerActor = "scheduler"

// PeriodCloser closes a billing period
type PeriodCloser interface {
	ClosePeriod(ctx context.Context, period string, force bool, actor string) (*finance.ReconciliationReport, error)
}

// CloseExecutor runs period close jobs. A period that is already closed
// counts as done.
type CloseExecutor struct {
	closer PeriodCloser
	logger *zap.Logger
}

// NewCloseExecutor creates the executor
func NewCloseExecutor(closer PeriodCloser, logger *zap.Logger) *CloseExecutor {
	return &CloseExecutor{closer: closer, logger: logger}
}

// Execute closes the job's period
func (e *CloseExecutor) Execute(ctx context.Context, job *Job) error {
	report, err := e.closer.ClosePeriod(ctx, job.Period, false, SchedulerActor)
	if err != nil {
		if shared.IsKind(err, shared.KindPeriodAlreadyClosed) {
			e.logger.Info("Period already closed, nothing to do", zap.String("period", job.Period))
			return nil
		}
		return err
	}
	if !report.Complete() {
		return fmt.Errorf("period close left %d students unprocessed and %d invoices not yet due",
			len(report.Failures), report.InvoicesNotYetDue)
	}
	return nil
}

// CloseTriggerConfig holds configuration for the close trigger
type CloseTriggerConfig struct {
	// CloseAfterDays is the grace after a month ends before it is closed
	CloseAfterDays int

	// CheckInterval is how often to check whether a month is due
	CheckInterval time.Duration
}

// DefaultCloseTriggerConfig returns default trigger configuration
func DefaultCloseTriggerConfig() CloseTriggerConfig {
	return CloseTriggerConfig{
		CloseAfterDays: 5,
		CheckInterval:  time.Hour,
	}
}

// CloseTrigger submits the close of the previous month once its grace has elapsed
type CloseTrigger struct {
	config    CloseTriggerConfig
	scheduler *Scheduler
	logger    *zap.Logger
	now       func() time.Time

	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	isRunning     bool
	lastScheduled string
}

// NewCloseTrigger creates a new close trigger
func NewCloseTrigger(config CloseTriggerConfig, scheduler *Scheduler, logger *zap.Logger) *CloseTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCloseTriggerConfig().CheckInterval
	}
	if config.CloseAfterDays < 0 {
		config.CloseAfterDays = 0
	}
	return &CloseTrigger{
		config:    config,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// DuePeriod returns the latest month whose grace has elapsed at now
func DuePeriod(now time.Time, closeAfterDays int) string {
	shifted := now.UTC().AddDate(0, 0, -closeAfterDays)
	previous := valueobject.MonthContaining(shifted).Start().AddDate(0, -1, 0)
	return valueobject.MonthContaining(previous).Key()
}

// Start starts the trigger loop. The first check happens immediately.
func (c *CloseTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Close trigger started",
		zap.Int("close_after_days", c.config.CloseAfterDays),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger
func (c *CloseTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Close trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CloseTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	c.checkAndTrigger()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits the due period unless it was already submitted
func (c *CloseTrigger) checkAndTrigger() {
	period := DuePeriod(c.now(), c.config.CloseAfterDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastScheduled == period {
		return
	}

	err := c.scheduler.SchedulePeriodClose(period)
	if errors.Is(err, ErrPeriodAlreadyQueued) {
		c.lastScheduled = period
		return
	}
	if err != nil {
		c.logger.Error("Failed to schedule period close",
			zap.String("period", period),
			zap.Error(err),
		)
		return
	}
	c.lastScheduled = period
	c.logger.Info("Scheduled period close", zap.String("period", period))
}

// LastScheduled returns the last period submitted
func (c *CloseTrigger) LastScheduled() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastScheduled
}
