package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a close is submitted before Start or after Stop
	ErrSchedulerNotRunning = errors.New("period close scheduler is not running")

	// ErrJobQueueFull is returned when no queue slot is free
	ErrJobQueueFull = errors.New("period close queue is full")

	// ErrPeriodAlreadyQueued is returned when the period has a pending or running close
	ErrPeriodAlreadyQueued = errors.New("period close already queued")

	// ErrInvalidConfig is returned by SchedulerConfig.Validate
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
