package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidJobType is returned for a job that is neither a sync nor an enrichment
	ErrInvalidJobType = errors.New("invalid job type")

	// ErrInvalidTimeRange is returned when a sync job window ends before it starts
	ErrInvalidTimeRange = errors.New("invalid sync time range")
)
