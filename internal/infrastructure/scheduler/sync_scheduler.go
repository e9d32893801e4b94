// Package scheduler runs periodic sync and enrichment passes for configured accounts.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// JobType selects what a job runs
type JobType string

const (
	JobTypeSync   JobType = "sync"
	JobTypeEnrich JobType = "enrich"
)

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusPartial JobStatus = "partial"
	JobStatusFailed  JobStatus = "failed"
)

// SyncJob is one scheduled pass for one account
type SyncJob struct {
	ID          uuid.UUID
	Type        JobType
	AccountID   string
	From        time.Time
	To          time.Time
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
	// Next is submitted once this job is done, unless the account needs reconnecting
	Next *SyncJob

	// Results
	RunID     *uuid.UUID
	Processed int
	Failed    int
}

// JobResult is what an executor reports for a finished job
type JobResult struct {
	RunID     *uuid.UUID
	Processed int
	Failed    int
	Partial   bool
}

// NewSyncJob creates a pending sync job over [from, to]
func NewSyncJob(accountID string, from, to time.Time, maxRetries int) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		Type:       JobTypeSync,
		AccountID:  accountID,
		From:       from,
		To:         to,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// NewEnrichJob creates a pending enrichment job
func NewEnrichJob(accountID string, maxRetries int) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		Type:       JobTypeEnrich,
		AccountID:  accountID,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *SyncJob) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the executor's result
func (j *SyncJob) Complete(result JobResult, now time.Time) {
	j.RunID = result.RunID
	j.Processed = result.Processed
	j.Failed = result.Failed
	j.CompletedAt = &now
	j.NextRetryAt = nil

	switch {
	case result.Partial:
		j.Status = JobStatusPartial
	case result.Failed > 0 && result.Processed == result.Failed:
		j.Status = JobStatusFailed
	case result.Failed > 0:
		j.Status = JobStatusPartial
	default:
		j.Status = JobStatusSuccess
	}
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err error, now time.Time) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
}

// ShouldRetry reports whether a failed job has attempts left. Account credential
// and validation failures do not heal by themselves and are never retried.
func (j *SyncJob) ShouldRetry(err error) bool {
	if j.Status != JobStatusFailed || j.RetryCount >= j.MaxRetries {
		return false
	}
	var authErr *returns.AuthError
	var validationErr *returns.ValidationError
	return !errors.As(err, &authErr) && !errors.As(err, &validationErr)
}

// ScheduleRetry schedules the job for retry with exponential backoff and returns the delay
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration, now time.Time) time.Duration {
	j.RetryCount++
	j.Status = JobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	next := now.Add(delay)
	j.NextRetryAt = &next
	j.CompletedAt = nil
	return delay
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

const (
	maxRetryDelay     = 30 * time.Minute
	defaultQueueSize  = 100
	defaultMaxHistory = 100
)

// JobExecutor executes sync jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *SyncJob) (JobResult, error)
}

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// Workers is the number of jobs run concurrently
	Workers int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// QueueSize bounds the pending job queue
	QueueSize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Workers:       2,
		JobTimeout:    15 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    time.Minute,
		QueueSize:     defaultQueueSize,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Workers <= 0 || c.JobTimeout <= 0 || c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SyncScheduler runs sync jobs on a fixed worker pool
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	now      func() time.Time

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	// pending counts queued or running jobs per account, retries included
	pending map[string]int

	historyMu  sync.RWMutex
	history    []*SyncJob
	maxHistory int
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor JobExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncScheduler{
		config:     config,
		executor:   executor,
		logger:     logger,
		now:        time.Now,
		pending:    make(map[string]int),
		history:    make([]*SyncJob, 0, defaultMaxHistory),
		maxHistory: defaultMaxHistory,
	}, nil
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *SyncJob, s.config.QueueSize)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, s.jobs, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop stops accepting jobs and drains the queue. Jobs still running when ctx
// expires are cancelled.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job for execution
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	if job.Type != JobTypeSync && job.Type != JobTypeEnrich {
		return ErrInvalidJobType
	}
	if job.Type == JobTypeSync && job.To.Before(job.From) {
		return ErrInvalidTimeRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.pending[job.AccountID]++
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.String("account_id", job.AccountID),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// HasPending reports whether a job of the account is queued, running or waiting for a retry
func (s *SyncScheduler) HasPending(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[accountID] > 0
}

func (s *SyncScheduler) worker(ctx context.Context, jobs <-chan *SyncJob, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))
	for job := range jobs {
		if ctx.Err() != nil {
			s.release(job)
			continue
		}
		labels := telemetry.OperationLabels("scheduler."+string(job.Type), map[string]string{
			telemetry.ProfilingLabelAccountID: job.AccountID,
		})
		telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
			s.processJob(ctx, job, workerID)
		})
	}
	s.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
}

func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	job.Start(s.now())
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("account_id", job.AccountID),
	)
	log.Info("Processing sync job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	result, err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err, s.now())
		log.Error("Sync job failed", zap.Error(err))

		if job.ShouldRetry(err) && ctx.Err() == nil {
			delay := job.ScheduleRetry(s.config.RetryDelay, s.now())
			log.Info("Sync job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Duration("delay", delay),
			)
			time.AfterFunc(delay, func() { s.requeue(job) })
			return
		}
		s.addToHistory(job)
		s.finish(job, err)
		return
	}

	job.Complete(result, s.now())
	log.Info("Sync job completed",
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.Processed),
		zap.Int("failed", job.Failed),
	)
	s.addToHistory(job)
	s.finish(job, nil)
}

// finish submits the follow-up job, if any, before releasing the account.
func (s *SyncScheduler) finish(job *SyncJob, err error) {
	var authErr *returns.AuthError
	if job.Next != nil && !errors.As(err, &authErr) {
		if submitErr := s.SubmitJob(job.Next); submitErr != nil {
			s.logger.Warn("Failed to submit follow-up job",
				zap.String("job_id", job.Next.ID.String()),
				zap.String("account_id", job.AccountID),
				zap.Error(submitErr),
			)
		}
	}
	s.release(job)
}

// requeue puts a job waiting for a retry back on the queue; a stopped scheduler drops it.
func (s *SyncScheduler) requeue(job *SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		select {
		case s.jobs <- job:
			return
		default:
		}
	}
	s.logger.Warn("Dropping sync job retry",
		zap.String("job_id", job.ID.String()),
		zap.String("account_id", job.AccountID),
		zap.Bool("running", s.isRunning),
	)
	job.Status = JobStatusFailed
	s.decrementPending(job.AccountID)
	s.addToHistory(job)
}

func (s *SyncScheduler) release(job *SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrementPending(job.AccountID)
}

// decrementPending must be called with mu held.
func (s *SyncScheduler) decrementPending(accountID string) {
	if s.pending[accountID] <= 1 {
		delete(s.pending, accountID)
		return
	}
	s.pending[accountID]--
}

// addToHistory adds a finished job to history, newest first
func (s *SyncScheduler) addToHistory(job *SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*SyncJob{job}, s.history...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// GetJobHistory returns recent job history
func (s *SyncScheduler) GetJobHistory(limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByAccount returns job history for one account
func (s *SyncScheduler) GetJobHistoryByAccount(accountID string, limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*SyncJob, 0, limit)
	for _, job := range s.history {
		if job.AccountID != accountID {
			continue
		}
		result = append(result, job)
		if len(result) >= limit {
			break
		}
	}
	return result
}
