package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CronTriggerConfig holds configuration for the periodic trigger
type CronTriggerConfig struct {
	// Interval between passes
	Interval time.Duration
	// Accounts synced on every pass
	Accounts []string
	// Window is how far back each sync looks
	Window time.Duration
}

// DefaultCronTriggerConfig returns default configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		Interval: 15 * time.Minute,
		Window:   30 * 24 * time.Hour,
	}
}

// CronTrigger submits, on each tick, a sync job for every configured account. The
// enrichment job of the account follows once the sync is done.
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *SyncScheduler
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, scheduler *SyncScheduler, logger *zap.Logger) *CronTrigger {
	defaults := DefaultCronTriggerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the trigger loop. The first pass runs immediately.
func (c *CronTrigger) Start(ctx context.Context) error {
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

	c.logger.Info("Sync cron trigger started",
		zap.Duration("interval", c.config.Interval),
		zap.Int("accounts", len(c.config.Accounts)),
	)
	return nil
}

// Stop stops the trigger loop
func (c *CronTrigger) Stop(ctx context.Context) error {
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
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.ScheduleAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ScheduleAll()
		}
	}
}

// ScheduleAll submits the jobs of one pass and returns how many accounts were scheduled.
// Accounts whose previous jobs are still pending are skipped.
func (c *CronTrigger) ScheduleAll() int {
	now := c.now()
	scheduled := 0
	for _, accountID := range c.config.Accounts {
		if c.scheduler.HasPending(accountID) {
			c.logger.Debug("Skipping account with pending jobs", zap.String("account_id", accountID))
			continue
		}

		retries := c.scheduler.config.RetryAttempts
		syncJob := NewSyncJob(accountID, now.Add(-c.config.Window), now, retries)
		syncJob.Next = NewEnrichJob(accountID, retries)
		if err := c.scheduler.SubmitJob(syncJob); err != nil {
			c.logger.Error("Failed to schedule sync job", zap.String("account_id", accountID), zap.Error(err))
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.logger.Info("Scheduled sync pass", zap.Int("accounts", scheduled))
	}
	return scheduled
}
