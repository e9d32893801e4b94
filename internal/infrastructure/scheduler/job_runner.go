package scheduler

import (
	"context"

	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/domain/returns"
)

// SyncRunner starts sync runs
type SyncRunner interface {
	SyncAccount(ctx context.Context, req returnsapp.SyncRequest) (*returns.SyncRun, error)
}

// EnrichRunner runs enrichment batches
type EnrichRunner interface {
	EnrichBatch(ctx context.Context, req returnsapp.EnrichRequest) (*returnsapp.EnrichResult, error)
}

// JobRunner executes scheduler jobs against the application services
type JobRunner struct {
	sync        SyncRunner
	enrich      EnrichRunner
	enrichLimit int
}

// NewJobRunner creates a JobRunner. A zero enrichLimit uses the service default.
func NewJobRunner(sync SyncRunner, enrich EnrichRunner, enrichLimit int) *JobRunner {
	return &JobRunner{sync: sync, enrich: enrich, enrichLimit: enrichLimit}
}

// Execute implements JobExecutor
func (r *JobRunner) Execute(ctx context.Context, job *SyncJob) (JobResult, error) {
	switch job.Type {
	case JobTypeSync:
		from, to := job.From, job.To
		run, err := r.sync.SyncAccount(ctx, returnsapp.SyncRequest{
			AccountID: job.AccountID,
			DateFrom:  &from,
			DateTo:    &to,
			Mode:      returns.SyncModeBoth,
			Trigger:   returns.TriggerScheduler,
		})
		if err != nil {
			return JobResult{}, err
		}
		id := run.ID
		return JobResult{
			RunID:     &id,
			Processed: run.TotalProcessed,
			Partial:   run.Status == returns.RunStatusPartial,
		}, nil

	case JobTypeEnrich:
		result, err := r.enrich.EnrichBatch(ctx, returnsapp.EnrichRequest{
			AccountID: job.AccountID,
			Limit:     r.enrichLimit,
		})
		if err != nil {
			return JobResult{}, err
		}
		return JobResult{Processed: result.Processed, Failed: result.Failed}, nil

	default:
		return JobResult{}, ErrInvalidJobType
	}
}
