package returns

import (
	"context"
	"time"

	"github.com/erp/claimsync/internal/domain/returns"
)

// Record outcomes reported to PipelineMetrics.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeEnriched  = "enriched"
	OutcomeFailed    = "failed"
	OutcomeUnchanged = "unchanged"
)

// PipelineMetrics receives counters from the sync and enrichment services.
type PipelineMetrics interface {
	RecordSyncRun(ctx context.Context, status returns.RunStatus, duration time.Duration)
	RecordSyncRecords(ctx context.Context, outcome string, n int)
	RecordEnrichRecord(ctx context.Context, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSyncRun(context.Context, returns.RunStatus, time.Duration) {}
func (noopMetrics) RecordSyncRecords(context.Context, string, int)                 {}
func (noopMetrics) RecordEnrichRecord(context.Context, string)                     {}
