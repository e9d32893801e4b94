package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/erp/claimsync/internal/domain/returns"
)

// MeterName is the instrumentation scope of the pipeline instruments.
const MeterName = "github.com/erp/claimsync"

// PipelineMetrics records sync, enrichment and upstream instruments.
type PipelineMetrics struct {
	syncRuns         *Counter
	syncDuration     *Histogram
	syncRecords      *Counter
	enrichRecords    *Counter
	upstreamRequests *Counter
	upstreamDuration *Histogram
}

// NewPipelineMetrics creates the pipeline instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	if m.syncRuns, err = NewCounter(meter, "claimsync.sync.runs", "Finished sync runs", "{run}"); err != nil {
		return nil, err
	}
	if m.syncRecords, err = NewCounter(meter, "claimsync.sync.records", "Records written by sync runs", "{record}"); err != nil {
		return nil, err
	}
	if m.enrichRecords, err = NewCounter(meter, "claimsync.enrich.records", "Records processed by enrichment", "{record}"); err != nil {
		return nil, err
	}
	if m.upstreamRequests, err = NewCounter(meter, "claimsync.upstream.requests", "Marketplace API calls", "{request}"); err != nil {
		return nil, err
	}
	if m.syncDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "claimsync.sync.duration",
		Description: "Sync run duration",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.upstreamDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "claimsync.upstream.duration",
		Description: "Marketplace API call duration",
		Unit:        "s",
		Boundaries:  UpstreamDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordSyncRun counts a finished run and its duration.
func (m *PipelineMetrics) RecordSyncRun(ctx context.Context, status returns.RunStatus, duration time.Duration) {
	attr := AttrRunStatus.String(string(status))
	m.syncRuns.Inc(ctx, attr)
	m.syncDuration.RecordDuration(ctx, duration, attr)
}

// RecordSyncRecords counts n records with the given outcome.
func (m *PipelineMetrics) RecordSyncRecords(ctx context.Context, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.syncRecords.Add(ctx, int64(n), AttrOutcome.String(outcome))
}

// RecordEnrichRecord counts one enriched record.
func (m *PipelineMetrics) RecordEnrichRecord(ctx context.Context, outcome string) {
	m.enrichRecords.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordUpstreamRequest counts a marketplace call. statusCode 0 means the call
// never got a response.
func (m *PipelineMetrics) RecordUpstreamRequest(ctx context.Context, op string, statusCode int, elapsed time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	attrs := []attribute.KeyValue{AttrUpstreamOp.String(op), AttrStatusCode.String(status)}
	m.upstreamRequests.Inc(ctx, attrs...)
	m.upstreamDuration.RecordDuration(ctx, elapsed, attrs...)
}
