package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/domain/returns"
)

type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) SyncAccount(ctx context.Context, req returnsapp.SyncRequest) (*returns.SyncRun, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.SyncRun), args.Error(1)
}

type MockEnrichRunner struct {
	mock.Mock
}

func (m *MockEnrichRunner) EnrichBatch(ctx context.Context, req returnsapp.EnrichRequest) (*returnsapp.EnrichResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returnsapp.EnrichResult), args.Error(1)
}

func TestJobRunner_Sync(t *testing.T) {
	ctx := context.Background()
	from := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	run := &returns.SyncRun{ID: uuid.New(), Status: returns.RunStatusPartial, TotalProcessed: 7}

	syncer := new(MockSyncRunner)
	syncer.On("SyncAccount", ctx, mock.MatchedBy(func(req returnsapp.SyncRequest) bool {
		return req.AccountID == "acc-1" &&
			req.Mode == returns.SyncModeBoth &&
			req.Trigger == returns.TriggerScheduler &&
			req.DateFrom.Equal(from) && req.DateTo.Equal(to)
	})).Return(run, nil)

	r := NewJobRunner(syncer, new(MockEnrichRunner), 0)
	result, err := r.Execute(ctx, NewSyncJob("acc-1", from, to, 0))

	require.NoError(t, err)
	assert.Equal(t, run.ID, *result.RunID)
	assert.Equal(t, 7, result.Processed)
	assert.True(t, result.Partial)
	syncer.AssertExpectations(t)
}

func TestJobRunner_SyncFailure(t *testing.T) {
	ctx := context.Background()
	cause := &returns.TransientUpstreamError{Op: "claims.search", StatusCode: 503}
	syncer := new(MockSyncRunner)
	syncer.On("SyncAccount", ctx, mock.Anything).Return(&returns.SyncRun{Status: returns.RunStatusFailed}, cause)

	r := NewJobRunner(syncer, new(MockEnrichRunner), 0)
	_, err := r.Execute(ctx, NewSyncJob("acc-1", time.Now().Add(-time.Hour), time.Now(), 0))

	assert.ErrorIs(t, err, cause)
}

func TestJobRunner_Enrich(t *testing.T) {
	ctx := context.Background()
	enricher := new(MockEnrichRunner)
	enricher.On("EnrichBatch", ctx, returnsapp.EnrichRequest{AccountID: "acc-1", Limit: 25}).
		Return(&returnsapp.EnrichResult{Processed: 5, Enriched: 3, Failed: 2}, nil)

	r := NewJobRunner(new(MockSyncRunner), enricher, 25)
	result, err := r.Execute(ctx, NewEnrichJob("acc-1", 0))

	require.NoError(t, err)
	assert.Equal(t, JobResult{Processed: 5, Failed: 2}, result)

	enricher.On("EnrichBatch", ctx, mock.Anything).Return(nil, returns.ErrRunInProgress)
	_, err = NewJobRunner(new(MockSyncRunner), enricher, 0).Execute(ctx, NewEnrichJob("acc-2", 0))
	assert.True(t, errors.Is(err, returns.ErrRunInProgress))
}

func TestJobRunner_UnknownType(t *testing.T) {
	r := NewJobRunner(new(MockSyncRunner), new(MockEnrichRunner), 0)
	_, err := r.Execute(context.Background(), &SyncJob{Type: "refresh"})
	assert.ErrorIs(t, err, ErrInvalidJobType)
}
