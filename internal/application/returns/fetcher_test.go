package returns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/domain/returns"
)

// fastOptions pages without real waits.
func fastOptions(pageSize, maxPages int) PageOptions {
	return PageOptions{
		PageSize: pageSize,
		MaxPages: maxPages,
		Retry:    RetryPolicy{MaxAttempts: 3},
	}
}

// pagedSource serves total items in pages and counts requests.
type pagedSource struct {
	total    int
	calls    int
	offsets  []int
	failures map[int][]error // offset -> errors returned before success
}

func (s *pagedSource) fetch(_ context.Context, offset, limit int) ([]int, error) {
	s.calls++
	s.offsets = append(s.offsets, offset)
	if errs := s.failures[offset]; len(errs) > 0 {
		s.failures[offset] = errs[1:]
		return nil, errs[0]
	}
	var items []int
	for i := offset; i < offset+limit && i < s.total; i++ {
		items = append(items, i)
	}
	return items, nil
}

func transient() error {
	return &returns.TransientUpstreamError{Op: "search", StatusCode: 503, Err: errors.New("unavailable")}
}

func TestFetchAllPages(t *testing.T) {
	ctx := context.Background()

	t.Run("stops on short page", func(t *testing.T) {
		src := &pagedSource{total: 62}

		res, err := FetchAllPages(ctx, src.fetch, fastOptions(50, 10))
		require.NoError(t, err)
		assert.Len(t, res.Items, 62)
		assert.Equal(t, 2, res.Pages)
		assert.False(t, res.Truncated)
		assert.Equal(t, []int{0, 50}, src.offsets)
	})

	t.Run("exact multiple needs one empty page", func(t *testing.T) {
		src := &pagedSource{total: 100}

		res, err := FetchAllPages(ctx, src.fetch, fastOptions(50, 10))
		require.NoError(t, err)
		assert.Len(t, res.Items, 100)
		assert.Equal(t, 3, src.calls)
		assert.False(t, res.Truncated)
	})

	t.Run("page cap marks truncation", func(t *testing.T) {
		src := &pagedSource{total: 1000}

		res, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 3))
		require.NoError(t, err)
		assert.Len(t, res.Items, 30)
		assert.True(t, res.Truncated)
		assert.Equal(t, 3, src.calls)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		src := &pagedSource{total: 5, failures: map[int][]error{0: {transient(), transient()}}}

		res, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 3))
		require.NoError(t, err)
		assert.Len(t, res.Items, 5)
		assert.Equal(t, 3, src.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		src := &pagedSource{total: 5, failures: map[int][]error{
			0: {transient(), transient(), transient(), transient()},
		}}

		_, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 3))
		require.Error(t, err)
		assert.True(t, returns.IsTransient(err))
		assert.Equal(t, 4, src.calls)
	})

	t.Run("auth error is not retried", func(t *testing.T) {
		src := &pagedSource{total: 5, failures: map[int][]error{
			0: {returns.NewReconnectRequired("acc-1", nil)},
		}}

		_, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 3))
		assert.True(t, returns.IsAuthError(err))
		assert.Equal(t, 1, src.calls)
	})

	t.Run("not found is not retried", func(t *testing.T) {
		src := &pagedSource{total: 5, failures: map[int][]error{
			0: {&returns.NotFoundError{Resource: "claims", ID: "search"}},
		}}

		_, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 3))
		assert.True(t, returns.IsNotFound(err))
		assert.Equal(t, 1, src.calls)
	})

	t.Run("later page failure keeps gathered items", func(t *testing.T) {
		src := &pagedSource{total: 30, failures: map[int][]error{
			10: {returns.NewReconnectRequired("acc-1", nil)},
		}}

		res, err := FetchAllPages(ctx, src.fetch, fastOptions(10, 5))
		require.Error(t, err)
		assert.Len(t, res.Items, 10)
		assert.Equal(t, 1, res.Pages)
	})

	t.Run("cancelled context stops before next page", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		fetch := func(ctx context.Context, offset, limit int) ([]int, error) {
			cancel()
			return make([]int, limit), nil
		}

		res, err := FetchAllPages(cctx, fetch, fastOptions(10, 5))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, res.Items, 10)
	})

	t.Run("cancellation interrupts the page delay", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		src := &pagedSource{total: 100}
		opts := fastOptions(10, 10)
		opts.Delay = time.Hour

		start := time.Now()
		res, err := FetchAllPages(cctx, src.fetch, opts)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, res.Items, 10)
		assert.Less(t, time.Since(start), time.Minute)
	})
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, p.backoff(1))
	assert.Equal(t, time.Second, p.backoff(2))
	assert.Equal(t, 1500*time.Millisecond, p.backoff(3))
}

func TestFetchAllPages_TerminationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("N full pages and a short one yield N*size+size-1 items in N+1 calls", prop.ForAll(
		func(pageSize, fullPages int) bool {
			src := &pagedSource{total: fullPages*pageSize + pageSize - 1}
			res, err := FetchAllPages(context.Background(), src.fetch, fastOptions(pageSize, fullPages+5))
			return err == nil &&
				len(res.Items) == fullPages*pageSize+pageSize-1 &&
				src.calls == fullPages+1 &&
				!res.Truncated
		},
		gen.IntRange(1, 60),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
