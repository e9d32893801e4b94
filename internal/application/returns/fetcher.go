package returns

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/domain/returns"
)

// Paging defaults.
const (
	DefaultPageSize       = 50
	DefaultMaxPages       = 100
	DefaultPageDelay      = 200 * time.Millisecond
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// RetryPolicy bounds the retries of one page request. MaxAttempts counts retries
// after the first try.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

// PageOptions configures FetchAllPages.
type PageOptions struct {
	PageSize int
	MaxPages int
	Delay    time.Duration
	Retry    RetryPolicy
	// Op names the endpoint in logs.
	Op     string
	Logger *zap.Logger
}

// DefaultPageOptions returns the options used when none are configured.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		PageSize: DefaultPageSize,
		MaxPages: DefaultMaxPages,
		Delay:    DefaultPageDelay,
		Retry: RetryPolicy{
			MaxAttempts: DefaultRetryAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
		},
	}
}

func (o PageOptions) withDefaults() PageOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Retry.MaxAttempts < 0 {
		o.Retry.MaxAttempts = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// PageFunc fetches the page starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// PageResult is what FetchAllPages gathered.
type PageResult[T any] struct {
	Items []T
	// Pages is the number of page requests that succeeded.
	Pages int
	// Truncated is set when MaxPages stopped the fetch before a short page was seen.
	Truncated bool
}

// FetchAllPages drains an offset/limit endpoint page by page.
//
// Pages are requested strictly in sequence; the fetch ends on the first page shorter
// than PageSize. On error the items gathered so far are returned with it.
func FetchAllPages[T any](ctx context.Context, fetch PageFunc[T], opts PageOptions) (PageResult[T], error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("op", opts.Op))

	var result PageResult[T]
	for page := 0; page < opts.MaxPages; page++ {
		if page > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		offset := page * opts.PageSize
		items, err := fetchPage(ctx, fetch, offset, opts, log)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, items...)
		result.Pages++

		if len(items) < opts.PageSize {
			return result, nil
		}
	}

	result.Truncated = true
	log.Warn("Page cap reached, results may be truncated",
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("items", len(result.Items)),
	)
	return result, nil
}

// fetchPage requests one page, retrying transient upstream errors with linear backoff.
func fetchPage[T any](ctx context.Context, fetch PageFunc[T], offset int, opts PageOptions, log *zap.Logger) ([]T, error) {
	for attempt := 0; ; attempt++ {
		items, err := fetch(ctx, offset, opts.PageSize)
		if err == nil {
			return items, nil
		}
		if !returns.IsTransient(err) || attempt >= opts.Retry.MaxAttempts {
			return nil, err
		}

		delay := opts.Retry.backoff(attempt + 1)
		log.Warn("Page request failed, retrying",
			zap.Int("offset", offset),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
