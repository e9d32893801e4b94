package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/logger"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// Enrichment defaults.
const (
	DefaultEnrichLimit   = 50
	MaxEnrichLimit       = 200
	DefaultRecordDelay   = 300 * time.Millisecond
	DefaultEnrichLockTTL = 30 * time.Minute
)

// EnrichmentConfig tunes the enrichment worker.
type EnrichmentConfig struct {
	DefaultLimit int
	RecordDelay  time.Duration
	LockTTL      time.Duration
}

// DefaultEnrichmentConfig returns the configuration used when none is given.
func DefaultEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		DefaultLimit: DefaultEnrichLimit,
		RecordDelay:  DefaultRecordDelay,
		LockTTL:      DefaultEnrichLockTTL,
	}
}

// EnrichmentService fills buyer, item and review documents of stored records.
type EnrichmentService struct {
	records     returns.ReturnClaimRepository
	credentials returns.CredentialProvider
	marketplace returns.Marketplace
	lock        returns.RunLock
	metrics     PipelineMetrics
	logger      *zap.Logger
	config      EnrichmentConfig
	now         func() time.Time
}

// EnrichmentOption configures an EnrichmentService.
type EnrichmentOption func(*EnrichmentService)

// WithEnrichmentConfig overrides the default configuration.
func WithEnrichmentConfig(cfg EnrichmentConfig) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.config = cfg
	}
}

// WithEnrichmentMetrics sets the metrics sink.
func WithEnrichmentMetrics(m PipelineMetrics) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.metrics = m
	}
}

// WithEnrichmentClock sets the clock stamped into enriched_at.
func WithEnrichmentClock(now func() time.Time) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.now = now
	}
}

// NewEnrichmentService creates a new EnrichmentService
func NewEnrichmentService(
	records returns.ReturnClaimRepository,
	credentials returns.CredentialProvider,
	marketplace returns.Marketplace,
	lock returns.RunLock,
	logger *zap.Logger,
	opts ...EnrichmentOption,
) *EnrichmentService {
	s := &EnrichmentService{
		records:     records,
		credentials: credentials,
		marketplace: marketplace,
		lock:        lock,
		metrics:     noopMetrics{},
		logger:      logger,
		config:      DefaultEnrichmentConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.config.DefaultLimit <= 0 {
		s.config.DefaultLimit = DefaultEnrichLimit
	}
	if s.config.LockTTL <= 0 {
		s.config.LockTTL = DefaultEnrichLockTTL
	}
	return s
}

// ClampLimit applies the default and the [1, MaxEnrichLimit] bounds.
func (s *EnrichmentService) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	return max(1, min(limit, MaxEnrichLimit))
}

// EnrichBatch enriches up to req.Limit records of an account that have no buyer info,
// newest first. Records are processed one at a time; a record's failures are reported
// in the result and never stop the batch.
func (s *EnrichmentService) EnrichBatch(ctx context.Context, req EnrichRequest) (*EnrichResult, error) {
	if req.AccountID == "" {
		return nil, returns.NewValidationError("accountId", "is required")
	}
	limit := s.ClampLimit(req.Limit)

	ctx, span := telemetry.StartServiceSpan(ctx, "enrich", "batch",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, req.AccountID),
		telemetry.WithAttribute(telemetry.SpanAttrLimit, limit),
	)
	defer span.End()

	release, err := s.lock.Acquire(ctx, returns.EnrichLockKey(req.AccountID), s.config.LockTTL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release enrichment lock", zap.String("account_id", req.AccountID), zap.Error(err))
		}
	}()

	ctx, log := logger.WithAccountID(ctx, s.logger, req.AccountID)

	token, err := s.credentials.GetAccessToken(ctx, req.AccountID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	records, err := s.records.FindPendingEnrichment(ctx, req.AccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load records pending enrichment: %w", err)
	}

	start := s.now()
	result := &EnrichResult{Errors: []RecordError{}}
	for i := range records {
		if i > 0 {
			if err := sleep(ctx, s.config.RecordDelay); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec := &records[i]
		enriched, recErr := s.enrichRecord(ctx, token, rec, log)
		result.Processed++
		if enriched {
			result.Enriched++
		}
		switch {
		case recErr != nil:
			result.Failed++
			result.Errors = append(result.Errors, RecordError{ID: rec.ID, Error: recErr.Error()})
			s.metrics.RecordEnrichRecord(ctx, OutcomeFailed)
		case enriched:
			s.metrics.RecordEnrichRecord(ctx, OutcomeEnriched)
		default:
			s.metrics.RecordEnrichRecord(ctx, OutcomeUnchanged)
		}
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProcessed, result.Processed,
		telemetry.SpanAttrEnriched, result.Enriched,
		telemetry.SpanAttrFailed, result.Failed,
	)
	log.Info("Enrichment batch finished",
		zap.Int("limit", limit),
		zap.Int("processed", result.Processed),
		zap.Int("enriched", result.Enriched),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return result, nil
}

// enrichRecord runs the record's sub-fetches concurrently and writes what succeeded.
// It reports whether anything was written and the combined sub-fetch failures.
func (s *EnrichmentService) enrichRecord(ctx context.Context, token returns.AccessToken, rec *returns.ReturnClaimRecord, log *zap.Logger) (bool, error) {
	var (
		patch                        returns.EnrichmentPatch
		buyerErr, itemErr, reviewErr error
		g                            errgroup.Group
	)

	g.Go(func() error {
		patch.BuyerInfo, buyerErr = s.fetchBuyer(ctx, token, rec.ResolveBuyerID())
		return nil
	})
	if itemID := rec.ResolveItemID(); itemID != "" {
		g.Go(func() error {
			patch.ItemInfo, itemErr = s.fetchItem(ctx, token, itemID)
			return nil
		})
	}
	if rec.WantsReview() {
		g.Go(func() error {
			patch.Review, reviewErr = s.fetchReview(ctx, token, *rec.ReturnID)
			return nil
		})
	}
	_ = g.Wait()

	var failures []string
	for _, err := range []error{buyerErr, itemErr, reviewErr} {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	enriched := false
	if !patch.IsEmpty() {
		patch.EnrichedAt = s.now()
		if err := s.records.ApplyEnrichment(ctx, rec.ID, patch); err != nil {
			failures = append(failures, fmt.Sprintf("store: %v", err))
		} else {
			enriched = true
		}
	}

	if len(failures) == 0 {
		return enriched, nil
	}
	log.Warn("Record enrichment incomplete",
		zap.String("record_id", rec.ID.String()),
		zap.Bool("enriched", enriched),
		zap.Strings("errors", failures),
	)
	return enriched, fmt.Errorf("%s", strings.Join(failures, "; "))
}

// fetchBuyer returns an Unavailable marker when the buyer cannot be served, so the
// record leaves the enrichment queue.
func (s *EnrichmentService) fetchBuyer(ctx context.Context, token returns.AccessToken, buyerID string) (*returns.BuyerInfo, error) {
	if buyerID == "" {
		return &returns.BuyerInfo{Unavailable: true}, nil
	}
	buyer, err := s.marketplace.GetBuyer(ctx, token, buyerID)
	if returns.IsNotFound(err) {
		return &returns.BuyerInfo{ID: buyerID, Unavailable: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buyer %s: %w", buyerID, err)
	}
	return &returns.BuyerInfo{
		ID:         firstNonEmpty(buyer.ID, buyerID),
		Nickname:   returns.StringPtr(buyer.Nickname),
		FirstName:  returns.StringPtr(buyer.FirstName),
		LastName:   returns.StringPtr(buyer.LastName),
		Email:      returns.StringPtr(buyer.Email),
		Phone:      returns.StringPtr(buyer.Phone),
		Reputation: returns.StringPtr(buyer.Reputation),
	}, nil
}

func (s *EnrichmentService) fetchItem(ctx context.Context, token returns.AccessToken, itemID string) (*returns.ItemInfo, error) {
	item, err := s.marketplace.GetItem(ctx, token, itemID)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, err)
	}
	info := &returns.ItemInfo{
		Title:      returns.StringPtr(item.Title),
		Permalink:  returns.StringPtr(item.Permalink),
		Thumbnail:  returns.StringPtr(item.Thumbnail),
		CategoryID: returns.StringPtr(item.CategoryID),
		Condition:  returns.StringPtr(item.Condition),
		Currency:   item.Currency,
	}
	if !item.Price.IsZero() {
		info.Price = returns.Ptr(item.Price)
	}
	return info, nil
}

// fetchReview treats a 404 as "no review yet": nil review, nil error.
func (s *EnrichmentService) fetchReview(ctx context.Context, token returns.AccessToken, returnID string) (*returns.Review, error) {
	review, err := s.marketplace.GetReturnReview(ctx, token, returnID)
	if returns.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("review %s: %w", returnID, err)
	}
	return &returns.Review{
		Method:             returns.StringPtr(review.Method),
		Stage:              returns.StringPtr(review.Stage),
		Status:             returns.StringPtr(review.Status),
		ProductCondition:   returns.StringPtr(review.ProductCondition),
		ProductDestination: returns.StringPtr(review.ProductDestination),
		SellerStatus:       returns.StringPtr(review.SellerStatus),
		Benefited:          returns.StringPtr(review.Benefited),
		ReasonID:           returns.StringPtr(review.ReasonID),
		MissingQuantity:    review.MissingQuantity,
	}, nil
}
