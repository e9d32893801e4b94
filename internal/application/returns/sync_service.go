package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/domain/shared"
	"github.com/erp/claimsync/internal/infrastructure/logger"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// Sync defaults.
const (
	DefaultSyncWindow  = 30 * 24 * time.Hour
	DefaultSyncLockTTL = time.Hour
)

// Run error codes that are not domain error codes.
const (
	RunErrorCancelled = "cancelled"
	RunErrorInternal  = "internal_error"
)

// SyncConfig tunes the sync orchestrator.
type SyncConfig struct {
	Paging        PageOptions
	DefaultWindow time.Duration
	LockTTL       time.Duration
}

// DefaultSyncConfig returns the configuration used when none is given.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Paging:        DefaultPageOptions(),
		DefaultWindow: DefaultSyncWindow,
		LockTTL:       DefaultSyncLockTTL,
	}
}

// SyncService pulls claims and returns of one account into the store.
type SyncService struct {
	records     returns.ReturnClaimRepository
	runs        returns.SyncRunRepository
	credentials returns.CredentialProvider
	marketplace returns.Marketplace
	lock        returns.RunLock
	metrics     PipelineMetrics
	logger      *zap.Logger
	config      SyncConfig
	now         func() time.Time
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncConfig overrides the default configuration.
func WithSyncConfig(cfg SyncConfig) SyncOption {
	return func(s *SyncService) {
		s.config = cfg
	}
}

// WithSyncMetrics sets the metrics sink.
func WithSyncMetrics(m PipelineMetrics) SyncOption {
	return func(s *SyncService) {
		s.metrics = m
	}
}

// WithSyncClock sets the clock used for windows and run timestamps.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncService) {
		s.now = now
	}
}

// NewSyncService creates a new SyncService
func NewSyncService(
	records returns.ReturnClaimRepository,
	runs returns.SyncRunRepository,
	credentials returns.CredentialProvider,
	marketplace returns.Marketplace,
	lock returns.RunLock,
	logger *zap.Logger,
	opts ...SyncOption,
) *SyncService {
	s := &SyncService{
		records:     records,
		runs:        runs,
		credentials: credentials,
		marketplace: marketplace,
		lock:        lock,
		metrics:     noopMetrics{},
		logger:      logger,
		config:      DefaultSyncConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.config.DefaultWindow <= 0 {
		s.config.DefaultWindow = DefaultSyncWindow
	}
	if s.config.LockTTL <= 0 {
		s.config.LockTTL = DefaultSyncLockTTL
	}
	return s
}

// SyncAccount runs one sync of an account and returns the completed run.
//
// The run row is written even when the sync fails; in that case both the run and
// the error are returned.
func (s *SyncService) SyncAccount(ctx context.Context, req SyncRequest) (*returns.SyncRun, error) {
	from, to, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	if req.Trigger == "" {
		req.Trigger = returns.TriggerAPI
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "account",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, req.AccountID),
		telemetry.WithAttribute(telemetry.SpanAttrMode, string(req.Mode)),
	)
	defer span.End()

	release, err := s.lock.Acquire(ctx, returns.SyncLockKey(req.AccountID), s.config.LockTTL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release sync lock", zap.String("account_id", req.AccountID), zap.Error(err))
		}
	}()

	run := returns.NewSyncRun(req.AccountID, req.Mode, req.Trigger, from, to, s.now())
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	ctx, log := logger.WithAccountID(ctx, s.logger, req.AccountID)
	ctx, log = logger.WithRunID(ctx, log, run.ID.String())
	log = log.With(zap.String("mode", string(req.Mode)), zap.String("trigger", string(req.Trigger)))
	log.Info("Sync run started", zap.Time("date_from", from), zap.Time("date_to", to))

	tally, runErr := s.execute(ctx, run, log)
	tally.applyTo(run)
	if runErr != nil {
		run.Fail(s.now(), runErrorCode(runErr), runErr)
	} else {
		run.Complete(s.now())
	}

	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		log.Error("Failed to update sync run", zap.Error(err))
	}
	s.report(ctx, run, tally)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.TotalProcessed),
		zap.Int("created", run.TotalCreated),
		zap.Int("updated", run.TotalUpdated),
		zap.Int("duplicates", run.TotalDuplicates),
		zap.Int("skipped", run.TotalSkipped),
		zap.Bool("truncated", run.Truncated),
		zap.Int64("duration_ms", run.DurationMs),
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunID, run.ID.String(),
		telemetry.SpanAttrRunStatus, string(run.Status),
		telemetry.SpanAttrProcessed, run.TotalProcessed,
	)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		log.Error("Sync run failed", append(fields, zap.Error(runErr))...)
		return run, runErr
	}
	log.Info("Sync run finished", fields...)
	return run, nil
}

func (s *SyncService) validate(req SyncRequest) (time.Time, time.Time, error) {
	if req.AccountID == "" {
		return time.Time{}, time.Time{}, returns.NewValidationError("accountId", "is required")
	}
	if !req.Mode.IsValid() {
		return time.Time{}, time.Time{}, returns.NewValidationError("mode", "must be claims, returns or both")
	}
	if req.Trigger != "" && req.Trigger != returns.TriggerAPI && req.Trigger != returns.TriggerScheduler {
		return time.Time{}, time.Time{}, returns.NewValidationError("trigger", "must be api or scheduler")
	}

	to := s.now()
	if req.DateTo != nil {
		to = *req.DateTo
	}
	from := to.Add(-s.config.DefaultWindow)
	if req.DateFrom != nil {
		from = *req.DateFrom
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, returns.NewValidationError("dateFrom", "must not be after dateTo")
	}
	return from, to, nil
}

// execute runs the sync pass. When the marketplace rejects the access token the
// token is refreshed and the whole pass re-runs once. A credential that cannot
// issue a token at all fails the run without a refresh.
func (s *SyncService) execute(ctx context.Context, run *returns.SyncRun, log *zap.Logger) (syncTally, error) {
	token, err := s.credentials.GetAccessToken(ctx, run.AccountID)
	if err != nil {
		return syncTally{}, err
	}
	first, err := s.pass(ctx, token, run, log)
	if !returns.IsTokenRejected(err) {
		return first, err
	}

	log.Warn("Marketplace rejected access token, refreshing and retrying run", zap.Error(err))
	token, err = s.credentials.RefreshToken(ctx, run.AccountID)
	if err != nil {
		return first, err
	}
	second, err := s.pass(ctx, token, run, log)
	second.carryCreated(first)
	return second, err
}

// pass pages every kind the run's mode covers.
func (s *SyncService) pass(ctx context.Context, token returns.AccessToken, run *returns.SyncRun, log *zap.Logger) (syncTally, error) {
	var tally syncTally
	for _, kind := range run.Mode.Kinds() {
		var err error
		switch kind {
		case returns.KindClaim:
			err = syncSource(ctx, s, &tally, token, run, log, sourceSpec[returns.Claim]{
				op:      "claims_search",
				search:  s.marketplace.SearchClaims,
				orderID: func(c returns.Claim) string { return c.OrderID },
				itemID:  func(c returns.Claim) string { return c.ID },
				unify:   unifyClaim,
			})
		case returns.KindReturn:
			err = syncSource(ctx, s, &tally, token, run, log, sourceSpec[returns.Return]{
				op:      "returns_search",
				search:  s.marketplace.SearchReturns,
				orderID: func(r returns.Return) string { return r.OrderID },
				itemID:  func(r returns.Return) string { return r.ID },
				unify:   unifyReturn,
			})
		}
		if err != nil {
			return tally, err
		}
	}
	return tally, nil
}

// sourceSpec binds one search endpoint to its normaliser.
type sourceSpec[T any] struct {
	op      string
	search  func(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]T, error)
	orderID func(T) string
	itemID  func(T) string
	unify   func(accountID string, item T, order *returns.Order, now time.Time) *returns.ReturnClaimRecord
}

func syncSource[T any](
	ctx context.Context,
	s *SyncService,
	tally *syncTally,
	token returns.AccessToken,
	run *returns.SyncRun,
	log *zap.Logger,
	src sourceSpec[T],
) error {
	opts := s.config.Paging
	opts.Op = src.op
	opts.Logger = log

	page := func(ctx context.Context, offset, limit int) ([]T, error) {
		log.Debug("Fetching page", zap.String("op", src.op), zap.Int("offset", offset), zap.Int("limit", limit))
		return src.search(ctx, token, returns.SearchRequest{
			SellerID: token.SellerID,
			DateFrom: run.DateFrom,
			DateTo:   run.DateTo,
			Offset:   offset,
			Limit:    limit,
		})
	}

	res, err := FetchAllPages(ctx, page, opts)
	tally.truncated = tally.truncated || res.Truncated
	if err != nil {
		if res.Pages == 0 || returns.IsAuthError(err) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", src.op, err)
		}
		// Later pages failed: keep what was gathered and flag the run.
		log.Warn("Search stopped early, processing gathered items",
			zap.String("op", src.op),
			zap.Int("pages", res.Pages),
			zap.Error(err),
		)
		tally.truncated = true
	}

	for _, item := range res.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		tally.processed++

		order, err := s.marketplace.GetOrder(ctx, token, src.orderID(item))
		if err != nil {
			if returns.IsAuthError(err) {
				return err
			}
			log.Warn("Order detail failed, skipping item",
				zap.String("op", src.op),
				zap.String("item_id", src.itemID(item)),
				zap.String("order_id", src.orderID(item)),
				zap.Error(err),
			)
			tally.skipped++
			continue
		}

		record := src.unify(run.AccountID, item, order, s.now())
		outcome, err := s.records.Upsert(ctx, record)
		switch {
		case returns.IsConflict(err):
			log.Warn("Duplicate natural key during upsert", zap.String("item_id", src.itemID(item)), zap.Error(err))
			tally.duplicates++
		case err != nil:
			return fmt.Errorf("failed to upsert %s: %w", src.itemID(item), err)
		case outcome == returns.UpsertCreated:
			tally.created++
		default:
			tally.updated++
		}
	}
	return nil
}

func (s *SyncService) report(ctx context.Context, run *returns.SyncRun, tally syncTally) {
	s.metrics.RecordSyncRun(ctx, run.Status, time.Duration(run.DurationMs)*time.Millisecond)
	s.metrics.RecordSyncRecords(ctx, OutcomeCreated, tally.created)
	s.metrics.RecordSyncRecords(ctx, OutcomeUpdated, tally.updated)
	s.metrics.RecordSyncRecords(ctx, OutcomeDuplicate, tally.duplicates)
	s.metrics.RecordSyncRecords(ctx, OutcomeSkipped, tally.skipped)
}

// syncTally counts the outcomes of one pass.
type syncTally struct {
	processed  int
	created    int
	updated    int
	duplicates int
	skipped    int
	truncated  bool
}

// carryCreated keeps rows inserted by an abandoned pass counted as created. The
// rerun sees them again as updates.
func (t *syncTally) carryCreated(abandoned syncTally) {
	t.created += abandoned.created
	t.updated = max(0, t.updated-abandoned.created)
}

func (t syncTally) applyTo(run *returns.SyncRun) {
	run.TotalProcessed = t.processed
	run.TotalCreated = t.created
	run.TotalUpdated = t.updated
	run.TotalDuplicates = t.duplicates
	run.TotalSkipped = t.skipped
	run.Truncated = t.truncated
}

// runErrorCode is the code stored on a failed run.
func runErrorCode(err error) string {
	if returns.IsAuthError(err) {
		return returns.ReasonReconnectRequired
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return RunErrorCancelled
	}
	var coded shared.Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return RunErrorInternal
}

// Run history bounds.
const (
	DefaultRunHistoryLimit = 20
	MaxRunHistoryLimit     = 100
)

// GetRun returns one run by id.
func (s *SyncService) GetRun(ctx context.Context, id uuid.UUID) (*returns.SyncRun, error) {
	return s.runs.FindByID(ctx, id)
}

// ListRuns returns the latest runs of an account, newest first.
func (s *SyncService) ListRuns(ctx context.Context, accountID string, limit int) ([]returns.SyncRun, error) {
	if accountID == "" {
		return nil, returns.NewValidationError("accountId", "is required")
	}
	if limit <= 0 {
		limit = DefaultRunHistoryLimit
	}
	return s.runs.FindRecent(ctx, accountID, min(limit, MaxRunHistoryLimit))
}
