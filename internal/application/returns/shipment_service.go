package returns

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// Shipment cache defaults.
const (
	DefaultShipmentTTL       = 15 * time.Minute
	DefaultShipmentPageSize  = 50
	DefaultShipmentMaxPages  = 10
	DefaultDetailConcurrency = 5
)

// ShipmentConfig tunes the shipments cache.
type ShipmentConfig struct {
	TTL               time.Duration
	Paging            PageOptions
	DetailConcurrency int
}

// DefaultShipmentConfig returns the configuration used when none is given.
func DefaultShipmentConfig() ShipmentConfig {
	paging := DefaultPageOptions()
	paging.PageSize = DefaultShipmentPageSize
	paging.MaxPages = DefaultShipmentMaxPages
	return ShipmentConfig{
		TTL:               DefaultShipmentTTL,
		Paging:            paging,
		DetailConcurrency: DefaultDetailConcurrency,
	}
}

// ShipmentService is a TTL-gated read-through cache over the marketplace shipments.
type ShipmentService struct {
	shipments   returns.ShipmentRepository
	credentials returns.CredentialProvider
	marketplace returns.Marketplace
	logger      *zap.Logger
	config      ShipmentConfig
	now         func() time.Time
}

// ShipmentOption configures a ShipmentService.
type ShipmentOption func(*ShipmentService)

// WithShipmentConfig overrides the default configuration.
func WithShipmentConfig(cfg ShipmentConfig) ShipmentOption {
	return func(s *ShipmentService) {
		s.config = cfg
	}
}

// WithShipmentClock sets the clock used for freshness checks and sync stamps.
func WithShipmentClock(now func() time.Time) ShipmentOption {
	return func(s *ShipmentService) {
		s.now = now
	}
}

// NewShipmentService creates a new ShipmentService
func NewShipmentService(
	shipments returns.ShipmentRepository,
	credentials returns.CredentialProvider,
	marketplace returns.Marketplace,
	logger *zap.Logger,
	opts ...ShipmentOption,
) *ShipmentService {
	s := &ShipmentService{
		shipments:   shipments,
		credentials: credentials,
		marketplace: marketplace,
		logger:      logger,
		config:      DefaultShipmentConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.config.TTL <= 0 {
		s.config.TTL = DefaultShipmentTTL
	}
	if s.config.DetailConcurrency <= 0 {
		s.config.DetailConcurrency = DefaultDetailConcurrency
	}
	return s
}

// GetShipments serves fresh cached shipments when there are any, and otherwise
// fetches them live, writes them back and applies the same filter to the live set.
func (s *ShipmentService) GetShipments(ctx context.Context, req CollectionRequest) (*CollectionResult, error) {
	accountIDs := ParseAccountIDs(req.AccountIDs...)
	if len(accountIDs) == 0 {
		return nil, returns.NewValidationError("accountIds", "is required")
	}
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "shipments", "get",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, accountIDs),
	)
	defer span.End()

	filter := returns.ShipmentFilter{
		AccountIDs: accountIDs,
		Window:     req.Window,
		Statuses:   nonEmpty(req.Statuses),
	}

	if !req.ForceRefresh {
		fresh := filter
		since := s.now().Add(-s.config.TTL)
		fresh.FreshSince = &since

		cached, err := s.shipments.FindAll(ctx, fresh)
		switch {
		case err != nil:
			s.logger.Warn("Shipment cache read failed, fetching live", zap.Error(err))
		case len(cached) > 0:
			telemetry.SetAttributes(span, telemetry.SpanAttrSource, SourceCache, telemetry.SpanAttrTotal, len(cached))
			return &CollectionResult{Data: toShipmentViews(cached), Total: len(cached), Source: SourceCache}, nil
		}
	}

	live, err := s.refresh(ctx, accountIDs, req.Window)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	matched := make([]returns.Shipment, 0, len(live))
	for _, item := range live {
		if filter.Matches(item) {
			matched = append(matched, item)
		}
	}
	// Same order as the store query.
	slices.SortStableFunc(matched, func(a, b returns.Shipment) int {
		if c := b.DateCreated.Compare(a.DateCreated); c != 0 {
			return c
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
	telemetry.SetAttributes(span, telemetry.SpanAttrSource, SourceAPI, telemetry.SpanAttrTotal, len(matched))
	return &CollectionResult{Data: toShipmentViews(matched), Total: len(matched), Source: SourceAPI}, nil
}

// refresh fetches every account live. Failing accounts are skipped; the error is
// returned only when no account succeeded.
func (s *ShipmentService) refresh(ctx context.Context, accountIDs []string, window returns.TimeWindow) ([]returns.Shipment, error) {
	var (
		all     []returns.Shipment
		lastErr error
		failed  int
	)
	for _, accountID := range accountIDs {
		items, err := s.refreshAccount(ctx, accountID, window)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("Skipping account in shipments refresh",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			failed++
			lastErr = err
			continue
		}
		all = append(all, items...)
	}
	if failed == len(accountIDs) {
		return nil, lastErr
	}
	return all, nil
}

func (s *ShipmentService) refreshAccount(ctx context.Context, accountID string, window returns.TimeWindow) ([]returns.Shipment, error) {
	token, err := s.credentials.GetAccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	opts := s.config.Paging
	opts.Op = "shipments_search"
	opts.Logger = s.logger.With(zap.String("account_id", accountID))
	res, err := FetchAllPages(ctx, func(ctx context.Context, offset, limit int) ([]returns.ShipmentSummary, error) {
		return s.marketplace.SearchShipments(ctx, token, returns.SearchRequest{
			SellerID: token.SellerID,
			DateFrom: window.From,
			DateTo:   window.To,
			Offset:   offset,
			Limit:    limit,
		})
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("shipments search: %w", err)
	}

	syncedAt := s.now()
	items := make([]returns.Shipment, len(res.Items))
	for i, summary := range res.Items {
		items[i] = fromSummary(accountID, summary, syncedAt)
	}

	s.attachDetails(ctx, token, items)

	if err := s.shipments.UpsertBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to store shipments: %w", err)
	}
	return items, nil
}

// attachDetails fetches shipment details with bounded concurrency. A failed detail
// leaves its item without one.
func (s *ShipmentService) attachDetails(ctx context.Context, token returns.AccessToken, items []returns.Shipment) {
	var g errgroup.Group
	g.SetLimit(s.config.DetailConcurrency)
	for i := range items {
		g.Go(func() error {
			item := &items[i]
			detail, err := s.marketplace.GetShipment(ctx, token, item.ExternalID)
			if err != nil {
				s.logger.Warn("Shipment detail failed",
					zap.String("account_id", item.AccountID),
					zap.String("shipment_id", item.ExternalID),
					zap.Error(err),
				)
				return nil
			}
			item.Detail = detail.Raw
			item.Carrier = returns.StringPtr(detail.Carrier)
			item.ReceiverCity = returns.StringPtr(detail.ReceiverCity)
			item.ReceiverState = returns.StringPtr(detail.ReceiverState)
			if detail.TrackingNumber != "" {
				item.TrackingNumber = returns.StringPtr(detail.TrackingNumber)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func fromSummary(accountID string, s returns.ShipmentSummary, syncedAt time.Time) returns.Shipment {
	return returns.Shipment{
		ExternalID:     s.ID,
		AccountID:      accountID,
		OrderID:        s.OrderID,
		Status:         s.Status,
		Substatus:      returns.StringPtr(s.Substatus),
		Mode:           returns.StringPtr(s.Mode),
		LogisticType:   returns.StringPtr(s.LogisticType),
		TrackingNumber: returns.StringPtr(s.TrackingNumber),
		DateCreated:    s.DateCreated,
		LastUpdated:    s.LastUpdated,
		LastSyncedAt:   syncedAt,
	}
}
