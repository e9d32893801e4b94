package returns

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// Query pagination bounds.
const (
	DefaultQueryLimit = 20
	MaxQueryLimit     = 100
)

// sortAliases maps API field names onto store columns.
var sortAliases = map[string]string{
	"createdAt": "created_at",
	"closedAt":  "closed_at",
	"orderId":   "order_id",
	"updatedAt": "updated_at",
}

// QueryService serves filtered, paginated projections of stored records.
type QueryService struct {
	records returns.ReturnClaimRepository
	logger  *zap.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(records returns.ReturnClaimRepository, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{records: records, logger: logger}
}

// Query returns one page of projected records and, when asked, best-effort stats.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	filter, err := buildRecordFilter(req)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "records", "query",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, filter.AccountIDs),
	)
	defer span.End()

	records, total, err := s.records.FindAll(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrTotal, total)

	views := make([]ReturnClaimView, len(records))
	for i := range records {
		views[i] = ProjectRecord(&records[i])
	}

	result := &QueryResult{
		Data: views,
		Pagination: PaginationInfo{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: totalPages(total, filter.Limit),
		},
	}

	if req.IncludeStats {
		stats, err := s.stats(ctx, filter)
		if err != nil {
			s.logger.Warn("Stats query failed, returning results without stats",
				zap.Strings("account_ids", filter.AccountIDs),
				zap.Error(err),
			)
		} else {
			result.Stats = stats
		}
	}
	return result, nil
}

func (s *QueryService) stats(ctx context.Context, filter returns.RecordFilter) (*QueryStats, error) {
	rows, err := s.records.FindStatsRows(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &QueryStats{ByStatus: make(map[string]int), TotalAmount: decimal.Zero}
	for _, row := range rows {
		stats.Total++
		stats.ByStatus[returns.DerivedStatus(row.ReviewStatus, row.TrackingInfo, row.Status)]++
		if amount := statsAmount(row); amount != nil {
			stats.TotalAmount = stats.TotalAmount.Add(*amount)
		}
	}
	return stats, nil
}

// statsAmount follows the same chain as the projected amount, minus the line price
// which the stats row does not carry.
func statsAmount(row returns.StatsRow) *decimal.Decimal {
	var financial *decimal.Decimal
	if row.FinancialInfo != nil {
		financial = row.FinancialInfo.Amount
	}
	return returns.Coalesce(financial, row.Amount)
}

// buildRecordFilter validates the request and applies defaults and bounds.
func buildRecordFilter(req QueryRequest) (returns.RecordFilter, error) {
	accountIDs := ParseAccountIDs(req.Filters.AccountIDs...)
	if len(accountIDs) == 0 {
		return returns.RecordFilter{}, returns.NewValidationError("accountId", "is required")
	}
	for _, k := range req.Filters.Kinds {
		if !k.IsValid() {
			return returns.RecordFilter{}, returns.NewValidationError("kinds", "must be claim or return")
		}
	}
	if from, to := req.Filters.DateFrom, req.Filters.DateTo; from != nil && to != nil && from.After(*to) {
		return returns.RecordFilter{}, returns.NewValidationError("dateFrom", "must not be after dateTo")
	}

	page := req.Pagination.Page
	if page < 1 {
		page = 1
	}
	limit := req.Pagination.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	limit = min(limit, MaxQueryLimit)

	sortBy := strings.TrimSpace(req.Pagination.SortBy)
	if alias, ok := sortAliases[sortBy]; ok {
		sortBy = alias
	}

	return returns.RecordFilter{
		AccountIDs:     accountIDs,
		Search:         NormalizeSearch(req.Filters.Search),
		Statuses:       nonEmpty(req.Filters.Statuses),
		ReturnStatuses: nonEmpty(req.Filters.ReturnStatuses),
		Kinds:          req.Filters.Kinds,
		DateFrom:       req.Filters.DateFrom,
		DateTo:         req.Filters.DateTo,
		SortBy:         sortBy,
		SortOrder:      req.Pagination.SortOrder,
		Page:           page,
		Limit:          limit,
	}, nil
}

// NormalizeSearch trims the term and puts it in Unicode NFC so composed and
// decomposed input match the same stored text.
func NormalizeSearch(term string) string {
	return norm.NFC.String(strings.TrimSpace(term))
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func totalPages(total int64, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
