package returns

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/persistence"
)

// seedClaims stores n claims of an account created a minute apart, newest first.
func (f *pipelineFixture) seedClaims(t *testing.T, accountID string, n int) {
	t.Helper()
	for _, c := range makeClaims(accountID, n) {
		f.seedRecord(t, unifyClaim(accountID, c, testOrder(), testNow))
	}
}

func queryFor(accountIDs ...string) QueryRequest {
	return QueryRequest{Filters: QueryFilters{AccountIDs: AccountIDs(accountIDs)}}
}

// failingStats serves records but cannot aggregate them.
type failingStats struct {
	*persistence.GormReturnClaimRepository
}

func (failingStats) FindStatsRows(context.Context, returns.RecordFilter) ([]returns.StatsRow, error) {
	return nil, errors.New("stats timeout")
}

func TestQueryService_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("account id forms select the same records", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, "acc-a", 3)
		f.seedClaims(t, "acc-b", 2)
		f.seedClaims(t, "acc-c", 1)
		svc := NewQueryService(f.records, nil)

		forms := []AccountIDs{
			{"acc-a,acc-b"},
			{"acc-a", "acc-b"},
			{" acc-b , acc-a ", "acc-a"},
		}
		for _, ids := range forms {
			res, err := svc.Query(ctx, QueryRequest{Filters: QueryFilters{AccountIDs: ids}})
			require.NoError(t, err)
			assert.Equal(t, int64(5), res.Pagination.Total, "%v", ids)
			for _, v := range res.Data {
				assert.NotEqual(t, "acc-c", v.AccountID)
			}
		}
	})

	t.Run("paginates with bounded limit", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 25)
		svc := NewQueryService(f.records, nil)

		req := queryFor(testAccount)
		req.Pagination = QueryPagination{Page: 3, Limit: 10}
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Len(t, res.Data, 5)
		assert.Equal(t, PaginationInfo{Page: 3, Limit: 10, Total: 25, TotalPages: 3}, res.Pagination)
		assert.Nil(t, res.Stats)

		req.Pagination = QueryPagination{Limit: 1000}
		res, err = svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, MaxQueryLimit, res.Pagination.Limit)
		assert.Equal(t, 1, res.Pagination.Page)

		req.Pagination = QueryPagination{}
		res, err = svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, DefaultQueryLimit, res.Pagination.Limit)
		assert.Len(t, res.Data, DefaultQueryLimit)
	})

	t.Run("sorts by api field name", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 3)
		svc := NewQueryService(f.records, nil)

		req := queryFor(testAccount)
		req.Pagination = QueryPagination{SortBy: "createdAt", SortOrder: "asc"}
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Data, 3)
		assert.Equal(t, testAccount+"-2", *res.Data[0].ClaimID)
		assert.Equal(t, testAccount+"-0", *res.Data[2].ClaimID)
	})

	t.Run("stats by derived status", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 3)
		reviewed := f.seedRecord(t, syncedReturn("R-1", testNow))
		f.seedRecord(t, syncedReturn("R-2", testNow))
		require.NoError(t, f.records.ApplyEnrichment(ctx, reviewed.ID, returns.EnrichmentPatch{
			Review:     &returns.Review{Status: returns.Ptr("success")},
			EnrichedAt: testNow,
		}))
		svc := NewQueryService(f.records, nil)

		req := queryFor(testAccount)
		req.IncludeStats = true
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, res.Stats)
		assert.Equal(t, 5, res.Stats.Total)
		assert.Equal(t, map[string]int{"opened": 3, "delivered": 1, "success": 1}, res.Stats.ByStatus)
		assert.True(t, decimal.NewFromInt(1000).Equal(res.Stats.TotalAmount), res.Stats.TotalAmount.String())

		req.Filters.ReturnStatuses = []string{"delivered"}
		res, err = svc.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Data, 1)
		assert.Equal(t, "R-2", *res.Data[0].ReturnID)
		assert.Equal(t, "delivered", res.Data[0].ReturnStatus)
	})

	t.Run("stats failure degrades to results without stats", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 2)
		svc := NewQueryService(failingStats{f.records}, nil)

		req := queryFor(testAccount)
		req.IncludeStats = true
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Len(t, res.Data, 2)
		assert.Nil(t, res.Stats)
	})

	t.Run("search matches composed and decomposed accents", func(t *testing.T) {
		f := newPipelineFixture(t)
		order := testOrder()
		order.Items[0].Title = "Taza de café"
		f.seedRecord(t, unifyClaim(testAccount, makeClaims("X", 1)[0], order, testNow))
		f.seedClaims(t, testAccount, 2)
		svc := NewQueryService(f.records, nil)

		for _, term := range []string{"CAFÉ", "café", "  café "} {
			req := queryFor(testAccount)
			req.Filters.Search = term
			res, err := svc.Query(ctx, req)
			require.NoError(t, err)
			require.Len(t, res.Data, 1, "term %q", term)
			assert.Equal(t, "X-0", *res.Data[0].ClaimID)
		}
	})

	t.Run("search treats like wildcards literally", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 2)
		svc := NewQueryService(f.records, nil)

		req := queryFor(testAccount)
		req.Filters.Search = "%"
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, res.Data)
		assert.Equal(t, 0, res.Pagination.TotalPages)
	})

	t.Run("filters kind and dates", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.seedClaims(t, testAccount, 3)
		f.seedRecord(t, syncedReturn("R-1", testNow.Add(-time.Hour)))
		svc := NewQueryService(f.records, nil)

		req := queryFor(testAccount)
		req.Filters.Kinds = []returns.RecordKind{returns.KindReturn}
		res, err := svc.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Data, 1)
		assert.Equal(t, "return", res.Data[0].Kind)

		req = queryFor(testAccount)
		from := testNow.Add(-90 * time.Second)
		req.Filters.DateFrom = &from
		res, err = svc.Query(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Pagination.Total)
	})
}

func TestQueryService_Validation(t *testing.T) {
	svc := NewQueryService(nil, nil)
	from := testNow
	to := testNow.Add(-time.Hour)

	tests := []struct {
		name  string
		req   QueryRequest
		field string
	}{
		{"no account", QueryRequest{}, "accountId"},
		{"blank accounts", queryFor(" , "), "accountId"},
		{"bad kind", QueryRequest{Filters: QueryFilters{AccountIDs: AccountIDs{"a"}, Kinds: []returns.RecordKind{"refund"}}}, "kinds"},
		{"inverted window", QueryRequest{Filters: QueryFilters{AccountIDs: AccountIDs{"a"}, DateFrom: &from, DateTo: &to}}, "dateFrom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Query(context.Background(), tt.req)
			var vErr *returns.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestTotalPages(t *testing.T) {
	for _, tt := range []struct {
		total int64
		limit int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	} {
		assert.Equal(t, tt.want, totalPages(tt.total, tt.limit), fmt.Sprintf("%d/%d", tt.total, tt.limit))
	}
}
