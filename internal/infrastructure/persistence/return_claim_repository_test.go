package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/tests/testutil"
)

// setupReturnsTestDB opens an in-memory SQLite database with the service schema
func setupReturnsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLiteDB(t)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func claimRecord(accountID, claimID string, createdAt time.Time) *returns.ReturnClaimRecord {
	return &returns.ReturnClaimRecord{
		AccountID:    accountID,
		Kind:         returns.KindClaim,
		ClaimID:      returns.Ptr(claimID),
		OrderID:      "O-" + claimID,
		CreatedAt:    createdAt,
		Status:       "opened",
		StatusMoney:  returns.Ptr(returns.NotApplicable),
		ResourceType: returns.Ptr("order"),
		ProductTitle: returns.Ptr("Mate cup " + claimID),
		Amount:       returns.Ptr(decimal.RequireFromString("100.50")),
		Currency:     "ARS",
		BuyerID:      "B-1",
		TrackingInfo: &returns.TrackingInfo{
			Status:       returns.Ptr(returns.NotApplicable),
			ShipmentType: returns.Ptr(returns.NotApplicable),
			StatusMoney:  returns.Ptr(returns.NotApplicable),
		},
		SyncedAt: testNow,
	}
}

func returnRecord(accountID, returnID string, createdAt time.Time, trackingStatus string) *returns.ReturnClaimRecord {
	return &returns.ReturnClaimRecord{
		AccountID:       accountID,
		Kind:            returns.KindReturn,
		ReturnID:        returns.Ptr(returnID),
		ParentClaimID:   returns.Ptr("C-" + returnID),
		OrderID:         "O-" + returnID,
		CreatedAt:       createdAt,
		Status:          "opened",
		StatusMoney:     returns.Ptr("retained"),
		ResourceType:    returns.Ptr("order"),
		RelatedEntities: returns.RelatedEntities{returns.RelatedReviews},
		TrackingInfo: &returns.TrackingInfo{
			ShipmentID:   "S-" + returnID,
			Status:       returns.Ptr(trackingStatus),
			ShipmentType: returns.Ptr("return"),
			StatusMoney:  returns.Ptr("retained"),
		},
		FinancialInfo: &returns.FinancialInfo{Amount: returns.Ptr(decimal.NewFromInt(40)), Currency: "ARS"},
		SyncedAt:      testNow,
	}
}

func TestGormReturnClaimRepository_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then updates by natural key", func(t *testing.T) {
		db := setupReturnsTestDB(t)
		repo := NewGormReturnClaimRepository(db)

		rec := claimRecord("acc-1", "C-1", testNow)
		outcome, err := repo.Upsert(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, returns.UpsertCreated, outcome)
		firstID := rec.ID

		again := claimRecord("acc-1", "C-1", testNow)
		again.Status = "closed"
		outcome, err = repo.Upsert(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, returns.UpsertUpdated, outcome)
		assert.Equal(t, firstID, again.ID)

		count, err := repo.CountByAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		found, err := repo.FindByKey(ctx, "acc-1", returns.NaturalKey{Kind: returns.KindClaim, Value: "C-1"})
		require.NoError(t, err)
		assert.Equal(t, "closed", found.Status)
		assert.True(t, decimal.RequireFromString("100.5").Equal(*found.Amount))
		require.NotNil(t, found.TrackingInfo)
		assert.Equal(t, returns.NotApplicable, *found.TrackingInfo.ShipmentType)
	})

	t.Run("same key in another account is a different record", func(t *testing.T) {
		db := setupReturnsTestDB(t)
		repo := NewGormReturnClaimRepository(db)

		_, err := repo.Upsert(ctx, claimRecord("acc-1", "C-1", testNow))
		require.NoError(t, err)
		outcome, err := repo.Upsert(ctx, claimRecord("acc-2", "C-1", testNow))
		require.NoError(t, err)
		assert.Equal(t, returns.UpsertCreated, outcome)
	})

	t.Run("sync pass never clears enrichment columns", func(t *testing.T) {
		db := setupReturnsTestDB(t)
		repo := NewGormReturnClaimRepository(db)

		rec := returnRecord("acc-1", "R-1", testNow, "delivered")
		_, err := repo.Upsert(ctx, rec)
		require.NoError(t, err)

		require.NoError(t, repo.ApplyEnrichment(ctx, rec.ID, returns.EnrichmentPatch{
			BuyerInfo:  &returns.BuyerInfo{ID: "B-1", Nickname: returns.Ptr("BUYER")},
			Review:     &returns.Review{Status: returns.Ptr("success"), Method: returns.Ptr("triage")},
			EnrichedAt: testNow,
		}))

		resync := returnRecord("acc-1", "R-1", testNow, "delivered")
		_, err = repo.Upsert(ctx, resync)
		require.NoError(t, err)

		found, err := repo.FindByKey(ctx, "acc-1", returns.NaturalKey{Kind: returns.KindReturn, Value: "R-1"})
		require.NoError(t, err)
		require.NotNil(t, found.BuyerInfo)
		assert.Equal(t, "BUYER", *found.BuyerInfo.Nickname)
		require.NotNil(t, found.ReviewStatus)
		assert.Equal(t, "success", *found.ReviewStatus)
		assert.False(t, found.NeedsEnrichment())
	})

	t.Run("invalid record is rejected", func(t *testing.T) {
		db := setupReturnsTestDB(t)
		repo := NewGormReturnClaimRepository(db)

		rec := claimRecord("acc-1", "C-1", testNow)
		rec.ReturnID = returns.Ptr("R-1")
		_, err := repo.Upsert(ctx, rec)
		var validationErr *returns.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("unique race surfaces as conflict", func(t *testing.T) {
		db := setupReturnsTestDB(t)
		repo := NewGormReturnClaimRepository(db)

		raced := false
		require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:race", func(tx *gorm.DB) {
			if raced || tx.Statement.Table != "return_claims" {
				return
			}
			raced = true
			_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
				`INSERT INTO return_claims (id, account_id, kind, claim_id, order_id, status, created_at, updated_at, synced_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), "acc-1", "claim", "C-RACE", "O-1", "opened", testNow, testNow, testNow)
			require.NoError(t, err)
		}))

		_, err := repo.Upsert(ctx, claimRecord("acc-1", "C-RACE", testNow))
		require.Error(t, err)
		assert.True(t, returns.IsConflict(err))
	})
}

func TestGormReturnClaimRepository_FindByKey_NotFound(t *testing.T) {
	repo := NewGormReturnClaimRepository(setupReturnsTestDB(t))

	_, err := repo.FindByKey(context.Background(), "acc-1", returns.NaturalKey{Kind: returns.KindClaim, Value: "missing"})
	assert.True(t, returns.IsNotFound(err))
}

func TestGormReturnClaimRepository_Enrichment(t *testing.T) {
	ctx := context.Background()
	db := setupReturnsTestDB(t)
	repo := NewGormReturnClaimRepository(db)

	for i, id := range []string{"C-1", "C-2", "C-3"} {
		_, err := repo.Upsert(ctx, claimRecord("acc-1", id, testNow.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, claimRecord("acc-2", "C-9", testNow))
	require.NoError(t, err)

	t.Run("pending records are newest first and account scoped", func(t *testing.T) {
		pending, err := repo.FindPendingEnrichment(ctx, "acc-1", 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "C-3", *pending[0].ClaimID)
		assert.Equal(t, "C-2", *pending[1].ClaimID)
	})

	t.Run("patched record leaves the queue without touching sync columns", func(t *testing.T) {
		pending, err := repo.FindPendingEnrichment(ctx, "acc-1", 10)
		require.NoError(t, err)
		target := pending[0]

		require.NoError(t, repo.ApplyEnrichment(ctx, target.ID, returns.EnrichmentPatch{
			BuyerInfo:  &returns.BuyerInfo{Unavailable: true},
			EnrichedAt: testNow,
		}))

		pending, err = repo.FindPendingEnrichment(ctx, "acc-1", 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		found, err := repo.FindByKey(ctx, "acc-1", target.Key())
		require.NoError(t, err)
		assert.True(t, found.BuyerInfo.Unavailable)
		assert.Equal(t, target.Status, found.Status)
		assert.Equal(t, *target.ProductTitle, *found.ProductTitle)
		require.NotNil(t, found.EnrichedAt)
	})

	t.Run("patching a missing row is not found", func(t *testing.T) {
		err := repo.ApplyEnrichment(ctx, uuid.New(), returns.EnrichmentPatch{
			ItemInfo:   &returns.ItemInfo{Title: returns.Ptr("x")},
			EnrichedAt: testNow,
		})
		assert.True(t, returns.IsNotFound(err))
	})
}

func TestGormReturnClaimRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	db := setupReturnsTestDB(t)
	repo := NewGormReturnClaimRepository(db)

	seedRecords := []*returns.ReturnClaimRecord{
		claimRecord("acc-1", "C-1", testNow.Add(-48*time.Hour)),
		claimRecord("acc-1", "C-2", testNow.Add(-24*time.Hour)),
		returnRecord("acc-1", "R-1", testNow.Add(-12*time.Hour), "delivered"),
		returnRecord("acc-1", "R-2", testNow.Add(-6*time.Hour), "shipped"),
		returnRecord("acc-2", "R-3", testNow.Add(-1*time.Hour), "delivered"),
	}
	seedRecords[1].ProductTitle = returns.Ptr("Termo 100% acero")
	for _, r := range seedRecords {
		_, err := repo.Upsert(ctx, r)
		require.NoError(t, err)
	}
	// R-2 has a review outcome that overrides its shipment status.
	require.NoError(t, repo.ApplyEnrichment(ctx, seedRecords[3].ID, returns.EnrichmentPatch{
		Review:     &returns.Review{Status: returns.Ptr("failed")},
		EnrichedAt: testNow,
	}))

	tests := []struct {
		name      string
		filter    returns.RecordFilter
		wantTotal int64
		wantFirst string
	}{
		{
			name:      "account filter with default sort",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, Page: 1, Limit: 20},
			wantTotal: 4,
			wantFirst: "R-2",
		},
		{
			name:      "multiple accounts",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1", "acc-2"}, Page: 1, Limit: 20},
			wantTotal: 5,
			wantFirst: "R-3",
		},
		{
			name:      "kind filter",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, Kinds: []returns.RecordKind{returns.KindClaim}, Page: 1, Limit: 20},
			wantTotal: 2,
			wantFirst: "C-2",
		},
		{
			name:      "search matches ids case-insensitively",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, Search: "r-1", Page: 1, Limit: 20},
			wantTotal: 1,
			wantFirst: "R-1",
		},
		{
			name:      "search escapes like wildcards",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, Search: "100%", Page: 1, Limit: 20},
			wantTotal: 1,
			wantFirst: "C-2",
		},
		{
			name:      "derived return status uses tracking status",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1", "acc-2"}, ReturnStatuses: []string{"delivered"}, Page: 1, Limit: 20},
			wantTotal: 2,
			wantFirst: "R-3",
		},
		{
			name:      "derived return status prefers review status",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, ReturnStatuses: []string{"failed"}, Page: 1, Limit: 20},
			wantTotal: 1,
			wantFirst: "R-2",
		},
		{
			name:      "derived return status falls back to record status",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, ReturnStatuses: []string{"opened"}, Page: 1, Limit: 20},
			wantTotal: 2,
			wantFirst: "C-2",
		},
		{
			name:      "date range",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, DateFrom: returns.Ptr(testNow.Add(-30 * time.Hour)), DateTo: returns.Ptr(testNow.Add(-10 * time.Hour)), Page: 1, Limit: 20},
			wantTotal: 2,
			wantFirst: "R-1",
		},
		{
			name:      "ascending sort with paging",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, SortBy: "created_at", SortOrder: "asc", Page: 2, Limit: 3},
			wantTotal: 4,
			wantFirst: "R-2",
		},
		{
			name:      "unknown sort field falls back to created_at",
			filter:    returns.RecordFilter{AccountIDs: []string{"acc-1"}, SortBy: "id; DROP TABLE return_claims", Page: 1, Limit: 1},
			wantTotal: 4,
			wantFirst: "R-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, total, err := repo.FindAll(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			require.NotEmpty(t, records)
			assert.Equal(t, tt.wantFirst, records[0].Key().Value)
		})
	}
}

func TestGormReturnClaimRepository_FindStatsRows(t *testing.T) {
	ctx := context.Background()
	repo := NewGormReturnClaimRepository(setupReturnsTestDB(t))

	_, err := repo.Upsert(ctx, claimRecord("acc-1", "C-1", testNow))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, returnRecord("acc-1", "R-1", testNow, "delivered"))
	require.NoError(t, err)

	rows, err := repo.FindStatsRows(ctx, returns.RecordFilter{AccountIDs: []string{"acc-1"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var withTracking int
	for _, row := range rows {
		if row.TrackingInfo != nil && row.TrackingInfo.Status != nil && *row.TrackingInfo.Status == "delivered" {
			withTracking++
			require.NotNil(t, row.FinancialInfo)
		}
	}
	assert.Equal(t, 1, withTracking)
}

func TestGormReturnClaimRepository_FindStatsRows_DriverError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewGormReturnClaimRepository(mockDB.DB)

	mockDB.Mock.ExpectQuery(`SELECT status, review_status, tracking_info, financial_info, amount FROM "return_claims"`).
		WillReturnError(assert.AnError)

	rows, err := repo.FindStatsRows(context.Background(), returns.RecordFilter{AccountIDs: []string{"acc-1"}, ReturnStatuses: []string{"delivered"}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, rows)
	mockDB.ExpectationsWereMet(t)
}
