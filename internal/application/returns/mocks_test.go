package returns

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/cache"
	"github.com/erp/claimsync/internal/infrastructure/persistence"
	"github.com/erp/claimsync/tests/testutil"
)

// MockMarketplace is a mock implementation of returns.Marketplace
type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) SearchClaims(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.Claim, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]returns.Claim), args.Error(1)
}

func (m *MockMarketplace) SearchReturns(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.Return, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]returns.Return), args.Error(1)
}

func (m *MockMarketplace) GetOrder(ctx context.Context, token returns.AccessToken, orderID string) (*returns.Order, error) {
	args := m.Called(ctx, token, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.Order), args.Error(1)
}

func (m *MockMarketplace) GetBuyer(ctx context.Context, token returns.AccessToken, buyerID string) (*returns.Buyer, error) {
	args := m.Called(ctx, token, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.Buyer), args.Error(1)
}

func (m *MockMarketplace) GetItem(ctx context.Context, token returns.AccessToken, itemID string) (*returns.Item, error) {
	args := m.Called(ctx, token, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.Item), args.Error(1)
}

func (m *MockMarketplace) GetReturnReview(ctx context.Context, token returns.AccessToken, returnID string) (*returns.ReturnReview, error) {
	args := m.Called(ctx, token, returnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.ReturnReview), args.Error(1)
}

func (m *MockMarketplace) SearchShipments(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.ShipmentSummary, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]returns.ShipmentSummary), args.Error(1)
}

func (m *MockMarketplace) GetShipment(ctx context.Context, token returns.AccessToken, shipmentID string) (*returns.ShipmentDetail, error) {
	args := m.Called(ctx, token, shipmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*returns.ShipmentDetail), args.Error(1)
}

// MockCredentialProvider is a mock implementation of returns.CredentialProvider
type MockCredentialProvider struct {
	mock.Mock
}

func (m *MockCredentialProvider) GetAccessToken(ctx context.Context, accountID string) (returns.AccessToken, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(returns.AccessToken), args.Error(1)
}

func (m *MockCredentialProvider) RefreshToken(ctx context.Context, accountID string) (returns.AccessToken, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(returns.AccessToken), args.Error(1)
}

// recordingMetrics captures what the services report.
type recordingMetrics struct {
	runs    []returns.RunStatus
	records map[string]int
	enrich  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{records: map[string]int{}, enrich: map[string]int{}}
}

func (m *recordingMetrics) RecordSyncRun(_ context.Context, status returns.RunStatus, _ time.Duration) {
	m.runs = append(m.runs, status)
}

func (m *recordingMetrics) RecordSyncRecords(_ context.Context, outcome string, n int) {
	m.records[outcome] += n
}

func (m *recordingMetrics) RecordEnrichRecord(_ context.Context, outcome string) {
	m.enrich[outcome]++
}

var (
	testNow     = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testAccount = testutil.TestAccountID()
	testToken   = returns.AccessToken{AccountID: testutil.TestAccountID(), SellerID: "seller-1", Value: "tok-1", ExpiresAt: testNow.Add(time.Hour)}
)

func fixedClock() time.Time { return testNow }

// pipelineFixture wires the services to an in-memory store and mocked upstreams.
type pipelineFixture struct {
	db          *gorm.DB
	records     *persistence.GormReturnClaimRepository
	runs        *persistence.GormSyncRunRepository
	shipments   *persistence.GormShipmentRepository
	lock        *cache.InMemoryRunLock
	marketplace *MockMarketplace
	credentials *MockCredentialProvider
	metrics     *recordingMetrics
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return &pipelineFixture{
		db:          db,
		records:     persistence.NewGormReturnClaimRepository(db),
		runs:        persistence.NewGormSyncRunRepository(db),
		shipments:   persistence.NewGormShipmentRepository(db),
		lock:        cache.NewInMemoryRunLock(),
		marketplace: new(MockMarketplace),
		credentials: new(MockCredentialProvider),
		metrics:     newRecordingMetrics(),
	}
}

func (f *pipelineFixture) syncService() *SyncService {
	cfg := DefaultSyncConfig()
	cfg.Paging.Delay = 0
	cfg.Paging.Retry.BaseDelay = 0
	return NewSyncService(f.records, f.runs, f.credentials, f.marketplace, f.lock, nil,
		WithSyncConfig(cfg),
		WithSyncMetrics(f.metrics),
		WithSyncClock(fixedClock),
	)
}

func (f *pipelineFixture) enrichmentService() *EnrichmentService {
	cfg := DefaultEnrichmentConfig()
	cfg.RecordDelay = 0
	return NewEnrichmentService(f.records, f.credentials, f.marketplace, f.lock, nil,
		WithEnrichmentConfig(cfg),
		WithEnrichmentMetrics(f.metrics),
		WithEnrichmentClock(fixedClock),
	)
}

// makeClaims builds n claims with ids prefix-0..prefix-(n-1), each on its own order.
func makeClaims(prefix string, n int) []returns.Claim {
	claims := make([]returns.Claim, n)
	for i := range claims {
		id := prefix + "-" + strconv.Itoa(i)
		claims[i] = returns.Claim{
			ID:        id,
			OrderID:   "O-" + id,
			Resource:  "order",
			Stage:     "claim",
			Status:    "opened",
			ReasonID:  "PDD9939",
			BuyerID:   "B-" + id,
			CreatedAt: testNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return claims
}
