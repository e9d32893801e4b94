package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordFilter selects records for the query service.
type RecordFilter struct {
	AccountIDs     []string
	Search         string
	Statuses       []string
	ReturnStatuses []string
	Kinds          []RecordKind
	DateFrom       *time.Time
	DateTo         *time.Time
	SortBy         string
	SortOrder      string
	Page           int
	Limit          int
}

// Offset returns the row offset of the requested page.
func (f RecordFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// StatsRow is the narrow projection the stats pass reads.
type StatsRow struct {
	Status        string
	ReviewStatus  *string
	TrackingInfo  *TrackingInfo
	FinancialInfo *FinancialInfo
	Amount        *decimal.Decimal
}

// DerivedStatus is the return status shown to users: the review outcome when known,
// then the return shipment status, then the record status.
func DerivedStatus(reviewStatus *string, tracking *TrackingInfo, status string) string {
	var trackingStatus *string
	if tracking != nil {
		trackingStatus = tracking.Status
	}
	if s := Coalesce(reviewStatus, trackingStatus); s != nil && *s != NotApplicable {
		return *s
	}
	return status
}

// ReturnClaimRepository persists ReturnClaimRecords.
type ReturnClaimRepository interface {
	// FindByKey returns *NotFoundError when no record has the natural key.
	FindByKey(ctx context.Context, accountID string, key NaturalKey) (*ReturnClaimRecord, error)
	// Upsert inserts the record or overwrites its sync-origin fields. A unique-constraint
	// race surfaces as *ConflictError.
	Upsert(ctx context.Context, record *ReturnClaimRecord) (UpsertOutcome, error)
	// FindPendingEnrichment returns records without buyer info, newest first.
	FindPendingEnrichment(ctx context.Context, accountID string, limit int) ([]ReturnClaimRecord, error)
	// ApplyEnrichment writes the non-nil enrichment-origin fields of patch.
	ApplyEnrichment(ctx context.Context, id uuid.UUID, patch EnrichmentPatch) error
	FindAll(ctx context.Context, filter RecordFilter) ([]ReturnClaimRecord, int64, error)
	FindStatsRows(ctx context.Context, filter RecordFilter) ([]StatsRow, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}

// SyncRunRepository persists the append-only run history.
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	FindRecent(ctx context.Context, accountID string, limit int) ([]SyncRun, error)
}

// ShipmentRepository persists the cached shipments collection.
type ShipmentRepository interface {
	FindAll(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
	UpsertBatch(ctx context.Context, shipments []Shipment) error
}

// RunLock serialises runs that share a key. Acquire returns ErrRunInProgress when the
// key is held; the returned release func is safe to call once the run ends.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// SyncLockKey is the run-lock key of an account's sync runs.
func SyncLockKey(accountID string) string {
	return "claimsync:lock:sync:" + accountID
}

// EnrichLockKey is the run-lock key of an account's enrichment batches.
func EnrichLockKey(accountID string) string {
	return "claimsync:lock:enrich:" + accountID
}
