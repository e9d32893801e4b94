package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/persistence/models"
)

// searchColumns are matched case-insensitively by the free-text search
var searchColumns = []string{"claim_id", "return_id", "order_id", "product_title", "sku", "buyer_nickname"}

// GormReturnClaimRepository implements returns.ReturnClaimRepository using GORM
type GormReturnClaimRepository struct {
	db *gorm.DB
}

// NewGormReturnClaimRepository creates a new GormReturnClaimRepository
func NewGormReturnClaimRepository(db *gorm.DB) *GormReturnClaimRepository {
	return &GormReturnClaimRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormReturnClaimRepository) WithTx(tx *gorm.DB) *GormReturnClaimRepository {
	return &GormReturnClaimRepository{db: tx}
}

// FindByKey finds a record by its natural key
func (r *GormReturnClaimRepository) FindByKey(ctx context.Context, accountID string, key returns.NaturalKey) (*returns.ReturnClaimRecord, error) {
	var model models.ReturnClaimModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND "+key.Column()+" = ?", accountID, key.Value).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &returns.NotFoundError{Resource: key.Column(), ID: key.Value}
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert inserts a record or rewrites its sync-origin columns. Enrichment-origin
// columns of an existing row are never touched.
func (r *GormReturnClaimRepository) Upsert(ctx context.Context, record *returns.ReturnClaimRecord) (returns.UpsertOutcome, error) {
	if err := record.Validate(); err != nil {
		return 0, err
	}
	key := record.Key()

	var existing models.ReturnClaimModel
	err := r.db.WithContext(ctx).
		Select("id").
		Where("account_id = ? AND "+key.Column()+" = ?", record.AccountID, key.Value).
		Take(&existing).Error
	switch {
	case err == nil:
		record.ID = existing.ID
		model := models.ReturnClaimModelFromDomain(record)
		result := r.db.WithContext(ctx).
			Model(&models.ReturnClaimModel{}).
			Where("id = ?", existing.ID).
			Select(models.SyncColumns).
			Updates(model)
		if result.Error != nil {
			return 0, result.Error
		}
		return returns.UpsertUpdated, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, err
	}

	model := models.ReturnClaimModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, &returns.ConflictError{AccountID: record.AccountID, Key: key, Err: err}
		}
		return 0, err
	}
	record.ID = model.ID
	return returns.UpsertCreated, nil
}

// FindPendingEnrichment returns records without buyer info, newest first
func (r *GormReturnClaimRepository) FindPendingEnrichment(ctx context.Context, accountID string, limit int) ([]returns.ReturnClaimRecord, error) {
	var rows []models.ReturnClaimModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND buyer_info IS NULL", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// ApplyEnrichment writes the enrichment-origin columns carried by patch
func (r *GormReturnClaimRepository) ApplyEnrichment(ctx context.Context, id uuid.UUID, patch returns.EnrichmentPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.ReturnClaimModel{}).
		Where("id = ?", id).
		Updates(models.EnrichmentUpdates(patch))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &returns.NotFoundError{Resource: "return_claim", ID: id.String()}
	}
	return nil
}

// FindAll returns one page of records matching the filter and the total match count
func (r *GormReturnClaimRepository) FindAll(ctx context.Context, filter returns.RecordFilter) ([]returns.ReturnClaimRecord, int64, error) {
	var total int64
	countQuery := r.applyFilter(r.db.WithContext(ctx).Model(&models.ReturnClaimModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReturnClaimModel
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.ReturnClaimModel{}), filter).
		Clauses(recordOrder(filter.SortBy, filter.SortOrder)).
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return toRecords(rows), total, nil
}

// FindStatsRows returns the narrow stats projection of every matching record
func (r *GormReturnClaimRepository) FindStatsRows(ctx context.Context, filter returns.RecordFilter) ([]returns.StatsRow, error) {
	var rows []models.StatsRowModel
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.ReturnClaimModel{}), filter).
		Select("status, review_status, tracking_info, financial_info, amount").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]returns.StatsRow, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountByAccount counts the stored records of an account
func (r *GormReturnClaimRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnClaimModel{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

func (r *GormReturnClaimRepository) applyFilter(query *gorm.DB, filter returns.RecordFilter) *gorm.DB {
	if len(filter.AccountIDs) > 0 {
		query = query.Where("account_id IN ?", filter.AccountIDs)
	}

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(escapeLikePattern(filter.Search)) + "%"
		clauses := make([]string, len(searchColumns))
		args := make([]any, len(searchColumns))
		for i, col := range searchColumns {
			clauses[i] = "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
			args[i] = pattern
		}
		query = query.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	if len(filter.ReturnStatuses) > 0 {
		query = query.Where(derivedStatusExpr(query)+" IN ?", filter.ReturnStatuses)
	}

	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}

	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	return query
}

// derivedStatusExpr is the SQL form of returns.DerivedStatus
func derivedStatusExpr(db *gorm.DB) string {
	tracking := jsonTextExpr(db, "tracking_info", "status")
	return fmt.Sprintf("COALESCE(review_status, NULLIF(%s, '%s'), status)", tracking, returns.NotApplicable)
}

// jsonTextExpr extracts a top-level text key from a JSON document column
func jsonTextExpr(db *gorm.DB, column, key string) string {
	if db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("(%s->>'%s')", column, key)
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, key)
}

func toRecords(rows []models.ReturnClaimModel) []returns.ReturnClaimRecord {
	out := make([]returns.ReturnClaimRecord, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormReturnClaimRepository implements ReturnClaimRepository
var _ returns.ReturnClaimRepository = (*GormReturnClaimRepository)(nil)
