package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/persistence/models"
)

// DefaultSyncRunHistoryLimit is used when a caller asks for run history without a limit
const DefaultSyncRunHistoryLimit = 20

// GormSyncRunRepository implements returns.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create inserts a new run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *returns.SyncRun) error {
	return r.db.WithContext(ctx).Create(models.SyncRunModelFromDomain(run)).Error
}

// Update rewrites a run row
func (r *GormSyncRunRepository) Update(ctx context.Context, run *returns.SyncRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Select("*").
		Omit("id", "account_id", "started_at").
		Updates(models.SyncRunModelFromDomain(run))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &returns.NotFoundError{Resource: "sync_run", ID: run.ID.String()}
	}
	return nil
}

// FindByID finds a run by its id
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*returns.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &returns.NotFoundError{Resource: "sync_run", ID: id.String()}
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRecent returns the latest runs of an account, newest first. An empty account id
// lists runs of every account.
func (r *GormSyncRunRepository) FindRecent(ctx context.Context, accountID string, limit int) ([]returns.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultSyncRunHistoryLimit
	}

	query := r.db.WithContext(ctx).Model(&models.SyncRunModel{})
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var rows []models.SyncRunModel
	if err := query.Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	runs := make([]returns.SyncRun, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}

// Ensure GormSyncRunRepository implements SyncRunRepository
var _ returns.SyncRunRepository = (*GormSyncRunRepository)(nil)
