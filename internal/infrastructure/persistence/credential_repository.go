package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements returns.CredentialRepository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// FindByAccount loads the credential row of an account
func (r *GormCredentialRepository) FindByAccount(ctx context.Context, accountID string) (*returns.Credential, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &returns.NotFoundError{Resource: "credential", ID: accountID}
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts or rewrites the credential row of an account
func (r *GormCredentialRepository) Save(ctx context.Context, credential *returns.Credential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bundle", "status", "updated_at"}),
		}).
		Create(models.CredentialModelFromDomain(credential)).Error
}

// UpdateStatus changes the status of an account's credential
func (r *GormCredentialRepository) UpdateStatus(ctx context.Context, accountID string, status returns.CredentialStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.CredentialModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &returns.NotFoundError{Resource: "credential", ID: accountID}
	}
	return nil
}

// Ensure GormCredentialRepository implements CredentialRepository
var _ returns.CredentialRepository = (*GormCredentialRepository)(nil)
