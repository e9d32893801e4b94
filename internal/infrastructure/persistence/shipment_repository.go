package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/infrastructure/persistence/models"
)

// shipmentUpsertBatchSize bounds the rows of one INSERT ... ON CONFLICT statement
const shipmentUpsertBatchSize = 100

// GormShipmentRepository implements returns.ShipmentRepository using GORM
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new GormShipmentRepository
func NewGormShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// FindAll returns cached shipments matching the filter, newest first
func (r *GormShipmentRepository) FindAll(ctx context.Context, filter returns.ShipmentFilter) ([]returns.Shipment, error) {
	query := r.db.WithContext(ctx).Model(&models.ShipmentModel{})

	if len(filter.AccountIDs) > 0 {
		query = query.Where("account_id IN ?", filter.AccountIDs)
	}
	if !filter.Window.From.IsZero() {
		query = query.Where("date_created >= ?", filter.Window.From)
	}
	if !filter.Window.To.IsZero() {
		query = query.Where("date_created <= ?", filter.Window.To)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.FreshSince != nil {
		query = query.Where("last_synced_at >= ?", *filter.FreshSince)
	}

	var rows []models.ShipmentModel
	if err := query.Order("date_created DESC").Order("external_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]returns.Shipment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// UpsertBatch overwrites the given shipments wholesale, keyed by (external_id, account_id)
func (r *GormShipmentRepository) UpsertBatch(ctx context.Context, shipments []returns.Shipment) error {
	if len(shipments) == 0 {
		return nil
	}

	rows := make([]*models.ShipmentModel, len(shipments))
	for i, s := range shipments {
		rows[i] = models.ShipmentModelFromDomain(s)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "account_id"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, shipmentUpsertBatchSize).Error
}

// Ensure GormShipmentRepository implements ShipmentRepository
var _ returns.ShipmentRepository = (*GormShipmentRepository)(nil)
