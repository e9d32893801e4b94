package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/infrastructure/persistence/models"
)

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	mockDB.ExpectationsWereMet(t)
}

func TestNewSQLiteDB(t *testing.T) {
	db := NewSQLiteDB(t)

	for _, table := range []string{"return_claims", "sync_runs", "marketplace_shipments", "marketplace_credentials"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("return_claims", "uq_return_claims_account_claim"))
	assert.True(t, db.Migrator().HasIndex("return_claims", "uq_return_claims_account_return"))
}

func TestNewSQLiteDB_Isolated(t *testing.T) {
	first := NewSQLiteDB(t)
	require.NoError(t, first.Create(&models.SyncRunModel{
		ID:        uuid.New(),
		AccountID: TestAccountID(),
		Mode:      "both",
		Trigger:   "api",
		Status:    "running",
	}).Error)

	var count int64
	require.NoError(t, NewSQLiteDB(t).Model(&models.SyncRunModel{}).Count(&count).Error)
	assert.Zero(t, count)
}
