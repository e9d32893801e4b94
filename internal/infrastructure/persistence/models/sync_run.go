package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/claimsync/internal/domain/returns"
)

// SyncRunModel is the persistence model for a SyncRun
type SyncRunModel struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey"`
	AccountID       string             `gorm:"type:varchar(64);not null;index:idx_sync_runs_account_started,priority:1"`
	Mode            returns.SyncMode   `gorm:"type:varchar(10);not null"`
	Trigger         returns.RunTrigger `gorm:"column:trigger_source;type:varchar(20);not null"`
	Status          returns.RunStatus  `gorm:"type:varchar(20);not null"`
	DateFrom        time.Time          `gorm:"not null"`
	DateTo          time.Time          `gorm:"not null"`
	StartedAt       time.Time          `gorm:"not null;index:idx_sync_runs_account_started,priority:2"`
	FinishedAt      *time.Time
	TotalProcessed  int    `gorm:"not null;default:0"`
	TotalCreated    int    `gorm:"not null;default:0"`
	TotalUpdated    int    `gorm:"not null;default:0"`
	TotalDuplicates int    `gorm:"not null;default:0"`
	TotalSkipped    int    `gorm:"not null;default:0"`
	Truncated       bool   `gorm:"not null;default:false"`
	DurationMs      int64  `gorm:"not null;default:0"`
	ErrorCode       *string `gorm:"type:varchar(50)"`
	ErrorMessage    *string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *returns.SyncRun {
	return &returns.SyncRun{
		ID:              m.ID,
		AccountID:       m.AccountID,
		Mode:            m.Mode,
		Trigger:         m.Trigger,
		Status:          m.Status,
		DateFrom:        m.DateFrom,
		DateTo:          m.DateTo,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		TotalProcessed:  m.TotalProcessed,
		TotalCreated:    m.TotalCreated,
		TotalUpdated:    m.TotalUpdated,
		TotalDuplicates: m.TotalDuplicates,
		TotalSkipped:    m.TotalSkipped,
		Truncated:       m.Truncated,
		DurationMs:      m.DurationMs,
		ErrorCode:       m.ErrorCode,
		ErrorMessage:    m.ErrorMessage,
	}
}

// SyncRunModelFromDomain creates a persistence model from a domain SyncRun
func SyncRunModelFromDomain(r *returns.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Mode:            r.Mode,
		Trigger:         r.Trigger,
		Status:          r.Status,
		DateFrom:        r.DateFrom,
		DateTo:          r.DateTo,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		TotalProcessed:  r.TotalProcessed,
		TotalCreated:    r.TotalCreated,
		TotalUpdated:    r.TotalUpdated,
		TotalDuplicates: r.TotalDuplicates,
		TotalSkipped:    r.TotalSkipped,
		Truncated:       r.Truncated,
		DurationMs:      r.DurationMs,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
	}
}
