package models

import (
	"time"

	"github.com/erp/claimsync/internal/domain/returns"
)

// CredentialModel is the persistence model for an account's sealed token bundle
type CredentialModel struct {
	AccountID string                   `gorm:"type:varchar(64);primaryKey"`
	Bundle    []byte                   `gorm:"type:bytea;not null"`
	Status    returns.CredentialStatus `gorm:"type:varchar(30);not null"`
	UpdatedAt time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "marketplace_credentials"
}

// ToDomain converts the persistence model to a domain Credential
func (m *CredentialModel) ToDomain() *returns.Credential {
	return &returns.Credential{
		AccountID: m.AccountID,
		Bundle:    m.Bundle,
		Status:    m.Status,
		UpdatedAt: m.UpdatedAt,
	}
}

// CredentialModelFromDomain creates a persistence model from a domain Credential
func CredentialModelFromDomain(c *returns.Credential) *CredentialModel {
	return &CredentialModel{
		AccountID: c.AccountID,
		Bundle:    c.Bundle,
		Status:    c.Status,
		UpdatedAt: c.UpdatedAt,
	}
}
