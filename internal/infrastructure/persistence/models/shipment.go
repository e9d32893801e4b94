package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/erp/claimsync/internal/domain/returns"
)

// ShipmentModel is the persistence model for a cached marketplace shipment
type ShipmentModel struct {
	ExternalID     string     `gorm:"type:varchar(64);primaryKey"`
	AccountID      string     `gorm:"type:varchar(64);primaryKey"`
	OrderID        string     `gorm:"type:varchar(64);index"`
	Status         string     `gorm:"type:varchar(50);not null"`
	Substatus      *string    `gorm:"type:varchar(50)"`
	Mode           *string    `gorm:"type:varchar(20)"`
	LogisticType   *string    `gorm:"type:varchar(50)"`
	TrackingNumber *string    `gorm:"type:varchar(100)"`
	Carrier        *string    `gorm:"type:varchar(100)"`
	ReceiverCity   *string    `gorm:"type:varchar(100)"`
	ReceiverState  *string    `gorm:"type:varchar(100)"`
	DateCreated    time.Time  `gorm:"not null;index"`
	LastUpdated    *time.Time
	Detail         datatypes.JSON
	LastSyncedAt   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ShipmentModel) TableName() string {
	return "marketplace_shipments"
}

// ToDomain converts the persistence model to a domain Shipment
func (m *ShipmentModel) ToDomain() returns.Shipment {
	s := returns.Shipment{
		ExternalID:     m.ExternalID,
		AccountID:      m.AccountID,
		OrderID:        m.OrderID,
		Status:         m.Status,
		Substatus:      m.Substatus,
		Mode:           m.Mode,
		LogisticType:   m.LogisticType,
		TrackingNumber: m.TrackingNumber,
		Carrier:        m.Carrier,
		ReceiverCity:   m.ReceiverCity,
		ReceiverState:  m.ReceiverState,
		DateCreated:    m.DateCreated,
		LastUpdated:    m.LastUpdated,
		LastSyncedAt:   m.LastSyncedAt,
	}
	if len(m.Detail) > 0 && string(m.Detail) != "null" {
		s.Detail = append([]byte(nil), m.Detail...)
	}
	return s
}

// ShipmentModelFromDomain creates a persistence model from a domain Shipment
func ShipmentModelFromDomain(s returns.Shipment) *ShipmentModel {
	m := &ShipmentModel{
		ExternalID:     s.ExternalID,
		AccountID:      s.AccountID,
		OrderID:        s.OrderID,
		Status:         s.Status,
		Substatus:      s.Substatus,
		Mode:           s.Mode,
		LogisticType:   s.LogisticType,
		TrackingNumber: s.TrackingNumber,
		Carrier:        s.Carrier,
		ReceiverCity:   s.ReceiverCity,
		ReceiverState:  s.ReceiverState,
		DateCreated:    s.DateCreated,
		LastUpdated:    s.LastUpdated,
		LastSyncedAt:   s.LastSyncedAt,
	}
	if len(s.Detail) > 0 {
		m.Detail = datatypes.JSON(s.Detail)
	}
	return m
}
