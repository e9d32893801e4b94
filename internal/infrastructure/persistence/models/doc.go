// Package models holds the GORM rows behind the returns pipeline. Domain types
// carry no ORM tags; each model converts to and from its domain type.
//
// Semi-structured marketplace payloads (buyer, order, item, review and tracking
// documents) are stored as datatypes.JSON columns so postgres
// and the sqlite test database share one mapping.
package models
