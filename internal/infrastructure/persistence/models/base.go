package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("persistence.models")

// BaseModel provides the surrogate key and bookkeeping timestamps shared by row models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// encodeDocument serializes an optional document; nil becomes SQL NULL.
func encodeDocument[T any](doc *T) datatypes.JSON {
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		modelLogger.Warn("failed to encode document column", zap.Error(err))
		return nil
	}
	return datatypes.JSON(b)
}

// encodeList serializes a list document; an empty list becomes SQL NULL.
func encodeList[T any](list []T) datatypes.JSON {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		modelLogger.Warn("failed to encode list column", zap.Error(err))
		return nil
	}
	return datatypes.JSON(b)
}

// decodeDocument parses an optional document column.
func decodeDocument[T any](column string, raw datatypes.JSON) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		modelLogger.Warn("failed to parse document column", zap.String("column", column), zap.Error(err))
		return nil
	}
	return &doc
}

// decodeList parses a list document column.
func decodeList[T any](column string, raw datatypes.JSON) []T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		modelLogger.Warn("failed to parse list column", zap.String("column", column), zap.Error(err))
		return nil
	}
	return list
}
