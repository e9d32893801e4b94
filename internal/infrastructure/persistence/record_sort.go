package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// recordSortColumns whitelists the return_claims columns a page may be sorted by.
var recordSortColumns = map[string]bool{
	"created_at": true,
	"closed_at":  true,
	"updated_at": true,
	"status":     true,
	"order_id":   true,
	"amount":     true,
}

const defaultRecordSortColumn = "created_at"

// recordOrder builds the ORDER BY of a record page. Unknown columns fall back to
// created_at and any direction other than asc sorts descending. id breaks ties so
// pages stay stable.
func recordOrder(sortBy, sortOrder string) clause.OrderBy {
	column := strings.TrimSpace(sortBy)
	if !recordSortColumns[column] {
		column = defaultRecordSortColumn
	}
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: column}, Desc: !strings.EqualFold(strings.TrimSpace(sortOrder), "asc")},
		{Column: clause.Column{Name: "id"}},
	}}
}
