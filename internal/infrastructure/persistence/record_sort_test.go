package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrder(t *testing.T) {
	tests := []struct {
		name       string
		sortBy     string
		sortOrder  string
		wantColumn string
		wantDesc   bool
	}{
		{"defaults", "", "", "created_at", true},
		{"whitelisted column ascending", "closed_at", "asc", "closed_at", false},
		{"direction is case insensitive", "amount", " ASC ", "amount", false},
		{"explicit desc", "status", "desc", "status", true},
		{"unknown direction sorts descending", "order_id", "sideways", "order_id", true},
		{"unknown column", "buyer_nickname", "asc", "created_at", false},
		{"api field names are not columns", "createdAt", "asc", "created_at", false},
		{"injection attempt", "id; DROP TABLE return_claims", "asc", "created_at", false},
		{"surrounding whitespace", "  updated_at ", "", "updated_at", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := recordOrder(tt.sortBy, tt.sortOrder)

			require.Len(t, order.Columns, 2)
			assert.Equal(t, tt.wantColumn, order.Columns[0].Column.Name)
			assert.Equal(t, tt.wantDesc, order.Columns[0].Desc)
			assert.Equal(t, "id", order.Columns[1].Column.Name)
			assert.False(t, order.Columns[1].Desc)
		})
	}
}
