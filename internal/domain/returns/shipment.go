package returns

import (
	"encoding/json"
	"slices"
	"time"
)

// Shipment is a cached item of the marketplace shipments collection.
// LastSyncedAt is a freshness gate only.
type Shipment struct {
	ExternalID     string
	AccountID      string
	OrderID        string
	Status         string
	Substatus      *string
	Mode           *string
	LogisticType   *string
	TrackingNumber *string
	Carrier        *string
	ReceiverCity   *string
	ReceiverState  *string
	DateCreated    time.Time
	LastUpdated    *time.Time
	Detail         json.RawMessage
	LastSyncedAt   time.Time
}

// TimeWindow is a closed creation-date interval.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Validate checks that the window is well formed.
func (w TimeWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return NewValidationError("window", "from and to are required")
	}
	if w.From.After(w.To) {
		return NewValidationError("window", "from must not be after to")
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// ShipmentFilter is the predicate shared by the cached and live read paths.
type ShipmentFilter struct {
	AccountIDs []string
	Window     TimeWindow
	Statuses   []string
	// FreshSince, when set, keeps only items synced at or after it.
	FreshSince *time.Time
}

// Matches applies the filter to an in-memory shipment.
func (f ShipmentFilter) Matches(s Shipment) bool {
	if len(f.AccountIDs) > 0 && !slices.Contains(f.AccountIDs, s.AccountID) {
		return false
	}
	if !f.Window.Contains(s.DateCreated) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
		return false
	}
	if f.FreshSince != nil && s.LastSyncedAt.Before(*f.FreshSince) {
		return false
	}
	return true
}
