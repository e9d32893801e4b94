package returns

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/claimsync/internal/domain/returns"
)

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

// SyncRequest asks for one sync run of an account. Nil dates default to the
// configured window ending now.
type SyncRequest struct {
	AccountID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Mode      returns.SyncMode
	Trigger   returns.RunTrigger
}

// ---------------------------------------------------------------------------
// Enrichment
// ---------------------------------------------------------------------------

// EnrichRequest asks for one enrichment batch.
type EnrichRequest struct {
	AccountID string
	Limit     int
}

// RecordError is the failure of one record in a batch.
type RecordError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// EnrichResult summarises an enrichment batch.
type EnrichResult struct {
	Processed int           `json:"processed"`
	Enriched  int           `json:"enriched"`
	Failed    int           `json:"failed"`
	Errors    []RecordError `json:"errors"`
}

// ---------------------------------------------------------------------------
// Query
// ---------------------------------------------------------------------------

// QueryFilters narrows the records a query returns.
type QueryFilters struct {
	AccountIDs     AccountIDs
	Search         string
	Statuses       []string
	ReturnStatuses []string
	Kinds          []returns.RecordKind
	DateFrom       *time.Time
	DateTo         *time.Time
}

// QueryPagination selects a page and its sort.
type QueryPagination struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// QueryRequest is one projection query.
type QueryRequest struct {
	Filters      QueryFilters
	Pagination   QueryPagination
	IncludeStats bool
}

// PaginationInfo describes the returned page.
type PaginationInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// QueryStats aggregates the filtered records by derived status.
type QueryStats struct {
	Total       int             `json:"total"`
	ByStatus    map[string]int  `json:"byStatus"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// QueryResult is a page of projected records.
type QueryResult struct {
	Data       []ReturnClaimView `json:"data"`
	Pagination PaginationInfo    `json:"pagination"`
	Stats      *QueryStats       `json:"stats"`
}

// ReturnClaimView is the flat projection of a record.
type ReturnClaimView struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     string     `json:"accountId"`
	Kind          string     `json:"kind"`
	ClaimID       *string    `json:"claimId"`
	ReturnID      *string    `json:"returnId"`
	ParentClaimID *string    `json:"parentClaimId"`
	OrderID       string     `json:"orderId"`
	CreatedAt     time.Time  `json:"createdAt"`
	ClosedAt      *time.Time `json:"closedAt"`
	Status        string     `json:"status"`
	ReturnStatus  string     `json:"returnStatus"`
	StatusMoney   *string    `json:"statusMoney"`
	ResourceType  *string    `json:"resourceType"`
	ReasonID      *string    `json:"reasonId"`
	Stage         *string    `json:"stage"`

	ProductTitle *string          `json:"productTitle"`
	SKU          *string          `json:"sku"`
	ItemID       *string          `json:"itemId"`
	Quantity     *int             `json:"quantity"`
	Amount       *decimal.Decimal `json:"amount"`
	RefundAmount *decimal.Decimal `json:"refundAmount"`
	Currency     *string          `json:"currency"`
	Thumbnail    *string          `json:"thumbnail"`
	Permalink    *string          `json:"permalink"`

	BuyerID       *string `json:"buyerId"`
	BuyerNickname *string `json:"buyerNickname"`
	BuyerName     *string `json:"buyerName"`

	ShipmentStatus *string `json:"shipmentStatus"`
	ShipmentType   *string `json:"shipmentType"`
	TrackingNumber *string `json:"trackingNumber"`
	Destination    *string `json:"destination"`

	ReviewStatus       *string `json:"reviewStatus"`
	ReviewMethod       *string `json:"reviewMethod"`
	ReviewStage        *string `json:"reviewStage"`
	SellerStatus       *string `json:"sellerStatus"`
	ProductCondition   *string `json:"productCondition"`
	ProductDestination *string `json:"productDestination"`

	ActionDue        *time.Time                `json:"actionDue"`
	AvailableActions []returns.AvailableAction `json:"availableActions"`
	RelatedEntities  []string                  `json:"relatedEntities"`

	EnrichedAt      *time.Time `json:"enrichedAt"`
	NeedsResync     bool       `json:"needsResync"`
	NeedsEnrichment bool       `json:"needsEnrichment"`
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// CollectionRequest asks for the shipments of accounts in a creation window.
type CollectionRequest struct {
	AccountIDs   AccountIDs
	Window       returns.TimeWindow
	ForceRefresh bool
	Statuses     []string
}

// Shipment sources.
const (
	SourceCache = "cache"
	SourceAPI   = "api"
)

// ShipmentView is a shipment as returned to callers.
type ShipmentView struct {
	ExternalID     string          `json:"externalId"`
	AccountID      string          `json:"accountId"`
	OrderID        string          `json:"orderId"`
	Status         string          `json:"status"`
	Substatus      *string         `json:"substatus"`
	Mode           *string         `json:"mode"`
	LogisticType   *string         `json:"logisticType"`
	TrackingNumber *string         `json:"trackingNumber"`
	Carrier        *string         `json:"carrier"`
	ReceiverCity   *string         `json:"receiverCity"`
	ReceiverState  *string         `json:"receiverState"`
	DateCreated    time.Time       `json:"dateCreated"`
	LastUpdated    *time.Time      `json:"lastUpdated"`
	Detail         json.RawMessage `json:"detail,omitempty"`
	LastSyncedAt   time.Time       `json:"lastSyncedAt"`
}

// CollectionResult is the shipments response.
type CollectionResult struct {
	Data   []ShipmentView `json:"data"`
	Total  int            `json:"total"`
	Source string         `json:"source"`
}

func toShipmentViews(items []returns.Shipment) []ShipmentView {
	views := make([]ShipmentView, len(items))
	for i, s := range items {
		views[i] = ShipmentView{
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
			Detail:         s.Detail,
			LastSyncedAt:   s.LastSyncedAt,
		}
	}
	return views
}
