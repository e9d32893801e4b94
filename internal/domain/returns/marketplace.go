package returns

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SearchRequest is one page request against a marketplace search endpoint.
type SearchRequest struct {
	SellerID string
	DateFrom time.Time
	DateTo   time.Time
	Offset   int
	Limit    int
}

// Claim is a marketplace claim as returned by the claims search.
type Claim struct {
	ID               string
	OrderID          string
	Resource         string
	Type             string
	Stage            string
	Status           string
	ReasonID         string
	BuyerID          string
	CreatedAt        time.Time
	ClosedAt         *time.Time
	Quantity         *int
	RelatedEntities  []string
	AvailableActions []AvailableAction
	ActionDue        *time.Time
}

// ReturnShipment is the logistics leg of a return.
type ReturnShipment struct {
	ID             string
	Status         string
	Substatus      string
	Type           string
	TrackingNumber string
	Destination    string
}

// Return is a marketplace return as returned by the returns search.
type Return struct {
	ID              string
	ClaimID         string
	OrderID         string
	Status          string
	StatusMoney     string
	Subtype         string
	ResourceType    string
	ReasonID        string
	CreatedAt       time.Time
	ClosedAt        *time.Time
	RefundedAt      *time.Time
	ExpiresAt       *time.Time
	Quantity        *int
	Shipments       []ReturnShipment
	RelatedEntities []string
	ShippingCost    *decimal.Decimal
	ShippingPaidBy  string
	RefundAmount    *decimal.Decimal
	Currency        string
}

// OrderItem is a line of an order.
type OrderItem struct {
	ItemID      string
	VariationID string
	Title       string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	Currency    string
}

// Order is the parent order of a claim or return.
type Order struct {
	ID            string
	Status        string
	BuyerID       string
	BuyerNickname string
	TotalAmount   decimal.Decimal
	Currency      string
	DateCreated   time.Time
	Items         []OrderItem
}

// Buyer is the marketplace user profile of a buyer.
type Buyer struct {
	ID         string
	Nickname   string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Reputation string
}

// Item is a marketplace listing.
type Item struct {
	ID         string
	Title      string
	Permalink  string
	Thumbnail  string
	CategoryID string
	Condition  string
	Price      decimal.Decimal
	Currency   string
}

// ReturnReview is the seller-side review of a returned product.
type ReturnReview struct {
	Method             string
	Stage              string
	Status             string
	ProductCondition   string
	ProductDestination string
	SellerStatus       string
	Benefited          string
	ReasonID           string
	MissingQuantity    *int
}

// ShipmentSummary is one item of the shipments search.
type ShipmentSummary struct {
	ID             string
	OrderID        string
	Status         string
	Substatus      string
	Mode           string
	LogisticType   string
	TrackingNumber string
	DateCreated    time.Time
	LastUpdated    *time.Time
}

// ShipmentDetail is the shipment-detail sub-resource.
type ShipmentDetail struct {
	ID             string
	Carrier        string
	TrackingNumber string
	ReceiverCity   string
	ReceiverState  string
	Raw            json.RawMessage
}

// Marketplace is the outbound port to the marketplace API. Every call is authenticated
// with the given token. A 401 is reported as *AuthError, a 404 as *NotFoundError and a
// network error, 429 or 5xx as *TransientUpstreamError.
type Marketplace interface {
	SearchClaims(ctx context.Context, token AccessToken, req SearchRequest) ([]Claim, error)
	SearchReturns(ctx context.Context, token AccessToken, req SearchRequest) ([]Return, error)
	GetOrder(ctx context.Context, token AccessToken, orderID string) (*Order, error)
	GetBuyer(ctx context.Context, token AccessToken, buyerID string) (*Buyer, error)
	GetItem(ctx context.Context, token AccessToken, itemID string) (*Item, error)
	GetReturnReview(ctx context.Context, token AccessToken, returnID string) (*ReturnReview, error)
	SearchShipments(ctx context.Context, token AccessToken, req SearchRequest) ([]ShipmentSummary, error)
	GetShipment(ctx context.Context, token AccessToken, shipmentID string) (*ShipmentDetail, error)
}
