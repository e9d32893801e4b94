package returns

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// NotApplicable fills sync-origin tracking fields that do not exist for a record
// (a claim without a return shipment), so a fully synced record is never mistaken
// for a partially synced one.
const NotApplicable = "not_applicable"

// RelatedReviews is the related-entity name announcing a fetchable review.
const RelatedReviews = "reviews"

// ProductInfo is the sync-origin product snapshot taken from the claim/return and its order.
type ProductInfo struct {
	ItemID      string           `json:"itemId,omitempty"`
	VariationID string           `json:"variationId,omitempty"`
	Title       *string          `json:"title,omitempty"`
	SKU         *string          `json:"sku,omitempty"`
	Quantity    *int             `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	BuyerID     string           `json:"buyerId,omitempty"`
}

// ItemInfo is the enrichment-origin listing detail.
type ItemInfo struct {
	Title      *string          `json:"title,omitempty"`
	Permalink  *string          `json:"permalink,omitempty"`
	Thumbnail  *string          `json:"thumbnail,omitempty"`
	CategoryID *string          `json:"categoryId,omitempty"`
	Condition  *string          `json:"condition,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Currency   string           `json:"currency,omitempty"`
}

// BuyerInfo is the enrichment-origin buyer profile. Unavailable marks a buyer the
// marketplace no longer serves so the record leaves the enrichment queue.
type BuyerInfo struct {
	ID          string  `json:"id,omitempty"`
	Nickname    *string `json:"nickname,omitempty"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Reputation  *string `json:"reputation,omitempty"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

// FinancialInfo holds amounts charged and refunded.
type FinancialInfo struct {
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	RefundAmount *decimal.Decimal `json:"refundAmount,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	RefundedAt   *time.Time       `json:"refundedAt,omitempty"`
}

// TrackingInfo describes the return shipment.
type TrackingInfo struct {
	ShipmentID     string  `json:"shipmentId,omitempty"`
	Status         *string `json:"status,omitempty"`
	Substatus      *string `json:"substatus,omitempty"`
	ShipmentType   *string `json:"shipmentType,omitempty"`
	StatusMoney    *string `json:"statusMoney,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Destination    *string `json:"destination,omitempty"`
}

// Quantities compares what was bought with what is being returned.
type Quantities struct {
	Ordered  *int `json:"ordered,omitempty"`
	Returned *int `json:"returned,omitempty"`
}

// ShippingCosts is the cost of the return shipment and who pays it.
type ShippingCosts struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	PaidBy   *string          `json:"paidBy,omitempty"`
}

// Deadlines collects the due dates the marketplace attaches to a claim or return.
type Deadlines struct {
	ActionDue *time.Time `json:"actionDue,omitempty"`
	ReturnDue *time.Time `json:"returnDue,omitempty"`
	ReviewDue *time.Time `json:"reviewDue,omitempty"`
}

// AvailableAction is an action the seller may (or must) take.
type AvailableAction struct {
	Action    string     `json:"action"`
	Mandatory bool       `json:"mandatory"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
}

// Review is the enrichment-origin result of the seller's review of a returned item.
type Review struct {
	Method             *string `json:"method,omitempty"`
	Stage              *string `json:"stage,omitempty"`
	Status             *string `json:"status,omitempty"`
	ProductCondition   *string `json:"productCondition,omitempty"`
	ProductDestination *string `json:"productDestination,omitempty"`
	SellerStatus       *string `json:"sellerStatus,omitempty"`
	Benefited          *string `json:"benefited,omitempty"`
	ReasonID           *string `json:"reasonId,omitempty"`
	MissingQuantity    *int    `json:"missingQuantity,omitempty"`
}

// RelatedEntities is the set of sub-resources the marketplace says can be fetched.
type RelatedEntities []string

// Has reports whether name is present.
func (r RelatedEntities) Has(name string) bool {
	return slices.Contains(r, name)
}

// Coalesce returns the first non-nil value.
func Coalesce[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
