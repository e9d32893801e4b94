package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordKind distinguishes records built from claims and from returns.
type RecordKind string

const (
	KindClaim  RecordKind = "claim"
	KindReturn RecordKind = "return"
)

// IsValid checks if the kind is valid
func (k RecordKind) IsValid() bool {
	return k == KindClaim || k == KindReturn
}

// String returns the string representation
func (k RecordKind) String() string {
	return string(k)
}

// NaturalKey is the marketplace's own identifier of a record: a claim id for claims,
// a return id for returns.
type NaturalKey struct {
	Kind  RecordKind
	Value string
}

// Column returns the store column holding this key.
func (k NaturalKey) Column() string {
	if k.Kind == KindReturn {
		return "return_id"
	}
	return "claim_id"
}

// ReturnClaimRecord is one marketplace return or claim, normalised.
//
// Sync-origin fields are overwritten on every sync pass. Enrichment-origin fields
// (BuyerInfo, ItemInfo, Review and the review columns) are only ever patched by the
// enrichment worker.
type ReturnClaimRecord struct {
	ID        uuid.UUID
	AccountID string
	Kind      RecordKind
	ClaimID   *string
	ReturnID  *string
	// ParentClaimID links a return to the claim it belongs to.
	ParentClaimID *string

	OrderID      string
	CreatedAt    time.Time
	ClosedAt     *time.Time
	Status       string
	StatusMoney  *string
	ResourceType *string
	ReasonID     *string
	Stage        *string

	// Flat columns kept for older rows and as the last projection fallback.
	ProductTitle  *string
	SKU           *string
	Quantity      *int
	Amount        *decimal.Decimal
	Currency      string
	BuyerID       string
	BuyerNickname *string

	ProductInfo      *ProductInfo
	FinancialInfo    *FinancialInfo
	TrackingInfo     *TrackingInfo
	Quantities       *Quantities
	ShippingCosts    *ShippingCosts
	Deadlines        *Deadlines
	AvailableActions []AvailableAction
	RelatedEntities  RelatedEntities

	BuyerInfo    *BuyerInfo
	ItemInfo     *ItemInfo
	Review       *Review
	ReviewStatus *string
	ReviewMethod *string
	ReviewStage  *string
	SellerStatus *string
	EnrichedAt   *time.Time

	SyncedAt  time.Time
	UpdatedAt time.Time
}

// Key returns the record's natural key.
func (r *ReturnClaimRecord) Key() NaturalKey {
	if r.Kind == KindReturn && r.ReturnID != nil {
		return NaturalKey{Kind: KindReturn, Value: *r.ReturnID}
	}
	if r.ClaimID != nil {
		return NaturalKey{Kind: KindClaim, Value: *r.ClaimID}
	}
	return NaturalKey{Kind: r.Kind}
}

// Validate checks the identity invariants before a write.
func (r *ReturnClaimRecord) Validate() error {
	if r.AccountID == "" {
		return NewValidationError("accountId", "is required")
	}
	if !r.Kind.IsValid() {
		return NewValidationError("kind", "must be claim or return")
	}
	switch r.Kind {
	case KindClaim:
		if r.ClaimID == nil || *r.ClaimID == "" {
			return NewValidationError("claimId", "is required for claims")
		}
		if r.ReturnID != nil {
			return NewValidationError("returnId", "must be empty for claims")
		}
	case KindReturn:
		if r.ReturnID == nil || *r.ReturnID == "" {
			return NewValidationError("returnId", "is required for returns")
		}
		if r.ClaimID != nil {
			return NewValidationError("claimId", "must be empty for returns")
		}
	}
	return nil
}

// ResolveBuyerID returns the buyer id from the flat column or the order context.
func (r *ReturnClaimRecord) ResolveBuyerID() string {
	if r.BuyerID != "" {
		return r.BuyerID
	}
	if r.ProductInfo != nil {
		return r.ProductInfo.BuyerID
	}
	return ""
}

// ResolveItemID returns the listing id of the returned product.
func (r *ReturnClaimRecord) ResolveItemID() string {
	if r.ProductInfo != nil {
		return r.ProductInfo.ItemID
	}
	return ""
}

// WantsReview reports whether a review sub-resource can be fetched for the record.
func (r *ReturnClaimRecord) WantsReview() bool {
	return r.RelatedEntities.Has(RelatedReviews) && r.ReturnID != nil && *r.ReturnID != ""
}

// NeedsResync reports a record missing fields only the sync orchestrator can fill.
func (r *ReturnClaimRecord) NeedsResync() bool {
	return r.TrackingInfo == nil ||
		r.TrackingInfo.StatusMoney == nil ||
		r.TrackingInfo.ShipmentType == nil ||
		r.ResourceType == nil
}

// NeedsEnrichment reports a record the enrichment worker has not completed.
func (r *ReturnClaimRecord) NeedsEnrichment() bool {
	if r.BuyerInfo == nil {
		return true
	}
	if r.RelatedEntities.Has(RelatedReviews) {
		return r.Review == nil || r.Review.Status == nil
	}
	return false
}

// EnrichmentPatch carries the enrichment-origin fields fetched for one record. Nil
// fields are left untouched in the store.
type EnrichmentPatch struct {
	BuyerInfo  *BuyerInfo
	ItemInfo   *ItemInfo
	Review     *Review
	EnrichedAt time.Time
}

// IsEmpty reports whether the patch carries nothing to write.
func (p EnrichmentPatch) IsEmpty() bool {
	return p.BuyerInfo == nil && p.ItemInfo == nil && p.Review == nil
}

// UpsertOutcome reports what a natural-key upsert did.
type UpsertOutcome int

const (
	UpsertCreated UpsertOutcome = iota + 1
	UpsertUpdated
)
