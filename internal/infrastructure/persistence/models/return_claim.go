package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/erp/claimsync/internal/domain/returns"
)

// ReturnClaimModel is the persistence model for a ReturnClaimRecord.
// Uniqueness of the natural key is enforced by two partial unique indexes created in
// migrations: (account_id, claim_id) and (account_id, return_id).
type ReturnClaimModel struct {
	BaseModel
	AccountID     string             `gorm:"type:varchar(64);not null;index"`
	Kind          returns.RecordKind `gorm:"type:varchar(10);not null"`
	ClaimID       *string            `gorm:"type:varchar(64)"`
	ReturnID      *string            `gorm:"type:varchar(64)"`
	ParentClaimID *string            `gorm:"type:varchar(64)"`

	OrderID      string     `gorm:"type:varchar(64);not null;index"`
	ClosedAt     *time.Time
	Status       string     `gorm:"type:varchar(50);not null;index"`
	StatusMoney  *string    `gorm:"type:varchar(50)"`
	ResourceType *string    `gorm:"type:varchar(50)"`
	ReasonID     *string    `gorm:"type:varchar(50)"`
	Stage        *string    `gorm:"type:varchar(50)"`

	ProductTitle  *string          `gorm:"type:varchar(500)"`
	SKU           *string          `gorm:"column:sku;type:varchar(100)"`
	Quantity      *int             `gorm:"type:integer"`
	Amount        *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Currency      string           `gorm:"type:varchar(10)"`
	BuyerID       string           `gorm:"type:varchar(64)"`
	BuyerNickname *string          `gorm:"type:varchar(200)"`

	ProductInfo      datatypes.JSON
	FinancialInfo    datatypes.JSON
	TrackingInfo     datatypes.JSON
	Quantities       datatypes.JSON
	ShippingCosts    datatypes.JSON
	Deadlines        datatypes.JSON
	AvailableActions datatypes.JSON
	RelatedEntities  datatypes.JSON

	BuyerInfo    datatypes.JSON
	ItemInfo     datatypes.JSON
	Review       datatypes.JSON
	ReviewStatus *string    `gorm:"type:varchar(50);index"`
	ReviewMethod *string    `gorm:"type:varchar(50)"`
	ReviewStage  *string    `gorm:"type:varchar(50)"`
	SellerStatus *string    `gorm:"type:varchar(50)"`
	EnrichedAt   *time.Time

	SyncedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnClaimModel) TableName() string {
	return "return_claims"
}

// SyncColumns are the columns the sync orchestrator owns. They are rewritten on
// every pass.
var SyncColumns = []string{
	"kind", "parent_claim_id", "order_id", "created_at", "closed_at", "status",
	"status_money", "resource_type", "reason_id", "stage",
	"product_title", "sku", "quantity", "amount", "currency", "buyer_id", "buyer_nickname",
	"product_info", "financial_info", "tracking_info", "quantities", "shipping_costs",
	"deadlines", "available_actions", "related_entities",
	"synced_at", "updated_at",
}

// EnrichmentColumns are the columns the enrichment worker owns. They never appear
// in SyncColumns.
var EnrichmentColumns = []string{
	"buyer_info", "item_info", "review",
	"review_status", "review_method", "review_stage", "seller_status",
	"enriched_at",
}

// ToDomain converts the persistence model to a domain record
func (m *ReturnClaimModel) ToDomain() *returns.ReturnClaimRecord {
	return &returns.ReturnClaimRecord{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Kind:          m.Kind,
		ClaimID:       m.ClaimID,
		ReturnID:      m.ReturnID,
		ParentClaimID: m.ParentClaimID,
		OrderID:       m.OrderID,
		CreatedAt:     m.CreatedAt,
		ClosedAt:      m.ClosedAt,
		Status:        m.Status,
		StatusMoney:   m.StatusMoney,
		ResourceType:  m.ResourceType,
		ReasonID:      m.ReasonID,
		Stage:         m.Stage,

		ProductTitle:  m.ProductTitle,
		SKU:           m.SKU,
		Quantity:      m.Quantity,
		Amount:        m.Amount,
		Currency:      m.Currency,
		BuyerID:       m.BuyerID,
		BuyerNickname: m.BuyerNickname,

		ProductInfo:      decodeDocument[returns.ProductInfo]("product_info", m.ProductInfo),
		FinancialInfo:    decodeDocument[returns.FinancialInfo]("financial_info", m.FinancialInfo),
		TrackingInfo:     decodeDocument[returns.TrackingInfo]("tracking_info", m.TrackingInfo),
		Quantities:       decodeDocument[returns.Quantities]("quantities", m.Quantities),
		ShippingCosts:    decodeDocument[returns.ShippingCosts]("shipping_costs", m.ShippingCosts),
		Deadlines:        decodeDocument[returns.Deadlines]("deadlines", m.Deadlines),
		AvailableActions: decodeList[returns.AvailableAction]("available_actions", m.AvailableActions),
		RelatedEntities:  decodeList[string]("related_entities", m.RelatedEntities),

		BuyerInfo:    decodeDocument[returns.BuyerInfo]("buyer_info", m.BuyerInfo),
		ItemInfo:     decodeDocument[returns.ItemInfo]("item_info", m.ItemInfo),
		Review:       decodeDocument[returns.Review]("review", m.Review),
		ReviewStatus: m.ReviewStatus,
		ReviewMethod: m.ReviewMethod,
		ReviewStage:  m.ReviewStage,
		SellerStatus: m.SellerStatus,
		EnrichedAt:   m.EnrichedAt,

		SyncedAt:  m.SyncedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ReturnClaimModelFromDomain creates a persistence model from a domain record
func ReturnClaimModelFromDomain(r *returns.ReturnClaimRecord) *ReturnClaimModel {
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &ReturnClaimModel{
		BaseModel: BaseModel{
			ID:        id,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		AccountID:     r.AccountID,
		Kind:          r.Kind,
		ClaimID:       r.ClaimID,
		ReturnID:      r.ReturnID,
		ParentClaimID: r.ParentClaimID,
		OrderID:       r.OrderID,
		ClosedAt:      r.ClosedAt,
		Status:        r.Status,
		StatusMoney:   r.StatusMoney,
		ResourceType:  r.ResourceType,
		ReasonID:      r.ReasonID,
		Stage:         r.Stage,

		ProductTitle:  r.ProductTitle,
		SKU:           r.SKU,
		Quantity:      r.Quantity,
		Amount:        r.Amount,
		Currency:      r.Currency,
		BuyerID:       r.BuyerID,
		BuyerNickname: r.BuyerNickname,

		ProductInfo:      encodeDocument(r.ProductInfo),
		FinancialInfo:    encodeDocument(r.FinancialInfo),
		TrackingInfo:     encodeDocument(r.TrackingInfo),
		Quantities:       encodeDocument(r.Quantities),
		ShippingCosts:    encodeDocument(r.ShippingCosts),
		Deadlines:        encodeDocument(r.Deadlines),
		AvailableActions: encodeList(r.AvailableActions),
		RelatedEntities:  encodeList(r.RelatedEntities),

		BuyerInfo:    encodeDocument(r.BuyerInfo),
		ItemInfo:     encodeDocument(r.ItemInfo),
		Review:       encodeDocument(r.Review),
		ReviewStatus: r.ReviewStatus,
		ReviewMethod: r.ReviewMethod,
		ReviewStage:  r.ReviewStage,
		SellerStatus: r.SellerStatus,
		EnrichedAt:   r.EnrichedAt,

		SyncedAt: r.SyncedAt,
	}
}

// EnrichmentUpdates builds the column map written for an enrichment patch. Only
// enrichment-owned columns appear in it.
func EnrichmentUpdates(p returns.EnrichmentPatch) map[string]any {
	updates := map[string]any{
		"enriched_at": p.EnrichedAt,
		"updated_at":  p.EnrichedAt,
	}
	if p.BuyerInfo != nil {
		updates["buyer_info"] = encodeDocument(p.BuyerInfo)
	}
	if p.ItemInfo != nil {
		updates["item_info"] = encodeDocument(p.ItemInfo)
	}
	if p.Review != nil {
		updates["review"] = encodeDocument(p.Review)
		updates["review_status"] = p.Review.Status
		updates["review_method"] = p.Review.Method
		updates["review_stage"] = p.Review.Stage
		updates["seller_status"] = p.Review.SellerStatus
	}
	return updates
}

// StatsRowModel is the narrow projection read for stats
type StatsRowModel struct {
	Status        string
	ReviewStatus  *string
	TrackingInfo  datatypes.JSON
	FinancialInfo datatypes.JSON
	Amount        *decimal.Decimal
}

// ToDomain converts the projection to a domain stats row
func (m *StatsRowModel) ToDomain() returns.StatsRow {
	return returns.StatsRow{
		Status:        m.Status,
		ReviewStatus:  m.ReviewStatus,
		TrackingInfo:  decodeDocument[returns.TrackingInfo]("tracking_info", m.TrackingInfo),
		FinancialInfo: decodeDocument[returns.FinancialInfo]("financial_info", m.FinancialInfo),
		Amount:        m.Amount,
	}
}
