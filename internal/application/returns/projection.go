package returns

import (
	"strings"

	"github.com/erp/claimsync/internal/domain/returns"
)

// ProjectRecord flattens a record into its view. Each document-sourced value falls
// back from the enrichment document to the sync document to the flat column, so a
// partially synced or enriched record still renders.
func ProjectRecord(r *returns.ReturnClaimRecord) ReturnClaimView {
	var (
		product  = r.ProductInfo
		item     = r.ItemInfo
		buyer    = r.BuyerInfo
		tracking = r.TrackingInfo
		review   = r.Review
		finance  = r.FinancialInfo
	)
	if product == nil {
		product = &returns.ProductInfo{}
	}
	if item == nil {
		item = &returns.ItemInfo{}
	}
	if buyer == nil {
		buyer = &returns.BuyerInfo{}
	}
	if tracking == nil {
		tracking = &returns.TrackingInfo{}
	}
	if review == nil {
		review = &returns.Review{}
	}
	if finance == nil {
		finance = &returns.FinancialInfo{}
	}

	view := ReturnClaimView{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Kind:          r.Kind.String(),
		ClaimID:       r.ClaimID,
		ReturnID:      r.ReturnID,
		ParentClaimID: r.ParentClaimID,
		OrderID:       r.OrderID,
		CreatedAt:     r.CreatedAt,
		ClosedAt:      r.ClosedAt,
		Status:        r.Status,
		ReturnStatus:  returns.DerivedStatus(returns.Coalesce(review.Status, r.ReviewStatus), r.TrackingInfo, r.Status),
		StatusMoney:   applicable(returns.Coalesce(tracking.StatusMoney, r.StatusMoney)),
		ResourceType:  applicable(r.ResourceType),
		ReasonID:      returns.Coalesce(review.ReasonID, r.ReasonID),
		Stage:         r.Stage,

		ProductTitle: returns.Coalesce(item.Title, product.Title, r.ProductTitle),
		SKU:          returns.Coalesce(product.SKU, r.SKU),
		ItemID:       returns.StringPtr(product.ItemID),
		Quantity:     returns.Coalesce(product.Quantity, r.Quantity),
		Amount:       returns.Coalesce(finance.Amount, lineAmount(product), r.Amount),
		RefundAmount: finance.RefundAmount,
		Currency:     returns.Coalesce(returns.StringPtr(finance.Currency), returns.StringPtr(product.Currency), returns.StringPtr(r.Currency)),
		Thumbnail:    item.Thumbnail,
		Permalink:    item.Permalink,

		BuyerID:       returns.Coalesce(returns.StringPtr(buyer.ID), returns.StringPtr(r.ResolveBuyerID())),
		BuyerNickname: returns.Coalesce(buyer.Nickname, r.BuyerNickname),
		BuyerName:     fullName(buyer.FirstName, buyer.LastName),

		ShipmentStatus: applicable(tracking.Status),
		ShipmentType:   applicable(tracking.ShipmentType),
		TrackingNumber: tracking.TrackingNumber,
		Destination:    tracking.Destination,

		ReviewStatus:       returns.Coalesce(review.Status, r.ReviewStatus),
		ReviewMethod:       returns.Coalesce(review.Method, r.ReviewMethod),
		ReviewStage:        returns.Coalesce(review.Stage, r.ReviewStage),
		SellerStatus:       returns.Coalesce(review.SellerStatus, r.SellerStatus),
		ProductCondition:   review.ProductCondition,
		ProductDestination: review.ProductDestination,

		AvailableActions: r.AvailableActions,
		RelatedEntities:  r.RelatedEntities,

		EnrichedAt:      r.EnrichedAt,
		NeedsResync:     r.NeedsResync(),
		NeedsEnrichment: r.NeedsEnrichment(),
	}
	if view.AvailableActions == nil {
		view.AvailableActions = []returns.AvailableAction{}
	}
	if view.RelatedEntities == nil {
		view.RelatedEntities = []string{}
	}
	if r.Deadlines != nil {
		view.ActionDue = returns.Coalesce(r.Deadlines.ActionDue, r.Deadlines.ReturnDue)
	}
	if view.Amount == nil && item.Price != nil {
		view.Amount = lineAmount(&returns.ProductInfo{UnitPrice: item.Price, Quantity: view.Quantity})
	}
	return view
}

// applicable hides the NotApplicable placeholder from callers.
func applicable(v *string) *string {
	if v == nil || *v == returns.NotApplicable {
		return nil
	}
	return v
}

func fullName(first, last *string) *string {
	var parts []string
	for _, p := range []*string{first, last} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return returns.StringPtr(strings.Join(parts, " "))
}

