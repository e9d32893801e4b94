package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/claimsync/internal/domain/returns"
)

// unifyClaim maps a claim and its order onto the unified record. A claim has no
// return shipment, so its tracking fields are filled with NotApplicable.
func unifyClaim(accountID string, c returns.Claim, order *returns.Order, now time.Time) *returns.ReturnClaimRecord {
	rec := &returns.ReturnClaimRecord{
		ID:           uuid.New(),
		AccountID:    accountID,
		Kind:         returns.KindClaim,
		ClaimID:      returns.Ptr(c.ID),
		OrderID:      firstNonEmpty(c.OrderID, orderID(order)),
		CreatedAt:    c.CreatedAt,
		ClosedAt:     c.ClosedAt,
		Status:       c.Status,
		StatusMoney:  returns.Ptr(returns.NotApplicable),
		ResourceType: returns.Ptr(firstNonEmpty(c.Resource, returns.NotApplicable)),
		ReasonID:     returns.StringPtr(c.ReasonID),
		Stage:        returns.StringPtr(c.Stage),
		TrackingInfo: &returns.TrackingInfo{
			ShipmentType: returns.Ptr(returns.NotApplicable),
			StatusMoney:  returns.Ptr(returns.NotApplicable),
		},
		AvailableActions: c.AvailableActions,
		RelatedEntities:  returns.RelatedEntities(c.RelatedEntities),
		SyncedAt:         now,
	}
	if c.ActionDue != nil {
		rec.Deadlines = &returns.Deadlines{ActionDue: c.ActionDue}
	}

	applyOrder(rec, order, "", c.Quantity, c.BuyerID)
	return rec
}

// unifyReturn maps a return and its order onto the unified record. Tracking comes from
// the first return shipment.
func unifyReturn(accountID string, r returns.Return, order *returns.Order, now time.Time) *returns.ReturnClaimRecord {
	rec := &returns.ReturnClaimRecord{
		ID:              uuid.New(),
		AccountID:       accountID,
		Kind:            returns.KindReturn,
		ReturnID:        returns.Ptr(r.ID),
		ParentClaimID:   returns.StringPtr(r.ClaimID),
		OrderID:         firstNonEmpty(r.OrderID, orderID(order)),
		CreatedAt:       r.CreatedAt,
		ClosedAt:        r.ClosedAt,
		Status:          r.Status,
		StatusMoney:     returns.StringPtr(r.StatusMoney),
		ResourceType:    returns.StringPtr(r.ResourceType),
		ReasonID:        returns.StringPtr(r.ReasonID),
		Stage:           returns.StringPtr(r.Subtype),
		RelatedEntities: returns.RelatedEntities(r.RelatedEntities),
		SyncedAt:        now,
	}

	tracking := &returns.TrackingInfo{StatusMoney: returns.StringPtr(r.StatusMoney)}
	if len(r.Shipments) > 0 {
		s := r.Shipments[0]
		tracking.ShipmentID = s.ID
		tracking.Status = returns.StringPtr(s.Status)
		tracking.Substatus = returns.StringPtr(s.Substatus)
		tracking.ShipmentType = returns.StringPtr(s.Type)
		tracking.TrackingNumber = returns.StringPtr(s.TrackingNumber)
		tracking.Destination = returns.StringPtr(s.Destination)
	} else {
		tracking.ShipmentType = returns.Ptr(returns.NotApplicable)
	}
	rec.TrackingInfo = tracking

	if r.ExpiresAt != nil {
		rec.Deadlines = &returns.Deadlines{ReturnDue: r.ExpiresAt}
	}
	if r.ShippingCost != nil || r.ShippingPaidBy != "" {
		rec.ShippingCosts = &returns.ShippingCosts{
			Amount:   r.ShippingCost,
			Currency: r.Currency,
			PaidBy:   returns.StringPtr(r.ShippingPaidBy),
		}
	}

	applyOrder(rec, order, r.Currency, r.Quantity, "")
	if r.RefundAmount != nil || r.RefundedAt != nil {
		if rec.FinancialInfo == nil {
			rec.FinancialInfo = &returns.FinancialInfo{Currency: r.Currency}
		}
		rec.FinancialInfo.RefundAmount = r.RefundAmount
		rec.FinancialInfo.RefundedAt = r.RefundedAt
	}
	return rec
}

// applyOrder fills product, financial, quantity and legacy flat fields from the order.
// Values on the claim or return itself win over the order's.
func applyOrder(rec *returns.ReturnClaimRecord, order *returns.Order, currency string, returnedQty *int, buyerID string) {
	if order == nil {
		rec.BuyerID = buyerID
		return
	}

	rec.BuyerID = firstNonEmpty(buyerID, order.BuyerID)
	rec.BuyerNickname = returns.StringPtr(order.BuyerNickname)
	rec.Currency = firstNonEmpty(currency, order.Currency)

	product := &returns.ProductInfo{Currency: rec.Currency, BuyerID: rec.BuyerID}
	var orderedQty *int
	if len(order.Items) > 0 {
		item := order.Items[0]
		product.ItemID = item.ItemID
		product.VariationID = item.VariationID
		product.Title = returns.StringPtr(item.Title)
		product.SKU = returns.StringPtr(item.SKU)
		product.UnitPrice = returns.Ptr(item.UnitPrice)
		product.Currency = firstNonEmpty(rec.Currency, item.Currency)
		orderedQty = returns.Ptr(item.Quantity)
	}
	product.Quantity = returns.Coalesce(returnedQty, orderedQty)
	rec.ProductInfo = product

	if returnedQty != nil || orderedQty != nil {
		rec.Quantities = &returns.Quantities{Ordered: orderedQty, Returned: returnedQty}
	}

	amount := lineAmount(product)
	if amount == nil && !order.TotalAmount.IsZero() {
		amount = returns.Ptr(order.TotalAmount)
	}
	if amount != nil {
		rec.FinancialInfo = &returns.FinancialInfo{Amount: amount, Currency: product.Currency}
	}

	rec.ProductTitle = product.Title
	rec.SKU = product.SKU
	rec.Quantity = product.Quantity
	rec.Amount = amount
}

// lineAmount is unit price times quantity, when both are known.
func lineAmount(p *returns.ProductInfo) *decimal.Decimal {
	if p.UnitPrice == nil || p.Quantity == nil {
		return nil
	}
	return returns.Ptr(p.UnitPrice.Mul(decimal.NewFromInt(int64(*p.Quantity))))
}

func orderID(order *returns.Order) string {
	if order == nil {
		return ""
	}
	return order.ID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
