package ecommerce

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/claimsync/internal/domain/returns"
)

// flexID accepts identifiers encoded either as JSON numbers or strings.
type flexID string

// UnmarshalJSON implements json.Unmarshaler
func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(b)
	return nil
}

func (f flexID) String() string { return string(f) }

// Paging is the paging block of every search response
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

// ClaimSearchResponse is the claims search payload
type ClaimSearchResponse struct {
	Paging Paging      `json:"paging"`
	Data   []WireClaim `json:"data"`
}

// WireAction is an available action of a claim player
type WireAction struct {
	Action    string     `json:"action"`
	Mandatory bool       `json:"mandatory"`
	DueDate   *time.Time `json:"due_date"`
}

// WirePlayer is a participant of a claim
type WirePlayer struct {
	Role             string       `json:"role"`
	Type             string       `json:"type"`
	UserID           flexID       `json:"user_id"`
	AvailableActions []WireAction `json:"available_actions"`
}

// WireClaim is a claim as served by the marketplace
type WireClaim struct {
	ID              flexID       `json:"id"`
	ResourceID      flexID       `json:"resource_id"`
	Resource        string       `json:"resource"`
	Type            string       `json:"type"`
	Stage           string       `json:"stage"`
	Status          string       `json:"status"`
	ReasonID        string       `json:"reason_id"`
	DateCreated     time.Time    `json:"date_created"`
	LastUpdated     *time.Time   `json:"last_updated"`
	ClaimedQuantity *int         `json:"claimed_quantity"`
	Players         []WirePlayer `json:"players"`
	RelatedEntities []string     `json:"related_entities"`
	Resolution      *struct {
		DateCreated *time.Time `json:"date_created"`
	} `json:"resolution"`
}

func (w WireClaim) toDomain() returns.Claim {
	c := returns.Claim{
		ID:              w.ID.String(),
		OrderID:         w.ResourceID.String(),
		Resource:        w.Resource,
		Type:            w.Type,
		Stage:           w.Stage,
		Status:          w.Status,
		ReasonID:        w.ReasonID,
		CreatedAt:       w.DateCreated,
		Quantity:        w.ClaimedQuantity,
		RelatedEntities: w.RelatedEntities,
	}
	if w.Resolution != nil {
		c.ClosedAt = w.Resolution.DateCreated
	}
	for _, p := range w.Players {
		switch p.Role {
		case "complainant":
			c.BuyerID = p.UserID.String()
		case "respondent":
			for _, a := range p.AvailableActions {
				c.AvailableActions = append(c.AvailableActions, returns.AvailableAction{
					Action:    a.Action,
					Mandatory: a.Mandatory,
					DueDate:   a.DueDate,
				})
				if a.Mandatory && a.DueDate != nil && (c.ActionDue == nil || a.DueDate.Before(*c.ActionDue)) {
					c.ActionDue = a.DueDate
				}
			}
		}
	}
	return c
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// ReturnSearchResponse is the returns search payload
type ReturnSearchResponse struct {
	Paging Paging       `json:"paging"`
	Data   []WireReturn `json:"data"`
}

// WireReturnShipment is a logistics leg of a return
type WireReturnShipment struct {
	ShipmentID     flexID `json:"shipment_id"`
	Status         string `json:"status"`
	Substatus      string `json:"substatus"`
	Type           string `json:"type"`
	TrackingNumber string `json:"tracking_number"`
	Destination    struct {
		Name string `json:"name"`
	} `json:"destination"`
}

// WireReturnOrder is the order line a return refers to
type WireReturnOrder struct {
	OrderID        flexID `json:"order_id"`
	ItemID         string `json:"item_id"`
	ReturnQuantity *int   `json:"return_quantity"`
}

// WireReturn is a return as served by the marketplace
type WireReturn struct {
	ID              flexID               `json:"id"`
	ClaimID         flexID               `json:"claim_id"`
	ResourceID      flexID               `json:"resource_id"`
	Status          string               `json:"status"`
	StatusMoney     string               `json:"status_money"`
	Subtype         string               `json:"subtype"`
	ResourceType    string               `json:"resource_type"`
	ReasonID        string               `json:"reason_id"`
	DateCreated     time.Time            `json:"date_created"`
	DateClosed      *time.Time           `json:"date_closed"`
	RefundAt        *time.Time           `json:"refund_at"`
	ExpirationDate  *time.Time           `json:"expiration_date"`
	Shipments       []WireReturnShipment `json:"shipments"`
	Orders          []WireReturnOrder    `json:"orders"`
	RelatedEntities []string             `json:"related_entities"`
	Costs           *struct {
		Amount     *decimal.Decimal `json:"amount"`
		CurrencyID string           `json:"currency_id"`
		PaidBy     string           `json:"paid_by"`
	} `json:"costs"`
	Refund *struct {
		Amount     *decimal.Decimal `json:"amount"`
		CurrencyID string           `json:"currency_id"`
	} `json:"refund"`
}

func (w WireReturn) toDomain() returns.Return {
	r := returns.Return{
		ID:              w.ID.String(),
		ClaimID:         w.ClaimID.String(),
		OrderID:         w.ResourceID.String(),
		Status:          w.Status,
		StatusMoney:     w.StatusMoney,
		Subtype:         w.Subtype,
		ResourceType:    w.ResourceType,
		ReasonID:        w.ReasonID,
		CreatedAt:       w.DateCreated,
		ClosedAt:        w.DateClosed,
		RefundedAt:      w.RefundAt,
		ExpiresAt:       w.ExpirationDate,
		RelatedEntities: w.RelatedEntities,
	}
	if len(w.Orders) > 0 {
		if r.OrderID == "" {
			r.OrderID = w.Orders[0].OrderID.String()
		}
		r.Quantity = w.Orders[0].ReturnQuantity
	}
	for _, s := range w.Shipments {
		r.Shipments = append(r.Shipments, returns.ReturnShipment{
			ID:             s.ShipmentID.String(),
			Status:         s.Status,
			Substatus:      s.Substatus,
			Type:           s.Type,
			TrackingNumber: s.TrackingNumber,
			Destination:    s.Destination.Name,
		})
	}
	if w.Costs != nil {
		r.ShippingCost = w.Costs.Amount
		r.ShippingPaidBy = w.Costs.PaidBy
		r.Currency = w.Costs.CurrencyID
	}
	if w.Refund != nil {
		r.RefundAmount = w.Refund.Amount
		if w.Refund.CurrencyID != "" {
			r.Currency = w.Refund.CurrencyID
		}
	}
	return r
}

// ---------------------------------------------------------------------------
// Orders, users, items, reviews
// ---------------------------------------------------------------------------

// WireOrder is the order detail payload
type WireOrder struct {
	ID          flexID          `json:"id"`
	Status      string          `json:"status"`
	DateCreated time.Time       `json:"date_created"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CurrencyID  string          `json:"currency_id"`
	Buyer       struct {
		ID       flexID `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"buyer"`
	OrderItems []struct {
		Item struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			SellerSKU   string `json:"seller_sku"`
			VariationID flexID `json:"variation_id"`
		} `json:"item"`
		Quantity   int             `json:"quantity"`
		UnitPrice  decimal.Decimal `json:"unit_price"`
		CurrencyID string          `json:"currency_id"`
	} `json:"order_items"`
}

func (w WireOrder) toDomain() *returns.Order {
	o := &returns.Order{
		ID:            w.ID.String(),
		Status:        w.Status,
		BuyerID:       w.Buyer.ID.String(),
		BuyerNickname: w.Buyer.Nickname,
		TotalAmount:   w.TotalAmount,
		Currency:      w.CurrencyID,
		DateCreated:   w.DateCreated,
	}
	for _, li := range w.OrderItems {
		o.Items = append(o.Items, returns.OrderItem{
			ItemID:      li.Item.ID,
			VariationID: li.Item.VariationID.String(),
			Title:       li.Item.Title,
			SKU:         li.Item.SellerSKU,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Currency:    li.CurrencyID,
		})
	}
	return o
}

// WireUser is the public user profile payload
type WireUser struct {
	ID        flexID `json:"id"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     *struct {
		AreaCode string `json:"area_code"`
		Number   string `json:"number"`
	} `json:"phone"`
	BuyerReputation *struct {
		LevelID string `json:"level_id"`
	} `json:"buyer_reputation"`
}

func (w WireUser) toDomain() *returns.Buyer {
	b := &returns.Buyer{
		ID:        w.ID.String(),
		Nickname:  w.Nickname,
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Email:     w.Email,
	}
	if w.Phone != nil && w.Phone.Number != "" {
		b.Phone = w.Phone.Number
		if w.Phone.AreaCode != "" {
			b.Phone = w.Phone.AreaCode + " " + w.Phone.Number
		}
	}
	if w.BuyerReputation != nil {
		b.Reputation = w.BuyerReputation.LevelID
	}
	return b
}

// WireItem is the listing payload
type WireItem struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Permalink  string          `json:"permalink"`
	Thumbnail  string          `json:"thumbnail"`
	CategoryID string          `json:"category_id"`
	Condition  string          `json:"condition"`
	Price      decimal.Decimal `json:"price"`
	CurrencyID string          `json:"currency_id"`
}

func (w WireItem) toDomain() *returns.Item {
	return &returns.Item{
		ID:         w.ID,
		Title:      w.Title,
		Permalink:  w.Permalink,
		Thumbnail:  w.Thumbnail,
		CategoryID: w.CategoryID,
		Condition:  w.Condition,
		Price:      w.Price,
		Currency:   w.CurrencyID,
	}
}

// ReviewResponse is the return reviews payload
type ReviewResponse struct {
	Reviews []WireReview `json:"reviews"`
}

// WireReview is one review of a returned product
type WireReview struct {
	Method             string `json:"method"`
	Stage              string `json:"stage"`
	Status             string `json:"status"`
	ProductCondition   string `json:"product_condition"`
	ProductDestination string `json:"product_destination"`
	SellerStatus       string `json:"seller_status"`
	Benefited          string `json:"benefited"`
	ReasonID           string `json:"reason_id"`
	MissingQuantity    *int   `json:"missing_quantity"`
}

func (w WireReview) toDomain() *returns.ReturnReview {
	return &returns.ReturnReview{
		Method:             w.Method,
		Stage:              w.Stage,
		Status:             w.Status,
		ProductCondition:   w.ProductCondition,
		ProductDestination: w.ProductDestination,
		SellerStatus:       w.SellerStatus,
		Benefited:          w.Benefited,
		ReasonID:           w.ReasonID,
		MissingQuantity:    w.MissingQuantity,
	}
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// ShipmentSearchResponse is the shipments search payload
type ShipmentSearchResponse struct {
	Paging  Paging         `json:"paging"`
	Results []WireShipment `json:"results"`
}

// WireShipment is a shipment search result
type WireShipment struct {
	ID             flexID     `json:"id"`
	OrderID        flexID     `json:"order_id"`
	Status         string     `json:"status"`
	Substatus      string     `json:"substatus"`
	Mode           string     `json:"mode"`
	LogisticType   string     `json:"logistic_type"`
	TrackingNumber string     `json:"tracking_number"`
	DateCreated    time.Time  `json:"date_created"`
	LastUpdated    *time.Time `json:"last_updated"`
}

func (w WireShipment) toDomain() returns.ShipmentSummary {
	return returns.ShipmentSummary{
		ID:             w.ID.String(),
		OrderID:        w.OrderID.String(),
		Status:         w.Status,
		Substatus:      w.Substatus,
		Mode:           w.Mode,
		LogisticType:   w.LogisticType,
		TrackingNumber: w.TrackingNumber,
		DateCreated:    w.DateCreated,
		LastUpdated:    w.LastUpdated,
	}
}

// WireShipmentDetail is the shipment detail payload
type WireShipmentDetail struct {
	ID             flexID `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingMethod string `json:"tracking_method"`
	Receiver       *struct {
		City struct {
			Name string `json:"name"`
		} `json:"city"`
		State struct {
			Name string `json:"name"`
		} `json:"state"`
	} `json:"receiver_address"`
}

func (w WireShipmentDetail) toDomain(raw []byte) *returns.ShipmentDetail {
	d := &returns.ShipmentDetail{
		ID:             w.ID.String(),
		Carrier:        w.TrackingMethod,
		TrackingNumber: w.TrackingNumber,
		Raw:            json.RawMessage(raw),
	}
	if w.Receiver != nil {
		d.ReceiverCity = w.Receiver.City.Name
		d.ReceiverState = w.Receiver.State.Name
	}
	return d
}

// ---------------------------------------------------------------------------
// OAuth
// ---------------------------------------------------------------------------

// TokenResponse is the OAuth token endpoint payload
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       flexID `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// TokenErrorResponse is the OAuth error payload
type TokenErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
