package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/erp/claimsync/internal/domain/returns"
)

// maxResponseSize is the maximum allowed response size from the marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ErrMarketplaceRequestFailed wraps non-retryable 4xx answers other than 401 and 404
var ErrMarketplaceRequestFailed = errors.New("marketplace: request failed")

// Endpoint names used for errors and metrics
const (
	OpSearchClaims    = "claims.search"
	OpSearchReturns   = "returns.search"
	OpGetOrder        = "orders.get"
	OpGetUser         = "users.get"
	OpGetItem         = "items.get"
	OpGetReview       = "returns.reviews"
	OpSearchShipments = "shipments.search"
	OpGetShipment     = "shipments.get"
	OpRefreshToken    = "oauth.token"
)

// RequestRecorder observes every upstream call. Implemented by the telemetry package.
type RequestRecorder interface {
	RecordUpstreamRequest(ctx context.Context, op string, statusCode int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstreamRequest(context.Context, string, int, time.Duration) {}

// MarketplaceClient implements returns.Marketplace over the marketplace REST API
type MarketplaceClient struct {
	config     *MarketplaceConfig
	httpClient *http.Client
	recorder   RequestRecorder

	// limiters holds one token bucket per account
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// MarketplaceClientOption configures a MarketplaceClient
type MarketplaceClientOption func(*MarketplaceClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) MarketplaceClientOption {
	return func(m *MarketplaceClient) {
		m.httpClient = c
	}
}

// WithRequestRecorder sets the recorder notified of every upstream call
func WithRequestRecorder(r RequestRecorder) MarketplaceClientOption {
	return func(m *MarketplaceClient) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewMarketplaceClient creates a new client with the given configuration
func NewMarketplaceClient(config *MarketplaceConfig, opts ...MarketplaceClientOption) (*MarketplaceClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &MarketplaceClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		recorder: nopRecorder{},
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Claims and returns
// ---------------------------------------------------------------------------

// SearchClaims returns one page of claims where the seller is the respondent
func (c *MarketplaceClient) SearchClaims(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.Claim, error) {
	q := searchQuery(req)
	q.Set("player_role", "respondent")
	q.Set("player_user_id", sellerID(token, req))

	var resp ClaimSearchResponse
	if err := c.getJSON(ctx, token, OpSearchClaims, "/post-purchase/v1/claims/search", q, "", &resp); err != nil {
		return nil, err
	}

	claims := make([]returns.Claim, 0, len(resp.Data))
	for _, w := range resp.Data {
		claims = append(claims, w.toDomain())
	}
	return claims, nil
}

// SearchReturns returns one page of returns addressed to the seller
func (c *MarketplaceClient) SearchReturns(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.Return, error) {
	q := searchQuery(req)
	q.Set("seller_id", sellerID(token, req))

	var resp ReturnSearchResponse
	if err := c.getJSON(ctx, token, OpSearchReturns, "/post-purchase/v1/returns/search", q, "", &resp); err != nil {
		return nil, err
	}

	items := make([]returns.Return, 0, len(resp.Data))
	for _, w := range resp.Data {
		items = append(items, w.toDomain())
	}
	return items, nil
}

// GetOrder fetches the parent order of a claim or return
func (c *MarketplaceClient) GetOrder(ctx context.Context, token returns.AccessToken, orderID string) (*returns.Order, error) {
	var resp WireOrder
	if err := c.getJSON(ctx, token, OpGetOrder, "/orders/"+url.PathEscape(orderID), nil, orderID, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Enrichment sub-resources
// ---------------------------------------------------------------------------

// GetBuyer fetches a buyer's public profile
func (c *MarketplaceClient) GetBuyer(ctx context.Context, token returns.AccessToken, buyerID string) (*returns.Buyer, error) {
	var resp WireUser
	if err := c.getJSON(ctx, token, OpGetUser, "/users/"+url.PathEscape(buyerID), nil, buyerID, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// GetItem fetches a listing
func (c *MarketplaceClient) GetItem(ctx context.Context, token returns.AccessToken, itemID string) (*returns.Item, error) {
	var resp WireItem
	if err := c.getJSON(ctx, token, OpGetItem, "/items/"+url.PathEscape(itemID), nil, itemID, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// GetReturnReview fetches the seller review of a return. An empty review list is
// reported as *returns.NotFoundError, the same as a 404.
func (c *MarketplaceClient) GetReturnReview(ctx context.Context, token returns.AccessToken, returnID string) (*returns.ReturnReview, error) {
	var resp ReviewResponse
	path := "/post-purchase/v1/returns/" + url.PathEscape(returnID) + "/reviews"
	if err := c.getJSON(ctx, token, OpGetReview, path, nil, returnID, &resp); err != nil {
		return nil, err
	}
	if len(resp.Reviews) == 0 {
		return nil, &returns.NotFoundError{Resource: OpGetReview, ID: returnID}
	}
	return resp.Reviews[0].toDomain(), nil
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// SearchShipments returns one page of the seller's shipments
func (c *MarketplaceClient) SearchShipments(ctx context.Context, token returns.AccessToken, req returns.SearchRequest) ([]returns.ShipmentSummary, error) {
	q := searchQuery(req)
	q.Set("seller_id", sellerID(token, req))

	var resp ShipmentSearchResponse
	if err := c.getJSON(ctx, token, OpSearchShipments, "/shipments/search", q, "", &resp); err != nil {
		return nil, err
	}

	items := make([]returns.ShipmentSummary, 0, len(resp.Results))
	for _, w := range resp.Results {
		items = append(items, w.toDomain())
	}
	return items, nil
}

// GetShipment fetches shipment detail, keeping the raw payload
func (c *MarketplaceClient) GetShipment(ctx context.Context, token returns.AccessToken, shipmentID string) (*returns.ShipmentDetail, error) {
	body, err := c.get(ctx, token, OpGetShipment, "/shipments/"+url.PathEscape(shipmentID), nil, shipmentID)
	if err != nil {
		return nil, err
	}
	var resp WireShipmentDetail
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketplace: failed to parse %s response: %w", OpGetShipment, err)
	}
	return resp.toDomain(body), nil
}

// ---------------------------------------------------------------------------
// OAuth
// ---------------------------------------------------------------------------

// RefreshAccessToken exchanges a refresh token for a new token pair. A rejected
// grant is reported as returns.ErrInvalidGrant.
func (c *MarketplaceClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*returns.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordUpstreamRequest(ctx, OpRefreshToken, 0, time.Since(start))
		return nil, &returns.TransientUpstreamError{Op: OpRefreshToken, Err: err}
	}
	defer resp.Body.Close()
	c.recorder.RecordUpstreamRequest(ctx, OpRefreshToken, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var tokenErr TokenErrorResponse
		_ = json.Unmarshal(body, &tokenErr)
		return nil, fmt.Errorf("%w: %s %s", returns.ErrInvalidGrant, tokenErr.Error, tokenErr.Message)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &returns.TransientUpstreamError{Op: OpRefreshToken, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s HTTP %d", ErrMarketplaceRequestFailed, OpRefreshToken, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("marketplace: failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", returns.ErrInvalidGrant)
	}

	return &returns.TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		SellerID:     token.UserID.String(),
		ExpiresIn:    time.Duration(token.ExpiresIn) * time.Second,
	}, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// limiter returns the token bucket of an account, or nil when limiting is off
func (c *MarketplaceClient) limiter(accountID string) *rate.Limiter {
	if c.config.RequestsPerSecond <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), c.config.Burst)
		c.limiters[accountID] = l
	}
	return l
}

func (c *MarketplaceClient) getJSON(ctx context.Context, token returns.AccessToken, op, path string, query url.Values, resourceID string, out any) error {
	body, err := c.get(ctx, token, op, path, query, resourceID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("marketplace: failed to parse %s response: %w", op, err)
	}
	return nil
}

// get performs an authenticated GET and classifies the answer into the domain taxonomy
func (c *MarketplaceClient) get(ctx context.Context, token returns.AccessToken, op, path string, query url.Values, resourceID string) ([]byte, error) {
	if l := c.limiter(token.AccountID); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.config.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordUpstreamRequest(ctx, op, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &returns.TransientUpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.recorder.RecordUpstreamRequest(ctx, op, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &returns.TransientUpstreamError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if err := classifyStatus(token.AccountID, op, resourceID, resp.StatusCode); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps an HTTP status to the error taxonomy
func classifyStatus(accountID, op, resourceID string, status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return returns.NewTokenRejected(accountID, fmt.Errorf("%s: HTTP 401", op))
	case status == http.StatusNotFound:
		return &returns.NotFoundError{Resource: op, ID: resourceID}
	case status == http.StatusTooManyRequests || status >= 500:
		return &returns.TransientUpstreamError{Op: op, StatusCode: status, Err: errors.New(http.StatusText(status))}
	default:
		return fmt.Errorf("%w: %s HTTP %d", ErrMarketplaceRequestFailed, op, status)
	}
}

func searchQuery(req returns.SearchRequest) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("sort", "date_created:asc")
	if !req.DateFrom.IsZero() {
		q.Set("date_created.from", req.DateFrom.UTC().Format(time.RFC3339))
	}
	if !req.DateTo.IsZero() {
		q.Set("date_created.to", req.DateTo.UTC().Format(time.RFC3339))
	}
	return q
}

func sellerID(token returns.AccessToken, req returns.SearchRequest) string {
	if req.SellerID != "" {
		return req.SellerID
	}
	return token.SellerID
}

// Ensure MarketplaceClient implements returns.Marketplace
var _ returns.Marketplace = (*MarketplaceClient)(nil)
