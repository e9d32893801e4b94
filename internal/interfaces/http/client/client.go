// Package client calls the claimsync pipeline API. It implements the
// autoenrich.PipelineClient used by dashboards that trigger passes on demand.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erp/claimsync/internal/application/autoenrich"
	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/interfaces/http/dto"
	"github.com/erp/claimsync/internal/interfaces/http/handler"
)

const (
	// DefaultTimeout covers a synchronous sync run.
	DefaultTimeout = 5 * time.Minute
	// DefaultSubject identifies the caller in service tokens.
	DefaultSubject = "claimsync-client"

	maxResponseSize = 10 * 1024 * 1024
	basePath        = "/api/v1/returns"
)

// TokenSource mints the service token sent with every call.
type TokenSource interface {
	GenerateToken(subject string) (string, error)
}

// APIError is a non-success envelope returned by the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("claimsync: HTTP %d %s: %s (request %s)", e.StatusCode, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("claimsync: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ErrorCode returns the envelope error code.
func (e *APIError) ErrorCode() string { return e.Code }

// Unwrap lets errors.Is match a busy run lock.
func (e *APIError) Unwrap() error {
	if e.Code == dto.ErrCodeSyncInProgress {
		return returns.ErrRunInProgress
	}
	return nil
}

// Client is an HTTP client of the /api/v1/returns endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	subject    string
	enrichSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTokenSource signs requests with service tokens for subject.
func WithTokenSource(tokens TokenSource, subject string) Option {
	return func(cl *Client) {
		cl.tokens = tokens
		if subject != "" {
			cl.subject = subject
		}
	}
}

// WithEnrichLimit sets the batch size Enrich asks for; zero lets the server decide.
func WithEnrichLimit(limit int) Option {
	return func(cl *Client) {
		cl.enrichSize = limit
	}
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("claimsync: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		subject:    DefaultSubject,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sync runs a sync of both record kinds over the server's default window.
func (c *Client) Sync(ctx context.Context, accountID string) error {
	_, err := c.SyncAccount(ctx, handler.SyncRequest{AccountID: accountID, Mode: string(returns.SyncModeBoth)})
	return err
}

// Enrich runs one enrichment batch.
func (c *Client) Enrich(ctx context.Context, accountID string) error {
	_, err := c.EnrichBatch(ctx, handler.EnrichRequest{AccountID: accountID, Limit: c.enrichSize})
	return err
}

// SyncAccount calls POST /sync.
func (c *Client) SyncAccount(ctx context.Context, req handler.SyncRequest) (*handler.SyncRunResponse, error) {
	var out handler.SyncRunResponse
	if err := c.do(ctx, http.MethodPost, "/sync", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun calls GET /sync/runs/:id.
func (c *Client) GetRun(ctx context.Context, id uuid.UUID) (*handler.SyncRunResponse, error) {
	var out handler.SyncRunResponse
	if err := c.do(ctx, http.MethodGet, "/sync/runs/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns calls GET /sync/runs.
func (c *Client) ListRuns(ctx context.Context, accountID string, limit int) ([]handler.SyncRunResponse, error) {
	q := url.Values{"accountId": {accountID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []handler.SyncRunResponse
	if err := c.do(ctx, http.MethodGet, "/sync/runs", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnrichBatch calls POST /enrich.
func (c *Client) EnrichBatch(ctx context.Context, req handler.EnrichRequest) (*returnsapp.EnrichResult, error) {
	var out returnsapp.EnrichResult
	if err := c.do(ctx, http.MethodPost, "/enrich", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query calls POST /query.
func (c *Client) Query(ctx context.Context, req handler.QueryRequest) (*returnsapp.QueryResult, error) {
	var out returnsapp.QueryResult
	if err := c.do(ctx, http.MethodPost, "/query", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shipments calls POST /shipments.
func (c *Client) Shipments(ctx context.Context, req handler.ShipmentsRequest) (*returnsapp.CollectionResult, error) {
	var out returnsapp.CollectionResult
	if err := c.do(ctx, http.MethodPost, "/shipments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + basePath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("claimsync: failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("claimsync: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.GenerateToken(c.subject)
		if err != nil {
			return fmt.Errorf("claimsync: failed to sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("claimsync: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("claimsync: failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: dto.ErrCodeUnknown, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("claimsync: failed to parse response: %w", err)
	}
	if !env.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: dto.ErrCodeUnknown, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.RequestID = env.Error.RequestID
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("claimsync: failed to parse %s data: %w", path, err)
	}
	return nil
}

var _ autoenrich.PipelineClient = (*Client)(nil)

// IsRunInProgress reports whether err is the API's busy run lock answer.
func IsRunInProgress(err error) bool {
	return errors.Is(err, returns.ErrRunInProgress)
}
