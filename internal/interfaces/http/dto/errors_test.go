package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/domain/shared"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidJSON, http.StatusBadRequest},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeReconnectRequired, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeSyncInProgress, http.StatusConflict},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{"ERR_SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestErrorCodeHTTPStatus_CoversCatalogue(t *testing.T) {
	for code, status := range ErrorCodeHTTPStatus {
		assert.True(t, strings.HasPrefix(code, "ERR_"), code)
		assert.GreaterOrEqual(t, status, 400, code)
	}
}

// Every typed pipeline error must surface with a mapped, non-500 status.
func TestDomainErrorCodesAreMapped(t *testing.T) {
	errs := []shared.Coded{
		&returns.AuthError{AccountID: "acc-1", Reason: "reconnect_required"},
		&returns.TransientUpstreamError{Op: "claims search", StatusCode: 503, Err: errors.New("unavailable")},
		&returns.NotFoundError{Resource: "sync run", ID: "r-1"},
		&returns.ConflictError{AccountID: "acc-1", Key: returns.NaturalKey{Kind: returns.KindClaim, Value: "c-1"}},
		returns.NewValidationError("accountId", "is required"),
	}

	for _, err := range errs {
		code := NormalizeErrorCode(err.ErrorCode())
		status, ok := ErrorCodeHTTPStatus[code]
		assert.True(t, ok, "code %s is not mapped", code)
		assert.Less(t, status, http.StatusInternalServerError, code)
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{shared.ErrNotFound.Code, ErrCodeNotFound},
		{shared.ErrInvalidInput.Code, ErrCodeInvalidInput},
		{shared.ErrUnauthorized.Code, ErrCodeUnauthorized},
		{shared.ErrInvalidState.Code, ErrCodeConflict},
		{ErrCodeSyncInProgress, ErrCodeSyncInProgress},
		{"CUSTOM_ERROR", "CUSTOM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	before := time.Now()
	resp := NewErrorResponse("NOT_FOUND", "Sync run not found")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Sync run not found", resp.Error.Message)
	assert.Empty(t, resp.Error.RequestID)
	assert.False(t, resp.Error.Timestamp.Before(before))
}

func TestNewErrorResponseWithHelp(t *testing.T) {
	resp := NewErrorResponseWithHelp(ErrCodeReconnectRequired, "credential rejected", "req-1", "reconnect the account")

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeReconnectRequired, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Equal(t, "reconnect the account", resp.Error.Help)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "accountId", Message: "accountId is required"},
		{Field: "mode", Message: "mode must be one of: claims returns both"},
	}

	resp := NewValidationErrorResponse("Request validation failed", "req-789", details)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-789", resp.Error.RequestID)
	assert.Equal(t, details, resp.Error.Details)
}

func TestErrorResponseJSON(t *testing.T) {
	data, err := json.Marshal(NewErrorResponseWithRequestID(ErrCodeSyncInProgress, "sync already running", "req-2"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, false, raw["success"])
	assert.NotContains(t, raw, "data")
	assert.NotContains(t, raw, "meta")
	errObj := raw["error"].(map[string]any)
	assert.Equal(t, ErrCodeSyncInProgress, errObj["code"])
	assert.Equal(t, "req-2", errObj["request_id"])
	assert.NotContains(t, errObj, "help")
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(map[string]string{"runId": "r-1"})

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.Meta)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	tests := []struct {
		total         int64
		pageSize      int
		expectedPages int
		expectedSize  int
	}{
		{100, 10, 10, 10},
		{101, 10, 11, 10},
		{0, 10, 0, 10},
		{9, 10, 1, 10},
		{100, 0, 5, 20},
		{100, -1, 5, 20},
	}

	for _, tt := range tests {
		resp := NewSuccessResponseWithMeta(nil, tt.total, 1, tt.pageSize)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, tt.expectedPages, resp.Meta.TotalPages)
		assert.Equal(t, tt.expectedSize, resp.Meta.PageSize)
		assert.Equal(t, tt.total, resp.Meta.Total)
	}
}

func TestMetaJSONUsesCamelCase(t *testing.T) {
	data, err := json.Marshal(NewSuccessResponseWithMeta([]string{}, 45, 2, 20))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"meta":{"total":45,"page":2,"pageSize":20,"totalPages":3}`)
}

func TestRunSummaryMetaJSON(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeReconnectRequired, "credential rejected", "req-3")
	resp.Meta = &Meta{RunSummary: &RunSummary{RunID: "r-1", RunStatus: "failed", TotalProcessed: 4, TotalCreated: 3}}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	meta := raw["meta"].(map[string]any)
	assert.Equal(t, "r-1", meta["runId"])
	assert.Equal(t, "failed", meta["runStatus"])
	assert.Equal(t, float64(3), meta["totalCreated"])
	assert.NotContains(t, meta, "pageSize")
}
