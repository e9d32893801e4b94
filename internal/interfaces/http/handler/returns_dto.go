package handler

import (
	"time"

	"github.com/google/uuid"

	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/interfaces/http/dto"
)

// SyncRequest is the body of POST /sync. An empty mode syncs both kinds.
type SyncRequest struct {
	AccountID string     `json:"accountId" binding:"required"`
	DateFrom  *time.Time `json:"dateFrom"`
	DateTo    *time.Time `json:"dateTo"`
	Mode      string     `json:"mode" binding:"omitempty,oneof=claims returns both"`
}

func (r SyncRequest) toApp() returnsapp.SyncRequest {
	mode := returns.SyncMode(r.Mode)
	if mode == "" {
		mode = returns.SyncModeBoth
	}
	return returnsapp.SyncRequest{
		AccountID: r.AccountID,
		DateFrom:  r.DateFrom,
		DateTo:    r.DateTo,
		Mode:      mode,
		Trigger:   returns.TriggerAPI,
	}
}

// SyncRunResponse is a sync run as returned by the sync endpoints.
type SyncRunResponse struct {
	RunID           uuid.UUID  `json:"runId"`
	AccountID       string     `json:"accountId"`
	Mode            string     `json:"mode"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	DateFrom        time.Time  `json:"dateFrom"`
	DateTo          time.Time  `json:"dateTo"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
	TotalProcessed  int        `json:"totalProcessed"`
	TotalCreated    int        `json:"totalCreated"`
	TotalUpdated    int        `json:"totalUpdated"`
	TotalDuplicates int        `json:"totalDuplicates"`
	TotalSkipped    int        `json:"totalSkipped"`
	Truncated       bool       `json:"truncated"`
	DurationMs      int64      `json:"durationMs"`
	ErrorCode       *string    `json:"errorCode,omitempty"`
	ErrorMessage    *string    `json:"errorMessage,omitempty"`
}

func toSyncRunResponse(r *returns.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		RunID:           r.ID,
		AccountID:       r.AccountID,
		Mode:            string(r.Mode),
		Trigger:         string(r.Trigger),
		Status:          string(r.Status),
		DateFrom:        r.DateFrom,
		DateTo:          r.DateTo,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		TotalProcessed:  r.TotalProcessed,
		TotalCreated:    r.TotalCreated,
		TotalUpdated:    r.TotalUpdated,
		TotalDuplicates: r.TotalDuplicates,
		TotalSkipped:    r.TotalSkipped,
		Truncated:       r.Truncated,
		DurationMs:      r.DurationMs,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
	}
}

// runMeta summarises a run for an error envelope; nil when no run was created.
func runMeta(r *returns.SyncRun) *dto.Meta {
	if r == nil {
		return nil
	}
	return &dto.Meta{RunSummary: &dto.RunSummary{
		RunID:           r.ID.String(),
		RunStatus:       string(r.Status),
		TotalProcessed:  r.TotalProcessed,
		TotalCreated:    r.TotalCreated,
		TotalUpdated:    r.TotalUpdated,
		TotalDuplicates: r.TotalDuplicates,
		TotalSkipped:    r.TotalSkipped,
		Truncated:       r.Truncated,
	}}
}

// ListRunsQuery is the query string of GET /sync/runs.
type ListRunsQuery struct {
	AccountID string `form:"accountId" binding:"required"`
	Limit     int    `form:"limit"`
}

// EnrichRequest is the body of POST /enrich.
type EnrichRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Limit     int    `json:"limit"`
}

// QueryFiltersRequest narrows POST /query.
type QueryFiltersRequest struct {
	AccountID    returnsapp.AccountIDs `json:"accountId" binding:"required"`
	Search       string                `json:"search"`
	Status       []string              `json:"status"`
	ReturnStatus []string              `json:"returnStatus"`
	Kind         []string              `json:"kind" binding:"omitempty,dive,oneof=claim return"`
	DateFrom     *time.Time            `json:"dateFrom"`
	DateTo       *time.Time            `json:"dateTo"`
}

// QueryPaginationRequest selects the page of POST /query.
type QueryPaginationRequest struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Filters      QueryFiltersRequest    `json:"filters"`
	Pagination   QueryPaginationRequest `json:"pagination"`
	IncludeStats bool                   `json:"includeStats"`
}

func (r QueryRequest) toApp() returnsapp.QueryRequest {
	var kinds []returns.RecordKind
	for _, k := range r.Filters.Kind {
		kinds = append(kinds, returns.RecordKind(k))
	}
	return returnsapp.QueryRequest{
		Filters: returnsapp.QueryFilters{
			AccountIDs:     r.Filters.AccountID,
			Search:         r.Filters.Search,
			Statuses:       r.Filters.Status,
			ReturnStatuses: r.Filters.ReturnStatus,
			Kinds:          kinds,
			DateFrom:       r.Filters.DateFrom,
			DateTo:         r.Filters.DateTo,
		},
		Pagination: returnsapp.QueryPagination{
			Page:      r.Pagination.Page,
			Limit:     r.Pagination.Limit,
			SortBy:    r.Pagination.SortBy,
			SortOrder: r.Pagination.SortOrder,
		},
		IncludeStats: r.IncludeStats,
	}
}

// WindowRequest is a closed creation-date interval.
type WindowRequest struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to" binding:"required"`
}

// ShipmentsRequest is the body of POST /shipments.
type ShipmentsRequest struct {
	AccountIDs   returnsapp.AccountIDs `json:"accountIds" binding:"required"`
	Window       WindowRequest         `json:"window"`
	ForceRefresh bool                  `json:"forceRefresh"`
	Statuses     []string              `json:"statuses"`
}

func (r ShipmentsRequest) toApp() returnsapp.CollectionRequest {
	return returnsapp.CollectionRequest{
		AccountIDs:   r.AccountIDs,
		Window:       returns.TimeWindow{From: r.Window.From, To: r.Window.To},
		ForceRefresh: r.ForceRefresh,
		Statuses:     r.Statuses,
	}
}
