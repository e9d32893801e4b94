package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/interfaces/http/middleware"
)

// SyncService runs and reports sync runs.
type SyncService interface {
	SyncAccount(ctx context.Context, req returnsapp.SyncRequest) (*returns.SyncRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*returns.SyncRun, error)
	ListRuns(ctx context.Context, accountID string, limit int) ([]returns.SyncRun, error)
}

// EnrichmentService runs enrichment batches.
type EnrichmentService interface {
	EnrichBatch(ctx context.Context, req returnsapp.EnrichRequest) (*returnsapp.EnrichResult, error)
}

// QueryService serves record projections.
type QueryService interface {
	Query(ctx context.Context, req returnsapp.QueryRequest) (*returnsapp.QueryResult, error)
}

// ShipmentService serves the cached shipment collection.
type ShipmentService interface {
	GetShipments(ctx context.Context, req returnsapp.CollectionRequest) (*returnsapp.CollectionResult, error)
}

// ReturnsHandler serves the /returns API.
type ReturnsHandler struct {
	BaseHandler
	sync      SyncService
	enrich    EnrichmentService
	query     QueryService
	shipments ShipmentService
}

// NewReturnsHandler creates a new ReturnsHandler
func NewReturnsHandler(sync SyncService, enrich EnrichmentService, query QueryService, shipments ShipmentService) *ReturnsHandler {
	return &ReturnsHandler{sync: sync, enrich: enrich, query: query, shipments: shipments}
}

// Sync godoc
// @Summary      Sync an account's claims and returns
// @Description  Runs one sync synchronously. Returns 409 while another run of the account is in progress.
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body SyncRequest true "Sync request"
// @Router       /returns/sync [post]
func (h *ReturnsHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	run, err := h.sync.SyncAccount(c.Request.Context(), req.toApp())
	if err != nil {
		// A failed run is persisted; its id lets the caller poll GET /sync/runs/:id.
		h.HandleErrorWithMeta(c, err, runMeta(run))
		return
	}
	h.Success(c, toSyncRunResponse(run))
}

// GetRun godoc
// @Summary      Get a sync run
// @Tags         returns
// @Produce      json
// @Param        id path string true "Run ID"
// @Router       /returns/sync/runs/{id} [get]
func (h *ReturnsHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.sync.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSyncRunResponse(run))
}

// ListRuns godoc
// @Summary      List the latest sync runs of an account
// @Tags         returns
// @Produce      json
// @Param        accountId query string true "Account ID"
// @Param        limit query int false "Maximum runs (default 20, max 100)"
// @Router       /returns/sync/runs [get]
func (h *ReturnsHandler) ListRuns(c *gin.Context) {
	var q ListRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	runs, err := h.sync.ListRuns(c.Request.Context(), q.AccountID, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]SyncRunResponse, len(runs))
	for i := range runs {
		resp[i] = toSyncRunResponse(&runs[i])
	}
	h.Success(c, resp)
}

// Enrich godoc
// @Summary      Enrich a batch of records missing buyer or review details
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body EnrichRequest true "Enrich request"
// @Router       /returns/enrich [post]
func (h *ReturnsHandler) Enrich(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.enrich.EnrichBatch(c.Request.Context(), returnsapp.EnrichRequest{
		AccountID: req.AccountID,
		Limit:     req.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Errors == nil {
		result.Errors = []returnsapp.RecordError{}
	}
	h.Success(c, result)
}

// Query godoc
// @Summary      Query stored records
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body QueryRequest true "Query request"
// @Router       /returns/query [post]
func (h *ReturnsHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.query.Query(c.Request.Context(), req.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Data == nil {
		result.Data = []returnsapp.ReturnClaimView{}
	}
	p := result.Pagination
	h.SuccessWithMeta(c, result, p.Total, p.Page, p.Limit)
}

// Shipments godoc
// @Summary      Shipments of accounts in a creation window, served from cache when fresh
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body ShipmentsRequest true "Shipments request"
// @Router       /returns/shipments [post]
func (h *ReturnsHandler) Shipments(c *gin.Context) {
	var req ShipmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.shipments.GetShipments(c.Request.Context(), req.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Data == nil {
		result.Data = []returnsapp.ShipmentView{}
	}
	h.Success(c, result)
}

// RegisterRoutes mounts the handler on rg.
func (h *ReturnsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.Sync)
	rg.GET("/sync/runs", h.ListRuns)
	rg.GET("/sync/runs/:id", h.GetRun)
	rg.POST("/enrich", h.Enrich)
	rg.POST("/query", h.Query)
	rg.POST("/shipments", h.Shipments)
}
