package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/domain/returns"
	"github.com/erp/claimsync/internal/domain/shared"
	"github.com/erp/claimsync/internal/infrastructure/logger"
	"github.com/erp/claimsync/internal/interfaces/http/dto"
	"github.com/erp/claimsync/internal/interfaces/http/middleware"
)

// errorMetaKey holds a *dto.Meta to attach to the next error response.
const errorMetaKey = "error_meta"

// reconnectHelp is attached to ERR_RECONNECT_REQUIRED responses.
const reconnectHelp = "Reconnect the marketplace account to issue new credentials."

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Error sends an error response and records the code for tracing.
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	h.respondError(c, statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	h.respondError(c, http.StatusBadRequest,
		dto.NewValidationErrorResponse("Request validation failed", getRequestID(c), details))
}

// HandleError maps an application error onto the response envelope:
// a busy run lock is 409, domain errors use their code, anything else is a
// logged 500 whose message is not exposed.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	if errors.Is(err, returns.ErrRunInProgress) {
		h.Error(c, http.StatusConflict, dto.ErrCodeSyncInProgress, err.Error())
		return
	}

	var validationErr *returns.ValidationError
	if errors.As(err, &validationErr) {
		h.ValidationError(c, []dto.ValidationDetail{{
			Field:   validationErr.Field,
			Message: validationErr.Field + " " + validationErr.Message,
		}})
		return
	}

	var coded shared.Coded
	if errors.As(err, &coded) {
		code := dto.NormalizeErrorCode(coded.ErrorCode())
		help := ""
		if code == dto.ErrCodeReconnectRequired {
			help = reconnectHelp
		}
		h.respondError(c, dto.GetHTTPStatus(code), dto.NewErrorResponseWithHelp(code, err.Error(), requestID, help))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled request error", zap.Error(err))
	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}

// HandleErrorWithMeta is HandleError with meta attached to the error envelope.
func (h *BaseHandler) HandleErrorWithMeta(c *gin.Context, err error, meta *dto.Meta) {
	if meta != nil {
		c.Set(errorMetaKey, meta)
	}
	h.HandleError(c, err)
}

func (h *BaseHandler) respondError(c *gin.Context, status int, resp dto.Response) {
	if resp.Error != nil {
		c.Set(middleware.ErrorCodeKey, resp.Error.Code)
	}
	if v, ok := c.Get(errorMetaKey); ok {
		resp.Meta, _ = v.(*dto.Meta)
	}
	c.JSON(status, resp)
}
