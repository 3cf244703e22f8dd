package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	syncapp "github.com/partsync/backend/internal/application/sync"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/logger"
	"github.com/partsync/backend/internal/infrastructure/scheduler"
	"github.com/partsync/backend/internal/interfaces/http/dto"
	"github.com/partsync/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// queueFullRetryAfter is sent with 503 responses for a saturated scheduler
const queueFullRetryAfter = 30

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize, totalPages int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize, totalPages))
}

// Accepted sends a 202 response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError maps sync, scheduler and domain errors to API responses.
// Anything unrecognised is logged and reported as a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	var configErr *datasync.ConfigurationError
	switch {
	case errors.Is(err, syncapp.ErrSyncInProgress):
		h.Error(c, http.StatusConflict, dto.ErrCodeSyncInProgress, err.Error())
	case errors.Is(err, syncapp.ErrNoActiveSync):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNoActiveSync, err.Error())
	case errors.Is(err, scheduler.ErrJobQueueFull):
		c.Header("Retry-After", strconv.Itoa(queueFullRetryAfter))
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSyncQueueFull, "Sync queue is full, retry later")
	case errors.Is(err, syncapp.ErrSchedulerUnavailable), errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, err.Error())
	case errors.As(err, &configErr):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeSourceConfig, configErr.Error())
	case errors.As(err, &domainErr):
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
	default:
		logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
	}
}
