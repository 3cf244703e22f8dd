package handler

import (
	"context"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/partsync/backend/internal/application/sync"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/interfaces/http/dto"
)

// maxScheduleDelay bounds the delay accepted by the schedule endpoint
const maxScheduleDelay = 24 * time.Hour

// SyncService is the part of the sync service the trigger API drives
type SyncService interface {
	RunSync(ctx context.Context, entityType datasync.EntityType, force bool) (*datasync.SyncLog, error)
	ScheduleSync(entityType datasync.EntityType, delay time.Duration) (syncapp.ScheduledSync, error)
	CancelSync(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error)
	GetSyncStatus(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error)
	ListHistory(ctx context.Context, filter datasync.SyncLogFilter) (shared.Paginated[*datasync.SyncLog], error)
}

// SyncHandler exposes sync triggers and sync history over HTTP
type SyncHandler struct {
	BaseHandler
	service SyncService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(service SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

// RegisterRoutes mounts the sync routes under rg. extra runs before the
// state-changing handlers.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup, extra ...gin.HandlerFunc) {
	with := func(final gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(extra), final)
	}
	g := rg.Group("/sync")
	g.GET("/history", h.ListHistory)
	g.GET("/:entity_type/status", h.GetStatus)
	g.POST("/:entity_type", with(h.Trigger)...)
	g.POST("/:entity_type/schedule", with(h.Schedule)...)
	g.POST("/:entity_type/cancel", with(h.Cancel)...)
}

// Trigger godoc
//
//	@Summary		Trigger a sync
//	@Description	Starts a sync for the entity type and returns its running log. An active run is echoed instead of starting a new one.
//	@Tags			sync
//	@ID				triggerSync
//	@Produce		json
//	@Param			entity_type	path		string	true	"Entity type"
//	@Param			force		query		bool	false	"Replace an orphaned running log"
//	@Success		202			{object}	dto.Response{data=dto.SyncLogResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		409			{object}	dto.Response
//	@Router			/sync/{entity_type} [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid force flag: "+err.Error())
		return
	}

	log, err := h.service.RunSync(c.Request.Context(), entityTypeParam(c), req.Force)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.NewSyncLogResponse(log, false))
}

// GetStatus godoc
//
//	@Summary		Get sync status
//	@Description	Returns the most recent sync log for the entity type, with its rejection sample
//	@Tags			sync
//	@ID				getSyncStatus
//	@Produce		json
//	@Param			entity_type	path		string	true	"Entity type"
//	@Success		200			{object}	dto.Response{data=dto.SyncLogResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		404			{object}	dto.Response
//	@Router			/sync/{entity_type}/status [get]
func (h *SyncHandler) GetStatus(c *gin.Context) {
	log, err := h.service.GetSyncStatus(c.Request.Context(), entityTypeParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncLogResponse(log, true))
}

// Schedule godoc
//
//	@Summary		Schedule a sync
//	@Description	Queues a non-forced sync to start after the given delay
//	@Tags			sync
//	@ID				scheduleSync
//	@Accept			json
//	@Produce		json
//	@Param			entity_type	path		string					true	"Entity type"
//	@Param			request		body		dto.ScheduleSyncRequest	true	"Delay such as 30s"
//	@Success		202			{object}	dto.Response{data=dto.ScheduledSyncResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		503			{object}	dto.Response
//	@Router			/sync/{entity_type}/schedule [post]
func (h *SyncHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	delay, err := time.ParseDuration(req.Delay)
	if err != nil || delay < 0 || delay > maxScheduleDelay {
		h.BadRequest(c, "delay must be a duration between 0s and 24h")
		return
	}

	scheduled, err := h.service.ScheduleSync(entityTypeParam(c), delay)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ScheduledSyncResponse{
		JobID:      scheduled.JobID,
		EntityType: string(scheduled.EntityType),
		RunAt:      scheduled.RunAt,
	})
}

// Cancel godoc
//
//	@Summary		Cancel a sync
//	@Description	Drops delayed scheduled syncs and stops the active run at its next batch boundary
//	@Tags			sync
//	@ID				cancelSync
//	@Produce		json
//	@Param			entity_type	path		string	true	"Entity type"
//	@Success		202			{object}	dto.Response{data=dto.SyncLogResponse}
//	@Failure		404			{object}	dto.Response
//	@Router			/sync/{entity_type}/cancel [post]
func (h *SyncHandler) Cancel(c *gin.Context) {
	log, err := h.service.CancelSync(c.Request.Context(), entityTypeParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.NewSyncLogResponse(log, false))
}

// ListHistory godoc
//
//	@Summary		List sync history
//	@Description	Returns a page of sync logs, newest first
//	@Tags			sync
//	@ID				listSyncHistory
//	@Produce		json
//	@Param			entity_type	query		string	false	"Filter by entity type"
//	@Param			status		query		string	false	"Filter by status"
//	@Param			page		query		int		false	"Page number (default: 1)"
//	@Param			page_size	query		int		false	"Page size (default: 20, max: 100)"
//	@Success		200			{object}	dto.Response{data=[]dto.SyncLogResponse}
//	@Failure		400			{object}	dto.Response
//	@Router			/sync/history [get]
func (h *SyncHandler) ListHistory(c *gin.Context) {
	var req dto.SyncHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid request parameters: "+err.Error())
		return
	}

	filter := datasync.SyncLogFilter{
		Filter:     shared.DefaultFilter(),
		EntityType: datasync.NormalizeEntityType(req.EntityType),
		Status:     datasync.SyncStatus(req.Status),
	}
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}

	page, err := h.service.ListHistory(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := make([]dto.SyncLogResponse, 0, len(page.Items))
	for _, log := range page.Items {
		items = append(items, dto.NewSyncLogResponse(log, false))
	}
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize, page.TotalPages)
}

func entityTypeParam(c *gin.Context) datasync.EntityType {
	return datasync.NormalizeEntityType(c.Param("entity_type"))
}
