package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
)

// SyncLogResponse is the API view of a sync log
type SyncLogResponse struct {
	ID               uuid.UUID            `json:"id"`
	EntityType       string               `json:"entity_type"`
	Status           string               `json:"status"`
	Trigger          string               `json:"trigger"`
	Processed        int                  `json:"processed"`
	Created          int                  `json:"created"`
	Updated          int                  `json:"updated"`
	Failed           int                  `json:"failed"`
	Unchanged        int                  `json:"unchanged"`
	Fetched          int                  `json:"fetched"`
	BatchesCompleted int                  `json:"batches_completed"`
	LastOffset       int                  `json:"last_offset"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	Rejections       []datasync.Rejection `json:"rejections,omitempty"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
	DurationMs       int64                `json:"duration_ms"`
	CreatedAt        time.Time            `json:"created_at"`
}

// NewSyncLogResponse converts a sync log. Rejections are only included when
// withRejections is set.
func NewSyncLogResponse(log *datasync.SyncLog, withRejections bool) SyncLogResponse {
	resp := SyncLogResponse{
		ID:               log.ID,
		EntityType:       string(log.EntityType),
		Status:           string(log.Status),
		Trigger:          string(log.Trigger),
		Processed:        log.Processed,
		Created:          log.Created,
		Updated:          log.Updated,
		Failed:           log.Failed,
		Unchanged:        log.Unchanged,
		Fetched:          log.Fetched,
		BatchesCompleted: log.BatchesCompleted,
		LastOffset:       log.LastOffset,
		ErrorMessage:     log.ErrorMessage,
		StartedAt:        log.StartedAt,
		CompletedAt:      log.CompletedAt,
		DurationMs:       log.Duration().Milliseconds(),
		CreatedAt:        log.CreatedAt,
	}
	if withRejections {
		resp.Rejections = log.RejectionSample
	}
	return resp
}

// TriggerSyncRequest holds the query of POST /sync/:entity_type
type TriggerSyncRequest struct {
	Force bool `form:"force"`
}

// ScheduleSyncRequest is the body of POST /sync/:entity_type/schedule.
// Delay is a Go duration string such as "30s" or "5m".
type ScheduleSyncRequest struct {
	Delay string `json:"delay" binding:"required"`
}

// ScheduledSyncResponse acknowledges a deferred sync
type ScheduledSyncResponse struct {
	JobID      uuid.UUID `json:"job_id"`
	EntityType string    `json:"entity_type"`
	RunAt      time.Time `json:"run_at"`
}

// SyncHistoryRequest holds the query of GET /sync/history
type SyncHistoryRequest struct {
	EntityType string `form:"entity_type"`
	Status     string `form:"status" binding:"omitempty,oneof=pending running completed failed cancelled"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// PoolStats reports the catalog database connection pool
type PoolStats struct {
	MaxOpen      int    `json:"max_open"`
	Open         int    `json:"open"`
	InUse        int    `json:"in_use"`
	Idle         int    `json:"idle"`
	WaitCount    int64  `json:"wait_count"`
	WaitDuration string `json:"wait_duration"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Checks   map[string]string `json:"checks"`
	Uptime   string            `json:"uptime"`
	Timezone string            `json:"timezone,omitempty"`
}
