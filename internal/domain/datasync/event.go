package datasync

import (
	"time"

	"github.com/partsync/backend/internal/domain/shared"
)

// EventTypeSyncFinished is emitted when a sync log reaches a terminal state
const EventTypeSyncFinished = "SyncFinished"

// AggregateTypeSyncLog is the aggregate type name of sync logs
const AggregateTypeSyncLog = "SyncLog"

// SyncFinishedEvent carries the final outcome of a sync run
type SyncFinishedEvent struct {
	shared.BaseDomainEvent
	EntityType   EntityType `json:"entity_type"`
	Status       SyncStatus `json:"status"`
	Processed    int        `json:"processed"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Failed       int        `json:"failed"`
	Unchanged    int        `json:"unchanged"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewSyncFinishedEvent snapshots a sync log into an event
func NewSyncFinishedEvent(l *SyncLog) *SyncFinishedEvent {
	return &SyncFinishedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncFinished, AggregateTypeSyncLog, l.ID),
		EntityType:      l.EntityType,
		Status:          l.Status,
		Processed:       l.Processed,
		Created:         l.Created,
		Updated:         l.Updated,
		Failed:          l.Failed,
		Unchanged:       l.Unchanged,
		ErrorMessage:    l.ErrorMessage,
		StartedAt:       l.StartedAt,
		CompletedAt:     l.CompletedAt,
	}
}
