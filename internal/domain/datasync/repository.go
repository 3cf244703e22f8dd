package datasync

import (
	"context"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/shared"
)

// SyncLogFilter narrows sync history queries
type SyncLogFilter struct {
	shared.Filter
	EntityType EntityType
	Status     SyncStatus
}

// SyncLogRepository persists sync logs
type SyncLogRepository interface {
	// FindByID returns a sync log by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)

	// FindLatest returns the most recently created log for an entity type
	FindLatest(ctx context.Context, entityType EntityType) (*SyncLog, error)

	// FindRunning returns the running log for an entity type, or shared.ErrNotFound
	FindRunning(ctx context.Context, entityType EntityType) (*SyncLog, error)

	// FindByStatus returns all logs in the given status, used for restart reconciliation
	FindByStatus(ctx context.Context, status SyncStatus) ([]*SyncLog, error)

	// FindAll returns a page of logs matching the filter and the total count
	FindAll(ctx context.Context, filter SyncLogFilter) ([]*SyncLog, int64, error)

	// Save creates or updates a sync log
	Save(ctx context.Context, log *SyncLog) error
}

// CheckpointRepository persists pipeline resume points, one per entity type
type CheckpointRepository interface {
	// Load returns the checkpoint for an entity type, or shared.ErrNotFound
	Load(ctx context.Context, entityType EntityType) (*Checkpoint, error)

	// Save upserts the checkpoint for its entity type
	Save(ctx context.Context, cp Checkpoint) error

	// Clear removes the checkpoint for an entity type
	Clear(ctx context.Context, entityType EntityType) error
}
