package datasync

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is the persisted resume point of an entity type's pipeline.
// Offset is the number of source rows already imported.
type Checkpoint struct {
	EntityType EntityType
	SyncLogID  uuid.UUID
	Offset     int
	UpdatedAt  time.Time
}

// NewCheckpoint creates a checkpoint at the given offset
func NewCheckpoint(entityType EntityType, syncLogID uuid.UUID, offset int) Checkpoint {
	return Checkpoint{
		EntityType: entityType,
		SyncLogID:  syncLogID,
		Offset:     offset,
		UpdatedAt:  time.Now(),
	}
}
