package persistence

import (
	"context"
	"errors"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCheckpointRepository implements datasync.CheckpointRepository using GORM
type GormCheckpointRepository struct {
	db *gorm.DB
}

// NewGormCheckpointRepository creates a new GormCheckpointRepository
func NewGormCheckpointRepository(db *gorm.DB) *GormCheckpointRepository {
	return &GormCheckpointRepository{db: db}
}

// Load returns the checkpoint for an entity type
func (r *GormCheckpointRepository) Load(ctx context.Context, entityType datasync.EntityType) (*datasync.Checkpoint, error) {
	var model models.CheckpointModel
	if err := r.db.WithContext(ctx).Where("entity_type = ?", entityType).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the checkpoint keyed by entity type
func (r *GormCheckpointRepository) Save(ctx context.Context, cp datasync.Checkpoint) error {
	return r.db.WithContext(ctx).Save(models.CheckpointModelFromDomain(cp)).Error
}

// Clear removes the checkpoint for an entity type; clearing a missing one is not an error
func (r *GormCheckpointRepository) Clear(ctx context.Context, entityType datasync.EntityType) error {
	return r.db.WithContext(ctx).
		Delete(&models.CheckpointModel{}, "entity_type = ?", entityType).Error
}

// Compile-time interface compliance check
var _ datasync.CheckpointRepository = (*GormCheckpointRepository)(nil)
