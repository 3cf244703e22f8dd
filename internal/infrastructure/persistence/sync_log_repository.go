package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements datasync.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// FindByID finds a sync log by ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*datasync.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatest returns the most recently created log for an entity type
func (r *GormSyncLogRepository) FindLatest(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRunning returns the running log for an entity type
func (r *GormSyncLogRepository) FindRunning(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND status = ?", entityType, datasync.SyncStatusRunning).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStatus returns all logs in a status, oldest first
func (r *GormSyncLogRepository) FindByStatus(ctx context.Context, status datasync.SyncStatus) ([]*datasync.SyncLog, error) {
	var logModels []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&logModels).Error; err != nil {
		return nil, err
	}
	return toDomainLogs(logModels), nil
}

// FindAll returns a page of sync history and the total matching count
func (r *GormSyncLogRepository) FindAll(ctx context.Context, filter datasync.SyncLogFilter) ([]*datasync.SyncLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncLogModel{})
	query = r.applyFilters(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(sortColumn(filter.Filter, SyncLogSortFields, "created_at"))

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var logModels []models.SyncLogModel
	if err := query.Find(&logModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainLogs(logModels), total, nil
}

// Save creates or updates a sync log
func (r *GormSyncLogRepository) Save(ctx context.Context, log *datasync.SyncLog) error {
	model, err := models.SyncLogModelFromDomain(log)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *GormSyncLogRepository) applyFilters(query *gorm.DB, filter datasync.SyncLogFilter) *gorm.DB {
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func toDomainLogs(logModels []models.SyncLogModel) []*datasync.SyncLog {
	logs := make([]*datasync.SyncLog, len(logModels))
	for i := range logModels {
		logs[i] = logModels[i].ToDomain()
	}
	return logs
}

// Compile-time interface compliance check
var _ datasync.SyncLogRepository = (*GormSyncLogRepository)(nil)
