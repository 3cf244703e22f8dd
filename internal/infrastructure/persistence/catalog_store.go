package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/partsync/backend/internal/domain/catalog"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalogStore implements catalog.Store and catalog.UnitOfWork using GORM.
// Inside Transaction the store handed to the callback is bound to the
// transaction handle.
type GormCatalogStore struct {
	db *gorm.DB
}

// NewGormCatalogStore creates a new GormCatalogStore
func NewGormCatalogStore(db *gorm.DB) *GormCatalogStore {
	return &GormCatalogStore{db: db}
}

// Transaction runs fn inside one database transaction. Any error returned
// by fn rolls back every write it made.
func (s *GormCatalogStore) Transaction(ctx context.Context, fn func(store catalog.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormCatalogStore{db: tx})
	})
}

// FindByNaturalKey finds an entity by its exact natural key
func (s *GormCatalogStore) FindByNaturalKey(ctx context.Context, entityType, naturalKey string) (*catalog.Entity, error) {
	model, err := s.findModel(ctx, entityType, naturalKey)
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

func (s *GormCatalogStore) findModel(ctx context.Context, entityType, naturalKey string) (*models.CatalogEntityModel, error) {
	var model models.CatalogEntityModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND natural_key = ?", entityType, naturalKey).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FindByUniqueValue returns the natural key owning value for field
func (s *GormCatalogStore) FindByUniqueValue(ctx context.Context, entityType, field, value string) (string, error) {
	var claim models.UniqueValueModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND field = ? AND value = ?", entityType, field, value).
		First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return claim.OwnerKey, nil
}

// Create inserts an entity and claims its unique field values
func (s *GormCatalogStore) Create(ctx context.Context, entity *catalog.Entity, uniqueFields []string) error {
	model, err := models.CatalogEntityModelFromDomain(entity)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", entity.EntityType, entity.NaturalKey, shared.ErrAlreadyExists)
		}
		return err
	}
	for _, field := range uniqueFields {
		if err := s.claim(ctx, entity, field); err != nil {
			return err
		}
	}
	return nil
}

// Update persists an entity whose Apply bumped the version exactly once, and
// moves the claims of any changed unique fields
func (s *GormCatalogStore) Update(ctx context.Context, entity *catalog.Entity, changedFields []string, uniqueFields []string) error {
	if err := s.saveWithLock(ctx, entity); err != nil {
		return err
	}

	changed := make(map[string]bool, len(changedFields))
	for _, f := range changedFields {
		changed[f] = true
	}
	for _, field := range uniqueFields {
		if !changed[field] {
			continue
		}
		if err := s.db.WithContext(ctx).
			Delete(&models.UniqueValueModel{}, "entity_type = ? AND field = ? AND owner_key = ?",
				entity.EntityType, field, entity.NaturalKey).Error; err != nil {
			return err
		}
		if err := s.claim(ctx, entity, field); err != nil {
			return err
		}
	}
	return nil
}

// MarkSuperseded deactivates the old entity and appends the link
func (s *GormCatalogStore) MarkSuperseded(ctx context.Context, link *catalog.SupersessionLink) error {
	model, err := s.findModel(ctx, link.EntityType, link.OldKey)
	if err != nil {
		return err
	}
	old, err := model.ToDomain()
	if err != nil {
		return err
	}
	if err := old.Deactivate(link.NewKey); err != nil {
		return err
	}
	if err := s.saveWithLock(ctx, old); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(models.SupersessionLinkModelFromDomain(link)).Error
}

// FindSupersessions returns the links recorded for oldKey, oldest first
func (s *GormCatalogStore) FindSupersessions(ctx context.Context, entityType, oldKey string) ([]catalog.SupersessionLink, error) {
	var linkModels []models.SupersessionLinkModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND old_key = ?", entityType, oldKey).
		Order("created_at ASC").
		Find(&linkModels).Error; err != nil {
		return nil, err
	}
	links := make([]catalog.SupersessionLink, len(linkModels))
	for i := range linkModels {
		links[i] = linkModels[i].ToDomain()
	}
	return links, nil
}

// saveWithLock writes the mutable columns, checking the previous version
func (s *GormCatalogStore) saveWithLock(ctx context.Context, entity *catalog.Entity) error {
	attrs, err := models.MarshalAttributes(entity.Attributes)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.CatalogEntityModel{}).
		Where("id = ? AND version = ?", entity.ID, entity.Version-1).
		Updates(map[string]any{
			"attributes":    attrs,
			"active":        entity.Active,
			"superseded_by": entity.SupersededBy,
			"version":       entity.Version,
			"updated_at":    entity.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %q: %w", entity.EntityType, entity.NaturalKey, shared.ErrConcurrencyConflict)
	}
	return nil
}

func (s *GormCatalogStore) claim(ctx context.Context, entity *catalog.Entity, field string) error {
	value := entity.Attribute(field)
	if value == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Create(&models.UniqueValueModel{
		EntityType: entity.EntityType,
		Field:      field,
		Value:      value,
		OwnerKey:   entity.NaturalKey,
		CreatedAt:  time.Now(),
	}).Error
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%s %s=%q: %w", entity.EntityType, field, value, shared.ErrAlreadyExists)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time interface compliance checks
var (
	_ catalog.Store      = (*GormCatalogStore)(nil)
	_ catalog.UnitOfWork = (*GormCatalogStore)(nil)
)
