package catalog

import "context"

// Store is the catalog persistence contract used by the sync importer.
// Lookups are exact on (entity type, natural key).
type Store interface {
	// FindByNaturalKey returns the entity, or shared.ErrNotFound
	FindByNaturalKey(ctx context.Context, entityType, naturalKey string) (*Entity, error)

	// FindByUniqueValue returns the natural key of the entity owning value
	// for a uniquely-constrained field, or shared.ErrNotFound
	FindByUniqueValue(ctx context.Context, entityType, field, value string) (string, error)

	// Create inserts a new entity and claims its unique field values
	Create(ctx context.Context, entity *Entity, uniqueFields []string) error

	// Update persists the changed fields of an existing entity
	Update(ctx context.Context, entity *Entity, changedFields []string, uniqueFields []string) error

	// MarkSuperseded deactivates oldKey and appends the supersession link
	MarkSuperseded(ctx context.Context, link *SupersessionLink) error

	// FindSupersessions returns the links recorded for a key, oldest first
	FindSupersessions(ctx context.Context, entityType, oldKey string) ([]SupersessionLink, error)
}

// UnitOfWork runs fn against a Store bound to one atomic transaction
type UnitOfWork interface {
	Transaction(ctx context.Context, fn func(store Store) error) error
}
