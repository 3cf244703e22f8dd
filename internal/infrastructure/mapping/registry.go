package mapping

import (
	"fmt"
	"sort"

	"github.com/partsync/backend/internal/domain/datasync"
)

// Registry holds one mapper per entity type. It is built once at startup
// and read-only afterwards.
type Registry struct {
	mappers map[datasync.EntityType]*Mapper
}

// NewRegistry validates every schema and builds a registry. A later schema
// for the same entity type replaces an earlier one, which lets file
// overrides follow the built-in defaults.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{mappers: make(map[datasync.EntityType]*Mapper, len(schemas))}
	for _, s := range schemas {
		m, err := NewMapper(s)
		if err != nil {
			return nil, err
		}
		r.mappers[s.EntityType] = m
	}
	return r, nil
}

// Mapper returns the mapper for an entity type
func (r *Registry) Mapper(entityType datasync.EntityType) (*Mapper, error) {
	m, ok := r.mappers[entityType]
	if !ok {
		return nil, datasync.NewConfigurationError("mapping",
			fmt.Sprintf("no field mapping configured for %s", entityType), nil)
	}
	return m, nil
}

// EntityTypes returns the entity types with a mapping, sorted
func (r *Registry) EntityTypes() []datasync.EntityType {
	out := make([]datasync.EntityType, 0, len(r.mappers))
	for et := range r.mappers {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
