package persistence

import "github.com/partsync/backend/internal/infrastructure/persistence/models"

// AllModels lists every persistence model, in migration order
func AllModels() []any {
	return []any{
		&models.SyncLogModel{},
		&models.CheckpointModel{},
		&models.CatalogEntityModel{},
		&models.UniqueValueModel{},
		&models.SupersessionLinkModel{},
	}
}
