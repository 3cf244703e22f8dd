package persistence

import (
	"strings"

	"github.com/partsync/backend/internal/domain/shared"
	"gorm.io/gorm/clause"
)

// SyncLogSortFields are the sync_logs columns history may be ordered by
var SyncLogSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"entity_type":  true,
	"status":       true,
	"processed":    true,
	"failed":       true,
	"started_at":   true,
	"completed_at": true,
}

// sortColumn turns the caller's ordering into a quoted ORDER BY column.
// Fields outside allowed fall back to defaultField; anything but "asc" sorts
// descending, newest first.
func sortColumn(filter shared.Filter, allowed map[string]bool, defaultField string) clause.OrderByColumn {
	field := strings.TrimSpace(filter.OrderBy)
	if !allowed[field] {
		field = defaultField
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: field},
		Desc:   !strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc"),
	}
}
