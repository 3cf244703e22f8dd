package syncapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/partsync/backend/internal/domain/catalog"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/logger"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"go.uber.org/zap"
)

// ReasonSourceSupersession is recorded on links created from a source
// record's superseded_by field
const ReasonSourceSupersession = "superseded by source record"

// ImportResult is the outcome of importing one batch
type ImportResult struct {
	Created    int
	Updated    int
	Unchanged  int
	Rejections []datasync.Rejection
}

// Failed returns the number of records rejected during import
func (r ImportResult) Failed() int {
	return datasync.CountRejectedRows(r.Rejections)
}

// Importer upserts validated records into the catalog, one transaction per
// batch
type Importer struct {
	uow    catalog.UnitOfWork
	logger *zap.Logger
}

// NewImporter creates a new Importer
func NewImporter(uow catalog.UnitOfWork, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{uow: uow, logger: logger}
}

// Import upserts records matched by natural key. A record whose action is
// a withdrawal deactivates its entity, or is counted unchanged when there is
// nothing to withdraw. Record-level problems become rejections and the batch
// continues; a storage error rolls the whole batch back and is returned.
func (i *Importer) Import(ctx context.Context, schema *mapping.Schema, records []*datasync.ValidatedRecord) (ImportResult, error) {
	var result ImportResult
	if len(records) == 0 {
		return result, nil
	}

	entityType := string(schema.EntityType)
	uniqueFields := schema.UniqueFields()

	err := i.uow.Transaction(ctx, func(store catalog.Store) error {
		result = ImportResult{}
		for _, rec := range records {
			outcome, rejections, err := i.importRecord(ctx, store, entityType, uniqueFields, rec)
			if err != nil {
				return fmt.Errorf("import row %s: %w", rec.RowID, err)
			}
			result.Rejections = append(result.Rejections, rejections...)
			switch outcome {
			case outcomeCreated:
				result.Created++
			case outcomeUpdated:
				result.Updated++
			case outcomeUnchanged:
				result.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	logger.WithTraceContext(ctx, i.logger).Debug("Imported batch",
		zap.String("entity_type", entityType),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("rejected", result.Failed()),
	)
	return result, nil
}

type importOutcome int

const (
	outcomeRejected importOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeUnchanged
)

func (i *Importer) importRecord(
	ctx context.Context,
	store catalog.Store,
	entityType string,
	uniqueFields []string,
	rec *datasync.ValidatedRecord,
) (importOutcome, []datasync.Rejection, error) {
	attrs := rec.Canonical()
	newKey := attrs[mapping.FieldSupersededBy]
	delete(attrs, mapping.FieldSupersededBy)
	listed := attrs[mapping.FieldAction] != mapping.ActionWithdraw

	for _, field := range uniqueFields {
		value := attrs[field]
		if value == "" {
			continue
		}
		owner, err := store.FindByUniqueValue(ctx, entityType, field, value)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return outcomeRejected, nil, err
		}
		if owner != rec.NaturalKey {
			return outcomeRejected, []datasync.Rejection{
				datasync.NewDuplicateKeyRejection(rec.RowID, field, value, owner),
			}, nil
		}
	}

	existing, err := store.FindByNaturalKey(ctx, entityType, rec.NaturalKey)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return outcomeRejected, nil, err
	}

	var outcome importOutcome
	var current *catalog.Entity
	if existing == nil && !listed {
		// nothing to withdraw
		return outcomeUnchanged, nil, nil
	}
	if existing == nil {
		entity, err := catalog.NewEntity(entityType, rec.NaturalKey, attrs)
		if err != nil {
			return outcomeRejected, []datasync.Rejection{keyRejection(rec, err)}, nil
		}
		if err := store.Create(ctx, entity, uniqueFields); err != nil {
			return outcomeRejected, nil, err
		}
		outcome, current = outcomeCreated, entity
	} else {
		changed := existing.Reconcile(attrs, listed)
		if len(changed) == 0 {
			outcome = outcomeUnchanged
		} else {
			if err := store.Update(ctx, existing, changed, uniqueFields); err != nil {
				return outcomeRejected, nil, err
			}
			outcome = outcomeUpdated
		}
		current = existing
	}

	if newKey == "" || current.SupersededBy == newKey {
		return outcome, nil, nil
	}
	rej, err := supersede(ctx, store, entityType, rec.NaturalKey, newKey, ReasonSourceSupersession)
	if err != nil {
		return outcomeRejected, nil, err
	}
	if rej != "" {
		// the record itself imported; only the link is refused
		return outcome, []datasync.Rejection{{
			RowID:  rec.RowID,
			Field:  mapping.FieldSupersededBy,
			Rule:   datasync.RuleSupersession,
			Reason: rej,
			Value:  newKey,
		}}, nil
	}
	return outcome, nil, nil
}

func keyRejection(rec *datasync.ValidatedRecord, err error) datasync.Rejection {
	reason := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		reason = de.Message
	}
	return datasync.NewRejection(rec.RowID, "", datasync.RuleNaturalKey, reason).WithValue(rec.NaturalKey)
}

// Supersede records that oldKey was replaced by newKey and deactivates the
// old entity. Both entities must already exist.
func (i *Importer) Supersede(ctx context.Context, entityType datasync.EntityType, oldKey, newKey, reason string) error {
	return i.uow.Transaction(ctx, func(store catalog.Store) error {
		rej, err := supersede(ctx, store, string(entityType), oldKey, newKey, reason)
		if err != nil {
			return err
		}
		if rej != "" {
			return fmt.Errorf("%s: %w", rej, shared.ErrInvalidInput)
		}
		return nil
	})
}

// supersede returns a non-empty refusal reason when the link cannot be made
// for data reasons, and an error for storage failures
func supersede(ctx context.Context, store catalog.Store, entityType, oldKey, newKey, reason string) (string, error) {
	for _, key := range []string{oldKey, newKey} {
		if _, err := store.FindByNaturalKey(ctx, entityType, key); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Sprintf("%s %q does not exist", entityType, key), nil
			}
			return "", err
		}
	}
	link, err := catalog.NewSupersessionLink(entityType, oldKey, newKey, reason)
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) {
			return de.Message, nil
		}
		return "", err
	}
	if err := store.MarkSuperseded(ctx, link); err != nil {
		return "", err
	}
	return "", nil
}
