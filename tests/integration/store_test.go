//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/partsync/backend/internal/domain/catalog"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntity(t *testing.T, key string, attrs map[string]string) *catalog.Entity {
	t.Helper()
	e, err := catalog.NewEntity("part", key, attrs)
	require.NoError(t, err)
	return e
}

func TestCatalogStore_Postgres(t *testing.T) {
	tdb := NewTestDB(t)
	store := persistence.NewGormCatalogStore(tdb.DB)
	ctx := context.Background()

	e := newEntity(t, "ACD|PF48", map[string]string{"part_number": "PF48", "upc": "012345678905"})
	require.NoError(t, store.Create(ctx, e, []string{"upc"}))

	t.Run("natural key lookup is exact", func(t *testing.T) {
		found, err := store.FindByNaturalKey(ctx, "part", "ACD|PF48")
		require.NoError(t, err)
		assert.Equal(t, e.ID, found.ID)
		assert.Equal(t, "PF48", found.Attribute("part_number"))

		_, err = store.FindByNaturalKey(ctx, "part", "acd|pf48")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate natural key", func(t *testing.T) {
		err := store.Create(ctx, newEntity(t, "ACD|PF48", map[string]string{"part_number": "PF48"}), nil)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("unique value claimed by another entity", func(t *testing.T) {
		other := newEntity(t, "ACD|PF52", map[string]string{"upc": "012345678905"})
		err := store.Create(ctx, other, []string{"upc"})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("update moves unique claims", func(t *testing.T) {
		loaded, err := store.FindByNaturalKey(ctx, "part", "ACD|PF48")
		require.NoError(t, err)
		changed := loaded.Apply(map[string]string{"part_number": "PF48", "upc": "012345678912"})
		require.NoError(t, store.Update(ctx, loaded, changed, []string{"upc"}))

		_, err = store.FindByUniqueValue(ctx, "part", "upc", "012345678905")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		owner, err := store.FindByUniqueValue(ctx, "part", "upc", "012345678912")
		require.NoError(t, err)
		assert.Equal(t, "ACD|PF48", owner)
	})
}

func TestCatalogStore_PostgresSupersession(t *testing.T) {
	tdb := NewTestDB(t)
	store := persistence.NewGormCatalogStore(tdb.DB)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newEntity(t, "OLD", map[string]string{"a": "1"}), nil))
	require.NoError(t, store.Create(ctx, newEntity(t, "NEW", map[string]string{"a": "1"}), nil))

	err := store.Transaction(ctx, func(tx catalog.Store) error {
		link, err := catalog.NewSupersessionLink("part", "OLD", "NEW", "renumbered")
		if err != nil {
			return err
		}
		return tx.MarkSuperseded(ctx, link)
	})
	require.NoError(t, err)

	old, err := store.FindByNaturalKey(ctx, "part", "OLD")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Equal(t, "NEW", old.SupersededBy)

	links, err := store.FindSupersessions(ctx, "part", "OLD")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "renumbered", links[0].Reason)
}

func TestCatalogStore_PostgresRollback(t *testing.T) {
	tdb := NewTestDB(t)
	store := persistence.NewGormCatalogStore(tdb.DB)
	ctx := context.Background()
	boom := errors.New("storage failure")

	err := store.Transaction(ctx, func(tx catalog.Store) error {
		if err := tx.Create(ctx, newEntity(t, "K1", map[string]string{"upc": "1"}), []string{"upc"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.FindByNaturalKey(ctx, "part", "K1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = store.FindByUniqueValue(ctx, "part", "upc", "1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSyncLogRepository_Postgres(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(tdb.DB)
	ctx := context.Background()

	completed, err := datasync.NewSyncLog(datasync.EntityPart, datasync.TriggerScheduled)
	require.NoError(t, err)
	require.NoError(t, completed.Start())
	require.NoError(t, completed.ApplyBatch(datasync.BatchDelta{Fetched: 3, Created: 2, Failed: 1}))
	require.NoError(t, completed.Complete())
	require.NoError(t, repo.Save(ctx, completed))

	running, err := datasync.NewSyncLog(datasync.EntityPart, datasync.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, running.Start())
	require.NoError(t, repo.Save(ctx, running))

	latest, err := repo.FindLatest(ctx, datasync.EntityPart)
	require.NoError(t, err)
	assert.Equal(t, running.ID, latest.ID)

	found, err := repo.FindRunning(ctx, datasync.EntityPart)
	require.NoError(t, err)
	assert.Equal(t, running.ID, found.ID)

	loaded, err := repo.FindByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Processed)
	assert.Equal(t, 2, loaded.Created)
	assert.Equal(t, 1, loaded.Failed)

	filter := datasync.SyncLogFilter{EntityType: datasync.EntityPart, Status: datasync.SyncStatusCompleted}
	filter.Page, filter.PageSize = 1, 10
	logs, total, err := repo.FindAll(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, completed.ID, logs[0].ID)

	_, err = repo.FindLatest(ctx, datasync.EntityStock)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckpointRepository_Postgres(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormCheckpointRepository(tdb.DB)
	ctx := context.Background()

	log, err := datasync.NewSyncLog(datasync.EntityStock, datasync.TriggerManual)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, datasync.NewCheckpoint(datasync.EntityStock, log.ID, 2000)))
	require.NoError(t, repo.Save(ctx, datasync.NewCheckpoint(datasync.EntityStock, log.ID, 4000)))

	cp, err := repo.Load(ctx, datasync.EntityStock)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 4000, cp.Offset)
	assert.Equal(t, log.ID, cp.SyncLogID)

	require.NoError(t, repo.Clear(ctx, datasync.EntityStock))
	_, err = repo.Load(ctx, datasync.EntityStock)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
