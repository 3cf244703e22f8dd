//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	syncapp "github.com/partsync/backend/internal/application/sync"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/partsync/backend/internal/infrastructure/connector"
	"github.com/partsync/backend/internal/infrastructure/event"
	"github.com/partsync/backend/internal/infrastructure/lock"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/partsync/backend/internal/infrastructure/persistence"
	"github.com/partsync/backend/internal/infrastructure/storage"
	"github.com/partsync/backend/internal/interfaces/http/dto"
	"github.com/partsync/backend/internal/interfaces/http/handler"
	"github.com/partsync/backend/internal/interfaces/http/router"
	"github.com/partsync/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const partsExport = "PartTerminologyID,PartTerminologyName,CategoryCode,SupersededBy\n" +
	"1684,Brake Pad Set,BRK,\n" +
	"1685,Brake Pad,BRK,1684\n" +
	"1686,,BRK,\n" +
	"1900,Oil Filter,FLT,\n" +
	"1901,Air Filter,FLT,\n"

type syncStack struct {
	db       *gorm.DB
	service  *syncapp.Service
	store    *persistence.GormCatalogStore
	finished *testutil.MockEventHandler
	engine   http.Handler
}

// newSyncStack wires the service the way the server does, reading part
// reference data from a CSV export.
func newSyncStack(t *testing.T, exportPath string) *syncStack {
	t.Helper()
	log := zaptest.NewLogger(t)
	tdb := NewTestDB(t)

	source, err := connector.NewFileConnector(&config.ReferenceSourceConfig{
		Name:     "pcdb",
		Format:   "tabular_csv",
		Location: exportPath,
		Table:    "pcdb.Parts",
		Columns:  []string{"PartTerminologyID", "PartTerminologyName", "CategoryCode", "SupersededBy"},
		PageSize: 2,
	}, storage.NewOpener(nil), log)
	require.NoError(t, err)

	mappers, err := mapping.NewRegistry(mapping.DefaultSchemas()...)
	require.NoError(t, err)

	store := persistence.NewGormCatalogStore(tdb.DB)
	checkpoints := persistence.NewGormCheckpointRepository(tdb.DB)
	bus := event.NewInMemoryEventBus(log)
	finished := testutil.NewMockEventHandler(datasync.EventTypeSyncFinished)
	bus.Subscribe(finished)

	svc, err := syncapp.NewService(syncapp.ServiceDeps{
		Logs:        persistence.NewGormSyncLogRepository(tdb.DB),
		Checkpoints: checkpoints,
		Connectors:  connector.NewRegistryWith(source),
		Mappers:     mappers,
		Pipeline: syncapp.NewPipeline(syncapp.NewImporter(store, log), checkpoints,
			syncapp.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}, nil, log),
		Locker:    lock.NewMemoryLocker(time.Minute),
		Publisher: bus,
		Logger:    log,
	}, syncapp.ServiceConfig{
		BatchSize: 2,
		Routes: []config.EntityRouteConfig{{
			EntityType: string(datasync.EntityPartReference),
			Source:     "pcdb",
			Table:      "pcdb.Parts",
			KeyColumn:  "PartTerminologyID",
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	engine, err := router.NewEngine(router.EngineConfig{
		Logger: log,
		Sync:   svc,
		System: handler.NewSystemHandler("test", map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := tdb.DB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}),
	})
	require.NoError(t, err)

	return &syncStack{db: tdb.DB, service: svc, store: store, finished: finished, engine: engine}
}

func TestSync_ReferenceExportEndToEnd(t *testing.T) {
	path := testutil.WriteFile(t, "parts.csv", partsExport)
	s := newSyncStack(t, path)
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)
	et := string(datasync.EntityPartReference)

	w := testutil.PerformRequest(t, s.engine, http.MethodPost, "/api/v1/sync/part_reference", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	started := testutil.DecodeData[dto.SyncLogResponse](t, w)
	assert.Equal(t, string(datasync.SyncStatusRunning), started.Status)

	require.NoError(t, s.service.Wait(ctx, datasync.EntityPartReference))

	w = testutil.PerformRequest(t, s.engine, http.MethodGet, "/api/v1/sync/part_reference/status", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := testutil.DecodeData[dto.SyncLogResponse](t, w)
	assert.Equal(t, started.ID, final.ID)
	assert.Equal(t, string(datasync.SyncStatusCompleted), final.Status)
	assert.Equal(t, 5, final.Fetched)
	assert.Equal(t, 4, final.Created)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, final.Created+final.Updated+final.Failed, final.Processed)
	require.NotEmpty(t, final.Rejections)
	assert.Equal(t, "name", final.Rejections[0].Field)

	old, err := s.store.FindByNaturalKey(ctx, et, "1685")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Equal(t, "1684", old.SupersededBy)

	assert.True(t, testutil.WaitForEventCount(s.finished, 1, 5*time.Second))

	t.Run("replay is idempotent", func(t *testing.T) {
		replay, err := s.service.RunSync(ctx, datasync.EntityPartReference, false)
		require.NoError(t, err)
		require.NoError(t, s.service.Wait(ctx, datasync.EntityPartReference))

		latest, err := s.service.GetSyncStatus(ctx, datasync.EntityPartReference)
		require.NoError(t, err)
		assert.Equal(t, replay.ID, latest.ID)
		assert.Equal(t, datasync.SyncStatusCompleted, latest.Status)
		assert.Zero(t, latest.Created)
		assert.Zero(t, latest.Updated)
		assert.Equal(t, 4, latest.Unchanged)
		assert.Equal(t, 1, latest.Failed)

		links, err := s.store.FindSupersessions(ctx, et, "1685")
		require.NoError(t, err)
		assert.Len(t, links, 1)
	})

	t.Run("history lists both runs", func(t *testing.T) {
		w := testutil.PerformRequest(t, s.engine, http.MethodGet, "/api/v1/sync/history?entity_type=part_reference", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeEnvelope(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(2), resp.Meta.Total)
	})

	t.Run("health reports the database", func(t *testing.T) {
		w := testutil.PerformRequest(t, s.engine, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})
}

func TestSync_UnknownEntityAndMissingExport(t *testing.T) {
	s := newSyncStack(t, "/nonexistent/parts.csv")
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	w := testutil.PerformRequest(t, s.engine, http.MethodPost, "/api/v1/sync/widgets", nil)
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeInvalidEntityType)

	w = testutil.PerformRequest(t, s.engine, http.MethodGet, "/api/v1/sync/stock/status", nil)
	testutil.AssertErrorResponse(t, w, http.StatusNotFound, dto.ErrCodeNotFound)

	w = testutil.PerformRequest(t, s.engine, http.MethodPost, "/api/v1/sync/part_reference", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.NoError(t, s.service.Wait(ctx, datasync.EntityPartReference))

	final, err := s.service.GetSyncStatus(ctx, datasync.EntityPartReference)
	require.NoError(t, err)
	assert.Equal(t, datasync.SyncStatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "export not found")
}
