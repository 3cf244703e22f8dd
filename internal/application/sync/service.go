package syncapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/partsync/backend/internal/infrastructure/connector"
	"github.com/partsync/backend/internal/infrastructure/lock"
	"github.com/partsync/backend/internal/infrastructure/logger"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/partsync/backend/internal/infrastructure/scheduler"
	"github.com/partsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Sync service errors
var (
	// ErrSyncInProgress is returned when another holder has the entity's
	// lease but no running log is visible yet
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoActiveSync is returned by CancelSync when nothing is running in this process
	ErrNoActiveSync = errors.New("no active sync for entity type")

	// ErrSchedulerUnavailable is returned by ScheduleSync before a scheduler is attached
	ErrSchedulerUnavailable = errors.New("sync scheduler not available")
)

const (
	orphanedMessage      = "orphaned: the process running this sync stopped"
	supersededByForceMsg = "orphaned: replaced by a forced sync"
	defaultLockTTL       = 2 * time.Minute
	finalPersistTimeout  = 30 * time.Second
	leaseReleaseTimeout  = 5 * time.Second
	lockKeyPrefix        = "sync:"
)

// ConnectorSource resolves a configured source name to its connector
type ConnectorSource interface {
	Get(source string) (connector.Connector, error)
}

// ServiceConfig holds the tunables of the sync service
type ServiceConfig struct {
	BatchSize            int
	ProcessorConcurrency int
	LockTTL              time.Duration
	Rules                RuleConfig
	Routes               []config.EntityRouteConfig
}

// ServiceDeps are the collaborators of the sync service
type ServiceDeps struct {
	Logs        datasync.SyncLogRepository
	Checkpoints datasync.CheckpointRepository
	Connectors  ConnectorSource
	Mappers     *mapping.Registry
	Pipeline    *Pipeline
	Locker      lock.Locker
	Publisher   shared.EventPublisher
	Metrics     *telemetry.SyncMetrics
	Logger      *zap.Logger
}

// ScheduledSync acknowledges a deferred sync request
type ScheduledSync struct {
	JobID      uuid.UUID           `json:"job_id"`
	EntityType datasync.EntityType `json:"entity_type"`
	RunAt      time.Time           `json:"run_at"`
}

type activeRun struct {
	logID  uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
}

// Service owns sync logs and runs at most one pipeline per entity type
type Service struct {
	logs        datasync.SyncLogRepository
	checkpoints datasync.CheckpointRepository
	connectors  ConnectorSource
	mappers     *mapping.Registry
	pipeline    *Pipeline
	locker      lock.Locker
	publisher   shared.EventPublisher
	metrics     *telemetry.SyncMetrics
	cfg         ServiceConfig
	routes      map[datasync.EntityType]config.EntityRouteConfig
	logger      *zap.Logger

	scheduler *scheduler.SyncScheduler
	flight    singleflight.Group

	mu     sync.Mutex
	active map[datasync.EntityType]*activeRun
	wg     sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewService creates a new sync Service
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	if deps.Logs == nil || deps.Checkpoints == nil || deps.Connectors == nil ||
		deps.Mappers == nil || deps.Pipeline == nil || deps.Locker == nil {
		return nil, errors.New("sync service: missing dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	routes := make(map[datasync.EntityType]config.EntityRouteConfig, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes[datasync.NormalizeEntityType(r.EntityType)] = r
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Service{
		logs:        deps.Logs,
		checkpoints: deps.Checkpoints,
		connectors:  deps.Connectors,
		mappers:     deps.Mappers,
		pipeline:    deps.Pipeline,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		cfg:         cfg,
		routes:      routes,
		logger:      deps.Logger,
		active:      make(map[datasync.EntityType]*activeRun),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
	}, nil
}

// AttachScheduler wires the scheduler used by ScheduleSync and CancelSync.
// The scheduler's executor is normally this service.
func (s *Service) AttachScheduler(sch *scheduler.SyncScheduler) {
	s.scheduler = sch
}

// RunSync starts a sync for an entity type and returns its running log
// without waiting for it to finish. When a run is already active its log is
// returned instead, whatever force says. A running log left behind by a
// stopped process is failed and a fresh run starts. force restarts from
// offset zero instead of the saved checkpoint.
func (s *Service) RunSync(ctx context.Context, entityType datasync.EntityType, force bool) (*datasync.SyncLog, error) {
	trigger := datasync.TriggerManual
	if force {
		trigger = datasync.TriggerForced
	}
	return s.trigger(ctx, entityType, trigger)
}

func (s *Service) trigger(ctx context.Context, entityType datasync.EntityType, trigger datasync.SyncTrigger) (*datasync.SyncLog, error) {
	if !entityType.IsValid() {
		return nil, invalidEntityType(entityType)
	}
	v, err, collapsed := s.flight.Do(string(entityType), func() (any, error) {
		return s.begin(ctx, entityType, trigger)
	})
	if err != nil {
		return nil, err
	}
	if collapsed {
		s.logger.Debug("Collapsed concurrent sync trigger", zap.String("entity_type", string(entityType)))
	}
	return snapshot(v.(*datasync.SyncLog)), nil
}

func invalidEntityType(entityType datasync.EntityType) error {
	return shared.NewDomainError("INVALID_ENTITY_TYPE", fmt.Sprintf("Invalid entity type: %s", entityType))
}

func lockKey(entityType datasync.EntityType) string {
	return lockKeyPrefix + string(entityType)
}

// begin resolves the run, takes the lease and launches the pipeline
func (s *Service) begin(ctx context.Context, entityType datasync.EntityType, trigger datasync.SyncTrigger) (*datasync.SyncLog, error) {
	req, err := s.buildRequest(entityType)
	if err != nil {
		return nil, err
	}

	lease, ok, err := s.locker.Acquire(ctx, lockKey(entityType), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !ok {
		running, err := s.logs.FindRunning(ctx, entityType)
		if err == nil {
			return running, nil
		}
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrSyncInProgress
		}
		return nil, err
	}

	started := false
	defer func() {
		if !started {
			s.releaseLease(lease)
		}
	}()

	// Every live run holds the lease, so a running log seen here was left
	// behind by a stopped process.
	orphan, err := s.logs.FindRunning(ctx, entityType)
	switch {
	case err == nil:
		msg := orphanedMessage
		if trigger == datasync.TriggerForced {
			msg = supersededByForceMsg
		}
		if err := orphan.Fail(msg); err != nil {
			return nil, err
		}
		if err := s.finalize(ctx, orphan); err != nil {
			return nil, err
		}
		s.logger.Warn("Failed orphaned sync log",
			zap.String("entity_type", string(entityType)),
			zap.String("sync_log_id", orphan.ID.String()),
			zap.String("trigger", string(trigger)),
		)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	log, err := datasync.NewSyncLog(entityType, trigger)
	if err != nil {
		return nil, err
	}
	if err := log.Start(); err != nil {
		return nil, err
	}

	if trigger == datasync.TriggerForced {
		if err := s.checkpoints.Clear(ctx, entityType); err != nil {
			return nil, fmt.Errorf("clear checkpoint: %w", err)
		}
	} else {
		cp, err := s.checkpoints.Load(ctx, entityType)
		switch {
		case err == nil:
			req.StartOffset = cp.Offset
			log.ResumeFrom(cp.Offset)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
	}
	req.SyncLogID = log.ID

	if err := s.logs.Save(ctx, log); err != nil {
		return nil, fmt.Errorf("save sync log: %w", err)
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	run := &activeRun{logID: log.ID, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active[entityType] = run
	s.mu.Unlock()

	s.logger.Info("Sync started",
		zap.String("entity_type", string(entityType)),
		zap.String("sync_log_id", log.ID.String()),
		zap.String("trigger", string(trigger)),
		zap.Int("offset", req.StartOffset),
	)

	started = true
	result := snapshot(log)
	s.wg.Add(1)
	go s.execute(runCtx, run, lease, log, req)
	return result, nil
}

func (s *Service) buildRequest(entityType datasync.EntityType) (Request, error) {
	route, ok := s.routes[entityType]
	if !ok {
		return Request{}, datasync.NewConfigurationError("sync", fmt.Sprintf("no source route configured for %s", entityType), nil)
	}
	mapper, err := s.mappers.Mapper(entityType)
	if err != nil {
		return Request{}, err
	}
	source, err := s.connectors.Get(route.Source)
	if err != nil {
		return Request{}, err
	}

	schema := mapper.Schema()
	columns := route.Columns
	if len(columns) == 0 {
		columns = schema.SourceColumns()
	}
	return Request{
		EntityType: entityType,
		Source:     source,
		Query: connector.Query{
			Table:   route.Table,
			Columns: columns,
			OrderBy: route.KeyColumn,
		},
		Processor: NewProcessor(mapper, RulesFor(entityType, s.cfg.Rules),
			WithConcurrency(s.cfg.ProcessorConcurrency),
			WithProcessorLogger(s.logger),
		),
		Schema:    schema,
		BatchSize: s.cfg.BatchSize,
	}, nil
}

// execute consumes the pipeline and owns log until it is terminal
func (s *Service) execute(ctx context.Context, run *activeRun, lease *lock.Lease, log *datasync.SyncLog, req Request) {
	defer s.wg.Done()
	defer close(run.done)
	defer s.releaseLease(lease)
	defer run.cancel()
	defer s.unregister(log.EntityType, run)

	go s.keepLease(ctx, run, lease)

	ctx, span := telemetry.StartSpan(ctx, "sync.run",
		telemetry.SpanAttrEntityType, string(log.EntityType),
		telemetry.SpanAttrSyncLogID, log.ID.String(),
		telemetry.SpanAttrTrigger, string(log.Trigger),
		telemetry.SpanAttrSource, req.Source.Name(),
	)
	defer span.End()
	ctx, runLogger := logger.WithSyncRun(ctx, s.logger, string(log.EntityType), log.ID.String())
	persistCtx := context.WithoutCancel(ctx)

	for res := range s.pipeline.Run(ctx, req) {
		var err error
		switch res.State {
		case StateBatchComplete:
			if err = log.ApplyBatch(res.Delta()); err == nil {
				err = s.logs.Save(persistCtx, log)
			}
		case StateDone:
			err = log.Complete()
		case StateCancelled:
			err = log.Cancel()
		case StateFailed:
			msg := "sync failed"
			if res.Err != nil {
				msg = res.Err.Error()
			}
			err = log.Fail(msg)
		}
		if err != nil {
			runLogger.Error("Failed to record batch result", zap.String("state", string(res.State)), zap.Error(err))
		}
	}
	if !log.Status.IsTerminal() {
		_ = log.Fail("pipeline ended without a terminal state")
	}

	finalCtx, cancel := context.WithTimeout(persistCtx, finalPersistTimeout)
	defer cancel()
	if err := s.finalize(finalCtx, log); err != nil {
		runLogger.Error("Failed to persist final sync state", zap.Error(err))
	}

	if log.Status == datasync.SyncStatusFailed {
		telemetry.RecordError(span, errors.New(log.ErrorMessage))
	}
	telemetry.SetAttributes(span, "sync.status", string(log.Status), "sync.processed", log.Processed)

	runLogger.Info("Sync finished",
		zap.String("status", string(log.Status)),
		zap.Int("processed", log.Processed),
		zap.Int("created", log.Created),
		zap.Int("updated", log.Updated),
		zap.Int("unchanged", log.Unchanged),
		zap.Int("failed", log.Failed),
		zap.Duration("duration", log.Duration()),
	)
}

// finalize saves a terminal log, records the run and publishes its events
func (s *Service) finalize(ctx context.Context, log *datasync.SyncLog) error {
	if err := s.logs.Save(ctx, log); err != nil {
		return fmt.Errorf("save sync log: %w", err)
	}
	s.metrics.RecordRun(ctx, string(log.EntityType), string(log.Status), log.Duration())

	events := log.GetDomainEvents()
	log.ClearDomainEvents()
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish sync events",
				zap.String("sync_log_id", log.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// keepLease refreshes the lease until the run ends. Losing the lease
// cancels the run at its next batch boundary.
func (s *Service) keepLease(ctx context.Context, run *activeRun, lease *lock.Lease) {
	interval := lease.TTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-run.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.locker.Refresh(ctx, lease)
			if err == nil {
				continue
			}
			if errors.Is(err, lock.ErrNotHeld) {
				s.logger.Error("Sync lease lost, cancelling run", zap.String("key", lease.Key))
				run.cancel()
				return
			}
			s.logger.Warn("Failed to refresh sync lease", zap.String("key", lease.Key), zap.Error(err))
		}
	}
}

func (s *Service) releaseLease(lease *lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
	defer cancel()
	if err := s.locker.Release(ctx, lease); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		s.logger.Warn("Failed to release sync lease", zap.String("key", lease.Key), zap.Error(err))
	}
}

func (s *Service) unregister(entityType datasync.EntityType, run *activeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[entityType] == run {
		delete(s.active, entityType)
	}
}

// ScheduleSync queues a sync to start after delay. It never blocks.
func (s *Service) ScheduleSync(entityType datasync.EntityType, delay time.Duration) (ScheduledSync, error) {
	if !entityType.IsValid() {
		return ScheduledSync{}, invalidEntityType(entityType)
	}
	if s.scheduler == nil {
		return ScheduledSync{}, ErrSchedulerUnavailable
	}
	if _, err := s.buildRequest(entityType); err != nil {
		return ScheduledSync{}, err
	}
	job, err := s.scheduler.Schedule(entityType, datasync.TriggerScheduled, delay)
	if err != nil {
		return ScheduledSync{}, err
	}
	return ScheduledSync{JobID: job.ID, EntityType: entityType, RunAt: job.RunAt}, nil
}

// Execute runs a scheduled job and waits for the sync to finish, so the
// scheduler's worker pool bounds concurrent runs
func (s *Service) Execute(ctx context.Context, job *scheduler.SyncJob) error {
	log, err := s.trigger(ctx, job.EntityType, job.Trigger)
	if err != nil {
		return err
	}
	if err := s.Wait(ctx, job.EntityType); err != nil {
		return err
	}
	final, err := s.logs.FindByID(ctx, log.ID)
	if err != nil {
		return err
	}
	if final.Status == datasync.SyncStatusFailed {
		return fmt.Errorf("sync %s failed: %s", final.ID, final.ErrorMessage)
	}
	return nil
}

// CancelSync drops delayed scheduled syncs for the entity type and asks the
// active run to stop at its next batch boundary
func (s *Service) CancelSync(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error) {
	if !entityType.IsValid() {
		return nil, invalidEntityType(entityType)
	}
	dropped := 0
	if s.scheduler != nil {
		dropped = s.scheduler.CancelPending(entityType)
	}

	s.mu.Lock()
	run, ok := s.active[entityType]
	s.mu.Unlock()
	if !ok {
		if dropped > 0 {
			return s.logs.FindLatest(ctx, entityType)
		}
		return nil, ErrNoActiveSync
	}

	run.cancel()
	s.logger.Info("Sync cancellation requested",
		zap.String("entity_type", string(entityType)),
		zap.String("sync_log_id", run.logID.String()),
		zap.Int("scheduled_dropped", dropped),
	)
	return s.logs.FindByID(ctx, run.logID)
}

// GetSyncStatus returns the most recent log for an entity type
func (s *Service) GetSyncStatus(ctx context.Context, entityType datasync.EntityType) (*datasync.SyncLog, error) {
	if !entityType.IsValid() {
		return nil, invalidEntityType(entityType)
	}
	return s.logs.FindLatest(ctx, entityType)
}

// ListHistory returns a page of sync logs
func (s *Service) ListHistory(ctx context.Context, filter datasync.SyncLogFilter) (shared.Paginated[*datasync.SyncLog], error) {
	if filter.EntityType != "" && !filter.EntityType.IsValid() {
		return shared.Paginated[*datasync.SyncLog]{}, invalidEntityType(filter.EntityType)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = shared.DefaultFilter().PageSize
	}
	logs, total, err := s.logs.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[*datasync.SyncLog]{}, err
	}
	return shared.NewPaginated(logs, total, filter.Page, filter.PageSize), nil
}

// Reconcile fails the running and pending logs left behind by a previous
// process. Logs whose entity lease is still held elsewhere are skipped.
// It returns the number of logs failed.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	failed := 0
	for _, status := range []datasync.SyncStatus{datasync.SyncStatusRunning, datasync.SyncStatusPending} {
		logs, err := s.logs.FindByStatus(ctx, status)
		if err != nil {
			return failed, err
		}
		for _, log := range logs {
			held, err := s.locker.Held(ctx, lockKey(log.EntityType))
			if err != nil {
				return failed, err
			}
			if held {
				continue
			}
			if err := log.Fail(orphanedMessage); err != nil {
				return failed, err
			}
			if err := s.finalize(ctx, log); err != nil {
				return failed, err
			}
			failed++
			s.logger.Warn("Reconciled orphaned sync log",
				zap.String("entity_type", string(log.EntityType)),
				zap.String("sync_log_id", log.ID.String()),
				zap.String("previous_status", string(status)),
			)
		}
	}
	return failed, nil
}

// Wait blocks until the in-process run for the entity type finishes. It
// returns immediately when nothing is running.
func (s *Service) Wait(ctx context.Context, entityType datasync.EntityType) error {
	s.mu.Lock()
	run, ok := s.active[entityType]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to reach a batch
// boundary and record their final state
func (s *Service) Shutdown(ctx context.Context) error {
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Sync service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot copies a log so callers never share it with a running pipeline
func snapshot(l *datasync.SyncLog) *datasync.SyncLog {
	cp := *l
	cp.RejectionSample = append([]datasync.Rejection(nil), l.RejectionSample...)
	cp.ClearDomainEvents()
	return &cp
}

var _ scheduler.SyncExecutor = (*Service)(nil)
