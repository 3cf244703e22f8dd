package syncapp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/connector"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/partsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PipelineState is the position of a pipeline run
type PipelineState string

const (
	StateNotStarted    PipelineState = "not_started"
	StateFetching      PipelineState = "fetching"
	StateProcessing    PipelineState = "processing"
	StateImporting     PipelineState = "importing"
	StateBatchComplete PipelineState = "batch_complete"
	StateDone          PipelineState = "done"
	StateFailed        PipelineState = "failed"
	StateCancelled     PipelineState = "cancelled"
)

// IsTerminal returns true for done, failed and cancelled
func (s PipelineState) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

var pipelineTransitions = map[PipelineState][]PipelineState{
	StateNotStarted:    {StateFetching, StateFailed, StateCancelled},
	StateFetching:      {StateProcessing, StateDone, StateFailed, StateCancelled},
	StateProcessing:    {StateImporting, StateFailed},
	StateImporting:     {StateBatchComplete, StateFailed},
	StateBatchComplete: {StateFetching, StateDone, StateFailed, StateCancelled},
}

// ErrInvalidTransition is returned for a pipeline state change that is not allowed
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

// ErrRetriesExhausted wraps the last fetch error after all retries failed
var ErrRetriesExhausted = errors.New("fetch retries exhausted")

type stateMachine struct {
	state PipelineState
}

func (m *stateMachine) to(next PipelineState) error {
	for _, allowed := range pipelineTransitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// BatchResult reports one pipeline step. A run yields a BatchComplete result
// per imported batch followed by exactly one terminal result.
type BatchResult struct {
	Index      int
	Offset     int
	State      PipelineState
	Fetched    int
	Created    int
	Updated    int
	Unchanged  int
	Failed     int
	Rejections []datasync.Rejection
	Err        error
	Duration   time.Duration
}

// Delta converts an imported batch into a sync log delta
func (r BatchResult) Delta() datasync.BatchDelta {
	return datasync.BatchDelta{
		Offset:     r.Offset,
		Fetched:    r.Fetched,
		Created:    r.Created,
		Updated:    r.Updated,
		Unchanged:  r.Unchanged,
		Failed:     r.Failed,
		Rejections: r.Rejections,
	}
}

// Request describes one pipeline run
type Request struct {
	EntityType  datasync.EntityType
	SyncLogID   uuid.UUID
	Source      connector.Connector
	Query       connector.Query
	Processor   *Processor
	Schema      *mapping.Schema
	BatchSize   int
	StartOffset int
}

// RetryPolicy bounds fetch retries
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay returns the wait before retry n (1-based): base * 2^(n-1), capped
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Pipeline moves rows from a connector through the processor into the
// importer, batch by batch
type Pipeline struct {
	importer    *Importer
	checkpoints datasync.CheckpointRepository
	retry       RetryPolicy
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
}

// NewPipeline creates a new Pipeline. metrics may be nil.
func NewPipeline(importer *Importer, checkpoints datasync.CheckpointRepository, retry RetryPolicy, metrics *telemetry.SyncMetrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		importer:    importer,
		checkpoints: checkpoints,
		retry:       retry,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run executes the request and yields its results. Cancellation, by ctx or
// by the consumer breaking out of the loop, is observed between batches; a
// batch that has been fetched is always processed and imported. The source
// is opened once per run and closed when the run ends.
func (p *Pipeline) Run(ctx context.Context, req Request) iter.Seq[BatchResult] {
	return func(yield func(BatchResult) bool) {
		sm := &stateMachine{state: StateNotStarted}
		offset := req.StartOffset
		batchSize := req.BatchSize
		if batchSize <= 0 {
			batchSize = req.Source.PageSize()
		}
		log := p.logger.With(
			zap.String("entity_type", string(req.EntityType)),
			zap.String("sync_log_id", req.SyncLogID.String()),
		)

		finish := func(index int, state PipelineState, err error) {
			if tErr := sm.to(state); tErr != nil {
				err = errors.Join(err, tErr)
				sm.state = StateFailed
			}
			yield(BatchResult{Index: index, Offset: offset, State: sm.state, Err: err})
		}

		if err := ctx.Err(); err != nil {
			finish(0, StateCancelled, err)
			return
		}
		if err := req.Source.Open(ctx); err != nil {
			finish(0, StateFailed, fmt.Errorf("open source %s: %w", req.Source.Name(), err))
			return
		}
		defer func() {
			if err := req.Source.Close(); err != nil {
				log.Warn("Failed to close source", zap.String("source", req.Source.Name()), zap.Error(err))
			}
		}()

		for index := 0; ; index++ {
			if err := ctx.Err(); err != nil {
				log.Info("Pipeline cancelled between batches", zap.Int("batch", index), zap.Int("offset", offset))
				finish(index, StateCancelled, err)
				return
			}
			if err := sm.to(StateFetching); err != nil {
				finish(index, StateFailed, err)
				return
			}

			start := time.Now()
			q := req.Query
			q.Limit = batchSize
			q.Offset = offset
			var (
				rows []datasync.RawRecord
				err  error
			)
			telemetry.WithProfilingLabels(ctx,
				telemetry.SyncLabels(string(req.EntityType), req.Source.Name(), telemetry.StageFetch),
				func(ctx context.Context) {
					rows, err = p.fetch(ctx, req, q)
				})
			if err != nil {
				if ctx.Err() != nil {
					finish(index, StateCancelled, ctx.Err())
				} else {
					finish(index, StateFailed, err)
				}
				return
			}
			if len(rows) == 0 {
				p.complete(ctx, req, log, index, offset, finish)
				return
			}

			var res BatchResult
			telemetry.WithProfilingLabels(ctx,
				telemetry.SyncLabels(string(req.EntityType), req.Source.Name(), telemetry.StageImport),
				func(ctx context.Context) {
					res, err = p.runBatch(context.WithoutCancel(ctx), sm, req, index, offset, rows)
				})
			res.Duration = time.Since(start)
			if err != nil {
				log.Error("Batch failed", zap.Int("batch", index), zap.Int("offset", offset), zap.Error(err))
				finish(index, StateFailed, err)
				return
			}
			offset = res.Offset
			p.metrics.RecordBatch(ctx, string(req.EntityType), res.Created, res.Updated, res.Unchanged, res.Failed, res.Duration)
			for _, r := range res.Rejections {
				p.metrics.RecordRejection(ctx, string(req.EntityType), r.Rule)
			}
			log.Info("Batch imported",
				zap.Int("batch", index),
				zap.Int("offset", offset),
				zap.Int("fetched", res.Fetched),
				zap.Int("created", res.Created),
				zap.Int("updated", res.Updated),
				zap.Int("unchanged", res.Unchanged),
				zap.Int("failed", res.Failed),
				zap.Duration("duration", res.Duration),
			)
			cpErr := p.checkpoints.Save(context.WithoutCancel(ctx), datasync.NewCheckpoint(req.EntityType, req.SyncLogID, offset))
			if !yield(res) {
				return
			}
			if cpErr != nil {
				finish(index+1, StateFailed, fmt.Errorf("save checkpoint: %w", cpErr))
				return
			}
			if len(rows) < batchSize {
				p.complete(ctx, req, log, index+1, offset, finish)
				return
			}
		}
	}
}

func (p *Pipeline) complete(ctx context.Context, req Request, log *zap.Logger, index, offset int, finish func(int, PipelineState, error)) {
	if err := p.checkpoints.Clear(context.WithoutCancel(ctx), req.EntityType); err != nil {
		finish(index, StateFailed, fmt.Errorf("clear checkpoint: %w", err))
		return
	}
	log.Info("Pipeline finished", zap.Int("batches", index), zap.Int("offset", offset))
	finish(index, StateDone, nil)
}

// runBatch processes and imports one fetched page. It runs on a context
// that is not cancelled with the run.
func (p *Pipeline) runBatch(ctx context.Context, sm *stateMachine, req Request, index, offset int, rows []datasync.RawRecord) (res BatchResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.batch",
		telemetry.SpanAttrEntityType, string(req.EntityType),
		telemetry.SpanAttrSyncLogID, req.SyncLogID.String(),
		telemetry.SpanAttrBatch, index,
		telemetry.SpanAttrOffset, offset,
		telemetry.SpanAttrRows, len(rows),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	res = BatchResult{Index: index, Fetched: len(rows)}

	if err := sm.to(StateProcessing); err != nil {
		return res, err
	}
	processed, err := req.Processor.Process(ctx, rows)
	if err != nil {
		return res, fmt.Errorf("process batch: %w", err)
	}

	if err := sm.to(StateImporting); err != nil {
		return res, err
	}
	imported, err := p.importer.Import(ctx, req.Schema, processed.Records)
	if err != nil {
		return res, fmt.Errorf("import batch: %w", err)
	}
	if err := sm.to(StateBatchComplete); err != nil {
		return res, err
	}

	res.State = StateBatchComplete
	res.Offset = offset + len(rows)
	res.Created = imported.Created
	res.Updated = imported.Updated
	res.Unchanged = imported.Unchanged
	res.Failed = processed.FailedRows + imported.Failed()
	res.Rejections = append(processed.Rejections, imported.Rejections...)
	return res, nil
}

// fetch queries one page, retrying retryable errors with backoff
func (p *Pipeline) fetch(ctx context.Context, req Request, q connector.Query) ([]datasync.RawRecord, error) {
	for attempt := 1; ; attempt++ {
		rows, err := req.Source.Query(ctx, q)
		if err == nil {
			return rows, nil
		}
		if !connector.IsRetryable(err) {
			return nil, fmt.Errorf("fetch %s at offset %d: %w", q.Table, q.Offset, err)
		}
		if attempt > p.retry.MaxRetries {
			return nil, fmt.Errorf("fetch %s at offset %d after %d retries: %w: %w", q.Table, q.Offset, p.retry.MaxRetries, ErrRetriesExhausted, err)
		}

		delay := p.retry.Delay(attempt)
		p.metrics.RecordFetchRetry(ctx, string(req.EntityType), req.Source.Name())
		p.logger.Warn("Retrying fetch",
			zap.String("entity_type", string(req.EntityType)),
			zap.String("source", req.Source.Name()),
			zap.Int("offset", q.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
