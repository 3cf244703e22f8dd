package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Record outcomes reported by a sync batch
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// SyncMetrics tracks the catalog sync pipeline. A nil *SyncMetrics records
// nothing, so callers never need to check.
type SyncMetrics struct {
	logger *zap.Logger

	recordsTotal     *Counter
	fetchRetries     *Counter
	runsTotal        *Counter
	batchDuration    *Histogram
	runDuration      *Histogram
	rejectionsByRule *Counter
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates the sync instruments on the given meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger}

	var err error
	m.recordsTotal, err = NewCounter(cfg.Meter,
		"partsync_sync_records_total",
		"Records handled by sync batches, by outcome",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	m.fetchRetries, err = NewCounter(cfg.Meter,
		"partsync_sync_fetch_retries_total",
		"Connector fetches retried after a transient failure",
		"{retries}",
	)
	if err != nil {
		return nil, err
	}

	m.runsTotal, err = NewCounter(cfg.Meter,
		"partsync_sync_runs_total",
		"Finished sync runs, by terminal status",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	m.rejectionsByRule, err = NewCounter(cfg.Meter,
		"partsync_sync_rejections_total",
		"Rejections raised during sync, by rule",
		"{rejections}",
	)
	if err != nil {
		return nil, err
	}

	m.batchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "partsync_sync_batch_duration_seconds",
		Description: "Time to fetch, process and import one batch",
		Unit:        "s",
		Boundaries:  BatchDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "partsync_sync_run_duration_seconds",
		Description: "Wall time of a sync run",
		Unit:        "s",
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordBatch records one completed batch.
func (m *SyncMetrics) RecordBatch(ctx context.Context, entityType string, created, updated, unchanged, failed int, d time.Duration) {
	if m == nil {
		return
	}
	et := AttrEntityType.String(entityType)
	for outcome, n := range map[string]int{
		OutcomeCreated:   created,
		OutcomeUpdated:   updated,
		OutcomeUnchanged: unchanged,
		OutcomeFailed:    failed,
	} {
		if n > 0 {
			m.recordsTotal.Add(ctx, int64(n), et, AttrOutcome.String(outcome))
		}
	}
	m.batchDuration.RecordDuration(ctx, d, et)
}

// RecordRejection counts a rejection under the rule that raised it.
func (m *SyncMetrics) RecordRejection(ctx context.Context, entityType, rule string) {
	if m == nil {
		return
	}
	m.rejectionsByRule.Inc(ctx, AttrEntityType.String(entityType), AttrRule.String(rule))
}

// RecordFetchRetry counts a retried connector fetch.
func (m *SyncMetrics) RecordFetchRetry(ctx context.Context, entityType, source string) {
	if m == nil {
		return
	}
	m.fetchRetries.Inc(ctx, AttrEntityType.String(entityType), AttrSource.String(source))
}

// RecordRun records a run reaching a terminal status.
func (m *SyncMetrics) RecordRun(ctx context.Context, entityType, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrEntityType.String(entityType), AttrSyncStatus.String(status)}
	m.runsTotal.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, d, attrs...)
	m.logger.Debug("Recorded sync run",
		zap.String("entity_type", entityType),
		zap.String("status", status),
		zap.Duration("duration", d),
	)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
