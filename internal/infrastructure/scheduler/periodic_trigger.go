package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/partsync/backend/internal/domain/datasync"
	"go.uber.org/zap"
)

// MinSyncInterval is the shortest accepted periodic sync interval
const MinSyncInterval = time.Minute

// JobSubmitter accepts sync jobs, typically a *SyncScheduler
type JobSubmitter interface {
	Schedule(entityType datasync.EntityType, trigger datasync.SyncTrigger, delay time.Duration) (*SyncJob, error)
}

// PeriodicTrigger submits a scheduled sync for each configured entity type
// every interval
type PeriodicTrigger struct {
	schedules map[datasync.EntityType]time.Duration
	submitter JobSubmitter
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPeriodicTrigger validates the schedules and creates a trigger
func NewPeriodicTrigger(schedules map[datasync.EntityType]time.Duration, submitter JobSubmitter, logger *zap.Logger) (*PeriodicTrigger, error) {
	for et, interval := range schedules {
		if !et.IsValid() {
			return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidConfig, et)
		}
		if interval < MinSyncInterval {
			return nil, fmt.Errorf("%w: %s every %s is below %s", ErrInvalidInterval, et, interval, MinSyncInterval)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodicTrigger{
		schedules: schedules,
		submitter: submitter,
		logger:    logger,
	}, nil
}

// Start starts one ticker loop per schedule
func (p *PeriodicTrigger) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	entityTypes := make([]datasync.EntityType, 0, len(p.schedules))
	for et := range p.schedules {
		entityTypes = append(entityTypes, et)
	}
	sort.Slice(entityTypes, func(i, j int) bool { return entityTypes[i] < entityTypes[j] })

	for _, et := range entityTypes {
		interval := p.schedules[et]
		p.wg.Add(1)
		go p.runLoop(ctx, et, interval)
		p.logger.Info("Periodic sync scheduled",
			zap.String("entity_type", string(et)),
			zap.Duration("interval", interval),
		)
	}
	return nil
}

// Stop stops the ticker loops
func (p *PeriodicTrigger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Periodic trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PeriodicTrigger) runLoop(ctx context.Context, entityType datasync.EntityType, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fire(entityType)
		}
	}
}

func (p *PeriodicTrigger) fire(entityType datasync.EntityType) {
	job, err := p.submitter.Schedule(entityType, datasync.TriggerScheduled, 0)
	if err != nil {
		level := p.logger.Error
		if errors.Is(err, ErrJobQueueFull) {
			level = p.logger.Warn
		}
		level("Failed to submit periodic sync",
			zap.String("entity_type", string(entityType)),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("Periodic sync submitted",
		zap.String("entity_type", string(entityType)),
		zap.String("job_id", job.ID.String()),
	)
}
