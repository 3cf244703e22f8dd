package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
	"go.uber.org/zap"
)

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// Workers is the number of jobs executed concurrently
	Workers int
	// QueueSize bounds delayed plus queued jobs
	QueueSize int
	// JobTimeout is the maximum time a worker waits on one job
	JobTimeout time.Duration
	// MaxHistory is how many finished jobs are kept for monitoring
	MaxHistory int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Workers:    2,
		QueueSize:  64,
		JobTimeout: 2 * time.Hour,
		MaxHistory: 100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Workers <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxHistory < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SyncScheduler runs sync jobs after a delay on a bounded worker pool.
// Submissions never block; a saturated queue is reported as ErrJobQueueFull.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	logger   *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	pending   int
	delayed   map[uuid.UUID]delayedJob

	historyMu sync.RWMutex
	history   []*SyncJob
}

type delayedJob struct {
	job   *SyncJob
	timer *time.Timer
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *SyncJob, config.QueueSize),
		delayed:  make(map[uuid.UUID]delayedJob),
		history:  make([]*SyncJob, 0, config.MaxHistory),
	}, nil
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
	)
	return nil
}

// Stop cancels delayed jobs and waits for the workers to finish
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, d := range s.delayed {
		d.timer.Stop()
		d.job.Cancel()
		delete(s.delayed, id)
	}
	s.pending = 0
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.drain()
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SyncScheduler) drain() {
	for {
		select {
		case job := <-s.jobs:
			job.Cancel()
		default:
			return
		}
	}
}

// Schedule creates and submits a job for an entity type
func (s *SyncScheduler) Schedule(entityType datasync.EntityType, trigger datasync.SyncTrigger, delay time.Duration) (*SyncJob, error) {
	job := NewSyncJob(entityType, trigger, delay)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitJob queues a job. A job whose RunAt lies in the future waits on a
// timer without occupying a worker.
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if s.pending >= s.config.QueueSize {
		return ErrJobQueueFull
	}

	delay := time.Until(job.RunAt)
	if delay <= 0 {
		if !s.enqueueLocked(job) {
			return ErrJobQueueFull
		}
	} else {
		job.Status = SyncJobStatusDelayed
		s.delayed[job.ID] = delayedJob{
			job:   job,
			timer: time.AfterFunc(delay, func() { s.release(job) }),
		}
	}
	s.pending++

	s.logger.Debug("Sync job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("entity_type", string(job.EntityType)),
		zap.Duration("delay", max(delay, 0)),
	)
	return nil
}

// release moves a delayed job onto the work queue once its timer fires
func (s *SyncScheduler) release(job *SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.delayed[job.ID]; !ok {
		return
	}
	delete(s.delayed, job.ID)
	if !s.isRunning {
		return
	}
	if !s.enqueueLocked(job) {
		s.pending--
		job.Fail(ErrJobQueueFull.Error())
		s.logger.Warn("Dropped delayed sync job",
			zap.String("job_id", job.ID.String()),
			zap.String("entity_type", string(job.EntityType)),
		)
	}
}

func (s *SyncScheduler) enqueueLocked(job *SyncJob) bool {
	job.Status = SyncJobStatusQueued
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// CancelPending cancels the delayed jobs of an entity type and returns how
// many were cancelled. Queued and running jobs are not affected.
func (s *SyncScheduler) CancelPending(entityType datasync.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, d := range s.delayed {
		if d.job.EntityType != entityType {
			continue
		}
		if d.timer.Stop() {
			d.job.Cancel()
			delete(s.delayed, id)
			s.pending--
			n++
		}
	}
	return n
}

// Pending returns the number of delayed and queued jobs
func (s *SyncScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.mu.Lock()
			if s.pending > 0 {
				s.pending--
			}
			s.mu.Unlock()
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	job.Start()
	s.logger.Info("Running scheduled sync",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("entity_type", string(job.EntityType)),
		zap.String("trigger", string(job.Trigger)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.executor.Execute(jobCtx, job); err != nil {
		job.Fail(err.Error())
		s.logger.Error("Scheduled sync failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("entity_type", string(job.EntityType)),
			zap.Error(err),
		)
	} else {
		job.Complete()
		s.logger.Info("Scheduled sync completed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("entity_type", string(job.EntityType)),
		)
	}
	s.addToHistory(job)
}

// addToHistory adds a finished job to history
func (s *SyncScheduler) addToHistory(job *SyncJob) {
	if s.config.MaxHistory == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*SyncJob{job}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}

// GetJobHistory returns recent finished jobs, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}
