package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type mockSyncExecutor struct {
	executeFunc func(ctx context.Context, job *SyncJob) error
	execCount   int32

	mu       sync.Mutex
	executed []datasync.EntityType
}

func (m *mockSyncExecutor) Execute(ctx context.Context, job *SyncJob) error {
	atomic.AddInt32(&m.execCount, 1)
	m.mu.Lock()
	m.executed = append(m.executed, job.EntityType)
	m.mu.Unlock()
	if m.executeFunc != nil {
		return m.executeFunc(ctx, job)
	}
	return nil
}

func (m *mockSyncExecutor) count() int32 {
	return atomic.LoadInt32(&m.execCount)
}

func startScheduler(t *testing.T, config SyncSchedulerConfig, executor SyncExecutor) *SyncScheduler {
	t.Helper()
	s, err := NewSyncScheduler(config, executor, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

// ---------------------------------------------------------------------------
// SyncJob Tests
// ---------------------------------------------------------------------------

func TestNewSyncJob(t *testing.T) {
	before := time.Now()
	job := NewSyncJob(datasync.EntityPart, datasync.TriggerScheduled, time.Minute)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, datasync.EntityPart, job.EntityType)
	assert.Equal(t, datasync.TriggerScheduled, job.Trigger)
	assert.Equal(t, SyncJobStatusDelayed, job.Status)
	assert.True(t, !job.RunAt.Before(before.Add(time.Minute)))
	assert.Nil(t, job.StartedAt)
}

func TestNewSyncJob_NegativeDelay(t *testing.T) {
	job := NewSyncJob(datasync.EntityPart, datasync.TriggerManual, -time.Hour)
	assert.False(t, job.RunAt.After(time.Now()))
}

func TestSyncJob_Lifecycle(t *testing.T) {
	job := NewSyncJob(datasync.EntityStock, datasync.TriggerManual, 0)
	job.Error = "previous error"

	job.Start()
	assert.Equal(t, SyncJobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Empty(t, job.Error)

	job.Fail("connection timeout")
	assert.Equal(t, SyncJobStatusFailed, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, "connection timeout", job.Error)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig Tests
// ---------------------------------------------------------------------------

func TestSyncSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *SyncSchedulerConfig)
		wantErr bool
	}{
		{"Valid default config", func(c *SyncSchedulerConfig) {}, false},
		{"No workers", func(c *SyncSchedulerConfig) { c.Workers = 0 }, true},
		{"No queue", func(c *SyncSchedulerConfig) { c.QueueSize = 0 }, true},
		{"No job timeout", func(c *SyncSchedulerConfig) { c.JobTimeout = 0 }, true},
		{"Negative history", func(c *SyncSchedulerConfig) { c.MaxHistory = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultSyncSchedulerConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SyncScheduler Tests
// ---------------------------------------------------------------------------

func TestNewSyncScheduler_InvalidConfig(t *testing.T) {
	s, err := NewSyncScheduler(SyncSchedulerConfig{}, &mockSyncExecutor{}, newTestLogger())

	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestSyncScheduler_StartStop(t *testing.T) {
	s, err := NewSyncScheduler(DefaultSyncSchedulerConfig(), &mockSyncExecutor{}, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	// Start again should be idempotent
	require.NoError(t, s.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	// Stop again should be idempotent
	require.NoError(t, s.Stop(stopCtx))
}

func TestSyncScheduler_SubmitJob_NotRunning(t *testing.T) {
	s, err := NewSyncScheduler(DefaultSyncSchedulerConfig(), &mockSyncExecutor{}, newTestLogger())
	require.NoError(t, err)

	_, err = s.Schedule(datasync.EntityPart, datasync.TriggerManual, 0)

	assert.Equal(t, ErrSchedulerNotRunning, err)
}

func TestSyncScheduler_RunsImmediateJob(t *testing.T) {
	executor := &mockSyncExecutor{}
	s := startScheduler(t, DefaultSyncSchedulerConfig(), executor)

	job, err := s.Schedule(datasync.EntityPart, datasync.TriggerManual, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return executor.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		history := s.GetJobHistory(10)
		return len(history) == 1 && history[0].ID == job.ID && history[0].Status == SyncJobStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.Pending())
}

func TestSyncScheduler_DelaysJob(t *testing.T) {
	executor := &mockSyncExecutor{}
	s := startScheduler(t, DefaultSyncSchedulerConfig(), executor)

	_, err := s.Schedule(datasync.EntityStock, datasync.TriggerManual, 150*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), executor.count())
	assert.Equal(t, 1, s.Pending())

	assert.Eventually(t, func() bool { return executor.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSyncScheduler_QueueFull(t *testing.T) {
	config := DefaultSyncSchedulerConfig()
	config.QueueSize = 2
	s := startScheduler(t, config, &mockSyncExecutor{})

	_, err := s.Schedule(datasync.EntityPart, datasync.TriggerManual, time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule(datasync.EntityStock, datasync.TriggerManual, time.Hour)
	require.NoError(t, err)

	_, err = s.Schedule(datasync.EntityPricing, datasync.TriggerManual, time.Hour)
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

func TestSyncScheduler_CancelPending(t *testing.T) {
	executor := &mockSyncExecutor{}
	s := startScheduler(t, DefaultSyncSchedulerConfig(), executor)

	partJob, err := s.Schedule(datasync.EntityPart, datasync.TriggerManual, time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule(datasync.EntityStock, datasync.TriggerManual, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, s.CancelPending(datasync.EntityPart))
	assert.Equal(t, SyncJobStatusCancelled, partJob.Status)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, 0, s.CancelPending(datasync.EntityPart))
}

func TestSyncScheduler_FailedJobRecorded(t *testing.T) {
	executor := &mockSyncExecutor{
		executeFunc: func(ctx context.Context, job *SyncJob) error {
			return errors.New("source unavailable")
		},
	}
	s := startScheduler(t, DefaultSyncSchedulerConfig(), executor)

	_, err := s.Schedule(datasync.EntityPart, datasync.TriggerScheduled, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		history := s.GetJobHistory(0)
		return len(history) == 1 && history[0].Status == SyncJobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "source unavailable", s.GetJobHistory(1)[0].Error)
}

func TestSyncScheduler_BoundsConcurrency(t *testing.T) {
	config := DefaultSyncSchedulerConfig()
	config.Workers = 1

	var running, maxRunning int32
	release := make(chan struct{})
	executor := &mockSyncExecutor{
		executeFunc: func(ctx context.Context, job *SyncJob) error {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		},
	}
	s := startScheduler(t, config, executor)

	for _, et := range []datasync.EntityType{datasync.EntityPart, datasync.EntityStock, datasync.EntityPricing} {
		_, err := s.Schedule(et, datasync.TriggerManual, 0)
		require.NoError(t, err)
	}
	close(release)

	assert.Eventually(t, func() bool { return executor.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestSyncScheduler_StopCancelsDelayedJobs(t *testing.T) {
	executor := &mockSyncExecutor{}
	s, err := NewSyncScheduler(DefaultSyncSchedulerConfig(), executor, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	job, err := s.Schedule(datasync.EntityPart, datasync.TriggerManual, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), executor.count())
	assert.Equal(t, SyncJobStatusCancelled, job.Status)
}

func TestErrors_AreDistinct(t *testing.T) {
	errs := []error{ErrSchedulerNotRunning, ErrJobQueueFull, ErrInvalidConfig, ErrInvalidInterval}
	for i, a := range errs {
		for j, b := range errs {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
