package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []*SyncJob
	err  error
}

func (r *recordingSubmitter) Schedule(entityType datasync.EntityType, trigger datasync.SyncTrigger, delay time.Duration) (*SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	job := NewSyncJob(entityType, trigger, delay)
	r.jobs = append(r.jobs, job)
	return job, nil
}

func (r *recordingSubmitter) submitted() []*SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*SyncJob(nil), r.jobs...)
}

func TestNewPeriodicTrigger_Validation(t *testing.T) {
	_, err := NewPeriodicTrigger(map[datasync.EntityType]time.Duration{
		datasync.EntityPart: time.Second,
	}, &recordingSubmitter{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewPeriodicTrigger(map[datasync.EntityType]time.Duration{
		"widgets": time.Hour,
	}, &recordingSubmitter{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	trigger, err := NewPeriodicTrigger(map[datasync.EntityType]time.Duration{
		datasync.EntityPart: time.Hour,
	}, &recordingSubmitter{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, trigger)
}

func TestPeriodicTrigger_FiresScheduledSyncs(t *testing.T) {
	submitter := &recordingSubmitter{}
	trigger := &PeriodicTrigger{
		schedules: map[datasync.EntityType]time.Duration{datasync.EntityStock: 20 * time.Millisecond},
		submitter: submitter,
		logger:    newTestLogger(),
	}

	require.NoError(t, trigger.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(submitter.submitted()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))

	for _, job := range submitter.submitted() {
		assert.Equal(t, datasync.EntityStock, job.EntityType)
		assert.Equal(t, datasync.TriggerScheduled, job.Trigger)
	}
}

func TestPeriodicTrigger_QueueFullIsNotFatal(t *testing.T) {
	submitter := &recordingSubmitter{err: ErrJobQueueFull}
	trigger := &PeriodicTrigger{
		schedules: map[datasync.EntityType]time.Duration{datasync.EntityPart: 10 * time.Millisecond},
		submitter: submitter,
		logger:    newTestLogger(),
	}

	require.NoError(t, trigger.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, trigger.Stop(ctx))
	assert.Empty(t, submitter.submitted())
}
