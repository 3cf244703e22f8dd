package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
)

// SyncJobStatus represents the status of a scheduled sync job
type SyncJobStatus string

const (
	SyncJobStatusDelayed   SyncJobStatus = "DELAYED"
	SyncJobStatusQueued    SyncJobStatus = "QUEUED"
	SyncJobStatusRunning   SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess   SyncJobStatus = "SUCCESS"
	SyncJobStatusFailed    SyncJobStatus = "FAILED"
	SyncJobStatusCancelled SyncJobStatus = "CANCELLED"
)

// SyncJob is a sync run requested for later execution
type SyncJob struct {
	ID          uuid.UUID
	EntityType  datasync.EntityType
	Trigger     datasync.SyncTrigger
	RunAt       time.Time
	Status      SyncJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewSyncJob creates a job that becomes due after delay
func NewSyncJob(entityType datasync.EntityType, trigger datasync.SyncTrigger, delay time.Duration) *SyncJob {
	if delay < 0 {
		delay = 0
	}
	return &SyncJob{
		ID:         uuid.New(),
		EntityType: entityType,
		Trigger:    trigger,
		RunAt:      time.Now().Add(delay),
		Status:     SyncJobStatusDelayed,
	}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *SyncJob) Complete() {
	now := time.Now()
	j.Status = SyncJobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err string) {
	now := time.Now()
	j.Status = SyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// Cancel marks a job that never ran
func (j *SyncJob) Cancel() {
	now := time.Now()
	j.Status = SyncJobStatusCancelled
	j.CompletedAt = &now
}

// SyncExecutor runs a due sync job. Execute should return once the run has
// finished so the worker pool bounds concurrent runs.
type SyncExecutor interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// SyncExecutorFunc adapts a function to SyncExecutor
type SyncExecutorFunc func(ctx context.Context, job *SyncJob) error

// Execute calls f
func (f SyncExecutorFunc) Execute(ctx context.Context, job *SyncJob) error {
	return f(ctx, job)
}
