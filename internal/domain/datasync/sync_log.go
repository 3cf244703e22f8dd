package datasync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/partsync/backend/internal/domain/shared"
)

// MaxRejectionSample bounds the rejections kept on a sync log
const MaxRejectionSample = 100

// BatchDelta is the count change one pipeline batch contributes to a sync log
type BatchDelta struct {
	Offset     int
	Fetched    int
	Created    int
	Updated    int
	Unchanged  int
	Failed     int
	Rejections []Rejection
}

// SyncLog records one synchronization attempt for an entity type.
// Processed always equals Created + Updated + Failed; records that matched
// the catalog exactly are counted in Unchanged only.
type SyncLog struct {
	shared.BaseAggregateRoot
	EntityType       EntityType  `json:"entity_type"`
	Status           SyncStatus  `json:"status"`
	Trigger          SyncTrigger `json:"trigger"`
	Processed        int         `json:"processed"`
	Created          int         `json:"created"`
	Updated          int         `json:"updated"`
	Failed           int         `json:"failed"`
	Unchanged        int         `json:"unchanged"`
	Fetched          int         `json:"fetched"`
	BatchesCompleted int         `json:"batches_completed"`
	LastOffset       int         `json:"last_offset"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	RejectionSample  []Rejection `json:"rejection_sample,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// NewSyncLog creates a pending sync log
func NewSyncLog(entityType EntityType, trigger SyncTrigger) (*SyncLog, error) {
	if !entityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", fmt.Sprintf("Invalid entity type: %s", entityType))
	}
	if !trigger.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRIGGER", fmt.Sprintf("Invalid sync trigger: %s", trigger))
	}

	return &SyncLog{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		EntityType:        entityType,
		Status:            SyncStatusPending,
		Trigger:           trigger,
		RejectionSample:   make([]Rejection, 0),
	}, nil
}

// Start moves the log from pending to running
func (l *SyncLog) Start() error {
	if l.Status != SyncStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start sync from state: %s", l.Status))
	}

	now := time.Now()
	l.Status = SyncStatusRunning
	l.StartedAt = &now
	l.UpdatedAt = now
	l.IncrementVersion()
	return nil
}

// ResumeFrom records the offset a resumed run starts at
func (l *SyncLog) ResumeFrom(offset int) {
	l.LastOffset = offset
}

// ApplyBatch folds one batch outcome into the counts
func (l *SyncLog) ApplyBatch(delta BatchDelta) error {
	if l.Status != SyncStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply batch in state: %s", l.Status))
	}
	if delta.Created < 0 || delta.Updated < 0 || delta.Failed < 0 || delta.Unchanged < 0 || delta.Fetched < 0 {
		return shared.NewDomainError("INVALID_DELTA", "Batch counts cannot be negative")
	}

	l.Created += delta.Created
	l.Updated += delta.Updated
	l.Failed += delta.Failed
	l.Unchanged += delta.Unchanged
	l.Fetched += delta.Fetched
	l.Processed = l.Created + l.Updated + l.Failed
	l.BatchesCompleted++
	l.LastOffset = delta.Offset

	for _, r := range delta.Rejections {
		if len(l.RejectionSample) >= MaxRejectionSample {
			break
		}
		l.RejectionSample = append(l.RejectionSample, r)
	}

	l.UpdatedAt = time.Now()
	l.IncrementVersion()
	return nil
}

// Complete marks the run as successfully finished
func (l *SyncLog) Complete() error {
	if l.Status != SyncStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete sync from state: %s", l.Status))
	}
	l.finish(SyncStatusCompleted, "")
	l.AddDomainEvent(NewSyncFinishedEvent(l))
	return nil
}

// Fail marks the run as failed with a human-readable summary
func (l *SyncLog) Fail(message string) error {
	if l.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail sync from terminal state: %s", l.Status))
	}
	if message == "" {
		message = "sync failed"
	}
	l.finish(SyncStatusFailed, message)
	l.AddDomainEvent(NewSyncFinishedEvent(l))
	return nil
}

// Cancel marks the run as cancelled
func (l *SyncLog) Cancel() error {
	if l.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel sync from terminal state: %s", l.Status))
	}
	l.finish(SyncStatusCancelled, "")
	l.AddDomainEvent(NewSyncFinishedEvent(l))
	return nil
}

func (l *SyncLog) finish(status SyncStatus, message string) {
	now := time.Now()
	l.Status = status
	l.ErrorMessage = message
	l.CompletedAt = &now
	l.UpdatedAt = now
	l.IncrementVersion()
}

// IsRunning returns true while the run is in progress
func (l *SyncLog) IsRunning() bool {
	return l.Status == SyncStatusRunning
}

// CountsConsistent reports whether processed equals created+updated+failed
func (l *SyncLog) CountsConsistent() bool {
	return l.Processed == l.Created+l.Updated+l.Failed
}

// RejectionSampleJSON returns the rejection sample as a JSON string
func (l *SyncLog) RejectionSampleJSON() (string, error) {
	if len(l.RejectionSample) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l.RejectionSample)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rejection sample: %w", err)
	}
	return string(data), nil
}

// SetRejectionSampleFromJSON parses the rejection sample from a JSON string
func (l *SyncLog) SetRejectionSampleFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		l.RejectionSample = make([]Rejection, 0)
		return nil
	}
	var sample []Rejection
	if err := json.Unmarshal([]byte(jsonStr), &sample); err != nil {
		return fmt.Errorf("failed to unmarshal rejection sample: %w", err)
	}
	l.RejectionSample = sample
	return nil
}

// Duration returns how long the run took, or has been taking
func (l *SyncLog) Duration() time.Duration {
	if l.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if l.CompletedAt != nil {
		end = *l.CompletedAt
	}
	return end.Sub(*l.StartedAt)
}
