package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/datasync"
)

// SyncLogModel is the persistence model for the SyncLog aggregate
type SyncLogModel struct {
	AggregateModel
	EntityType       datasync.EntityType  `gorm:"type:varchar(32);not null;index"`
	Status           datasync.SyncStatus  `gorm:"type:varchar(20);not null;index"`
	Trigger          datasync.SyncTrigger `gorm:"type:varchar(20);not null"`
	Processed        int                  `gorm:"not null;default:0"`
	Created          int                  `gorm:"not null;default:0"`
	Updated          int                  `gorm:"not null;default:0"`
	Failed           int                  `gorm:"not null;default:0"`
	Unchanged        int                  `gorm:"not null;default:0"`
	Fetched          int                  `gorm:"not null;default:0"`
	BatchesCompleted int                  `gorm:"not null;default:0"`
	LastOffset       int                  `gorm:"not null;default:0"`
	ErrorMessage     string               `gorm:"type:text"`
	RejectionSample  string               `gorm:"type:text;not null;default:'[]'"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog
func (m *SyncLogModel) ToDomain() *datasync.SyncLog {
	log := &datasync.SyncLog{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		EntityType:        m.EntityType,
		Status:            m.Status,
		Trigger:           m.Trigger,
		Processed:         m.Processed,
		Created:           m.Created,
		Updated:           m.Updated,
		Failed:            m.Failed,
		Unchanged:         m.Unchanged,
		Fetched:           m.Fetched,
		BatchesCompleted:  m.BatchesCompleted,
		LastOffset:        m.LastOffset,
		ErrorMessage:      m.ErrorMessage,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
	}

	// A corrupt sample is not worth failing a status read over
	if err := log.SetRejectionSampleFromJSON(m.RejectionSample); err != nil {
		log.RejectionSample = make([]datasync.Rejection, 0)
	}
	return log
}

// FromDomain populates the persistence model from a domain SyncLog
func (m *SyncLogModel) FromDomain(l *datasync.SyncLog) error {
	m.FromDomainAggregateRoot(l.BaseAggregateRoot)
	m.EntityType = l.EntityType
	m.Status = l.Status
	m.Trigger = l.Trigger
	m.Processed = l.Processed
	m.Created = l.Created
	m.Updated = l.Updated
	m.Failed = l.Failed
	m.Unchanged = l.Unchanged
	m.Fetched = l.Fetched
	m.BatchesCompleted = l.BatchesCompleted
	m.LastOffset = l.LastOffset
	m.ErrorMessage = l.ErrorMessage
	m.StartedAt = l.StartedAt
	m.CompletedAt = l.CompletedAt

	sample, err := l.RejectionSampleJSON()
	if err != nil {
		return err
	}
	m.RejectionSample = sample
	return nil
}

// SyncLogModelFromDomain creates a new persistence model from a domain SyncLog
func SyncLogModelFromDomain(l *datasync.SyncLog) (*SyncLogModel, error) {
	m := &SyncLogModel{}
	if err := m.FromDomain(l); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckpointModel stores one resume point per entity type
type CheckpointModel struct {
	EntityType datasync.EntityType `gorm:"type:varchar(32);primary_key"`
	SyncLogID  uuid.UUID           `gorm:"type:uuid;not null"`
	Offset     int                 `gorm:"column:row_offset;not null;default:0"`
	UpdatedAt  time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CheckpointModel) TableName() string {
	return "sync_checkpoints"
}

// ToDomain converts the persistence model to a domain Checkpoint
func (m *CheckpointModel) ToDomain() *datasync.Checkpoint {
	return &datasync.Checkpoint{
		EntityType: m.EntityType,
		SyncLogID:  m.SyncLogID,
		Offset:     m.Offset,
		UpdatedAt:  m.UpdatedAt,
	}
}

// CheckpointModelFromDomain creates a persistence model from a domain Checkpoint
func CheckpointModelFromDomain(cp datasync.Checkpoint) *CheckpointModel {
	return &CheckpointModel{
		EntityType: cp.EntityType,
		SyncLogID:  cp.SyncLogID,
		Offset:     cp.Offset,
		UpdatedAt:  cp.UpdatedAt,
	}
}
