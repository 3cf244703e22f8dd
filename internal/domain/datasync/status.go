package datasync

// SyncStatus represents the status of a sync run
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// IsValid checks if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusRunning, SyncStatusCompleted,
		SyncStatusFailed, SyncStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed || s == SyncStatusCancelled
}

// SyncTrigger records how a run was started
type SyncTrigger string

const (
	TriggerManual    SyncTrigger = "manual"
	TriggerForced    SyncTrigger = "forced"
	TriggerScheduled SyncTrigger = "scheduled"
)

// IsValid checks if the trigger is valid
func (t SyncTrigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerForced, TriggerScheduled:
		return true
	}
	return false
}
