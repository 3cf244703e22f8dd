package scheduler

import "errors"

// Submission and configuration errors. Callers match them with errors.Is;
// the HTTP layer turns ErrJobQueueFull into 503 with Retry-After.
var (
	ErrSchedulerNotRunning = errors.New("sync scheduler is not running")
	ErrJobQueueFull        = errors.New("sync job queue is full")
	ErrInvalidConfig       = errors.New("invalid sync scheduler configuration")
	ErrInvalidInterval     = errors.New("sync interval is below the minimum")
)
