package queue

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

// Job is one unit of notification processing. There is at most one job per
// notification; re-enqueueing reuses the row.
type Job struct {
	ID             uuid.UUID
	NotificationID uuid.UUID
	Status         Status
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	LockedAt       *time.Time
	LastError      *string
	// Rerun is set when the job was enqueued again while running.
	Rerun          bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
