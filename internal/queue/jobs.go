package queue

import (
	"time"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// Task is one pending hand-off of a stored upload to the analysis worker.
type Task struct {
	JobID      string
	Blob       types.BlobRef
	EnqueuedAt time.Time
}

// NewTask creates a task stamped with the current time.
func NewTask(jobID string, blob types.BlobRef) Task {
	return Task{
		JobID:      jobID,
		Blob:       blob,
		EnqueuedAt: time.Now(),
	}
}
