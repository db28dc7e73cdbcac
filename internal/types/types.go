package types

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a dataset job.
// The values are stored verbatim in the records table.
type Status string

// Job status constants
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// BlobRef identifies an uploaded file held by the blob store.
type BlobRef struct {
	// Key is the stored name inside the upload directory.
	Key string
	// Name is the filename the client uploaded.
	Name string
}

// Record is the persisted state of one submitted dataset.
type Record struct {
	ID           string          `json:"id"`
	SourceName   string          `json:"sourceName"`
	BlobRef      string          `json:"blobRef"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Status       Status          `json:"status"`
	QualityScore *float64        `json:"qualityScore,omitempty"`
	TotalRows    *int            `json:"totalRows,omitempty"`
	AnomalyCount *int            `json:"anomalyCount,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Outcome is a terminal result reported for a pending job, either by the
// analysis worker or locally when the hand-off could not be made.
type Outcome struct {
	Status       Status          `json:"status"`
	QualityScore *float64        `json:"qualityScore,omitempty"`
	TotalRows    *int            `json:"totalRows,omitempty"`
	AnomalyCount *int            `json:"anomalyCount,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Failure builds a failed outcome carrying only a reason.
func Failure(reason string) Outcome {
	return Outcome{Status: StatusFailed, Error: reason}
}
