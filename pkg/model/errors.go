package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the scheduling core. Conflicts are deliberately NOT
// an error sentinel: a detected overlap is a recoverable control-flow
// signal carried by *ConflictError so callers can present options.
var (
	// ErrNotFound means the referenced job, candidate, or task does not
	// exist. Surfaced to the caller, never retried.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInterval means a proposed edit would leave end <= start.
	// Rejected before any write.
	ErrInvalidInterval = errors.New("invalid interval: end must be after start")

	// ErrStaleRevision means an optimistic-concurrency check failed: the
	// row changed between read and write. Callers re-read and re-apply.
	ErrStaleRevision = errors.New("stale revision")
)

// ConflictError reports a temporal overlap with an existing task. The JSON
// field names are parsed by the UI by convention and must stay stable.
// Always recoverable: the caller turns it into resolution options.
type ConflictError struct {
	ExistingTaskID string    `json:"existing_task_id"`
	ExistingTitle  string    `json:"existing_title"`
	ExistingStart  time.Time `json:"existing_start"`
	ExistingEnd    time.Time `json:"existing_end"`
	Suggestion     *Interval `json:"suggestion,omitempty"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicts with %q (%s - %s)",
		e.ExistingTitle,
		e.ExistingStart.Format(time.RFC3339),
		e.ExistingEnd.Format(time.RFC3339))
}

// NewConflictError builds the wire payload from the conflicting task.
func NewConflictError(t Task, suggestion *Interval) *ConflictError {
	return &ConflictError{
		ExistingTaskID: t.ID,
		ExistingTitle:  t.Title,
		ExistingStart:  t.Start,
		ExistingEnd:    t.End,
		Suggestion:     suggestion,
	}
}
