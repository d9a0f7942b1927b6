// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The scheduler and the
// HTTP layer accept StoreInterface instead of *Store, enabling fault
// injection in tests (e.g. a store whose CommitCandidate always fails, to
// prove a failed commit never strands a candidate).
package store

import (
	"time"

	"momentra/pkg/model"
)

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Jobs ---

	// CreateJob persists a new job in status "created".
	CreateJob(owner, rawText, userLocalTime string) (*model.Job, error)

	// GetJob retrieves a job by ID, scoped to its owner.
	GetJob(owner, id string) (*model.Job, error)

	// SetJobStatus updates the job's intake status.
	SetJobStatus(owner, id string, status model.JobStatus) error

	// DeleteJob removes a job and (via cascade) its candidates.
	DeleteJob(owner, id string) error

	// --- Candidates ---

	// ReplaceJobCandidates atomically swaps a job's candidate set.
	ReplaceJobCandidates(jobID string, cands []model.Candidate) ([]model.Candidate, error)

	// GetCandidate retrieves a candidate by ID.
	GetCandidate(id string) (*model.Candidate, error)

	// ListCandidates returns a job's candidates in stable insertion order.
	ListCandidates(jobID string) ([]model.Candidate, error)

	// UpdateCandidate writes the candidate row, revision-guarded.
	UpdateCandidate(c *model.Candidate) error

	// DeleteCandidate removes a candidate; missing rows are a no-op.
	DeleteCandidate(id string) error

	// DeleteJobCandidates discards every remaining candidate of a job.
	DeleteJobCandidates(jobID string) error

	// --- Tasks ---

	// CreateTask persists a task directly.
	CreateTask(t *model.Task) (*model.Task, error)

	// GetTask retrieves a task by ID, scoped to its owner.
	GetTask(owner, id string) (*model.Task, error)

	// UpdateTask writes the task's mutable fields, revision-guarded.
	UpdateTask(t *model.Task) error

	// DeleteTask removes a task, freeing its interval.
	DeleteTask(owner, id string) error

	// ListTasks returns an owner's tasks intersecting [from, to).
	ListTasks(owner string, from, to time.Time) ([]model.Task, error)

	// ListTasksOverlapping returns blocking tasks overlapping [start, end).
	ListTasksOverlapping(owner string, start, end time.Time, excludeID string) ([]model.Task, error)

	// --- Atomic commits ---

	// CommitCandidate creates the task and deletes the candidate atomically.
	CommitCandidate(candID string, t *model.Task) (*model.Task, error)

	// ReplaceTaskWithCandidate deletes a task and commits the candidate.
	ReplaceTaskWithCandidate(owner, removeTaskID, candID string, t *model.Task) (*model.Task, error)

	// ReplaceCandidateWithCandidate deletes a rival candidate and commits.
	ReplaceCandidateWithCandidate(removeCandID, candID string, t *model.Task) (*model.Task, error)

	// DeleteTaskRewriteCandidate deletes a task and rewrites the candidate.
	DeleteTaskRewriteCandidate(owner, removeTaskID string, c *model.Candidate) error
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
