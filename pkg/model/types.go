// Package model defines the core domain types for momentra.
//
// Momentra turns natural-language plans into a personal schedule in two
// stages:
//
//   - A parser (rule-based fast path, or an external LLM) extracts candidate
//     events from raw text. Candidates live inside a Job and await user
//     confirmation.
//
//   - The scheduler checks every candidate against the user's committed
//     tasks using half-open interval overlap. A clean candidate becomes a
//     Task; a conflicting one becomes an AMBIGUITY carrying resolution
//     options (discard, replace, keep both) until the user settles it.
//
// All instants in this package are UTC. Local-time conversion happens at the
// boundary (parser input, UI output), never inside the core.
package model

import "time"

// DefaultDuration is the fallback span for events parsed without an end
// time. Overridable via config; see config.Config.DefaultDurationMin.
const DefaultDuration = 30 * time.Minute

// Interval is a half-open time span [Start, End). Half-open means two
// back-to-back intervals (A.End == B.Start) do NOT overlap.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals intersect:
// [s1,e1) and [s2,e2) overlap iff s1 < e2 AND s2 < e1.
// Symmetric; adjacency is not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Normalize returns the interval with a missing or non-positive end filled
// in as Start + d. Callers compare normalized intervals only.
func (iv Interval) Normalize(d time.Duration) Interval {
	if d <= 0 {
		d = DefaultDuration
	}
	if iv.End.IsZero() || !iv.End.After(iv.Start) {
		iv.End = iv.Start.Add(d)
	}
	return iv
}

// Validate rejects an explicitly supplied end that is not strictly after
// the start. A zero end is allowed (it is filled in by Normalize).
func (iv Interval) Validate() error {
	if iv.Start.IsZero() {
		return ErrInvalidInterval
	}
	if !iv.End.IsZero() && !iv.End.After(iv.Start) {
		return ErrInvalidInterval
	}
	return nil
}

// Duration returns End - Start. Zero for intervals without an end.
func (iv Interval) Duration() time.Duration {
	if iv.End.IsZero() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Task is a committed calendar event. It is created by accepting a
// candidate and lives until explicitly deleted. Rev is an optimistic
// concurrency token: updates must present the revision they read.
type Task struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	SourceJobID string    `json:"source_job_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Blocking    bool      `json:"is_blocking"`
	Rev         int64     `json:"rev"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interval returns the task's time span.
func (t Task) Interval() Interval { return Interval{Start: t.Start, End: t.End} }

// CommandType is the lifecycle state of a candidate.
type CommandType string

const (
	// CommandCreateTask marks a candidate with no known conflict, ready to
	// be committed as a Task.
	CommandCreateTask CommandType = "CREATE_TASK"
	// CommandAmbiguity marks a candidate that cannot auto-commit; its
	// Parameters carry a message and resolution options.
	CommandAmbiguity CommandType = "AMBIGUITY"
)

// Parameters is the mutable payload of a candidate. Start/End are pointers:
// nil means the parser could not extract that bound.
type Parameters struct {
	Title       string            `json:"title,omitempty"`
	Start       *time.Time        `json:"start_time,omitempty"`
	End         *time.Time        `json:"end_time,omitempty"`
	Description string            `json:"description,omitempty"`
	Message     string            `json:"message,omitempty"`
	Options     []AmbiguityOption `json:"options,omitempty"`
}

// Interval maps the parameters onto a normalized interval. ok is false when
// no start time is known, in which case the candidate cannot conflict with
// anything (and cannot be committed either).
func (p Parameters) Interval(defaultDur time.Duration) (iv Interval, ok bool) {
	if p.Start == nil {
		return Interval{}, false
	}
	iv.Start = p.Start.UTC()
	if p.End != nil {
		iv.End = p.End.UTC()
	}
	return iv.Normalize(defaultDur), true
}

// Candidate is a proposed event awaiting user confirmation. It oscillates
// between CREATE_TASK and AMBIGUITY as its time is edited and conflicts are
// re-evaluated; its terminal states are commit (a Task is created and the
// candidate deleted) or discard (deleted without a Task).
type Candidate struct {
	ID          string      `json:"id"`
	JobID       string      `json:"job_id"`
	Description string      `json:"description"`
	CommandType CommandType `json:"command_type"`
	Parameters  Parameters  `json:"parameters"`
	Rev         int64       `json:"rev"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OptionValue is one resolvable action attached to an AMBIGUITY candidate.
// Exactly one of the action fields is meaningful per option; the JSON keys
// are wire format parsed by the UI and must stay stable.
type OptionValue struct {
	// Discard drops the candidate entirely.
	Discard bool `json:"discard,omitempty"`
	// KeepBoth opens the manual time-adjustment flow; every retime is
	// independently re-validated against the overlap detector.
	KeepBoth bool `json:"keep_both,omitempty"`
	// RemoveTaskID deletes the named committed task, then commits the
	// candidate (subject to a fresh conflict check).
	RemoveTaskID string `json:"remove_task_id,omitempty"`
	// RemoveCandidateID is the same, when the rival is a still-pending
	// candidate in the same job.
	RemoveCandidateID string `json:"remove_candidate_id,omitempty"`
	// Title/Start/End retime the candidate directly (AM-PM disambiguation,
	// suggested slots). Suggested marks a scheduler-computed slot.
	Title     string     `json:"title,omitempty"`
	Start     *time.Time `json:"start_time,omitempty"`
	End       *time.Time `json:"end_time,omitempty"`
	Suggested bool       `json:"suggested,omitempty"`
}

// AmbiguityOption pairs a user-facing label with its action value.
type AmbiguityOption struct {
	Label string      `json:"label"`
	Value OptionValue `json:"value"`
}

// JobStatus tracks a job through intake.
type JobStatus string

const (
	JobCreated JobStatus = "created"
	JobParsed  JobStatus = "parsed"
)

// Job is one natural-language submission and the batch of candidates parsed
// from it. A job is effectively done once every candidate has been
// committed or discarded; deleting the job itself is the caller's call.
type Job struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	RawText       string    `json:"raw_text"`
	UserLocalTime string    `json:"user_local_time,omitempty"`
	Status        JobStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// ParsedEvent is the parser boundary shape: one event extracted from raw
// text, times already normalized to UTC.
type ParsedEvent struct {
	Title       string
	Start       *time.Time
	End         *time.Time
	Description string
}

// ParsedAmbiguity is a parser-level ambiguity (e.g. "8" without AM/PM)
// surfaced as an AMBIGUITY candidate with pre-built options.
type ParsedAmbiguity struct {
	Title   string
	Message string
	Options []AmbiguityOption
}
