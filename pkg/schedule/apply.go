package schedule

import (
	"errors"
	"fmt"
	"time"

	"momentra/pkg/model"
)

// apply.go carries the write half of the resolver: patching a pending
// candidate and applying a chosen resolution option. Every time-affecting
// write re-runs conflict detection before it lands, so a fix that collides
// with a third event surfaces a fresh AMBIGUITY instead of silently
// double-booking.

// staleRetries bounds the re-read/re-apply loop on ErrStaleRevision. Two
// browser tabs racing the same candidate converge well within this.
const staleRetries = 3

// CandidatePatch is a partial update to a pending candidate. Nil fields are
// left untouched. Setting Start without End shifts the event, preserving
// its duration.
type CandidatePatch struct {
	Description *string
	CommandType *model.CommandType
	Title       *string
	Start       *time.Time
	End         *time.Time
}

// PatchCandidate applies the patch and re-runs conflict detection. With
// ignoreConflicts the candidate is forced to CREATE_TASK even when rivals
// overlap; otherwise an overlap rewrites it to AMBIGUITY with fresh
// options. Returns the updated candidate either way.
func (s *Scheduler) PatchCandidate(owner, id string, patch CandidatePatch, ignoreConflicts bool) (*model.Candidate, error) {
	for attempt := 0; attempt < staleRetries; attempt++ {
		c, err := s.candidateOf(owner, id)
		if err != nil {
			return nil, err
		}

		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.CommandType != nil {
			c.CommandType = *patch.CommandType
		}
		if patch.Title != nil {
			c.Parameters.Title = *patch.Title
		}
		if patch.Start != nil {
			if patch.End == nil && c.Parameters.Start != nil && c.Parameters.End != nil {
				// Shift: keep the event's duration.
				dur := c.Parameters.End.Sub(*c.Parameters.Start)
				end := patch.Start.Add(dur)
				c.Parameters.End = &end
			}
			c.Parameters.Start = patch.Start
		}
		if patch.End != nil {
			c.Parameters.End = patch.End
		}

		if c.Parameters.Start != nil && c.Parameters.End != nil &&
			!c.Parameters.End.After(*c.Parameters.Start) {
			return nil, model.ErrInvalidInterval
		}

		if err := s.reresolve(owner, c, ignoreConflicts); err != nil {
			return nil, err
		}

		err = s.store.UpdateCandidate(c)
		if errors.Is(err, model.ErrStaleRevision) {
			s.log.Debug("candidate moved underneath patch, retrying", "candidate", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, model.ErrStaleRevision
}

// reresolve re-runs conflict detection for the candidate in memory and
// rewrites its command type accordingly. Candidates without a start time
// are left as they are; there is nothing to check yet.
func (s *Scheduler) reresolve(owner string, c *model.Candidate, ignoreConflicts bool) error {
	res, err := s.Resolve(owner, c)
	if err != nil {
		return err
	}
	if _, ok := c.Parameters.Interval(s.prefs.DefaultDuration); !ok {
		return nil
	}
	if res.Conflict() && !ignoreConflicts {
		s.ambiguate(owner, c, res)
		return nil
	}
	c.CommandType = model.CommandCreateTask
	c.Parameters.Message = ""
	c.Parameters.Options = nil
	return nil
}

// ApplyResult reports what a resolution option did. Exactly one of the
// fields is meaningful: Discarded, ManualAdjust (keep-both chosen, the
// client re-times one side next), Task (candidate committed), or Candidate
// (candidate updated and still pending, possibly with a fresh AMBIGUITY).
type ApplyResult struct {
	Discarded    bool
	ManualAdjust bool
	Task         *model.Task
	Candidate    *model.Candidate
}

// ApplyOption applies one resolution option to a pending candidate.
func (s *Scheduler) ApplyOption(owner, candID string, opt model.OptionValue, ignoreConflicts bool) (*ApplyResult, error) {
	switch {
	case opt.Discard:
		if _, err := s.candidateOf(owner, candID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// Discarding twice is harmless.
				return &ApplyResult{Discarded: true}, nil
			}
			return nil, err
		}
		if err := s.store.DeleteCandidate(candID); err != nil {
			return nil, err
		}
		return &ApplyResult{Discarded: true}, nil

	case opt.KeepBoth:
		// Keeping both means the user re-times one side manually; the
		// candidate stays pending until that retime passes re-validation.
		c, err := s.candidateOf(owner, candID)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{ManualAdjust: true, Candidate: c}, nil

	case opt.RemoveTaskID != "":
		return s.replaceTask(owner, candID, opt.RemoveTaskID, ignoreConflicts)

	case opt.RemoveCandidateID != "":
		return s.replaceCandidate(owner, candID, opt.RemoveCandidateID, ignoreConflicts)

	case opt.Start != nil:
		// Retime, including the suggested-slot option.
		patch := CandidatePatch{Start: opt.Start, End: opt.End}
		if opt.Title != "" {
			patch.Title = &opt.Title
		}
		c, err := s.PatchCandidate(owner, candID, patch, ignoreConflicts)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Candidate: c}, nil

	default:
		return nil, fmt.Errorf("%w: empty resolution option", model.ErrInvalidInterval)
	}
}

// replaceTask resolves a conflict by removing the named committed task in
// favor of the candidate. The removal and the commit happen in one
// transaction when the slot is otherwise clean. When a second-order
// conflict remains, only the removal sticks: the candidate returns to
// AMBIGUITY against the fresh rival, again atomically with the delete.
func (s *Scheduler) replaceTask(owner, candID, removeTaskID string, ignoreConflicts bool) (*ApplyResult, error) {
	for attempt := 0; attempt < staleRetries; attempt++ {
		c, err := s.candidateOf(owner, candID)
		if err != nil {
			return nil, err
		}
		res, err := s.resolveExcluding(owner, c, removeTaskID, "")
		if err != nil {
			return nil, err
		}
		iv, ok := c.Parameters.Interval(s.prefs.DefaultDuration)
		if !ok {
			return nil, model.ErrInvalidInterval
		}

		if !res.Conflict() || ignoreConflicts {
			t, err := s.store.ReplaceTaskWithCandidate(owner, removeTaskID, candID, s.taskFromCandidate(owner, c, iv))
			if err != nil {
				return nil, err
			}
			s.log.Info("replaced task with candidate",
				"owner", owner, "removed_task", removeTaskID, "task", t.ID)
			return &ApplyResult{Task: t}, nil
		}

		s.ambiguate(owner, c, res)
		err = s.store.DeleteTaskRewriteCandidate(owner, removeTaskID, c)
		if errors.Is(err, model.ErrStaleRevision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("replace uncovered a second conflict",
			"owner", owner, "removed_task", removeTaskID, "candidate", c.ID)
		return &ApplyResult{Candidate: c}, nil
	}
	return nil, model.ErrStaleRevision
}

// replaceCandidate resolves a conflict between two pending candidates of
// the same job by removing the rival in favor of this one.
func (s *Scheduler) replaceCandidate(owner, candID, removeCandID string, ignoreConflicts bool) (*ApplyResult, error) {
	c, err := s.candidateOf(owner, candID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolveExcluding(owner, c, "", removeCandID)
	if err != nil {
		return nil, err
	}
	iv, ok := c.Parameters.Interval(s.prefs.DefaultDuration)
	if !ok {
		return nil, model.ErrInvalidInterval
	}

	if !res.Conflict() || ignoreConflicts {
		t, err := s.store.ReplaceCandidateWithCandidate(removeCandID, candID, s.taskFromCandidate(owner, c, iv))
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Task: t}, nil
	}

	// A second-order conflict remains: drop the rival (idempotent), then
	// re-surface the new first rival on the surviving candidate.
	if err := s.store.DeleteCandidate(removeCandID); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < staleRetries; attempt++ {
		s.ambiguate(owner, c, res)
		err = s.store.UpdateCandidate(c)
		if errors.Is(err, model.ErrStaleRevision) {
			if c, err = s.candidateOf(owner, candID); err != nil {
				return nil, err
			}
			if res, err = s.Resolve(owner, c); err != nil {
				return nil, err
			}
			if !res.Conflict() {
				return &ApplyResult{Candidate: c}, nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Candidate: c}, nil
	}
	return nil, model.ErrStaleRevision
}

// candidateOf loads a candidate and verifies, through its job, that it
// belongs to owner. Cross-owner access reads as not found.
func (s *Scheduler) candidateOf(owner, id string) (*model.Candidate, error) {
	c, err := s.store.GetCandidate(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetJob(owner, c.JobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}
