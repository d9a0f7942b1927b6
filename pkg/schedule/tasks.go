package schedule

import (
	"errors"
	"time"

	"momentra/pkg/model"
)

// tasks.go covers edits to committed tasks. Moving or resizing a task runs
// the same overlap check as candidate commits, excluding the task's own
// prior interval, and reports the first conflict with an optional suggested
// slot. Moving onto a third task just reports the next conflict: chains
// resolve one hop at a time.

// TaskPatch is a partial update to a committed task. Nil fields are left
// untouched. Setting Start without End shifts the task, preserving its
// duration.
type TaskPatch struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Blocking    *bool
}

// ScheduleTask creates a task directly, subject to the same conflict check
// as candidate commits. On overlap it returns *model.ConflictError (with a
// suggested slot when one exists) and creates nothing, unless
// ignoreConflicts is set.
func (s *Scheduler) ScheduleTask(owner string, t *model.Task, ignoreConflicts bool) (*model.Task, error) {
	t.Owner = owner
	// Validate the raw interval before normalizing: Normalize fills a
	// backwards end the same way it fills a missing one, which would turn
	// an invalid request into a task the user never asked for.
	if err := t.Interval().Validate(); err != nil {
		return nil, err
	}
	iv := t.Interval().Normalize(s.prefs.DefaultDuration)
	t.Start, t.End = iv.Start, iv.End

	if t.Blocking {
		conflicts, err := s.ConflictsWith(owner, iv, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 && !ignoreConflicts {
			return nil, model.NewConflictError(conflicts[0], s.suggestionFor(owner, iv, conflicts[0]))
		}
	}
	return s.store.CreateTask(t)
}

// UpdateTask applies the patch to a committed task, re-validating the new
// interval against every other blocking task of the owner. On overlap it
// returns *model.ConflictError and writes nothing, unless ignoreConflicts
// is set. Revision races with concurrent editors are retried by re-reading
// and re-applying the patch.
func (s *Scheduler) UpdateTask(owner, id string, patch TaskPatch, ignoreConflicts bool) (*model.Task, error) {
	for attempt := 0; attempt < staleRetries; attempt++ {
		t, err := s.store.GetTask(owner, id)
		if err != nil {
			return nil, err
		}

		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Start != nil {
			if patch.End == nil {
				t.End = patch.Start.Add(t.End.Sub(t.Start))
			}
			t.Start = *patch.Start
		}
		if patch.End != nil {
			t.End = *patch.End
		}
		if patch.Blocking != nil {
			t.Blocking = *patch.Blocking
		}

		iv := t.Interval()
		if err := iv.Validate(); err != nil {
			return nil, err
		}

		if t.Blocking {
			conflicts, err := s.ConflictsWith(owner, iv, t.ID)
			if err != nil {
				return nil, err
			}
			if len(conflicts) > 0 && !ignoreConflicts {
				return nil, model.NewConflictError(conflicts[0], s.suggestionFor(owner, iv, conflicts[0]))
			}
		}

		err = s.store.UpdateTask(t)
		if errors.Is(err, model.ErrStaleRevision) {
			s.log.Debug("task moved underneath patch, retrying", "task", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, model.ErrStaleRevision
}
