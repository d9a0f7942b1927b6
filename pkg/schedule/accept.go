package schedule

import (
	"errors"
	"fmt"

	"momentra/pkg/model"
)

// accept.go is the acceptance orchestrator: the bridge from a parsed job's
// candidate list to committed tasks. Each selected candidate is handled
// independently and in stable order, so one conflict never blocks the rest
// of the batch.

// AcceptResult reports the outcome of one acceptance round.
type AcceptResult struct {
	// TasksCreated are the tasks committed this round, in candidate order.
	TasksCreated []model.Task
	// Remaining are the candidates still pending after the round:
	// unselected ones, plus selected ones that turned into AMBIGUITY.
	Remaining []model.Candidate
}

// Accept commits the selected candidates of a job. Clean ones become tasks
// (atomically, per candidate: the task appears and the candidate disappears
// together or not at all). Conflicting ones are rewritten to AMBIGUITY in
// place and reported in Remaining. With ignoreConflicts every selected
// candidate with a valid interval commits regardless of overlaps.
//
// Selected IDs that no longer exist are skipped, so a double-submitted
// accept creates nothing twice. The job itself survives the round; it is
// only deleted by an explicit reject.
func (s *Scheduler) Accept(owner, jobID string, selectedIDs []string, ignoreConflicts bool) (*AcceptResult, error) {
	if _, err := s.store.GetJob(owner, jobID); err != nil {
		return nil, err
	}
	cands, err := s.store.ListCandidates(jobID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	out := &AcceptResult{}
	for i := range cands {
		c := cands[i]
		if !selected[c.ID] {
			out.Remaining = append(out.Remaining, c)
			continue
		}

		iv, ok := c.Parameters.Interval(s.prefs.DefaultDuration)
		if !ok {
			// No start time yet; the AM/PM (or similar) ambiguity has to
			// be answered before this one can commit.
			out.Remaining = append(out.Remaining, c)
			continue
		}

		res, err := s.Resolve(owner, &c)
		if err != nil {
			return nil, err
		}

		if res.Conflict() && !ignoreConflicts {
			s.ambiguate(owner, &c, res)
			if err := s.persistAmbiguity(owner, &c); err != nil {
				return nil, err
			}
			s.log.Info("candidate held back on conflict",
				"owner", owner, "job", jobID, "candidate", c.ID, "rival", res.First().ID())
			out.Remaining = append(out.Remaining, c)
			continue
		}

		t, err := s.store.CommitCandidate(c.ID, s.taskFromCandidate(owner, &c, iv))
		if errors.Is(err, model.ErrNotFound) {
			// Already committed or discarded by a concurrent round.
			continue
		}
		if err != nil {
			// The candidate is untouched; the job stays in preview.
			return nil, fmt.Errorf("commit candidate %s: %w", c.ID, err)
		}
		s.log.Info("candidate committed",
			"owner", owner, "job", jobID, "candidate", c.ID, "task", t.ID)
		out.TasksCreated = append(out.TasksCreated, *t)
	}
	return out, nil
}

// persistAmbiguity writes an in-memory AMBIGUITY rewrite, re-reading and
// re-resolving on a revision race.
func (s *Scheduler) persistAmbiguity(owner string, c *model.Candidate) error {
	for attempt := 0; attempt < staleRetries; attempt++ {
		err := s.store.UpdateCandidate(c)
		if !errors.Is(err, model.ErrStaleRevision) {
			return err
		}
		fresh, err := s.store.GetCandidate(c.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// Gone underneath us; nothing left to hold back.
				return nil
			}
			return err
		}
		res, err := s.Resolve(owner, fresh)
		if err != nil {
			return err
		}
		if res.Conflict() {
			s.ambiguate(owner, fresh, res)
		}
		*c = *fresh
	}
	return model.ErrStaleRevision
}

// RejectAll discards every remaining candidate of a job. The job row and
// any tasks already committed from it survive.
func (s *Scheduler) RejectAll(owner, jobID string) error {
	if _, err := s.store.GetJob(owner, jobID); err != nil {
		return err
	}
	if err := s.store.DeleteJobCandidates(jobID); err != nil {
		return err
	}
	s.log.Info("job candidates rejected", "owner", owner, "job", jobID)
	return nil
}
