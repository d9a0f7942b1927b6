package store

import (
	"encoding/json"
	"fmt"

	"momentra/pkg/model"
)

// commit.go holds the compound operations the resolver needs to be atomic
// per candidate: either the Task is created and the Candidate deleted, or
// neither happens. Each runs in a single transaction so a storage failure
// can never strand a half-committed candidate.

// CommitCandidate creates the task and deletes the candidate atomically.
// Returns ErrNotFound (and creates nothing) if the candidate is already
// gone — a repeated accept of the same selection is therefore harmless.
func (s *Store) CommitCandidate(candID string, t *model.Task) (*model.Task, error) {
	prepareTask(t)
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		res, err := tx.Exec(`DELETE FROM candidates WHERE id = ?`, candID)
		if err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		if _, err := tx.Exec(
			`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Owner, t.SourceJobID, t.Title, t.Description,
			utcString(t.Start), utcString(t.End), boolToInt(t.Blocking), t.Rev, utcString(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReplaceTaskWithCandidate deletes the named conflicting task, creates the
// new task, and removes the candidate — all or nothing. Used by the
// "Replace" resolution once the resolver has verified no second conflict
// remains.
func (s *Store) ReplaceTaskWithCandidate(owner, removeTaskID, candID string, t *model.Task) (*model.Task, error) {
	prepareTask(t)
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.Exec(`DELETE FROM tasks WHERE id = ? AND owner = ?`, removeTaskID, owner)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		res, err = tx.Exec(`DELETE FROM candidates WHERE id = ?`, candID)
		if err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		if _, err := tx.Exec(
			`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Owner, t.SourceJobID, t.Title, t.Description,
			utcString(t.Start), utcString(t.End), boolToInt(t.Blocking), t.Rev, utcString(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReplaceCandidateWithCandidate deletes a rival pending candidate, creates
// the new task, and removes the winning candidate atomically. Same-job
// candidate conflicts resolve exactly like task conflicts.
func (s *Store) ReplaceCandidateWithCandidate(removeCandID, candID string, t *model.Task) (*model.Task, error) {
	prepareTask(t)
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.Exec(`DELETE FROM candidates WHERE id = ?`, removeCandID)
		if err != nil {
			return fmt.Errorf("delete rival candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		res, err = tx.Exec(`DELETE FROM candidates WHERE id = ?`, candID)
		if err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		if _, err := tx.Exec(
			`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Owner, t.SourceJobID, t.Title, t.Description,
			utcString(t.Start), utcString(t.End), boolToInt(t.Blocking), t.Rev, utcString(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTaskRewriteCandidate deletes the named task and rewrites the
// candidate (revision-guarded) in one transaction. Used when "Replace"
// removes the first conflicting task but a second-order conflict remains:
// the removal sticks, and the candidate returns to AMBIGUITY against the
// fresh rival.
func (s *Store) DeleteTaskRewriteCandidate(owner, removeTaskID string, c *model.Candidate) error {
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	err = retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.Exec(`DELETE FROM tasks WHERE id = ? AND owner = ?`, removeTaskID, owner)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		res, err = tx.Exec(
			`UPDATE candidates SET description = ?, command_type = ?, parameters = ?, rev = rev + 1
			 WHERE id = ? AND rev = ?`,
			c.Description, string(c.CommandType), string(params), c.ID, c.Rev,
		)
		if err != nil {
			return fmt.Errorf("rewrite candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrStaleRevision
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	c.Rev++
	return nil
}
