package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"momentra/pkg/model"
)

const candidateCols = `id, job_id, description, command_type, parameters, pos, rev, created_at`

// ReplaceJobCandidates atomically swaps a job's candidate set for the given
// one, assigning fresh IDs. Parsing a job twice never leaves stale
// candidates behind. Returns the stored candidates.
func (s *Store) ReplaceJobCandidates(jobID string, cands []model.Candidate) ([]model.Candidate, error) {
	now := time.Now().UTC().Truncate(time.Second)
	out := make([]model.Candidate, 0, len(cands))

	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.Exec(`DELETE FROM candidates WHERE job_id = ?`, jobID); err != nil {
			return fmt.Errorf("clear candidates: %w", err)
		}

		out = out[:0]
		for i, c := range cands {
			c.ID = uuid.NewString()
			c.JobID = jobID
			c.Rev = 0
			c.CreatedAt = now
			params, err := json.Marshal(c.Parameters)
			if err != nil {
				return fmt.Errorf("marshal parameters: %w", err)
			}
			if _, err := tx.Exec(
				`INSERT INTO candidates (`+candidateCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.JobID, c.Description, string(c.CommandType), string(params), i, c.Rev, utcString(c.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert candidate: %w", err)
			}
			out = append(out, c)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *Store) GetCandidate(id string) (*model.Candidate, error) {
	row := s.db.QueryRow(
		`SELECT `+candidateCols+` FROM candidates WHERE id = ?`, id,
	)
	c, err := scanCandidate(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListCandidates returns a job's candidates in stable insertion order.
func (s *Store) ListCandidates(jobID string) ([]model.Candidate, error) {
	rows, err := s.db.Query(
		`SELECT `+candidateCols+` FROM candidates WHERE job_id = ?
		 ORDER BY pos ASC, id ASC`, jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows.Scan)
		if err != nil {
			return nil, err
		}
		cands = append(cands, *c)
	}
	return cands, rows.Err()
}

// UpdateCandidate writes the full candidate row guarded by its revision.
// Returns ErrStaleRevision if another writer got there first; the caller
// re-reads and re-applies. On success the candidate's Rev is advanced.
func (s *Store) UpdateCandidate(c *model.Candidate) error {
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	err = retryOnContention(func() error {
		res, err := s.db.Exec(
			`UPDATE candidates SET description = ?, command_type = ?, parameters = ?, rev = rev + 1
			 WHERE id = ? AND rev = ?`,
			c.Description, string(c.CommandType), string(params), c.ID, c.Rev,
		)
		if err != nil {
			return fmt.Errorf("update candidate: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Distinguish a vanished row from a stale revision.
			var one int
			if err := s.db.QueryRow(`SELECT 1 FROM candidates WHERE id = ?`, c.ID).Scan(&one); err != nil {
				return model.ErrNotFound
			}
			return model.ErrStaleRevision
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Rev++
	return nil
}

// DeleteCandidate removes a candidate. Deleting a candidate that no longer
// exists is a no-op success: discard must be idempotent under double-clicks
// and racing tabs.
func (s *Store) DeleteCandidate(id string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM candidates WHERE id = ?`, id)
		return err
	})
}

// DeleteJobCandidates discards every remaining candidate of a job ("Reject
// All"). The job row itself stays; deleting it is the caller's concern.
func (s *Store) DeleteJobCandidates(jobID string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM candidates WHERE job_id = ?`, jobID)
		return err
	})
}

// scanCandidate works for both *sql.Row and *sql.Rows via their Scan method.
func scanCandidate(scan func(...any) error) (*model.Candidate, error) {
	var c model.Candidate
	var cmdType, params, createdStr string
	var pos int
	if err := scan(&c.ID, &c.JobID, &c.Description, &cmdType, &params, &pos, &c.Rev, &createdStr); err != nil {
		return nil, err
	}
	c.CommandType = model.CommandType(cmdType)
	if err := json.Unmarshal([]byte(params), &c.Parameters); err != nil {
		return nil, fmt.Errorf("parse parameters for candidate %s: %w", c.ID, err)
	}
	var parseErr error
	c.CreatedAt, parseErr = parseUTC(createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at for candidate %s: %w", c.ID, parseErr)
	}
	return &c, nil
}
