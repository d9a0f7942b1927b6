package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"momentra/pkg/model"
)

// CreateJob persists a new job in status "created" and returns it with a
// fresh ID.
func (s *Store) CreateJob(owner, rawText, userLocalTime string) (*model.Job, error) {
	j := &model.Job{
		ID:            uuid.NewString(),
		Owner:         owner,
		RawText:       rawText,
		UserLocalTime: userLocalTime,
		Status:        model.JobCreated,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO jobs (id, owner, raw_text, user_local_time, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			j.ID, j.Owner, j.RawText, j.UserLocalTime, string(j.Status), utcString(j.CreatedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID, scoped to its owner.
func (s *Store) GetJob(owner, id string) (*model.Job, error) {
	row := s.db.QueryRow(
		`SELECT id, owner, raw_text, user_local_time, status, created_at
		 FROM jobs WHERE id = ? AND owner = ?`, id, owner,
	)
	return scanJob(row)
}

// SetJobStatus updates the job's intake status.
func (s *Store) SetJobStatus(owner, id string, status model.JobStatus) error {
	return s.execExpectingRow("set job status", func() (sql.Result, error) {
		return s.db.Exec(
			`UPDATE jobs SET status = ? WHERE id = ? AND owner = ?`,
			string(status), id, owner,
		)
	})
}

// DeleteJob removes a job; its candidates go with it via ON DELETE CASCADE.
func (s *Store) DeleteJob(owner, id string) error {
	return s.execExpectingRow("delete job", func() (sql.Result, error) {
		return s.db.Exec(`DELETE FROM jobs WHERE id = ? AND owner = ?`, id, owner)
	})
}

// execExpectingRow runs a mutation that must touch exactly one row,
// translating "zero rows" into ErrNotFound.
func (s *Store) execExpectingRow(op string, fn func() (sql.Result, error)) error {
	return retryOnContention(func() error {
		res, err := fn()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var j model.Job
	var status, createdStr string
	if err := row.Scan(&j.ID, &j.Owner, &j.RawText, &j.UserLocalTime, &status, &createdStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	var parseErr error
	j.CreatedAt, parseErr = parseUTC(createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at for job %s: %w", j.ID, parseErr)
	}
	return &j, nil
}
