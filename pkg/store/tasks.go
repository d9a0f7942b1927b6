package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"momentra/pkg/model"
)

const taskCols = `id, owner, source_job_id, title, description, start_time, end_time, blocking, rev, created_at`

// CreateTask persists a task directly. Most tasks are born through
// CommitCandidate instead; this path serves direct API creation and tests.
func (s *Store) CreateTask(t *model.Task) (*model.Task, error) {
	prepareTask(t)
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Owner, t.SourceJobID, t.Title, t.Description,
			utcString(t.Start), utcString(t.End), boolToInt(t.Blocking), t.Rev, utcString(t.CreatedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID, scoped to its owner.
func (s *Store) GetTask(owner, id string) (*model.Task, error) {
	row := s.db.QueryRow(
		`SELECT `+taskCols+` FROM tasks WHERE id = ? AND owner = ?`, id, owner,
	)
	t, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// UpdateTask writes the task's mutable fields guarded by its revision.
// Returns ErrStaleRevision when the row moved underneath the caller. On
// success the task's Rev is advanced.
func (s *Store) UpdateTask(t *model.Task) error {
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`UPDATE tasks SET title = ?, description = ?, start_time = ?, end_time = ?, blocking = ?, rev = rev + 1
			 WHERE id = ? AND owner = ? AND rev = ?`,
			t.Title, t.Description, utcString(t.Start), utcString(t.End), boolToInt(t.Blocking),
			t.ID, t.Owner, t.Rev,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var one int
			if err := s.db.QueryRow(
				`SELECT 1 FROM tasks WHERE id = ? AND owner = ?`, t.ID, t.Owner,
			).Scan(&one); err != nil {
				return model.ErrNotFound
			}
			return model.ErrStaleRevision
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.Rev++
	return nil
}

// DeleteTask removes a task, freeing its interval.
func (s *Store) DeleteTask(owner, id string) error {
	return s.execExpectingRow("delete task", func() (sql.Result, error) {
		return s.db.Exec(`DELETE FROM tasks WHERE id = ? AND owner = ?`, id, owner)
	})
}

// ListTasks returns an owner's tasks intersecting [from, to), ordered by
// start time then ID. This is the calendar range query.
func (s *Store) ListTasks(owner string, from, to time.Time) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks
		 WHERE owner = ? AND start_time < ? AND end_time > ?
		 ORDER BY start_time ASC, id ASC`,
		owner, utcString(to), utcString(from),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasksOverlapping returns the owner's BLOCKING tasks whose half-open
// interval overlaps [start, end), ordered by start time then ID (the stable
// order the resolver's tie-break relies on). excludeID lets an in-place
// edit ignore its own prior interval; pass "" to exclude nothing.
// Non-blocking tasks (multi-day stays and the like) never conflict.
func (s *Store) ListTasksOverlapping(owner string, start, end time.Time, excludeID string) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks
		 WHERE owner = ? AND blocking = 1 AND id != ? AND start_time < ? AND end_time > ?
		 ORDER BY start_time ASC, id ASC`,
		owner, excludeID, utcString(end), utcString(start),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func prepareTask(t *model.Task) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	t.Start = t.Start.UTC().Truncate(time.Second)
	t.End = t.End.UTC().Truncate(time.Second)
	t.Rev = 0
}

func scanTask(scan func(...any) error) (*model.Task, error) {
	var t model.Task
	var startStr, endStr, createdStr string
	var blocking int
	if err := scan(&t.ID, &t.Owner, &t.SourceJobID, &t.Title, &t.Description,
		&startStr, &endStr, &blocking, &t.Rev, &createdStr); err != nil {
		return nil, err
	}
	t.Blocking = blocking != 0
	var parseErr error
	if t.Start, parseErr = parseUTC(startStr); parseErr != nil {
		return nil, fmt.Errorf("parse start_time for task %s: %w", t.ID, parseErr)
	}
	if t.End, parseErr = parseUTC(endStr); parseErr != nil {
		return nil, fmt.Errorf("parse end_time for task %s: %w", t.ID, parseErr)
	}
	if t.CreatedAt, parseErr = parseUTC(createdStr); parseErr != nil {
		return nil, fmt.Errorf("parse created_at for task %s: %w", t.ID, parseErr)
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
