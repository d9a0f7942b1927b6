package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"momentra/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func timePtr(tm time.Time) *time.Time { return &tm }

func testTask(owner, title string, start, end time.Time) *model.Task {
	return &model.Task{
		Owner:    owner,
		Title:    title,
		Start:    start,
		End:      end,
		Blocking: true,
	}
}

func seedJob(t *testing.T, s *Store, owner string) *model.Job {
	t.Helper()
	j, err := s.CreateJob(owner, "dinner tomorrow at 7pm", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func seedCandidate(t *testing.T, s *Store, jobID, title string, start, end time.Time) model.Candidate {
	t.Helper()
	cands, err := s.ReplaceJobCandidates(jobID, []model.Candidate{{
		Description: title,
		CommandType: model.CommandCreateTask,
		Parameters:  model.Parameters{Title: title, Start: timePtr(start), End: timePtr(end)},
	}})
	if err != nil {
		t.Fatalf("ReplaceJobCandidates: %v", err)
	}
	return cands[0]
}

// --- Job tests ---

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")

	got, err := s.GetJob("alice", j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.RawText != "dinner tomorrow at 7pm" || got.Status != model.JobCreated {
		t.Fatalf("job mismatch: %+v", got)
	}
}

func TestGetJob_WrongOwner(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")

	if _, err := s.GetJob("bob", j.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-owner read: err = %v, want ErrNotFound", err)
	}
}

func TestSetJobStatus(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")

	if err := s.SetJobStatus("alice", j.ID, model.JobParsed); err != nil {
		t.Fatalf("SetJobStatus: %v", err)
	}
	got, _ := s.GetJob("alice", j.ID)
	if got.Status != model.JobParsed {
		t.Fatalf("status = %q, want parsed", got.Status)
	}
}

func TestSetJobStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetJobStatus("alice", "missing", model.JobParsed); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteJob_CascadesCandidates(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "Dinner", day(19, 0), day(20, 0))

	if err := s.DeleteJob("alice", j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetCandidate(c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("candidate should be gone with its job, err = %v", err)
	}
}

// --- Candidate tests ---

func TestReplaceJobCandidates_StableOrder(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")

	var in []model.Candidate
	for i := 0; i < 5; i++ {
		in = append(in, model.Candidate{
			Description: fmt.Sprintf("event %d", i),
			CommandType: model.CommandCreateTask,
		})
	}
	if _, err := s.ReplaceJobCandidates(j.ID, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListCandidates(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d candidates, want 5", len(got))
	}
	for i, c := range got {
		if c.Description != fmt.Sprintf("event %d", i) {
			t.Fatalf("order broken at %d: %q", i, c.Description)
		}
	}
}

func TestReplaceJobCandidates_ClearsPrevious(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	old := seedCandidate(t, s, j.ID, "Old", day(9, 0), day(10, 0))

	if _, err := s.ReplaceJobCandidates(j.ID, []model.Candidate{{
		Description: "New", CommandType: model.CommandCreateTask,
	}}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetCandidate(old.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("re-parsing a job must clear the previous candidates")
	}
	got, _ := s.ListCandidates(j.ID)
	if len(got) != 1 || got[0].Description != "New" {
		t.Fatalf("candidates after replace: %+v", got)
	}
}

func TestCandidate_ParametersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "Dinner", day(19, 0), day(20, 0))

	got, err := s.GetCandidate(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Parameters.Title != "Dinner" {
		t.Fatalf("title = %q", got.Parameters.Title)
	}
	if got.Parameters.Start == nil || !got.Parameters.Start.Equal(day(19, 0)) {
		t.Fatalf("start = %v, want %v", got.Parameters.Start, day(19, 0))
	}
}

func TestUpdateCandidate_RevGuard(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "Dinner", day(19, 0), day(20, 0))

	// Two tabs read the same revision.
	tabA, _ := s.GetCandidate(c.ID)
	tabB, _ := s.GetCandidate(c.ID)

	tabA.Description = "Dinner (A)"
	if err := s.UpdateCandidate(tabA); err != nil {
		t.Fatalf("first writer: %v", err)
	}

	tabB.Description = "Dinner (B)"
	if err := s.UpdateCandidate(tabB); !errors.Is(err, model.ErrStaleRevision) {
		t.Fatalf("second writer: err = %v, want ErrStaleRevision", err)
	}

	got, _ := s.GetCandidate(c.ID)
	if got.Description != "Dinner (A)" {
		t.Fatalf("lost update: %q", got.Description)
	}
}

func TestUpdateCandidate_Missing(t *testing.T) {
	s := newTestStore(t)
	c := &model.Candidate{ID: "missing", CommandType: model.CommandCreateTask}
	if err := s.UpdateCandidate(c); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCandidate_IdempotentOnMissing(t *testing.T) {
	s := newTestStore(t)
	// Deleting a candidate that never existed is a no-op success.
	if err := s.DeleteCandidate("never-existed"); err != nil {
		t.Fatalf("delete of missing candidate should succeed, got %v", err)
	}

	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "Dinner", day(19, 0), day(20, 0))
	if err := s.DeleteCandidate(c.ID); err != nil {
		t.Fatal(err)
	}
	// Double-click safe.
	if err := s.DeleteCandidate(c.ID); err != nil {
		t.Fatalf("second delete should also succeed, got %v", err)
	}
}

func TestDeleteJobCandidates_RejectAll(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	s.ReplaceJobCandidates(j.ID, []model.Candidate{
		{Description: "a", CommandType: model.CommandCreateTask},
		{Description: "b", CommandType: model.CommandAmbiguity},
	})

	if err := s.DeleteJobCandidates(j.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ListCandidates(j.ID)
	if len(got) != 0 {
		t.Fatalf("got %d candidates after reject all, want 0", len(got))
	}
	// Job row survives.
	if _, err := s.GetJob("alice", j.ID); err != nil {
		t.Fatalf("job should survive reject all: %v", err)
	}
}

// --- Task tests ---

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateTask(testTask("alice", "Standup", day(9, 0), day(10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTask("alice", created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Standup" || !got.Start.Equal(day(9, 0)) || !got.End.Equal(day(10, 0)) {
		t.Fatalf("task mismatch: %+v", got)
	}
	if !got.Blocking {
		t.Fatal("blocking flag lost")
	}
}

func TestUpdateTask_RevGuard(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.CreateTask(testTask("alice", "Standup", day(9, 0), day(10, 0)))

	tabA, _ := s.GetTask("alice", created.ID)
	tabB, _ := s.GetTask("alice", created.ID)

	tabA.Start, tabA.End = day(11, 0), day(12, 0)
	if err := s.UpdateTask(tabA); err != nil {
		t.Fatal(err)
	}
	tabB.Start, tabB.End = day(13, 0), day(14, 0)
	if err := s.UpdateTask(tabB); !errors.Is(err, model.ErrStaleRevision) {
		t.Fatalf("err = %v, want ErrStaleRevision", err)
	}
}

func TestDeleteTask_NotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteTask("alice", "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTasks_Range(t *testing.T) {
	s := newTestStore(t)
	s.CreateTask(testTask("alice", "Early", day(8, 0), day(9, 0)))
	s.CreateTask(testTask("alice", "Mid", day(12, 0), day(13, 0)))
	s.CreateTask(testTask("alice", "Late", day(18, 0), day(19, 0)))
	s.CreateTask(testTask("bob", "Other owner", day(12, 0), day(13, 0)))

	got, err := s.ListTasks("alice", day(11, 0), day(14, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Mid" {
		t.Fatalf("range query returned %+v", got)
	}
}

func TestListTasksOverlapping_HalfOpen(t *testing.T) {
	s := newTestStore(t)
	s.CreateTask(testTask("alice", "A", day(8, 0), day(9, 0)))
	s.CreateTask(testTask("alice", "B", day(9, 0), day(9, 30)))

	// [9:00, 9:30) is adjacent to A and identical to B.
	got, err := s.ListTasksOverlapping("alice", day(9, 0), day(9, 30), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "B" {
		t.Fatalf("adjacency must not overlap: got %+v", got)
	}
}

func TestListTasksOverlapping_StableOrder(t *testing.T) {
	s := newTestStore(t)
	s.CreateTask(testTask("alice", "Second", day(10, 0), day(11, 0)))
	s.CreateTask(testTask("alice", "First", day(9, 0), day(10, 30)))

	got, err := s.ListTasksOverlapping("alice", day(9, 30), day(10, 30), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Title != "First" || got[1].Title != "Second" {
		t.Fatalf("expected earliest-start-first order, got %+v", got)
	}
}

func TestListTasksOverlapping_Exclude(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.CreateTask(testTask("alice", "Self", day(9, 0), day(10, 0)))

	got, err := s.ListTasksOverlapping("alice", day(9, 0), day(10, 0), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("in-place edit must ignore its own interval, got %+v", got)
	}
}

func TestListTasksOverlapping_SkipsNonBlocking(t *testing.T) {
	s := newTestStore(t)
	stay := testTask("alice", "Hotel stay", day(0, 0), day(23, 59))
	stay.Blocking = false
	s.CreateTask(stay)

	got, err := s.ListTasksOverlapping("alice", day(12, 0), day(13, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("non-blocking tasks must never conflict, got %+v", got)
	}
}

// --- Atomic commit tests ---

func TestCommitCandidate_Atomic(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "Call", day(14, 0), day(14, 30))

	task, err := s.CommitCandidate(c.ID, testTask("alice", "Call", day(14, 0), day(14, 30)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTask("alice", task.ID); err != nil {
		t.Fatalf("committed task missing: %v", err)
	}
	if _, err := s.GetCandidate(c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("candidate should be deleted by commit")
	}
}

func TestCommitCandidate_MissingCandidateCreatesNothing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CommitCandidate("already-committed", testTask("alice", "Call", day(14, 0), day(14, 30)))
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	tasks, _ := s.ListTasks("alice", day(0, 0), day(23, 0))
	if len(tasks) != 0 {
		t.Fatalf("no task may be created when the candidate is gone, got %+v", tasks)
	}
}

func TestReplaceTaskWithCandidate_Atomic(t *testing.T) {
	s := newTestStore(t)
	standup, _ := s.CreateTask(testTask("alice", "Standup", day(9, 0), day(10, 0)))
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "1:1", day(9, 30), day(10, 0))

	task, err := s.ReplaceTaskWithCandidate("alice", standup.ID, c.ID, testTask("alice", "1:1", day(9, 30), day(10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTask("alice", standup.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("replaced task should be deleted")
	}
	if _, err := s.GetTask("alice", task.ID); err != nil {
		t.Fatalf("new task missing: %v", err)
	}
	if _, err := s.GetCandidate(c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("candidate should be deleted")
	}
}

func TestReplaceTaskWithCandidate_MissingTaskRollsBack(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "1:1", day(9, 30), day(10, 0))

	_, err := s.ReplaceTaskWithCandidate("alice", "gone", c.ID, testTask("alice", "1:1", day(9, 30), day(10, 0)))
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// Neither side happened: candidate intact, no task created.
	if _, err := s.GetCandidate(c.ID); err != nil {
		t.Fatalf("candidate must survive failed replace: %v", err)
	}
	tasks, _ := s.ListTasks("alice", day(0, 0), day(23, 0))
	if len(tasks) != 0 {
		t.Fatalf("no task may exist after rollback, got %+v", tasks)
	}
}

func TestReplaceCandidateWithCandidate_Atomic(t *testing.T) {
	s := newTestStore(t)
	j := seedJob(t, s, "alice")
	cands, err := s.ReplaceJobCandidates(j.ID, []model.Candidate{
		{Description: "Gym", CommandType: model.CommandCreateTask,
			Parameters: model.Parameters{Title: "Gym", Start: timePtr(day(18, 0)), End: timePtr(day(19, 0))}},
		{Description: "Dinner", CommandType: model.CommandCreateTask,
			Parameters: model.Parameters{Title: "Dinner", Start: timePtr(day(18, 30)), End: timePtr(day(19, 30))}},
	})
	if err != nil {
		t.Fatal(err)
	}
	gym, dinner := cands[0], cands[1]

	task, err := s.ReplaceCandidateWithCandidate(gym.ID, dinner.ID, testTask("alice", "Dinner", day(18, 30), day(19, 30)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCandidate(gym.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("rival candidate should be deleted")
	}
	if _, err := s.GetCandidate(dinner.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("winning candidate should be deleted")
	}
	if _, err := s.GetTask("alice", task.ID); err != nil {
		t.Fatalf("task missing: %v", err)
	}
}

func TestDeleteTaskRewriteCandidate(t *testing.T) {
	s := newTestStore(t)
	blocker, _ := s.CreateTask(testTask("alice", "Blocker", day(9, 0), day(10, 0)))
	j := seedJob(t, s, "alice")
	c := seedCandidate(t, s, j.ID, "New", day(9, 0), day(10, 0))

	fresh, _ := s.GetCandidate(c.ID)
	fresh.CommandType = model.CommandAmbiguity
	fresh.Parameters.Message = "still conflicts"
	if err := s.DeleteTaskRewriteCandidate("alice", blocker.ID, fresh); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetTask("alice", blocker.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("blocker should be deleted")
	}
	got, _ := s.GetCandidate(c.ID)
	if got.CommandType != model.CommandAmbiguity || got.Parameters.Message != "still conflicts" {
		t.Fatalf("candidate not rewritten: %+v", got)
	}
}

// --- Retry logic tests ---

func TestIsTransientSQLiteErr_Busy(t *testing.T) {
	if !isTransientSQLiteErr(fmt.Errorf("SQLITE_BUSY: database is locked")) {
		t.Fatal("SQLITE_BUSY should be transient")
	}
}

func TestIsTransientSQLiteErr_Nil(t *testing.T) {
	if isTransientSQLiteErr(nil) {
		t.Fatal("nil error should not be transient")
	}
}

func TestIsTransientSQLiteErr_NonTransient(t *testing.T) {
	if isTransientSQLiteErr(fmt.Errorf("UNIQUE constraint failed")) {
		t.Fatal("UNIQUE constraint error should not be transient")
	}
}

func TestRetryOnContention_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := retryOnContention(func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnContention_NonTransientError(t *testing.T) {
	calls := 0
	err := retryOnContention(func() error {
		calls++
		return fmt.Errorf("UNIQUE constraint failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-transient error should not retry, got %d calls", calls)
	}
}

func TestRetryOnContention_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryOnContention(func() error {
		calls++
		return fmt.Errorf("SQLITE_BUSY: database is locked")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 { // 1 initial + 3 retries
		t.Fatalf("expected 4 calls (1 + 3 retries), got %d", calls)
	}
}
