package httpapi

import (
	"errors"
	"net/http"
	"time"

	"momentra/pkg/ics"
	"momentra/pkg/model"
	"momentra/pkg/schedule"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Jobs ---

type createJobRequest struct {
	RawText       string `json:"raw_text"`
	UserLocalTime string `json:"user_local_time"`
}

type jobResponse struct {
	Job        *model.Job        `json:"job"`
	Candidates []model.Candidate `json:"candidates"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request, owner string) {
	var req createJobRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.jobs.CreateJob(owner, req.RawText, req.UserLocalTime)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, jobResponse{Job: job, Candidates: []model.Candidate{}})
}

func (s *Server) handleParseJob(w http.ResponseWriter, r *http.Request, owner string) {
	job, cands, err := s.jobs.ParseJob(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, jobResponse{Job: job, Candidates: orEmpty(cands)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, owner string) {
	job, cands, err := s.jobs.GetJob(owner, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, jobResponse{Job: job, Candidates: orEmpty(cands)})
}

type acceptRequest struct {
	SelectedIDs     []string `json:"selected_ids"`
	IgnoreConflicts bool     `json:"ignore_conflicts"`
}

type acceptResponse struct {
	TasksCreated []model.Task      `json:"tasks_created"`
	Remaining    []model.Candidate `json:"remaining"`
}

func (s *Server) handleAcceptJob(w http.ResponseWriter, r *http.Request, owner string) {
	var req acceptRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.sched.Accept(owner, r.PathValue("id"), req.SelectedIDs, req.IgnoreConflicts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acceptResponse{
		TasksCreated: orEmpty(out.TasksCreated),
		Remaining:    orEmpty(out.Remaining),
	})
}

func (s *Server) handleRejectJob(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.sched.RejectAll(owner, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteJob removes the job row itself; its remaining candidates go
// with it (cascade). Tasks already committed from the job stay.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.store.DeleteJob(owner, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Candidates ---

type patchCandidateRequest struct {
	Description     *string            `json:"description"`
	CommandType     *model.CommandType `json:"command_type"`
	Title           *string            `json:"title"`
	Start           *time.Time         `json:"start_time"`
	End             *time.Time         `json:"end_time"`
	IgnoreConflicts bool               `json:"ignore_conflicts"`
}

func (s *Server) handlePatchCandidate(w http.ResponseWriter, r *http.Request, owner string) {
	var req patchCandidateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := s.sched.PatchCandidate(owner, r.PathValue("id"), schedule.CandidatePatch{
		Description: req.Description,
		CommandType: req.CommandType,
		Title:       req.Title,
		Start:       req.Start,
		End:         req.End,
	}, req.IgnoreConflicts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

type resolveRequest struct {
	Option          model.OptionValue `json:"option"`
	IgnoreConflicts bool              `json:"ignore_conflicts"`
}

type resolveResponse struct {
	Discarded    bool             `json:"discarded,omitempty"`
	ManualAdjust bool             `json:"manual_adjust,omitempty"`
	Task         *model.Task      `json:"task,omitempty"`
	Candidate    *model.Candidate `json:"candidate,omitempty"`
}

func (s *Server) handleResolveCandidate(w http.ResponseWriter, r *http.Request, owner string) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.sched.ApplyOption(owner, r.PathValue("id"), req.Option, req.IgnoreConflicts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{
		Discarded:    out.Discarded,
		ManualAdjust: out.ManualAdjust,
		Task:         out.Task,
		Candidate:    out.Candidate,
	})
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request, owner string) {
	// Deletion is idempotent; a candidate discarded twice is still gone.
	_, err := s.sched.ApplyOption(owner, r.PathValue("id"), model.OptionValue{Discard: true}, false)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tasks ---

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, owner string) {
	from, to, err := timeRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.store.ListTasks(owner, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]model.Task{"tasks": orEmpty(tasks)})
}

type createTaskRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Start           time.Time  `json:"start_time"`
	End             *time.Time `json:"end_time"`
	Blocking        *bool      `json:"is_blocking"`
	IgnoreConflicts bool       `json:"ignore_conflicts"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, owner string) {
	var req createTaskRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t := &model.Task{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		Blocking:    true,
	}
	if req.End != nil {
		t.End = *req.End
	}
	if req.Blocking != nil {
		t.Blocking = *req.Blocking
	}
	created, err := s.sched.ScheduleTask(owner, t, req.IgnoreConflicts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

type patchTaskRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Start           *time.Time `json:"start_time"`
	End             *time.Time `json:"end_time"`
	Blocking        *bool      `json:"is_blocking"`
	IgnoreConflicts bool       `json:"ignore_conflicts"`
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request, owner string) {
	var req patchTaskRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := s.sched.UpdateTask(owner, r.PathValue("id"), schedule.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		Blocking:    req.Blocking,
	}, req.IgnoreConflicts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.store.DeleteTask(owner, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Export ---

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request, owner string) {
	from, to, err := timeRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.store.ListTasks(owner, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="momentra.ics"`)
	if _, err := w.Write([]byte(ics.Feed(tasks))); err != nil {
		s.log.Warn("write ics feed", "err", err)
	}
}

// timeRange reads optional RFC 3339 ?from= and ?to= query bounds, falling
// back to an effectively unbounded window.
func timeRange(r *http.Request) (from, to time.Time, err error) {
	from = time.Time{}
	to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

// orEmpty keeps JSON arrays as [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
