// Package httpapi exposes the scheduling core over HTTP.
//
// Clients identify themselves with the X-User-Id header; every job, task,
// and candidate is scoped to that owner. Conflicts are not server errors:
// a rejected task write answers 409 with the conflict payload, and a
// conflicting candidate patch answers 200 with the candidate rewritten to
// AMBIGUITY.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"momentra/pkg/model"
	"momentra/pkg/parse"
	"momentra/pkg/schedule"
	"momentra/pkg/store"
)

// Server wires the intake service and the scheduler behind an HTTP mux.
type Server struct {
	jobs    *parse.Service
	sched   *schedule.Scheduler
	store   store.StoreInterface
	log     *slog.Logger
	mux     *http.ServeMux
	limiter *rateLimiter
}

// New builds the API server.
func New(jobs *parse.Service, sched *schedule.Scheduler, st store.StoreInterface, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		jobs: jobs, sched: sched, store: st, log: log,
		mux:     http.NewServeMux(),
		limiter: newRateLimiter(defaultRatePerMinute, defaultRateBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /jobs", s.withOwner(s.handleCreateJob))
	s.mux.HandleFunc("POST /jobs/{id}/parse", s.withOwner(s.handleParseJob))
	s.mux.HandleFunc("GET /jobs/{id}", s.withOwner(s.handleGetJob))
	s.mux.HandleFunc("POST /jobs/{id}/accept", s.withOwner(s.handleAcceptJob))
	s.mux.HandleFunc("POST /jobs/{id}/reject", s.withOwner(s.handleRejectJob))
	s.mux.HandleFunc("DELETE /jobs/{id}", s.withOwner(s.handleDeleteJob))

	s.mux.HandleFunc("PATCH /candidates/{id}", s.withOwner(s.handlePatchCandidate))
	s.mux.HandleFunc("POST /candidates/{id}/resolve", s.withOwner(s.handleResolveCandidate))
	s.mux.HandleFunc("DELETE /candidates/{id}", s.withOwner(s.handleDeleteCandidate))

	s.mux.HandleFunc("GET /tasks", s.withOwner(s.handleListTasks))
	s.mux.HandleFunc("POST /tasks", s.withOwner(s.handleCreateTask))
	s.mux.HandleFunc("PATCH /tasks/{id}", s.withOwner(s.handlePatchTask))
	s.mux.HandleFunc("DELETE /tasks/{id}", s.withOwner(s.handleDeleteTask))

	s.mux.HandleFunc("GET /export.ics", s.withOwner(s.handleExportICS))
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Info("request",
		"method", r.Method, "path", r.URL.Path,
		"status", rec.status, "duration", time.Since(started))
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("api listening", "addr", addr)
	return srv.ListenAndServe()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ownerHandler is a handler with the authenticated owner resolved.
type ownerHandler func(w http.ResponseWriter, r *http.Request, owner string)

// withOwner requires the X-User-Id header and enforces the owner's
// request budget.
func (s *Server) withOwner(h ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-Id")
		if owner == "" {
			s.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
			return
		}
		if !s.limiter.allow(owner) {
			s.log.Warn("rate limit exceeded", "owner", owner, "path", r.URL.Path)
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
			return
		}
		h(w, r, owner)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps domain errors onto HTTP statuses. A *ConflictError answers 409
// with the conflict payload itself as the body.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var conflict *model.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.writeJSON(w, http.StatusConflict, conflict)
	case errors.Is(err, model.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidInterval):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrStaleRevision):
		s.writeError(w, http.StatusConflict, "concurrent modification, retry")
	default:
		s.log.Error("internal error", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
