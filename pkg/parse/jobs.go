package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"momentra/pkg/model"
	"momentra/pkg/store"
)

// errEmptyInput rejects blank submissions before a job row is created.
var errEmptyInput = errors.New("empty input")

// Service is the intake pipeline: it owns jobs from raw-text submission
// through parsing into candidates. Committing candidates is the
// scheduler's business, not Service's.
type Service struct {
	store  store.StoreInterface
	parser Parser
	loc    *time.Location
	log    *slog.Logger
}

// NewService builds the intake service. loc is the fallback timezone for
// clients that do not send their local time; nil means UTC.
func NewService(st store.StoreInterface, p Parser, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, parser: p, loc: loc, log: log}
}

// CreateJob records a raw submission. userLocalTime is the client's clock
// in RFC 3339, used to anchor relative dates; empty is allowed.
func (s *Service) CreateJob(owner, rawText, userLocalTime string) (*model.Job, error) {
	if rawText == "" {
		return nil, errEmptyInput
	}
	return s.store.CreateJob(owner, rawText, userLocalTime)
}

// ParseJob runs the parser over the job's raw text and replaces the job's
// candidate set with the outcome. Re-parsing is allowed and idempotent in
// effect: the previous candidates are swapped out wholesale.
func (s *Service) ParseJob(ctx context.Context, owner, jobID string) (*model.Job, []model.Candidate, error) {
	job, err := s.store.GetJob(owner, jobID)
	if err != nil {
		return nil, nil, err
	}

	base := s.baseTime(job.UserLocalTime)
	res, err := s.parser.Parse(ctx, job.RawText, base)
	if err != nil {
		return nil, nil, fmt.Errorf("parse job %s: %w", jobID, err)
	}

	var cands []model.Candidate
	for _, ev := range res.Events {
		cands = append(cands, model.Candidate{
			JobID:       jobID,
			Description: ev.Title,
			CommandType: model.CommandCreateTask,
			Parameters: model.Parameters{
				Title:       ev.Title,
				Start:       ev.Start,
				End:         ev.End,
				Description: ev.Description,
			},
		})
	}
	for _, amb := range res.Ambiguities {
		cands = append(cands, model.Candidate{
			JobID:       jobID,
			Description: amb.Title,
			CommandType: model.CommandAmbiguity,
			Parameters: model.Parameters{
				Title:   amb.Title,
				Message: amb.Message,
				Options: amb.Options,
			},
		})
	}

	cands, err = s.store.ReplaceJobCandidates(jobID, cands)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.SetJobStatus(owner, jobID, model.JobParsed); err != nil {
		return nil, nil, err
	}
	job.Status = model.JobParsed

	s.log.Info("job parsed", "owner", owner, "job", jobID,
		"events", len(res.Events), "ambiguities", len(res.Ambiguities))
	return job, cands, nil
}

// GetJob returns the job together with its current candidates.
func (s *Service) GetJob(owner, jobID string) (*model.Job, []model.Candidate, error) {
	job, err := s.store.GetJob(owner, jobID)
	if err != nil {
		return nil, nil, err
	}
	cands, err := s.store.ListCandidates(jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, cands, nil
}

// baseTime anchors relative dates: the client's reported local clock when
// parseable, the server's clock in the configured timezone otherwise.
func (s *Service) baseTime(userLocalTime string) time.Time {
	if userLocalTime != "" {
		if t, err := time.Parse(time.RFC3339, userLocalTime); err == nil {
			return t
		}
		s.log.Debug("unparseable user local time, using server clock", "value", userLocalTime)
	}
	return time.Now().In(s.loc)
}
