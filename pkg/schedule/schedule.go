// Package schedule implements the conflict-aware scheduling core.
//
// Three pieces cooperate, leaves first:
//
//   - The overlap detector: a pure query over the owner's committed tasks
//     using the half-open rule ([s1,e1) and [s2,e2) overlap iff s1 < e2 and
//     s2 < e1), with intervals normalized to a default duration first.
//
//   - The conflict resolver: given one candidate and the full current state
//     (tasks plus same-job sibling candidates) it returns a tagged result:
//     no conflict, or a conflict naming the first rival in stable order and
//     the resolution options to present (discard, replace, keep both,
//     suggested slot). The resolver holds no session state; every call gets
//     full context and the caller suspends while the user chooses.
//
//   - The acceptance orchestrator: commits selected clean candidates as
//     tasks (atomically, per candidate), converts conflicting ones to
//     AMBIGUITY in place, and reports what was created vs. what remains.
//
// The same re-entrant resolve path runs after every time-affecting
// mutation: candidate patch, resolution option, manual retime of either
// side of a keep-both. A retime that lands on a third task simply surfaces
// a fresh conflict; the loop is bounded only by the user.
package schedule

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"momentra/pkg/model"
	"momentra/pkg/store"
)

// Prefs are the scheduling preferences the resolver honors when computing
// suggested slots and normalizing open-ended events.
type Prefs struct {
	// DefaultDuration fills in events parsed without an end time.
	DefaultDuration time.Duration
	// Buffer is the minimum breathing room kept around suggested slots.
	Buffer time.Duration
	// WorkStart/WorkEnd bound suggestions to working hours, as minutes
	// from midnight UTC. Both zero disables the bound.
	WorkStart int
	WorkEnd   int
	// SuggestHorizon caps how far ahead a suggestion may land.
	SuggestHorizon time.Duration
}

// normalized fills zero preferences with workable defaults.
func (p Prefs) normalized() Prefs {
	if p.DefaultDuration <= 0 {
		p.DefaultDuration = model.DefaultDuration
	}
	if p.SuggestHorizon <= 0 {
		p.SuggestHorizon = 14 * 24 * time.Hour
	}
	return p
}

// Scheduler is the conflict-aware scheduling core. It is stateless between
// calls; all state lives in the store.
type Scheduler struct {
	store store.StoreInterface
	prefs Prefs
	log   *slog.Logger
}

// New builds a scheduler over the given store.
func New(st store.StoreInterface, prefs Prefs, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: st, prefs: prefs.normalized(), log: log}
}

// Rival is one conflicting party: either a committed task or a still-pending
// candidate from the same job. Exactly one field is set.
type Rival struct {
	Task      *model.Task
	Candidate *model.Candidate
}

// Title returns the rival's display title.
func (r Rival) Title() string {
	if r.Task != nil {
		return r.Task.Title
	}
	if r.Candidate.Parameters.Title != "" {
		return r.Candidate.Parameters.Title
	}
	return r.Candidate.Description
}

// Interval returns the rival's normalized time span.
func (r Rival) Interval(defaultDur time.Duration) model.Interval {
	if r.Task != nil {
		return r.Task.Interval()
	}
	iv, _ := r.Candidate.Parameters.Interval(defaultDur)
	return iv
}

// ID returns the rival's entity ID.
func (r Rival) ID() string {
	if r.Task != nil {
		return r.Task.ID
	}
	return r.Candidate.ID
}

// Resolution is the resolver's tagged result. An empty Rivals slice means
// no conflict; otherwise Rivals is sorted by start time then ID and
// First() is the rival an aggregated AMBIGUITY references.
type Resolution struct {
	// Interval is the candidate's normalized span; zero when the
	// candidate has no start time (and therefore cannot conflict).
	Interval model.Interval
	Rivals   []Rival
}

// Conflict reports whether any rival overlaps the candidate.
func (r Resolution) Conflict() bool { return len(r.Rivals) > 0 }

// First returns the stable first rival. Only valid when Conflict() is true.
func (r Resolution) First() Rival { return r.Rivals[0] }

// ConflictsWith is the overlap detector: every committed blocking task of
// owner whose interval overlaps iv, earliest start first. excludeTaskID
// lets an in-place edit ignore its own prior interval. Pure read.
func (s *Scheduler) ConflictsWith(owner string, iv model.Interval, excludeTaskID string) ([]model.Task, error) {
	iv = iv.Normalize(s.prefs.DefaultDuration)
	return s.store.ListTasksOverlapping(owner, iv.Start, iv.End, excludeTaskID)
}

// Resolve runs conflict detection for one candidate against the owner's
// committed tasks and the candidate's same-job siblings. It decides; it
// never writes. Same-job candidate conflicts are treated identically to
// task conflicts, re-check included.
func (s *Scheduler) Resolve(owner string, cand *model.Candidate) (Resolution, error) {
	return s.resolveExcluding(owner, cand, "", "")
}

// resolveExcluding is Resolve with one task and/or one sibling candidate
// masked out. The "Replace" resolution uses it to ask what the world looks
// like once the removed rival is gone, before committing anything.
func (s *Scheduler) resolveExcluding(owner string, cand *model.Candidate, exTaskID, exCandID string) (Resolution, error) {
	iv, ok := cand.Parameters.Interval(s.prefs.DefaultDuration)
	if !ok {
		return Resolution{}, nil
	}

	tasks, err := s.ConflictsWith(owner, iv, exTaskID)
	if err != nil {
		return Resolution{}, fmt.Errorf("detect conflicts: %w", err)
	}

	siblings, err := s.store.ListCandidates(cand.JobID)
	if err != nil {
		return Resolution{}, fmt.Errorf("list siblings: %w", err)
	}

	res := Resolution{Interval: iv}
	for i := range tasks {
		res.Rivals = append(res.Rivals, Rival{Task: &tasks[i]})
	}
	for i := range siblings {
		sib := &siblings[i]
		if sib.ID == cand.ID || sib.ID == exCandID || sib.CommandType != model.CommandCreateTask {
			continue
		}
		sibIv, ok := sib.Parameters.Interval(s.prefs.DefaultDuration)
		if ok && iv.Overlaps(sibIv) {
			res.Rivals = append(res.Rivals, Rival{Candidate: sib})
		}
	}

	d := s.prefs.DefaultDuration
	sort.SliceStable(res.Rivals, func(i, j int) bool {
		a, b := res.Rivals[i].Interval(d).Start, res.Rivals[j].Interval(d).Start
		if !a.Equal(b) {
			return a.Before(b)
		}
		return res.Rivals[i].ID() < res.Rivals[j].ID()
	})
	return res, nil
}

// ambiguate rewrites the candidate in memory as an AMBIGUITY referencing
// the resolution's first rival, with the full option set attached. The
// caller persists it.
func (s *Scheduler) ambiguate(owner string, cand *model.Candidate, res Resolution) {
	first := res.First()
	firstIv := first.Interval(s.prefs.DefaultDuration)
	title := candidateTitle(cand)

	cand.CommandType = model.CommandAmbiguity
	cand.Parameters.Message = fmt.Sprintf("%q conflicts with %q (%s - %s)",
		title, first.Title(),
		firstIv.Start.Format("15:04"), firstIv.End.Format("15:04"))
	cand.Parameters.Options = s.buildOptions(owner, cand, res)
}

// buildOptions assembles the resolution options for the first rival:
// discard, replace, keep-both, and (when a free slot exists) a suggested
// alternative time.
func (s *Scheduler) buildOptions(owner string, cand *model.Candidate, res Resolution) []model.AmbiguityOption {
	first := res.First()
	title := candidateTitle(cand)

	opts := []model.AmbiguityOption{
		{
			Label: fmt.Sprintf("Discard %q", title),
			Value: model.OptionValue{Discard: true},
		},
	}

	replace := model.AmbiguityOption{
		Label: fmt.Sprintf("Replace %q", first.Title()),
	}
	if first.Task != nil {
		replace.Value = model.OptionValue{RemoveTaskID: first.Task.ID}
	} else {
		replace.Value = model.OptionValue{RemoveCandidateID: first.Candidate.ID}
	}
	opts = append(opts, replace)

	opts = append(opts, model.AmbiguityOption{
		Label: "Keep both (adjust times)",
		Value: model.OptionValue{KeepBoth: true},
	})

	firstIv := first.Interval(s.prefs.DefaultDuration)
	if slot := s.Suggest(owner, res.Interval.Duration(), firstIv.End); slot != nil {
		opts = append(opts, model.AmbiguityOption{
			Label: fmt.Sprintf("Move to %s", slot.Start.Format("15:04")),
			Value: model.OptionValue{
				Title:     title,
				Start:     &slot.Start,
				End:       &slot.End,
				Suggested: true,
			},
		})
	}
	return opts
}

// Suggest computes one non-conflicting slot of the given duration at or
// after `after`, honoring the configured buffer and working hours. Returns
// nil when nothing fits within the suggestion horizon; suggestions are
// optional, conflicts are reported either way.
func (s *Scheduler) Suggest(owner string, dur time.Duration, after time.Time) *model.Interval {
	if dur <= 0 {
		dur = s.prefs.DefaultDuration
	}
	start := after.Add(s.prefs.Buffer).UTC()
	horizon := after.Add(s.prefs.SuggestHorizon)

	for start.Before(horizon) {
		start = s.intoWorkingHours(start, dur)
		slot := model.Interval{Start: start, End: start.Add(dur)}

		// The buffer applies on both sides of the slot.
		busy, err := s.store.ListTasksOverlapping(owner,
			slot.Start.Add(-s.prefs.Buffer), slot.End.Add(s.prefs.Buffer), "")
		if err != nil {
			s.log.Warn("suggestion lookup failed", "owner", owner, "err", err)
			return nil
		}
		if len(busy) == 0 {
			return &slot
		}
		// Jump past the first obstacle and try again.
		start = busy[0].End.Add(s.prefs.Buffer)
	}
	return nil
}

// intoWorkingHours shifts a slot start into the configured working window,
// rolling to the next day's window start when the slot would spill past the
// end of the day.
func (s *Scheduler) intoWorkingHours(t time.Time, dur time.Duration) time.Time {
	if s.prefs.WorkStart == 0 && s.prefs.WorkEnd == 0 {
		return t
	}
	dayStart := t.Truncate(24 * time.Hour).Add(time.Duration(s.prefs.WorkStart) * time.Minute)
	dayEnd := t.Truncate(24 * time.Hour).Add(time.Duration(s.prefs.WorkEnd) * time.Minute)

	if t.Before(dayStart) {
		return dayStart
	}
	if t.Add(dur).After(dayEnd) {
		return dayStart.Add(24 * time.Hour)
	}
	return t
}

// taskFromCandidate materializes the task a candidate would commit to.
// Long spans (a day or more) are stored non-blocking: a hotel stay should
// not veto a dinner inside it.
func (s *Scheduler) taskFromCandidate(owner string, cand *model.Candidate, iv model.Interval) *model.Task {
	return &model.Task{
		Owner:       owner,
		SourceJobID: cand.JobID,
		Title:       candidateTitle(cand),
		Description: cand.Parameters.Description,
		Start:       iv.Start,
		End:         iv.End,
		Blocking:    iv.Duration() < 24*time.Hour,
	}
}

func candidateTitle(cand *model.Candidate) string {
	if cand.Parameters.Title != "" {
		return cand.Parameters.Title
	}
	return cand.Description
}

// suggestionFor computes the optional suggestion carried by a conflict
// payload, starting after the conflicting task ends.
func (s *Scheduler) suggestionFor(owner string, iv model.Interval, blocker model.Task) *model.Interval {
	return s.Suggest(owner, iv.Duration(), blocker.End)
}
