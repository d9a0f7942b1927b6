package model

import (
	"encoding/json"
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func iv(s, e time.Time) Interval { return Interval{Start: s, End: e} }

func TestInterval_Overlaps(t *testing.T) {
	cases := []struct {
		name   string
		a, b   Interval
		expect bool
	}{
		{"identical", iv(at(9, 0), at(10, 0)), iv(at(9, 0), at(10, 0)), true},
		{"contained", iv(at(9, 0), at(12, 0)), iv(at(10, 0), at(11, 0)), true},
		{"partial front", iv(at(9, 0), at(10, 0)), iv(at(9, 30), at(10, 30)), true},
		{"adjacent is not overlap", iv(at(8, 0), at(9, 0)), iv(at(9, 0), at(9, 30)), false},
		{"disjoint", iv(at(8, 0), at(9, 0)), iv(at(14, 0), at(15, 0)), false},
		{"one minute overlap", iv(at(8, 0), at(9, 1)), iv(at(9, 0), at(10, 0)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.expect {
				t.Fatalf("Overlaps = %v, want %v", got, tc.expect)
			}
			// Symmetry holds for every pair.
			if got := tc.b.Overlaps(tc.a); got != tc.expect {
				t.Fatalf("Overlaps not symmetric: reversed = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestInterval_SelfOverlap(t *testing.T) {
	a := iv(at(9, 0), at(10, 0))
	if !a.Overlaps(a) {
		t.Fatal("positive-duration interval must overlap itself")
	}
}

func TestInterval_Normalize_MissingEnd(t *testing.T) {
	n := Interval{Start: at(14, 0)}.Normalize(30 * time.Minute)
	if !n.End.Equal(at(14, 30)) {
		t.Fatalf("normalized end = %v, want %v", n.End, at(14, 30))
	}
}

func TestInterval_Normalize_ZeroLength(t *testing.T) {
	n := iv(at(14, 0), at(14, 0)).Normalize(time.Hour)
	if !n.End.Equal(at(15, 0)) {
		t.Fatalf("zero-length interval should stretch to default duration, got end %v", n.End)
	}
}

func TestInterval_Normalize_DefaultFallback(t *testing.T) {
	n := Interval{Start: at(14, 0)}.Normalize(0)
	if n.Duration() != DefaultDuration {
		t.Fatalf("duration = %v, want %v", n.Duration(), DefaultDuration)
	}
}

func TestInterval_Validate(t *testing.T) {
	if err := iv(at(10, 0), at(9, 0)).Validate(); err != ErrInvalidInterval {
		t.Fatalf("end before start: err = %v, want ErrInvalidInterval", err)
	}
	if err := iv(at(9, 0), at(9, 0)).Validate(); err != ErrInvalidInterval {
		t.Fatalf("zero length: err = %v, want ErrInvalidInterval", err)
	}
	if err := (Interval{End: at(9, 0)}).Validate(); err != ErrInvalidInterval {
		t.Fatalf("missing start: err = %v, want ErrInvalidInterval", err)
	}
	if err := iv(at(9, 0), at(10, 0)).Validate(); err != nil {
		t.Fatalf("valid interval: err = %v", err)
	}
	if err := (Interval{Start: at(9, 0)}).Validate(); err != nil {
		t.Fatalf("open end is valid before normalization: err = %v", err)
	}
}

func TestParameters_Interval(t *testing.T) {
	s := at(9, 30)
	p := Parameters{Title: "1:1", Start: &s}
	got, ok := p.Interval(30 * time.Minute)
	if !ok {
		t.Fatal("expected ok for parameters with a start time")
	}
	if !got.End.Equal(at(10, 0)) {
		t.Fatalf("end = %v, want %v", got.End, at(10, 0))
	}

	if _, ok := (Parameters{Title: "no time"}).Interval(0); ok {
		t.Fatal("parameters without start must not produce an interval")
	}
}

// The option payload keys are wire format consumed by the UI; they must not
// drift.
func TestOptionValue_WireKeys(t *testing.T) {
	s := at(9, 0)
	e := at(10, 0)
	opt := OptionValue{
		Discard:           true,
		KeepBoth:          true,
		RemoveTaskID:      "t1",
		RemoveCandidateID: "c1",
		Title:             "Standup",
		Start:             &s,
		End:               &e,
		Suggested:         true,
	}
	raw, err := json.Marshal(opt)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"discard", "keep_both", "remove_task_id", "remove_candidate_id",
		"title", "start_time", "end_time", "suggested",
	} {
		if _, present := m[key]; !present {
			t.Fatalf("option payload missing wire key %q (got %v)", key, m)
		}
	}
}

func TestConflictError_WireKeys(t *testing.T) {
	task := Task{ID: "t1", Title: "Standup", Start: at(9, 0), End: at(10, 0)}
	sug := iv(at(10, 0), at(10, 30))
	raw, err := json.Marshal(NewConflictError(task, &sug))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"existing_task_id", "existing_title", "existing_start", "existing_end", "suggestion",
	} {
		if _, present := m[key]; !present {
			t.Fatalf("conflict payload missing wire key %q (got %v)", key, m)
		}
	}
}

func TestConflictError_Message(t *testing.T) {
	task := Task{ID: "t1", Title: "Standup", Start: at(9, 0), End: at(10, 0)}
	err := NewConflictError(task, nil)
	if want := `conflicts with "Standup"`; len(err.Error()) == 0 || err.Error()[:len(want)] != want {
		t.Fatalf("message = %q, want prefix %q", err.Error(), want)
	}
}
