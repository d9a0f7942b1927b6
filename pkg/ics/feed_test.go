package ics

import (
	"strings"
	"testing"
	"time"

	"momentra/pkg/model"
)

func day(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func feedTask(id, title string, start, end time.Time, blocking bool) model.Task {
	return model.Task{
		ID: id, Owner: "alice", Title: title,
		Start: start, End: end, Blocking: blocking,
		CreatedAt: day(8, 0),
	}
}

func TestFeed(t *testing.T) {
	out := Feed([]model.Task{
		feedTask("t-1", "Standup", day(9, 0), day(9, 30), true),
		feedTask("t-2", "Hotel", day(12, 0), day(12, 0).Add(48*time.Hour), false),
	})

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:t-1",
		"SUMMARY:Standup",
		"DTSTART:20260310T090000Z",
		"DTEND:20260310T093000Z",
		"TRANSP:TRANSPARENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("feed missing %q:\n%s", want, out)
		}
	}

	// Only the non-blocking stay is transparent.
	if strings.Count(out, "TRANSP:TRANSPARENT") != 1 {
		t.Fatalf("transparency on wrong events:\n%s", out)
	}
}

func TestFeed_Empty(t *testing.T) {
	out := Feed(nil)
	if !strings.Contains(out, "BEGIN:VCALENDAR") || strings.Contains(out, "BEGIN:VEVENT") {
		t.Fatalf("empty feed:\n%s", out)
	}
}
