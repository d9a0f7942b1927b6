// Package ics renders committed tasks as an iCalendar feed, so any
// standard calendar client can subscribe to the schedule read-only.
package ics

import (
	ical "github.com/arran4/golang-ical"

	"momentra/pkg/model"
)

// prodID identifies the feed generator in the calendar header.
const prodID = "-//momentra//schedule feed//EN"

// Feed serializes the tasks as a VCALENDAR. Task IDs double as stable
// event UIDs so re-fetching clients update in place instead of
// duplicating.
func Feed(tasks []model.Task) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, t := range tasks {
		ev := cal.AddEvent(t.ID)
		ev.SetSummary(t.Title)
		if t.Description != "" {
			ev.SetDescription(t.Description)
		}
		ev.SetStartAt(t.Start.UTC())
		ev.SetEndAt(t.End.UTC())
		ev.SetDtStampTime(t.CreatedAt.UTC())
		ev.SetCreatedTime(t.CreatedAt.UTC())
		if !t.Blocking {
			// Clients render these as free time, mirroring how the
			// scheduler treats them.
			ev.SetTimeTransparency(ical.TransparencyTransparent)
		}
	}
	return cal.Serialize()
}
