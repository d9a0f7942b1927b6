package parse

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"momentra/pkg/model"
)

// RuleParser is the deterministic fast path. It recognizes a fixed grammar
// of scheduling phrases and refuses anything else; a refusal is an empty
// Result, never an error.
type RuleParser struct{}

// NewRuleParser returns the rule-based parser.
func NewRuleParser() *RuleParser { return &RuleParser{} }

var (
	// Clear scheduling intent: a time-ish token or a date word.
	reIntent = regexp.MustCompile(`at\s\d|\d\s?am|\d\s?pm|\d:\d|tomorrow|today|monday|tuesday|wednesday|thursday|friday|saturday|sunday`)

	// Date component: tomorrow/today, an optionally-modified weekday, or an
	// explicit "on <month> <day>".
	reDate = regexp.MustCompile(`tomorrow|today|(?:(?:this|next|coming|on)\s)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)|on\s([a-z]{3,}\s\d{1,2})`)

	// Time component: a range ("5pm to 6pm", "17:00-18:00"), "at <time>",
	// or a lone time carrying am/pm.
	reTime = regexp.MustCompile(`(\d{1,2}(?::\d{2})?\s?(?:am|pm)?)\s?(?:to|at|-|until)\s?(\d{1,2}(?::\d{2})?\s?(?:am|pm))|at\s(\d{1,2}(?::\d{2})?\s?(?:am|pm)?)|(\d{1,2}(?::\d{2})?\s?(?:am|pm))`)

	reDuration    = regexp.MustCompile(`for\s(\d+)\s?(hour|hr|minute|min)s?`)
	reUnambiguous = regexp.MustCompile(`am|pm|:`)
	reDigits      = regexp.MustCompile(`\d+`)
	reNoiseLead   = regexp.MustCompile(`^(schedule|set|add|a|an|the|at|on|for|this|next|coming)\s+`)
	reNoiseTrail  = regexp.MustCompile(`\s+(schedule|set|add|a|an|the|at|on|for|this|next|coming)$`)
)

// Parse extracts at most one event (or one AM/PM ambiguity) from rawText.
// base anchors relative dates and carries the user's timezone; output
// instants are UTC.
func (p *RuleParser) Parse(_ context.Context, rawText string, base time.Time) (*Result, error) {
	text := strings.ToLower(strings.TrimSpace(rawText))

	if !reIntent.MatchString(text) {
		return &Result{}, nil
	}

	targetDate := base
	if m := reDate.FindString(text); m != "" {
		targetDate = resolveDate(m, base)
		text = strings.TrimSpace(strings.Replace(text, m, "", 1))
	}

	// Pull the duration out before title extraction so "for 2 hours" never
	// leaks into the title.
	var duration time.Duration
	if dm := reDuration.FindStringSubmatch(text); dm != nil {
		n, _ := strconv.Atoi(dm[1])
		if strings.Contains(dm[2], "min") {
			duration = time.Duration(n) * time.Minute
		} else {
			duration = time.Duration(n) * time.Hour
		}
		text = strings.TrimSpace(strings.Replace(text, dm[0], "", 1))
	}

	tm := reTime.FindStringSubmatch(text)
	if tm == nil {
		return &Result{}, nil
	}
	startStr := firstNonEmpty(tm[1], tm[3], tm[4])
	endStr := tm[2]
	title := cleanTitle(strings.Replace(text, tm[0], " ", 1))

	// A bare "8" with no am/pm or colon is ambiguous; in the 1-12 range we
	// can resolve it locally by offering both readings.
	if !reUnambiguous.MatchString(startStr) {
		hour, err := strconv.Atoi(reDigits.FindString(startStr))
		if err != nil || hour < 1 || hour > 12 {
			return &Result{}, nil
		}
		return p.amPMAmbiguity(title, hour, targetDate), nil
	}

	startClock, err := parseClock(startStr)
	if err != nil {
		return &Result{}, nil
	}
	start := combine(targetDate, startClock).UTC()

	var end *time.Time
	if endStr != "" {
		endClock, err := parseClock(endStr)
		if err != nil {
			return &Result{}, nil
		}
		e := combine(targetDate, endClock)
		// "11pm to 1am" crosses midnight.
		if !e.After(combine(targetDate, startClock)) {
			e = e.Add(24 * time.Hour)
		}
		eu := e.UTC()
		end = &eu
	} else if duration > 0 {
		eu := start.Add(duration)
		end = &eu
	}

	if title == "" {
		title = "New Task"
	}
	return &Result{Events: []model.ParsedEvent{{
		Title:       title,
		Start:       &start,
		End:         end,
		Description: rawText,
	}}}, nil
}

// amPMAmbiguity builds the two-option question for an hour without a
// meridiem. Both options carry a full start time so choosing one is a plain
// retime.
func (p *RuleParser) amPMAmbiguity(title string, hour int, targetDate time.Time) *Result {
	if title == "" {
		title = "New Activity"
	}
	amHour, pmHour := hour, hour+12
	if hour == 12 {
		amHour, pmHour = 0, 12
	}
	am := combine(targetDate, clock{amHour, 0}).UTC()
	pm := combine(targetDate, clock{pmHour, 0}).UTC()

	return &Result{Ambiguities: []model.ParsedAmbiguity{{
		Title:   title,
		Message: fmt.Sprintf("Is %q at %d AM or %d PM?", title, hour, hour),
		Options: []model.AmbiguityOption{
			{Label: fmt.Sprintf("%d AM", hour), Value: model.OptionValue{Title: title, Start: &am}},
			{Label: fmt.Sprintf("%d PM", hour), Value: model.OptionValue{Title: title, Start: &pm}},
		},
	}}}
}

type clock struct {
	hour, min int
}

// parseClock reads "5", "5pm", "5:30", "5:30 pm", "17:00".
func parseClock(s string) (clock, error) {
	s = strings.TrimSpace(s)
	var pm, am bool
	if strings.HasSuffix(s, "pm") {
		pm, s = true, strings.TrimSpace(strings.TrimSuffix(s, "pm"))
	} else if strings.HasSuffix(s, "am") {
		am, s = true, strings.TrimSpace(strings.TrimSuffix(s, "am"))
	}
	hStr, mStr, hasMin := strings.Cut(s, ":")
	h, err := strconv.Atoi(hStr)
	if err != nil || h < 0 || h > 23 {
		return clock{}, fmt.Errorf("bad hour in %q", s)
	}
	var m int
	if hasMin {
		if m, err = strconv.Atoi(mStr); err != nil || m < 0 || m > 59 {
			return clock{}, fmt.Errorf("bad minute in %q", s)
		}
	}
	if pm && h < 12 {
		h += 12
	}
	if am && h == 12 {
		h = 0
	}
	return clock{h, m}, nil
}

// combine anchors a wall-clock time on the target date, in its location.
func combine(date time.Time, c clock) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.min, 0, 0, date.Location())
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// resolveDate turns a matched date phrase into a concrete date anchored on
// base. "Friday" means the NEXT Friday (never today); "next friday" adds a
// further week.
func resolveDate(match string, base time.Time) time.Time {
	if strings.Contains(match, "tomorrow") {
		return base.AddDate(0, 0, 1)
	}
	if strings.Contains(match, "today") {
		return base
	}

	dayStr := match
	for _, mod := range []string{"this ", "next ", "on ", "coming "} {
		dayStr = strings.Replace(dayStr, mod, "", 1)
	}
	dayStr = strings.TrimSpace(dayStr)

	for i, name := range weekdays {
		if dayStr == name {
			// Monday-based, matching the phrase grammar.
			current := (int(base.Weekday()) + 6) % 7
			ahead := i - current
			if ahead <= 0 {
				ahead += 7
			}
			if strings.Contains(match, "next") {
				ahead += 7
			}
			return base.AddDate(0, 0, ahead)
		}
	}

	// "on feb 20" style explicit dates; a date that already passed rolls to
	// next year.
	clean := strings.TrimSpace(strings.Replace(dayStr, "on ", "", 1))
	for _, layout := range []string{"Jan 2", "January 2"} {
		d, err := time.Parse(layout, titleCase(clean))
		if err != nil {
			continue
		}
		target := time.Date(base.Year(), d.Month(), d.Day(),
			base.Hour(), base.Minute(), 0, 0, base.Location())
		if target.Before(base.AddDate(0, 0, -1)) {
			target = target.AddDate(1, 0, 0)
		}
		return target
	}
	return base
}

// cleanTitle strips leading/trailing filler words and title-cases the rest.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = reNoiseLead.ReplaceAllString(s, "")
	s = reNoiseTrail.ReplaceAllString(s, "")
	return titleCase(strings.TrimSpace(s))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
