// Package parse turns natural-language plans into candidate events.
//
// The rule-based parser handles deterministic phrasings ("lunch tomorrow at
// 1pm", "gym friday 6-7pm", "call mom at 8") locally and deterministically.
// Input it cannot read with confidence yields no events rather than a
// guess; the Parser interface leaves room for a smarter backend behind the
// same boundary.
package parse

import (
	"context"
	"time"

	"momentra/pkg/model"
)

// Result is the parser boundary shape: extracted events plus ambiguities
// the user has to settle (e.g. "8" without AM or PM).
type Result struct {
	Events      []model.ParsedEvent
	Ambiguities []model.ParsedAmbiguity
}

// Parser extracts candidate events from raw text. base is the user's local
// time; all returned instants are UTC.
type Parser interface {
	Parse(ctx context.Context, rawText string, base time.Time) (*Result, error)
}
