package task

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Extraction is one fact or decision pulled out of a user utterance.
// Corrects is true only when the utterance contained an explicit
// correction marker; ExtractAndUpdate uses it to decide whether an
// existing non-nil value may be overwritten (§4.5, §9 open question).
type Extraction struct {
	Key      string
	Value    any
	Decision bool // true if this is a decision rather than a fact
	Corrects bool
}

// Extractor turns a user utterance into a set of candidate extractions.
// The only implementation in this module is PatternExtractor, which makes
// no LLM call; ExtractAndUpdate accepts any Extractor so tests can supply
// a deterministic fake (c.f. internal/capability/capabilitytest).
type Extractor interface {
	Extract(ctx context.Context, userInput string, state *ConversationState) ([]Extraction, error)
}

var correctionMarkers = []string{"actually", "no, i meant", "no i meant", "change that to", "i meant", "correction:"}

// PatternExtractor is a pure-pattern fallback extractor: it recognizes a
// small set of "key: value" / "key is value" utterances and flags a
// correction whenever the utterance contains one of the known correction
// markers. It never calls an LLM, so it is always available, matching the
// "pure-pattern fallbacks are allowed for simple extractions" language in
// §4.5.
type PatternExtractor struct{}

var kvPattern = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_]*)\s*(?:is|:|=)\s*(.+?)\s*$`)

func (PatternExtractor) Extract(_ context.Context, userInput string, _ *ConversationState) ([]Extraction, error) {
	lower := strings.ToLower(userInput)
	corrects := false
	for _, m := range correctionMarkers {
		if strings.Contains(lower, m) {
			corrects = true
			break
		}
	}

	text := strings.TrimSpace(userInput)
	if corrects {
		// Strip a leading correction marker so "actually, location: uptown"
		// parses as the key/value pair that follows it.
		for _, mk := range correctionMarkers {
			if strings.HasPrefix(strings.ToLower(text), mk) {
				text = strings.TrimLeft(text[len(mk):], " ,:;-")
				break
			}
		}
	}

	m := kvPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	return []Extraction{{Key: strings.ToLower(m[1]), Value: m[2], Corrects: corrects}}, nil
}

// ExtractAndUpdate parses userInput with extractor and merges the result
// into state, returning the (mutated, same-pointer) state. Invariant (§8
// property 3): any extraction not explicitly flagged as a correction never
// removes or replaces an already-present non-nil fact; such extractions are
// dropped with a logged warning rather than silently applied.
func ExtractAndUpdate(ctx context.Context, extractor Extractor, userInput string, state *ConversationState) (*ConversationState, error) {
	if state == nil {
		state = NewConversationState()
	}
	extractions, err := extractor.Extract(ctx, userInput, state)
	if err != nil {
		// Per §9 "LLM-JSON parsing": extractor failure is a no-op, never
		// propagated as a fatal error.
		slog.Warn("extraction failed, leaving state unchanged", "error", err)
		return state, nil
	}

	for _, e := range extractions {
		if e.Decision {
			state.Decisions[e.Key] = e.Value
			continue
		}
		if state.HasFact(e.Key) && !e.Corrects {
			slog.Warn("dropping extraction: fact already set and no correction detected",
				"key", e.Key, "existing", state.Facts[e.Key])
			continue
		}
		state.Facts[e.Key] = e.Value
	}
	return state, nil
}
