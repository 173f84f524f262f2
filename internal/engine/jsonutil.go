package engine

import (
	"regexp"
	"strings"
)

// fencedJSONPattern scrapes a ```json ... ``` fenced block out of an LLM
// reply. Completion.SupportsJSONMode() backends return bare JSON; backends
// without JSON mode tend to wrap it in prose and a fenced block, so every
// LLM-JSON parser in this package (planner, Q&A) falls back to
// this before attempting to unmarshal (§9, §4.3).
var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFence returns the content of the first fenced code block in raw, or
// raw itself trimmed when no fence is present.
func stripFence(raw string) string {
	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}
