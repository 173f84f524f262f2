package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/task"
)

// FinalNarrator produces the single natural-language message the user
// sees when a workflow finishes (§4.6b). It never blocks finalization on
// LLM availability: a failed or empty completion call falls back to a
// deterministic template.
type FinalNarrator struct {
	completion capability.Completion
}

// NewFinalNarrator creates a FinalNarrator. completion may be nil, in
// which case Generate always uses the deterministic fallback.
func NewFinalNarrator(completion capability.Completion) *FinalNarrator {
	return &FinalNarrator{completion: completion}
}

// Generate returns the closing message for w.
func (n *FinalNarrator) Generate(ctx context.Context, w *task.Workflow) string {
	results := w.CompletedWorkerResults()

	if n.completion != nil {
		if msg := n.generateLLM(ctx, w, results); msg != "" {
			return msg
		}
	}
	return fallbackNarration(results)
}

func (n *FinalNarrator) generateLLM(ctx context.Context, w *task.Workflow, results []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %s\n\n", w.OriginalRequest)
	if len(results) > 0 {
		b.WriteString("Completed work:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if w.ConversationState != nil {
		fmt.Fprintf(&b, "\nConfirmed facts: %v\nDecisions: %v\n", w.ConversationState.Facts, w.ConversationState.Decisions)
	}
	b.WriteString("\nWrite one short, natural closing message for the user. Never mention agent names or internal steps.")

	messages := []capability.Message{
		{Role: "system", Content: "You write the final message a user sees once their request is done."},
		{Role: "user", Content: b.String()},
	}
	text, err := n.completion.Generate(ctx, messages, capability.GenerateOptions{MaxTokens: 300})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func fallbackNarration(results []string) string {
	if len(results) == 0 {
		return "All set."
	}
	return "Done — " + strings.Join(results, "; ")
}
