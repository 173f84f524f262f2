package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/capability/capabilitytest"
	"github.com/kadirpekel/taskforge/internal/task"
)

func TestFinalNarratorUsesLLMWhenAvailable(t *testing.T) {
	completion := &capabilitytest.ScriptedCompletion{Responses: []string{"Your table is booked for 7pm."}}
	n := NewFinalNarrator(completion)

	w := task.NewWorkflow("t1", "book a table")
	w.Steps = []*task.Step{
		{Role: task.RoleWorker, Status: task.StepCompleted, Result: "reserved table for 4 at 7pm"},
	}

	msg := n.Generate(context.Background(), w)
	if msg != "Your table is booked for 7pm." {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestFinalNarratorFallsBackWithoutCompletion(t *testing.T) {
	n := NewFinalNarrator(nil)

	w := task.NewWorkflow("t1", "book a table")
	w.Steps = []*task.Step{
		{Role: task.RoleWorker, Status: task.StepCompleted, Result: "reserved table for 4 at 7pm"},
	}

	msg := n.Generate(context.Background(), w)
	if msg == "" {
		t.Fatalf("expected a non-empty fallback message")
	}
}

type erroringCompletion struct{}

func (erroringCompletion) Generate(context.Context, []capability.Message, capability.GenerateOptions) (string, error) {
	return "", errors.New("llm unavailable")
}
func (erroringCompletion) SupportsJSONMode() bool { return false }

func TestFinalNarratorFallsBackOnLLMError(t *testing.T) {
	n := NewFinalNarrator(erroringCompletion{})

	w := task.NewWorkflow("t1", "book a table")
	msg := n.Generate(context.Background(), w)

	if msg != "All set." {
		t.Fatalf("expected the no-results fallback template, got %q", msg)
	}
}
