package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/capability/capabilitytest"
	"github.com/kadirpekel/taskforge/internal/task"
)

func TestExecutorDispatchesTypedWorker(t *testing.T) {
	e := NewAgentExecutor(&capabilitytest.ScriptedCompletion{})
	called := false
	err := e.RegisterWorker("booker", capabilitytest.FuncWorker{
		Fn: func(_ context.Context, description string, tc capability.TaskContext) (capability.Result, error) {
			called = true
			if description != "reserve the table" {
				t.Fatalf("unexpected description passed to worker: %q", description)
			}
			return capability.Result{Status: "COMPLETED", Message: "booked", FinalData: map[string]any{"output": "booked"}}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	w := task.NewWorkflow("t1", "book a table")
	step := &task.Step{AgentID: "booker", Role: task.RoleWorker, Description: "reserve the table"}

	res := e.Execute(context.Background(), w, step, nil)

	if !called {
		t.Fatalf("expected the typed worker to be invoked")
	}
	if res.Status != task.StatusCompleted || res.Message != "booked" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecutorFallsBackToGenericCompletion(t *testing.T) {
	completion := &capabilitytest.ScriptedCompletion{Responses: []string{"the report was generated"}}
	e := NewAgentExecutor(completion)

	w := task.NewWorkflow("t1", "generate a report")
	step := &task.Step{AgentID: "unregistered", Role: task.RoleWorker, Description: "generate the quarterly report"}

	res := e.Execute(context.Background(), w, step, nil)

	if res.Status != task.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", res.Status, res.Error)
	}
	if res.Message != "the report was generated" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if completion.Calls() != 1 {
		t.Fatalf("expected exactly one completion call, got %d", completion.Calls())
	}
}

func TestExecutorTypedWorkerErrorBecomesFailedResult(t *testing.T) {
	e := NewAgentExecutor(&capabilitytest.ScriptedCompletion{})
	_ = e.RegisterWorker("booker", capabilitytest.FuncWorker{
		Fn: func(context.Context, string, capability.TaskContext) (capability.Result, error) {
			return capability.Result{}, errors.New("upstream unavailable")
		},
	})

	w := task.NewWorkflow("t1", "book a table")
	step := &task.Step{AgentID: "booker", Role: task.RoleWorker, Description: "reserve the table"}

	res := e.Execute(context.Background(), w, step, nil)

	if res.Status != task.StatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if res.Error == nil || res.Error.Code != "WORKER_ERROR" {
		t.Fatalf("expected a WORKER_ERROR code, got %+v", res.Error)
	}
}

func TestExecutorIncludesPreviousResultsInGenericPrompt(t *testing.T) {
	completion := &promptRecorder{}
	e := NewAgentExecutor(completion)

	w := task.NewWorkflow("t1", "plan a trip")
	w.Steps = []*task.Step{
		{AgentID: "flights", Role: task.RoleWorker, Status: task.StepCompleted, Result: "booked flight AA100", AgentName: "Flights"},
	}
	step := &task.Step{AgentID: "hotels", Role: task.RoleWorker, Description: "book a hotel near the airport"}

	res := e.Execute(context.Background(), w, step, nil)

	if res.Status != task.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
	if !strings.Contains(completion.prompt, "Flights: booked flight AA100") {
		t.Fatalf("expected the generic prompt to include the prior step result, got %q", completion.prompt)
	}
}

// promptRecorder is a Completion that records the user-role prompt it was
// sent and always replies "done".
type promptRecorder struct{ prompt string }

func (p *promptRecorder) Generate(_ context.Context, messages []capability.Message, _ capability.GenerateOptions) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			p.prompt = m.Content
		}
	}
	return "done", nil
}

func (p *promptRecorder) SupportsJSONMode() bool { return false }
