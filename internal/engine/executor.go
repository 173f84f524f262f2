package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/registry"
	"github.com/kadirpekel/taskforge/internal/task"
)

// AgentExecutor runs one WORKER step, either against a typed WorkerAgent
// registered under the step's agent id, or — when none is registered — a
// generic prompt synthesized from prior context and sent to the
// Completion capability (§4.8).
type AgentExecutor struct {
	workers    *registry.Registry[capability.WorkerAgent]
	completion capability.Completion

	// sf collapses concurrent generic-worker calls that share the exact
	// same task/step/prompt into a single Completion.Generate call — two
	// goroutines racing to dispatch the same step (e.g. a retried event
	// delivery) wait on one in-flight call instead of issuing two.
	sf singleflight.Group
}

// NewAgentExecutor creates an executor with an empty worker registry.
func NewAgentExecutor(completion capability.Completion) *AgentExecutor {
	return &AgentExecutor{workers: registry.New[capability.WorkerAgent](), completion: completion}
}

// RegisterWorker installs a typed integration under agentID. This is
// constructor-time wiring, not config-driven discovery — concrete
// integrations stay out of scope while still participating in dispatch.
func (e *AgentExecutor) RegisterWorker(agentID string, w capability.WorkerAgent) error {
	return e.workers.Register(agentID, w)
}

// Execute dispatches step. It never interprets a WAITING_USER outcome —
// a worker needing user input is a planner bug; the planner rule (§4.3)
// is that user-facing turns belong to a distinct Q_AND_A step.
func (e *AgentExecutor) Execute(ctx context.Context, w *task.Workflow, step *task.Step, userInput *string) task.AgentResult {
	tc := buildTaskContext(w, step, userInput)

	if worker, ok := e.workers.Get(step.AgentID); ok {
		result, err := worker.ExecuteTask(ctx, step.Description, tc)
		if err != nil {
			return task.FailedWithCode("WORKER_ERROR", err.Error())
		}
		return adaptResult(result)
	}

	return e.executeGeneric(ctx, w, step, tc)
}

func (e *AgentExecutor) executeGeneric(ctx context.Context, w *task.Workflow, step *task.Step, tc capability.TaskContext) task.AgentResult {
	prompt := buildGenericWorkerPrompt(w.OriginalRequest, tc.PreviousResults, step.Description)
	key := w.TaskID + "|" + step.AgentID + "|" + prompt

	v, _, _ := e.sf.Do(key, func() (any, error) {
		messages := []capability.Message{
			{Role: "system", Content: "You are a worker agent. Perform the described task and report the outcome plainly; you never address the user directly."},
			{Role: "user", Content: prompt},
		}
		text, err := e.completion.Generate(ctx, messages, capability.GenerateOptions{MaxTokens: 2000})
		if err != nil {
			return task.FailedWithCode("LLM_ERROR", err.Error()), nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return task.Failed("worker produced no output"), nil
		}
		return task.Completed(text, map[string]any{"output": text}), nil
	})
	return v.(task.AgentResult)
}

func buildTaskContext(w *task.Workflow, step *task.Step, userInput *string) capability.TaskContext {
	tc := capability.TaskContext{
		TaskID:          w.TaskID,
		OriginalRequest: w.OriginalRequest,
	}
	if userInput != nil {
		tc.UserInput = *userInput
	}
	for _, s := range w.Steps {
		if s.Status == task.StepCompleted && s.Result != "" {
			tc.PreviousResults = append(tc.PreviousResults, capability.PreviousResult{Agent: s.AgentName, Result: s.Result})
		}
	}
	if w.ConversationState != nil {
		tc.Facts = w.ConversationState.Facts
		tc.Decisions = w.ConversationState.Decisions
	}
	return tc
}

func buildGenericWorkerPrompt(request string, prev []capability.PreviousResult, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %s\n\n", request)
	if len(prev) > 0 {
		b.WriteString("Prior results:\n")
		for _, p := range prev {
			fmt.Fprintf(&b, "- %s: %s\n", p.Agent, p.Result)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current step: %s\n", description)
	return b.String()
}

// adaptResult maps a capability.Result (the decoupled shape a WorkerAgent
// returns) onto task.AgentResult (the engine's domain type).
func adaptResult(r capability.Result) task.AgentResult {
	res := task.AgentResult{
		Status:      task.AgentLifecycleStatus(r.Status),
		Message:     r.Message,
		FinalData:   r.FinalData,
		PartialData: r.PartialData,
	}
	if r.ErrorCode != "" || r.ErrorMsg != "" {
		res.Error = &task.AgentError{Code: r.ErrorCode, Message: r.ErrorMsg}
	}
	return res
}
