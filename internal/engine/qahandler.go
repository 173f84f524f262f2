package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/task"
)

// QAHandler produces the single next user-facing utterance for a Q_AND_A
// step, or completes the step silently when the task schema's gate is
// already satisfied — grounded on original_source's qa_handler.py and the
// teacher's reasoning.LLMService call shape.
type QAHandler struct {
	completion capability.Completion
}

// NewQAHandler creates a QAHandler bound to completion.
func NewQAHandler(completion capability.Completion) *QAHandler {
	return &QAHandler{completion: completion}
}

type qaResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handle implements the §4.6 algorithm. userInput is nil on the step's
// initial turn (the user hasn't replied yet); non-nil on every turn after.
func (q *QAHandler) Handle(ctx context.Context, w *task.Workflow, step *task.Step, userInput *string) task.AgentResult {
	workerContext := strings.Join(w.CompletedWorkerResults(), "\n")

	if step.UserPrompt != "" && userInput == nil {
		msg := step.UserPrompt
		if workerContext != "" {
			msg = workerContext + "\n\n" + msg
		}
		res := task.WaitingUser(msg, nil)
		res.InputSchema = &task.InputSchema{Renderer: task.InputFreeText}
		return res
	}

	if userInput != nil && w.ConversationState != nil && w.Schema != nil {
		switch next := w.Schema.NextAction(w.ConversationState); next.Type {
		case task.ActionComplete:
			return task.Completed("", map[string]any{"reason": string(task.GateReasonSchemaComplete)})
		case task.ActionExecute:
			w.ConversationState.SetFlag("needs_worker_execution", true)
			if w.Context == nil {
				w.Context = make(map[string]any)
			}
			w.Context["next_worker_id"] = next.WorkerID
			return task.Completed("", map[string]any{"reason": string(task.GateReasonNeedsWorkerExecution)})
		case task.ActionAsk:
			if res, ok := structuredAsk(w.Schema, w.ConversationState); ok {
				return res
			}
			// No known enumerated slot is missing; fall through to generation.
		}
	}

	return q.generate(ctx, w, step, userInput, workerContext)
}

// structuredAsk returns a single-select WAITING_USER result for a known
// enumerated decision slot, bypassing free-text LLM generation entirely.
// Today this covers only the it_support schema's "escalate" decision — the
// one concrete yes/no gate among the shipped schemas (§4.4) — and only once
// every required fact is already known, so the free-text path still owns
// fact collection.
func structuredAsk(schema *task.TaskSchema, state *task.ConversationState) (task.AgentResult, bool) {
	if schema == nil || schema.Type != "it_support" || state == nil {
		return task.AgentResult{}, false
	}
	for _, k := range schema.RequiredFacts {
		if !state.HasFact(k) {
			return task.AgentResult{}, false
		}
	}
	if state.HasDecision("escalate") {
		return task.AgentResult{}, false
	}
	res := task.WaitingUser("Should this be escalated to a human technician?", nil)
	res.InputSchema = &task.InputSchema{
		Renderer: task.InputSingleSelect,
		Choices:  []string{"yes", "no"},
	}
	return res, true
}

const qaSystemPrompt = `You are a focused intake assistant speaking directly to the user. Ask
exactly one actionable question per turn. Never restate a fact you already
know. Never name other agents, steps, or internal mechanics. Respond with
JSON: {"status": "WAITING_USER"|"COMPLETED", "message": "..."}`

func (q *QAHandler) generate(ctx context.Context, w *task.Workflow, step *task.Step, userInput *string, workerContext string) task.AgentResult {
	var b strings.Builder
	if workerContext != "" {
		fmt.Fprintf(&b, "Worker context so far:\n%s\n\n", workerContext)
	}
	if w.ConversationState != nil {
		fmt.Fprintf(&b, "Known facts: %v\nKnown decisions: %v\n\n", w.ConversationState.Facts, w.ConversationState.Decisions)
	}
	fmt.Fprintf(&b, "Step goal: %s\n", step.Description)
	if userInput != nil {
		fmt.Fprintf(&b, "The user just said: %s\n", *userInput)
	}

	messages := []capability.Message{
		{Role: "system", Content: qaSystemPrompt},
		{Role: "user", Content: b.String()},
	}
	opts := capability.GenerateOptions{JSONMode: q.completion.SupportsJSONMode(), MaxTokens: 500}

	raw, err := q.completion.Generate(ctx, messages, opts)
	if err != nil {
		return task.Failed("unable to generate the next question")
	}

	var resp qaResponse
	if jsonErr := json.Unmarshal([]byte(stripFence(raw)), &resp); jsonErr != nil {
		// §4.6 step 4 / §9: a parse failure recovers as a raw-text question
		// rather than failing the step.
		return task.WaitingUser(strings.TrimSpace(raw), nil)
	}

	if task.AgentLifecycleStatus(strings.ToUpper(resp.Status)) == task.StatusCompleted {
		return task.Completed(resp.Message, map[string]any{})
	}
	return task.WaitingUser(resp.Message, nil)
}
