// Package capability declares the abstracted external collaborators the
// engine depends on — an LLM-shaped Completion capability and a
// side-effecting WorkerAgent capability — without committing to any
// concrete provider. Grounded on the teacher's pkg/reasoning/interfaces.go
// (LLMService, AgentServices composition).
package capability

import "context"

// Message is one turn of a chat-shaped prompt.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// GenerateOptions configures a single Completion call.
type GenerateOptions struct {
	MaxTokens   int
	JSONMode    bool
	Temperature float64
}

// Completion abstracts "call an LLM, optionally asking for JSON back." The
// spec explicitly puts concrete providers (OpenAI, Anthropic, ...) out of
// scope; the engine is written only against this interface.
type Completion interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
	SupportsJSONMode() bool
}

// TaskContext is the fixed shape every worker/Q&A agent receives, per
// SPEC_FULL.md §6 "Agent contract".
type TaskContext struct {
	TaskID          string
	OriginalRequest string
	UserInput       string // empty when not applicable
	PreviousResults []PreviousResult
	Facts           map[string]any
	Decisions       map[string]any
}

// PreviousResult is one entry of TaskContext.PreviousResults.
type PreviousResult struct {
	Agent  string
	Result string
}

// WorkerAgent abstracts a concrete, side-effecting integration (messaging,
// documents, email, ...). No exceptions escape the boundary: every failure
// must be returned as an AgentResult with StatusFailed by the caller, not
// as a Go error from ExecuteTask itself, matching "Agents never throw" in
// §7. Go still returns an error channel for true I/O faults (e.g. the
// integration's transport is unreachable); the agent executor converts
// those into task.Failed before they ever reach the engine loop.
type WorkerAgent interface {
	ExecuteTask(ctx context.Context, description string, tc TaskContext) (Result, error)
}

// Result mirrors task.AgentResult's shape without importing the task
// package, so capability has no dependency on the engine's domain types;
// internal/engine adapts between the two at the boundary.
type Result struct {
	Status      string
	Message     string
	FinalData   map[string]any
	PartialData map[string]any
	ErrorCode   string
	ErrorMsg    string
}
