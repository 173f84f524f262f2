// Package task defines the domain-neutral data model shared by the
// orchestration engine: workflows, steps, the agent/engine contract
// (AgentResult), and the schema-driven gating state.
package task

import "time"

// Phase is the lifecycle state of a Workflow.
type Phase string

const (
	PhaseAnalyzing   Phase = "ANALYZING"
	PhaseExecuting   Phase = "EXECUTING"
	PhaseWaitingUser Phase = "WAITING_USER"
	PhaseFinalizing  Phase = "FINALIZING"
	PhaseCompleted   Phase = "COMPLETED"
	PhaseFailed      Phase = "FAILED"
)

// Role distinguishes a silent worker step from a user-facing one.
type Role string

const (
	RoleWorker Role = "WORKER"
	RoleQAndA  Role = "Q_AND_A"
)

// ParseAgentRole normalizes a planner-supplied role token. The planner is
// allowed to emit "question" or "answer" as aliases for "q_and_a" (§9 of the
// spec); every other caller in the engine only ever sees RoleWorker or
// RoleQAndA.
func ParseAgentRole(raw string) Role {
	switch raw {
	case "question", "answer", "q_and_a", string(RoleQAndA):
		return RoleQAndA
	default:
		return RoleWorker
	}
}

// StepStatus is the lifecycle state of a single Step.
type StepStatus string

const (
	StepPending     StepStatus = "PENDING"
	StepRunning     StepStatus = "RUNNING"
	StepWaitingUser StepStatus = "WAITING_USER"
	StepCompleted   StepStatus = "COMPLETED"
	StepFailed      StepStatus = "FAILED"
)

// Step is one unit of a workflow plan.
type Step struct {
	ID          string                 `json:"id"`
	AgentID     string                 `json:"agentId"`
	AgentName   string                 `json:"agentName"`
	Role        Role                   `json:"role"`
	Description string                 `json:"description"`
	Order       int                    `json:"order"`
	Status      StepStatus             `json:"status"`
	Result      string                 `json:"result,omitempty"`
	Data        map[string]any         `json:"data,omitempty"`
	UserInput   string                 `json:"userInput,omitempty"`
	UserPrompt  string                 `json:"userPrompt,omitempty"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Extra       map[string]any         `json:"extra,omitempty"`
}

// Workflow owns a single task's plan and progress.
type Workflow struct {
	TaskID           string            `json:"taskId"`
	OriginalRequest  string            `json:"originalRequest"`
	Phase            Phase             `json:"phase"`
	Steps            []*Step           `json:"steps"`
	CurrentStepIndex int               `json:"currentStepIndex"`
	Context          map[string]any    `json:"context"`
	ConversationState *ConversationState `json:"conversationState,omitempty"`
	Schema           *TaskSchema       `json:"-"` // schemas carry a function field; never serialized
	SchemaType       string            `json:"schemaType,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewWorkflow creates an empty workflow in the ANALYZING phase.
func NewWorkflow(taskID, request string) *Workflow {
	now := time.Now()
	return &Workflow{
		TaskID:          taskID,
		OriginalRequest: request,
		Phase:           PhaseAnalyzing,
		Steps:           nil,
		Context:         make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CurrentStep returns the step at CurrentStepIndex, or nil if none remains.
func (w *Workflow) CurrentStep() *Step {
	if w.CurrentStepIndex < 0 || w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return w.Steps[w.CurrentStepIndex]
}

// Advance moves to the next step. Returns false if there is no next step.
func (w *Workflow) Advance() bool {
	if w.CurrentStepIndex+1 >= len(w.Steps) {
		w.CurrentStepIndex = len(w.Steps)
		return false
	}
	w.CurrentStepIndex++
	return true
}

// AppendStep adds a step to the end of the plan, enforcing monotonic order.
func (w *Workflow) AppendStep(s *Step) {
	s.Order = len(w.Steps) + 1
	if s.Status == "" {
		s.Status = StepPending
	}
	w.Steps = append(w.Steps, s)
}

// ResetSteps replaces the step list wholesale (used by replan) and resets
// CurrentStepIndex to 0, per §4.12.
func (w *Workflow) ResetSteps(steps []*Step) {
	for i, s := range steps {
		s.Order = i + 1
	}
	w.Steps = steps
	w.CurrentStepIndex = 0
}

// CompletedWorkerResults returns the result text of every COMPLETED
// RoleWorker step, in plan order — used by the Q&A handler's worker
// context and by final narration.
func (w *Workflow) CompletedWorkerResults() []string {
	var out []string
	for _, s := range w.Steps {
		if s.Role == RoleWorker && s.Status == StepCompleted && s.Result != "" {
			out = append(out, s.Result)
		}
	}
	return out
}

// AgentLifecycleStatus is the tagged-union discriminant of AgentResult.
type AgentLifecycleStatus string

const (
	StatusIdle        AgentLifecycleStatus = "IDLE"
	StatusRunning     AgentLifecycleStatus = "RUNNING"
	StatusWaitingUser AgentLifecycleStatus = "WAITING_USER"
	StatusCompleted   AgentLifecycleStatus = "COMPLETED"
	StatusFailed      AgentLifecycleStatus = "FAILED"
)

// InputRendererType describes how a client should render a requested input.
type InputRendererType string

const (
	InputFreeText     InputRendererType = "free_text"
	InputSingleSelect InputRendererType = "single_select"
	InputMultiSelect  InputRendererType = "multi_select"
)

// InputSchema describes the UI affordance for a WAITING_USER result.
type InputSchema struct {
	Renderer    InputRendererType `json:"renderer"`
	Placeholder string            `json:"placeholder,omitempty"`
	Choices     []string          `json:"choices,omitempty"`
}

// AgentError is the structured error payload of a FAILED AgentResult.
type AgentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GateReason centralizes the set of finalData.reason values that mark a
// Q_AND_A completion as a "gate" — one that must never be surfaced to the
// user as an interaction event (§4.1, §9 open question).
type GateReason string

const (
	GateReasonSchemaComplete         GateReason = "schema_complete"
	GateReasonNeedsWorkerExecution   GateReason = "needs_worker_execution"
	GateReasonRequiredSlotsFilled    GateReason = "required_slots_filled"
)

// IsGateReason reports whether r is one of the enumerated gate reasons.
func IsGateReason(r string) bool {
	switch GateReason(r) {
	case GateReasonSchemaComplete, GateReasonNeedsWorkerExecution, GateReasonRequiredSlotsFilled:
		return true
	default:
		return false
	}
}

// AgentResult is the sole contract between any agent (worker or Q&A) and
// the engine. Exactly one of PartialData, FinalData, Error is populated
// when Status is not RUNNING.
type AgentResult struct {
	Status         AgentLifecycleStatus `json:"status"`
	Message        string               `json:"message,omitempty"`
	RequiredInputs []string             `json:"requiredInputs,omitempty"`
	InputSchema    *InputSchema         `json:"inputSchema,omitempty"`
	PartialData    map[string]any       `json:"partialData,omitempty"`
	FinalData      map[string]any       `json:"finalData,omitempty"`
	Error          *AgentError          `json:"error,omitempty"`
}

// Completed builds a COMPLETED result.
func Completed(message string, finalData map[string]any) AgentResult {
	return AgentResult{Status: StatusCompleted, Message: message, FinalData: finalData}
}

// WaitingUser builds a WAITING_USER result.
func WaitingUser(message string, partialData map[string]any) AgentResult {
	return AgentResult{Status: StatusWaitingUser, Message: message, PartialData: partialData}
}

// Failed builds a FAILED result with a freeform message and the generic code "FAILED".
func Failed(message string) AgentResult {
	return AgentResult{Status: StatusFailed, Message: message, Error: &AgentError{Code: "FAILED", Message: message}}
}

// FailedWithCode builds a FAILED result carrying a machine-readable code
// (e.g. "TIMEOUT", "CANCELLED").
func FailedWithCode(code, message string) AgentResult {
	return AgentResult{Status: StatusFailed, Message: message, Error: &AgentError{Code: code, Message: message}}
}

// GateReasonOf extracts the gate reason from a COMPLETED result's
// FinalData, if any.
func (r AgentResult) GateReasonOf() (GateReason, bool) {
	if r.FinalData == nil {
		return "", false
	}
	raw, ok := r.FinalData["reason"].(string)
	if !ok || !IsGateReason(raw) {
		return "", false
	}
	return GateReason(raw), true
}

// ConversationState is the domain-neutral facts/decisions/flags container.
// A key is "present" only when its value is non-nil; callers must use Has*
// rather than checking for the zero value, since "" and 0 are valid facts.
type ConversationState struct {
	Facts     map[string]any `json:"facts"`
	Decisions map[string]any `json:"decisions"`
	Flags     map[string]bool `json:"flags"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewConversationState returns an empty, ready-to-use state.
func NewConversationState() *ConversationState {
	return &ConversationState{
		Facts:     make(map[string]any),
		Decisions: make(map[string]any),
		Flags:     make(map[string]bool),
	}
}

// HasFact reports whether key is present with a non-nil value.
func (s *ConversationState) HasFact(key string) bool {
	v, ok := s.Facts[key]
	return ok && v != nil
}

// HasDecision reports whether key is present with a non-nil value.
func (s *ConversationState) HasDecision(key string) bool {
	v, ok := s.Decisions[key]
	return ok && v != nil
}

// SetFlag sets a boolean control bit (e.g. needs_worker_execution).
func (s *ConversationState) SetFlag(key string, v bool) {
	if s.Flags == nil {
		s.Flags = make(map[string]bool)
	}
	s.Flags[key] = v
}

// NextActionType is the discriminant of NextAction.
type NextActionType string

const (
	ActionAsk     NextActionType = "ASK"
	ActionExecute NextActionType = "EXECUTE"
	ActionComplete NextActionType = "COMPLETE"
)

// NextAction is the result of a TaskSchema's gating function.
type NextAction struct {
	Type     NextActionType
	WorkerID string // only meaningful when Type == ActionExecute
}

// TaskSchema is a named, pure gating rule set: given a ConversationState it
// deterministically says whether to ask, execute a worker, or complete.
type TaskSchema struct {
	Type             string
	RequiredFacts    []string
	RequiredDecisions []string
	// WorkerID is the worker to dispatch once all facts/decisions are
	// present and the worker hasn't run yet (flag-tracked by WorkerDoneFlag).
	WorkerID       string
	WorkerDoneFlag string
}

// NextAction implements the §4.4 gating algorithm. It is a pure function of
// its inputs — no I/O, no LLM call — so the Q&A handler can gate without a
// round-trip.
func (s *TaskSchema) NextAction(state *ConversationState) NextAction {
	for _, k := range s.RequiredFacts {
		if !state.HasFact(k) {
			return NextAction{Type: ActionAsk}
		}
	}
	for _, k := range s.RequiredDecisions {
		if !state.HasDecision(k) {
			return NextAction{Type: ActionAsk}
		}
	}
	if s.WorkerID != "" && !state.Flags[s.WorkerDoneFlag] {
		return NextAction{Type: ActionExecute, WorkerID: s.WorkerID}
	}
	return NextAction{Type: ActionComplete}
}
