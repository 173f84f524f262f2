// Package engine implements the orchestration loop: planning, per-step
// dispatch through the circuit breaker, Q&A gating, replanning, and final
// narration. Grounded on original_source's
// agents/orchestration/{engine.py,workflow_manager_v2.py}, adapted into
// the teacher's idiom (sync.Mutex-guarded registries, slog logging,
// context-carrying method signatures).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/taskforge/internal/circuitbreaker"
	"github.com/kadirpekel/taskforge/internal/eventstore"
	"github.com/kadirpekel/taskforge/internal/metrics"
	"github.com/kadirpekel/taskforge/internal/registry"
	"github.com/kadirpekel/taskforge/internal/repository"
	"github.com/kadirpekel/taskforge/internal/task"
	"github.com/kadirpekel/taskforge/internal/thinking"
)

// OrchestrationEngine is the top-level controller described in §4.1. It
// owns a WorkflowManager and wires together every other component; the
// two entry points, ProcessRequest and ResumeWithUserInput, are the only
// way a caller drives a task.
type OrchestrationEngine struct {
	manager  *WorkflowManager
	planner  *Planner
	qa       *QAHandler
	executor *AgentExecutor
	narrator *FinalNarrator
	breaker  *circuitbreaker.Breaker
	events   *eventstore.Store
	repo     repository.Repository
	schemas  *task.SchemaRegistry
	extractor task.Extractor

	thinkingMachines *registry.Registry[*thinking.Machine]
	metrics          *metrics.Metrics
	tracer           trace.Tracer

	agentsMu     sync.Mutex
	agentsByTask map[string][]AgentDescriptor
}

// SetMetrics installs m as the engine's instrumentation sink. Until it is
// called the field holds a nil *metrics.Metrics, whose recording methods
// are no-ops on a nil receiver.
func (e *OrchestrationEngine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

// SetTracer installs t as the engine's span source for dispatch (§4.1
// step 4). Skipping this call leaves the noop tracer installed by New in
// place, so spans are always safe to create even when tracing.Init was
// never called.
func (e *OrchestrationEngine) SetTracer(t trace.Tracer) { e.tracer = t }

// New creates an OrchestrationEngine from its fully-wired collaborators.
func New(
	planner *Planner,
	qa *QAHandler,
	executor *AgentExecutor,
	narrator *FinalNarrator,
	breaker *circuitbreaker.Breaker,
	events *eventstore.Store,
	repo repository.Repository,
	schemas *task.SchemaRegistry,
	extractor task.Extractor,
) *OrchestrationEngine {
	return &OrchestrationEngine{
		manager:          NewWorkflowManager(),
		planner:          planner,
		qa:               qa,
		executor:         executor,
		narrator:         narrator,
		breaker:          breaker,
		events:           events,
		repo:             repo,
		schemas:          schemas,
		extractor:        extractor,
		thinkingMachines: registry.New[*thinking.Machine](),
		tracer:           noop.NewTracerProvider().Tracer("taskforge/engine"),
		agentsByTask:     make(map[string][]AgentDescriptor),
	}
}

// Manager exposes the underlying WorkflowManager, e.g. for a periodic
// CleanupCompleted sweep.
func (e *OrchestrationEngine) Manager() *WorkflowManager { return e.manager }

// ProcessRequest creates a workflow for taskID, infers its schema, plans,
// and runs the execution loop. It returns a non-nil message when the
// workflow reaches a terminal phase in this call, or nil when it paused
// waiting for the user (§4.1).
func (e *OrchestrationEngine) ProcessRequest(ctx context.Context, taskID, request string, availableAgents []AgentDescriptor, extMeta map[string]any) (*string, error) {
	var result *string
	var err error

	e.manager.WithLock(taskID, func() {
		defer e.recoverPanic(ctx, taskID)

		w := e.manager.Create(taskID, request)
		w.Schema = e.schemas.InferFromRequest(request)
		w.SchemaType = w.Schema.Type
		w.ConversationState = task.NewConversationState()
		e.setAvailableAgents(taskID, availableAgents)
		e.metrics.RecordWorkflowStarted(w.SchemaType)
		e.metrics.SetWorkflowsActive(e.manager.Count())

		e.logEvent(taskID, "", "", "info", fmt.Sprintf("inferred schema %q for task", w.Schema.Type), extMeta)

		plan := e.planner.Plan(ctx, taskID, request, availableAgents, nil, "initial plan")
		if !plan.Success || len(plan.Steps) == 0 {
			w.Phase = task.PhaseFailed
			e.save(ctx, w)
			msg := "I couldn't figure out how to help with that request."
			e.emitInteraction(taskID, "agent", msg, "", "", nil)
			result = &msg
			return
		}

		w.Phase = task.PhaseExecuting
		w.ResetSteps(plan.Steps)
		e.save(ctx, w)

		result, err = e.runLoop(ctx, w)
	})
	return result, err
}

// ResumeWithUserInput records userInput on the task's current step,
// folds it into the conversation state via ExtractAndUpdate (§4.5), and
// re-enters the execution loop (§4.1).
func (e *OrchestrationEngine) ResumeWithUserInput(ctx context.Context, taskID, userInput string) (*string, error) {
	var result *string
	var err error

	e.manager.WithLock(taskID, func() {
		defer e.recoverPanic(ctx, taskID)

		w := e.manager.Get(taskID)
		if w == nil {
			loaded, loadErr := e.repoLoad(ctx, taskID)
			if loadErr != nil {
				msg := "workflow not found"
				result = &msg
				return
			}
			e.manager.Put(loaded)
			w = loaded
		}

		step := w.CurrentStep()
		if step == nil {
			err = ErrNoPendingStep
			return
		}
		step.UserInput = userInput

		if w.ConversationState == nil {
			w.ConversationState = task.NewConversationState()
		}
		w.ConversationState, _ = task.ExtractAndUpdate(ctx, e.extractor, userInput, w.ConversationState)

		w.Phase = task.PhaseExecuting
		e.save(ctx, w)

		result, err = e.runLoop(ctx, w)
	})
	return result, err
}

func (e *OrchestrationEngine) repoLoad(ctx context.Context, taskID string) (*task.Workflow, error) {
	if e.repo == nil {
		return nil, ErrWorkflowNotFound
	}
	w, err := e.repo.Load(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return w, nil
}

// runLoop is the execution loop of §4.1, steps 1-5, re-entered by both
// entry points while holding taskID's lock.
func (e *OrchestrationEngine) runLoop(ctx context.Context, w *task.Workflow) (*string, error) {
	for {
		if ctx.Err() != nil {
			return e.cancel(ctx, w), nil
		}

		step := w.CurrentStep()
		if step == nil {
			msg := e.finalize(ctx, w)
			return msg, nil
		}
		if step.Status == task.StepCompleted {
			w.Advance()
			continue
		}

		now := time.Now()
		step.Status = task.StepRunning
		step.StartedAt = &now
		e.logEvent(w.TaskID, step.AgentID, step.AgentName, "info",
			fmt.Sprintf("running step %d: %s", step.Order, step.Description), nil)
		e.save(ctx, w)

		var userInput *string
		if step.UserInput != "" {
			ui := step.UserInput
			userInput = &ui
		}

		dispatchStart := time.Now()
		result := e.dispatch(ctx, w, step, userInput)
		e.metrics.RecordStep(string(step.Role), string(result.Status), time.Since(dispatchStart))

		finalMsg, done, replanErr := e.handleOutcome(ctx, w, step, result)
		if replanErr != nil {
			return nil, replanErr
		}
		if done {
			return finalMsg, nil
		}
	}
}

// dispatch runs step through the circuit breaker keyed by its agent id,
// per §4.1 step 4. A rejected call is synthesized as a FAILED result
// rather than surfacing the breaker's sentinel error to the loop.
func (e *OrchestrationEngine) dispatch(ctx context.Context, w *task.Workflow, step *task.Step, userInput *string) task.AgentResult {
	ctx, span := e.tracer.Start(ctx, "engine.dispatch",
		trace.WithAttributes(
			attribute.String("taskforge.task_id", w.TaskID),
			attribute.String("taskforge.agent_id", step.AgentID),
			attribute.String("taskforge.step_role", string(step.Role)),
		),
	)
	defer span.End()

	var tm *thinking.Machine
	if step.Role == task.RoleWorker {
		tm = e.thinkingMachineFor(step.AgentID)
		tm.Fire(thinking.StartTask)
	}

	var captured task.AgentResult
	fn := func(ctx context.Context) (any, error) {
		if step.Role == task.RoleQAndA {
			captured = e.qa.Handle(ctx, w, step, userInput)
		} else {
			captured = e.executor.Execute(ctx, w, step, userInput)
		}
		if captured.Status == task.StatusFailed {
			return captured, fmt.Errorf("agent failed")
		}
		return captured, nil
	}

	_, callErr := e.breaker.Call(ctx, step.AgentID, fn, nil)
	if callErr != nil && errors.Is(callErr, circuitbreaker.ErrCircuitOpen) {
		captured = task.FailedWithCode("CIRCUIT_OPEN", "this agent is temporarily unavailable")
	}

	if tm != nil {
		switch captured.Status {
		case task.StatusCompleted:
			tm.Fire(thinking.InfoCollected)
			tm.Fire(thinking.StructureComplete)
			tm.Fire(thinking.ValidationPassed)
			tm.Fire(thinking.TaskComplete)
		case task.StatusFailed:
			tm.Fire(thinking.ValidationFailed)
		}
	}

	span.SetAttributes(attribute.String("taskforge.result_status", string(captured.Status)))
	if captured.Status == task.StatusFailed {
		msg := "step failed"
		if captured.Error != nil && captured.Error.Message != "" {
			msg = captured.Error.Message
		}
		span.SetStatus(codes.Error, msg)
	}

	return captured
}

// handleOutcome interprets result per §4.1's outcome table. It returns
// (message, done, error): done=true means the loop must stop and return
// message (possibly nil, when pausing). The error result is always nil:
// when replanning fails, handleOutcome sets phase=FAILED itself and
// returns the failure message with done=true.
func (e *OrchestrationEngine) handleOutcome(ctx context.Context, w *task.Workflow, step *task.Step, result task.AgentResult) (*string, bool, error) {
	switch result.Status {
	case task.StatusWaitingUser:
		step.Status = task.StepWaitingUser
		w.Phase = task.PhaseWaitingUser
		e.emitInteraction(w.TaskID, "agent", result.Message, step.AgentID, step.AgentName, result.InputSchema)
		e.save(ctx, w)
		return nil, true, nil

	case task.StatusCompleted:
		now := time.Now()
		step.Status = task.StepCompleted
		step.CompletedAt = &now

		resultText := result.Message
		if out, ok := result.FinalData["output"].(string); ok && out != "" {
			resultText = out
		}
		step.Result = resultText

		if w.Context == nil {
			w.Context = make(map[string]any)
		}
		w.Context[fmt.Sprintf("step_%d_result", step.Order)] = resultText

		if step.Role == task.RoleWorker && w.Schema != nil && w.Schema.WorkerDoneFlag != "" &&
			step.AgentID == w.Schema.WorkerID {
			if w.ConversationState == nil {
				w.ConversationState = task.NewConversationState()
			}
			w.ConversationState.SetFlag(w.Schema.WorkerDoneFlag, true)
		}

		_, isGate := result.GateReasonOf()
		if step.Role == task.RoleQAndA && !isGate && resultText != "" {
			e.emitInteraction(w.TaskID, "agent", resultText, step.AgentID, step.AgentName, nil)
		}

		w.Advance()
		e.save(ctx, w)
		return nil, false, nil

	case task.StatusFailed:
		reason := "the agent could not complete this step"
		if result.Error != nil && result.Error.Message != "" {
			reason = result.Error.Message
		}
		if e.AttemptReplan(ctx, w, reason) {
			return nil, false, nil
		}
		w.Phase = task.PhaseFailed
		e.save(ctx, w)
		e.metrics.RecordWorkflowFinished(string(w.Phase), time.Since(w.CreatedAt))
		msg := naturalFailureMessage(reason)
		e.emitInteraction(w.TaskID, "agent", msg, "", "", nil)
		return &msg, true, nil

	default:
		// RUNNING/IDLE: an async agent that hasn't settled yet. The
		// synchronous loop can't advance further this call; leave the
		// step RUNNING and let a later ResumeWithUserInput or external
		// driver re-enter (§4.1 step 5, "RUNNING").
		e.save(ctx, w)
		return nil, true, nil
	}
}

// AttemptReplan implements §4.12: wholesale replacement of the remaining
// step list, keeping ConversationState intact. It bypasses the circuit
// breaker entirely (§9, §4.12: a runaway planner failure must surface
// quickly).
func (e *OrchestrationEngine) AttemptReplan(ctx context.Context, w *task.Workflow, reason string) bool {
	previous := make([]PreviousStep, 0, len(w.Steps))
	for _, s := range w.Steps {
		previous = append(previous, PreviousStep{
			AgentID: s.AgentID, AgentName: s.AgentName, Description: s.Description, Status: string(s.Status),
		})
	}

	plan := e.planner.Plan(ctx, w.TaskID, w.OriginalRequest, e.availableAgentsFor(w.TaskID), previous, "replan: "+reason)
	if !plan.Success || len(plan.Steps) == 0 {
		return false
	}

	w.ResetSteps(plan.Steps)
	e.logEvent(w.TaskID, "", "", "decision", "replanned: "+reason, nil)
	e.metrics.RecordReplan(w.SchemaType)
	e.save(ctx, w)
	return true
}

// finalize implements §4.1's finalization step.
func (e *OrchestrationEngine) finalize(ctx context.Context, w *task.Workflow) *string {
	w.Phase = task.PhaseFinalizing
	e.save(ctx, w)

	msg := e.narrator.Generate(ctx, w)
	e.emitInteraction(w.TaskID, "agent", msg, "", "", nil)

	w.Phase = task.PhaseCompleted
	e.save(ctx, w)
	e.metrics.RecordWorkflowFinished(string(w.Phase), time.Since(w.CreatedAt))
	return &msg
}

// cancel implements §5 cancellation / §8 Scenario F: the workflow fails
// with a CANCELLED error code and one log event, and the lock is released
// when the caller's WithLock closure returns.
func (e *OrchestrationEngine) cancel(ctx context.Context, w *task.Workflow) *string {
	w.Phase = task.PhaseFailed
	e.logEvent(w.TaskID, "", "", "error", "cancelled", map[string]any{"code": "CANCELLED"})
	e.save(ctx, w)
	e.metrics.RecordWorkflowFinished(string(w.Phase), time.Since(w.CreatedAt))
	msg := "This request was cancelled."
	return &msg
}

func naturalFailureMessage(reason string) string {
	return "I wasn't able to finish this request: " + reason
}

func (e *OrchestrationEngine) recoverPanic(ctx context.Context, taskID string) {
	if r := recover(); r != nil {
		slog.Error("recovered from panic in task dispatch", "task_id", taskID, "panic", r)
		if w := e.manager.Get(taskID); w != nil {
			w.Phase = task.PhaseFailed
			e.save(ctx, w)
		}
	}
}

func (e *OrchestrationEngine) save(ctx context.Context, w *task.Workflow) {
	w.UpdatedAt = time.Now()
	if e.repo == nil {
		return
	}
	// Best-effort per §7 rule 5 / §4.9: the in-memory workflow stays
	// authoritative even when persistence fails.
	if err := e.repo.Save(ctx, w); err != nil {
		slog.Warn("failed to persist workflow", "task_id", w.TaskID, "error", err)
	}
}

func (e *OrchestrationEngine) setAvailableAgents(taskID string, agents []AgentDescriptor) {
	e.agentsMu.Lock()
	defer e.agentsMu.Unlock()
	e.agentsByTask[taskID] = agents
}

func (e *OrchestrationEngine) availableAgentsFor(taskID string) []AgentDescriptor {
	e.agentsMu.Lock()
	defer e.agentsMu.Unlock()
	return e.agentsByTask[taskID]
}

func (e *OrchestrationEngine) thinkingMachineFor(agentID string) *thinking.Machine {
	return e.thinkingMachines.GetOrCreate(agentID, func() *thinking.Machine {
		return thinking.New(agentID, func(_ string, t thinking.Transition) {
			if e.events == nil {
				return
			}
			e.events.StoreEvent("thinking_state_change", map[string]any{
				"agentId": agentID,
				"from":    string(t.From),
				"to":      string(t.To),
				"trigger": string(t.Event),
			})
		})
	})
}

func (e *OrchestrationEngine) logEvent(taskID, agentID, agentName, logType, message string, details map[string]any) {
	if e.events == nil {
		return
	}
	payload := map[string]any{
		"id":        uuid.NewString(),
		"agentId":   agentID,
		"agentName": agentName,
		"type":      logType,
		"message":   message,
	}
	if details != nil {
		payload["details"] = details
	}
	if taskID != "" {
		payload["taskId"] = taskID
		payload["relatedTaskId"] = taskID
	}
	e.events.StoreEvent("agent_log", payload)
}

func (e *OrchestrationEngine) emitInteraction(taskID, role, message, agentID, agentName string, inputSchema *task.InputSchema) {
	if e.events == nil {
		return
	}
	payload := map[string]any{
		"id":      uuid.NewString(),
		"taskId":  taskID,
		"role":    role,
		"message": message,
	}
	if agentID != "" {
		payload["agentId"] = agentID
	}
	if agentName != "" {
		payload["agentName"] = agentName
	}
	if inputSchema != nil {
		payload["inputSchema"] = inputSchema
	}
	e.events.StoreEvent("task_interaction", payload)
}
