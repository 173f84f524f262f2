package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/task"
)

// AgentDescriptor is one entry of the available-agents list handed to the
// planner, matching the {id, name, type, description} shape named in
// SPEC_FULL.md §4.3.
type AgentDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// PreviousStep is one entry of a replan prompt's previous-plan summary.
type PreviousStep struct {
	AgentID     string `json:"agentId"`
	AgentName   string `json:"agentName"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// plannedStep is the JSON shape the LLM is asked to emit for each step.
type plannedStep struct {
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	Role        string `json:"role"`
	Description string `json:"description"`
	UserPrompt  string `json:"user_prompt"`
}

type plannerResponse struct {
	Steps    []plannedStep `json:"steps"`
	Analysis string        `json:"analysis"`
}

// PlannerResult is the outcome of a Plan call.
type PlannerResult struct {
	Success  bool
	Steps    []*task.Step
	Analysis string
}

// Planner turns a request (or a failed plan + reason) into an ordered
// step list via the Completion capability.
type Planner struct {
	completion capability.Completion
}

// NewPlanner creates a Planner bound to completion.
func NewPlanner(completion capability.Completion) *Planner {
	return &Planner{completion: completion}
}

// Plan asks the LLM for an ordered step list. previousPlan is nil for an
// initial plan; non-nil signals a replan and is rendered into the prompt
// alongside reason so the model can avoid reissuing completed work (§4.3).
func (p *Planner) Plan(ctx context.Context, taskID, request string, availableAgents []AgentDescriptor, previousPlan []PreviousStep, reason string) PlannerResult {
	if len(availableAgents) == 0 {
		return PlannerResult{Success: false}
	}

	prompt := buildPlannerPrompt(request, availableAgents, previousPlan, reason)

	messages := []capability.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: prompt},
	}
	opts := capability.GenerateOptions{JSONMode: p.completion.SupportsJSONMode(), MaxTokens: 4000}

	raw, err := p.completion.Generate(ctx, messages, opts)
	if err != nil {
		return PlannerResult{Success: false}
	}

	parsed, ok := parsePlannerResponse(raw)
	if !ok || len(parsed.Steps) == 0 {
		return PlannerResult{Success: false}
	}

	steps := make([]*task.Step, 0, len(parsed.Steps))
	for i, s := range parsed.Steps {
		agentID := s.AgentID
		if agentID == "" {
			agentID = fmt.Sprintf("agent-%d", i)
		}
		agentName := s.AgentName
		if agentName == "" {
			agentName = fmt.Sprintf("Agent %d", i+1)
		}
		steps = append(steps, &task.Step{
			ID:          uuid.NewString(),
			AgentID:     agentID,
			AgentName:   agentName,
			Role:        task.ParseAgentRole(s.Role),
			Description: s.Description,
			UserPrompt:  s.UserPrompt,
			Status:      task.StepPending,
		})
	}

	return PlannerResult{Success: true, Steps: steps, Analysis: parsed.Analysis}
}

func parsePlannerResponse(raw string) (plannerResponse, bool) {
	text := stripFence(raw)

	var resp plannerResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return plannerResponse{}, false
	}
	return resp, true
}

const plannerSystemPrompt = `You are a planning agent. Decompose the user's request into an ordered
list of steps, each assigned to one available agent. Worker agents never
speak to the user directly; any user-facing question must be a q_and_a
step. A worker result that needs user confirmation must be followed by a
q_and_a step whose user_prompt explains the choice. The final step of
every plan must be a q_and_a finalization step. Respond with JSON:
{"steps": [{"agent_id": "...", "agent_name": "...", "role": "worker|q_and_a", "description": "...", "user_prompt": "..."}], "analysis": "..."}`

func buildPlannerPrompt(request string, agents []AgentDescriptor, previousPlan []PreviousStep, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\nReason: %s\n\nAvailable agents:\n", request, reason)
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", a.ID, a.Name, a.Type, a.Description)
	}
	if len(previousPlan) > 0 {
		b.WriteString("\nPrevious plan (avoid reissuing completed steps, repair the failed segment):\n")
		for _, s := range previousPlan {
			fmt.Fprintf(&b, "- %s (%s): %s [%s]\n", s.AgentID, s.AgentName, s.Description, s.Status)
		}
	}
	return b.String()
}
