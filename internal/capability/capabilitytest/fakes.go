// Package capabilitytest provides deterministic Completion/WorkerAgent test
// doubles so engine tests never need a real LLM or external integration,
// matching the teacher's testutils conventions.
package capabilitytest

import (
	"context"
	"errors"

	"github.com/kadirpekel/taskforge/internal/capability"
)

// ScriptedCompletion returns canned responses in order, one per call. It
// errors once the script is exhausted, surfacing test bugs instead of
// silently returning zero values.
type ScriptedCompletion struct {
	Responses []string
	JSONMode  bool
	calls     int
}

func (s *ScriptedCompletion) Generate(_ context.Context, _ []capability.Message, _ capability.GenerateOptions) (string, error) {
	if s.calls >= len(s.Responses) {
		return "", errors.New("capabilitytest: scripted completion exhausted")
	}
	r := s.Responses[s.calls]
	s.calls++
	return r, nil
}

func (s *ScriptedCompletion) SupportsJSONMode() bool { return s.JSONMode }

// Calls reports how many Generate invocations have been made.
func (s *ScriptedCompletion) Calls() int { return s.calls }

// FuncWorker adapts a plain function to capability.WorkerAgent.
type FuncWorker struct {
	Fn func(ctx context.Context, description string, tc capability.TaskContext) (capability.Result, error)
}

func (f FuncWorker) ExecuteTask(ctx context.Context, description string, tc capability.TaskContext) (capability.Result, error) {
	return f.Fn(ctx, description, tc)
}
