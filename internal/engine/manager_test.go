package engine

import (
	"testing"

	"github.com/kadirpekel/taskforge/internal/task"
)

func TestHasPendingWorkflowOnlyTrueWhenWaitingOnUser(t *testing.T) {
	m := NewWorkflowManager()

	if m.HasPendingWorkflow("missing") {
		t.Fatal("expected no pending workflow for an unknown task id")
	}

	w := m.Create("task-1", "do something")
	if m.HasPendingWorkflow("task-1") {
		t.Fatal("a freshly created workflow isn't waiting on the user yet")
	}

	w.Phase = task.PhaseExecuting
	if m.HasPendingWorkflow("task-1") {
		t.Fatal("an executing workflow isn't pending user input")
	}

	w.Phase = task.PhaseWaitingUser
	if !m.HasPendingWorkflow("task-1") {
		t.Fatal("expected a WAITING_USER workflow to be reported as pending")
	}

	w.Phase = task.PhaseCompleted
	if m.HasPendingWorkflow("task-1") {
		t.Fatal("a completed workflow isn't pending user input")
	}
}
