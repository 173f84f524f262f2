// Package engine implements the orchestration loop: planning, per-step
// dispatch through the circuit breaker, Q&A gating, replanning, and final
// narration. Grounded on original_source's
// agents/orchestration/{engine.py,workflow_manager_v2.py}, adapted into
// the teacher's idiom (sync.Mutex-guarded registries, slog logging,
// context-carrying method signatures).
package engine

import (
	"sync"
	"time"

	"github.com/kadirpekel/taskforge/internal/task"
)

// WorkflowManager owns every in-flight Workflow and hands out one
// per-task lock, created lazily under a short-lived global lock — the
// serialization guarantee in SPEC_FULL.md §4.2: two goroutines touching
// the same taskId never interleave, but unrelated tasks never block each
// other.
type WorkflowManager struct {
	mu        sync.Mutex
	workflows map[string]*task.Workflow
	locks     map[string]*sync.Mutex
}

// NewWorkflowManager creates an empty manager.
func NewWorkflowManager() *WorkflowManager {
	return &WorkflowManager{
		workflows: make(map[string]*task.Workflow),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex for taskID, creating it on first use.
func (m *WorkflowManager) lockFor(taskID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[taskID] = l
	}
	return l
}

// WithLock runs fn while holding taskID's serialization lock. Every
// mutation of a Workflow must happen inside a WithLock call.
func (m *WorkflowManager) WithLock(taskID string, fn func()) {
	l := m.lockFor(taskID)
	l.Lock()
	defer l.Unlock()
	fn()
}

// Create registers a brand new workflow for taskID. Caller must already
// hold taskID's lock (via WithLock) if the task might already exist.
func (m *WorkflowManager) Create(taskID, request string) *task.Workflow {
	w := task.NewWorkflow(taskID, request)
	m.mu.Lock()
	m.workflows[taskID] = w
	m.mu.Unlock()
	return w
}

// Get returns the workflow for taskID, or nil if unknown.
func (m *WorkflowManager) Get(taskID string) *task.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workflows[taskID]
}

// Put installs w (used by the repository to rehydrate a workflow that was
// persisted by a previous process).
func (m *WorkflowManager) Put(w *task.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.TaskID] = w
}

// Remove deletes taskID's workflow and its lock. Safe to call even while
// another goroutine holds the lock via WithLock — the lock object itself
// isn't freed until every holder has released it, Go's sync.Mutex has no
// "delete while locked" hazard since we only drop our map reference.
func (m *WorkflowManager) Remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, taskID)
	delete(m.locks, taskID)
}

// HasPendingWorkflow reports whether taskID has a workflow paused waiting
// on user input.
func (m *WorkflowManager) HasPendingWorkflow(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[taskID]
	if !ok {
		return false
	}
	return w.Phase == task.PhaseWaitingUser
}

// CleanupCompleted removes every workflow in a terminal phase whose last
// update is at least olderThan ago, returning how many were removed.
// Intended to be called periodically so long-lived processes don't
// accumulate memory for tasks nobody will resume.
func (m *WorkflowManager) CleanupCompleted(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, w := range m.workflows {
		terminal := w.Phase == task.PhaseCompleted || w.Phase == task.PhaseFailed
		if terminal && time.Since(w.UpdatedAt) >= olderThan {
			delete(m.workflows, id)
			delete(m.locks, id)
			n++
		}
	}
	return n
}

// Count returns the number of tracked workflows, for metrics/diagnostics.
func (m *WorkflowManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workflows)
}
