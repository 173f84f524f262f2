package engine

import "errors"

// Sentinel errors the engine's entry points can return, satisfying
// errors.Is so callers (the HTTP adapter, CLI) can branch without string
// matching, per SPEC_FULL.md §7 "Error types (Go-native)".
var (
	// ErrWorkflowNotFound is returned by the repository lookup when taskID
	// names no known (in-memory or persisted) workflow. ResumeWithUserInput
	// reports that case to its caller as the message "workflow not found"
	// with a nil error.
	ErrWorkflowNotFound = errors.New("engine: workflow not found")

	// ErrNoPendingStep is returned when ResumeWithUserInput is called on a
	// workflow whose plan has already run to completion.
	ErrNoPendingStep = errors.New("engine: no pending step to resume")
)
