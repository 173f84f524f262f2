// Package taskforge is a multi-agent orchestration engine: it turns
// natural-language requests into multi-step workflows executed by a pool of
// worker agents, interleaved with question/answer agents, and surfaced to
// clients over a real-time event channel.
//
// # Quick Start
//
// Install taskforge:
//
//	go install github.com/kadirpekel/taskforge/cmd/taskforge@latest
//
// Start the server:
//
//	taskforge serve --config taskforge.yaml
//
// # Using as a Go library
//
//	import (
//	    "github.com/kadirpekel/taskforge/internal/engine"
//	    "github.com/kadirpekel/taskforge/internal/task"
//	)
//
// # Architecture
//
// A request enters the engine with a task identifier. The engine infers a
// task schema, creates a workflow, asks the planner for steps, then loops:
// for each step, dispatch to a worker or a question/answer agent through a
// per-agent circuit breaker, interpret the result, persist, and either
// advance, pause for user input, replan, or finalize. Throughout, the engine
// emits events to an append-only store fanned out to subscribed clients.
//
// # Status
//
// Alpha. APIs may change.
package taskforge
