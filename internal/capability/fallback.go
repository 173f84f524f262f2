package capability

import "context"

// NopCompletion is the zero-config default bound by cmd/taskforge when no
// real LLM backend is configured. The spec treats the LLM provider as an
// abstracted capability with no concrete implementation in scope — this
// type exists only so the binary boots and fails loudly, call by call,
// instead of the CLI refusing to start at all.
type NopCompletion struct{}

func (NopCompletion) Generate(_ context.Context, _ []Message, _ GenerateOptions) (string, error) {
	return "", errNoCompletionBackend
}

func (NopCompletion) SupportsJSONMode() bool { return false }

var errNoCompletionBackend = completionError("no completion backend configured: inject a capability.Completion backed by your LLM client")

type completionError string

func (e completionError) Error() string { return string(e) }
