// Package hooks wraps every LLM and MCP exchange in a typed interceptor
// pipeline: the operation runs inside Execute, which stamps timing and
// outcome, then fans the interaction out to registered hooks (persistence,
// event emission) after pre-hooks (masking) have rewritten the payload.
// Hook failures never propagate to the hot path.
package hooks

import (
	"context"

	"github.com/tarsy-dev/tarsy/pkg/history"
)

// Kind identifies the runtime type of an intercepted interaction.
type Kind string

const (
	KindLLM         Kind = "llm"
	KindMCPToolCall Kind = "mcp.tool_call"
	KindMCPToolList Kind = "mcp.tool_list"
)

// Interaction is the typed context carried through the pipeline. Exactly one
// of LLM or MCP is set, matching Kind. Execute fills the identity, timing
// and outcome fields; pre-hooks may mutate the record before the concurrent
// hooks observe it.
type Interaction struct {
	Kind      Kind
	RequestID string // stamped by Execute; doubles as the persisted record ID

	SessionID        string
	StageExecutionID *string

	StartTimeUs int64
	EndTimeUs   int64
	DurationMs  int64
	Success     bool
	ErrorMessage *string

	LLM *history.LLMRecord
	MCP *history.MCPRecord
}

// Hook observes completed interactions. Hooks of the same kind run
// concurrently; a hook must not mutate the interaction.
type Hook interface {
	// Name identifies the hook in logs.
	Name() string

	// Kinds returns the interaction kinds this hook subscribes to.
	Kinds() []Kind

	// OnInteraction is called after the operation finishes, on success and
	// failure alike. Errors count against the hook's error budget.
	OnInteraction(ctx context.Context, in *Interaction) error
}

// PreHook rewrites the interaction payload before the concurrent hooks run.
// Pre-hooks execute sequentially in registration order and must handle
// their own failures (the masking pre-hook fails closed internally).
type PreHook interface {
	Name() string
	Process(ctx context.Context, in *Interaction)
}
