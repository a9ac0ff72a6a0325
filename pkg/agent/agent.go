// Package agent provides the core agent framework for Tarsy.
// Agents investigate alerts using LLM calls and (optionally) MCP tools.
package agent

import "context"

// Agent defines the interface for all Tarsy agents.
// Agents are created per-execution (not shared between sessions).
type Agent interface {
	// Execute runs the agent's investigation.
	// ctx carries the session timeout and cancellation signal.
	// execCtx provides all execution dependencies and state.
	// prevStageContext is the output from the previous stages (empty for the
	// first stage).
	//
	// Returns (*ExecutionResult, nil) on completion — check Result.Status and
	// Result.Error for agent-level failures (LLM errors, tool failures).
	// Returns (nil, error) only for infrastructure failures where no
	// meaningful result exists (e.g. cannot mark the stage active in the DB).
	Execute(ctx context.Context, execCtx *ExecutionContext, prevStageContext string) (*ExecutionResult, error)
}

// ExecutionStatus represents the status of an agent execution. The values
// mirror the stage execution statuses persisted in the history store.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// ExecutionResult is returned by Agent.Execute().
// Lightweight — all intermediate state was already written to the history
// store during execution.
type ExecutionResult struct {
	Status        ExecutionStatus
	FinalAnalysis string
	Error         error
	TokensUsed    TokenUsage

	// PauseMetadata is set when Status is paused: the reason, the iteration
	// the loop stopped at, and a human-readable message. Copied onto the
	// session's pause_metadata by the chain executor.
	PauseMetadata map[string]interface{}
}

// TokenUsage aggregates token consumption across multiple LLM calls.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates usage from a single completion.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
