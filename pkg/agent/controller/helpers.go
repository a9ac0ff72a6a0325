package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

// isTimeoutError checks if an error is a context deadline timeout.
// Used for consecutive timeout tracking. Only matches errors that wrap
// context.DeadlineExceeded — string-based matching is intentionally avoided
// because callers propagate the original error with its full chain.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// generateCallID creates a unique ID for a tool call.
func generateCallID() string {
	return uuid.New().String()
}

// buildToolNameSet creates a set of available tool names for quick lookup.
func buildToolNameSet(tools []agent.ToolDefinition) map[string]bool {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t.Name] = true
	}
	return set
}

// failedResult creates a failed ExecutionResult from iteration state.
// state must not be nil — callers always pass the locally-created
// IterationState from the top of their Run() method.
func failedResult(state *agent.IterationState, totalUsage agent.TokenUsage) *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Status: agent.ExecutionStatusFailed,
		Error: fmt.Errorf("aborted after %d consecutive timeouts (iteration %d/%d): %s",
			state.ConsecutiveTimeoutFailures, state.CurrentIteration, state.MaxIterations, state.LastErrorMessage),
		TokensUsed: totalUsage,
	}
}

// pausedResult creates a paused ExecutionResult with pause metadata for the
// session record.
func pausedResult(reason string, iteration int, message string, totalUsage agent.TokenUsage) *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Status:     agent.ExecutionStatusPaused,
		TokensUsed: totalUsage,
		PauseMetadata: map[string]interface{}{
			"reason":            reason,
			"current_iteration": iteration,
			"message":           message,
		},
	}
}

// persistIteration checkpoints the loop position in the history store.
// Logs on failure but does not abort the loop — the in-memory state is
// authoritative during execution.
func persistIteration(ctx context.Context, execCtx *agent.ExecutionContext, iteration int) {
	if err := execCtx.History.SetStageIteration(ctx, execCtx.StageExecutionID, iteration); err != nil {
		slog.Error("Failed to persist stage iteration",
			"session_id", execCtx.SessionID,
			"stage_execution_id", execCtx.StageExecutionID,
			"iteration", iteration,
			"error", err)
	}
}

// checkControlFlags polls the session's cooperative control flags.
// Returns a terminal result when cancellation or pause was requested,
// nil otherwise. Flag read failures are logged and treated as "keep going"
// so a flaky DB cannot kill a healthy investigation.
func checkControlFlags(ctx context.Context, execCtx *agent.ExecutionContext, iteration int, totalUsage agent.TokenUsage) *agent.ExecutionResult {
	cancelRequested, pauseRequested, err := execCtx.History.ControlFlags(ctx, execCtx.SessionID)
	if err != nil {
		slog.Warn("Failed to read session control flags",
			"session_id", execCtx.SessionID, "error", err)
		return nil
	}
	if cancelRequested {
		return &agent.ExecutionResult{
			Status:     agent.ExecutionStatusCancelled,
			Error:      fmt.Errorf("cancellation requested at iteration %d", iteration),
			TokensUsed: totalUsage,
		}
	}
	if pauseRequested {
		return pausedResult("pause_requested", iteration,
			fmt.Sprintf("Investigation paused on request at iteration %d.", iteration), totalUsage)
	}
	return nil
}
