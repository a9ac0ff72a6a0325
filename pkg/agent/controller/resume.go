package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

// restoreConversation rebuilds the in-memory conversation for a stage that
// was interrupted mid-investigation. Every LLM call persists the full message
// list it was sent plus the response it got back, so the latest successful
// interaction record is a complete snapshot: its request messages followed by
// its assistant response reproduce the conversation up to the interruption
// point.
//
// Returns empty messages (not an error) when no usable interaction exists —
// the caller then starts the conversation fresh.
func restoreConversation(ctx context.Context, execCtx *agent.ExecutionContext) ([]agent.ConversationMessage, int, error) {
	stage, err := execCtx.History.GetStageExecution(ctx, execCtx.StageExecutionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load stage execution: %w", err)
	}
	iteration := stage.CurrentIteration

	interactions, err := execCtx.History.GetStageLLMInteractions(ctx, execCtx.StageExecutionID, "chat")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load stage interactions: %w", err)
	}

	// Walk backwards to the newest successful interaction. Failed records may
	// carry partial or empty responses and are not a safe replay point.
	for i := len(interactions) - 1; i >= 0; i-- {
		rec := interactions[i]
		if !rec.Success {
			continue
		}

		messages := messagesFromRequest(rec.Request)
		if len(messages) == 0 {
			continue
		}
		if content, ok := rec.Response["content"].(string); ok && content != "" {
			messages = append(messages, agent.ConversationMessage{
				Role:    agent.RoleAssistant,
				Content: content,
			})
		}

		slog.Info("Restored conversation from persisted interactions",
			"session_id", execCtx.SessionID,
			"stage_execution_id", execCtx.StageExecutionID,
			"iteration", iteration,
			"messages", len(messages))
		return messages, iteration, nil
	}

	slog.Info("No replayable interactions found, starting conversation fresh",
		"session_id", execCtx.SessionID,
		"stage_execution_id", execCtx.StageExecutionID)
	return nil, iteration, nil
}

// messagesFromRequest decodes the persisted request payload back into
// conversation messages. The payload shape is {"model": ..., "messages":
// [{"role": ..., "content": ...}, ...]} as written by the recording LLM
// client.
func messagesFromRequest(request map[string]interface{}) []agent.ConversationMessage {
	raw, ok := request["messages"].([]interface{})
	if !ok {
		return nil
	}

	messages := make([]agent.ConversationMessage, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if role == "" {
			return nil
		}
		messages = append(messages, agent.ConversationMessage{Role: role, Content: content})
	}
	return messages
}
