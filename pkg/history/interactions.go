package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
)

// LLMRecord is a single LLM call to persist: the full request and response
// payloads plus accounting metadata.
type LLMRecord struct {
	// ID is optional; a UUID is generated when empty. The hook pipeline
	// supplies its request id here so events and rows share an identifier.
	ID               string
	SessionID        string
	StageExecutionID *string
	InteractionType  string
	Provider         string
	ModelName        string
	Request          map[string]interface{}
	Response         map[string]interface{}
	ToolCalls        []interface{}
	InputTokens      *int
	OutputTokens     *int
	TotalTokens      *int
	DurationMs       *int64
	StepDescription  string
	Success          bool
	ErrorMessage     *string
}

// RecordLLMInteraction persists one LLM call and returns its ID.
func (s *Store) RecordLLMInteraction(ctx context.Context, rec LLMRecord) (string, error) {
	interactionID := rec.ID
	if interactionID == "" {
		interactionID = uuid.New().String()
	}
	err := s.withRetry(ctx, func() error {
		builder := s.client.LLMInteraction.Create().
			SetID(interactionID).
			SetSessionID(rec.SessionID).
			SetTimestampUs(NowUs()).
			SetSuccess(rec.Success).
			SetInteractionType(rec.InteractionType).
			SetProvider(rec.Provider).
			SetModelName(rec.ModelName).
			SetRequest(rec.Request).
			SetStepDescription(rec.StepDescription)

		if rec.StageExecutionID != nil {
			builder = builder.SetStageExecutionID(*rec.StageExecutionID)
		}
		if rec.Response != nil {
			builder = builder.SetResponse(rec.Response)
		}
		if rec.ToolCalls != nil {
			builder = builder.SetToolCalls(rec.ToolCalls)
		}
		if rec.InputTokens != nil {
			builder = builder.SetInputTokens(*rec.InputTokens)
		}
		if rec.OutputTokens != nil {
			builder = builder.SetOutputTokens(*rec.OutputTokens)
		}
		if rec.TotalTokens != nil {
			builder = builder.SetTotalTokens(*rec.TotalTokens)
		}
		if rec.DurationMs != nil {
			builder = builder.SetDurationMs(*rec.DurationMs)
		}
		if rec.ErrorMessage != nil {
			builder = builder.SetErrorMessage(*rec.ErrorMessage)
		}

		return builder.Exec(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to record LLM interaction: %w", err)
	}
	return interactionID, nil
}

// MCPRecord is a single MCP server communication to persist.
type MCPRecord struct {
	// ID is optional; a UUID is generated when empty.
	ID                string
	SessionID         string
	StageExecutionID  *string
	CommunicationType mcpinteraction.CommunicationType
	ServerName        string
	ToolName          *string
	ToolArguments     map[string]interface{}
	ToolResult        map[string]interface{}
	AvailableTools    []interface{}
	DurationMs        *int64
	Success           bool
	ErrorMessage      *string
}

// RecordMCPInteraction persists one MCP communication and returns its ID.
func (s *Store) RecordMCPInteraction(ctx context.Context, rec MCPRecord) (string, error) {
	communicationID := rec.ID
	if communicationID == "" {
		communicationID = uuid.New().String()
	}
	err := s.withRetry(ctx, func() error {
		builder := s.client.MCPInteraction.Create().
			SetID(communicationID).
			SetSessionID(rec.SessionID).
			SetTimestampUs(NowUs()).
			SetSuccess(rec.Success).
			SetCommunicationType(rec.CommunicationType).
			SetServerName(rec.ServerName)

		if rec.StageExecutionID != nil {
			builder = builder.SetStageExecutionID(*rec.StageExecutionID)
		}
		if rec.ToolName != nil {
			builder = builder.SetToolName(*rec.ToolName)
		}
		if rec.ToolArguments != nil {
			builder = builder.SetToolArguments(rec.ToolArguments)
		}
		if rec.ToolResult != nil {
			builder = builder.SetToolResult(rec.ToolResult)
		}
		if rec.AvailableTools != nil {
			builder = builder.SetAvailableTools(rec.AvailableTools)
		}
		if rec.DurationMs != nil {
			builder = builder.SetDurationMs(*rec.DurationMs)
		}
		if rec.ErrorMessage != nil {
			builder = builder.SetErrorMessage(*rec.ErrorMessage)
		}

		return builder.Exec(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to record MCP interaction: %w", err)
	}
	return communicationID, nil
}

// GetLLMInteractions returns the session's LLM calls in chronological order.
func (s *Store) GetLLMInteractions(ctx context.Context, sessionID string) ([]*ent.LLMInteraction, error) {
	interactions, err := s.client.LLMInteraction.Query().
		Where(llminteraction.SessionIDEQ(sessionID)).
		Order(ent.Asc(llminteraction.FieldTimestampUs)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get LLM interactions: %w", err)
	}
	return interactions, nil
}

// GetStageLLMInteractions returns a stage execution's investigation LLM
// calls in chronological order, excluding the given interaction types.
// Conversation reconstruction passes the chat-context types here so ad-hoc
// chat turns never leak into a resumed investigation.
func (s *Store) GetStageLLMInteractions(ctx context.Context, stageExecutionID string, excludeTypes ...string) ([]*ent.LLMInteraction, error) {
	query := s.client.LLMInteraction.Query().
		Where(llminteraction.StageExecutionIDEQ(stageExecutionID))
	if len(excludeTypes) > 0 {
		query = query.Where(llminteraction.InteractionTypeNotIn(excludeTypes...))
	}

	interactions, err := query.
		Order(ent.Asc(llminteraction.FieldTimestampUs)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage LLM interactions: %w", err)
	}
	return interactions, nil
}

// GetMCPInteractions returns the session's MCP communications in
// chronological order.
func (s *Store) GetMCPInteractions(ctx context.Context, sessionID string) ([]*ent.MCPInteraction, error) {
	interactions, err := s.client.MCPInteraction.Query().
		Where(mcpinteraction.SessionIDEQ(sessionID)).
		Order(ent.Asc(mcpinteraction.FieldTimestampUs)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get MCP interactions: %w", err)
	}
	return interactions, nil
}
