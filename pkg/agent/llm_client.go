package agent

import (
	"context"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

// LLMClient sends conversations to an LLM provider and returns the
// completed response. Implementations route to the provider SDK selected
// by the request's provider config.
type LLMClient interface {
	// Complete sends a conversation to the LLM and blocks until the
	// response is finished. Returns an error for transport and provider
	// failures; a successful call always carries a non-nil Completion.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// CompletionRequest carries one LLM call: the conversation so far plus the
// provider to route to and the identity fields used for persistence.
type CompletionRequest struct {
	SessionID        string
	StageExecutionID string
	Messages         []ConversationMessage
	Tools            []ToolDefinition // nil = no native tool declarations

	Provider     *config.LLMProviderConfig
	ProviderName string

	// InteractionType and StepDescription label the persisted record
	// (e.g. "investigation", "final_analysis").
	InteractionType string
	StepDescription string
}

// Completion is the LLM's finished response.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// ConversationMessage is one turn of an LLM conversation.
type ConversationMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // For assistant messages
	ToolCallID string     // For tool result messages
	ToolName   string     // For tool result messages
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall represents an LLM's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}
