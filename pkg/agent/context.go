package agent

import (
	"context"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// ExecutionContext carries all dependencies and state needed by an agent
// during execution. Created by the chain executor for each agent run.
type ExecutionContext struct {
	// Identity
	SessionID        string
	StageExecutionID string
	AgentName        string
	AgentIndex       int // position within a parallel stage (0 for single-agent stages)

	// Alert data (pulled from the AlertSession by the executor).
	// Already sanitized at submission time.
	AlertData map[string]interface{}

	// Alert type (from session/chain config)
	AlertType string

	// Runbook content (fetched by the executor, passed as text)
	RunbookContent string

	// Configuration (resolved from hierarchy)
	Config *ResolvedAgentConfig

	// Dependencies (injected by the executor)
	LLMClient    LLMClient
	ToolExecutor ToolExecutor

	// History persists iteration progress and serves conversation replay on
	// resume. Implemented by history.Store.
	History StageStore

	// Prompt builder (injected by the executor, stateless, shared across
	// executions). Implemented by prompt.Builder; interface avoids an
	// agent↔prompt import cycle.
	PromptBuilder PromptBuilder

	// Resume is set when the session was paused or orphaned mid-stage and
	// this execution should continue from the persisted conversation.
	Resume bool

	// FailedServers maps serverID → error message for MCP servers that
	// failed to initialize. Used by the prompt builder to warn the LLM.
	// nil when all servers initialized successfully.
	FailedServers map[string]string
}

// StageStore is the slice of the history store that controllers touch during
// an execution: iteration checkpoints, cooperative control flags, and the
// persisted conversation used for resume.
type StageStore interface {
	StartStageExecution(ctx context.Context, stageExecutionID string) error
	SetStageIteration(ctx context.Context, stageExecutionID string, iteration int) error
	GetStageExecution(ctx context.Context, stageExecutionID string) (*ent.StageExecution, error)
	GetStageLLMInteractions(ctx context.Context, stageExecutionID string, excludeTypes ...string) ([]*ent.LLMInteraction, error)
	ControlFlags(ctx context.Context, sessionID string) (cancelRequested, pauseRequested bool, err error)
}

// ResolvedAgentConfig is the fully-resolved configuration for an agent
// execution. All hierarchy levels (defaults → agent definition → chain →
// stage → stage-agent) have been applied.
type ResolvedAgentConfig struct {
	AgentName          string
	IterationStrategy  config.IterationStrategy // Determines controller selection
	LLMProvider        *config.LLMProviderConfig
	LLMProviderName    string // The resolved provider key (for observability / DB records)
	MaxIterations      int
	IterationTimeout   time.Duration // Per-iteration timeout (default: 120s)
	MCPServers         []string
	CustomInstructions string
}

// PromptBuilder builds all prompt text for agent controllers.
// Implemented by prompt.Builder; defined as an interface here to avoid a
// circular import between pkg/agent and pkg/agent/prompt.
type PromptBuilder interface {
	// BuildReActMessages builds the initial conversation for a ReAct
	// investigation: system prompt plus the user message with the alert,
	// runbook, previous stage context, and tool catalog.
	BuildReActMessages(execCtx *ExecutionContext, prevStageContext string, tools []ToolDefinition) []ConversationMessage

	// BuildStageAnalysisMessages builds the conversation for a tool-using
	// stage that must produce structured partial findings for later stages.
	BuildStageAnalysisMessages(execCtx *ExecutionContext, prevStageContext string, tools []ToolDefinition) []ConversationMessage

	// BuildFinalAnalysisMessages builds the conversation for a tool-less
	// final analysis call.
	BuildFinalAnalysisMessages(execCtx *ExecutionContext, prevStageContext string) []ConversationMessage

	// MCPServerRegistry exposes per-server config for instruction composition.
	MCPServerRegistry() *config.MCPServerRegistry
}
