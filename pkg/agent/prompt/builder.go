package prompt

import (
	"strings"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// Builder builds all prompt text for agent controllers.
// It composes system messages, user messages, instruction hierarchies,
// and strategy-specific formatting. Stateless — all state comes from
// parameters. Thread-safe — no mutable state.
type Builder struct {
	mcpRegistry *config.MCPServerRegistry
}

// NewBuilder creates a Builder with access to MCP server configs.
// Panics if mcpRegistry is nil — callers must provide a valid registry.
func NewBuilder(mcpRegistry *config.MCPServerRegistry) *Builder {
	if mcpRegistry == nil {
		panic("prompt.NewBuilder: mcpRegistry must not be nil")
	}
	return &Builder{mcpRegistry: mcpRegistry}
}

// MCPServerRegistry returns the MCP server registry for per-server config lookup.
func (b *Builder) MCPServerRegistry() *config.MCPServerRegistry {
	return b.mcpRegistry
}

const taskFocus = "Focus on investigation and providing recommendations for human operators to execute."

// BuildReActMessages builds the initial conversation for a ReAct investigation.
func (b *Builder) BuildReActMessages(
	execCtx *agent.ExecutionContext,
	prevStageContext string,
	tools []agent.ToolDefinition,
) []agent.ConversationMessage {
	systemContent := b.ComposeInstructions(execCtx) + "\n\n" + reactFormatInstructions + "\n\n" + taskFocus

	return []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: systemContent},
		{Role: agent.RoleUser, Content: b.buildInvestigationUserMessage(execCtx, prevStageContext, tools, analysisTask)},
	}
}

// BuildStageAnalysisMessages builds the initial conversation for an
// intermediate chain stage. Identical to the ReAct conversation except the
// task instruction, which asks for structured findings for the next stage.
func (b *Builder) BuildStageAnalysisMessages(
	execCtx *agent.ExecutionContext,
	prevStageContext string,
	tools []agent.ToolDefinition,
) []agent.ConversationMessage {
	systemContent := b.ComposeInstructions(execCtx) + "\n\n" + reactFormatInstructions + "\n\n" + taskFocus

	return []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: systemContent},
		{Role: agent.RoleUser, Content: b.buildInvestigationUserMessage(execCtx, prevStageContext, tools, stageAnalysisTask)},
	}
}

// BuildFinalAnalysisMessages builds the conversation for a tool-less final
// analysis call that distills the previous stages into the session's final
// analysis.
func (b *Builder) BuildFinalAnalysisMessages(
	execCtx *agent.ExecutionContext,
	prevStageContext string,
) []agent.ConversationMessage {
	systemContent := b.composeFinalAnalysisInstructions(execCtx)

	var sb strings.Builder
	sb.WriteString(FormatAlertSection(execCtx.AlertType, execCtx.AlertData))
	sb.WriteString("\n")
	sb.WriteString(FormatRunbookSection(execCtx.RunbookContent))
	sb.WriteString("\n")
	sb.WriteString(FormatChainContext(prevStageContext))
	sb.WriteString("\n")
	sb.WriteString(finalAnalysisTask)

	return []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: systemContent},
		{Role: agent.RoleUser, Content: sb.String()},
	}
}

// buildInvestigationUserMessage builds the user message for an investigation.
func (b *Builder) buildInvestigationUserMessage(
	execCtx *agent.ExecutionContext,
	prevStageContext string,
	tools []agent.ToolDefinition,
	task string,
) string {
	var sb strings.Builder

	if len(tools) > 0 {
		sb.WriteString("Answer the following question using the available tools.\n\n")
		sb.WriteString("Available tools:\n\n")
		sb.WriteString(FormatToolDescriptions(tools))
		sb.WriteString("\n\n")
	}

	sb.WriteString(FormatAlertSection(execCtx.AlertType, execCtx.AlertData))
	sb.WriteString("\n")

	sb.WriteString(FormatRunbookSection(execCtx.RunbookContent))
	sb.WriteString("\n")

	sb.WriteString(FormatChainContext(prevStageContext))
	sb.WriteString("\n")

	sb.WriteString(task)

	return sb.String()
}
