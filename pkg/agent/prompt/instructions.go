package prompt

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

// generalInstructions is Tier 1 for investigation agents.
const generalInstructions = `## General SRE Agent Instructions

You are an expert Site Reliability Engineer (SRE) with deep knowledge of:
- Kubernetes and container orchestration
- Cloud infrastructure and services
- Incident response and troubleshooting
- System monitoring and alerting
- GitOps and deployment practices

Analyze alerts thoroughly and provide actionable insights based on:
1. Alert information and context
2. Associated runbook procedures
3. Real-time system data from available tools

Always be specific, reference actual data, and provide clear next steps.
Focus on root cause analysis and sustainable solutions.`

// finalAnalysisGeneralInstructions is Tier 1 for the tool-less final
// analysis call. Unlike generalInstructions, this does not mention tools
// since the final analysis only works with findings from prior stages.
const finalAnalysisGeneralInstructions = `## General SRE Analysis Instructions

You are an expert Site Reliability Engineer (SRE) with deep knowledge of:
- Kubernetes and container orchestration
- Cloud infrastructure and services
- Incident response and troubleshooting
- System monitoring and alerting
- GitOps and deployment practices

Analyze investigation results thoroughly and provide actionable insights based on:
1. The original alert information and context
2. Findings from the investigation stages
3. Associated runbook procedures

Always be specific, reference actual data from the investigations, and provide clear next steps.
Focus on root cause analysis and sustainable solutions.`

// ComposeInstructions builds the three-tier instruction set for an
// investigation agent: general SRE instructions, per-server MCP
// instructions, and agent-specific custom instructions.
func (b *Builder) ComposeInstructions(execCtx *agent.ExecutionContext) string {
	var sections []string

	// Tier 1: General SRE instructions
	sections = append(sections, generalInstructions)

	// Tier 2: MCP server instructions (from registry, keyed by server IDs in config)
	sections = b.appendMCPInstructions(sections, execCtx)

	if warning := formatFailedServers(execCtx.FailedServers); warning != "" {
		sections = append(sections, warning)
	}

	// Tier 3: Custom agent instructions
	if execCtx.Config.CustomInstructions != "" {
		sections = append(sections, "## Agent-Specific Instructions\n\n"+execCtx.Config.CustomInstructions)
	}

	return strings.Join(sections, "\n\n")
}

// composeFinalAnalysisInstructions builds the system prompt for the final
// analysis call. Skips MCP instructions (Tier 2) since no tools are offered.
func (b *Builder) composeFinalAnalysisInstructions(execCtx *agent.ExecutionContext) string {
	sections := []string{finalAnalysisGeneralInstructions}

	if execCtx.Config.CustomInstructions != "" {
		sections = append(sections, "## Agent-Specific Instructions\n\n"+execCtx.Config.CustomInstructions)
	}

	return strings.Join(sections, "\n\n")
}

// appendMCPInstructions adds Tier 2 MCP server instructions to a sections slice.
func (b *Builder) appendMCPInstructions(sections []string, execCtx *agent.ExecutionContext) []string {
	for _, serverID := range execCtx.Config.MCPServers {
		serverConfig, err := b.mcpRegistry.Get(serverID)
		if err != nil {
			slog.Debug("MCP server not found in registry, skipping instructions",
				"serverID", serverID, "error", err)
			continue
		}
		if serverConfig.Instructions != "" {
			sections = append(sections, "## "+serverID+" Instructions\n\n"+serverConfig.Instructions)
		}
	}
	return sections
}

// formatFailedServers warns the LLM about MCP servers whose tools are
// unavailable for this execution. Returns "" when every server initialized.
func formatFailedServers(failed map[string]string) string {
	if len(failed) == 0 {
		return ""
	}

	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("## Unavailable MCP Servers\n\n")
	sb.WriteString("The following MCP servers failed to initialize and their tools are NOT available.\n")
	sb.WriteString("Do not attempt to use tools from these servers and factor their absence into your analysis:\n")
	for _, id := range ids {
		sb.WriteString("- ")
		sb.WriteString(id)
		sb.WriteString(": ")
		sb.WriteString(failed[id])
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
