package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// Realistic kubernetes-server instructions (matches builtin.go).
const k8sServerInstructions = `For Kubernetes operations:
- Be careful with cluster-scoped resource listings in large clusters
- Always prefer namespaced queries when possible
- Cluster-scoped resources (Namespace, Node, ClusterRole, PersistentVolume) should NOT have a namespace parameter
- Namespace-scoped resources (Pod, Deployment, Service, ConfigMap) REQUIRE a namespace parameter`

func newIntegrationBuilder() *Builder {
	registry := newTestMCPRegistry(map[string]*config.MCPServerConfig{
		"kubernetes-server": {Instructions: k8sServerInstructions},
	})
	return NewBuilder(registry)
}

func newIntegrationExecCtx() *agent.ExecutionContext {
	return &agent.ExecutionContext{
		SessionID: "test-session",
		AgentName: "KubernetesAgent",
		AlertData: map[string]interface{}{
			"description": "Test alert scenario",
			"namespace":   "test-namespace",
		},
		AlertType:      "test-investigation",
		RunbookContent: "# Test Runbook\nThis is a test runbook for integration testing.",
		Config: &agent.ResolvedAgentConfig{
			AgentName:          "KubernetesAgent",
			IterationStrategy:  config.IterationStrategyReact,
			MCPServers:         []string{"kubernetes-server"},
			CustomInstructions: "Be thorough.",
		},
	}
}

func integrationTools() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{
			Name:             "kubernetes-server.pods_list",
			Description:      "List pods in a namespace",
			ParametersSchema: `{"properties":{"namespace":{"type":"string","description":"Target namespace"}},"required":["namespace"]}`,
		},
		{
			Name:             "kubernetes-server.resources_get",
			Description:      "Get a Kubernetes resource",
			ParametersSchema: `{"properties":{"apiVersion":{"type":"string"},"kind":{"type":"string"},"name":{"type":"string"},"namespace":{"type":"string"}},"required":["apiVersion","kind","name"]}`,
		},
	}
}

func TestIntegration_ReActInvestigation(t *testing.T) {
	builder := newIntegrationBuilder()
	messages := builder.BuildReActMessages(newIntegrationExecCtx(), "", integrationTools())
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "General SRE Agent Instructions")
	assert.Contains(t, system, "kubernetes-server Instructions")
	assert.Contains(t, system, "cluster-scoped resource listings")
	assert.Contains(t, system, "Agent-Specific Instructions")
	assert.Contains(t, system, "Be thorough.")
	assert.Contains(t, system, "ReAct Format")
	assert.Contains(t, system, taskFocus)

	user := messages[1].Content
	assert.Contains(t, user, "Available tools:")
	assert.Contains(t, user, "kubernetes-server.pods_list")
	assert.Contains(t, user, "namespace (required, string)")
	assert.Contains(t, user, "**Alert Type:** test-investigation")
	assert.Contains(t, user, `"description": "Test alert scenario"`)
	assert.Contains(t, user, "<!-- RUNBOOK START -->")
	assert.Contains(t, user, "first stage of analysis")
	assert.Contains(t, user, "## Your Task")

	// Tool catalog precedes the alert, the alert precedes the task
	assert.Less(t, strings.Index(user, "Available tools:"), strings.Index(user, "## Alert Details"))
	assert.Less(t, strings.Index(user, "## Alert Details"), strings.Index(user, "## Your Task"))
}

func TestIntegration_ReActInvestigationWithContext(t *testing.T) {
	builder := newIntegrationBuilder()
	prev := "<!-- CHAIN_CONTEXT_START -->\n\n### Stage 1: data-collection\n\nFound OOM in pod-1.\n\n<!-- CHAIN_CONTEXT_END -->"

	messages := builder.BuildReActMessages(newIntegrationExecCtx(), prev, integrationTools())
	user := messages[1].Content

	assert.Contains(t, user, "## Previous Stage Data")
	assert.Contains(t, user, "Found OOM in pod-1.")
	assert.NotContains(t, user, "first stage of analysis")
}

func TestIntegration_StageAnalysis(t *testing.T) {
	builder := newIntegrationBuilder()
	messages := builder.BuildStageAnalysisMessages(newIntegrationExecCtx(), "", integrationTools())
	require.Len(t, messages, 2)

	// Same ReAct scaffolding, different task
	assert.Contains(t, messages[0].Content, "ReAct Format")
	assert.Contains(t, messages[1].Content, "passed to the next stage")
	assert.NotContains(t, messages[1].Content, "Prevention recommendations")
}

func TestIntegration_FinalAnalysis(t *testing.T) {
	builder := newIntegrationBuilder()
	prev := "### Stage 1: data-collection\n\nCollected pod status.\n\n### Stage 2: diagnosis\n\nRoot cause: memory leak."

	messages := builder.BuildFinalAnalysisMessages(newIntegrationExecCtx(), prev)
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "General SRE Analysis Instructions")
	assert.NotContains(t, system, "ReAct Format")
	assert.NotContains(t, system, "kubernetes-server Instructions")
	assert.Contains(t, system, "Be thorough.")

	user := messages[1].Content
	assert.Contains(t, user, "Root cause: memory leak.")
	assert.Contains(t, user, "comprehensive final analysis")
	assert.NotContains(t, user, "Available tools")
}

func TestIntegration_FailedServersWarning(t *testing.T) {
	builder := newIntegrationBuilder()
	execCtx := newIntegrationExecCtx()
	execCtx.FailedServers = map[string]string{"github-server": "connection refused"}

	messages := builder.BuildReActMessages(execCtx, "", integrationTools())
	system := messages[0].Content

	assert.Contains(t, system, "Unavailable MCP Servers")
	assert.Contains(t, system, "github-server: connection refused")
}
