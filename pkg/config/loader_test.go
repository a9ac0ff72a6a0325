package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuiltinProviderEnv sets the environment variables required by the
// built-in providers so Initialize's validation passes.
func setBuiltinProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("XAI_API_KEY", "test-key")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("GOOGLE_CLOUD_LOCATION", "us-central1")
}

func writeConfigDir(t *testing.T, tarsyYAML, providersYAML string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tarsy.yaml"), []byte(tarsyYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llm-providers.yaml"), []byte(providersYAML), 0o600))
	return dir
}

func TestInitialize(t *testing.T) {
	setBuiltinProviderEnv(t)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	dir := writeConfigDir(t, `
agents:
  LogAnalyzer:
    mcp_servers: [kubernetes-server]
    custom_instructions: "Focus on logs."

agent_chains:
  log-chain:
    alert_types: [log-spike]
    stages:
      - name: analysis
        agent: ConfigurableAgent:LogAnalyzer

defaults:
  llm_provider: test-openai

queue:
  max_concurrent_sessions: 3
`, `
llm_providers:
  test-openai:
    type: openai
    model: gpt-5
    api_key_env: TEST_OPENAI_KEY
    max_tool_result_tokens: 250000
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// User chain registered next to the built-in one
	assert.True(t, cfg.ChainRegistry.Has("log-chain"))
	assert.True(t, cfg.ChainRegistry.Has("kubernetes-chain"))

	// User agent merged with built-ins
	agent, err := cfg.GetAgent("LogAnalyzer")
	require.NoError(t, err)
	assert.Equal(t, "Focus on logs.", agent.CustomInstructions)
	assert.True(t, cfg.AgentRegistry.Has("KubernetesAgent"))

	// Queue YAML overrides one field, defaults fill the rest
	assert.Equal(t, 3, cfg.Queue.MaxConcurrentSessions)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.ClaimInterval)

	assert.Equal(t, "test-openai", cfg.Defaults.LLMProvider)
}

func TestInitialize_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_EnvExpansionInConfig(t *testing.T) {
	setBuiltinProviderEnv(t)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	t.Setenv("TEST_MCP_URL", "https://mcp.internal.example.com")

	dir := writeConfigDir(t, `
mcp_servers:
  internal-server:
    transport:
      type: http
      url: ${TEST_MCP_URL}
`, `
llm_providers:
  test-openai:
    type: openai
    model: gpt-5
    api_key_env: TEST_OPENAI_KEY
    max_tool_result_tokens: 250000
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	server, err := cfg.GetMCPServer("internal-server")
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.internal.example.com", server.Transport.URL)
}

func TestInitialize_InvalidChainFailsValidation(t *testing.T) {
	setBuiltinProviderEnv(t)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	dir := writeConfigDir(t, `
agent_chains:
  broken-chain:
    alert_types: [x]
    stages:
      - name: s
`, `
llm_providers:
  test-openai:
    type: openai
    model: gpt-5
    api_key_env: TEST_OPENAI_KEY
    max_tool_result_tokens: 250000
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either 'agent' or 'agents' required")
}
