package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

func intPtr(i int) *int { return &i }

func resolverTestConfig() (*config.Config, *config.LLMProviderConfig, *config.LLMProviderConfig) {
	googleProvider := &config.LLMProviderConfig{
		Type:      config.LLMProviderTypeGoogle,
		Model:     "gemini-2.5-pro",
		APIKeyEnv: "GOOGLE_API_KEY",
	}
	openaiProvider := &config.LLMProviderConfig{
		Type:      config.LLMProviderTypeOpenAI,
		Model:     "gpt-5",
		APIKeyEnv: "OPENAI_API_KEY",
	}

	cfg := &config.Config{
		Defaults: &config.Defaults{
			LLMProvider:   "google-default",
			MaxIterations: intPtr(25),
		},
		AgentRegistry: config.NewAgentRegistry(map[string]*config.AgentConfig{
			"KubernetesAgent": {
				MCPServers:         []string{"kubernetes-server"},
				CustomInstructions: "You are a K8s agent",
			},
			"LogAgent": {
				MCPServers:        []string{"log-server"},
				IterationStrategy: config.IterationStrategyReactStage,
				LLMProvider:       "openai-default",
				MaxIterations:     intPtr(7),
			},
		}),
		LLMProviderRegistry: config.NewLLMProviderRegistry(map[string]*config.LLMProviderConfig{
			"google-default": googleProvider,
			"openai-default": openaiProvider,
		}),
	}
	return cfg, googleProvider, openaiProvider
}

func TestResolveAgentConfig(t *testing.T) {
	cfg, googleProvider, openaiProvider := resolverTestConfig()

	t.Run("uses defaults when no overrides", func(t *testing.T) {
		chain := &config.ChainConfig{}
		resolved, err := ResolveAgentConfig(cfg, chain, config.StageConfig{},
			config.StageAgentRef{Name: "KubernetesAgent"})
		require.NoError(t, err)

		assert.Equal(t, "KubernetesAgent", resolved.AgentName)
		assert.Equal(t, config.IterationStrategyReact, resolved.IterationStrategy)
		assert.Equal(t, googleProvider, resolved.LLMProvider)
		assert.Equal(t, "google-default", resolved.LLMProviderName)
		assert.Equal(t, 25, resolved.MaxIterations)
		assert.Equal(t, []string{"kubernetes-server"}, resolved.MCPServers)
		assert.Equal(t, "You are a K8s agent", resolved.CustomInstructions)
		assert.Equal(t, DefaultIterationTimeout, resolved.IterationTimeout)
	})

	t.Run("agent definition overrides defaults", func(t *testing.T) {
		chain := &config.ChainConfig{}
		resolved, err := ResolveAgentConfig(cfg, chain, config.StageConfig{},
			config.StageAgentRef{Name: "LogAgent"})
		require.NoError(t, err)

		assert.Equal(t, config.IterationStrategyReactStage, resolved.IterationStrategy)
		assert.Equal(t, openaiProvider, resolved.LLMProvider)
		assert.Equal(t, 7, resolved.MaxIterations)
	})

	t.Run("stage overrides chain and agent def", func(t *testing.T) {
		chain := &config.ChainConfig{
			LLMProvider:   "google-default",
			MaxIterations: intPtr(15),
		}
		stageConfig := config.StageConfig{
			LLMProvider:       "openai-default",
			IterationStrategy: config.IterationStrategyReactFinalAnalysis,
			MaxIterations:     intPtr(3),
		}
		resolved, err := ResolveAgentConfig(cfg, chain, stageConfig,
			config.StageAgentRef{Name: "KubernetesAgent"})
		require.NoError(t, err)

		assert.Equal(t, config.IterationStrategyReactFinalAnalysis, resolved.IterationStrategy)
		assert.Equal(t, openaiProvider, resolved.LLMProvider)
		assert.Equal(t, 3, resolved.MaxIterations)
	})

	t.Run("stage-agent ref has highest precedence", func(t *testing.T) {
		chain := &config.ChainConfig{LLMProvider: "google-default"}
		stageConfig := config.StageConfig{
			LLMProvider:       "google-default",
			IterationStrategy: config.IterationStrategyReactStage,
		}
		agentRef := config.StageAgentRef{
			Name:              "KubernetesAgent",
			LLMProvider:       "openai-default",
			IterationStrategy: config.IterationStrategyReact,
		}
		resolved, err := ResolveAgentConfig(cfg, chain, stageConfig, agentRef)
		require.NoError(t, err)

		assert.Equal(t, config.IterationStrategyReact, resolved.IterationStrategy)
		assert.Equal(t, openaiProvider, resolved.LLMProvider)
		assert.Equal(t, "openai-default", resolved.LLMProviderName)
	})

	t.Run("chain max iterations overrides agent def", func(t *testing.T) {
		chain := &config.ChainConfig{MaxIterations: intPtr(12)}
		resolved, err := ResolveAgentConfig(cfg, chain, config.StageConfig{},
			config.StageAgentRef{Name: "LogAgent"})
		require.NoError(t, err)
		assert.Equal(t, 12, resolved.MaxIterations)
	})

	t.Run("unknown agent fails", func(t *testing.T) {
		chain := &config.ChainConfig{}
		_, err := ResolveAgentConfig(cfg, chain, config.StageConfig{},
			config.StageAgentRef{Name: "NoSuchAgent"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("unknown provider fails", func(t *testing.T) {
		chain := &config.ChainConfig{LLMProvider: "missing-provider"}
		_, err := ResolveAgentConfig(cfg, chain, config.StageConfig{},
			config.StageAgentRef{Name: "KubernetesAgent"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing-provider")
	})

	t.Run("nil chain fails", func(t *testing.T) {
		_, err := ResolveAgentConfig(cfg, nil, config.StageConfig{},
			config.StageAgentRef{Name: "KubernetesAgent"})
		require.Error(t, err)
	})
}
