package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "sk-test")

	return &Config{
		Defaults: &Defaults{},
		Queue:    DefaultQueueConfig(),
		AgentRegistry: NewAgentRegistry(map[string]*AgentConfig{
			"KubernetesAgent": {MCPServers: []string{"kubernetes-server"}},
		}),
		ChainRegistry: NewChainRegistry(map[string]*ChainConfig{
			"kubernetes-chain": {
				AlertTypes: []string{"kubernetes"},
				Stages:     []StageConfig{{Name: "analysis", Agent: "KubernetesAgent"}},
			},
		}),
		MCPServerRegistry: NewMCPServerRegistry(map[string]*MCPServerConfig{
			"kubernetes-server": {
				Transport: TransportConfig{Type: TransportTypeStdio, Command: "npx"},
			},
		}),
		LLMProviderRegistry: NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"default": {
				Type:                LLMProviderTypeOpenAI,
				Model:               "gpt-5",
				APIKeyEnv:           "TEST_LLM_KEY",
				MaxToolResultTokens: 250000,
			},
		}),
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	cfg := validTestConfig(t)
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_AgentErrors(t *testing.T) {
	t.Run("unknown mcp server", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.AgentRegistry = NewAgentRegistry(map[string]*AgentConfig{
			"KubernetesAgent": {MCPServers: []string{"missing-server"}},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing-server")
	})

	t.Run("no mcp servers", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.AgentRegistry = NewAgentRegistry(map[string]*AgentConfig{
			"KubernetesAgent": {},
		})
		assert.Error(t, NewValidator(cfg).ValidateAll())
	})
}

func TestValidator_StageShapes(t *testing.T) {
	tests := []struct {
		name    string
		stage   StageConfig
		wantErr string
	}{
		{
			name:    "neither agent nor agents",
			stage:   StageConfig{Name: "s"},
			wantErr: "either 'agent' or 'agents' required",
		},
		{
			name: "both agent and agents",
			stage: StageConfig{
				Name:   "s",
				Agent:  "KubernetesAgent",
				Agents: []StageAgentRef{{Name: "KubernetesAgent"}},
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "replicas on multi-agent stage",
			stage: StageConfig{
				Name:     "s",
				Agents:   []StageAgentRef{{Name: "KubernetesAgent"}, {Name: "KubernetesAgent"}},
				Replicas: 3,
			},
			wantErr: "'replicas' applies only to single-agent stages",
		},
		{
			name:    "unknown agent",
			stage:   StageConfig{Name: "s", Agent: "GhostAgent"},
			wantErr: "agent 'GhostAgent' not found",
		},
		{
			name:    "bad failure policy",
			stage:   StageConfig{Name: "s", Agent: "KubernetesAgent", FailurePolicy: "most"},
			wantErr: "invalid failure_policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			cfg.ChainRegistry = NewChainRegistry(map[string]*ChainConfig{
				"c": {AlertTypes: []string{"x"}, Stages: []StageConfig{tt.stage}},
			})
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidator_LLMProviderErrors(t *testing.T) {
	t.Run("api key env not set", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.LLMProviderRegistry = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"default": {
				Type:                LLMProviderTypeOpenAI,
				Model:               "gpt-5",
				APIKeyEnv:           "TARSY_DEFINITELY_UNSET_KEY",
				MaxToolResultTokens: 250000,
			},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TARSY_DEFINITELY_UNSET_KEY")
	})

	t.Run("max tool result tokens too small", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.LLMProviderRegistry = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"default": {
				Type:                LLMProviderTypeOpenAI,
				Model:               "gpt-5",
				MaxToolResultTokens: 100,
			},
		})
		assert.Error(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("native tools rejected for non-google provider", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.LLMProviderRegistry = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"default": {
				Type:                LLMProviderTypeAnthropic,
				Model:               "claude-sonnet-4-20250514",
				MaxToolResultTokens: 150000,
				NativeTools:         map[GoogleNativeTool]bool{GoogleNativeToolURLContext: true},
			},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Google/Vertex only")
	})
}

func TestValidator_MCPServerErrors(t *testing.T) {
	t.Run("stdio requires command", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.MCPServerRegistry = NewMCPServerRegistry(map[string]*MCPServerConfig{
			"kubernetes-server": {Transport: TransportConfig{Type: TransportTypeStdio}},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "command required")
	})

	t.Run("http requires url", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.MCPServerRegistry = NewMCPServerRegistry(map[string]*MCPServerConfig{
			"kubernetes-server": {Transport: TransportConfig{Type: TransportTypeHTTP}},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "url required")
	})

	t.Run("unknown pattern group", func(t *testing.T) {
		cfg := validTestConfig(t)
		cfg.MCPServerRegistry = NewMCPServerRegistry(map[string]*MCPServerConfig{
			"kubernetes-server": {
				Transport: TransportConfig{Type: TransportTypeStdio, Command: "npx"},
				DataMasking: &MaskingConfig{
					Enabled:       true,
					PatternGroups: []string{"nonexistent"},
				},
			},
		})
		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonexistent")
	})
}
