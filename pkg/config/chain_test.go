package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainRegistry_GetByAlertType(t *testing.T) {
	registry := NewChainRegistry(map[string]*ChainConfig{
		"kubernetes-chain": {
			AlertTypes: []string{"kubernetes", "pod-crash"},
			Stages:     []StageConfig{{Name: "analysis", Agent: "KubernetesAgent"}},
		},
		"network-chain": {
			AlertTypes: []string{"network"},
			Stages:     []StageConfig{{Name: "triage", Agent: "NetworkAgent"}},
		},
	})

	t.Run("known alert type", func(t *testing.T) {
		chainID, chain, err := registry.GetByAlertType("pod-crash")
		require.NoError(t, err)
		assert.Equal(t, "kubernetes-chain", chainID)
		assert.Len(t, chain.Stages, 1)
	})

	t.Run("unknown alert type", func(t *testing.T) {
		_, _, err := registry.GetByAlertType("disk-pressure")
		assert.ErrorIs(t, err, ErrChainNotFound)
	})

	t.Run("alert types are deduplicated and sorted", func(t *testing.T) {
		assert.Equal(t, []string{"kubernetes", "network", "pod-crash"}, registry.AlertTypes())
	})
}

func TestStageConfig_Shapes(t *testing.T) {
	tests := []struct {
		name         string
		stage        StageConfig
		parallel     bool
		parallelType ParallelType
	}{
		{
			name:     "single agent",
			stage:    StageConfig{Name: "analysis", Agent: "KubernetesAgent"},
			parallel: false,
		},
		{
			name: "multi agent",
			stage: StageConfig{
				Name:   "investigate",
				Agents: []StageAgentRef{{Name: "A"}, {Name: "B"}},
			},
			parallel:     true,
			parallelType: ParallelTypeMultiAgent,
		},
		{
			name:         "replicated",
			stage:        StageConfig{Name: "vote", Agent: "A", Replicas: 3},
			parallel:     true,
			parallelType: ParallelTypeReplica,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.parallel, tt.stage.IsParallel())
			assert.Equal(t, tt.parallelType, tt.stage.ParallelType())
		})
	}
}

func TestStageConfig_EffectiveFailurePolicy(t *testing.T) {
	assert.Equal(t, FailurePolicyAll, (&StageConfig{}).EffectiveFailurePolicy())
	assert.Equal(t, FailurePolicyAny, (&StageConfig{FailurePolicy: FailurePolicyAny}).EffectiveFailurePolicy())
}

func TestParseConfigurableAgentName(t *testing.T) {
	name, ok := ParseConfigurableAgentName("ConfigurableAgent:LogAnalyzer")
	require.True(t, ok)
	assert.Equal(t, "LogAnalyzer", name)

	_, ok = ParseConfigurableAgentName("KubernetesAgent")
	assert.False(t, ok)

	_, ok = ParseConfigurableAgentName("ConfigurableAgent:")
	assert.False(t, ok)
}
