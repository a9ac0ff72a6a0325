package agent

import (
	"fmt"
	"time"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

// DefaultIterationTimeout is the default per-iteration timeout.
// Each iteration (LLM call + tool execution) gets its own context.WithTimeout
// derived from the parent session context. This prevents a single stuck
// iteration from consuming the entire session budget.
const DefaultIterationTimeout = 120 * time.Second

// ResolveAgentConfig builds the final agent configuration by applying the
// hierarchy: defaults → agent definition → chain → stage → stage-agent
// (later levels override earlier ones).
func ResolveAgentConfig(
	cfg *config.Config,
	chain *config.ChainConfig,
	stageConfig config.StageConfig,
	agentRef config.StageAgentRef,
) (*ResolvedAgentConfig, error) {
	// Guard against nil chain to prevent nil pointer dereference when
	// accessing chain.LLMProvider and chain.MaxIterations.
	if chain == nil {
		return nil, fmt.Errorf("chain configuration cannot be nil")
	}

	defaults := cfg.Defaults

	// Get agent definition (built-in or user-defined)
	agentDef, err := cfg.GetAgent(agentRef.Name)
	if err != nil {
		return nil, fmt.Errorf("agent %q not found: %w", agentRef.Name, err)
	}

	// Resolve iteration strategy: defaults → agentDef → stage → stage-agent
	strategy := defaults.EffectiveIterationStrategy()
	if agentDef.IterationStrategy != "" {
		strategy = agentDef.IterationStrategy
	}
	if stageConfig.IterationStrategy != "" {
		strategy = stageConfig.IterationStrategy
	}
	if agentRef.IterationStrategy != "" {
		strategy = agentRef.IterationStrategy
	}

	// Resolve LLM provider: defaults → agentDef → chain → stage → stage-agent
	providerName := defaults.LLMProvider
	if agentDef.LLMProvider != "" {
		providerName = agentDef.LLMProvider
	}
	if chain.LLMProvider != "" {
		providerName = chain.LLMProvider
	}
	if stageConfig.LLMProvider != "" {
		providerName = stageConfig.LLMProvider
	}
	if agentRef.LLMProvider != "" {
		providerName = agentRef.LLMProvider
	}
	provider, err := cfg.GetLLMProvider(providerName)
	if err != nil {
		return nil, fmt.Errorf("LLM provider %q not found: %w", providerName, err)
	}

	// Resolve max iterations: defaults → agentDef → chain → stage
	maxIter := defaults.EffectiveMaxIterations()
	if agentDef.MaxIterations != nil {
		maxIter = *agentDef.MaxIterations
	}
	if chain.MaxIterations != nil {
		maxIter = *chain.MaxIterations
	}
	if stageConfig.MaxIterations != nil {
		maxIter = *stageConfig.MaxIterations
	}

	return &ResolvedAgentConfig{
		AgentName:          agentRef.Name,
		IterationStrategy:  strategy,
		LLMProvider:        provider,
		LLMProviderName:    providerName,
		MaxIterations:      maxIter,
		IterationTimeout:   DefaultIterationTimeout,
		MCPServers:         agentDef.MCPServers,
		CustomInstructions: agentDef.CustomInstructions,
	}, nil
}
