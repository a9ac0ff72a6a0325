package config

import (
	"fmt"
	"os"
)

// Validator validates loaded configuration with contextual error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, fail-fast on the first
// error. Dependencies are validated before dependents: agents and servers
// before the chains that reference them.
func (v *Validator) ValidateAll() error {
	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateChains(); err != nil {
		return fmt.Errorf("chain validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateAgents() error {
	for name, agent := range v.cfg.AgentRegistry.GetAll() {
		if len(agent.MCPServers) == 0 {
			return NewValidationError("agent", name, "mcp_servers", fmt.Errorf("at least one MCP server required"))
		}
		for _, serverID := range agent.MCPServers {
			if !v.cfg.MCPServerRegistry.Has(serverID) {
				return NewValidationError("agent", name, "mcp_servers", fmt.Errorf("MCP server '%s' not found", serverID))
			}
		}
		if agent.IterationStrategy != "" && !agent.IterationStrategy.IsValid() {
			return NewValidationError("agent", name, "iteration_strategy", fmt.Errorf("invalid strategy: %s", agent.IterationStrategy))
		}
		if agent.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(agent.LLMProvider) {
			return NewValidationError("agent", name, "llm_provider", fmt.Errorf("LLM provider '%s' not found", agent.LLMProvider))
		}
		if agent.MaxIterations != nil && *agent.MaxIterations < 1 {
			return NewValidationError("agent", name, "max_iterations", fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *Validator) validateChains() error {
	for chainID, chain := range v.cfg.ChainRegistry.GetAll() {
		if len(chain.AlertTypes) == 0 {
			return NewValidationError("chain", chainID, "alert_types", fmt.Errorf("at least one alert type required"))
		}
		if len(chain.Stages) == 0 {
			return NewValidationError("chain", chainID, "stages", fmt.Errorf("at least one stage required"))
		}
		for i := range chain.Stages {
			if err := v.validateStage(chainID, i, &chain.Stages[i]); err != nil {
				return err
			}
		}
		if chain.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(chain.LLMProvider) {
			return NewValidationError("chain", chainID, "llm_provider", fmt.Errorf("LLM provider '%s' not found", chain.LLMProvider))
		}
		if chain.MaxIterations != nil && *chain.MaxIterations < 1 {
			return NewValidationError("chain", chainID, "max_iterations", fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *Validator) validateStage(chainID string, stageIndex int, stage *StageConfig) error {
	stageRef := fmt.Sprintf("chain '%s' stage %d", chainID, stageIndex)

	if stage.Name == "" {
		return fmt.Errorf("%s: stage name required", stageRef)
	}

	// Exactly one stage shape: single-agent, replicated, or multi-agent
	switch {
	case stage.Agent == "" && len(stage.Agents) == 0:
		return fmt.Errorf("%s: either 'agent' or 'agents' required", stageRef)
	case stage.Agent != "" && len(stage.Agents) > 0:
		return fmt.Errorf("%s: 'agent' and 'agents' are mutually exclusive", stageRef)
	case len(stage.Agents) > 0 && stage.Replicas > 1:
		return fmt.Errorf("%s: 'replicas' applies only to single-agent stages", stageRef)
	case stage.Replicas < 0:
		return fmt.Errorf("%s: replicas must be positive", stageRef)
	}

	if stage.Agent != "" && !v.agentResolvable(stage.Agent) {
		return fmt.Errorf("%s: agent '%s' not found", stageRef, stage.Agent)
	}
	for _, ref := range stage.Agents {
		if ref.Name == "" {
			return fmt.Errorf("%s: agent reference requires a name", stageRef)
		}
		if !v.agentResolvable(ref.Name) {
			return fmt.Errorf("%s: agent '%s' not found", stageRef, ref.Name)
		}
		if ref.IterationStrategy != "" && !ref.IterationStrategy.IsValid() {
			return fmt.Errorf("%s: agent '%s' has invalid iteration_strategy: %s", stageRef, ref.Name, ref.IterationStrategy)
		}
		if ref.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(ref.LLMProvider) {
			return fmt.Errorf("%s: agent '%s' references unknown LLM provider '%s'", stageRef, ref.Name, ref.LLMProvider)
		}
	}

	if stage.FailurePolicy != "" && !stage.FailurePolicy.IsValid() {
		return fmt.Errorf("%s: invalid failure_policy: %s", stageRef, stage.FailurePolicy)
	}
	if stage.IterationStrategy != "" && !stage.IterationStrategy.IsValid() {
		return fmt.Errorf("%s: invalid iteration_strategy: %s", stageRef, stage.IterationStrategy)
	}
	if stage.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(stage.LLMProvider) {
		return fmt.Errorf("%s: LLM provider '%s' not found", stageRef, stage.LLMProvider)
	}
	if stage.MaxIterations != nil && *stage.MaxIterations < 1 {
		return fmt.Errorf("%s: max_iterations must be at least 1", stageRef)
	}

	return nil
}

// agentResolvable reports whether an agent name resolves through the
// registry, including the "ConfigurableAgent:{name}" indirection.
func (v *Validator) agentResolvable(name string) bool {
	if configured, ok := ParseConfigurableAgentName(name); ok {
		return v.cfg.AgentRegistry.Has(configured)
	}
	return v.cfg.AgentRegistry.Has(name)
}

func (v *Validator) validateMCPServers() error {
	builtin := GetBuiltinConfig()

	for serverID, server := range v.cfg.MCPServerRegistry.GetAll() {
		if !server.Transport.Type.IsValid() {
			return NewValidationError("mcp_server", serverID, "transport.type", fmt.Errorf("invalid transport type: %s", server.Transport.Type))
		}

		switch server.Transport.Type {
		case TransportTypeStdio:
			if server.Transport.Command == "" {
				return NewValidationError("mcp_server", serverID, "transport.command", fmt.Errorf("command required for stdio transport"))
			}
		case TransportTypeHTTP, TransportTypeSSE:
			if server.Transport.URL == "" {
				return NewValidationError("mcp_server", serverID, "transport.url", fmt.Errorf("url required for %s transport", server.Transport.Type))
			}
		}

		if server.DataMasking != nil && server.DataMasking.Enabled {
			for _, groupName := range server.DataMasking.PatternGroups {
				if _, exists := builtin.PatternGroups[groupName]; !exists {
					return NewValidationError("mcp_server", serverID, "data_masking.pattern_groups", fmt.Errorf("pattern group '%s' not found", groupName))
				}
			}
			for _, patternName := range server.DataMasking.Patterns {
				if _, exists := builtin.MaskingPatterns[patternName]; !exists {
					return NewValidationError("mcp_server", serverID, "data_masking.patterns", fmt.Errorf("pattern '%s' not found", patternName))
				}
			}
			for i, pattern := range server.DataMasking.CustomPatterns {
				if pattern.Pattern == "" {
					return NewValidationError("mcp_server", serverID, fmt.Sprintf("data_masking.custom_patterns[%d].pattern", i), fmt.Errorf("pattern required"))
				}
				if pattern.Replacement == "" {
					return NewValidationError("mcp_server", serverID, fmt.Sprintf("data_masking.custom_patterns[%d].replacement", i), fmt.Errorf("replacement required"))
				}
			}
		}
	}

	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}
		if provider.Model == "" {
			return NewValidationError("llm_provider", name, "model", fmt.Errorf("model required"))
		}
		if provider.APIKeyEnv != "" {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("llm_provider", name, "api_key_env", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}
		if provider.Type == LLMProviderTypeVertexAI {
			if provider.ProjectEnv != "" {
				if value := os.Getenv(provider.ProjectEnv); value == "" {
					return NewValidationError("llm_provider", name, "project_env", fmt.Errorf("environment variable %s is not set", provider.ProjectEnv))
				}
			}
			if provider.LocationEnv != "" {
				if value := os.Getenv(provider.LocationEnv); value == "" {
					return NewValidationError("llm_provider", name, "location_env", fmt.Errorf("environment variable %s is not set", provider.LocationEnv))
				}
			}
		}
		if provider.MaxToolResultTokens < 1000 {
			return NewValidationError("llm_provider", name, "max_tool_result_tokens", fmt.Errorf("must be at least 1000"))
		}
		if provider.Type == LLMProviderTypeGoogle || provider.Type == LLMProviderTypeVertexAI {
			for tool := range provider.NativeTools {
				if !tool.IsValid() {
					return NewValidationError("llm_provider", name, "native_tools", fmt.Errorf("invalid native tool: %s", tool))
				}
			}
		} else if len(provider.NativeTools) > 0 {
			return NewValidationError("llm_provider", name, "native_tools", fmt.Errorf("native tools are Google/Vertex only"))
		}
	}

	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return nil
	}
	if d.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(d.LLMProvider) {
		return NewValidationError("defaults", "defaults", "llm_provider", fmt.Errorf("LLM provider '%s' not found", d.LLMProvider))
	}
	if d.IterationStrategy != "" && !d.IterationStrategy.IsValid() {
		return NewValidationError("defaults", "defaults", "iteration_strategy", fmt.Errorf("invalid strategy: %s", d.IterationStrategy))
	}
	if d.FailurePolicy != "" && !d.FailurePolicy.IsValid() {
		return NewValidationError("defaults", "defaults", "failure_policy", fmt.Errorf("invalid policy: %s", d.FailurePolicy))
	}
	if d.MaxIterations != nil && *d.MaxIterations < 1 {
		return NewValidationError("defaults", "defaults", "max_iterations", fmt.Errorf("must be at least 1"))
	}
	return nil
}
