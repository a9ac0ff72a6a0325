package config

// mergeAgents merges built-in and user-defined agent configurations.
// User-defined agents override built-in agents with the same name.
func mergeAgents(builtinAgents map[string]BuiltinAgentConfig, userAgents map[string]AgentConfig) map[string]*AgentConfig {
	result := make(map[string]*AgentConfig)

	for name, builtin := range builtinAgents {
		mcpCopy := make([]string, len(builtin.MCPServers))
		copy(mcpCopy, builtin.MCPServers)
		result[name] = &AgentConfig{
			Description:        builtin.Description,
			MCPServers:         mcpCopy,
			CustomInstructions: builtin.CustomInstructions,
			IterationStrategy:  builtin.IterationStrategy,
		}
	}

	for name, userAgent := range userAgents {
		agentCopy := userAgent
		result[name] = &agentCopy
	}

	return result
}

// mergeMCPServers merges built-in and user-defined MCP server configurations.
// User-defined servers override built-in servers with the same ID.
func mergeMCPServers(builtinServers, userServers map[string]MCPServerConfig) map[string]*MCPServerConfig {
	result := make(map[string]*MCPServerConfig)

	for id, server := range builtinServers {
		serverCopy := server
		result[id] = &serverCopy
	}
	for id, userServer := range userServers {
		serverCopy := userServer
		result[id] = &serverCopy
	}

	return result
}

// mergeChains merges built-in and user-defined chain configurations.
// User-defined chains override built-in chains with the same ID.
func mergeChains(builtinChains, userChains map[string]ChainConfig) map[string]*ChainConfig {
	result := make(map[string]*ChainConfig)

	for id, chain := range builtinChains {
		chainCopy := chain
		result[id] = &chainCopy
	}
	for id, userChain := range userChains {
		chainCopy := userChain
		result[id] = &chainCopy
	}

	return result
}

// mergeLLMProviders merges built-in and user-defined LLM provider
// configurations. User-defined providers override built-in providers with
// the same name.
func mergeLLMProviders(builtinProviders, userProviders map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig)

	for name, provider := range builtinProviders {
		providerCopy := provider
		result[name] = &providerCopy
	}
	for name, userProvider := range userProviders {
		providerCopy := userProvider
		result[name] = &providerCopy
	}

	return result
}
