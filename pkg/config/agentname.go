package config

import "strings"

// configurableAgentPrefix marks chain stage agent names that resolve through
// the configured-agent registry instead of the built-in table.
const configurableAgentPrefix = "ConfigurableAgent:"

// ConfigurableAgentName builds the registry-qualified name for a configured
// agent, e.g. "ConfigurableAgent:LogAnalyzer".
func ConfigurableAgentName(name string) string {
	return configurableAgentPrefix + name
}

// ParseConfigurableAgentName extracts the configured-agent name from a
// registry-qualified reference. Returns false for built-in agent names.
func ParseConfigurableAgentName(name string) (string, bool) {
	if rest, ok := strings.CutPrefix(name, configurableAgentPrefix); ok && rest != "" {
		return rest, true
	}
	return "", false
}
