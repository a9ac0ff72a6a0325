package config

// IterationStrategy defines available agent iteration strategies
type IterationStrategy string

const (
	// IterationStrategyReact runs the standard ReAct tool-calling loop
	IterationStrategyReact IterationStrategy = "react"
	// IterationStrategyReactStage is the ReAct loop with stage-name framing
	// in the initial prompt (used for later chain stages)
	IterationStrategyReactStage IterationStrategy = "react-stage"
	// IterationStrategyReactFinalAnalysis performs a single LLM call without
	// tools, consuming all prior stage outputs
	IterationStrategyReactFinalAnalysis IterationStrategy = "react-final-analysis"
)

// IsValid checks if the iteration strategy is valid
func (s IterationStrategy) IsValid() bool {
	switch s {
	case IterationStrategyReact,
		IterationStrategyReactStage,
		IterationStrategyReactFinalAnalysis:
		return true
	default:
		return false
	}
}

// UsesTools reports whether the strategy runs the tool-calling loop.
func (s IterationStrategy) UsesTools() bool {
	return s != IterationStrategyReactFinalAnalysis
}

// FailurePolicy defines the aggregation rule for parallel stage child
// outcomes and the chain-level handling of a failed stage.
type FailurePolicy string

const (
	// FailurePolicyAll requires every child to succeed; a failed stage
	// aborts the chain (default)
	FailurePolicyAll FailurePolicy = "all"
	// FailurePolicyAny requires at least one child to succeed
	FailurePolicyAny FailurePolicy = "any"
	// FailurePolicyContinue records the failure and proceeds to the next stage
	FailurePolicyContinue FailurePolicy = "continue"
)

// IsValid checks if the failure policy is valid
func (p FailurePolicy) IsValid() bool {
	return p == FailurePolicyAll || p == FailurePolicyAny || p == FailurePolicyContinue
}

// TransportType defines MCP server transport types
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses streamable HTTP JSON-RPC
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// LLMProviderType defines supported LLM providers
type LLMProviderType string

const (
	// LLMProviderTypeOpenAI is the OpenAI API (and OpenAI-compatible endpoints)
	LLMProviderTypeOpenAI LLMProviderType = "openai"
	// LLMProviderTypeAnthropic is the Anthropic Claude API
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
	// LLMProviderTypeGoogle is the Google Gemini API
	LLMProviderTypeGoogle LLMProviderType = "google"
	// LLMProviderTypeXAI is the xAI Grok API (OpenAI-compatible, custom base URL)
	LLMProviderTypeXAI LLMProviderType = "xai"
	// LLMProviderTypeVertexAI is Google Vertex AI
	LLMProviderTypeVertexAI LLMProviderType = "vertexai"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderTypeOpenAI,
		LLMProviderTypeAnthropic,
		LLMProviderTypeGoogle,
		LLMProviderTypeXAI,
		LLMProviderTypeVertexAI:
		return true
	default:
		return false
	}
}

// GoogleNativeTool defines Google/Gemini native tools that can be enabled
// alongside MCP tool declarations.
type GoogleNativeTool string

const (
	// GoogleNativeToolGoogleSearch enables Google Search grounding
	GoogleNativeToolGoogleSearch GoogleNativeTool = "google_search"
	// GoogleNativeToolURLContext enables URL context fetching
	GoogleNativeToolURLContext GoogleNativeTool = "url_context"
)

// IsValid checks if the Google native tool is valid
func (t GoogleNativeTool) IsValid() bool {
	return t == GoogleNativeToolGoogleSearch || t == GoogleNativeToolURLContext
}

// ParallelType classifies a parallel stage: distinct agents or N copies of one.
type ParallelType string

const (
	// ParallelTypeMultiAgent runs distinct agents concurrently
	ParallelTypeMultiAgent ParallelType = "multi_agent"
	// ParallelTypeReplica runs N replicas of the same agent
	ParallelTypeReplica ParallelType = "replica"
)
