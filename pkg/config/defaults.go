package config

// Defaults contains system-wide default values applied when components
// don't specify their own.
type Defaults struct {
	// LLM provider default for all agents/chains
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// Max iterations default before a stage pauses
	MaxIterations *int `yaml:"max_iterations,omitempty"`

	// Iteration strategy default
	IterationStrategy IterationStrategy `yaml:"iteration_strategy,omitempty"`

	// Failure policy default for stages
	FailurePolicy FailurePolicy `yaml:"failure_policy,omitempty"`
}

// DefaultMaxIterations applies when no level of the configuration sets one.
const DefaultMaxIterations = 10

// EffectiveMaxIterations resolves the default max iterations.
func (d *Defaults) EffectiveMaxIterations() int {
	if d != nil && d.MaxIterations != nil {
		return *d.MaxIterations
	}
	return DefaultMaxIterations
}

// EffectiveIterationStrategy resolves the default iteration strategy.
func (d *Defaults) EffectiveIterationStrategy() IterationStrategy {
	if d != nil && d.IterationStrategy != "" {
		return d.IterationStrategy
	}
	return IterationStrategyReact
}
