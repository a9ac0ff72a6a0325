package config

import (
	"fmt"
	"sort"
	"sync"
)

// ChainConfig defines a multi-stage agent chain
type ChainConfig struct {
	// Alert types this chain handles (required, min 1)
	AlertTypes []string `yaml:"alert_types"`

	// Human-readable description
	Description string `yaml:"description,omitempty"`

	// Stages to execute in order (required, min 1)
	Stages []StageConfig `yaml:"stages"`

	// Chain-level LLM provider override
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// Chain-level max iterations override
	MaxIterations *int `yaml:"max_iterations,omitempty"`
}

// StageConfig defines a single stage in a chain. Exactly one of the three
// stage shapes applies:
//   - single-agent:  agent set, replicas 0/1, agents empty
//   - replicated:    agent set, replicas >= 2
//   - multi-agent:   agents set (len >= 2), agent empty
type StageConfig struct {
	// Stage name (required)
	Name string `yaml:"name"`

	// Agent for single-agent and replicated stages
	Agent string `yaml:"agent,omitempty"`

	// Agents for multi-agent parallel stages
	Agents []StageAgentRef `yaml:"agents,omitempty"`

	// Replicas runs the same agent N times concurrently (default 1)
	Replicas int `yaml:"replicas,omitempty"`

	// Failure policy: "all" (default), "any" or "continue"
	FailurePolicy FailurePolicy `yaml:"failure_policy,omitempty"`

	// Stage-level LLM provider override
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// Stage-level iteration strategy override
	IterationStrategy IterationStrategy `yaml:"iteration_strategy,omitempty"`

	// Stage-level max iterations override
	MaxIterations *int `yaml:"max_iterations,omitempty"`
}

// IsParallel reports whether the stage fans out to multiple agent executions.
func (s *StageConfig) IsParallel() bool {
	return len(s.Agents) > 1 || s.Replicas > 1
}

// ParallelType returns the parallel classification of the stage, or "" for
// single-agent stages.
func (s *StageConfig) ParallelType() ParallelType {
	switch {
	case len(s.Agents) > 1:
		return ParallelTypeMultiAgent
	case s.Replicas > 1:
		return ParallelTypeReplica
	default:
		return ""
	}
}

// EffectiveFailurePolicy returns the stage policy, defaulting to "all".
func (s *StageConfig) EffectiveFailurePolicy() FailurePolicy {
	if s.FailurePolicy == "" {
		return FailurePolicyAll
	}
	return s.FailurePolicy
}

// ChainRegistry stores chain configurations in memory with thread-safe access.
// Chain ids are unique by construction (map keys).
type ChainRegistry struct {
	chains map[string]*ChainConfig
	mu     sync.RWMutex
}

// NewChainRegistry creates a new chain registry
func NewChainRegistry(chains map[string]*ChainConfig) *ChainRegistry {
	copied := make(map[string]*ChainConfig, len(chains))
	for k, v := range chains {
		copied[k] = v
	}
	return &ChainRegistry{chains: copied}
}

// Get retrieves a chain configuration by ID (thread-safe)
func (r *ChainRegistry) Get(chainID string) (*ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, exists := r.chains[chainID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return chain, nil
}

// GetByAlertType retrieves the chain that handles the given alert type
// (thread-safe). The not-found error translates to HTTP 400 at the API.
func (r *ChainRegistry) GetByAlertType(alertType string) (string, *ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for chainID, chain := range r.chains {
		for _, at := range chain.AlertTypes {
			if at == alertType {
				return chainID, chain, nil
			}
		}
	}
	return "", nil, fmt.Errorf("%w for alert type: %s", ErrChainNotFound, alertType)
}

// AlertTypes returns the sorted set of alert types registered across all
// chains. Used by GET /api/v1/alert-types.
func (r *ChainRegistry) AlertTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, chain := range r.chains {
		for _, at := range chain.AlertTypes {
			seen[at] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for at := range seen {
		types = append(types, at)
	}
	sort.Strings(types)
	return types
}

// GetAll returns all chain configurations (thread-safe, returns copy)
func (r *ChainRegistry) GetAll() map[string]*ChainConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ChainConfig, len(r.chains))
	for k, v := range r.chains {
		result[k] = v
	}
	return result
}

// Has checks if a chain exists in the registry (thread-safe)
func (r *ChainRegistry) Has(chainID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.chains[chainID]
	return exists
}

// Len returns the number of chains in the registry (thread-safe)
func (r *ChainRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}
