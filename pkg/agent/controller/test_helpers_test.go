package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/agent/prompt"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// mockLLMClient is a test mock for agent.LLMClient that returns scripted
// completions in order.
// NOTE: Not safe for concurrent use — callCount and lastRequest are mutated
// without synchronization. This is fine as long as controllers call Complete
// sequentially (which they do).
type mockLLMClient struct {
	completions []*agent.Completion
	errs        []error
	callCount   int
	lastRequest *agent.CompletionRequest

	// capture enables recording all requests across calls (not just the last one).
	capture          bool
	capturedRequests []*agent.CompletionRequest

	// onComplete is called before processing the response, allowing tests to
	// perform side-effects (e.g. cancel a context) at call time.
	onComplete func(callIndex int)
}

func (m *mockLLMClient) Complete(_ context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	idx := m.callCount
	m.callCount++
	m.lastRequest = req
	if m.capture {
		m.capturedRequests = append(m.capturedRequests, req)
	}
	if m.onComplete != nil {
		m.onComplete(idx)
	}

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.completions) || m.completions[idx] == nil {
		return nil, fmt.Errorf("no more mock completions (call %d)", idx+1)
	}
	return m.completions[idx], nil
}

// textCompletions wraps plain response texts into completions with a fixed
// token usage, so tests can assert usage accumulation.
func textCompletions(texts ...string) []*agent.Completion {
	out := make([]*agent.Completion, len(texts))
	for i, text := range texts {
		out[i] = &agent.Completion{
			Content: text,
			Usage:   agent.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		}
	}
	return out
}

// mockToolExecutor is a test mock for agent.ToolExecutor with canned results.
type mockToolExecutor struct {
	tools   []agent.ToolDefinition
	results map[string]*agent.ToolResult
	calls   []agent.ToolCall
}

func (m *mockToolExecutor) Execute(_ context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
	m.calls = append(m.calls, call)
	result, ok := m.results[call.Name]
	if !ok {
		return nil, fmt.Errorf("unexpected tool call: %s", call.Name)
	}
	return &agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: result.Content,
		IsError: result.IsError,
	}, nil
}

func (m *mockToolExecutor) ListTools(_ context.Context) ([]agent.ToolDefinition, error) {
	return m.tools, nil
}

func (m *mockToolExecutor) Close() error { return nil }

// mockToolExecutorFunc is a flexible test mock that allows custom execute functions.
type mockToolExecutorFunc struct {
	tools     []agent.ToolDefinition
	executeFn func(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error)
}

func (m *mockToolExecutorFunc) Execute(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
	return m.executeFn(ctx, call)
}

func (m *mockToolExecutorFunc) ListTools(_ context.Context) ([]agent.ToolDefinition, error) {
	return m.tools, nil
}

func (m *mockToolExecutorFunc) Close() error { return nil }

// fakeStageStore is an in-memory agent.StageStore.
type fakeStageStore struct {
	mu sync.Mutex

	stage        *ent.StageExecution
	interactions []*ent.LLMInteraction

	iterations []int // every SetStageIteration value, in order

	cancelRequested bool
	pauseRequested  bool
	flagsErr        error

	// onControlFlags fires on each poll so tests can flip flags mid-run.
	onControlFlags func(poll int)
	polls          int
}

func (f *fakeStageStore) StartStageExecution(_ context.Context, _ string) error { return nil }

func (f *fakeStageStore) SetStageIteration(_ context.Context, _ string, iteration int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iterations = append(f.iterations, iteration)
	if f.stage != nil {
		f.stage.CurrentIteration = iteration
	}
	return nil
}

func (f *fakeStageStore) GetStageExecution(_ context.Context, stageExecutionID string) (*ent.StageExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stage == nil {
		return nil, fmt.Errorf("stage execution not found: %s", stageExecutionID)
	}
	return f.stage, nil
}

func (f *fakeStageStore) GetStageLLMInteractions(_ context.Context, _ string, excludeTypes ...string) ([]*ent.LLMInteraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[string]bool, len(excludeTypes))
	for _, t := range excludeTypes {
		excluded[t] = true
	}
	var out []*ent.LLMInteraction
	for _, rec := range f.interactions {
		if !excluded[rec.InteractionType] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStageStore) ControlFlags(_ context.Context, _ string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	poll := f.polls
	f.polls++
	if f.onControlFlags != nil {
		f.onControlFlags(poll)
	}
	if f.flagsErr != nil {
		return false, false, f.flagsErr
	}
	return f.cancelRequested, f.pauseRequested, nil
}

func (f *fakeStageStore) lastIteration() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.iterations) == 0 {
		return 0
	}
	return f.iterations[len(f.iterations)-1]
}

// newTestExecCtx creates a test ExecutionContext with mocks and an in-memory
// stage store. Defaults: MaxIterations=20, IterationTimeout=120s.
// Tests that need different limits should override execCtx.Config.MaxIterations.
func newTestExecCtx(t *testing.T, llm agent.LLMClient, toolExec agent.ToolExecutor, store *fakeStageStore) *agent.ExecutionContext {
	t.Helper()

	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{})
	pb := prompt.NewBuilder(registry)

	return &agent.ExecutionContext{
		SessionID:        "test-session",
		StageExecutionID: "test-stage-exec",
		AgentName:        "test-agent",
		AlertData:        map[string]interface{}{"message": "CPU high on prod-server-1"},
		AlertType:        "test-alert",
		Config: &agent.ResolvedAgentConfig{
			AgentName:          "test-agent",
			IterationStrategy:  config.IterationStrategyReact,
			LLMProvider:        &config.LLMProviderConfig{Model: "test-model"},
			LLMProviderName:    "test-provider",
			MaxIterations:      20,
			IterationTimeout:   120 * time.Second,
			CustomInstructions: "You are a test agent.",
		},
		LLMClient:     llm,
		ToolExecutor:  toolExec,
		History:       store,
		PromptBuilder: pb,
	}
}
