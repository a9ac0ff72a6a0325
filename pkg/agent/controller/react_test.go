package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/pkg/agent"
)

func reactTools() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{Name: "k8s.pods_list", Description: "List pods in a namespace"},
		{Name: "k8s.pod_logs", Description: "Fetch logs for a pod"},
	}
}

func TestReActController_FinalAnswerFirstIteration(t *testing.T) {
	llm := &mockLLMClient{
		completions: textCompletions(
			"Thought: The alert data is sufficient.\nFinal Answer: The pod crashed due to OOM."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "The pod crashed due to OOM.", result.FinalAnalysis)
	assert.Equal(t, 150, result.TokensUsed.TotalTokens)
	assert.Equal(t, 1, llm.callCount)
}

func TestReActController_ToolCallThenFinalAnswer(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		completions: textCompletions(
			"Thought: Need to check the pods.\nAction: k8s.pods_list\nAction Input: {\"namespace\": \"prod\"}",
			"Thought: pod-1 is CrashLoopBackOff.\nFinal Answer: pod-1 is crash looping."),
	}
	toolExec := &mockToolExecutor{
		tools: reactTools(),
		results: map[string]*agent.ToolResult{
			"k8s.pods_list": {Content: "pod-1 CrashLoopBackOff"},
		},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, toolExec, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "pod-1 is crash looping.", result.FinalAnalysis)
	assert.Equal(t, 300, result.TokensUsed.TotalTokens)

	// The tool was actually executed with the parsed arguments
	require.Len(t, toolExec.calls, 1)
	assert.Equal(t, "k8s.pods_list", toolExec.calls[0].Name)
	assert.Contains(t, toolExec.calls[0].Arguments, "prod")
	assert.NotEmpty(t, toolExec.calls[0].ID)

	// The second call sees assistant response + observation appended
	require.Len(t, llm.capturedRequests, 2)
	second := llm.capturedRequests[1].Messages
	require.GreaterOrEqual(t, len(second), 4)
	assert.Equal(t, agent.RoleAssistant, second[len(second)-2].Role)
	assert.Equal(t, agent.RoleUser, second[len(second)-1].Role)
	assert.Contains(t, second[len(second)-1].Content, "Observation: pod-1 CrashLoopBackOff")

	// The tool iteration was checkpointed
	assert.Equal(t, []int{1}, store.iterations)
}

func TestReActController_UnknownToolGetsObservation(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		completions: textCompletions(
			"Thought: Checking.\nAction: k8s.nonexistent\nAction Input: {}",
			"Thought: OK.\nFinal Answer: Done."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	second := llm.capturedRequests[1].Messages
	last := second[len(second)-1].Content
	assert.Contains(t, last, "Unknown tool 'k8s.nonexistent'")
	assert.Contains(t, last, "k8s.pods_list")
	// An unknown tool still consumes an iteration
	assert.Equal(t, []int{1}, store.iterations)
}

func TestReActController_ToolErrorBecomesObservation(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		completions: textCompletions(
			"Thought: Checking.\nAction: k8s.pods_list\nAction Input: {}",
			"Thought: OK.\nFinal Answer: Done without pod data."),
	}
	toolExec := &mockToolExecutorFunc{
		tools: reactTools(),
		executeFn: func(_ context.Context, _ agent.ToolCall) (*agent.ToolResult, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, toolExec, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	second := llm.capturedRequests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "Tool execution failed: connection refused")
}

func TestReActController_MalformedResponseGetsFeedback(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		completions: textCompletions(
			"I think the pod is broken but I will not follow any format.",
			"Thought: Retrying properly.\nFinal Answer: The pod is broken."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	second := llm.capturedRequests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "FORMAT ERROR")
	// Format retries do not consume iterations
	assert.Empty(t, store.iterations)
}

func TestReActController_ConsecutiveMalformedResponsesFail(t *testing.T) {
	llm := &mockLLMClient{
		completions: textCompletions(
			"no format at all",
			"still no format",
			"and again no format"),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusFailed, result.Status)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "malformed")
	assert.Equal(t, 3, llm.callCount)
}

func TestReActController_LLMErrorAppendsObservationAndContinues(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		errs:    []error{fmt.Errorf("provider overloaded")},
		completions: []*agent.Completion{
			nil,
			{Content: "Thought: Recovered.\nFinal Answer: Analysis complete.", Usage: agent.TokenUsage{TotalTokens: 150}},
		},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	second := llm.capturedRequests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "Error from previous attempt: provider overloaded")
	// A failed LLM call consumes an iteration
	assert.Equal(t, []int{1}, store.iterations)
}

func TestReActController_ConsecutiveTimeoutsAbort(t *testing.T) {
	llm := &mockLLMClient{
		errs: []error{
			fmt.Errorf("llm call: %w", context.DeadlineExceeded),
			fmt.Errorf("llm call: %w", context.DeadlineExceeded),
		},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusFailed, result.Status)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "consecutive timeouts")
	assert.Equal(t, 2, llm.callCount)
}

func TestReActController_MaxIterationsPauses(t *testing.T) {
	// Every response is a tool call, so the loop runs out of iterations.
	responses := make([]string, 3)
	for i := range responses {
		responses[i] = "Thought: Still looking.\nAction: k8s.pods_list\nAction Input: {}"
	}
	llm := &mockLLMClient{completions: textCompletions(responses...)}
	toolExec := &mockToolExecutor{
		tools:   reactTools(),
		results: map[string]*agent.ToolResult{"k8s.pods_list": {Content: "no change"}},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, toolExec, store)
	execCtx.Config.MaxIterations = 3

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusPaused, result.Status)
	require.NotNil(t, result.PauseMetadata)
	assert.Equal(t, "max_iterations_reached", result.PauseMetadata["reason"])
	assert.Equal(t, 3, result.PauseMetadata["current_iteration"])
	assert.Equal(t, []int{1, 2, 3}, store.iterations)
}

func TestReActController_CancelRequested(t *testing.T) {
	llm := &mockLLMClient{completions: textCompletions("Thought: x.\nFinal Answer: never reached.")}
	store := &fakeStageStore{cancelRequested: true}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCancelled, result.Status)
	assert.Equal(t, 0, llm.callCount, "no LLM call after cancellation")
}

func TestReActController_PauseRequestedMidRun(t *testing.T) {
	llm := &mockLLMClient{
		completions: textCompletions(
			"Thought: Checking.\nAction: k8s.pods_list\nAction Input: {}"),
	}
	toolExec := &mockToolExecutor{
		tools:   reactTools(),
		results: map[string]*agent.ToolResult{"k8s.pods_list": {Content: "ok"}},
	}
	store := &fakeStageStore{}
	// Flip the pause flag after the first poll, so iteration 1 runs and
	// iteration 2 observes the pause.
	store.onControlFlags = func(poll int) {
		if poll >= 1 {
			store.pauseRequested = true
		}
	}
	execCtx := newTestExecCtx(t, llm, toolExec, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusPaused, result.Status)
	require.NotNil(t, result.PauseMetadata)
	assert.Equal(t, "pause_requested", result.PauseMetadata["reason"])
	assert.Equal(t, 1, llm.callCount)
}

func TestReActController_ControlFlagErrorKeepsGoing(t *testing.T) {
	llm := &mockLLMClient{completions: textCompletions("Thought: x.\nFinal Answer: done.")}
	store := &fakeStageStore{flagsErr: fmt.Errorf("db unreachable")}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)
	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
}

func TestReActController_ResumeReplaysConversation(t *testing.T) {
	replayedMessages := []interface{}{
		map[string]interface{}{"role": "system", "content": "system prompt"},
		map[string]interface{}{"role": "user", "content": "investigate the alert"},
		map[string]interface{}{"role": "assistant", "content": "Thought: checking.\nAction: k8s.pods_list\nAction Input: {}"},
		map[string]interface{}{"role": "user", "content": "Observation: pod-1 Running"},
	}
	store := &fakeStageStore{
		stage: &ent.StageExecution{ID: "test-stage-exec", CurrentIteration: 2},
		interactions: []*ent.LLMInteraction{
			{
				ID:              "int-1",
				Success:         true,
				InteractionType: "investigation",
				Request:         map[string]interface{}{"model": "test-model", "messages": replayedMessages},
				Response:        map[string]interface{}{"content": "Thought: logs next.\nAction: k8s.pod_logs\nAction Input: {}"},
			},
		},
	}
	llm := &mockLLMClient{
		capture:     true,
		completions: textCompletions("Thought: Clear now.\nFinal Answer: Resumed and finished."),
	}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)
	execCtx.Resume = true

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "Resumed and finished.", result.FinalAnalysis)

	// The first LLM call carries the replayed conversation, not a fresh prompt
	first := llm.capturedRequests[0].Messages
	require.Len(t, first, 5)
	assert.Equal(t, "system prompt", first[0].Content)
	assert.Equal(t, "Observation: pod-1 Running", first[3].Content)
	assert.Equal(t, agent.RoleAssistant, first[4].Role)
	assert.Contains(t, first[4].Content, "k8s.pod_logs")
}

func TestReActController_ResumeWithoutInteractionsStartsFresh(t *testing.T) {
	store := &fakeStageStore{
		stage: &ent.StageExecution{ID: "test-stage-exec", CurrentIteration: 0},
	}
	llm := &mockLLMClient{
		capture:     true,
		completions: textCompletions("Thought: x.\nFinal Answer: fresh run."),
	}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)
	execCtx.Resume = true

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	first := llm.capturedRequests[0].Messages
	require.Len(t, first, 2)
	assert.Equal(t, agent.RoleSystem, first[0].Role)
	assert.Contains(t, first[1].Content, "Alert Details")
}

func TestReActController_ResumeAfterIterationCapContinues(t *testing.T) {
	// A stage that paused at the iteration cap resumes with the persisted
	// iteration equal to the cap. The cap is per-run, so the resumed loop
	// must issue its next LLM call at iteration current+1 rather than
	// re-pausing without progress.
	replayedMessages := []interface{}{
		map[string]interface{}{"role": "system", "content": "system prompt"},
		map[string]interface{}{"role": "user", "content": "investigate the alert"},
		map[string]interface{}{"role": "assistant", "content": "Thought: looking.\nAction: k8s.pods_list\nAction Input: {}"},
		map[string]interface{}{"role": "user", "content": "Observation: no change"},
	}
	snapshot := []*ent.LLMInteraction{
		{
			ID:              "int-1",
			Success:         true,
			InteractionType: "investigation",
			Request:         map[string]interface{}{"model": "test-model", "messages": replayedMessages},
			Response:        map[string]interface{}{"content": "Thought: still looking.\nAction: k8s.pods_list\nAction Input: {}"},
		},
	}

	t.Run("next call starts at current+1", func(t *testing.T) {
		store := &fakeStageStore{
			stage:        &ent.StageExecution{ID: "test-stage-exec", CurrentIteration: 3},
			interactions: snapshot,
		}
		llm := &mockLLMClient{
			capture: true,
			completions: textCompletions(
				"Thought: Checking.\nAction: k8s.pods_list\nAction Input: {}",
				"Thought: Clear now.\nFinal Answer: Resolved after resume."),
		}
		toolExec := &mockToolExecutor{
			tools:   reactTools(),
			results: map[string]*agent.ToolResult{"k8s.pods_list": {Content: "pod-1 Running"}},
		}
		execCtx := newTestExecCtx(t, llm, toolExec, store)
		execCtx.Config.MaxIterations = 3
		execCtx.Resume = true

		result, err := NewReActController().Run(context.Background(), execCtx, "")
		require.NoError(t, err)

		assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
		assert.Equal(t, "Resolved after resume.", result.FinalAnalysis)
		require.GreaterOrEqual(t, llm.callCount, 1, "resume must issue LLM calls")
		assert.Equal(t, "ReAct iteration 4", llm.capturedRequests[0].StepDescription)
		assert.Equal(t, []int{4}, store.iterations)
	})

	t.Run("exhausting the fresh budget pauses again at the new cap", func(t *testing.T) {
		responses := make([]string, 3)
		for i := range responses {
			responses[i] = "Thought: Still looking.\nAction: k8s.pods_list\nAction Input: {}"
		}
		store := &fakeStageStore{
			stage:        &ent.StageExecution{ID: "test-stage-exec", CurrentIteration: 3},
			interactions: snapshot,
		}
		llm := &mockLLMClient{completions: textCompletions(responses...)}
		toolExec := &mockToolExecutor{
			tools:   reactTools(),
			results: map[string]*agent.ToolResult{"k8s.pods_list": {Content: "no change"}},
		}
		execCtx := newTestExecCtx(t, llm, toolExec, store)
		execCtx.Config.MaxIterations = 3
		execCtx.Resume = true

		result, err := NewReActController().Run(context.Background(), execCtx, "")
		require.NoError(t, err)

		assert.Equal(t, agent.ExecutionStatusPaused, result.Status)
		assert.Equal(t, 3, llm.callCount, "the resumed run gets a full fresh allowance")
		assert.Equal(t, 6, result.PauseMetadata["current_iteration"])
		assert.Equal(t, []int{4, 5, 6}, store.iterations)
	})
}

func TestReActController_ResumeSkipsFailedInteractions(t *testing.T) {
	goodMessages := []interface{}{
		map[string]interface{}{"role": "system", "content": "sys"},
		map[string]interface{}{"role": "user", "content": "go"},
	}
	store := &fakeStageStore{
		stage: &ent.StageExecution{ID: "test-stage-exec", CurrentIteration: 1},
		interactions: []*ent.LLMInteraction{
			{
				ID:              "int-1",
				Success:         true,
				InteractionType: "investigation",
				Request:         map[string]interface{}{"messages": goodMessages},
				Response:        map[string]interface{}{"content": "Thought: a.\nAction: k8s.pods_list\nAction Input: {}"},
			},
			{
				ID:              "int-2",
				Success:         false,
				InteractionType: "investigation",
				Request:         map[string]interface{}{"messages": goodMessages},
			},
		},
	}
	llm := &mockLLMClient{
		capture:     true,
		completions: textCompletions("Thought: x.\nFinal Answer: done."),
	}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)
	execCtx.Resume = true

	_, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	// Replay came from int-1 (the last successful record)
	first := llm.capturedRequests[0].Messages
	require.Len(t, first, 3)
	assert.Equal(t, agent.RoleAssistant, first[2].Role)
	assert.Contains(t, first[2].Content, "k8s.pods_list")
}

func TestReActController_StageFramingUsesStageAnalysisPrompt(t *testing.T) {
	llm := &mockLLMClient{
		capture:     true,
		completions: textCompletions("Thought: x.\nFinal Answer: findings for next stage."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActStageController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	first := llm.capturedRequests[0].Messages
	assert.Contains(t, first[1].Content, "passed to the next stage")
}

func TestReActController_ListToolsErrorReturnsError(t *testing.T) {
	toolExec := &mockToolExecutorFunc{
		tools: nil,
		executeFn: func(_ context.Context, _ agent.ToolCall) (*agent.ToolResult, error) {
			return nil, nil
		},
	}
	// Wrap to force ListTools failure
	failing := &failingListToolExecutor{inner: toolExec}
	llm := &mockLLMClient{}
	execCtx := newTestExecCtx(t, llm, failing, &fakeStageStore{})

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "failed to list tools")
}

type failingListToolExecutor struct {
	inner agent.ToolExecutor
}

func (f *failingListToolExecutor) Execute(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
	return f.inner.Execute(ctx, call)
}

func (f *failingListToolExecutor) ListTools(_ context.Context) ([]agent.ToolDefinition, error) {
	return nil, fmt.Errorf("mcp transport down")
}

func (f *failingListToolExecutor) Close() error { return nil }

func TestReActController_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &mockLLMClient{
		errs: []error{context.Canceled},
		onComplete: func(int) {
			cancel()
		},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(ctx, execCtx, "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReActController_MalformedWithThoughtOnly(t *testing.T) {
	llm := &mockLLMClient{
		capture: true,
		completions: textCompletions(
			"Thought: I am reasoning but take no action.",
			"Thought: Now I conclude.\nFinal Answer: conclusion."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{tools: reactTools()}, store)

	result, err := NewReActController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	second := llm.capturedRequests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, `only contains "Thought:"`)
}
