package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

func TestFinalAnalysisController_SingleCall(t *testing.T) {
	llm := &mockLLMClient{
		capture:     true,
		completions: textCompletions("Root cause: memory leak in the payment service."),
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{}, store)

	result, err := NewFinalAnalysisController().Run(context.Background(), execCtx,
		"### Stage 1: data-collection\n\npod-1 OOMKilled repeatedly.")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "Root cause: memory leak in the payment service.", result.FinalAnalysis)
	assert.Equal(t, 150, result.TokensUsed.TotalTokens)
	assert.Equal(t, 1, llm.callCount)

	// Tool-less prompt carrying the accumulated stage context
	req := llm.capturedRequests[0]
	assert.Equal(t, "final_analysis", req.InteractionType)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "pod-1 OOMKilled repeatedly.")
	assert.NotContains(t, req.Messages[1].Content, "Available tools")
}

func TestFinalAnalysisController_EmptyContentFails(t *testing.T) {
	llm := &mockLLMClient{
		completions: []*agent.Completion{{Content: ""}},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{}, store)

	result, err := NewFinalAnalysisController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusFailed, result.Status)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "empty content")
}

func TestFinalAnalysisController_LLMErrorPropagates(t *testing.T) {
	llm := &mockLLMClient{
		errs: []error{fmt.Errorf("provider unavailable")},
	}
	store := &fakeStageStore{}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{}, store)

	result, err := NewFinalAnalysisController().Run(context.Background(), execCtx, "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestFinalAnalysisController_CancelRequested(t *testing.T) {
	llm := &mockLLMClient{}
	store := &fakeStageStore{cancelRequested: true}
	execCtx := newTestExecCtx(t, llm, &mockToolExecutor{}, store)

	result, err := NewFinalAnalysisController().Run(context.Background(), execCtx, "")
	require.NoError(t, err)

	assert.Equal(t, agent.ExecutionStatusCancelled, result.Status)
	assert.Equal(t, 0, llm.callCount)
}
