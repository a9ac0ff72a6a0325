package llm

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/hooks"
)

type fakeProvider struct {
	completion *agent.Completion
	err        error
	lastReq    *agent.CompletionRequest
}

func (f *fakeProvider) complete(_ context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

type captureHook struct {
	mu           sync.Mutex
	interactions []*hooks.Interaction
}

func (h *captureHook) Name() string        { return "capture" }
func (h *captureHook) Kinds() []hooks.Kind { return []hooks.Kind{hooks.KindLLM} }

func (h *captureHook) OnInteraction(_ context.Context, in *hooks.Interaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interactions = append(h.interactions, in)
	return nil
}

func testCompletionRequest() *agent.CompletionRequest {
	return &agent.CompletionRequest{
		SessionID:        "sess-1",
		StageExecutionID: "stage-exec-1",
		Messages: []agent.ConversationMessage{
			{Role: agent.RoleSystem, Content: "be helpful"},
			{Role: agent.RoleUser, Content: "investigate"},
		},
		Provider: &config.LLMProviderConfig{
			Type:  config.LLMProviderTypeOpenAI,
			Model: "gpt-test",
		},
		ProviderName:    "openai-default",
		InteractionType: "investigation",
		StepDescription: "ReAct iteration 1",
	}
}

func TestClient_Complete_RecordsInteraction(t *testing.T) {
	hook := &captureHook{}
	dispatcher := hooks.NewDispatcher()
	dispatcher.Register(hook)

	client := NewClient(dispatcher)
	fake := &fakeProvider{
		completion: &agent.Completion{
			Content: "Thought: done.\nFinal Answer: resolved.",
			Usage:   agent.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
	client.providers["openai-default"] = fake

	completion, err := client.Complete(context.Background(), testCompletionRequest())
	require.NoError(t, err)
	assert.Equal(t, "Thought: done.\nFinal Answer: resolved.", completion.Content)

	require.Len(t, hook.interactions, 1)
	in := hook.interactions[0]
	assert.Equal(t, hooks.KindLLM, in.Kind)
	assert.True(t, in.Success)
	assert.Equal(t, "sess-1", in.SessionID)
	require.NotNil(t, in.StageExecutionID)
	assert.Equal(t, "stage-exec-1", *in.StageExecutionID)
	assert.NotEmpty(t, in.RequestID)

	rec := in.LLM
	require.NotNil(t, rec)
	assert.Equal(t, in.RequestID, rec.ID)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, "gpt-test", rec.ModelName)
	assert.Equal(t, "investigation", rec.InteractionType)
	assert.Equal(t, "ReAct iteration 1", rec.StepDescription)

	// Request payload must carry the full conversation for resume replay
	messages, ok := rec.Request["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be helpful", first["content"])
	assert.Equal(t, "gpt-test", rec.Request["model"])

	assert.Equal(t, "Thought: done.\nFinal Answer: resolved.", rec.Response["content"])
	require.NotNil(t, rec.TotalTokens)
	assert.Equal(t, 30, *rec.TotalTokens)
}

func TestClient_Complete_ProviderErrorRecorded(t *testing.T) {
	hook := &captureHook{}
	dispatcher := hooks.NewDispatcher()
	dispatcher.Register(hook)

	client := NewClient(dispatcher)
	client.providers["openai-default"] = &fakeProvider{err: fmt.Errorf("rate limited")}

	completion, err := client.Complete(context.Background(), testCompletionRequest())
	require.Error(t, err)
	assert.Nil(t, completion)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "openai-default", provErr.Provider)

	require.Len(t, hook.interactions, 1)
	in := hook.interactions[0]
	assert.False(t, in.Success)
	require.NotNil(t, in.ErrorMessage)
	assert.Contains(t, *in.ErrorMessage, "rate limited")
}

func TestClient_Complete_NoProviderConfig(t *testing.T) {
	client := NewClient(nil)
	req := testCompletionRequest()
	req.Provider = nil

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider config")
}

func TestClient_Complete_UnsupportedProviderType(t *testing.T) {
	client := NewClient(nil)
	req := testCompletionRequest()
	req.Provider.Type = "mystery"

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider type")
}

func TestClient_Complete_NilDispatcherSkipsRecording(t *testing.T) {
	client := NewClient(nil)
	client.providers["openai-default"] = &fakeProvider{
		completion: &agent.Completion{Content: "ok"},
	}

	completion, err := client.Complete(context.Background(), testCompletionRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Content)
}

func TestClient_ProviderCacheReused(t *testing.T) {
	client := NewClient(nil)
	fake := &fakeProvider{completion: &agent.Completion{Content: "ok"}}
	client.providers["openai-default"] = fake

	req := testCompletionRequest()
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, fake, client.providers["openai-default"])
}

func TestRequestPayload_ToolResultMessages(t *testing.T) {
	req := testCompletionRequest()
	req.Messages = append(req.Messages, agent.ConversationMessage{
		Role:       agent.RoleTool,
		Content:    "pod-1 Running",
		ToolCallID: "call-7",
	})

	payload := requestPayload(req)
	messages := payload["messages"].([]interface{})
	last := messages[len(messages)-1].(map[string]interface{})
	assert.Equal(t, "tool", last["role"])
	assert.Equal(t, "call-7", last["tool_call_id"])
}

func TestResponsePayload_WithToolCalls(t *testing.T) {
	payload := responsePayload(&agent.Completion{
		Content: "calling a tool",
		ToolCalls: []agent.ToolCall{
			{ID: "c1", Name: "k8s.pods_list", Arguments: `{"ns":"prod"}`},
		},
	})

	assert.Equal(t, "calling a tool", payload["content"])
	calls := payload["tool_calls"].([]interface{})
	require.Len(t, calls, 1)
	call := calls[0].(map[string]interface{})
	assert.Equal(t, "k8s.pods_list", call["name"])
}
