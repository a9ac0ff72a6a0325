// Package llm routes completion requests to the configured LLM provider
// SDK (OpenAI-compatible, Anthropic, Google Gemini / Vertex AI) and records
// every call through the hook pipeline.
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"github.com/tarsy-dev/tarsy/pkg/hooks"
)

// provider is the SDK-facing side of a single configured LLM provider.
type provider interface {
	complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error)
}

// Client implements agent.LLMClient. It lazily builds one provider adapter
// per configured provider name and wraps every call in the hook dispatcher
// so the full request and response are persisted and broadcast.
type Client struct {
	dispatcher *hooks.Dispatcher

	mu        sync.Mutex
	providers map[string]provider
}

// NewClient creates the routing client. A nil dispatcher disables recording
// (used in tests).
func NewClient(dispatcher *hooks.Dispatcher) *Client {
	return &Client{
		dispatcher: dispatcher,
		providers:  make(map[string]provider),
	}
}

// Complete routes the request to its provider and records the exchange.
func (c *Client) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	if req.Provider == nil {
		return nil, &Error{Provider: req.ProviderName, Op: "complete", Err: fmt.Errorf("no provider config on request")}
	}

	p, err := c.providerFor(req.ProviderName, req.Provider)
	if err != nil {
		return nil, err
	}

	rec := &history.LLMRecord{
		SessionID:        req.SessionID,
		StageExecutionID: optional(req.StageExecutionID),
		InteractionType:  req.InteractionType,
		Provider:         string(req.Provider.Type),
		ModelName:        req.Provider.Model,
		Request:          requestPayload(req),
		StepDescription:  req.StepDescription,
	}

	var completion *agent.Completion
	call := func(ctx context.Context) error {
		var callErr error
		completion, callErr = p.complete(ctx, req)
		if callErr != nil {
			return &Error{Provider: req.ProviderName, Op: "complete", Err: callErr}
		}
		rec.Response = responsePayload(completion)
		rec.ToolCalls = toolCallPayload(completion.ToolCalls)
		rec.InputTokens = optionalInt(completion.Usage.InputTokens)
		rec.OutputTokens = optionalInt(completion.Usage.OutputTokens)
		rec.TotalTokens = optionalInt(completion.Usage.TotalTokens)
		return nil
	}

	if c.dispatcher == nil {
		if err := call(ctx); err != nil {
			return nil, err
		}
		return completion, nil
	}

	err = c.dispatcher.Execute(ctx, &hooks.Interaction{
		Kind:             hooks.KindLLM,
		SessionID:        req.SessionID,
		StageExecutionID: optional(req.StageExecutionID),
		LLM:              rec,
	}, call)
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// providerFor returns the cached adapter for name, building it on first use.
func (c *Client) providerFor(name string, cfg *config.LLMProviderConfig) (provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.providers[name]; ok {
		return p, nil
	}

	var (
		p   provider
		err error
	)
	switch cfg.Type {
	case config.LLMProviderTypeOpenAI, config.LLMProviderTypeXAI:
		p, err = newOpenAIProvider(cfg)
	case config.LLMProviderTypeAnthropic:
		p, err = newAnthropicProvider(cfg)
	case config.LLMProviderTypeGoogle, config.LLMProviderTypeVertexAI:
		p, err = newGoogleProvider(cfg)
	default:
		err = fmt.Errorf("unsupported provider type: %q", cfg.Type)
	}
	if err != nil {
		return nil, &Error{Provider: name, Op: "init", Err: err}
	}

	c.providers[name] = p
	return p, nil
}

// requestPayload serializes the outgoing conversation for persistence. The
// shape is stable: resume rebuilds conversations from these records.
func requestPayload(req *agent.CompletionRequest) map[string]interface{} {
	messages := make([]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		entry := map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		messages = append(messages, entry)
	}
	return map[string]interface{}{
		"model":    req.Provider.Model,
		"messages": messages,
	}
}

func responsePayload(completion *agent.Completion) map[string]interface{} {
	payload := map[string]interface{}{
		"content": completion.Content,
	}
	if len(completion.ToolCalls) > 0 {
		payload["tool_calls"] = toolCallPayload(completion.ToolCalls)
	}
	return payload
}

func toolCallPayload(calls []agent.ToolCall) []interface{} {
	if len(calls) == 0 {
		return nil
	}
	out := make([]interface{}, 0, len(calls))
	for _, call := range calls {
		out = append(out, map[string]interface{}{
			"id":        call.ID,
			"name":      call.Name,
			"arguments": call.Arguments,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
