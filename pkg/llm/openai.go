package llm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// openaiProvider serves the "openai" and "xai" provider types. xAI exposes an
// OpenAI-compatible Chat Completions API, so both route through the same SDK
// with a different base URL.
type openaiProvider struct {
	client *openai.Client
	cfg    *config.LLMProviderConfig
}

func newOpenAIProvider(cfg *config.LLMProviderConfig) (*openaiProvider, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key env %s is not set", cfg.APIKeyEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.VerifySSL != nil && !*cfg.VerifySSL {
		clientCfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	return &openaiProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

func (p *openaiProvider) complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	request := openai.ChatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: encodeOpenAIMessages(req.Messages),
		Tools:    encodeOpenAITools(req.Tools),
	}
	if p.cfg.Temperature != nil {
		request.Temperature = float32(*p.cfg.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	completion := &agent.Completion{
		Content: msg.Content,
		Usage: agent.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, call := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return completion, nil
}

func encodeOpenAIMessages(messages []agent.ConversationMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		if m.Role == agent.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func encodeOpenAITools(defs []agent.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		fn := &openai.FunctionDefinition{
			Name:        def.Name,
			Description: def.Description,
		}
		if def.ParametersSchema != "" {
			fn.Parameters = json.RawMessage(def.ParametersSchema)
		}
		tools = append(tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: fn,
		})
	}
	return tools
}
