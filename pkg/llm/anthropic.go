package llm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// defaultAnthropicMaxTokens caps the completion when the provider config
// does not say otherwise. The Messages API requires an explicit value.
const defaultAnthropicMaxTokens = 8192

type anthropicProvider struct {
	messages *sdk.MessageService
	cfg      *config.LLMProviderConfig
}

func newAnthropicProvider(cfg *config.LLMProviderConfig) (*anthropicProvider, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key env %s is not set", cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.VerifySSL != nil && !*cfg.VerifySSL {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}))
	}

	client := sdk.NewClient(opts...)
	return &anthropicProvider{messages: &client.Messages, cfg: cfg}, nil
}

func (p *anthropicProvider) complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	conversation, system, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  conversation,
		Model:     sdk.Model(p.cfg.Model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if tools := encodeAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if p.cfg.Temperature != nil {
		params.Temperature = sdk.Float(*p.cfg.Temperature)
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages.new: %w", err)
	}
	return translateAnthropicResponse(msg), nil
}

// encodeAnthropicMessages splits the conversation into the Messages API
// shape: system turns become top-level system blocks, tool results become
// tool_result blocks inside user messages.
func encodeAnthropicMessages(messages []agent.ConversationMessage) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	var system []sdk.TextBlockParam

	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}

		case agent.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))

		case agent.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				var input map[string]interface{}
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
						return nil, nil, fmt.Errorf("tool call %s arguments: %w", call.Name, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}

		case agent.RoleTool:
			conversation = append(conversation,
				sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))

		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return conversation, system, nil
}

func encodeAnthropicTools(defs []agent.ToolDefinition) []sdk.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema sdk.ToolInputSchemaParam
		if def.ParametersSchema != "" {
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(def.ParametersSchema), &m); err == nil {
				schema = sdk.ToolInputSchemaParam{ExtraFields: m}
			}
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools
}

func translateAnthropicResponse(msg *sdk.Message) *agent.Completion {
	completion := &agent.Completion{
		Usage: agent.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	completion.Content = text.String()
	return completion
}
