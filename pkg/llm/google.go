package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

// googleProvider serves the "google" (Gemini API) and "vertexai" provider
// types through the unified genai SDK.
type googleProvider struct {
	client *genai.Client
	cfg    *config.LLMProviderConfig
}

func newGoogleProvider(cfg *config.LLMProviderConfig) (*googleProvider, error) {
	clientCfg := &genai.ClientConfig{}

	switch cfg.Type {
	case config.LLMProviderTypeVertexAI:
		project := os.Getenv(cfg.ProjectEnv)
		location := os.Getenv(cfg.LocationEnv)
		if project == "" || location == "" {
			return nil, fmt.Errorf("vertexai requires %s and %s to be set", cfg.ProjectEnv, cfg.LocationEnv)
		}
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = project
		clientCfg.Location = location
	default:
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key env %s is not set", cfg.APIKeyEnv)
		}
		clientCfg.Backend = genai.BackendGeminiAPI
		clientCfg.APIKey = apiKey
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &googleProvider{client: client, cfg: cfg}, nil
}

func (p *googleProvider) complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	contents, systemInstruction, err := encodeGoogleMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	if p.cfg.Temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*p.cfg.Temperature))
	}
	genCfg.Tools = encodeGoogleTools(req.Tools, p.cfg.NativeTools)

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return translateGoogleResponse(resp)
}

// encodeGoogleMessages converts the conversation to genai contents. System
// turns become the system instruction, assistant turns use the "model" role
// and tool results become function responses.
func encodeGoogleMessages(messages []agent.ConversationMessage) ([]*genai.Content, *genai.Content, error) {
	var contents []*genai.Content
	var systemParts []*genai.Part

	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, &genai.Part{Text: m.Content})
			}

		case agent.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})

		case agent.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				var args map[string]interface{}
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("tool call %s arguments: %w", call.Name, err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: args,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}

		case agent.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     m.ToolName,
						Response: map[string]interface{}{"result": m.Content},
					},
				}},
			})

		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	var systemInstruction *genai.Content
	if len(systemParts) > 0 {
		systemInstruction = &genai.Content{Parts: systemParts}
	}
	return contents, systemInstruction, nil
}

func encodeGoogleTools(defs []agent.ToolDefinition, native map[config.GoogleNativeTool]bool) []*genai.Tool {
	var tools []*genai.Tool

	if len(defs) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
		for _, def := range defs {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  googleSchemaFromJSON(def.ParametersSchema),
			})
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: declarations})
	}

	if native[config.GoogleNativeToolGoogleSearch] {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if native[config.GoogleNativeToolURLContext] {
		tools = append(tools, &genai.Tool{URLContext: &genai.URLContext{}})
	}
	return tools
}

// googleSchemaFromJSON converts a JSON Schema document into the genai schema
// type. Type names are uppercased to match the OpenAPI enum the SDK expects.
func googleSchemaFromJSON(schemaJSON string) *genai.Schema {
	if schemaJSON == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &m); err != nil {
		return nil
	}
	return googleSchema(m)
}

func googleSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				s.Properties[name] = googleSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		s.Items = googleSchema(items)
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	// anyOf and oneOf both become AnyOf: genai has no oneOf, and for tool
	// argument validation the at-least-one semantics are close enough.
	for _, key := range []string{"anyOf", "oneOf"} {
		if variants, ok := schema[key].([]interface{}); ok {
			for _, v := range variants {
				if vm, ok := v.(map[string]interface{}); ok {
					s.AnyOf = append(s.AnyOf, googleSchema(vm))
				}
			}
		}
	}
	switch ap := schema["additionalProperties"].(type) {
	case map[string]interface{}:
		s.AdditionalProperties = googleSchema(ap)
	case bool:
		s.AdditionalProperties = ap
	}
	return s
}

func translateGoogleResponse(resp *genai.GenerateContentResponse) (*agent.Completion, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("generate content returned no candidates")
	}
	candidate := resp.Candidates[0]

	completion := &agent.Completion{}
	if resp.UsageMetadata != nil {
		completion.Usage = agent.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if candidate.Content == nil {
		return completion, nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		}
	}
	completion.Content = text.String()
	return completion, nil
}
