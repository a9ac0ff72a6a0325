package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

func TestGoogleSchemaFromJSON_UppercasesTypes(t *testing.T) {
	schema := googleSchemaFromJSON(`{
		"type": "object",
		"properties": {
			"namespace": {"type": "string", "description": "Target namespace"},
			"limit": {"type": "integer"},
			"labels": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["namespace"]
	}`)
	require.NotNil(t, schema)

	assert.Equal(t, genai.TypeObject, schema.Type)
	require.Contains(t, schema.Properties, "namespace")
	assert.Equal(t, genai.TypeString, schema.Properties["namespace"].Type)
	assert.Equal(t, genai.TypeInteger, schema.Properties["limit"].Type)
	assert.Equal(t, genai.TypeArray, schema.Properties["labels"].Type)
	assert.Equal(t, genai.TypeString, schema.Properties["labels"].Items.Type)
	assert.Equal(t, []string{"namespace"}, schema.Required)
}

func TestGoogleSchemaFromJSON_Composites(t *testing.T) {
	schema := googleSchemaFromJSON(`{
		"type": "object",
		"properties": {
			"selector": {
				"anyOf": [
					{"type": "string"},
					{"type": "object", "properties": {"label": {"type": "string"}}}
				]
			},
			"target": {
				"oneOf": [
					{"type": "string"},
					{"type": "integer"}
				]
			},
			"annotations": {
				"type": "object",
				"additionalProperties": {"type": "string"}
			},
			"sealed": {
				"type": "object",
				"additionalProperties": false
			}
		}
	}`)
	require.NotNil(t, schema)

	selector := schema.Properties["selector"]
	require.NotNil(t, selector)
	require.Len(t, selector.AnyOf, 2)
	assert.Equal(t, genai.TypeString, selector.AnyOf[0].Type)
	assert.Equal(t, genai.TypeObject, selector.AnyOf[1].Type)
	assert.Equal(t, genai.TypeString, selector.AnyOf[1].Properties["label"].Type)

	// oneOf folds into AnyOf
	target := schema.Properties["target"]
	require.NotNil(t, target)
	require.Len(t, target.AnyOf, 2)
	assert.Equal(t, genai.TypeInteger, target.AnyOf[1].Type)

	annotations := schema.Properties["annotations"]
	require.NotNil(t, annotations)
	valueSchema, ok := annotations.AdditionalProperties.(*genai.Schema)
	require.True(t, ok, "schema-valued additionalProperties must convert, got %T", annotations.AdditionalProperties)
	assert.Equal(t, genai.TypeString, valueSchema.Type)

	sealed := schema.Properties["sealed"]
	require.NotNil(t, sealed)
	assert.Equal(t, false, sealed.AdditionalProperties)
}

func TestGoogleSchemaFromJSON_Invalid(t *testing.T) {
	assert.Nil(t, googleSchemaFromJSON(""))
	assert.Nil(t, googleSchemaFromJSON("{broken"))
}

func TestEncodeGoogleMessages(t *testing.T) {
	contents, system, err := encodeGoogleMessages([]agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: "you are an SRE"},
		{Role: agent.RoleUser, Content: "investigate"},
		{Role: agent.RoleAssistant, Content: "checking"},
		{Role: agent.RoleTool, Content: "pod-1 Running", ToolCallID: "c1", ToolName: "k8s.pods_list"},
	})
	require.NoError(t, err)

	require.NotNil(t, system)
	assert.Equal(t, "you are an SRE", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "k8s.pods_list", contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, map[string]interface{}{"result": "pod-1 Running"}, contents[2].Parts[0].FunctionResponse.Response)
}

func TestEncodeGoogleTools_NativeTools(t *testing.T) {
	tools := encodeGoogleTools(
		[]agent.ToolDefinition{{Name: "k8s.pods_list", Description: "List pods"}},
		map[config.GoogleNativeTool]bool{
			config.GoogleNativeToolGoogleSearch: true,
			config.GoogleNativeToolURLContext:   true,
		},
	)

	require.Len(t, tools, 3)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "k8s.pods_list", tools[0].FunctionDeclarations[0].Name)

	var hasSearch, hasURL bool
	for _, tool := range tools[1:] {
		if tool.GoogleSearch != nil {
			hasSearch = true
		}
		if tool.URLContext != nil {
			hasURL = true
		}
	}
	assert.True(t, hasSearch)
	assert.True(t, hasURL)
}
