package hooks

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/history"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func TestTruncateContent(t *testing.T) {
	t.Run("small content untouched", func(t *testing.T) {
		assert.Equal(t, "hello", truncateContent("hello"))
	})

	t.Run("content at threshold untouched", func(t *testing.T) {
		content := strings.Repeat("x", truncateThreshold)
		assert.Equal(t, content, truncateContent(content))
	})

	t.Run("oversized content keeps head and tail", func(t *testing.T) {
		content := "HEAD" + strings.Repeat("x", truncateThreshold*2) + "TAIL"
		out := truncateContent(content)

		assert.Less(t, len(out), len(content))
		assert.True(t, strings.HasPrefix(out, "HEAD"))
		assert.True(t, strings.HasSuffix(out, "TAIL"))

		dropped := len(content) - truncateThreshold
		assert.Contains(t, out, fmt.Sprintf("[HOOK TRUNCATED %d bytes]", dropped))
	})
}

func TestTruncatePayload(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		assert.Nil(t, truncatePayload(nil))
	})

	t.Run("preserves message order and shape", func(t *testing.T) {
		big := strings.Repeat("y", truncateThreshold+1000)
		payload := map[string]interface{}{
			"model": "gpt-5",
			"messages": []interface{}{
				map[string]interface{}{"role": "system", "content": "You are an SRE."},
				map[string]interface{}{"role": "user", "content": big},
				map[string]interface{}{"role": "assistant", "content": "Thought: ok"},
			},
		}

		out := truncatePayload(payload)

		messages := out["messages"].([]interface{})
		require.Len(t, messages, 3)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])
		assert.Equal(t, "assistant", messages[2].(map[string]interface{})["role"])

		truncated := messages[1].(map[string]interface{})["content"].(string)
		assert.Contains(t, truncated, "[HOOK TRUNCATED")
		assert.Less(t, len(truncated), len(big))

		// Other messages untouched
		assert.Equal(t, "You are an SRE.", messages[0].(map[string]interface{})["content"])

		// Original payload not mutated
		original := payload["messages"].([]interface{})[1].(map[string]interface{})["content"].(string)
		assert.Equal(t, big, original)
	})

	t.Run("top-level content truncated", func(t *testing.T) {
		payload := map[string]interface{}{
			"content": strings.Repeat("z", truncateThreshold*2),
		}
		out := truncatePayload(payload)
		assert.Contains(t, out["content"].(string), "[HOOK TRUNCATED")
	})
}

func TestHistoryHook_PersistsThroughPipeline(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := history.NewStore(client)
	ctx := context.Background()

	sessionID := uuid.New().String()
	_, err := store.CreateSession(ctx, history.CreateSessionParams{
		SessionID:        sessionID,
		AlertID:          uuid.New().String(),
		AlertType:        "kubernetes",
		AlertData:        map[string]interface{}{"severity": "critical"},
		AlertFingerprint: uuid.New().String(),
		ChainID:          "kubernetes-chain",
		ChainDefinition:  map[string]interface{}{"stages": []interface{}{}},
		AgentType:        "KubernetesAgent",
	})
	require.NoError(t, err)

	d := NewDispatcher()
	d.Register(NewHistoryHook(store))

	in := &Interaction{
		Kind:      KindLLM,
		SessionID: sessionID,
		LLM: &history.LLMRecord{
			SessionID:       sessionID,
			InteractionType: "investigation",
			Provider:        "openai",
			ModelName:       "gpt-5",
			Request:         map[string]interface{}{"messages": []interface{}{}},
			Response:        map[string]interface{}{"content": "Final Answer: fixed"},
			StepDescription: "ReAct iteration 1",
		},
	}
	require.NoError(t, d.Execute(ctx, in, func(context.Context) error { return nil }))

	interactions, err := store.GetLLMInteractions(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, in.RequestID, interactions[0].ID, "row ID matches the pipeline request id")
	assert.True(t, interactions[0].Success)
	assert.Equal(t, "ReAct iteration 1", interactions[0].StepDescription)
}
