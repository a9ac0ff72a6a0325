package hooks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

type capturingPublisher struct {
	mu       sync.Mutex
	payloads []events.InteractionCreatedPayload
}

func (p *capturingPublisher) PublishInteractionCreated(_ context.Context, _ string, payload events.InteractionCreatedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestEventHook_TypeMapping(t *testing.T) {
	tool := "get_pods"
	stageID := "stage-1"

	tests := []struct {
		name         string
		in           *Interaction
		wantType     string
		wantCategory string
		wantStep     string
	}{
		{
			name: "LLM interaction",
			in: &Interaction{
				Kind:             KindLLM,
				RequestID:        "req-1",
				SessionID:        "sess-1",
				StageExecutionID: &stageID,
				Success:          true,
				LLM:              &history.LLMRecord{StepDescription: "ReAct iteration 3"},
			},
			wantType:     events.EventTypeLLMInteraction,
			wantCategory: events.InteractionCategoryLLM,
			wantStep:     "ReAct iteration 3",
		},
		{
			name: "MCP tool call",
			in: &Interaction{
				Kind:      KindMCPToolCall,
				RequestID: "req-2",
				SessionID: "sess-1",
				Success:   true,
				MCP:       &history.MCPRecord{ServerName: "kubernetes-server", ToolName: &tool},
			},
			wantType:     events.EventTypeMCPToolCall,
			wantCategory: events.InteractionCategoryMCP,
			wantStep:     "kubernetes-server.get_pods",
		},
		{
			name: "MCP tool list",
			in: &Interaction{
				Kind:      KindMCPToolList,
				RequestID: "req-3",
				SessionID: "sess-1",
				Success:   false,
				MCP:       &history.MCPRecord{ServerName: "argocd-server"},
			},
			wantType:     events.EventTypeMCPToolList,
			wantCategory: events.InteractionCategoryMCP,
			wantStep:     "list tools on argocd-server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturingPublisher{}
			hook := NewEventHook(publisher)

			require.NoError(t, hook.OnInteraction(context.Background(), tt.in))
			require.Len(t, publisher.payloads, 1)

			payload := publisher.payloads[0]
			assert.Equal(t, tt.wantType, payload.Type)
			assert.Equal(t, tt.wantCategory, payload.Category)
			assert.Equal(t, tt.wantStep, payload.StepDescription)
			assert.Equal(t, tt.in.RequestID, payload.InteractionID)
			assert.Equal(t, tt.in.SessionID, payload.SessionID)
			assert.Equal(t, tt.in.Success, payload.Success)
			assert.Positive(t, payload.TimestampUs)
		})
	}
}
