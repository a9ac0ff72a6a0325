package hooks

import (
	"context"
	"fmt"

	"github.com/tarsy-dev/tarsy/pkg/events"
)

// EventPublisher is the slice of the events publisher the hook needs.
type EventPublisher interface {
	PublishInteractionCreated(ctx context.Context, sessionID string, payload events.InteractionCreatedPayload) error
}

// EventHook broadcasts a summary event to the session channel whenever an
// interaction completes, so dashboards refresh the timeline without polling.
type EventHook struct {
	publisher EventPublisher
}

func NewEventHook(publisher EventPublisher) *EventHook {
	return &EventHook{publisher: publisher}
}

func (h *EventHook) Name() string { return "event" }

func (h *EventHook) Kinds() []Kind {
	return []Kind{KindLLM, KindMCPToolCall, KindMCPToolList}
}

func (h *EventHook) OnInteraction(ctx context.Context, in *Interaction) error {
	payload := events.InteractionCreatedPayload{
		SessionID:       in.SessionID,
		InteractionID:   in.RequestID,
		Success:         in.Success,
		TimestampUs:     events.NowUs(),
		StepDescription: stepDescription(in),
	}
	if in.StageExecutionID != nil {
		payload.StageExecutionID = *in.StageExecutionID
	}

	switch in.Kind {
	case KindLLM:
		payload.Type = events.EventTypeLLMInteraction
		payload.Category = events.InteractionCategoryLLM
	case KindMCPToolCall:
		payload.Type = events.EventTypeMCPToolCall
		payload.Category = events.InteractionCategoryMCP
	case KindMCPToolList:
		payload.Type = events.EventTypeMCPToolList
		payload.Category = events.InteractionCategoryMCP
	}

	return h.publisher.PublishInteractionCreated(ctx, in.SessionID, payload)
}

func stepDescription(in *Interaction) string {
	switch {
	case in.LLM != nil:
		return in.LLM.StepDescription
	case in.MCP != nil && in.MCP.ToolName != nil:
		return fmt.Sprintf("%s.%s", in.MCP.ServerName, *in.MCP.ToolName)
	case in.MCP != nil:
		return fmt.Sprintf("list tools on %s", in.MCP.ServerName)
	default:
		return ""
	}
}
