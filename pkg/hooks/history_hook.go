package hooks

import (
	"context"
	"fmt"

	"github.com/tarsy-dev/tarsy/pkg/history"
)

// truncateThreshold is the byte ceiling for a single message content string
// in a persisted LLM interaction. Runbooks and tool observations can reach
// megabytes; the database keeps head and tail, the timeline shows the gap.
const truncateThreshold = 100_000

// HistoryHook persists completed interactions through the history store.
type HistoryHook struct {
	store *history.Store
}

func NewHistoryHook(store *history.Store) *HistoryHook {
	return &HistoryHook{store: store}
}

func (h *HistoryHook) Name() string { return "history" }

func (h *HistoryHook) Kinds() []Kind {
	return []Kind{KindLLM, KindMCPToolCall, KindMCPToolList}
}

func (h *HistoryHook) OnInteraction(ctx context.Context, in *Interaction) error {
	switch {
	case in.LLM != nil:
		rec := *in.LLM
		rec.Request = truncatePayload(rec.Request)
		rec.Response = truncatePayload(rec.Response)
		_, err := h.store.RecordLLMInteraction(ctx, rec)
		return err
	case in.MCP != nil:
		_, err := h.store.RecordMCPInteraction(ctx, *in.MCP)
		return err
	default:
		return fmt.Errorf("interaction %s carries no record", in.RequestID)
	}
}

// truncatePayload bounds message content in an LLM request/response payload.
// The messages array keeps its length and role order; only oversized content
// strings are replaced. The input map is not modified.
func truncatePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}

	out := make(map[string]interface{}, len(payload))
	for key, val := range payload {
		out[key] = val
	}

	if content, ok := out["content"].(string); ok {
		out["content"] = truncateContent(content)
	}

	messages, ok := out["messages"].([]interface{})
	if !ok {
		return out
	}

	truncated := make([]interface{}, len(messages))
	for i, raw := range messages {
		msg, ok := raw.(map[string]interface{})
		if !ok {
			truncated[i] = raw
			continue
		}
		content, ok := msg["content"].(string)
		if !ok || len(content) <= truncateThreshold {
			truncated[i] = raw
			continue
		}
		copied := make(map[string]interface{}, len(msg))
		for key, val := range msg {
			copied[key] = val
		}
		copied["content"] = truncateContent(content)
		truncated[i] = copied
	}
	out["messages"] = truncated

	return out
}

// truncateContent keeps the head and tail of an oversized string, joined by
// a marker naming how many bytes were dropped.
func truncateContent(content string) string {
	if len(content) <= truncateThreshold {
		return content
	}
	half := truncateThreshold / 2
	dropped := len(content) - 2*half
	return fmt.Sprintf("%s\n[HOOK TRUNCATED %d bytes]\n%s",
		content[:half], dropped, content[len(content)-half:])
}
