package hooks

import (
	"context"

	"github.com/tarsy-dev/tarsy/pkg/masking"
)

// MaskingHook scrubs secrets from MCP tool results before the history and
// event hooks observe the payload. It is a pre-hook: it mutates the record
// in place and runs synchronously ahead of the concurrent hooks.
type MaskingHook struct {
	svc *masking.Service
}

func NewMaskingHook(svc *masking.Service) *MaskingHook {
	return &MaskingHook{svc: svc}
}

func (h *MaskingHook) Name() string { return "masking" }

func (h *MaskingHook) Process(_ context.Context, in *Interaction) {
	if in.Kind != KindMCPToolCall || in.MCP == nil || in.MCP.ToolResult == nil {
		return
	}

	if result, ok := in.MCP.ToolResult["result"].(string); ok {
		in.MCP.ToolResult["result"] = h.svc.MaskToolResult(result, in.MCP.ServerName)
	}
}
