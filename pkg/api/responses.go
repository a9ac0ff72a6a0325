package api

import (
	"github.com/tarsy-dev/tarsy/ent"
)

// SessionActionResponse is returned by the cancel/pause/resume endpoints.
type SessionActionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SessionIDResponse is returned by GET /api/v1/session-id/:alert_id.
// SessionID is null when no session exists for the alert id.
type SessionIDResponse struct {
	AlertID   string  `json:"alert_id"`
	SessionID *string `json:"session_id"`
}

// SessionListResponse is returned by GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions   []*ent.AlertSession `json:"sessions"`
	Pagination Pagination          `json:"pagination"`
}

// Pagination describes the window of a list response.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// StageDetail is a stage execution with its parallel children, if any.
type StageDetail struct {
	*ent.StageExecution
	Children []*ent.StageExecution `json:"children,omitempty"`
}

// SessionDetailResponse is returned by GET /api/v1/sessions/:id.
type SessionDetailResponse struct {
	Session *ent.AlertSession `json:"session"`
	Stages  []*StageDetail    `json:"stages"`
}

// StageTimeline is one stage's slice of the session timeline: the stage
// row plus its interactions in chronological order.
type StageTimeline struct {
	Stage           *ent.StageExecution   `json:"stage"`
	Children        []*ent.StageExecution `json:"children,omitempty"`
	LLMInteractions []*ent.LLMInteraction `json:"llm_interactions"`
	MCPInteractions []*ent.MCPInteraction `json:"mcp_interactions"`
}

// TimelineResponse is returned by GET /api/v1/sessions/:id/timeline.
// Session-level interactions (no stage attribution) land in the
// SessionLLMInteractions / SessionMCPInteractions buckets.
type TimelineResponse struct {
	SessionID              string                `json:"session_id"`
	Session                *ent.AlertSession     `json:"session"`
	Stages                 []*StageTimeline      `json:"stages"`
	SessionLLMInteractions []*ent.LLMInteraction `json:"session_llm_interactions,omitempty"`
	SessionMCPInteractions []*ent.MCPInteraction `json:"session_mcp_interactions,omitempty"`
}

// HealthCheck is a single component check inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
