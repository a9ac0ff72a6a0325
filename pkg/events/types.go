// Package events provides real-time event delivery to WebSocket clients,
// with PostgreSQL NOTIFY/LISTEN for cross-pod distribution and a polling
// fallback for the SQLite backend.
//
// Events are written to the events table inside the publishing transaction,
// so the table is the source of truth and the monotonically increasing row
// ID is the catch-up cursor. The NOTIFY payload carries a db_event_id copy
// of that cursor; clients that reconnect send it back to replay what they
// missed.
package events

// Persistent event types (stored in DB + NOTIFY).
const (
	// Session lifecycle
	EventTypeSessionCreated   = "session.created"
	EventTypeSessionStarted   = "session.started"
	EventTypeSessionCompleted = "session.completed"
	EventTypeSessionFailed    = "session.failed"
	EventTypeSessionPaused    = "session.paused"
	EventTypeSessionResumed   = "session.resumed"
	EventTypeSessionCancelled = "session.cancelled"

	// Stage boundaries
	EventTypeStageStarted   = "stage.started"
	EventTypeStageCompleted = "stage.completed"

	// Interaction records — fired when an LLM or MCP interaction is persisted
	EventTypeLLMInteraction = "llm.interaction"
	EventTypeMCPToolCall    = "mcp.tool_call"
	EventTypeMCPToolList    = "mcp.tool_list"
)

// Transient event types (NOTIFY only on PostgreSQL; persisted on SQLite so
// the poller can deliver them).
const (
	// Iteration progress — high-frequency controller heartbeat for dashboards
	EventTypeSessionProgress = "session.progress"
)

// Interaction categories used in InteractionCreatedPayload.Category.
const (
	InteractionCategoryLLM = "llm"
	InteractionCategoryMCP = "mcp"
)

// GlobalSessionsChannel is the channel for session-level status events.
// The session list page subscribes to this for real-time updates.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "session:abc-123")
	LastEventID *int64 `json:"last_event_id,omitempty"` // For catchup
}
