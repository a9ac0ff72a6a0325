package events

import (
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// SessionCreatedPayload is the payload for session.created events.
// Published to the global channel when an alert is accepted for processing.
type SessionCreatedPayload struct {
	Type        string `json:"type"`         // always EventTypeSessionCreated
	SessionID   string `json:"session_id"`   // new session UUID
	AlertID     string `json:"alert_id"`     // externally visible alert ID
	AlertType   string `json:"alert_type"`   // alert classification
	ChainID     string `json:"chain_id"`     // resolved chain
	TimestampUs int64  `json:"timestamp_us"` // microseconds since epoch
}

// SessionStatusPayload is the payload for session lifecycle events
// (session.started, session.completed, session.failed, session.paused,
// session.resumed, session.cancelled). The Type field enumerates the
// transition; Status carries the resulting session state.
type SessionStatusPayload struct {
	Type        string              `json:"type"`         // see SessionEventType
	SessionID   string              `json:"session_id"`   // session UUID
	Status      alertsession.Status `json:"status"`       // pending, in_progress, paused, completed, failed, cancelled
	TimestampUs int64               `json:"timestamp_us"` // microseconds since epoch
}

// StageStatusPayload is the payload for stage boundary events
// (stage.started on entry, stage.completed on exit). The Status field
// carries the stage outcome: exits with failed, cancelled or paused status
// still publish as stage.completed.
type StageStatusPayload struct {
	Type             string                `json:"type"`                         // see StageEventType
	SessionID        string                `json:"session_id"`                   // session UUID
	StageExecutionID string                `json:"stage_execution_id,omitempty"` // stage execution UUID
	StageName        string                `json:"stage_name"`                   // stage name from the chain definition
	StageIndex       int                   `json:"stage_index"`                  // 0-based position in the chain
	Agent            string                `json:"agent"`                        // executing agent
	Status           stageexecution.Status `json:"status"`                       // pending, active, paused, completed, failed, cancelled
	TimestampUs      int64                 `json:"timestamp_us"`                 // microseconds since epoch
}

// InteractionCreatedPayload is the payload for interaction.created events.
// Fired when an LLM or MCP interaction record is saved to the database.
// Carries only identifiers and summary fields; the full request/response is
// fetched via the timeline API.
type InteractionCreatedPayload struct {
	Type             string `json:"type"`                         // llm.interaction, mcp.tool_call or mcp.tool_list
	SessionID        string `json:"session_id"`                   // owning session
	StageExecutionID string `json:"stage_execution_id,omitempty"` // owning stage execution
	InteractionID    string `json:"interaction_id"`               // interaction record UUID
	Category         string `json:"category"`                     // "llm" or "mcp"
	StepDescription  string `json:"step_description,omitempty"`   // human-readable step summary
	Success          bool   `json:"success"`
	TimestampUs      int64  `json:"timestamp_us"` // microseconds since epoch
}

// SessionProgressPayload is the payload for session.progress transient
// events: the controller's position inside the reasoning loop.
type SessionProgressPayload struct {
	Type             string `json:"type"`               // always EventTypeSessionProgress
	SessionID        string `json:"session_id"`         // session UUID
	StageExecutionID string `json:"stage_execution_id"` // active stage execution
	Iteration        int    `json:"iteration"`          // 1-based loop iteration
	MaxIterations    int    `json:"max_iterations"`     // loop cap
	TimestampUs      int64  `json:"timestamp_us"`       // microseconds since epoch
}

// SessionEventType maps a session status transition to its lifecycle event
// type. Pending means the session returned to the queue: the initial
// pending state is announced by session.created, so a pending transition
// here is a resume (or an orphan requeue, which re-opens the session the
// same way).
func SessionEventType(status alertsession.Status) string {
	switch status {
	case alertsession.StatusInProgress:
		return EventTypeSessionStarted
	case alertsession.StatusCompleted:
		return EventTypeSessionCompleted
	case alertsession.StatusFailed:
		return EventTypeSessionFailed
	case alertsession.StatusPaused:
		return EventTypeSessionPaused
	case alertsession.StatusCancelled:
		return EventTypeSessionCancelled
	default:
		return EventTypeSessionResumed
	}
}

// StageEventType maps a stage status to its boundary event type: active is
// the entry into the stage, everything else is an exit.
func StageEventType(status stageexecution.Status) string {
	if status == stageexecution.StatusActive {
		return EventTypeStageStarted
	}
	return EventTypeStageCompleted
}
