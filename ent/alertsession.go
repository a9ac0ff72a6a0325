// Code generated by ent, DO NOT EDIT.

package ent

import (
	"encoding/json"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
)

// AlertSession is the model entity for the AlertSession schema.
type AlertSession struct {
	config `json:"-"`
	// ID of the ent.
	ID string `json:"id,omitempty"`
	// External alert identifier returned to the submitter
	AlertID string `json:"alert_id,omitempty"`
	// Alert classification, resolves the chain
	AlertType string `json:"alert_type,omitempty"`
	// Sanitized alert payload
	AlertData map[string]interface{} `json:"alert_data,omitempty"`
	// sha256 of alert_type + canonical payload JSON, for duplicate suppression
	AlertFingerprint string `json:"alert_fingerprint,omitempty"`
	// Chain identifier resolved at submission
	ChainID string `json:"chain_id,omitempty"`
	// Snapshot of the chain at submission time
	ChainDefinition map[string]interface{} `json:"chain_definition,omitempty"`
	// Agent of the first stage (convenience for listings)
	AgentType string `json:"agent_type,omitempty"`
	// Author holds the value of the "author" field.
	Author *string `json:"author,omitempty"`
	// RunbookURL holds the value of the "runbook_url" field.
	RunbookURL *string `json:"runbook_url,omitempty"`
	// Status holds the value of the "status" field.
	Status alertsession.Status `json:"status,omitempty"`
	// Submission time, microseconds since epoch UTC
	CreatedAtUs int64 `json:"created_at_us,omitempty"`
	// When a worker claimed the session
	StartedAtUs *int64 `json:"started_at_us,omitempty"`
	// Worker heartbeat, drives orphan detection
	LastInteractionAtUs *int64 `json:"last_interaction_at_us,omitempty"`
	// When the session reached a terminal status
	CompletedAtUs *int64 `json:"completed_at_us,omitempty"`
	// ErrorMessage holds the value of the "error_message" field.
	ErrorMessage *string `json:"error_message,omitempty"`
	// Investigation conclusion (full-text searchable)
	FinalAnalysis *string `json:"final_analysis,omitempty"`
	// Reason and loop position when status=paused
	PauseMetadata map[string]interface{} `json:"pause_metadata,omitempty"`
	// Owning worker process, for multi-replica coordination
	PodID *string `json:"pod_id,omitempty"`
	// Cooperative cancellation marker, polled between iterations
	CancelRequested bool `json:"cancel_requested,omitempty"`
	// Cooperative pause marker, polled between iterations
	PauseRequested bool `json:"pause_requested,omitempty"`
	// Edges holds the relations/edges for other nodes in the graph.
	// The values are being populated by the AlertSessionQuery when eager-loading is set.
	Edges        AlertSessionEdges `json:"edges"`
	selectValues sql.SelectValues
}

// AlertSessionEdges holds the relations/edges for other nodes in the graph.
type AlertSessionEdges struct {
	// StageExecutions holds the value of the stage_executions edge.
	StageExecutions []*StageExecution `json:"stage_executions,omitempty"`
	// LlmInteractions holds the value of the llm_interactions edge.
	LlmInteractions []*LLMInteraction `json:"llm_interactions,omitempty"`
	// McpInteractions holds the value of the mcp_interactions edge.
	McpInteractions []*MCPInteraction `json:"mcp_interactions,omitempty"`
	// loadedTypes holds the information for reporting if a
	// type was loaded (or requested) in eager-loading or not.
	loadedTypes [3]bool
}

// StageExecutionsOrErr returns the StageExecutions value or an error if the edge
// was not loaded in eager-loading.
func (e AlertSessionEdges) StageExecutionsOrErr() ([]*StageExecution, error) {
	if e.loadedTypes[0] {
		return e.StageExecutions, nil
	}
	return nil, &NotLoadedError{edge: "stage_executions"}
}

// LlmInteractionsOrErr returns the LlmInteractions value or an error if the edge
// was not loaded in eager-loading.
func (e AlertSessionEdges) LlmInteractionsOrErr() ([]*LLMInteraction, error) {
	if e.loadedTypes[1] {
		return e.LlmInteractions, nil
	}
	return nil, &NotLoadedError{edge: "llm_interactions"}
}

// McpInteractionsOrErr returns the McpInteractions value or an error if the edge
// was not loaded in eager-loading.
func (e AlertSessionEdges) McpInteractionsOrErr() ([]*MCPInteraction, error) {
	if e.loadedTypes[2] {
		return e.McpInteractions, nil
	}
	return nil, &NotLoadedError{edge: "mcp_interactions"}
}

// scanValues returns the types for scanning values from sql.Rows.
func (*AlertSession) scanValues(columns []string) ([]any, error) {
	values := make([]any, len(columns))
	for i := range columns {
		switch columns[i] {
		case alertsession.FieldAlertData, alertsession.FieldChainDefinition, alertsession.FieldPauseMetadata:
			values[i] = new([]byte)
		case alertsession.FieldCancelRequested, alertsession.FieldPauseRequested:
			values[i] = new(sql.NullBool)
		case alertsession.FieldCreatedAtUs, alertsession.FieldStartedAtUs, alertsession.FieldLastInteractionAtUs, alertsession.FieldCompletedAtUs:
			values[i] = new(sql.NullInt64)
		case alertsession.FieldID, alertsession.FieldAlertID, alertsession.FieldAlertType, alertsession.FieldAlertFingerprint, alertsession.FieldChainID, alertsession.FieldAgentType, alertsession.FieldAuthor, alertsession.FieldRunbookURL, alertsession.FieldStatus, alertsession.FieldErrorMessage, alertsession.FieldFinalAnalysis, alertsession.FieldPodID:
			values[i] = new(sql.NullString)
		default:
			values[i] = new(sql.UnknownType)
		}
	}
	return values, nil
}

// assignValues assigns the values that were returned from sql.Rows (after scanning)
// to the AlertSession fields.
func (_m *AlertSession) assignValues(columns []string, values []any) error {
	if m, n := len(values), len(columns); m < n {
		return fmt.Errorf("mismatch number of scan values: %d != %d", m, n)
	}
	for i := range columns {
		switch columns[i] {
		case alertsession.FieldID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field id", values[i])
			} else if value.Valid {
				_m.ID = value.String
			}
		case alertsession.FieldAlertID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field alert_id", values[i])
			} else if value.Valid {
				_m.AlertID = value.String
			}
		case alertsession.FieldAlertType:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field alert_type", values[i])
			} else if value.Valid {
				_m.AlertType = value.String
			}
		case alertsession.FieldAlertData:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field alert_data", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.AlertData); err != nil {
					return fmt.Errorf("unmarshal field alert_data: %w", err)
				}
			}
		case alertsession.FieldAlertFingerprint:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field alert_fingerprint", values[i])
			} else if value.Valid {
				_m.AlertFingerprint = value.String
			}
		case alertsession.FieldChainID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field chain_id", values[i])
			} else if value.Valid {
				_m.ChainID = value.String
			}
		case alertsession.FieldChainDefinition:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field chain_definition", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.ChainDefinition); err != nil {
					return fmt.Errorf("unmarshal field chain_definition: %w", err)
				}
			}
		case alertsession.FieldAgentType:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field agent_type", values[i])
			} else if value.Valid {
				_m.AgentType = value.String
			}
		case alertsession.FieldAuthor:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field author", values[i])
			} else if value.Valid {
				_m.Author = new(string)
				*_m.Author = value.String
			}
		case alertsession.FieldRunbookURL:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field runbook_url", values[i])
			} else if value.Valid {
				_m.RunbookURL = new(string)
				*_m.RunbookURL = value.String
			}
		case alertsession.FieldStatus:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field status", values[i])
			} else if value.Valid {
				_m.Status = alertsession.Status(value.String)
			}
		case alertsession.FieldCreatedAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field created_at_us", values[i])
			} else if value.Valid {
				_m.CreatedAtUs = value.Int64
			}
		case alertsession.FieldStartedAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field started_at_us", values[i])
			} else if value.Valid {
				_m.StartedAtUs = new(int64)
				*_m.StartedAtUs = value.Int64
			}
		case alertsession.FieldLastInteractionAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field last_interaction_at_us", values[i])
			} else if value.Valid {
				_m.LastInteractionAtUs = new(int64)
				*_m.LastInteractionAtUs = value.Int64
			}
		case alertsession.FieldCompletedAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field completed_at_us", values[i])
			} else if value.Valid {
				_m.CompletedAtUs = new(int64)
				*_m.CompletedAtUs = value.Int64
			}
		case alertsession.FieldErrorMessage:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field error_message", values[i])
			} else if value.Valid {
				_m.ErrorMessage = new(string)
				*_m.ErrorMessage = value.String
			}
		case alertsession.FieldFinalAnalysis:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field final_analysis", values[i])
			} else if value.Valid {
				_m.FinalAnalysis = new(string)
				*_m.FinalAnalysis = value.String
			}
		case alertsession.FieldPauseMetadata:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field pause_metadata", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.PauseMetadata); err != nil {
					return fmt.Errorf("unmarshal field pause_metadata: %w", err)
				}
			}
		case alertsession.FieldPodID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field pod_id", values[i])
			} else if value.Valid {
				_m.PodID = new(string)
				*_m.PodID = value.String
			}
		case alertsession.FieldCancelRequested:
			if value, ok := values[i].(*sql.NullBool); !ok {
				return fmt.Errorf("unexpected type %T for field cancel_requested", values[i])
			} else if value.Valid {
				_m.CancelRequested = value.Bool
			}
		case alertsession.FieldPauseRequested:
			if value, ok := values[i].(*sql.NullBool); !ok {
				return fmt.Errorf("unexpected type %T for field pause_requested", values[i])
			} else if value.Valid {
				_m.PauseRequested = value.Bool
			}
		default:
			_m.selectValues.Set(columns[i], values[i])
		}
	}
	return nil
}

// Value returns the ent.Value that was dynamically selected and assigned to the AlertSession.
// This includes values selected through modifiers, order, etc.
func (_m *AlertSession) Value(name string) (ent.Value, error) {
	return _m.selectValues.Get(name)
}

// QueryStageExecutions queries the "stage_executions" edge of the AlertSession entity.
func (_m *AlertSession) QueryStageExecutions() *StageExecutionQuery {
	return NewAlertSessionClient(_m.config).QueryStageExecutions(_m)
}

// QueryLlmInteractions queries the "llm_interactions" edge of the AlertSession entity.
func (_m *AlertSession) QueryLlmInteractions() *LLMInteractionQuery {
	return NewAlertSessionClient(_m.config).QueryLlmInteractions(_m)
}

// QueryMcpInteractions queries the "mcp_interactions" edge of the AlertSession entity.
func (_m *AlertSession) QueryMcpInteractions() *MCPInteractionQuery {
	return NewAlertSessionClient(_m.config).QueryMcpInteractions(_m)
}

// Update returns a builder for updating this AlertSession.
// Note that you need to call AlertSession.Unwrap() before calling this method if this AlertSession
// was returned from a transaction, and the transaction was committed or rolled back.
func (_m *AlertSession) Update() *AlertSessionUpdateOne {
	return NewAlertSessionClient(_m.config).UpdateOne(_m)
}

// Unwrap unwraps the AlertSession entity that was returned from a transaction after it was closed,
// so that all future queries will be executed through the driver which created the transaction.
func (_m *AlertSession) Unwrap() *AlertSession {
	_tx, ok := _m.config.driver.(*txDriver)
	if !ok {
		panic("ent: AlertSession is not a transactional entity")
	}
	_m.config.driver = _tx.drv
	return _m
}

// String implements the fmt.Stringer.
func (_m *AlertSession) String() string {
	var builder strings.Builder
	builder.WriteString("AlertSession(")
	builder.WriteString(fmt.Sprintf("id=%v, ", _m.ID))
	builder.WriteString("alert_id=")
	builder.WriteString(_m.AlertID)
	builder.WriteString(", ")
	builder.WriteString("alert_type=")
	builder.WriteString(_m.AlertType)
	builder.WriteString(", ")
	builder.WriteString("alert_data=")
	builder.WriteString(fmt.Sprintf("%v", _m.AlertData))
	builder.WriteString(", ")
	builder.WriteString("alert_fingerprint=")
	builder.WriteString(_m.AlertFingerprint)
	builder.WriteString(", ")
	builder.WriteString("chain_id=")
	builder.WriteString(_m.ChainID)
	builder.WriteString(", ")
	builder.WriteString("chain_definition=")
	builder.WriteString(fmt.Sprintf("%v", _m.ChainDefinition))
	builder.WriteString(", ")
	builder.WriteString("agent_type=")
	builder.WriteString(_m.AgentType)
	builder.WriteString(", ")
	if v := _m.Author; v != nil {
		builder.WriteString("author=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	if v := _m.RunbookURL; v != nil {
		builder.WriteString("runbook_url=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("status=")
	builder.WriteString(fmt.Sprintf("%v", _m.Status))
	builder.WriteString(", ")
	builder.WriteString("created_at_us=")
	builder.WriteString(fmt.Sprintf("%v", _m.CreatedAtUs))
	builder.WriteString(", ")
	if v := _m.StartedAtUs; v != nil {
		builder.WriteString("started_at_us=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.LastInteractionAtUs; v != nil {
		builder.WriteString("last_interaction_at_us=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.CompletedAtUs; v != nil {
		builder.WriteString("completed_at_us=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.ErrorMessage; v != nil {
		builder.WriteString("error_message=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	if v := _m.FinalAnalysis; v != nil {
		builder.WriteString("final_analysis=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("pause_metadata=")
	builder.WriteString(fmt.Sprintf("%v", _m.PauseMetadata))
	builder.WriteString(", ")
	if v := _m.PodID; v != nil {
		builder.WriteString("pod_id=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("cancel_requested=")
	builder.WriteString(fmt.Sprintf("%v", _m.CancelRequested))
	builder.WriteString(", ")
	builder.WriteString("pause_requested=")
	builder.WriteString(fmt.Sprintf("%v", _m.PauseRequested))
	builder.WriteByte(')')
	return builder.String()
}

// AlertSessions is a parsable slice of AlertSession.
type AlertSessions []*AlertSession
