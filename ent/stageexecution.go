// Code generated by ent, DO NOT EDIT.

package ent

import (
	"encoding/json"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// StageExecution is the model entity for the StageExecution schema.
type StageExecution struct {
	config `json:"-"`
	// ID of the ent.
	ID string `json:"id,omitempty"`
	// SessionID holds the value of the "session_id" field.
	SessionID string `json:"session_id,omitempty"`
	// Position in chain: 0, 1, 2...
	StageIndex int `json:"stage_index,omitempty"`
	// e.g. 'initial-analysis', 'deep-dive'
	StageName string `json:"stage_name,omitempty"`
	// Agent identifier; parallel children use '{base}-{k}' replica names
	Agent string `json:"agent,omitempty"`
	// Status holds the value of the "status" field.
	Status stageexecution.Status `json:"status,omitempty"`
	// Persisted on every increment so a resume continues where it stopped
	CurrentIteration int `json:"current_iteration,omitempty"`
	// StartedAtUs holds the value of the "started_at_us" field.
	StartedAtUs *int64 `json:"started_at_us,omitempty"`
	// CompletedAtUs holds the value of the "completed_at_us" field.
	CompletedAtUs *int64 `json:"completed_at_us,omitempty"`
	// DurationMs holds the value of the "duration_ms" field.
	DurationMs *int64 `json:"duration_ms,omitempty"`
	// Result summary fed to subsequent stages
	StageOutput map[string]interface{} `json:"stage_output,omitempty"`
	// ErrorMessage holds the value of the "error_message" field.
	ErrorMessage *string `json:"error_message,omitempty"`
	// Set on parallel children; nil on top-level rows
	ParentStageExecutionID *string `json:"parent_stage_execution_id,omitempty"`
	// Parent rows of parallel stages only
	ParallelType *stageexecution.ParallelType `json:"parallel_type,omitempty"`
	// Edges holds the relations/edges for other nodes in the graph.
	// The values are being populated by the StageExecutionQuery when eager-loading is set.
	Edges        StageExecutionEdges `json:"edges"`
	selectValues sql.SelectValues
}

// StageExecutionEdges holds the relations/edges for other nodes in the graph.
type StageExecutionEdges struct {
	// Session holds the value of the session edge.
	Session *AlertSession `json:"session,omitempty"`
	// Parent holds the value of the parent edge.
	Parent *StageExecution `json:"parent,omitempty"`
	// Children holds the value of the children edge.
	Children []*StageExecution `json:"children,omitempty"`
	// LlmInteractions holds the value of the llm_interactions edge.
	LlmInteractions []*LLMInteraction `json:"llm_interactions,omitempty"`
	// McpInteractions holds the value of the mcp_interactions edge.
	McpInteractions []*MCPInteraction `json:"mcp_interactions,omitempty"`
	// loadedTypes holds the information for reporting if a
	// type was loaded (or requested) in eager-loading or not.
	loadedTypes [5]bool
}

// SessionOrErr returns the Session value or an error if the edge
// was not loaded in eager-loading, or loaded but was not found.
func (e StageExecutionEdges) SessionOrErr() (*AlertSession, error) {
	if e.Session != nil {
		return e.Session, nil
	} else if e.loadedTypes[0] {
		return nil, &NotFoundError{label: alertsession.Label}
	}
	return nil, &NotLoadedError{edge: "session"}
}

// ParentOrErr returns the Parent value or an error if the edge
// was not loaded in eager-loading, or loaded but was not found.
func (e StageExecutionEdges) ParentOrErr() (*StageExecution, error) {
	if e.Parent != nil {
		return e.Parent, nil
	} else if e.loadedTypes[1] {
		return nil, &NotFoundError{label: stageexecution.Label}
	}
	return nil, &NotLoadedError{edge: "parent"}
}

// ChildrenOrErr returns the Children value or an error if the edge
// was not loaded in eager-loading.
func (e StageExecutionEdges) ChildrenOrErr() ([]*StageExecution, error) {
	if e.loadedTypes[2] {
		return e.Children, nil
	}
	return nil, &NotLoadedError{edge: "children"}
}

// LlmInteractionsOrErr returns the LlmInteractions value or an error if the edge
// was not loaded in eager-loading.
func (e StageExecutionEdges) LlmInteractionsOrErr() ([]*LLMInteraction, error) {
	if e.loadedTypes[3] {
		return e.LlmInteractions, nil
	}
	return nil, &NotLoadedError{edge: "llm_interactions"}
}

// McpInteractionsOrErr returns the McpInteractions value or an error if the edge
// was not loaded in eager-loading.
func (e StageExecutionEdges) McpInteractionsOrErr() ([]*MCPInteraction, error) {
	if e.loadedTypes[4] {
		return e.McpInteractions, nil
	}
	return nil, &NotLoadedError{edge: "mcp_interactions"}
}

// scanValues returns the types for scanning values from sql.Rows.
func (*StageExecution) scanValues(columns []string) ([]any, error) {
	values := make([]any, len(columns))
	for i := range columns {
		switch columns[i] {
		case stageexecution.FieldStageOutput:
			values[i] = new([]byte)
		case stageexecution.FieldStageIndex, stageexecution.FieldCurrentIteration, stageexecution.FieldStartedAtUs, stageexecution.FieldCompletedAtUs, stageexecution.FieldDurationMs:
			values[i] = new(sql.NullInt64)
		case stageexecution.FieldID, stageexecution.FieldSessionID, stageexecution.FieldStageName, stageexecution.FieldAgent, stageexecution.FieldStatus, stageexecution.FieldErrorMessage, stageexecution.FieldParentStageExecutionID, stageexecution.FieldParallelType:
			values[i] = new(sql.NullString)
		default:
			values[i] = new(sql.UnknownType)
		}
	}
	return values, nil
}

// assignValues assigns the values that were returned from sql.Rows (after scanning)
// to the StageExecution fields.
func (_m *StageExecution) assignValues(columns []string, values []any) error {
	if m, n := len(values), len(columns); m < n {
		return fmt.Errorf("mismatch number of scan values: %d != %d", m, n)
	}
	for i := range columns {
		switch columns[i] {
		case stageexecution.FieldID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field id", values[i])
			} else if value.Valid {
				_m.ID = value.String
			}
		case stageexecution.FieldSessionID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field session_id", values[i])
			} else if value.Valid {
				_m.SessionID = value.String
			}
		case stageexecution.FieldStageIndex:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field stage_index", values[i])
			} else if value.Valid {
				_m.StageIndex = int(value.Int64)
			}
		case stageexecution.FieldStageName:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field stage_name", values[i])
			} else if value.Valid {
				_m.StageName = value.String
			}
		case stageexecution.FieldAgent:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field agent", values[i])
			} else if value.Valid {
				_m.Agent = value.String
			}
		case stageexecution.FieldStatus:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field status", values[i])
			} else if value.Valid {
				_m.Status = stageexecution.Status(value.String)
			}
		case stageexecution.FieldCurrentIteration:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field current_iteration", values[i])
			} else if value.Valid {
				_m.CurrentIteration = int(value.Int64)
			}
		case stageexecution.FieldStartedAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field started_at_us", values[i])
			} else if value.Valid {
				_m.StartedAtUs = new(int64)
				*_m.StartedAtUs = value.Int64
			}
		case stageexecution.FieldCompletedAtUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field completed_at_us", values[i])
			} else if value.Valid {
				_m.CompletedAtUs = new(int64)
				*_m.CompletedAtUs = value.Int64
			}
		case stageexecution.FieldDurationMs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field duration_ms", values[i])
			} else if value.Valid {
				_m.DurationMs = new(int64)
				*_m.DurationMs = value.Int64
			}
		case stageexecution.FieldStageOutput:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field stage_output", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.StageOutput); err != nil {
					return fmt.Errorf("unmarshal field stage_output: %w", err)
				}
			}
		case stageexecution.FieldErrorMessage:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field error_message", values[i])
			} else if value.Valid {
				_m.ErrorMessage = new(string)
				*_m.ErrorMessage = value.String
			}
		case stageexecution.FieldParentStageExecutionID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field parent_stage_execution_id", values[i])
			} else if value.Valid {
				_m.ParentStageExecutionID = new(string)
				*_m.ParentStageExecutionID = value.String
			}
		case stageexecution.FieldParallelType:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field parallel_type", values[i])
			} else if value.Valid {
				_m.ParallelType = new(stageexecution.ParallelType)
				*_m.ParallelType = stageexecution.ParallelType(value.String)
			}
		default:
			_m.selectValues.Set(columns[i], values[i])
		}
	}
	return nil
}

// Value returns the ent.Value that was dynamically selected and assigned to the StageExecution.
// This includes values selected through modifiers, order, etc.
func (_m *StageExecution) Value(name string) (ent.Value, error) {
	return _m.selectValues.Get(name)
}

// QuerySession queries the "session" edge of the StageExecution entity.
func (_m *StageExecution) QuerySession() *AlertSessionQuery {
	return NewStageExecutionClient(_m.config).QuerySession(_m)
}

// QueryParent queries the "parent" edge of the StageExecution entity.
func (_m *StageExecution) QueryParent() *StageExecutionQuery {
	return NewStageExecutionClient(_m.config).QueryParent(_m)
}

// QueryChildren queries the "children" edge of the StageExecution entity.
func (_m *StageExecution) QueryChildren() *StageExecutionQuery {
	return NewStageExecutionClient(_m.config).QueryChildren(_m)
}

// QueryLlmInteractions queries the "llm_interactions" edge of the StageExecution entity.
func (_m *StageExecution) QueryLlmInteractions() *LLMInteractionQuery {
	return NewStageExecutionClient(_m.config).QueryLlmInteractions(_m)
}

// QueryMcpInteractions queries the "mcp_interactions" edge of the StageExecution entity.
func (_m *StageExecution) QueryMcpInteractions() *MCPInteractionQuery {
	return NewStageExecutionClient(_m.config).QueryMcpInteractions(_m)
}

// Update returns a builder for updating this StageExecution.
// Note that you need to call StageExecution.Unwrap() before calling this method if this StageExecution
// was returned from a transaction, and the transaction was committed or rolled back.
func (_m *StageExecution) Update() *StageExecutionUpdateOne {
	return NewStageExecutionClient(_m.config).UpdateOne(_m)
}

// Unwrap unwraps the StageExecution entity that was returned from a transaction after it was closed,
// so that all future queries will be executed through the driver which created the transaction.
func (_m *StageExecution) Unwrap() *StageExecution {
	_tx, ok := _m.config.driver.(*txDriver)
	if !ok {
		panic("ent: StageExecution is not a transactional entity")
	}
	_m.config.driver = _tx.drv
	return _m
}

// String implements the fmt.Stringer.
func (_m *StageExecution) String() string {
	var builder strings.Builder
	builder.WriteString("StageExecution(")
	builder.WriteString(fmt.Sprintf("id=%v, ", _m.ID))
	builder.WriteString("session_id=")
	builder.WriteString(_m.SessionID)
	builder.WriteString(", ")
	builder.WriteString("stage_index=")
	builder.WriteString(fmt.Sprintf("%v", _m.StageIndex))
	builder.WriteString(", ")
	builder.WriteString("stage_name=")
	builder.WriteString(_m.StageName)
	builder.WriteString(", ")
	builder.WriteString("agent=")
	builder.WriteString(_m.Agent)
	builder.WriteString(", ")
	builder.WriteString("status=")
	builder.WriteString(fmt.Sprintf("%v", _m.Status))
	builder.WriteString(", ")
	builder.WriteString("current_iteration=")
	builder.WriteString(fmt.Sprintf("%v", _m.CurrentIteration))
	builder.WriteString(", ")
	if v := _m.StartedAtUs; v != nil {
		builder.WriteString("started_at_us=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.CompletedAtUs; v != nil {
		builder.WriteString("completed_at_us=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.DurationMs; v != nil {
		builder.WriteString("duration_ms=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	builder.WriteString("stage_output=")
	builder.WriteString(fmt.Sprintf("%v", _m.StageOutput))
	builder.WriteString(", ")
	if v := _m.ErrorMessage; v != nil {
		builder.WriteString("error_message=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	if v := _m.ParentStageExecutionID; v != nil {
		builder.WriteString("parent_stage_execution_id=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	if v := _m.ParallelType; v != nil {
		builder.WriteString("parallel_type=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteByte(')')
	return builder.String()
}

// StageExecutions is a parsable slice of StageExecution.
type StageExecutions []*StageExecution
