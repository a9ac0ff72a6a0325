// Code generated by ent, DO NOT EDIT.

package ent

import (
	"encoding/json"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// LLMInteraction is the model entity for the LLMInteraction schema.
type LLMInteraction struct {
	config `json:"-"`
	// ID of the ent.
	ID string `json:"id,omitempty"`
	// SessionID holds the value of the "session_id" field.
	SessionID string `json:"session_id,omitempty"`
	// nil for session-level calls
	StageExecutionID *string `json:"stage_execution_id,omitempty"`
	// Start of the call, microseconds since epoch UTC
	TimestampUs int64 `json:"timestamp_us,omitempty"`
	// DurationMs holds the value of the "duration_ms" field.
	DurationMs *int64 `json:"duration_ms,omitempty"`
	// Success holds the value of the "success" field.
	Success bool `json:"success,omitempty"`
	// e.g. 'investigation', 'final_analysis', 'chat'
	InteractionType string `json:"interaction_type,omitempty"`
	// e.g. 'openai', 'anthropic', 'google'
	Provider string `json:"provider,omitempty"`
	// ModelName holds the value of the "model_name" field.
	ModelName string `json:"model_name,omitempty"`
	// Conversation messages plus tool schemas as sent
	Request map[string]interface{} `json:"request,omitempty"`
	// Provider response as received
	Response map[string]interface{} `json:"response,omitempty"`
	// Structured tool calls parsed from the response
	ToolCalls []interface{} `json:"tool_calls,omitempty"`
	// InputTokens holds the value of the "input_tokens" field.
	InputTokens *int `json:"input_tokens,omitempty"`
	// OutputTokens holds the value of the "output_tokens" field.
	OutputTokens *int `json:"output_tokens,omitempty"`
	// TotalTokens holds the value of the "total_tokens" field.
	TotalTokens *int `json:"total_tokens,omitempty"`
	// Human-readable label, e.g. 'iteration 3'
	StepDescription string `json:"step_description,omitempty"`
	// null = success, not-null = failed
	ErrorMessage *string `json:"error_message,omitempty"`
	// Edges holds the relations/edges for other nodes in the graph.
	// The values are being populated by the LLMInteractionQuery when eager-loading is set.
	Edges        LLMInteractionEdges `json:"edges"`
	selectValues sql.SelectValues
}

// LLMInteractionEdges holds the relations/edges for other nodes in the graph.
type LLMInteractionEdges struct {
	// Session holds the value of the session edge.
	Session *AlertSession `json:"session,omitempty"`
	// StageExecution holds the value of the stage_execution edge.
	StageExecution *StageExecution `json:"stage_execution,omitempty"`
	// loadedTypes holds the information for reporting if a
	// type was loaded (or requested) in eager-loading or not.
	loadedTypes [2]bool
}

// SessionOrErr returns the Session value or an error if the edge
// was not loaded in eager-loading, or loaded but was not found.
func (e LLMInteractionEdges) SessionOrErr() (*AlertSession, error) {
	if e.Session != nil {
		return e.Session, nil
	} else if e.loadedTypes[0] {
		return nil, &NotFoundError{label: alertsession.Label}
	}
	return nil, &NotLoadedError{edge: "session"}
}

// StageExecutionOrErr returns the StageExecution value or an error if the edge
// was not loaded in eager-loading, or loaded but was not found.
func (e LLMInteractionEdges) StageExecutionOrErr() (*StageExecution, error) {
	if e.StageExecution != nil {
		return e.StageExecution, nil
	} else if e.loadedTypes[1] {
		return nil, &NotFoundError{label: stageexecution.Label}
	}
	return nil, &NotLoadedError{edge: "stage_execution"}
}

// scanValues returns the types for scanning values from sql.Rows.
func (*LLMInteraction) scanValues(columns []string) ([]any, error) {
	values := make([]any, len(columns))
	for i := range columns {
		switch columns[i] {
		case llminteraction.FieldRequest, llminteraction.FieldResponse, llminteraction.FieldToolCalls:
			values[i] = new([]byte)
		case llminteraction.FieldSuccess:
			values[i] = new(sql.NullBool)
		case llminteraction.FieldTimestampUs, llminteraction.FieldDurationMs, llminteraction.FieldInputTokens, llminteraction.FieldOutputTokens, llminteraction.FieldTotalTokens:
			values[i] = new(sql.NullInt64)
		case llminteraction.FieldID, llminteraction.FieldSessionID, llminteraction.FieldStageExecutionID, llminteraction.FieldInteractionType, llminteraction.FieldProvider, llminteraction.FieldModelName, llminteraction.FieldStepDescription, llminteraction.FieldErrorMessage:
			values[i] = new(sql.NullString)
		default:
			values[i] = new(sql.UnknownType)
		}
	}
	return values, nil
}

// assignValues assigns the values that were returned from sql.Rows (after scanning)
// to the LLMInteraction fields.
func (_m *LLMInteraction) assignValues(columns []string, values []any) error {
	if m, n := len(values), len(columns); m < n {
		return fmt.Errorf("mismatch number of scan values: %d != %d", m, n)
	}
	for i := range columns {
		switch columns[i] {
		case llminteraction.FieldID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field id", values[i])
			} else if value.Valid {
				_m.ID = value.String
			}
		case llminteraction.FieldSessionID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field session_id", values[i])
			} else if value.Valid {
				_m.SessionID = value.String
			}
		case llminteraction.FieldStageExecutionID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field stage_execution_id", values[i])
			} else if value.Valid {
				_m.StageExecutionID = new(string)
				*_m.StageExecutionID = value.String
			}
		case llminteraction.FieldTimestampUs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field timestamp_us", values[i])
			} else if value.Valid {
				_m.TimestampUs = value.Int64
			}
		case llminteraction.FieldDurationMs:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field duration_ms", values[i])
			} else if value.Valid {
				_m.DurationMs = new(int64)
				*_m.DurationMs = value.Int64
			}
		case llminteraction.FieldSuccess:
			if value, ok := values[i].(*sql.NullBool); !ok {
				return fmt.Errorf("unexpected type %T for field success", values[i])
			} else if value.Valid {
				_m.Success = value.Bool
			}
		case llminteraction.FieldInteractionType:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field interaction_type", values[i])
			} else if value.Valid {
				_m.InteractionType = value.String
			}
		case llminteraction.FieldProvider:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field provider", values[i])
			} else if value.Valid {
				_m.Provider = value.String
			}
		case llminteraction.FieldModelName:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field model_name", values[i])
			} else if value.Valid {
				_m.ModelName = value.String
			}
		case llminteraction.FieldRequest:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field request", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.Request); err != nil {
					return fmt.Errorf("unmarshal field request: %w", err)
				}
			}
		case llminteraction.FieldResponse:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field response", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.Response); err != nil {
					return fmt.Errorf("unmarshal field response: %w", err)
				}
			}
		case llminteraction.FieldToolCalls:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field tool_calls", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.ToolCalls); err != nil {
					return fmt.Errorf("unmarshal field tool_calls: %w", err)
				}
			}
		case llminteraction.FieldInputTokens:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field input_tokens", values[i])
			} else if value.Valid {
				_m.InputTokens = new(int)
				*_m.InputTokens = int(value.Int64)
			}
		case llminteraction.FieldOutputTokens:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field output_tokens", values[i])
			} else if value.Valid {
				_m.OutputTokens = new(int)
				*_m.OutputTokens = int(value.Int64)
			}
		case llminteraction.FieldTotalTokens:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field total_tokens", values[i])
			} else if value.Valid {
				_m.TotalTokens = new(int)
				*_m.TotalTokens = int(value.Int64)
			}
		case llminteraction.FieldStepDescription:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field step_description", values[i])
			} else if value.Valid {
				_m.StepDescription = value.String
			}
		case llminteraction.FieldErrorMessage:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field error_message", values[i])
			} else if value.Valid {
				_m.ErrorMessage = new(string)
				*_m.ErrorMessage = value.String
			}
		default:
			_m.selectValues.Set(columns[i], values[i])
		}
	}
	return nil
}

// Value returns the ent.Value that was dynamically selected and assigned to the LLMInteraction.
// This includes values selected through modifiers, order, etc.
func (_m *LLMInteraction) Value(name string) (ent.Value, error) {
	return _m.selectValues.Get(name)
}

// QuerySession queries the "session" edge of the LLMInteraction entity.
func (_m *LLMInteraction) QuerySession() *AlertSessionQuery {
	return NewLLMInteractionClient(_m.config).QuerySession(_m)
}

// QueryStageExecution queries the "stage_execution" edge of the LLMInteraction entity.
func (_m *LLMInteraction) QueryStageExecution() *StageExecutionQuery {
	return NewLLMInteractionClient(_m.config).QueryStageExecution(_m)
}

// Update returns a builder for updating this LLMInteraction.
// Note that you need to call LLMInteraction.Unwrap() before calling this method if this LLMInteraction
// was returned from a transaction, and the transaction was committed or rolled back.
func (_m *LLMInteraction) Update() *LLMInteractionUpdateOne {
	return NewLLMInteractionClient(_m.config).UpdateOne(_m)
}

// Unwrap unwraps the LLMInteraction entity that was returned from a transaction after it was closed,
// so that all future queries will be executed through the driver which created the transaction.
func (_m *LLMInteraction) Unwrap() *LLMInteraction {
	_tx, ok := _m.config.driver.(*txDriver)
	if !ok {
		panic("ent: LLMInteraction is not a transactional entity")
	}
	_m.config.driver = _tx.drv
	return _m
}

// String implements the fmt.Stringer.
func (_m *LLMInteraction) String() string {
	var builder strings.Builder
	builder.WriteString("LLMInteraction(")
	builder.WriteString(fmt.Sprintf("id=%v, ", _m.ID))
	builder.WriteString("session_id=")
	builder.WriteString(_m.SessionID)
	builder.WriteString(", ")
	if v := _m.StageExecutionID; v != nil {
		builder.WriteString("stage_execution_id=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("timestamp_us=")
	builder.WriteString(fmt.Sprintf("%v", _m.TimestampUs))
	builder.WriteString(", ")
	if v := _m.DurationMs; v != nil {
		builder.WriteString("duration_ms=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	builder.WriteString("success=")
	builder.WriteString(fmt.Sprintf("%v", _m.Success))
	builder.WriteString(", ")
	builder.WriteString("interaction_type=")
	builder.WriteString(_m.InteractionType)
	builder.WriteString(", ")
	builder.WriteString("provider=")
	builder.WriteString(_m.Provider)
	builder.WriteString(", ")
	builder.WriteString("model_name=")
	builder.WriteString(_m.ModelName)
	builder.WriteString(", ")
	builder.WriteString("request=")
	builder.WriteString(fmt.Sprintf("%v", _m.Request))
	builder.WriteString(", ")
	builder.WriteString("response=")
	builder.WriteString(fmt.Sprintf("%v", _m.Response))
	builder.WriteString(", ")
	builder.WriteString("tool_calls=")
	builder.WriteString(fmt.Sprintf("%v", _m.ToolCalls))
	builder.WriteString(", ")
	if v := _m.InputTokens; v != nil {
		builder.WriteString("input_tokens=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.OutputTokens; v != nil {
		builder.WriteString("output_tokens=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	if v := _m.TotalTokens; v != nil {
		builder.WriteString("total_tokens=")
		builder.WriteString(fmt.Sprintf("%v", *v))
	}
	builder.WriteString(", ")
	builder.WriteString("step_description=")
	builder.WriteString(_m.StepDescription)
	builder.WriteString(", ")
	if v := _m.ErrorMessage; v != nil {
		builder.WriteString("error_message=")
		builder.WriteString(*v)
	}
	builder.WriteByte(')')
	return builder.String()
}

// LLMInteractions is a parsable slice of LLMInteraction.
type LLMInteractions []*LLMInteraction
