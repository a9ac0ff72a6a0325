// Code generated by ent, DO NOT EDIT.

package mcpinteraction

import (
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
)

const (
	// Label holds the string label denoting the mcpinteraction type in the database.
	Label = "mcp_interaction"
	// FieldID holds the string denoting the id field in the database.
	FieldID = "communication_id"
	// FieldSessionID holds the string denoting the session_id field in the database.
	FieldSessionID = "session_id"
	// FieldStageExecutionID holds the string denoting the stage_execution_id field in the database.
	FieldStageExecutionID = "stage_execution_id"
	// FieldTimestampUs holds the string denoting the timestamp_us field in the database.
	FieldTimestampUs = "timestamp_us"
	// FieldDurationMs holds the string denoting the duration_ms field in the database.
	FieldDurationMs = "duration_ms"
	// FieldSuccess holds the string denoting the success field in the database.
	FieldSuccess = "success"
	// FieldCommunicationType holds the string denoting the communication_type field in the database.
	FieldCommunicationType = "communication_type"
	// FieldServerName holds the string denoting the server_name field in the database.
	FieldServerName = "server_name"
	// FieldToolName holds the string denoting the tool_name field in the database.
	FieldToolName = "tool_name"
	// FieldToolArguments holds the string denoting the tool_arguments field in the database.
	FieldToolArguments = "tool_arguments"
	// FieldToolResult holds the string denoting the tool_result field in the database.
	FieldToolResult = "tool_result"
	// FieldAvailableTools holds the string denoting the available_tools field in the database.
	FieldAvailableTools = "available_tools"
	// FieldErrorMessage holds the string denoting the error_message field in the database.
	FieldErrorMessage = "error_message"
	// EdgeSession holds the string denoting the session edge name in mutations.
	EdgeSession = "session"
	// EdgeStageExecution holds the string denoting the stage_execution edge name in mutations.
	EdgeStageExecution = "stage_execution"
	// AlertSessionFieldID holds the string denoting the ID field of the AlertSession.
	AlertSessionFieldID = "session_id"
	// StageExecutionFieldID holds the string denoting the ID field of the StageExecution.
	StageExecutionFieldID = "stage_execution_id"
	// Table holds the table name of the mcpinteraction in the database.
	Table = "mcp_interactions"
	// SessionTable is the table that holds the session relation/edge.
	SessionTable = "mcp_interactions"
	// SessionInverseTable is the table name for the AlertSession entity.
	// It exists in this package in order to avoid circular dependency with the "alertsession" package.
	SessionInverseTable = "alert_sessions"
	// SessionColumn is the table column denoting the session relation/edge.
	SessionColumn = "session_id"
	// StageExecutionTable is the table that holds the stage_execution relation/edge.
	StageExecutionTable = "mcp_interactions"
	// StageExecutionInverseTable is the table name for the StageExecution entity.
	// It exists in this package in order to avoid circular dependency with the "stageexecution" package.
	StageExecutionInverseTable = "stage_executions"
	// StageExecutionColumn is the table column denoting the stage_execution relation/edge.
	StageExecutionColumn = "stage_execution_id"
)

// Columns holds all SQL columns for mcpinteraction fields.
var Columns = []string{
	FieldID,
	FieldSessionID,
	FieldStageExecutionID,
	FieldTimestampUs,
	FieldDurationMs,
	FieldSuccess,
	FieldCommunicationType,
	FieldServerName,
	FieldToolName,
	FieldToolArguments,
	FieldToolResult,
	FieldAvailableTools,
	FieldErrorMessage,
}

// ValidColumn reports if the column name is valid (part of the table columns).
func ValidColumn(column string) bool {
	for i := range Columns {
		if column == Columns[i] {
			return true
		}
	}
	return false
}

var (
	// DefaultSuccess holds the default value on creation for the "success" field.
	DefaultSuccess bool
)

// CommunicationType defines the type for the "communication_type" enum field.
type CommunicationType string

// CommunicationType values.
const (
	CommunicationTypeToolList CommunicationType = "tool_list"
	CommunicationTypeToolCall CommunicationType = "tool_call"
)

func (ct CommunicationType) String() string {
	return string(ct)
}

// CommunicationTypeValidator is a validator for the "communication_type" field enum values. It is called by the builders before save.
func CommunicationTypeValidator(ct CommunicationType) error {
	switch ct {
	case CommunicationTypeToolList, CommunicationTypeToolCall:
		return nil
	default:
		return fmt.Errorf("mcpinteraction: invalid enum value for communication_type field: %q", ct)
	}
}

// OrderOption defines the ordering options for the MCPInteraction queries.
type OrderOption func(*sql.Selector)

// ByID orders the results by the id field.
func ByID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldID, opts...).ToFunc()
}

// BySessionID orders the results by the session_id field.
func BySessionID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldSessionID, opts...).ToFunc()
}

// ByStageExecutionID orders the results by the stage_execution_id field.
func ByStageExecutionID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldStageExecutionID, opts...).ToFunc()
}

// ByTimestampUs orders the results by the timestamp_us field.
func ByTimestampUs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldTimestampUs, opts...).ToFunc()
}

// ByDurationMs orders the results by the duration_ms field.
func ByDurationMs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldDurationMs, opts...).ToFunc()
}

// BySuccess orders the results by the success field.
func BySuccess(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldSuccess, opts...).ToFunc()
}

// ByCommunicationType orders the results by the communication_type field.
func ByCommunicationType(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldCommunicationType, opts...).ToFunc()
}

// ByServerName orders the results by the server_name field.
func ByServerName(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldServerName, opts...).ToFunc()
}

// ByToolName orders the results by the tool_name field.
func ByToolName(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldToolName, opts...).ToFunc()
}

// ByErrorMessage orders the results by the error_message field.
func ByErrorMessage(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldErrorMessage, opts...).ToFunc()
}

// BySessionField orders the results by session field.
func BySessionField(field string, opts ...sql.OrderTermOption) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborTerms(s, newSessionStep(), sql.OrderByField(field, opts...))
	}
}

// ByStageExecutionField orders the results by stage_execution field.
func ByStageExecutionField(field string, opts ...sql.OrderTermOption) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborTerms(s, newStageExecutionStep(), sql.OrderByField(field, opts...))
	}
}
func newSessionStep() *sqlgraph.Step {
	return sqlgraph.NewStep(
		sqlgraph.From(Table, FieldID),
		sqlgraph.To(SessionInverseTable, AlertSessionFieldID),
		sqlgraph.Edge(sqlgraph.M2O, true, SessionTable, SessionColumn),
	)
}
func newStageExecutionStep() *sqlgraph.Step {
	return sqlgraph.NewStep(
		sqlgraph.From(Table, FieldID),
		sqlgraph.To(StageExecutionInverseTable, StageExecutionFieldID),
		sqlgraph.Edge(sqlgraph.M2O, true, StageExecutionTable, StageExecutionColumn),
	)
}
