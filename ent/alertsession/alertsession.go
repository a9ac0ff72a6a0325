// Code generated by ent, DO NOT EDIT.

package alertsession

import (
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
)

const (
	// Label holds the string label denoting the alertsession type in the database.
	Label = "alert_session"
	// FieldID holds the string denoting the id field in the database.
	FieldID = "session_id"
	// FieldAlertID holds the string denoting the alert_id field in the database.
	FieldAlertID = "alert_id"
	// FieldAlertType holds the string denoting the alert_type field in the database.
	FieldAlertType = "alert_type"
	// FieldAlertData holds the string denoting the alert_data field in the database.
	FieldAlertData = "alert_data"
	// FieldAlertFingerprint holds the string denoting the alert_fingerprint field in the database.
	FieldAlertFingerprint = "alert_fingerprint"
	// FieldChainID holds the string denoting the chain_id field in the database.
	FieldChainID = "chain_id"
	// FieldChainDefinition holds the string denoting the chain_definition field in the database.
	FieldChainDefinition = "chain_definition"
	// FieldAgentType holds the string denoting the agent_type field in the database.
	FieldAgentType = "agent_type"
	// FieldAuthor holds the string denoting the author field in the database.
	FieldAuthor = "author"
	// FieldRunbookURL holds the string denoting the runbook_url field in the database.
	FieldRunbookURL = "runbook_url"
	// FieldStatus holds the string denoting the status field in the database.
	FieldStatus = "status"
	// FieldCreatedAtUs holds the string denoting the created_at_us field in the database.
	FieldCreatedAtUs = "created_at_us"
	// FieldStartedAtUs holds the string denoting the started_at_us field in the database.
	FieldStartedAtUs = "started_at_us"
	// FieldLastInteractionAtUs holds the string denoting the last_interaction_at_us field in the database.
	FieldLastInteractionAtUs = "last_interaction_at_us"
	// FieldCompletedAtUs holds the string denoting the completed_at_us field in the database.
	FieldCompletedAtUs = "completed_at_us"
	// FieldErrorMessage holds the string denoting the error_message field in the database.
	FieldErrorMessage = "error_message"
	// FieldFinalAnalysis holds the string denoting the final_analysis field in the database.
	FieldFinalAnalysis = "final_analysis"
	// FieldPauseMetadata holds the string denoting the pause_metadata field in the database.
	FieldPauseMetadata = "pause_metadata"
	// FieldPodID holds the string denoting the pod_id field in the database.
	FieldPodID = "pod_id"
	// FieldCancelRequested holds the string denoting the cancel_requested field in the database.
	FieldCancelRequested = "cancel_requested"
	// FieldPauseRequested holds the string denoting the pause_requested field in the database.
	FieldPauseRequested = "pause_requested"
	// EdgeStageExecutions holds the string denoting the stage_executions edge name in mutations.
	EdgeStageExecutions = "stage_executions"
	// EdgeLlmInteractions holds the string denoting the llm_interactions edge name in mutations.
	EdgeLlmInteractions = "llm_interactions"
	// EdgeMcpInteractions holds the string denoting the mcp_interactions edge name in mutations.
	EdgeMcpInteractions = "mcp_interactions"
	// StageExecutionFieldID holds the string denoting the ID field of the StageExecution.
	StageExecutionFieldID = "stage_execution_id"
	// LLMInteractionFieldID holds the string denoting the ID field of the LLMInteraction.
	LLMInteractionFieldID = "interaction_id"
	// MCPInteractionFieldID holds the string denoting the ID field of the MCPInteraction.
	MCPInteractionFieldID = "communication_id"
	// Table holds the table name of the alertsession in the database.
	Table = "alert_sessions"
	// StageExecutionsTable is the table that holds the stage_executions relation/edge.
	StageExecutionsTable = "stage_executions"
	// StageExecutionsInverseTable is the table name for the StageExecution entity.
	// It exists in this package in order to avoid circular dependency with the "stageexecution" package.
	StageExecutionsInverseTable = "stage_executions"
	// StageExecutionsColumn is the table column denoting the stage_executions relation/edge.
	StageExecutionsColumn = "session_id"
	// LlmInteractionsTable is the table that holds the llm_interactions relation/edge.
	LlmInteractionsTable = "llm_interactions"
	// LlmInteractionsInverseTable is the table name for the LLMInteraction entity.
	// It exists in this package in order to avoid circular dependency with the "llminteraction" package.
	LlmInteractionsInverseTable = "llm_interactions"
	// LlmInteractionsColumn is the table column denoting the llm_interactions relation/edge.
	LlmInteractionsColumn = "session_id"
	// McpInteractionsTable is the table that holds the mcp_interactions relation/edge.
	McpInteractionsTable = "mcp_interactions"
	// McpInteractionsInverseTable is the table name for the MCPInteraction entity.
	// It exists in this package in order to avoid circular dependency with the "mcpinteraction" package.
	McpInteractionsInverseTable = "mcp_interactions"
	// McpInteractionsColumn is the table column denoting the mcp_interactions relation/edge.
	McpInteractionsColumn = "session_id"
)

// Columns holds all SQL columns for alertsession fields.
var Columns = []string{
	FieldID,
	FieldAlertID,
	FieldAlertType,
	FieldAlertData,
	FieldAlertFingerprint,
	FieldChainID,
	FieldChainDefinition,
	FieldAgentType,
	FieldAuthor,
	FieldRunbookURL,
	FieldStatus,
	FieldCreatedAtUs,
	FieldStartedAtUs,
	FieldLastInteractionAtUs,
	FieldCompletedAtUs,
	FieldErrorMessage,
	FieldFinalAnalysis,
	FieldPauseMetadata,
	FieldPodID,
	FieldCancelRequested,
	FieldPauseRequested,
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
	// DefaultCancelRequested holds the default value on creation for the "cancel_requested" field.
	DefaultCancelRequested bool
	// DefaultPauseRequested holds the default value on creation for the "pause_requested" field.
	DefaultPauseRequested bool
)

// Status defines the type for the "status" enum field.
type Status string

// StatusPending is the default value of the Status enum.
const DefaultStatus = StatusPending

// Status values.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// StatusValidator is a validator for the "status" field enum values. It is called by the builders before save.
func StatusValidator(s Status) error {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("alertsession: invalid enum value for status field: %q", s)
	}
}

// OrderOption defines the ordering options for the AlertSession queries.
type OrderOption func(*sql.Selector)

// ByID orders the results by the id field.
func ByID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldID, opts...).ToFunc()
}

// ByAlertID orders the results by the alert_id field.
func ByAlertID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldAlertID, opts...).ToFunc()
}

// ByAlertType orders the results by the alert_type field.
func ByAlertType(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldAlertType, opts...).ToFunc()
}

// ByAlertFingerprint orders the results by the alert_fingerprint field.
func ByAlertFingerprint(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldAlertFingerprint, opts...).ToFunc()
}

// ByChainID orders the results by the chain_id field.
func ByChainID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldChainID, opts...).ToFunc()
}

// ByAgentType orders the results by the agent_type field.
func ByAgentType(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldAgentType, opts...).ToFunc()
}

// ByAuthor orders the results by the author field.
func ByAuthor(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldAuthor, opts...).ToFunc()
}

// ByRunbookURL orders the results by the runbook_url field.
func ByRunbookURL(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldRunbookURL, opts...).ToFunc()
}

// ByStatus orders the results by the status field.
func ByStatus(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldStatus, opts...).ToFunc()
}

// ByCreatedAtUs orders the results by the created_at_us field.
func ByCreatedAtUs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldCreatedAtUs, opts...).ToFunc()
}

// ByStartedAtUs orders the results by the started_at_us field.
func ByStartedAtUs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldStartedAtUs, opts...).ToFunc()
}

// ByLastInteractionAtUs orders the results by the last_interaction_at_us field.
func ByLastInteractionAtUs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldLastInteractionAtUs, opts...).ToFunc()
}

// ByCompletedAtUs orders the results by the completed_at_us field.
func ByCompletedAtUs(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldCompletedAtUs, opts...).ToFunc()
}

// ByErrorMessage orders the results by the error_message field.
func ByErrorMessage(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldErrorMessage, opts...).ToFunc()
}

// ByFinalAnalysis orders the results by the final_analysis field.
func ByFinalAnalysis(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldFinalAnalysis, opts...).ToFunc()
}

// ByPodID orders the results by the pod_id field.
func ByPodID(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldPodID, opts...).ToFunc()
}

// ByCancelRequested orders the results by the cancel_requested field.
func ByCancelRequested(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldCancelRequested, opts...).ToFunc()
}

// ByPauseRequested orders the results by the pause_requested field.
func ByPauseRequested(opts ...sql.OrderTermOption) OrderOption {
	return sql.OrderByField(FieldPauseRequested, opts...).ToFunc()
}

// ByStageExecutionsCount orders the results by stage_executions count.
func ByStageExecutionsCount(opts ...sql.OrderTermOption) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborsCount(s, newStageExecutionsStep(), opts...)
	}
}

// ByStageExecutions orders the results by stage_executions terms.
func ByStageExecutions(term sql.OrderTerm, terms ...sql.OrderTerm) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborTerms(s, newStageExecutionsStep(), append([]sql.OrderTerm{term}, terms...)...)
	}
}

// ByLlmInteractionsCount orders the results by llm_interactions count.
func ByLlmInteractionsCount(opts ...sql.OrderTermOption) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborsCount(s, newLlmInteractionsStep(), opts...)
	}
}

// ByLlmInteractions orders the results by llm_interactions terms.
func ByLlmInteractions(term sql.OrderTerm, terms ...sql.OrderTerm) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborTerms(s, newLlmInteractionsStep(), append([]sql.OrderTerm{term}, terms...)...)
	}
}

// ByMcpInteractionsCount orders the results by mcp_interactions count.
func ByMcpInteractionsCount(opts ...sql.OrderTermOption) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborsCount(s, newMcpInteractionsStep(), opts...)
	}
}

// ByMcpInteractions orders the results by mcp_interactions terms.
func ByMcpInteractions(term sql.OrderTerm, terms ...sql.OrderTerm) OrderOption {
	return func(s *sql.Selector) {
		sqlgraph.OrderByNeighborTerms(s, newMcpInteractionsStep(), append([]sql.OrderTerm{term}, terms...)...)
	}
}
func newStageExecutionsStep() *sqlgraph.Step {
	return sqlgraph.NewStep(
		sqlgraph.From(Table, FieldID),
		sqlgraph.To(StageExecutionsInverseTable, StageExecutionFieldID),
		sqlgraph.Edge(sqlgraph.O2M, false, StageExecutionsTable, StageExecutionsColumn),
	)
}
func newLlmInteractionsStep() *sqlgraph.Step {
	return sqlgraph.NewStep(
		sqlgraph.From(Table, FieldID),
		sqlgraph.To(LlmInteractionsInverseTable, LLMInteractionFieldID),
		sqlgraph.Edge(sqlgraph.O2M, false, LlmInteractionsTable, LlmInteractionsColumn),
	)
}
func newMcpInteractionsStep() *sqlgraph.Step {
	return sqlgraph.NewStep(
		sqlgraph.From(Table, FieldID),
		sqlgraph.To(McpInteractionsInverseTable, MCPInteractionFieldID),
		sqlgraph.Edge(sqlgraph.O2M, false, McpInteractionsTable, McpInteractionsColumn),
	)
}
