// Code generated by ent, DO NOT EDIT.

package migrate

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// AlertSessionsColumns holds the columns for the "alert_sessions" table.
	AlertSessionsColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString, Unique: true},
		{Name: "alert_id", Type: field.TypeString, Unique: true},
		{Name: "alert_type", Type: field.TypeString},
		{Name: "alert_data", Type: field.TypeJSON},
		{Name: "alert_fingerprint", Type: field.TypeString},
		{Name: "chain_id", Type: field.TypeString},
		{Name: "chain_definition", Type: field.TypeJSON},
		{Name: "agent_type", Type: field.TypeString, Nullable: true},
		{Name: "author", Type: field.TypeString, Nullable: true},
		{Name: "runbook_url", Type: field.TypeString, Nullable: true},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "in_progress", "paused", "completed", "failed", "cancelled"}, Default: "pending"},
		{Name: "created_at_us", Type: field.TypeInt64},
		{Name: "started_at_us", Type: field.TypeInt64, Nullable: true},
		{Name: "last_interaction_at_us", Type: field.TypeInt64, Nullable: true},
		{Name: "completed_at_us", Type: field.TypeInt64, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "final_analysis", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "pause_metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "pod_id", Type: field.TypeString, Nullable: true},
		{Name: "cancel_requested", Type: field.TypeBool, Default: false},
		{Name: "pause_requested", Type: field.TypeBool, Default: false},
	}
	// AlertSessionsTable holds the schema information for the "alert_sessions" table.
	AlertSessionsTable = &schema.Table{
		Name:       "alert_sessions",
		Columns:    AlertSessionsColumns,
		PrimaryKey: []*schema.Column{AlertSessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "alertsession_status",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[10]},
			},
			{
				Name:    "alertsession_alert_type",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[2]},
			},
			{
				Name:    "alertsession_chain_id",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[5]},
			},
			{
				Name:    "alertsession_alert_fingerprint",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[4]},
			},
			{
				Name:    "alertsession_status_created_at_us",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[10], AlertSessionsColumns[11]},
			},
			{
				Name:    "alertsession_status_completed_at_us",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[10], AlertSessionsColumns[14]},
			},
			{
				Name:    "alertsession_status_last_interaction_at_us",
				Unique:  false,
				Columns: []*schema.Column{AlertSessionsColumns[10], AlertSessionsColumns[13]},
			},
		},
	}
	// EventsColumns holds the columns for the "events" table.
	EventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "channel", Type: field.TypeString},
		{Name: "payload", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
	}
	// EventsTable holds the schema information for the "events" table.
	EventsTable = &schema.Table{
		Name:       "events",
		Columns:    EventsColumns,
		PrimaryKey: []*schema.Column{EventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "event_channel_id",
				Unique:  false,
				Columns: []*schema.Column{EventsColumns[1], EventsColumns[0]},
			},
			{
				Name:    "event_created_at",
				Unique:  false,
				Columns: []*schema.Column{EventsColumns[3]},
			},
		},
	}
	// LlmInteractionsColumns holds the columns for the "llm_interactions" table.
	LlmInteractionsColumns = []*schema.Column{
		{Name: "interaction_id", Type: field.TypeString, Unique: true},
		{Name: "timestamp_us", Type: field.TypeInt64},
		{Name: "duration_ms", Type: field.TypeInt64, Nullable: true},
		{Name: "success", Type: field.TypeBool, Default: true},
		{Name: "interaction_type", Type: field.TypeString, Default: "investigation"},
		{Name: "provider", Type: field.TypeString},
		{Name: "model_name", Type: field.TypeString},
		{Name: "request", Type: field.TypeJSON},
		{Name: "response", Type: field.TypeJSON, Nullable: true},
		{Name: "tool_calls", Type: field.TypeJSON, Nullable: true},
		{Name: "input_tokens", Type: field.TypeInt, Nullable: true},
		{Name: "output_tokens", Type: field.TypeInt, Nullable: true},
		{Name: "total_tokens", Type: field.TypeInt, Nullable: true},
		{Name: "step_description", Type: field.TypeString, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "stage_execution_id", Type: field.TypeString, Nullable: true},
	}
	// LlmInteractionsTable holds the schema information for the "llm_interactions" table.
	LlmInteractionsTable = &schema.Table{
		Name:       "llm_interactions",
		Columns:    LlmInteractionsColumns,
		PrimaryKey: []*schema.Column{LlmInteractionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "llm_interactions_alert_sessions_llm_interactions",
				Columns:    []*schema.Column{LlmInteractionsColumns[15]},
				RefColumns: []*schema.Column{AlertSessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "llm_interactions_stage_executions_llm_interactions",
				Columns:    []*schema.Column{LlmInteractionsColumns[16]},
				RefColumns: []*schema.Column{StageExecutionsColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "llminteraction_session_id_timestamp_us",
				Unique:  false,
				Columns: []*schema.Column{LlmInteractionsColumns[15], LlmInteractionsColumns[1]},
			},
			{
				Name:    "llminteraction_stage_execution_id_timestamp_us",
				Unique:  false,
				Columns: []*schema.Column{LlmInteractionsColumns[16], LlmInteractionsColumns[1]},
			},
		},
	}
	// McpInteractionsColumns holds the columns for the "mcp_interactions" table.
	McpInteractionsColumns = []*schema.Column{
		{Name: "communication_id", Type: field.TypeString, Unique: true},
		{Name: "timestamp_us", Type: field.TypeInt64},
		{Name: "duration_ms", Type: field.TypeInt64, Nullable: true},
		{Name: "success", Type: field.TypeBool, Default: true},
		{Name: "communication_type", Type: field.TypeEnum, Enums: []string{"tool_list", "tool_call"}},
		{Name: "server_name", Type: field.TypeString},
		{Name: "tool_name", Type: field.TypeString, Nullable: true},
		{Name: "tool_arguments", Type: field.TypeJSON, Nullable: true},
		{Name: "tool_result", Type: field.TypeJSON, Nullable: true},
		{Name: "available_tools", Type: field.TypeJSON, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "stage_execution_id", Type: field.TypeString, Nullable: true},
	}
	// McpInteractionsTable holds the schema information for the "mcp_interactions" table.
	McpInteractionsTable = &schema.Table{
		Name:       "mcp_interactions",
		Columns:    McpInteractionsColumns,
		PrimaryKey: []*schema.Column{McpInteractionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "mcp_interactions_alert_sessions_mcp_interactions",
				Columns:    []*schema.Column{McpInteractionsColumns[11]},
				RefColumns: []*schema.Column{AlertSessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "mcp_interactions_stage_executions_mcp_interactions",
				Columns:    []*schema.Column{McpInteractionsColumns[12]},
				RefColumns: []*schema.Column{StageExecutionsColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "mcpinteraction_session_id_timestamp_us",
				Unique:  false,
				Columns: []*schema.Column{McpInteractionsColumns[11], McpInteractionsColumns[1]},
			},
			{
				Name:    "mcpinteraction_stage_execution_id_timestamp_us",
				Unique:  false,
				Columns: []*schema.Column{McpInteractionsColumns[12], McpInteractionsColumns[1]},
			},
		},
	}
	// StageExecutionsColumns holds the columns for the "stage_executions" table.
	StageExecutionsColumns = []*schema.Column{
		{Name: "stage_execution_id", Type: field.TypeString, Unique: true},
		{Name: "stage_index", Type: field.TypeInt},
		{Name: "stage_name", Type: field.TypeString},
		{Name: "agent", Type: field.TypeString},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "active", "paused", "completed", "failed", "cancelled"}, Default: "pending"},
		{Name: "current_iteration", Type: field.TypeInt, Default: 0},
		{Name: "started_at_us", Type: field.TypeInt64, Nullable: true},
		{Name: "completed_at_us", Type: field.TypeInt64, Nullable: true},
		{Name: "duration_ms", Type: field.TypeInt64, Nullable: true},
		{Name: "stage_output", Type: field.TypeJSON, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "parallel_type", Type: field.TypeEnum, Nullable: true, Enums: []string{"multi_agent", "replica"}},
		{Name: "session_id", Type: field.TypeString},
		{Name: "parent_stage_execution_id", Type: field.TypeString, Nullable: true},
	}
	// StageExecutionsTable holds the schema information for the "stage_executions" table.
	StageExecutionsTable = &schema.Table{
		Name:       "stage_executions",
		Columns:    StageExecutionsColumns,
		PrimaryKey: []*schema.Column{StageExecutionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "stage_executions_alert_sessions_stage_executions",
				Columns:    []*schema.Column{StageExecutionsColumns[12]},
				RefColumns: []*schema.Column{AlertSessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "stage_executions_stage_executions_children",
				Columns:    []*schema.Column{StageExecutionsColumns[13]},
				RefColumns: []*schema.Column{StageExecutionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "stageexecution_session_id_stage_index",
				Unique:  false,
				Columns: []*schema.Column{StageExecutionsColumns[12], StageExecutionsColumns[1]},
			},
			{
				Name:    "stageexecution_parent_stage_execution_id",
				Unique:  false,
				Columns: []*schema.Column{StageExecutionsColumns[13]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		AlertSessionsTable,
		EventsTable,
		LlmInteractionsTable,
		McpInteractionsTable,
		StageExecutionsTable,
	}
)

func init() {
	LlmInteractionsTable.ForeignKeys[0].RefTable = AlertSessionsTable
	LlmInteractionsTable.ForeignKeys[1].RefTable = StageExecutionsTable
	McpInteractionsTable.ForeignKeys[0].RefTable = AlertSessionsTable
	McpInteractionsTable.ForeignKeys[1].RefTable = StageExecutionsTable
	StageExecutionsTable.ForeignKeys[0].RefTable = AlertSessionsTable
	StageExecutionsTable.ForeignKeys[1].RefTable = StageExecutionsTable
}
