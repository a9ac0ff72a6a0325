package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MCPInteraction holds the schema definition for the MCPInteraction entity.
// One row per MCP server communication (tool call or tool listing).
// Immutable after insert.
type MCPInteraction struct {
	ent.Schema
}

// Fields of the MCPInteraction.
func (MCPInteraction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("communication_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.String("stage_execution_id").
			Optional().
			Nillable().
			Immutable(),
		field.Int64("timestamp_us").
			Immutable().
			Comment("Start of the operation, microseconds since epoch UTC"),
		field.Int64("duration_ms").
			Optional().
			Nillable(),
		field.Bool("success").
			Default(true),
		field.Enum("communication_type").
			Values("tool_list", "tool_call"),
		field.String("server_name").
			Comment("e.g. 'kubernetes-server'"),
		field.String("tool_name").
			Optional().
			Nillable().
			Comment("nil for tool_list"),
		field.JSON("tool_arguments", map[string]interface{}{}).
			Optional(),
		field.JSON("tool_result", map[string]interface{}{}).
			Optional().
			Comment("Masked before persistence"),
		field.JSON("available_tools", []interface{}{}).
			Optional().
			Comment("tool_list rows only"),
		field.String("error_message").
			Optional().
			Nillable().
			Comment("null = success, not-null = failed"),
	}
}

// Edges of the MCPInteraction.
func (MCPInteraction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", AlertSession.Type).
			Ref("mcp_interactions").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
		edge.From("stage_execution", StageExecution.Type).
			Ref("mcp_interactions").
			Field("stage_execution_id").
			Unique().
			Immutable(),
	}
}

// Indexes of the MCPInteraction.
func (MCPInteraction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "timestamp_us"),
		index.Fields("stage_execution_id", "timestamp_us"),
	}
}
