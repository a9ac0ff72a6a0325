package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// StageExecution holds the schema definition for the StageExecution entity.
// One row per stage run; parallel stages add one child row per agent with
// parent_stage_execution_id pointing at the parent row.
type StageExecution struct {
	ent.Schema
}

// Fields of the StageExecution.
func (StageExecution) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("stage_execution_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Int("stage_index").
			Comment("Position in chain: 0, 1, 2..."),
		field.String("stage_name").
			Comment("e.g. 'initial-analysis', 'deep-dive'"),
		field.String("agent").
			Comment("Agent identifier; parallel children use '{base}-{k}' replica names"),
		field.Enum("status").
			Values("pending", "active", "paused", "completed", "failed", "cancelled").
			Default("pending"),
		field.Int("current_iteration").
			Default(0).
			Comment("Persisted on every increment so a resume continues where it stopped"),
		field.Int64("started_at_us").
			Optional().
			Nillable(),
		field.Int64("completed_at_us").
			Optional().
			Nillable(),
		field.Int64("duration_ms").
			Optional().
			Nillable(),
		field.JSON("stage_output", map[string]interface{}{}).
			Optional().
			Comment("Result summary fed to subsequent stages"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.String("parent_stage_execution_id").
			Optional().
			Nillable().
			Immutable().
			Comment("Set on parallel children; nil on top-level rows"),
		field.Enum("parallel_type").
			Values("multi_agent", "replica").
			Optional().
			Nillable().
			Comment("Parent rows of parallel stages only"),
	}
}

// Edges of the StageExecution.
func (StageExecution) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", AlertSession.Type).
			Ref("stage_executions").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
		edge.To("children", StageExecution.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)).
			From("parent").
			Field("parent_stage_execution_id").
			Unique().
			Immutable(),
		edge.To("llm_interactions", LLMInteraction.Type),
		edge.To("mcp_interactions", MCPInteraction.Type),
	}
}

// Indexes of the StageExecution.
func (StageExecution) Indexes() []ent.Index {
	return []ent.Index{
		// Uniqueness of (session_id, stage_index) holds for top-level rows only;
		// the partial index is created in pkg/database/migrations.go because
		// Ent cannot express the WHERE clause portably.
		index.Fields("session_id", "stage_index"),
		index.Fields("parent_stage_execution_id"),
	}
}
