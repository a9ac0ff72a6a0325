package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AlertSession holds the schema definition for the AlertSession entity.
// One row per submitted alert; the root of the processing history.
type AlertSession struct {
	ent.Schema
}

// Fields of the AlertSession.
func (AlertSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable(),
		field.String("alert_id").
			Unique().
			Immutable().
			Comment("External alert identifier returned to the submitter"),
		field.String("alert_type").
			Comment("Alert classification, resolves the chain"),
		field.JSON("alert_data", map[string]interface{}{}).
			Comment("Sanitized alert payload"),
		field.String("alert_fingerprint").
			Comment("sha256 of alert_type + canonical payload JSON, for duplicate suppression"),
		field.String("chain_id").
			Comment("Chain identifier resolved at submission"),
		field.JSON("chain_definition", map[string]interface{}{}).
			Comment("Snapshot of the chain at submission time"),
		field.String("agent_type").
			Optional().
			Comment("Agent of the first stage (convenience for listings)"),
		field.String("author").
			Optional().
			Nillable(),
		field.String("runbook_url").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "in_progress", "paused", "completed", "failed", "cancelled").
			Default("pending"),
		field.Int64("created_at_us").
			Immutable().
			Comment("Submission time, microseconds since epoch UTC"),
		field.Int64("started_at_us").
			Optional().
			Nillable().
			Comment("When a worker claimed the session"),
		field.Int64("last_interaction_at_us").
			Optional().
			Nillable().
			Comment("Worker heartbeat, drives orphan detection"),
		field.Int64("completed_at_us").
			Optional().
			Nillable().
			Comment("When the session reached a terminal status"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Text("final_analysis").
			Optional().
			Nillable().
			Comment("Investigation conclusion (full-text searchable)"),
		field.JSON("pause_metadata", map[string]interface{}{}).
			Optional().
			Comment("Reason and loop position when status=paused"),
		field.String("pod_id").
			Optional().
			Nillable().
			Comment("Owning worker process, for multi-replica coordination"),
		field.Bool("cancel_requested").
			Default(false).
			Comment("Cooperative cancellation marker, polled between iterations"),
		field.Bool("pause_requested").
			Default(false).
			Comment("Cooperative pause marker, polled between iterations"),
	}
}

// Edges of the AlertSession.
func (AlertSession) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("stage_executions", StageExecution.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("llm_interactions", LLMInteraction.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("mcp_interactions", MCPInteraction.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the AlertSession.
func (AlertSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("alert_type"),
		index.Fields("chain_id"),
		index.Fields("alert_fingerprint"),

		// Claim ordering: FIFO over pending sessions
		index.Fields("status", "created_at_us"),
		// Retention scans
		index.Fields("status", "completed_at_us"),
		// Orphan detection scans
		index.Fields("status", "last_interaction_at_us"),
	}
}

// Annotations for PostgreSQL-specific features.
// GIN indexes for full-text search over final_analysis are created via
// migration hooks in pkg/database/migrations.go.
func (AlertSession) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
