package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LLMInteraction holds the schema definition for the LLMInteraction entity.
// Full request/response record of a single LLM call. Immutable after insert.
type LLMInteraction struct {
	ent.Schema
}

// Fields of the LLMInteraction.
func (LLMInteraction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("interaction_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.String("stage_execution_id").
			Optional().
			Nillable().
			Immutable().
			Comment("nil for session-level calls"),
		field.Int64("timestamp_us").
			Immutable().
			Comment("Start of the call, microseconds since epoch UTC"),
		field.Int64("duration_ms").
			Optional().
			Nillable(),
		field.Bool("success").
			Default(true),
		field.String("interaction_type").
			Default("investigation").
			Comment("e.g. 'investigation', 'final_analysis', 'chat'"),
		field.String("provider").
			Comment("e.g. 'openai', 'anthropic', 'google'"),
		field.String("model_name"),
		field.JSON("request", map[string]interface{}{}).
			Comment("Conversation messages plus tool schemas as sent"),
		field.JSON("response", map[string]interface{}{}).
			Optional().
			Comment("Provider response as received"),
		field.JSON("tool_calls", []interface{}{}).
			Optional().
			Comment("Structured tool calls parsed from the response"),
		field.Int("input_tokens").
			Optional().
			Nillable(),
		field.Int("output_tokens").
			Optional().
			Nillable(),
		field.Int("total_tokens").
			Optional().
			Nillable(),
		field.String("step_description").
			Optional().
			Comment("Human-readable label, e.g. 'iteration 3'"),
		field.String("error_message").
			Optional().
			Nillable().
			Comment("null = success, not-null = failed"),
	}
}

// Edges of the LLMInteraction.
func (LLMInteraction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", AlertSession.Type).
			Ref("llm_interactions").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
		edge.From("stage_execution", StageExecution.Type).
			Ref("llm_interactions").
			Field("stage_execution_id").
			Unique().
			Immutable(),
	}
}

// Indexes of the LLMInteraction.
func (LLMInteraction) Indexes() []ent.Index {
	return []ent.Index{
		// Session timeline, chronological
		index.Fields("session_id", "timestamp_us"),
		// Stage timeline
		index.Fields("stage_execution_id", "timestamp_us"),
	}
}
