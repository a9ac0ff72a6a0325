package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity: the durable
// event-bus log. The autoincrement id is the catch-up cursor; the cleaner
// deletes old rows but the sequence is never reset, so ids stay
// monotonically increasing per channel for the lifetime of the database.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable().
			// Without AUTOINCREMENT, SQLite reuses the max rowid after the
			// newest row is deleted; the cursor relies on ids never going
			// backwards, so force the sequence-backed behavior there.
			// PostgreSQL uses BIGSERIAL and is unaffected.
			Annotations(entsql.Annotation{
				Incremental: func(v bool) *bool { return &v }(true),
			}),
		field.String("channel").
			Immutable().
			Comment("'sessions' or 'session:{id}'"),
		field.JSON("payload", map[string]interface{}{}).
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable().
			Comment("Retention horizon for the event cleaner"),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		// Catch-up reads: WHERE channel = ? AND id > ? ORDER BY id
		index.Fields("channel", "id"),
		index.Fields("created_at"),
	}
}
