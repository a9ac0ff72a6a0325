package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates the PostgreSQL JSONB and full-text indexes that
// Ent/Atlas cannot express: containment search over the alert payload,
// expression indexes on the payload fields the dashboard filters on, and
// full-text search over the investigation conclusions.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	statements := []struct {
		name string
		ddl  string
	}{
		{"final_analysis GIN", `CREATE INDEX IF NOT EXISTS idx_alert_sessions_final_analysis_gin
			ON alert_sessions USING gin(to_tsvector('english', COALESCE(final_analysis, '')))`},
		{"alert_data GIN", `CREATE INDEX IF NOT EXISTS idx_alert_sessions_alert_data_gin
			ON alert_sessions USING gin(alert_data)`},
		{"alert_data severity", `CREATE INDEX IF NOT EXISTS idx_alert_sessions_alert_data_severity
			ON alert_sessions ((alert_data->>'severity'))`},
		{"alert_data environment", `CREATE INDEX IF NOT EXISTS idx_alert_sessions_alert_data_environment
			ON alert_sessions ((alert_data->>'environment'))`},
		{"alert_data cluster", `CREATE INDEX IF NOT EXISTS idx_alert_sessions_alert_data_cluster
			ON alert_sessions ((alert_data->>'cluster'))`},
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s index: %w", stmt.name, err)
		}
	}

	return nil
}

// CreatePartialUniqueIndexes creates PostgreSQL partial unique indexes that
// Ent/Atlas cannot express. (session_id, stage_index) must be unique for
// top-level stage executions only; parallel children share the parent's
// stage_index.
func CreatePartialUniqueIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS stageexecution_session_id_stage_index_top_level
		ON stage_executions (session_id, stage_index)
		WHERE parent_stage_execution_id IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to create top-level stage index: %w", err)
	}

	return nil
}
