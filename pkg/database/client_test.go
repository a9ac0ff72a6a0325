package database

import (
	"context"
	stdsql "database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient creates a test database client with CI/local environment
// detection. In CI (when CI_DATABASE_URL is set) it connects to an external
// PostgreSQL service container; locally it spins up a testcontainer.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	// Auto-migration for tests, plus the indexes migrations normally add
	require.NoError(t, entClient.Schema.Create(ctx))
	require.NoError(t, CreateGINIndexes(ctx, drv))
	require.NoError(t, CreatePartialUniqueIndexes(ctx, drv))

	client := NewClientFromEnt(entClient, db, BackendPostgres)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DB().PingContext(ctx))

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestFullTextSearch_FinalAnalysis(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UnixMicro()

	_, err := client.AlertSession.Create().
		SetID("fts-1").
		SetAlertID("alert-fts-1").
		SetAlertType("kubernetes").
		SetAlertData(map[string]interface{}{"namespace": "prod"}).
		SetAlertFingerprint("fp-1").
		SetChainID("kubernetes-chain").
		SetChainDefinition(map[string]interface{}{}).
		SetCreatedAtUs(now).
		SetFinalAnalysis("Crashlooping pod caused by missing config map in production").
		Save(ctx)
	require.NoError(t, err)

	_, err = client.AlertSession.Create().
		SetID("fts-2").
		SetAlertID("alert-fts-2").
		SetAlertType("kubernetes").
		SetAlertData(map[string]interface{}{"namespace": "stage"}).
		SetAlertFingerprint("fp-2").
		SetChainID("kubernetes-chain").
		SetChainDefinition(map[string]interface{}{}).
		SetCreatedAtUs(now).
		SetFinalAnalysis("High memory usage from a leaking sidecar").
		Save(ctx)
	require.NoError(t, err)

	rows, err := client.DB().QueryContext(ctx,
		`SELECT session_id FROM alert_sessions
		WHERE to_tsvector('english', COALESCE(final_analysis, '')) @@ to_tsquery('english', $1)`,
		"pod & production",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var sessionID string
		require.NoError(t, rows.Scan(&sessionID))
		results = append(results, sessionID)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []string{"fts-1"}, results)
}

func TestAlertDataIndexes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	rows, err := client.DB().QueryContext(ctx,
		`SELECT indexname FROM pg_indexes WHERE tablename = 'alert_sessions'`)
	require.NoError(t, err)
	defer rows.Close()

	indexes := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes[name] = true
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{
		"idx_alert_sessions_alert_data_gin",
		"idx_alert_sessions_alert_data_severity",
		"idx_alert_sessions_alert_data_environment",
		"idx_alert_sessions_alert_data_cluster",
		"idx_alert_sessions_final_analysis_gin",
	} {
		assert.True(t, indexes[want], "missing index %s", want)
	}

	// The expression indexes must be usable by payload-field filters.
	var n int
	err = client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_sessions WHERE alert_data->>'severity' = 'critical'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid postgres config",
			cfg: Config{
				Backend:      BackendPostgres,
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		{
			name: "missing password",
			cfg: Config{
				Backend:      BackendPostgres,
				MaxOpenConns: 10,
			},
			wantErr: true,
		},
		{
			name: "idle conns exceed max conns",
			cfg: Config{
				Backend:      BackendPostgres,
				Password:     "test",
				MaxOpenConns: 5,
				MaxIdleConns: 10,
			},
			wantErr: true,
		},
		{
			name: "valid sqlite config",
			cfg:  Config{Backend: BackendSQLite, SQLitePath: "test.db"},
		},
		{
			name:    "sqlite without path",
			cfg:     Config{Backend: BackendSQLite},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSQLiteEventIDsMonotonicAfterCleanup(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, Config{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "tarsy.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	insert := func() int64 {
		res, err := client.DB().ExecContext(ctx,
			`INSERT INTO events (channel, payload, created_at) VALUES (?, ?, ?)`,
			"sessions", `{"type":"session.created"}`, time.Now())
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	first := insert()
	second := insert()
	require.Greater(t, second, first)

	// Deleting the newest row must not free its id for reuse: the catch-up
	// cursor depends on ids only ever increasing.
	_, err = client.DB().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, second)
	require.NoError(t, err)

	third := insert()
	assert.Greater(t, third, second)
}

func TestLoadConfigFromEnv_Backend(t *testing.T) {
	t.Setenv("DB_BACKEND", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/tarsy-test.db")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Contains(t, cfg.DSN(), "/tmp/tarsy-test.db")
}
