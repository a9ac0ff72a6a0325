package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the storage engine.
type Backend string

const (
	// BackendPostgres is the production backend
	BackendPostgres Backend = "postgres"
	// BackendSQLite is the dev/test backend; no LISTEN/NOTIFY, the event
	// bus falls back to polling
	BackendSQLite Backend = "sqlite"
)

// Config holds database configuration
type Config struct {
	Backend Backend

	// PostgreSQL settings
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// SQLite settings
	SQLitePath string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables.
// DB_BACKEND selects postgres (default) or sqlite.
func LoadConfigFromEnv() (Config, error) {
	backend := Backend(getEnvOrDefault("DB_BACKEND", string(BackendPostgres)))
	if backend != BackendPostgres && backend != BackendSQLite {
		return Config{}, fmt.Errorf("invalid DB_BACKEND: %s", backend)
	}

	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg := Config{
		Backend:         backend,
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "tarsy"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "tarsy"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		SQLitePath:      getEnvOrDefault("DB_SQLITE_PATH", "tarsy.db"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite backend requires a database path")
		}
	case BackendPostgres, "":
		if c.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
		if c.MaxOpenConns < 1 {
			return fmt.Errorf("max open connections must be at least 1")
		}
		if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
			return fmt.Errorf("max idle connections must be between 0 and max open connections")
		}
	default:
		return fmt.Errorf("invalid backend: %s", c.Backend)
	}
	return nil
}

// DSN builds the connection string for the configured backend.
func (c Config) DSN() string {
	if c.Backend == BackendSQLite {
		// Shared cache + busy timeout keep concurrent ent access workable
		return fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_fk=1", c.SQLitePath)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
