// Package history is the durable record of alert processing: sessions,
// stage executions, and every LLM/MCP interaction. Executors write through
// it during investigation; the API reads timelines and session detail from
// it after the fact.
package history

import (
	"errors"
	"time"

	"github.com/tarsy-dev/tarsy/pkg/database"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNoSessionsAvailable is returned by claim when no pending session exists
	ErrNoSessionsAvailable = errors.New("no pending sessions available")

	// ErrInvalidTransition is returned when a conditional status update
	// matched no row (wrong current status or wrong pod)
	ErrInvalidTransition = errors.New("session not in expected state")
)

// Store persists and queries the processing history.
type Store struct {
	client *database.Client
}

// NewStore creates a history store over the database client.
func NewStore(client *database.Client) *Store {
	return &Store{client: client}
}

// Backend reports the storage engine behind the store.
func (s *Store) Backend() database.Backend {
	return s.client.Backend()
}

// NowUs returns the current time in microseconds since the Unix epoch.
// All history timestamps use this resolution.
func NowUs() int64 {
	return time.Now().UnixMicro()
}
