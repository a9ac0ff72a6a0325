// Package queue provides session queue management and processing: claim
// workers, the chain executor, parallel stage fan-out, and orphan recovery.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
)

// ErrAtCapacity indicates the global concurrent session limit has been reached.
var ErrAtCapacity = errors.New("at capacity")

// SessionExecutor is the interface for session processing.
//
// The executor owns the ENTIRE session lifecycle internally:
//   - Executes all stages in chain order (skipping stages a resumed session
//     already completed)
//   - Applies the per-stage failure policy (abort or record-and-continue)
//   - Returns a paused result when the iteration cap or a pause request
//     stops the loop
//
// The executor writes history progressively during execution, not at the
// end. The worker only handles: claiming, heartbeat, and the session status
// update.
type SessionExecutor interface {
	Execute(ctx context.Context, session *ent.AlertSession) *ExecutionResult
}

// ExecutionResult is lightweight — just the session's resulting state. All
// intermediate state (stage executions, interactions) was already written
// to the history store by the executor during processing.
type ExecutionResult struct {
	Status        alertsession.Status // completed, failed, cancelled, paused
	FinalAnalysis string              // investigation conclusion (if completed)
	PauseMetadata map[string]interface{}
	Error         error // error details (if failed/cancelled)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveSessions   int            `json:"active_sessions"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentSessionID  string    `json:"current_session_id,omitempty"`
	SessionsProcessed int       `json:"sessions_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
