package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes sessions.
type Worker struct {
	id              string
	podID           string
	store           *history.Store
	config          *config.QueueConfig
	sessionExecutor SessionExecutor
	publisher       *events.Publisher
	pool            SessionRegistry
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentSessionID  string
	sessionsProcessed int
	lastActivity      time.Time
}

// SessionRegistry is the subset of WorkerPool used by Worker for session registration.
type SessionRegistry interface {
	RegisterSession(sessionID string, cancel context.CancelFunc)
	UnregisterSession(sessionID string)
}

// NewWorker creates a new queue worker.
// publisher may be nil (event delivery disabled).
func NewWorker(id, podID string, store *history.Store, cfg *config.QueueConfig, executor SessionExecutor, pool SessionRegistry, publisher *events.Publisher) *Worker {
	return &Worker{
		id:              id,
		podID:           podID,
		store:           store,
		config:          cfg,
		sessionExecutor: executor,
		publisher:       publisher,
		pool:            pool,
		stopCh:          make(chan struct{}),
		status:          WorkerStatusIdle,
		lastActivity:    time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentSessionID:  w.currentSessionID,
		SessionsProcessed: w.sessionsProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.claimAndProcess(ctx); err != nil {
				if errors.Is(err, history.ErrNoSessionsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.claimInterval())
					continue
				}
				log.Error("Error processing session", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// claimAndProcess checks capacity, claims a session, and processes it.
func (w *Worker) claimAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers but
	//    bounded by WorkerCount and mitigated by claim jitter).
	activeCount, err := w.store.CountSessionsByStatus(ctx, alertsession.StatusInProgress)
	if err != nil {
		return fmt.Errorf("checking active sessions: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentSessions {
		return ErrAtCapacity
	}

	// 2. Claim next session (FOR UPDATE SKIP LOCKED, FIFO)
	session, err := w.store.ClaimNextPendingSession(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("session_id", session.ID, "worker_id", w.id)
	log.Info("Session claimed")

	// Publish session status "in_progress" to session and global channels
	w.publishSessionStatus(ctx, session.ID, alertsession.StatusInProgress)

	w.setStatus(WorkerStatusWorking, session.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Create session context with timeout
	sessionCtx, cancelSession := context.WithTimeout(ctx, w.config.SessionTimeout)
	defer cancelSession()

	// 4. Register cancel function for API-triggered cancellation
	w.pool.RegisterSession(session.ID, cancelSession)
	defer w.pool.UnregisterSession(session.ID)

	// 5. Start heartbeat
	heartbeatCtx, cancelHeartbeat := context.WithCancel(sessionCtx)
	go w.runHeartbeat(heartbeatCtx, session.ID)

	// 6. Execute session
	result := w.sessionExecutor.Execute(sessionCtx, session)
	cancelHeartbeat()

	result = w.normalizeResult(sessionCtx, result)

	// 7. Write the resulting session status (use background context — the
	// session context may be cancelled or expired by now)
	if err := w.updateSessionStatus(context.Background(), session, result); err != nil {
		log.Error("Failed to update session status", "error", err)
		return err
	}
	w.publishSessionStatus(context.Background(), session.ID, result.Status)

	w.mu.Lock()
	w.sessionsProcessed++
	w.mu.Unlock()

	log.Info("Session processing complete", "status", result.Status)
	return nil
}

// normalizeResult guards against nil results and maps context expiry onto
// the session status when the executor could not report it itself.
func (w *Worker) normalizeResult(sessionCtx context.Context, result *ExecutionResult) *ExecutionResult {
	if result == nil {
		switch {
		case errors.Is(sessionCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				Status: alertsession.StatusFailed,
				Error:  fmt.Errorf("session timed out after %v", w.config.SessionTimeout),
			}
		case errors.Is(sessionCtx.Err(), context.Canceled):
			result = &ExecutionResult{
				Status: alertsession.StatusCancelled,
				Error:  context.Canceled,
			}
		default:
			result = &ExecutionResult{
				Status: alertsession.StatusFailed,
				Error:  fmt.Errorf("executor returned nil result"),
			}
		}
		return result
	}

	if result.Status == "" {
		switch {
		case errors.Is(sessionCtx.Err(), context.DeadlineExceeded):
			result.Status = alertsession.StatusFailed
			result.Error = fmt.Errorf("session timed out after %v", w.config.SessionTimeout)
		case errors.Is(sessionCtx.Err(), context.Canceled):
			result.Status = alertsession.StatusCancelled
			result.Error = context.Canceled
		default:
			result.Status = alertsession.StatusFailed
			result.Error = fmt.Errorf("executor returned result without status")
		}
	}
	return result
}

// runHeartbeat periodically refreshes last_interaction_at_us for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, sessionID); err != nil {
				slog.Warn("Heartbeat update failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

// updateSessionStatus writes the session's resulting status. Paused is not
// terminal: the store keeps the session claimable after a resume request.
func (w *Worker) updateSessionStatus(ctx context.Context, session *ent.AlertSession, result *ExecutionResult) error {
	completion := history.SessionCompletion{
		PauseMetadata: result.PauseMetadata,
	}
	if result.FinalAnalysis != "" {
		completion.FinalAnalysis = &result.FinalAnalysis
	}
	if result.Error != nil {
		msg := result.Error.Error()
		completion.ErrorMessage = &msg
	}
	return w.store.UpdateSessionStatus(ctx, session.ID, result.Status, completion)
}

// publishSessionStatus publishes a session status event for real-time
// WebSocket delivery. Best-effort: errors are logged.
func (w *Worker) publishSessionStatus(ctx context.Context, sessionID string, status alertsession.Status) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishSessionStatus(ctx, sessionID, events.SessionStatusPayload{
		Type:        events.SessionEventType(status),
		SessionID:   sessionID,
		Status:      status,
		TimestampUs: events.NowUs(),
	}); err != nil {
		slog.Warn("Failed to publish session status",
			"session_id", sessionID, "status", status, "error", err)
	}
}

// claimInterval returns the claim poll duration with jitter.
func (w *Worker) claimInterval() time.Duration {
	base := w.config.ClaimInterval
	jitter := w.config.ClaimIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}
