package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned sessions.
// All pods run this independently — requeue is guarded by a conditional
// update so only one pod wins per orphan.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds in_progress sessions with stale heartbeats
// and puts them back on the queue. The interrupted session resumes from its
// last completed stage when another worker claims it.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	orphans, err := p.store.FindOrphanedSessions(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("failed to query orphaned sessions: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("Detected orphaned sessions", "count", len(orphans))

	recovered := 0
	for _, session := range orphans {
		if err := p.requeueOrphanedSession(ctx, session); err != nil {
			slog.Error("Failed to requeue orphaned session",
				"session_id", session.ID,
				"error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	return nil
}

// requeueOrphanedSession returns a single orphaned session to pending.
func (p *WorkerPool) requeueOrphanedSession(ctx context.Context, session *ent.AlertSession) error {
	podID := "unknown"
	if session.PodID != nil {
		podID = *session.PodID
	}
	lastHeartbeat := "unknown"
	if session.LastInteractionAtUs != nil {
		lastHeartbeat = time.UnixMicro(*session.LastInteractionAtUs).UTC().Format(time.RFC3339)
	}

	if err := p.store.RequeueOrphan(ctx, session.ID, podID); err != nil {
		// Another pod may have requeued or completed it between scan and update.
		if errors.Is(err, history.ErrInvalidTransition) {
			slog.Info("Orphaned session already recovered elsewhere", "session_id", session.ID)
			return nil
		}
		return err
	}

	p.publishSessionStatus(ctx, session.ID, alertsession.StatusPending)

	slog.Warn("Orphaned session requeued",
		"session_id", session.ID,
		"old_pod_id", podID,
		"last_heartbeat", lastHeartbeat)
	return nil
}

// publishSessionStatus publishes a session status event. Best-effort.
func (p *WorkerPool) publishSessionStatus(ctx context.Context, sessionID string, status alertsession.Status) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSessionStatus(ctx, sessionID, events.SessionStatusPayload{
		Type:        events.SessionEventType(status),
		SessionID:   sessionID,
		Status:      status,
		TimestampUs: events.NowUs(),
	}); err != nil {
		slog.Warn("Failed to publish session status",
			"session_id", sessionID, "status", status, "error", err)
	}
}

// CleanupStartupOrphans requeues sessions this pod left in_progress when it
// previously crashed or was killed past the graceful shutdown window.
// Called once during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, store *history.Store, podID string) error {
	orphans, err := store.FindSessionsByPod(ctx, podID, alertsession.StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}

	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("Found startup orphans from previous run",
		"pod_id", podID,
		"count", len(orphans))

	for _, session := range orphans {
		if err := store.RequeueOrphan(ctx, session.ID, podID); err != nil {
			slog.Error("Failed to requeue startup orphan",
				"session_id", session.ID,
				"error", err)
			continue
		}
		slog.Info("Startup orphan requeued", "session_id", session.ID)
	}

	return nil
}
