package history

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
)

// nonTerminalStatuses are the statuses of sessions still owned by the
// processing pipeline. A duplicate alert matches against these.
var nonTerminalStatuses = []alertsession.Status{
	alertsession.StatusPending,
	alertsession.StatusInProgress,
	alertsession.StatusPaused,
}

// CreateSessionParams holds the fields captured at alert submission.
type CreateSessionParams struct {
	SessionID        string
	AlertID          string
	AlertType        string
	AlertData        map[string]interface{}
	AlertFingerprint string
	ChainID          string
	ChainDefinition  map[string]interface{}
	AgentType        string
	Author           *string
	RunbookURL       *string
}

// CreateSession inserts a new pending session.
// Returns ErrAlreadyExists when the alert_id is already taken.
func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) (*ent.AlertSession, error) {
	var session *ent.AlertSession
	err := s.withRetry(ctx, func() error {
		builder := s.client.AlertSession.Create().
			SetID(p.SessionID).
			SetAlertID(p.AlertID).
			SetAlertType(p.AlertType).
			SetAlertData(p.AlertData).
			SetAlertFingerprint(p.AlertFingerprint).
			SetChainID(p.ChainID).
			SetChainDefinition(p.ChainDefinition).
			SetAgentType(p.AgentType).
			SetStatus(alertsession.StatusPending).
			SetCreatedAtUs(NowUs())

		if p.Author != nil {
			builder = builder.SetAuthor(*p.Author)
		}
		if p.RunbookURL != nil {
			builder = builder.SetRunbookURL(*p.RunbookURL)
		}

		var err error
		session, err = builder.Save(ctx)
		return err
	})
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*ent.AlertSession, error) {
	session, err := s.client.AlertSession.Get(ctx, sessionID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetSessionIDByAlertID maps the externally visible alert ID to its session.
func (s *Store) GetSessionIDByAlertID(ctx context.Context, alertID string) (string, error) {
	session, err := s.client.AlertSession.Query().
		Where(alertsession.AlertIDEQ(alertID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up alert: %w", err)
	}
	return session.ID, nil
}

// FindActiveSessionByFingerprint returns a non-terminal session with the
// given fingerprint, or ErrNotFound. Used for duplicate suppression.
func (s *Store) FindActiveSessionByFingerprint(ctx context.Context, fingerprint string) (*ent.AlertSession, error) {
	session, err := s.client.AlertSession.Query().
		Where(
			alertsession.AlertFingerprintEQ(fingerprint),
			alertsession.StatusIn(nonTerminalStatuses...),
		).
		Order(ent.Desc(alertsession.FieldCreatedAtUs)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	return session, nil
}

// ClaimNextPendingSession atomically claims the oldest pending session using
// FOR UPDATE SKIP LOCKED, so concurrent workers never double-claim.
// Returns ErrNoSessionsAvailable when the queue is empty.
func (s *Store) ClaimNextPendingSession(ctx context.Context, podID string) (*ent.AlertSession, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := tx.AlertSession.Query().
		Where(alertsession.StatusEQ(alertsession.StatusPending)).
		Order(ent.Asc(alertsession.FieldCreatedAtUs)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNoSessionsAvailable
		}
		return nil, fmt.Errorf("failed to query pending session: %w", err)
	}

	now := NowUs()
	update := session.Update().
		SetStatus(alertsession.StatusInProgress).
		SetPodID(podID).
		SetLastInteractionAtUs(now)
	// A resumed session keeps its original start time
	if session.StartedAtUs == nil {
		update = update.SetStartedAtUs(now)
	}
	session, err = update.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return session, nil
}

// CountSessionsByStatus counts sessions in the given status.
func (s *Store) CountSessionsByStatus(ctx context.Context, status alertsession.Status) (int, error) {
	count, err := s.client.AlertSession.Query().
		Where(alertsession.StatusEQ(status)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// SessionCompletion carries the optional terminal fields written together
// with a status change.
type SessionCompletion struct {
	FinalAnalysis *string
	ErrorMessage  *string
	PauseMetadata map[string]interface{}
}

// UpdateSessionStatus transitions the session and stamps the bookkeeping
// that goes with the target status: completed_at_us on terminal statuses,
// pause_metadata on paused. Terminal and paused sessions release their pod
// and clear the cooperative control flags.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status alertsession.Status, completion SessionCompletion) error {
	err := s.withRetry(ctx, func() error {
		update := s.client.AlertSession.UpdateOneID(sessionID).
			SetStatus(status)

		switch status {
		case alertsession.StatusCompleted, alertsession.StatusFailed, alertsession.StatusCancelled:
			update = update.
				SetCompletedAtUs(NowUs()).
				ClearPodID().
				SetCancelRequested(false).
				SetPauseRequested(false)
		case alertsession.StatusPaused:
			update = update.
				ClearPodID().
				SetCancelRequested(false).
				SetPauseRequested(false)
			if completion.PauseMetadata != nil {
				update = update.SetPauseMetadata(completion.PauseMetadata)
			}
		}

		if completion.FinalAnalysis != nil {
			update = update.SetFinalAnalysis(*completion.FinalAnalysis)
		}
		if completion.ErrorMessage != nil {
			update = update.SetErrorMessage(*completion.ErrorMessage)
		}

		return update.Exec(ctx)
	})
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// Heartbeat refreshes the session's last-interaction timestamp so the
// orphan reclaimer knows the owning pod is alive.
func (s *Store) Heartbeat(ctx context.Context, sessionID string) error {
	return s.client.AlertSession.UpdateOneID(sessionID).
		SetLastInteractionAtUs(NowUs()).
		Exec(ctx)
}

// RequestCancel sets the cooperative cancellation marker on a non-terminal
// session. Returns ErrInvalidTransition when the session is already terminal.
func (s *Store) RequestCancel(ctx context.Context, sessionID string) error {
	return s.setControlFlag(ctx, sessionID, func(u *ent.AlertSessionUpdate) {
		u.SetCancelRequested(true)
	})
}

// RequestPause sets the cooperative pause marker on an in-progress session.
func (s *Store) RequestPause(ctx context.Context, sessionID string) error {
	n, err := s.client.AlertSession.Update().
		Where(
			alertsession.IDEQ(sessionID),
			alertsession.StatusEQ(alertsession.StatusInProgress),
		).
		SetPauseRequested(true).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to request pause: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Store) setControlFlag(ctx context.Context, sessionID string, set func(*ent.AlertSessionUpdate)) error {
	update := s.client.AlertSession.Update().
		Where(
			alertsession.IDEQ(sessionID),
			alertsession.StatusIn(nonTerminalStatuses...),
		)
	set(update)
	n, err := update.Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to set control flag: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ControlFlags reads the cooperative cancel/pause markers. Polled by the
// controller between iterations.
func (s *Store) ControlFlags(ctx context.Context, sessionID string) (cancelRequested, pauseRequested bool, err error) {
	session, err := s.client.AlertSession.Query().
		Where(alertsession.IDEQ(sessionID)).
		Select(alertsession.FieldCancelRequested, alertsession.FieldPauseRequested).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return false, false, ErrNotFound
		}
		return false, false, fmt.Errorf("failed to read control flags: %w", err)
	}
	return session.CancelRequested, session.PauseRequested, nil
}

// ResumeSession moves a paused session back to pending so a worker can
// claim it and continue the investigation. Pause metadata is kept for the
// executor to reconstruct the loop position.
func (s *Store) ResumeSession(ctx context.Context, sessionID string) error {
	n, err := s.client.AlertSession.Update().
		Where(
			alertsession.IDEQ(sessionID),
			alertsession.StatusEQ(alertsession.StatusPaused),
		).
		SetStatus(alertsession.StatusPending).
		SetCancelRequested(false).
		SetPauseRequested(false).
		ClearErrorMessage().
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FindOrphanedSessions returns in-progress sessions whose heartbeat is
// older than the threshold: their pod died without releasing them.
func (s *Store) FindOrphanedSessions(ctx context.Context, threshold time.Duration) ([]*ent.AlertSession, error) {
	cutoff := time.Now().Add(-threshold).UnixMicro()
	sessions, err := s.client.AlertSession.Query().
		Where(
			alertsession.StatusEQ(alertsession.StatusInProgress),
			alertsession.LastInteractionAtUsLT(cutoff),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned sessions: %w", err)
	}
	return sessions, nil
}

// FindSessionsByPod returns this pod's sessions in the given status. Used at
// startup to find sessions the previous incarnation of the pod left claimed.
func (s *Store) FindSessionsByPod(ctx context.Context, podID string, status alertsession.Status) ([]*ent.AlertSession, error) {
	sessions, err := s.client.AlertSession.Query().
		Where(
			alertsession.StatusEQ(status),
			alertsession.PodIDEQ(podID),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for pod %s: %w", podID, err)
	}
	return sessions, nil
}

// RequeueOrphan returns an orphaned session to the pending queue, guarded
// by the pod that orphaned it so a live worker's session is never stolen.
func (s *Store) RequeueOrphan(ctx context.Context, sessionID, podID string) error {
	n, err := s.client.AlertSession.Update().
		Where(
			alertsession.IDEQ(sessionID),
			alertsession.StatusEQ(alertsession.StatusInProgress),
			alertsession.PodIDEQ(podID),
		).
		SetStatus(alertsession.StatusPending).
		ClearPodID().
		ClearLastInteractionAtUs().
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue orphaned session: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// terminalStatuses are the statuses retention may delete. Paused sessions
// are kept regardless of age: a human chose to suspend them.
var terminalStatuses = []alertsession.Status{
	alertsession.StatusCompleted,
	alertsession.StatusFailed,
	alertsession.StatusCancelled,
}

// DeleteExpiredSessions removes terminal sessions older than the retention
// window. Stage executions, interactions, and events cascade with the
// session row.
func (s *Store) DeleteExpiredSessions(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMicro()
	n, err := s.client.AlertSession.Delete().
		Where(
			alertsession.StatusIn(terminalStatuses...),
			alertsession.CompletedAtUsLT(cutoff),
		).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return n, nil
}

// ListSessions returns sessions filtered by optional status and alert type,
// newest first.
func (s *Store) ListSessions(ctx context.Context, status *alertsession.Status, alertType *string, limit, offset int) ([]*ent.AlertSession, int, error) {
	query := s.client.AlertSession.Query()
	if status != nil {
		query = query.Where(alertsession.StatusEQ(*status))
	}
	if alertType != nil {
		query = query.Where(alertsession.AlertTypeEQ(*alertType))
	}

	total, err := query.Clone().Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	sessions, err := query.
		Order(ent.Desc(alertsession.FieldCreatedAtUs)).
		Limit(limit).
		Offset(offset).
		All(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}
