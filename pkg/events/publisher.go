package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tarsy-dev/tarsy/pkg/database"
)

// Publisher publishes events for WebSocket delivery.
//
// On PostgreSQL, persistent events are stored in the events table and
// broadcast via NOTIFY in the same transaction; transient events are
// NOTIFY-only. On SQLite there is no NOTIFY, so every event is persisted
// and the Poller delivers it.
//
// Each public method accepts a specific typed payload struct — see
// payloads.go.
type Publisher struct {
	db      *sql.DB
	backend database.Backend
}

// NewPublisher creates a Publisher over the database client's connection.
func NewPublisher(db *sql.DB, backend database.Backend) *Publisher {
	return &Publisher{db: db, backend: backend}
}

// NowUs returns the event timestamp in microseconds since the Unix epoch,
// the unit used by every payload's timestamp_us field.
func NowUs() int64 {
	return time.Now().UnixMicro()
}

// PublishSessionCreated persists and broadcasts a session.created event on
// the global sessions channel.
func (p *Publisher) PublishSessionCreated(ctx context.Context, payload SessionCreatedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionCreatedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, GlobalSessionsChannel, payloadJSON)
}

// PublishSessionStatus persists a session status event to the session
// channel and broadcasts a transient copy to the global sessions channel.
// Both publishes are best-effort: if the persistent one fails, the transient
// one is still attempted. Returns the first error encountered (if any).
func (p *Publisher) PublishSessionStatus(ctx context.Context, sessionID string, payload SessionStatusPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionStatusPayload: %w", err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, SessionChannel(sessionID), payloadJSON); err != nil {
		slog.Warn("Failed to publish session status to session channel",
			"session_id", sessionID, "status", payload.Status, "error", err)
		firstErr = err
	}

	// Global copy for the session list page
	if err := p.notifyOnly(ctx, GlobalSessionsChannel, payloadJSON); err != nil {
		slog.Warn("Failed to publish session status to global channel",
			"session_id", sessionID, "status", payload.Status, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// PublishStageStatus persists and broadcasts a stage boundary event.
func (p *Publisher) PublishStageStatus(ctx context.Context, sessionID string, payload StageStatusPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal StageStatusPayload: %w", err)
	}
	return p.persistAndNotify(ctx, SessionChannel(sessionID), payloadJSON)
}

// PublishInteractionCreated persists and broadcasts an interaction
// event on the session channel.
func (p *Publisher) PublishInteractionCreated(ctx context.Context, sessionID string, payload InteractionCreatedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal InteractionCreatedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, SessionChannel(sessionID), payloadJSON)
}

// PublishSessionProgress broadcasts a session.progress transient event.
func (p *Publisher) PublishSessionProgress(ctx context.Context, sessionID string, payload SessionProgressPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionProgressPayload: %w", err)
	}
	return p.notifyOnly(ctx, SessionChannel(sessionID), payloadJSON)
}

// persistAndNotify persists a pre-marshaled event and, on PostgreSQL,
// broadcasts via NOTIFY in the same transaction (pg_notify is transactional
// — held until COMMIT, so listeners never see an ID that isn't readable).
func (p *Publisher) persistAndNotify(ctx context.Context, channel string, payloadJSON []byte) error {
	if p.backend == database.BackendSQLite {
		return p.persistSQLite(ctx, channel, payloadJSON)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (channel, payload, created_at) VALUES ($1, $2, $3) RETURNING id`,
		channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// persistSQLite inserts the event row; delivery happens via the Poller.
func (p *Publisher) persistSQLite(ctx context.Context, channel string, payloadJSON []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO events (channel, payload, created_at) VALUES (?, ?, ?)`,
		channel, payloadJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	return nil
}

// notifyOnly broadcasts without persisting on PostgreSQL. On SQLite the
// event is persisted anyway — the poller is the only delivery path.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	if p.backend == database.BackendSQLite {
		return p.persistSQLite(ctx, channel, payloadJSON)
	}

	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}

	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs
// to fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":       routing.Type,
		"session_id": routing.SessionID,
		"truncated":  true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
