package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"gopkg.in/yaml.v3"
)

// Alert payload limits.
const (
	MaxPayloadBytes     = 10 << 20 // 10 MB total payload
	MaxStringFieldBytes = 10 << 10 // 10 KB per string field
	MaxArrayElements    = 1000
)

// Submission statuses returned by SubmitAlert.
const (
	SubmissionStatusQueued    = "queued"
	SubmissionStatusDuplicate = "duplicate"
)

// SubmitAlertInput contains the domain-level data needed to create a session.
// Transformed from the HTTP request + headers by the handler.
type SubmitAlertInput struct {
	AlertType  string
	RunbookURL string
	Data       map[string]interface{}
	Author     string // from auth proxy headers; empty when unauthenticated
}

// SubmitAlertResult is the submission outcome: either a freshly queued
// session or the id of an in-flight session carrying the same alert.
type SubmitAlertResult struct {
	SessionID string `json:"session_id"`
	AlertID   string `json:"alert_id"`
	Status    string `json:"status"` // queued | duplicate
	Message   string `json:"message"`
}

// SessionCanceller aborts a session's context if it is running on this pod.
// Implemented by queue.WorkerPool.
type SessionCanceller interface {
	CancelSession(sessionID string) bool
}

// AlertService owns the session lifecycle: alert submission with
// deduplication, and the cancel/pause/resume control operations.
// publisher and canceller may be nil.
type AlertService struct {
	cfg       *config.Config
	store     *history.Store
	publisher *events.Publisher
	canceller SessionCanceller
}

// NewAlertService creates a new AlertService.
func NewAlertService(cfg *config.Config, store *history.Store, publisher *events.Publisher, canceller SessionCanceller) *AlertService {
	if cfg == nil {
		panic("NewAlertService: cfg must not be nil")
	}
	if store == nil {
		panic("NewAlertService: store must not be nil")
	}
	return &AlertService{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		canceller: canceller,
	}
}

// SubmitAlert validates and sanitizes an alert, deduplicates it against
// in-flight sessions, and creates a pending session for the worker pool.
func (s *AlertService) SubmitAlert(ctx context.Context, input SubmitAlertInput) (*SubmitAlertResult, error) {
	if input.AlertType == "" {
		return nil, NewValidationError("alert_type", "alert type is required")
	}
	if input.RunbookURL == "" {
		return nil, NewValidationError("runbook", "runbook URL is required")
	}
	if u, err := url.Parse(input.RunbookURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, NewValidationError("runbook", "runbook must be a valid absolute URL")
	}

	chainID, chain, err := s.cfg.ChainRegistry.GetByAlertType(input.AlertType)
	if err != nil {
		return nil, NewValidationError("alert_type",
			fmt.Sprintf("no chain registered for alert type %q", input.AlertType))
	}

	data, err := prepareAlertData(input.Data)
	if err != nil {
		return nil, err
	}

	fingerprint := alertFingerprint(input.AlertType, data)

	// Suppress duplicates: an identical alert already being worked on gets
	// the existing session back instead of a second investigation.
	existing, err := s.store.FindActiveSessionByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		return &SubmitAlertResult{
			SessionID: existing.ID,
			AlertID:   existing.AlertID,
			Status:    SubmissionStatusDuplicate,
			Message:   "identical alert already in flight",
		}, nil
	case !errors.Is(err, history.ErrNotFound):
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	sessionID := uuid.New().String()
	alertID := fmt.Sprintf("%s-%s", input.AlertType, sessionID)

	params := history.CreateSessionParams{
		SessionID:        sessionID,
		AlertID:          alertID,
		AlertType:        input.AlertType,
		AlertData:        data,
		AlertFingerprint: fingerprint,
		ChainID:          chainID,
		ChainDefinition:  chainSnapshot(chainID, chain),
		AgentType:        input.AlertType,
	}
	if input.Author != "" {
		params.Author = &input.Author
	}
	params.RunbookURL = &input.RunbookURL

	session, err := s.store.CreateSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publishSessionCreated(ctx, session.ID, alertID, input.AlertType, chainID)

	return &SubmitAlertResult{
		SessionID: session.ID,
		AlertID:   alertID,
		Status:    SubmissionStatusQueued,
		Message:   "alert accepted for processing",
	}, nil
}

// CancelSession cancels a session. Pending and paused sessions are
// cancelled directly; in-progress sessions get a cancel marker that the
// running agent observes at its next iteration boundary (plus an immediate
// context cancellation when the session runs on this pod). Terminal
// sessions are a no-op.
func (s *AlertService) CancelSession(ctx context.Context, sessionID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.Status {
	case alertsession.StatusPending, alertsession.StatusPaused:
		msg := "cancelled by user"
		if err := s.store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusCancelled,
			history.SessionCompletion{ErrorMessage: &msg}); err != nil {
			return err
		}
		s.publishSessionStatus(ctx, sessionID, alertsession.StatusCancelled)
		return nil

	case alertsession.StatusInProgress:
		if err := s.store.RequestCancel(ctx, sessionID); err != nil {
			return err
		}
		if s.canceller != nil && s.canceller.CancelSession(sessionID) {
			slog.Info("Session cancelled locally", "session_id", sessionID)
		}
		return nil

	default: // already terminal
		return nil
	}
}

// PauseSession requests a pause for an in-progress session. The running
// agent checkpoints its conversation and suspends at the next iteration
// boundary.
func (s *AlertService) PauseSession(ctx context.Context, sessionID string) error {
	return s.store.RequestPause(ctx, sessionID)
}

// ResumeSession returns a paused session to the queue. It will be claimed
// like any pending session and continue from its last completed stage.
func (s *AlertService) ResumeSession(ctx context.Context, sessionID string) error {
	if err := s.store.ResumeSession(ctx, sessionID); err != nil {
		return err
	}
	s.publishSessionStatus(ctx, sessionID, alertsession.StatusPending)
	return nil
}

// AlertTypes returns the alert types with a registered chain.
func (s *AlertService) AlertTypes() []string {
	return s.cfg.ChainRegistry.AlertTypes()
}

// GetSessionIDByAlertID maps an external alert id to its session id.
func (s *AlertService) GetSessionIDByAlertID(ctx context.Context, alertID string) (string, error) {
	return s.store.GetSessionIDByAlertID(ctx, alertID)
}

// ────────────────────────────────────────────────────────────
// Payload preparation
// ────────────────────────────────────────────────────────────

// prepareAlertData enforces size limits, sanitizes string leaves, and fills
// in default fields. The input map is not modified.
func prepareAlertData(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		data = map[string]interface{}{}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, NewValidationError("data", "alert data is not serializable")
	}
	if len(raw) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	sanitized, err := sanitizeValue(data, "data")
	if err != nil {
		return nil, err
	}

	result := sanitized.(map[string]interface{})
	if _, ok := result["severity"]; !ok {
		result["severity"] = "warning"
	}
	if _, ok := result["timestamp"]; !ok {
		result["timestamp"] = history.NowUs()
	}
	if _, ok := result["environment"]; !ok {
		result["environment"] = "production"
	}
	return result, nil
}

// sanitizeValue walks the payload, copying it with string LEAVES stripped
// of control characters and <>"' — keys are never altered, so sanitization
// cannot corrupt the payload's structure.
func sanitizeValue(v interface{}, path string) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if len(val) > MaxStringFieldBytes {
			return nil, NewValidationError(path,
				fmt.Sprintf("string field exceeds %d bytes", MaxStringFieldBytes))
		}
		return sanitizeString(val), nil

	case []interface{}:
		if len(val) > MaxArrayElements {
			return nil, NewValidationError(path,
				fmt.Sprintf("array exceeds %d elements", MaxArrayElements))
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			cleaned, err := sanitizeValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = cleaned
		}
		return out, nil

	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			cleaned, err := sanitizeValue(item, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = cleaned
		}
		return out, nil

	default:
		return v, nil
	}
}

// sanitizeString removes control characters and the HTML/quote-injection
// set from a string value. Tabs and newlines survive: multi-line log
// excerpts are common alert payload.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		case '\n', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// alertFingerprint derives the deduplication key from the alert type and
// the canonical JSON of the payload. encoding/json sorts map keys, so two
// payloads with the same content hash identically regardless of field
// order.
func alertFingerprint(alertType string, data map[string]interface{}) string {
	canonical, err := json.Marshal(data)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", data))
	}
	sum := sha256.Sum256(append([]byte(alertType+":"), canonical...))
	return hex.EncodeToString(sum[:])
}

// chainSnapshot records the chain definition as it was at submission time.
// The snapshot is informational: execution always follows the live
// registry, but a later config change should not obscure what the session
// was created against.
func chainSnapshot(chainID string, chain *config.ChainConfig) map[string]interface{} {
	raw, err := yaml.Marshal(chain)
	if err != nil {
		return map[string]interface{}{"chain_id": chainID}
	}
	var snapshot map[string]interface{}
	if err := yaml.Unmarshal(raw, &snapshot); err != nil {
		return map[string]interface{}{"chain_id": chainID}
	}
	snapshot["chain_id"] = chainID
	return snapshot
}

// ────────────────────────────────────────────────────────────
// Event publishing (best-effort)
// ────────────────────────────────────────────────────────────

func (s *AlertService) publishSessionCreated(ctx context.Context, sessionID, alertID, alertType, chainID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSessionCreated(ctx, events.SessionCreatedPayload{
		Type:        events.EventTypeSessionCreated,
		SessionID:   sessionID,
		AlertID:     alertID,
		AlertType:   alertType,
		ChainID:     chainID,
		TimestampUs: events.NowUs(),
	}); err != nil {
		slog.Warn("Failed to publish session created event",
			"session_id", sessionID, "error", err)
	}
}

func (s *AlertService) publishSessionStatus(ctx context.Context, sessionID string, status alertsession.Status) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSessionStatus(ctx, sessionID, events.SessionStatusPayload{
		Type:        events.SessionEventType(status),
		SessionID:   sessionID,
		Status:      status,
		TimestampUs: events.NowUs(),
	}); err != nil {
		slog.Warn("Failed to publish session status",
			"session_id", sessionID, "status", status, "error", err)
	}
}
