package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func testAlertConfig() *config.Config {
	return &config.Config{
		ChainRegistry: config.NewChainRegistry(map[string]*config.ChainConfig{
			"kubernetes-chain": {
				AlertTypes: []string{"kubernetes"},
				Stages: []config.StageConfig{
					{Name: "analysis", Agent: "KubernetesAgent"},
				},
			},
		}),
	}
}

func newTestAlertService(t *testing.T) (*AlertService, *history.Store) {
	store := history.NewStore(testdb.NewTestClient(t))
	return NewAlertService(testAlertConfig(), store, nil, nil), store
}

func validInput() SubmitAlertInput {
	return SubmitAlertInput{
		AlertType:  "kubernetes",
		RunbookURL: "https://github.com/org/runbooks/blob/main/oom.md",
		Data:       map[string]interface{}{"namespace": "prod", "pod": "api-7f9"},
		Author:     "oncall@example.com",
	}
}

func TestSubmitAlertValidation(t *testing.T) {
	svc, _ := newTestAlertService(t)
	ctx := context.Background()

	t.Run("missing alert type", func(t *testing.T) {
		input := validInput()
		input.AlertType = ""
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "alert_type")
	})

	t.Run("missing runbook", func(t *testing.T) {
		input := validInput()
		input.RunbookURL = ""
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("relative runbook URL", func(t *testing.T) {
		input := validInput()
		input.RunbookURL = "runbooks/oom.md"
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("unregistered alert type", func(t *testing.T) {
		input := validInput()
		input.AlertType = "unknown-type"
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "no chain registered")
	})

	t.Run("oversized payload", func(t *testing.T) {
		input := validInput()
		input.Data = map[string]interface{}{"blob": strings.Repeat("a", MaxPayloadBytes+1)}
		_, err := svc.SubmitAlert(ctx, input)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("oversized string field", func(t *testing.T) {
		input := validInput()
		input.Data = map[string]interface{}{"log": strings.Repeat("x", MaxStringFieldBytes+1)}
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "log")
	})

	t.Run("oversized array", func(t *testing.T) {
		items := make([]interface{}, MaxArrayElements+1)
		for i := range items {
			items[i] = i
		}
		input := validInput()
		input.Data = map[string]interface{}{"events": items}
		_, err := svc.SubmitAlert(ctx, input)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}

func TestSubmitAlertCreatesSession(t *testing.T) {
	svc, store := newTestAlertService(t)
	ctx := context.Background()

	result, err := svc.SubmitAlert(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, SubmissionStatusQueued, result.Status)
	assert.NotEmpty(t, result.SessionID)
	assert.True(t, strings.HasPrefix(result.AlertID, "kubernetes-"))

	session, err := store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, alertsession.StatusPending, session.Status)
	assert.Equal(t, "kubernetes-chain", session.ChainID)
	assert.Equal(t, "kubernetes", session.AlertType)
	assert.NotEmpty(t, session.AlertFingerprint)
	require.NotNil(t, session.Author)
	assert.Equal(t, "oncall@example.com", *session.Author)
	require.NotNil(t, session.RunbookURL)

	// Defaults filled into the payload
	assert.Equal(t, "warning", session.AlertData["severity"])
	assert.Equal(t, "production", session.AlertData["environment"])
	assert.NotNil(t, session.AlertData["timestamp"])

	// Chain definition snapshot captured
	assert.Equal(t, "kubernetes-chain", session.ChainDefinition["chain_id"])
	assert.NotNil(t, session.ChainDefinition["stages"])
}

func TestSubmitAlertDuplicateSuppression(t *testing.T) {
	svc, _ := newTestAlertService(t)
	ctx := context.Background()

	first, err := svc.SubmitAlert(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, SubmissionStatusQueued, first.Status)

	// Same payload with keys in a different insertion order
	input := validInput()
	input.Data = map[string]interface{}{"pod": "api-7f9", "namespace": "prod"}
	second, err := svc.SubmitAlert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStatusDuplicate, second.Status)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestSubmitAlertDifferentPayloadNotDuplicate(t *testing.T) {
	svc, _ := newTestAlertService(t)
	ctx := context.Background()

	first, err := svc.SubmitAlert(ctx, validInput())
	require.NoError(t, err)

	input := validInput()
	input.Data = map[string]interface{}{"namespace": "staging"}
	second, err := svc.SubmitAlert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStatusQueued, second.Status)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "scriptalert(1)/script", sanitizeString(`<script>alert("1")</script>`))
	assert.Equal(t, "line1\nline2\ttabbed", sanitizeString("line1\nline2\ttabbed"))
	assert.Equal(t, "clean", sanitizeString("cl\x00ea\x1bn"))
}

func TestSanitizeValuePreservesKeys(t *testing.T) {
	cleaned, err := sanitizeValue(map[string]interface{}{
		"<weird key>": "va<l>ue",
		"nested":      []interface{}{"a'b"},
	}, "data")
	require.NoError(t, err)

	m := cleaned.(map[string]interface{})
	assert.Equal(t, "value", m["<weird key>"], "values sanitized")
	assert.Contains(t, m, "<weird key>", "keys untouched")
	assert.Equal(t, []interface{}{"ab"}, m["nested"])
}

func TestAlertFingerprintStability(t *testing.T) {
	a := alertFingerprint("kubernetes", map[string]interface{}{"x": 1.0, "y": "z"})
	b := alertFingerprint("kubernetes", map[string]interface{}{"y": "z", "x": 1.0})
	c := alertFingerprint("kubernetes", map[string]interface{}{"x": 2.0, "y": "z"})
	d := alertFingerprint("gitops", map[string]interface{}{"x": 1.0, "y": "z"})

	assert.Equal(t, a, b, "key order must not matter")
	assert.NotEqual(t, a, c, "different payloads differ")
	assert.NotEqual(t, a, d, "alert type is part of the key")
}

type fakeCanceller struct {
	cancelled []string
	found     bool
}

func (f *fakeCanceller) CancelSession(sessionID string) bool {
	f.cancelled = append(f.cancelled, sessionID)
	return f.found
}

func TestCancelSession(t *testing.T) {
	store := history.NewStore(testdb.NewTestClient(t))
	canceller := &fakeCanceller{found: true}
	svc := NewAlertService(testAlertConfig(), store, nil, canceller)
	ctx := context.Background()

	t.Run("pending session cancelled directly", func(t *testing.T) {
		result, err := svc.SubmitAlert(ctx, validInput())
		require.NoError(t, err)

		require.NoError(t, svc.CancelSession(ctx, result.SessionID))

		session, err := store.GetSession(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusCancelled, session.Status)
		assert.NotNil(t, session.CompletedAtUs)
	})

	t.Run("in-progress session gets cancel marker and local cancel", func(t *testing.T) {
		input := validInput()
		input.Data = map[string]interface{}{"namespace": "in-progress-case"}
		result, err := svc.SubmitAlert(ctx, input)
		require.NoError(t, err)

		claimed, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)
		require.Equal(t, result.SessionID, claimed.ID)

		require.NoError(t, svc.CancelSession(ctx, result.SessionID))

		cancelRequested, _, err := store.ControlFlags(ctx, result.SessionID)
		require.NoError(t, err)
		assert.True(t, cancelRequested)
		assert.Contains(t, canceller.cancelled, result.SessionID)

		// Status unchanged: the running worker finalizes it.
		session, err := store.GetSession(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusInProgress, session.Status)
	})

	t.Run("terminal session is a no-op", func(t *testing.T) {
		input := validInput()
		input.Data = map[string]interface{}{"namespace": "terminal-case"}
		result, err := svc.SubmitAlert(ctx, input)
		require.NoError(t, err)
		require.NoError(t, store.UpdateSessionStatus(ctx, result.SessionID,
			alertsession.StatusCompleted, history.SessionCompletion{}))

		require.NoError(t, svc.CancelSession(ctx, result.SessionID))

		session, err := store.GetSession(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusCompleted, session.Status)
	})

	t.Run("unknown session returns not found", func(t *testing.T) {
		err := svc.CancelSession(ctx, "no-such-session")
		assert.ErrorIs(t, err, history.ErrNotFound)
	})
}

func TestPauseAndResumeSession(t *testing.T) {
	svc, store := newTestAlertService(t)
	ctx := context.Background()

	result, err := svc.SubmitAlert(ctx, validInput())
	require.NoError(t, err)

	// Pause only applies to in-progress sessions
	assert.ErrorIs(t, svc.PauseSession(ctx, result.SessionID), history.ErrInvalidTransition)

	_, err = store.ClaimNextPendingSession(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, svc.PauseSession(ctx, result.SessionID))

	_, pauseRequested, err := store.ControlFlags(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, pauseRequested)

	// Simulate the worker persisting the pause, then resume
	require.NoError(t, store.UpdateSessionStatus(ctx, result.SessionID,
		alertsession.StatusPaused, history.SessionCompletion{
			PauseMetadata: map[string]interface{}{"stage_index": 0},
		}))

	require.NoError(t, svc.ResumeSession(ctx, result.SessionID))
	session, err := store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, alertsession.StatusPending, session.Status)

	// Resuming a non-paused session is rejected
	assert.ErrorIs(t, svc.ResumeSession(ctx, result.SessionID), history.ErrInvalidTransition)
}

func TestResumeSessionPublishesResumedEvent(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := history.NewStore(client)
	publisher := events.NewPublisher(client.DB(), client.Backend())
	svc := NewAlertService(testAlertConfig(), store, publisher, nil)
	ctx := context.Background()

	result, err := svc.SubmitAlert(ctx, validInput())
	require.NoError(t, err)
	_, err = store.ClaimNextPendingSession(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, svc.PauseSession(ctx, result.SessionID))
	require.NoError(t, store.UpdateSessionStatus(ctx, result.SessionID,
		alertsession.StatusPaused, history.SessionCompletion{}))

	require.NoError(t, svc.ResumeSession(ctx, result.SessionID))

	eventStore := events.NewStore(client.Client)
	recorded, err := eventStore.GetCatchupEvents(ctx, events.SessionChannel(result.SessionID), 0, 100)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)

	last := recorded[len(recorded)-1].Payload
	assert.Equal(t, events.EventTypeSessionResumed, last["type"])
	assert.Equal(t, "pending", last["status"])
	_, ok := last["timestamp_us"].(float64)
	assert.True(t, ok, "timestamp_us must be numeric, got %T", last["timestamp_us"])
}

func TestAlertTypes(t *testing.T) {
	svc, _ := newTestAlertService(t)
	assert.Equal(t, []string{"kubernetes"}, svc.AlertTypes())
}
