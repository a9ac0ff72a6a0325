package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func TestLifecycleEventTypes(t *testing.T) {
	sessionCases := map[alertsession.Status]string{
		alertsession.StatusInProgress: EventTypeSessionStarted,
		alertsession.StatusCompleted:  EventTypeSessionCompleted,
		alertsession.StatusFailed:     EventTypeSessionFailed,
		alertsession.StatusPaused:     EventTypeSessionPaused,
		alertsession.StatusCancelled:  EventTypeSessionCancelled,
		// A pending transition is a return to the queue; the initial
		// pending state is announced by session.created instead.
		alertsession.StatusPending: EventTypeSessionResumed,
	}
	for status, want := range sessionCases {
		assert.Equal(t, want, SessionEventType(status), "status %s", status)
	}

	assert.Equal(t, EventTypeStageStarted, StageEventType(stageexecution.StatusActive))
	assert.Equal(t, EventTypeStageCompleted, StageEventType(stageexecution.StatusCompleted))
	assert.Equal(t, EventTypeStageCompleted, StageEventType(stageexecution.StatusFailed))
	assert.Equal(t, EventTypeStageCompleted, StageEventType(stageexecution.StatusPaused))
}

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("small payload passes through", func(t *testing.T) {
		payload := `{"type":"session.started","session_id":"s1"}`
		out, err := truncateIfNeeded(payload)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("oversized payload becomes routing envelope", func(t *testing.T) {
		big := map[string]interface{}{
			"type":       "interaction.created",
			"session_id": "s1",
			"blob":       strings.Repeat("x", 10000),
		}
		bigJSON, err := json.Marshal(big)
		require.NoError(t, err)

		out, err := truncateIfNeeded(string(bigJSON))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out), 7900)

		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &envelope))
		assert.Equal(t, "interaction.created", envelope["type"])
		assert.Equal(t, "s1", envelope["session_id"])
		assert.Equal(t, true, envelope["truncated"])
		assert.NotContains(t, envelope, "blob")
	})
}

func TestInjectDBEventID(t *testing.T) {
	payload := []byte(`{"type":"session.started","session_id":"s1"}`)
	out, err := injectDBEventIDAndTruncate(payload, 42)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, float64(42), m["db_event_id"])

	t.Run("db_event_id survives truncation", func(t *testing.T) {
		big, err := json.Marshal(map[string]interface{}{
			"type":       "session.started",
			"session_id": "s1",
			"blob":       strings.Repeat("x", 10000),
		})
		require.NoError(t, err)

		out, err := injectDBEventIDAndTruncate(big, 7)
		require.NoError(t, err)
		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &envelope))
		assert.Equal(t, true, envelope["truncated"])
		assert.Equal(t, float64(7), envelope["db_event_id"])
	})
}

func TestPublisher_PersistAndCatchup(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	publisher := NewPublisher(client.DB(), client.Backend())
	store := NewStore(client.Client)

	require.NoError(t, publisher.PublishSessionStatus(ctx, "sess-1", SessionStatusPayload{
		Type:        SessionEventType(alertsession.StatusInProgress),
		SessionID:   "sess-1",
		Status:      alertsession.StatusInProgress,
		TimestampUs: NowUs(),
	}))
	require.NoError(t, publisher.PublishStageStatus(ctx, "sess-1", StageStatusPayload{
		Type:        EventTypeStageStarted,
		SessionID:   "sess-1",
		StageName:   "analysis",
		Agent:       "KubernetesAgent",
		Status:      "active",
		TimestampUs: NowUs(),
	}))

	t.Run("events persisted on the session channel", func(t *testing.T) {
		events, err := store.GetCatchupEvents(ctx, SessionChannel("sess-1"), 0, 100)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "session.started", events[0].Payload["type"])
		assert.Equal(t, "stage.started", events[1].Payload["type"])
		assert.Greater(t, events[1].ID, events[0].ID)

		// timestamp_us is a numeric microsecond value on the wire.
		ts, ok := events[0].Payload["timestamp_us"].(float64)
		require.True(t, ok, "timestamp_us must be numeric, got %T", events[0].Payload["timestamp_us"])
		assert.Greater(t, int64(ts), int64(1_600_000_000_000_000))
	})

	t.Run("catchup respects the cursor", func(t *testing.T) {
		all, err := store.GetCatchupEvents(ctx, SessionChannel("sess-1"), 0, 100)
		require.NoError(t, err)
		require.Len(t, all, 2)

		after, err := store.GetCatchupEvents(ctx, SessionChannel("sess-1"), all[0].ID, 100)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, "stage.started", after[0].Payload["type"])
	})

	t.Run("global channel persists session.created only", func(t *testing.T) {
		require.NoError(t, publisher.PublishSessionCreated(ctx, SessionCreatedPayload{
			Type:        EventTypeSessionCreated,
			SessionID:   "sess-1",
			AlertID:     "alert-1",
			AlertType:   "kubernetes",
			ChainID:     "kubernetes-chain",
			TimestampUs: NowUs(),
		}))

		// The session.started global copy was transient (NOTIFY only), so
		// the global channel holds just the created event.
		events, err := store.GetCatchupEvents(ctx, GlobalSessionsChannel, 0, 100)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "session.created", events[0].Payload["type"])
	})

	t.Run("channel cleanup removes only that channel", func(t *testing.T) {
		n, err := store.DeleteChannelEvents(ctx, SessionChannel("sess-1"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		events, err := store.GetCatchupEvents(ctx, GlobalSessionsChannel, 0, 100)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}
