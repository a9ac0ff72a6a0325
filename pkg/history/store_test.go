package history

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(testdb.NewTestClient(t))
}

func createTestSession(t *testing.T, store *Store, alertType string) string {
	t.Helper()
	sessionID := uuid.New().String()
	_, err := store.CreateSession(context.Background(), CreateSessionParams{
		SessionID:        sessionID,
		AlertID:          "alert-" + sessionID,
		AlertType:        alertType,
		AlertData:        map[string]interface{}{"severity": "warning"},
		AlertFingerprint: "fp-" + sessionID,
		ChainID:          "kubernetes-chain",
		ChainDefinition:  map[string]interface{}{"stages": []interface{}{}},
		AgentType:        "KubernetesAgent",
	})
	require.NoError(t, err)
	return sessionID
}

func TestStore_CreateSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("creates pending session", func(t *testing.T) {
		author := "oncall@example.com"
		session, err := store.CreateSession(ctx, CreateSessionParams{
			SessionID:        "sess-1",
			AlertID:          "alert-1",
			AlertType:        "kubernetes",
			AlertData:        map[string]interface{}{"namespace": "prod"},
			AlertFingerprint: "fp-1",
			ChainID:          "kubernetes-chain",
			ChainDefinition:  map[string]interface{}{},
			AgentType:        "KubernetesAgent",
			Author:           &author,
		})
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusPending, session.Status)
		assert.Greater(t, session.CreatedAtUs, int64(0))
		assert.Nil(t, session.StartedAtUs)
		require.NotNil(t, session.Author)
		assert.Equal(t, author, *session.Author)
	})

	t.Run("duplicate alert_id returns ErrAlreadyExists", func(t *testing.T) {
		_, err := store.CreateSession(ctx, CreateSessionParams{
			SessionID:        "sess-2",
			AlertID:          "alert-1",
			AlertType:        "kubernetes",
			AlertData:        map[string]interface{}{},
			AlertFingerprint: "fp-2",
			ChainID:          "kubernetes-chain",
			ChainDefinition:  map[string]interface{}{},
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("alert ID resolves to session", func(t *testing.T) {
		sessionID, err := store.GetSessionIDByAlertID(ctx, "alert-1")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", sessionID)

		_, err = store.GetSessionIDByAlertID(ctx, "no-such-alert")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindActiveSessionByFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")
	session, err := store.GetSession(ctx, sessionID)
	require.NoError(t, err)

	t.Run("matches non-terminal session", func(t *testing.T) {
		found, err := store.FindActiveSessionByFingerprint(ctx, session.AlertFingerprint)
		require.NoError(t, err)
		assert.Equal(t, sessionID, found.ID)
	})

	t.Run("terminal session no longer matches", func(t *testing.T) {
		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusCompleted, SessionCompletion{}))

		_, err := store.FindActiveSessionByFingerprint(ctx, session.AlertFingerprint)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ClaimNextPendingSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		_, err := store.ClaimNextPendingSession(ctx, "pod-1")
		assert.ErrorIs(t, err, ErrNoSessionsAvailable)
	})

	t.Run("claims FIFO and stamps ownership", func(t *testing.T) {
		first := createTestSession(t, store, "kubernetes")
		second := createTestSession(t, store, "kubernetes")

		claimed, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)
		assert.Equal(t, first, claimed.ID)
		assert.Equal(t, alertsession.StatusInProgress, claimed.Status)
		require.NotNil(t, claimed.PodID)
		assert.Equal(t, "pod-1", *claimed.PodID)
		assert.NotNil(t, claimed.StartedAtUs)
		assert.NotNil(t, claimed.LastInteractionAtUs)

		claimed, err = store.ClaimNextPendingSession(ctx, "pod-2")
		require.NoError(t, err)
		assert.Equal(t, second, claimed.ID)

		_, err = store.ClaimNextPendingSession(ctx, "pod-1")
		assert.ErrorIs(t, err, ErrNoSessionsAvailable)
	})

	t.Run("resumed session keeps original start time", func(t *testing.T) {
		sessionID := createTestSession(t, store, "kubernetes")

		claimed, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)
		require.Equal(t, sessionID, claimed.ID)
		originalStart := *claimed.StartedAtUs

		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusPaused, SessionCompletion{
			PauseMetadata: map[string]interface{}{"reason": "MAX_ITERATIONS_REACHED"},
		}))
		require.NoError(t, store.ResumeSession(ctx, sessionID))

		claimed, err = store.ClaimNextPendingSession(ctx, "pod-2")
		require.NoError(t, err)
		require.Equal(t, sessionID, claimed.ID)
		assert.Equal(t, originalStart, *claimed.StartedAtUs)
	})
}

func TestStore_UpdateSessionStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("terminal status stamps completion and releases pod", func(t *testing.T) {
		sessionID := createTestSession(t, store, "kubernetes")
		_, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)

		analysis := "Root cause: OOMKilled container"
		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusCompleted, SessionCompletion{
			FinalAnalysis: &analysis,
		}))

		session, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusCompleted, session.Status)
		assert.NotNil(t, session.CompletedAtUs)
		assert.Nil(t, session.PodID)
		require.NotNil(t, session.FinalAnalysis)
		assert.Equal(t, analysis, *session.FinalAnalysis)
	})

	t.Run("paused stores pause metadata and clears control flags", func(t *testing.T) {
		sessionID := createTestSession(t, store, "kubernetes")
		_, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)
		require.NoError(t, store.RequestPause(ctx, sessionID))

		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusPaused, SessionCompletion{
			PauseMetadata: map[string]interface{}{
				"reason":      "MAX_ITERATIONS_REACHED",
				"stage_index": float64(0),
			},
		}))

		session, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusPaused, session.Status)
		assert.Nil(t, session.CompletedAtUs)
		assert.Equal(t, "MAX_ITERATIONS_REACHED", session.PauseMetadata["reason"])
		assert.False(t, session.PauseRequested)
		assert.False(t, session.CancelRequested)
	})

	t.Run("unknown session", func(t *testing.T) {
		err := store.UpdateSessionStatus(ctx, "no-such-session", alertsession.StatusFailed, SessionCompletion{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ControlFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")

	t.Run("pause requires in_progress", func(t *testing.T) {
		assert.ErrorIs(t, store.RequestPause(ctx, sessionID), ErrInvalidTransition)
	})

	t.Run("cancel works on pending", func(t *testing.T) {
		require.NoError(t, store.RequestCancel(ctx, sessionID))

		cancel, pause, err := store.ControlFlags(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, cancel)
		assert.False(t, pause)
	})

	t.Run("terminal session rejects control flags", func(t *testing.T) {
		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusCancelled, SessionCompletion{}))
		assert.ErrorIs(t, store.RequestCancel(ctx, sessionID), ErrInvalidTransition)
	})
}

func TestStore_ResumeSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")

	t.Run("only paused sessions resume", func(t *testing.T) {
		assert.ErrorIs(t, store.ResumeSession(ctx, sessionID), ErrInvalidTransition)
	})

	t.Run("paused returns to pending with metadata intact", func(t *testing.T) {
		_, err := store.ClaimNextPendingSession(ctx, "pod-1")
		require.NoError(t, err)
		require.NoError(t, store.UpdateSessionStatus(ctx, sessionID, alertsession.StatusPaused, SessionCompletion{
			PauseMetadata: map[string]interface{}{"reason": "MAX_ITERATIONS_REACHED"},
		}))

		require.NoError(t, store.ResumeSession(ctx, sessionID))

		session, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusPending, session.Status)
		// Kept so the executor can reconstruct the loop position
		assert.Equal(t, "MAX_ITERATIONS_REACHED", session.PauseMetadata["reason"])
	})
}

func TestStore_OrphanDetection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")
	_, err := store.ClaimNextPendingSession(ctx, "pod-dead")
	require.NoError(t, err)

	t.Run("fresh heartbeat is not orphaned", func(t *testing.T) {
		orphans, err := store.FindOrphanedSessions(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, orphans)
	})

	t.Run("stale heartbeat is found and requeued", func(t *testing.T) {
		// Negative threshold puts the cutoff in the future, so the claim's
		// heartbeat counts as stale.
		orphans, err := store.FindOrphanedSessions(ctx, -1)
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, sessionID, orphans[0].ID)

		require.NoError(t, store.RequeueOrphan(ctx, sessionID, "pod-dead"))

		session, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, alertsession.StatusPending, session.Status)
		assert.Nil(t, session.PodID)
	})

	t.Run("requeue guarded by pod", func(t *testing.T) {
		assert.ErrorIs(t, store.RequeueOrphan(ctx, sessionID, "pod-other"), ErrInvalidTransition)
	})
}

func TestStore_StageExecutions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")

	t.Run("lifecycle stamps timing", func(t *testing.T) {
		exec, err := store.CreateStageExecution(ctx, CreateStageExecutionParams{
			SessionID:  sessionID,
			StageIndex: 0,
			StageName:  "analysis",
			Agent:      "KubernetesAgent",
		})
		require.NoError(t, err)
		assert.Equal(t, stageexecution.StatusPending, exec.Status)
		assert.Equal(t, 0, exec.CurrentIteration)

		require.NoError(t, store.StartStageExecution(ctx, exec.ID))
		require.NoError(t, store.SetStageIteration(ctx, exec.ID, 3))
		require.NoError(t, store.CompleteStageExecution(ctx, exec.ID, stageexecution.StatusCompleted, StageCompletion{
			Output: map[string]interface{}{"analysis": "done"},
		}))

		got, err := store.GetStageExecution(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, stageexecution.StatusCompleted, got.Status)
		assert.Equal(t, 3, got.CurrentIteration)
		assert.NotNil(t, got.StartedAtUs)
		assert.NotNil(t, got.CompletedAtUs)
		assert.NotNil(t, got.DurationMs)
	})

	t.Run("duplicate top-level stage index rejected", func(t *testing.T) {
		_, err := store.CreateStageExecution(ctx, CreateStageExecutionParams{
			SessionID:  sessionID,
			StageIndex: 0,
			StageName:  "analysis",
			Agent:      "KubernetesAgent",
		})
		assert.Error(t, err)
	})

	t.Run("parallel children share the parent's index", func(t *testing.T) {
		parent, err := store.CreateStageExecution(ctx, CreateStageExecutionParams{
			SessionID:  sessionID,
			StageIndex: 1,
			StageName:  "parallel-analysis",
			Agent:      "multi-agent",
		})
		require.NoError(t, err)

		parallelType := stageexecution.ParallelTypeReplica
		for _, agent := range []string{"KubernetesAgent-1", "KubernetesAgent-2"} {
			_, err := store.CreateStageExecution(ctx, CreateStageExecutionParams{
				SessionID:    sessionID,
				StageIndex:   1,
				StageName:    "parallel-analysis",
				Agent:        agent,
				ParentID:     &parent.ID,
				ParallelType: &parallelType,
			})
			require.NoError(t, err)
		}

		children, err := store.GetChildStageExecutions(ctx, parent.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "KubernetesAgent-1", children[0].Agent)

		// Top-level listing excludes children
		topLevel, err := store.GetStageExecutions(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, topLevel, 2)
	})
}

func TestStore_Interactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, store, "kubernetes")
	exec, err := store.CreateStageExecution(ctx, CreateStageExecutionParams{
		SessionID:  sessionID,
		StageIndex: 0,
		StageName:  "analysis",
		Agent:      "KubernetesAgent",
	})
	require.NoError(t, err)

	record := func(interactionType string) {
		t.Helper()
		_, err := store.RecordLLMInteraction(ctx, LLMRecord{
			SessionID:        sessionID,
			StageExecutionID: &exec.ID,
			InteractionType:  interactionType,
			Provider:         "openai",
			ModelName:        "gpt-4o",
			Request:          map[string]interface{}{"messages": []interface{}{}},
			Response:         map[string]interface{}{"content": "thinking"},
			StepDescription:  "iteration",
			Success:          true,
		})
		require.NoError(t, err)
	}

	record("investigation")
	record("chat")
	record("investigation")

	toolName := "pods_list"
	durationMs := int64(42)
	_, err = store.RecordMCPInteraction(ctx, MCPRecord{
		SessionID:         sessionID,
		StageExecutionID:  &exec.ID,
		CommunicationType: "tool_call",
		ServerName:        "kubernetes-server",
		ToolName:          &toolName,
		ToolArguments:     map[string]interface{}{"namespace": "prod"},
		ToolResult:        map[string]interface{}{"pods": []interface{}{}},
		DurationMs:        &durationMs,
		Success:           true,
	})
	require.NoError(t, err)

	t.Run("session timeline is chronological", func(t *testing.T) {
		llm, err := store.GetLLMInteractions(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, llm, 3)
		for i := 1; i < len(llm); i++ {
			assert.GreaterOrEqual(t, llm[i].TimestampUs, llm[i-1].TimestampUs)
		}

		mcp, err := store.GetMCPInteractions(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, mcp, 1)
		require.NotNil(t, mcp[0].ToolName)
		assert.Equal(t, "pods_list", *mcp[0].ToolName)
	})

	t.Run("reconstruction excludes chat turns", func(t *testing.T) {
		interactions, err := store.GetStageLLMInteractions(ctx, exec.ID, "chat")
		require.NoError(t, err)
		require.Len(t, interactions, 2)
		for _, in := range interactions {
			assert.Equal(t, "investigation", in.InteractionType)
		}
	})
}
