package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/history"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func newTestStore(t *testing.T) *history.Store {
	return history.NewStore(testdb.NewTestClient(t))
}

func createPendingSession(t *testing.T, store *history.Store) string {
	t.Helper()
	sessionID := uuid.New().String()
	_, err := store.CreateSession(context.Background(), history.CreateSessionParams{
		SessionID:        sessionID,
		AlertID:          "alert-" + sessionID,
		AlertType:        "kubernetes",
		AlertData:        map[string]interface{}{"namespace": "prod"},
		AlertFingerprint: "fp-" + sessionID,
		ChainID:          "kubernetes-chain",
		ChainDefinition:  map[string]interface{}{"stages": []interface{}{}},
		AgentType:        "KubernetesAgent",
	})
	require.NoError(t, err)
	return sessionID
}

// fakeExecutor returns canned results and records the sessions it saw.
type fakeExecutor struct {
	mu       sync.Mutex
	result   *ExecutionResult
	sessions []string
}

func (f *fakeExecutor) Execute(ctx context.Context, session *ent.AlertSession) *ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session.ID)
	return f.result
}

func (f *fakeExecutor) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func waitForStatus(t *testing.T, store *history.Store, sessionID string, want alertsession.Status) *ent.AlertSession {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		session, err := store.GetSession(context.Background(), sessionID)
		require.NoError(t, err)
		if session.Status == want {
			return session
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %s", sessionID, want)
	return nil
}

func TestWorkerProcessesPendingSession(t *testing.T) {
	store := newTestStore(t)
	sessionID := createPendingSession(t, store)

	executor := &fakeExecutor{result: &ExecutionResult{
		Status:        alertsession.StatusCompleted,
		FinalAnalysis: "Root cause: node disk pressure",
	}}

	cfg := testQueueConfig()
	cfg.ClaimInterval = 20 * time.Millisecond
	cfg.ClaimIntervalJitter = 0

	pool := NewWorkerPool("test-pod", store, cfg, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	session := waitForStatus(t, store, sessionID, alertsession.StatusCompleted)
	require.NotNil(t, session.FinalAnalysis)
	assert.Equal(t, "Root cause: node disk pressure", *session.FinalAnalysis)
	assert.NotNil(t, session.CompletedAtUs)
	assert.Nil(t, session.PodID, "pod claim should be released on completion")
	assert.Contains(t, executor.seen(), sessionID)
}

func TestWorkerRecordsExecutorFailure(t *testing.T) {
	store := newTestStore(t)
	sessionID := createPendingSession(t, store)

	executor := &fakeExecutor{result: &ExecutionResult{
		Status: alertsession.StatusFailed,
		Error:  errors.New("LLM provider unavailable"),
	}}

	cfg := testQueueConfig()
	cfg.ClaimInterval = 20 * time.Millisecond
	cfg.ClaimIntervalJitter = 0

	pool := NewWorkerPool("test-pod", store, cfg, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	session := waitForStatus(t, store, sessionID, alertsession.StatusFailed)
	require.NotNil(t, session.ErrorMessage)
	assert.Contains(t, *session.ErrorMessage, "LLM provider unavailable")
}

func TestWorkerPersistsPausedSession(t *testing.T) {
	store := newTestStore(t)
	sessionID := createPendingSession(t, store)

	executor := &fakeExecutor{result: &ExecutionResult{
		Status:        alertsession.StatusPaused,
		PauseMetadata: map[string]interface{}{"stage_index": float64(1)},
	}}

	cfg := testQueueConfig()
	cfg.ClaimInterval = 20 * time.Millisecond
	cfg.ClaimIntervalJitter = 0

	pool := NewWorkerPool("test-pod", store, cfg, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	session := waitForStatus(t, store, sessionID, alertsession.StatusPaused)
	assert.Nil(t, session.CompletedAtUs, "paused is not terminal")
	assert.Nil(t, session.PodID)
	require.NotNil(t, session.PauseMetadata)
	assert.Equal(t, float64(1), session.PauseMetadata["stage_index"])
}

func TestCleanupStartupOrphansRequeuesOwnSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ownID := createPendingSession(t, store)
	otherID := createPendingSession(t, store)

	// Claim both sessions under different pods, simulating a crash mid-flight.
	claimed1, err := store.ClaimNextPendingSession(ctx, "pod-a")
	require.NoError(t, err)
	claimed2, err := store.ClaimNextPendingSession(ctx, "pod-b")
	require.NoError(t, err)
	claimedBy := map[string]string{claimed1.ID: "pod-a", claimed2.ID: "pod-b"}

	require.NoError(t, CleanupStartupOrphans(ctx, store, "pod-a"))

	for _, id := range []string{ownID, otherID} {
		session, err := store.GetSession(ctx, id)
		require.NoError(t, err)
		if claimedBy[id] == "pod-a" {
			assert.Equal(t, alertsession.StatusPending, session.Status, "own session should be requeued")
			assert.Nil(t, session.PodID)
		} else {
			assert.Equal(t, alertsession.StatusInProgress, session.Status, "other pod's session must not be touched")
		}
	}
}

func TestDetectAndRecoverOrphansRequeuesStaleSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := createPendingSession(t, store)
	claimed, err := store.ClaimNextPendingSession(ctx, "dead-pod")
	require.NoError(t, err)
	require.Equal(t, sessionID, claimed.ID)

	// Stamp a heartbeat, then let it go stale against a zero threshold.
	require.NoError(t, store.Heartbeat(ctx, sessionID))
	time.Sleep(10 * time.Millisecond)

	cfg := testQueueConfig()
	cfg.OrphanThreshold = 1 * time.Millisecond

	pool := NewWorkerPool("recovery-pod", store, cfg, nil, nil)
	require.NoError(t, pool.detectAndRecoverOrphans(ctx))

	session, err := store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, alertsession.StatusPending, session.Status)
	assert.Nil(t, session.PodID)
	assert.Nil(t, session.LastInteractionAtUs)

	health := pool.Health()
	assert.Equal(t, 1, health.OrphansRecovered)
	assert.False(t, health.LastOrphanScan.IsZero())
}
