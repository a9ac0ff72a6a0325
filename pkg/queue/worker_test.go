package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxConcurrentSessions:   5,
		ClaimInterval:           1 * time.Second,
		ClaimIntervalJitter:     500 * time.Millisecond,
		SessionTimeout:          15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

func TestWorkerClaimInterval(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("test-worker", "test-pod", nil, cfg, nil, nil, nil)

	// Claim interval should be within [base - jitter, base + jitter]
	for i := 0; i < 100; i++ {
		d := w.claimInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond, "claim interval below minimum")
		assert.LessOrEqual(t, d, 1500*time.Millisecond, "claim interval above maximum")
	}
}

func TestWorkerClaimIntervalNoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.ClaimIntervalJitter = 0
	w := NewWorker("test-worker", "test-pod", nil, cfg, nil, nil, nil)

	for i := 0; i < 10; i++ {
		d := w.claimInterval()
		assert.Equal(t, 1*time.Second, d, "claim interval should equal base when jitter is 0")
	}
}

func TestWorkerHealth(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("worker-1", "pod-1", nil, cfg, nil, nil, nil)

	h := w.Health()
	assert.Equal(t, "worker-1", h.ID)
	assert.Equal(t, "idle", h.Status)
	assert.Equal(t, "", h.CurrentSessionID)
	assert.Equal(t, 0, h.SessionsProcessed)

	// Simulate working state
	w.setStatus(WorkerStatusWorking, "session-abc")
	h = w.Health()
	assert.Equal(t, "working", h.Status)
	assert.Equal(t, "session-abc", h.CurrentSessionID)

	// Back to idle
	w.setStatus(WorkerStatusIdle, "")
	h = w.Health()
	assert.Equal(t, "idle", h.Status)
	assert.Equal(t, "", h.CurrentSessionID)
}

func TestWorkerNormalizeResult(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("worker-1", "pod-1", nil, cfg, nil, nil, nil)

	t.Run("nil result with live context becomes failed", func(t *testing.T) {
		result := w.normalizeResult(context.Background(), nil)
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusFailed, result.Status)
		assert.Contains(t, result.Error.Error(), "nil result")
	})

	t.Run("nil result with cancelled context becomes cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := w.normalizeResult(ctx, nil)
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusCancelled, result.Status)
		assert.ErrorIs(t, result.Error, context.Canceled)
	})

	t.Run("nil result with expired context becomes failed with timeout error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()

		result := w.normalizeResult(ctx, nil)
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusFailed, result.Status)
		assert.Contains(t, result.Error.Error(), "timed out")
	})

	t.Run("result without status gets failed status", func(t *testing.T) {
		result := w.normalizeResult(context.Background(), &ExecutionResult{})
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusFailed, result.Status)
		assert.Contains(t, result.Error.Error(), "without status")
	})

	t.Run("complete result passes through unchanged", func(t *testing.T) {
		in := &ExecutionResult{
			Status:        alertsession.StatusCompleted,
			FinalAnalysis: "Root cause: OOM",
		}
		result := w.normalizeResult(context.Background(), in)
		assert.Same(t, in, result)
		assert.Equal(t, alertsession.StatusCompleted, result.Status)
	})

	t.Run("failed result keeps its own error", func(t *testing.T) {
		execErr := errors.New("LLM unavailable")
		in := &ExecutionResult{Status: alertsession.StatusFailed, Error: execErr}
		result := w.normalizeResult(context.Background(), in)
		assert.ErrorIs(t, result.Error, execErr)
	})
}

func TestExecutionResult(t *testing.T) {
	result := &ExecutionResult{
		Status:        alertsession.StatusCompleted,
		FinalAnalysis: "Test analysis",
	}
	assert.Equal(t, alertsession.StatusCompleted, result.Status)
	assert.Equal(t, "Test analysis", result.FinalAnalysis)
	assert.Nil(t, result.Error)
}
