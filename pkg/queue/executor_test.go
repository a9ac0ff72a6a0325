package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

func TestBuildStageContext(t *testing.T) {
	t.Run("no outcomes returns empty", func(t *testing.T) {
		assert.Equal(t, "", buildStageContext(nil))
	})

	t.Run("completed stage renders its analysis", func(t *testing.T) {
		got := buildStageContext([]stageOutcome{
			{stageName: "investigation", analysis: "Pod was OOM killed"},
		})
		assert.Equal(t, "## Stage: investigation\n\nPod was OOM killed", got)
	})

	t.Run("failed stage renders its error", func(t *testing.T) {
		got := buildStageContext([]stageOutcome{
			{stageName: "data-collection", err: errors.New("kubectl unavailable")},
		})
		assert.Contains(t, got, "## Stage: data-collection")
		assert.Contains(t, got, "Stage did not complete: kubectl unavailable")
	})

	t.Run("stage without output renders placeholder", func(t *testing.T) {
		got := buildStageContext([]stageOutcome{{stageName: "triage"}})
		assert.Contains(t, got, "No output produced.")
	})

	t.Run("multiple stages joined in order", func(t *testing.T) {
		got := buildStageContext([]stageOutcome{
			{stageName: "first", analysis: "A"},
			{stageName: "second", analysis: "B"},
		})
		assert.Equal(t, "## Stage: first\n\nA\n\n## Stage: second\n\nB", got)
	})
}

func TestExtractFinalAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []stageOutcome
		want     string
	}{
		{
			name:     "empty outcomes returns empty",
			outcomes: nil,
			want:     "",
		},
		{
			name: "single stage with analysis",
			outcomes: []stageOutcome{
				{analysis: "Root cause: OOM"},
			},
			want: "Root cause: OOM",
		},
		{
			name: "returns last stage analysis (reverse search)",
			outcomes: []stageOutcome{
				{analysis: "Stage 1 findings"},
				{analysis: "Stage 2 diagnosis"},
			},
			want: "Stage 2 diagnosis",
		},
		{
			name: "skips empty analysis, returns earlier stage",
			outcomes: []stageOutcome{
				{analysis: "Only this one has analysis"},
				{analysis: ""},
			},
			want: "Only this one has analysis",
		},
		{
			name: "all empty analysis returns empty",
			outcomes: []stageOutcome{
				{analysis: ""},
				{analysis: ""},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFinalAnalysis(tt.outcomes))
		})
	}
}

func TestMapExecToStageStatus(t *testing.T) {
	tests := []struct {
		name   string
		input  agent.ExecutionStatus
		expect stageexecution.Status
	}{
		{"completed", agent.ExecutionStatusCompleted, stageexecution.StatusCompleted},
		{"paused", agent.ExecutionStatusPaused, stageexecution.StatusPaused},
		{"cancelled", agent.ExecutionStatusCancelled, stageexecution.StatusCancelled},
		{"failed", agent.ExecutionStatusFailed, stageexecution.StatusFailed},
		{"pending defaults to failed", agent.ExecutionStatusPending, stageexecution.StatusFailed},
		{"active defaults to failed", agent.ExecutionStatusActive, stageexecution.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, mapExecToStageStatus(tt.input))
		})
	}
}

func TestMapCancellation(t *testing.T) {
	executor := &ChainExecutor{}

	t.Run("active context returns nil", func(t *testing.T) {
		assert.Nil(t, executor.mapCancellation(context.Background()))
	})

	t.Run("cancelled context returns cancelled status", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := executor.mapCancellation(ctx)
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusCancelled, result.Status)
		assert.ErrorIs(t, result.Error, context.Canceled)
	})

	t.Run("deadline exceeded returns failed status", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()

		result := executor.mapCancellation(ctx)
		require.NotNil(t, result)
		assert.Equal(t, alertsession.StatusFailed, result.Status)
		assert.Contains(t, result.Error.Error(), "timed out")
	})
}

func TestRehydrateOutcome(t *testing.T) {
	t.Run("restores analysis from stage output", func(t *testing.T) {
		exec := &ent.StageExecution{
			ID:          "stage-exec-1",
			StageName:   "investigation",
			StageIndex:  2,
			StageOutput: map[string]interface{}{"final_analysis": "disk full"},
		}
		got := rehydrateOutcome(exec)
		assert.Equal(t, "stage-exec-1", got.stageExecutionID)
		assert.Equal(t, "investigation", got.stageName)
		assert.Equal(t, 2, got.stageIndex)
		assert.Equal(t, agent.ExecutionStatusCompleted, got.status)
		assert.Equal(t, "disk full", got.analysis)
	})

	t.Run("nil output yields empty analysis", func(t *testing.T) {
		got := rehydrateOutcome(&ent.StageExecution{ID: "x", StageOutput: nil})
		assert.Equal(t, agent.ExecutionStatusCompleted, got.status)
		assert.Equal(t, "", got.analysis)
	})
}

func TestChildConfigs(t *testing.T) {
	t.Run("replicas expand to numbered copies", func(t *testing.T) {
		stage := config.StageConfig{Agent: "investigator", Replicas: 3}
		configs := childConfigs(stage)
		require.Len(t, configs, 3)
		assert.Equal(t, "investigator-1", configs[0].displayName)
		assert.Equal(t, "investigator-2", configs[1].displayName)
		assert.Equal(t, "investigator-3", configs[2].displayName)
		for _, cc := range configs {
			assert.Equal(t, "investigator", cc.agentRef.Name)
		}
	})

	t.Run("multi-agent keeps declared names and order", func(t *testing.T) {
		stage := config.StageConfig{Agents: []config.StageAgentRef{
			{Name: "LogAnalyzer"},
			{Name: "MetricChecker", LLMProvider: "openai-fast"},
		}}
		configs := childConfigs(stage)
		require.Len(t, configs, 2)
		assert.Equal(t, "LogAnalyzer", configs[0].displayName)
		assert.Equal(t, "MetricChecker", configs[1].displayName)
		assert.Equal(t, "openai-fast", configs[1].agentRef.LLMProvider)
	})
}

func TestParallelAgentLabel(t *testing.T) {
	assert.Equal(t, "investigator",
		parallelAgentLabel(config.StageConfig{Agent: "investigator", Replicas: 3}))
	assert.Equal(t, "LogAnalyzer,MetricChecker",
		parallelAgentLabel(config.StageConfig{Agents: []config.StageAgentRef{
			{Name: "LogAnalyzer"}, {Name: "MetricChecker"},
		}}))
}

func TestAggregateChildStatus(t *testing.T) {
	mk := func(statuses ...agent.ExecutionStatus) []indexedChildOutcome {
		children := make([]indexedChildOutcome, len(statuses))
		for i, s := range statuses {
			children[i] = indexedChildOutcome{index: i, outcome: agentOutcome{status: s}}
		}
		return children
	}

	t.Run("all completed", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusCompleted, agent.ExecutionStatusCompleted),
			config.FailurePolicyAll)
		assert.Equal(t, agent.ExecutionStatusCompleted, got)
	})

	t.Run("paused child pauses the parent regardless of policy", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusCompleted, agent.ExecutionStatusPaused),
			config.FailurePolicyAny)
		assert.Equal(t, agent.ExecutionStatusPaused, got)
	})

	t.Run("all policy fails on a single failure", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusCompleted, agent.ExecutionStatusFailed),
			config.FailurePolicyAll)
		assert.Equal(t, agent.ExecutionStatusFailed, got)
	})

	t.Run("any policy succeeds with one completion", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusFailed, agent.ExecutionStatusCompleted),
			config.FailurePolicyAny)
		assert.Equal(t, agent.ExecutionStatusCompleted, got)
	})

	t.Run("any policy fails when nothing completed", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusFailed, agent.ExecutionStatusFailed),
			config.FailurePolicyAny)
		assert.Equal(t, agent.ExecutionStatusFailed, got)
	})

	t.Run("uniform cancellation surfaces as cancelled", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusCancelled, agent.ExecutionStatusCancelled),
			config.FailurePolicyAll)
		assert.Equal(t, agent.ExecutionStatusCancelled, got)
	})

	t.Run("mixed cancellation and failure surfaces as failed", func(t *testing.T) {
		got := aggregateChildStatus(
			mk(agent.ExecutionStatusCancelled, agent.ExecutionStatusFailed),
			config.FailurePolicyAll)
		assert.Equal(t, agent.ExecutionStatusFailed, got)
	})
}

func TestMergeChildAnalyses(t *testing.T) {
	children := []indexedChildOutcome{
		{index: 0, name: "LogAnalyzer", outcome: agentOutcome{analysis: "errors in app logs"}},
		{index: 1, name: "MetricChecker", outcome: agentOutcome{analysis: ""}},
		{index: 2, name: "Investigator", outcome: agentOutcome{analysis: "CPU throttling"}},
	}

	got := mergeChildAnalyses(children)
	assert.Equal(t, "### LogAnalyzer\n\nerrors in app logs\n\n### Investigator\n\nCPU throttling", got)
}

func TestAggregateChildError(t *testing.T) {
	stage := config.StageConfig{Name: "parallel-investigation", FailurePolicy: config.FailurePolicyAll}
	children := []indexedChildOutcome{
		{index: 0, name: "agent-1", outcome: agentOutcome{status: agent.ExecutionStatusCompleted}},
		{index: 1, name: "agent-2", outcome: agentOutcome{
			status: agent.ExecutionStatusFailed,
			err:    errors.New("iteration limit reached"),
		}},
	}

	t.Run("completed and paused produce no error", func(t *testing.T) {
		assert.NoError(t, aggregateChildError(children, agent.ExecutionStatusCompleted, stage))
		assert.NoError(t, aggregateChildError(children, agent.ExecutionStatusPaused, stage))
	})

	t.Run("failure lists failing children", func(t *testing.T) {
		err := aggregateChildError(children, agent.ExecutionStatusFailed, stage)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1/2 executions failed")
		assert.Contains(t, err.Error(), "policy: all")
		assert.Contains(t, err.Error(), "agent-2 (failed): iteration limit reached")
		assert.NotContains(t, err.Error(), "agent-1 (")
	})
}

func TestFirstPauseMetadata(t *testing.T) {
	meta := map[string]interface{}{"iteration": 7}
	children := []indexedChildOutcome{
		{index: 0, outcome: agentOutcome{status: agent.ExecutionStatusCompleted}},
		{index: 1, outcome: agentOutcome{status: agent.ExecutionStatusPaused, pauseMetadata: meta}},
	}

	assert.Equal(t, meta, firstPauseMetadata(children))
	assert.Nil(t, firstPauseMetadata(children[:1]))
}

func TestCollectChildOutcomes(t *testing.T) {
	ch := make(chan indexedChildOutcome, 3)
	// Deliberately out of order, as goroutines finish in any order
	ch <- indexedChildOutcome{index: 2, name: "c"}
	ch <- indexedChildOutcome{index: 0, name: "a"}
	ch <- indexedChildOutcome{index: 1, name: "b"}
	close(ch)

	got := collectChildOutcomes(ch)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].name)
	assert.Equal(t, "b", got[1].name)
	assert.Equal(t, "c", got[2].name)
}
