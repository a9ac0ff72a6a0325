package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
)

func TestFactory_CreateController(t *testing.T) {
	factory := NewFactory()

	// Minimal execution context for testing
	execCtx := &agent.ExecutionContext{
		SessionID:        "test-session",
		StageExecutionID: "test-stage-exec",
		AgentName:        "test-agent",
	}

	t.Run("react strategy returns ReActController", func(t *testing.T) {
		controller, err := factory.CreateController(config.IterationStrategyReact, execCtx)
		require.NoError(t, err)
		require.NotNil(t, controller)

		c, ok := controller.(*ReActController)
		require.True(t, ok, "expected ReActController")
		assert.False(t, c.stageFraming)
	})

	t.Run("empty strategy defaults to ReActController", func(t *testing.T) {
		controller, err := factory.CreateController("", execCtx)
		require.NoError(t, err)
		require.NotNil(t, controller)

		_, ok := controller.(*ReActController)
		assert.True(t, ok, "expected ReActController")
	})

	t.Run("react-stage strategy returns stage-framed ReActController", func(t *testing.T) {
		controller, err := factory.CreateController(config.IterationStrategyReactStage, execCtx)
		require.NoError(t, err)
		require.NotNil(t, controller)

		c, ok := controller.(*ReActController)
		require.True(t, ok, "expected ReActController")
		assert.True(t, c.stageFraming)
	})

	t.Run("react-final-analysis strategy returns FinalAnalysisController", func(t *testing.T) {
		controller, err := factory.CreateController(config.IterationStrategyReactFinalAnalysis, execCtx)
		require.NoError(t, err)
		require.NotNil(t, controller)

		_, ok := controller.(*FinalAnalysisController)
		assert.True(t, ok, "expected FinalAnalysisController")
	})

	t.Run("unknown strategy returns error", func(t *testing.T) {
		controller, err := factory.CreateController(config.IterationStrategy("invalid"), execCtx)
		require.Error(t, err)
		assert.Nil(t, controller)
		assert.Contains(t, err.Error(), "unknown iteration strategy")
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("typo in strategy returns error", func(t *testing.T) {
		typo := config.IterationStrategy("raect")
		controller, err := factory.CreateController(typo, execCtx)

		require.Error(t, err)
		assert.Nil(t, controller)
		assert.Contains(t, err.Error(), "raect")
	})
}
