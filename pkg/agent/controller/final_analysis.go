package controller

import (
	"context"
	"fmt"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

// FinalAnalysisController produces the closing analysis of a chain from the
// accumulated stage outputs. It makes a single tool-less LLM call: all
// investigation happened in earlier stages, this stage only synthesizes.
type FinalAnalysisController struct{}

// NewFinalAnalysisController creates the final analysis controller.
func NewFinalAnalysisController() *FinalAnalysisController {
	return &FinalAnalysisController{}
}

// Run performs the single synthesis call.
func (c *FinalAnalysisController) Run(
	ctx context.Context,
	execCtx *agent.ExecutionContext,
	prevStageContext string,
) (*agent.ExecutionResult, error) {
	if execCtx.PromptBuilder == nil {
		return nil, fmt.Errorf("PromptBuilder is nil: cannot build conversation")
	}

	totalUsage := agent.TokenUsage{}
	if result := checkControlFlags(ctx, execCtx, 0, totalUsage); result != nil {
		return result, nil
	}

	messages := execCtx.PromptBuilder.BuildFinalAnalysisMessages(execCtx, prevStageContext)

	callCtx, cancel := context.WithTimeout(ctx, execCtx.Config.IterationTimeout)
	defer cancel()

	completion, err := execCtx.LLMClient.Complete(callCtx, &agent.CompletionRequest{
		SessionID:        execCtx.SessionID,
		StageExecutionID: execCtx.StageExecutionID,
		Messages:         messages,
		Provider:         execCtx.Config.LLMProvider,
		ProviderName:     execCtx.Config.LLMProviderName,
		InteractionType:  interactionTypeFinalAnalysis,
		StepDescription:  "Final analysis",
	})
	if err != nil {
		return nil, fmt.Errorf("final analysis call failed: %w", err)
	}
	totalUsage.Add(completion.Usage)

	if completion.Content == "" {
		return &agent.ExecutionResult{
			Status:     agent.ExecutionStatusFailed,
			Error:      fmt.Errorf("final analysis returned empty content"),
			TokensUsed: totalUsage,
		}, nil
	}

	persistIteration(ctx, execCtx, 1)
	return &agent.ExecutionResult{
		Status:        agent.ExecutionStatusCompleted,
		FinalAnalysis: completion.Content,
		TokensUsed:    totalUsage,
	}, nil
}
