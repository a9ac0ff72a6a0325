package controller

import (
	"context"
	"fmt"

	"github.com/tarsy-dev/tarsy/pkg/agent"
)

// maxFormatRetries is the budget for consecutive malformed LLM responses.
// Format retries do not consume investigation iterations: a model that
// stumbles over the ReAct format gets corrective feedback, a model that
// never recovers fails the stage.
const maxFormatRetries = 3

// Interaction type labels persisted with each LLM call.
const (
	interactionTypeInvestigation = "investigation"
	interactionTypeFinalAnalysis = "final_analysis"
)

// ReActController implements the Reason + Act loop with text-based tool
// calling. This is the primary investigation strategy and works with every
// LLM provider.
//
// With stageFraming set, the prompt asks for structured findings for the
// next chain stage instead of a finished incident analysis.
type ReActController struct {
	stageFraming bool
}

// NewReActController creates the standard ReAct investigation controller.
func NewReActController() *ReActController {
	return &ReActController{}
}

// NewReActStageController creates a ReAct controller whose final answer is
// framed as input for the next chain stage.
func NewReActStageController() *ReActController {
	return &ReActController{stageFraming: true}
}

// Run executes the ReAct iteration loop.
func (c *ReActController) Run(
	ctx context.Context,
	execCtx *agent.ExecutionContext,
	prevStageContext string,
) (*agent.ExecutionResult, error) {
	maxIter := execCtx.Config.MaxIterations
	totalUsage := agent.TokenUsage{}
	state := &agent.IterationState{MaxIterations: maxIter}

	// 1. Get available tools (needed for prompt and validation)
	tools, err := execCtx.ToolExecutor.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	if execCtx.PromptBuilder == nil {
		return nil, fmt.Errorf("PromptBuilder is nil: cannot build conversation")
	}

	// 2. Build the conversation: replay the persisted one on resume, or
	// start fresh via the prompt builder.
	var messages []agent.ConversationMessage
	iteration := 0
	if execCtx.Resume {
		messages, iteration, err = restoreConversation(ctx, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to restore conversation: %w", err)
		}
		// The restored iteration count already spent the previous run's
		// budget. The cap is per-run: a resumed stage gets a fresh
		// allowance on top of what it consumed, so a stage paused at the
		// limit issues its next call at iteration current+1 instead of
		// immediately re-pausing.
		if len(messages) > 0 {
			maxIter = iteration + execCtx.Config.MaxIterations
			state.MaxIterations = maxIter
		}
	}
	if len(messages) == 0 {
		iteration = 0
		if c.stageFraming {
			messages = execCtx.PromptBuilder.BuildStageAnalysisMessages(execCtx, prevStageContext, tools)
		} else {
			messages = execCtx.PromptBuilder.BuildReActMessages(execCtx, prevStageContext, tools)
		}
	}

	toolNames := buildToolNameSet(tools)
	formatRetries := 0

	for iteration < maxIter {
		state.CurrentIteration = iteration + 1

		if state.ShouldAbortOnTimeouts() {
			return failedResult(state, totalUsage), nil
		}

		// Cooperative cancellation/pause, polled between iterations
		if result := checkControlFlags(ctx, execCtx, iteration, totalUsage); result != nil {
			return result, nil
		}

		// Per-iteration timeout
		iterCtx, iterCancel := context.WithTimeout(ctx, execCtx.Config.IterationTimeout)

		completion, err := execCtx.LLMClient.Complete(iterCtx, &agent.CompletionRequest{
			SessionID:        execCtx.SessionID,
			StageExecutionID: execCtx.StageExecutionID,
			Messages:         messages,
			Provider:         execCtx.Config.LLMProvider,
			ProviderName:     execCtx.Config.LLMProviderName,
			InteractionType:  interactionTypeInvestigation,
			StepDescription:  fmt.Sprintf("ReAct iteration %d", iteration+1),
		})
		if err != nil {
			iterCancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			state.RecordFailure(err.Error(), isTimeoutError(err))
			observation := FormatErrorObservation(err)
			messages = append(messages, agent.ConversationMessage{Role: agent.RoleUser, Content: observation})
			iteration++
			persistIteration(ctx, execCtx, iteration)
			continue
		}

		totalUsage.Add(completion.Usage)
		messages = append(messages, agent.ConversationMessage{
			Role:    agent.RoleAssistant,
			Content: completion.Content,
		})

		parsed := ParseReActResponse(completion.Content)
		state.RecordSuccess()

		switch {
		case parsed.IsFinalAnswer:
			iterCancel()
			return &agent.ExecutionResult{
				Status:        agent.ExecutionStatusCompleted,
				FinalAnalysis: parsed.FinalAnswer,
				TokensUsed:    totalUsage,
			}, nil

		case parsed.HasAction && !parsed.IsUnknownTool:
			if !toolNames[parsed.Action] {
				// Tool parsed cleanly but isn't in our tool list
				observation := FormatUnknownToolError(parsed.Action,
					fmt.Sprintf("Unknown tool '%s'", parsed.Action), tools)
				messages = append(messages, agent.ConversationMessage{Role: agent.RoleUser, Content: observation})
			} else {
				result, toolErr := execCtx.ToolExecutor.Execute(iterCtx, agent.ToolCall{
					ID:        generateCallID(),
					Name:      parsed.Action,
					Arguments: parsed.ActionInput,
				})

				var observation string
				if toolErr != nil {
					state.RecordFailure(toolErr.Error(), isTimeoutError(toolErr))
					observation = FormatToolErrorObservation(toolErr)
				} else {
					observation = FormatObservation(result)
				}
				messages = append(messages, agent.ConversationMessage{Role: agent.RoleUser, Content: observation})
			}
			formatRetries = 0
			iteration++
			persistIteration(ctx, execCtx, iteration)

		case parsed.IsUnknownTool:
			observation := FormatUnknownToolError(parsed.Action, parsed.ErrorMessage, tools)
			messages = append(messages, agent.ConversationMessage{Role: agent.RoleUser, Content: observation})
			formatRetries = 0
			iteration++
			persistIteration(ctx, execCtx, iteration)

		default:
			// Malformed response — corrective feedback, bounded by the
			// format retry budget instead of the iteration budget.
			formatRetries++
			if formatRetries >= maxFormatRetries {
				iterCancel()
				return &agent.ExecutionResult{
					Status: agent.ExecutionStatusFailed,
					Error: fmt.Errorf("LLM produced %d consecutive malformed responses: %s",
						formatRetries, parsed.ErrorMessage),
					TokensUsed: totalUsage,
				}, nil
			}
			feedback := GetFormatErrorFeedback(parsed)
			messages = append(messages, agent.ConversationMessage{Role: agent.RoleUser, Content: feedback})
		}

		iterCancel()
	}

	// Iteration cap reached — pause instead of discarding the work. The
	// conversation is already persisted, so a resumed session picks up where
	// this one stopped.
	if state.LastInteractionFailed {
		return &agent.ExecutionResult{
			Status: agent.ExecutionStatusFailed,
			Error: fmt.Errorf("max iterations (%d) reached with last interaction failed: %s",
				maxIter, state.LastErrorMessage),
			TokensUsed: totalUsage,
		}, nil
	}
	return pausedResult("max_iterations_reached", iteration,
		fmt.Sprintf("Investigation paused after reaching the %d iteration limit; resume to continue.", maxIter),
		totalUsage), nil
}
