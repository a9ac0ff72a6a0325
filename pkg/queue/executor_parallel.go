package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

// childConfig pairs an agent reference with the display name of its child
// stage execution row. Replica children are named {base}-{k}.
type childConfig struct {
	agentRef    config.StageAgentRef
	displayName string
}

// indexedChildOutcome pairs a child's outcome with its launch index so
// results can be reported in launch order regardless of completion order.
type indexedChildOutcome struct {
	index   int
	name    string
	outcome agentOutcome
}

// executeParallelStage fans a stage out to N concurrent agent executions:
// one parent stage execution row plus one child row per agent. The parent's
// status is the policy aggregate of the children, with paused taking
// precedence so a resumed session can finish the interrupted children.
func (e *ChainExecutor) executeParallelStage(
	ctx context.Context,
	session *ent.AlertSession,
	chain *config.ChainConfig,
	stageCfg config.StageConfig,
	stageIndex int,
	existing *ent.StageExecution,
	prevContext string,
	runbookContent string,
) stageOutcome {
	parallelType := stageexecution.ParallelType(stageCfg.ParallelType())
	parent, resumed, err := e.stageRow(ctx, existing, history.CreateStageExecutionParams{
		SessionID:    session.ID,
		StageIndex:   stageIndex,
		StageName:    stageCfg.Name,
		Agent:        parallelAgentLabel(stageCfg),
		ParallelType: &parallelType,
	})
	if err != nil {
		return stageOutcome{
			stageName:  stageCfg.Name,
			stageIndex: stageIndex,
			status:     agent.ExecutionStatusFailed,
			err:        fmt.Errorf("failed to create parallel stage execution: %w", err),
		}
	}

	if err := e.store.StartStageExecution(ctx, parent.ID); err != nil {
		return stageOutcome{
			stageExecutionID: parent.ID,
			stageName:        stageCfg.Name,
			stageIndex:       stageIndex,
			status:           agent.ExecutionStatusFailed,
			err:              fmt.Errorf("failed to mark parallel stage active: %w", err),
		}
	}
	e.publishStageStatus(ctx, session.ID, parent.ID, stageCfg.Name, stageIndex,
		parallelAgentLabel(stageCfg), stageexecution.StatusActive)

	configs := childConfigs(stageCfg)

	// On resume, match prior children by display name so completed ones are
	// not re-run and interrupted ones continue their conversation.
	priorChildren := make(map[string]*ent.StageExecution)
	if resumed {
		children, childErr := e.store.GetChildStageExecutions(ctx, parent.ID)
		if childErr != nil {
			return stageOutcome{
				stageExecutionID: parent.ID,
				stageName:        stageCfg.Name,
				stageIndex:       stageIndex,
				status:           agent.ExecutionStatusFailed,
				err:              fmt.Errorf("failed to load prior child executions: %w", childErr),
			}
		}
		for _, child := range children {
			priorChildren[child.Agent] = child
		}
	}

	results := make(chan indexedChildOutcome, len(configs))
	var wg sync.WaitGroup
	for i, cc := range configs {
		wg.Add(1)
		go func(idx int, cc childConfig) {
			defer wg.Done()
			results <- indexedChildOutcome{
				index:   idx,
				name:    cc.displayName,
				outcome: e.executeChild(ctx, session, chain, stageCfg, stageIndex, idx, parent.ID, cc, priorChildren[cc.displayName], prevContext, runbookContent),
			}
		}(i, cc)
	}
	wg.Wait()
	close(results)

	children := collectChildOutcomes(results)
	status := aggregateChildStatus(children, stageCfg.EffectiveFailurePolicy())
	analysis := mergeChildAnalyses(children)
	aggErr := aggregateChildError(children, status, stageCfg)

	e.completeStageRow(parent.ID, status, analysis, aggErr)

	return stageOutcome{
		stageExecutionID: parent.ID,
		stageName:        stageCfg.Name,
		stageIndex:       stageIndex,
		status:           status,
		analysis:         analysis,
		pauseMetadata:    firstPauseMetadata(children),
		err:              aggErr,
	}
}

// executeChild runs one agent of a parallel stage against its own child
// stage execution row.
func (e *ChainExecutor) executeChild(
	ctx context.Context,
	session *ent.AlertSession,
	chain *config.ChainConfig,
	stageCfg config.StageConfig,
	stageIndex int,
	childIndex int,
	parentID string,
	cc childConfig,
	prior *ent.StageExecution,
	prevContext string,
	runbookContent string,
) agentOutcome {
	// Already finished in a previous run of this session
	if prior != nil && prior.Status == stageexecution.StatusCompleted {
		rehydrated := rehydrateOutcome(prior)
		return agentOutcome{
			status:   agent.ExecutionStatusCompleted,
			analysis: rehydrated.analysis,
		}
	}

	row, resume, err := e.childRow(ctx, prior, history.CreateStageExecutionParams{
		SessionID:  session.ID,
		StageIndex: stageIndex,
		StageName:  stageCfg.Name,
		Agent:      cc.displayName,
		ParentID:   &parentID,
	})
	if err != nil {
		return agentOutcome{
			status: agent.ExecutionStatusFailed,
			err:    fmt.Errorf("failed to create child stage execution: %w", err),
		}
	}

	e.publishStageStatus(ctx, session.ID, row.ID, stageCfg.Name, stageIndex, cc.displayName, stageexecution.StatusActive)

	ar := e.runAgent(ctx, runAgentInput{
		session:        session,
		chain:          chain,
		stageCfg:       stageCfg,
		agentRef:       cc.agentRef,
		displayName:    cc.displayName,
		agentIndex:     childIndex,
		row:            row,
		resume:         resume,
		prevContext:    prevContext,
		runbookContent: runbookContent,
	})

	e.completeStageRow(row.ID, ar.status, ar.analysis, ar.err)
	e.publishStageStatus(context.Background(), session.ID, row.ID, stageCfg.Name, stageIndex,
		cc.displayName, mapExecToStageStatus(ar.status))
	return ar
}

// childRow mirrors stageRow for child executions.
func (e *ChainExecutor) childRow(ctx context.Context, prior *ent.StageExecution, params history.CreateStageExecutionParams) (*ent.StageExecution, bool, error) {
	if prior != nil {
		return prior, true, nil
	}
	row, err := e.store.CreateStageExecution(ctx, params)
	if err != nil {
		return nil, false, err
	}
	return row, false, nil
}

// ────────────────────────────────────────────────────────────
// Fan-out configuration
// ────────────────────────────────────────────────────────────

// childConfigs builds one entry per concurrent execution: the stage's
// agents for multi-agent stages, or N copies named {base}-{k} for
// replicated stages.
func childConfigs(stageCfg config.StageConfig) []childConfig {
	if stageCfg.Replicas > 1 {
		configs := make([]childConfig, stageCfg.Replicas)
		for i := 0; i < stageCfg.Replicas; i++ {
			configs[i] = childConfig{
				agentRef:    config.StageAgentRef{Name: stageCfg.Agent},
				displayName: fmt.Sprintf("%s-%d", stageCfg.Agent, i+1),
			}
		}
		return configs
	}

	configs := make([]childConfig, len(stageCfg.Agents))
	for i, ref := range stageCfg.Agents {
		configs[i] = childConfig{agentRef: ref, displayName: ref.Name}
	}
	return configs
}

// parallelAgentLabel is the agent column value for parent rows of parallel
// stages.
func parallelAgentLabel(stageCfg config.StageConfig) string {
	if stageCfg.Replicas > 1 {
		return stageCfg.Agent
	}
	names := make([]string, len(stageCfg.Agents))
	for i, ref := range stageCfg.Agents {
		names[i] = ref.Name
	}
	return strings.Join(names, ",")
}

// ────────────────────────────────────────────────────────────
// Aggregation
// ────────────────────────────────────────────────────────────

// collectChildOutcomes drains the result channel and returns outcomes
// sorted by launch index.
func collectChildOutcomes(ch <-chan indexedChildOutcome) []indexedChildOutcome {
	var outcomes []indexedChildOutcome
	for ico := range ch {
		outcomes = append(outcomes, ico)
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].index < outcomes[j].index
	})
	return outcomes
}

// aggregateChildStatus determines the parent stage status from the child
// outcomes and the failure policy.
//
// Precedence: any paused child pauses the parent (the session must come
// back to finish it) regardless of policy. Otherwise "any" completes the
// parent when at least one child completed; "all" and "continue" require
// every child to complete.
func aggregateChildStatus(children []indexedChildOutcome, policy config.FailurePolicy) agent.ExecutionStatus {
	var completed, paused, cancelled int
	for _, c := range children {
		switch c.outcome.status {
		case agent.ExecutionStatusCompleted:
			completed++
		case agent.ExecutionStatusPaused:
			paused++
		case agent.ExecutionStatusCancelled:
			cancelled++
		}
	}

	if paused > 0 {
		return agent.ExecutionStatusPaused
	}

	switch policy {
	case config.FailurePolicyAny:
		if completed > 0 {
			return agent.ExecutionStatusCompleted
		}
	default: // all, continue
		if completed == len(children) {
			return agent.ExecutionStatusCompleted
		}
	}

	// Uniform cancellation surfaces as cancelled; mixed failures as failed.
	if cancelled == len(children) {
		return agent.ExecutionStatusCancelled
	}
	return agent.ExecutionStatusFailed
}

// mergeChildAnalyses renders each completed child's analysis labeled by its
// agent name, in launch order.
func mergeChildAnalyses(children []indexedChildOutcome) string {
	var sb strings.Builder
	for _, c := range children {
		if c.outcome.analysis == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n\n%s", c.name, c.outcome.analysis)
	}
	return sb.String()
}

// aggregateChildError builds a descriptive error for non-completed parallel
// stages, listing each child that did not complete.
func aggregateChildError(children []indexedChildOutcome, status agent.ExecutionStatus, stageCfg config.StageConfig) error {
	if status == agent.ExecutionStatusCompleted || status == agent.ExecutionStatusPaused {
		return nil
	}

	var nonSuccess int
	for _, c := range children {
		if c.outcome.status != agent.ExecutionStatusCompleted {
			nonSuccess++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "parallel stage failed: %d/%d executions failed (policy: %s)",
		nonSuccess, len(children), stageCfg.EffectiveFailurePolicy())
	sb.WriteString("\n\nFailed agents:")
	for _, c := range children {
		if c.outcome.status == agent.ExecutionStatusCompleted {
			continue
		}
		errMsg := "unknown error"
		if c.outcome.err != nil {
			errMsg = c.outcome.err.Error()
		}
		fmt.Fprintf(&sb, "\n  - %s (%s): %s", c.name, c.outcome.status, errMsg)
	}
	return fmt.Errorf("%s", sb.String())
}

// firstPauseMetadata returns the pause metadata of the first paused child,
// if any. The parent carries it onto the session so resume diagnostics
// point at the interrupted loop.
func firstPauseMetadata(children []indexedChildOutcome) map[string]interface{} {
	for _, c := range children {
		if c.outcome.status == agent.ExecutionStatusPaused {
			return c.outcome.pauseMetadata
		}
	}
	return nil
}
