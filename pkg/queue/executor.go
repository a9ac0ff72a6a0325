package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	"github.com/tarsy-dev/tarsy/pkg/agent"
	"github.com/tarsy-dev/tarsy/pkg/agent/controller"
	"github.com/tarsy-dev/tarsy/pkg/agent/prompt"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"github.com/tarsy-dev/tarsy/pkg/mcp"
	"github.com/tarsy-dev/tarsy/pkg/runbook"
	"github.com/tarsy-dev/tarsy/pkg/services"
)

// RunbookResolver fetches runbook content for a session. Implemented by
// runbook.Service.
type RunbookResolver interface {
	Resolve(ctx context.Context, alertRunbookURL string) (string, error)
}

var _ RunbookResolver = (*runbook.Service)(nil)

// ChainExecutor implements SessionExecutor using the agent framework.
// It runs the session's chain stage by stage, writing progress to the
// history store and publishing stage events along the way.
type ChainExecutor struct {
	cfg           *config.Config
	store         *history.Store
	llmClient     agent.LLMClient
	publisher     *events.Publisher
	agentFactory  *agent.AgentFactory
	promptBuilder *prompt.Builder
	mcpFactory    *mcp.ClientFactory
	runbooks      RunbookResolver
	warnings      *services.SystemWarningsService
}

// NewChainExecutor creates a session executor.
// publisher may be nil (event delivery disabled).
// mcpFactory may be nil (MCP disabled — agents get a stub tool executor).
// runbooks may be nil (runbook fetching disabled).
// warnings may be nil (warning surfacing disabled).
func NewChainExecutor(
	cfg *config.Config,
	store *history.Store,
	llmClient agent.LLMClient,
	publisher *events.Publisher,
	mcpFactory *mcp.ClientFactory,
	runbooks RunbookResolver,
	warnings *services.SystemWarningsService,
) *ChainExecutor {
	return &ChainExecutor{
		cfg:           cfg,
		store:         store,
		llmClient:     llmClient,
		publisher:     publisher,
		agentFactory:  agent.NewAgentFactory(controller.NewFactory()),
		promptBuilder: prompt.NewBuilder(cfg.MCPServerRegistry),
		mcpFactory:    mcpFactory,
		runbooks:      runbooks,
		warnings:      warnings,
	}
}

// stageOutcome captures the result of one chain stage (single-agent or the
// aggregate of a parallel stage).
type stageOutcome struct {
	stageExecutionID string
	stageName        string
	stageIndex       int
	status           agent.ExecutionStatus
	analysis         string
	pauseMetadata    map[string]interface{}
	err              error
}

// Execute runs the session through its chain. Stages run sequentially;
// stages a resumed session already completed are skipped with their
// persisted output rehydrated into the chain context.
func (e *ChainExecutor) Execute(ctx context.Context, session *ent.AlertSession) *ExecutionResult {
	logger := slog.With(
		"session_id", session.ID,
		"chain_id", session.ChainID,
		"alert_type", session.AlertType,
	)
	logger.Info("Chain executor: starting execution")

	chain, err := e.cfg.GetChain(session.ChainID)
	if err != nil {
		logger.Error("Failed to resolve chain config", "error", err)
		return &ExecutionResult{
			Status: alertsession.StatusFailed,
			Error:  fmt.Errorf("chain %q not found: %w", session.ChainID, err),
		}
	}
	if len(chain.Stages) == 0 {
		return &ExecutionResult{
			Status: alertsession.StatusFailed,
			Error:  fmt.Errorf("chain %q has no stages", session.ChainID),
		}
	}

	runbookContent := e.fetchRunbook(ctx, session)

	// Prior stage executions: present when this session was paused or
	// orphaned and is now being picked up again.
	prior, err := e.priorStages(ctx, session.ID)
	if err != nil {
		logger.Error("Failed to load prior stage executions", "error", err)
		return &ExecutionResult{
			Status: alertsession.StatusFailed,
			Error:  fmt.Errorf("loading prior stage executions: %w", err),
		}
	}

	var outcomes []stageOutcome
	for i, stageCfg := range chain.Stages {
		if r := e.mapCancellation(ctx); r != nil {
			return r
		}

		existing := prior[i]
		if existing != nil && existing.Status == stageexecution.StatusCompleted {
			logger.Info("Skipping completed stage", "stage_name", stageCfg.Name, "stage_index", i)
			outcomes = append(outcomes, rehydrateOutcome(existing))
			continue
		}

		prevContext := buildStageContext(outcomes)
		var sr stageOutcome
		if stageCfg.IsParallel() {
			sr = e.executeParallelStage(ctx, session, chain, stageCfg, i, existing, prevContext, runbookContent)
		} else {
			sr = e.executeSingleStage(ctx, session, chain, stageCfg, i, existing, prevContext, runbookContent)
		}

		agentLabel := stageCfg.Agent
		if stageCfg.IsParallel() {
			agentLabel = parallelAgentLabel(stageCfg)
		}
		// Stage terminal event (background context — ctx may be cancelled)
		e.publishStageStatus(context.Background(), session.ID, sr.stageExecutionID,
			stageCfg.Name, i, agentLabel, mapExecToStageStatus(sr.status))

		switch sr.status {
		case agent.ExecutionStatusCompleted:
			outcomes = append(outcomes, sr)

		case agent.ExecutionStatusPaused:
			logger.Info("Stage paused, suspending session", "stage_name", sr.stageName)
			return &ExecutionResult{
				Status:        alertsession.StatusPaused,
				PauseMetadata: sr.pauseMetadata,
			}

		case agent.ExecutionStatusCancelled:
			return &ExecutionResult{
				Status: alertsession.StatusCancelled,
				Error:  sr.err,
			}

		default: // failed
			if stageCfg.EffectiveFailurePolicy() == config.FailurePolicyContinue {
				logger.Warn("Stage failed, continuing per failure policy",
					"stage_name", sr.stageName, "error", sr.err)
				outcomes = append(outcomes, sr)
				continue
			}
			logger.Warn("Stage failed, stopping chain",
				"stage_name", sr.stageName, "error", sr.err)
			return &ExecutionResult{
				Status: alertsession.StatusFailed,
				Error:  sr.err,
			}
		}
	}

	finalAnalysis := extractFinalAnalysis(outcomes)
	logger.Info("Chain executor: execution completed",
		"stages_completed", len(outcomes),
		"has_final_analysis", finalAnalysis != "",
	)
	return &ExecutionResult{
		Status:        alertsession.StatusCompleted,
		FinalAnalysis: finalAnalysis,
	}
}

// executeSingleStage runs a single-agent stage, creating (or resuming) its
// stage execution row and persisting the terminal state.
func (e *ChainExecutor) executeSingleStage(
	ctx context.Context,
	session *ent.AlertSession,
	chain *config.ChainConfig,
	stageCfg config.StageConfig,
	stageIndex int,
	existing *ent.StageExecution,
	prevContext string,
	runbookContent string,
) stageOutcome {
	agentName := stageCfg.Agent
	row, resume, err := e.stageRow(ctx, existing, history.CreateStageExecutionParams{
		SessionID:  session.ID,
		StageIndex: stageIndex,
		StageName:  stageCfg.Name,
		Agent:      agentName,
	})
	if err != nil {
		return stageOutcome{
			stageName:  stageCfg.Name,
			stageIndex: stageIndex,
			status:     agent.ExecutionStatusFailed,
			err:        fmt.Errorf("failed to create stage execution: %w", err),
		}
	}

	e.publishStageStatus(ctx, session.ID, row.ID, stageCfg.Name, stageIndex, agentName, stageexecution.StatusActive)

	ar := e.runAgent(ctx, runAgentInput{
		session:        session,
		chain:          chain,
		stageCfg:       stageCfg,
		agentRef:       config.StageAgentRef{Name: agentName},
		displayName:    agentName,
		agentIndex:     0,
		row:            row,
		resume:         resume,
		prevContext:    prevContext,
		runbookContent: runbookContent,
	})

	e.completeStageRow(row.ID, ar.status, ar.analysis, ar.err)

	return stageOutcome{
		stageExecutionID: row.ID,
		stageName:        stageCfg.Name,
		stageIndex:       stageIndex,
		status:           ar.status,
		analysis:         ar.analysis,
		pauseMetadata:    ar.pauseMetadata,
		err:              ar.err,
	}
}

// agentOutcome is the result of one agent execution on one stage row.
type agentOutcome struct {
	status        agent.ExecutionStatus
	analysis      string
	pauseMetadata map[string]interface{}
	err           error
}

// runAgentInput groups the parameters for runAgent.
type runAgentInput struct {
	session        *ent.AlertSession
	chain          *config.ChainConfig
	stageCfg       config.StageConfig
	agentRef       config.StageAgentRef
	displayName    string // differs from agentRef.Name for replica children
	agentIndex     int
	row            *ent.StageExecution
	resume         bool
	prevContext    string
	runbookContent string
}

// runAgent resolves the agent configuration, wires its tool executor, and
// runs the agent against the given stage execution row.
func (e *ChainExecutor) runAgent(ctx context.Context, in runAgentInput) agentOutcome {
	logger := slog.With(
		"session_id", in.session.ID,
		"stage_execution_id", in.row.ID,
		"agent_name", in.displayName,
	)

	resolved, err := agent.ResolveAgentConfig(e.cfg, in.chain, in.stageCfg, in.agentRef)
	if err != nil {
		logger.Error("Failed to resolve agent config", "error", err)
		return agentOutcome{
			status: agent.ExecutionStatusFailed,
			err:    fmt.Errorf("failed to resolve agent config: %w", err),
		}
	}

	toolExecutor, failedServers := e.createToolExecutor(ctx, in.session.ID, in.row.ID, resolved.MCPServers, logger)
	defer func() { _ = toolExecutor.Close() }()

	execCtx := &agent.ExecutionContext{
		SessionID:        in.session.ID,
		StageExecutionID: in.row.ID,
		AgentName:        in.displayName,
		AgentIndex:       in.agentIndex,
		AlertData:        in.session.AlertData,
		AlertType:        in.session.AlertType,
		RunbookContent:   in.runbookContent,
		Config:           resolved,
		LLMClient:        e.llmClient,
		ToolExecutor:     toolExecutor,
		History:          e.progressStore(in.session.ID, in.row.ID, resolved.MaxIterations),
		PromptBuilder:    e.promptBuilder,
		Resume:           in.resume,
		FailedServers:    failedServers,
	}

	agentInstance, err := e.agentFactory.CreateAgent(execCtx)
	if err != nil {
		logger.Error("Failed to create agent", "error", err)
		return agentOutcome{
			status: agent.ExecutionStatusFailed,
			err:    fmt.Errorf("failed to create agent: %w", err),
		}
	}

	result, err := agentInstance.Execute(ctx, execCtx, in.prevContext)
	if err != nil {
		logger.Error("Agent execution error", "error", err)
		return agentOutcome{
			status: agent.ExecutionStatusFailed,
			err:    err,
		}
	}

	return agentOutcome{
		status:        result.Status,
		analysis:      result.FinalAnalysis,
		pauseMetadata: result.PauseMetadata,
		err:           result.Error,
	}
}

// ────────────────────────────────────────────────────────────
// Stage row helpers
// ────────────────────────────────────────────────────────────

// stageRow returns the stage execution row to run against: the existing
// non-completed row (resume) or a freshly created one.
func (e *ChainExecutor) stageRow(ctx context.Context, existing *ent.StageExecution, params history.CreateStageExecutionParams) (*ent.StageExecution, bool, error) {
	if existing != nil {
		return existing, true, nil
	}
	row, err := e.store.CreateStageExecution(ctx, params)
	if err != nil {
		return nil, false, err
	}
	return row, false, nil
}

// completeStageRow persists the stage's terminal (or paused) state. Uses a
// background context: the session context may already be cancelled.
func (e *ChainExecutor) completeStageRow(stageExecutionID string, status agent.ExecutionStatus, analysis string, execErr error) {
	completion := history.StageCompletion{}
	if analysis != "" {
		completion.Output = map[string]interface{}{"final_analysis": analysis}
	}
	if execErr != nil {
		msg := execErr.Error()
		completion.ErrorMessage = &msg
	}
	if err := e.store.CompleteStageExecution(context.Background(), stageExecutionID, mapExecToStageStatus(status), completion); err != nil {
		slog.Error("Failed to complete stage execution",
			"stage_execution_id", stageExecutionID, "error", err)
	}
}

// priorStages returns the session's top-level stage executions keyed by
// stage index.
func (e *ChainExecutor) priorStages(ctx context.Context, sessionID string) (map[int]*ent.StageExecution, error) {
	execs, err := e.store.GetStageExecutions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]*ent.StageExecution, len(execs))
	for _, exec := range execs {
		byIndex[exec.StageIndex] = exec
	}
	return byIndex, nil
}

// rehydrateOutcome reconstructs a completed stage's outcome from its
// persisted row, so resumed sessions rebuild the chain context without
// re-running the stage.
func rehydrateOutcome(exec *ent.StageExecution) stageOutcome {
	analysis := ""
	if exec.StageOutput != nil {
		if s, ok := exec.StageOutput["final_analysis"].(string); ok {
			analysis = s
		}
	}
	return stageOutcome{
		stageExecutionID: exec.ID,
		stageName:        exec.StageName,
		stageIndex:       exec.StageIndex,
		status:           agent.ExecutionStatusCompleted,
		analysis:         analysis,
	}
}

// ────────────────────────────────────────────────────────────
// Collaborator wiring
// ────────────────────────────────────────────────────────────

// fetchRunbook resolves the session's runbook URL to content. Fail-open:
// on error the investigation proceeds without a runbook and a system
// warning is recorded.
func (e *ChainExecutor) fetchRunbook(ctx context.Context, session *ent.AlertSession) string {
	if e.runbooks == nil || session.RunbookURL == nil || *session.RunbookURL == "" {
		return ""
	}
	content, err := e.runbooks.Resolve(ctx, *session.RunbookURL)
	if err != nil {
		slog.Warn("Runbook fetch failed, continuing without runbook",
			"session_id", session.ID, "runbook_url", *session.RunbookURL, "error", err)
		if e.warnings != nil {
			e.warnings.AddWarning(services.WarningCategoryRunbook,
				fmt.Sprintf("Failed to fetch runbook for session %s", session.ID),
				err.Error(), "")
		}
		return ""
	}
	return content
}

// createToolExecutor creates an MCP tool executor attributed to the stage,
// or falls back to a stub when MCP is disabled. Servers that failed to
// initialize are surfaced as system warnings and passed to the prompt.
func (e *ChainExecutor) createToolExecutor(
	ctx context.Context,
	sessionID, stageExecutionID string,
	serverIDs []string,
	logger *slog.Logger,
) (agent.ToolExecutor, map[string]string) {
	if e.mcpFactory == nil || len(serverIDs) == 0 {
		return agent.NewStubToolExecutor(nil), nil
	}

	mcpExecutor, mcpClient, err := e.mcpFactory.CreateToolExecutor(ctx, sessionID, serverIDs, nil)
	if err != nil {
		logger.Warn("Failed to create MCP tool executor, using stub", "error", err)
		return agent.NewStubToolExecutor(nil), nil
	}

	var failedServers map[string]string
	if mcpClient != nil {
		failedServers = mcpClient.FailedServers()
	}
	for serverID, msg := range failedServers {
		if e.warnings != nil {
			e.warnings.AddWarning(services.WarningCategoryMCPInit,
				fmt.Sprintf("MCP server %q failed to initialize", serverID), msg, serverID)
		}
	}
	return mcpExecutor.WithStage(stageExecutionID), failedServers
}

// ────────────────────────────────────────────────────────────
// Progress store
// ────────────────────────────────────────────────────────────

// progressStore wraps the history store so iteration checkpoints also emit
// session.progress events for live dashboards.
type iterationProgressStore struct {
	agent.StageStore
	publisher        *events.Publisher
	sessionID        string
	stageExecutionID string
	maxIterations    int
}

func (e *ChainExecutor) progressStore(sessionID, stageExecutionID string, maxIterations int) agent.StageStore {
	return &iterationProgressStore{
		StageStore:       e.store,
		publisher:        e.publisher,
		sessionID:        sessionID,
		stageExecutionID: stageExecutionID,
		maxIterations:    maxIterations,
	}
}

func (s *iterationProgressStore) SetStageIteration(ctx context.Context, stageExecutionID string, iteration int) error {
	err := s.StageStore.SetStageIteration(ctx, stageExecutionID, iteration)
	if err == nil && s.publisher != nil {
		if pubErr := s.publisher.PublishSessionProgress(ctx, s.sessionID, events.SessionProgressPayload{
			Type:             events.EventTypeSessionProgress,
			SessionID:        s.sessionID,
			StageExecutionID: s.stageExecutionID,
			Iteration:        iteration,
			MaxIterations:    s.maxIterations,
			TimestampUs:      events.NowUs(),
		}); pubErr != nil {
			slog.Warn("Failed to publish session progress",
				"session_id", s.sessionID, "iteration", iteration, "error", pubErr)
		}
	}
	return err
}

// ────────────────────────────────────────────────────────────
// Context building and mapping helpers
// ────────────────────────────────────────────────────────────

// buildStageContext formats completed stage outcomes for the next stage's
// prompt. Failed stages carried forward by the continue policy are rendered
// with their error so later stages know what is missing.
func buildStageContext(outcomes []stageOutcome) string {
	if len(outcomes) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## Stage: %s\n\n", o.stageName)
		switch {
		case o.analysis != "":
			sb.WriteString(o.analysis)
		case o.err != nil:
			fmt.Fprintf(&sb, "Stage did not complete: %s", o.err.Error())
		default:
			sb.WriteString("No output produced.")
		}
	}
	return sb.String()
}

// extractFinalAnalysis returns the analysis from the last stage that
// produced one.
func extractFinalAnalysis(outcomes []stageOutcome) string {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].analysis != "" {
			return outcomes[i].analysis
		}
	}
	return ""
}

// mapCancellation checks whether the session context expired and returns
// the matching result, or nil when the context is still live.
func (e *ChainExecutor) mapCancellation(ctx context.Context) *ExecutionResult {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return &ExecutionResult{
			Status: alertsession.StatusFailed,
			Error:  fmt.Errorf("session timed out"),
		}
	default:
		return &ExecutionResult{
			Status: alertsession.StatusCancelled,
			Error:  context.Canceled,
		}
	}
}

// mapExecToStageStatus converts an agent execution status to the persisted
// stage execution status. Pending/active fall through to failed: agents
// always report a terminal or paused status.
func mapExecToStageStatus(status agent.ExecutionStatus) stageexecution.Status {
	switch status {
	case agent.ExecutionStatusCompleted:
		return stageexecution.StatusCompleted
	case agent.ExecutionStatusPaused:
		return stageexecution.StatusPaused
	case agent.ExecutionStatusCancelled:
		return stageexecution.StatusCancelled
	default:
		return stageexecution.StatusFailed
	}
}

// publishStageStatus publishes a stage boundary event. Best-effort.
func (e *ChainExecutor) publishStageStatus(ctx context.Context, sessionID, stageExecutionID, stageName string, stageIndex int, agentName string, status stageexecution.Status) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishStageStatus(ctx, sessionID, events.StageStatusPayload{
		Type:             events.StageEventType(status),
		SessionID:        sessionID,
		StageExecutionID: stageExecutionID,
		StageName:        stageName,
		StageIndex:       stageIndex,
		Agent:            agentName,
		Status:           status,
		TimestampUs:      events.NowUs(),
	}); err != nil {
		slog.Warn("Failed to publish stage status",
			"session_id", sessionID,
			"stage_name", stageName,
			"status", status,
			"error", err)
	}
}
