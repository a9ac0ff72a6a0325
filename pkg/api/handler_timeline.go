package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tarsy-dev/tarsy/ent"
)

// getTimelineHandler handles GET /api/v1/sessions/:id/timeline.
// Composes the full investigation record: stage executions (with
// parallel children) and every LLM and MCP interaction, grouped by the
// stage execution that produced them.
func (s *Server) getTimelineHandler(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	stages, err := s.loadStageDetails(c, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	llmInteractions, err := s.store.GetLLMInteractions(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	mcpInteractions, err := s.store.GetMCPInteractions(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	// Group interactions by stage execution id. Interactions from a
	// parallel child attach to the child's parent entry, so each
	// timeline stage carries everything that happened under it.
	llmByStage := make(map[string][]*ent.LLMInteraction)
	var sessionLLM []*ent.LLMInteraction
	for _, in := range llmInteractions {
		if in.StageExecutionID == nil {
			sessionLLM = append(sessionLLM, in)
			continue
		}
		llmByStage[*in.StageExecutionID] = append(llmByStage[*in.StageExecutionID], in)
	}

	mcpByStage := make(map[string][]*ent.MCPInteraction)
	var sessionMCP []*ent.MCPInteraction
	for _, in := range mcpInteractions {
		if in.StageExecutionID == nil {
			sessionMCP = append(sessionMCP, in)
			continue
		}
		mcpByStage[*in.StageExecutionID] = append(mcpByStage[*in.StageExecutionID], in)
	}

	timeline := make([]*StageTimeline, 0, len(stages))
	for _, stage := range stages {
		entry := &StageTimeline{
			Stage:           stage.StageExecution,
			Children:        stage.Children,
			LLMInteractions: llmByStage[stage.ID],
			MCPInteractions: mcpByStage[stage.ID],
		}
		for _, child := range stage.Children {
			entry.LLMInteractions = append(entry.LLMInteractions, llmByStage[child.ID]...)
			entry.MCPInteractions = append(entry.MCPInteractions, mcpByStage[child.ID]...)
		}
		if entry.LLMInteractions == nil {
			entry.LLMInteractions = []*ent.LLMInteraction{}
		}
		if entry.MCPInteractions == nil {
			entry.MCPInteractions = []*ent.MCPInteraction{}
		}
		timeline = append(timeline, entry)
	}

	c.JSON(http.StatusOK, TimelineResponse{
		SessionID:              sessionID,
		Session:                session,
		Stages:                 timeline,
		SessionLLMInteractions: sessionLLM,
		SessionMCPInteractions: sessionMCP,
	})
}
