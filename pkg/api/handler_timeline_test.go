package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

func TestTimelineEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	sessionID := ts.submitAlert(t, map[string]interface{}{"namespace": "timeline"})

	stage, err := ts.store.CreateStageExecution(ctx, history.CreateStageExecutionParams{
		SessionID:  sessionID,
		StageIndex: 0,
		StageName:  "analysis",
		Agent:      "KubernetesAgent",
	})
	require.NoError(t, err)

	_, err = ts.store.RecordLLMInteraction(ctx, history.LLMRecord{
		SessionID:        sessionID,
		StageExecutionID: &stage.ID,
		InteractionType:  "investigation",
		Provider:         "openai",
		ModelName:        "gpt-5",
		Request:          map[string]interface{}{"messages": []interface{}{}},
		StepDescription:  "iteration 1",
		Success:          true,
	})
	require.NoError(t, err)

	toolName := "kubectl_get"
	_, err = ts.store.RecordMCPInteraction(ctx, history.MCPRecord{
		SessionID:         sessionID,
		StageExecutionID:  &stage.ID,
		CommunicationType: mcpinteraction.CommunicationTypeToolCall,
		ServerName:        "kubernetes-server",
		ToolName:          &toolName,
		Success:           true,
	})
	require.NoError(t, err)

	// Session-level call with no stage attribution.
	_, err = ts.store.RecordLLMInteraction(ctx, history.LLMRecord{
		SessionID:       sessionID,
		InteractionType: "final_analysis",
		Provider:        "openai",
		ModelName:       "gpt-5",
		Request:         map[string]interface{}{},
		Success:         true,
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimelineResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, sessionID, resp.SessionID)
	require.Len(t, resp.Stages, 1)

	entry := resp.Stages[0]
	assert.Equal(t, stage.ID, entry.Stage.ID)
	require.Len(t, entry.LLMInteractions, 1)
	assert.Equal(t, "iteration 1", entry.LLMInteractions[0].StepDescription)
	require.Len(t, entry.MCPInteractions, 1)
	assert.Equal(t, "kubernetes-server", entry.MCPInteractions[0].ServerName)

	require.Len(t, resp.SessionLLMInteractions, 1)
	assert.Equal(t, "final_analysis", resp.SessionLLMInteractions[0].InteractionType)
}

func TestTimelineEndpointUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/no-such-session/timeline", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimelineEndpointParallelChildrenRollUp(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	sessionID := ts.submitAlert(t, map[string]interface{}{"namespace": "parallel-timeline"})

	parallelType := stageexecution.ParallelTypeMultiAgent
	parent, err := ts.store.CreateStageExecution(ctx, history.CreateStageExecutionParams{
		SessionID:    sessionID,
		StageIndex:   0,
		StageName:    "analysis",
		Agent:        "LogAgent, MetricsAgent",
		ParallelType: &parallelType,
	})
	require.NoError(t, err)

	child, err := ts.store.CreateStageExecution(ctx, history.CreateStageExecutionParams{
		SessionID:  sessionID,
		StageIndex: 0,
		StageName:  "analysis",
		Agent:      "LogAgent",
		ParentID:   &parent.ID,
	})
	require.NoError(t, err)

	_, err = ts.store.RecordLLMInteraction(ctx, history.LLMRecord{
		SessionID:        sessionID,
		StageExecutionID: &child.ID,
		InteractionType:  "investigation",
		Provider:         "anthropic",
		ModelName:        "claude",
		Request:          map[string]interface{}{},
		Success:          true,
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimelineResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Stages, 1)
	assert.Equal(t, parent.ID, resp.Stages[0].Stage.ID)
	assert.Len(t, resp.Stages[0].LLMInteractions, 1,
		"child interactions roll up to the parent timeline entry")
}
