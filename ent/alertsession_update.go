// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/schema/field"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/predicate"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// AlertSessionUpdate is the builder for updating AlertSession entities.
type AlertSessionUpdate struct {
	config
	hooks    []Hook
	mutation *AlertSessionMutation
}

// Where appends a list predicates to the AlertSessionUpdate builder.
func (_u *AlertSessionUpdate) Where(ps ...predicate.AlertSession) *AlertSessionUpdate {
	_u.mutation.Where(ps...)
	return _u
}

// SetAlertType sets the "alert_type" field.
func (_u *AlertSessionUpdate) SetAlertType(v string) *AlertSessionUpdate {
	_u.mutation.SetAlertType(v)
	return _u
}

// SetNillableAlertType sets the "alert_type" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableAlertType(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetAlertType(*v)
	}
	return _u
}

// SetAlertData sets the "alert_data" field.
func (_u *AlertSessionUpdate) SetAlertData(v map[string]interface{}) *AlertSessionUpdate {
	_u.mutation.SetAlertData(v)
	return _u
}

// SetAlertFingerprint sets the "alert_fingerprint" field.
func (_u *AlertSessionUpdate) SetAlertFingerprint(v string) *AlertSessionUpdate {
	_u.mutation.SetAlertFingerprint(v)
	return _u
}

// SetNillableAlertFingerprint sets the "alert_fingerprint" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableAlertFingerprint(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetAlertFingerprint(*v)
	}
	return _u
}

// SetChainID sets the "chain_id" field.
func (_u *AlertSessionUpdate) SetChainID(v string) *AlertSessionUpdate {
	_u.mutation.SetChainID(v)
	return _u
}

// SetNillableChainID sets the "chain_id" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableChainID(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetChainID(*v)
	}
	return _u
}

// SetChainDefinition sets the "chain_definition" field.
func (_u *AlertSessionUpdate) SetChainDefinition(v map[string]interface{}) *AlertSessionUpdate {
	_u.mutation.SetChainDefinition(v)
	return _u
}

// SetAgentType sets the "agent_type" field.
func (_u *AlertSessionUpdate) SetAgentType(v string) *AlertSessionUpdate {
	_u.mutation.SetAgentType(v)
	return _u
}

// SetNillableAgentType sets the "agent_type" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableAgentType(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetAgentType(*v)
	}
	return _u
}

// ClearAgentType clears the value of the "agent_type" field.
func (_u *AlertSessionUpdate) ClearAgentType() *AlertSessionUpdate {
	_u.mutation.ClearAgentType()
	return _u
}

// SetAuthor sets the "author" field.
func (_u *AlertSessionUpdate) SetAuthor(v string) *AlertSessionUpdate {
	_u.mutation.SetAuthor(v)
	return _u
}

// SetNillableAuthor sets the "author" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableAuthor(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetAuthor(*v)
	}
	return _u
}

// ClearAuthor clears the value of the "author" field.
func (_u *AlertSessionUpdate) ClearAuthor() *AlertSessionUpdate {
	_u.mutation.ClearAuthor()
	return _u
}

// SetRunbookURL sets the "runbook_url" field.
func (_u *AlertSessionUpdate) SetRunbookURL(v string) *AlertSessionUpdate {
	_u.mutation.SetRunbookURL(v)
	return _u
}

// SetNillableRunbookURL sets the "runbook_url" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableRunbookURL(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetRunbookURL(*v)
	}
	return _u
}

// ClearRunbookURL clears the value of the "runbook_url" field.
func (_u *AlertSessionUpdate) ClearRunbookURL() *AlertSessionUpdate {
	_u.mutation.ClearRunbookURL()
	return _u
}

// SetStatus sets the "status" field.
func (_u *AlertSessionUpdate) SetStatus(v alertsession.Status) *AlertSessionUpdate {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableStatus(v *alertsession.Status) *AlertSessionUpdate {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetStartedAtUs sets the "started_at_us" field.
func (_u *AlertSessionUpdate) SetStartedAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.ResetStartedAtUs()
	_u.mutation.SetStartedAtUs(v)
	return _u
}

// SetNillableStartedAtUs sets the "started_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableStartedAtUs(v *int64) *AlertSessionUpdate {
	if v != nil {
		_u.SetStartedAtUs(*v)
	}
	return _u
}

// AddStartedAtUs adds value to the "started_at_us" field.
func (_u *AlertSessionUpdate) AddStartedAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.AddStartedAtUs(v)
	return _u
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (_u *AlertSessionUpdate) ClearStartedAtUs() *AlertSessionUpdate {
	_u.mutation.ClearStartedAtUs()
	return _u
}

// SetLastInteractionAtUs sets the "last_interaction_at_us" field.
func (_u *AlertSessionUpdate) SetLastInteractionAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.ResetLastInteractionAtUs()
	_u.mutation.SetLastInteractionAtUs(v)
	return _u
}

// SetNillableLastInteractionAtUs sets the "last_interaction_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableLastInteractionAtUs(v *int64) *AlertSessionUpdate {
	if v != nil {
		_u.SetLastInteractionAtUs(*v)
	}
	return _u
}

// AddLastInteractionAtUs adds value to the "last_interaction_at_us" field.
func (_u *AlertSessionUpdate) AddLastInteractionAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.AddLastInteractionAtUs(v)
	return _u
}

// ClearLastInteractionAtUs clears the value of the "last_interaction_at_us" field.
func (_u *AlertSessionUpdate) ClearLastInteractionAtUs() *AlertSessionUpdate {
	_u.mutation.ClearLastInteractionAtUs()
	return _u
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (_u *AlertSessionUpdate) SetCompletedAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.ResetCompletedAtUs()
	_u.mutation.SetCompletedAtUs(v)
	return _u
}

// SetNillableCompletedAtUs sets the "completed_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableCompletedAtUs(v *int64) *AlertSessionUpdate {
	if v != nil {
		_u.SetCompletedAtUs(*v)
	}
	return _u
}

// AddCompletedAtUs adds value to the "completed_at_us" field.
func (_u *AlertSessionUpdate) AddCompletedAtUs(v int64) *AlertSessionUpdate {
	_u.mutation.AddCompletedAtUs(v)
	return _u
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (_u *AlertSessionUpdate) ClearCompletedAtUs() *AlertSessionUpdate {
	_u.mutation.ClearCompletedAtUs()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *AlertSessionUpdate) SetErrorMessage(v string) *AlertSessionUpdate {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableErrorMessage(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *AlertSessionUpdate) ClearErrorMessage() *AlertSessionUpdate {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetFinalAnalysis sets the "final_analysis" field.
func (_u *AlertSessionUpdate) SetFinalAnalysis(v string) *AlertSessionUpdate {
	_u.mutation.SetFinalAnalysis(v)
	return _u
}

// SetNillableFinalAnalysis sets the "final_analysis" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableFinalAnalysis(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetFinalAnalysis(*v)
	}
	return _u
}

// ClearFinalAnalysis clears the value of the "final_analysis" field.
func (_u *AlertSessionUpdate) ClearFinalAnalysis() *AlertSessionUpdate {
	_u.mutation.ClearFinalAnalysis()
	return _u
}

// SetPauseMetadata sets the "pause_metadata" field.
func (_u *AlertSessionUpdate) SetPauseMetadata(v map[string]interface{}) *AlertSessionUpdate {
	_u.mutation.SetPauseMetadata(v)
	return _u
}

// ClearPauseMetadata clears the value of the "pause_metadata" field.
func (_u *AlertSessionUpdate) ClearPauseMetadata() *AlertSessionUpdate {
	_u.mutation.ClearPauseMetadata()
	return _u
}

// SetPodID sets the "pod_id" field.
func (_u *AlertSessionUpdate) SetPodID(v string) *AlertSessionUpdate {
	_u.mutation.SetPodID(v)
	return _u
}

// SetNillablePodID sets the "pod_id" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillablePodID(v *string) *AlertSessionUpdate {
	if v != nil {
		_u.SetPodID(*v)
	}
	return _u
}

// ClearPodID clears the value of the "pod_id" field.
func (_u *AlertSessionUpdate) ClearPodID() *AlertSessionUpdate {
	_u.mutation.ClearPodID()
	return _u
}

// SetCancelRequested sets the "cancel_requested" field.
func (_u *AlertSessionUpdate) SetCancelRequested(v bool) *AlertSessionUpdate {
	_u.mutation.SetCancelRequested(v)
	return _u
}

// SetNillableCancelRequested sets the "cancel_requested" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillableCancelRequested(v *bool) *AlertSessionUpdate {
	if v != nil {
		_u.SetCancelRequested(*v)
	}
	return _u
}

// SetPauseRequested sets the "pause_requested" field.
func (_u *AlertSessionUpdate) SetPauseRequested(v bool) *AlertSessionUpdate {
	_u.mutation.SetPauseRequested(v)
	return _u
}

// SetNillablePauseRequested sets the "pause_requested" field if the given value is not nil.
func (_u *AlertSessionUpdate) SetNillablePauseRequested(v *bool) *AlertSessionUpdate {
	if v != nil {
		_u.SetPauseRequested(*v)
	}
	return _u
}

// AddStageExecutionIDs adds the "stage_executions" edge to the StageExecution entity by IDs.
func (_u *AlertSessionUpdate) AddStageExecutionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.AddStageExecutionIDs(ids...)
	return _u
}

// AddStageExecutions adds the "stage_executions" edges to the StageExecution entity.
func (_u *AlertSessionUpdate) AddStageExecutions(v ...*StageExecution) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddStageExecutionIDs(ids...)
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (_u *AlertSessionUpdate) AddLlmInteractionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.AddLlmInteractionIDs(ids...)
	return _u
}

// AddLlmInteractions adds the "llm_interactions" edges to the LLMInteraction entity.
func (_u *AlertSessionUpdate) AddLlmInteractions(v ...*LLMInteraction) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddLlmInteractionIDs(ids...)
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (_u *AlertSessionUpdate) AddMcpInteractionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.AddMcpInteractionIDs(ids...)
	return _u
}

// AddMcpInteractions adds the "mcp_interactions" edges to the MCPInteraction entity.
func (_u *AlertSessionUpdate) AddMcpInteractions(v ...*MCPInteraction) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddMcpInteractionIDs(ids...)
}

// Mutation returns the AlertSessionMutation object of the builder.
func (_u *AlertSessionUpdate) Mutation() *AlertSessionMutation {
	return _u.mutation
}

// ClearStageExecutions clears all "stage_executions" edges to the StageExecution entity.
func (_u *AlertSessionUpdate) ClearStageExecutions() *AlertSessionUpdate {
	_u.mutation.ClearStageExecutions()
	return _u
}

// RemoveStageExecutionIDs removes the "stage_executions" edge to StageExecution entities by IDs.
func (_u *AlertSessionUpdate) RemoveStageExecutionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.RemoveStageExecutionIDs(ids...)
	return _u
}

// RemoveStageExecutions removes "stage_executions" edges to StageExecution entities.
func (_u *AlertSessionUpdate) RemoveStageExecutions(v ...*StageExecution) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveStageExecutionIDs(ids...)
}

// ClearLlmInteractions clears all "llm_interactions" edges to the LLMInteraction entity.
func (_u *AlertSessionUpdate) ClearLlmInteractions() *AlertSessionUpdate {
	_u.mutation.ClearLlmInteractions()
	return _u
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to LLMInteraction entities by IDs.
func (_u *AlertSessionUpdate) RemoveLlmInteractionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.RemoveLlmInteractionIDs(ids...)
	return _u
}

// RemoveLlmInteractions removes "llm_interactions" edges to LLMInteraction entities.
func (_u *AlertSessionUpdate) RemoveLlmInteractions(v ...*LLMInteraction) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveLlmInteractionIDs(ids...)
}

// ClearMcpInteractions clears all "mcp_interactions" edges to the MCPInteraction entity.
func (_u *AlertSessionUpdate) ClearMcpInteractions() *AlertSessionUpdate {
	_u.mutation.ClearMcpInteractions()
	return _u
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to MCPInteraction entities by IDs.
func (_u *AlertSessionUpdate) RemoveMcpInteractionIDs(ids ...string) *AlertSessionUpdate {
	_u.mutation.RemoveMcpInteractionIDs(ids...)
	return _u
}

// RemoveMcpInteractions removes "mcp_interactions" edges to MCPInteraction entities.
func (_u *AlertSessionUpdate) RemoveMcpInteractions(v ...*MCPInteraction) *AlertSessionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveMcpInteractionIDs(ids...)
}

// Save executes the query and returns the number of nodes affected by the update operation.
func (_u *AlertSessionUpdate) Save(ctx context.Context) (int, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *AlertSessionUpdate) SaveX(ctx context.Context) int {
	affected, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return affected
}

// Exec executes the query.
func (_u *AlertSessionUpdate) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *AlertSessionUpdate) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *AlertSessionUpdate) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := alertsession.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "AlertSession.status": %w`, err)}
		}
	}
	return nil
}

func (_u *AlertSessionUpdate) sqlSave(ctx context.Context) (_node int, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(alertsession.Table, alertsession.Columns, sqlgraph.NewFieldSpec(alertsession.FieldID, field.TypeString))
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.AlertType(); ok {
		_spec.SetField(alertsession.FieldAlertType, field.TypeString, value)
	}
	if value, ok := _u.mutation.AlertData(); ok {
		_spec.SetField(alertsession.FieldAlertData, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AlertFingerprint(); ok {
		_spec.SetField(alertsession.FieldAlertFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.ChainID(); ok {
		_spec.SetField(alertsession.FieldChainID, field.TypeString, value)
	}
	if value, ok := _u.mutation.ChainDefinition(); ok {
		_spec.SetField(alertsession.FieldChainDefinition, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AgentType(); ok {
		_spec.SetField(alertsession.FieldAgentType, field.TypeString, value)
	}
	if _u.mutation.AgentTypeCleared() {
		_spec.ClearField(alertsession.FieldAgentType, field.TypeString)
	}
	if value, ok := _u.mutation.Author(); ok {
		_spec.SetField(alertsession.FieldAuthor, field.TypeString, value)
	}
	if _u.mutation.AuthorCleared() {
		_spec.ClearField(alertsession.FieldAuthor, field.TypeString)
	}
	if value, ok := _u.mutation.RunbookURL(); ok {
		_spec.SetField(alertsession.FieldRunbookURL, field.TypeString, value)
	}
	if _u.mutation.RunbookURLCleared() {
		_spec.ClearField(alertsession.FieldRunbookURL, field.TypeString)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(alertsession.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.StartedAtUs(); ok {
		_spec.SetField(alertsession.FieldStartedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedStartedAtUs(); ok {
		_spec.AddField(alertsession.FieldStartedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.StartedAtUsCleared() {
		_spec.ClearField(alertsession.FieldStartedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.LastInteractionAtUs(); ok {
		_spec.SetField(alertsession.FieldLastInteractionAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedLastInteractionAtUs(); ok {
		_spec.AddField(alertsession.FieldLastInteractionAtUs, field.TypeInt64, value)
	}
	if _u.mutation.LastInteractionAtUsCleared() {
		_spec.ClearField(alertsession.FieldLastInteractionAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.CompletedAtUs(); ok {
		_spec.SetField(alertsession.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedCompletedAtUs(); ok {
		_spec.AddField(alertsession.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.CompletedAtUsCleared() {
		_spec.ClearField(alertsession.FieldCompletedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(alertsession.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(alertsession.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.FinalAnalysis(); ok {
		_spec.SetField(alertsession.FieldFinalAnalysis, field.TypeString, value)
	}
	if _u.mutation.FinalAnalysisCleared() {
		_spec.ClearField(alertsession.FieldFinalAnalysis, field.TypeString)
	}
	if value, ok := _u.mutation.PauseMetadata(); ok {
		_spec.SetField(alertsession.FieldPauseMetadata, field.TypeJSON, value)
	}
	if _u.mutation.PauseMetadataCleared() {
		_spec.ClearField(alertsession.FieldPauseMetadata, field.TypeJSON)
	}
	if value, ok := _u.mutation.PodID(); ok {
		_spec.SetField(alertsession.FieldPodID, field.TypeString, value)
	}
	if _u.mutation.PodIDCleared() {
		_spec.ClearField(alertsession.FieldPodID, field.TypeString)
	}
	if value, ok := _u.mutation.CancelRequested(); ok {
		_spec.SetField(alertsession.FieldCancelRequested, field.TypeBool, value)
	}
	if value, ok := _u.mutation.PauseRequested(); ok {
		_spec.SetField(alertsession.FieldPauseRequested, field.TypeBool, value)
	}
	if _u.mutation.StageExecutionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedStageExecutionsIDs(); len(nodes) > 0 && !_u.mutation.StageExecutionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.StageExecutionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _u.mutation.LlmInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedLlmInteractionsIDs(); len(nodes) > 0 && !_u.mutation.LlmInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.LlmInteractionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _u.mutation.McpInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedMcpInteractionsIDs(); len(nodes) > 0 && !_u.mutation.McpInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.McpInteractionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _node, err = sqlgraph.UpdateNodes(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{alertsession.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return 0, err
	}
	_u.mutation.done = true
	return _node, nil
}

// AlertSessionUpdateOne is the builder for updating a single AlertSession entity.
type AlertSessionUpdateOne struct {
	config
	fields   []string
	hooks    []Hook
	mutation *AlertSessionMutation
}

// SetAlertType sets the "alert_type" field.
func (_u *AlertSessionUpdateOne) SetAlertType(v string) *AlertSessionUpdateOne {
	_u.mutation.SetAlertType(v)
	return _u
}

// SetNillableAlertType sets the "alert_type" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableAlertType(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetAlertType(*v)
	}
	return _u
}

// SetAlertData sets the "alert_data" field.
func (_u *AlertSessionUpdateOne) SetAlertData(v map[string]interface{}) *AlertSessionUpdateOne {
	_u.mutation.SetAlertData(v)
	return _u
}

// SetAlertFingerprint sets the "alert_fingerprint" field.
func (_u *AlertSessionUpdateOne) SetAlertFingerprint(v string) *AlertSessionUpdateOne {
	_u.mutation.SetAlertFingerprint(v)
	return _u
}

// SetNillableAlertFingerprint sets the "alert_fingerprint" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableAlertFingerprint(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetAlertFingerprint(*v)
	}
	return _u
}

// SetChainID sets the "chain_id" field.
func (_u *AlertSessionUpdateOne) SetChainID(v string) *AlertSessionUpdateOne {
	_u.mutation.SetChainID(v)
	return _u
}

// SetNillableChainID sets the "chain_id" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableChainID(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetChainID(*v)
	}
	return _u
}

// SetChainDefinition sets the "chain_definition" field.
func (_u *AlertSessionUpdateOne) SetChainDefinition(v map[string]interface{}) *AlertSessionUpdateOne {
	_u.mutation.SetChainDefinition(v)
	return _u
}

// SetAgentType sets the "agent_type" field.
func (_u *AlertSessionUpdateOne) SetAgentType(v string) *AlertSessionUpdateOne {
	_u.mutation.SetAgentType(v)
	return _u
}

// SetNillableAgentType sets the "agent_type" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableAgentType(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetAgentType(*v)
	}
	return _u
}

// ClearAgentType clears the value of the "agent_type" field.
func (_u *AlertSessionUpdateOne) ClearAgentType() *AlertSessionUpdateOne {
	_u.mutation.ClearAgentType()
	return _u
}

// SetAuthor sets the "author" field.
func (_u *AlertSessionUpdateOne) SetAuthor(v string) *AlertSessionUpdateOne {
	_u.mutation.SetAuthor(v)
	return _u
}

// SetNillableAuthor sets the "author" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableAuthor(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetAuthor(*v)
	}
	return _u
}

// ClearAuthor clears the value of the "author" field.
func (_u *AlertSessionUpdateOne) ClearAuthor() *AlertSessionUpdateOne {
	_u.mutation.ClearAuthor()
	return _u
}

// SetRunbookURL sets the "runbook_url" field.
func (_u *AlertSessionUpdateOne) SetRunbookURL(v string) *AlertSessionUpdateOne {
	_u.mutation.SetRunbookURL(v)
	return _u
}

// SetNillableRunbookURL sets the "runbook_url" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableRunbookURL(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetRunbookURL(*v)
	}
	return _u
}

// ClearRunbookURL clears the value of the "runbook_url" field.
func (_u *AlertSessionUpdateOne) ClearRunbookURL() *AlertSessionUpdateOne {
	_u.mutation.ClearRunbookURL()
	return _u
}

// SetStatus sets the "status" field.
func (_u *AlertSessionUpdateOne) SetStatus(v alertsession.Status) *AlertSessionUpdateOne {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableStatus(v *alertsession.Status) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetStartedAtUs sets the "started_at_us" field.
func (_u *AlertSessionUpdateOne) SetStartedAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.ResetStartedAtUs()
	_u.mutation.SetStartedAtUs(v)
	return _u
}

// SetNillableStartedAtUs sets the "started_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableStartedAtUs(v *int64) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetStartedAtUs(*v)
	}
	return _u
}

// AddStartedAtUs adds value to the "started_at_us" field.
func (_u *AlertSessionUpdateOne) AddStartedAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.AddStartedAtUs(v)
	return _u
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (_u *AlertSessionUpdateOne) ClearStartedAtUs() *AlertSessionUpdateOne {
	_u.mutation.ClearStartedAtUs()
	return _u
}

// SetLastInteractionAtUs sets the "last_interaction_at_us" field.
func (_u *AlertSessionUpdateOne) SetLastInteractionAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.ResetLastInteractionAtUs()
	_u.mutation.SetLastInteractionAtUs(v)
	return _u
}

// SetNillableLastInteractionAtUs sets the "last_interaction_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableLastInteractionAtUs(v *int64) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetLastInteractionAtUs(*v)
	}
	return _u
}

// AddLastInteractionAtUs adds value to the "last_interaction_at_us" field.
func (_u *AlertSessionUpdateOne) AddLastInteractionAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.AddLastInteractionAtUs(v)
	return _u
}

// ClearLastInteractionAtUs clears the value of the "last_interaction_at_us" field.
func (_u *AlertSessionUpdateOne) ClearLastInteractionAtUs() *AlertSessionUpdateOne {
	_u.mutation.ClearLastInteractionAtUs()
	return _u
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (_u *AlertSessionUpdateOne) SetCompletedAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.ResetCompletedAtUs()
	_u.mutation.SetCompletedAtUs(v)
	return _u
}

// SetNillableCompletedAtUs sets the "completed_at_us" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableCompletedAtUs(v *int64) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetCompletedAtUs(*v)
	}
	return _u
}

// AddCompletedAtUs adds value to the "completed_at_us" field.
func (_u *AlertSessionUpdateOne) AddCompletedAtUs(v int64) *AlertSessionUpdateOne {
	_u.mutation.AddCompletedAtUs(v)
	return _u
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (_u *AlertSessionUpdateOne) ClearCompletedAtUs() *AlertSessionUpdateOne {
	_u.mutation.ClearCompletedAtUs()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *AlertSessionUpdateOne) SetErrorMessage(v string) *AlertSessionUpdateOne {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableErrorMessage(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *AlertSessionUpdateOne) ClearErrorMessage() *AlertSessionUpdateOne {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetFinalAnalysis sets the "final_analysis" field.
func (_u *AlertSessionUpdateOne) SetFinalAnalysis(v string) *AlertSessionUpdateOne {
	_u.mutation.SetFinalAnalysis(v)
	return _u
}

// SetNillableFinalAnalysis sets the "final_analysis" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableFinalAnalysis(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetFinalAnalysis(*v)
	}
	return _u
}

// ClearFinalAnalysis clears the value of the "final_analysis" field.
func (_u *AlertSessionUpdateOne) ClearFinalAnalysis() *AlertSessionUpdateOne {
	_u.mutation.ClearFinalAnalysis()
	return _u
}

// SetPauseMetadata sets the "pause_metadata" field.
func (_u *AlertSessionUpdateOne) SetPauseMetadata(v map[string]interface{}) *AlertSessionUpdateOne {
	_u.mutation.SetPauseMetadata(v)
	return _u
}

// ClearPauseMetadata clears the value of the "pause_metadata" field.
func (_u *AlertSessionUpdateOne) ClearPauseMetadata() *AlertSessionUpdateOne {
	_u.mutation.ClearPauseMetadata()
	return _u
}

// SetPodID sets the "pod_id" field.
func (_u *AlertSessionUpdateOne) SetPodID(v string) *AlertSessionUpdateOne {
	_u.mutation.SetPodID(v)
	return _u
}

// SetNillablePodID sets the "pod_id" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillablePodID(v *string) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetPodID(*v)
	}
	return _u
}

// ClearPodID clears the value of the "pod_id" field.
func (_u *AlertSessionUpdateOne) ClearPodID() *AlertSessionUpdateOne {
	_u.mutation.ClearPodID()
	return _u
}

// SetCancelRequested sets the "cancel_requested" field.
func (_u *AlertSessionUpdateOne) SetCancelRequested(v bool) *AlertSessionUpdateOne {
	_u.mutation.SetCancelRequested(v)
	return _u
}

// SetNillableCancelRequested sets the "cancel_requested" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillableCancelRequested(v *bool) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetCancelRequested(*v)
	}
	return _u
}

// SetPauseRequested sets the "pause_requested" field.
func (_u *AlertSessionUpdateOne) SetPauseRequested(v bool) *AlertSessionUpdateOne {
	_u.mutation.SetPauseRequested(v)
	return _u
}

// SetNillablePauseRequested sets the "pause_requested" field if the given value is not nil.
func (_u *AlertSessionUpdateOne) SetNillablePauseRequested(v *bool) *AlertSessionUpdateOne {
	if v != nil {
		_u.SetPauseRequested(*v)
	}
	return _u
}

// AddStageExecutionIDs adds the "stage_executions" edge to the StageExecution entity by IDs.
func (_u *AlertSessionUpdateOne) AddStageExecutionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.AddStageExecutionIDs(ids...)
	return _u
}

// AddStageExecutions adds the "stage_executions" edges to the StageExecution entity.
func (_u *AlertSessionUpdateOne) AddStageExecutions(v ...*StageExecution) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddStageExecutionIDs(ids...)
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (_u *AlertSessionUpdateOne) AddLlmInteractionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.AddLlmInteractionIDs(ids...)
	return _u
}

// AddLlmInteractions adds the "llm_interactions" edges to the LLMInteraction entity.
func (_u *AlertSessionUpdateOne) AddLlmInteractions(v ...*LLMInteraction) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddLlmInteractionIDs(ids...)
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (_u *AlertSessionUpdateOne) AddMcpInteractionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.AddMcpInteractionIDs(ids...)
	return _u
}

// AddMcpInteractions adds the "mcp_interactions" edges to the MCPInteraction entity.
func (_u *AlertSessionUpdateOne) AddMcpInteractions(v ...*MCPInteraction) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddMcpInteractionIDs(ids...)
}

// Mutation returns the AlertSessionMutation object of the builder.
func (_u *AlertSessionUpdateOne) Mutation() *AlertSessionMutation {
	return _u.mutation
}

// ClearStageExecutions clears all "stage_executions" edges to the StageExecution entity.
func (_u *AlertSessionUpdateOne) ClearStageExecutions() *AlertSessionUpdateOne {
	_u.mutation.ClearStageExecutions()
	return _u
}

// RemoveStageExecutionIDs removes the "stage_executions" edge to StageExecution entities by IDs.
func (_u *AlertSessionUpdateOne) RemoveStageExecutionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.RemoveStageExecutionIDs(ids...)
	return _u
}

// RemoveStageExecutions removes "stage_executions" edges to StageExecution entities.
func (_u *AlertSessionUpdateOne) RemoveStageExecutions(v ...*StageExecution) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveStageExecutionIDs(ids...)
}

// ClearLlmInteractions clears all "llm_interactions" edges to the LLMInteraction entity.
func (_u *AlertSessionUpdateOne) ClearLlmInteractions() *AlertSessionUpdateOne {
	_u.mutation.ClearLlmInteractions()
	return _u
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to LLMInteraction entities by IDs.
func (_u *AlertSessionUpdateOne) RemoveLlmInteractionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.RemoveLlmInteractionIDs(ids...)
	return _u
}

// RemoveLlmInteractions removes "llm_interactions" edges to LLMInteraction entities.
func (_u *AlertSessionUpdateOne) RemoveLlmInteractions(v ...*LLMInteraction) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveLlmInteractionIDs(ids...)
}

// ClearMcpInteractions clears all "mcp_interactions" edges to the MCPInteraction entity.
func (_u *AlertSessionUpdateOne) ClearMcpInteractions() *AlertSessionUpdateOne {
	_u.mutation.ClearMcpInteractions()
	return _u
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to MCPInteraction entities by IDs.
func (_u *AlertSessionUpdateOne) RemoveMcpInteractionIDs(ids ...string) *AlertSessionUpdateOne {
	_u.mutation.RemoveMcpInteractionIDs(ids...)
	return _u
}

// RemoveMcpInteractions removes "mcp_interactions" edges to MCPInteraction entities.
func (_u *AlertSessionUpdateOne) RemoveMcpInteractions(v ...*MCPInteraction) *AlertSessionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveMcpInteractionIDs(ids...)
}

// Where appends a list predicates to the AlertSessionUpdate builder.
func (_u *AlertSessionUpdateOne) Where(ps ...predicate.AlertSession) *AlertSessionUpdateOne {
	_u.mutation.Where(ps...)
	return _u
}

// Select allows selecting one or more fields (columns) of the returned entity.
// The default is selecting all fields defined in the entity schema.
func (_u *AlertSessionUpdateOne) Select(field string, fields ...string) *AlertSessionUpdateOne {
	_u.fields = append([]string{field}, fields...)
	return _u
}

// Save executes the query and returns the updated AlertSession entity.
func (_u *AlertSessionUpdateOne) Save(ctx context.Context) (*AlertSession, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *AlertSessionUpdateOne) SaveX(ctx context.Context) *AlertSession {
	node, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return node
}

// Exec executes the query on the entity.
func (_u *AlertSessionUpdateOne) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *AlertSessionUpdateOne) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *AlertSessionUpdateOne) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := alertsession.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "AlertSession.status": %w`, err)}
		}
	}
	return nil
}

func (_u *AlertSessionUpdateOne) sqlSave(ctx context.Context) (_node *AlertSession, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(alertsession.Table, alertsession.Columns, sqlgraph.NewFieldSpec(alertsession.FieldID, field.TypeString))
	id, ok := _u.mutation.ID()
	if !ok {
		return nil, &ValidationError{Name: "id", err: errors.New(`ent: missing "AlertSession.id" for update`)}
	}
	_spec.Node.ID.Value = id
	if fields := _u.fields; len(fields) > 0 {
		_spec.Node.Columns = make([]string, 0, len(fields))
		_spec.Node.Columns = append(_spec.Node.Columns, alertsession.FieldID)
		for _, f := range fields {
			if !alertsession.ValidColumn(f) {
				return nil, &ValidationError{Name: f, err: fmt.Errorf("ent: invalid field %q for query", f)}
			}
			if f != alertsession.FieldID {
				_spec.Node.Columns = append(_spec.Node.Columns, f)
			}
		}
	}
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.AlertType(); ok {
		_spec.SetField(alertsession.FieldAlertType, field.TypeString, value)
	}
	if value, ok := _u.mutation.AlertData(); ok {
		_spec.SetField(alertsession.FieldAlertData, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AlertFingerprint(); ok {
		_spec.SetField(alertsession.FieldAlertFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.ChainID(); ok {
		_spec.SetField(alertsession.FieldChainID, field.TypeString, value)
	}
	if value, ok := _u.mutation.ChainDefinition(); ok {
		_spec.SetField(alertsession.FieldChainDefinition, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AgentType(); ok {
		_spec.SetField(alertsession.FieldAgentType, field.TypeString, value)
	}
	if _u.mutation.AgentTypeCleared() {
		_spec.ClearField(alertsession.FieldAgentType, field.TypeString)
	}
	if value, ok := _u.mutation.Author(); ok {
		_spec.SetField(alertsession.FieldAuthor, field.TypeString, value)
	}
	if _u.mutation.AuthorCleared() {
		_spec.ClearField(alertsession.FieldAuthor, field.TypeString)
	}
	if value, ok := _u.mutation.RunbookURL(); ok {
		_spec.SetField(alertsession.FieldRunbookURL, field.TypeString, value)
	}
	if _u.mutation.RunbookURLCleared() {
		_spec.ClearField(alertsession.FieldRunbookURL, field.TypeString)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(alertsession.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.StartedAtUs(); ok {
		_spec.SetField(alertsession.FieldStartedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedStartedAtUs(); ok {
		_spec.AddField(alertsession.FieldStartedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.StartedAtUsCleared() {
		_spec.ClearField(alertsession.FieldStartedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.LastInteractionAtUs(); ok {
		_spec.SetField(alertsession.FieldLastInteractionAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedLastInteractionAtUs(); ok {
		_spec.AddField(alertsession.FieldLastInteractionAtUs, field.TypeInt64, value)
	}
	if _u.mutation.LastInteractionAtUsCleared() {
		_spec.ClearField(alertsession.FieldLastInteractionAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.CompletedAtUs(); ok {
		_spec.SetField(alertsession.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedCompletedAtUs(); ok {
		_spec.AddField(alertsession.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.CompletedAtUsCleared() {
		_spec.ClearField(alertsession.FieldCompletedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(alertsession.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(alertsession.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.FinalAnalysis(); ok {
		_spec.SetField(alertsession.FieldFinalAnalysis, field.TypeString, value)
	}
	if _u.mutation.FinalAnalysisCleared() {
		_spec.ClearField(alertsession.FieldFinalAnalysis, field.TypeString)
	}
	if value, ok := _u.mutation.PauseMetadata(); ok {
		_spec.SetField(alertsession.FieldPauseMetadata, field.TypeJSON, value)
	}
	if _u.mutation.PauseMetadataCleared() {
		_spec.ClearField(alertsession.FieldPauseMetadata, field.TypeJSON)
	}
	if value, ok := _u.mutation.PodID(); ok {
		_spec.SetField(alertsession.FieldPodID, field.TypeString, value)
	}
	if _u.mutation.PodIDCleared() {
		_spec.ClearField(alertsession.FieldPodID, field.TypeString)
	}
	if value, ok := _u.mutation.CancelRequested(); ok {
		_spec.SetField(alertsession.FieldCancelRequested, field.TypeBool, value)
	}
	if value, ok := _u.mutation.PauseRequested(); ok {
		_spec.SetField(alertsession.FieldPauseRequested, field.TypeBool, value)
	}
	if _u.mutation.StageExecutionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedStageExecutionsIDs(); len(nodes) > 0 && !_u.mutation.StageExecutionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.StageExecutionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.StageExecutionsTable,
			Columns: []string{alertsession.StageExecutionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _u.mutation.LlmInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedLlmInteractionsIDs(); len(nodes) > 0 && !_u.mutation.LlmInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.LlmInteractionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.LlmInteractionsTable,
			Columns: []string{alertsession.LlmInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _u.mutation.McpInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedMcpInteractionsIDs(); len(nodes) > 0 && !_u.mutation.McpInteractionsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.McpInteractionsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   alertsession.McpInteractionsTable,
			Columns: []string{alertsession.McpInteractionsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(mcpinteraction.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	_node = &AlertSession{config: _u.config}
	_spec.Assign = _node.assignValues
	_spec.ScanValues = _node.scanValues
	if err = sqlgraph.UpdateNode(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{alertsession.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	_u.mutation.done = true
	return _node, nil
}
