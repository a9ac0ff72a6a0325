// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/schema/field"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/predicate"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// StageExecutionUpdate is the builder for updating StageExecution entities.
type StageExecutionUpdate struct {
	config
	hooks    []Hook
	mutation *StageExecutionMutation
}

// Where appends a list predicates to the StageExecutionUpdate builder.
func (_u *StageExecutionUpdate) Where(ps ...predicate.StageExecution) *StageExecutionUpdate {
	_u.mutation.Where(ps...)
	return _u
}

// SetStageIndex sets the "stage_index" field.
func (_u *StageExecutionUpdate) SetStageIndex(v int) *StageExecutionUpdate {
	_u.mutation.ResetStageIndex()
	_u.mutation.SetStageIndex(v)
	return _u
}

// SetNillableStageIndex sets the "stage_index" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableStageIndex(v *int) *StageExecutionUpdate {
	if v != nil {
		_u.SetStageIndex(*v)
	}
	return _u
}

// AddStageIndex adds value to the "stage_index" field.
func (_u *StageExecutionUpdate) AddStageIndex(v int) *StageExecutionUpdate {
	_u.mutation.AddStageIndex(v)
	return _u
}

// SetStageName sets the "stage_name" field.
func (_u *StageExecutionUpdate) SetStageName(v string) *StageExecutionUpdate {
	_u.mutation.SetStageName(v)
	return _u
}

// SetNillableStageName sets the "stage_name" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableStageName(v *string) *StageExecutionUpdate {
	if v != nil {
		_u.SetStageName(*v)
	}
	return _u
}

// SetAgent sets the "agent" field.
func (_u *StageExecutionUpdate) SetAgent(v string) *StageExecutionUpdate {
	_u.mutation.SetAgent(v)
	return _u
}

// SetNillableAgent sets the "agent" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableAgent(v *string) *StageExecutionUpdate {
	if v != nil {
		_u.SetAgent(*v)
	}
	return _u
}

// SetStatus sets the "status" field.
func (_u *StageExecutionUpdate) SetStatus(v stageexecution.Status) *StageExecutionUpdate {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableStatus(v *stageexecution.Status) *StageExecutionUpdate {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetCurrentIteration sets the "current_iteration" field.
func (_u *StageExecutionUpdate) SetCurrentIteration(v int) *StageExecutionUpdate {
	_u.mutation.ResetCurrentIteration()
	_u.mutation.SetCurrentIteration(v)
	return _u
}

// SetNillableCurrentIteration sets the "current_iteration" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableCurrentIteration(v *int) *StageExecutionUpdate {
	if v != nil {
		_u.SetCurrentIteration(*v)
	}
	return _u
}

// AddCurrentIteration adds value to the "current_iteration" field.
func (_u *StageExecutionUpdate) AddCurrentIteration(v int) *StageExecutionUpdate {
	_u.mutation.AddCurrentIteration(v)
	return _u
}

// SetStartedAtUs sets the "started_at_us" field.
func (_u *StageExecutionUpdate) SetStartedAtUs(v int64) *StageExecutionUpdate {
	_u.mutation.ResetStartedAtUs()
	_u.mutation.SetStartedAtUs(v)
	return _u
}

// SetNillableStartedAtUs sets the "started_at_us" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableStartedAtUs(v *int64) *StageExecutionUpdate {
	if v != nil {
		_u.SetStartedAtUs(*v)
	}
	return _u
}

// AddStartedAtUs adds value to the "started_at_us" field.
func (_u *StageExecutionUpdate) AddStartedAtUs(v int64) *StageExecutionUpdate {
	_u.mutation.AddStartedAtUs(v)
	return _u
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (_u *StageExecutionUpdate) ClearStartedAtUs() *StageExecutionUpdate {
	_u.mutation.ClearStartedAtUs()
	return _u
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (_u *StageExecutionUpdate) SetCompletedAtUs(v int64) *StageExecutionUpdate {
	_u.mutation.ResetCompletedAtUs()
	_u.mutation.SetCompletedAtUs(v)
	return _u
}

// SetNillableCompletedAtUs sets the "completed_at_us" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableCompletedAtUs(v *int64) *StageExecutionUpdate {
	if v != nil {
		_u.SetCompletedAtUs(*v)
	}
	return _u
}

// AddCompletedAtUs adds value to the "completed_at_us" field.
func (_u *StageExecutionUpdate) AddCompletedAtUs(v int64) *StageExecutionUpdate {
	_u.mutation.AddCompletedAtUs(v)
	return _u
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (_u *StageExecutionUpdate) ClearCompletedAtUs() *StageExecutionUpdate {
	_u.mutation.ClearCompletedAtUs()
	return _u
}

// SetDurationMs sets the "duration_ms" field.
func (_u *StageExecutionUpdate) SetDurationMs(v int64) *StageExecutionUpdate {
	_u.mutation.ResetDurationMs()
	_u.mutation.SetDurationMs(v)
	return _u
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableDurationMs(v *int64) *StageExecutionUpdate {
	if v != nil {
		_u.SetDurationMs(*v)
	}
	return _u
}

// AddDurationMs adds value to the "duration_ms" field.
func (_u *StageExecutionUpdate) AddDurationMs(v int64) *StageExecutionUpdate {
	_u.mutation.AddDurationMs(v)
	return _u
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (_u *StageExecutionUpdate) ClearDurationMs() *StageExecutionUpdate {
	_u.mutation.ClearDurationMs()
	return _u
}

// SetStageOutput sets the "stage_output" field.
func (_u *StageExecutionUpdate) SetStageOutput(v map[string]interface{}) *StageExecutionUpdate {
	_u.mutation.SetStageOutput(v)
	return _u
}

// ClearStageOutput clears the value of the "stage_output" field.
func (_u *StageExecutionUpdate) ClearStageOutput() *StageExecutionUpdate {
	_u.mutation.ClearStageOutput()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *StageExecutionUpdate) SetErrorMessage(v string) *StageExecutionUpdate {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableErrorMessage(v *string) *StageExecutionUpdate {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *StageExecutionUpdate) ClearErrorMessage() *StageExecutionUpdate {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetParallelType sets the "parallel_type" field.
func (_u *StageExecutionUpdate) SetParallelType(v stageexecution.ParallelType) *StageExecutionUpdate {
	_u.mutation.SetParallelType(v)
	return _u
}

// SetNillableParallelType sets the "parallel_type" field if the given value is not nil.
func (_u *StageExecutionUpdate) SetNillableParallelType(v *stageexecution.ParallelType) *StageExecutionUpdate {
	if v != nil {
		_u.SetParallelType(*v)
	}
	return _u
}

// ClearParallelType clears the value of the "parallel_type" field.
func (_u *StageExecutionUpdate) ClearParallelType() *StageExecutionUpdate {
	_u.mutation.ClearParallelType()
	return _u
}

// AddChildIDs adds the "children" edge to the StageExecution entity by IDs.
func (_u *StageExecutionUpdate) AddChildIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.AddChildIDs(ids...)
	return _u
}

// AddChildren adds the "children" edges to the StageExecution entity.
func (_u *StageExecutionUpdate) AddChildren(v ...*StageExecution) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddChildIDs(ids...)
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (_u *StageExecutionUpdate) AddLlmInteractionIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.AddLlmInteractionIDs(ids...)
	return _u
}

// AddLlmInteractions adds the "llm_interactions" edges to the LLMInteraction entity.
func (_u *StageExecutionUpdate) AddLlmInteractions(v ...*LLMInteraction) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddLlmInteractionIDs(ids...)
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (_u *StageExecutionUpdate) AddMcpInteractionIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.AddMcpInteractionIDs(ids...)
	return _u
}

// AddMcpInteractions adds the "mcp_interactions" edges to the MCPInteraction entity.
func (_u *StageExecutionUpdate) AddMcpInteractions(v ...*MCPInteraction) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddMcpInteractionIDs(ids...)
}

// Mutation returns the StageExecutionMutation object of the builder.
func (_u *StageExecutionUpdate) Mutation() *StageExecutionMutation {
	return _u.mutation
}

// ClearChildren clears all "children" edges to the StageExecution entity.
func (_u *StageExecutionUpdate) ClearChildren() *StageExecutionUpdate {
	_u.mutation.ClearChildren()
	return _u
}

// RemoveChildIDs removes the "children" edge to StageExecution entities by IDs.
func (_u *StageExecutionUpdate) RemoveChildIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.RemoveChildIDs(ids...)
	return _u
}

// RemoveChildren removes "children" edges to StageExecution entities.
func (_u *StageExecutionUpdate) RemoveChildren(v ...*StageExecution) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveChildIDs(ids...)
}

// ClearLlmInteractions clears all "llm_interactions" edges to the LLMInteraction entity.
func (_u *StageExecutionUpdate) ClearLlmInteractions() *StageExecutionUpdate {
	_u.mutation.ClearLlmInteractions()
	return _u
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to LLMInteraction entities by IDs.
func (_u *StageExecutionUpdate) RemoveLlmInteractionIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.RemoveLlmInteractionIDs(ids...)
	return _u
}

// RemoveLlmInteractions removes "llm_interactions" edges to LLMInteraction entities.
func (_u *StageExecutionUpdate) RemoveLlmInteractions(v ...*LLMInteraction) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveLlmInteractionIDs(ids...)
}

// ClearMcpInteractions clears all "mcp_interactions" edges to the MCPInteraction entity.
func (_u *StageExecutionUpdate) ClearMcpInteractions() *StageExecutionUpdate {
	_u.mutation.ClearMcpInteractions()
	return _u
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to MCPInteraction entities by IDs.
func (_u *StageExecutionUpdate) RemoveMcpInteractionIDs(ids ...string) *StageExecutionUpdate {
	_u.mutation.RemoveMcpInteractionIDs(ids...)
	return _u
}

// RemoveMcpInteractions removes "mcp_interactions" edges to MCPInteraction entities.
func (_u *StageExecutionUpdate) RemoveMcpInteractions(v ...*MCPInteraction) *StageExecutionUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveMcpInteractionIDs(ids...)
}

// Save executes the query and returns the number of nodes affected by the update operation.
func (_u *StageExecutionUpdate) Save(ctx context.Context) (int, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *StageExecutionUpdate) SaveX(ctx context.Context) int {
	affected, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return affected
}

// Exec executes the query.
func (_u *StageExecutionUpdate) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *StageExecutionUpdate) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *StageExecutionUpdate) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := stageexecution.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "StageExecution.status": %w`, err)}
		}
	}
	if v, ok := _u.mutation.ParallelType(); ok {
		if err := stageexecution.ParallelTypeValidator(v); err != nil {
			return &ValidationError{Name: "parallel_type", err: fmt.Errorf(`ent: validator failed for field "StageExecution.parallel_type": %w`, err)}
		}
	}
	if _u.mutation.SessionCleared() && len(_u.mutation.SessionIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "StageExecution.session"`)
	}
	return nil
}

func (_u *StageExecutionUpdate) sqlSave(ctx context.Context) (_node int, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(stageexecution.Table, stageexecution.Columns, sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString))
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.StageIndex(); ok {
		_spec.SetField(stageexecution.FieldStageIndex, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedStageIndex(); ok {
		_spec.AddField(stageexecution.FieldStageIndex, field.TypeInt, value)
	}
	if value, ok := _u.mutation.StageName(); ok {
		_spec.SetField(stageexecution.FieldStageName, field.TypeString, value)
	}
	if value, ok := _u.mutation.Agent(); ok {
		_spec.SetField(stageexecution.FieldAgent, field.TypeString, value)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(stageexecution.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.CurrentIteration(); ok {
		_spec.SetField(stageexecution.FieldCurrentIteration, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedCurrentIteration(); ok {
		_spec.AddField(stageexecution.FieldCurrentIteration, field.TypeInt, value)
	}
	if value, ok := _u.mutation.StartedAtUs(); ok {
		_spec.SetField(stageexecution.FieldStartedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedStartedAtUs(); ok {
		_spec.AddField(stageexecution.FieldStartedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.StartedAtUsCleared() {
		_spec.ClearField(stageexecution.FieldStartedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.CompletedAtUs(); ok {
		_spec.SetField(stageexecution.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedCompletedAtUs(); ok {
		_spec.AddField(stageexecution.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.CompletedAtUsCleared() {
		_spec.ClearField(stageexecution.FieldCompletedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.DurationMs(); ok {
		_spec.SetField(stageexecution.FieldDurationMs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedDurationMs(); ok {
		_spec.AddField(stageexecution.FieldDurationMs, field.TypeInt64, value)
	}
	if _u.mutation.DurationMsCleared() {
		_spec.ClearField(stageexecution.FieldDurationMs, field.TypeInt64)
	}
	if value, ok := _u.mutation.StageOutput(); ok {
		_spec.SetField(stageexecution.FieldStageOutput, field.TypeJSON, value)
	}
	if _u.mutation.StageOutputCleared() {
		_spec.ClearField(stageexecution.FieldStageOutput, field.TypeJSON)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(stageexecution.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(stageexecution.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.ParallelType(); ok {
		_spec.SetField(stageexecution.FieldParallelType, field.TypeEnum, value)
	}
	if _u.mutation.ParallelTypeCleared() {
		_spec.ClearField(stageexecution.FieldParallelType, field.TypeEnum)
	}
	if _u.mutation.ChildrenCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedChildrenIDs(); len(nodes) > 0 && !_u.mutation.ChildrenCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
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
	if nodes := _u.mutation.ChildrenIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
			err = &NotFoundError{stageexecution.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return 0, err
	}
	_u.mutation.done = true
	return _node, nil
}

// StageExecutionUpdateOne is the builder for updating a single StageExecution entity.
type StageExecutionUpdateOne struct {
	config
	fields   []string
	hooks    []Hook
	mutation *StageExecutionMutation
}

// SetStageIndex sets the "stage_index" field.
func (_u *StageExecutionUpdateOne) SetStageIndex(v int) *StageExecutionUpdateOne {
	_u.mutation.ResetStageIndex()
	_u.mutation.SetStageIndex(v)
	return _u
}

// SetNillableStageIndex sets the "stage_index" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableStageIndex(v *int) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetStageIndex(*v)
	}
	return _u
}

// AddStageIndex adds value to the "stage_index" field.
func (_u *StageExecutionUpdateOne) AddStageIndex(v int) *StageExecutionUpdateOne {
	_u.mutation.AddStageIndex(v)
	return _u
}

// SetStageName sets the "stage_name" field.
func (_u *StageExecutionUpdateOne) SetStageName(v string) *StageExecutionUpdateOne {
	_u.mutation.SetStageName(v)
	return _u
}

// SetNillableStageName sets the "stage_name" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableStageName(v *string) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetStageName(*v)
	}
	return _u
}

// SetAgent sets the "agent" field.
func (_u *StageExecutionUpdateOne) SetAgent(v string) *StageExecutionUpdateOne {
	_u.mutation.SetAgent(v)
	return _u
}

// SetNillableAgent sets the "agent" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableAgent(v *string) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetAgent(*v)
	}
	return _u
}

// SetStatus sets the "status" field.
func (_u *StageExecutionUpdateOne) SetStatus(v stageexecution.Status) *StageExecutionUpdateOne {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableStatus(v *stageexecution.Status) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetCurrentIteration sets the "current_iteration" field.
func (_u *StageExecutionUpdateOne) SetCurrentIteration(v int) *StageExecutionUpdateOne {
	_u.mutation.ResetCurrentIteration()
	_u.mutation.SetCurrentIteration(v)
	return _u
}

// SetNillableCurrentIteration sets the "current_iteration" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableCurrentIteration(v *int) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetCurrentIteration(*v)
	}
	return _u
}

// AddCurrentIteration adds value to the "current_iteration" field.
func (_u *StageExecutionUpdateOne) AddCurrentIteration(v int) *StageExecutionUpdateOne {
	_u.mutation.AddCurrentIteration(v)
	return _u
}

// SetStartedAtUs sets the "started_at_us" field.
func (_u *StageExecutionUpdateOne) SetStartedAtUs(v int64) *StageExecutionUpdateOne {
	_u.mutation.ResetStartedAtUs()
	_u.mutation.SetStartedAtUs(v)
	return _u
}

// SetNillableStartedAtUs sets the "started_at_us" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableStartedAtUs(v *int64) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetStartedAtUs(*v)
	}
	return _u
}

// AddStartedAtUs adds value to the "started_at_us" field.
func (_u *StageExecutionUpdateOne) AddStartedAtUs(v int64) *StageExecutionUpdateOne {
	_u.mutation.AddStartedAtUs(v)
	return _u
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (_u *StageExecutionUpdateOne) ClearStartedAtUs() *StageExecutionUpdateOne {
	_u.mutation.ClearStartedAtUs()
	return _u
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (_u *StageExecutionUpdateOne) SetCompletedAtUs(v int64) *StageExecutionUpdateOne {
	_u.mutation.ResetCompletedAtUs()
	_u.mutation.SetCompletedAtUs(v)
	return _u
}

// SetNillableCompletedAtUs sets the "completed_at_us" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableCompletedAtUs(v *int64) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetCompletedAtUs(*v)
	}
	return _u
}

// AddCompletedAtUs adds value to the "completed_at_us" field.
func (_u *StageExecutionUpdateOne) AddCompletedAtUs(v int64) *StageExecutionUpdateOne {
	_u.mutation.AddCompletedAtUs(v)
	return _u
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (_u *StageExecutionUpdateOne) ClearCompletedAtUs() *StageExecutionUpdateOne {
	_u.mutation.ClearCompletedAtUs()
	return _u
}

// SetDurationMs sets the "duration_ms" field.
func (_u *StageExecutionUpdateOne) SetDurationMs(v int64) *StageExecutionUpdateOne {
	_u.mutation.ResetDurationMs()
	_u.mutation.SetDurationMs(v)
	return _u
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableDurationMs(v *int64) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetDurationMs(*v)
	}
	return _u
}

// AddDurationMs adds value to the "duration_ms" field.
func (_u *StageExecutionUpdateOne) AddDurationMs(v int64) *StageExecutionUpdateOne {
	_u.mutation.AddDurationMs(v)
	return _u
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (_u *StageExecutionUpdateOne) ClearDurationMs() *StageExecutionUpdateOne {
	_u.mutation.ClearDurationMs()
	return _u
}

// SetStageOutput sets the "stage_output" field.
func (_u *StageExecutionUpdateOne) SetStageOutput(v map[string]interface{}) *StageExecutionUpdateOne {
	_u.mutation.SetStageOutput(v)
	return _u
}

// ClearStageOutput clears the value of the "stage_output" field.
func (_u *StageExecutionUpdateOne) ClearStageOutput() *StageExecutionUpdateOne {
	_u.mutation.ClearStageOutput()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *StageExecutionUpdateOne) SetErrorMessage(v string) *StageExecutionUpdateOne {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableErrorMessage(v *string) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *StageExecutionUpdateOne) ClearErrorMessage() *StageExecutionUpdateOne {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetParallelType sets the "parallel_type" field.
func (_u *StageExecutionUpdateOne) SetParallelType(v stageexecution.ParallelType) *StageExecutionUpdateOne {
	_u.mutation.SetParallelType(v)
	return _u
}

// SetNillableParallelType sets the "parallel_type" field if the given value is not nil.
func (_u *StageExecutionUpdateOne) SetNillableParallelType(v *stageexecution.ParallelType) *StageExecutionUpdateOne {
	if v != nil {
		_u.SetParallelType(*v)
	}
	return _u
}

// ClearParallelType clears the value of the "parallel_type" field.
func (_u *StageExecutionUpdateOne) ClearParallelType() *StageExecutionUpdateOne {
	_u.mutation.ClearParallelType()
	return _u
}

// AddChildIDs adds the "children" edge to the StageExecution entity by IDs.
func (_u *StageExecutionUpdateOne) AddChildIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.AddChildIDs(ids...)
	return _u
}

// AddChildren adds the "children" edges to the StageExecution entity.
func (_u *StageExecutionUpdateOne) AddChildren(v ...*StageExecution) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddChildIDs(ids...)
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (_u *StageExecutionUpdateOne) AddLlmInteractionIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.AddLlmInteractionIDs(ids...)
	return _u
}

// AddLlmInteractions adds the "llm_interactions" edges to the LLMInteraction entity.
func (_u *StageExecutionUpdateOne) AddLlmInteractions(v ...*LLMInteraction) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddLlmInteractionIDs(ids...)
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (_u *StageExecutionUpdateOne) AddMcpInteractionIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.AddMcpInteractionIDs(ids...)
	return _u
}

// AddMcpInteractions adds the "mcp_interactions" edges to the MCPInteraction entity.
func (_u *StageExecutionUpdateOne) AddMcpInteractions(v ...*MCPInteraction) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddMcpInteractionIDs(ids...)
}

// Mutation returns the StageExecutionMutation object of the builder.
func (_u *StageExecutionUpdateOne) Mutation() *StageExecutionMutation {
	return _u.mutation
}

// ClearChildren clears all "children" edges to the StageExecution entity.
func (_u *StageExecutionUpdateOne) ClearChildren() *StageExecutionUpdateOne {
	_u.mutation.ClearChildren()
	return _u
}

// RemoveChildIDs removes the "children" edge to StageExecution entities by IDs.
func (_u *StageExecutionUpdateOne) RemoveChildIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.RemoveChildIDs(ids...)
	return _u
}

// RemoveChildren removes "children" edges to StageExecution entities.
func (_u *StageExecutionUpdateOne) RemoveChildren(v ...*StageExecution) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveChildIDs(ids...)
}

// ClearLlmInteractions clears all "llm_interactions" edges to the LLMInteraction entity.
func (_u *StageExecutionUpdateOne) ClearLlmInteractions() *StageExecutionUpdateOne {
	_u.mutation.ClearLlmInteractions()
	return _u
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to LLMInteraction entities by IDs.
func (_u *StageExecutionUpdateOne) RemoveLlmInteractionIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.RemoveLlmInteractionIDs(ids...)
	return _u
}

// RemoveLlmInteractions removes "llm_interactions" edges to LLMInteraction entities.
func (_u *StageExecutionUpdateOne) RemoveLlmInteractions(v ...*LLMInteraction) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveLlmInteractionIDs(ids...)
}

// ClearMcpInteractions clears all "mcp_interactions" edges to the MCPInteraction entity.
func (_u *StageExecutionUpdateOne) ClearMcpInteractions() *StageExecutionUpdateOne {
	_u.mutation.ClearMcpInteractions()
	return _u
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to MCPInteraction entities by IDs.
func (_u *StageExecutionUpdateOne) RemoveMcpInteractionIDs(ids ...string) *StageExecutionUpdateOne {
	_u.mutation.RemoveMcpInteractionIDs(ids...)
	return _u
}

// RemoveMcpInteractions removes "mcp_interactions" edges to MCPInteraction entities.
func (_u *StageExecutionUpdateOne) RemoveMcpInteractions(v ...*MCPInteraction) *StageExecutionUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveMcpInteractionIDs(ids...)
}

// Where appends a list predicates to the StageExecutionUpdate builder.
func (_u *StageExecutionUpdateOne) Where(ps ...predicate.StageExecution) *StageExecutionUpdateOne {
	_u.mutation.Where(ps...)
	return _u
}

// Select allows selecting one or more fields (columns) of the returned entity.
// The default is selecting all fields defined in the entity schema.
func (_u *StageExecutionUpdateOne) Select(field string, fields ...string) *StageExecutionUpdateOne {
	_u.fields = append([]string{field}, fields...)
	return _u
}

// Save executes the query and returns the updated StageExecution entity.
func (_u *StageExecutionUpdateOne) Save(ctx context.Context) (*StageExecution, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *StageExecutionUpdateOne) SaveX(ctx context.Context) *StageExecution {
	node, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return node
}

// Exec executes the query on the entity.
func (_u *StageExecutionUpdateOne) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *StageExecutionUpdateOne) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *StageExecutionUpdateOne) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := stageexecution.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "StageExecution.status": %w`, err)}
		}
	}
	if v, ok := _u.mutation.ParallelType(); ok {
		if err := stageexecution.ParallelTypeValidator(v); err != nil {
			return &ValidationError{Name: "parallel_type", err: fmt.Errorf(`ent: validator failed for field "StageExecution.parallel_type": %w`, err)}
		}
	}
	if _u.mutation.SessionCleared() && len(_u.mutation.SessionIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "StageExecution.session"`)
	}
	return nil
}

func (_u *StageExecutionUpdateOne) sqlSave(ctx context.Context) (_node *StageExecution, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(stageexecution.Table, stageexecution.Columns, sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString))
	id, ok := _u.mutation.ID()
	if !ok {
		return nil, &ValidationError{Name: "id", err: errors.New(`ent: missing "StageExecution.id" for update`)}
	}
	_spec.Node.ID.Value = id
	if fields := _u.fields; len(fields) > 0 {
		_spec.Node.Columns = make([]string, 0, len(fields))
		_spec.Node.Columns = append(_spec.Node.Columns, stageexecution.FieldID)
		for _, f := range fields {
			if !stageexecution.ValidColumn(f) {
				return nil, &ValidationError{Name: f, err: fmt.Errorf("ent: invalid field %q for query", f)}
			}
			if f != stageexecution.FieldID {
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
	if value, ok := _u.mutation.StageIndex(); ok {
		_spec.SetField(stageexecution.FieldStageIndex, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedStageIndex(); ok {
		_spec.AddField(stageexecution.FieldStageIndex, field.TypeInt, value)
	}
	if value, ok := _u.mutation.StageName(); ok {
		_spec.SetField(stageexecution.FieldStageName, field.TypeString, value)
	}
	if value, ok := _u.mutation.Agent(); ok {
		_spec.SetField(stageexecution.FieldAgent, field.TypeString, value)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(stageexecution.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.CurrentIteration(); ok {
		_spec.SetField(stageexecution.FieldCurrentIteration, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedCurrentIteration(); ok {
		_spec.AddField(stageexecution.FieldCurrentIteration, field.TypeInt, value)
	}
	if value, ok := _u.mutation.StartedAtUs(); ok {
		_spec.SetField(stageexecution.FieldStartedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedStartedAtUs(); ok {
		_spec.AddField(stageexecution.FieldStartedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.StartedAtUsCleared() {
		_spec.ClearField(stageexecution.FieldStartedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.CompletedAtUs(); ok {
		_spec.SetField(stageexecution.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedCompletedAtUs(); ok {
		_spec.AddField(stageexecution.FieldCompletedAtUs, field.TypeInt64, value)
	}
	if _u.mutation.CompletedAtUsCleared() {
		_spec.ClearField(stageexecution.FieldCompletedAtUs, field.TypeInt64)
	}
	if value, ok := _u.mutation.DurationMs(); ok {
		_spec.SetField(stageexecution.FieldDurationMs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedDurationMs(); ok {
		_spec.AddField(stageexecution.FieldDurationMs, field.TypeInt64, value)
	}
	if _u.mutation.DurationMsCleared() {
		_spec.ClearField(stageexecution.FieldDurationMs, field.TypeInt64)
	}
	if value, ok := _u.mutation.StageOutput(); ok {
		_spec.SetField(stageexecution.FieldStageOutput, field.TypeJSON, value)
	}
	if _u.mutation.StageOutputCleared() {
		_spec.ClearField(stageexecution.FieldStageOutput, field.TypeJSON)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(stageexecution.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(stageexecution.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.ParallelType(); ok {
		_spec.SetField(stageexecution.FieldParallelType, field.TypeEnum, value)
	}
	if _u.mutation.ParallelTypeCleared() {
		_spec.ClearField(stageexecution.FieldParallelType, field.TypeEnum)
	}
	if _u.mutation.ChildrenCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedChildrenIDs(); len(nodes) > 0 && !_u.mutation.ChildrenCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
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
	if nodes := _u.mutation.ChildrenIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   stageexecution.ChildrenTable,
			Columns: []string{stageexecution.ChildrenColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.LlmInteractionsTable,
			Columns: []string{stageexecution.LlmInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
			Table:   stageexecution.McpInteractionsTable,
			Columns: []string{stageexecution.McpInteractionsColumn},
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
	_node = &StageExecution{config: _u.config}
	_spec.Assign = _node.assignValues
	_spec.ScanValues = _node.scanValues
	if err = sqlgraph.UpdateNode(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{stageexecution.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	_u.mutation.done = true
	return _node, nil
}
