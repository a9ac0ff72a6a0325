// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/schema/field"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// StageExecutionCreate is the builder for creating a StageExecution entity.
type StageExecutionCreate struct {
	config
	mutation *StageExecutionMutation
	hooks    []Hook
}

// SetSessionID sets the "session_id" field.
func (_c *StageExecutionCreate) SetSessionID(v string) *StageExecutionCreate {
	_c.mutation.SetSessionID(v)
	return _c
}

// SetStageIndex sets the "stage_index" field.
func (_c *StageExecutionCreate) SetStageIndex(v int) *StageExecutionCreate {
	_c.mutation.SetStageIndex(v)
	return _c
}

// SetStageName sets the "stage_name" field.
func (_c *StageExecutionCreate) SetStageName(v string) *StageExecutionCreate {
	_c.mutation.SetStageName(v)
	return _c
}

// SetAgent sets the "agent" field.
func (_c *StageExecutionCreate) SetAgent(v string) *StageExecutionCreate {
	_c.mutation.SetAgent(v)
	return _c
}

// SetStatus sets the "status" field.
func (_c *StageExecutionCreate) SetStatus(v stageexecution.Status) *StageExecutionCreate {
	_c.mutation.SetStatus(v)
	return _c
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableStatus(v *stageexecution.Status) *StageExecutionCreate {
	if v != nil {
		_c.SetStatus(*v)
	}
	return _c
}

// SetCurrentIteration sets the "current_iteration" field.
func (_c *StageExecutionCreate) SetCurrentIteration(v int) *StageExecutionCreate {
	_c.mutation.SetCurrentIteration(v)
	return _c
}

// SetNillableCurrentIteration sets the "current_iteration" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableCurrentIteration(v *int) *StageExecutionCreate {
	if v != nil {
		_c.SetCurrentIteration(*v)
	}
	return _c
}

// SetStartedAtUs sets the "started_at_us" field.
func (_c *StageExecutionCreate) SetStartedAtUs(v int64) *StageExecutionCreate {
	_c.mutation.SetStartedAtUs(v)
	return _c
}

// SetNillableStartedAtUs sets the "started_at_us" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableStartedAtUs(v *int64) *StageExecutionCreate {
	if v != nil {
		_c.SetStartedAtUs(*v)
	}
	return _c
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (_c *StageExecutionCreate) SetCompletedAtUs(v int64) *StageExecutionCreate {
	_c.mutation.SetCompletedAtUs(v)
	return _c
}

// SetNillableCompletedAtUs sets the "completed_at_us" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableCompletedAtUs(v *int64) *StageExecutionCreate {
	if v != nil {
		_c.SetCompletedAtUs(*v)
	}
	return _c
}

// SetDurationMs sets the "duration_ms" field.
func (_c *StageExecutionCreate) SetDurationMs(v int64) *StageExecutionCreate {
	_c.mutation.SetDurationMs(v)
	return _c
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableDurationMs(v *int64) *StageExecutionCreate {
	if v != nil {
		_c.SetDurationMs(*v)
	}
	return _c
}

// SetStageOutput sets the "stage_output" field.
func (_c *StageExecutionCreate) SetStageOutput(v map[string]interface{}) *StageExecutionCreate {
	_c.mutation.SetStageOutput(v)
	return _c
}

// SetErrorMessage sets the "error_message" field.
func (_c *StageExecutionCreate) SetErrorMessage(v string) *StageExecutionCreate {
	_c.mutation.SetErrorMessage(v)
	return _c
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableErrorMessage(v *string) *StageExecutionCreate {
	if v != nil {
		_c.SetErrorMessage(*v)
	}
	return _c
}

// SetParentStageExecutionID sets the "parent_stage_execution_id" field.
func (_c *StageExecutionCreate) SetParentStageExecutionID(v string) *StageExecutionCreate {
	_c.mutation.SetParentStageExecutionID(v)
	return _c
}

// SetNillableParentStageExecutionID sets the "parent_stage_execution_id" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableParentStageExecutionID(v *string) *StageExecutionCreate {
	if v != nil {
		_c.SetParentStageExecutionID(*v)
	}
	return _c
}

// SetParallelType sets the "parallel_type" field.
func (_c *StageExecutionCreate) SetParallelType(v stageexecution.ParallelType) *StageExecutionCreate {
	_c.mutation.SetParallelType(v)
	return _c
}

// SetNillableParallelType sets the "parallel_type" field if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableParallelType(v *stageexecution.ParallelType) *StageExecutionCreate {
	if v != nil {
		_c.SetParallelType(*v)
	}
	return _c
}

// SetID sets the "id" field.
func (_c *StageExecutionCreate) SetID(v string) *StageExecutionCreate {
	_c.mutation.SetID(v)
	return _c
}

// SetSession sets the "session" edge to the AlertSession entity.
func (_c *StageExecutionCreate) SetSession(v *AlertSession) *StageExecutionCreate {
	return _c.SetSessionID(v.ID)
}

// SetParentID sets the "parent" edge to the StageExecution entity by ID.
func (_c *StageExecutionCreate) SetParentID(id string) *StageExecutionCreate {
	_c.mutation.SetParentID(id)
	return _c
}

// SetNillableParentID sets the "parent" edge to the StageExecution entity by ID if the given value is not nil.
func (_c *StageExecutionCreate) SetNillableParentID(id *string) *StageExecutionCreate {
	if id != nil {
		_c = _c.SetParentID(*id)
	}
	return _c
}

// SetParent sets the "parent" edge to the StageExecution entity.
func (_c *StageExecutionCreate) SetParent(v *StageExecution) *StageExecutionCreate {
	return _c.SetParentID(v.ID)
}

// AddChildIDs adds the "children" edge to the StageExecution entity by IDs.
func (_c *StageExecutionCreate) AddChildIDs(ids ...string) *StageExecutionCreate {
	_c.mutation.AddChildIDs(ids...)
	return _c
}

// AddChildren adds the "children" edges to the StageExecution entity.
func (_c *StageExecutionCreate) AddChildren(v ...*StageExecution) *StageExecutionCreate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _c.AddChildIDs(ids...)
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (_c *StageExecutionCreate) AddLlmInteractionIDs(ids ...string) *StageExecutionCreate {
	_c.mutation.AddLlmInteractionIDs(ids...)
	return _c
}

// AddLlmInteractions adds the "llm_interactions" edges to the LLMInteraction entity.
func (_c *StageExecutionCreate) AddLlmInteractions(v ...*LLMInteraction) *StageExecutionCreate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _c.AddLlmInteractionIDs(ids...)
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (_c *StageExecutionCreate) AddMcpInteractionIDs(ids ...string) *StageExecutionCreate {
	_c.mutation.AddMcpInteractionIDs(ids...)
	return _c
}

// AddMcpInteractions adds the "mcp_interactions" edges to the MCPInteraction entity.
func (_c *StageExecutionCreate) AddMcpInteractions(v ...*MCPInteraction) *StageExecutionCreate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _c.AddMcpInteractionIDs(ids...)
}

// Mutation returns the StageExecutionMutation object of the builder.
func (_c *StageExecutionCreate) Mutation() *StageExecutionMutation {
	return _c.mutation
}

// Save creates the StageExecution in the database.
func (_c *StageExecutionCreate) Save(ctx context.Context) (*StageExecution, error) {
	_c.defaults()
	return withHooks(ctx, _c.sqlSave, _c.mutation, _c.hooks)
}

// SaveX calls Save and panics if Save returns an error.
func (_c *StageExecutionCreate) SaveX(ctx context.Context) *StageExecution {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *StageExecutionCreate) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *StageExecutionCreate) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}

// defaults sets the default values of the builder before save.
func (_c *StageExecutionCreate) defaults() {
	if _, ok := _c.mutation.Status(); !ok {
		v := stageexecution.DefaultStatus
		_c.mutation.SetStatus(v)
	}
	if _, ok := _c.mutation.CurrentIteration(); !ok {
		v := stageexecution.DefaultCurrentIteration
		_c.mutation.SetCurrentIteration(v)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_c *StageExecutionCreate) check() error {
	if _, ok := _c.mutation.SessionID(); !ok {
		return &ValidationError{Name: "session_id", err: errors.New(`ent: missing required field "StageExecution.session_id"`)}
	}
	if _, ok := _c.mutation.StageIndex(); !ok {
		return &ValidationError{Name: "stage_index", err: errors.New(`ent: missing required field "StageExecution.stage_index"`)}
	}
	if _, ok := _c.mutation.StageName(); !ok {
		return &ValidationError{Name: "stage_name", err: errors.New(`ent: missing required field "StageExecution.stage_name"`)}
	}
	if _, ok := _c.mutation.Agent(); !ok {
		return &ValidationError{Name: "agent", err: errors.New(`ent: missing required field "StageExecution.agent"`)}
	}
	if _, ok := _c.mutation.Status(); !ok {
		return &ValidationError{Name: "status", err: errors.New(`ent: missing required field "StageExecution.status"`)}
	}
	if v, ok := _c.mutation.Status(); ok {
		if err := stageexecution.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "StageExecution.status": %w`, err)}
		}
	}
	if _, ok := _c.mutation.CurrentIteration(); !ok {
		return &ValidationError{Name: "current_iteration", err: errors.New(`ent: missing required field "StageExecution.current_iteration"`)}
	}
	if v, ok := _c.mutation.ParallelType(); ok {
		if err := stageexecution.ParallelTypeValidator(v); err != nil {
			return &ValidationError{Name: "parallel_type", err: fmt.Errorf(`ent: validator failed for field "StageExecution.parallel_type": %w`, err)}
		}
	}
	if len(_c.mutation.SessionIDs()) == 0 {
		return &ValidationError{Name: "session", err: errors.New(`ent: missing required edge "StageExecution.session"`)}
	}
	return nil
}

func (_c *StageExecutionCreate) sqlSave(ctx context.Context) (*StageExecution, error) {
	if err := _c.check(); err != nil {
		return nil, err
	}
	_node, _spec := _c.createSpec()
	if err := sqlgraph.CreateNode(ctx, _c.driver, _spec); err != nil {
		if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	if _spec.ID.Value != nil {
		if id, ok := _spec.ID.Value.(string); ok {
			_node.ID = id
		} else {
			return nil, fmt.Errorf("unexpected StageExecution.ID type: %T", _spec.ID.Value)
		}
	}
	_c.mutation.id = &_node.ID
	_c.mutation.done = true
	return _node, nil
}

func (_c *StageExecutionCreate) createSpec() (*StageExecution, *sqlgraph.CreateSpec) {
	var (
		_node = &StageExecution{config: _c.config}
		_spec = sqlgraph.NewCreateSpec(stageexecution.Table, sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString))
	)
	if id, ok := _c.mutation.ID(); ok {
		_node.ID = id
		_spec.ID.Value = id
	}
	if value, ok := _c.mutation.StageIndex(); ok {
		_spec.SetField(stageexecution.FieldStageIndex, field.TypeInt, value)
		_node.StageIndex = value
	}
	if value, ok := _c.mutation.StageName(); ok {
		_spec.SetField(stageexecution.FieldStageName, field.TypeString, value)
		_node.StageName = value
	}
	if value, ok := _c.mutation.Agent(); ok {
		_spec.SetField(stageexecution.FieldAgent, field.TypeString, value)
		_node.Agent = value
	}
	if value, ok := _c.mutation.Status(); ok {
		_spec.SetField(stageexecution.FieldStatus, field.TypeEnum, value)
		_node.Status = value
	}
	if value, ok := _c.mutation.CurrentIteration(); ok {
		_spec.SetField(stageexecution.FieldCurrentIteration, field.TypeInt, value)
		_node.CurrentIteration = value
	}
	if value, ok := _c.mutation.StartedAtUs(); ok {
		_spec.SetField(stageexecution.FieldStartedAtUs, field.TypeInt64, value)
		_node.StartedAtUs = &value
	}
	if value, ok := _c.mutation.CompletedAtUs(); ok {
		_spec.SetField(stageexecution.FieldCompletedAtUs, field.TypeInt64, value)
		_node.CompletedAtUs = &value
	}
	if value, ok := _c.mutation.DurationMs(); ok {
		_spec.SetField(stageexecution.FieldDurationMs, field.TypeInt64, value)
		_node.DurationMs = &value
	}
	if value, ok := _c.mutation.StageOutput(); ok {
		_spec.SetField(stageexecution.FieldStageOutput, field.TypeJSON, value)
		_node.StageOutput = value
	}
	if value, ok := _c.mutation.ErrorMessage(); ok {
		_spec.SetField(stageexecution.FieldErrorMessage, field.TypeString, value)
		_node.ErrorMessage = &value
	}
	if value, ok := _c.mutation.ParallelType(); ok {
		_spec.SetField(stageexecution.FieldParallelType, field.TypeEnum, value)
		_node.ParallelType = &value
	}
	if nodes := _c.mutation.SessionIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.M2O,
			Inverse: true,
			Table:   stageexecution.SessionTable,
			Columns: []string{stageexecution.SessionColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(alertsession.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_node.SessionID = nodes[0]
		_spec.Edges = append(_spec.Edges, edge)
	}
	if nodes := _c.mutation.ParentIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.M2O,
			Inverse: true,
			Table:   stageexecution.ParentTable,
			Columns: []string{stageexecution.ParentColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_node.ParentStageExecutionID = &nodes[0]
		_spec.Edges = append(_spec.Edges, edge)
	}
	if nodes := _c.mutation.ChildrenIDs(); len(nodes) > 0 {
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
		_spec.Edges = append(_spec.Edges, edge)
	}
	if nodes := _c.mutation.LlmInteractionsIDs(); len(nodes) > 0 {
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
		_spec.Edges = append(_spec.Edges, edge)
	}
	if nodes := _c.mutation.McpInteractionsIDs(); len(nodes) > 0 {
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
		_spec.Edges = append(_spec.Edges, edge)
	}
	return _node, _spec
}

// StageExecutionCreateBulk is the builder for creating many StageExecution entities in bulk.
type StageExecutionCreateBulk struct {
	config
	err      error
	builders []*StageExecutionCreate
}

// Save creates the StageExecution entities in the database.
func (_c *StageExecutionCreateBulk) Save(ctx context.Context) ([]*StageExecution, error) {
	if _c.err != nil {
		return nil, _c.err
	}
	specs := make([]*sqlgraph.CreateSpec, len(_c.builders))
	nodes := make([]*StageExecution, len(_c.builders))
	mutators := make([]Mutator, len(_c.builders))
	for i := range _c.builders {
		func(i int, root context.Context) {
			builder := _c.builders[i]
			builder.defaults()
			var mut Mutator = MutateFunc(func(ctx context.Context, m Mutation) (Value, error) {
				mutation, ok := m.(*StageExecutionMutation)
				if !ok {
					return nil, fmt.Errorf("unexpected mutation type %T", m)
				}
				if err := builder.check(); err != nil {
					return nil, err
				}
				builder.mutation = mutation
				var err error
				nodes[i], specs[i] = builder.createSpec()
				if i < len(mutators)-1 {
					_, err = mutators[i+1].Mutate(root, _c.builders[i+1].mutation)
				} else {
					spec := &sqlgraph.BatchCreateSpec{Nodes: specs}
					// Invoke the actual operation on the latest mutation in the chain.
					if err = sqlgraph.BatchCreate(ctx, _c.driver, spec); err != nil {
						if sqlgraph.IsConstraintError(err) {
							err = &ConstraintError{msg: err.Error(), wrap: err}
						}
					}
				}
				if err != nil {
					return nil, err
				}
				mutation.id = &nodes[i].ID
				mutation.done = true
				return nodes[i], nil
			})
			for i := len(builder.hooks) - 1; i >= 0; i-- {
				mut = builder.hooks[i](mut)
			}
			mutators[i] = mut
		}(i, ctx)
	}
	if len(mutators) > 0 {
		if _, err := mutators[0].Mutate(ctx, _c.builders[0].mutation); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SaveX is like Save, but panics if an error occurs.
func (_c *StageExecutionCreateBulk) SaveX(ctx context.Context) []*StageExecution {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *StageExecutionCreateBulk) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *StageExecutionCreateBulk) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}
