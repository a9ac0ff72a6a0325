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
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// LLMInteractionCreate is the builder for creating a LLMInteraction entity.
type LLMInteractionCreate struct {
	config
	mutation *LLMInteractionMutation
	hooks    []Hook
}

// SetSessionID sets the "session_id" field.
func (_c *LLMInteractionCreate) SetSessionID(v string) *LLMInteractionCreate {
	_c.mutation.SetSessionID(v)
	return _c
}

// SetStageExecutionID sets the "stage_execution_id" field.
func (_c *LLMInteractionCreate) SetStageExecutionID(v string) *LLMInteractionCreate {
	_c.mutation.SetStageExecutionID(v)
	return _c
}

// SetNillableStageExecutionID sets the "stage_execution_id" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableStageExecutionID(v *string) *LLMInteractionCreate {
	if v != nil {
		_c.SetStageExecutionID(*v)
	}
	return _c
}

// SetTimestampUs sets the "timestamp_us" field.
func (_c *LLMInteractionCreate) SetTimestampUs(v int64) *LLMInteractionCreate {
	_c.mutation.SetTimestampUs(v)
	return _c
}

// SetDurationMs sets the "duration_ms" field.
func (_c *LLMInteractionCreate) SetDurationMs(v int64) *LLMInteractionCreate {
	_c.mutation.SetDurationMs(v)
	return _c
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableDurationMs(v *int64) *LLMInteractionCreate {
	if v != nil {
		_c.SetDurationMs(*v)
	}
	return _c
}

// SetSuccess sets the "success" field.
func (_c *LLMInteractionCreate) SetSuccess(v bool) *LLMInteractionCreate {
	_c.mutation.SetSuccess(v)
	return _c
}

// SetNillableSuccess sets the "success" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableSuccess(v *bool) *LLMInteractionCreate {
	if v != nil {
		_c.SetSuccess(*v)
	}
	return _c
}

// SetInteractionType sets the "interaction_type" field.
func (_c *LLMInteractionCreate) SetInteractionType(v string) *LLMInteractionCreate {
	_c.mutation.SetInteractionType(v)
	return _c
}

// SetNillableInteractionType sets the "interaction_type" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableInteractionType(v *string) *LLMInteractionCreate {
	if v != nil {
		_c.SetInteractionType(*v)
	}
	return _c
}

// SetProvider sets the "provider" field.
func (_c *LLMInteractionCreate) SetProvider(v string) *LLMInteractionCreate {
	_c.mutation.SetProvider(v)
	return _c
}

// SetModelName sets the "model_name" field.
func (_c *LLMInteractionCreate) SetModelName(v string) *LLMInteractionCreate {
	_c.mutation.SetModelName(v)
	return _c
}

// SetRequest sets the "request" field.
func (_c *LLMInteractionCreate) SetRequest(v map[string]interface{}) *LLMInteractionCreate {
	_c.mutation.SetRequest(v)
	return _c
}

// SetResponse sets the "response" field.
func (_c *LLMInteractionCreate) SetResponse(v map[string]interface{}) *LLMInteractionCreate {
	_c.mutation.SetResponse(v)
	return _c
}

// SetToolCalls sets the "tool_calls" field.
func (_c *LLMInteractionCreate) SetToolCalls(v []interface{}) *LLMInteractionCreate {
	_c.mutation.SetToolCalls(v)
	return _c
}

// SetInputTokens sets the "input_tokens" field.
func (_c *LLMInteractionCreate) SetInputTokens(v int) *LLMInteractionCreate {
	_c.mutation.SetInputTokens(v)
	return _c
}

// SetNillableInputTokens sets the "input_tokens" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableInputTokens(v *int) *LLMInteractionCreate {
	if v != nil {
		_c.SetInputTokens(*v)
	}
	return _c
}

// SetOutputTokens sets the "output_tokens" field.
func (_c *LLMInteractionCreate) SetOutputTokens(v int) *LLMInteractionCreate {
	_c.mutation.SetOutputTokens(v)
	return _c
}

// SetNillableOutputTokens sets the "output_tokens" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableOutputTokens(v *int) *LLMInteractionCreate {
	if v != nil {
		_c.SetOutputTokens(*v)
	}
	return _c
}

// SetTotalTokens sets the "total_tokens" field.
func (_c *LLMInteractionCreate) SetTotalTokens(v int) *LLMInteractionCreate {
	_c.mutation.SetTotalTokens(v)
	return _c
}

// SetNillableTotalTokens sets the "total_tokens" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableTotalTokens(v *int) *LLMInteractionCreate {
	if v != nil {
		_c.SetTotalTokens(*v)
	}
	return _c
}

// SetStepDescription sets the "step_description" field.
func (_c *LLMInteractionCreate) SetStepDescription(v string) *LLMInteractionCreate {
	_c.mutation.SetStepDescription(v)
	return _c
}

// SetNillableStepDescription sets the "step_description" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableStepDescription(v *string) *LLMInteractionCreate {
	if v != nil {
		_c.SetStepDescription(*v)
	}
	return _c
}

// SetErrorMessage sets the "error_message" field.
func (_c *LLMInteractionCreate) SetErrorMessage(v string) *LLMInteractionCreate {
	_c.mutation.SetErrorMessage(v)
	return _c
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_c *LLMInteractionCreate) SetNillableErrorMessage(v *string) *LLMInteractionCreate {
	if v != nil {
		_c.SetErrorMessage(*v)
	}
	return _c
}

// SetID sets the "id" field.
func (_c *LLMInteractionCreate) SetID(v string) *LLMInteractionCreate {
	_c.mutation.SetID(v)
	return _c
}

// SetSession sets the "session" edge to the AlertSession entity.
func (_c *LLMInteractionCreate) SetSession(v *AlertSession) *LLMInteractionCreate {
	return _c.SetSessionID(v.ID)
}

// SetStageExecution sets the "stage_execution" edge to the StageExecution entity.
func (_c *LLMInteractionCreate) SetStageExecution(v *StageExecution) *LLMInteractionCreate {
	return _c.SetStageExecutionID(v.ID)
}

// Mutation returns the LLMInteractionMutation object of the builder.
func (_c *LLMInteractionCreate) Mutation() *LLMInteractionMutation {
	return _c.mutation
}

// Save creates the LLMInteraction in the database.
func (_c *LLMInteractionCreate) Save(ctx context.Context) (*LLMInteraction, error) {
	_c.defaults()
	return withHooks(ctx, _c.sqlSave, _c.mutation, _c.hooks)
}

// SaveX calls Save and panics if Save returns an error.
func (_c *LLMInteractionCreate) SaveX(ctx context.Context) *LLMInteraction {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *LLMInteractionCreate) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *LLMInteractionCreate) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}

// defaults sets the default values of the builder before save.
func (_c *LLMInteractionCreate) defaults() {
	if _, ok := _c.mutation.Success(); !ok {
		v := llminteraction.DefaultSuccess
		_c.mutation.SetSuccess(v)
	}
	if _, ok := _c.mutation.InteractionType(); !ok {
		v := llminteraction.DefaultInteractionType
		_c.mutation.SetInteractionType(v)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_c *LLMInteractionCreate) check() error {
	if _, ok := _c.mutation.SessionID(); !ok {
		return &ValidationError{Name: "session_id", err: errors.New(`ent: missing required field "LLMInteraction.session_id"`)}
	}
	if _, ok := _c.mutation.TimestampUs(); !ok {
		return &ValidationError{Name: "timestamp_us", err: errors.New(`ent: missing required field "LLMInteraction.timestamp_us"`)}
	}
	if _, ok := _c.mutation.Success(); !ok {
		return &ValidationError{Name: "success", err: errors.New(`ent: missing required field "LLMInteraction.success"`)}
	}
	if _, ok := _c.mutation.InteractionType(); !ok {
		return &ValidationError{Name: "interaction_type", err: errors.New(`ent: missing required field "LLMInteraction.interaction_type"`)}
	}
	if _, ok := _c.mutation.Provider(); !ok {
		return &ValidationError{Name: "provider", err: errors.New(`ent: missing required field "LLMInteraction.provider"`)}
	}
	if _, ok := _c.mutation.ModelName(); !ok {
		return &ValidationError{Name: "model_name", err: errors.New(`ent: missing required field "LLMInteraction.model_name"`)}
	}
	if _, ok := _c.mutation.Request(); !ok {
		return &ValidationError{Name: "request", err: errors.New(`ent: missing required field "LLMInteraction.request"`)}
	}
	if len(_c.mutation.SessionIDs()) == 0 {
		return &ValidationError{Name: "session", err: errors.New(`ent: missing required edge "LLMInteraction.session"`)}
	}
	return nil
}

func (_c *LLMInteractionCreate) sqlSave(ctx context.Context) (*LLMInteraction, error) {
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
			return nil, fmt.Errorf("unexpected LLMInteraction.ID type: %T", _spec.ID.Value)
		}
	}
	_c.mutation.id = &_node.ID
	_c.mutation.done = true
	return _node, nil
}

func (_c *LLMInteractionCreate) createSpec() (*LLMInteraction, *sqlgraph.CreateSpec) {
	var (
		_node = &LLMInteraction{config: _c.config}
		_spec = sqlgraph.NewCreateSpec(llminteraction.Table, sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString))
	)
	if id, ok := _c.mutation.ID(); ok {
		_node.ID = id
		_spec.ID.Value = id
	}
	if value, ok := _c.mutation.TimestampUs(); ok {
		_spec.SetField(llminteraction.FieldTimestampUs, field.TypeInt64, value)
		_node.TimestampUs = value
	}
	if value, ok := _c.mutation.DurationMs(); ok {
		_spec.SetField(llminteraction.FieldDurationMs, field.TypeInt64, value)
		_node.DurationMs = &value
	}
	if value, ok := _c.mutation.Success(); ok {
		_spec.SetField(llminteraction.FieldSuccess, field.TypeBool, value)
		_node.Success = value
	}
	if value, ok := _c.mutation.InteractionType(); ok {
		_spec.SetField(llminteraction.FieldInteractionType, field.TypeString, value)
		_node.InteractionType = value
	}
	if value, ok := _c.mutation.Provider(); ok {
		_spec.SetField(llminteraction.FieldProvider, field.TypeString, value)
		_node.Provider = value
	}
	if value, ok := _c.mutation.ModelName(); ok {
		_spec.SetField(llminteraction.FieldModelName, field.TypeString, value)
		_node.ModelName = value
	}
	if value, ok := _c.mutation.Request(); ok {
		_spec.SetField(llminteraction.FieldRequest, field.TypeJSON, value)
		_node.Request = value
	}
	if value, ok := _c.mutation.Response(); ok {
		_spec.SetField(llminteraction.FieldResponse, field.TypeJSON, value)
		_node.Response = value
	}
	if value, ok := _c.mutation.ToolCalls(); ok {
		_spec.SetField(llminteraction.FieldToolCalls, field.TypeJSON, value)
		_node.ToolCalls = value
	}
	if value, ok := _c.mutation.InputTokens(); ok {
		_spec.SetField(llminteraction.FieldInputTokens, field.TypeInt, value)
		_node.InputTokens = &value
	}
	if value, ok := _c.mutation.OutputTokens(); ok {
		_spec.SetField(llminteraction.FieldOutputTokens, field.TypeInt, value)
		_node.OutputTokens = &value
	}
	if value, ok := _c.mutation.TotalTokens(); ok {
		_spec.SetField(llminteraction.FieldTotalTokens, field.TypeInt, value)
		_node.TotalTokens = &value
	}
	if value, ok := _c.mutation.StepDescription(); ok {
		_spec.SetField(llminteraction.FieldStepDescription, field.TypeString, value)
		_node.StepDescription = value
	}
	if value, ok := _c.mutation.ErrorMessage(); ok {
		_spec.SetField(llminteraction.FieldErrorMessage, field.TypeString, value)
		_node.ErrorMessage = &value
	}
	if nodes := _c.mutation.SessionIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.M2O,
			Inverse: true,
			Table:   llminteraction.SessionTable,
			Columns: []string{llminteraction.SessionColumn},
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
	if nodes := _c.mutation.StageExecutionIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.M2O,
			Inverse: true,
			Table:   llminteraction.StageExecutionTable,
			Columns: []string{llminteraction.StageExecutionColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(stageexecution.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_node.StageExecutionID = &nodes[0]
		_spec.Edges = append(_spec.Edges, edge)
	}
	return _node, _spec
}

// LLMInteractionCreateBulk is the builder for creating many LLMInteraction entities in bulk.
type LLMInteractionCreateBulk struct {
	config
	err      error
	builders []*LLMInteractionCreate
}

// Save creates the LLMInteraction entities in the database.
func (_c *LLMInteractionCreateBulk) Save(ctx context.Context) ([]*LLMInteraction, error) {
	if _c.err != nil {
		return nil, _c.err
	}
	specs := make([]*sqlgraph.CreateSpec, len(_c.builders))
	nodes := make([]*LLMInteraction, len(_c.builders))
	mutators := make([]Mutator, len(_c.builders))
	for i := range _c.builders {
		func(i int, root context.Context) {
			builder := _c.builders[i]
			builder.defaults()
			var mut Mutator = MutateFunc(func(ctx context.Context, m Mutation) (Value, error) {
				mutation, ok := m.(*LLMInteractionMutation)
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
func (_c *LLMInteractionCreateBulk) SaveX(ctx context.Context) []*LLMInteraction {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *LLMInteractionCreateBulk) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *LLMInteractionCreateBulk) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}
