// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/dialect/sql/sqljson"
	"entgo.io/ent/schema/field"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/predicate"
)

// LLMInteractionUpdate is the builder for updating LLMInteraction entities.
type LLMInteractionUpdate struct {
	config
	hooks    []Hook
	mutation *LLMInteractionMutation
}

// Where appends a list predicates to the LLMInteractionUpdate builder.
func (_u *LLMInteractionUpdate) Where(ps ...predicate.LLMInteraction) *LLMInteractionUpdate {
	_u.mutation.Where(ps...)
	return _u
}

// SetDurationMs sets the "duration_ms" field.
func (_u *LLMInteractionUpdate) SetDurationMs(v int64) *LLMInteractionUpdate {
	_u.mutation.ResetDurationMs()
	_u.mutation.SetDurationMs(v)
	return _u
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableDurationMs(v *int64) *LLMInteractionUpdate {
	if v != nil {
		_u.SetDurationMs(*v)
	}
	return _u
}

// AddDurationMs adds value to the "duration_ms" field.
func (_u *LLMInteractionUpdate) AddDurationMs(v int64) *LLMInteractionUpdate {
	_u.mutation.AddDurationMs(v)
	return _u
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (_u *LLMInteractionUpdate) ClearDurationMs() *LLMInteractionUpdate {
	_u.mutation.ClearDurationMs()
	return _u
}

// SetSuccess sets the "success" field.
func (_u *LLMInteractionUpdate) SetSuccess(v bool) *LLMInteractionUpdate {
	_u.mutation.SetSuccess(v)
	return _u
}

// SetNillableSuccess sets the "success" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableSuccess(v *bool) *LLMInteractionUpdate {
	if v != nil {
		_u.SetSuccess(*v)
	}
	return _u
}

// SetInteractionType sets the "interaction_type" field.
func (_u *LLMInteractionUpdate) SetInteractionType(v string) *LLMInteractionUpdate {
	_u.mutation.SetInteractionType(v)
	return _u
}

// SetNillableInteractionType sets the "interaction_type" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableInteractionType(v *string) *LLMInteractionUpdate {
	if v != nil {
		_u.SetInteractionType(*v)
	}
	return _u
}

// SetProvider sets the "provider" field.
func (_u *LLMInteractionUpdate) SetProvider(v string) *LLMInteractionUpdate {
	_u.mutation.SetProvider(v)
	return _u
}

// SetNillableProvider sets the "provider" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableProvider(v *string) *LLMInteractionUpdate {
	if v != nil {
		_u.SetProvider(*v)
	}
	return _u
}

// SetModelName sets the "model_name" field.
func (_u *LLMInteractionUpdate) SetModelName(v string) *LLMInteractionUpdate {
	_u.mutation.SetModelName(v)
	return _u
}

// SetNillableModelName sets the "model_name" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableModelName(v *string) *LLMInteractionUpdate {
	if v != nil {
		_u.SetModelName(*v)
	}
	return _u
}

// SetRequest sets the "request" field.
func (_u *LLMInteractionUpdate) SetRequest(v map[string]interface{}) *LLMInteractionUpdate {
	_u.mutation.SetRequest(v)
	return _u
}

// SetResponse sets the "response" field.
func (_u *LLMInteractionUpdate) SetResponse(v map[string]interface{}) *LLMInteractionUpdate {
	_u.mutation.SetResponse(v)
	return _u
}

// ClearResponse clears the value of the "response" field.
func (_u *LLMInteractionUpdate) ClearResponse() *LLMInteractionUpdate {
	_u.mutation.ClearResponse()
	return _u
}

// SetToolCalls sets the "tool_calls" field.
func (_u *LLMInteractionUpdate) SetToolCalls(v []interface{}) *LLMInteractionUpdate {
	_u.mutation.SetToolCalls(v)
	return _u
}

// AppendToolCalls appends value to the "tool_calls" field.
func (_u *LLMInteractionUpdate) AppendToolCalls(v []interface{}) *LLMInteractionUpdate {
	_u.mutation.AppendToolCalls(v)
	return _u
}

// ClearToolCalls clears the value of the "tool_calls" field.
func (_u *LLMInteractionUpdate) ClearToolCalls() *LLMInteractionUpdate {
	_u.mutation.ClearToolCalls()
	return _u
}

// SetInputTokens sets the "input_tokens" field.
func (_u *LLMInteractionUpdate) SetInputTokens(v int) *LLMInteractionUpdate {
	_u.mutation.ResetInputTokens()
	_u.mutation.SetInputTokens(v)
	return _u
}

// SetNillableInputTokens sets the "input_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableInputTokens(v *int) *LLMInteractionUpdate {
	if v != nil {
		_u.SetInputTokens(*v)
	}
	return _u
}

// AddInputTokens adds value to the "input_tokens" field.
func (_u *LLMInteractionUpdate) AddInputTokens(v int) *LLMInteractionUpdate {
	_u.mutation.AddInputTokens(v)
	return _u
}

// ClearInputTokens clears the value of the "input_tokens" field.
func (_u *LLMInteractionUpdate) ClearInputTokens() *LLMInteractionUpdate {
	_u.mutation.ClearInputTokens()
	return _u
}

// SetOutputTokens sets the "output_tokens" field.
func (_u *LLMInteractionUpdate) SetOutputTokens(v int) *LLMInteractionUpdate {
	_u.mutation.ResetOutputTokens()
	_u.mutation.SetOutputTokens(v)
	return _u
}

// SetNillableOutputTokens sets the "output_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableOutputTokens(v *int) *LLMInteractionUpdate {
	if v != nil {
		_u.SetOutputTokens(*v)
	}
	return _u
}

// AddOutputTokens adds value to the "output_tokens" field.
func (_u *LLMInteractionUpdate) AddOutputTokens(v int) *LLMInteractionUpdate {
	_u.mutation.AddOutputTokens(v)
	return _u
}

// ClearOutputTokens clears the value of the "output_tokens" field.
func (_u *LLMInteractionUpdate) ClearOutputTokens() *LLMInteractionUpdate {
	_u.mutation.ClearOutputTokens()
	return _u
}

// SetTotalTokens sets the "total_tokens" field.
func (_u *LLMInteractionUpdate) SetTotalTokens(v int) *LLMInteractionUpdate {
	_u.mutation.ResetTotalTokens()
	_u.mutation.SetTotalTokens(v)
	return _u
}

// SetNillableTotalTokens sets the "total_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableTotalTokens(v *int) *LLMInteractionUpdate {
	if v != nil {
		_u.SetTotalTokens(*v)
	}
	return _u
}

// AddTotalTokens adds value to the "total_tokens" field.
func (_u *LLMInteractionUpdate) AddTotalTokens(v int) *LLMInteractionUpdate {
	_u.mutation.AddTotalTokens(v)
	return _u
}

// ClearTotalTokens clears the value of the "total_tokens" field.
func (_u *LLMInteractionUpdate) ClearTotalTokens() *LLMInteractionUpdate {
	_u.mutation.ClearTotalTokens()
	return _u
}

// SetStepDescription sets the "step_description" field.
func (_u *LLMInteractionUpdate) SetStepDescription(v string) *LLMInteractionUpdate {
	_u.mutation.SetStepDescription(v)
	return _u
}

// SetNillableStepDescription sets the "step_description" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableStepDescription(v *string) *LLMInteractionUpdate {
	if v != nil {
		_u.SetStepDescription(*v)
	}
	return _u
}

// ClearStepDescription clears the value of the "step_description" field.
func (_u *LLMInteractionUpdate) ClearStepDescription() *LLMInteractionUpdate {
	_u.mutation.ClearStepDescription()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *LLMInteractionUpdate) SetErrorMessage(v string) *LLMInteractionUpdate {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *LLMInteractionUpdate) SetNillableErrorMessage(v *string) *LLMInteractionUpdate {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *LLMInteractionUpdate) ClearErrorMessage() *LLMInteractionUpdate {
	_u.mutation.ClearErrorMessage()
	return _u
}

// Mutation returns the LLMInteractionMutation object of the builder.
func (_u *LLMInteractionUpdate) Mutation() *LLMInteractionMutation {
	return _u.mutation
}

// Save executes the query and returns the number of nodes affected by the update operation.
func (_u *LLMInteractionUpdate) Save(ctx context.Context) (int, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *LLMInteractionUpdate) SaveX(ctx context.Context) int {
	affected, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return affected
}

// Exec executes the query.
func (_u *LLMInteractionUpdate) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *LLMInteractionUpdate) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *LLMInteractionUpdate) check() error {
	if _u.mutation.SessionCleared() && len(_u.mutation.SessionIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "LLMInteraction.session"`)
	}
	return nil
}

func (_u *LLMInteractionUpdate) sqlSave(ctx context.Context) (_node int, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(llminteraction.Table, llminteraction.Columns, sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString))
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.DurationMs(); ok {
		_spec.SetField(llminteraction.FieldDurationMs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedDurationMs(); ok {
		_spec.AddField(llminteraction.FieldDurationMs, field.TypeInt64, value)
	}
	if _u.mutation.DurationMsCleared() {
		_spec.ClearField(llminteraction.FieldDurationMs, field.TypeInt64)
	}
	if value, ok := _u.mutation.Success(); ok {
		_spec.SetField(llminteraction.FieldSuccess, field.TypeBool, value)
	}
	if value, ok := _u.mutation.InteractionType(); ok {
		_spec.SetField(llminteraction.FieldInteractionType, field.TypeString, value)
	}
	if value, ok := _u.mutation.Provider(); ok {
		_spec.SetField(llminteraction.FieldProvider, field.TypeString, value)
	}
	if value, ok := _u.mutation.ModelName(); ok {
		_spec.SetField(llminteraction.FieldModelName, field.TypeString, value)
	}
	if value, ok := _u.mutation.Request(); ok {
		_spec.SetField(llminteraction.FieldRequest, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.Response(); ok {
		_spec.SetField(llminteraction.FieldResponse, field.TypeJSON, value)
	}
	if _u.mutation.ResponseCleared() {
		_spec.ClearField(llminteraction.FieldResponse, field.TypeJSON)
	}
	if value, ok := _u.mutation.ToolCalls(); ok {
		_spec.SetField(llminteraction.FieldToolCalls, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AppendedToolCalls(); ok {
		_spec.AddModifier(func(u *sql.UpdateBuilder) {
			sqljson.Append(u, llminteraction.FieldToolCalls, value)
		})
	}
	if _u.mutation.ToolCallsCleared() {
		_spec.ClearField(llminteraction.FieldToolCalls, field.TypeJSON)
	}
	if value, ok := _u.mutation.InputTokens(); ok {
		_spec.SetField(llminteraction.FieldInputTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedInputTokens(); ok {
		_spec.AddField(llminteraction.FieldInputTokens, field.TypeInt, value)
	}
	if _u.mutation.InputTokensCleared() {
		_spec.ClearField(llminteraction.FieldInputTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.OutputTokens(); ok {
		_spec.SetField(llminteraction.FieldOutputTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedOutputTokens(); ok {
		_spec.AddField(llminteraction.FieldOutputTokens, field.TypeInt, value)
	}
	if _u.mutation.OutputTokensCleared() {
		_spec.ClearField(llminteraction.FieldOutputTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.TotalTokens(); ok {
		_spec.SetField(llminteraction.FieldTotalTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedTotalTokens(); ok {
		_spec.AddField(llminteraction.FieldTotalTokens, field.TypeInt, value)
	}
	if _u.mutation.TotalTokensCleared() {
		_spec.ClearField(llminteraction.FieldTotalTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.StepDescription(); ok {
		_spec.SetField(llminteraction.FieldStepDescription, field.TypeString, value)
	}
	if _u.mutation.StepDescriptionCleared() {
		_spec.ClearField(llminteraction.FieldStepDescription, field.TypeString)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(llminteraction.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(llminteraction.FieldErrorMessage, field.TypeString)
	}
	if _node, err = sqlgraph.UpdateNodes(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{llminteraction.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return 0, err
	}
	_u.mutation.done = true
	return _node, nil
}

// LLMInteractionUpdateOne is the builder for updating a single LLMInteraction entity.
type LLMInteractionUpdateOne struct {
	config
	fields   []string
	hooks    []Hook
	mutation *LLMInteractionMutation
}

// SetDurationMs sets the "duration_ms" field.
func (_u *LLMInteractionUpdateOne) SetDurationMs(v int64) *LLMInteractionUpdateOne {
	_u.mutation.ResetDurationMs()
	_u.mutation.SetDurationMs(v)
	return _u
}

// SetNillableDurationMs sets the "duration_ms" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableDurationMs(v *int64) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetDurationMs(*v)
	}
	return _u
}

// AddDurationMs adds value to the "duration_ms" field.
func (_u *LLMInteractionUpdateOne) AddDurationMs(v int64) *LLMInteractionUpdateOne {
	_u.mutation.AddDurationMs(v)
	return _u
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (_u *LLMInteractionUpdateOne) ClearDurationMs() *LLMInteractionUpdateOne {
	_u.mutation.ClearDurationMs()
	return _u
}

// SetSuccess sets the "success" field.
func (_u *LLMInteractionUpdateOne) SetSuccess(v bool) *LLMInteractionUpdateOne {
	_u.mutation.SetSuccess(v)
	return _u
}

// SetNillableSuccess sets the "success" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableSuccess(v *bool) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetSuccess(*v)
	}
	return _u
}

// SetInteractionType sets the "interaction_type" field.
func (_u *LLMInteractionUpdateOne) SetInteractionType(v string) *LLMInteractionUpdateOne {
	_u.mutation.SetInteractionType(v)
	return _u
}

// SetNillableInteractionType sets the "interaction_type" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableInteractionType(v *string) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetInteractionType(*v)
	}
	return _u
}

// SetProvider sets the "provider" field.
func (_u *LLMInteractionUpdateOne) SetProvider(v string) *LLMInteractionUpdateOne {
	_u.mutation.SetProvider(v)
	return _u
}

// SetNillableProvider sets the "provider" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableProvider(v *string) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetProvider(*v)
	}
	return _u
}

// SetModelName sets the "model_name" field.
func (_u *LLMInteractionUpdateOne) SetModelName(v string) *LLMInteractionUpdateOne {
	_u.mutation.SetModelName(v)
	return _u
}

// SetNillableModelName sets the "model_name" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableModelName(v *string) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetModelName(*v)
	}
	return _u
}

// SetRequest sets the "request" field.
func (_u *LLMInteractionUpdateOne) SetRequest(v map[string]interface{}) *LLMInteractionUpdateOne {
	_u.mutation.SetRequest(v)
	return _u
}

// SetResponse sets the "response" field.
func (_u *LLMInteractionUpdateOne) SetResponse(v map[string]interface{}) *LLMInteractionUpdateOne {
	_u.mutation.SetResponse(v)
	return _u
}

// ClearResponse clears the value of the "response" field.
func (_u *LLMInteractionUpdateOne) ClearResponse() *LLMInteractionUpdateOne {
	_u.mutation.ClearResponse()
	return _u
}

// SetToolCalls sets the "tool_calls" field.
func (_u *LLMInteractionUpdateOne) SetToolCalls(v []interface{}) *LLMInteractionUpdateOne {
	_u.mutation.SetToolCalls(v)
	return _u
}

// AppendToolCalls appends value to the "tool_calls" field.
func (_u *LLMInteractionUpdateOne) AppendToolCalls(v []interface{}) *LLMInteractionUpdateOne {
	_u.mutation.AppendToolCalls(v)
	return _u
}

// ClearToolCalls clears the value of the "tool_calls" field.
func (_u *LLMInteractionUpdateOne) ClearToolCalls() *LLMInteractionUpdateOne {
	_u.mutation.ClearToolCalls()
	return _u
}

// SetInputTokens sets the "input_tokens" field.
func (_u *LLMInteractionUpdateOne) SetInputTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.ResetInputTokens()
	_u.mutation.SetInputTokens(v)
	return _u
}

// SetNillableInputTokens sets the "input_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableInputTokens(v *int) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetInputTokens(*v)
	}
	return _u
}

// AddInputTokens adds value to the "input_tokens" field.
func (_u *LLMInteractionUpdateOne) AddInputTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.AddInputTokens(v)
	return _u
}

// ClearInputTokens clears the value of the "input_tokens" field.
func (_u *LLMInteractionUpdateOne) ClearInputTokens() *LLMInteractionUpdateOne {
	_u.mutation.ClearInputTokens()
	return _u
}

// SetOutputTokens sets the "output_tokens" field.
func (_u *LLMInteractionUpdateOne) SetOutputTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.ResetOutputTokens()
	_u.mutation.SetOutputTokens(v)
	return _u
}

// SetNillableOutputTokens sets the "output_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableOutputTokens(v *int) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetOutputTokens(*v)
	}
	return _u
}

// AddOutputTokens adds value to the "output_tokens" field.
func (_u *LLMInteractionUpdateOne) AddOutputTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.AddOutputTokens(v)
	return _u
}

// ClearOutputTokens clears the value of the "output_tokens" field.
func (_u *LLMInteractionUpdateOne) ClearOutputTokens() *LLMInteractionUpdateOne {
	_u.mutation.ClearOutputTokens()
	return _u
}

// SetTotalTokens sets the "total_tokens" field.
func (_u *LLMInteractionUpdateOne) SetTotalTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.ResetTotalTokens()
	_u.mutation.SetTotalTokens(v)
	return _u
}

// SetNillableTotalTokens sets the "total_tokens" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableTotalTokens(v *int) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetTotalTokens(*v)
	}
	return _u
}

// AddTotalTokens adds value to the "total_tokens" field.
func (_u *LLMInteractionUpdateOne) AddTotalTokens(v int) *LLMInteractionUpdateOne {
	_u.mutation.AddTotalTokens(v)
	return _u
}

// ClearTotalTokens clears the value of the "total_tokens" field.
func (_u *LLMInteractionUpdateOne) ClearTotalTokens() *LLMInteractionUpdateOne {
	_u.mutation.ClearTotalTokens()
	return _u
}

// SetStepDescription sets the "step_description" field.
func (_u *LLMInteractionUpdateOne) SetStepDescription(v string) *LLMInteractionUpdateOne {
	_u.mutation.SetStepDescription(v)
	return _u
}

// SetNillableStepDescription sets the "step_description" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableStepDescription(v *string) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetStepDescription(*v)
	}
	return _u
}

// ClearStepDescription clears the value of the "step_description" field.
func (_u *LLMInteractionUpdateOne) ClearStepDescription() *LLMInteractionUpdateOne {
	_u.mutation.ClearStepDescription()
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *LLMInteractionUpdateOne) SetErrorMessage(v string) *LLMInteractionUpdateOne {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *LLMInteractionUpdateOne) SetNillableErrorMessage(v *string) *LLMInteractionUpdateOne {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *LLMInteractionUpdateOne) ClearErrorMessage() *LLMInteractionUpdateOne {
	_u.mutation.ClearErrorMessage()
	return _u
}

// Mutation returns the LLMInteractionMutation object of the builder.
func (_u *LLMInteractionUpdateOne) Mutation() *LLMInteractionMutation {
	return _u.mutation
}

// Where appends a list predicates to the LLMInteractionUpdate builder.
func (_u *LLMInteractionUpdateOne) Where(ps ...predicate.LLMInteraction) *LLMInteractionUpdateOne {
	_u.mutation.Where(ps...)
	return _u
}

// Select allows selecting one or more fields (columns) of the returned entity.
// The default is selecting all fields defined in the entity schema.
func (_u *LLMInteractionUpdateOne) Select(field string, fields ...string) *LLMInteractionUpdateOne {
	_u.fields = append([]string{field}, fields...)
	return _u
}

// Save executes the query and returns the updated LLMInteraction entity.
func (_u *LLMInteractionUpdateOne) Save(ctx context.Context) (*LLMInteraction, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *LLMInteractionUpdateOne) SaveX(ctx context.Context) *LLMInteraction {
	node, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return node
}

// Exec executes the query on the entity.
func (_u *LLMInteractionUpdateOne) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *LLMInteractionUpdateOne) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *LLMInteractionUpdateOne) check() error {
	if _u.mutation.SessionCleared() && len(_u.mutation.SessionIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "LLMInteraction.session"`)
	}
	return nil
}

func (_u *LLMInteractionUpdateOne) sqlSave(ctx context.Context) (_node *LLMInteraction, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(llminteraction.Table, llminteraction.Columns, sqlgraph.NewFieldSpec(llminteraction.FieldID, field.TypeString))
	id, ok := _u.mutation.ID()
	if !ok {
		return nil, &ValidationError{Name: "id", err: errors.New(`ent: missing "LLMInteraction.id" for update`)}
	}
	_spec.Node.ID.Value = id
	if fields := _u.fields; len(fields) > 0 {
		_spec.Node.Columns = make([]string, 0, len(fields))
		_spec.Node.Columns = append(_spec.Node.Columns, llminteraction.FieldID)
		for _, f := range fields {
			if !llminteraction.ValidColumn(f) {
				return nil, &ValidationError{Name: f, err: fmt.Errorf("ent: invalid field %q for query", f)}
			}
			if f != llminteraction.FieldID {
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
	if value, ok := _u.mutation.DurationMs(); ok {
		_spec.SetField(llminteraction.FieldDurationMs, field.TypeInt64, value)
	}
	if value, ok := _u.mutation.AddedDurationMs(); ok {
		_spec.AddField(llminteraction.FieldDurationMs, field.TypeInt64, value)
	}
	if _u.mutation.DurationMsCleared() {
		_spec.ClearField(llminteraction.FieldDurationMs, field.TypeInt64)
	}
	if value, ok := _u.mutation.Success(); ok {
		_spec.SetField(llminteraction.FieldSuccess, field.TypeBool, value)
	}
	if value, ok := _u.mutation.InteractionType(); ok {
		_spec.SetField(llminteraction.FieldInteractionType, field.TypeString, value)
	}
	if value, ok := _u.mutation.Provider(); ok {
		_spec.SetField(llminteraction.FieldProvider, field.TypeString, value)
	}
	if value, ok := _u.mutation.ModelName(); ok {
		_spec.SetField(llminteraction.FieldModelName, field.TypeString, value)
	}
	if value, ok := _u.mutation.Request(); ok {
		_spec.SetField(llminteraction.FieldRequest, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.Response(); ok {
		_spec.SetField(llminteraction.FieldResponse, field.TypeJSON, value)
	}
	if _u.mutation.ResponseCleared() {
		_spec.ClearField(llminteraction.FieldResponse, field.TypeJSON)
	}
	if value, ok := _u.mutation.ToolCalls(); ok {
		_spec.SetField(llminteraction.FieldToolCalls, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AppendedToolCalls(); ok {
		_spec.AddModifier(func(u *sql.UpdateBuilder) {
			sqljson.Append(u, llminteraction.FieldToolCalls, value)
		})
	}
	if _u.mutation.ToolCallsCleared() {
		_spec.ClearField(llminteraction.FieldToolCalls, field.TypeJSON)
	}
	if value, ok := _u.mutation.InputTokens(); ok {
		_spec.SetField(llminteraction.FieldInputTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedInputTokens(); ok {
		_spec.AddField(llminteraction.FieldInputTokens, field.TypeInt, value)
	}
	if _u.mutation.InputTokensCleared() {
		_spec.ClearField(llminteraction.FieldInputTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.OutputTokens(); ok {
		_spec.SetField(llminteraction.FieldOutputTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedOutputTokens(); ok {
		_spec.AddField(llminteraction.FieldOutputTokens, field.TypeInt, value)
	}
	if _u.mutation.OutputTokensCleared() {
		_spec.ClearField(llminteraction.FieldOutputTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.TotalTokens(); ok {
		_spec.SetField(llminteraction.FieldTotalTokens, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedTotalTokens(); ok {
		_spec.AddField(llminteraction.FieldTotalTokens, field.TypeInt, value)
	}
	if _u.mutation.TotalTokensCleared() {
		_spec.ClearField(llminteraction.FieldTotalTokens, field.TypeInt)
	}
	if value, ok := _u.mutation.StepDescription(); ok {
		_spec.SetField(llminteraction.FieldStepDescription, field.TypeString, value)
	}
	if _u.mutation.StepDescriptionCleared() {
		_spec.ClearField(llminteraction.FieldStepDescription, field.TypeString)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(llminteraction.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(llminteraction.FieldErrorMessage, field.TypeString)
	}
	_node = &LLMInteraction{config: _u.config}
	_spec.Assign = _node.assignValues
	_spec.ScanValues = _node.scanValues
	if err = sqlgraph.UpdateNode(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{llminteraction.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	_u.mutation.done = true
	return _node, nil
}
