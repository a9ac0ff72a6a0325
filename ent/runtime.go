// Code generated by ent, DO NOT EDIT.

package ent

import (
	"time"

	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/event"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/schema"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// The init function reads all schema descriptors with runtime code
// (default values, validators, hooks and policies) and stitches it
// to their package variables.
func init() {
	alertsessionFields := schema.AlertSession{}.Fields()
	_ = alertsessionFields
	// alertsessionDescCancelRequested is the schema descriptor for cancel_requested field.
	alertsessionDescCancelRequested := alertsessionFields[19].Descriptor()
	// alertsession.DefaultCancelRequested holds the default value on creation for the cancel_requested field.
	alertsession.DefaultCancelRequested = alertsessionDescCancelRequested.Default.(bool)
	// alertsessionDescPauseRequested is the schema descriptor for pause_requested field.
	alertsessionDescPauseRequested := alertsessionFields[20].Descriptor()
	// alertsession.DefaultPauseRequested holds the default value on creation for the pause_requested field.
	alertsession.DefaultPauseRequested = alertsessionDescPauseRequested.Default.(bool)
	eventFields := schema.Event{}.Fields()
	_ = eventFields
	// eventDescCreatedAt is the schema descriptor for created_at field.
	eventDescCreatedAt := eventFields[3].Descriptor()
	// event.DefaultCreatedAt holds the default value on creation for the created_at field.
	event.DefaultCreatedAt = eventDescCreatedAt.Default.(func() time.Time)
	llminteractionFields := schema.LLMInteraction{}.Fields()
	_ = llminteractionFields
	// llminteractionDescSuccess is the schema descriptor for success field.
	llminteractionDescSuccess := llminteractionFields[5].Descriptor()
	// llminteraction.DefaultSuccess holds the default value on creation for the success field.
	llminteraction.DefaultSuccess = llminteractionDescSuccess.Default.(bool)
	// llminteractionDescInteractionType is the schema descriptor for interaction_type field.
	llminteractionDescInteractionType := llminteractionFields[6].Descriptor()
	// llminteraction.DefaultInteractionType holds the default value on creation for the interaction_type field.
	llminteraction.DefaultInteractionType = llminteractionDescInteractionType.Default.(string)
	mcpinteractionFields := schema.MCPInteraction{}.Fields()
	_ = mcpinteractionFields
	// mcpinteractionDescSuccess is the schema descriptor for success field.
	mcpinteractionDescSuccess := mcpinteractionFields[5].Descriptor()
	// mcpinteraction.DefaultSuccess holds the default value on creation for the success field.
	mcpinteraction.DefaultSuccess = mcpinteractionDescSuccess.Default.(bool)
	stageexecutionFields := schema.StageExecution{}.Fields()
	_ = stageexecutionFields
	// stageexecutionDescCurrentIteration is the schema descriptor for current_iteration field.
	stageexecutionDescCurrentIteration := stageexecutionFields[6].Descriptor()
	// stageexecution.DefaultCurrentIteration holds the default value on creation for the current_iteration field.
	stageexecution.DefaultCurrentIteration = stageexecutionDescCurrentIteration.Default.(int)
}
