// Code generated by ent, DO NOT EDIT.

package llminteraction

import (
	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/tarsy-dev/tarsy/ent/predicate"
)

// ID filters vertices based on their ID field.
func ID(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldID, id))
}

// IDEQ applies the EQ predicate on the ID field.
func IDEQ(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldID, id))
}

// IDNEQ applies the NEQ predicate on the ID field.
func IDNEQ(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldID, id))
}

// IDIn applies the In predicate on the ID field.
func IDIn(ids ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldID, ids...))
}

// IDNotIn applies the NotIn predicate on the ID field.
func IDNotIn(ids ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldID, ids...))
}

// IDGT applies the GT predicate on the ID field.
func IDGT(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldID, id))
}

// IDGTE applies the GTE predicate on the ID field.
func IDGTE(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldID, id))
}

// IDLT applies the LT predicate on the ID field.
func IDLT(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldID, id))
}

// IDLTE applies the LTE predicate on the ID field.
func IDLTE(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldID, id))
}

// IDEqualFold applies the EqualFold predicate on the ID field.
func IDEqualFold(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldID, id))
}

// IDContainsFold applies the ContainsFold predicate on the ID field.
func IDContainsFold(id string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldID, id))
}

// SessionID applies equality check predicate on the "session_id" field. It's identical to SessionIDEQ.
func SessionID(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldSessionID, v))
}

// StageExecutionID applies equality check predicate on the "stage_execution_id" field. It's identical to StageExecutionIDEQ.
func StageExecutionID(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldStageExecutionID, v))
}

// TimestampUs applies equality check predicate on the "timestamp_us" field. It's identical to TimestampUsEQ.
func TimestampUs(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldTimestampUs, v))
}

// DurationMs applies equality check predicate on the "duration_ms" field. It's identical to DurationMsEQ.
func DurationMs(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldDurationMs, v))
}

// Success applies equality check predicate on the "success" field. It's identical to SuccessEQ.
func Success(v bool) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldSuccess, v))
}

// InteractionType applies equality check predicate on the "interaction_type" field. It's identical to InteractionTypeEQ.
func InteractionType(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldInteractionType, v))
}

// Provider applies equality check predicate on the "provider" field. It's identical to ProviderEQ.
func Provider(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldProvider, v))
}

// ModelName applies equality check predicate on the "model_name" field. It's identical to ModelNameEQ.
func ModelName(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldModelName, v))
}

// InputTokens applies equality check predicate on the "input_tokens" field. It's identical to InputTokensEQ.
func InputTokens(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldInputTokens, v))
}

// OutputTokens applies equality check predicate on the "output_tokens" field. It's identical to OutputTokensEQ.
func OutputTokens(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldOutputTokens, v))
}

// TotalTokens applies equality check predicate on the "total_tokens" field. It's identical to TotalTokensEQ.
func TotalTokens(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldTotalTokens, v))
}

// StepDescription applies equality check predicate on the "step_description" field. It's identical to StepDescriptionEQ.
func StepDescription(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldStepDescription, v))
}

// ErrorMessage applies equality check predicate on the "error_message" field. It's identical to ErrorMessageEQ.
func ErrorMessage(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldErrorMessage, v))
}

// SessionIDEQ applies the EQ predicate on the "session_id" field.
func SessionIDEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldSessionID, v))
}

// SessionIDNEQ applies the NEQ predicate on the "session_id" field.
func SessionIDNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldSessionID, v))
}

// SessionIDIn applies the In predicate on the "session_id" field.
func SessionIDIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldSessionID, vs...))
}

// SessionIDNotIn applies the NotIn predicate on the "session_id" field.
func SessionIDNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldSessionID, vs...))
}

// SessionIDGT applies the GT predicate on the "session_id" field.
func SessionIDGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldSessionID, v))
}

// SessionIDGTE applies the GTE predicate on the "session_id" field.
func SessionIDGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldSessionID, v))
}

// SessionIDLT applies the LT predicate on the "session_id" field.
func SessionIDLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldSessionID, v))
}

// SessionIDLTE applies the LTE predicate on the "session_id" field.
func SessionIDLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldSessionID, v))
}

// SessionIDContains applies the Contains predicate on the "session_id" field.
func SessionIDContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldSessionID, v))
}

// SessionIDHasPrefix applies the HasPrefix predicate on the "session_id" field.
func SessionIDHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldSessionID, v))
}

// SessionIDHasSuffix applies the HasSuffix predicate on the "session_id" field.
func SessionIDHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldSessionID, v))
}

// SessionIDEqualFold applies the EqualFold predicate on the "session_id" field.
func SessionIDEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldSessionID, v))
}

// SessionIDContainsFold applies the ContainsFold predicate on the "session_id" field.
func SessionIDContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldSessionID, v))
}

// StageExecutionIDEQ applies the EQ predicate on the "stage_execution_id" field.
func StageExecutionIDEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldStageExecutionID, v))
}

// StageExecutionIDNEQ applies the NEQ predicate on the "stage_execution_id" field.
func StageExecutionIDNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldStageExecutionID, v))
}

// StageExecutionIDIn applies the In predicate on the "stage_execution_id" field.
func StageExecutionIDIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldStageExecutionID, vs...))
}

// StageExecutionIDNotIn applies the NotIn predicate on the "stage_execution_id" field.
func StageExecutionIDNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldStageExecutionID, vs...))
}

// StageExecutionIDGT applies the GT predicate on the "stage_execution_id" field.
func StageExecutionIDGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldStageExecutionID, v))
}

// StageExecutionIDGTE applies the GTE predicate on the "stage_execution_id" field.
func StageExecutionIDGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldStageExecutionID, v))
}

// StageExecutionIDLT applies the LT predicate on the "stage_execution_id" field.
func StageExecutionIDLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldStageExecutionID, v))
}

// StageExecutionIDLTE applies the LTE predicate on the "stage_execution_id" field.
func StageExecutionIDLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldStageExecutionID, v))
}

// StageExecutionIDContains applies the Contains predicate on the "stage_execution_id" field.
func StageExecutionIDContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldStageExecutionID, v))
}

// StageExecutionIDHasPrefix applies the HasPrefix predicate on the "stage_execution_id" field.
func StageExecutionIDHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldStageExecutionID, v))
}

// StageExecutionIDHasSuffix applies the HasSuffix predicate on the "stage_execution_id" field.
func StageExecutionIDHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldStageExecutionID, v))
}

// StageExecutionIDIsNil applies the IsNil predicate on the "stage_execution_id" field.
func StageExecutionIDIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldStageExecutionID))
}

// StageExecutionIDNotNil applies the NotNil predicate on the "stage_execution_id" field.
func StageExecutionIDNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldStageExecutionID))
}

// StageExecutionIDEqualFold applies the EqualFold predicate on the "stage_execution_id" field.
func StageExecutionIDEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldStageExecutionID, v))
}

// StageExecutionIDContainsFold applies the ContainsFold predicate on the "stage_execution_id" field.
func StageExecutionIDContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldStageExecutionID, v))
}

// TimestampUsEQ applies the EQ predicate on the "timestamp_us" field.
func TimestampUsEQ(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldTimestampUs, v))
}

// TimestampUsNEQ applies the NEQ predicate on the "timestamp_us" field.
func TimestampUsNEQ(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldTimestampUs, v))
}

// TimestampUsIn applies the In predicate on the "timestamp_us" field.
func TimestampUsIn(vs ...int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldTimestampUs, vs...))
}

// TimestampUsNotIn applies the NotIn predicate on the "timestamp_us" field.
func TimestampUsNotIn(vs ...int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldTimestampUs, vs...))
}

// TimestampUsGT applies the GT predicate on the "timestamp_us" field.
func TimestampUsGT(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldTimestampUs, v))
}

// TimestampUsGTE applies the GTE predicate on the "timestamp_us" field.
func TimestampUsGTE(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldTimestampUs, v))
}

// TimestampUsLT applies the LT predicate on the "timestamp_us" field.
func TimestampUsLT(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldTimestampUs, v))
}

// TimestampUsLTE applies the LTE predicate on the "timestamp_us" field.
func TimestampUsLTE(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldTimestampUs, v))
}

// DurationMsEQ applies the EQ predicate on the "duration_ms" field.
func DurationMsEQ(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldDurationMs, v))
}

// DurationMsNEQ applies the NEQ predicate on the "duration_ms" field.
func DurationMsNEQ(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldDurationMs, v))
}

// DurationMsIn applies the In predicate on the "duration_ms" field.
func DurationMsIn(vs ...int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldDurationMs, vs...))
}

// DurationMsNotIn applies the NotIn predicate on the "duration_ms" field.
func DurationMsNotIn(vs ...int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldDurationMs, vs...))
}

// DurationMsGT applies the GT predicate on the "duration_ms" field.
func DurationMsGT(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldDurationMs, v))
}

// DurationMsGTE applies the GTE predicate on the "duration_ms" field.
func DurationMsGTE(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldDurationMs, v))
}

// DurationMsLT applies the LT predicate on the "duration_ms" field.
func DurationMsLT(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldDurationMs, v))
}

// DurationMsLTE applies the LTE predicate on the "duration_ms" field.
func DurationMsLTE(v int64) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldDurationMs, v))
}

// DurationMsIsNil applies the IsNil predicate on the "duration_ms" field.
func DurationMsIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldDurationMs))
}

// DurationMsNotNil applies the NotNil predicate on the "duration_ms" field.
func DurationMsNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldDurationMs))
}

// SuccessEQ applies the EQ predicate on the "success" field.
func SuccessEQ(v bool) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldSuccess, v))
}

// SuccessNEQ applies the NEQ predicate on the "success" field.
func SuccessNEQ(v bool) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldSuccess, v))
}

// InteractionTypeEQ applies the EQ predicate on the "interaction_type" field.
func InteractionTypeEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldInteractionType, v))
}

// InteractionTypeNEQ applies the NEQ predicate on the "interaction_type" field.
func InteractionTypeNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldInteractionType, v))
}

// InteractionTypeIn applies the In predicate on the "interaction_type" field.
func InteractionTypeIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldInteractionType, vs...))
}

// InteractionTypeNotIn applies the NotIn predicate on the "interaction_type" field.
func InteractionTypeNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldInteractionType, vs...))
}

// InteractionTypeGT applies the GT predicate on the "interaction_type" field.
func InteractionTypeGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldInteractionType, v))
}

// InteractionTypeGTE applies the GTE predicate on the "interaction_type" field.
func InteractionTypeGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldInteractionType, v))
}

// InteractionTypeLT applies the LT predicate on the "interaction_type" field.
func InteractionTypeLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldInteractionType, v))
}

// InteractionTypeLTE applies the LTE predicate on the "interaction_type" field.
func InteractionTypeLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldInteractionType, v))
}

// InteractionTypeContains applies the Contains predicate on the "interaction_type" field.
func InteractionTypeContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldInteractionType, v))
}

// InteractionTypeHasPrefix applies the HasPrefix predicate on the "interaction_type" field.
func InteractionTypeHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldInteractionType, v))
}

// InteractionTypeHasSuffix applies the HasSuffix predicate on the "interaction_type" field.
func InteractionTypeHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldInteractionType, v))
}

// InteractionTypeEqualFold applies the EqualFold predicate on the "interaction_type" field.
func InteractionTypeEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldInteractionType, v))
}

// InteractionTypeContainsFold applies the ContainsFold predicate on the "interaction_type" field.
func InteractionTypeContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldInteractionType, v))
}

// ProviderEQ applies the EQ predicate on the "provider" field.
func ProviderEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldProvider, v))
}

// ProviderNEQ applies the NEQ predicate on the "provider" field.
func ProviderNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldProvider, v))
}

// ProviderIn applies the In predicate on the "provider" field.
func ProviderIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldProvider, vs...))
}

// ProviderNotIn applies the NotIn predicate on the "provider" field.
func ProviderNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldProvider, vs...))
}

// ProviderGT applies the GT predicate on the "provider" field.
func ProviderGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldProvider, v))
}

// ProviderGTE applies the GTE predicate on the "provider" field.
func ProviderGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldProvider, v))
}

// ProviderLT applies the LT predicate on the "provider" field.
func ProviderLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldProvider, v))
}

// ProviderLTE applies the LTE predicate on the "provider" field.
func ProviderLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldProvider, v))
}

// ProviderContains applies the Contains predicate on the "provider" field.
func ProviderContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldProvider, v))
}

// ProviderHasPrefix applies the HasPrefix predicate on the "provider" field.
func ProviderHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldProvider, v))
}

// ProviderHasSuffix applies the HasSuffix predicate on the "provider" field.
func ProviderHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldProvider, v))
}

// ProviderEqualFold applies the EqualFold predicate on the "provider" field.
func ProviderEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldProvider, v))
}

// ProviderContainsFold applies the ContainsFold predicate on the "provider" field.
func ProviderContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldProvider, v))
}

// ModelNameEQ applies the EQ predicate on the "model_name" field.
func ModelNameEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldModelName, v))
}

// ModelNameNEQ applies the NEQ predicate on the "model_name" field.
func ModelNameNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldModelName, v))
}

// ModelNameIn applies the In predicate on the "model_name" field.
func ModelNameIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldModelName, vs...))
}

// ModelNameNotIn applies the NotIn predicate on the "model_name" field.
func ModelNameNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldModelName, vs...))
}

// ModelNameGT applies the GT predicate on the "model_name" field.
func ModelNameGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldModelName, v))
}

// ModelNameGTE applies the GTE predicate on the "model_name" field.
func ModelNameGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldModelName, v))
}

// ModelNameLT applies the LT predicate on the "model_name" field.
func ModelNameLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldModelName, v))
}

// ModelNameLTE applies the LTE predicate on the "model_name" field.
func ModelNameLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldModelName, v))
}

// ModelNameContains applies the Contains predicate on the "model_name" field.
func ModelNameContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldModelName, v))
}

// ModelNameHasPrefix applies the HasPrefix predicate on the "model_name" field.
func ModelNameHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldModelName, v))
}

// ModelNameHasSuffix applies the HasSuffix predicate on the "model_name" field.
func ModelNameHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldModelName, v))
}

// ModelNameEqualFold applies the EqualFold predicate on the "model_name" field.
func ModelNameEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldModelName, v))
}

// ModelNameContainsFold applies the ContainsFold predicate on the "model_name" field.
func ModelNameContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldModelName, v))
}

// ResponseIsNil applies the IsNil predicate on the "response" field.
func ResponseIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldResponse))
}

// ResponseNotNil applies the NotNil predicate on the "response" field.
func ResponseNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldResponse))
}

// ToolCallsIsNil applies the IsNil predicate on the "tool_calls" field.
func ToolCallsIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldToolCalls))
}

// ToolCallsNotNil applies the NotNil predicate on the "tool_calls" field.
func ToolCallsNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldToolCalls))
}

// InputTokensEQ applies the EQ predicate on the "input_tokens" field.
func InputTokensEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldInputTokens, v))
}

// InputTokensNEQ applies the NEQ predicate on the "input_tokens" field.
func InputTokensNEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldInputTokens, v))
}

// InputTokensIn applies the In predicate on the "input_tokens" field.
func InputTokensIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldInputTokens, vs...))
}

// InputTokensNotIn applies the NotIn predicate on the "input_tokens" field.
func InputTokensNotIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldInputTokens, vs...))
}

// InputTokensGT applies the GT predicate on the "input_tokens" field.
func InputTokensGT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldInputTokens, v))
}

// InputTokensGTE applies the GTE predicate on the "input_tokens" field.
func InputTokensGTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldInputTokens, v))
}

// InputTokensLT applies the LT predicate on the "input_tokens" field.
func InputTokensLT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldInputTokens, v))
}

// InputTokensLTE applies the LTE predicate on the "input_tokens" field.
func InputTokensLTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldInputTokens, v))
}

// InputTokensIsNil applies the IsNil predicate on the "input_tokens" field.
func InputTokensIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldInputTokens))
}

// InputTokensNotNil applies the NotNil predicate on the "input_tokens" field.
func InputTokensNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldInputTokens))
}

// OutputTokensEQ applies the EQ predicate on the "output_tokens" field.
func OutputTokensEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldOutputTokens, v))
}

// OutputTokensNEQ applies the NEQ predicate on the "output_tokens" field.
func OutputTokensNEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldOutputTokens, v))
}

// OutputTokensIn applies the In predicate on the "output_tokens" field.
func OutputTokensIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldOutputTokens, vs...))
}

// OutputTokensNotIn applies the NotIn predicate on the "output_tokens" field.
func OutputTokensNotIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldOutputTokens, vs...))
}

// OutputTokensGT applies the GT predicate on the "output_tokens" field.
func OutputTokensGT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldOutputTokens, v))
}

// OutputTokensGTE applies the GTE predicate on the "output_tokens" field.
func OutputTokensGTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldOutputTokens, v))
}

// OutputTokensLT applies the LT predicate on the "output_tokens" field.
func OutputTokensLT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldOutputTokens, v))
}

// OutputTokensLTE applies the LTE predicate on the "output_tokens" field.
func OutputTokensLTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldOutputTokens, v))
}

// OutputTokensIsNil applies the IsNil predicate on the "output_tokens" field.
func OutputTokensIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldOutputTokens))
}

// OutputTokensNotNil applies the NotNil predicate on the "output_tokens" field.
func OutputTokensNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldOutputTokens))
}

// TotalTokensEQ applies the EQ predicate on the "total_tokens" field.
func TotalTokensEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldTotalTokens, v))
}

// TotalTokensNEQ applies the NEQ predicate on the "total_tokens" field.
func TotalTokensNEQ(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldTotalTokens, v))
}

// TotalTokensIn applies the In predicate on the "total_tokens" field.
func TotalTokensIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldTotalTokens, vs...))
}

// TotalTokensNotIn applies the NotIn predicate on the "total_tokens" field.
func TotalTokensNotIn(vs ...int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldTotalTokens, vs...))
}

// TotalTokensGT applies the GT predicate on the "total_tokens" field.
func TotalTokensGT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldTotalTokens, v))
}

// TotalTokensGTE applies the GTE predicate on the "total_tokens" field.
func TotalTokensGTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldTotalTokens, v))
}

// TotalTokensLT applies the LT predicate on the "total_tokens" field.
func TotalTokensLT(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldTotalTokens, v))
}

// TotalTokensLTE applies the LTE predicate on the "total_tokens" field.
func TotalTokensLTE(v int) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldTotalTokens, v))
}

// TotalTokensIsNil applies the IsNil predicate on the "total_tokens" field.
func TotalTokensIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldTotalTokens))
}

// TotalTokensNotNil applies the NotNil predicate on the "total_tokens" field.
func TotalTokensNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldTotalTokens))
}

// StepDescriptionEQ applies the EQ predicate on the "step_description" field.
func StepDescriptionEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldStepDescription, v))
}

// StepDescriptionNEQ applies the NEQ predicate on the "step_description" field.
func StepDescriptionNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldStepDescription, v))
}

// StepDescriptionIn applies the In predicate on the "step_description" field.
func StepDescriptionIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldStepDescription, vs...))
}

// StepDescriptionNotIn applies the NotIn predicate on the "step_description" field.
func StepDescriptionNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldStepDescription, vs...))
}

// StepDescriptionGT applies the GT predicate on the "step_description" field.
func StepDescriptionGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldStepDescription, v))
}

// StepDescriptionGTE applies the GTE predicate on the "step_description" field.
func StepDescriptionGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldStepDescription, v))
}

// StepDescriptionLT applies the LT predicate on the "step_description" field.
func StepDescriptionLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldStepDescription, v))
}

// StepDescriptionLTE applies the LTE predicate on the "step_description" field.
func StepDescriptionLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldStepDescription, v))
}

// StepDescriptionContains applies the Contains predicate on the "step_description" field.
func StepDescriptionContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldStepDescription, v))
}

// StepDescriptionHasPrefix applies the HasPrefix predicate on the "step_description" field.
func StepDescriptionHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldStepDescription, v))
}

// StepDescriptionHasSuffix applies the HasSuffix predicate on the "step_description" field.
func StepDescriptionHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldStepDescription, v))
}

// StepDescriptionIsNil applies the IsNil predicate on the "step_description" field.
func StepDescriptionIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldStepDescription))
}

// StepDescriptionNotNil applies the NotNil predicate on the "step_description" field.
func StepDescriptionNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldStepDescription))
}

// StepDescriptionEqualFold applies the EqualFold predicate on the "step_description" field.
func StepDescriptionEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldStepDescription, v))
}

// StepDescriptionContainsFold applies the ContainsFold predicate on the "step_description" field.
func StepDescriptionContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldStepDescription, v))
}

// ErrorMessageEQ applies the EQ predicate on the "error_message" field.
func ErrorMessageEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEQ(FieldErrorMessage, v))
}

// ErrorMessageNEQ applies the NEQ predicate on the "error_message" field.
func ErrorMessageNEQ(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNEQ(FieldErrorMessage, v))
}

// ErrorMessageIn applies the In predicate on the "error_message" field.
func ErrorMessageIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIn(FieldErrorMessage, vs...))
}

// ErrorMessageNotIn applies the NotIn predicate on the "error_message" field.
func ErrorMessageNotIn(vs ...string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotIn(FieldErrorMessage, vs...))
}

// ErrorMessageGT applies the GT predicate on the "error_message" field.
func ErrorMessageGT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGT(FieldErrorMessage, v))
}

// ErrorMessageGTE applies the GTE predicate on the "error_message" field.
func ErrorMessageGTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldGTE(FieldErrorMessage, v))
}

// ErrorMessageLT applies the LT predicate on the "error_message" field.
func ErrorMessageLT(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLT(FieldErrorMessage, v))
}

// ErrorMessageLTE applies the LTE predicate on the "error_message" field.
func ErrorMessageLTE(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldLTE(FieldErrorMessage, v))
}

// ErrorMessageContains applies the Contains predicate on the "error_message" field.
func ErrorMessageContains(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContains(FieldErrorMessage, v))
}

// ErrorMessageHasPrefix applies the HasPrefix predicate on the "error_message" field.
func ErrorMessageHasPrefix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasPrefix(FieldErrorMessage, v))
}

// ErrorMessageHasSuffix applies the HasSuffix predicate on the "error_message" field.
func ErrorMessageHasSuffix(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldHasSuffix(FieldErrorMessage, v))
}

// ErrorMessageIsNil applies the IsNil predicate on the "error_message" field.
func ErrorMessageIsNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldIsNull(FieldErrorMessage))
}

// ErrorMessageNotNil applies the NotNil predicate on the "error_message" field.
func ErrorMessageNotNil() predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldNotNull(FieldErrorMessage))
}

// ErrorMessageEqualFold applies the EqualFold predicate on the "error_message" field.
func ErrorMessageEqualFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldEqualFold(FieldErrorMessage, v))
}

// ErrorMessageContainsFold applies the ContainsFold predicate on the "error_message" field.
func ErrorMessageContainsFold(v string) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.FieldContainsFold(FieldErrorMessage, v))
}

// HasSession applies the HasEdge predicate on the "session" edge.
func HasSession() predicate.LLMInteraction {
	return predicate.LLMInteraction(func(s *sql.Selector) {
		step := sqlgraph.NewStep(
			sqlgraph.From(Table, FieldID),
			sqlgraph.Edge(sqlgraph.M2O, true, SessionTable, SessionColumn),
		)
		sqlgraph.HasNeighbors(s, step)
	})
}

// HasSessionWith applies the HasEdge predicate on the "session" edge with a given conditions (other predicates).
func HasSessionWith(preds ...predicate.AlertSession) predicate.LLMInteraction {
	return predicate.LLMInteraction(func(s *sql.Selector) {
		step := newSessionStep()
		sqlgraph.HasNeighborsWith(s, step, func(s *sql.Selector) {
			for _, p := range preds {
				p(s)
			}
		})
	})
}

// HasStageExecution applies the HasEdge predicate on the "stage_execution" edge.
func HasStageExecution() predicate.LLMInteraction {
	return predicate.LLMInteraction(func(s *sql.Selector) {
		step := sqlgraph.NewStep(
			sqlgraph.From(Table, FieldID),
			sqlgraph.Edge(sqlgraph.M2O, true, StageExecutionTable, StageExecutionColumn),
		)
		sqlgraph.HasNeighbors(s, step)
	})
}

// HasStageExecutionWith applies the HasEdge predicate on the "stage_execution" edge with a given conditions (other predicates).
func HasStageExecutionWith(preds ...predicate.StageExecution) predicate.LLMInteraction {
	return predicate.LLMInteraction(func(s *sql.Selector) {
		step := newStageExecutionStep()
		sqlgraph.HasNeighborsWith(s, step, func(s *sql.Selector) {
			for _, p := range preds {
				p(s)
			}
		})
	})
}

// And groups predicates with the AND operator between them.
func And(predicates ...predicate.LLMInteraction) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.AndPredicates(predicates...))
}

// Or groups predicates with the OR operator between them.
func Or(predicates ...predicate.LLMInteraction) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.OrPredicates(predicates...))
}

// Not applies the not operator on the given predicate.
func Not(p predicate.LLMInteraction) predicate.LLMInteraction {
	return predicate.LLMInteraction(sql.NotPredicates(p))
}
