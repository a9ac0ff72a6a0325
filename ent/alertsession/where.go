// Code generated by ent, DO NOT EDIT.

package alertsession

import (
	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/tarsy-dev/tarsy/ent/predicate"
)

// ID filters vertices based on their ID field.
func ID(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldID, id))
}

// IDEQ applies the EQ predicate on the ID field.
func IDEQ(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldID, id))
}

// IDNEQ applies the NEQ predicate on the ID field.
func IDNEQ(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldID, id))
}

// IDIn applies the In predicate on the ID field.
func IDIn(ids ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldID, ids...))
}

// IDNotIn applies the NotIn predicate on the ID field.
func IDNotIn(ids ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldID, ids...))
}

// IDGT applies the GT predicate on the ID field.
func IDGT(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldID, id))
}

// IDGTE applies the GTE predicate on the ID field.
func IDGTE(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldID, id))
}

// IDLT applies the LT predicate on the ID field.
func IDLT(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldID, id))
}

// IDLTE applies the LTE predicate on the ID field.
func IDLTE(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldID, id))
}

// IDEqualFold applies the EqualFold predicate on the ID field.
func IDEqualFold(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldID, id))
}

// IDContainsFold applies the ContainsFold predicate on the ID field.
func IDContainsFold(id string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldID, id))
}

// AlertID applies equality check predicate on the "alert_id" field. It's identical to AlertIDEQ.
func AlertID(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertID, v))
}

// AlertType applies equality check predicate on the "alert_type" field. It's identical to AlertTypeEQ.
func AlertType(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertType, v))
}

// AlertFingerprint applies equality check predicate on the "alert_fingerprint" field. It's identical to AlertFingerprintEQ.
func AlertFingerprint(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertFingerprint, v))
}

// ChainID applies equality check predicate on the "chain_id" field. It's identical to ChainIDEQ.
func ChainID(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldChainID, v))
}

// AgentType applies equality check predicate on the "agent_type" field. It's identical to AgentTypeEQ.
func AgentType(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAgentType, v))
}

// Author applies equality check predicate on the "author" field. It's identical to AuthorEQ.
func Author(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAuthor, v))
}

// RunbookURL applies equality check predicate on the "runbook_url" field. It's identical to RunbookURLEQ.
func RunbookURL(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldRunbookURL, v))
}

// CreatedAtUs applies equality check predicate on the "created_at_us" field. It's identical to CreatedAtUsEQ.
func CreatedAtUs(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCreatedAtUs, v))
}

// StartedAtUs applies equality check predicate on the "started_at_us" field. It's identical to StartedAtUsEQ.
func StartedAtUs(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldStartedAtUs, v))
}

// LastInteractionAtUs applies equality check predicate on the "last_interaction_at_us" field. It's identical to LastInteractionAtUsEQ.
func LastInteractionAtUs(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldLastInteractionAtUs, v))
}

// CompletedAtUs applies equality check predicate on the "completed_at_us" field. It's identical to CompletedAtUsEQ.
func CompletedAtUs(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCompletedAtUs, v))
}

// ErrorMessage applies equality check predicate on the "error_message" field. It's identical to ErrorMessageEQ.
func ErrorMessage(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldErrorMessage, v))
}

// FinalAnalysis applies equality check predicate on the "final_analysis" field. It's identical to FinalAnalysisEQ.
func FinalAnalysis(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldFinalAnalysis, v))
}

// PodID applies equality check predicate on the "pod_id" field. It's identical to PodIDEQ.
func PodID(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldPodID, v))
}

// CancelRequested applies equality check predicate on the "cancel_requested" field. It's identical to CancelRequestedEQ.
func CancelRequested(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCancelRequested, v))
}

// PauseRequested applies equality check predicate on the "pause_requested" field. It's identical to PauseRequestedEQ.
func PauseRequested(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldPauseRequested, v))
}

// AlertIDEQ applies the EQ predicate on the "alert_id" field.
func AlertIDEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertID, v))
}

// AlertIDNEQ applies the NEQ predicate on the "alert_id" field.
func AlertIDNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldAlertID, v))
}

// AlertIDIn applies the In predicate on the "alert_id" field.
func AlertIDIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldAlertID, vs...))
}

// AlertIDNotIn applies the NotIn predicate on the "alert_id" field.
func AlertIDNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldAlertID, vs...))
}

// AlertIDGT applies the GT predicate on the "alert_id" field.
func AlertIDGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldAlertID, v))
}

// AlertIDGTE applies the GTE predicate on the "alert_id" field.
func AlertIDGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldAlertID, v))
}

// AlertIDLT applies the LT predicate on the "alert_id" field.
func AlertIDLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldAlertID, v))
}

// AlertIDLTE applies the LTE predicate on the "alert_id" field.
func AlertIDLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldAlertID, v))
}

// AlertIDContains applies the Contains predicate on the "alert_id" field.
func AlertIDContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldAlertID, v))
}

// AlertIDHasPrefix applies the HasPrefix predicate on the "alert_id" field.
func AlertIDHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldAlertID, v))
}

// AlertIDHasSuffix applies the HasSuffix predicate on the "alert_id" field.
func AlertIDHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldAlertID, v))
}

// AlertIDEqualFold applies the EqualFold predicate on the "alert_id" field.
func AlertIDEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldAlertID, v))
}

// AlertIDContainsFold applies the ContainsFold predicate on the "alert_id" field.
func AlertIDContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldAlertID, v))
}

// AlertTypeEQ applies the EQ predicate on the "alert_type" field.
func AlertTypeEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertType, v))
}

// AlertTypeNEQ applies the NEQ predicate on the "alert_type" field.
func AlertTypeNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldAlertType, v))
}

// AlertTypeIn applies the In predicate on the "alert_type" field.
func AlertTypeIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldAlertType, vs...))
}

// AlertTypeNotIn applies the NotIn predicate on the "alert_type" field.
func AlertTypeNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldAlertType, vs...))
}

// AlertTypeGT applies the GT predicate on the "alert_type" field.
func AlertTypeGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldAlertType, v))
}

// AlertTypeGTE applies the GTE predicate on the "alert_type" field.
func AlertTypeGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldAlertType, v))
}

// AlertTypeLT applies the LT predicate on the "alert_type" field.
func AlertTypeLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldAlertType, v))
}

// AlertTypeLTE applies the LTE predicate on the "alert_type" field.
func AlertTypeLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldAlertType, v))
}

// AlertTypeContains applies the Contains predicate on the "alert_type" field.
func AlertTypeContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldAlertType, v))
}

// AlertTypeHasPrefix applies the HasPrefix predicate on the "alert_type" field.
func AlertTypeHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldAlertType, v))
}

// AlertTypeHasSuffix applies the HasSuffix predicate on the "alert_type" field.
func AlertTypeHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldAlertType, v))
}

// AlertTypeEqualFold applies the EqualFold predicate on the "alert_type" field.
func AlertTypeEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldAlertType, v))
}

// AlertTypeContainsFold applies the ContainsFold predicate on the "alert_type" field.
func AlertTypeContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldAlertType, v))
}

// AlertFingerprintEQ applies the EQ predicate on the "alert_fingerprint" field.
func AlertFingerprintEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAlertFingerprint, v))
}

// AlertFingerprintNEQ applies the NEQ predicate on the "alert_fingerprint" field.
func AlertFingerprintNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldAlertFingerprint, v))
}

// AlertFingerprintIn applies the In predicate on the "alert_fingerprint" field.
func AlertFingerprintIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldAlertFingerprint, vs...))
}

// AlertFingerprintNotIn applies the NotIn predicate on the "alert_fingerprint" field.
func AlertFingerprintNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldAlertFingerprint, vs...))
}

// AlertFingerprintGT applies the GT predicate on the "alert_fingerprint" field.
func AlertFingerprintGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldAlertFingerprint, v))
}

// AlertFingerprintGTE applies the GTE predicate on the "alert_fingerprint" field.
func AlertFingerprintGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldAlertFingerprint, v))
}

// AlertFingerprintLT applies the LT predicate on the "alert_fingerprint" field.
func AlertFingerprintLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldAlertFingerprint, v))
}

// AlertFingerprintLTE applies the LTE predicate on the "alert_fingerprint" field.
func AlertFingerprintLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldAlertFingerprint, v))
}

// AlertFingerprintContains applies the Contains predicate on the "alert_fingerprint" field.
func AlertFingerprintContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldAlertFingerprint, v))
}

// AlertFingerprintHasPrefix applies the HasPrefix predicate on the "alert_fingerprint" field.
func AlertFingerprintHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldAlertFingerprint, v))
}

// AlertFingerprintHasSuffix applies the HasSuffix predicate on the "alert_fingerprint" field.
func AlertFingerprintHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldAlertFingerprint, v))
}

// AlertFingerprintEqualFold applies the EqualFold predicate on the "alert_fingerprint" field.
func AlertFingerprintEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldAlertFingerprint, v))
}

// AlertFingerprintContainsFold applies the ContainsFold predicate on the "alert_fingerprint" field.
func AlertFingerprintContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldAlertFingerprint, v))
}

// ChainIDEQ applies the EQ predicate on the "chain_id" field.
func ChainIDEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldChainID, v))
}

// ChainIDNEQ applies the NEQ predicate on the "chain_id" field.
func ChainIDNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldChainID, v))
}

// ChainIDIn applies the In predicate on the "chain_id" field.
func ChainIDIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldChainID, vs...))
}

// ChainIDNotIn applies the NotIn predicate on the "chain_id" field.
func ChainIDNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldChainID, vs...))
}

// ChainIDGT applies the GT predicate on the "chain_id" field.
func ChainIDGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldChainID, v))
}

// ChainIDGTE applies the GTE predicate on the "chain_id" field.
func ChainIDGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldChainID, v))
}

// ChainIDLT applies the LT predicate on the "chain_id" field.
func ChainIDLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldChainID, v))
}

// ChainIDLTE applies the LTE predicate on the "chain_id" field.
func ChainIDLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldChainID, v))
}

// ChainIDContains applies the Contains predicate on the "chain_id" field.
func ChainIDContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldChainID, v))
}

// ChainIDHasPrefix applies the HasPrefix predicate on the "chain_id" field.
func ChainIDHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldChainID, v))
}

// ChainIDHasSuffix applies the HasSuffix predicate on the "chain_id" field.
func ChainIDHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldChainID, v))
}

// ChainIDEqualFold applies the EqualFold predicate on the "chain_id" field.
func ChainIDEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldChainID, v))
}

// ChainIDContainsFold applies the ContainsFold predicate on the "chain_id" field.
func ChainIDContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldChainID, v))
}

// AgentTypeEQ applies the EQ predicate on the "agent_type" field.
func AgentTypeEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAgentType, v))
}

// AgentTypeNEQ applies the NEQ predicate on the "agent_type" field.
func AgentTypeNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldAgentType, v))
}

// AgentTypeIn applies the In predicate on the "agent_type" field.
func AgentTypeIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldAgentType, vs...))
}

// AgentTypeNotIn applies the NotIn predicate on the "agent_type" field.
func AgentTypeNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldAgentType, vs...))
}

// AgentTypeGT applies the GT predicate on the "agent_type" field.
func AgentTypeGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldAgentType, v))
}

// AgentTypeGTE applies the GTE predicate on the "agent_type" field.
func AgentTypeGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldAgentType, v))
}

// AgentTypeLT applies the LT predicate on the "agent_type" field.
func AgentTypeLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldAgentType, v))
}

// AgentTypeLTE applies the LTE predicate on the "agent_type" field.
func AgentTypeLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldAgentType, v))
}

// AgentTypeContains applies the Contains predicate on the "agent_type" field.
func AgentTypeContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldAgentType, v))
}

// AgentTypeHasPrefix applies the HasPrefix predicate on the "agent_type" field.
func AgentTypeHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldAgentType, v))
}

// AgentTypeHasSuffix applies the HasSuffix predicate on the "agent_type" field.
func AgentTypeHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldAgentType, v))
}

// AgentTypeIsNil applies the IsNil predicate on the "agent_type" field.
func AgentTypeIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldAgentType))
}

// AgentTypeNotNil applies the NotNil predicate on the "agent_type" field.
func AgentTypeNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldAgentType))
}

// AgentTypeEqualFold applies the EqualFold predicate on the "agent_type" field.
func AgentTypeEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldAgentType, v))
}

// AgentTypeContainsFold applies the ContainsFold predicate on the "agent_type" field.
func AgentTypeContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldAgentType, v))
}

// AuthorEQ applies the EQ predicate on the "author" field.
func AuthorEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldAuthor, v))
}

// AuthorNEQ applies the NEQ predicate on the "author" field.
func AuthorNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldAuthor, v))
}

// AuthorIn applies the In predicate on the "author" field.
func AuthorIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldAuthor, vs...))
}

// AuthorNotIn applies the NotIn predicate on the "author" field.
func AuthorNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldAuthor, vs...))
}

// AuthorGT applies the GT predicate on the "author" field.
func AuthorGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldAuthor, v))
}

// AuthorGTE applies the GTE predicate on the "author" field.
func AuthorGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldAuthor, v))
}

// AuthorLT applies the LT predicate on the "author" field.
func AuthorLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldAuthor, v))
}

// AuthorLTE applies the LTE predicate on the "author" field.
func AuthorLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldAuthor, v))
}

// AuthorContains applies the Contains predicate on the "author" field.
func AuthorContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldAuthor, v))
}

// AuthorHasPrefix applies the HasPrefix predicate on the "author" field.
func AuthorHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldAuthor, v))
}

// AuthorHasSuffix applies the HasSuffix predicate on the "author" field.
func AuthorHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldAuthor, v))
}

// AuthorIsNil applies the IsNil predicate on the "author" field.
func AuthorIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldAuthor))
}

// AuthorNotNil applies the NotNil predicate on the "author" field.
func AuthorNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldAuthor))
}

// AuthorEqualFold applies the EqualFold predicate on the "author" field.
func AuthorEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldAuthor, v))
}

// AuthorContainsFold applies the ContainsFold predicate on the "author" field.
func AuthorContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldAuthor, v))
}

// RunbookURLEQ applies the EQ predicate on the "runbook_url" field.
func RunbookURLEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldRunbookURL, v))
}

// RunbookURLNEQ applies the NEQ predicate on the "runbook_url" field.
func RunbookURLNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldRunbookURL, v))
}

// RunbookURLIn applies the In predicate on the "runbook_url" field.
func RunbookURLIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldRunbookURL, vs...))
}

// RunbookURLNotIn applies the NotIn predicate on the "runbook_url" field.
func RunbookURLNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldRunbookURL, vs...))
}

// RunbookURLGT applies the GT predicate on the "runbook_url" field.
func RunbookURLGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldRunbookURL, v))
}

// RunbookURLGTE applies the GTE predicate on the "runbook_url" field.
func RunbookURLGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldRunbookURL, v))
}

// RunbookURLLT applies the LT predicate on the "runbook_url" field.
func RunbookURLLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldRunbookURL, v))
}

// RunbookURLLTE applies the LTE predicate on the "runbook_url" field.
func RunbookURLLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldRunbookURL, v))
}

// RunbookURLContains applies the Contains predicate on the "runbook_url" field.
func RunbookURLContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldRunbookURL, v))
}

// RunbookURLHasPrefix applies the HasPrefix predicate on the "runbook_url" field.
func RunbookURLHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldRunbookURL, v))
}

// RunbookURLHasSuffix applies the HasSuffix predicate on the "runbook_url" field.
func RunbookURLHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldRunbookURL, v))
}

// RunbookURLIsNil applies the IsNil predicate on the "runbook_url" field.
func RunbookURLIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldRunbookURL))
}

// RunbookURLNotNil applies the NotNil predicate on the "runbook_url" field.
func RunbookURLNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldRunbookURL))
}

// RunbookURLEqualFold applies the EqualFold predicate on the "runbook_url" field.
func RunbookURLEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldRunbookURL, v))
}

// RunbookURLContainsFold applies the ContainsFold predicate on the "runbook_url" field.
func RunbookURLContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldRunbookURL, v))
}

// StatusEQ applies the EQ predicate on the "status" field.
func StatusEQ(v Status) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldStatus, v))
}

// StatusNEQ applies the NEQ predicate on the "status" field.
func StatusNEQ(v Status) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldStatus, v))
}

// StatusIn applies the In predicate on the "status" field.
func StatusIn(vs ...Status) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldStatus, vs...))
}

// StatusNotIn applies the NotIn predicate on the "status" field.
func StatusNotIn(vs ...Status) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldStatus, vs...))
}

// CreatedAtUsEQ applies the EQ predicate on the "created_at_us" field.
func CreatedAtUsEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCreatedAtUs, v))
}

// CreatedAtUsNEQ applies the NEQ predicate on the "created_at_us" field.
func CreatedAtUsNEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldCreatedAtUs, v))
}

// CreatedAtUsIn applies the In predicate on the "created_at_us" field.
func CreatedAtUsIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldCreatedAtUs, vs...))
}

// CreatedAtUsNotIn applies the NotIn predicate on the "created_at_us" field.
func CreatedAtUsNotIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldCreatedAtUs, vs...))
}

// CreatedAtUsGT applies the GT predicate on the "created_at_us" field.
func CreatedAtUsGT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldCreatedAtUs, v))
}

// CreatedAtUsGTE applies the GTE predicate on the "created_at_us" field.
func CreatedAtUsGTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldCreatedAtUs, v))
}

// CreatedAtUsLT applies the LT predicate on the "created_at_us" field.
func CreatedAtUsLT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldCreatedAtUs, v))
}

// CreatedAtUsLTE applies the LTE predicate on the "created_at_us" field.
func CreatedAtUsLTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldCreatedAtUs, v))
}

// StartedAtUsEQ applies the EQ predicate on the "started_at_us" field.
func StartedAtUsEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldStartedAtUs, v))
}

// StartedAtUsNEQ applies the NEQ predicate on the "started_at_us" field.
func StartedAtUsNEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldStartedAtUs, v))
}

// StartedAtUsIn applies the In predicate on the "started_at_us" field.
func StartedAtUsIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldStartedAtUs, vs...))
}

// StartedAtUsNotIn applies the NotIn predicate on the "started_at_us" field.
func StartedAtUsNotIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldStartedAtUs, vs...))
}

// StartedAtUsGT applies the GT predicate on the "started_at_us" field.
func StartedAtUsGT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldStartedAtUs, v))
}

// StartedAtUsGTE applies the GTE predicate on the "started_at_us" field.
func StartedAtUsGTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldStartedAtUs, v))
}

// StartedAtUsLT applies the LT predicate on the "started_at_us" field.
func StartedAtUsLT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldStartedAtUs, v))
}

// StartedAtUsLTE applies the LTE predicate on the "started_at_us" field.
func StartedAtUsLTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldStartedAtUs, v))
}

// StartedAtUsIsNil applies the IsNil predicate on the "started_at_us" field.
func StartedAtUsIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldStartedAtUs))
}

// StartedAtUsNotNil applies the NotNil predicate on the "started_at_us" field.
func StartedAtUsNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldStartedAtUs))
}

// LastInteractionAtUsEQ applies the EQ predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsNEQ applies the NEQ predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsNEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsIn applies the In predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldLastInteractionAtUs, vs...))
}

// LastInteractionAtUsNotIn applies the NotIn predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsNotIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldLastInteractionAtUs, vs...))
}

// LastInteractionAtUsGT applies the GT predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsGT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsGTE applies the GTE predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsGTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsLT applies the LT predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsLT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsLTE applies the LTE predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsLTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldLastInteractionAtUs, v))
}

// LastInteractionAtUsIsNil applies the IsNil predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldLastInteractionAtUs))
}

// LastInteractionAtUsNotNil applies the NotNil predicate on the "last_interaction_at_us" field.
func LastInteractionAtUsNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldLastInteractionAtUs))
}

// CompletedAtUsEQ applies the EQ predicate on the "completed_at_us" field.
func CompletedAtUsEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCompletedAtUs, v))
}

// CompletedAtUsNEQ applies the NEQ predicate on the "completed_at_us" field.
func CompletedAtUsNEQ(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldCompletedAtUs, v))
}

// CompletedAtUsIn applies the In predicate on the "completed_at_us" field.
func CompletedAtUsIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldCompletedAtUs, vs...))
}

// CompletedAtUsNotIn applies the NotIn predicate on the "completed_at_us" field.
func CompletedAtUsNotIn(vs ...int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldCompletedAtUs, vs...))
}

// CompletedAtUsGT applies the GT predicate on the "completed_at_us" field.
func CompletedAtUsGT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldCompletedAtUs, v))
}

// CompletedAtUsGTE applies the GTE predicate on the "completed_at_us" field.
func CompletedAtUsGTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldCompletedAtUs, v))
}

// CompletedAtUsLT applies the LT predicate on the "completed_at_us" field.
func CompletedAtUsLT(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldCompletedAtUs, v))
}

// CompletedAtUsLTE applies the LTE predicate on the "completed_at_us" field.
func CompletedAtUsLTE(v int64) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldCompletedAtUs, v))
}

// CompletedAtUsIsNil applies the IsNil predicate on the "completed_at_us" field.
func CompletedAtUsIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldCompletedAtUs))
}

// CompletedAtUsNotNil applies the NotNil predicate on the "completed_at_us" field.
func CompletedAtUsNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldCompletedAtUs))
}

// ErrorMessageEQ applies the EQ predicate on the "error_message" field.
func ErrorMessageEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldErrorMessage, v))
}

// ErrorMessageNEQ applies the NEQ predicate on the "error_message" field.
func ErrorMessageNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldErrorMessage, v))
}

// ErrorMessageIn applies the In predicate on the "error_message" field.
func ErrorMessageIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldErrorMessage, vs...))
}

// ErrorMessageNotIn applies the NotIn predicate on the "error_message" field.
func ErrorMessageNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldErrorMessage, vs...))
}

// ErrorMessageGT applies the GT predicate on the "error_message" field.
func ErrorMessageGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldErrorMessage, v))
}

// ErrorMessageGTE applies the GTE predicate on the "error_message" field.
func ErrorMessageGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldErrorMessage, v))
}

// ErrorMessageLT applies the LT predicate on the "error_message" field.
func ErrorMessageLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldErrorMessage, v))
}

// ErrorMessageLTE applies the LTE predicate on the "error_message" field.
func ErrorMessageLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldErrorMessage, v))
}

// ErrorMessageContains applies the Contains predicate on the "error_message" field.
func ErrorMessageContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldErrorMessage, v))
}

// ErrorMessageHasPrefix applies the HasPrefix predicate on the "error_message" field.
func ErrorMessageHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldErrorMessage, v))
}

// ErrorMessageHasSuffix applies the HasSuffix predicate on the "error_message" field.
func ErrorMessageHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldErrorMessage, v))
}

// ErrorMessageIsNil applies the IsNil predicate on the "error_message" field.
func ErrorMessageIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldErrorMessage))
}

// ErrorMessageNotNil applies the NotNil predicate on the "error_message" field.
func ErrorMessageNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldErrorMessage))
}

// ErrorMessageEqualFold applies the EqualFold predicate on the "error_message" field.
func ErrorMessageEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldErrorMessage, v))
}

// ErrorMessageContainsFold applies the ContainsFold predicate on the "error_message" field.
func ErrorMessageContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldErrorMessage, v))
}

// FinalAnalysisEQ applies the EQ predicate on the "final_analysis" field.
func FinalAnalysisEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldFinalAnalysis, v))
}

// FinalAnalysisNEQ applies the NEQ predicate on the "final_analysis" field.
func FinalAnalysisNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldFinalAnalysis, v))
}

// FinalAnalysisIn applies the In predicate on the "final_analysis" field.
func FinalAnalysisIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldFinalAnalysis, vs...))
}

// FinalAnalysisNotIn applies the NotIn predicate on the "final_analysis" field.
func FinalAnalysisNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldFinalAnalysis, vs...))
}

// FinalAnalysisGT applies the GT predicate on the "final_analysis" field.
func FinalAnalysisGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldFinalAnalysis, v))
}

// FinalAnalysisGTE applies the GTE predicate on the "final_analysis" field.
func FinalAnalysisGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldFinalAnalysis, v))
}

// FinalAnalysisLT applies the LT predicate on the "final_analysis" field.
func FinalAnalysisLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldFinalAnalysis, v))
}

// FinalAnalysisLTE applies the LTE predicate on the "final_analysis" field.
func FinalAnalysisLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldFinalAnalysis, v))
}

// FinalAnalysisContains applies the Contains predicate on the "final_analysis" field.
func FinalAnalysisContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldFinalAnalysis, v))
}

// FinalAnalysisHasPrefix applies the HasPrefix predicate on the "final_analysis" field.
func FinalAnalysisHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldFinalAnalysis, v))
}

// FinalAnalysisHasSuffix applies the HasSuffix predicate on the "final_analysis" field.
func FinalAnalysisHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldFinalAnalysis, v))
}

// FinalAnalysisIsNil applies the IsNil predicate on the "final_analysis" field.
func FinalAnalysisIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldFinalAnalysis))
}

// FinalAnalysisNotNil applies the NotNil predicate on the "final_analysis" field.
func FinalAnalysisNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldFinalAnalysis))
}

// FinalAnalysisEqualFold applies the EqualFold predicate on the "final_analysis" field.
func FinalAnalysisEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldFinalAnalysis, v))
}

// FinalAnalysisContainsFold applies the ContainsFold predicate on the "final_analysis" field.
func FinalAnalysisContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldFinalAnalysis, v))
}

// PauseMetadataIsNil applies the IsNil predicate on the "pause_metadata" field.
func PauseMetadataIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldPauseMetadata))
}

// PauseMetadataNotNil applies the NotNil predicate on the "pause_metadata" field.
func PauseMetadataNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldPauseMetadata))
}

// PodIDEQ applies the EQ predicate on the "pod_id" field.
func PodIDEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldPodID, v))
}

// PodIDNEQ applies the NEQ predicate on the "pod_id" field.
func PodIDNEQ(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldPodID, v))
}

// PodIDIn applies the In predicate on the "pod_id" field.
func PodIDIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIn(FieldPodID, vs...))
}

// PodIDNotIn applies the NotIn predicate on the "pod_id" field.
func PodIDNotIn(vs ...string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotIn(FieldPodID, vs...))
}

// PodIDGT applies the GT predicate on the "pod_id" field.
func PodIDGT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGT(FieldPodID, v))
}

// PodIDGTE applies the GTE predicate on the "pod_id" field.
func PodIDGTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldGTE(FieldPodID, v))
}

// PodIDLT applies the LT predicate on the "pod_id" field.
func PodIDLT(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLT(FieldPodID, v))
}

// PodIDLTE applies the LTE predicate on the "pod_id" field.
func PodIDLTE(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldLTE(FieldPodID, v))
}

// PodIDContains applies the Contains predicate on the "pod_id" field.
func PodIDContains(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContains(FieldPodID, v))
}

// PodIDHasPrefix applies the HasPrefix predicate on the "pod_id" field.
func PodIDHasPrefix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasPrefix(FieldPodID, v))
}

// PodIDHasSuffix applies the HasSuffix predicate on the "pod_id" field.
func PodIDHasSuffix(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldHasSuffix(FieldPodID, v))
}

// PodIDIsNil applies the IsNil predicate on the "pod_id" field.
func PodIDIsNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldIsNull(FieldPodID))
}

// PodIDNotNil applies the NotNil predicate on the "pod_id" field.
func PodIDNotNil() predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNotNull(FieldPodID))
}

// PodIDEqualFold applies the EqualFold predicate on the "pod_id" field.
func PodIDEqualFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEqualFold(FieldPodID, v))
}

// PodIDContainsFold applies the ContainsFold predicate on the "pod_id" field.
func PodIDContainsFold(v string) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldContainsFold(FieldPodID, v))
}

// CancelRequestedEQ applies the EQ predicate on the "cancel_requested" field.
func CancelRequestedEQ(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldCancelRequested, v))
}

// CancelRequestedNEQ applies the NEQ predicate on the "cancel_requested" field.
func CancelRequestedNEQ(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldCancelRequested, v))
}

// PauseRequestedEQ applies the EQ predicate on the "pause_requested" field.
func PauseRequestedEQ(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldEQ(FieldPauseRequested, v))
}

// PauseRequestedNEQ applies the NEQ predicate on the "pause_requested" field.
func PauseRequestedNEQ(v bool) predicate.AlertSession {
	return predicate.AlertSession(sql.FieldNEQ(FieldPauseRequested, v))
}

// HasStageExecutions applies the HasEdge predicate on the "stage_executions" edge.
func HasStageExecutions() predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := sqlgraph.NewStep(
			sqlgraph.From(Table, FieldID),
			sqlgraph.Edge(sqlgraph.O2M, false, StageExecutionsTable, StageExecutionsColumn),
		)
		sqlgraph.HasNeighbors(s, step)
	})
}

// HasStageExecutionsWith applies the HasEdge predicate on the "stage_executions" edge with a given conditions (other predicates).
func HasStageExecutionsWith(preds ...predicate.StageExecution) predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := newStageExecutionsStep()
		sqlgraph.HasNeighborsWith(s, step, func(s *sql.Selector) {
			for _, p := range preds {
				p(s)
			}
		})
	})
}

// HasLlmInteractions applies the HasEdge predicate on the "llm_interactions" edge.
func HasLlmInteractions() predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := sqlgraph.NewStep(
			sqlgraph.From(Table, FieldID),
			sqlgraph.Edge(sqlgraph.O2M, false, LlmInteractionsTable, LlmInteractionsColumn),
		)
		sqlgraph.HasNeighbors(s, step)
	})
}

// HasLlmInteractionsWith applies the HasEdge predicate on the "llm_interactions" edge with a given conditions (other predicates).
func HasLlmInteractionsWith(preds ...predicate.LLMInteraction) predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := newLlmInteractionsStep()
		sqlgraph.HasNeighborsWith(s, step, func(s *sql.Selector) {
			for _, p := range preds {
				p(s)
			}
		})
	})
}

// HasMcpInteractions applies the HasEdge predicate on the "mcp_interactions" edge.
func HasMcpInteractions() predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := sqlgraph.NewStep(
			sqlgraph.From(Table, FieldID),
			sqlgraph.Edge(sqlgraph.O2M, false, McpInteractionsTable, McpInteractionsColumn),
		)
		sqlgraph.HasNeighbors(s, step)
	})
}

// HasMcpInteractionsWith applies the HasEdge predicate on the "mcp_interactions" edge with a given conditions (other predicates).
func HasMcpInteractionsWith(preds ...predicate.MCPInteraction) predicate.AlertSession {
	return predicate.AlertSession(func(s *sql.Selector) {
		step := newMcpInteractionsStep()
		sqlgraph.HasNeighborsWith(s, step, func(s *sql.Selector) {
			for _, p := range preds {
				p(s)
			}
		})
	})
}

// And groups predicates with the AND operator between them.
func And(predicates ...predicate.AlertSession) predicate.AlertSession {
	return predicate.AlertSession(sql.AndPredicates(predicates...))
}

// Or groups predicates with the OR operator between them.
func Or(predicates ...predicate.AlertSession) predicate.AlertSession {
	return predicate.AlertSession(sql.OrPredicates(predicates...))
}

// Not applies the not operator on the given predicate.
func Not(p predicate.AlertSession) predicate.AlertSession {
	return predicate.AlertSession(sql.NotPredicates(p))
}
