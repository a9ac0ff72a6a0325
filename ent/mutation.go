// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/ent/event"
	"github.com/tarsy-dev/tarsy/ent/llminteraction"
	"github.com/tarsy-dev/tarsy/ent/mcpinteraction"
	"github.com/tarsy-dev/tarsy/ent/predicate"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

const (
	// Operation types.
	OpCreate    = ent.OpCreate
	OpDelete    = ent.OpDelete
	OpDeleteOne = ent.OpDeleteOne
	OpUpdate    = ent.OpUpdate
	OpUpdateOne = ent.OpUpdateOne

	// Node types.
	TypeAlertSession   = "AlertSession"
	TypeEvent          = "Event"
	TypeLLMInteraction = "LLMInteraction"
	TypeMCPInteraction = "MCPInteraction"
	TypeStageExecution = "StageExecution"
)

// AlertSessionMutation represents an operation that mutates the AlertSession nodes in the graph.
type AlertSessionMutation struct {
	config
	op                        Op
	typ                       string
	id                        *string
	alert_id                  *string
	alert_type                *string
	alert_data                *map[string]interface{}
	alert_fingerprint         *string
	chain_id                  *string
	chain_definition          *map[string]interface{}
	agent_type                *string
	author                    *string
	runbook_url               *string
	status                    *alertsession.Status
	created_at_us             *int64
	addcreated_at_us          *int64
	started_at_us             *int64
	addstarted_at_us          *int64
	last_interaction_at_us    *int64
	addlast_interaction_at_us *int64
	completed_at_us           *int64
	addcompleted_at_us        *int64
	error_message             *string
	final_analysis            *string
	pause_metadata            *map[string]interface{}
	pod_id                    *string
	cancel_requested          *bool
	pause_requested           *bool
	clearedFields             map[string]struct{}
	stage_executions          map[string]struct{}
	removedstage_executions   map[string]struct{}
	clearedstage_executions   bool
	llm_interactions          map[string]struct{}
	removedllm_interactions   map[string]struct{}
	clearedllm_interactions   bool
	mcp_interactions          map[string]struct{}
	removedmcp_interactions   map[string]struct{}
	clearedmcp_interactions   bool
	done                      bool
	oldValue                  func(context.Context) (*AlertSession, error)
	predicates                []predicate.AlertSession
}

var _ ent.Mutation = (*AlertSessionMutation)(nil)

// alertsessionOption allows management of the mutation configuration using functional options.
type alertsessionOption func(*AlertSessionMutation)

// newAlertSessionMutation creates new mutation for the AlertSession entity.
func newAlertSessionMutation(c config, op Op, opts ...alertsessionOption) *AlertSessionMutation {
	m := &AlertSessionMutation{
		config:        c,
		op:            op,
		typ:           TypeAlertSession,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withAlertSessionID sets the ID field of the mutation.
func withAlertSessionID(id string) alertsessionOption {
	return func(m *AlertSessionMutation) {
		var (
			err   error
			once  sync.Once
			value *AlertSession
		)
		m.oldValue = func(ctx context.Context) (*AlertSession, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().AlertSession.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withAlertSession sets the old AlertSession of the mutation.
func withAlertSession(node *AlertSession) alertsessionOption {
	return func(m *AlertSessionMutation) {
		m.oldValue = func(context.Context) (*AlertSession, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m AlertSessionMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m AlertSessionMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of AlertSession entities.
func (m *AlertSessionMutation) SetID(id string) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *AlertSessionMutation) ID() (id string, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *AlertSessionMutation) IDs(ctx context.Context) ([]string, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []string{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().AlertSession.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetAlertID sets the "alert_id" field.
func (m *AlertSessionMutation) SetAlertID(s string) {
	m.alert_id = &s
}

// AlertID returns the value of the "alert_id" field in the mutation.
func (m *AlertSessionMutation) AlertID() (r string, exists bool) {
	v := m.alert_id
	if v == nil {
		return
	}
	return *v, true
}

// OldAlertID returns the old "alert_id" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAlertID(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAlertID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAlertID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAlertID: %w", err)
	}
	return oldValue.AlertID, nil
}

// ResetAlertID resets all changes to the "alert_id" field.
func (m *AlertSessionMutation) ResetAlertID() {
	m.alert_id = nil
}

// SetAlertType sets the "alert_type" field.
func (m *AlertSessionMutation) SetAlertType(s string) {
	m.alert_type = &s
}

// AlertType returns the value of the "alert_type" field in the mutation.
func (m *AlertSessionMutation) AlertType() (r string, exists bool) {
	v := m.alert_type
	if v == nil {
		return
	}
	return *v, true
}

// OldAlertType returns the old "alert_type" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAlertType(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAlertType is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAlertType requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAlertType: %w", err)
	}
	return oldValue.AlertType, nil
}

// ResetAlertType resets all changes to the "alert_type" field.
func (m *AlertSessionMutation) ResetAlertType() {
	m.alert_type = nil
}

// SetAlertData sets the "alert_data" field.
func (m *AlertSessionMutation) SetAlertData(value map[string]interface{}) {
	m.alert_data = &value
}

// AlertData returns the value of the "alert_data" field in the mutation.
func (m *AlertSessionMutation) AlertData() (r map[string]interface{}, exists bool) {
	v := m.alert_data
	if v == nil {
		return
	}
	return *v, true
}

// OldAlertData returns the old "alert_data" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAlertData(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAlertData is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAlertData requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAlertData: %w", err)
	}
	return oldValue.AlertData, nil
}

// ResetAlertData resets all changes to the "alert_data" field.
func (m *AlertSessionMutation) ResetAlertData() {
	m.alert_data = nil
}

// SetAlertFingerprint sets the "alert_fingerprint" field.
func (m *AlertSessionMutation) SetAlertFingerprint(s string) {
	m.alert_fingerprint = &s
}

// AlertFingerprint returns the value of the "alert_fingerprint" field in the mutation.
func (m *AlertSessionMutation) AlertFingerprint() (r string, exists bool) {
	v := m.alert_fingerprint
	if v == nil {
		return
	}
	return *v, true
}

// OldAlertFingerprint returns the old "alert_fingerprint" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAlertFingerprint(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAlertFingerprint is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAlertFingerprint requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAlertFingerprint: %w", err)
	}
	return oldValue.AlertFingerprint, nil
}

// ResetAlertFingerprint resets all changes to the "alert_fingerprint" field.
func (m *AlertSessionMutation) ResetAlertFingerprint() {
	m.alert_fingerprint = nil
}

// SetChainID sets the "chain_id" field.
func (m *AlertSessionMutation) SetChainID(s string) {
	m.chain_id = &s
}

// ChainID returns the value of the "chain_id" field in the mutation.
func (m *AlertSessionMutation) ChainID() (r string, exists bool) {
	v := m.chain_id
	if v == nil {
		return
	}
	return *v, true
}

// OldChainID returns the old "chain_id" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldChainID(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldChainID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldChainID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldChainID: %w", err)
	}
	return oldValue.ChainID, nil
}

// ResetChainID resets all changes to the "chain_id" field.
func (m *AlertSessionMutation) ResetChainID() {
	m.chain_id = nil
}

// SetChainDefinition sets the "chain_definition" field.
func (m *AlertSessionMutation) SetChainDefinition(value map[string]interface{}) {
	m.chain_definition = &value
}

// ChainDefinition returns the value of the "chain_definition" field in the mutation.
func (m *AlertSessionMutation) ChainDefinition() (r map[string]interface{}, exists bool) {
	v := m.chain_definition
	if v == nil {
		return
	}
	return *v, true
}

// OldChainDefinition returns the old "chain_definition" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldChainDefinition(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldChainDefinition is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldChainDefinition requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldChainDefinition: %w", err)
	}
	return oldValue.ChainDefinition, nil
}

// ResetChainDefinition resets all changes to the "chain_definition" field.
func (m *AlertSessionMutation) ResetChainDefinition() {
	m.chain_definition = nil
}

// SetAgentType sets the "agent_type" field.
func (m *AlertSessionMutation) SetAgentType(s string) {
	m.agent_type = &s
}

// AgentType returns the value of the "agent_type" field in the mutation.
func (m *AlertSessionMutation) AgentType() (r string, exists bool) {
	v := m.agent_type
	if v == nil {
		return
	}
	return *v, true
}

// OldAgentType returns the old "agent_type" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAgentType(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAgentType is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAgentType requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAgentType: %w", err)
	}
	return oldValue.AgentType, nil
}

// ClearAgentType clears the value of the "agent_type" field.
func (m *AlertSessionMutation) ClearAgentType() {
	m.agent_type = nil
	m.clearedFields[alertsession.FieldAgentType] = struct{}{}
}

// AgentTypeCleared returns if the "agent_type" field was cleared in this mutation.
func (m *AlertSessionMutation) AgentTypeCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldAgentType]
	return ok
}

// ResetAgentType resets all changes to the "agent_type" field.
func (m *AlertSessionMutation) ResetAgentType() {
	m.agent_type = nil
	delete(m.clearedFields, alertsession.FieldAgentType)
}

// SetAuthor sets the "author" field.
func (m *AlertSessionMutation) SetAuthor(s string) {
	m.author = &s
}

// Author returns the value of the "author" field in the mutation.
func (m *AlertSessionMutation) Author() (r string, exists bool) {
	v := m.author
	if v == nil {
		return
	}
	return *v, true
}

// OldAuthor returns the old "author" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldAuthor(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAuthor is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAuthor requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAuthor: %w", err)
	}
	return oldValue.Author, nil
}

// ClearAuthor clears the value of the "author" field.
func (m *AlertSessionMutation) ClearAuthor() {
	m.author = nil
	m.clearedFields[alertsession.FieldAuthor] = struct{}{}
}

// AuthorCleared returns if the "author" field was cleared in this mutation.
func (m *AlertSessionMutation) AuthorCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldAuthor]
	return ok
}

// ResetAuthor resets all changes to the "author" field.
func (m *AlertSessionMutation) ResetAuthor() {
	m.author = nil
	delete(m.clearedFields, alertsession.FieldAuthor)
}

// SetRunbookURL sets the "runbook_url" field.
func (m *AlertSessionMutation) SetRunbookURL(s string) {
	m.runbook_url = &s
}

// RunbookURL returns the value of the "runbook_url" field in the mutation.
func (m *AlertSessionMutation) RunbookURL() (r string, exists bool) {
	v := m.runbook_url
	if v == nil {
		return
	}
	return *v, true
}

// OldRunbookURL returns the old "runbook_url" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldRunbookURL(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldRunbookURL is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldRunbookURL requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldRunbookURL: %w", err)
	}
	return oldValue.RunbookURL, nil
}

// ClearRunbookURL clears the value of the "runbook_url" field.
func (m *AlertSessionMutation) ClearRunbookURL() {
	m.runbook_url = nil
	m.clearedFields[alertsession.FieldRunbookURL] = struct{}{}
}

// RunbookURLCleared returns if the "runbook_url" field was cleared in this mutation.
func (m *AlertSessionMutation) RunbookURLCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldRunbookURL]
	return ok
}

// ResetRunbookURL resets all changes to the "runbook_url" field.
func (m *AlertSessionMutation) ResetRunbookURL() {
	m.runbook_url = nil
	delete(m.clearedFields, alertsession.FieldRunbookURL)
}

// SetStatus sets the "status" field.
func (m *AlertSessionMutation) SetStatus(a alertsession.Status) {
	m.status = &a
}

// Status returns the value of the "status" field in the mutation.
func (m *AlertSessionMutation) Status() (r alertsession.Status, exists bool) {
	v := m.status
	if v == nil {
		return
	}
	return *v, true
}

// OldStatus returns the old "status" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldStatus(ctx context.Context) (v alertsession.Status, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStatus is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStatus requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStatus: %w", err)
	}
	return oldValue.Status, nil
}

// ResetStatus resets all changes to the "status" field.
func (m *AlertSessionMutation) ResetStatus() {
	m.status = nil
}

// SetCreatedAtUs sets the "created_at_us" field.
func (m *AlertSessionMutation) SetCreatedAtUs(i int64) {
	m.created_at_us = &i
	m.addcreated_at_us = nil
}

// CreatedAtUs returns the value of the "created_at_us" field in the mutation.
func (m *AlertSessionMutation) CreatedAtUs() (r int64, exists bool) {
	v := m.created_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldCreatedAtUs returns the old "created_at_us" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldCreatedAtUs(ctx context.Context) (v int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCreatedAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCreatedAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCreatedAtUs: %w", err)
	}
	return oldValue.CreatedAtUs, nil
}

// AddCreatedAtUs adds i to the "created_at_us" field.
func (m *AlertSessionMutation) AddCreatedAtUs(i int64) {
	if m.addcreated_at_us != nil {
		*m.addcreated_at_us += i
	} else {
		m.addcreated_at_us = &i
	}
}

// AddedCreatedAtUs returns the value that was added to the "created_at_us" field in this mutation.
func (m *AlertSessionMutation) AddedCreatedAtUs() (r int64, exists bool) {
	v := m.addcreated_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ResetCreatedAtUs resets all changes to the "created_at_us" field.
func (m *AlertSessionMutation) ResetCreatedAtUs() {
	m.created_at_us = nil
	m.addcreated_at_us = nil
}

// SetStartedAtUs sets the "started_at_us" field.
func (m *AlertSessionMutation) SetStartedAtUs(i int64) {
	m.started_at_us = &i
	m.addstarted_at_us = nil
}

// StartedAtUs returns the value of the "started_at_us" field in the mutation.
func (m *AlertSessionMutation) StartedAtUs() (r int64, exists bool) {
	v := m.started_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldStartedAtUs returns the old "started_at_us" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldStartedAtUs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStartedAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStartedAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStartedAtUs: %w", err)
	}
	return oldValue.StartedAtUs, nil
}

// AddStartedAtUs adds i to the "started_at_us" field.
func (m *AlertSessionMutation) AddStartedAtUs(i int64) {
	if m.addstarted_at_us != nil {
		*m.addstarted_at_us += i
	} else {
		m.addstarted_at_us = &i
	}
}

// AddedStartedAtUs returns the value that was added to the "started_at_us" field in this mutation.
func (m *AlertSessionMutation) AddedStartedAtUs() (r int64, exists bool) {
	v := m.addstarted_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (m *AlertSessionMutation) ClearStartedAtUs() {
	m.started_at_us = nil
	m.addstarted_at_us = nil
	m.clearedFields[alertsession.FieldStartedAtUs] = struct{}{}
}

// StartedAtUsCleared returns if the "started_at_us" field was cleared in this mutation.
func (m *AlertSessionMutation) StartedAtUsCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldStartedAtUs]
	return ok
}

// ResetStartedAtUs resets all changes to the "started_at_us" field.
func (m *AlertSessionMutation) ResetStartedAtUs() {
	m.started_at_us = nil
	m.addstarted_at_us = nil
	delete(m.clearedFields, alertsession.FieldStartedAtUs)
}

// SetLastInteractionAtUs sets the "last_interaction_at_us" field.
func (m *AlertSessionMutation) SetLastInteractionAtUs(i int64) {
	m.last_interaction_at_us = &i
	m.addlast_interaction_at_us = nil
}

// LastInteractionAtUs returns the value of the "last_interaction_at_us" field in the mutation.
func (m *AlertSessionMutation) LastInteractionAtUs() (r int64, exists bool) {
	v := m.last_interaction_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldLastInteractionAtUs returns the old "last_interaction_at_us" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldLastInteractionAtUs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldLastInteractionAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldLastInteractionAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldLastInteractionAtUs: %w", err)
	}
	return oldValue.LastInteractionAtUs, nil
}

// AddLastInteractionAtUs adds i to the "last_interaction_at_us" field.
func (m *AlertSessionMutation) AddLastInteractionAtUs(i int64) {
	if m.addlast_interaction_at_us != nil {
		*m.addlast_interaction_at_us += i
	} else {
		m.addlast_interaction_at_us = &i
	}
}

// AddedLastInteractionAtUs returns the value that was added to the "last_interaction_at_us" field in this mutation.
func (m *AlertSessionMutation) AddedLastInteractionAtUs() (r int64, exists bool) {
	v := m.addlast_interaction_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ClearLastInteractionAtUs clears the value of the "last_interaction_at_us" field.
func (m *AlertSessionMutation) ClearLastInteractionAtUs() {
	m.last_interaction_at_us = nil
	m.addlast_interaction_at_us = nil
	m.clearedFields[alertsession.FieldLastInteractionAtUs] = struct{}{}
}

// LastInteractionAtUsCleared returns if the "last_interaction_at_us" field was cleared in this mutation.
func (m *AlertSessionMutation) LastInteractionAtUsCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldLastInteractionAtUs]
	return ok
}

// ResetLastInteractionAtUs resets all changes to the "last_interaction_at_us" field.
func (m *AlertSessionMutation) ResetLastInteractionAtUs() {
	m.last_interaction_at_us = nil
	m.addlast_interaction_at_us = nil
	delete(m.clearedFields, alertsession.FieldLastInteractionAtUs)
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (m *AlertSessionMutation) SetCompletedAtUs(i int64) {
	m.completed_at_us = &i
	m.addcompleted_at_us = nil
}

// CompletedAtUs returns the value of the "completed_at_us" field in the mutation.
func (m *AlertSessionMutation) CompletedAtUs() (r int64, exists bool) {
	v := m.completed_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldCompletedAtUs returns the old "completed_at_us" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldCompletedAtUs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCompletedAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCompletedAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCompletedAtUs: %w", err)
	}
	return oldValue.CompletedAtUs, nil
}

// AddCompletedAtUs adds i to the "completed_at_us" field.
func (m *AlertSessionMutation) AddCompletedAtUs(i int64) {
	if m.addcompleted_at_us != nil {
		*m.addcompleted_at_us += i
	} else {
		m.addcompleted_at_us = &i
	}
}

// AddedCompletedAtUs returns the value that was added to the "completed_at_us" field in this mutation.
func (m *AlertSessionMutation) AddedCompletedAtUs() (r int64, exists bool) {
	v := m.addcompleted_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (m *AlertSessionMutation) ClearCompletedAtUs() {
	m.completed_at_us = nil
	m.addcompleted_at_us = nil
	m.clearedFields[alertsession.FieldCompletedAtUs] = struct{}{}
}

// CompletedAtUsCleared returns if the "completed_at_us" field was cleared in this mutation.
func (m *AlertSessionMutation) CompletedAtUsCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldCompletedAtUs]
	return ok
}

// ResetCompletedAtUs resets all changes to the "completed_at_us" field.
func (m *AlertSessionMutation) ResetCompletedAtUs() {
	m.completed_at_us = nil
	m.addcompleted_at_us = nil
	delete(m.clearedFields, alertsession.FieldCompletedAtUs)
}

// SetErrorMessage sets the "error_message" field.
func (m *AlertSessionMutation) SetErrorMessage(s string) {
	m.error_message = &s
}

// ErrorMessage returns the value of the "error_message" field in the mutation.
func (m *AlertSessionMutation) ErrorMessage() (r string, exists bool) {
	v := m.error_message
	if v == nil {
		return
	}
	return *v, true
}

// OldErrorMessage returns the old "error_message" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldErrorMessage(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldErrorMessage is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldErrorMessage requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldErrorMessage: %w", err)
	}
	return oldValue.ErrorMessage, nil
}

// ClearErrorMessage clears the value of the "error_message" field.
func (m *AlertSessionMutation) ClearErrorMessage() {
	m.error_message = nil
	m.clearedFields[alertsession.FieldErrorMessage] = struct{}{}
}

// ErrorMessageCleared returns if the "error_message" field was cleared in this mutation.
func (m *AlertSessionMutation) ErrorMessageCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldErrorMessage]
	return ok
}

// ResetErrorMessage resets all changes to the "error_message" field.
func (m *AlertSessionMutation) ResetErrorMessage() {
	m.error_message = nil
	delete(m.clearedFields, alertsession.FieldErrorMessage)
}

// SetFinalAnalysis sets the "final_analysis" field.
func (m *AlertSessionMutation) SetFinalAnalysis(s string) {
	m.final_analysis = &s
}

// FinalAnalysis returns the value of the "final_analysis" field in the mutation.
func (m *AlertSessionMutation) FinalAnalysis() (r string, exists bool) {
	v := m.final_analysis
	if v == nil {
		return
	}
	return *v, true
}

// OldFinalAnalysis returns the old "final_analysis" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldFinalAnalysis(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldFinalAnalysis is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldFinalAnalysis requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldFinalAnalysis: %w", err)
	}
	return oldValue.FinalAnalysis, nil
}

// ClearFinalAnalysis clears the value of the "final_analysis" field.
func (m *AlertSessionMutation) ClearFinalAnalysis() {
	m.final_analysis = nil
	m.clearedFields[alertsession.FieldFinalAnalysis] = struct{}{}
}

// FinalAnalysisCleared returns if the "final_analysis" field was cleared in this mutation.
func (m *AlertSessionMutation) FinalAnalysisCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldFinalAnalysis]
	return ok
}

// ResetFinalAnalysis resets all changes to the "final_analysis" field.
func (m *AlertSessionMutation) ResetFinalAnalysis() {
	m.final_analysis = nil
	delete(m.clearedFields, alertsession.FieldFinalAnalysis)
}

// SetPauseMetadata sets the "pause_metadata" field.
func (m *AlertSessionMutation) SetPauseMetadata(value map[string]interface{}) {
	m.pause_metadata = &value
}

// PauseMetadata returns the value of the "pause_metadata" field in the mutation.
func (m *AlertSessionMutation) PauseMetadata() (r map[string]interface{}, exists bool) {
	v := m.pause_metadata
	if v == nil {
		return
	}
	return *v, true
}

// OldPauseMetadata returns the old "pause_metadata" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldPauseMetadata(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldPauseMetadata is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldPauseMetadata requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldPauseMetadata: %w", err)
	}
	return oldValue.PauseMetadata, nil
}

// ClearPauseMetadata clears the value of the "pause_metadata" field.
func (m *AlertSessionMutation) ClearPauseMetadata() {
	m.pause_metadata = nil
	m.clearedFields[alertsession.FieldPauseMetadata] = struct{}{}
}

// PauseMetadataCleared returns if the "pause_metadata" field was cleared in this mutation.
func (m *AlertSessionMutation) PauseMetadataCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldPauseMetadata]
	return ok
}

// ResetPauseMetadata resets all changes to the "pause_metadata" field.
func (m *AlertSessionMutation) ResetPauseMetadata() {
	m.pause_metadata = nil
	delete(m.clearedFields, alertsession.FieldPauseMetadata)
}

// SetPodID sets the "pod_id" field.
func (m *AlertSessionMutation) SetPodID(s string) {
	m.pod_id = &s
}

// PodID returns the value of the "pod_id" field in the mutation.
func (m *AlertSessionMutation) PodID() (r string, exists bool) {
	v := m.pod_id
	if v == nil {
		return
	}
	return *v, true
}

// OldPodID returns the old "pod_id" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldPodID(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldPodID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldPodID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldPodID: %w", err)
	}
	return oldValue.PodID, nil
}

// ClearPodID clears the value of the "pod_id" field.
func (m *AlertSessionMutation) ClearPodID() {
	m.pod_id = nil
	m.clearedFields[alertsession.FieldPodID] = struct{}{}
}

// PodIDCleared returns if the "pod_id" field was cleared in this mutation.
func (m *AlertSessionMutation) PodIDCleared() bool {
	_, ok := m.clearedFields[alertsession.FieldPodID]
	return ok
}

// ResetPodID resets all changes to the "pod_id" field.
func (m *AlertSessionMutation) ResetPodID() {
	m.pod_id = nil
	delete(m.clearedFields, alertsession.FieldPodID)
}

// SetCancelRequested sets the "cancel_requested" field.
func (m *AlertSessionMutation) SetCancelRequested(b bool) {
	m.cancel_requested = &b
}

// CancelRequested returns the value of the "cancel_requested" field in the mutation.
func (m *AlertSessionMutation) CancelRequested() (r bool, exists bool) {
	v := m.cancel_requested
	if v == nil {
		return
	}
	return *v, true
}

// OldCancelRequested returns the old "cancel_requested" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldCancelRequested(ctx context.Context) (v bool, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCancelRequested is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCancelRequested requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCancelRequested: %w", err)
	}
	return oldValue.CancelRequested, nil
}

// ResetCancelRequested resets all changes to the "cancel_requested" field.
func (m *AlertSessionMutation) ResetCancelRequested() {
	m.cancel_requested = nil
}

// SetPauseRequested sets the "pause_requested" field.
func (m *AlertSessionMutation) SetPauseRequested(b bool) {
	m.pause_requested = &b
}

// PauseRequested returns the value of the "pause_requested" field in the mutation.
func (m *AlertSessionMutation) PauseRequested() (r bool, exists bool) {
	v := m.pause_requested
	if v == nil {
		return
	}
	return *v, true
}

// OldPauseRequested returns the old "pause_requested" field's value of the AlertSession entity.
// If the AlertSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *AlertSessionMutation) OldPauseRequested(ctx context.Context) (v bool, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldPauseRequested is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldPauseRequested requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldPauseRequested: %w", err)
	}
	return oldValue.PauseRequested, nil
}

// ResetPauseRequested resets all changes to the "pause_requested" field.
func (m *AlertSessionMutation) ResetPauseRequested() {
	m.pause_requested = nil
}

// AddStageExecutionIDs adds the "stage_executions" edge to the StageExecution entity by ids.
func (m *AlertSessionMutation) AddStageExecutionIDs(ids ...string) {
	if m.stage_executions == nil {
		m.stage_executions = make(map[string]struct{})
	}
	for i := range ids {
		m.stage_executions[ids[i]] = struct{}{}
	}
}

// ClearStageExecutions clears the "stage_executions" edge to the StageExecution entity.
func (m *AlertSessionMutation) ClearStageExecutions() {
	m.clearedstage_executions = true
}

// StageExecutionsCleared reports if the "stage_executions" edge to the StageExecution entity was cleared.
func (m *AlertSessionMutation) StageExecutionsCleared() bool {
	return m.clearedstage_executions
}

// RemoveStageExecutionIDs removes the "stage_executions" edge to the StageExecution entity by IDs.
func (m *AlertSessionMutation) RemoveStageExecutionIDs(ids ...string) {
	if m.removedstage_executions == nil {
		m.removedstage_executions = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.stage_executions, ids[i])
		m.removedstage_executions[ids[i]] = struct{}{}
	}
}

// RemovedStageExecutions returns the removed IDs of the "stage_executions" edge to the StageExecution entity.
func (m *AlertSessionMutation) RemovedStageExecutionsIDs() (ids []string) {
	for id := range m.removedstage_executions {
		ids = append(ids, id)
	}
	return
}

// StageExecutionsIDs returns the "stage_executions" edge IDs in the mutation.
func (m *AlertSessionMutation) StageExecutionsIDs() (ids []string) {
	for id := range m.stage_executions {
		ids = append(ids, id)
	}
	return
}

// ResetStageExecutions resets all changes to the "stage_executions" edge.
func (m *AlertSessionMutation) ResetStageExecutions() {
	m.stage_executions = nil
	m.clearedstage_executions = false
	m.removedstage_executions = nil
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by ids.
func (m *AlertSessionMutation) AddLlmInteractionIDs(ids ...string) {
	if m.llm_interactions == nil {
		m.llm_interactions = make(map[string]struct{})
	}
	for i := range ids {
		m.llm_interactions[ids[i]] = struct{}{}
	}
}

// ClearLlmInteractions clears the "llm_interactions" edge to the LLMInteraction entity.
func (m *AlertSessionMutation) ClearLlmInteractions() {
	m.clearedllm_interactions = true
}

// LlmInteractionsCleared reports if the "llm_interactions" edge to the LLMInteraction entity was cleared.
func (m *AlertSessionMutation) LlmInteractionsCleared() bool {
	return m.clearedllm_interactions
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (m *AlertSessionMutation) RemoveLlmInteractionIDs(ids ...string) {
	if m.removedllm_interactions == nil {
		m.removedllm_interactions = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.llm_interactions, ids[i])
		m.removedllm_interactions[ids[i]] = struct{}{}
	}
}

// RemovedLlmInteractions returns the removed IDs of the "llm_interactions" edge to the LLMInteraction entity.
func (m *AlertSessionMutation) RemovedLlmInteractionsIDs() (ids []string) {
	for id := range m.removedllm_interactions {
		ids = append(ids, id)
	}
	return
}

// LlmInteractionsIDs returns the "llm_interactions" edge IDs in the mutation.
func (m *AlertSessionMutation) LlmInteractionsIDs() (ids []string) {
	for id := range m.llm_interactions {
		ids = append(ids, id)
	}
	return
}

// ResetLlmInteractions resets all changes to the "llm_interactions" edge.
func (m *AlertSessionMutation) ResetLlmInteractions() {
	m.llm_interactions = nil
	m.clearedllm_interactions = false
	m.removedllm_interactions = nil
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by ids.
func (m *AlertSessionMutation) AddMcpInteractionIDs(ids ...string) {
	if m.mcp_interactions == nil {
		m.mcp_interactions = make(map[string]struct{})
	}
	for i := range ids {
		m.mcp_interactions[ids[i]] = struct{}{}
	}
}

// ClearMcpInteractions clears the "mcp_interactions" edge to the MCPInteraction entity.
func (m *AlertSessionMutation) ClearMcpInteractions() {
	m.clearedmcp_interactions = true
}

// McpInteractionsCleared reports if the "mcp_interactions" edge to the MCPInteraction entity was cleared.
func (m *AlertSessionMutation) McpInteractionsCleared() bool {
	return m.clearedmcp_interactions
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (m *AlertSessionMutation) RemoveMcpInteractionIDs(ids ...string) {
	if m.removedmcp_interactions == nil {
		m.removedmcp_interactions = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.mcp_interactions, ids[i])
		m.removedmcp_interactions[ids[i]] = struct{}{}
	}
}

// RemovedMcpInteractions returns the removed IDs of the "mcp_interactions" edge to the MCPInteraction entity.
func (m *AlertSessionMutation) RemovedMcpInteractionsIDs() (ids []string) {
	for id := range m.removedmcp_interactions {
		ids = append(ids, id)
	}
	return
}

// McpInteractionsIDs returns the "mcp_interactions" edge IDs in the mutation.
func (m *AlertSessionMutation) McpInteractionsIDs() (ids []string) {
	for id := range m.mcp_interactions {
		ids = append(ids, id)
	}
	return
}

// ResetMcpInteractions resets all changes to the "mcp_interactions" edge.
func (m *AlertSessionMutation) ResetMcpInteractions() {
	m.mcp_interactions = nil
	m.clearedmcp_interactions = false
	m.removedmcp_interactions = nil
}

// Where appends a list predicates to the AlertSessionMutation builder.
func (m *AlertSessionMutation) Where(ps ...predicate.AlertSession) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the AlertSessionMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *AlertSessionMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.AlertSession, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *AlertSessionMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *AlertSessionMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (AlertSession).
func (m *AlertSessionMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *AlertSessionMutation) Fields() []string {
	fields := make([]string, 0, 20)
	if m.alert_id != nil {
		fields = append(fields, alertsession.FieldAlertID)
	}
	if m.alert_type != nil {
		fields = append(fields, alertsession.FieldAlertType)
	}
	if m.alert_data != nil {
		fields = append(fields, alertsession.FieldAlertData)
	}
	if m.alert_fingerprint != nil {
		fields = append(fields, alertsession.FieldAlertFingerprint)
	}
	if m.chain_id != nil {
		fields = append(fields, alertsession.FieldChainID)
	}
	if m.chain_definition != nil {
		fields = append(fields, alertsession.FieldChainDefinition)
	}
	if m.agent_type != nil {
		fields = append(fields, alertsession.FieldAgentType)
	}
	if m.author != nil {
		fields = append(fields, alertsession.FieldAuthor)
	}
	if m.runbook_url != nil {
		fields = append(fields, alertsession.FieldRunbookURL)
	}
	if m.status != nil {
		fields = append(fields, alertsession.FieldStatus)
	}
	if m.created_at_us != nil {
		fields = append(fields, alertsession.FieldCreatedAtUs)
	}
	if m.started_at_us != nil {
		fields = append(fields, alertsession.FieldStartedAtUs)
	}
	if m.last_interaction_at_us != nil {
		fields = append(fields, alertsession.FieldLastInteractionAtUs)
	}
	if m.completed_at_us != nil {
		fields = append(fields, alertsession.FieldCompletedAtUs)
	}
	if m.error_message != nil {
		fields = append(fields, alertsession.FieldErrorMessage)
	}
	if m.final_analysis != nil {
		fields = append(fields, alertsession.FieldFinalAnalysis)
	}
	if m.pause_metadata != nil {
		fields = append(fields, alertsession.FieldPauseMetadata)
	}
	if m.pod_id != nil {
		fields = append(fields, alertsession.FieldPodID)
	}
	if m.cancel_requested != nil {
		fields = append(fields, alertsession.FieldCancelRequested)
	}
	if m.pause_requested != nil {
		fields = append(fields, alertsession.FieldPauseRequested)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *AlertSessionMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case alertsession.FieldAlertID:
		return m.AlertID()
	case alertsession.FieldAlertType:
		return m.AlertType()
	case alertsession.FieldAlertData:
		return m.AlertData()
	case alertsession.FieldAlertFingerprint:
		return m.AlertFingerprint()
	case alertsession.FieldChainID:
		return m.ChainID()
	case alertsession.FieldChainDefinition:
		return m.ChainDefinition()
	case alertsession.FieldAgentType:
		return m.AgentType()
	case alertsession.FieldAuthor:
		return m.Author()
	case alertsession.FieldRunbookURL:
		return m.RunbookURL()
	case alertsession.FieldStatus:
		return m.Status()
	case alertsession.FieldCreatedAtUs:
		return m.CreatedAtUs()
	case alertsession.FieldStartedAtUs:
		return m.StartedAtUs()
	case alertsession.FieldLastInteractionAtUs:
		return m.LastInteractionAtUs()
	case alertsession.FieldCompletedAtUs:
		return m.CompletedAtUs()
	case alertsession.FieldErrorMessage:
		return m.ErrorMessage()
	case alertsession.FieldFinalAnalysis:
		return m.FinalAnalysis()
	case alertsession.FieldPauseMetadata:
		return m.PauseMetadata()
	case alertsession.FieldPodID:
		return m.PodID()
	case alertsession.FieldCancelRequested:
		return m.CancelRequested()
	case alertsession.FieldPauseRequested:
		return m.PauseRequested()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *AlertSessionMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case alertsession.FieldAlertID:
		return m.OldAlertID(ctx)
	case alertsession.FieldAlertType:
		return m.OldAlertType(ctx)
	case alertsession.FieldAlertData:
		return m.OldAlertData(ctx)
	case alertsession.FieldAlertFingerprint:
		return m.OldAlertFingerprint(ctx)
	case alertsession.FieldChainID:
		return m.OldChainID(ctx)
	case alertsession.FieldChainDefinition:
		return m.OldChainDefinition(ctx)
	case alertsession.FieldAgentType:
		return m.OldAgentType(ctx)
	case alertsession.FieldAuthor:
		return m.OldAuthor(ctx)
	case alertsession.FieldRunbookURL:
		return m.OldRunbookURL(ctx)
	case alertsession.FieldStatus:
		return m.OldStatus(ctx)
	case alertsession.FieldCreatedAtUs:
		return m.OldCreatedAtUs(ctx)
	case alertsession.FieldStartedAtUs:
		return m.OldStartedAtUs(ctx)
	case alertsession.FieldLastInteractionAtUs:
		return m.OldLastInteractionAtUs(ctx)
	case alertsession.FieldCompletedAtUs:
		return m.OldCompletedAtUs(ctx)
	case alertsession.FieldErrorMessage:
		return m.OldErrorMessage(ctx)
	case alertsession.FieldFinalAnalysis:
		return m.OldFinalAnalysis(ctx)
	case alertsession.FieldPauseMetadata:
		return m.OldPauseMetadata(ctx)
	case alertsession.FieldPodID:
		return m.OldPodID(ctx)
	case alertsession.FieldCancelRequested:
		return m.OldCancelRequested(ctx)
	case alertsession.FieldPauseRequested:
		return m.OldPauseRequested(ctx)
	}
	return nil, fmt.Errorf("unknown AlertSession field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *AlertSessionMutation) SetField(name string, value ent.Value) error {
	switch name {
	case alertsession.FieldAlertID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAlertID(v)
		return nil
	case alertsession.FieldAlertType:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAlertType(v)
		return nil
	case alertsession.FieldAlertData:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAlertData(v)
		return nil
	case alertsession.FieldAlertFingerprint:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAlertFingerprint(v)
		return nil
	case alertsession.FieldChainID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetChainID(v)
		return nil
	case alertsession.FieldChainDefinition:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetChainDefinition(v)
		return nil
	case alertsession.FieldAgentType:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAgentType(v)
		return nil
	case alertsession.FieldAuthor:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAuthor(v)
		return nil
	case alertsession.FieldRunbookURL:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetRunbookURL(v)
		return nil
	case alertsession.FieldStatus:
		v, ok := value.(alertsession.Status)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStatus(v)
		return nil
	case alertsession.FieldCreatedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCreatedAtUs(v)
		return nil
	case alertsession.FieldStartedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStartedAtUs(v)
		return nil
	case alertsession.FieldLastInteractionAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetLastInteractionAtUs(v)
		return nil
	case alertsession.FieldCompletedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCompletedAtUs(v)
		return nil
	case alertsession.FieldErrorMessage:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetErrorMessage(v)
		return nil
	case alertsession.FieldFinalAnalysis:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetFinalAnalysis(v)
		return nil
	case alertsession.FieldPauseMetadata:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetPauseMetadata(v)
		return nil
	case alertsession.FieldPodID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetPodID(v)
		return nil
	case alertsession.FieldCancelRequested:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCancelRequested(v)
		return nil
	case alertsession.FieldPauseRequested:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetPauseRequested(v)
		return nil
	}
	return fmt.Errorf("unknown AlertSession field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *AlertSessionMutation) AddedFields() []string {
	var fields []string
	if m.addcreated_at_us != nil {
		fields = append(fields, alertsession.FieldCreatedAtUs)
	}
	if m.addstarted_at_us != nil {
		fields = append(fields, alertsession.FieldStartedAtUs)
	}
	if m.addlast_interaction_at_us != nil {
		fields = append(fields, alertsession.FieldLastInteractionAtUs)
	}
	if m.addcompleted_at_us != nil {
		fields = append(fields, alertsession.FieldCompletedAtUs)
	}
	return fields
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *AlertSessionMutation) AddedField(name string) (ent.Value, bool) {
	switch name {
	case alertsession.FieldCreatedAtUs:
		return m.AddedCreatedAtUs()
	case alertsession.FieldStartedAtUs:
		return m.AddedStartedAtUs()
	case alertsession.FieldLastInteractionAtUs:
		return m.AddedLastInteractionAtUs()
	case alertsession.FieldCompletedAtUs:
		return m.AddedCompletedAtUs()
	}
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *AlertSessionMutation) AddField(name string, value ent.Value) error {
	switch name {
	case alertsession.FieldCreatedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddCreatedAtUs(v)
		return nil
	case alertsession.FieldStartedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddStartedAtUs(v)
		return nil
	case alertsession.FieldLastInteractionAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddLastInteractionAtUs(v)
		return nil
	case alertsession.FieldCompletedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddCompletedAtUs(v)
		return nil
	}
	return fmt.Errorf("unknown AlertSession numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *AlertSessionMutation) ClearedFields() []string {
	var fields []string
	if m.FieldCleared(alertsession.FieldAgentType) {
		fields = append(fields, alertsession.FieldAgentType)
	}
	if m.FieldCleared(alertsession.FieldAuthor) {
		fields = append(fields, alertsession.FieldAuthor)
	}
	if m.FieldCleared(alertsession.FieldRunbookURL) {
		fields = append(fields, alertsession.FieldRunbookURL)
	}
	if m.FieldCleared(alertsession.FieldStartedAtUs) {
		fields = append(fields, alertsession.FieldStartedAtUs)
	}
	if m.FieldCleared(alertsession.FieldLastInteractionAtUs) {
		fields = append(fields, alertsession.FieldLastInteractionAtUs)
	}
	if m.FieldCleared(alertsession.FieldCompletedAtUs) {
		fields = append(fields, alertsession.FieldCompletedAtUs)
	}
	if m.FieldCleared(alertsession.FieldErrorMessage) {
		fields = append(fields, alertsession.FieldErrorMessage)
	}
	if m.FieldCleared(alertsession.FieldFinalAnalysis) {
		fields = append(fields, alertsession.FieldFinalAnalysis)
	}
	if m.FieldCleared(alertsession.FieldPauseMetadata) {
		fields = append(fields, alertsession.FieldPauseMetadata)
	}
	if m.FieldCleared(alertsession.FieldPodID) {
		fields = append(fields, alertsession.FieldPodID)
	}
	return fields
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *AlertSessionMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *AlertSessionMutation) ClearField(name string) error {
	switch name {
	case alertsession.FieldAgentType:
		m.ClearAgentType()
		return nil
	case alertsession.FieldAuthor:
		m.ClearAuthor()
		return nil
	case alertsession.FieldRunbookURL:
		m.ClearRunbookURL()
		return nil
	case alertsession.FieldStartedAtUs:
		m.ClearStartedAtUs()
		return nil
	case alertsession.FieldLastInteractionAtUs:
		m.ClearLastInteractionAtUs()
		return nil
	case alertsession.FieldCompletedAtUs:
		m.ClearCompletedAtUs()
		return nil
	case alertsession.FieldErrorMessage:
		m.ClearErrorMessage()
		return nil
	case alertsession.FieldFinalAnalysis:
		m.ClearFinalAnalysis()
		return nil
	case alertsession.FieldPauseMetadata:
		m.ClearPauseMetadata()
		return nil
	case alertsession.FieldPodID:
		m.ClearPodID()
		return nil
	}
	return fmt.Errorf("unknown AlertSession nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *AlertSessionMutation) ResetField(name string) error {
	switch name {
	case alertsession.FieldAlertID:
		m.ResetAlertID()
		return nil
	case alertsession.FieldAlertType:
		m.ResetAlertType()
		return nil
	case alertsession.FieldAlertData:
		m.ResetAlertData()
		return nil
	case alertsession.FieldAlertFingerprint:
		m.ResetAlertFingerprint()
		return nil
	case alertsession.FieldChainID:
		m.ResetChainID()
		return nil
	case alertsession.FieldChainDefinition:
		m.ResetChainDefinition()
		return nil
	case alertsession.FieldAgentType:
		m.ResetAgentType()
		return nil
	case alertsession.FieldAuthor:
		m.ResetAuthor()
		return nil
	case alertsession.FieldRunbookURL:
		m.ResetRunbookURL()
		return nil
	case alertsession.FieldStatus:
		m.ResetStatus()
		return nil
	case alertsession.FieldCreatedAtUs:
		m.ResetCreatedAtUs()
		return nil
	case alertsession.FieldStartedAtUs:
		m.ResetStartedAtUs()
		return nil
	case alertsession.FieldLastInteractionAtUs:
		m.ResetLastInteractionAtUs()
		return nil
	case alertsession.FieldCompletedAtUs:
		m.ResetCompletedAtUs()
		return nil
	case alertsession.FieldErrorMessage:
		m.ResetErrorMessage()
		return nil
	case alertsession.FieldFinalAnalysis:
		m.ResetFinalAnalysis()
		return nil
	case alertsession.FieldPauseMetadata:
		m.ResetPauseMetadata()
		return nil
	case alertsession.FieldPodID:
		m.ResetPodID()
		return nil
	case alertsession.FieldCancelRequested:
		m.ResetCancelRequested()
		return nil
	case alertsession.FieldPauseRequested:
		m.ResetPauseRequested()
		return nil
	}
	return fmt.Errorf("unknown AlertSession field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *AlertSessionMutation) AddedEdges() []string {
	edges := make([]string, 0, 3)
	if m.stage_executions != nil {
		edges = append(edges, alertsession.EdgeStageExecutions)
	}
	if m.llm_interactions != nil {
		edges = append(edges, alertsession.EdgeLlmInteractions)
	}
	if m.mcp_interactions != nil {
		edges = append(edges, alertsession.EdgeMcpInteractions)
	}
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *AlertSessionMutation) AddedIDs(name string) []ent.Value {
	switch name {
	case alertsession.EdgeStageExecutions:
		ids := make([]ent.Value, 0, len(m.stage_executions))
		for id := range m.stage_executions {
			ids = append(ids, id)
		}
		return ids
	case alertsession.EdgeLlmInteractions:
		ids := make([]ent.Value, 0, len(m.llm_interactions))
		for id := range m.llm_interactions {
			ids = append(ids, id)
		}
		return ids
	case alertsession.EdgeMcpInteractions:
		ids := make([]ent.Value, 0, len(m.mcp_interactions))
		for id := range m.mcp_interactions {
			ids = append(ids, id)
		}
		return ids
	}
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *AlertSessionMutation) RemovedEdges() []string {
	edges := make([]string, 0, 3)
	if m.removedstage_executions != nil {
		edges = append(edges, alertsession.EdgeStageExecutions)
	}
	if m.removedllm_interactions != nil {
		edges = append(edges, alertsession.EdgeLlmInteractions)
	}
	if m.removedmcp_interactions != nil {
		edges = append(edges, alertsession.EdgeMcpInteractions)
	}
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *AlertSessionMutation) RemovedIDs(name string) []ent.Value {
	switch name {
	case alertsession.EdgeStageExecutions:
		ids := make([]ent.Value, 0, len(m.removedstage_executions))
		for id := range m.removedstage_executions {
			ids = append(ids, id)
		}
		return ids
	case alertsession.EdgeLlmInteractions:
		ids := make([]ent.Value, 0, len(m.removedllm_interactions))
		for id := range m.removedllm_interactions {
			ids = append(ids, id)
		}
		return ids
	case alertsession.EdgeMcpInteractions:
		ids := make([]ent.Value, 0, len(m.removedmcp_interactions))
		for id := range m.removedmcp_interactions {
			ids = append(ids, id)
		}
		return ids
	}
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *AlertSessionMutation) ClearedEdges() []string {
	edges := make([]string, 0, 3)
	if m.clearedstage_executions {
		edges = append(edges, alertsession.EdgeStageExecutions)
	}
	if m.clearedllm_interactions {
		edges = append(edges, alertsession.EdgeLlmInteractions)
	}
	if m.clearedmcp_interactions {
		edges = append(edges, alertsession.EdgeMcpInteractions)
	}
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *AlertSessionMutation) EdgeCleared(name string) bool {
	switch name {
	case alertsession.EdgeStageExecutions:
		return m.clearedstage_executions
	case alertsession.EdgeLlmInteractions:
		return m.clearedllm_interactions
	case alertsession.EdgeMcpInteractions:
		return m.clearedmcp_interactions
	}
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *AlertSessionMutation) ClearEdge(name string) error {
	switch name {
	}
	return fmt.Errorf("unknown AlertSession unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *AlertSessionMutation) ResetEdge(name string) error {
	switch name {
	case alertsession.EdgeStageExecutions:
		m.ResetStageExecutions()
		return nil
	case alertsession.EdgeLlmInteractions:
		m.ResetLlmInteractions()
		return nil
	case alertsession.EdgeMcpInteractions:
		m.ResetMcpInteractions()
		return nil
	}
	return fmt.Errorf("unknown AlertSession edge %s", name)
}

// EventMutation represents an operation that mutates the Event nodes in the graph.
type EventMutation struct {
	config
	op            Op
	typ           string
	id            *int64
	channel       *string
	payload       *map[string]interface{}
	created_at    *time.Time
	clearedFields map[string]struct{}
	done          bool
	oldValue      func(context.Context) (*Event, error)
	predicates    []predicate.Event
}

var _ ent.Mutation = (*EventMutation)(nil)

// eventOption allows management of the mutation configuration using functional options.
type eventOption func(*EventMutation)

// newEventMutation creates new mutation for the Event entity.
func newEventMutation(c config, op Op, opts ...eventOption) *EventMutation {
	m := &EventMutation{
		config:        c,
		op:            op,
		typ:           TypeEvent,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withEventID sets the ID field of the mutation.
func withEventID(id int64) eventOption {
	return func(m *EventMutation) {
		var (
			err   error
			once  sync.Once
			value *Event
		)
		m.oldValue = func(ctx context.Context) (*Event, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().Event.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withEvent sets the old Event of the mutation.
func withEvent(node *Event) eventOption {
	return func(m *EventMutation) {
		m.oldValue = func(context.Context) (*Event, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m EventMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m EventMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of Event entities.
func (m *EventMutation) SetID(id int64) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *EventMutation) ID() (id int64, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *EventMutation) IDs(ctx context.Context) ([]int64, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []int64{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().Event.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetChannel sets the "channel" field.
func (m *EventMutation) SetChannel(s string) {
	m.channel = &s
}

// Channel returns the value of the "channel" field in the mutation.
func (m *EventMutation) Channel() (r string, exists bool) {
	v := m.channel
	if v == nil {
		return
	}
	return *v, true
}

// OldChannel returns the old "channel" field's value of the Event entity.
// If the Event object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *EventMutation) OldChannel(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldChannel is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldChannel requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldChannel: %w", err)
	}
	return oldValue.Channel, nil
}

// ResetChannel resets all changes to the "channel" field.
func (m *EventMutation) ResetChannel() {
	m.channel = nil
}

// SetPayload sets the "payload" field.
func (m *EventMutation) SetPayload(value map[string]interface{}) {
	m.payload = &value
}

// Payload returns the value of the "payload" field in the mutation.
func (m *EventMutation) Payload() (r map[string]interface{}, exists bool) {
	v := m.payload
	if v == nil {
		return
	}
	return *v, true
}

// OldPayload returns the old "payload" field's value of the Event entity.
// If the Event object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *EventMutation) OldPayload(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldPayload is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldPayload requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldPayload: %w", err)
	}
	return oldValue.Payload, nil
}

// ResetPayload resets all changes to the "payload" field.
func (m *EventMutation) ResetPayload() {
	m.payload = nil
}

// SetCreatedAt sets the "created_at" field.
func (m *EventMutation) SetCreatedAt(t time.Time) {
	m.created_at = &t
}

// CreatedAt returns the value of the "created_at" field in the mutation.
func (m *EventMutation) CreatedAt() (r time.Time, exists bool) {
	v := m.created_at
	if v == nil {
		return
	}
	return *v, true
}

// OldCreatedAt returns the old "created_at" field's value of the Event entity.
// If the Event object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *EventMutation) OldCreatedAt(ctx context.Context) (v time.Time, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCreatedAt is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCreatedAt requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCreatedAt: %w", err)
	}
	return oldValue.CreatedAt, nil
}

// ResetCreatedAt resets all changes to the "created_at" field.
func (m *EventMutation) ResetCreatedAt() {
	m.created_at = nil
}

// Where appends a list predicates to the EventMutation builder.
func (m *EventMutation) Where(ps ...predicate.Event) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the EventMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *EventMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.Event, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *EventMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *EventMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (Event).
func (m *EventMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *EventMutation) Fields() []string {
	fields := make([]string, 0, 3)
	if m.channel != nil {
		fields = append(fields, event.FieldChannel)
	}
	if m.payload != nil {
		fields = append(fields, event.FieldPayload)
	}
	if m.created_at != nil {
		fields = append(fields, event.FieldCreatedAt)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *EventMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case event.FieldChannel:
		return m.Channel()
	case event.FieldPayload:
		return m.Payload()
	case event.FieldCreatedAt:
		return m.CreatedAt()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *EventMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case event.FieldChannel:
		return m.OldChannel(ctx)
	case event.FieldPayload:
		return m.OldPayload(ctx)
	case event.FieldCreatedAt:
		return m.OldCreatedAt(ctx)
	}
	return nil, fmt.Errorf("unknown Event field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *EventMutation) SetField(name string, value ent.Value) error {
	switch name {
	case event.FieldChannel:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetChannel(v)
		return nil
	case event.FieldPayload:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetPayload(v)
		return nil
	case event.FieldCreatedAt:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCreatedAt(v)
		return nil
	}
	return fmt.Errorf("unknown Event field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *EventMutation) AddedFields() []string {
	return nil
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *EventMutation) AddedField(name string) (ent.Value, bool) {
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *EventMutation) AddField(name string, value ent.Value) error {
	switch name {
	}
	return fmt.Errorf("unknown Event numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *EventMutation) ClearedFields() []string {
	return nil
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *EventMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *EventMutation) ClearField(name string) error {
	return fmt.Errorf("unknown Event nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *EventMutation) ResetField(name string) error {
	switch name {
	case event.FieldChannel:
		m.ResetChannel()
		return nil
	case event.FieldPayload:
		m.ResetPayload()
		return nil
	case event.FieldCreatedAt:
		m.ResetCreatedAt()
		return nil
	}
	return fmt.Errorf("unknown Event field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *EventMutation) AddedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *EventMutation) AddedIDs(name string) []ent.Value {
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *EventMutation) RemovedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *EventMutation) RemovedIDs(name string) []ent.Value {
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *EventMutation) ClearedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *EventMutation) EdgeCleared(name string) bool {
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *EventMutation) ClearEdge(name string) error {
	return fmt.Errorf("unknown Event unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *EventMutation) ResetEdge(name string) error {
	return fmt.Errorf("unknown Event edge %s", name)
}

// LLMInteractionMutation represents an operation that mutates the LLMInteraction nodes in the graph.
type LLMInteractionMutation struct {
	config
	op                     Op
	typ                    string
	id                     *string
	timestamp_us           *int64
	addtimestamp_us        *int64
	duration_ms            *int64
	addduration_ms         *int64
	success                *bool
	interaction_type       *string
	provider               *string
	model_name             *string
	request                *map[string]interface{}
	response               *map[string]interface{}
	tool_calls             *[]interface{}
	appendtool_calls       []interface{}
	input_tokens           *int
	addinput_tokens        *int
	output_tokens          *int
	addoutput_tokens       *int
	total_tokens           *int
	addtotal_tokens        *int
	step_description       *string
	error_message          *string
	clearedFields          map[string]struct{}
	session                *string
	clearedsession         bool
	stage_execution        *string
	clearedstage_execution bool
	done                   bool
	oldValue               func(context.Context) (*LLMInteraction, error)
	predicates             []predicate.LLMInteraction
}

var _ ent.Mutation = (*LLMInteractionMutation)(nil)

// llminteractionOption allows management of the mutation configuration using functional options.
type llminteractionOption func(*LLMInteractionMutation)

// newLLMInteractionMutation creates new mutation for the LLMInteraction entity.
func newLLMInteractionMutation(c config, op Op, opts ...llminteractionOption) *LLMInteractionMutation {
	m := &LLMInteractionMutation{
		config:        c,
		op:            op,
		typ:           TypeLLMInteraction,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withLLMInteractionID sets the ID field of the mutation.
func withLLMInteractionID(id string) llminteractionOption {
	return func(m *LLMInteractionMutation) {
		var (
			err   error
			once  sync.Once
			value *LLMInteraction
		)
		m.oldValue = func(ctx context.Context) (*LLMInteraction, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().LLMInteraction.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withLLMInteraction sets the old LLMInteraction of the mutation.
func withLLMInteraction(node *LLMInteraction) llminteractionOption {
	return func(m *LLMInteractionMutation) {
		m.oldValue = func(context.Context) (*LLMInteraction, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m LLMInteractionMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m LLMInteractionMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of LLMInteraction entities.
func (m *LLMInteractionMutation) SetID(id string) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *LLMInteractionMutation) ID() (id string, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *LLMInteractionMutation) IDs(ctx context.Context) ([]string, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []string{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().LLMInteraction.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetSessionID sets the "session_id" field.
func (m *LLMInteractionMutation) SetSessionID(s string) {
	m.session = &s
}

// SessionID returns the value of the "session_id" field in the mutation.
func (m *LLMInteractionMutation) SessionID() (r string, exists bool) {
	v := m.session
	if v == nil {
		return
	}
	return *v, true
}

// OldSessionID returns the old "session_id" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldSessionID(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSessionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSessionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSessionID: %w", err)
	}
	return oldValue.SessionID, nil
}

// ResetSessionID resets all changes to the "session_id" field.
func (m *LLMInteractionMutation) ResetSessionID() {
	m.session = nil
}

// SetStageExecutionID sets the "stage_execution_id" field.
func (m *LLMInteractionMutation) SetStageExecutionID(s string) {
	m.stage_execution = &s
}

// StageExecutionID returns the value of the "stage_execution_id" field in the mutation.
func (m *LLMInteractionMutation) StageExecutionID() (r string, exists bool) {
	v := m.stage_execution
	if v == nil {
		return
	}
	return *v, true
}

// OldStageExecutionID returns the old "stage_execution_id" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldStageExecutionID(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStageExecutionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStageExecutionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStageExecutionID: %w", err)
	}
	return oldValue.StageExecutionID, nil
}

// ClearStageExecutionID clears the value of the "stage_execution_id" field.
func (m *LLMInteractionMutation) ClearStageExecutionID() {
	m.stage_execution = nil
	m.clearedFields[llminteraction.FieldStageExecutionID] = struct{}{}
}

// StageExecutionIDCleared returns if the "stage_execution_id" field was cleared in this mutation.
func (m *LLMInteractionMutation) StageExecutionIDCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldStageExecutionID]
	return ok
}

// ResetStageExecutionID resets all changes to the "stage_execution_id" field.
func (m *LLMInteractionMutation) ResetStageExecutionID() {
	m.stage_execution = nil
	delete(m.clearedFields, llminteraction.FieldStageExecutionID)
}

// SetTimestampUs sets the "timestamp_us" field.
func (m *LLMInteractionMutation) SetTimestampUs(i int64) {
	m.timestamp_us = &i
	m.addtimestamp_us = nil
}

// TimestampUs returns the value of the "timestamp_us" field in the mutation.
func (m *LLMInteractionMutation) TimestampUs() (r int64, exists bool) {
	v := m.timestamp_us
	if v == nil {
		return
	}
	return *v, true
}

// OldTimestampUs returns the old "timestamp_us" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldTimestampUs(ctx context.Context) (v int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldTimestampUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldTimestampUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldTimestampUs: %w", err)
	}
	return oldValue.TimestampUs, nil
}

// AddTimestampUs adds i to the "timestamp_us" field.
func (m *LLMInteractionMutation) AddTimestampUs(i int64) {
	if m.addtimestamp_us != nil {
		*m.addtimestamp_us += i
	} else {
		m.addtimestamp_us = &i
	}
}

// AddedTimestampUs returns the value that was added to the "timestamp_us" field in this mutation.
func (m *LLMInteractionMutation) AddedTimestampUs() (r int64, exists bool) {
	v := m.addtimestamp_us
	if v == nil {
		return
	}
	return *v, true
}

// ResetTimestampUs resets all changes to the "timestamp_us" field.
func (m *LLMInteractionMutation) ResetTimestampUs() {
	m.timestamp_us = nil
	m.addtimestamp_us = nil
}

// SetDurationMs sets the "duration_ms" field.
func (m *LLMInteractionMutation) SetDurationMs(i int64) {
	m.duration_ms = &i
	m.addduration_ms = nil
}

// DurationMs returns the value of the "duration_ms" field in the mutation.
func (m *LLMInteractionMutation) DurationMs() (r int64, exists bool) {
	v := m.duration_ms
	if v == nil {
		return
	}
	return *v, true
}

// OldDurationMs returns the old "duration_ms" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldDurationMs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldDurationMs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldDurationMs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldDurationMs: %w", err)
	}
	return oldValue.DurationMs, nil
}

// AddDurationMs adds i to the "duration_ms" field.
func (m *LLMInteractionMutation) AddDurationMs(i int64) {
	if m.addduration_ms != nil {
		*m.addduration_ms += i
	} else {
		m.addduration_ms = &i
	}
}

// AddedDurationMs returns the value that was added to the "duration_ms" field in this mutation.
func (m *LLMInteractionMutation) AddedDurationMs() (r int64, exists bool) {
	v := m.addduration_ms
	if v == nil {
		return
	}
	return *v, true
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (m *LLMInteractionMutation) ClearDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	m.clearedFields[llminteraction.FieldDurationMs] = struct{}{}
}

// DurationMsCleared returns if the "duration_ms" field was cleared in this mutation.
func (m *LLMInteractionMutation) DurationMsCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldDurationMs]
	return ok
}

// ResetDurationMs resets all changes to the "duration_ms" field.
func (m *LLMInteractionMutation) ResetDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	delete(m.clearedFields, llminteraction.FieldDurationMs)
}

// SetSuccess sets the "success" field.
func (m *LLMInteractionMutation) SetSuccess(b bool) {
	m.success = &b
}

// Success returns the value of the "success" field in the mutation.
func (m *LLMInteractionMutation) Success() (r bool, exists bool) {
	v := m.success
	if v == nil {
		return
	}
	return *v, true
}

// OldSuccess returns the old "success" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldSuccess(ctx context.Context) (v bool, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSuccess is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSuccess requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSuccess: %w", err)
	}
	return oldValue.Success, nil
}

// ResetSuccess resets all changes to the "success" field.
func (m *LLMInteractionMutation) ResetSuccess() {
	m.success = nil
}

// SetInteractionType sets the "interaction_type" field.
func (m *LLMInteractionMutation) SetInteractionType(s string) {
	m.interaction_type = &s
}

// InteractionType returns the value of the "interaction_type" field in the mutation.
func (m *LLMInteractionMutation) InteractionType() (r string, exists bool) {
	v := m.interaction_type
	if v == nil {
		return
	}
	return *v, true
}

// OldInteractionType returns the old "interaction_type" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldInteractionType(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldInteractionType is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldInteractionType requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldInteractionType: %w", err)
	}
	return oldValue.InteractionType, nil
}

// ResetInteractionType resets all changes to the "interaction_type" field.
func (m *LLMInteractionMutation) ResetInteractionType() {
	m.interaction_type = nil
}

// SetProvider sets the "provider" field.
func (m *LLMInteractionMutation) SetProvider(s string) {
	m.provider = &s
}

// Provider returns the value of the "provider" field in the mutation.
func (m *LLMInteractionMutation) Provider() (r string, exists bool) {
	v := m.provider
	if v == nil {
		return
	}
	return *v, true
}

// OldProvider returns the old "provider" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldProvider(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldProvider is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldProvider requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldProvider: %w", err)
	}
	return oldValue.Provider, nil
}

// ResetProvider resets all changes to the "provider" field.
func (m *LLMInteractionMutation) ResetProvider() {
	m.provider = nil
}

// SetModelName sets the "model_name" field.
func (m *LLMInteractionMutation) SetModelName(s string) {
	m.model_name = &s
}

// ModelName returns the value of the "model_name" field in the mutation.
func (m *LLMInteractionMutation) ModelName() (r string, exists bool) {
	v := m.model_name
	if v == nil {
		return
	}
	return *v, true
}

// OldModelName returns the old "model_name" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldModelName(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldModelName is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldModelName requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldModelName: %w", err)
	}
	return oldValue.ModelName, nil
}

// ResetModelName resets all changes to the "model_name" field.
func (m *LLMInteractionMutation) ResetModelName() {
	m.model_name = nil
}

// SetRequest sets the "request" field.
func (m *LLMInteractionMutation) SetRequest(value map[string]interface{}) {
	m.request = &value
}

// Request returns the value of the "request" field in the mutation.
func (m *LLMInteractionMutation) Request() (r map[string]interface{}, exists bool) {
	v := m.request
	if v == nil {
		return
	}
	return *v, true
}

// OldRequest returns the old "request" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldRequest(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldRequest is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldRequest requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldRequest: %w", err)
	}
	return oldValue.Request, nil
}

// ResetRequest resets all changes to the "request" field.
func (m *LLMInteractionMutation) ResetRequest() {
	m.request = nil
}

// SetResponse sets the "response" field.
func (m *LLMInteractionMutation) SetResponse(value map[string]interface{}) {
	m.response = &value
}

// Response returns the value of the "response" field in the mutation.
func (m *LLMInteractionMutation) Response() (r map[string]interface{}, exists bool) {
	v := m.response
	if v == nil {
		return
	}
	return *v, true
}

// OldResponse returns the old "response" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldResponse(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldResponse is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldResponse requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldResponse: %w", err)
	}
	return oldValue.Response, nil
}

// ClearResponse clears the value of the "response" field.
func (m *LLMInteractionMutation) ClearResponse() {
	m.response = nil
	m.clearedFields[llminteraction.FieldResponse] = struct{}{}
}

// ResponseCleared returns if the "response" field was cleared in this mutation.
func (m *LLMInteractionMutation) ResponseCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldResponse]
	return ok
}

// ResetResponse resets all changes to the "response" field.
func (m *LLMInteractionMutation) ResetResponse() {
	m.response = nil
	delete(m.clearedFields, llminteraction.FieldResponse)
}

// SetToolCalls sets the "tool_calls" field.
func (m *LLMInteractionMutation) SetToolCalls(i []interface{}) {
	m.tool_calls = &i
	m.appendtool_calls = nil
}

// ToolCalls returns the value of the "tool_calls" field in the mutation.
func (m *LLMInteractionMutation) ToolCalls() (r []interface{}, exists bool) {
	v := m.tool_calls
	if v == nil {
		return
	}
	return *v, true
}

// OldToolCalls returns the old "tool_calls" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldToolCalls(ctx context.Context) (v []interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldToolCalls is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldToolCalls requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldToolCalls: %w", err)
	}
	return oldValue.ToolCalls, nil
}

// AppendToolCalls adds i to the "tool_calls" field.
func (m *LLMInteractionMutation) AppendToolCalls(i []interface{}) {
	m.appendtool_calls = append(m.appendtool_calls, i...)
}

// AppendedToolCalls returns the list of values that were appended to the "tool_calls" field in this mutation.
func (m *LLMInteractionMutation) AppendedToolCalls() ([]interface{}, bool) {
	if len(m.appendtool_calls) == 0 {
		return nil, false
	}
	return m.appendtool_calls, true
}

// ClearToolCalls clears the value of the "tool_calls" field.
func (m *LLMInteractionMutation) ClearToolCalls() {
	m.tool_calls = nil
	m.appendtool_calls = nil
	m.clearedFields[llminteraction.FieldToolCalls] = struct{}{}
}

// ToolCallsCleared returns if the "tool_calls" field was cleared in this mutation.
func (m *LLMInteractionMutation) ToolCallsCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldToolCalls]
	return ok
}

// ResetToolCalls resets all changes to the "tool_calls" field.
func (m *LLMInteractionMutation) ResetToolCalls() {
	m.tool_calls = nil
	m.appendtool_calls = nil
	delete(m.clearedFields, llminteraction.FieldToolCalls)
}

// SetInputTokens sets the "input_tokens" field.
func (m *LLMInteractionMutation) SetInputTokens(i int) {
	m.input_tokens = &i
	m.addinput_tokens = nil
}

// InputTokens returns the value of the "input_tokens" field in the mutation.
func (m *LLMInteractionMutation) InputTokens() (r int, exists bool) {
	v := m.input_tokens
	if v == nil {
		return
	}
	return *v, true
}

// OldInputTokens returns the old "input_tokens" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldInputTokens(ctx context.Context) (v *int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldInputTokens is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldInputTokens requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldInputTokens: %w", err)
	}
	return oldValue.InputTokens, nil
}

// AddInputTokens adds i to the "input_tokens" field.
func (m *LLMInteractionMutation) AddInputTokens(i int) {
	if m.addinput_tokens != nil {
		*m.addinput_tokens += i
	} else {
		m.addinput_tokens = &i
	}
}

// AddedInputTokens returns the value that was added to the "input_tokens" field in this mutation.
func (m *LLMInteractionMutation) AddedInputTokens() (r int, exists bool) {
	v := m.addinput_tokens
	if v == nil {
		return
	}
	return *v, true
}

// ClearInputTokens clears the value of the "input_tokens" field.
func (m *LLMInteractionMutation) ClearInputTokens() {
	m.input_tokens = nil
	m.addinput_tokens = nil
	m.clearedFields[llminteraction.FieldInputTokens] = struct{}{}
}

// InputTokensCleared returns if the "input_tokens" field was cleared in this mutation.
func (m *LLMInteractionMutation) InputTokensCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldInputTokens]
	return ok
}

// ResetInputTokens resets all changes to the "input_tokens" field.
func (m *LLMInteractionMutation) ResetInputTokens() {
	m.input_tokens = nil
	m.addinput_tokens = nil
	delete(m.clearedFields, llminteraction.FieldInputTokens)
}

// SetOutputTokens sets the "output_tokens" field.
func (m *LLMInteractionMutation) SetOutputTokens(i int) {
	m.output_tokens = &i
	m.addoutput_tokens = nil
}

// OutputTokens returns the value of the "output_tokens" field in the mutation.
func (m *LLMInteractionMutation) OutputTokens() (r int, exists bool) {
	v := m.output_tokens
	if v == nil {
		return
	}
	return *v, true
}

// OldOutputTokens returns the old "output_tokens" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldOutputTokens(ctx context.Context) (v *int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldOutputTokens is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldOutputTokens requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldOutputTokens: %w", err)
	}
	return oldValue.OutputTokens, nil
}

// AddOutputTokens adds i to the "output_tokens" field.
func (m *LLMInteractionMutation) AddOutputTokens(i int) {
	if m.addoutput_tokens != nil {
		*m.addoutput_tokens += i
	} else {
		m.addoutput_tokens = &i
	}
}

// AddedOutputTokens returns the value that was added to the "output_tokens" field in this mutation.
func (m *LLMInteractionMutation) AddedOutputTokens() (r int, exists bool) {
	v := m.addoutput_tokens
	if v == nil {
		return
	}
	return *v, true
}

// ClearOutputTokens clears the value of the "output_tokens" field.
func (m *LLMInteractionMutation) ClearOutputTokens() {
	m.output_tokens = nil
	m.addoutput_tokens = nil
	m.clearedFields[llminteraction.FieldOutputTokens] = struct{}{}
}

// OutputTokensCleared returns if the "output_tokens" field was cleared in this mutation.
func (m *LLMInteractionMutation) OutputTokensCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldOutputTokens]
	return ok
}

// ResetOutputTokens resets all changes to the "output_tokens" field.
func (m *LLMInteractionMutation) ResetOutputTokens() {
	m.output_tokens = nil
	m.addoutput_tokens = nil
	delete(m.clearedFields, llminteraction.FieldOutputTokens)
}

// SetTotalTokens sets the "total_tokens" field.
func (m *LLMInteractionMutation) SetTotalTokens(i int) {
	m.total_tokens = &i
	m.addtotal_tokens = nil
}

// TotalTokens returns the value of the "total_tokens" field in the mutation.
func (m *LLMInteractionMutation) TotalTokens() (r int, exists bool) {
	v := m.total_tokens
	if v == nil {
		return
	}
	return *v, true
}

// OldTotalTokens returns the old "total_tokens" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldTotalTokens(ctx context.Context) (v *int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldTotalTokens is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldTotalTokens requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldTotalTokens: %w", err)
	}
	return oldValue.TotalTokens, nil
}

// AddTotalTokens adds i to the "total_tokens" field.
func (m *LLMInteractionMutation) AddTotalTokens(i int) {
	if m.addtotal_tokens != nil {
		*m.addtotal_tokens += i
	} else {
		m.addtotal_tokens = &i
	}
}

// AddedTotalTokens returns the value that was added to the "total_tokens" field in this mutation.
func (m *LLMInteractionMutation) AddedTotalTokens() (r int, exists bool) {
	v := m.addtotal_tokens
	if v == nil {
		return
	}
	return *v, true
}

// ClearTotalTokens clears the value of the "total_tokens" field.
func (m *LLMInteractionMutation) ClearTotalTokens() {
	m.total_tokens = nil
	m.addtotal_tokens = nil
	m.clearedFields[llminteraction.FieldTotalTokens] = struct{}{}
}

// TotalTokensCleared returns if the "total_tokens" field was cleared in this mutation.
func (m *LLMInteractionMutation) TotalTokensCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldTotalTokens]
	return ok
}

// ResetTotalTokens resets all changes to the "total_tokens" field.
func (m *LLMInteractionMutation) ResetTotalTokens() {
	m.total_tokens = nil
	m.addtotal_tokens = nil
	delete(m.clearedFields, llminteraction.FieldTotalTokens)
}

// SetStepDescription sets the "step_description" field.
func (m *LLMInteractionMutation) SetStepDescription(s string) {
	m.step_description = &s
}

// StepDescription returns the value of the "step_description" field in the mutation.
func (m *LLMInteractionMutation) StepDescription() (r string, exists bool) {
	v := m.step_description
	if v == nil {
		return
	}
	return *v, true
}

// OldStepDescription returns the old "step_description" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldStepDescription(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStepDescription is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStepDescription requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStepDescription: %w", err)
	}
	return oldValue.StepDescription, nil
}

// ClearStepDescription clears the value of the "step_description" field.
func (m *LLMInteractionMutation) ClearStepDescription() {
	m.step_description = nil
	m.clearedFields[llminteraction.FieldStepDescription] = struct{}{}
}

// StepDescriptionCleared returns if the "step_description" field was cleared in this mutation.
func (m *LLMInteractionMutation) StepDescriptionCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldStepDescription]
	return ok
}

// ResetStepDescription resets all changes to the "step_description" field.
func (m *LLMInteractionMutation) ResetStepDescription() {
	m.step_description = nil
	delete(m.clearedFields, llminteraction.FieldStepDescription)
}

// SetErrorMessage sets the "error_message" field.
func (m *LLMInteractionMutation) SetErrorMessage(s string) {
	m.error_message = &s
}

// ErrorMessage returns the value of the "error_message" field in the mutation.
func (m *LLMInteractionMutation) ErrorMessage() (r string, exists bool) {
	v := m.error_message
	if v == nil {
		return
	}
	return *v, true
}

// OldErrorMessage returns the old "error_message" field's value of the LLMInteraction entity.
// If the LLMInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *LLMInteractionMutation) OldErrorMessage(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldErrorMessage is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldErrorMessage requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldErrorMessage: %w", err)
	}
	return oldValue.ErrorMessage, nil
}

// ClearErrorMessage clears the value of the "error_message" field.
func (m *LLMInteractionMutation) ClearErrorMessage() {
	m.error_message = nil
	m.clearedFields[llminteraction.FieldErrorMessage] = struct{}{}
}

// ErrorMessageCleared returns if the "error_message" field was cleared in this mutation.
func (m *LLMInteractionMutation) ErrorMessageCleared() bool {
	_, ok := m.clearedFields[llminteraction.FieldErrorMessage]
	return ok
}

// ResetErrorMessage resets all changes to the "error_message" field.
func (m *LLMInteractionMutation) ResetErrorMessage() {
	m.error_message = nil
	delete(m.clearedFields, llminteraction.FieldErrorMessage)
}

// ClearSession clears the "session" edge to the AlertSession entity.
func (m *LLMInteractionMutation) ClearSession() {
	m.clearedsession = true
	m.clearedFields[llminteraction.FieldSessionID] = struct{}{}
}

// SessionCleared reports if the "session" edge to the AlertSession entity was cleared.
func (m *LLMInteractionMutation) SessionCleared() bool {
	return m.clearedsession
}

// SessionIDs returns the "session" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// SessionID instead. It exists only for internal usage by the builders.
func (m *LLMInteractionMutation) SessionIDs() (ids []string) {
	if id := m.session; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetSession resets all changes to the "session" edge.
func (m *LLMInteractionMutation) ResetSession() {
	m.session = nil
	m.clearedsession = false
}

// ClearStageExecution clears the "stage_execution" edge to the StageExecution entity.
func (m *LLMInteractionMutation) ClearStageExecution() {
	m.clearedstage_execution = true
	m.clearedFields[llminteraction.FieldStageExecutionID] = struct{}{}
}

// StageExecutionCleared reports if the "stage_execution" edge to the StageExecution entity was cleared.
func (m *LLMInteractionMutation) StageExecutionCleared() bool {
	return m.StageExecutionIDCleared() || m.clearedstage_execution
}

// StageExecutionIDs returns the "stage_execution" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// StageExecutionID instead. It exists only for internal usage by the builders.
func (m *LLMInteractionMutation) StageExecutionIDs() (ids []string) {
	if id := m.stage_execution; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetStageExecution resets all changes to the "stage_execution" edge.
func (m *LLMInteractionMutation) ResetStageExecution() {
	m.stage_execution = nil
	m.clearedstage_execution = false
}

// Where appends a list predicates to the LLMInteractionMutation builder.
func (m *LLMInteractionMutation) Where(ps ...predicate.LLMInteraction) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the LLMInteractionMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *LLMInteractionMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.LLMInteraction, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *LLMInteractionMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *LLMInteractionMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (LLMInteraction).
func (m *LLMInteractionMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *LLMInteractionMutation) Fields() []string {
	fields := make([]string, 0, 16)
	if m.session != nil {
		fields = append(fields, llminteraction.FieldSessionID)
	}
	if m.stage_execution != nil {
		fields = append(fields, llminteraction.FieldStageExecutionID)
	}
	if m.timestamp_us != nil {
		fields = append(fields, llminteraction.FieldTimestampUs)
	}
	if m.duration_ms != nil {
		fields = append(fields, llminteraction.FieldDurationMs)
	}
	if m.success != nil {
		fields = append(fields, llminteraction.FieldSuccess)
	}
	if m.interaction_type != nil {
		fields = append(fields, llminteraction.FieldInteractionType)
	}
	if m.provider != nil {
		fields = append(fields, llminteraction.FieldProvider)
	}
	if m.model_name != nil {
		fields = append(fields, llminteraction.FieldModelName)
	}
	if m.request != nil {
		fields = append(fields, llminteraction.FieldRequest)
	}
	if m.response != nil {
		fields = append(fields, llminteraction.FieldResponse)
	}
	if m.tool_calls != nil {
		fields = append(fields, llminteraction.FieldToolCalls)
	}
	if m.input_tokens != nil {
		fields = append(fields, llminteraction.FieldInputTokens)
	}
	if m.output_tokens != nil {
		fields = append(fields, llminteraction.FieldOutputTokens)
	}
	if m.total_tokens != nil {
		fields = append(fields, llminteraction.FieldTotalTokens)
	}
	if m.step_description != nil {
		fields = append(fields, llminteraction.FieldStepDescription)
	}
	if m.error_message != nil {
		fields = append(fields, llminteraction.FieldErrorMessage)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *LLMInteractionMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case llminteraction.FieldSessionID:
		return m.SessionID()
	case llminteraction.FieldStageExecutionID:
		return m.StageExecutionID()
	case llminteraction.FieldTimestampUs:
		return m.TimestampUs()
	case llminteraction.FieldDurationMs:
		return m.DurationMs()
	case llminteraction.FieldSuccess:
		return m.Success()
	case llminteraction.FieldInteractionType:
		return m.InteractionType()
	case llminteraction.FieldProvider:
		return m.Provider()
	case llminteraction.FieldModelName:
		return m.ModelName()
	case llminteraction.FieldRequest:
		return m.Request()
	case llminteraction.FieldResponse:
		return m.Response()
	case llminteraction.FieldToolCalls:
		return m.ToolCalls()
	case llminteraction.FieldInputTokens:
		return m.InputTokens()
	case llminteraction.FieldOutputTokens:
		return m.OutputTokens()
	case llminteraction.FieldTotalTokens:
		return m.TotalTokens()
	case llminteraction.FieldStepDescription:
		return m.StepDescription()
	case llminteraction.FieldErrorMessage:
		return m.ErrorMessage()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *LLMInteractionMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case llminteraction.FieldSessionID:
		return m.OldSessionID(ctx)
	case llminteraction.FieldStageExecutionID:
		return m.OldStageExecutionID(ctx)
	case llminteraction.FieldTimestampUs:
		return m.OldTimestampUs(ctx)
	case llminteraction.FieldDurationMs:
		return m.OldDurationMs(ctx)
	case llminteraction.FieldSuccess:
		return m.OldSuccess(ctx)
	case llminteraction.FieldInteractionType:
		return m.OldInteractionType(ctx)
	case llminteraction.FieldProvider:
		return m.OldProvider(ctx)
	case llminteraction.FieldModelName:
		return m.OldModelName(ctx)
	case llminteraction.FieldRequest:
		return m.OldRequest(ctx)
	case llminteraction.FieldResponse:
		return m.OldResponse(ctx)
	case llminteraction.FieldToolCalls:
		return m.OldToolCalls(ctx)
	case llminteraction.FieldInputTokens:
		return m.OldInputTokens(ctx)
	case llminteraction.FieldOutputTokens:
		return m.OldOutputTokens(ctx)
	case llminteraction.FieldTotalTokens:
		return m.OldTotalTokens(ctx)
	case llminteraction.FieldStepDescription:
		return m.OldStepDescription(ctx)
	case llminteraction.FieldErrorMessage:
		return m.OldErrorMessage(ctx)
	}
	return nil, fmt.Errorf("unknown LLMInteraction field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *LLMInteractionMutation) SetField(name string, value ent.Value) error {
	switch name {
	case llminteraction.FieldSessionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSessionID(v)
		return nil
	case llminteraction.FieldStageExecutionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStageExecutionID(v)
		return nil
	case llminteraction.FieldTimestampUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetTimestampUs(v)
		return nil
	case llminteraction.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetDurationMs(v)
		return nil
	case llminteraction.FieldSuccess:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSuccess(v)
		return nil
	case llminteraction.FieldInteractionType:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetInteractionType(v)
		return nil
	case llminteraction.FieldProvider:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetProvider(v)
		return nil
	case llminteraction.FieldModelName:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetModelName(v)
		return nil
	case llminteraction.FieldRequest:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetRequest(v)
		return nil
	case llminteraction.FieldResponse:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetResponse(v)
		return nil
	case llminteraction.FieldToolCalls:
		v, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetToolCalls(v)
		return nil
	case llminteraction.FieldInputTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetInputTokens(v)
		return nil
	case llminteraction.FieldOutputTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetOutputTokens(v)
		return nil
	case llminteraction.FieldTotalTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetTotalTokens(v)
		return nil
	case llminteraction.FieldStepDescription:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStepDescription(v)
		return nil
	case llminteraction.FieldErrorMessage:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetErrorMessage(v)
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *LLMInteractionMutation) AddedFields() []string {
	var fields []string
	if m.addtimestamp_us != nil {
		fields = append(fields, llminteraction.FieldTimestampUs)
	}
	if m.addduration_ms != nil {
		fields = append(fields, llminteraction.FieldDurationMs)
	}
	if m.addinput_tokens != nil {
		fields = append(fields, llminteraction.FieldInputTokens)
	}
	if m.addoutput_tokens != nil {
		fields = append(fields, llminteraction.FieldOutputTokens)
	}
	if m.addtotal_tokens != nil {
		fields = append(fields, llminteraction.FieldTotalTokens)
	}
	return fields
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *LLMInteractionMutation) AddedField(name string) (ent.Value, bool) {
	switch name {
	case llminteraction.FieldTimestampUs:
		return m.AddedTimestampUs()
	case llminteraction.FieldDurationMs:
		return m.AddedDurationMs()
	case llminteraction.FieldInputTokens:
		return m.AddedInputTokens()
	case llminteraction.FieldOutputTokens:
		return m.AddedOutputTokens()
	case llminteraction.FieldTotalTokens:
		return m.AddedTotalTokens()
	}
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *LLMInteractionMutation) AddField(name string, value ent.Value) error {
	switch name {
	case llminteraction.FieldTimestampUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddTimestampUs(v)
		return nil
	case llminteraction.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddDurationMs(v)
		return nil
	case llminteraction.FieldInputTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddInputTokens(v)
		return nil
	case llminteraction.FieldOutputTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddOutputTokens(v)
		return nil
	case llminteraction.FieldTotalTokens:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddTotalTokens(v)
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *LLMInteractionMutation) ClearedFields() []string {
	var fields []string
	if m.FieldCleared(llminteraction.FieldStageExecutionID) {
		fields = append(fields, llminteraction.FieldStageExecutionID)
	}
	if m.FieldCleared(llminteraction.FieldDurationMs) {
		fields = append(fields, llminteraction.FieldDurationMs)
	}
	if m.FieldCleared(llminteraction.FieldResponse) {
		fields = append(fields, llminteraction.FieldResponse)
	}
	if m.FieldCleared(llminteraction.FieldToolCalls) {
		fields = append(fields, llminteraction.FieldToolCalls)
	}
	if m.FieldCleared(llminteraction.FieldInputTokens) {
		fields = append(fields, llminteraction.FieldInputTokens)
	}
	if m.FieldCleared(llminteraction.FieldOutputTokens) {
		fields = append(fields, llminteraction.FieldOutputTokens)
	}
	if m.FieldCleared(llminteraction.FieldTotalTokens) {
		fields = append(fields, llminteraction.FieldTotalTokens)
	}
	if m.FieldCleared(llminteraction.FieldStepDescription) {
		fields = append(fields, llminteraction.FieldStepDescription)
	}
	if m.FieldCleared(llminteraction.FieldErrorMessage) {
		fields = append(fields, llminteraction.FieldErrorMessage)
	}
	return fields
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *LLMInteractionMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *LLMInteractionMutation) ClearField(name string) error {
	switch name {
	case llminteraction.FieldStageExecutionID:
		m.ClearStageExecutionID()
		return nil
	case llminteraction.FieldDurationMs:
		m.ClearDurationMs()
		return nil
	case llminteraction.FieldResponse:
		m.ClearResponse()
		return nil
	case llminteraction.FieldToolCalls:
		m.ClearToolCalls()
		return nil
	case llminteraction.FieldInputTokens:
		m.ClearInputTokens()
		return nil
	case llminteraction.FieldOutputTokens:
		m.ClearOutputTokens()
		return nil
	case llminteraction.FieldTotalTokens:
		m.ClearTotalTokens()
		return nil
	case llminteraction.FieldStepDescription:
		m.ClearStepDescription()
		return nil
	case llminteraction.FieldErrorMessage:
		m.ClearErrorMessage()
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *LLMInteractionMutation) ResetField(name string) error {
	switch name {
	case llminteraction.FieldSessionID:
		m.ResetSessionID()
		return nil
	case llminteraction.FieldStageExecutionID:
		m.ResetStageExecutionID()
		return nil
	case llminteraction.FieldTimestampUs:
		m.ResetTimestampUs()
		return nil
	case llminteraction.FieldDurationMs:
		m.ResetDurationMs()
		return nil
	case llminteraction.FieldSuccess:
		m.ResetSuccess()
		return nil
	case llminteraction.FieldInteractionType:
		m.ResetInteractionType()
		return nil
	case llminteraction.FieldProvider:
		m.ResetProvider()
		return nil
	case llminteraction.FieldModelName:
		m.ResetModelName()
		return nil
	case llminteraction.FieldRequest:
		m.ResetRequest()
		return nil
	case llminteraction.FieldResponse:
		m.ResetResponse()
		return nil
	case llminteraction.FieldToolCalls:
		m.ResetToolCalls()
		return nil
	case llminteraction.FieldInputTokens:
		m.ResetInputTokens()
		return nil
	case llminteraction.FieldOutputTokens:
		m.ResetOutputTokens()
		return nil
	case llminteraction.FieldTotalTokens:
		m.ResetTotalTokens()
		return nil
	case llminteraction.FieldStepDescription:
		m.ResetStepDescription()
		return nil
	case llminteraction.FieldErrorMessage:
		m.ResetErrorMessage()
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *LLMInteractionMutation) AddedEdges() []string {
	edges := make([]string, 0, 2)
	if m.session != nil {
		edges = append(edges, llminteraction.EdgeSession)
	}
	if m.stage_execution != nil {
		edges = append(edges, llminteraction.EdgeStageExecution)
	}
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *LLMInteractionMutation) AddedIDs(name string) []ent.Value {
	switch name {
	case llminteraction.EdgeSession:
		if id := m.session; id != nil {
			return []ent.Value{*id}
		}
	case llminteraction.EdgeStageExecution:
		if id := m.stage_execution; id != nil {
			return []ent.Value{*id}
		}
	}
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *LLMInteractionMutation) RemovedEdges() []string {
	edges := make([]string, 0, 2)
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *LLMInteractionMutation) RemovedIDs(name string) []ent.Value {
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *LLMInteractionMutation) ClearedEdges() []string {
	edges := make([]string, 0, 2)
	if m.clearedsession {
		edges = append(edges, llminteraction.EdgeSession)
	}
	if m.clearedstage_execution {
		edges = append(edges, llminteraction.EdgeStageExecution)
	}
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *LLMInteractionMutation) EdgeCleared(name string) bool {
	switch name {
	case llminteraction.EdgeSession:
		return m.clearedsession
	case llminteraction.EdgeStageExecution:
		return m.clearedstage_execution
	}
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *LLMInteractionMutation) ClearEdge(name string) error {
	switch name {
	case llminteraction.EdgeSession:
		m.ClearSession()
		return nil
	case llminteraction.EdgeStageExecution:
		m.ClearStageExecution()
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *LLMInteractionMutation) ResetEdge(name string) error {
	switch name {
	case llminteraction.EdgeSession:
		m.ResetSession()
		return nil
	case llminteraction.EdgeStageExecution:
		m.ResetStageExecution()
		return nil
	}
	return fmt.Errorf("unknown LLMInteraction edge %s", name)
}

// MCPInteractionMutation represents an operation that mutates the MCPInteraction nodes in the graph.
type MCPInteractionMutation struct {
	config
	op                     Op
	typ                    string
	id                     *string
	timestamp_us           *int64
	addtimestamp_us        *int64
	duration_ms            *int64
	addduration_ms         *int64
	success                *bool
	communication_type     *mcpinteraction.CommunicationType
	server_name            *string
	tool_name              *string
	tool_arguments         *map[string]interface{}
	tool_result            *map[string]interface{}
	available_tools        *[]interface{}
	appendavailable_tools  []interface{}
	error_message          *string
	clearedFields          map[string]struct{}
	session                *string
	clearedsession         bool
	stage_execution        *string
	clearedstage_execution bool
	done                   bool
	oldValue               func(context.Context) (*MCPInteraction, error)
	predicates             []predicate.MCPInteraction
}

var _ ent.Mutation = (*MCPInteractionMutation)(nil)

// mcpinteractionOption allows management of the mutation configuration using functional options.
type mcpinteractionOption func(*MCPInteractionMutation)

// newMCPInteractionMutation creates new mutation for the MCPInteraction entity.
func newMCPInteractionMutation(c config, op Op, opts ...mcpinteractionOption) *MCPInteractionMutation {
	m := &MCPInteractionMutation{
		config:        c,
		op:            op,
		typ:           TypeMCPInteraction,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withMCPInteractionID sets the ID field of the mutation.
func withMCPInteractionID(id string) mcpinteractionOption {
	return func(m *MCPInteractionMutation) {
		var (
			err   error
			once  sync.Once
			value *MCPInteraction
		)
		m.oldValue = func(ctx context.Context) (*MCPInteraction, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().MCPInteraction.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withMCPInteraction sets the old MCPInteraction of the mutation.
func withMCPInteraction(node *MCPInteraction) mcpinteractionOption {
	return func(m *MCPInteractionMutation) {
		m.oldValue = func(context.Context) (*MCPInteraction, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m MCPInteractionMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m MCPInteractionMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of MCPInteraction entities.
func (m *MCPInteractionMutation) SetID(id string) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *MCPInteractionMutation) ID() (id string, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *MCPInteractionMutation) IDs(ctx context.Context) ([]string, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []string{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().MCPInteraction.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetSessionID sets the "session_id" field.
func (m *MCPInteractionMutation) SetSessionID(s string) {
	m.session = &s
}

// SessionID returns the value of the "session_id" field in the mutation.
func (m *MCPInteractionMutation) SessionID() (r string, exists bool) {
	v := m.session
	if v == nil {
		return
	}
	return *v, true
}

// OldSessionID returns the old "session_id" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldSessionID(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSessionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSessionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSessionID: %w", err)
	}
	return oldValue.SessionID, nil
}

// ResetSessionID resets all changes to the "session_id" field.
func (m *MCPInteractionMutation) ResetSessionID() {
	m.session = nil
}

// SetStageExecutionID sets the "stage_execution_id" field.
func (m *MCPInteractionMutation) SetStageExecutionID(s string) {
	m.stage_execution = &s
}

// StageExecutionID returns the value of the "stage_execution_id" field in the mutation.
func (m *MCPInteractionMutation) StageExecutionID() (r string, exists bool) {
	v := m.stage_execution
	if v == nil {
		return
	}
	return *v, true
}

// OldStageExecutionID returns the old "stage_execution_id" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldStageExecutionID(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStageExecutionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStageExecutionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStageExecutionID: %w", err)
	}
	return oldValue.StageExecutionID, nil
}

// ClearStageExecutionID clears the value of the "stage_execution_id" field.
func (m *MCPInteractionMutation) ClearStageExecutionID() {
	m.stage_execution = nil
	m.clearedFields[mcpinteraction.FieldStageExecutionID] = struct{}{}
}

// StageExecutionIDCleared returns if the "stage_execution_id" field was cleared in this mutation.
func (m *MCPInteractionMutation) StageExecutionIDCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldStageExecutionID]
	return ok
}

// ResetStageExecutionID resets all changes to the "stage_execution_id" field.
func (m *MCPInteractionMutation) ResetStageExecutionID() {
	m.stage_execution = nil
	delete(m.clearedFields, mcpinteraction.FieldStageExecutionID)
}

// SetTimestampUs sets the "timestamp_us" field.
func (m *MCPInteractionMutation) SetTimestampUs(i int64) {
	m.timestamp_us = &i
	m.addtimestamp_us = nil
}

// TimestampUs returns the value of the "timestamp_us" field in the mutation.
func (m *MCPInteractionMutation) TimestampUs() (r int64, exists bool) {
	v := m.timestamp_us
	if v == nil {
		return
	}
	return *v, true
}

// OldTimestampUs returns the old "timestamp_us" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldTimestampUs(ctx context.Context) (v int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldTimestampUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldTimestampUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldTimestampUs: %w", err)
	}
	return oldValue.TimestampUs, nil
}

// AddTimestampUs adds i to the "timestamp_us" field.
func (m *MCPInteractionMutation) AddTimestampUs(i int64) {
	if m.addtimestamp_us != nil {
		*m.addtimestamp_us += i
	} else {
		m.addtimestamp_us = &i
	}
}

// AddedTimestampUs returns the value that was added to the "timestamp_us" field in this mutation.
func (m *MCPInteractionMutation) AddedTimestampUs() (r int64, exists bool) {
	v := m.addtimestamp_us
	if v == nil {
		return
	}
	return *v, true
}

// ResetTimestampUs resets all changes to the "timestamp_us" field.
func (m *MCPInteractionMutation) ResetTimestampUs() {
	m.timestamp_us = nil
	m.addtimestamp_us = nil
}

// SetDurationMs sets the "duration_ms" field.
func (m *MCPInteractionMutation) SetDurationMs(i int64) {
	m.duration_ms = &i
	m.addduration_ms = nil
}

// DurationMs returns the value of the "duration_ms" field in the mutation.
func (m *MCPInteractionMutation) DurationMs() (r int64, exists bool) {
	v := m.duration_ms
	if v == nil {
		return
	}
	return *v, true
}

// OldDurationMs returns the old "duration_ms" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldDurationMs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldDurationMs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldDurationMs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldDurationMs: %w", err)
	}
	return oldValue.DurationMs, nil
}

// AddDurationMs adds i to the "duration_ms" field.
func (m *MCPInteractionMutation) AddDurationMs(i int64) {
	if m.addduration_ms != nil {
		*m.addduration_ms += i
	} else {
		m.addduration_ms = &i
	}
}

// AddedDurationMs returns the value that was added to the "duration_ms" field in this mutation.
func (m *MCPInteractionMutation) AddedDurationMs() (r int64, exists bool) {
	v := m.addduration_ms
	if v == nil {
		return
	}
	return *v, true
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (m *MCPInteractionMutation) ClearDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	m.clearedFields[mcpinteraction.FieldDurationMs] = struct{}{}
}

// DurationMsCleared returns if the "duration_ms" field was cleared in this mutation.
func (m *MCPInteractionMutation) DurationMsCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldDurationMs]
	return ok
}

// ResetDurationMs resets all changes to the "duration_ms" field.
func (m *MCPInteractionMutation) ResetDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	delete(m.clearedFields, mcpinteraction.FieldDurationMs)
}

// SetSuccess sets the "success" field.
func (m *MCPInteractionMutation) SetSuccess(b bool) {
	m.success = &b
}

// Success returns the value of the "success" field in the mutation.
func (m *MCPInteractionMutation) Success() (r bool, exists bool) {
	v := m.success
	if v == nil {
		return
	}
	return *v, true
}

// OldSuccess returns the old "success" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldSuccess(ctx context.Context) (v bool, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSuccess is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSuccess requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSuccess: %w", err)
	}
	return oldValue.Success, nil
}

// ResetSuccess resets all changes to the "success" field.
func (m *MCPInteractionMutation) ResetSuccess() {
	m.success = nil
}

// SetCommunicationType sets the "communication_type" field.
func (m *MCPInteractionMutation) SetCommunicationType(mt mcpinteraction.CommunicationType) {
	m.communication_type = &mt
}

// CommunicationType returns the value of the "communication_type" field in the mutation.
func (m *MCPInteractionMutation) CommunicationType() (r mcpinteraction.CommunicationType, exists bool) {
	v := m.communication_type
	if v == nil {
		return
	}
	return *v, true
}

// OldCommunicationType returns the old "communication_type" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldCommunicationType(ctx context.Context) (v mcpinteraction.CommunicationType, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCommunicationType is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCommunicationType requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCommunicationType: %w", err)
	}
	return oldValue.CommunicationType, nil
}

// ResetCommunicationType resets all changes to the "communication_type" field.
func (m *MCPInteractionMutation) ResetCommunicationType() {
	m.communication_type = nil
}

// SetServerName sets the "server_name" field.
func (m *MCPInteractionMutation) SetServerName(s string) {
	m.server_name = &s
}

// ServerName returns the value of the "server_name" field in the mutation.
func (m *MCPInteractionMutation) ServerName() (r string, exists bool) {
	v := m.server_name
	if v == nil {
		return
	}
	return *v, true
}

// OldServerName returns the old "server_name" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldServerName(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldServerName is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldServerName requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldServerName: %w", err)
	}
	return oldValue.ServerName, nil
}

// ResetServerName resets all changes to the "server_name" field.
func (m *MCPInteractionMutation) ResetServerName() {
	m.server_name = nil
}

// SetToolName sets the "tool_name" field.
func (m *MCPInteractionMutation) SetToolName(s string) {
	m.tool_name = &s
}

// ToolName returns the value of the "tool_name" field in the mutation.
func (m *MCPInteractionMutation) ToolName() (r string, exists bool) {
	v := m.tool_name
	if v == nil {
		return
	}
	return *v, true
}

// OldToolName returns the old "tool_name" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldToolName(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldToolName is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldToolName requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldToolName: %w", err)
	}
	return oldValue.ToolName, nil
}

// ClearToolName clears the value of the "tool_name" field.
func (m *MCPInteractionMutation) ClearToolName() {
	m.tool_name = nil
	m.clearedFields[mcpinteraction.FieldToolName] = struct{}{}
}

// ToolNameCleared returns if the "tool_name" field was cleared in this mutation.
func (m *MCPInteractionMutation) ToolNameCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldToolName]
	return ok
}

// ResetToolName resets all changes to the "tool_name" field.
func (m *MCPInteractionMutation) ResetToolName() {
	m.tool_name = nil
	delete(m.clearedFields, mcpinteraction.FieldToolName)
}

// SetToolArguments sets the "tool_arguments" field.
func (m *MCPInteractionMutation) SetToolArguments(value map[string]interface{}) {
	m.tool_arguments = &value
}

// ToolArguments returns the value of the "tool_arguments" field in the mutation.
func (m *MCPInteractionMutation) ToolArguments() (r map[string]interface{}, exists bool) {
	v := m.tool_arguments
	if v == nil {
		return
	}
	return *v, true
}

// OldToolArguments returns the old "tool_arguments" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldToolArguments(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldToolArguments is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldToolArguments requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldToolArguments: %w", err)
	}
	return oldValue.ToolArguments, nil
}

// ClearToolArguments clears the value of the "tool_arguments" field.
func (m *MCPInteractionMutation) ClearToolArguments() {
	m.tool_arguments = nil
	m.clearedFields[mcpinteraction.FieldToolArguments] = struct{}{}
}

// ToolArgumentsCleared returns if the "tool_arguments" field was cleared in this mutation.
func (m *MCPInteractionMutation) ToolArgumentsCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldToolArguments]
	return ok
}

// ResetToolArguments resets all changes to the "tool_arguments" field.
func (m *MCPInteractionMutation) ResetToolArguments() {
	m.tool_arguments = nil
	delete(m.clearedFields, mcpinteraction.FieldToolArguments)
}

// SetToolResult sets the "tool_result" field.
func (m *MCPInteractionMutation) SetToolResult(value map[string]interface{}) {
	m.tool_result = &value
}

// ToolResult returns the value of the "tool_result" field in the mutation.
func (m *MCPInteractionMutation) ToolResult() (r map[string]interface{}, exists bool) {
	v := m.tool_result
	if v == nil {
		return
	}
	return *v, true
}

// OldToolResult returns the old "tool_result" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldToolResult(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldToolResult is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldToolResult requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldToolResult: %w", err)
	}
	return oldValue.ToolResult, nil
}

// ClearToolResult clears the value of the "tool_result" field.
func (m *MCPInteractionMutation) ClearToolResult() {
	m.tool_result = nil
	m.clearedFields[mcpinteraction.FieldToolResult] = struct{}{}
}

// ToolResultCleared returns if the "tool_result" field was cleared in this mutation.
func (m *MCPInteractionMutation) ToolResultCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldToolResult]
	return ok
}

// ResetToolResult resets all changes to the "tool_result" field.
func (m *MCPInteractionMutation) ResetToolResult() {
	m.tool_result = nil
	delete(m.clearedFields, mcpinteraction.FieldToolResult)
}

// SetAvailableTools sets the "available_tools" field.
func (m *MCPInteractionMutation) SetAvailableTools(i []interface{}) {
	m.available_tools = &i
	m.appendavailable_tools = nil
}

// AvailableTools returns the value of the "available_tools" field in the mutation.
func (m *MCPInteractionMutation) AvailableTools() (r []interface{}, exists bool) {
	v := m.available_tools
	if v == nil {
		return
	}
	return *v, true
}

// OldAvailableTools returns the old "available_tools" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldAvailableTools(ctx context.Context) (v []interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAvailableTools is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAvailableTools requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAvailableTools: %w", err)
	}
	return oldValue.AvailableTools, nil
}

// AppendAvailableTools adds i to the "available_tools" field.
func (m *MCPInteractionMutation) AppendAvailableTools(i []interface{}) {
	m.appendavailable_tools = append(m.appendavailable_tools, i...)
}

// AppendedAvailableTools returns the list of values that were appended to the "available_tools" field in this mutation.
func (m *MCPInteractionMutation) AppendedAvailableTools() ([]interface{}, bool) {
	if len(m.appendavailable_tools) == 0 {
		return nil, false
	}
	return m.appendavailable_tools, true
}

// ClearAvailableTools clears the value of the "available_tools" field.
func (m *MCPInteractionMutation) ClearAvailableTools() {
	m.available_tools = nil
	m.appendavailable_tools = nil
	m.clearedFields[mcpinteraction.FieldAvailableTools] = struct{}{}
}

// AvailableToolsCleared returns if the "available_tools" field was cleared in this mutation.
func (m *MCPInteractionMutation) AvailableToolsCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldAvailableTools]
	return ok
}

// ResetAvailableTools resets all changes to the "available_tools" field.
func (m *MCPInteractionMutation) ResetAvailableTools() {
	m.available_tools = nil
	m.appendavailable_tools = nil
	delete(m.clearedFields, mcpinteraction.FieldAvailableTools)
}

// SetErrorMessage sets the "error_message" field.
func (m *MCPInteractionMutation) SetErrorMessage(s string) {
	m.error_message = &s
}

// ErrorMessage returns the value of the "error_message" field in the mutation.
func (m *MCPInteractionMutation) ErrorMessage() (r string, exists bool) {
	v := m.error_message
	if v == nil {
		return
	}
	return *v, true
}

// OldErrorMessage returns the old "error_message" field's value of the MCPInteraction entity.
// If the MCPInteraction object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *MCPInteractionMutation) OldErrorMessage(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldErrorMessage is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldErrorMessage requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldErrorMessage: %w", err)
	}
	return oldValue.ErrorMessage, nil
}

// ClearErrorMessage clears the value of the "error_message" field.
func (m *MCPInteractionMutation) ClearErrorMessage() {
	m.error_message = nil
	m.clearedFields[mcpinteraction.FieldErrorMessage] = struct{}{}
}

// ErrorMessageCleared returns if the "error_message" field was cleared in this mutation.
func (m *MCPInteractionMutation) ErrorMessageCleared() bool {
	_, ok := m.clearedFields[mcpinteraction.FieldErrorMessage]
	return ok
}

// ResetErrorMessage resets all changes to the "error_message" field.
func (m *MCPInteractionMutation) ResetErrorMessage() {
	m.error_message = nil
	delete(m.clearedFields, mcpinteraction.FieldErrorMessage)
}

// ClearSession clears the "session" edge to the AlertSession entity.
func (m *MCPInteractionMutation) ClearSession() {
	m.clearedsession = true
	m.clearedFields[mcpinteraction.FieldSessionID] = struct{}{}
}

// SessionCleared reports if the "session" edge to the AlertSession entity was cleared.
func (m *MCPInteractionMutation) SessionCleared() bool {
	return m.clearedsession
}

// SessionIDs returns the "session" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// SessionID instead. It exists only for internal usage by the builders.
func (m *MCPInteractionMutation) SessionIDs() (ids []string) {
	if id := m.session; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetSession resets all changes to the "session" edge.
func (m *MCPInteractionMutation) ResetSession() {
	m.session = nil
	m.clearedsession = false
}

// ClearStageExecution clears the "stage_execution" edge to the StageExecution entity.
func (m *MCPInteractionMutation) ClearStageExecution() {
	m.clearedstage_execution = true
	m.clearedFields[mcpinteraction.FieldStageExecutionID] = struct{}{}
}

// StageExecutionCleared reports if the "stage_execution" edge to the StageExecution entity was cleared.
func (m *MCPInteractionMutation) StageExecutionCleared() bool {
	return m.StageExecutionIDCleared() || m.clearedstage_execution
}

// StageExecutionIDs returns the "stage_execution" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// StageExecutionID instead. It exists only for internal usage by the builders.
func (m *MCPInteractionMutation) StageExecutionIDs() (ids []string) {
	if id := m.stage_execution; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetStageExecution resets all changes to the "stage_execution" edge.
func (m *MCPInteractionMutation) ResetStageExecution() {
	m.stage_execution = nil
	m.clearedstage_execution = false
}

// Where appends a list predicates to the MCPInteractionMutation builder.
func (m *MCPInteractionMutation) Where(ps ...predicate.MCPInteraction) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the MCPInteractionMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *MCPInteractionMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.MCPInteraction, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *MCPInteractionMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *MCPInteractionMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (MCPInteraction).
func (m *MCPInteractionMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *MCPInteractionMutation) Fields() []string {
	fields := make([]string, 0, 12)
	if m.session != nil {
		fields = append(fields, mcpinteraction.FieldSessionID)
	}
	if m.stage_execution != nil {
		fields = append(fields, mcpinteraction.FieldStageExecutionID)
	}
	if m.timestamp_us != nil {
		fields = append(fields, mcpinteraction.FieldTimestampUs)
	}
	if m.duration_ms != nil {
		fields = append(fields, mcpinteraction.FieldDurationMs)
	}
	if m.success != nil {
		fields = append(fields, mcpinteraction.FieldSuccess)
	}
	if m.communication_type != nil {
		fields = append(fields, mcpinteraction.FieldCommunicationType)
	}
	if m.server_name != nil {
		fields = append(fields, mcpinteraction.FieldServerName)
	}
	if m.tool_name != nil {
		fields = append(fields, mcpinteraction.FieldToolName)
	}
	if m.tool_arguments != nil {
		fields = append(fields, mcpinteraction.FieldToolArguments)
	}
	if m.tool_result != nil {
		fields = append(fields, mcpinteraction.FieldToolResult)
	}
	if m.available_tools != nil {
		fields = append(fields, mcpinteraction.FieldAvailableTools)
	}
	if m.error_message != nil {
		fields = append(fields, mcpinteraction.FieldErrorMessage)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *MCPInteractionMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case mcpinteraction.FieldSessionID:
		return m.SessionID()
	case mcpinteraction.FieldStageExecutionID:
		return m.StageExecutionID()
	case mcpinteraction.FieldTimestampUs:
		return m.TimestampUs()
	case mcpinteraction.FieldDurationMs:
		return m.DurationMs()
	case mcpinteraction.FieldSuccess:
		return m.Success()
	case mcpinteraction.FieldCommunicationType:
		return m.CommunicationType()
	case mcpinteraction.FieldServerName:
		return m.ServerName()
	case mcpinteraction.FieldToolName:
		return m.ToolName()
	case mcpinteraction.FieldToolArguments:
		return m.ToolArguments()
	case mcpinteraction.FieldToolResult:
		return m.ToolResult()
	case mcpinteraction.FieldAvailableTools:
		return m.AvailableTools()
	case mcpinteraction.FieldErrorMessage:
		return m.ErrorMessage()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *MCPInteractionMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case mcpinteraction.FieldSessionID:
		return m.OldSessionID(ctx)
	case mcpinteraction.FieldStageExecutionID:
		return m.OldStageExecutionID(ctx)
	case mcpinteraction.FieldTimestampUs:
		return m.OldTimestampUs(ctx)
	case mcpinteraction.FieldDurationMs:
		return m.OldDurationMs(ctx)
	case mcpinteraction.FieldSuccess:
		return m.OldSuccess(ctx)
	case mcpinteraction.FieldCommunicationType:
		return m.OldCommunicationType(ctx)
	case mcpinteraction.FieldServerName:
		return m.OldServerName(ctx)
	case mcpinteraction.FieldToolName:
		return m.OldToolName(ctx)
	case mcpinteraction.FieldToolArguments:
		return m.OldToolArguments(ctx)
	case mcpinteraction.FieldToolResult:
		return m.OldToolResult(ctx)
	case mcpinteraction.FieldAvailableTools:
		return m.OldAvailableTools(ctx)
	case mcpinteraction.FieldErrorMessage:
		return m.OldErrorMessage(ctx)
	}
	return nil, fmt.Errorf("unknown MCPInteraction field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *MCPInteractionMutation) SetField(name string, value ent.Value) error {
	switch name {
	case mcpinteraction.FieldSessionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSessionID(v)
		return nil
	case mcpinteraction.FieldStageExecutionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStageExecutionID(v)
		return nil
	case mcpinteraction.FieldTimestampUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetTimestampUs(v)
		return nil
	case mcpinteraction.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetDurationMs(v)
		return nil
	case mcpinteraction.FieldSuccess:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSuccess(v)
		return nil
	case mcpinteraction.FieldCommunicationType:
		v, ok := value.(mcpinteraction.CommunicationType)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCommunicationType(v)
		return nil
	case mcpinteraction.FieldServerName:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetServerName(v)
		return nil
	case mcpinteraction.FieldToolName:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetToolName(v)
		return nil
	case mcpinteraction.FieldToolArguments:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetToolArguments(v)
		return nil
	case mcpinteraction.FieldToolResult:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetToolResult(v)
		return nil
	case mcpinteraction.FieldAvailableTools:
		v, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAvailableTools(v)
		return nil
	case mcpinteraction.FieldErrorMessage:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetErrorMessage(v)
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *MCPInteractionMutation) AddedFields() []string {
	var fields []string
	if m.addtimestamp_us != nil {
		fields = append(fields, mcpinteraction.FieldTimestampUs)
	}
	if m.addduration_ms != nil {
		fields = append(fields, mcpinteraction.FieldDurationMs)
	}
	return fields
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *MCPInteractionMutation) AddedField(name string) (ent.Value, bool) {
	switch name {
	case mcpinteraction.FieldTimestampUs:
		return m.AddedTimestampUs()
	case mcpinteraction.FieldDurationMs:
		return m.AddedDurationMs()
	}
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *MCPInteractionMutation) AddField(name string, value ent.Value) error {
	switch name {
	case mcpinteraction.FieldTimestampUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddTimestampUs(v)
		return nil
	case mcpinteraction.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddDurationMs(v)
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *MCPInteractionMutation) ClearedFields() []string {
	var fields []string
	if m.FieldCleared(mcpinteraction.FieldStageExecutionID) {
		fields = append(fields, mcpinteraction.FieldStageExecutionID)
	}
	if m.FieldCleared(mcpinteraction.FieldDurationMs) {
		fields = append(fields, mcpinteraction.FieldDurationMs)
	}
	if m.FieldCleared(mcpinteraction.FieldToolName) {
		fields = append(fields, mcpinteraction.FieldToolName)
	}
	if m.FieldCleared(mcpinteraction.FieldToolArguments) {
		fields = append(fields, mcpinteraction.FieldToolArguments)
	}
	if m.FieldCleared(mcpinteraction.FieldToolResult) {
		fields = append(fields, mcpinteraction.FieldToolResult)
	}
	if m.FieldCleared(mcpinteraction.FieldAvailableTools) {
		fields = append(fields, mcpinteraction.FieldAvailableTools)
	}
	if m.FieldCleared(mcpinteraction.FieldErrorMessage) {
		fields = append(fields, mcpinteraction.FieldErrorMessage)
	}
	return fields
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *MCPInteractionMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *MCPInteractionMutation) ClearField(name string) error {
	switch name {
	case mcpinteraction.FieldStageExecutionID:
		m.ClearStageExecutionID()
		return nil
	case mcpinteraction.FieldDurationMs:
		m.ClearDurationMs()
		return nil
	case mcpinteraction.FieldToolName:
		m.ClearToolName()
		return nil
	case mcpinteraction.FieldToolArguments:
		m.ClearToolArguments()
		return nil
	case mcpinteraction.FieldToolResult:
		m.ClearToolResult()
		return nil
	case mcpinteraction.FieldAvailableTools:
		m.ClearAvailableTools()
		return nil
	case mcpinteraction.FieldErrorMessage:
		m.ClearErrorMessage()
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *MCPInteractionMutation) ResetField(name string) error {
	switch name {
	case mcpinteraction.FieldSessionID:
		m.ResetSessionID()
		return nil
	case mcpinteraction.FieldStageExecutionID:
		m.ResetStageExecutionID()
		return nil
	case mcpinteraction.FieldTimestampUs:
		m.ResetTimestampUs()
		return nil
	case mcpinteraction.FieldDurationMs:
		m.ResetDurationMs()
		return nil
	case mcpinteraction.FieldSuccess:
		m.ResetSuccess()
		return nil
	case mcpinteraction.FieldCommunicationType:
		m.ResetCommunicationType()
		return nil
	case mcpinteraction.FieldServerName:
		m.ResetServerName()
		return nil
	case mcpinteraction.FieldToolName:
		m.ResetToolName()
		return nil
	case mcpinteraction.FieldToolArguments:
		m.ResetToolArguments()
		return nil
	case mcpinteraction.FieldToolResult:
		m.ResetToolResult()
		return nil
	case mcpinteraction.FieldAvailableTools:
		m.ResetAvailableTools()
		return nil
	case mcpinteraction.FieldErrorMessage:
		m.ResetErrorMessage()
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *MCPInteractionMutation) AddedEdges() []string {
	edges := make([]string, 0, 2)
	if m.session != nil {
		edges = append(edges, mcpinteraction.EdgeSession)
	}
	if m.stage_execution != nil {
		edges = append(edges, mcpinteraction.EdgeStageExecution)
	}
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *MCPInteractionMutation) AddedIDs(name string) []ent.Value {
	switch name {
	case mcpinteraction.EdgeSession:
		if id := m.session; id != nil {
			return []ent.Value{*id}
		}
	case mcpinteraction.EdgeStageExecution:
		if id := m.stage_execution; id != nil {
			return []ent.Value{*id}
		}
	}
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *MCPInteractionMutation) RemovedEdges() []string {
	edges := make([]string, 0, 2)
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *MCPInteractionMutation) RemovedIDs(name string) []ent.Value {
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *MCPInteractionMutation) ClearedEdges() []string {
	edges := make([]string, 0, 2)
	if m.clearedsession {
		edges = append(edges, mcpinteraction.EdgeSession)
	}
	if m.clearedstage_execution {
		edges = append(edges, mcpinteraction.EdgeStageExecution)
	}
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *MCPInteractionMutation) EdgeCleared(name string) bool {
	switch name {
	case mcpinteraction.EdgeSession:
		return m.clearedsession
	case mcpinteraction.EdgeStageExecution:
		return m.clearedstage_execution
	}
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *MCPInteractionMutation) ClearEdge(name string) error {
	switch name {
	case mcpinteraction.EdgeSession:
		m.ClearSession()
		return nil
	case mcpinteraction.EdgeStageExecution:
		m.ClearStageExecution()
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *MCPInteractionMutation) ResetEdge(name string) error {
	switch name {
	case mcpinteraction.EdgeSession:
		m.ResetSession()
		return nil
	case mcpinteraction.EdgeStageExecution:
		m.ResetStageExecution()
		return nil
	}
	return fmt.Errorf("unknown MCPInteraction edge %s", name)
}

// StageExecutionMutation represents an operation that mutates the StageExecution nodes in the graph.
type StageExecutionMutation struct {
	config
	op                      Op
	typ                     string
	id                      *string
	stage_index             *int
	addstage_index          *int
	stage_name              *string
	agent                   *string
	status                  *stageexecution.Status
	current_iteration       *int
	addcurrent_iteration    *int
	started_at_us           *int64
	addstarted_at_us        *int64
	completed_at_us         *int64
	addcompleted_at_us      *int64
	duration_ms             *int64
	addduration_ms          *int64
	stage_output            *map[string]interface{}
	error_message           *string
	parallel_type           *stageexecution.ParallelType
	clearedFields           map[string]struct{}
	session                 *string
	clearedsession          bool
	parent                  *string
	clearedparent           bool
	children                map[string]struct{}
	removedchildren         map[string]struct{}
	clearedchildren         bool
	llm_interactions        map[string]struct{}
	removedllm_interactions map[string]struct{}
	clearedllm_interactions bool
	mcp_interactions        map[string]struct{}
	removedmcp_interactions map[string]struct{}
	clearedmcp_interactions bool
	done                    bool
	oldValue                func(context.Context) (*StageExecution, error)
	predicates              []predicate.StageExecution
}

var _ ent.Mutation = (*StageExecutionMutation)(nil)

// stageexecutionOption allows management of the mutation configuration using functional options.
type stageexecutionOption func(*StageExecutionMutation)

// newStageExecutionMutation creates new mutation for the StageExecution entity.
func newStageExecutionMutation(c config, op Op, opts ...stageexecutionOption) *StageExecutionMutation {
	m := &StageExecutionMutation{
		config:        c,
		op:            op,
		typ:           TypeStageExecution,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withStageExecutionID sets the ID field of the mutation.
func withStageExecutionID(id string) stageexecutionOption {
	return func(m *StageExecutionMutation) {
		var (
			err   error
			once  sync.Once
			value *StageExecution
		)
		m.oldValue = func(ctx context.Context) (*StageExecution, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().StageExecution.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withStageExecution sets the old StageExecution of the mutation.
func withStageExecution(node *StageExecution) stageexecutionOption {
	return func(m *StageExecutionMutation) {
		m.oldValue = func(context.Context) (*StageExecution, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m StageExecutionMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m StageExecutionMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of StageExecution entities.
func (m *StageExecutionMutation) SetID(id string) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *StageExecutionMutation) ID() (id string, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *StageExecutionMutation) IDs(ctx context.Context) ([]string, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []string{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().StageExecution.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetSessionID sets the "session_id" field.
func (m *StageExecutionMutation) SetSessionID(s string) {
	m.session = &s
}

// SessionID returns the value of the "session_id" field in the mutation.
func (m *StageExecutionMutation) SessionID() (r string, exists bool) {
	v := m.session
	if v == nil {
		return
	}
	return *v, true
}

// OldSessionID returns the old "session_id" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldSessionID(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSessionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSessionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSessionID: %w", err)
	}
	return oldValue.SessionID, nil
}

// ResetSessionID resets all changes to the "session_id" field.
func (m *StageExecutionMutation) ResetSessionID() {
	m.session = nil
}

// SetStageIndex sets the "stage_index" field.
func (m *StageExecutionMutation) SetStageIndex(i int) {
	m.stage_index = &i
	m.addstage_index = nil
}

// StageIndex returns the value of the "stage_index" field in the mutation.
func (m *StageExecutionMutation) StageIndex() (r int, exists bool) {
	v := m.stage_index
	if v == nil {
		return
	}
	return *v, true
}

// OldStageIndex returns the old "stage_index" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldStageIndex(ctx context.Context) (v int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStageIndex is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStageIndex requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStageIndex: %w", err)
	}
	return oldValue.StageIndex, nil
}

// AddStageIndex adds i to the "stage_index" field.
func (m *StageExecutionMutation) AddStageIndex(i int) {
	if m.addstage_index != nil {
		*m.addstage_index += i
	} else {
		m.addstage_index = &i
	}
}

// AddedStageIndex returns the value that was added to the "stage_index" field in this mutation.
func (m *StageExecutionMutation) AddedStageIndex() (r int, exists bool) {
	v := m.addstage_index
	if v == nil {
		return
	}
	return *v, true
}

// ResetStageIndex resets all changes to the "stage_index" field.
func (m *StageExecutionMutation) ResetStageIndex() {
	m.stage_index = nil
	m.addstage_index = nil
}

// SetStageName sets the "stage_name" field.
func (m *StageExecutionMutation) SetStageName(s string) {
	m.stage_name = &s
}

// StageName returns the value of the "stage_name" field in the mutation.
func (m *StageExecutionMutation) StageName() (r string, exists bool) {
	v := m.stage_name
	if v == nil {
		return
	}
	return *v, true
}

// OldStageName returns the old "stage_name" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldStageName(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStageName is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStageName requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStageName: %w", err)
	}
	return oldValue.StageName, nil
}

// ResetStageName resets all changes to the "stage_name" field.
func (m *StageExecutionMutation) ResetStageName() {
	m.stage_name = nil
}

// SetAgent sets the "agent" field.
func (m *StageExecutionMutation) SetAgent(s string) {
	m.agent = &s
}

// Agent returns the value of the "agent" field in the mutation.
func (m *StageExecutionMutation) Agent() (r string, exists bool) {
	v := m.agent
	if v == nil {
		return
	}
	return *v, true
}

// OldAgent returns the old "agent" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldAgent(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAgent is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAgent requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAgent: %w", err)
	}
	return oldValue.Agent, nil
}

// ResetAgent resets all changes to the "agent" field.
func (m *StageExecutionMutation) ResetAgent() {
	m.agent = nil
}

// SetStatus sets the "status" field.
func (m *StageExecutionMutation) SetStatus(s stageexecution.Status) {
	m.status = &s
}

// Status returns the value of the "status" field in the mutation.
func (m *StageExecutionMutation) Status() (r stageexecution.Status, exists bool) {
	v := m.status
	if v == nil {
		return
	}
	return *v, true
}

// OldStatus returns the old "status" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldStatus(ctx context.Context) (v stageexecution.Status, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStatus is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStatus requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStatus: %w", err)
	}
	return oldValue.Status, nil
}

// ResetStatus resets all changes to the "status" field.
func (m *StageExecutionMutation) ResetStatus() {
	m.status = nil
}

// SetCurrentIteration sets the "current_iteration" field.
func (m *StageExecutionMutation) SetCurrentIteration(i int) {
	m.current_iteration = &i
	m.addcurrent_iteration = nil
}

// CurrentIteration returns the value of the "current_iteration" field in the mutation.
func (m *StageExecutionMutation) CurrentIteration() (r int, exists bool) {
	v := m.current_iteration
	if v == nil {
		return
	}
	return *v, true
}

// OldCurrentIteration returns the old "current_iteration" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldCurrentIteration(ctx context.Context) (v int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCurrentIteration is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCurrentIteration requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCurrentIteration: %w", err)
	}
	return oldValue.CurrentIteration, nil
}

// AddCurrentIteration adds i to the "current_iteration" field.
func (m *StageExecutionMutation) AddCurrentIteration(i int) {
	if m.addcurrent_iteration != nil {
		*m.addcurrent_iteration += i
	} else {
		m.addcurrent_iteration = &i
	}
}

// AddedCurrentIteration returns the value that was added to the "current_iteration" field in this mutation.
func (m *StageExecutionMutation) AddedCurrentIteration() (r int, exists bool) {
	v := m.addcurrent_iteration
	if v == nil {
		return
	}
	return *v, true
}

// ResetCurrentIteration resets all changes to the "current_iteration" field.
func (m *StageExecutionMutation) ResetCurrentIteration() {
	m.current_iteration = nil
	m.addcurrent_iteration = nil
}

// SetStartedAtUs sets the "started_at_us" field.
func (m *StageExecutionMutation) SetStartedAtUs(i int64) {
	m.started_at_us = &i
	m.addstarted_at_us = nil
}

// StartedAtUs returns the value of the "started_at_us" field in the mutation.
func (m *StageExecutionMutation) StartedAtUs() (r int64, exists bool) {
	v := m.started_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldStartedAtUs returns the old "started_at_us" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldStartedAtUs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStartedAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStartedAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStartedAtUs: %w", err)
	}
	return oldValue.StartedAtUs, nil
}

// AddStartedAtUs adds i to the "started_at_us" field.
func (m *StageExecutionMutation) AddStartedAtUs(i int64) {
	if m.addstarted_at_us != nil {
		*m.addstarted_at_us += i
	} else {
		m.addstarted_at_us = &i
	}
}

// AddedStartedAtUs returns the value that was added to the "started_at_us" field in this mutation.
func (m *StageExecutionMutation) AddedStartedAtUs() (r int64, exists bool) {
	v := m.addstarted_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ClearStartedAtUs clears the value of the "started_at_us" field.
func (m *StageExecutionMutation) ClearStartedAtUs() {
	m.started_at_us = nil
	m.addstarted_at_us = nil
	m.clearedFields[stageexecution.FieldStartedAtUs] = struct{}{}
}

// StartedAtUsCleared returns if the "started_at_us" field was cleared in this mutation.
func (m *StageExecutionMutation) StartedAtUsCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldStartedAtUs]
	return ok
}

// ResetStartedAtUs resets all changes to the "started_at_us" field.
func (m *StageExecutionMutation) ResetStartedAtUs() {
	m.started_at_us = nil
	m.addstarted_at_us = nil
	delete(m.clearedFields, stageexecution.FieldStartedAtUs)
}

// SetCompletedAtUs sets the "completed_at_us" field.
func (m *StageExecutionMutation) SetCompletedAtUs(i int64) {
	m.completed_at_us = &i
	m.addcompleted_at_us = nil
}

// CompletedAtUs returns the value of the "completed_at_us" field in the mutation.
func (m *StageExecutionMutation) CompletedAtUs() (r int64, exists bool) {
	v := m.completed_at_us
	if v == nil {
		return
	}
	return *v, true
}

// OldCompletedAtUs returns the old "completed_at_us" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldCompletedAtUs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCompletedAtUs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCompletedAtUs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCompletedAtUs: %w", err)
	}
	return oldValue.CompletedAtUs, nil
}

// AddCompletedAtUs adds i to the "completed_at_us" field.
func (m *StageExecutionMutation) AddCompletedAtUs(i int64) {
	if m.addcompleted_at_us != nil {
		*m.addcompleted_at_us += i
	} else {
		m.addcompleted_at_us = &i
	}
}

// AddedCompletedAtUs returns the value that was added to the "completed_at_us" field in this mutation.
func (m *StageExecutionMutation) AddedCompletedAtUs() (r int64, exists bool) {
	v := m.addcompleted_at_us
	if v == nil {
		return
	}
	return *v, true
}

// ClearCompletedAtUs clears the value of the "completed_at_us" field.
func (m *StageExecutionMutation) ClearCompletedAtUs() {
	m.completed_at_us = nil
	m.addcompleted_at_us = nil
	m.clearedFields[stageexecution.FieldCompletedAtUs] = struct{}{}
}

// CompletedAtUsCleared returns if the "completed_at_us" field was cleared in this mutation.
func (m *StageExecutionMutation) CompletedAtUsCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldCompletedAtUs]
	return ok
}

// ResetCompletedAtUs resets all changes to the "completed_at_us" field.
func (m *StageExecutionMutation) ResetCompletedAtUs() {
	m.completed_at_us = nil
	m.addcompleted_at_us = nil
	delete(m.clearedFields, stageexecution.FieldCompletedAtUs)
}

// SetDurationMs sets the "duration_ms" field.
func (m *StageExecutionMutation) SetDurationMs(i int64) {
	m.duration_ms = &i
	m.addduration_ms = nil
}

// DurationMs returns the value of the "duration_ms" field in the mutation.
func (m *StageExecutionMutation) DurationMs() (r int64, exists bool) {
	v := m.duration_ms
	if v == nil {
		return
	}
	return *v, true
}

// OldDurationMs returns the old "duration_ms" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldDurationMs(ctx context.Context) (v *int64, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldDurationMs is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldDurationMs requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldDurationMs: %w", err)
	}
	return oldValue.DurationMs, nil
}

// AddDurationMs adds i to the "duration_ms" field.
func (m *StageExecutionMutation) AddDurationMs(i int64) {
	if m.addduration_ms != nil {
		*m.addduration_ms += i
	} else {
		m.addduration_ms = &i
	}
}

// AddedDurationMs returns the value that was added to the "duration_ms" field in this mutation.
func (m *StageExecutionMutation) AddedDurationMs() (r int64, exists bool) {
	v := m.addduration_ms
	if v == nil {
		return
	}
	return *v, true
}

// ClearDurationMs clears the value of the "duration_ms" field.
func (m *StageExecutionMutation) ClearDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	m.clearedFields[stageexecution.FieldDurationMs] = struct{}{}
}

// DurationMsCleared returns if the "duration_ms" field was cleared in this mutation.
func (m *StageExecutionMutation) DurationMsCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldDurationMs]
	return ok
}

// ResetDurationMs resets all changes to the "duration_ms" field.
func (m *StageExecutionMutation) ResetDurationMs() {
	m.duration_ms = nil
	m.addduration_ms = nil
	delete(m.clearedFields, stageexecution.FieldDurationMs)
}

// SetStageOutput sets the "stage_output" field.
func (m *StageExecutionMutation) SetStageOutput(value map[string]interface{}) {
	m.stage_output = &value
}

// StageOutput returns the value of the "stage_output" field in the mutation.
func (m *StageExecutionMutation) StageOutput() (r map[string]interface{}, exists bool) {
	v := m.stage_output
	if v == nil {
		return
	}
	return *v, true
}

// OldStageOutput returns the old "stage_output" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldStageOutput(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStageOutput is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStageOutput requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStageOutput: %w", err)
	}
	return oldValue.StageOutput, nil
}

// ClearStageOutput clears the value of the "stage_output" field.
func (m *StageExecutionMutation) ClearStageOutput() {
	m.stage_output = nil
	m.clearedFields[stageexecution.FieldStageOutput] = struct{}{}
}

// StageOutputCleared returns if the "stage_output" field was cleared in this mutation.
func (m *StageExecutionMutation) StageOutputCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldStageOutput]
	return ok
}

// ResetStageOutput resets all changes to the "stage_output" field.
func (m *StageExecutionMutation) ResetStageOutput() {
	m.stage_output = nil
	delete(m.clearedFields, stageexecution.FieldStageOutput)
}

// SetErrorMessage sets the "error_message" field.
func (m *StageExecutionMutation) SetErrorMessage(s string) {
	m.error_message = &s
}

// ErrorMessage returns the value of the "error_message" field in the mutation.
func (m *StageExecutionMutation) ErrorMessage() (r string, exists bool) {
	v := m.error_message
	if v == nil {
		return
	}
	return *v, true
}

// OldErrorMessage returns the old "error_message" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldErrorMessage(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldErrorMessage is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldErrorMessage requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldErrorMessage: %w", err)
	}
	return oldValue.ErrorMessage, nil
}

// ClearErrorMessage clears the value of the "error_message" field.
func (m *StageExecutionMutation) ClearErrorMessage() {
	m.error_message = nil
	m.clearedFields[stageexecution.FieldErrorMessage] = struct{}{}
}

// ErrorMessageCleared returns if the "error_message" field was cleared in this mutation.
func (m *StageExecutionMutation) ErrorMessageCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldErrorMessage]
	return ok
}

// ResetErrorMessage resets all changes to the "error_message" field.
func (m *StageExecutionMutation) ResetErrorMessage() {
	m.error_message = nil
	delete(m.clearedFields, stageexecution.FieldErrorMessage)
}

// SetParentStageExecutionID sets the "parent_stage_execution_id" field.
func (m *StageExecutionMutation) SetParentStageExecutionID(s string) {
	m.parent = &s
}

// ParentStageExecutionID returns the value of the "parent_stage_execution_id" field in the mutation.
func (m *StageExecutionMutation) ParentStageExecutionID() (r string, exists bool) {
	v := m.parent
	if v == nil {
		return
	}
	return *v, true
}

// OldParentStageExecutionID returns the old "parent_stage_execution_id" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldParentStageExecutionID(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldParentStageExecutionID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldParentStageExecutionID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldParentStageExecutionID: %w", err)
	}
	return oldValue.ParentStageExecutionID, nil
}

// ClearParentStageExecutionID clears the value of the "parent_stage_execution_id" field.
func (m *StageExecutionMutation) ClearParentStageExecutionID() {
	m.parent = nil
	m.clearedFields[stageexecution.FieldParentStageExecutionID] = struct{}{}
}

// ParentStageExecutionIDCleared returns if the "parent_stage_execution_id" field was cleared in this mutation.
func (m *StageExecutionMutation) ParentStageExecutionIDCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldParentStageExecutionID]
	return ok
}

// ResetParentStageExecutionID resets all changes to the "parent_stage_execution_id" field.
func (m *StageExecutionMutation) ResetParentStageExecutionID() {
	m.parent = nil
	delete(m.clearedFields, stageexecution.FieldParentStageExecutionID)
}

// SetParallelType sets the "parallel_type" field.
func (m *StageExecutionMutation) SetParallelType(st stageexecution.ParallelType) {
	m.parallel_type = &st
}

// ParallelType returns the value of the "parallel_type" field in the mutation.
func (m *StageExecutionMutation) ParallelType() (r stageexecution.ParallelType, exists bool) {
	v := m.parallel_type
	if v == nil {
		return
	}
	return *v, true
}

// OldParallelType returns the old "parallel_type" field's value of the StageExecution entity.
// If the StageExecution object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *StageExecutionMutation) OldParallelType(ctx context.Context) (v *stageexecution.ParallelType, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldParallelType is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldParallelType requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldParallelType: %w", err)
	}
	return oldValue.ParallelType, nil
}

// ClearParallelType clears the value of the "parallel_type" field.
func (m *StageExecutionMutation) ClearParallelType() {
	m.parallel_type = nil
	m.clearedFields[stageexecution.FieldParallelType] = struct{}{}
}

// ParallelTypeCleared returns if the "parallel_type" field was cleared in this mutation.
func (m *StageExecutionMutation) ParallelTypeCleared() bool {
	_, ok := m.clearedFields[stageexecution.FieldParallelType]
	return ok
}

// ResetParallelType resets all changes to the "parallel_type" field.
func (m *StageExecutionMutation) ResetParallelType() {
	m.parallel_type = nil
	delete(m.clearedFields, stageexecution.FieldParallelType)
}

// ClearSession clears the "session" edge to the AlertSession entity.
func (m *StageExecutionMutation) ClearSession() {
	m.clearedsession = true
	m.clearedFields[stageexecution.FieldSessionID] = struct{}{}
}

// SessionCleared reports if the "session" edge to the AlertSession entity was cleared.
func (m *StageExecutionMutation) SessionCleared() bool {
	return m.clearedsession
}

// SessionIDs returns the "session" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// SessionID instead. It exists only for internal usage by the builders.
func (m *StageExecutionMutation) SessionIDs() (ids []string) {
	if id := m.session; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetSession resets all changes to the "session" edge.
func (m *StageExecutionMutation) ResetSession() {
	m.session = nil
	m.clearedsession = false
}

// SetParentID sets the "parent" edge to the StageExecution entity by id.
func (m *StageExecutionMutation) SetParentID(id string) {
	m.parent = &id
}

// ClearParent clears the "parent" edge to the StageExecution entity.
func (m *StageExecutionMutation) ClearParent() {
	m.clearedparent = true
	m.clearedFields[stageexecution.FieldParentStageExecutionID] = struct{}{}
}

// ParentCleared reports if the "parent" edge to the StageExecution entity was cleared.
func (m *StageExecutionMutation) ParentCleared() bool {
	return m.ParentStageExecutionIDCleared() || m.clearedparent
}

// ParentID returns the "parent" edge ID in the mutation.
func (m *StageExecutionMutation) ParentID() (id string, exists bool) {
	if m.parent != nil {
		return *m.parent, true
	}
	return
}

// ParentIDs returns the "parent" edge IDs in the mutation.
// Note that IDs always returns len(IDs) <= 1 for unique edges, and you should use
// ParentID instead. It exists only for internal usage by the builders.
func (m *StageExecutionMutation) ParentIDs() (ids []string) {
	if id := m.parent; id != nil {
		ids = append(ids, *id)
	}
	return
}

// ResetParent resets all changes to the "parent" edge.
func (m *StageExecutionMutation) ResetParent() {
	m.parent = nil
	m.clearedparent = false
}

// AddChildIDs adds the "children" edge to the StageExecution entity by ids.
func (m *StageExecutionMutation) AddChildIDs(ids ...string) {
	if m.children == nil {
		m.children = make(map[string]struct{})
	}
	for i := range ids {
		m.children[ids[i]] = struct{}{}
	}
}

// ClearChildren clears the "children" edge to the StageExecution entity.
func (m *StageExecutionMutation) ClearChildren() {
	m.clearedchildren = true
}

// ChildrenCleared reports if the "children" edge to the StageExecution entity was cleared.
func (m *StageExecutionMutation) ChildrenCleared() bool {
	return m.clearedchildren
}

// RemoveChildIDs removes the "children" edge to the StageExecution entity by IDs.
func (m *StageExecutionMutation) RemoveChildIDs(ids ...string) {
	if m.removedchildren == nil {
		m.removedchildren = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.children, ids[i])
		m.removedchildren[ids[i]] = struct{}{}
	}
}

// RemovedChildren returns the removed IDs of the "children" edge to the StageExecution entity.
func (m *StageExecutionMutation) RemovedChildrenIDs() (ids []string) {
	for id := range m.removedchildren {
		ids = append(ids, id)
	}
	return
}

// ChildrenIDs returns the "children" edge IDs in the mutation.
func (m *StageExecutionMutation) ChildrenIDs() (ids []string) {
	for id := range m.children {
		ids = append(ids, id)
	}
	return
}

// ResetChildren resets all changes to the "children" edge.
func (m *StageExecutionMutation) ResetChildren() {
	m.children = nil
	m.clearedchildren = false
	m.removedchildren = nil
}

// AddLlmInteractionIDs adds the "llm_interactions" edge to the LLMInteraction entity by ids.
func (m *StageExecutionMutation) AddLlmInteractionIDs(ids ...string) {
	if m.llm_interactions == nil {
		m.llm_interactions = make(map[string]struct{})
	}
	for i := range ids {
		m.llm_interactions[ids[i]] = struct{}{}
	}
}

// ClearLlmInteractions clears the "llm_interactions" edge to the LLMInteraction entity.
func (m *StageExecutionMutation) ClearLlmInteractions() {
	m.clearedllm_interactions = true
}

// LlmInteractionsCleared reports if the "llm_interactions" edge to the LLMInteraction entity was cleared.
func (m *StageExecutionMutation) LlmInteractionsCleared() bool {
	return m.clearedllm_interactions
}

// RemoveLlmInteractionIDs removes the "llm_interactions" edge to the LLMInteraction entity by IDs.
func (m *StageExecutionMutation) RemoveLlmInteractionIDs(ids ...string) {
	if m.removedllm_interactions == nil {
		m.removedllm_interactions = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.llm_interactions, ids[i])
		m.removedllm_interactions[ids[i]] = struct{}{}
	}
}

// RemovedLlmInteractions returns the removed IDs of the "llm_interactions" edge to the LLMInteraction entity.
func (m *StageExecutionMutation) RemovedLlmInteractionsIDs() (ids []string) {
	for id := range m.removedllm_interactions {
		ids = append(ids, id)
	}
	return
}

// LlmInteractionsIDs returns the "llm_interactions" edge IDs in the mutation.
func (m *StageExecutionMutation) LlmInteractionsIDs() (ids []string) {
	for id := range m.llm_interactions {
		ids = append(ids, id)
	}
	return
}

// ResetLlmInteractions resets all changes to the "llm_interactions" edge.
func (m *StageExecutionMutation) ResetLlmInteractions() {
	m.llm_interactions = nil
	m.clearedllm_interactions = false
	m.removedllm_interactions = nil
}

// AddMcpInteractionIDs adds the "mcp_interactions" edge to the MCPInteraction entity by ids.
func (m *StageExecutionMutation) AddMcpInteractionIDs(ids ...string) {
	if m.mcp_interactions == nil {
		m.mcp_interactions = make(map[string]struct{})
	}
	for i := range ids {
		m.mcp_interactions[ids[i]] = struct{}{}
	}
}

// ClearMcpInteractions clears the "mcp_interactions" edge to the MCPInteraction entity.
func (m *StageExecutionMutation) ClearMcpInteractions() {
	m.clearedmcp_interactions = true
}

// McpInteractionsCleared reports if the "mcp_interactions" edge to the MCPInteraction entity was cleared.
func (m *StageExecutionMutation) McpInteractionsCleared() bool {
	return m.clearedmcp_interactions
}

// RemoveMcpInteractionIDs removes the "mcp_interactions" edge to the MCPInteraction entity by IDs.
func (m *StageExecutionMutation) RemoveMcpInteractionIDs(ids ...string) {
	if m.removedmcp_interactions == nil {
		m.removedmcp_interactions = make(map[string]struct{})
	}
	for i := range ids {
		delete(m.mcp_interactions, ids[i])
		m.removedmcp_interactions[ids[i]] = struct{}{}
	}
}

// RemovedMcpInteractions returns the removed IDs of the "mcp_interactions" edge to the MCPInteraction entity.
func (m *StageExecutionMutation) RemovedMcpInteractionsIDs() (ids []string) {
	for id := range m.removedmcp_interactions {
		ids = append(ids, id)
	}
	return
}

// McpInteractionsIDs returns the "mcp_interactions" edge IDs in the mutation.
func (m *StageExecutionMutation) McpInteractionsIDs() (ids []string) {
	for id := range m.mcp_interactions {
		ids = append(ids, id)
	}
	return
}

// ResetMcpInteractions resets all changes to the "mcp_interactions" edge.
func (m *StageExecutionMutation) ResetMcpInteractions() {
	m.mcp_interactions = nil
	m.clearedmcp_interactions = false
	m.removedmcp_interactions = nil
}

// Where appends a list predicates to the StageExecutionMutation builder.
func (m *StageExecutionMutation) Where(ps ...predicate.StageExecution) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the StageExecutionMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *StageExecutionMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.StageExecution, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *StageExecutionMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *StageExecutionMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (StageExecution).
func (m *StageExecutionMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *StageExecutionMutation) Fields() []string {
	fields := make([]string, 0, 13)
	if m.session != nil {
		fields = append(fields, stageexecution.FieldSessionID)
	}
	if m.stage_index != nil {
		fields = append(fields, stageexecution.FieldStageIndex)
	}
	if m.stage_name != nil {
		fields = append(fields, stageexecution.FieldStageName)
	}
	if m.agent != nil {
		fields = append(fields, stageexecution.FieldAgent)
	}
	if m.status != nil {
		fields = append(fields, stageexecution.FieldStatus)
	}
	if m.current_iteration != nil {
		fields = append(fields, stageexecution.FieldCurrentIteration)
	}
	if m.started_at_us != nil {
		fields = append(fields, stageexecution.FieldStartedAtUs)
	}
	if m.completed_at_us != nil {
		fields = append(fields, stageexecution.FieldCompletedAtUs)
	}
	if m.duration_ms != nil {
		fields = append(fields, stageexecution.FieldDurationMs)
	}
	if m.stage_output != nil {
		fields = append(fields, stageexecution.FieldStageOutput)
	}
	if m.error_message != nil {
		fields = append(fields, stageexecution.FieldErrorMessage)
	}
	if m.parent != nil {
		fields = append(fields, stageexecution.FieldParentStageExecutionID)
	}
	if m.parallel_type != nil {
		fields = append(fields, stageexecution.FieldParallelType)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *StageExecutionMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case stageexecution.FieldSessionID:
		return m.SessionID()
	case stageexecution.FieldStageIndex:
		return m.StageIndex()
	case stageexecution.FieldStageName:
		return m.StageName()
	case stageexecution.FieldAgent:
		return m.Agent()
	case stageexecution.FieldStatus:
		return m.Status()
	case stageexecution.FieldCurrentIteration:
		return m.CurrentIteration()
	case stageexecution.FieldStartedAtUs:
		return m.StartedAtUs()
	case stageexecution.FieldCompletedAtUs:
		return m.CompletedAtUs()
	case stageexecution.FieldDurationMs:
		return m.DurationMs()
	case stageexecution.FieldStageOutput:
		return m.StageOutput()
	case stageexecution.FieldErrorMessage:
		return m.ErrorMessage()
	case stageexecution.FieldParentStageExecutionID:
		return m.ParentStageExecutionID()
	case stageexecution.FieldParallelType:
		return m.ParallelType()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *StageExecutionMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case stageexecution.FieldSessionID:
		return m.OldSessionID(ctx)
	case stageexecution.FieldStageIndex:
		return m.OldStageIndex(ctx)
	case stageexecution.FieldStageName:
		return m.OldStageName(ctx)
	case stageexecution.FieldAgent:
		return m.OldAgent(ctx)
	case stageexecution.FieldStatus:
		return m.OldStatus(ctx)
	case stageexecution.FieldCurrentIteration:
		return m.OldCurrentIteration(ctx)
	case stageexecution.FieldStartedAtUs:
		return m.OldStartedAtUs(ctx)
	case stageexecution.FieldCompletedAtUs:
		return m.OldCompletedAtUs(ctx)
	case stageexecution.FieldDurationMs:
		return m.OldDurationMs(ctx)
	case stageexecution.FieldStageOutput:
		return m.OldStageOutput(ctx)
	case stageexecution.FieldErrorMessage:
		return m.OldErrorMessage(ctx)
	case stageexecution.FieldParentStageExecutionID:
		return m.OldParentStageExecutionID(ctx)
	case stageexecution.FieldParallelType:
		return m.OldParallelType(ctx)
	}
	return nil, fmt.Errorf("unknown StageExecution field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *StageExecutionMutation) SetField(name string, value ent.Value) error {
	switch name {
	case stageexecution.FieldSessionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSessionID(v)
		return nil
	case stageexecution.FieldStageIndex:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStageIndex(v)
		return nil
	case stageexecution.FieldStageName:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStageName(v)
		return nil
	case stageexecution.FieldAgent:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAgent(v)
		return nil
	case stageexecution.FieldStatus:
		v, ok := value.(stageexecution.Status)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStatus(v)
		return nil
	case stageexecution.FieldCurrentIteration:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCurrentIteration(v)
		return nil
	case stageexecution.FieldStartedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStartedAtUs(v)
		return nil
	case stageexecution.FieldCompletedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCompletedAtUs(v)
		return nil
	case stageexecution.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetDurationMs(v)
		return nil
	case stageexecution.FieldStageOutput:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStageOutput(v)
		return nil
	case stageexecution.FieldErrorMessage:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetErrorMessage(v)
		return nil
	case stageexecution.FieldParentStageExecutionID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetParentStageExecutionID(v)
		return nil
	case stageexecution.FieldParallelType:
		v, ok := value.(stageexecution.ParallelType)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetParallelType(v)
		return nil
	}
	return fmt.Errorf("unknown StageExecution field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *StageExecutionMutation) AddedFields() []string {
	var fields []string
	if m.addstage_index != nil {
		fields = append(fields, stageexecution.FieldStageIndex)
	}
	if m.addcurrent_iteration != nil {
		fields = append(fields, stageexecution.FieldCurrentIteration)
	}
	if m.addstarted_at_us != nil {
		fields = append(fields, stageexecution.FieldStartedAtUs)
	}
	if m.addcompleted_at_us != nil {
		fields = append(fields, stageexecution.FieldCompletedAtUs)
	}
	if m.addduration_ms != nil {
		fields = append(fields, stageexecution.FieldDurationMs)
	}
	return fields
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *StageExecutionMutation) AddedField(name string) (ent.Value, bool) {
	switch name {
	case stageexecution.FieldStageIndex:
		return m.AddedStageIndex()
	case stageexecution.FieldCurrentIteration:
		return m.AddedCurrentIteration()
	case stageexecution.FieldStartedAtUs:
		return m.AddedStartedAtUs()
	case stageexecution.FieldCompletedAtUs:
		return m.AddedCompletedAtUs()
	case stageexecution.FieldDurationMs:
		return m.AddedDurationMs()
	}
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *StageExecutionMutation) AddField(name string, value ent.Value) error {
	switch name {
	case stageexecution.FieldStageIndex:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddStageIndex(v)
		return nil
	case stageexecution.FieldCurrentIteration:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddCurrentIteration(v)
		return nil
	case stageexecution.FieldStartedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddStartedAtUs(v)
		return nil
	case stageexecution.FieldCompletedAtUs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddCompletedAtUs(v)
		return nil
	case stageexecution.FieldDurationMs:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddDurationMs(v)
		return nil
	}
	return fmt.Errorf("unknown StageExecution numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *StageExecutionMutation) ClearedFields() []string {
	var fields []string
	if m.FieldCleared(stageexecution.FieldStartedAtUs) {
		fields = append(fields, stageexecution.FieldStartedAtUs)
	}
	if m.FieldCleared(stageexecution.FieldCompletedAtUs) {
		fields = append(fields, stageexecution.FieldCompletedAtUs)
	}
	if m.FieldCleared(stageexecution.FieldDurationMs) {
		fields = append(fields, stageexecution.FieldDurationMs)
	}
	if m.FieldCleared(stageexecution.FieldStageOutput) {
		fields = append(fields, stageexecution.FieldStageOutput)
	}
	if m.FieldCleared(stageexecution.FieldErrorMessage) {
		fields = append(fields, stageexecution.FieldErrorMessage)
	}
	if m.FieldCleared(stageexecution.FieldParentStageExecutionID) {
		fields = append(fields, stageexecution.FieldParentStageExecutionID)
	}
	if m.FieldCleared(stageexecution.FieldParallelType) {
		fields = append(fields, stageexecution.FieldParallelType)
	}
	return fields
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *StageExecutionMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *StageExecutionMutation) ClearField(name string) error {
	switch name {
	case stageexecution.FieldStartedAtUs:
		m.ClearStartedAtUs()
		return nil
	case stageexecution.FieldCompletedAtUs:
		m.ClearCompletedAtUs()
		return nil
	case stageexecution.FieldDurationMs:
		m.ClearDurationMs()
		return nil
	case stageexecution.FieldStageOutput:
		m.ClearStageOutput()
		return nil
	case stageexecution.FieldErrorMessage:
		m.ClearErrorMessage()
		return nil
	case stageexecution.FieldParentStageExecutionID:
		m.ClearParentStageExecutionID()
		return nil
	case stageexecution.FieldParallelType:
		m.ClearParallelType()
		return nil
	}
	return fmt.Errorf("unknown StageExecution nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *StageExecutionMutation) ResetField(name string) error {
	switch name {
	case stageexecution.FieldSessionID:
		m.ResetSessionID()
		return nil
	case stageexecution.FieldStageIndex:
		m.ResetStageIndex()
		return nil
	case stageexecution.FieldStageName:
		m.ResetStageName()
		return nil
	case stageexecution.FieldAgent:
		m.ResetAgent()
		return nil
	case stageexecution.FieldStatus:
		m.ResetStatus()
		return nil
	case stageexecution.FieldCurrentIteration:
		m.ResetCurrentIteration()
		return nil
	case stageexecution.FieldStartedAtUs:
		m.ResetStartedAtUs()
		return nil
	case stageexecution.FieldCompletedAtUs:
		m.ResetCompletedAtUs()
		return nil
	case stageexecution.FieldDurationMs:
		m.ResetDurationMs()
		return nil
	case stageexecution.FieldStageOutput:
		m.ResetStageOutput()
		return nil
	case stageexecution.FieldErrorMessage:
		m.ResetErrorMessage()
		return nil
	case stageexecution.FieldParentStageExecutionID:
		m.ResetParentStageExecutionID()
		return nil
	case stageexecution.FieldParallelType:
		m.ResetParallelType()
		return nil
	}
	return fmt.Errorf("unknown StageExecution field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *StageExecutionMutation) AddedEdges() []string {
	edges := make([]string, 0, 5)
	if m.session != nil {
		edges = append(edges, stageexecution.EdgeSession)
	}
	if m.parent != nil {
		edges = append(edges, stageexecution.EdgeParent)
	}
	if m.children != nil {
		edges = append(edges, stageexecution.EdgeChildren)
	}
	if m.llm_interactions != nil {
		edges = append(edges, stageexecution.EdgeLlmInteractions)
	}
	if m.mcp_interactions != nil {
		edges = append(edges, stageexecution.EdgeMcpInteractions)
	}
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *StageExecutionMutation) AddedIDs(name string) []ent.Value {
	switch name {
	case stageexecution.EdgeSession:
		if id := m.session; id != nil {
			return []ent.Value{*id}
		}
	case stageexecution.EdgeParent:
		if id := m.parent; id != nil {
			return []ent.Value{*id}
		}
	case stageexecution.EdgeChildren:
		ids := make([]ent.Value, 0, len(m.children))
		for id := range m.children {
			ids = append(ids, id)
		}
		return ids
	case stageexecution.EdgeLlmInteractions:
		ids := make([]ent.Value, 0, len(m.llm_interactions))
		for id := range m.llm_interactions {
			ids = append(ids, id)
		}
		return ids
	case stageexecution.EdgeMcpInteractions:
		ids := make([]ent.Value, 0, len(m.mcp_interactions))
		for id := range m.mcp_interactions {
			ids = append(ids, id)
		}
		return ids
	}
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *StageExecutionMutation) RemovedEdges() []string {
	edges := make([]string, 0, 5)
	if m.removedchildren != nil {
		edges = append(edges, stageexecution.EdgeChildren)
	}
	if m.removedllm_interactions != nil {
		edges = append(edges, stageexecution.EdgeLlmInteractions)
	}
	if m.removedmcp_interactions != nil {
		edges = append(edges, stageexecution.EdgeMcpInteractions)
	}
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *StageExecutionMutation) RemovedIDs(name string) []ent.Value {
	switch name {
	case stageexecution.EdgeChildren:
		ids := make([]ent.Value, 0, len(m.removedchildren))
		for id := range m.removedchildren {
			ids = append(ids, id)
		}
		return ids
	case stageexecution.EdgeLlmInteractions:
		ids := make([]ent.Value, 0, len(m.removedllm_interactions))
		for id := range m.removedllm_interactions {
			ids = append(ids, id)
		}
		return ids
	case stageexecution.EdgeMcpInteractions:
		ids := make([]ent.Value, 0, len(m.removedmcp_interactions))
		for id := range m.removedmcp_interactions {
			ids = append(ids, id)
		}
		return ids
	}
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *StageExecutionMutation) ClearedEdges() []string {
	edges := make([]string, 0, 5)
	if m.clearedsession {
		edges = append(edges, stageexecution.EdgeSession)
	}
	if m.clearedparent {
		edges = append(edges, stageexecution.EdgeParent)
	}
	if m.clearedchildren {
		edges = append(edges, stageexecution.EdgeChildren)
	}
	if m.clearedllm_interactions {
		edges = append(edges, stageexecution.EdgeLlmInteractions)
	}
	if m.clearedmcp_interactions {
		edges = append(edges, stageexecution.EdgeMcpInteractions)
	}
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *StageExecutionMutation) EdgeCleared(name string) bool {
	switch name {
	case stageexecution.EdgeSession:
		return m.clearedsession
	case stageexecution.EdgeParent:
		return m.clearedparent
	case stageexecution.EdgeChildren:
		return m.clearedchildren
	case stageexecution.EdgeLlmInteractions:
		return m.clearedllm_interactions
	case stageexecution.EdgeMcpInteractions:
		return m.clearedmcp_interactions
	}
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *StageExecutionMutation) ClearEdge(name string) error {
	switch name {
	case stageexecution.EdgeSession:
		m.ClearSession()
		return nil
	case stageexecution.EdgeParent:
		m.ClearParent()
		return nil
	}
	return fmt.Errorf("unknown StageExecution unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *StageExecutionMutation) ResetEdge(name string) error {
	switch name {
	case stageexecution.EdgeSession:
		m.ResetSession()
		return nil
	case stageexecution.EdgeParent:
		m.ResetParent()
		return nil
	case stageexecution.EdgeChildren:
		m.ResetChildren()
		return nil
	case stageexecution.EdgeLlmInteractions:
		m.ResetLlmInteractions()
		return nil
	case stageexecution.EdgeMcpInteractions:
		m.ResetMcpInteractions()
		return nil
	}
	return fmt.Errorf("unknown StageExecution edge %s", name)
}
