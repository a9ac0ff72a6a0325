package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/stageexecution"
)

// CreateStageExecutionParams holds the fields for a new stage execution row.
// ParallelType is set only on the parent row of a parallel stage; ParentID
// only on its children.
type CreateStageExecutionParams struct {
	SessionID    string
	StageIndex   int
	StageName    string
	Agent        string
	ParentID     *string
	ParallelType *stageexecution.ParallelType
}

// CreateStageExecution inserts a pending stage execution and returns it.
func (s *Store) CreateStageExecution(ctx context.Context, p CreateStageExecutionParams) (*ent.StageExecution, error) {
	var exec *ent.StageExecution
	err := s.withRetry(ctx, func() error {
		builder := s.client.StageExecution.Create().
			SetID(uuid.New().String()).
			SetSessionID(p.SessionID).
			SetStageIndex(p.StageIndex).
			SetStageName(p.StageName).
			SetAgent(p.Agent).
			SetStatus(stageexecution.StatusPending)

		if p.ParentID != nil {
			builder = builder.SetParentStageExecutionID(*p.ParentID)
		}
		if p.ParallelType != nil {
			builder = builder.SetParallelType(*p.ParallelType)
		}

		var err error
		exec, err = builder.Save(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stage execution: %w", err)
	}
	return exec, nil
}

// StartStageExecution marks the stage active and stamps its start time.
func (s *Store) StartStageExecution(ctx context.Context, stageExecutionID string) error {
	err := s.withRetry(ctx, func() error {
		return s.client.StageExecution.UpdateOneID(stageExecutionID).
			SetStatus(stageexecution.StatusActive).
			SetStartedAtUs(NowUs()).
			Exec(ctx)
	})
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to start stage execution: %w", err)
	}
	return nil
}

// StageCompletion carries the optional fields written with a stage's
// terminal (or paused) status.
type StageCompletion struct {
	Output       map[string]interface{}
	ErrorMessage *string
}

// CompleteStageExecution writes the stage's final status, output, and
// timing. duration_ms is derived from started_at_us when present.
func (s *Store) CompleteStageExecution(ctx context.Context, stageExecutionID string, status stageexecution.Status, completion StageCompletion) error {
	err := s.withRetry(ctx, func() error {
		exec, err := s.client.StageExecution.Get(ctx, stageExecutionID)
		if err != nil {
			return err
		}

		now := NowUs()
		update := exec.Update().
			SetStatus(status).
			SetCompletedAtUs(now)
		if exec.StartedAtUs != nil {
			update = update.SetDurationMs((now - *exec.StartedAtUs) / 1000)
		}
		if completion.Output != nil {
			update = update.SetStageOutput(completion.Output)
		}
		if completion.ErrorMessage != nil {
			update = update.SetErrorMessage(*completion.ErrorMessage)
		}
		return update.Exec(ctx)
	})
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to complete stage execution: %w", err)
	}
	return nil
}

// SetStageIteration persists the controller's loop position so a paused or
// orphaned session resumes from the right iteration.
func (s *Store) SetStageIteration(ctx context.Context, stageExecutionID string, iteration int) error {
	err := s.withRetry(ctx, func() error {
		return s.client.StageExecution.UpdateOneID(stageExecutionID).
			SetCurrentIteration(iteration).
			Exec(ctx)
	})
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to set stage iteration: %w", err)
	}
	return nil
}

// GetStageExecution retrieves a stage execution by ID.
func (s *Store) GetStageExecution(ctx context.Context, stageExecutionID string) (*ent.StageExecution, error) {
	exec, err := s.client.StageExecution.Get(ctx, stageExecutionID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stage execution: %w", err)
	}
	return exec, nil
}

// GetStageExecutions returns the session's top-level stage executions in
// chain order. Children of parallel stages are not included.
func (s *Store) GetStageExecutions(ctx context.Context, sessionID string) ([]*ent.StageExecution, error) {
	execs, err := s.client.StageExecution.Query().
		Where(
			stageexecution.SessionIDEQ(sessionID),
			stageexecution.ParentStageExecutionIDIsNil(),
		).
		Order(ent.Asc(stageexecution.FieldStageIndex)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage executions: %w", err)
	}
	return execs, nil
}

// GetChildStageExecutions returns the children of a parallel stage ordered
// by agent name (replica children are named {agent}-{k}).
func (s *Store) GetChildStageExecutions(ctx context.Context, parentID string) ([]*ent.StageExecution, error) {
	execs, err := s.client.StageExecution.Query().
		Where(stageexecution.ParentStageExecutionIDEQ(parentID)).
		Order(ent.Asc(stageexecution.FieldAgent)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get child stage executions: %w", err)
	}
	return execs, nil
}
