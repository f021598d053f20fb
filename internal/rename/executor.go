package rename

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
)

// Executor runs rename workflows inside a single transaction with one
// savepoint per step.
type Executor struct {
	conn database.ConnectionManager
	log  zerolog.Logger
}

// NewExecutor creates a workflow executor. A nil connection manager is API
// misuse.
func NewExecutor(conn database.ConnectionManager, log zerolog.Logger) *Executor {
	if conn == nil {
		panic("rename: connection manager is required")
	}
	return &Executor{conn: conn, log: log.With().Str("component", "rename").Logger()}
}

// ExecuteRenameWorkflow runs every step inside its own savepoint. On step
// failure it rolls back to that step's savepoint, then rolls back the whole
// transaction, and reports which step failed and which rollback actions
// were taken. Execution failures come back in the result, not as errors.
func (e *Executor) ExecuteRenameWorkflow(ctx context.Context, workflow *Workflow) *WorkflowResult {
	result := &WorkflowResult{}
	if workflow == nil || len(workflow.Steps) == 0 {
		result.ErrorMessage = "workflow with at least one step is required"
		return result
	}

	if err := e.conn.BeginTransaction(ctx); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to begin transaction: %v", err)
		return result
	}

	for i, step := range workflow.Steps {
		savepoint := fmt.Sprintf("rename_step_%d", i+1)
		if err := e.conn.Savepoint(ctx, savepoint); err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to create savepoint for step %d: %v", i+1, err)
			e.abort(ctx, result)
			return result
		}

		if err := e.conn.ExecuteQuery(ctx, step.SQLCommand); err != nil {
			result.FailedStep = fmt.Sprintf("%d (%s)", i+1, step.StepType)
			result.ErrorMessage = fmt.Sprintf("step %d (%s) failed: %v", i+1, step.StepType, err)

			if spErr := e.conn.RollbackToSavepoint(ctx, savepoint); spErr == nil {
				result.RollbackActions = append(result.RollbackActions,
					fmt.Sprintf("rolled back to savepoint %s", savepoint))
			} else {
				e.log.Error().Err(spErr).Str("savepoint", savepoint).Msg("savepoint rollback failed")
			}
			e.abort(ctx, result)

			e.log.Error().
				Str("old", workflow.OldName).
				Str("new", workflow.NewName).
				Str("failed_step", result.FailedStep).
				Msg("rename workflow rolled back")
			return result
		}

		if err := e.conn.ReleaseSavepoint(ctx, savepoint); err != nil {
			e.log.Warn().Err(err).Str("savepoint", savepoint).Msg("failed to release savepoint")
		}
		result.CompletedSteps++
	}

	if err := e.conn.CommitTransaction(ctx); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to commit rename workflow: %v", err)
		e.abort(ctx, result)
		return result
	}

	result.Success = true
	return result
}

func (e *Executor) abort(ctx context.Context, result *WorkflowResult) {
	if err := e.conn.RollbackTransaction(ctx); err != nil {
		e.log.Error().Err(err).Msg("transaction rollback failed")
		return
	}
	result.RollbackActions = append(result.RollbackActions, "rolled back transaction")
}
