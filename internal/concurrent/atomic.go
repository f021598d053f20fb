package concurrent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
)

// Operation is one DDL statement in an atomic batch.
type Operation struct {
	OperationType string `json:"operation_type"`
	Table         string `json:"table"`
	Description   string `json:"description,omitempty"`
	SQLCommand    string `json:"sql_command"`
	RollbackSQL   string `json:"rollback_sql,omitempty"`
}

// AtomicResult reports the outcome of one atomic batch execution.
type AtomicResult struct {
	Success             bool   `json:"success"`
	OperationsCompleted int    `json:"operations_completed"`
	RollbackExecuted    bool   `json:"rollback_executed"`
	ExecutionTimeMS     int64  `json:"execution_time_ms"`
	ErrorMessage        string `json:"error_message,omitempty"`
}

// AtomicityRisk grades how safely a batch can run as one transaction.
type AtomicityRisk string

const (
	AtomicityLow    AtomicityRisk = "LOW"
	AtomicityMedium AtomicityRisk = "MEDIUM"
	AtomicityHigh   AtomicityRisk = "HIGH"
)

// AtomicityAssessment is the result of pre-flight batch analysis.
type AtomicityAssessment struct {
	RiskLevel AtomicityRisk `json:"risk_level"`
	Concerns  []string      `json:"concerns,omitempty"`
}

// RollbackPlan is the reverse-order undo plan for a batch.
type RollbackPlan struct {
	Steps                  []string `json:"steps"`
	FullyReversible        bool     `json:"fully_reversible"`
	IrreversibleOperations []string `json:"irreversible_operations,omitempty"`
}

// AtomicExecutor runs operation batches inside a single transaction.
type AtomicExecutor struct {
	conn database.ConnectionManager
	log  zerolog.Logger
}

// NewAtomicExecutor creates an executor. A nil connection manager is API
// misuse.
func NewAtomicExecutor(conn database.ConnectionManager, log zerolog.Logger) *AtomicExecutor {
	if conn == nil {
		panic("concurrent: connection manager is required")
	}
	return &AtomicExecutor{conn: conn, log: log.With().Str("component", "atomic").Logger()}
}

// ExecuteAtomicMigration wraps all operations in one transaction. On any
// failure the whole transaction is rolled back and OperationsCompleted
// reports how many statements had succeeded before the failure.
func (e *AtomicExecutor) ExecuteAtomicMigration(ctx context.Context, ops []Operation) *AtomicResult {
	started := time.Now()
	result := &AtomicResult{}

	finish := func() *AtomicResult {
		result.ExecutionTimeMS = time.Since(started).Milliseconds()
		return result
	}

	if err := e.conn.BeginTransaction(ctx); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to begin transaction: %v", err)
		return finish()
	}

	for i, op := range ops {
		if err := e.conn.ExecuteQuery(ctx, op.SQLCommand); err != nil {
			result.ErrorMessage = fmt.Sprintf("operation %d (%s on %s) failed: %v", i+1, op.OperationType, op.Table, err)
			_ = e.conn.RollbackTransaction(ctx)
			result.RollbackExecuted = true
			e.log.Error().
				Int("completed", result.OperationsCompleted).
				Str("table", op.Table).
				Msg("atomic batch rolled back")
			return finish()
		}
		result.OperationsCompleted++
	}

	if err := e.conn.CommitTransaction(ctx); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to commit transaction: %v", err)
		_ = e.conn.RollbackTransaction(ctx)
		result.RollbackExecuted = true
		return finish()
	}

	result.Success = true
	return finish()
}

func isDestructiveType(opType string) bool {
	switch opType {
	case "DROP_TABLE", "DROP_COLUMN", "DROP_CONSTRAINT", "DROP_INDEX":
		return true
	}
	return false
}

func isConstructiveType(opType string) bool {
	switch opType {
	case "CREATE_TABLE", "ADD_COLUMN", "ADD_INDEX", "ADD_CONSTRAINT":
		return true
	}
	return false
}

// ValidateMigrationAtomicity flags batches that mix destructive and
// constructive operations on the same table as HIGH risk, batches with
// type-modifying operations as MEDIUM, everything else as LOW.
func (e *AtomicExecutor) ValidateMigrationAtomicity(ops []Operation) AtomicityAssessment {
	assessment := AtomicityAssessment{RiskLevel: AtomicityLow}

	destructive := make(map[string]bool)
	constructive := make(map[string]bool)
	modifying := false
	for _, op := range ops {
		switch {
		case isDestructiveType(op.OperationType):
			destructive[op.Table] = true
		case isConstructiveType(op.OperationType):
			constructive[op.Table] = true
		case op.OperationType == "MODIFY_COLUMN":
			modifying = true
		}
	}

	for table := range destructive {
		if constructive[table] {
			assessment.RiskLevel = AtomicityHigh
			assessment.Concerns = append(assessment.Concerns,
				fmt.Sprintf("batch both drops and recreates objects on table %q; a mid-batch failure leaves neither", table))
		}
	}
	if assessment.RiskLevel == AtomicityLow && modifying {
		assessment.RiskLevel = AtomicityMedium
		assessment.Concerns = append(assessment.Concerns, "type-modifying operations rewrite rows and may fail on incompatible data")
	}
	return assessment
}

// PrepareRollbackPlan builds the reverse-order undo plan. Data-destroying
// operations are irreversible even when they carry rollback SQL: reverse
// DDL restores structure, not rows.
func (e *AtomicExecutor) PrepareRollbackPlan(ops []Operation) RollbackPlan {
	plan := RollbackPlan{FullyReversible: true}

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.RollbackSQL != "" {
			plan.Steps = append(plan.Steps, op.RollbackSQL)
		}
		switch {
		case op.OperationType == "DROP_COLUMN" || op.OperationType == "DROP_TABLE":
			plan.FullyReversible = false
			plan.IrreversibleOperations = append(plan.IrreversibleOperations,
				fmt.Sprintf("%s on %s discards data that rollback SQL cannot restore", op.OperationType, op.Table))
		case op.RollbackSQL == "":
			plan.FullyReversible = false
			plan.IrreversibleOperations = append(plan.IrreversibleOperations,
				fmt.Sprintf("%s on %s has no rollback SQL", op.OperationType, op.Table))
		}
	}
	return plan
}
