package concurrent

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database/memory"
)

func addAndDrop() []Operation {
	return []Operation{
		{
			OperationType: "ADD_COLUMN",
			Table:         "users",
			SQLCommand:    "ALTER TABLE users ADD COLUMN nickname TEXT",
			RollbackSQL:   "ALTER TABLE users DROP COLUMN nickname",
		},
		{
			OperationType: "DROP_COLUMN",
			Table:         "users",
			SQLCommand:    "ALTER TABLE users DROP COLUMN legacy_code",
			RollbackSQL:   "ALTER TABLE users ADD COLUMN legacy_code TEXT",
		},
	}
}

func TestExecuteAtomicMigration_CommitsOnSuccess(t *testing.T) {
	conn := memory.NewConnectionManager()
	executor := NewAtomicExecutor(conn, zerolog.Nop())

	result := executor.ExecuteAtomicMigration(context.Background(), addAndDrop())
	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.ErrorMessage)
	}
	if result.OperationsCompleted != 2 {
		t.Errorf("Expected 2 completed operations, got %d", result.OperationsCompleted)
	}
	if len(conn.ExecutedContaining("COMMIT")) != 1 {
		t.Error("Expected exactly one COMMIT")
	}
	if conn.InTransaction() {
		t.Error("Expected no open transaction after execution")
	}
}

func TestExecuteAtomicMigration_RollsBackWholeBatchOnFailure(t *testing.T) {
	conn := memory.NewConnectionManager()
	conn.FailOn("DROP COLUMN legacy_code")
	executor := NewAtomicExecutor(conn, zerolog.Nop())

	result := executor.ExecuteAtomicMigration(context.Background(), addAndDrop())
	if result.Success {
		t.Fatal("Expected failure when the second statement errors")
	}
	if !result.RollbackExecuted {
		t.Error("Expected rollback_executed=true")
	}
	if result.OperationsCompleted != 1 {
		t.Errorf("Expected 1 completed operation before the failure, got %d", result.OperationsCompleted)
	}
	if len(conn.ExecutedContaining("ROLLBACK")) == 0 {
		t.Error("Expected a transaction ROLLBACK in the journal")
	}
	if len(conn.ExecutedContaining("COMMIT")) != 0 {
		t.Error("Expected no COMMIT after a failed batch")
	}
	if !strings.Contains(result.ErrorMessage, "DROP_COLUMN") {
		t.Errorf("Expected the failing operation in the error, got: %s", result.ErrorMessage)
	}
}

func TestValidateMigrationAtomicity_DropThenCreateSameTableIsHigh(t *testing.T) {
	executor := NewAtomicExecutor(memory.NewConnectionManager(), zerolog.Nop())
	ops := []Operation{
		{OperationType: "DROP_TABLE", Table: "events", SQLCommand: "DROP TABLE events"},
		{OperationType: "CREATE_TABLE", Table: "events", SQLCommand: "CREATE TABLE events (id INTEGER)"},
	}
	assessment := executor.ValidateMigrationAtomicity(ops)
	if assessment.RiskLevel != AtomicityHigh {
		t.Errorf("Expected HIGH for drop+create of the same table, got %s", assessment.RiskLevel)
	}
	if len(assessment.Concerns) == 0 {
		t.Error("Expected concerns explaining the HIGH grade")
	}
}

func TestValidateMigrationAtomicity_Grades(t *testing.T) {
	executor := NewAtomicExecutor(memory.NewConnectionManager(), zerolog.Nop())

	modify := executor.ValidateMigrationAtomicity([]Operation{
		{OperationType: "MODIFY_COLUMN", Table: "users", SQLCommand: "ALTER TABLE users ALTER COLUMN age TYPE bigint"},
	})
	if modify.RiskLevel != AtomicityMedium {
		t.Errorf("Expected MEDIUM for a type change, got %s", modify.RiskLevel)
	}

	add := executor.ValidateMigrationAtomicity([]Operation{
		{OperationType: "ADD_COLUMN", Table: "users", SQLCommand: "ALTER TABLE users ADD COLUMN note TEXT"},
	})
	if add.RiskLevel != AtomicityLow {
		t.Errorf("Expected LOW for a plain add, got %s", add.RiskLevel)
	}
}

func TestPrepareRollbackPlan_MarksDataLossIrreversible(t *testing.T) {
	executor := NewAtomicExecutor(memory.NewConnectionManager(), zerolog.Nop())
	plan := executor.PrepareRollbackPlan(addAndDrop())

	if plan.FullyReversible {
		t.Error("Expected plan with DROP_COLUMN to be marked not fully reversible")
	}
	if len(plan.IrreversibleOperations) == 0 {
		t.Error("Expected irreversible operations to be listed")
	}
	// Rollback steps run in reverse operation order.
	if len(plan.Steps) != 2 || !strings.Contains(plan.Steps[0], "ADD COLUMN legacy_code") {
		t.Errorf("Expected reverse-order rollback steps, got %v", plan.Steps)
	}
}

func TestPrepareRollbackPlan_ReversibleBatch(t *testing.T) {
	executor := NewAtomicExecutor(memory.NewConnectionManager(), zerolog.Nop())
	plan := executor.PrepareRollbackPlan([]Operation{
		{
			OperationType: "ADD_COLUMN",
			Table:         "users",
			SQLCommand:    "ALTER TABLE users ADD COLUMN note TEXT",
			RollbackSQL:   "ALTER TABLE users DROP COLUMN note",
		},
	})
	if !plan.FullyReversible {
		t.Errorf("Expected a pure-add batch to be fully reversible, got irreversible: %v", plan.IrreversibleOperations)
	}
}
