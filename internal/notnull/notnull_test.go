package notnull

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/database/memory"
)

func populatedFixture() *memory.Catalog {
	catalog := memory.NewCatalog()
	catalog.AddTable("users", database.Column{Name: "id", Type: "integer", IsPrimaryKey: true})
	catalog.SetStats("users", database.TableStats{EstimatedRows: 50000})
	catalog.AddTable("empty_audit", database.Column{Name: "id", Type: "integer"})
	return catalog
}

func TestPlanNotNullColumn_PopulatedTableIsPhased(t *testing.T) {
	planner := NewPlanner(populatedFixture(), zerolog.Nop())

	plan, err := planner.PlanNotNullColumn(context.Background(), "users",
		database.Column{Name: "status", Type: "text"},
		StaticStrategy{Literal: "'active'"})
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}
	if !plan.Phased {
		t.Fatal("Expected a phased plan for a populated table")
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("Expected 3 steps (add, backfill, enforce), got %d", len(plan.Steps))
	}
	if strings.Contains(plan.Steps[0].SQLCommand, "NOT NULL") {
		t.Errorf("Expected the first step to add a nullable column, got: %s", plan.Steps[0].SQLCommand)
	}
	if !strings.Contains(plan.Steps[1].SQLCommand, "SET status = 'active' WHERE status IS NULL") {
		t.Errorf("Expected a NULL-guarded backfill, got: %s", plan.Steps[1].SQLCommand)
	}
	if !strings.Contains(plan.Steps[2].SQLCommand, "SET NOT NULL") {
		t.Errorf("Expected the final step to enforce NOT NULL, got: %s", plan.Steps[2].SQLCommand)
	}
	if plan.Steps[2].RollbackCommand == "" {
		t.Error("Expected the enforcement step to be reversible")
	}
}

func TestPlanNotNullColumn_EmptyTableIsDirect(t *testing.T) {
	planner := NewPlanner(populatedFixture(), zerolog.Nop())

	plan, err := planner.PlanNotNullColumn(context.Background(), "empty_audit",
		database.Column{Name: "created_at", Type: "timestamp"},
		ExpressionStrategy{Expression: "now()"})
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}
	if plan.Phased {
		t.Error("Expected a direct plan for an empty table")
	}
	if len(plan.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(plan.Steps))
	}
	if !strings.Contains(plan.Steps[0].SQLCommand, "NOT NULL DEFAULT now()") {
		t.Errorf("Expected a single NOT NULL DEFAULT step, got: %s", plan.Steps[0].SQLCommand)
	}
}

func TestPlanNotNullColumn_CopyColumnStrategy(t *testing.T) {
	planner := NewPlanner(populatedFixture(), zerolog.Nop())

	plan, err := planner.PlanNotNullColumn(context.Background(), "users",
		database.Column{Name: "display_name", Type: "text"},
		CopyColumnStrategy{SourceColumn: "id"})
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}
	if !strings.Contains(plan.Steps[1].SQLCommand, "SET display_name = id") {
		t.Errorf("Expected backfill from the source column, got: %s", plan.Steps[1].SQLCommand)
	}
}

func TestPlanNotNullColumn_Validation(t *testing.T) {
	planner := NewPlanner(populatedFixture(), zerolog.Nop())
	ctx := context.Background()
	col := database.Column{Name: "status", Type: "text"}
	strategy := StaticStrategy{Literal: "'x'"}

	if _, err := planner.PlanNotNullColumn(ctx, "'; DROP TABLE users; --", col, strategy); err == nil {
		t.Error("Expected rejection of an injected table name")
	}
	if _, err := planner.PlanNotNullColumn(ctx, "missing", col, strategy); err == nil {
		t.Error("Expected an error for a nonexistent table")
	}
	if _, err := planner.PlanNotNullColumn(ctx, "users", database.Column{Name: "id", Type: "integer"}, strategy); err == nil {
		t.Error("Expected an error for an existing column")
	}
	if _, err := planner.PlanNotNullColumn(ctx, "users", col, nil); err == nil {
		t.Error("Expected an error without a strategy")
	}
}

func TestStrategies_RejectInvalidExpressions(t *testing.T) {
	col := database.Column{Name: "c", Type: "text"}

	if _, err := (StaticStrategy{Literal: "'unterminated"}).DefaultExpression(col); err == nil {
		t.Error("Expected an unterminated literal to be rejected")
	}
	if _, err := (ExpressionStrategy{Expression: "now() now()"}).DefaultExpression(col); err == nil {
		t.Error("Expected a malformed expression to be rejected")
	}
	if _, err := (ExpressionStrategy{Expression: ""}).DefaultExpression(col); err == nil {
		t.Error("Expected an empty expression to be rejected")
	}
	if _, err := (CopyColumnStrategy{SourceColumn: "a; DROP TABLE b"}).DefaultExpression(col); err == nil {
		t.Error("Expected an injected source column to be rejected")
	}
}

func TestValidateBackfill(t *testing.T) {
	planner := NewPlanner(populatedFixture(), zerolog.Nop())
	ctx := context.Background()

	conn := memory.NewConnectionManager()
	conn.StubValue("SELECT COUNT(*) FROM users WHERE status IS NULL", int64(0))
	done, err := planner.ValidateBackfill(ctx, conn, "users", "status")
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if !done {
		t.Error("Expected a clean backfill to validate")
	}

	conn = memory.NewConnectionManager()
	conn.StubValue("SELECT COUNT(*) FROM users WHERE status IS NULL", int64(12))
	done, err = planner.ValidateBackfill(ctx, conn, "users", "status")
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if done {
		t.Error("Expected remaining NULL rows to fail validation")
	}

	if _, err := planner.ValidateBackfill(ctx, conn, "users", "'; DROP TABLE users; --"); err == nil {
		t.Error("Expected rejection of an injected column name")
	}
}
