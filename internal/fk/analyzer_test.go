package fk

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/database/memory"
)

func cascadeFixture() *memory.Catalog {
	catalog := memory.NewCatalog()
	catalog.AddTable("t", database.Column{Name: "id", Type: "integer", IsPrimaryKey: true})
	catalog.AddTable("child", database.Column{Name: "t_id", Type: "integer"})
	catalog.AddForeignKey(database.ForeignKeyConstraint{
		Name:              "child_t_id_fkey",
		Table:             "child",
		Columns:           []string{"t_id"},
		ReferencedTable:   "t",
		ReferencedColumns: []string{"id"},
		OnDelete:          database.ActionCascade,
		OnUpdate:          database.ActionRestrict,
		MatchType:         "FULL",
	})
	return catalog
}

func TestConstraintsReferencing_AnnotatesCascadeAsCritical(t *testing.T) {
	analyzer := NewAnalyzer(cascadeFixture(), zerolog.Nop())

	constraints, err := analyzer.ConstraintsReferencing(context.Background(), "t", "id")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(constraints) != 1 {
		t.Fatalf("Expected 1 constraint, got %d", len(constraints))
	}
	if constraints[0].Impact != ImpactCritical {
		t.Errorf("Expected CRITICAL for CASCADE delete, got %s", constraints[0].Impact)
	}
}

func TestConstraintsReferencing_RejectsInjection(t *testing.T) {
	analyzer := NewAnalyzer(cascadeFixture(), zerolog.Nop())
	_, err := analyzer.ConstraintsReferencing(context.Background(), "'; DROP TABLE users; --", "id")
	if err == nil {
		t.Fatal("Expected validation error for injection attempt")
	}
}

func TestAddConstraintSQL_PreservesCapturedSemantics(t *testing.T) {
	fk := database.ForeignKeyConstraint{
		Name:              "child_t_id_fkey",
		Table:             "child",
		Columns:           []string{"t_id"},
		ReferencedTable:   "t",
		ReferencedColumns: []string{"id"},
		OnDelete:          database.ActionCascade,
		OnUpdate:          database.ActionRestrict,
		MatchType:         "FULL",
	}

	sql := AddConstraintSQL(fk)
	for _, want := range []string{"ADD CONSTRAINT child_t_id_fkey", "MATCH FULL", "ON DELETE CASCADE", "ON UPDATE RESTRICT"} {
		if !strings.Contains(sql, want) {
			t.Errorf("Expected %q in recreation SQL, got: %s", want, sql)
		}
	}
}

func TestGenerateFKSafeMigrationPlan_Ordering(t *testing.T) {
	analyzer := NewAnalyzer(cascadeFixture(), zerolog.Nop())

	change := MigrationStep{
		Description:     "Change column type",
		SQLCommand:      "ALTER TABLE t ALTER COLUMN id TYPE bigint",
		RollbackCommand: "ALTER TABLE t ALTER COLUMN id TYPE integer",
	}
	plan, err := analyzer.GenerateFKSafeMigrationPlan(context.Background(), "t", "id", change)
	if err != nil {
		t.Fatalf("Failed to generate plan: %v", err)
	}

	if len(plan.Steps) != 3 {
		t.Fatalf("Expected 3 steps (drop, change, recreate), got %d", len(plan.Steps))
	}
	if !strings.Contains(plan.Steps[0].SQLCommand, "DROP CONSTRAINT child_t_id_fkey") {
		t.Errorf("Expected first step to drop the constraint, got: %s", plan.Steps[0].SQLCommand)
	}
	if plan.Steps[1].SQLCommand != change.SQLCommand {
		t.Errorf("Expected structural change in the middle, got: %s", plan.Steps[1].SQLCommand)
	}
	if !strings.Contains(plan.Steps[2].SQLCommand, "ADD CONSTRAINT child_t_id_fkey") {
		t.Errorf("Expected last step to recreate the constraint, got: %s", plan.Steps[2].SQLCommand)
	}
	if !strings.Contains(plan.Steps[2].SQLCommand, "ON DELETE CASCADE") {
		t.Errorf("Expected recreation to preserve ON DELETE CASCADE, got: %s", plan.Steps[2].SQLCommand)
	}
	// Every step must be reversible.
	for i, step := range plan.Steps {
		if step.RollbackCommand == "" {
			t.Errorf("Step %d has no rollback command", i)
		}
	}
}

func TestGenerateFKSafeMigrationPlan_CompositeStaysAtomic(t *testing.T) {
	catalog := memory.NewCatalog()
	catalog.AddTable("orders",
		database.Column{Name: "region", Type: "text"},
		database.Column{Name: "code", Type: "text"},
	)
	catalog.AddTable("order_lines")
	catalog.AddForeignKey(database.ForeignKeyConstraint{
		Name:              "order_lines_order_fkey",
		Table:             "order_lines",
		Columns:           []string{"order_region", "order_code"},
		ReferencedTable:   "orders",
		ReferencedColumns: []string{"region", "code"},
		OnDelete:          database.ActionNoAction,
		OnUpdate:          database.ActionNoAction,
	})

	analyzer := NewAnalyzer(catalog, zerolog.Nop())
	plan, err := analyzer.GenerateFKSafeMigrationPlan(context.Background(), "orders", "region", MigrationStep{
		Description: "Rename column",
		SQLCommand:  "ALTER TABLE orders RENAME COLUMN region TO area",
	})
	if err != nil {
		t.Fatalf("Failed to generate plan: %v", err)
	}

	// One drop + change + one recreate: the composite key is never split.
	if len(plan.Steps) != 3 {
		t.Fatalf("Expected 3 steps for a composite key, got %d", len(plan.Steps))
	}
	recreate := plan.Steps[2].SQLCommand
	if !strings.Contains(recreate, "(order_region, order_code)") {
		t.Errorf("Expected composite column list in recreation, got: %s", recreate)
	}
	if !strings.Contains(recreate, "REFERENCES orders (region, code)") {
		t.Errorf("Expected composite referenced list, got: %s", recreate)
	}
}
