package rename

import (
	"context"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/database/memory"
	"github.com/safemigrate/safemigrate/internal/errdefs"
)

func renameFixture() *memory.Catalog {
	catalog := memory.NewCatalog()
	catalog.AddTable("customers",
		database.Column{Name: "id", Type: "integer", IsPrimaryKey: true},
		database.Column{Name: "name", Type: "text"},
	)
	catalog.AddTable("orders", database.Column{Name: "customer_id", Type: "integer"})
	catalog.AddForeignKey(database.ForeignKeyConstraint{
		Name:              "orders_customer_id_fkey",
		Table:             "orders",
		Columns:           []string{"customer_id"},
		ReferencedTable:   "customers",
		ReferencedColumns: []string{"id"},
		OnDelete:          database.ActionCascade,
		OnUpdate:          database.ActionNoAction,
	})
	catalog.AddView(database.ViewDefinition{
		Name:       "active_customers",
		Definition: "SELECT id, name FROM customers WHERE name IS NOT NULL",
	})
	catalog.AddTrigger(database.TriggerDefinition{
		Name:  "customers_audit",
		Table: "customers",
		Body:  "INSERT INTO audit_log (entry) SELECT name FROM customers",
	})
	return catalog
}

func TestAnalyzeTableRename_CollectsAffectedObjects(t *testing.T) {
	analyzer := NewAnalyzer(renameFixture(), zerolog.Nop())

	report, err := analyzer.AnalyzeTableRename(context.Background(), "customers", "clients")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.IncomingFKs) != 1 || report.IncomingFKs[0].Name != "orders_customer_id_fkey" {
		t.Errorf("Expected the orders FK in the report, got %+v", report.IncomingFKs)
	}
	if len(report.Views) != 1 {
		t.Errorf("Expected 1 referencing view, got %d", len(report.Views))
	}
	if len(report.Triggers) != 1 {
		t.Errorf("Expected 1 trigger, got %d", len(report.Triggers))
	}
	deps := report.ReferenceGraph["orders"]
	if len(deps) != 1 || deps[0] != "customers" {
		t.Errorf("Expected orders -> customers in the reference graph, got %v", report.ReferenceGraph)
	}
}

func TestAnalyzeTableRename_Validation(t *testing.T) {
	analyzer := NewAnalyzer(renameFixture(), zerolog.Nop())
	ctx := context.Background()

	if _, err := analyzer.AnalyzeTableRename(ctx, "'; DROP TABLE users; --", "clients"); err == nil {
		t.Error("Expected validation error for an injected name")
	}
	if _, err := analyzer.AnalyzeTableRename(ctx, "missing", "clients"); err == nil {
		t.Error("Expected error for a nonexistent table")
	}
	if _, err := analyzer.AnalyzeTableRename(ctx, "customers", "orders"); err == nil {
		t.Error("Expected error when the new name is already taken")
	}
}

func TestBuildRenameWorkflow_StepOrdering(t *testing.T) {
	analyzer := NewAnalyzer(renameFixture(), zerolog.Nop())
	report, err := analyzer.AnalyzeTableRename(context.Background(), "customers", "clients")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}

	workflow, err := NewCoordinator(zerolog.Nop()).BuildRenameWorkflow(report)
	if err != nil {
		t.Fatalf("Failed to build workflow: %v", err)
	}

	// FK drop, rename, view rewrite, trigger rewrite, FK recreate.
	if len(workflow.Steps) != 5 {
		t.Fatalf("Expected 5 steps, got %d", len(workflow.Steps))
	}
	prev := -1
	for i, step := range workflow.Steps {
		order, ok := stepOrder[step.StepType]
		if !ok {
			t.Fatalf("Step %d has unknown type %s", i, step.StepType)
		}
		if order < prev {
			t.Errorf("Step %d (%s) out of order", i, step.StepType)
		}
		prev = order
	}

	if workflow.Steps[0].StepType != StepDropFKConstraints {
		t.Errorf("Expected FK drop first, got %s", workflow.Steps[0].StepType)
	}
	last := workflow.Steps[len(workflow.Steps)-1]
	if last.StepType != StepRecreateFKConstraints {
		t.Errorf("Expected FK recreation last, got %s", last.StepType)
	}
	// Recreation points at the new table and preserves CASCADE semantics.
	if !strings.Contains(last.SQLCommand, "REFERENCES clients") {
		t.Errorf("Expected recreation against the new name, got: %s", last.SQLCommand)
	}
	if !strings.Contains(last.SQLCommand, "ON DELETE CASCADE") {
		t.Errorf("Expected captured CASCADE semantics preserved, got: %s", last.SQLCommand)
	}
}

func TestBuildRenameWorkflow_RewritesViewsAndTriggers(t *testing.T) {
	analyzer := NewAnalyzer(renameFixture(), zerolog.Nop())
	report, err := analyzer.AnalyzeTableRename(context.Background(), "customers", "clients")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	workflow, err := NewCoordinator(zerolog.Nop()).BuildRenameWorkflow(report)
	if err != nil {
		t.Fatalf("Failed to build workflow: %v", err)
	}

	for _, step := range workflow.Steps {
		switch step.StepType {
		case StepRewriteViews:
			if !strings.Contains(step.SQLCommand, "FROM clients") {
				t.Errorf("Expected view rewritten to the new name, got: %s", step.SQLCommand)
			}
			if !strings.Contains(step.RollbackSQL, "FROM customers") {
				t.Errorf("Expected view rollback to restore the original, got: %s", step.RollbackSQL)
			}
		case StepRewriteTriggers:
			if !strings.Contains(step.SQLCommand, "FROM clients") {
				t.Errorf("Expected trigger rewritten to the new name, got: %s", step.SQLCommand)
			}
		}
	}
}

func TestBuildRenameWorkflow_CircularReferenceFailsFast(t *testing.T) {
	catalog := memory.NewCatalog()
	catalog.AddTable("a", database.Column{Name: "id", Type: "integer"}, database.Column{Name: "b_id", Type: "integer"})
	catalog.AddTable("b", database.Column{Name: "id", Type: "integer"}, database.Column{Name: "a_id", Type: "integer"})
	catalog.AddForeignKey(database.ForeignKeyConstraint{
		Name: "a_b_fkey", Table: "a", Columns: []string{"b_id"},
		ReferencedTable: "b", ReferencedColumns: []string{"id"},
	})
	catalog.AddForeignKey(database.ForeignKeyConstraint{
		Name: "b_a_fkey", Table: "b", Columns: []string{"a_id"},
		ReferencedTable: "a", ReferencedColumns: []string{"id"},
	})

	analyzer := NewAnalyzer(catalog, zerolog.Nop())
	report, err := analyzer.AnalyzeTableRename(context.Background(), "a", "a_new")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}

	_, err = NewCoordinator(zerolog.Nop()).BuildRenameWorkflow(report)
	if err == nil {
		t.Fatal("Expected a circular dependency error")
	}
	if !errorx.IsOfType(err, errdefs.CircularDependencyError) {
		t.Errorf("Expected a circular dependency error type, got %v", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Expected the cycle named in the error, got: %v", err)
	}
}

func TestRewriteTableReferences(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "simple select",
			sql:  "SELECT id FROM customers",
			want: "SELECT id FROM clients",
		},
		{
			name: "join clause",
			sql:  "SELECT o.id FROM orders o JOIN customers ON customers.id = o.customer_id",
			want: "SELECT o.id FROM orders o JOIN clients ON clients.id = o.customer_id",
		},
		{
			name: "quoted identifier keeps quoting",
			sql:  `SELECT id FROM "customers"`,
			want: `SELECT id FROM "clients"`,
		},
		{
			name: "string literal untouched",
			sql:  "SELECT 'customers' FROM customers",
			want: "SELECT 'customers' FROM clients",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := RewriteTableReferences(c.sql, "customers", "clients")
			if err != nil {
				t.Fatalf("Failed to rewrite: %v", err)
			}
			if got != c.want {
				t.Errorf("Expected %q, got %q", c.want, got)
			}
		})
	}
}

func TestRewriteTableReferences_RejectsInvalidSQL(t *testing.T) {
	if _, err := RewriteTableReferences("SELECT FROM FROM WHERE", "customers", "clients"); err == nil {
		t.Error("Expected malformed SQL to be rejected")
	}
	if _, err := RewriteTableReferences("SELECT 1", "'; DROP TABLE users; --", "clients"); err == nil {
		t.Error("Expected an injected old name to be rejected")
	}
}

func TestExecuteRenameWorkflow_SavepointPerStep(t *testing.T) {
	conn := memory.NewConnectionManager()
	executor := NewExecutor(conn, zerolog.Nop())

	workflow := &Workflow{
		OldName: "customers",
		NewName: "clients",
		Steps: []WorkflowStep{
			{StepType: StepRenameTable, SQLCommand: "ALTER TABLE customers RENAME TO clients"},
			{StepType: StepRewriteViews, SQLCommand: "CREATE OR REPLACE VIEW v AS SELECT id FROM clients"},
		},
	}

	result := executor.ExecuteRenameWorkflow(context.Background(), workflow)
	if !result.Success {
		t.Fatalf("Expected success, got: %s", result.ErrorMessage)
	}
	if result.CompletedSteps != 2 {
		t.Errorf("Expected 2 completed steps, got %d", result.CompletedSteps)
	}
	if len(conn.ExecutedContaining("SAVEPOINT rename_step_1")) == 0 {
		t.Error("Expected a savepoint for step 1")
	}
	if len(conn.ExecutedContaining("SAVEPOINT rename_step_2")) == 0 {
		t.Error("Expected a savepoint for step 2")
	}
	if len(conn.ExecutedContaining("COMMIT")) != 1 {
		t.Error("Expected exactly one COMMIT")
	}
}

func TestExecuteRenameWorkflow_StepFailureRollsBackEverything(t *testing.T) {
	conn := memory.NewConnectionManager()
	conn.FailOn("CREATE OR REPLACE VIEW")
	executor := NewExecutor(conn, zerolog.Nop())

	workflow := &Workflow{
		OldName: "customers",
		NewName: "clients",
		Steps: []WorkflowStep{
			{StepType: StepRenameTable, SQLCommand: "ALTER TABLE customers RENAME TO clients"},
			{StepType: StepRewriteViews, SQLCommand: "CREATE OR REPLACE VIEW v AS SELECT id FROM clients"},
		},
	}

	result := executor.ExecuteRenameWorkflow(context.Background(), workflow)
	if result.Success {
		t.Fatal("Expected failure when the view rewrite errors")
	}
	if result.CompletedSteps != 1 {
		t.Errorf("Expected 1 completed step before the failure, got %d", result.CompletedSteps)
	}
	if !strings.Contains(result.FailedStep, "REWRITE_VIEWS") {
		t.Errorf("Expected the failing step identified, got: %s", result.FailedStep)
	}
	if len(result.RollbackActions) == 0 {
		t.Error("Expected rollback actions reported")
	}
	if len(conn.ExecutedContaining("ROLLBACK TO SAVEPOINT rename_step_2")) == 0 {
		t.Error("Expected rollback to the failing step's savepoint")
	}
	if conn.InTransaction() {
		t.Error("Expected the transaction closed after rollback")
	}
	if len(conn.ExecutedContaining("COMMIT")) != 0 {
		t.Error("Expected no COMMIT after a failed workflow")
	}
}
