package review

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/safemigrate/safemigrate/internal/orchestrator"
	"github.com/safemigrate/safemigrate/internal/risk"
)

func reviewPlan(strategy orchestrator.RollbackStrategy) *orchestrator.ExecutionPlan {
	return &orchestrator.ExecutionPlan{
		Migration: &orchestrator.Migration{
			Version:    "20260815_add_status",
			SchemaName: "public",
			Operations: []orchestrator.MigrationOperation{
				{
					OperationType: orchestrator.TypeAddColumn,
					TableName:     "users",
					ColumnName:    "status",
					SQLCommand:    "ALTER TABLE users ADD COLUMN status text",
					RollbackSQL:   "ALTER TABLE users DROP COLUMN status",
				},
				{
					OperationType: orchestrator.TypeAddIndex,
					TableName:     "users",
					SQLCommand:    "CREATE INDEX idx_users_status ON users (status)",
					RollbackSQL:   "DROP INDEX idx_users_status",
				},
			},
		},
		RollbackStrategy: strategy,
	}
}

func lowAssessment() *risk.Assessment {
	return &risk.Assessment{OverallScore: 12, Level: risk.LevelLow}
}

func criticalAssessment() *risk.Assessment {
	return &risk.Assessment{OverallScore: 88, Level: risk.LevelCritical}
}

func enter() tea.Msg { return tea.KeyMsg{Type: tea.KeyEnter} }
func down() tea.Msg  { return tea.KeyMsg{Type: tea.KeyDown} }

func advance(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned unexpected model type %T", next)
	}
	return model
}

func TestReview_ApproveLowRiskWithoutTypedConfirmation(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackFull), lowAssessment(), nil)

	m = advance(t, m, enter()) // overview -> operations
	if m.state != StateOperations {
		t.Fatalf("Expected operations screen, got state %d", m.state)
	}
	m = advance(t, m, enter()) // operations -> risk
	if m.state != StateRisk {
		t.Fatalf("Expected risk screen, got state %d", m.state)
	}
	m = advance(t, m, enter()) // risk -> decision (no strategies)
	if m.state != StateDecision {
		t.Fatalf("Expected decision screen, got state %d", m.state)
	}
	m = advance(t, m, enter()) // approve
	if m.Decision() != DecisionApproved {
		t.Errorf("Expected approval, got %d", m.Decision())
	}
	if m.state != StateDone {
		t.Errorf("Expected done state, got %d", m.state)
	}
}

func TestReview_RejectFromDecision(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackFull), nil, nil)

	m = advance(t, m, enter()) // overview -> operations
	m = advance(t, m, enter()) // operations -> decision (no assessment)
	if m.state != StateDecision {
		t.Fatalf("Expected decision screen, got state %d", m.state)
	}
	m = advance(t, m, down()) // select reject
	m = advance(t, m, enter())
	if m.Decision() != DecisionRejected {
		t.Errorf("Expected rejection, got %d", m.Decision())
	}
}

func TestReview_QuitRejects(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackFull), nil, nil)
	m = advance(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if m.Decision() != DecisionRejected {
		t.Errorf("Expected ctrl+c to reject, got %d", m.Decision())
	}
}

func TestReview_CriticalRequiresTypedVersion(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackFull), criticalAssessment(), nil)

	m = advance(t, m, enter()) // overview -> operations
	m = advance(t, m, enter()) // operations -> risk
	m = advance(t, m, enter()) // risk -> decision
	m = advance(t, m, enter()) // approve -> typed confirmation
	if m.state != StateConfirmTyped {
		t.Fatalf("Expected typed confirmation for CRITICAL risk, got state %d", m.state)
	}

	// A wrong version is refused with an error, the session stays open.
	m.confirmInput.SetValue("wrong_version")
	m = advance(t, m, enter())
	if m.state != StateConfirmTyped {
		t.Fatalf("Expected to stay on confirmation after a mismatch, got state %d", m.state)
	}
	if m.confirmError == "" {
		t.Error("Expected a mismatch error message")
	}

	m.confirmInput.SetValue("20260815_add_status")
	m = advance(t, m, enter())
	if m.Decision() != DecisionApproved {
		t.Errorf("Expected approval after typing the version, got %d", m.Decision())
	}
}

func TestReview_NoRollbackRequiresTypedVersion(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackNone), lowAssessment(), nil)
	if !m.requiresTypedConfirmation() {
		t.Error("Expected a plan without rollback to require typed confirmation")
	}
}

func TestReview_View(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		contains string
	}{
		{name: "overview names the version", state: StateOverview, contains: "20260815_add_status"},
		{name: "operations shows SQL", state: StateOperations, contains: "ALTER TABLE users ADD COLUMN status text"},
		{name: "risk shows the level", state: StateRisk, contains: "CRITICAL"},
		{name: "decision offers approval", state: StateDecision, contains: "Approve and apply"},
		{name: "confirmation asks for the version", state: StateConfirmTyped, contains: "Type the migration version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(reviewPlan(orchestrator.RollbackFull), criticalAssessment(), nil)
			m.state = tt.state
			view := m.View()
			if view == "" {
				t.Fatal("Expected a non-empty view")
			}
			if !strings.Contains(view, tt.contains) {
				t.Errorf("Expected view to contain %q", tt.contains)
			}
		})
	}
}

func TestReview_OperationNavigationStaysInBounds(t *testing.T) {
	m := New(reviewPlan(orchestrator.RollbackFull), nil, nil)
	m.state = StateOperations

	m = advance(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.opIndex != 0 {
		t.Errorf("Expected the cursor clamped at 0, got %d", m.opIndex)
	}
	m = advance(t, m, down())
	m = advance(t, m, down())
	if m.opIndex != 1 {
		t.Errorf("Expected the cursor clamped at the last operation, got %d", m.opIndex)
	}
}
