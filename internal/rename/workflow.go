package rename

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/fk"
)

// Coordinator builds rename workflows from analyzed reports.
type Coordinator struct {
	log zerolog.Logger
}

// NewCoordinator creates a workflow coordinator.
func NewCoordinator(log zerolog.Logger) *Coordinator {
	return &Coordinator{log: log.With().Str("component", "rename").Logger()}
}

// BuildRenameWorkflow turns a report into an ordered workflow: all FK drops
// first, then the rename, then view and trigger rewrites, then FK
// recreation with the exact semantics captured before the drop. A reference
// cycle involving the renamed table fails the call before any step is
// built.
func (c *Coordinator) BuildRenameWorkflow(report *TableRenameReport) (*Workflow, error) {
	if report == nil || report.OldName == "" || report.NewName == "" {
		return nil, errdefs.ValidationError.New("rename report with old and new table names is required")
	}

	if cycle := findCycleThrough(report.ReferenceGraph, report.OldName); len(cycle) > 0 {
		return nil, errdefs.CircularDependencyError.New(
			"table %q participates in a reference cycle: %s", report.OldName, strings.Join(cycle, " -> "))
	}

	workflow := &Workflow{OldName: report.OldName, NewName: report.NewName}

	for _, constraint := range report.IncomingFKs {
		workflow.Steps = append(workflow.Steps, WorkflowStep{
			StepType:    StepDropFKConstraints,
			Description: fmt.Sprintf("drop foreign key %s on %s", constraint.Name, constraint.Table),
			SQLCommand:  fk.DropConstraintSQL(constraint),
			RollbackSQL: fk.AddConstraintSQL(constraint),
		})
	}

	workflow.Steps = append(workflow.Steps, WorkflowStep{
		StepType:    StepRenameTable,
		Description: fmt.Sprintf("rename %s to %s", report.OldName, report.NewName),
		SQLCommand:  fmt.Sprintf("ALTER TABLE %s RENAME TO %s", report.OldName, report.NewName),
		RollbackSQL: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", report.NewName, report.OldName),
	})

	for _, view := range report.Views {
		rewritten, err := RewriteTableReferences(view.Definition, report.OldName, report.NewName)
		if err != nil {
			return nil, errdefs.RenameCoordinationError.Wrap(err, "cannot rewrite view %q", view.Name)
		}
		workflow.Steps = append(workflow.Steps, WorkflowStep{
			StepType:    StepRewriteViews,
			Description: fmt.Sprintf("rewrite view %s", view.Name),
			SQLCommand:  fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", view.Name, rewritten),
			RollbackSQL: fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", view.Name, view.Definition),
		})
	}

	for _, trigger := range report.Triggers {
		rewritten, err := RewriteTableReferences(trigger.Body, report.OldName, report.NewName)
		if err != nil {
			return nil, errdefs.RenameCoordinationError.Wrap(err, "cannot rewrite trigger %q", trigger.Name)
		}
		workflow.Steps = append(workflow.Steps, WorkflowStep{
			StepType:    StepRewriteTriggers,
			Description: fmt.Sprintf("rewrite trigger %s", trigger.Name),
			SQLCommand:  rewritten,
			RollbackSQL: trigger.Body,
		})
	}

	for _, constraint := range report.IncomingFKs {
		recreated := constraint
		recreated.ReferencedTable = report.NewName
		workflow.Steps = append(workflow.Steps, WorkflowStep{
			StepType:    StepRecreateFKConstraints,
			Description: fmt.Sprintf("recreate foreign key %s on %s", constraint.Name, constraint.Table),
			SQLCommand:  fk.AddConstraintSQL(recreated),
			RollbackSQL: fk.DropConstraintSQL(recreated),
		})
	}

	c.log.Info().
		Str("old", report.OldName).
		Str("new", report.NewName).
		Int("steps", len(workflow.Steps)).
		Msg("rename workflow built")
	return workflow, nil
}

// findCycleThrough runs DFS with a recursion stack over the adjacency map
// and returns the first cycle that passes through start, or nil.
func findCycleThrough(graph map[string][]string, start string) []string {
	var stack []string
	onStack := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node string) []string
	visit = func(node string) []string {
		if onStack[node] {
			if node == start {
				return append(append([]string(nil), stack...), node)
			}
			return nil
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)
		for _, next := range graph[node] {
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		onStack[node] = false
		return nil
	}

	return visit(start)
}
