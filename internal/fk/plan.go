package fk

import (
	"context"
	"fmt"
)

// MigrationStep is one statement in an FK-safe plan, with the statement
// that undoes it where one exists.
type MigrationStep struct {
	Description     string `json:"description"`
	SQLCommand      string `json:"sql_command"`
	RollbackCommand string `json:"rollback_command,omitempty"`
}

// SafeMigrationPlan sequences a structural change between FK drops and
// recreations so referential integrity holds at every commit point.
type SafeMigrationPlan struct {
	Table       string                `json:"table"`
	Column      string                `json:"column"`
	Steps       []MigrationStep       `json:"steps"`
	Constraints []AnnotatedConstraint `json:"constraints"`
}

// GenerateFKSafeMigrationPlan captures every constraint referencing the
// column, then emits: drop all constraints, apply the structural change,
// recreate all constraints with their original ON DELETE/ON UPDATE/MATCH
// semantics. Each step carries rollback SQL. Composite constraints are
// dropped and recreated as single named units, never column by column.
func (a *Analyzer) GenerateFKSafeMigrationPlan(ctx context.Context, table, column string, change MigrationStep) (*SafeMigrationPlan, error) {
	constraints, err := a.ConstraintsReferencing(ctx, table, column)
	if err != nil {
		return nil, err
	}

	plan := &SafeMigrationPlan{
		Table:       table,
		Column:      column,
		Constraints: constraints,
	}

	// Semantics are captured here, before any drop; recreation below uses
	// only this snapshot.
	for _, c := range constraints {
		plan.Steps = append(plan.Steps, MigrationStep{
			Description:     fmt.Sprintf("Drop foreign key %s on %s", c.Name, c.Table),
			SQLCommand:      DropConstraintSQL(c.ForeignKeyConstraint),
			RollbackCommand: AddConstraintSQL(c.ForeignKeyConstraint),
		})
	}

	plan.Steps = append(plan.Steps, change)

	for _, c := range constraints {
		plan.Steps = append(plan.Steps, MigrationStep{
			Description:     fmt.Sprintf("Recreate foreign key %s on %s", c.Name, c.Table),
			SQLCommand:      AddConstraintSQL(c.ForeignKeyConstraint),
			RollbackCommand: DropConstraintSQL(c.ForeignKeyConstraint),
		})
	}

	a.log.Debug().
		Str("table", table).
		Str("column", column).
		Int("constraints", len(constraints)).
		Int("steps", len(plan.Steps)).
		Msg("generated fk-safe migration plan")

	return plan, nil
}
