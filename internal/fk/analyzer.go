// Package fk specializes dependency analysis for foreign key chains and
// produces FK-safe migration plans: structural changes sequenced so that
// referential integrity is never violated mid-flight.
package fk

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// ImpactLevel grades how disruptive a foreign key makes the change.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "LOW"
	ImpactMedium   ImpactLevel = "MEDIUM"
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactCritical ImpactLevel = "CRITICAL"
)

// AnnotatedConstraint pairs a constraint with its impact grade.
type AnnotatedConstraint struct {
	database.ForeignKeyConstraint
	Impact ImpactLevel `json:"impact"`
}

// Analyzer inspects foreign key metadata through a CatalogProvider.
type Analyzer struct {
	catalog database.CatalogProvider
	log     zerolog.Logger
}

// NewAnalyzer creates a foreign key analyzer.
func NewAnalyzer(catalog database.CatalogProvider, log zerolog.Logger) *Analyzer {
	if catalog == nil {
		panic("fk: nil catalog provider")
	}
	return &Analyzer{catalog: catalog, log: log}
}

// ConstraintsReferencing returns every foreign key whose referenced column
// is (table, column), each annotated with cascade semantics and impact.
func (a *Analyzer) ConstraintsReferencing(ctx context.Context, table, column string) ([]AnnotatedConstraint, error) {
	if err := identifier.Validate("table", table); err != nil {
		return nil, err
	}
	if err := identifier.Validate("column", column); err != nil {
		return nil, err
	}

	fks, err := a.catalog.ForeignKeysReferencing(ctx, table, column)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys referencing %s.%s: %w", table, column, err)
	}

	annotated := make([]AnnotatedConstraint, 0, len(fks))
	for _, fk := range fks {
		annotated = append(annotated, AnnotatedConstraint{
			ForeignKeyConstraint: fk,
			Impact:               gradeConstraint(fk),
		})
	}
	return annotated, nil
}

// gradeConstraint grades cascade semantics: CASCADE deletes propagate data
// loss, SET NULL/SET DEFAULT silently mutate child rows, composite keys
// complicate recreation.
func gradeConstraint(fk database.ForeignKeyConstraint) ImpactLevel {
	switch fk.OnDelete {
	case database.ActionCascade:
		return ImpactCritical
	case database.ActionSetNull, database.ActionSetDefault:
		return ImpactHigh
	}
	if fk.IsComposite() {
		return ImpactHigh
	}
	return ImpactMedium
}

// DropConstraintSQL generates the statement disabling one constraint.
func DropConstraintSQL(fk database.ForeignKeyConstraint) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", fk.Table, fk.Name)
}

// AddConstraintSQL recreates a constraint with exactly the semantics
// captured before it was dropped, including MATCH and referential actions.
// Composite constraints are emitted as one named unit.
func AddConstraintSQL(fk database.ForeignKeyConstraint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		fk.Table, fk.Name,
		strings.Join(fk.Columns, ", "),
		fk.ReferencedTable,
		strings.Join(fk.ReferencedColumns, ", "))
	if fk.MatchType == "FULL" || fk.MatchType == "PARTIAL" {
		fmt.Fprintf(&b, " MATCH %s", fk.MatchType)
	}
	if fk.OnDelete != "" {
		fmt.Fprintf(&b, " ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		fmt.Fprintf(&b, " ON UPDATE %s", fk.OnUpdate)
	}
	return b.String()
}
