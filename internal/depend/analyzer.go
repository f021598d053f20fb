// Package depend discovers the database objects that depend on a column:
// foreign keys referencing it, views selecting it, indexes covering it,
// CHECK constraints mentioning it and triggers on its table.
package depend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// Analyzer inspects catalog metadata through a CatalogProvider. All of its
// queries are read-only.
type Analyzer struct {
	catalog database.CatalogProvider
	log     zerolog.Logger
}

// NewAnalyzer creates a dependency analyzer. The catalog provider is
// required; passing nil is an API-misuse error and panics.
func NewAnalyzer(catalog database.CatalogProvider, log zerolog.Logger) *Analyzer {
	if catalog == nil {
		panic("depend: nil catalog provider")
	}
	return &Analyzer{catalog: catalog, log: log}
}

// AnalyzeColumnDependencies produces a DependencyReport for (table,
// column). Identifiers are validated before any catalog access; unknown
// tables or columns fail with a validation error rather than an empty
// report.
func (a *Analyzer) AnalyzeColumnDependencies(ctx context.Context, table, column string) (*DependencyReport, error) {
	if err := identifier.Validate("table", table); err != nil {
		return nil, err
	}
	if err := identifier.Validate("column", column); err != nil {
		return nil, err
	}

	exists, err := a.catalog.TableExists(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to verify table %s: %w", table, err)
	}
	if !exists {
		return nil, errdefs.ValidationError.New("table %q does not exist", table)
	}
	exists, err = a.catalog.ColumnExists(ctx, table, column)
	if err != nil {
		return nil, fmt.Errorf("failed to verify column %s.%s: %w", table, column, err)
	}
	if !exists {
		return nil, errdefs.ValidationError.New("column %q does not exist on table %q", column, table)
	}

	report := &DependencyReport{
		Table:        table,
		Column:       column,
		Dependencies: make(map[DependencyType][]Dependency),
	}

	if err := a.collectForeignKeys(ctx, report); err != nil {
		return nil, err
	}
	if err := a.collectViews(ctx, report); err != nil {
		return nil, err
	}
	if err := a.collectIndexes(ctx, report); err != nil {
		return nil, err
	}
	if err := a.collectCheckConstraints(ctx, report); err != nil {
		return nil, err
	}
	if err := a.collectTriggers(ctx, report); err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("table", table).
		Str("column", column).
		Int("dependencies", report.TotalDependencyCount()).
		Str("recommendation", string(report.RemovalRecommendation())).
		Msg("column dependency analysis complete")

	return report, nil
}

// collectForeignKeys records every FK whose referenced column is the
// analyzed column. These are always CRITICAL: dropping the column breaks
// referential integrity for every one of them.
func (a *Analyzer) collectForeignKeys(ctx context.Context, report *DependencyReport) error {
	fks, err := a.catalog.ForeignKeysReferencing(ctx, report.Table, report.Column)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys referencing %s.%s: %w", report.Table, report.Column, err)
	}
	for _, fk := range fks {
		report.Dependencies[DependencyForeignKey] = append(report.Dependencies[DependencyForeignKey], Dependency{
			ObjectName:  fk.Name,
			Type:        DependencyForeignKey,
			Definition:  fkDefinition(fk),
			Impact:      ImpactCritical,
			SourceTable: fk.Table,
		})
	}
	return nil
}

func (a *Analyzer) collectViews(ctx context.Context, report *DependencyReport) error {
	views, err := a.catalog.ViewsReferencing(ctx, report.Table, report.Column)
	if err != nil {
		return fmt.Errorf("failed to query views referencing %s.%s: %w", report.Table, report.Column, err)
	}
	for _, v := range views {
		report.Dependencies[DependencyView] = append(report.Dependencies[DependencyView], Dependency{
			ObjectName: v.Name,
			Type:       DependencyView,
			Definition: v.Definition,
			Impact:     ImpactHigh,
		})
	}
	return nil
}

func (a *Analyzer) collectIndexes(ctx context.Context, report *DependencyReport) error {
	indexes, err := a.catalog.IndexesCovering(ctx, report.Table, report.Column)
	if err != nil {
		return fmt.Errorf("failed to query indexes covering %s.%s: %w", report.Table, report.Column, err)
	}
	for _, idx := range indexes {
		impact := ImpactLow
		if idx.Unique {
			impact = ImpactMedium
		}
		report.Dependencies[DependencyIndex] = append(report.Dependencies[DependencyIndex], Dependency{
			ObjectName: idx.Name,
			Type:       DependencyIndex,
			Definition: idx.Definition,
			Impact:     impact,
		})
	}
	return nil
}

func (a *Analyzer) collectCheckConstraints(ctx context.Context, report *DependencyReport) error {
	checks, err := a.catalog.CheckConstraintsMentioning(ctx, report.Table, report.Column)
	if err != nil {
		return fmt.Errorf("failed to query check constraints on %s: %w", report.Table, err)
	}
	for _, cc := range checks {
		report.Dependencies[DependencyConstraint] = append(report.Dependencies[DependencyConstraint], Dependency{
			ObjectName: cc.Name,
			Type:       DependencyConstraint,
			Definition: cc.Expression,
			Impact:     ImpactMedium,
		})
	}
	return nil
}

// collectTriggers records every trigger on the table; ones whose body
// touches the analyzed column are graded MEDIUM, the rest LOW.
func (a *Analyzer) collectTriggers(ctx context.Context, report *DependencyReport) error {
	triggers, err := a.catalog.TriggersOn(ctx, report.Table)
	if err != nil {
		return fmt.Errorf("failed to query triggers on %s: %w", report.Table, err)
	}
	for _, tr := range triggers {
		impact := ImpactLow
		if referencesColumn(tr.Body, report.Column) {
			impact = ImpactMedium
		}
		report.Dependencies[DependencyTrigger] = append(report.Dependencies[DependencyTrigger], Dependency{
			ObjectName:  tr.Name,
			Type:        DependencyTrigger,
			Definition:  tr.Body,
			Impact:      impact,
			SourceTable: tr.Table,
		})
	}
	return nil
}

func fkDefinition(fk database.ForeignKeyConstraint) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		joinColumns(fk.Columns), fk.ReferencedTable, joinColumns(fk.ReferencedColumns), fk.OnDelete, fk.OnUpdate)
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func referencesColumn(body, column string) bool {
	if body == "" || column == "" {
		return false
	}
	// Word-boundary match; trigger bodies are short enough that a scan per
	// trigger is fine.
	for i := 0; i+len(column) <= len(body); i++ {
		if body[i:i+len(column)] != column {
			continue
		}
		beforeOK := i == 0 || !isIdentChar(body[i-1])
		afterOK := i+len(column) == len(body) || !isIdentChar(body[i+len(column)])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
