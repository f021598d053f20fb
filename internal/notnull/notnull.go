// Package notnull plans adding NOT NULL columns to populated tables. A
// pluggable default-value strategy supplies the backfill expression; the
// planner phases the change (add nullable, backfill, SET NOT NULL) whenever
// the table already holds rows.
package notnull

import (
	"context"
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/fk"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// Strategy supplies the SQL expression used to populate the new column in
// existing rows.
type Strategy interface {
	Name() string
	DefaultExpression(col database.Column) (string, error)
}

// StaticStrategy backfills every row with one SQL literal.
type StaticStrategy struct {
	Literal string
}

// Name implements Strategy.
func (s StaticStrategy) Name() string { return "static" }

// DefaultExpression implements Strategy.
func (s StaticStrategy) DefaultExpression(database.Column) (string, error) {
	return validatedExpression(s.Literal)
}

// ExpressionStrategy backfills rows with an arbitrary SQL expression, for
// example now() or gen_random_uuid().
type ExpressionStrategy struct {
	Expression string
}

// Name implements Strategy.
func (s ExpressionStrategy) Name() string { return "expression" }

// DefaultExpression implements Strategy.
func (s ExpressionStrategy) DefaultExpression(database.Column) (string, error) {
	return validatedExpression(s.Expression)
}

// CopyColumnStrategy backfills the new column from an existing column on
// the same table.
type CopyColumnStrategy struct {
	SourceColumn string
}

// Name implements Strategy.
func (s CopyColumnStrategy) Name() string { return "copy_column" }

// DefaultExpression implements Strategy.
func (s CopyColumnStrategy) DefaultExpression(database.Column) (string, error) {
	if err := identifier.Validate("column", s.SourceColumn); err != nil {
		return "", err
	}
	return s.SourceColumn, nil
}

// validatedExpression rejects expressions that do not parse as SQL before
// they are embedded in an UPDATE.
func validatedExpression(expr string) (string, error) {
	if expr == "" {
		return "", errdefs.ValidationError.New("default expression is required")
	}
	if _, err := pg_query.Parse("SELECT " + expr); err != nil {
		return "", errdefs.ValidationError.Wrap(err, "invalid default expression %q", expr)
	}
	return expr, nil
}

// Plan is the ordered step list adding one NOT NULL column. Phased is true
// when the table holds rows and the change runs in three steps instead of
// one.
type Plan struct {
	Table    string             `json:"table"`
	Column   string             `json:"column"`
	Strategy string             `json:"strategy"`
	Phased   bool               `json:"phased"`
	Steps    []fk.MigrationStep `json:"steps"`
}

// Planner builds NOT NULL plans from catalog metadata.
type Planner struct {
	catalog database.CatalogProvider
	log     zerolog.Logger
}

// NewPlanner creates a planner. A nil catalog is API misuse.
func NewPlanner(catalog database.CatalogProvider, log zerolog.Logger) *Planner {
	if catalog == nil {
		panic("notnull: catalog provider is required")
	}
	return &Planner{catalog: catalog, log: log.With().Str("component", "notnull").Logger()}
}

// PlanNotNullColumn builds the plan for adding column to table with NOT
// NULL. Populated tables get the phased form so the constraint is only
// enforced after every row is backfilled.
func (p *Planner) PlanNotNullColumn(ctx context.Context, table string, column database.Column, strategy Strategy) (*Plan, error) {
	if err := identifier.ValidateAll(map[string]string{
		"table":  table,
		"column": column.Name,
	}); err != nil {
		return nil, err
	}
	if column.Type == "" {
		return nil, errdefs.ValidationError.New("column type is required")
	}
	if strategy == nil {
		return nil, errdefs.ValidationError.New("a default-value strategy is required")
	}

	exists, err := p.catalog.TableExists(ctx, table)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to check table %q", table)
	}
	if !exists {
		return nil, errdefs.ValidationError.New("table %q does not exist", table)
	}
	taken, err := p.catalog.ColumnExists(ctx, table, column.Name)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to check column %q", column.Name)
	}
	if taken {
		return nil, errdefs.ValidationError.New("column %q already exists on %q", column.Name, table)
	}

	expr, err := strategy.DefaultExpression(column)
	if err != nil {
		return nil, err
	}

	stats, err := p.catalog.TableStats(ctx, table)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to load stats for %q", table)
	}

	plan := &Plan{
		Table:    table,
		Column:   column.Name,
		Strategy: strategy.Name(),
		Phased:   stats.EstimatedRows > 0,
	}

	dropColumn := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column.Name)
	if !plan.Phased {
		plan.Steps = []fk.MigrationStep{{
			Description:     fmt.Sprintf("add NOT NULL column %s to empty table %s", column.Name, table),
			SQLCommand:      fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NOT NULL DEFAULT %s", table, column.Name, column.Type, expr),
			RollbackCommand: dropColumn,
		}}
		return plan, nil
	}

	plan.Steps = []fk.MigrationStep{
		{
			Description:     fmt.Sprintf("add nullable column %s to %s", column.Name, table),
			SQLCommand:      fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column.Name, column.Type),
			RollbackCommand: dropColumn,
		},
		{
			Description: fmt.Sprintf("backfill %s.%s via %s strategy", table, column.Name, strategy.Name()),
			SQLCommand:  fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL", table, column.Name, expr, column.Name),
		},
		{
			Description:     fmt.Sprintf("enforce NOT NULL on %s.%s", table, column.Name),
			SQLCommand:      fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column.Name),
			RollbackCommand: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, column.Name),
		},
	}

	p.log.Debug().
		Str("table", table).
		Str("column", column.Name).
		Int64("estimated_rows", stats.EstimatedRows).
		Msg("phased NOT NULL plan built")
	return plan, nil
}

// ValidateBackfill checks that no row still holds NULL in the column. It is
// meant to run between the backfill and SET NOT NULL steps.
func (p *Planner) ValidateBackfill(ctx context.Context, conn database.ConnectionManager, table, column string) (bool, error) {
	if err := identifier.ValidateAll(map[string]string{
		"table":  table,
		"column": column,
	}); err != nil {
		return false, err
	}

	var remaining int64
	found, err := conn.QueryValue(ctx, &remaining,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, column))
	if err != nil {
		return false, errdefs.ExecutionError.Wrap(err, "failed to count NULL rows in %s.%s", table, column)
	}
	if !found {
		return false, errdefs.ExecutionError.New("NULL count query returned no rows")
	}
	return remaining == 0, nil
}
