// Package database defines the shared schema metadata types and the
// provider interfaces the migration-safety engines are built against.
//
// Engines never talk to database/sql directly; they consume a
// CatalogProvider for read-only introspection and a ConnectionManager for
// transactional DDL execution. Real implementations live in the postgres
// and sqlite subpackages, and an in-memory fake for tests lives in memory.
package database

import "context"

// ForeignKeyAction is a referential action attached to a foreign key.
type ForeignKeyAction string

const (
	ActionCascade    ForeignKeyAction = "CASCADE"
	ActionRestrict   ForeignKeyAction = "RESTRICT"
	ActionSetNull    ForeignKeyAction = "SET NULL"
	ActionSetDefault ForeignKeyAction = "SET DEFAULT"
	ActionNoAction   ForeignKeyAction = "NO ACTION"
)

// ForeignKeyConstraint describes one named foreign key constraint.
// Composite keys carry multiple entries in Columns/ReferencedColumns;
// the constraint is always handled as a single named unit.
type ForeignKeyConstraint struct {
	Name              string           `json:"name"`
	Table             string           `json:"table"`
	Columns           []string         `json:"columns"`
	ReferencedTable   string           `json:"referenced_table"`
	ReferencedColumns []string         `json:"referenced_columns"`
	OnDelete          ForeignKeyAction `json:"on_delete"`
	OnUpdate          ForeignKeyAction `json:"on_update"`
	MatchType         string           `json:"match_type,omitempty"`
}

// IsComposite reports whether the constraint spans more than one column.
func (fk ForeignKeyConstraint) IsComposite() bool {
	return len(fk.Columns) > 1
}

// ViewDefinition describes a view and its defining query.
type ViewDefinition struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// IndexDefinition describes an index and the columns it covers.
type IndexDefinition struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Definition string   `json:"definition,omitempty"`
}

// CheckConstraint describes a CHECK constraint and its expression.
type CheckConstraint struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Expression string `json:"expression"`
}

// TriggerDefinition describes a trigger attached to a table.
type TriggerDefinition struct {
	Name   string `json:"name"`
	Table  string `json:"table"`
	Timing string `json:"timing,omitempty"` // BEFORE, AFTER, INSTEAD OF
	Event  string `json:"event,omitempty"`  // INSERT, UPDATE, DELETE, ...
	Body   string `json:"body"`
}

// TableStats carries size signals used by risk scoring.
type TableStats struct {
	EstimatedRows int64   `json:"estimated_rows"`
	SizeMB        float64 `json:"size_mb"`
}

// Column represents a table column.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// CatalogProvider is the read-only introspection seam the analyzers are
// built against. All methods issue catalog reads only; none mutate state.
type CatalogProvider interface {
	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// ColumnExists reports whether the named column exists on the table.
	ColumnExists(ctx context.Context, table, column string) (bool, error)

	// Columns returns all columns of a table.
	Columns(ctx context.Context, table string) ([]Column, error)

	// ForeignKeysReferencing returns every FK constraint whose referenced
	// column is (table, column).
	ForeignKeysReferencing(ctx context.Context, table, column string) ([]ForeignKeyConstraint, error)

	// ForeignKeysOn returns every FK constraint declared on the table.
	ForeignKeysOn(ctx context.Context, table string) ([]ForeignKeyConstraint, error)

	// ViewsReferencing returns every view whose defining query references
	// the column. An empty column matches any reference to the table.
	ViewsReferencing(ctx context.Context, table, column string) ([]ViewDefinition, error)

	// IndexesCovering returns every index that covers the column.
	IndexesCovering(ctx context.Context, table, column string) ([]IndexDefinition, error)

	// CheckConstraintsMentioning returns every CHECK constraint whose
	// expression mentions the column.
	CheckConstraintsMentioning(ctx context.Context, table, column string) ([]CheckConstraint, error)

	// TriggersOn returns every trigger attached to the table.
	TriggersOn(ctx context.Context, table string) ([]TriggerDefinition, error)

	// TableStats returns row-count and size estimates for the table.
	TableStats(ctx context.Context, table string) (*TableStats, error)
}
