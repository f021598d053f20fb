// Package memory provides in-memory implementations of the database
// interfaces for tests: a catalog provider populated from fixtures and a
// recording connection manager with scriptable failures.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/safemigrate/safemigrate/database"
)

type tableFixture struct {
	columns     []database.Column
	foreignKeys []database.ForeignKeyConstraint
	indexes     []database.IndexDefinition
	checks      []database.CheckConstraint
	triggers    []database.TriggerDefinition
	stats       database.TableStats
}

// Catalog is an in-memory database.CatalogProvider populated by tests.
type Catalog struct {
	tables map[string]*tableFixture
	views  []database.ViewDefinition
}

// NewCatalog creates an empty in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*tableFixture)}
}

// AddTable registers a table with its columns.
func (c *Catalog) AddTable(name string, columns ...database.Column) {
	c.tables[name] = &tableFixture{columns: columns}
}

// AddForeignKey attaches a foreign key constraint to its source table. The
// source table is registered implicitly if absent.
func (c *Catalog) AddForeignKey(fk database.ForeignKeyConstraint) {
	t := c.ensure(fk.Table)
	t.foreignKeys = append(t.foreignKeys, fk)
}

// AddView registers a view.
func (c *Catalog) AddView(view database.ViewDefinition) {
	c.views = append(c.views, view)
}

// AddIndex attaches an index to its table.
func (c *Catalog) AddIndex(idx database.IndexDefinition) {
	t := c.ensure(idx.Table)
	t.indexes = append(t.indexes, idx)
}

// AddCheckConstraint attaches a CHECK constraint to its table.
func (c *Catalog) AddCheckConstraint(cc database.CheckConstraint) {
	t := c.ensure(cc.Table)
	t.checks = append(t.checks, cc)
}

// AddTrigger attaches a trigger to its table.
func (c *Catalog) AddTrigger(tr database.TriggerDefinition) {
	t := c.ensure(tr.Table)
	t.triggers = append(t.triggers, tr)
}

// SetStats records row-count and size estimates for a table.
func (c *Catalog) SetStats(table string, stats database.TableStats) {
	t := c.ensure(table)
	t.stats = stats
}

func (c *Catalog) ensure(table string) *tableFixture {
	t, ok := c.tables[table]
	if !ok {
		t = &tableFixture{}
		c.tables[table] = t
	}
	return t
}

// TableExists reports whether the table was registered.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	_, ok := c.tables[table]
	return ok, nil
}

// ColumnExists reports whether the column was registered on the table.
func (c *Catalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	t, ok := c.tables[table]
	if !ok {
		return false, nil
	}
	for _, col := range t.columns {
		if col.Name == column {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns the registered columns of a table.
func (c *Catalog) Columns(ctx context.Context, table string) ([]database.Column, error) {
	t, ok := c.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return append([]database.Column(nil), t.columns...), nil
}

// ForeignKeysReferencing scans all registered constraints for ones whose
// referenced column is (table, column).
func (c *Catalog) ForeignKeysReferencing(ctx context.Context, table, column string) ([]database.ForeignKeyConstraint, error) {
	var matches []database.ForeignKeyConstraint
	for _, t := range c.tables {
		for _, fk := range t.foreignKeys {
			if fk.ReferencedTable != table {
				continue
			}
			if column == "" {
				matches = append(matches, fk)
				continue
			}
			for _, refCol := range fk.ReferencedColumns {
				if refCol == column {
					matches = append(matches, fk)
					break
				}
			}
		}
	}
	return matches, nil
}

// ForeignKeysOn returns constraints declared on the table.
func (c *Catalog) ForeignKeysOn(ctx context.Context, table string) ([]database.ForeignKeyConstraint, error) {
	t, ok := c.tables[table]
	if !ok {
		return nil, nil
	}
	return append([]database.ForeignKeyConstraint(nil), t.foreignKeys...), nil
}

// ViewsReferencing returns views whose definition mentions the table (and
// column, when given).
func (c *Catalog) ViewsReferencing(ctx context.Context, table, column string) ([]database.ViewDefinition, error) {
	var matches []database.ViewDefinition
	for _, v := range c.views {
		if !referencesIdentifier(v.Definition, table) {
			continue
		}
		if column != "" && !referencesIdentifier(v.Definition, column) {
			continue
		}
		matches = append(matches, v)
	}
	return matches, nil
}

// IndexesCovering returns indexes on the table that include the column.
func (c *Catalog) IndexesCovering(ctx context.Context, table, column string) ([]database.IndexDefinition, error) {
	t, ok := c.tables[table]
	if !ok {
		return nil, nil
	}
	var matches []database.IndexDefinition
	for _, idx := range t.indexes {
		for _, col := range idx.Columns {
			if col == column {
				matches = append(matches, idx)
				break
			}
		}
	}
	return matches, nil
}

// CheckConstraintsMentioning returns CHECK constraints whose expression
// mentions the column.
func (c *Catalog) CheckConstraintsMentioning(ctx context.Context, table, column string) ([]database.CheckConstraint, error) {
	t, ok := c.tables[table]
	if !ok {
		return nil, nil
	}
	var matches []database.CheckConstraint
	for _, cc := range t.checks {
		if referencesIdentifier(cc.Expression, column) {
			matches = append(matches, cc)
		}
	}
	return matches, nil
}

// TriggersOn returns triggers attached to the table.
func (c *Catalog) TriggersOn(ctx context.Context, table string) ([]database.TriggerDefinition, error) {
	t, ok := c.tables[table]
	if !ok {
		return nil, nil
	}
	return append([]database.TriggerDefinition(nil), t.triggers...), nil
}

// TableStats returns the configured estimates.
func (c *Catalog) TableStats(ctx context.Context, table string) (*database.TableStats, error) {
	t, ok := c.tables[table]
	if !ok {
		return &database.TableStats{}, nil
	}
	stats := t.stats
	return &stats, nil
}

func referencesIdentifier(sqlText, ident string) bool {
	if ident == "" {
		return false
	}
	pattern := `(?i)(^|[^A-Za-z0-9_])"?` + regexp.QuoteMeta(ident) + `"?($|[^A-Za-z0-9_])`
	matched, err := regexp.MatchString(pattern, sqlText)
	if err != nil {
		return strings.Contains(strings.ToLower(sqlText), strings.ToLower(ident))
	}
	return matched
}
