// Package postgres implements the database interfaces for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/safemigrate/safemigrate/database"
)

// Catalog implements database.CatalogProvider over information_schema and
// pg_catalog.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a PostgreSQL catalog provider over an open connection.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// TableExists reports whether the named table exists in the current schema.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name = $1
		  AND table_type = 'BASE TABLE'
	`, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return true, nil
}

// ColumnExists reports whether the column exists on the table.
func (c *Catalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = $1
		  AND column_name = $2
	`, table, column).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return true, nil
}

// Columns returns all columns for a given table.
func (c *Catalog) Columns(ctx context.Context, table string) ([]database.Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			COALESCE(
				(SELECT true
				 FROM information_schema.table_constraints tc
				 JOIN information_schema.key_column_usage kcu
				   ON tc.constraint_name = kcu.constraint_name
				   AND tc.table_schema = kcu.table_schema
				 WHERE tc.table_name = c.table_name
				   AND tc.table_schema = c.table_schema
				   AND tc.constraint_type = 'PRIMARY KEY'
				   AND kcu.column_name = c.column_name),
				false
			) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema()
		  AND c.table_name = $1
		ORDER BY c.ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		var nullable string
		var defaultVal sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &defaultVal, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		if defaultVal.Valid {
			d := defaultVal.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ForeignKeysReferencing returns every foreign key referencing (table,
// column). A composite constraint matching on any referenced column comes
// back whole, as a single entry with all column pairs in declaration order.
func (c *Catalog) ForeignKeysReferencing(ctx context.Context, table, column string) ([]database.ForeignKeyConstraint, error) {
	return c.foreignKeys(ctx, `
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.constraint_name IN (
			SELECT kcu2.constraint_name
			FROM information_schema.referential_constraints rc2
			JOIN information_schema.key_column_usage kcu2
			  ON kcu2.constraint_name = rc2.constraint_name
			  AND kcu2.constraint_schema = rc2.constraint_schema
			JOIN information_schema.key_column_usage rkcu2
			  ON rkcu2.constraint_name = rc2.unique_constraint_name
			  AND rkcu2.constraint_schema = rc2.unique_constraint_schema
			  AND rkcu2.ordinal_position = kcu2.position_in_unique_constraint
			WHERE rkcu2.table_name = $1
			  AND ($2 = '' OR rkcu2.column_name = $2)
		  )
	`, table, column)
}

// ForeignKeysOn returns every foreign key declared on the table.
func (c *Catalog) ForeignKeysOn(ctx context.Context, table string) ([]database.ForeignKeyConstraint, error) {
	return c.foreignKeys(ctx, `
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_name = $1
	`, table)
}

func (c *Catalog) foreignKeys(ctx context.Context, where string, args ...any) ([]database.ForeignKeyConstraint, error) {
	// Each referencing column pairs with exactly one referenced column via
	// position_in_unique_constraint; joining constraint_column_usage instead
	// would cross-join the column sets of composite constraints.
	query := `
		SELECT
			tc.constraint_name,
			tc.table_name,
			kcu.column_name,
			rkcu.table_name AS referenced_table,
			rkcu.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule,
			rc.match_option
		FROM information_schema.table_constraints tc
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_name = tc.constraint_name
		  AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		  AND kcu.table_schema = tc.table_schema
		JOIN information_schema.key_column_usage rkcu
		  ON rkcu.constraint_name = rc.unique_constraint_name
		  AND rkcu.constraint_schema = rc.unique_constraint_schema
		  AND rkcu.ordinal_position = kcu.position_in_unique_constraint
	` + where + `
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Group column pairs by constraint name so composite keys stay one unit.
	var order []string
	byName := make(map[string]*database.ForeignKeyConstraint)
	for rows.Next() {
		var name, srcTable, srcCol, refTable, refCol, delRule, updRule, match string
		if err := rows.Scan(&name, &srcTable, &srcCol, &refTable, &refCol, &delRule, &updRule, &match); err != nil {
			return nil, err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &database.ForeignKeyConstraint{
				Name:            name,
				Table:           srcTable,
				ReferencedTable: refTable,
				OnDelete:        database.ForeignKeyAction(delRule),
				OnUpdate:        database.ForeignKeyAction(updRule),
				MatchType:       match,
			}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, srcCol)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	constraints := make([]database.ForeignKeyConstraint, 0, len(order))
	for _, name := range order {
		constraints = append(constraints, *byName[name])
	}
	return constraints, nil
}

// ViewsReferencing returns views whose definition references the table (and
// column, when given). Matching is textual with identifier boundaries; the
// catalog does not track column-level view dependencies portably.
func (c *Catalog) ViewsReferencing(ctx context.Context, table, column string) ([]database.ViewDefinition, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, view_definition
		FROM information_schema.views
		WHERE table_schema = current_schema()
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var views []database.ViewDefinition
	for rows.Next() {
		var v database.ViewDefinition
		var def sql.NullString
		if err := rows.Scan(&v.Name, &def); err != nil {
			return nil, err
		}
		v.Definition = def.String
		if !referencesIdentifier(v.Definition, table) {
			continue
		}
		if column != "" && !referencesIdentifier(v.Definition, column) {
			continue
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// IndexesCovering returns every index on the table that includes the column.
func (c *Catalog) IndexesCovering(ctx context.Context, table, column string) ([]database.IndexDefinition, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT i.relname, ix.indisunique, a.attname, pg_get_indexdef(ix.indexrelid)
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE t.relname = $1
		  AND n.nspname = current_schema()
		ORDER BY i.relname, a.attnum
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var order []string
	byName := make(map[string]*database.IndexDefinition)
	for rows.Next() {
		var name, attname, def string
		var unique bool
		if err := rows.Scan(&name, &unique, &attname, &def); err != nil {
			return nil, err
		}
		idx, ok := byName[name]
		if !ok {
			idx = &database.IndexDefinition{Name: name, Table: table, Unique: unique, Definition: def}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, attname)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []database.IndexDefinition
	for _, name := range order {
		idx := byName[name]
		for _, col := range idx.Columns {
			if col == column {
				indexes = append(indexes, *idx)
				break
			}
		}
	}
	return indexes, nil
}

// CheckConstraintsMentioning returns CHECK constraints on the table whose
// expression mentions the column.
func (c *Catalog) CheckConstraintsMentioning(ctx context.Context, table, column string) ([]database.CheckConstraint, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		WHERE con.contype = 'c'
		  AND rel.relname = $1
		  AND n.nspname = current_schema()
		ORDER BY con.conname
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query check constraints for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var constraints []database.CheckConstraint
	for rows.Next() {
		var cc database.CheckConstraint
		if err := rows.Scan(&cc.Name, &cc.Expression); err != nil {
			return nil, err
		}
		cc.Table = table
		if referencesIdentifier(cc.Expression, column) {
			constraints = append(constraints, cc)
		}
	}
	return constraints, rows.Err()
}

// TriggersOn returns all user triggers attached to the table.
func (c *Catalog) TriggersOn(ctx context.Context, table string) ([]database.TriggerDefinition, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT trigger_name, action_timing, event_manipulation, action_statement
		FROM information_schema.triggers
		WHERE trigger_schema = current_schema()
		  AND event_object_table = $1
		ORDER BY trigger_name, event_manipulation
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []database.TriggerDefinition
	seen := make(map[string]bool)
	for rows.Next() {
		var t database.TriggerDefinition
		if err := rows.Scan(&t.Name, &t.Timing, &t.Event, &t.Body); err != nil {
			return nil, err
		}
		// information_schema reports one row per event; keep the first.
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		t.Table = table
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// TableStats returns planner row estimates and total relation size.
func (c *Catalog) TableStats(ctx context.Context, table string) (*database.TableStats, error) {
	var stats database.TableStats
	err := c.db.QueryRowContext(ctx, `
		SELECT GREATEST(c.reltuples, 0)::bigint,
		       pg_total_relation_size(c.oid) / 1048576.0
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1
		  AND n.nspname = current_schema()
	`, table).Scan(&stats.EstimatedRows, &stats.SizeMB)
	if err == sql.ErrNoRows {
		return &database.TableStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for %s: %w", table, err)
	}
	return &stats, nil
}

// referencesIdentifier reports whether the SQL text mentions the identifier
// as a whole word, quoted or not.
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
