// Package sqlite implements the database interfaces for SQLite. It backs
// local runs and the integration-style tests that need real DDL behavior
// without a running PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/safemigrate/safemigrate/database"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Open opens a SQLite database. Connection strings starting with libsql://
// are routed to the libsql driver; everything else (file paths, :memory:,
// file: URLs) uses the embedded driver.
func Open(connStr string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(strings.ToLower(connStr), "libsql://") {
		driver = "libsql"
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// Catalog implements database.CatalogProvider over sqlite_master and the
// table_info/foreign_key_list/index_list pragmas.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a SQLite catalog provider over an open connection.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// TableExists reports whether the named table exists.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&one)
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
	columns, err := c.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, col := range columns {
		if col.Name == column {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns all columns for a given table.
func (c *Catalog) Columns(ctx context.Context, table string) ([]database.Column, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		col := database.Column{
			Name:         name,
			Type:         strings.ToLower(colType),
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
		}
		if defaultVal.Valid {
			d := defaultVal.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ForeignKeysReferencing scans the foreign_key_list pragma of every table
// for constraints whose referenced column is (table, column). SQLite does
// not name inline foreign keys, so names are synthesized deterministically.
func (c *Catalog) ForeignKeysReferencing(ctx context.Context, table, column string) ([]database.ForeignKeyConstraint, error) {
	tables, err := c.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	var matches []database.ForeignKeyConstraint
	for _, source := range tables {
		fks, err := c.ForeignKeysOn(ctx, source)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
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

// ForeignKeysOn returns every foreign key declared on the table, grouping
// pragma rows by constraint id so composite keys stay one unit.
func (c *Catalog) ForeignKeysOn(ctx context.Context, table string) ([]database.ForeignKeyConstraint, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var order []int
	byID := make(map[int]*database.ForeignKeyConstraint)
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &database.ForeignKeyConstraint{
				Name:            fmt.Sprintf("%s_fk_%d", table, id),
				Table:           table,
				ReferencedTable: refTable,
				OnDelete:        database.ForeignKeyAction(onDelete),
				OnUpdate:        database.ForeignKeyAction(onUpdate),
				MatchType:       match,
			}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	constraints := make([]database.ForeignKeyConstraint, 0, len(order))
	for _, id := range order {
		constraints = append(constraints, *byID[id])
	}
	return constraints, nil
}

// ViewsReferencing returns views whose defining SQL references the table
// (and column, when given).
func (c *Catalog) ViewsReferencing(ctx context.Context, table, column string) ([]database.ViewDefinition, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'view' ORDER BY name`)
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
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes for %s: %w", table, err)
	}

	type indexEntry struct {
		name   string
		unique bool
	}
	var entries []indexEntry
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			_ = rows.Close()
			return nil, err
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	var indexes []database.IndexDefinition
	for _, entry := range entries {
		columns, err := c.indexColumns(ctx, entry.name)
		if err != nil {
			return nil, err
		}
		covers := false
		for _, col := range columns {
			if col == column {
				covers = true
				break
			}
		}
		if covers {
			indexes = append(indexes, database.IndexDefinition{
				Name:    entry.name,
				Table:   table,
				Columns: columns,
				Unique:  entry.unique,
			})
		}
	}
	return indexes, nil
}

func (c *Catalog) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, quoteIdent(index)))
	if err != nil {
		return nil, fmt.Errorf("failed to query index info for %s: %w", index, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

var checkClauseRe = regexp.MustCompile(`(?is)(?:CONSTRAINT\s+("?\w+"?)\s+)?CHECK\s*\(([^)]*)\)`)

// CheckConstraintsMentioning extracts CHECK clauses from the table's CREATE
// statement; SQLite has no catalog view for them.
func (c *Catalog) CheckConstraintsMentioning(ctx context.Context, table, column string) ([]database.CheckConstraint, error) {
	var createSQL sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&createSQL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table definition for %s: %w", table, err)
	}

	var constraints []database.CheckConstraint
	for i, match := range checkClauseRe.FindAllStringSubmatch(createSQL.String, -1) {
		name := strings.Trim(match[1], `"`)
		if name == "" {
			name = fmt.Sprintf("%s_check_%d", table, i)
		}
		expr := strings.TrimSpace(match[2])
		if referencesIdentifier(expr, column) {
			constraints = append(constraints, database.CheckConstraint{
				Name:       name,
				Table:      table,
				Expression: expr,
			})
		}
	}
	return constraints, nil
}

// TriggersOn returns all triggers attached to the table.
func (c *Catalog) TriggersOn(ctx context.Context, table string) ([]database.TriggerDefinition, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'trigger' AND tbl_name = ? ORDER BY name`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []database.TriggerDefinition
	for rows.Next() {
		var t database.TriggerDefinition
		var body sql.NullString
		if err := rows.Scan(&t.Name, &body); err != nil {
			return nil, err
		}
		t.Table = table
		t.Body = body.String
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// TableStats counts rows directly; SQLite keeps no planner estimate that is
// cheaper than COUNT(*) for the database sizes it serves here.
func (c *Catalog) TableStats(ctx context.Context, table string) (*database.TableStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(table))).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return &database.TableStats{EstimatedRows: count}, nil
}

func (c *Catalog) tableNames(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
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
