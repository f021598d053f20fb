package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ConnectionManager implements database.ConnectionManager for SQLite.
// Savepoint syntax matches PostgreSQL, so the shape mirrors the postgres
// manager with SQLite identifier quoting.
type ConnectionManager struct {
	db *sql.DB
	tx *sql.Tx
}

// NewConnectionManager wraps an already-open database handle.
func NewConnectionManager(db *sql.DB) *ConnectionManager {
	return &ConnectionManager{db: db}
}

// DB exposes the underlying handle.
func (m *ConnectionManager) DB() *sql.DB {
	return m.db
}

// Close closes the underlying connection.
func (m *ConnectionManager) Close() error {
	return m.db.Close()
}

// BeginTransaction opens a transaction. Nested transactions are rejected.
func (m *ConnectionManager) BeginTransaction(ctx context.Context) error {
	if m.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	m.tx = tx
	return nil
}

// CommitTransaction commits the open transaction.
func (m *ConnectionManager) CommitTransaction(ctx context.Context) error {
	if m.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := m.tx.Commit()
	m.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the open transaction; no-op without one.
func (m *ConnectionManager) RollbackTransaction(ctx context.Context) error {
	if m.tx == nil {
		return nil
	}
	err := m.tx.Rollback()
	m.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Savepoint creates a named savepoint in the open transaction.
func (m *ConnectionManager) Savepoint(ctx context.Context, name string) error {
	if m.tx == nil {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	if _, err := m.tx.ExecContext(ctx, "SAVEPOINT "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackToSavepoint rolls back to a named savepoint.
func (m *ConnectionManager) RollbackToSavepoint(ctx context.Context, name string) error {
	if m.tx == nil {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	if _, err := m.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint releases a named savepoint.
func (m *ConnectionManager) ReleaseSavepoint(ctx context.Context, name string) error {
	if m.tx == nil {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	if _, err := m.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// ExecuteQuery runs one statement, joining the open transaction if any.
func (m *ConnectionManager) ExecuteQuery(ctx context.Context, query string, args ...any) error {
	var err error
	if m.tx != nil {
		_, err = m.tx.ExecContext(ctx, query, args...)
	} else {
		_, err = m.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return nil
}

// QueryValue scans a single value, reporting found=false on no rows.
func (m *ConnectionManager) QueryValue(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	var row *sql.Row
	if m.tx != nil {
		row = m.tx.QueryRowContext(ctx, query, args...)
	} else {
		row = m.db.QueryRowContext(ctx, query, args...)
	}
	err := row.Scan(dest)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	return true, nil
}
