package database

import "context"

// ConnectionManager is the transactional execution seam. The engines run
// DDL through it so that tests can substitute a recording fake and so that
// savepoint handling stays in one place.
//
// Implementations hold at most one open transaction at a time; savepoints
// are scoped to that transaction and are never shared across goroutines.
type ConnectionManager interface {
	// BeginTransaction opens a transaction. It fails if one is already open.
	BeginTransaction(ctx context.Context) error

	// CommitTransaction commits the open transaction.
	CommitTransaction(ctx context.Context) error

	// RollbackTransaction rolls back the open transaction. Rolling back
	// with no open transaction is a no-op.
	RollbackTransaction(ctx context.Context) error

	// Savepoint creates a named savepoint inside the open transaction.
	Savepoint(ctx context.Context, name string) error

	// RollbackToSavepoint rolls back to a named savepoint without ending
	// the transaction.
	RollbackToSavepoint(ctx context.Context, name string) error

	// ReleaseSavepoint releases a named savepoint.
	ReleaseSavepoint(ctx context.Context, name string) error

	// ExecuteQuery runs a single statement. Inside an open transaction the
	// statement joins it; otherwise it autocommits.
	ExecuteQuery(ctx context.Context, query string, args ...any) error

	// QueryValue runs a query expected to return at most one row with one
	// column and scans it into dest. It returns ErrNoRows-equivalent
	// behavior via found=false rather than an error.
	QueryValue(ctx context.Context, dest any, query string, args ...any) (found bool, err error)
}
