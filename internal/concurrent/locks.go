// Package concurrent guarantees at-most-one migration per schema. It owns
// the schema-scoped lock, the priority queue that serializes queued
// migrations, deadlock detection over the lock-wait graph, and the atomic
// batch executor.
package concurrent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// LockInfo describes one held schema lock. Dependencies lists the schemas
// this lock's holder is currently waiting on; the deadlock detector builds
// the wait-for graph from these lists.
type LockInfo struct {
	SchemaName      string    `json:"schema_name"`
	HolderProcessID string    `json:"holder_process_id"`
	AcquiredAt      time.Time `json:"acquired_at"`
	Dependencies    []string  `json:"dependencies,omitempty"`
}

// LockStore persists one lock row per schema. It is the only durable state
// this package owns.
type LockStore interface {
	// Holder returns the current holder process id for the schema.
	Holder(ctx context.Context, schema string) (holder string, found bool, err error)
	// Insert records a new lock. It fails if a lock row already exists.
	Insert(ctx context.Context, info LockInfo) error
	// Delete removes the lock row if it is held by holder. Deleting an
	// absent lock is not an error.
	Delete(ctx context.Context, schema, holder string) error
}

// LockManager serializes migrations per schema through a LockStore.
type LockManager struct {
	store     LockStore
	processID string
	retry     time.Duration
	log       zerolog.Logger
}

// NewLockManager creates a lock manager. A nil store is API misuse.
func NewLockManager(store LockStore, processID string, log zerolog.Logger) *LockManager {
	if store == nil {
		panic("concurrent: lock store is required")
	}
	return &LockManager{
		store:     store,
		processID: processID,
		retry:     100 * time.Millisecond,
		log:       log.With().Str("component", "locks").Logger(),
	}
}

// AcquireMigrationLock tries to take the schema lock, retrying until the
// timeout elapses. It returns false, never an error, when the lock is held
// by another process or the store fails: callers treat false as "someone
// else is migrating".
func (m *LockManager) AcquireMigrationLock(ctx context.Context, schema string, timeout time.Duration) bool {
	if err := identifier.Validate("schema", schema); err != nil {
		m.log.Warn().Err(err).Str("schema", schema).Msg("rejecting lock request for invalid schema name")
		return false
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, err := m.tryAcquire(ctx, schema)
		if err != nil {
			m.log.Warn().Err(err).Str("schema", schema).Msg("lock acquisition attempt failed")
			return false
		}
		if acquired {
			return true
		}
		if time.Now().Add(m.retry).After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.retry):
		}
	}
}

func (m *LockManager) tryAcquire(ctx context.Context, schema string) (bool, error) {
	holder, found, err := m.store.Holder(ctx, schema)
	if err != nil {
		return false, err
	}
	if found {
		// Re-acquiring our own lock is a no-op success.
		return holder == m.processID, nil
	}
	err = m.store.Insert(ctx, LockInfo{
		SchemaName:      schema,
		HolderProcessID: m.processID,
		AcquiredAt:      time.Now().UTC(),
	})
	if err != nil {
		// Lost the insert race; the next retry re-reads the holder.
		return false, nil
	}
	return true, nil
}

// ReleaseMigrationLock removes this process's lock on the schema. It is
// idempotent and never returns an error: store failures are logged and
// swallowed so cleanup paths cannot themselves fail.
func (m *LockManager) ReleaseMigrationLock(ctx context.Context, schema string) {
	if err := m.store.Delete(ctx, schema, m.processID); err != nil {
		m.log.Warn().Err(err).Str("schema", schema).Msg("failed to release migration lock")
	}
}

// WithMigrationLock runs fn while holding the schema lock, releasing it on
// every exit path. Failure to acquire returns an ExecutionError whose text
// names the concurrent migration.
func (m *LockManager) WithMigrationLock(ctx context.Context, schema string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if !m.AcquireMigrationLock(ctx, schema, timeout) {
		return errdefs.ExecutionError.New("concurrent migration already in progress for schema %q", schema)
	}
	defer m.ReleaseMigrationLock(ctx, schema)
	return fn(ctx)
}

// SQLLockStore keeps lock rows in a migration_locks table.
type SQLLockStore struct {
	conn database.ConnectionManager
}

// NewSQLLockStore wraps a connection manager as a lock store.
func NewSQLLockStore(conn database.ConnectionManager) *SQLLockStore {
	return &SQLLockStore{conn: conn}
}

// EnsureSchema creates the lock table if it does not exist.
func (s *SQLLockStore) EnsureSchema(ctx context.Context) error {
	return s.conn.ExecuteQuery(ctx, `
		CREATE TABLE IF NOT EXISTS migration_locks (
			schema_name TEXT PRIMARY KEY,
			holder_process_id TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL
		)`)
}

// Holder implements LockStore.
func (s *SQLLockStore) Holder(ctx context.Context, schema string) (string, bool, error) {
	var holder string
	found, err := s.conn.QueryValue(ctx, &holder,
		"SELECT holder_process_id FROM migration_locks WHERE schema_name = $1", schema)
	if err != nil {
		return "", false, err
	}
	return holder, found, nil
}

// Insert implements LockStore. The primary key makes concurrent inserts for
// the same schema fail, which the manager treats as losing the race.
func (s *SQLLockStore) Insert(ctx context.Context, info LockInfo) error {
	return s.conn.ExecuteQuery(ctx,
		"INSERT INTO migration_locks (schema_name, holder_process_id, acquired_at) VALUES ($1, $2, $3)",
		info.SchemaName, info.HolderProcessID, info.AcquiredAt)
}

// Delete implements LockStore.
func (s *SQLLockStore) Delete(ctx context.Context, schema, holder string) error {
	return s.conn.ExecuteQuery(ctx,
		"DELETE FROM migration_locks WHERE schema_name = $1 AND holder_process_id = $2",
		schema, holder)
}

// MemoryLockStore is an in-process LockStore for tests and single-process
// tooling.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]LockInfo
}

// NewMemoryLockStore creates an empty in-memory lock store.
func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{locks: make(map[string]LockInfo)}
}

// Holder implements LockStore.
func (s *MemoryLockStore) Holder(_ context.Context, schema string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.locks[schema]
	return info.HolderProcessID, ok, nil
}

// Insert implements LockStore.
func (s *MemoryLockStore) Insert(_ context.Context, info LockInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[info.SchemaName]; ok {
		return errdefs.ExecutionError.New("lock already held for schema %q", info.SchemaName)
	}
	s.locks[info.SchemaName] = info
	return nil
}

// Delete implements LockStore.
func (s *MemoryLockStore) Delete(_ context.Context, schema, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.locks[schema]; ok && info.HolderProcessID == holder {
		delete(s.locks, schema)
	}
	return nil
}

// Held reports whether any process holds the schema lock.
func (s *MemoryLockStore) Held(schema string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[schema]
	return ok
}
