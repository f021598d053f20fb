package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ConnectionManager is a recording database.ConnectionManager for tests.
// It journals every statement, tracks transaction and savepoint state, and
// fails any statement containing a configured substring.
type ConnectionManager struct {
	mu sync.Mutex

	executed   []string
	inTx       bool
	savepoints []string

	failSubstrings map[string]error
	stubValues     map[string]any
}

// NewConnectionManager creates an empty recording manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		failSubstrings: make(map[string]error),
		stubValues:     make(map[string]any),
	}
}

// FailOn makes any statement containing the substring fail.
func (m *ConnectionManager) FailOn(substring string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSubstrings[substring] = fmt.Errorf("injected failure on %q", substring)
}

// FailOnWith makes any statement containing the substring fail with err.
func (m *ConnectionManager) FailOnWith(substring string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSubstrings[substring] = err
}

// StubValue makes QueryValue return the given value for any query
// containing the substring.
func (m *ConnectionManager) StubValue(querySubstring string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubValues[querySubstring] = value
}

// Executed returns a copy of the statement journal, in execution order.
// Transaction and savepoint control statements are included.
func (m *ConnectionManager) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executed...)
}

// ExecutedContaining returns journal entries containing the substring.
func (m *ConnectionManager) ExecutedContaining(substring string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []string
	for _, stmt := range m.executed {
		if strings.Contains(stmt, substring) {
			matches = append(matches, stmt)
		}
	}
	return matches
}

// InTransaction reports whether a transaction is currently open.
func (m *ConnectionManager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inTx
}

func (m *ConnectionManager) record(stmt string) error {
	m.executed = append(m.executed, stmt)
	for substring, err := range m.failSubstrings {
		if strings.Contains(stmt, substring) {
			return err
		}
	}
	return nil
}

// BeginTransaction opens a transaction.
func (m *ConnectionManager) BeginTransaction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTx {
		return fmt.Errorf("transaction already open")
	}
	m.inTx = true
	m.savepoints = nil
	return m.record("BEGIN")
}

// CommitTransaction commits the open transaction.
func (m *ConnectionManager) CommitTransaction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return fmt.Errorf("no open transaction")
	}
	m.inTx = false
	m.savepoints = nil
	return m.record("COMMIT")
}

// RollbackTransaction rolls back the open transaction; no-op without one.
func (m *ConnectionManager) RollbackTransaction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return nil
	}
	m.inTx = false
	m.savepoints = nil
	return m.record("ROLLBACK")
}

// Savepoint creates a named savepoint.
func (m *ConnectionManager) Savepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	m.savepoints = append(m.savepoints, name)
	return m.record("SAVEPOINT " + name)
}

// RollbackToSavepoint rolls back to a named savepoint.
func (m *ConnectionManager) RollbackToSavepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	found := false
	for i, sp := range m.savepoints {
		if sp == name {
			m.savepoints = m.savepoints[:i+1]
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("savepoint %s does not exist", name)
	}
	return m.record("ROLLBACK TO SAVEPOINT " + name)
}

// ReleaseSavepoint releases a named savepoint.
func (m *ConnectionManager) ReleaseSavepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	for i, sp := range m.savepoints {
		if sp == name {
			m.savepoints = append(m.savepoints[:i], m.savepoints[i+1:]...)
			return m.record("RELEASE SAVEPOINT " + name)
		}
	}
	return fmt.Errorf("savepoint %s does not exist", name)
}

// ExecuteQuery journals the statement and applies scripted failures.
func (m *ConnectionManager) ExecuteQuery(ctx context.Context, query string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(query)
}

// QueryValue returns a stubbed value when one matches, otherwise not found.
func (m *ConnectionManager) QueryValue(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(query); err != nil {
		return false, err
	}
	for substring, value := range m.stubValues {
		if strings.Contains(query, substring) {
			switch d := dest.(type) {
			case *string:
				*d = fmt.Sprintf("%v", value)
			case *int64:
				if v, ok := value.(int64); ok {
					*d = v
				}
			case *int:
				if v, ok := value.(int); ok {
					*d = v
				}
			default:
				return false, fmt.Errorf("unsupported stub destination %T", dest)
			}
			return true, nil
		}
	}
	return false, nil
}
