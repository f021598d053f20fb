// Package state persists migration progress between runs. The state file
// records which migration versions have been applied and, while a migration
// is executing, how far it has progressed, so an interrupted run can be
// inspected and resumed.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// StateFile is the filename for state tracking, stored in the project root
// (git-ignored).
const StateFile = ".safemigrate-state.json"

// stateFormatVersion is the on-disk format version.
const stateFormatVersion = "1"

// AppliedMigration records one successfully applied migration version.
type AppliedMigration struct {
	Version    string    `json:"version"`
	SchemaName string    `json:"schema_name,omitempty"`
	AppliedAt  time.Time `json:"applied_at"`
}

// ActiveMigration tracks the migration currently executing. It is cleared
// when the migration commits or is rolled back.
type ActiveMigration struct {
	Version             string    `json:"version"`
	SchemaName          string    `json:"schema_name"`
	TotalOperations     int       `json:"total_operations"`
	CompletedOperations int       `json:"completed_operations"`
	StartedAt           time.Time `json:"started_at"`
	LastUpdated         time.Time `json:"last_updated"`
}

// State is the on-disk document.
type State struct {
	Version         string             `json:"version"`
	Applied         []AppliedMigration `json:"applied"`
	ActiveMigration *ActiveMigration   `json:"active_migration,omitempty"`
}

// Store is a durable version log backed by a JSON state file. It satisfies
// the orchestrator's VersionLog interface.
type Store struct {
	path  string
	state *State
}

// Load reads the state file at path (StateFile when empty). A missing file
// yields an empty store.
func Load(path string) (*Store, error) {
	if path == "" {
		path = StateFile
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path, state: &State{Version: stateFormatVersion}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Version == "" {
		state.Version = stateFormatVersion
	}

	return &Store{path: path, state: &state}, nil
}

// save writes the state file atomically (write to temp file, then rename).
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		return fmt.Errorf("failed to save state file: %w", err)
	}

	return nil
}

// IsApplied reports whether a migration version has been recorded.
func (s *Store) IsApplied(version string) bool {
	for _, m := range s.state.Applied {
		if m.Version == version {
			return true
		}
	}
	return false
}

// MarkApplied records a migration version and persists the state file.
// Recording an already applied version is a no-op.
func (s *Store) MarkApplied(version string) error {
	return s.MarkAppliedTo(version, "")
}

// MarkAppliedTo records a version together with the schema it ran against.
func (s *Store) MarkAppliedTo(version, schemaName string) error {
	if version == "" {
		return fmt.Errorf("migration version is required")
	}
	if s.IsApplied(version) {
		return nil
	}

	s.state.Applied = append(s.state.Applied, AppliedMigration{
		Version:    version,
		SchemaName: schemaName,
		AppliedAt:  time.Now(),
	})
	return s.save()
}

// AppliedVersions returns the recorded versions in sorted order.
func (s *Store) AppliedVersions() []string {
	versions := make([]string, 0, len(s.state.Applied))
	for _, m := range s.state.Applied {
		versions = append(versions, m.Version)
	}
	sort.Strings(versions)
	return versions
}

// BeginMigration records that a migration has started executing.
func (s *Store) BeginMigration(version, schemaName string, totalOperations int) error {
	if s.state.ActiveMigration != nil {
		return fmt.Errorf("cannot start migration: %s is already in progress", s.state.ActiveMigration.Version)
	}

	now := time.Now()
	s.state.ActiveMigration = &ActiveMigration{
		Version:         version,
		SchemaName:      schemaName,
		TotalOperations: totalOperations,
		StartedAt:       now,
		LastUpdated:     now,
	}
	return s.save()
}

// CompleteOperation advances the active migration by one operation. When the
// last operation completes the version is recorded and the active entry
// cleared.
func (s *Store) CompleteOperation() error {
	active := s.state.ActiveMigration
	if active == nil {
		return fmt.Errorf("no active migration")
	}

	active.CompletedOperations++
	active.LastUpdated = time.Now()

	if active.CompletedOperations >= active.TotalOperations {
		s.state.ActiveMigration = nil
		return s.MarkAppliedTo(active.Version, active.SchemaName)
	}
	return s.save()
}

// ClearActiveMigration removes the active migration without recording it as
// applied (use after rollback or cancellation).
func (s *Store) ClearActiveMigration() error {
	s.state.ActiveMigration = nil
	return s.save()
}

// Active returns the in-progress migration, or nil when none is executing.
func (s *Store) Active() *ActiveMigration {
	return s.state.ActiveMigration
}
