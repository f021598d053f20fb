package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), StateFile)
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load empty store: %v", err)
	}
	return store, path
}

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	store, _ := tempStore(t)
	if store.IsApplied("v1") {
		t.Error("Expected no versions in a fresh store")
	}
	if store.Active() != nil {
		t.Error("Expected no active migration in a fresh store")
	}
}

func TestMarkApplied_PersistsAcrossLoads(t *testing.T) {
	store, path := tempStore(t)

	if err := store.MarkApplied("v1"); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}
	if err := store.MarkAppliedTo("v2", "public"); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if !reloaded.IsApplied("v1") || !reloaded.IsApplied("v2") {
		t.Error("Expected both versions recorded after reload")
	}
	versions := reloaded.AppliedVersions()
	if len(versions) != 2 || versions[0] != "v1" || versions[1] != "v2" {
		t.Errorf("Expected sorted versions [v1 v2], got %v", versions)
	}
}

func TestMarkApplied_DuplicateIsNoOp(t *testing.T) {
	store, _ := tempStore(t)

	if err := store.MarkApplied("v1"); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}
	if err := store.MarkApplied("v1"); err != nil {
		t.Fatalf("Expected duplicate recording to succeed: %v", err)
	}
	if got := len(store.AppliedVersions()); got != 1 {
		t.Errorf("Expected one recorded version, got %d", got)
	}

	if err := store.MarkApplied(""); err == nil {
		t.Error("Expected an empty version to be rejected")
	}
}

func TestBeginMigration_RejectsSecondActive(t *testing.T) {
	store, _ := tempStore(t)

	if err := store.BeginMigration("v3", "public", 2); err != nil {
		t.Fatalf("Failed to begin migration: %v", err)
	}
	err := store.BeginMigration("v4", "public", 1)
	if err == nil {
		t.Fatal("Expected a second active migration to be rejected")
	}
	if !strings.Contains(err.Error(), "v3") {
		t.Errorf("Expected the error to name the active version, got: %v", err)
	}
}

func TestCompleteOperation_RecordsVersionWhenDone(t *testing.T) {
	store, path := tempStore(t)

	if err := store.BeginMigration("v5", "public", 2); err != nil {
		t.Fatalf("Failed to begin migration: %v", err)
	}
	if err := store.CompleteOperation(); err != nil {
		t.Fatalf("Failed to complete operation: %v", err)
	}
	if active := store.Active(); active == nil || active.CompletedOperations != 1 {
		t.Fatal("Expected one completed operation on the active migration")
	}
	if store.IsApplied("v5") {
		t.Error("Expected the version unrecorded while operations remain")
	}

	if err := store.CompleteOperation(); err != nil {
		t.Fatalf("Failed to complete final operation: %v", err)
	}
	if store.Active() != nil {
		t.Error("Expected the active migration cleared after the last operation")
	}
	if !store.IsApplied("v5") {
		t.Error("Expected the version recorded after the last operation")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if !reloaded.IsApplied("v5") {
		t.Error("Expected the completed version persisted")
	}
}

func TestClearActiveMigration_DoesNotRecordVersion(t *testing.T) {
	store, _ := tempStore(t)

	if err := store.BeginMigration("v6", "public", 3); err != nil {
		t.Fatalf("Failed to begin migration: %v", err)
	}
	if err := store.ClearActiveMigration(); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if store.Active() != nil {
		t.Error("Expected the active migration cleared")
	}
	if store.IsApplied("v6") {
		t.Error("Expected a cancelled migration to stay unrecorded")
	}
}

func TestLoad_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected a parse error for a corrupt state file")
	}
}
