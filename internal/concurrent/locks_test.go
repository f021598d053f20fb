package concurrent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLockManager(processID string) (*LockManager, *MemoryLockStore) {
	store := NewMemoryLockStore()
	manager := NewLockManager(store, processID, zerolog.Nop())
	manager.retry = time.Millisecond
	return manager, store
}

func TestAcquireMigrationLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLockStore()
	first := NewLockManager(store, "proc-1", zerolog.Nop())
	first.retry = time.Millisecond
	second := NewLockManager(store, "proc-2", zerolog.Nop())
	second.retry = time.Millisecond

	if !first.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond) {
		t.Fatal("Expected first acquisition to succeed")
	}
	if second.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond) {
		t.Error("Expected second process to be refused the held lock")
	}
	// A different schema is independent.
	if !second.AcquireMigrationLock(ctx, "tenant_b", 10*time.Millisecond) {
		t.Error("Expected lock on an unrelated schema to succeed")
	}
}

func TestAcquireMigrationLock_Reentrant(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestLockManager("proc-1")

	if !manager.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond) {
		t.Fatal("Expected acquisition to succeed")
	}
	if !manager.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond) {
		t.Error("Expected re-acquisition by the same process to succeed")
	}
}

func TestReleaseMigrationLock_IdempotentWithoutLock(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestLockManager("proc-1")

	// Releasing a lock nobody holds must not panic and must not change state.
	manager.ReleaseMigrationLock(ctx, "tenant_a")
	if store.Held("tenant_a") {
		t.Error("Expected no lock after releasing an unheld schema")
	}

	manager.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond)
	manager.ReleaseMigrationLock(ctx, "tenant_a")
	manager.ReleaseMigrationLock(ctx, "tenant_a")
	if store.Held("tenant_a") {
		t.Error("Expected lock released after double release")
	}
}

func TestReleaseMigrationLock_DoesNotStealForeignLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLockStore()
	owner := NewLockManager(store, "proc-1", zerolog.Nop())
	other := NewLockManager(store, "proc-2", zerolog.Nop())

	owner.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond)
	other.ReleaseMigrationLock(ctx, "tenant_a")
	if !store.Held("tenant_a") {
		t.Error("Expected release by a non-holder to leave the lock in place")
	}
}

func TestWithMigrationLock_ReleasesOnError(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestLockManager("proc-1")

	err := manager.WithMigrationLock(ctx, "tenant_a", 10*time.Millisecond, func(ctx context.Context) error {
		if !store.Held("tenant_a") {
			t.Error("Expected lock held inside the guarded function")
		}
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("Expected the guarded function's error to propagate")
	}
	if store.Held("tenant_a") {
		t.Error("Expected lock released after the guarded function failed")
	}
}

func TestWithMigrationLock_ConcurrentMigrationError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLockStore()
	first := NewLockManager(store, "proc-1", zerolog.Nop())
	first.retry = time.Millisecond
	second := NewLockManager(store, "proc-2", zerolog.Nop())
	second.retry = time.Millisecond

	first.AcquireMigrationLock(ctx, "tenant_a", 10*time.Millisecond)
	err := second.WithMigrationLock(ctx, "tenant_a", 10*time.Millisecond, func(ctx context.Context) error {
		t.Error("Guarded function must not run without the lock")
		return nil
	})
	if err == nil {
		t.Fatal("Expected an error when the lock is held elsewhere")
	}
}

func TestAcquireMigrationLock_RejectsInvalidSchemaName(t *testing.T) {
	manager, store := newTestLockManager("proc-1")
	if manager.AcquireMigrationLock(context.Background(), "'; DROP TABLE users; --", time.Millisecond) {
		t.Error("Expected acquisition to fail for an invalid schema name")
	}
	if store.Held("'; DROP TABLE users; --") {
		t.Error("Expected no lock row for an invalid schema name")
	}
}
