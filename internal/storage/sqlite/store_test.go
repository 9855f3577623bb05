package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/louisbranch/feedcache/internal/storage"
	sqlitestore "github.com/louisbranch/feedcache/internal/storage/sqlite"
	"github.com/louisbranch/feedcache/internal/storage/storagetest"
	_ "modernc.org/sqlite"
)

func openStore(t *testing.T, path string) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitestore.Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	assertTableExists(t, sqlDB, "feed_cache")
	assertTableExists(t, sqlDB, "feed_images")
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Re-opening must not attempt to re-apply migrations.
	store = openStore(t, path)
	if err := store.Close(); err != nil {
		t.Fatalf("close again: %v", err)
	}
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openStore(t, filepath.Join(t.TempDir(), "feed-cache.db"))
	})
}

func TestRetrieveFailsStablyOnCorruptImageRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})

	if err := store.Insert(context.Background(), storagetest.Snapshot(t, 2)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	corruptFirstImageRow(t, path)

	storagetest.AssertRetrieveFailsStably(t, store, true)

	// Reading must leave the corrupt row in place.
	if got := firstImageID(t, path); got != "not-a-uuid" {
		t.Fatalf("image id rewritten to %q", got)
	}
}

func TestInsertFailureLeavesPriorSlotUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	prior := storagetest.Snapshot(t, 2)
	if err := store.Insert(context.Background(), prior); err != nil {
		t.Fatalf("insert prior: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A closed handle can no longer write; the durable slot must survive.
	reopened := openStore(t, path)
	t.Cleanup(func() {
		if err := reopened.Close(); err != nil {
			t.Fatalf("close reopened: %v", err)
		}
	})
	storagetest.AssertInsertFailureKeepsSlot(t, store, reopened, prior)
}

func TestDeleteFailureLeavesPriorSlotUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	prior := storagetest.Snapshot(t, 1)
	if err := store.Insert(context.Background(), prior); err != nil {
		t.Fatalf("insert prior: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openStore(t, path)
	t.Cleanup(func() {
		if err := reopened.Close(); err != nil {
			t.Fatalf("close reopened: %v", err)
		}
	})
	storagetest.AssertDeleteFailureKeepsSlot(t, store, reopened, prior)
}

func TestSlotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-cache.db")
	store := openStore(t, path)
	snapshot := storagetest.Snapshot(t, 3)
	if err := store.Insert(context.Background(), snapshot); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openStore(t, path)
	t.Cleanup(func() {
		if err := reopened.Close(); err != nil {
			t.Fatalf("close reopened: %v", err)
		}
	})

	cached, found, err := reopened.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !found {
		t.Fatal("expected slot to survive reopen")
	}
	if !cached.Equal(snapshot) {
		t.Fatalf("retrieved %+v, want %+v", cached, snapshot)
	}
}

func assertTableExists(t *testing.T, sqlDB *sql.DB, table string) {
	t.Helper()
	var name string
	err := sqlDB.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	if err != nil {
		t.Fatalf("expected table %s: %v", table, err)
	}
}

// corruptFirstImageRow bypasses the store to plant an undecodable image id.
func corruptFirstImageRow(t *testing.T, path string) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	if _, err := sqlDB.Exec(
		"UPDATE feed_images SET image_id = 'not-a-uuid' WHERE position = 0",
	); err != nil {
		t.Fatalf("corrupt image row: %v", err)
	}
}

func firstImageID(t *testing.T, path string) string {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	var id string
	if err := sqlDB.QueryRow(
		"SELECT image_id FROM feed_images WHERE position = 0",
	).Scan(&id); err != nil {
		t.Fatalf("read image id: %v", err)
	}
	return id
}
