package bbolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/feedcache/internal/storage"
	bboltstore "github.com/louisbranch/feedcache/internal/storage/bbolt"
	"github.com/louisbranch/feedcache/internal/storage/storagetest"
	"go.etcd.io/bbolt"
)

const (
	rawBucket = "feed"
	rawKey    = "feed-cache"
)

func openStore(t *testing.T, path string) *bboltstore.Store {
	t.Helper()
	store, err := bboltstore.Open(path)
	if err != nil {
		t.Fatalf("open bbolt store: %v", err)
	}
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := bboltstore.Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRejectsUnreachablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "feed.db")
	if _, err := bboltstore.Open(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openStore(t, filepath.Join(t.TempDir(), "feed.db"))
	})
}

func TestRetrieveFailsStablyOnCorruptPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")
	store := openStore(t, path)
	if err := store.Insert(context.Background(), storagetest.Snapshot(t, 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	garbage := []byte("{truncated")
	writeRawSlot(t, path, garbage)

	store = openStore(t, path)
	storagetest.AssertRetrieveFailsStably(t, store, true)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reading must leave the corrupt payload in place.
	if got := readRawSlot(t, path); string(got) != string(garbage) {
		t.Fatalf("slot payload changed to %q", got)
	}
}

func TestInsertFailureLeavesPriorSlotUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")
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
	path := filepath.Join(t.TempDir(), "feed.db")
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
	path := filepath.Join(t.TempDir(), "feed.db")
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

// writeRawSlot bypasses the store to plant arbitrary bytes in the slot key.
func writeRawSlot(t *testing.T, path string, payload []byte) {
	t.Helper()
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close raw db: %v", err)
		}
	}()

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(rawBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(rawKey), payload)
	})
	if err != nil {
		t.Fatalf("write raw slot: %v", err)
	}
}

// readRawSlot reads the slot bytes directly; the store handle must already
// be closed so the database file is not double-opened.
func readRawSlot(t *testing.T, path string) []byte {
	t.Helper()

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close raw db: %v", err)
		}
	}()

	var payload []byte
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rawBucket))
		if bucket == nil {
			return nil
		}
		value := bucket.Get([]byte(rawKey))
		payload = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		t.Fatalf("read raw slot: %v", err)
	}
	return payload
}
