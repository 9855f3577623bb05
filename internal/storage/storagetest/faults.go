package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
)

// AssertRetrieveFailsStably asserts that a corrupted slot reports a failure
// on retrieval, that the failure carries storage.ErrCorrupt when decode is
// the cause, and that retrieving again reproduces the same failure:
// corruption is stable, never cleared by reading.
func AssertRetrieveFailsStably(t *testing.T, store storage.Store, wantCorrupt bool) {
	t.Helper()

	for attempt := 0; attempt < 2; attempt++ {
		_, found, err := store.Retrieve(context.Background())
		if err == nil {
			t.Fatalf("retrieve attempt %d: expected failure", attempt)
		}
		if found {
			t.Fatalf("retrieve attempt %d: failure must not report a found slot", attempt)
		}
		if wantCorrupt && !errors.Is(err, storage.ErrCorrupt) {
			t.Fatalf("retrieve attempt %d: error %v does not wrap ErrCorrupt", attempt, err)
		}
	}
}

// AssertInsertFailureKeepsSlot asserts that a failed insert reports an error
// and leaves the previously cached value retrievable unchanged. The check
// runs against checkStore, which may differ from the failing store when the
// fault was induced by closing a handle.
func AssertInsertFailureKeepsSlot(t *testing.T, failing storage.Store, checkStore storage.Store, prior feed.Cached) {
	t.Helper()

	if err := failing.Insert(context.Background(), Snapshot(t, 1)); err == nil {
		t.Fatal("expected insert failure")
	}
	assertFound(t, checkStore, prior)
}

// AssertDeleteFailureKeepsSlot asserts that a failed delete reports an error
// and leaves the previously cached value retrievable unchanged.
func AssertDeleteFailureKeepsSlot(t *testing.T, failing storage.Store, checkStore storage.Store, prior feed.Cached) {
	t.Helper()

	if err := failing.Delete(context.Background()); err == nil {
		t.Fatal("expected delete failure")
	}
	assertFound(t, checkStore, prior)
}
