// Package storagetest certifies feed cache backends against the store
// contract.
//
// The suite is written only against the storage.Store interface so any
// backend can run it unchanged. Failure-path assertions live in faults.go
// and are invoked by backend tests that can induce the relevant fault.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
	"github.com/louisbranch/feedcache/internal/storage/serial"
	"golang.org/x/sync/errgroup"
)

// Factory builds a fresh, empty store for one subtest. Cleanup belongs to
// the factory (t.TempDir, t.Cleanup); the suite only calls Close.
type Factory func(t *testing.T) storage.Store

// Run asserts every behavioral property of the store contract against the
// provided backend.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("RetrieveDeliversEmptyOnNeverWrittenStore", func(t *testing.T) {
		store := openStore(t, factory)

		assertEmpty(t, store)
	})

	t.Run("RetrieveHasNoSideEffectsOnEmptyStore", func(t *testing.T) {
		store := openStore(t, factory)

		assertEmpty(t, store)
		assertEmpty(t, store)
	})

	t.Run("RetrieveDeliversInsertedValues", func(t *testing.T) {
		store := openStore(t, factory)
		snapshot := Snapshot(t, 3)

		insert(t, store, snapshot)
		assertFound(t, store, snapshot)
	})

	t.Run("RetrieveHasNoSideEffectsOnNonEmptyStore", func(t *testing.T) {
		store := openStore(t, factory)
		snapshot := Snapshot(t, 2)

		insert(t, store, snapshot)
		assertFound(t, store, snapshot)
		assertFound(t, store, snapshot)
	})

	t.Run("InsertOverridesPreviouslyInsertedValues", func(t *testing.T) {
		store := openStore(t, factory)
		first := Snapshot(t, 2)
		second := Snapshot(t, 1)

		insert(t, store, first)
		insert(t, store, second)
		assertFound(t, store, second)
	})

	t.Run("InsertedEmptyFeedOccupiesSlot", func(t *testing.T) {
		store := openStore(t, factory)
		first := Snapshot(t, 1)
		empty := feed.Cached{Images: []feed.Image{}, Timestamp: time.Now().UTC()}

		insert(t, store, first)
		insert(t, store, empty)

		cached, found, err := store.Retrieve(context.Background())
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if !found {
			t.Fatal("expected occupied slot after inserting empty feed")
		}
		if len(cached.Images) != 0 {
			t.Fatalf("expected empty image list, got %d images", len(cached.Images))
		}
		if !cached.Timestamp.Equal(empty.Timestamp) {
			t.Fatalf("timestamp = %s, want %s", cached.Timestamp, empty.Timestamp)
		}
	})

	t.Run("DeleteHasNoSideEffectsOnEmptyStore", func(t *testing.T) {
		store := openStore(t, factory)

		if err := store.Delete(context.Background()); err != nil {
			t.Fatalf("delete empty slot: %v", err)
		}
		assertEmpty(t, store)
	})

	t.Run("DeleteEmptiesPreviouslyInsertedStore", func(t *testing.T) {
		store := openStore(t, factory)
		snapshot := Snapshot(t, 2)

		insert(t, store, snapshot)
		if err := store.Delete(context.Background()); err != nil {
			t.Fatalf("delete: %v", err)
		}
		assertEmpty(t, store)
	})

	t.Run("SerializedOperationsApplyInSubmissionOrder", func(t *testing.T) {
		store := factory(t)
		queue := serial.Wrap(store)
		t.Cleanup(func() {
			if err := queue.Close(); err != nil {
				t.Fatalf("close queue: %v", err)
			}
		})

		ctx := context.Background()
		first := Snapshot(t, 1)
		second := Snapshot(t, 2)
		third := Snapshot(t, 1)

		// Submit without waiting; results must reflect strict FIFO effects.
		insertFirst := queue.Insert(ctx, first)
		retrieveFirst := queue.Retrieve(ctx)
		insertSecond := queue.Insert(ctx, second)
		deleteAll := queue.Delete(ctx)
		retrieveEmpty := queue.Retrieve(ctx)
		insertThird := queue.Insert(ctx, third)
		retrieveThird := queue.Retrieve(ctx)

		if err := <-insertFirst; err != nil {
			t.Fatalf("insert first: %v", err)
		}
		result := <-retrieveFirst
		if result.Err != nil || !result.Found || !result.Cached.Equal(first) {
			t.Fatalf("retrieve after first insert = %+v, want %+v", result, first)
		}
		if err := <-insertSecond; err != nil {
			t.Fatalf("insert second: %v", err)
		}
		if err := <-deleteAll; err != nil {
			t.Fatalf("delete: %v", err)
		}
		result = <-retrieveEmpty
		if result.Err != nil || result.Found {
			t.Fatalf("retrieve after delete = %+v, want empty", result)
		}
		if err := <-insertThird; err != nil {
			t.Fatalf("insert third: %v", err)
		}
		result = <-retrieveThird
		if result.Err != nil || !result.Found || !result.Cached.Equal(third) {
			t.Fatalf("final retrieve = %+v, want %+v", result, third)
		}
	})

	t.Run("ConcurrentSubmittersLeaveConsistentState", func(t *testing.T) {
		store := factory(t)
		queue := serial.Wrap(store)
		t.Cleanup(func() {
			if err := queue.Close(); err != nil {
				t.Fatalf("close queue: %v", err)
			}
		})

		ctx := context.Background()
		snapshots := make([]feed.Cached, 8)
		for i := range snapshots {
			snapshots[i] = Snapshot(t, i%3+1)
		}

		var group errgroup.Group
		for _, snapshot := range snapshots {
			snapshot := snapshot
			group.Go(func() error {
				if err := <-queue.Insert(ctx, snapshot); err != nil {
					return fmt.Errorf("insert: %w", err)
				}
				result := <-queue.Retrieve(ctx)
				if result.Err != nil {
					return fmt.Errorf("retrieve: %w", result.Err)
				}
				if !result.Found {
					return fmt.Errorf("expected occupied slot mid-run")
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			t.Fatalf("concurrent submitters: %v", err)
		}

		result := <-queue.Retrieve(ctx)
		if result.Err != nil || !result.Found {
			t.Fatalf("final retrieve = %+v, want occupied slot", result)
		}
		for _, snapshot := range snapshots {
			if result.Cached.Equal(snapshot) {
				return
			}
		}
		t.Fatalf("final state %+v is none of the inserted snapshots", result.Cached)
	})
}

// Snapshot builds a cached feed with n distinct valid images.
func Snapshot(t *testing.T, n int) feed.Cached {
	t.Helper()

	images := make([]feed.Image, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		image, err := feed.NewImage(
			id,
			fmt.Sprintf("image %d", i),
			"NYC",
			fmt.Sprintf("https://images.example/%s.png", id),
		)
		if err != nil {
			t.Fatalf("new image: %v", err)
		}
		images = append(images, image)
	}
	return feed.Cached{Images: images, Timestamp: time.Now().UTC()}
}

func openStore(t *testing.T, factory Factory) storage.Store {
	t.Helper()
	store := factory(t)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func insert(t *testing.T, store storage.Store, cached feed.Cached) {
	t.Helper()
	if err := store.Insert(context.Background(), cached); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func assertEmpty(t *testing.T, store storage.Store) {
	t.Helper()
	cached, found, err := store.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if found {
		t.Fatalf("expected empty slot, got %+v", cached)
	}
}

func assertFound(t *testing.T, store storage.Store, want feed.Cached) {
	t.Helper()
	cached, found, err := store.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !found {
		t.Fatal("expected occupied slot")
	}
	if !cached.Equal(want) {
		t.Fatalf("retrieved %+v, want %+v", cached, want)
	}
}
