// Package memory provides the reference in-memory feed cache backend.
//
// It has no durable failure modes and is the baseline implementation the
// storagetest suite is developed against.
package memory

import (
	"context"
	"sync"

	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
)

// Store holds the cached feed slot in process memory.
type Store struct {
	mu   sync.Mutex
	slot *feed.Cached
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Retrieve returns a copy of the current slot, if any.
func (s *Store) Retrieve(ctx context.Context) (feed.Cached, bool, error) {
	if err := ctx.Err(); err != nil {
		return feed.Cached{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot == nil {
		return feed.Cached{}, false, nil
	}
	return feed.Cached{
		Images:    feed.CloneImages(s.slot.Images),
		Timestamp: s.slot.Timestamp,
	}, true, nil
}

// Insert replaces the slot with a copy of the provided snapshot.
func (s *Store) Insert(ctx context.Context, cached feed.Cached) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.slot = &feed.Cached{
		Images:    feed.CloneImages(cached.Images),
		Timestamp: cached.Timestamp,
	}
	return nil
}

// Delete clears the slot. Deleting an empty slot is a no-op.
func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.slot = nil
	return nil
}

// Close releases nothing; it exists to satisfy the store contract.
func (s *Store) Close() error {
	return nil
}

var _ storage.Store = (*Store)(nil)
