// Package bbolt provides a BoltDB-backed feed cache store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	feedBucket = "feed"
	slotKey    = "feed-cache"
)

// Store provides a BoltDB-backed feed cache slot.
type Store struct {
	db *bbolt.DB
}

type snapshotPayload struct {
	Images   []imagePayload `json:"images"`
	CachedAt time.Time      `json:"cached_at"`
}

type imagePayload struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url"`
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Retrieve loads the cached feed slot. A missing key is an empty slot; a
// key whose payload cannot be decoded reports the slot as corrupt.
func (s *Store) Retrieve(ctx context.Context) (feed.Cached, bool, error) {
	if err := ctx.Err(); err != nil {
		return feed.Cached{}, false, err
	}
	if s == nil || s.db == nil {
		return feed.Cached{}, false, fmt.Errorf("storage is not configured")
	}

	var cached feed.Cached
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(feedBucket))
		if bucket == nil {
			return fmt.Errorf("feed bucket is missing")
		}
		data := bucket.Get([]byte(slotKey))
		if data == nil {
			return nil
		}
		var payload snapshotPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode cached feed: %w: %v", storage.ErrCorrupt, err)
		}
		cached = payloadToCached(payload)
		found = true
		return nil
	})
	if err != nil {
		return feed.Cached{}, false, err
	}
	return cached, found, nil
}

// Insert replaces the cached feed slot wholesale.
func (s *Store) Insert(ctx context.Context, cached feed.Cached) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	data, err := json.Marshal(cachedToPayload(cached))
	if err != nil {
		return fmt.Errorf("encode cached feed: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(feedBucket))
		if bucket == nil {
			return fmt.Errorf("feed bucket is missing")
		}
		if err := bucket.Put([]byte(slotKey), data); err != nil {
			return fmt.Errorf("put cached feed: %w", err)
		}
		return nil
	})
}

// Delete clears the cached feed slot. Deleting an empty slot is a no-op.
func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(feedBucket))
		if bucket == nil {
			return fmt.Errorf("feed bucket is missing")
		}
		if err := bucket.Delete([]byte(slotKey)); err != nil {
			return fmt.Errorf("delete cached feed: %w", err)
		}
		return nil
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(feedBucket))
		if err != nil {
			return fmt.Errorf("create feed bucket: %w", err)
		}
		return nil
	})
}

func cachedToPayload(cached feed.Cached) snapshotPayload {
	images := make([]imagePayload, 0, len(cached.Images))
	for _, image := range cached.Images {
		images = append(images, imagePayload{
			ID:          image.ID,
			Description: image.Description,
			Location:    image.Location,
			URL:         image.URL,
		})
	}
	return snapshotPayload{Images: images, CachedAt: cached.Timestamp}
}

func payloadToCached(payload snapshotPayload) feed.Cached {
	images := make([]feed.Image, 0, len(payload.Images))
	for _, image := range payload.Images {
		images = append(images, feed.Image{
			ID:          image.ID,
			Description: image.Description,
			Location:    image.Location,
			URL:         image.URL,
		})
	}
	return feed.Cached{Images: images, Timestamp: payload.CachedAt}
}

var _ storage.Store = (*Store)(nil)
