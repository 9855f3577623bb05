// Package file provides a JSON snapshot file backend for the feed cache.
//
// The snapshot is replaced atomically: inserts write a temporary file in the
// same directory and rename it over the slot, so a failed insert never
// leaves a partially written slot behind.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
)

// Store persists the cached feed slot as a single JSON file.
type Store struct {
	path string
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

// New creates a file store rooted at the provided snapshot path. The file
// itself is created lazily on first insert.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	return &Store{path: filepath.Clean(path)}, nil
}

// Retrieve reads the snapshot file. A missing file is an empty slot, not an
// error; any other read or decode problem reports the slot as corrupt.
func (s *Store) Retrieve(ctx context.Context) (feed.Cached, bool, error) {
	if err := ctx.Err(); err != nil {
		return feed.Cached{}, false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return feed.Cached{}, false, nil
		}
		return feed.Cached{}, false, fmt.Errorf("read feed snapshot: %w", err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return feed.Cached{}, false, fmt.Errorf("decode feed snapshot: %w: %v", storage.ErrCorrupt, err)
	}

	return snapshotToCached(payload), true, nil
}

// Insert atomically replaces the snapshot file with the provided feed.
func (s *Store) Insert(ctx context.Context, cached feed.Cached) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := cachedToSnapshot(cached)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode feed snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace feed snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot file. A missing file is already-empty success.
func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete feed snapshot: %w", err)
	}
	return nil
}

// Close releases nothing; the store holds no open handles between calls.
func (s *Store) Close() error {
	return nil
}

func cachedToSnapshot(cached feed.Cached) snapshotPayload {
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

func snapshotToCached(payload snapshotPayload) feed.Cached {
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
