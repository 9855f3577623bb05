// Package sqlite provides SQLite-backed persistence for the feed cache slot.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/feedcache/internal/storage"
	"github.com/louisbranch/feedcache/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// slotName is the single fixed slot identifier the schema allows.
const slotName = "feed"

// Store provides SQLite-backed persistence for the cached feed.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates a feed cache SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Retrieve loads the cached feed slot with its images in insertion order.
func (s *Store) Retrieve(ctx context.Context) (feed.Cached, bool, error) {
	if s == nil || s.sqlDB == nil {
		return feed.Cached{}, false, fmt.Errorf("storage is not configured")
	}

	var cachedAtNanos int64
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT cached_at FROM feed_cache WHERE slot = ?`,
		slotName,
	)
	if err := row.Scan(&cachedAtNanos); err != nil {
		if err == sql.ErrNoRows {
			return feed.Cached{}, false, nil
		}
		return feed.Cached{}, false, fmt.Errorf("get cached feed: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT image_id, description, location, url
		 FROM feed_images
		 WHERE slot = ?
		 ORDER BY position`,
		slotName,
	)
	if err != nil {
		return feed.Cached{}, false, fmt.Errorf("list cached images: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	images := make([]feed.Image, 0)
	for rows.Next() {
		var rawID string
		var image feed.Image
		if err := rows.Scan(&rawID, &image.Description, &image.Location, &image.URL); err != nil {
			return feed.Cached{}, false, fmt.Errorf("scan cached image: %w", err)
		}
		imageID, err := uuid.Parse(rawID)
		if err != nil {
			return feed.Cached{}, false, fmt.Errorf("decode cached image id %q: %w: %v", rawID, storage.ErrCorrupt, err)
		}
		image.ID = imageID
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return feed.Cached{}, false, fmt.Errorf("iterate cached images: %w", err)
	}

	return feed.Cached{
		Images:    images,
		Timestamp: unixNanosToTime(cachedAtNanos),
	}, true, nil
}

// Insert replaces the slot row and its image rows in one transaction.
func (s *Store) Insert(ctx context.Context, cached feed.Cached) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO feed_cache (slot, cached_at) VALUES (?, ?)
		 ON CONFLICT(slot) DO UPDATE SET cached_at = excluded.cached_at`,
		slotName,
		timeToUnixNanos(cached.Timestamp),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put cached feed: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_images WHERE slot = ?`, slotName); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear cached images: %w", err)
	}

	for position, image := range cached.Images {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO feed_images (slot, position, image_id, description, location, url)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			slotName,
			position,
			image.ID.String(),
			image.Description,
			image.Location,
			image.URL,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put cached image %d: %w", position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cached feed: %w", err)
	}
	return nil
}

// Delete clears the slot and its image rows in one transaction. Deleting an
// empty slot is a no-op.
func (s *Store) Delete(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_images WHERE slot = ?`, slotName); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete cached images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_cache WHERE slot = ?`, slotName); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete cached feed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cached feed delete: %w", err)
	}
	return nil
}

// runMigrations applies embedded SQL migrations in filename order.
func (s *Store) runMigrations() error {
	return sqlitemigrate.Apply(context.Background(), s.sqlDB, migrations.FS)
}

// Timestamps persist as unix nanoseconds so retrieval reproduces the
// inserted instant exactly. Zero maps to the zero time.
func timeToUnixNanos(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixNano()
}

func unixNanosToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}

var _ storage.Store = (*Store)(nil)
