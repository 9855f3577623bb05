package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/feedcache/internal/feed"
)

// ErrCorrupt indicates the persisted slot exists but cannot be decoded.
// Corruption is stable: repeated retrievals keep reporting it and never
// clear or rewrite the slot. A missing slot is not corruption; it reads as
// empty.
var ErrCorrupt = errors.New("cached feed is corrupt")

// Store persists at most one cached feed snapshot.
//
// Contract:
//   - Retrieve returns (zero, false, nil) when the slot is empty, including
//     when the underlying storage object was never created. It returns the
//     exact snapshot last inserted with found=true, or an error when the
//     slot exists but cannot be read. Retrieval never mutates the slot and
//     is idempotent.
//   - Insert replaces the slot wholesale. On error the slot is left exactly
//     as it was (no partial write).
//   - Delete clears the slot and is idempotent; deleting an empty slot is
//     not an error. On error the slot is left exactly as it was.
//   - Implementations need not be safe for concurrent use; the serial queue
//     owns cross-caller ordering.
type Store interface {
	Retrieve(ctx context.Context) (feed.Cached, bool, error)
	Insert(ctx context.Context, cached feed.Cached) error
	Delete(ctx context.Context) error
	Close() error
}
