// Package storage declares the persistence contract for the single-slot
// feed cache.
//
// It provides the Store interface that every cache backend implements.
// Implementations (in-memory, file snapshot, bbolt, SQLite) live in
// subpackages and are interchangeable; the behavioral contract they must
// satisfy is certified by the storagetest suite.
//
// # Error Types
//
//   - ErrCorrupt: the slot exists but its persisted bytes cannot be decoded.
package storage
