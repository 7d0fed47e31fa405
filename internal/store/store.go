// Package store defines the document-store contract the engine writes
// through, plus Badger and SQLite backends. A store holds one
// collection's documents as opaque JSON keyed by the document id.
package store

import (
	"errors"
	"regexp"
)

var (
	// ErrDuplicateKey reports a violated unique-id constraint on insert.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStore wraps opaque backend failures.
	ErrStore = errors.New("store error")

	// ErrInvalidName reports a collection name the backends cannot hold.
	ErrInvalidName = errors.New("invalid collection name")
)

// Row is one stored document: its row key (the document _id) and its
// serialized form.
type Row struct {
	Key  string
	Data []byte
}

// Store is the per-collection document store consumed by the collection
// façade. Implementations are not safe for concurrent use; the engine
// is single-threaded and callers serialize access externally.
//
// Begin/Commit/Rollback scope an atomic write batch. While a
// transaction is active all reads and writes go through it.
type Store interface {
	// Scan returns a full snapshot of the collection in any order.
	Scan() ([]Row, error)
	// Insert stores a new document; ErrDuplicateKey if the key exists.
	Insert(key string, data []byte) error
	Update(key string, data []byte) error
	Delete(key string) error

	Begin() error
	Commit() error
	Rollback() error
}

// Backend owns the underlying database and hands out per-collection
// stores. The handle is constructed once and passed to whoever needs
// it; there is no process-wide registry.
type Backend interface {
	Collection(name string) (Store, error)
	ListCollections() ([]string, error)
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether a collection name is usable by every
// backend (it becomes a SQLite table name and a Badger key prefix).
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
