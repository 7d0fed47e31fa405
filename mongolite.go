// Package mongolite is an embedded document database: collections of
// JSON documents queried, updated and aggregated with the MongoDB
// operator language. Documents live in a pluggable store (Badger or
// SQLite); every query runs as an in-process full scan, so the engine
// suits small embedded data sets, not large ones.
//
// The engine is single-threaded and synchronous. Nothing here is safe
// for concurrent use; callers serialize access externally. Correctness
// under concurrent external writers during a scan is not guaranteed.
package mongolite

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/internal/store"
	"github.com/mongolite/mongolite/internal/update"
)

// Error kinds surfaced by the engine. Test with errors.Is; failures are
// wrapped with detail about the offending operator or field.
var (
	ErrInvalidQuery     = query.ErrInvalidQuery
	ErrInvalidUpdate    = update.ErrInvalidUpdate
	ErrDuplicateKey     = store.ErrDuplicateKey
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidDocument  = errors.New("invalid document")
)

// Database owns one backend handle and hands out collection façades
// that share it. Open a database once and pass it to whoever needs it.
type Database struct {
	backend store.Backend
}

// Open opens (or creates) a Badger-backed database rooted at the given
// directory.
func Open(path string) (*Database, error) {
	backend, err := store.OpenBadger(path)
	if err != nil {
		return nil, err
	}
	return &Database{backend: backend}, nil
}

// OpenSQLite opens (or creates) a SQLite-backed database at the given
// file path.
func OpenSQLite(path string) (*Database, error) {
	backend, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &Database{backend: backend}, nil
}

// Collection returns a façade over the named collection. Collection
// names are limited to letters, digits and underscores.
func (db *Database) Collection(name string) (*Collection, error) {
	st, err := db.backend.Collection(name)
	if err != nil {
		return nil, err
	}
	return &Collection{name: name, store: st}, nil
}

// ListCollectionNames reports the known collections.
func (db *Database) ListCollectionNames() ([]string, error) {
	return db.backend.ListCollections()
}

// Close releases the backend.
func (db *Database) Close() error {
	return db.backend.Close()
}

// newObjectID generates a 24-character hex identifier: 8 hex digits of
// unix seconds followed by 16 random hex digits.
func newObjectID() string {
	u := uuid.New()
	return fmt.Sprintf("%08x", time.Now().Unix()) + hex.EncodeToString(u[:8])
}
