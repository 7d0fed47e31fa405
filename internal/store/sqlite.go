package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores each collection as a table of
// (_id TEXT UNIQUE, document TEXT) rows in one SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite-backed database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// The engine is single-threaded; one connection keeps transactions
	// pinned to it.
	db.SetMaxOpenConns(1)
	return &SQLiteBackend{db: db}, nil
}

// Close closes the SQLite handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Collection returns a store backed by the named table, creating the
// table on first use.
func (b *SQLiteBackend) Collection(name string) (Store, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		_id TEXT UNIQUE,
		document TEXT NOT NULL
	)`, name)
	if _, err := b.db.Exec(create); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return &sqliteStore{db: b.db, table: name}, nil
}

// ListCollections reports every collection table in the database.
func (b *SQLiteBackend) ListCollections() ([]string, error) {
	rows, err := b.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return names, nil
}

type sqliteStore struct {
	db    *sql.DB
	table string
	tx    *sql.Tx // active batch, nil outside Begin/Commit
}

// querier routes statements through the active transaction when one is
// open.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *sqliteStore) h() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *sqliteStore) Scan() ([]Row, error) {
	rows, err := s.h().Query(fmt.Sprintf(`SELECT _id, document FROM %q`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		out = append(out, Row{Key: key, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return out, nil
}

func (s *sqliteStore) Insert(key string, data []byte) error {
	var one int
	err := s.h().QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %q WHERE _id = ?`, s.table), key).Scan(&one)
	if err == nil {
		return ErrDuplicateKey
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	_, err = s.h().Exec(
		fmt.Sprintf(`INSERT INTO %q (_id, document) VALUES (?, ?)`, s.table), key, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) Update(key string, data []byte) error {
	_, err := s.h().Exec(
		fmt.Sprintf(`UPDATE %q SET document = ? WHERE _id = ?`, s.table), data, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) Delete(key string) error {
	_, err := s.h().Exec(
		fmt.Sprintf(`DELETE FROM %q WHERE _id = ?`, s.table), key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) Begin() error {
	if s.tx != nil {
		return fmt.Errorf("%w: transaction already active", ErrStore)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	s.tx = tx
	return nil
}

func (s *sqliteStore) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("%w: no active transaction", ErrStore)
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("%w: no active transaction", ErrStore)
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}
