package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores every collection in one Badger instance under a
// doc:<collection>: key prefix.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger-backed database at path.
func OpenBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Close closes the underlying Badger instance.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// Collection returns a store scoped to one collection's key prefix.
func (b *BadgerBackend) Collection(name string) (Store, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return &badgerStore{db: b.db, prefix: "doc:" + name + ":"}, nil
}

// ListCollections scans the document keyspace and reports every
// collection that holds at least one document.
func (b *BadgerBackend) ListCollections() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("doc:")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, "doc:")
			name, _, ok := strings.Cut(rest, ":")
			if ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return names, nil
}

type badgerStore struct {
	db     *badger.DB
	prefix string
	txn    *badger.Txn // active batch, nil outside Begin/Commit
}

func (s *badgerStore) key(k string) []byte {
	return []byte(s.prefix + k)
}

func (s *badgerStore) Scan() ([]Row, error) {
	var rows []Row
	scan := func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(s.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, Row{
				Key:  strings.TrimPrefix(string(item.Key()), s.prefix),
				Data: data,
			})
		}
		return nil
	}

	var err error
	if s.txn != nil {
		err = scan(s.txn)
	} else {
		err = s.db.View(scan)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return rows, nil
}

func (s *badgerStore) Insert(key string, data []byte) error {
	insert := func(txn *badger.Txn) error {
		k := s.key(key)
		_, err := txn.Get(k)
		if err == nil {
			return ErrDuplicateKey
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(k, data)
	}

	var err error
	if s.txn != nil {
		err = insert(s.txn)
	} else {
		err = s.db.Update(insert)
	}
	if err == ErrDuplicateKey {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *badgerStore) Update(key string, data []byte) error {
	return s.write(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), data)
	})
}

func (s *badgerStore) Delete(key string) error {
	return s.write(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}

func (s *badgerStore) write(fn func(*badger.Txn) error) error {
	var err error
	if s.txn != nil {
		err = fn(s.txn)
	} else {
		err = s.db.Update(fn)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *badgerStore) Begin() error {
	if s.txn != nil {
		return fmt.Errorf("%w: transaction already active", ErrStore)
	}
	s.txn = s.db.NewTransaction(true)
	return nil
}

func (s *badgerStore) Commit() error {
	if s.txn == nil {
		return fmt.Errorf("%w: no active transaction", ErrStore)
	}
	err := s.txn.Commit()
	s.txn = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *badgerStore) Rollback() error {
	if s.txn == nil {
		return fmt.Errorf("%w: no active transaction", ErrStore)
	}
	s.txn.Discard()
	s.txn = nil
	return nil
}
