package store

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"
)

// backends runs a subtest per storage driver against a fresh database.
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Helper()

	t.Run("badger", func(t *testing.T) {
		b, err := OpenBadger(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to open badger backend: %v", err)
		}
		defer b.Close()
		fn(t, b)
	})

	t.Run("sqlite", func(t *testing.T) {
		b, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("Failed to open sqlite backend: %v", err)
		}
		defer b.Close()
		fn(t, b)
	})
}

func mustCollection(t *testing.T, b Backend, name string) Store {
	t.Helper()
	s, err := b.Collection(name)
	if err != nil {
		t.Fatalf("Failed to open collection %s: %v", name, err)
	}
	return s
}

func scanKeys(t *testing.T, s Store) []string {
	t.Helper()
	rows, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	sort.Strings(keys)
	return keys
}

func TestInsertAndScan(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Insert("a", []byte(`{"_id":"a"}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := s.Insert("b", []byte(`{"_id":"b"}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		keys := scanKeys(t, s)
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("Expected keys [a b], got %v", keys)
		}
	})
}

func TestInsertDuplicate(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Insert("a", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		err := s.Insert("a", []byte(`{}`))
		if !errors.Is(err, ErrDuplicateKey) {
			t.Errorf("Expected ErrDuplicateKey, got %v", err)
		}
	})
}

func TestUpdateOverwrites(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Insert("a", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := s.Update("a", []byte(`{"v":2}`)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		rows, err := s.Scan()
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(rows) != 1 || string(rows[0].Data) != `{"v":2}` {
			t.Errorf("Expected updated row, got %v", rows)
		}
	})
}

func TestDelete(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Insert("a", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := s.Delete("a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if keys := scanKeys(t, s); len(keys) != 0 {
			t.Errorf("Expected empty collection, got %v", keys)
		}
	})
}

func TestCollectionsAreIsolated(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		users := mustCollection(t, b, "users")
		orders := mustCollection(t, b, "orders")

		if err := users.Insert("a", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if keys := scanKeys(t, orders); len(keys) != 0 {
			t.Errorf("Expected orders to be empty, got %v", keys)
		}
	})
}

func TestTransactionRollback(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Insert("kept", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		if err := s.Begin(); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := s.Insert("discarded", []byte(`{}`)); err != nil {
			t.Fatalf("Insert in transaction failed: %v", err)
		}

		// Reads inside the batch see its writes.
		if keys := scanKeys(t, s); len(keys) != 2 {
			t.Errorf("Expected 2 keys inside transaction, got %v", keys)
		}

		if err := s.Rollback(); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}

		keys := scanKeys(t, s)
		if len(keys) != 1 || keys[0] != "kept" {
			t.Errorf("Expected only the pre-transaction key, got %v", keys)
		}
	})
}

func TestTransactionCommit(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Begin(); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := s.Insert("a", []byte(`{}`)); err != nil {
			t.Fatalf("Insert in transaction failed: %v", err)
		}
		if err := s.Update("a", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("Update in transaction failed: %v", err)
		}
		if err := s.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		rows, err := s.Scan()
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(rows) != 1 || string(rows[0].Data) != `{"v":1}` {
			t.Errorf("Expected committed row, got %v", rows)
		}
	})
}

func TestTransactionMisuse(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		s := mustCollection(t, b, "users")

		if err := s.Commit(); err == nil {
			t.Error("Expected Commit without Begin to fail")
		}
		if err := s.Begin(); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := s.Begin(); err == nil {
			t.Error("Expected nested Begin to fail")
		}
		if err := s.Rollback(); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}
	})
}

func TestInvalidCollectionName(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		for _, name := range []string{"", "has space", "semi;colon", "1leading", "dotted.name"} {
			if _, err := b.Collection(name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Expected ErrInvalidName for %q, got %v", name, err)
			}
		}
	})
}

func TestListCollections(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		users := mustCollection(t, b, "users")
		orders := mustCollection(t, b, "orders")
		if err := users.Insert("a", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := orders.Insert("b", []byte(`{}`)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		names, err := b.ListCollections()
		if err != nil {
			t.Fatalf("ListCollections failed: %v", err)
		}
		sort.Strings(names)
		if len(names) != 2 || names[0] != "orders" || names[1] != "users" {
			t.Errorf("Expected [orders users], got %v", names)
		}
	})
}
