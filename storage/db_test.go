package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseBatch(t *testing.T, db Database) {
	t.Helper()
	if err := db.Put([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := NewBatch()
	batch.Put([]byte("pos/a"), []byte("1"))
	batch.Put([]byte("pos/b"), []byte("2"))
	batch.Delete([]byte("stale"))
	if batch.Len() != 3 {
		t.Fatalf("expected 3 queued ops, got %d", batch.Len())
	}
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	value, err := db.Get([]byte("pos/b"))
	if err != nil || string(value) != "2" {
		t.Fatalf("unexpected value %q err %v", value, err)
	}
	if _, err := db.Get([]byte("stale")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Write(nil); err != nil {
		t.Fatalf("nil batch: %v", err)
	}
}

func TestMemDBBatch(t *testing.T) {
	db := NewMemDB()
	exerciseBatch(t, db)
	keys := db.Keys()
	if len(keys) != 2 || keys[0] != "pos/a" || keys[1] != "pos/b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'z'
	got, _ := db.Get([]byte("k"))
	got[1] = 'z'
	again, _ := db.Get([]byte("k"))
	if string(again) != "abc" {
		t.Fatalf("stored value was aliased: %q", again)
	}
}

func TestLevelDBBatchAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseBatch(t, db)
	count, err := db.Count([]byte("pos/"))
	if err != nil || count != 2 {
		t.Fatalf("expected 2 keys, got %d err %v", count, err)
	}
	db.Close()

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get([]byte("pos/a"))
	if err != nil || string(value) != "1" {
		t.Fatalf("value not persisted: %q err %v", value, err)
	}
}
