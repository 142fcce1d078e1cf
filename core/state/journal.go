package state

import (
	"errors"
	"fmt"

	"stablecore/storage"
)

// dirtyEntry is a pending write held in memory until Commit.
type dirtyEntry struct {
	value   []byte
	deleted bool
}

// journalEntry records what a key looked like before a write so it can be
// restored when a snapshot is reverted.
type journalEntry struct {
	key     string
	prev    dirtyEntry
	hadPrev bool
}

// overlay buffers writes on top of a storage.Database. Reads see pending
// writes first. Nothing reaches the database before Commit.
type overlay struct {
	db      storage.Database
	dirty   map[string]dirtyEntry
	journal []journalEntry
}

func newOverlay(db storage.Database) *overlay {
	return &overlay{db: db, dirty: make(map[string]dirtyEntry)}
}

func (o *overlay) get(key []byte) ([]byte, error) {
	if entry, ok := o.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return append([]byte(nil), entry.value...), nil
	}
	value, err := o.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (o *overlay) record(key string) {
	prev, had := o.dirty[key]
	o.journal = append(o.journal, journalEntry{key: key, prev: prev, hadPrev: had})
}

func (o *overlay) update(key, value []byte) error {
	k := string(key)
	o.record(k)
	o.dirty[k] = dirtyEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *overlay) remove(key []byte) error {
	k := string(key)
	o.record(k)
	o.dirty[k] = dirtyEntry{deleted: true}
	return nil
}

func (o *overlay) snapshot() int {
	return len(o.journal)
}

func (o *overlay) revert(id int) {
	if id < 0 || id > len(o.journal) {
		panic(fmt.Sprintf("state: invalid snapshot %d (journal %d)", id, len(o.journal)))
	}
	for i := len(o.journal) - 1; i >= id; i-- {
		entry := o.journal[i]
		if entry.hadPrev {
			o.dirty[entry.key] = entry.prev
		} else {
			delete(o.dirty, entry.key)
		}
	}
	o.journal = o.journal[:id]
}

func (o *overlay) commit() error {
	if len(o.dirty) == 0 {
		o.journal = o.journal[:0]
		return nil
	}
	batch := storage.NewBatch()
	for key, entry := range o.dirty {
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	if err := o.db.Write(batch); err != nil {
		return err
	}
	o.dirty = make(map[string]dirtyEntry)
	o.journal = o.journal[:0]
	return nil
}

func (o *overlay) discard() {
	o.dirty = make(map[string]dirtyEntry)
	o.journal = o.journal[:0]
}
