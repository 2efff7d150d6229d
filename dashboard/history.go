// Package dashboard serves a read-only HTTP status page for a running
// master: queue depth, per-worker state, and a rolling log of recently
// completed work items. It is pure diagnostics: its absence, failure, or
// loss of data never affects the correctness of a search, which lives
// entirely in the store package.
package dashboard

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Entry is one recently completed work item, as shown on the dashboard.
type Entry struct {
	UID      int
	Command  string
	Fitness  float64
	Worker   string
	Elapsed  time.Duration
	Finished time.Time
}

// History is an auxiliary, non-authoritative log of recently completed
// WorkItems, grounded on cloudlus/util.go's leveldb-backed DB: a
// finish-ordered key prefix lets Recent fetch the newest N without
// scanning the whole log.
type History struct {
	db *leveldb.DB
}

const finishPrefix = "finish-"

// OpenHistory opens (or creates) a goleveldb database at path. An empty
// path opens an in-memory store, useful for a master run with no
// diagnostics persistence configured.
func OpenHistory(path string) (*History, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &History{db: db}, nil
}

// Close closes the underlying leveldb handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Record appends one completed work item to the history log.
func (h *History) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := make([]byte, 0, len(finishPrefix)+8)
	key = append(key, []byte(finishPrefix)...)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(e.Finished.UnixNano()))
	key = append(key, ts...)

	return h.db.Put(key, data, nil)
}

// Recent returns up to n of the most recently recorded entries, oldest
// first within that window.
func (h *History) Recent(n int) ([]Entry, error) {
	it := h.db.NewIterator(util.BytesPrefix([]byte(finishPrefix)), nil)
	defer it.Release()

	var all []Entry
	for it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, err
		}
		all = append(all, e)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
