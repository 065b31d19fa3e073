// Package memtxn provides an in-memory kv.Transaction for tests: no disk
// I/O, data held directly in a sorted slice.
package memtxn

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"bdex/pkg/kv"
)

type record struct {
	key   []byte
	value []byte
}

// Store is a process-local, sorted key-value map. It is not itself a
// kv.Transaction - call Txn to get one - but every Txn it produces observes
// the same underlying data immediately, mirroring a backend with no
// isolation of its own (suitable only for single-writer tests).
type Store struct {
	mu      sync.Mutex
	records []record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) find(key []byte) (int, bool) {
	i := sort.Search(len(s.records), func(i int) bool {
		return bytes.Compare(s.records[i].key, key) >= 0
	})
	if i < len(s.records) && bytes.Equal(s.records[i].key, key) {
		return i, true
	}
	return i, false
}

// Txn returns a kv.Transaction backed directly by the store.
func (s *Store) Txn() kv.Transaction {
	return &txn{store: s}
}

// Len reports the number of records currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type txn struct {
	store *Store
}

func (t *txn) Get(_ context.Context, key []byte) ([]byte, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	i, ok := t.store.find(key)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), t.store.records[i].value...), nil
}

func (t *txn) Set(_ context.Context, key, value []byte) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	i, ok := t.store.find(key)
	if ok {
		t.store.records[i].value = v
		return nil
	}
	t.store.records = append(t.store.records, record{})
	copy(t.store.records[i+1:], t.store.records[i:])
	t.store.records[i] = record{key: k, value: v}
	return nil
}

func (t *txn) Del(_ context.Context, key []byte) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	i, ok := t.store.find(key)
	if !ok {
		return nil
	}
	t.store.records = append(t.store.records[:i], t.store.records[i+1:]...)
	return nil
}

func (t *txn) Scan(_ context.Context, r kv.Range, limit int) ([]kv.Entry, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	start := sort.Search(len(t.store.records), func(i int) bool {
		return bytes.Compare(t.store.records[i].key, r.Start) >= 0
	})

	var out []kv.Entry
	for i := start; i < len(t.store.records); i++ {
		rec := t.store.records[i]
		if r.End != nil && bytes.Compare(rec.key, r.End) >= 0 {
			break
		}
		out = append(out, kv.Entry{
			Key:   append([]byte(nil), rec.key...),
			Value: append([]byte(nil), rec.value...),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
