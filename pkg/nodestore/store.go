// Package nodestore implements the write-through node cache that sits
// between the B-tree algorithmic layer and the backing kv.Transaction: a
// bounded hashicorp/golang-lru simplelru of StoredNodes, optionally paired
// with a cache.MemoryBudget for cross-component memory accounting.
package nodestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	simplelru "github.com/hashicorp/golang-lru/simplelru"

	"bdex/pkg/bnode"
	"bdex/pkg/bterrors"
	"bdex/pkg/cache"
	"bdex/pkg/kv"
	"bdex/pkg/nodeid"
)

// Mode selects a NodeStore's caching and write discipline.
type Mode int

const (
	// ModeWrite is read-through, write-back, with a bounded LRU; dirty
	// evictions flush immediately, finish drains whatever remains dirty.
	ModeWrite Mode = iota
	// ModeRead behaves like ModeWrite but refuses dirty set_node calls.
	ModeRead
	// ModeTraversal caches nothing: every get reads through, every set
	// discards.
	ModeTraversal
)

const memoryComponent = "nodestore"

// NodeStore fronts one kv.Transaction for the lifetime of a single tree
// operation. It is not safe for concurrent use; the caller acquires the
// store's single mutex for the duration of exactly one operation.
type NodeStore struct {
	mu sync.Mutex

	mode     Mode
	provider nodeid.Provider
	budget   *cache.MemoryBudget

	lru        *simplelru.LRU
	checkedOut map[bnode.NodeID]*StoredNode
	dirty      map[bnode.NodeID]*StoredNode
	deletes    map[bnode.NodeID][]byte

	ctx      context.Context
	tx       kv.Transaction
	flushErr error
}

// New constructs a NodeStore. capacity is ignored for ModeTraversal. budget
// may be nil, in which case no memory accounting is performed.
func New(mode Mode, capacity int, provider nodeid.Provider, budget *cache.MemoryBudget) (*NodeStore, error) {
	s := &NodeStore{
		mode:       mode,
		provider:   provider,
		budget:     budget,
		checkedOut: make(map[bnode.NodeID]*StoredNode),
		dirty:      make(map[bnode.NodeID]*StoredNode),
		deletes:    make(map[bnode.NodeID][]byte),
	}
	if budget != nil {
		budget.RegisterComponent(memoryComponent)
	}
	if mode != ModeTraversal {
		if capacity <= 0 {
			capacity = 1
		}
		l, err := simplelru.NewLRU(capacity, s.onEvict)
		if err != nil {
			return nil, bterrors.Corrupted("node store: bad lru capacity", err)
		}
		s.lru = l
	}
	return s, nil
}

// Lock acquires the store's mutual-exclusion guard. A caller holds it for
// the duration of exactly one tree operation.
func (s *NodeStore) Lock() { s.mu.Lock() }

// Unlock releases the guard acquired by Lock.
func (s *NodeStore) Unlock() { s.mu.Unlock() }

// Bind attaches the transaction a subsequent GetNode/SetNode/RemoveNode/
// Finish sequence will operate against. It must be called once before any
// other method, at the start of the tree operation that owns this store.
func (s *NodeStore) Bind(ctx context.Context, tx kv.Transaction) {
	s.ctx = ctx
	s.tx = tx
	s.flushErr = nil
}

func (s *NodeStore) itemKey(id bnode.NodeID) string {
	return fmt.Sprintf("%d", uint64(id))
}

// onEvict is the simplelru callback fired synchronously from inside Add
// when the cache is over capacity. A dirty victim is flushed to the
// transaction right away - the first of the two write phases, ahead of
// Finish's final drain - a clean victim is simply dropped.
func (s *NodeStore) onEvict(key, value interface{}) {
	id := key.(bnode.NodeID)
	sn := value.(*StoredNode)

	if s.budget != nil {
		s.budget.ReleaseItem(memoryComponent, s.itemKey(id))
	}

	if !sn.dirty {
		return
	}
	if s.flushErr != nil {
		return
	}
	if err := s.flush(sn); err != nil {
		s.flushErr = err
		return
	}
	delete(s.dirty, id)
}

func (s *NodeStore) flush(sn *StoredNode) error {
	blob := sn.blob
	if blob == nil {
		b, err := sn.Node.Encode()
		if err != nil {
			return err
		}
		blob = b
		sn.blob = b
		sn.Size = len(b)
	}
	if err := s.tx.Set(s.ctx, sn.Key, blob); err != nil {
		return bterrors.Backend("node store: flush", err)
	}
	return nil
}

// GetNode fetches the node with the given id, either from cache or by
// reading through the bound transaction. The returned handle is considered
// checked out until it is passed back to SetNode; a second GetNode for the
// same id before that happens is a CorruptedIndex.
func (s *NodeStore) GetNode(id bnode.NodeID) (*StoredNode, error) {
	if _, ok := s.checkedOut[id]; ok {
		return nil, bterrors.Corrupted("node store: node already checked out", nil)
	}

	if s.mode != ModeTraversal {
		if v, ok := s.lru.Get(id); ok {
			sn := v.(*StoredNode)
			s.lru.Remove(id)
			s.checkedOut[id] = sn
			return sn, nil
		}
	}

	key := s.provider.Encode(id)
	raw, err := s.tx.Get(s.ctx, key)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, bterrors.Corrupted("node store: node missing from backend", nil)
		}
		return nil, bterrors.Backend("node store: get", err)
	}
	node, err := bnode.Decode(raw)
	if err != nil {
		return nil, err
	}

	sn := &StoredNode{ID: id, Key: key, Size: len(raw), Node: node}
	s.checkedOut[id] = sn
	return sn, nil
}

// NewNode registers a freshly allocated node, not yet serialised, as
// checked out under id.
func (s *NodeStore) NewNode(id bnode.NodeID, node *bnode.Node) *StoredNode {
	sn := &StoredNode{ID: id, Key: s.provider.Encode(id), Size: 0, Node: node}
	s.checkedOut[id] = sn
	return sn
}

// SetNode returns a checked-out handle to the store with an updated dirty
// flag.
func (s *NodeStore) SetNode(sn *StoredNode, dirty bool) error {
	if _, ok := s.checkedOut[sn.ID]; !ok {
		return bterrors.Corrupted("node store: set_node without a matching checkout", nil)
	}
	delete(s.checkedOut, sn.ID)

	if s.mode == ModeRead && dirty {
		return bterrors.Corrupted("node store: dirty set_node against a read-only store", nil)
	}

	if s.mode == ModeTraversal {
		return nil
	}

	sn.dirty = dirty
	if s.budget != nil {
		s.budget.ReleaseItem(memoryComponent, s.itemKey(sn.ID))
	}
	if dirty {
		sn.blob = nil
		blob, err := sn.Node.Encode()
		if err != nil {
			return err
		}
		sn.blob = blob
		sn.Size = len(blob)
		s.dirty[sn.ID] = sn
		if s.budget != nil {
			s.budget.TrackWithPriority(memoryComponent, s.itemKey(sn.ID), int64(len(blob)), cache.PriorityWarm)
		}
	} else {
		delete(s.dirty, sn.ID)
		if s.budget != nil {
			s.budget.TrackWithPriority(memoryComponent, s.itemKey(sn.ID), int64(sn.Size), cache.PriorityCold)
		}
	}

	s.lru.Add(sn.ID, sn)
	if s.flushErr != nil {
		err := s.flushErr
		s.flushErr = nil
		return err
	}
	return nil
}

// RemoveNode evicts id from the cache and schedules its physical key for
// deletion at Finish.
func (s *NodeStore) RemoveNode(id bnode.NodeID, key []byte) error {
	if s.mode == ModeTraversal {
		return bterrors.Unreachable("node store: remove_node against a traversal store")
	}

	if _, ok := s.checkedOut[id]; ok {
		delete(s.checkedOut, id)
	} else if s.lru != nil {
		s.lru.Remove(id)
	}
	delete(s.dirty, id)
	if s.budget != nil {
		s.budget.ReleaseItem(memoryComponent, s.itemKey(id))
	}
	s.deletes[id] = key
	return nil
}

// Finish drains every remaining dirty resident, in ascending NodeId order,
// and issues every scheduled delete, then resets the store's bookkeeping.
// The caller must call Finish before committing the backing transaction;
// omitting it silently discards every unflushed update.
func (s *NodeStore) Finish() error {
	if len(s.checkedOut) != 0 {
		return bterrors.Corrupted("node store: finish called with live checkouts outstanding", nil)
	}

	ids := make([]bnode.NodeID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sn := s.dirty[id]
		if err := s.flush(sn); err != nil {
			return err
		}
		sn.dirty = false
		delete(s.dirty, id)
	}

	delIDs := make([]bnode.NodeID, 0, len(s.deletes))
	for id := range s.deletes {
		delIDs = append(delIDs, id)
	}
	sort.Slice(delIDs, func(i, j int) bool { return delIDs[i] < delIDs[j] })

	for _, id := range delIDs {
		key := s.deletes[id]
		if err := s.tx.Del(s.ctx, key); err != nil {
			return bterrors.Backend("node store: finish delete", err)
		}
		delete(s.deletes, id)
	}

	return nil
}
