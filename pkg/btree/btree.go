// Package btree implements the algorithmic layer of the B-tree index
// engine: search, CLRS-style proactive top-down insertion, CLRS section
// 18.3 top-down deletion, and a breadth-first statistics walk. It owns the
// small persisted State and drives a nodestore.NodeStore scoped to one
// caller-supplied transaction per operation.
package btree

import (
	"context"

	"bdex/pkg/bnode"
	"bdex/pkg/bterrors"
	"bdex/pkg/cache"
	"bdex/pkg/keypack"
	"bdex/pkg/kv"
	"bdex/pkg/nodeid"
	"bdex/pkg/nodestore"
)

// Config carries the options recognised when opening a BTree.
type Config struct {
	// MinimumDegree is CLRS t; must be >= 2.
	MinimumDegree int
	// StoreCapacity bounds the NodeStore LRU used by Search.
	StoreCapacity int
	// StoreMode selects the cache discipline Search uses; ModeTraversal
	// is run as ModeRead. Insert and
	// Delete always open their own store in ModeWrite, since they must
	// be able to flush dirty nodes regardless of this setting, and
	// Statistics always uses ModeTraversal.
	StoreMode nodestore.Mode
	// KeyPack selects which concrete key-packing strategy new nodes use.
	KeyPack keypack.Kind
}

// Statistics summarises a breadth-first walk of the tree.
type Statistics struct {
	KeysCount  int
	MaxDepth   int
	NodesCount int
	TotalSize  int
}

// BTree is the algorithmic layer bound to one Config, one KeyProvider and
// one persisted State. It is not safe for concurrent use: one logical
// writer operates against it at a time, per the single-operation-at-a-time
// scheduling model.
type BTree struct {
	cfg      Config
	state    State
	provider nodeid.Provider
	budget   *cache.MemoryBudget
	updated  bool
}

// New opens a BTree against an already-loaded state. budget may be nil.
func New(cfg Config, state State, provider nodeid.Provider, budget *cache.MemoryBudget) (*BTree, error) {
	if cfg.MinimumDegree < 2 {
		return nil, bterrors.Corrupted("btree: minimum_degree must be >= 2", nil)
	}
	if state.MinimumDegree == 0 {
		state.MinimumDegree = cfg.MinimumDegree
	}
	if state.MinimumDegree != cfg.MinimumDegree {
		return nil, bterrors.Corrupted("btree: state minimum_degree does not match config", nil)
	}
	return &BTree{cfg: cfg, state: state, provider: provider, budget: budget}, nil
}

// State returns the current persisted state. The caller should write it
// back whenever IsUpdated is true.
func (t *BTree) State() State { return t.state }

// IsUpdated reports whether any operation has modified the tree since
// construction. The flag only ever accumulates; nothing clears it.
func (t *BTree) IsUpdated() bool { return t.updated }

func (t *BTree) allocID() bnode.NodeID {
	id := t.state.NextNodeID
	t.state.NextNodeID++
	return id
}

func (t *BTree) newLeaf() (bnode.NodeID, *bnode.Node, error) {
	n, err := bnode.NewLeaf(t.cfg.KeyPack)
	if err != nil {
		return 0, nil, err
	}
	return t.allocID(), n, nil
}

func (t *BTree) newInternal() (bnode.NodeID, *bnode.Node, error) {
	n, err := bnode.NewInternal(t.cfg.KeyPack)
	if err != nil {
		return 0, nil, err
	}
	return t.allocID(), n, nil
}

func (t *BTree) openStore(ctx context.Context, tx kv.Transaction, mode nodestore.Mode) (*nodestore.NodeStore, error) {
	capacity := t.cfg.StoreCapacity
	if capacity <= 0 {
		capacity = 64
	}
	s, err := nodestore.New(mode, capacity, t.provider, t.budget)
	if err != nil {
		return nil, err
	}
	s.Bind(ctx, tx)
	return s, nil
}

// Search walks from the root looking for key, returning its payload if
// present. Every fetched node is returned to the store clean.
func (t *BTree) Search(ctx context.Context, tx kv.Transaction, key keypack.Key) (keypack.Payload, bool, error) {
	if t.state.Root == nil {
		return 0, false, nil
	}

	mode := t.cfg.StoreMode
	if mode == nodestore.ModeTraversal {
		mode = nodestore.ModeRead
	}
	store, err := t.openStore(ctx, tx, mode)
	if err != nil {
		return 0, false, err
	}
	store.Lock()
	defer store.Unlock()

	id := *t.state.Root
	for {
		sn, err := store.GetNode(id)
		if err != nil {
			return 0, false, err
		}
		if p, ok := sn.Node.Keys.Get(key); ok {
			if err := store.SetNode(sn, false); err != nil {
				return 0, false, err
			}
			if err := store.Finish(); err != nil {
				return 0, false, err
			}
			return p, true, nil
		}
		if sn.Node.Leaf {
			if err := store.SetNode(sn, false); err != nil {
				return 0, false, err
			}
			if err := store.Finish(); err != nil {
				return 0, false, err
			}
			return 0, false, nil
		}
		next := sn.Node.Children[sn.Node.Keys.GetChildIdx(key)]
		if err := store.SetNode(sn, false); err != nil {
			return 0, false, err
		}
		id = next
	}
}
