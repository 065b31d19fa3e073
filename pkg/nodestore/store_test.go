package nodestore

import (
	"context"
	"testing"

	"bdex/pkg/bnode"
	"bdex/pkg/cache"
	"bdex/pkg/keypack"
	"bdex/pkg/kv/memtxn"
	"bdex/pkg/nodeid"
)

func newLeafNode(t *testing.T, key string, payload keypack.Payload) *bnode.Node {
	t.Helper()
	n, err := bnode.NewLeaf(keypack.KindTrie)
	if err != nil {
		t.Fatalf("NewLeaf: %v", err)
	}
	n.Keys.Insert(keypack.Key(key), payload)
	return n
}

func TestWriteThenReadBack(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()

	s, err := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Bind(ctx, store.Txn())

	sn := s.NewNode(1, newLeafNode(t, "a", 1))
	if err := s.SetNode(sn, true); err != nil {
		t.Fatalf("SetNode: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("backend len = %d, want 1", store.Len())
	}

	s2, err := New(ModeRead, 8, nodeid.DebugProvider{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s2.Bind(ctx, store.Txn())
	got, err := s2.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Node.Keys.Len() != 1 {
		t.Fatalf("read-back node has %d keys, want 1", got.Node.Keys.Len())
	}
	if err := s2.SetNode(got, false); err != nil {
		t.Fatalf("SetNode(clean): %v", err)
	}
	if err := s2.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestDoubleCheckoutRejected(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()
	s, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	s.Bind(ctx, store.Txn())

	// NewNode leaves id 1 checked out; a second GetNode before it is
	// returned via SetNode/RemoveNode must fail.
	_ = s.NewNode(1, newLeafNode(t, "a", 1))
	if _, err := s.GetNode(1); err == nil {
		t.Fatalf("expected error checking out an already-checked-out node")
	}
}

func TestFinishRejectsOutstandingCheckout(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()
	s, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	s.Bind(ctx, store.Txn())

	_ = s.NewNode(1, newLeafNode(t, "a", 1))
	if err := s.Finish(); err == nil {
		t.Fatalf("expected Finish to reject an outstanding checkout")
	}
}

func TestReadModeRejectsDirtySet(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()
	s, _ := New(ModeRead, 8, nodeid.DebugProvider{}, nil)
	s.Bind(ctx, store.Txn())

	sn := s.NewNode(1, newLeafNode(t, "a", 1))
	if err := s.SetNode(sn, true); err == nil {
		t.Fatalf("expected error setting a node dirty against a read-only store")
	}
}

func TestTraversalModeDiscardsWrites(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()

	// Seed one node through a write-mode store.
	w, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	w.Bind(ctx, store.Txn())
	sn := w.NewNode(1, newLeafNode(t, "a", 1))
	if err := w.SetNode(sn, true); err != nil {
		t.Fatalf("SetNode: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	tr, _ := New(ModeTraversal, 8, nodeid.DebugProvider{}, nil)
	tr.Bind(ctx, store.Txn())
	got, err := tr.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	got.Node.Keys.Insert(keypack.Key("z"), 99)
	if err := tr.SetNode(got, true); err != nil {
		t.Fatalf("SetNode in traversal mode should not error: %v", err)
	}
	if err := tr.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// Re-read through a fresh write store: the mutation must not have
	// been persisted.
	w2, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	w2.Bind(ctx, store.Txn())
	reread, err := w2.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if reread.Node.Keys.Len() != 1 {
		t.Fatalf("traversal-mode write leaked to backend: len = %d, want 1", reread.Node.Keys.Len())
	}
}

func TestRemoveNodeSchedulesDelete(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()

	w, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	w.Bind(ctx, store.Txn())
	sn := w.NewNode(1, newLeafNode(t, "a", 1))
	if err := w.SetNode(sn, true); err != nil {
		t.Fatalf("SetNode: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("backend len = %d, want 1", store.Len())
	}

	w2, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, nil)
	w2.Bind(ctx, store.Txn())
	got, err := w2.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if err := w2.RemoveNode(got.ID, got.Key); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if err := w2.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("backend len = %d, want 0 after removal", store.Len())
	}
}

func TestEvictionFlushesDirtyNode(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()

	s, _ := New(ModeWrite, 1, nodeid.DebugProvider{}, nil)
	s.Bind(ctx, store.Txn())

	sn1 := s.NewNode(1, newLeafNode(t, "a", 1))
	if err := s.SetNode(sn1, true); err != nil {
		t.Fatalf("SetNode 1: %v", err)
	}

	// Capacity 1: checking out and setting a second node evicts the
	// first, which must flush since it was dirty.
	sn2 := s.NewNode(2, newLeafNode(t, "b", 2))
	if err := s.SetNode(sn2, true); err != nil {
		t.Fatalf("SetNode 2: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("backend len = %d, want 1 (evicted node flushed)", store.Len())
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("backend len = %d, want 2 after finish", store.Len())
	}
}

func TestMemoryBudgetTracksResidents(t *testing.T) {
	store := memtxn.NewStore()
	ctx := context.Background()
	budget := cache.NewMemoryBudget(1 << 20)

	s, _ := New(ModeWrite, 8, nodeid.DebugProvider{}, budget)
	s.Bind(ctx, store.Txn())

	sn := s.NewNode(1, newLeafNode(t, "a", 1))
	if err := s.SetNode(sn, true); err != nil {
		t.Fatalf("SetNode: %v", err)
	}
	if budget.ComponentUsage("nodestore") == 0 {
		t.Fatalf("expected nonzero tracked usage for nodestore component")
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
