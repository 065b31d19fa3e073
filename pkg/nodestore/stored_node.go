package nodestore

import "bdex/pkg/bnode"

// StoredNode is the in-memory handle a BTree operation works through: the
// node's id, the physical key it is (or will be) persisted under, its last
// known serialised size, and the decoded Node itself.
type StoredNode struct {
	ID   bnode.NodeID
	Key  []byte
	Size int
	Node *bnode.Node

	dirty bool
	blob  []byte
}

// Dirty reports whether this handle has unflushed mutations.
func (sn *StoredNode) Dirty() bool { return sn.dirty }
