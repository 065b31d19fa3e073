package btree

import (
	"context"

	"bdex/pkg/bnode"
	"bdex/pkg/bterrors"
	"bdex/pkg/keypack"
	"bdex/pkg/kv"
	"bdex/pkg/nodestore"
)

// splitChild splits the full childSn into two halves and promotes the
// median into parentNode, which must not itself be full. childSn's id is
// reused by the left half; a fresh id is allocated for the right half. Both
// halves and the (already checked-out, not-yet-full) parent are left in the
// state the caller expects: childSn is mutated in place and persisted
// dirty, the right half is registered and persisted dirty, and parentNode's
// Keys/Children are mutated in memory only - the caller persists parentNode
// once it is done with whatever else this visit to it requires.
func (t *BTree) splitChild(store *nodestore.NodeStore, parentID bnode.NodeID, parentNode *bnode.Node, i int, childSn *nodestore.StoredNode) error {
	left, right, mk, mp, err := childSn.Node.SplitKeysAndChildren()
	if err != nil {
		return err
	}
	if left.Keys.Len() != t.cfg.MinimumDegree-1 || right.Keys.Len() != t.cfg.MinimumDegree-1 {
		return bterrors.Corrupted("split: half sizes do not match minimum degree", nil)
	}
	rightID := t.allocID()

	childSn.Node = left
	parentNode.Keys.Insert(mk, mp)
	if !parentNode.Leaf {
		children := make([]bnode.NodeID, 0, len(parentNode.Children)+1)
		children = append(children, parentNode.Children[:i+1]...)
		children = append(children, rightID)
		children = append(children, parentNode.Children[i+1:]...)
		parentNode.Children = children
	}

	if err := store.SetNode(childSn, true); err != nil {
		return err
	}
	rightSn := store.NewNode(rightID, right)
	if err := store.SetNode(rightSn, true); err != nil {
		return err
	}
	return nil
}

// Insert adds or overwrites key -> payload. It never revisits a node on the
// way down: any full node on the descent path is split before the
// algorithm steps into it, so every child fetched is guaranteed non-full.
func (t *BTree) Insert(ctx context.Context, tx kv.Transaction, key keypack.Key, payload keypack.Payload) error {
	store, err := t.openStore(ctx, tx, nodestore.ModeWrite)
	if err != nil {
		return err
	}
	store.Lock()
	defer store.Unlock()

	if t.state.Root == nil {
		id, n, err := t.newLeaf()
		if err != nil {
			return err
		}
		n.Keys.Insert(key, payload)
		sn := store.NewNode(id, n)
		if err := store.SetNode(sn, true); err != nil {
			return err
		}
		t.state.Root = &id
		t.updated = true
		return store.Finish()
	}

	rootID := *t.state.Root
	root, err := store.GetNode(rootID)
	if err != nil {
		return err
	}

	var node *nodestore.StoredNode
	nodeDirty := false

	if root.Node.IsFull(t.cfg.MinimumDegree) {
		newRootID, newRootNode, err := t.newInternal()
		if err != nil {
			return err
		}
		newRootNode.Children = []bnode.NodeID{rootID}
		if err := t.splitChild(store, newRootID, newRootNode, 0, root); err != nil {
			return err
		}
		newRootSn := store.NewNode(newRootID, newRootNode)
		if err := store.SetNode(newRootSn, true); err != nil {
			return err
		}

		t.state.Root = &newRootID
		t.updated = true

		node, err = store.GetNode(newRootID)
		if err != nil {
			return err
		}
	} else {
		node = root
	}

	for {
		if node.Node.Leaf {
			node.Node.Keys.Insert(key, payload)
			t.updated = true
			if err := store.SetNode(node, true); err != nil {
				return err
			}
			break
		}

		if _, ok := node.Node.Keys.Get(key); ok {
			node.Node.Keys.Insert(key, payload)
			t.updated = true
			if err := store.SetNode(node, true); err != nil {
				return err
			}
			break
		}

		i := node.Node.Keys.GetChildIdx(key)
		childID := node.Node.Children[i]
		child, err := store.GetNode(childID)
		if err != nil {
			return err
		}

		if child.Node.IsFull(t.cfg.MinimumDegree) {
			if err := t.splitChild(store, node.ID, node.Node, i, child); err != nil {
				return err
			}
			nodeDirty = true
			continue
		}

		if err := store.SetNode(node, nodeDirty); err != nil {
			return err
		}
		node = child
		nodeDirty = false
	}

	return store.Finish()
}
