package btree

import (
	"context"

	"bdex/pkg/bnode"
	"bdex/pkg/bterrors"
	"bdex/pkg/keypack"
	"bdex/pkg/kv"
	"bdex/pkg/nodestore"
)

// Delete implements CLRS section 18.3 top-down deletion: before descending
// into any child holding exactly t-1 keys, the child is rebalanced (by
// rotation from a sibling with spare keys, or by merging) so that every
// node the algorithm actually removes a key from already has at least t.
// The loop never revisits a node once it has moved past it: each iteration
// settles the current node and hands the next work item to the following
// one, in place of recursion.
func (t *BTree) Delete(ctx context.Context, tx kv.Transaction, key keypack.Key) (keypack.Payload, bool, error) {
	if t.state.Root == nil {
		return 0, false, nil
	}

	store, err := t.openStore(ctx, tx, nodestore.ModeWrite)
	if err != nil {
		return 0, false, err
	}
	store.Lock()
	defer store.Unlock()

	rootID := *t.state.Root
	minT := t.cfg.MinimumDegree

	cur, err := store.GetNode(rootID)
	if err != nil {
		return 0, false, err
	}

	searchKey := key
	isMainKey := true
	// curDirty carries unflushed rebalance mutations on cur across loop
	// iterations, the same way insert threads nodeDirty past a split.
	curDirty := false
	var result keypack.Payload
	var found bool

	for {
		p, ok := cur.Node.Keys.Get(searchKey)

		if ok && cur.Node.Leaf {
			// Case 1.
			cur.Node.Keys.Remove(searchKey)
			if isMainKey {
				result, found = p, true
			}
			if cur.Node.Keys.Len() == 0 {
				if cur.ID != rootID {
					return 0, false, bterrors.Unreachable("delete: non-root leaf emptied")
				}
				if err := store.RemoveNode(cur.ID, cur.Key); err != nil {
					return 0, false, err
				}
				t.state.Root = nil
			} else if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}
			t.updated = true
			break
		}

		if ok {
			// Case 2: internal node, key found here.
			idx := cur.Node.Keys.GetChildIdx(searchKey)
			yID, zID := cur.Node.Children[idx-1], cur.Node.Children[idx]

			y, err := store.GetNode(yID)
			if err != nil {
				return 0, false, err
			}

			if y.Node.Keys.Len() >= minT {
				// Case 2a.
				predKey, predPayload, _ := y.Node.Keys.Last()
				if isMainKey {
					result, found = p, true
				}
				cur.Node.Keys.Remove(searchKey)
				cur.Node.Keys.Insert(predKey, predPayload)
				if err := store.SetNode(cur, true); err != nil {
					return 0, false, err
				}
				cur = y
				curDirty = false
				searchKey = predKey
				isMainKey = false
				t.updated = true
				continue
			}

			z, err := store.GetNode(zID)
			if err != nil {
				return 0, false, err
			}

			if z.Node.Keys.Len() >= minT {
				// Case 2b.
				succKey, succPayload, _ := z.Node.Keys.First()
				if isMainKey {
					result, found = p, true
				}
				cur.Node.Keys.Remove(searchKey)
				cur.Node.Keys.Insert(succKey, succPayload)
				if err := store.SetNode(cur, true); err != nil {
					return 0, false, err
				}
				if err := store.SetNode(y, false); err != nil {
					return 0, false, err
				}
				cur = z
				curDirty = false
				searchKey = succKey
				isMainKey = false
				t.updated = true
				continue
			}

			// Case 2c: merge y, the target key, and z into y.
			if isMainKey {
				result, found = p, true
			}
			isMainKey = false
			cur.Node.Keys.Remove(searchKey)
			cur.Node.Children = append(append([]bnode.NodeID{}, cur.Node.Children[:idx]...), cur.Node.Children[idx+1:]...)
			if err := y.Node.Append(searchKey, 0, z.Node); err != nil {
				return 0, false, err
			}
			if err := store.RemoveNode(z.ID, z.Key); err != nil {
				return 0, false, err
			}
			if cur.Node.Keys.Len() == 0 {
				if cur.ID != rootID {
					return 0, false, bterrors.Unreachable("delete: non-root internal node emptied by merge")
				}
				if err := store.RemoveNode(cur.ID, cur.Key); err != nil {
					return 0, false, err
				}
				newRoot := y.ID
				t.state.Root = &newRoot
			} else if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}
			// y absorbed the separator and z; it has not been flushed yet.
			cur = y
			curDirty = true
			t.updated = true
			continue
		}

		// Case 3: key not found at this node.
		if cur.Node.Leaf {
			if err := store.SetNode(cur, curDirty); err != nil {
				return 0, false, err
			}
			break
		}

		i := cur.Node.Keys.GetChildIdx(searchKey)
		cID := cur.Node.Children[i]
		c, err := store.GetNode(cID)
		if err != nil {
			return 0, false, err
		}

		if c.Node.Keys.Len() != minT-1 {
			if err := store.SetNode(cur, curDirty); err != nil {
				return 0, false, err
			}
			cur = c
			curDirty = false
			continue
		}

		var rightSib, leftSib *nodestore.StoredNode
		if i+1 <= len(cur.Node.Children)-1 {
			rightSib, err = store.GetNode(cur.Node.Children[i+1])
			if err != nil {
				return 0, false, err
			}
		}
		if rightSib == nil || rightSib.Node.Keys.Len() < minT {
			if i-1 >= 0 {
				leftSib, err = store.GetNode(cur.Node.Children[i-1])
				if err != nil {
					return 0, false, err
				}
			}
		}

		switch {
		case rightSib != nil && rightSib.Node.Keys.Len() >= minT:
			// Case 3a-right.
			sepKey, sepPayload := cur.Node.Keys.GetKey(i), cur.Node.Keys.GetPayload(i)
			c.Node.Keys.Insert(sepKey, sepPayload)
			siblingKey, siblingPayload, _ := rightSib.Node.Keys.First()
			rightSib.Node.Keys.Remove(siblingKey)
			cur.Node.Keys.Remove(sepKey)
			cur.Node.Keys.Insert(siblingKey, siblingPayload)
			if !c.Node.Leaf {
				moved := rightSib.Node.Children[0]
				rightSib.Node.Children = rightSib.Node.Children[1:]
				c.Node.Children = append(c.Node.Children, moved)
			}
			if err := store.SetNode(rightSib, true); err != nil {
				return 0, false, err
			}
			if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}

		case leftSib != nil && leftSib.Node.Keys.Len() >= minT:
			if rightSib != nil {
				if err := store.SetNode(rightSib, false); err != nil {
					return 0, false, err
				}
			}
			// Case 3a-left.
			sepKey, sepPayload := cur.Node.Keys.GetKey(i-1), cur.Node.Keys.GetPayload(i-1)
			c.Node.Keys.Insert(sepKey, sepPayload)
			siblingKey, siblingPayload, _ := leftSib.Node.Keys.Last()
			leftSib.Node.Keys.Remove(siblingKey)
			cur.Node.Keys.Remove(sepKey)
			cur.Node.Keys.Insert(siblingKey, siblingPayload)
			if !c.Node.Leaf {
				moved := leftSib.Node.Children[len(leftSib.Node.Children)-1]
				leftSib.Node.Children = leftSib.Node.Children[:len(leftSib.Node.Children)-1]
				c.Node.Children = append([]bnode.NodeID{moved}, c.Node.Children...)
			}
			if err := store.SetNode(leftSib, true); err != nil {
				return 0, false, err
			}
			if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}

		case rightSib != nil:
			if leftSib != nil {
				if err := store.SetNode(leftSib, false); err != nil {
					return 0, false, err
				}
			}
			// Case 3b-right: merge c with its right sibling.
			sepKey, sepPayload := cur.Node.Keys.GetKey(i), cur.Node.Keys.GetPayload(i)
			if err := c.Node.Append(sepKey, sepPayload, rightSib.Node); err != nil {
				return 0, false, err
			}
			cur.Node.Keys.Remove(sepKey)
			cur.Node.Children = append(append([]bnode.NodeID{}, cur.Node.Children[:i+1]...), cur.Node.Children[i+2:]...)
			if err := store.RemoveNode(rightSib.ID, rightSib.Key); err != nil {
				return 0, false, err
			}
			if cur.Node.Keys.Len() == 0 {
				if cur.ID != rootID {
					return 0, false, bterrors.Unreachable("delete: non-root internal node emptied by merge")
				}
				if err := store.RemoveNode(cur.ID, cur.Key); err != nil {
					return 0, false, err
				}
				newRoot := c.ID
				t.state.Root = &newRoot
			} else if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}

		default:
			// Case 3b-left: merge the left sibling with c.
			if leftSib == nil {
				return 0, false, bterrors.Unreachable("delete: expected a left sibling to merge")
			}
			sepKey, sepPayload := cur.Node.Keys.GetKey(i-1), cur.Node.Keys.GetPayload(i-1)
			if err := leftSib.Node.Append(sepKey, sepPayload, c.Node); err != nil {
				return 0, false, err
			}
			cur.Node.Keys.Remove(sepKey)
			cur.Node.Children = append(append([]bnode.NodeID{}, cur.Node.Children[:i]...), cur.Node.Children[i+1:]...)
			if err := store.RemoveNode(c.ID, c.Key); err != nil {
				return 0, false, err
			}
			if cur.Node.Keys.Len() == 0 {
				if cur.ID != rootID {
					return 0, false, bterrors.Unreachable("delete: non-root internal node emptied by merge")
				}
				if err := store.RemoveNode(cur.ID, cur.Key); err != nil {
					return 0, false, err
				}
				newRoot := leftSib.ID
				t.state.Root = &newRoot
			} else if err := store.SetNode(cur, true); err != nil {
				return 0, false, err
			}
			c = leftSib
		}

		// Every rebalance branch above mutated c (or the left sibling now
		// standing in for it) without flushing; the next iteration settles
		// it through curDirty.
		cur = c
		curDirty = true
		t.updated = true
	}

	if err := store.Finish(); err != nil {
		return 0, false, err
	}
	return result, found, nil
}
