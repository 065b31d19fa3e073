package btree

import (
	"context"

	"bdex/pkg/bnode"
	"bdex/pkg/kv"
	"bdex/pkg/nodestore"
)

type queueItem struct {
	id    bnode.NodeID
	depth int
}

// Statistics walks the tree breadth-first through a Traversal-mode store,
// so the inspection never pollutes whatever is cached for ordinary
// operations, and reports aggregate counts.
func (t *BTree) Statistics(ctx context.Context, tx kv.Transaction) (Statistics, error) {
	if t.state.Root == nil {
		return Statistics{}, nil
	}

	store, err := t.openStore(ctx, tx, nodestore.ModeTraversal)
	if err != nil {
		return Statistics{}, err
	}
	store.Lock()
	defer store.Unlock()

	queue := []queueItem{{id: *t.state.Root, depth: 1}}
	var stats Statistics

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		sn, err := store.GetNode(item.id)
		if err != nil {
			return Statistics{}, err
		}

		stats.NodesCount++
		stats.KeysCount += sn.Node.Keys.Len()
		stats.TotalSize += sn.Size
		if item.depth > stats.MaxDepth {
			stats.MaxDepth = item.depth
		}

		if err := store.SetNode(sn, false); err != nil {
			return Statistics{}, err
		}

		if !sn.Node.Leaf {
			for _, c := range sn.Node.Children {
				queue = append(queue, queueItem{id: c, depth: item.depth + 1})
			}
		}
	}

	if err := store.Finish(); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}
