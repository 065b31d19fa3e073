// Package bnode defines the on-disk node layout for the B-tree: a leaf or
// internal node wrapping a pluggable keypack.KeyPack, parameterised so that
// either FST- or trie-backed packs can be swapped in without the node
// format caring which. Encode produces a self-describing blob - a version
// byte, a tag byte, the key-pack's own kind byte, a length-prefixed
// key-pack body and, for internal nodes, a length-prefixed list of child
// ids - and Decode reverses it exactly.
package bnode

import (
	"bdex/pkg/bterrors"
	"bdex/pkg/encoding"
	"bdex/pkg/keypack"
)

// NodeID is the monotonically assigned, never-reused identifier for a node
// within one tree's lifetime.
type NodeID uint64

const encodingVersion = 1

// Node is a leaf or internal node. Internal nodes hold one more child than
// they have keys; leaves hold none.
type Node struct {
	Leaf     bool
	Keys     keypack.KeyPack
	Children []NodeID
}

// NewLeaf returns an empty leaf node backed by a fresh key pack of kind.
func NewLeaf(kind keypack.Kind) (*Node, error) {
	kp, err := keypack.New(kind)
	if err != nil {
		return nil, err
	}
	return &Node{Leaf: true, Keys: kp}, nil
}

// NewInternal returns an empty internal node backed by a fresh key pack of
// kind. The caller is responsible for populating Children so that
// len(Children) == Keys.Len()+1 holds before the node is persisted.
func NewInternal(kind keypack.Kind) (*Node, error) {
	kp, err := keypack.New(kind)
	if err != nil {
		return nil, err
	}
	return &Node{Leaf: false, Keys: kp}, nil
}

// IsFull reports whether the node already holds the full 2t-1 keys a node
// of minimum degree t may carry, i.e. whether it must be split before an
// insert may safely descend through it.
func (n *Node) IsFull(t int) bool {
	return n.Keys.Len() == 2*t-1
}

// SplitKeysAndChildren splits a full node into a left half (which reuses
// the receiver's identity and key-pack kind) and a brand new right half,
// returning the promoted median entry alongside them. For an internal node
// the children slice is split at the same boundary: the left half keeps
// children[0:mid+1], the right half takes children[mid+1:].
func (n *Node) SplitKeysAndChildren() (left *Node, right *Node, medianKey keypack.Key, medianPayload keypack.Payload, err error) {
	mk, mp, leftPack, rightPack := n.Keys.SplitKeys()

	left = &Node{Leaf: n.Leaf, Keys: leftPack}
	right = &Node{Leaf: n.Leaf, Keys: rightPack}

	if !n.Leaf {
		mid := leftPack.Len()
		if len(n.Children) != leftPack.Len()+rightPack.Len()+2 {
			return nil, nil, nil, 0, bterrors.Corrupted("split: child count does not match key count", nil)
		}
		left.Children = append([]NodeID(nil), n.Children[:mid+1]...)
		right.Children = append([]NodeID(nil), n.Children[mid+1:]...)
	}

	return left, right, mk, mp, nil
}

// Append concatenates medianKey/medianPayload and then every entry (and, for
// internal nodes, every child) of other onto the receiver. It implements the
// merge step used by CLRS delete case 2c and case 3b: y.append(key, other).
func (n *Node) Append(medianKey keypack.Key, medianPayload keypack.Payload, other *Node) error {
	if n.Leaf != other.Leaf {
		return bterrors.Corrupted("append: mismatched node kinds (internal vs leaf)", nil)
	}
	n.Keys.Insert(medianKey, medianPayload)
	if err := n.Keys.Append(other.Keys); err != nil {
		return err
	}
	if !n.Leaf {
		n.Children = append(n.Children, other.Children...)
	}
	return nil
}

// Encode produces the self-describing on-disk blob for this node.
func (n *Node) Encode() ([]byte, error) {
	if err := n.Keys.Compile(); err != nil {
		return nil, err
	}
	body, err := n.Keys.Encode()
	if err != nil {
		return nil, bterrors.Encoding("node encode: key pack", err)
	}

	tag := byte(0)
	if n.Leaf {
		tag = 1
	}

	var tmp [9]byte
	buf := []byte{encodingVersion, tag, byte(n.Keys.Kind())}

	sz := encoding.PutVarint(tmp[:], uint64(len(body)))
	buf = append(buf, tmp[:sz]...)
	buf = append(buf, body...)

	if !n.Leaf {
		sz = encoding.PutVarint(tmp[:], uint64(len(n.Children)))
		buf = append(buf, tmp[:sz]...)
		for _, c := range n.Children {
			sz = encoding.PutVarint(tmp[:], uint64(c))
			buf = append(buf, tmp[:sz]...)
		}
	}

	return buf, nil
}

// Decode reconstructs a Node from bytes produced by Encode.
func Decode(data []byte) (*Node, error) {
	if len(data) < 3 {
		return nil, bterrors.Encoding("node decode: truncated header", nil)
	}
	version := data[0]
	if version != encodingVersion {
		return nil, bterrors.Encoding("node decode: unsupported version", nil)
	}
	tag := data[1]
	kind := keypack.Kind(data[2])
	data = data[3:]

	bodyLen, sz := encoding.GetVarint(data)
	if sz == 0 {
		return nil, bterrors.Encoding("node decode: truncated key pack length", nil)
	}
	data = data[sz:]
	if uint64(len(data)) < bodyLen {
		return nil, bterrors.Encoding("node decode: truncated key pack body", nil)
	}
	kp, err := keypack.Decode(kind, data[:bodyLen])
	if err != nil {
		return nil, err
	}
	data = data[bodyLen:]

	n := &Node{Leaf: tag == 1, Keys: kp}
	if !n.Leaf {
		childCount, sz := encoding.GetVarint(data)
		if sz == 0 {
			return nil, bterrors.Encoding("node decode: truncated child count", nil)
		}
		data = data[sz:]
		n.Children = make([]NodeID, 0, childCount)
		for i := uint64(0); i < childCount; i++ {
			id, sz := encoding.GetVarint(data)
			if sz == 0 {
				return nil, bterrors.Encoding("node decode: truncated child id", nil)
			}
			data = data[sz:]
			n.Children = append(n.Children, NodeID(id))
		}
	}

	return n, nil
}
