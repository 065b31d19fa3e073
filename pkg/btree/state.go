package btree

import (
	"bdex/pkg/bnode"
	"bdex/pkg/bterrors"
	"bdex/pkg/encoding"
)

// State is the small, caller-persisted header describing a tree: its
// minimum degree, root (absent for an empty tree) and node id allocator.
// The core never chooses where this blob lives - the caller picks a key
// for it, reads it before opening a BTree and writes it back whenever
// IsUpdated reports true.
type State struct {
	MinimumDegree int
	// Root is the root node id, or nil if the tree is empty.
	Root       *bnode.NodeID
	NextNodeID bnode.NodeID
}

const stateEncodingVersion = 1

// Encode serialises the state to a self-describing blob.
func (s State) Encode() []byte {
	var tmp [9]byte
	buf := []byte{stateEncodingVersion}

	sz := encoding.PutVarint(tmp[:], uint64(s.MinimumDegree))
	buf = append(buf, tmp[:sz]...)

	if s.Root == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		sz = encoding.PutVarint(tmp[:], uint64(*s.Root))
		buf = append(buf, tmp[:sz]...)
	}

	sz = encoding.PutVarint(tmp[:], uint64(s.NextNodeID))
	buf = append(buf, tmp[:sz]...)
	return buf
}

// DecodeState reverses Encode.
func DecodeState(data []byte) (State, error) {
	if len(data) < 2 || data[0] != stateEncodingVersion {
		return State{}, bterrors.Encoding("state decode: bad header", nil)
	}
	data = data[1:]

	t, sz := encoding.GetVarint(data)
	if sz == 0 {
		return State{}, bterrors.Encoding("state decode: truncated minimum degree", nil)
	}
	data = data[sz:]

	if len(data) < 1 {
		return State{}, bterrors.Encoding("state decode: truncated root tag", nil)
	}
	hasRoot := data[0] == 1
	data = data[1:]

	var root *bnode.NodeID
	if hasRoot {
		r, sz := encoding.GetVarint(data)
		if sz == 0 {
			return State{}, bterrors.Encoding("state decode: truncated root id", nil)
		}
		data = data[sz:]
		id := bnode.NodeID(r)
		root = &id
	}

	next, sz := encoding.GetVarint(data)
	if sz == 0 {
		return State{}, bterrors.Encoding("state decode: truncated next node id", nil)
	}

	return State{
		MinimumDegree: int(t),
		Root:          root,
		NextNodeID:    bnode.NodeID(next),
	}, nil
}
