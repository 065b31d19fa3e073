// Package nodeid maps a bnode.NodeID to the physical byte key a node is
// persisted under in the backing transactional store.
package nodeid

import (
	"bdex/pkg/bnode"
	"bdex/pkg/encoding"
)

// Provider is a pure, deterministic NodeId -> ByteKey function. Every
// implementation must be collision-free across the ids it is asked to
// encode.
type Provider interface {
	Encode(id bnode.NodeID) []byte

	// HasPrefix reports whether key was produced by this provider, so a
	// Traversal-mode scan over the backend can recognise its own range
	// without decoding every candidate key.
	HasPrefix(key []byte) bool

	// Prefix returns the byte range every key this provider emits starts
	// with, for use as a scan lower bound.
	Prefix() []byte
}

// DebugProvider encodes ids with no namespacing, for use in tests against a
// backend dedicated to a single tree.
type DebugProvider struct{}

func (DebugProvider) Encode(id bnode.NodeID) []byte {
	var tmp [9]byte
	n := encoding.PutVarint(tmp[:], uint64(id))
	return append([]byte(nil), tmp[:n]...)
}

func (DebugProvider) HasPrefix([]byte) bool { return true }
func (DebugProvider) Prefix() []byte        { return nil }

// IndexProvider namespaces node keys with a fixed index identifier so that
// several trees may share one backend.
type IndexProvider struct {
	indexID []byte
}

// NewIndexProvider returns a provider that prefixes every encoded node key
// with indexID. indexID must be non-empty and is copied.
func NewIndexProvider(indexID []byte) *IndexProvider {
	return &IndexProvider{indexID: append([]byte(nil), indexID...)}
}

func (p *IndexProvider) Encode(id bnode.NodeID) []byte {
	var tmp [9]byte
	n := encoding.PutVarint(tmp[:], uint64(id))
	out := make([]byte, 0, len(p.indexID)+n)
	out = append(out, p.indexID...)
	out = append(out, tmp[:n]...)
	return out
}

func (p *IndexProvider) HasPrefix(key []byte) bool {
	if len(key) < len(p.indexID) {
		return false
	}
	for i, b := range p.indexID {
		if key[i] != b {
			return false
		}
	}
	return true
}

func (p *IndexProvider) Prefix() []byte {
	return append([]byte(nil), p.indexID...)
}
