// Package keypack implements the pluggable in-node key container described
// by the B-tree index engine: an ordered key -> payload map that a node
// embeds directly, supporting the split/append/child-index operations the
// CLRS insert and delete algorithms need, plus a kind-tagged on-disk
// encoding.
//
// Two concrete packs are provided. They are semantically identical - same
// ordering, same split arithmetic - and differ only in their on-disk bytes
// and in whether mutation requires an explicit Compile step before Encode:
// FstPack front-codes its sorted keys into a compact shared-prefix blob that
// must be compiled before it can be encoded; TriePack always encodes
// straight from a small in-memory radix trie.
package keypack

import "bdex/pkg/bterrors"

// Key is an opaque, non-empty byte string. Ordering is lexicographic.
type Key []byte

// Payload is the fixed-width value a key maps to.
type Payload uint64

// Kind distinguishes the two concrete KeyPack encodings on the wire. It is
// stored as a single tag byte ahead of every serialised pack so Decode knows
// which implementation to reconstruct.
type Kind byte

const (
	KindFst  Kind = 1
	KindTrie Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFst:
		return "fst"
	case KindTrie:
		return "trie"
	default:
		return "unknown"
	}
}

// KeyPack is the capability set every node's key container must implement.
// Implementations keep keys in lexicographic order at all times; Insert
// overwrites the payload of an existing key rather than creating a
// duplicate entry.
type KeyPack interface {
	Kind() Kind
	Len() int
	Get(k Key) (Payload, bool)
	Insert(k Key, p Payload)
	Remove(k Key) bool
	First() (Key, Payload, bool)
	Last() (Key, Payload, bool)
	GetKey(i int) Key
	GetPayload(i int) Payload

	// GetChildIdx returns the smallest i such that k < keys[i], or Len()
	// if k is greater than every key held.
	GetChildIdx(k Key) int

	// SplitKeys removes every entry from the pack, returning the median
	// key/payload and two new same-kind packs holding the strict left and
	// right halves. Sizes are floor((n-1)/2) and ceil((n-1)/2).
	SplitKeys() (medianKey Key, medianPayload Payload, left KeyPack, right KeyPack)

	// Append concatenates other's entries onto the end of the receiver.
	// Every key in other must be strictly greater than every key already
	// held, and other must be the same concrete kind; violating either
	// is reported as a corrupted index.
	Append(other KeyPack) error

	// Compile prepares the pack for serialisation. It is a no-op for
	// packs that need no preparation (TriePack); FstPack's Encode fails
	// unless Compile has run since the last mutation.
	Compile() error

	Encode() ([]byte, error)
}

// New returns an empty KeyPack of the given kind.
func New(kind Kind) (KeyPack, error) {
	switch kind {
	case KindFst:
		return NewFstPack(), nil
	case KindTrie:
		return NewTriePack(), nil
	default:
		return nil, bterrors.Corrupted("unknown key pack kind", nil)
	}
}

// Decode reconstructs a KeyPack from bytes produced by Encode. The kind byte
// that normally prefixes a node's serialised key pack must already have been
// consumed by the caller and passed in explicitly.
func Decode(kind Kind, data []byte) (KeyPack, error) {
	switch kind {
	case KindFst:
		return DecodeFstPack(data)
	case KindTrie:
		return DecodeTriePack(data)
	default:
		return nil, bterrors.Corrupted("unknown key pack kind", nil)
	}
}
