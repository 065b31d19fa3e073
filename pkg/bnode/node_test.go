package bnode

import (
	"bytes"
	"testing"

	"bdex/pkg/keypack"
)

func TestLeafEncodeDecodeRoundTrip(t *testing.T) {
	for _, kind := range []keypack.Kind{keypack.KindFst, keypack.KindTrie} {
		n, err := NewLeaf(kind)
		if err != nil {
			t.Fatalf("NewLeaf: %v", err)
		}
		n.Keys.Insert(keypack.Key("b"), 2)
		n.Keys.Insert(keypack.Key("a"), 1)
		n.Keys.Insert(keypack.Key("c"), 3)

		blob, err := n.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		decoded, err := Decode(blob)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !decoded.Leaf {
			t.Fatalf("decoded node not a leaf")
		}
		if decoded.Keys.Kind() != kind {
			t.Fatalf("decoded kind = %v, want %v", decoded.Keys.Kind(), kind)
		}
		if decoded.Keys.Len() != 3 {
			t.Fatalf("decoded key count = %d, want 3", decoded.Keys.Len())
		}
		for _, want := range []struct {
			k keypack.Key
			p keypack.Payload
		}{
			{keypack.Key("a"), 1},
			{keypack.Key("b"), 2},
			{keypack.Key("c"), 3},
		} {
			got, ok := decoded.Keys.Get(want.k)
			if !ok || got != want.p {
				t.Fatalf("Get(%q) = %v, %v; want %v, true", want.k, got, ok, want.p)
			}
		}
		if len(decoded.Children) != 0 {
			t.Fatalf("leaf decoded with children")
		}
	}
}

func TestInternalEncodeDecodeRoundTrip(t *testing.T) {
	n, err := NewInternal(keypack.KindTrie)
	if err != nil {
		t.Fatalf("NewInternal: %v", err)
	}
	n.Keys.Insert(keypack.Key("m"), 10)
	n.Children = []NodeID{1, 2}

	blob, err := n.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Leaf {
		t.Fatalf("decoded internal node reported as leaf")
	}
	if len(decoded.Children) != 2 || decoded.Children[0] != 1 || decoded.Children[1] != 2 {
		t.Fatalf("decoded children = %v, want [1 2]", decoded.Children)
	}
}

func TestIsFull(t *testing.T) {
	n, _ := NewLeaf(keypack.KindTrie)
	t_ := 3
	for i := 0; i < 2*t_-2; i++ {
		if n.IsFull(t_) {
			t.Fatalf("node reported full with %d keys, t=%d", i, t_)
		}
		n.Keys.Insert(keypack.Key{byte(i)}, 0)
	}
	n.Keys.Insert(keypack.Key{byte(2*t_ - 2)}, 0)
	if !n.IsFull(t_) {
		t.Fatalf("node with 2t-1 keys not reported full")
	}
}

func TestSplitKeysAndChildrenLeaf(t *testing.T) {
	n, _ := NewLeaf(keypack.KindFst)
	for i, k := range []keypack.Key{keypack.Key("a"), keypack.Key("b"), keypack.Key("c"), keypack.Key("d"), keypack.Key("e")} {
		n.Keys.Insert(k, keypack.Payload(i))
	}

	left, right, mk, mp, err := n.SplitKeysAndChildren()
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !bytes.Equal(mk, keypack.Key("c")) || mp != 2 {
		t.Fatalf("median = %q/%d, want c/2", mk, mp)
	}
	if !left.Leaf || !right.Leaf {
		t.Fatalf("split halves lost leaf-ness")
	}
	if left.Keys.Len() != 2 || right.Keys.Len() != 2 {
		t.Fatalf("split sizes = %d/%d, want 2/2", left.Keys.Len(), right.Keys.Len())
	}
}

func TestSplitKeysAndChildrenInternal(t *testing.T) {
	n, _ := NewInternal(keypack.KindFst)
	for i, k := range []keypack.Key{keypack.Key("a"), keypack.Key("b"), keypack.Key("c")} {
		n.Keys.Insert(k, keypack.Payload(i))
	}
	n.Children = []NodeID{10, 11, 12, 13}

	left, right, _, _, err := n.SplitKeysAndChildren()
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(left.Children) != 2 || left.Children[0] != 10 || left.Children[1] != 11 {
		t.Fatalf("left children = %v, want [10 11]", left.Children)
	}
	if len(right.Children) != 2 || right.Children[0] != 12 || right.Children[1] != 13 {
		t.Fatalf("right children = %v, want [12 13]", right.Children)
	}
}

func TestSplitKeysAndChildrenRejectsMismatchedChildCount(t *testing.T) {
	n, _ := NewInternal(keypack.KindFst)
	for i, k := range []keypack.Key{keypack.Key("a"), keypack.Key("b"), keypack.Key("c")} {
		n.Keys.Insert(k, keypack.Payload(i))
	}
	n.Children = []NodeID{10, 11} // should be 4

	if _, _, _, _, err := n.SplitKeysAndChildren(); err == nil {
		t.Fatalf("expected error on mismatched child count")
	}
}

func TestAppendLeaf(t *testing.T) {
	left, _ := NewLeaf(keypack.KindTrie)
	left.Keys.Insert(keypack.Key("a"), 1)

	right, _ := NewLeaf(keypack.KindTrie)
	right.Keys.Insert(keypack.Key("c"), 3)

	if err := left.Append(keypack.Key("b"), 2, right); err != nil {
		t.Fatalf("append: %v", err)
	}
	if left.Keys.Len() != 3 {
		t.Fatalf("len = %d, want 3", left.Keys.Len())
	}
	for _, want := range []struct {
		k keypack.Key
		p keypack.Payload
	}{
		{keypack.Key("a"), 1},
		{keypack.Key("b"), 2},
		{keypack.Key("c"), 3},
	} {
		got, ok := left.Keys.Get(want.k)
		if !ok || got != want.p {
			t.Fatalf("Get(%q) = %v, %v; want %v, true", want.k, got, ok, want.p)
		}
	}
}

func TestAppendRejectsLeafInternalMismatch(t *testing.T) {
	leaf, _ := NewLeaf(keypack.KindTrie)
	internal, _ := NewInternal(keypack.KindTrie)

	if err := leaf.Append(keypack.Key("m"), 1, internal); err == nil {
		t.Fatalf("expected error appending internal node onto leaf")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{1}); err == nil {
		t.Fatalf("expected error decoding truncated blob")
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	n, _ := NewLeaf(keypack.KindFst)
	blob, _ := n.Encode()
	blob[0] = 99
	if _, err := Decode(blob); err == nil {
		t.Fatalf("expected error decoding bad version")
	}
}
