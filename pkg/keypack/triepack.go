package keypack

import (
	"bdex/pkg/bterrors"
	"bdex/pkg/encoding"
)

// TriePack keeps its entries in the shared sorted-slice form and encodes
// them, on demand, into a compressed radix trie: a node carries an
// optional payload and children labelled with sorted, non-overlapping
// key suffixes. Mutation never invalidates anything since there is no
// intermediate compiled form to keep in sync; the trie is rebuilt fresh
// from entries every time Encode runs.
type TriePack struct {
	entries
}

// NewTriePack returns an empty TriePack.
func NewTriePack() *TriePack {
	return &TriePack{}
}

func (p *TriePack) Kind() Kind { return KindTrie }

func (p *TriePack) SplitKeys() (Key, Payload, KeyPack, KeyPack) {
	median, left, right := p.entries.split()
	return median.key, median.payload, &TriePack{entries{items: left}}, &TriePack{entries{items: right}}
}

func (p *TriePack) Append(other KeyPack) error {
	o, ok := other.(*TriePack)
	if !ok {
		return bterrors.Corrupted("trie pack append: mismatched key pack kind", nil)
	}
	if !p.entries.appendEntries(o.entries.items) {
		return bterrors.Corrupted("trie pack append: keys not strictly increasing", nil)
	}
	return nil
}

// Compile is a no-op: TriePack has no separate compiled representation.
func (p *TriePack) Compile() error { return nil }

// trieNode is one node of the compressed radix trie built for encoding.
type trieNode struct {
	label    []byte
	hasValue bool
	value    Payload
	children []*trieNode
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func trieInsert(n *trieNode, key []byte, val Payload) {
	if len(key) == 0 {
		n.hasValue = true
		n.value = val
		return
	}
	for i, c := range n.children {
		cp := commonPrefixLen(c.label, key)
		if cp == 0 {
			continue
		}
		if cp == len(c.label) {
			trieInsert(c, key[cp:], val)
			return
		}
		// Split the existing edge at cp.
		mid := &trieNode{label: c.label[:cp], children: []*trieNode{c}}
		c.label = c.label[cp:]
		trieInsert(mid, key[cp:], val)
		n.children[i] = mid
		return
	}
	n.children = append(n.children, &trieNode{label: key, hasValue: true, value: val})
}

func buildTrie(items []entry) *trieNode {
	root := &trieNode{}
	for _, it := range items {
		trieInsert(root, it.key, it.payload)
	}
	sortTrieChildren(root)
	return root
}

// sortTrieChildren orders every branch's children by their first label byte
// so Encode produces a stable byte stream regardless of insertion order.
func sortTrieChildren(n *trieNode) {
	for i := 1; i < len(n.children); i++ {
		j := i
		for j > 0 && n.children[j-1].label[0] > n.children[j].label[0] {
			n.children[j-1], n.children[j] = n.children[j], n.children[j-1]
			j--
		}
	}
	for _, c := range n.children {
		sortTrieChildren(c)
	}
}

func writeTrieNode(buf []byte, n *trieNode) []byte {
	flags := byte(0)
	if n.hasValue {
		flags = 1
	}
	buf = append(buf, flags)
	if n.hasValue {
		var tmp [9]byte
		sz := encoding.PutVarint(tmp[:], uint64(n.value))
		buf = append(buf, tmp[:sz]...)
	}
	var tmp [9]byte
	sz := encoding.PutVarint(tmp[:], uint64(len(n.label)))
	buf = append(buf, tmp[:sz]...)
	buf = append(buf, n.label...)
	sz = encoding.PutVarint(tmp[:], uint64(len(n.children)))
	buf = append(buf, tmp[:sz]...)
	for _, c := range n.children {
		buf = writeTrieNode(buf, c)
	}
	return buf
}

func readTrieNode(data []byte) (*trieNode, []byte, error) {
	if len(data) < 1 {
		return nil, nil, bterrors.Encoding("trie pack decode: truncated node", nil)
	}
	n := &trieNode{hasValue: data[0] == 1}
	data = data[1:]
	if n.hasValue {
		v, sz := encoding.GetVarint(data)
		if sz == 0 {
			return nil, nil, bterrors.Encoding("trie pack decode: truncated payload", nil)
		}
		n.value = Payload(v)
		data = data[sz:]
	}
	labelLen, sz := encoding.GetVarint(data)
	if sz == 0 {
		return nil, nil, bterrors.Encoding("trie pack decode: truncated label length", nil)
	}
	data = data[sz:]
	if uint64(len(data)) < labelLen {
		return nil, nil, bterrors.Encoding("trie pack decode: truncated label", nil)
	}
	n.label = append([]byte(nil), data[:labelLen]...)
	data = data[labelLen:]
	numChildren, sz := encoding.GetVarint(data)
	if sz == 0 {
		return nil, nil, bterrors.Encoding("trie pack decode: truncated child count", nil)
	}
	data = data[sz:]
	for i := uint64(0); i < numChildren; i++ {
		var child *trieNode
		var err error
		child, data, err = readTrieNode(data)
		if err != nil {
			return nil, nil, err
		}
		n.children = append(n.children, child)
	}
	return n, data, nil
}

// collectTrie walks the trie in order, reconstructing full keys by
// concatenating labels along the root-to-node path.
func collectTrie(n *trieNode, prefix []byte, out *[]entry) {
	full := append(append([]byte(nil), prefix...), n.label...)
	if n.hasValue {
		*out = append(*out, entry{key: Key(full), payload: n.value})
	}
	for _, c := range n.children {
		collectTrie(c, full, out)
	}
}

func (p *TriePack) Encode() ([]byte, error) {
	root := &trieNode{}
	root.children = buildTrie(p.entries.items).children
	var tmp [9]byte
	sz := encoding.PutVarint(tmp[:], uint64(len(root.children)))
	buf := append([]byte(nil), tmp[:sz]...)
	for _, c := range root.children {
		buf = writeTrieNode(buf, c)
	}
	return buf, nil
}

// DecodeTriePack reconstructs a TriePack from bytes produced by Encode.
func DecodeTriePack(data []byte) (*TriePack, error) {
	numChildren, sz := encoding.GetVarint(data)
	if sz == 0 {
		return nil, bterrors.Encoding("trie pack decode: truncated root", nil)
	}
	data = data[sz:]
	var items []entry
	for i := uint64(0); i < numChildren; i++ {
		var child *trieNode
		var err error
		child, data, err = readTrieNode(data)
		if err != nil {
			return nil, err
		}
		collectTrie(child, nil, &items)
	}
	return &TriePack{entries{items: items}}, nil
}
