package keypack

import (
	"bdex/pkg/bterrors"
	"bdex/pkg/encoding"
)

// FstPack keeps its entries in the shared sorted-slice form during
// mutation and front-codes them in Encode. The encoded form is a
// front-coded (shared-prefix) encoding of the sorted key list: the
// prefix-sharing a finite-state transducer buys, without the automaton
// minimisation machinery a full FST would add. Compile is required before
// Encode; any mutation after a Compile marks the pack dirty again.
type FstPack struct {
	entries
	compiled bool
}

// NewFstPack returns an empty, compiled FstPack.
func NewFstPack() *FstPack {
	return &FstPack{compiled: true}
}

func (p *FstPack) Kind() Kind { return KindFst }

func (p *FstPack) Insert(k Key, v Payload) {
	p.entries.Insert(k, v)
	p.compiled = false
}

func (p *FstPack) Remove(k Key) bool {
	ok := p.entries.Remove(k)
	if ok {
		p.compiled = false
	}
	return ok
}

func (p *FstPack) SplitKeys() (Key, Payload, KeyPack, KeyPack) {
	median, left, right := p.entries.split()
	p.compiled = false
	return median.key, median.payload,
		&FstPack{entries: entries{items: left}, compiled: true},
		&FstPack{entries: entries{items: right}, compiled: true}
}

func (p *FstPack) Append(other KeyPack) error {
	o, ok := other.(*FstPack)
	if !ok {
		return bterrors.Corrupted("fst pack append: mismatched key pack kind", nil)
	}
	if !p.entries.appendEntries(o.entries.items) {
		return bterrors.Corrupted("fst pack append: keys not strictly increasing", nil)
	}
	p.compiled = false
	return nil
}

// Compile marks the current entries as ready for Encode, which does the
// front-coding. It is idempotent and does no encoding work itself.
func (p *FstPack) Compile() error {
	p.compiled = true
	return nil
}

func (p *FstPack) Encode() ([]byte, error) {
	if !p.compiled {
		return nil, bterrors.Encoding("fst pack encode: pack not compiled", nil)
	}
	var tmp [9]byte
	sz := encoding.PutVarint(tmp[:], uint64(len(p.entries.items)))
	buf := append([]byte(nil), tmp[:sz]...)

	var prev Key
	for _, it := range p.entries.items {
		shared := commonPrefixLen(prev, it.key)
		suffix := it.key[shared:]

		sz = encoding.PutVarint(tmp[:], uint64(shared))
		buf = append(buf, tmp[:sz]...)
		sz = encoding.PutVarint(tmp[:], uint64(len(suffix)))
		buf = append(buf, tmp[:sz]...)
		buf = append(buf, suffix...)
		sz = encoding.PutVarint(tmp[:], uint64(it.payload))
		buf = append(buf, tmp[:sz]...)

		prev = it.key
	}
	return buf, nil
}

// DecodeFstPack reconstructs a compiled FstPack from bytes produced by
// Encode.
func DecodeFstPack(data []byte) (*FstPack, error) {
	count, sz := encoding.GetVarint(data)
	if sz == 0 {
		return nil, bterrors.Encoding("fst pack decode: truncated entry count", nil)
	}
	data = data[sz:]

	items := make([]entry, 0, count)
	var prev Key
	for i := uint64(0); i < count; i++ {
		shared, n := encoding.GetVarint(data)
		if n == 0 {
			return nil, bterrors.Encoding("fst pack decode: truncated shared length", nil)
		}
		data = data[n:]

		suffixLen, n := encoding.GetVarint(data)
		if n == 0 {
			return nil, bterrors.Encoding("fst pack decode: truncated suffix length", nil)
		}
		data = data[n:]

		if uint64(len(data)) < suffixLen {
			return nil, bterrors.Encoding("fst pack decode: truncated suffix", nil)
		}
		if shared > uint64(len(prev)) {
			return nil, bterrors.Encoding("fst pack decode: shared prefix exceeds previous key", nil)
		}
		key := make(Key, shared, shared+suffixLen)
		copy(key, prev[:shared])
		key = append(key, data[:suffixLen]...)
		data = data[suffixLen:]

		payload, n := encoding.GetVarint(data)
		if n == 0 {
			return nil, bterrors.Encoding("fst pack decode: truncated payload", nil)
		}
		data = data[n:]

		items = append(items, entry{key: key, payload: Payload(payload)})
		prev = key
	}

	return &FstPack{entries: entries{items: items}, compiled: true}, nil
}
