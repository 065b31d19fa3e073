package keypack

import "bytes"

// entry is one key/payload pair held directly in a node.
type entry struct {
	key     Key
	payload Payload
}

// entries is the ordering and arithmetic shared by every KeyPack
// implementation: sorted-slice storage, binary-search lookup, and the
// split/append rules the tree algorithms rely on. The concrete packs only
// differ in how this state is turned into bytes.
type entries struct {
	items []entry
}

func cloneKey(k Key) Key {
	c := make(Key, len(k))
	copy(c, k)
	return c
}

// search returns the index of k if present, or the position where it would
// be inserted to keep items sorted.
func (e *entries) search(k Key) (int, bool) {
	lo, hi := 0, len(e.items)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(e.items[mid].key, k)
		switch {
		case cmp == 0:
			return mid, true
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func (e *entries) Len() int { return len(e.items) }

func (e *entries) Get(k Key) (Payload, bool) {
	i, ok := e.search(k)
	if !ok {
		return 0, false
	}
	return e.items[i].payload, true
}

func (e *entries) Insert(k Key, p Payload) {
	i, ok := e.search(k)
	if ok {
		e.items[i].payload = p
		return
	}
	e.items = append(e.items, entry{})
	copy(e.items[i+1:], e.items[i:])
	e.items[i] = entry{key: cloneKey(k), payload: p}
}

func (e *entries) Remove(k Key) bool {
	i, ok := e.search(k)
	if !ok {
		return false
	}
	e.items = append(e.items[:i], e.items[i+1:]...)
	return true
}

func (e *entries) First() (Key, Payload, bool) {
	if len(e.items) == 0 {
		return nil, 0, false
	}
	it := e.items[0]
	return it.key, it.payload, true
}

func (e *entries) Last() (Key, Payload, bool) {
	if len(e.items) == 0 {
		return nil, 0, false
	}
	it := e.items[len(e.items)-1]
	return it.key, it.payload, true
}

func (e *entries) GetKey(i int) Key         { return e.items[i].key }
func (e *entries) GetPayload(i int) Payload { return e.items[i].payload }

// GetChildIdx returns the smallest i such that k < keys[i], else Len().
func (e *entries) GetChildIdx(k Key) int {
	lo, hi := 0, len(e.items)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(k, e.items[mid].key) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// split removes every entry, returning the median entry plus the left and
// right halves (sizes floor((n-1)/2) and ceil((n-1)/2)).
func (e *entries) split() (entry, []entry, []entry) {
	n := len(e.items)
	mid := (n - 1) / 2
	left := append([]entry(nil), e.items[:mid]...)
	median := e.items[mid]
	right := append([]entry(nil), e.items[mid+1:]...)
	e.items = nil
	return median, left, right
}

// appendEntries concatenates other onto the receiver. If other's first key
// is not strictly greater than the receiver's last key it returns false
// and leaves the receiver unchanged; the caller turns that into the
// corrupted-index error.
func (e *entries) appendEntries(other []entry) bool {
	if len(e.items) > 0 && len(other) > 0 {
		if bytes.Compare(e.items[len(e.items)-1].key, other[0].key) >= 0 {
			return false
		}
	}
	e.items = append(e.items, other...)
	return true
}
