package encoding

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127,
		128, 0x3FFF,
		0x4000, 0x1FFFFF,
		0x200000, 0xFFFFFFF,
		0x10000000, 0x7FFFFFFFF,
		0xFFFFFFFFFFFFFF,     // largest value the 8-byte form holds
		0xFFFFFFFFFFFFFF + 1, // first value needing the full-width form
		^uint64(0),
	}
	var buf [9]byte
	for _, v := range values {
		n := PutVarint(buf[:], v)
		if n != VarintLen(v) {
			t.Fatalf("PutVarint(%#x) wrote %d bytes, VarintLen says %d", v, n, VarintLen(v))
		}
		got, read := GetVarint(buf[:n])
		if read != n || got != v {
			t.Fatalf("GetVarint(PutVarint(%#x)) = %#x over %d bytes, want %d", v, got, read, n)
		}
	}
}

func TestGetVarintTruncated(t *testing.T) {
	var buf [9]byte
	n := PutVarint(buf[:], ^uint64(0))
	for cut := 0; cut < n; cut++ {
		if _, read := GetVarint(buf[:cut]); read != 0 {
			t.Fatalf("GetVarint on a %d-byte prefix consumed %d bytes, want 0", cut, read)
		}
	}
}
