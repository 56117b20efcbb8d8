// Package bitset implements the feature bitmap exchanged during the handshake: bit i lives in
// byte i/8 at position i%8.
package bitset

import "bytes"

type BitSet struct {
	bits []byte
}

func New() *BitSet {
	return &BitSet{}
}

// FromBytes wraps a copy of data, trailing zero bytes are dropped.
func FromBytes(data []byte) *BitSet {
	bs := &BitSet{bits: append([]byte(nil), data...)}
	bs.trim()
	return bs
}

func (bs *BitSet) Test(idx uint) bool {
	pos := idx >> 3
	if pos >= uint(len(bs.bits)) {
		return false
	}
	return bs.bits[pos]&(1<<(idx&7)) != 0
}

func (bs *BitSet) Set(idx uint) {
	pos := idx >> 3
	if pos >= uint(len(bs.bits)) {
		grown := make([]byte, pos+1)
		copy(grown, bs.bits)
		bs.bits = grown
	}
	bs.bits[pos] |= 1 << (idx & 7)
}

func (bs *BitSet) Clear(idx uint) {
	pos := idx >> 3
	if pos >= uint(len(bs.bits)) {
		return
	}
	bs.bits[pos] &^= 1 << (idx & 7)
	bs.trim()
}

// And clears every bit of bs that is not set in other.
func (bs *BitSet) And(other *BitSet) {
	if len(bs.bits) > len(other.bits) {
		bs.bits = bs.bits[:len(other.bits)]
	}
	for i := range bs.bits {
		bs.bits[i] &= other.bits[i]
	}
	bs.trim()
}

func (bs *BitSet) Equals(other *BitSet) bool {
	return bytes.Equal(bs.bits, other.bits)
}

// Bytes returns the wire form of the set.
func (bs *BitSet) Bytes() []byte {
	return append([]byte{}, bs.bits...)
}

func (bs *BitSet) trim() {
	n := len(bs.bits)
	for n > 0 && bs.bits[n-1] == 0 {
		n--
	}
	bs.bits = bs.bits[:n]
}
