// Package internal holds the Java compatible hash functions used for type ids, cache ids and
// affinity.
package internal

import (
	"math"
	"unicode/utf16"
)

const (
	replaceChar  = '\uFFFD'
	maxCodePoint = '\U0010FFFF'
	maxUint16    = 0xFFFF
)

// HashCode returns java.lang.String#hashCode of name, computed over its UTF-16 code units.
func HashCode(name string) int32 {
	if len(name) == 0 {
		return 0
	}
	var hash int32 = 0
	for _, r := range name {
		if r <= maxUint16 {
			hash = 31*hash + r
		} else if r > maxUint16 && r <= maxCodePoint {
			r1, r2 := utf16.EncodeRune(r)
			hash = 31*hash + r1
			hash = 31*hash + r2
		} else {
			hash = 31*hash + replaceChar
		}
	}
	return hash
}

// SliceHashCode returns java.util.Arrays#hashCode(byte[]).
func SliceHashCode(data []byte) int32 {
	var hash int32 = 1
	for _, b := range data {
		hash = 31*hash + int32(int8(b))
	}
	return hash
}

// LongHashCode returns java.lang.Long#hashCode.
func LongHashCode(v int64) int32 {
	return int32(v ^ int64(uint64(v)>>32))
}

// DoubleHashCode returns java.lang.Double#hashCode.
func DoubleHashCode(v float64) int32 {
	if v != v {
		return LongHashCode(0x7ff8000000000000)
	}
	return LongHashCode(int64(math.Float64bits(v)))
}

// FloatHashCode returns java.lang.Float#hashCode.
func FloatHashCode(v float32) int32 {
	if v != v {
		return 0x7fc00000
	}
	return int32(math.Float32bits(v))
}

// BoolHashCode returns java.lang.Boolean#hashCode.
func BoolHashCode(v bool) int32 {
	if v {
		return 1231
	}
	return 1237
}

// UuidHashCode returns java.util.UUID#hashCode for the most and least significant halves.
func UuidHashCode(msb int64, lsb int64) int32 {
	hilo := msb ^ lsb
	return int32(hilo>>32) ^ int32(hilo)
}
