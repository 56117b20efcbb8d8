// Package wire implements the little-endian message buffers every request and response is
// encoded into and decoded from.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/source-c/go-gridgain-thin/internal"
)

const (
	BoolBytes  = 1
	ByteBytes  = 1
	ShortBytes = 2
	IntBytes   = 4
	LongBytes  = 8

	minCapacity = 64
)

// NullLength is the length prefix of a null raw string.
const NullLength int32 = -1

// Output is a growable write buffer. The zero value is ready to use.
type Output struct {
	buf []byte
	pos int
}

// NewOutput creates an Output with the given initial capacity.
func NewOutput(capacity int) *Output {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &Output{buf: make([]byte, 0, capacity)}
}

// Data returns the filled region of the buffer.
func (o *Output) Data() []byte {
	return o.buf[:o.pos]
}

func (o *Output) Position() int {
	return o.pos
}

// SetPosition moves the write position inside the already filled region, used to backpatch
// placeholders. Moving forward past the filled region is not allowed.
func (o *Output) SetPosition(pos int) {
	if pos < 0 || pos > len(o.buf) {
		panic(fmt.Sprintf("position %d is out of range [0, %d]", pos, len(o.buf)))
	}
	o.pos = pos
}

// Reserve appends n zero bytes and returns their offset.
func (o *Output) Reserve(n int) int {
	start := o.pos
	o.grow(n)
	clear(o.buf[start : start+n])
	o.pos += n
	return start
}

// grow makes sure n more bytes fit after the write position. Capacity doubles so a sequence
// of appends is amortized O(1).
func (o *Output) grow(n int) {
	if math.MaxInt32-o.pos < n {
		panic(fmt.Sprintf("buffer length overflow: position=%d, required=%d", o.pos, n))
	}
	need := o.pos + n
	if need <= len(o.buf) {
		return
	}
	if need > cap(o.buf) {
		newCap := 2 * cap(o.buf)
		if newCap < minCapacity {
			newCap = minCapacity
		}
		if newCap < need {
			newCap = need
		}
		tmp := make([]byte, len(o.buf), newCap)
		copy(tmp, o.buf)
		o.buf = tmp
	}
	o.buf = o.buf[:need]
}

// Write appends p, it never fails.
func (o *Output) Write(p []byte) (int, error) {
	o.WriteBytes(p)
	return len(p), nil
}

func (o *Output) WriteBool(v bool) {
	if v {
		o.WriteUInt8(1)
	} else {
		o.WriteUInt8(0)
	}
}

func (o *Output) WriteUInt8(v uint8) {
	o.grow(ByteBytes)
	o.buf[o.pos] = v
	o.pos += ByteBytes
}

func (o *Output) WriteInt8(v int8) {
	o.WriteUInt8(uint8(v))
}

func (o *Output) WriteUInt16(v uint16) {
	o.grow(ShortBytes)
	binary.LittleEndian.PutUint16(o.buf[o.pos:], v)
	o.pos += ShortBytes
}

func (o *Output) WriteInt16(v int16) {
	o.WriteUInt16(uint16(v))
}

func (o *Output) WriteUInt32(v uint32) {
	o.grow(IntBytes)
	binary.LittleEndian.PutUint32(o.buf[o.pos:], v)
	o.pos += IntBytes
}

func (o *Output) WriteInt32(v int32) {
	o.WriteUInt32(uint32(v))
}

func (o *Output) WriteUInt64(v uint64) {
	o.grow(LongBytes)
	binary.LittleEndian.PutUint64(o.buf[o.pos:], v)
	o.pos += LongBytes
}

func (o *Output) WriteInt64(v int64) {
	o.WriteUInt64(uint64(v))
}

func (o *Output) WriteFloat32(v float32) {
	o.WriteUInt32(math.Float32bits(v))
}

func (o *Output) WriteFloat64(v float64) {
	o.WriteUInt64(math.Float64bits(v))
}

func (o *Output) WriteBytes(v []byte) {
	o.grow(len(v))
	o.pos += copy(o.buf[o.pos:], v)
}

// WriteString writes int32 byte length followed by UTF-8 bytes.
func (o *Output) WriteString(v string) {
	o.WriteInt32(int32(len(v)))
	o.grow(len(v))
	o.pos += copy(o.buf[o.pos:], v)
}

// WriteNullableString writes a raw string, nil is encoded with length -1.
func (o *Output) WriteNullableString(v *string) {
	if v == nil {
		o.WriteInt32(NullLength)
		return
	}
	o.WriteString(*v)
}

// PutInt32At overwrites four bytes at pos without moving the write position.
func (o *Output) PutInt32At(pos int, v int32) {
	if pos < 0 || pos+IntBytes > o.pos {
		panic(fmt.Sprintf("cannot backpatch at %d, filled length %d", pos, o.pos))
	}
	binary.LittleEndian.PutUint32(o.buf[pos:], uint32(v))
}

// PutUInt16At overwrites two bytes at pos without moving the write position.
func (o *Output) PutUInt16At(pos int, v uint16) {
	if pos < 0 || pos+ShortBytes > o.pos {
		panic(fmt.Sprintf("cannot backpatch at %d, filled length %d", pos, o.pos))
	}
	binary.LittleEndian.PutUint16(o.buf[pos:], v)
}

// HashCode returns the Java array hash of the bytes in [start, end).
func (o *Output) HashCode(start int, end int) int32 {
	if start < 0 || end > o.pos || start > end {
		panic(fmt.Sprintf("invalid range start=%d, end=%d", start, end))
	}
	return internal.SliceHashCode(o.buf[start:end])
}

// Primitive is the set of fixed size element types that are copied to and from the buffer
// in bulk.
type Primitive interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

var littleEndianHost = binary.LittleEndian.Uint16([]byte{0x12, 0x34}) == uint16(0x3412)

// WriteSlice appends elements of v without a length prefix.
func WriteSlice[T Primitive](o *Output, v []T) {
	if len(v) == 0 {
		return
	}
	var zero T
	length := len(v) * int(unsafe.Sizeof(zero))
	if littleEndianHost {
		o.grow(length)
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), length)
		o.pos += copy(o.buf[o.pos:], raw)
		return
	}
	_ = binary.Write(o, binary.LittleEndian, v)
}
