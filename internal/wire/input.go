package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unsafe"
)

// UnderflowError is raised as a panic value when a read runs past the filled region. Decoders
// recover it at a response or object boundary and report a typed error.
type UnderflowError struct {
	Position int
	Need     int
	Length   int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("buffer underflow: position=%d, need=%d, length=%d", e.Position, e.Need, e.Length)
}

// Input is a read cursor over a byte slice.
type Input struct {
	buf []byte
	pos int
}

// NewInput creates an Input reading buf from offset.
func NewInput(buf []byte, offset int) *Input {
	in := &Input{buf: buf}
	in.SetPosition(offset)
	return in
}

func (in *Input) Position() int {
	return in.pos
}

func (in *Input) Remaining() int {
	return len(in.buf) - in.pos
}

// Buffer returns the whole underlying slice.
func (in *Input) Buffer() []byte {
	return in.buf
}

func (in *Input) SetPosition(pos int) {
	if pos < 0 || pos > len(in.buf) {
		panic(&UnderflowError{Position: pos, Length: len(in.buf)})
	}
	in.pos = pos
}

func (in *Input) need(n int) {
	if n < 0 || len(in.buf)-in.pos < n {
		panic(&UnderflowError{Position: in.pos, Need: n, Length: len(in.buf)})
	}
}

// Skip advances the cursor by n bytes.
func (in *Input) Skip(n int) {
	in.need(n)
	in.pos += n
}

// PeekInt8 returns the next byte without consuming it.
func (in *Input) PeekInt8() int8 {
	in.need(ByteBytes)
	return int8(in.buf[in.pos])
}

// Read implements io.Reader.
func (in *Input) Read(p []byte) (int, error) {
	if in.Remaining() == 0 {
		return 0, io.EOF
	}
	n := copy(p, in.buf[in.pos:])
	in.pos += n
	return n, nil
}

func (in *Input) ReadBool() bool {
	return in.ReadUInt8() != 0
}

func (in *Input) ReadUInt8() uint8 {
	in.need(ByteBytes)
	v := in.buf[in.pos]
	in.pos += ByteBytes
	return v
}

func (in *Input) ReadInt8() int8 {
	return int8(in.ReadUInt8())
}

func (in *Input) ReadUInt16() uint16 {
	in.need(ShortBytes)
	v := binary.LittleEndian.Uint16(in.buf[in.pos:])
	in.pos += ShortBytes
	return v
}

func (in *Input) ReadInt16() int16 {
	return int16(in.ReadUInt16())
}

func (in *Input) ReadUInt32() uint32 {
	in.need(IntBytes)
	v := binary.LittleEndian.Uint32(in.buf[in.pos:])
	in.pos += IntBytes
	return v
}

func (in *Input) ReadInt32() int32 {
	return int32(in.ReadUInt32())
}

func (in *Input) ReadUInt64() uint64 {
	in.need(LongBytes)
	v := binary.LittleEndian.Uint64(in.buf[in.pos:])
	in.pos += LongBytes
	return v
}

func (in *Input) ReadInt64() int64 {
	return int64(in.ReadUInt64())
}

func (in *Input) ReadFloat32() float32 {
	return math.Float32frombits(in.ReadUInt32())
}

func (in *Input) ReadFloat64() float64 {
	return math.Float64frombits(in.ReadUInt64())
}

// ReadBytes returns a copy of the next n bytes.
func (in *Input) ReadBytes(n int) []byte {
	in.need(n)
	ret := make([]byte, n)
	in.pos += copy(ret, in.buf[in.pos:in.pos+n])
	return ret
}

// Slice returns the next n bytes without copying.
func (in *Input) Slice(n int) []byte {
	in.need(n)
	ret := in.buf[in.pos : in.pos+n : in.pos+n]
	in.pos += n
	return ret
}

// ReadString reads an int32 length prefixed UTF-8 string, length -1 yields "".
func (in *Input) ReadString() string {
	s := in.ReadNullableString()
	if s == nil {
		return ""
	}
	return *s
}

// ReadNullableString reads an int32 length prefixed UTF-8 string, length -1 yields nil.
func (in *Input) ReadNullableString() *string {
	n := int(in.ReadInt32())
	if n == int(NullLength) {
		return nil
	}
	s := string(in.Slice(n))
	return &s
}

// ReadSlice reads n elements written by WriteSlice.
func ReadSlice[T Primitive](in *Input, n int) []T {
	if n < 0 {
		panic(&UnderflowError{Position: in.pos, Need: n, Length: len(in.buf)})
	}
	var zero T
	length := n * int(unsafe.Sizeof(zero))
	in.need(length)
	ret := make([]T, n)
	if n == 0 {
		return ret
	}
	if littleEndianHost {
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&ret[0])), length)
		in.pos += copy(raw, in.buf[in.pos:in.pos+length])
		return ret
	}
	_ = binary.Read(in, binary.LittleEndian, ret)
	return ret
}
