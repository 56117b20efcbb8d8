package ignite

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	protoVersion       int8   = 1
	flagsPos                  = 2
	typeIdPos                 = 4
	hashCodePos               = 8
	lenPos                    = 12
	schemaIdPos               = 16
	schemaOffsetPos           = 20
	headerLength              = 24
	flagUserType       uint16 = 0x0001
	flagHasSchema      uint16 = 0x0002
	flagHasRaw         uint16 = 0x0004
	flagOffsetOneByte  uint16 = 0x0008
	flagOffsetTwoBytes uint16 = 0x0010
	flagCompactFooter  uint16 = 0x0020
)

// BinaryObject is a wrapper around byte slice that contains serialized data in Apache Ignite binary format.
// Fields are decoded on first access and cached.
type BinaryObject interface {
	// Type returns binary object metadata
	Type(ctx context.Context) (BinaryType, error)
	// TypeId returns the id of the object type.
	TypeId() int32
	// Field returns value of field with specified name, nil if the object has no such field.
	Field(ctx context.Context, name string) (interface{}, error)
	// Size returns the underlying byte slice size.
	Size() int
	// Data returns the underlying byte slice
	Data() []byte
	// HashCode returns hash code of the object as defined by the Ignite binary format.
	HashCode() int32
}

// FieldGetter is a helper for easy retrieving field data from BinaryObject.
type FieldGetter[T any] struct {
	obj     BinaryObject
	fldName string
}

// NewFieldGetter creates [FieldGetter] for specified [BinaryObject] and field.
func NewFieldGetter[T any](obj BinaryObject, fldName string) *FieldGetter[T] {
	return &FieldGetter[T]{obj, fldName}
}

// Get retrieves field value and set it to specified pointer.
func (getter *FieldGetter[T]) Get(ctx context.Context, in *T) error {
	val, err := getter.obj.Field(ctx, getter.fldName)
	if err != nil {
		return err
	}
	if val == nil {
		var zero T
		*in = zero
		return nil
	}
	val0, ok := val.(T)
	if !ok {
		return newTypeCastError(val, -1)
	}
	*in = val0
	return nil
}

type binaryObjectImpl struct {
	data   []byte
	typeId int32
	codec  *binaryCodec

	mu      sync.Mutex
	offsets map[int32]int
	values  map[int32]interface{}
}

// newBinaryObjectFromBytes wraps a complete serialized object, data starts with the type code.
func newBinaryObjectFromBytes(codec *binaryCodec, data []byte) (*binaryObjectImpl, error) {
	if len(data) < headerLength || data[0] != byte(BinaryObjectType) {
		return nil, newSerializationError(nil, "invalid binary object header")
	}
	if int(binary.LittleEndian.Uint32(data[lenPos:])) != len(data) {
		return nil, newSerializationError(nil, "binary object length mismatch")
	}
	obj := &binaryObjectImpl{
		data:   data,
		codec:  codec,
		typeId: int32(binary.LittleEndian.Uint32(data[typeIdPos:])),
	}
	if obj.typeId == int32(unregisteredType) {
		name, err := obj.className()
		if err != nil {
			return nil, err
		}
		obj.typeId = codec.idMapper.TypeId(name)
	}
	return obj, nil
}

func (b *binaryObjectImpl) className() (name string, err error) {
	defer recoverSerialization(&err)
	return readObjectString(wire.NewInput(b.data, headerLength)), nil
}

func (b *binaryObjectImpl) Type(ctx context.Context) (BinaryType, error) {
	meta, err := b.codec.types.getType(ctx, b.typeId)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, newSerializationError(nil, "no metadata found for typeId=%d", b.typeId)
	}
	return meta, nil
}

func (b *binaryObjectImpl) TypeId() int32 {
	return b.typeId
}

func (b *binaryObjectImpl) Field(ctx context.Context, name string) (interface{}, error) {
	return b.fieldById(ctx, b.codec.idMapper.FieldId(b.typeId, name))
}

func (b *binaryObjectImpl) fieldById(ctx context.Context, fieldId int32) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.buildIndex(ctx); err != nil {
		return nil, err
	}
	if val, ok := b.values[fieldId]; ok {
		return val, nil
	}
	offset, ok := b.offsets[fieldId]
	if !ok {
		return nil, nil
	}
	val, err := b.codec.unmarshalSafe(ctx, wire.NewInput(b.data, offset))
	if err != nil {
		return nil, err
	}
	b.values[fieldId] = val
	return val, nil
}

// buildIndex maps field ids to their offsets once per object.
func (b *binaryObjectImpl) buildIndex(ctx context.Context) error {
	if b.offsets != nil {
		return nil
	}
	offsets := make(map[int32]int)
	flags := b.flags()
	if flags&flagHasSchema == flagHasSchema {
		footer, width, err := b.footer()
		if err != nil {
			return err
		}
		if flags&flagCompactFooter == flagCompactFooter {
			schemaId := int32(binary.LittleEndian.Uint32(b.data[schemaIdPos:]))
			schema, err := b.codec.types.getSchema(ctx, b.typeId, schemaId)
			if err != nil {
				return err
			}
			if schema == nil {
				return newSerializationError(nil, "schema not found for typeId=%d and schemaId=%d", b.typeId, schemaId)
			}
			if len(footer) != len(schema.fieldIds)*width {
				return newSerializationError(nil, "footer of typeId=%d does not match schema %d", b.typeId, schemaId)
			}
			for idx, id := range schema.fieldIds {
				offsets[id] = readOffset(footer[idx*width:], width)
			}
		} else {
			entry := wire.IntBytes + width
			if len(footer)%entry != 0 {
				return newSerializationError(nil, "invalid footer length %d", len(footer))
			}
			for pos := 0; pos < len(footer); pos += entry {
				id := int32(binary.LittleEndian.Uint32(footer[pos:]))
				offsets[id] = readOffset(footer[pos+wire.IntBytes:], width)
			}
		}
		for _, offset := range offsets {
			if offset < headerLength || offset >= len(b.data) {
				return newSerializationError(nil, "field offset %d is out of bounds", offset)
			}
		}
	}
	b.offsets = offsets
	b.values = make(map[int32]interface{}, len(offsets))
	return nil
}

func (b *binaryObjectImpl) footer() ([]byte, int, error) {
	flags := b.flags()
	width := 4
	if flags&flagOffsetOneByte == flagOffsetOneByte {
		width = 1
	} else if flags&flagOffsetTwoBytes == flagOffsetTwoBytes {
		width = 2
	}
	start := int(binary.LittleEndian.Uint32(b.data[schemaOffsetPos:]))
	end := len(b.data)
	if flags&flagHasRaw == flagHasRaw {
		end -= wire.IntBytes
	}
	if start < headerLength || start > end {
		return nil, 0, newSerializationError(nil, "invalid schema offset %d", start)
	}
	return b.data[start:end], width, nil
}

func readOffset(data []byte, width int) int {
	switch width {
	case 1:
		return int(data[0])
	case 2:
		return int(binary.LittleEndian.Uint16(data))
	default:
		return int(binary.LittleEndian.Uint32(data))
	}
}

func (b *binaryObjectImpl) flags() uint16 {
	return binary.LittleEndian.Uint16(b.data[flagsPos:])
}

func (b *binaryObjectImpl) Size() int {
	return len(b.data)
}

func (b *binaryObjectImpl) Data() []byte {
	return b.data
}

func (b *binaryObjectImpl) HashCode() int32 {
	return int32(binary.LittleEndian.Uint32(b.data[hashCodePos:]))
}
