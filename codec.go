package ignite

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	opGetBinaryConfiguration int16 = 3004
)

// binaryCodec turns Go values into the binary format and back. It is shared by every connection of a
// client and resolves type metadata through the type storage.
type binaryCodec struct {
	types         *typeStorage
	idMapper      BinaryIdMapper
	compactFooter atomic.Bool
}

func newBinaryCodec(types *typeStorage, idMapper BinaryIdMapper, compactFooter bool) *binaryCodec {
	if idMapper == nil {
		idMapper = &BinaryBasicIdMapper{}
	}
	c := &binaryCodec{
		types:    types,
		idMapper: idMapper,
	}
	c.compactFooter.Store(compactFooter)
	return c
}

func (c *binaryCodec) isCompactFooter() bool {
	return c.compactFooter.Load()
}

// loadBinaryConfiguration asks the cluster whether compact footers are enabled.
func (c *binaryCodec) loadBinaryConfiguration(ctx context.Context, sender requestSender, pCtx *ProtocolContext) error {
	if pCtx == nil || !pCtx.SupportsAttributeFeature(BinaryConfigurationFeature) {
		return nil
	}
	return sender.send(ctx, opGetBinaryConfiguration, nil, func(input *wire.Input) error {
		c.compactFooter.Store(input.ReadBool())
		input.ReadInt8() // name mapper kind, not used
		return nil
	})
}

var inferredTypes = map[reflect.Type]TypeDesc{
	reflect.TypeOf(false):            BoolType,
	reflect.TypeOf(int8(0)):          ByteType,
	reflect.TypeOf(uint8(0)):         ByteType,
	reflect.TypeOf(int16(0)):         ShortType,
	reflect.TypeOf(uint16(0)):        CharType,
	reflect.TypeOf(int32(0)):         IntType,
	reflect.TypeOf(uint32(0)):        IntType,
	reflect.TypeOf(int64(0)):         LongType,
	reflect.TypeOf(uint64(0)):        LongType,
	reflect.TypeOf(0):                LongType,
	reflect.TypeOf(uint(0)):          LongType,
	reflect.TypeOf(float32(0)):       FloatType,
	reflect.TypeOf(float64(0)):       DoubleType,
	reflect.TypeOf(""):               StringType,
	reflect.TypeOf(uuid.UUID{}):      UuidType,
	reflect.TypeOf(Date(0)):          DateType,
	reflect.TypeOf(Time(0)):          TimeType,
	reflect.TypeOf(time.Time{}):      TimestampType,
	reflect.TypeOf(apd.Decimal{}):    DecimalType,
	reflect.TypeOf(&apd.Decimal{}):   DecimalType,
	reflect.TypeOf([]byte{}):         ByteArrayType,
	reflect.TypeOf([]int8{}):         ByteArrayType,
	reflect.TypeOf([]int16{}):        ShortArrayType,
	reflect.TypeOf([]uint16{}):       CharArrayType,
	reflect.TypeOf([]int32{}):        IntArrayType,
	reflect.TypeOf([]uint32{}):       IntArrayType,
	reflect.TypeOf([]int64{}):        LongArrayType,
	reflect.TypeOf([]uint64{}):       LongArrayType,
	reflect.TypeOf([]int{}):          LongArrayType,
	reflect.TypeOf([]uint{}):         LongArrayType,
	reflect.TypeOf([]float32{}):      FloatArrayType,
	reflect.TypeOf([]float64{}):      DoubleArrayType,
	reflect.TypeOf([]bool{}):         BoolArrayType,
	reflect.TypeOf([]string{}):       StringArrayType,
	reflect.TypeOf([]*string{}):      StringArrayType,
	reflect.TypeOf([]uuid.UUID{}):    UuidArrayType,
	reflect.TypeOf([]*uuid.UUID{}):   UuidArrayType,
	reflect.TypeOf([]Date{}):         DateArrayType,
	reflect.TypeOf([]*Date{}):        DateArrayType,
	reflect.TypeOf([]time.Time{}):    TimestampArrayType,
	reflect.TypeOf([]*time.Time{}):   TimestampArrayType,
	reflect.TypeOf([]Time{}):         TimeArrayType,
	reflect.TypeOf([]*Time{}):        TimeArrayType,
	reflect.TypeOf([]apd.Decimal{}):  DecimalArrayType,
	reflect.TypeOf([]*apd.Decimal{}): DecimalArrayType,
	reflect.TypeOf([]EnumItem{}):     EnumArrayType,
	reflect.TypeOf([]*EnumItem{}):    EnumArrayType,
	reflect.TypeOf([]interface{}{}):  ObjectArrayType,
	reflect.TypeOf(Collection{}):     CollectionType,
	reflect.TypeOf(&Collection{}):    CollectionType,
	reflect.TypeOf(Map{}):            MapType,
	reflect.TypeOf(&Map{}):           MapType,
	reflect.TypeOf(EnumItem{}):       EnumType,
	reflect.TypeOf(&EnumItem{}):      EnumType,
}

// inferTypeDesc picks the wire type for a Go value that carries no explicit hint.
func inferTypeDesc(value interface{}) (TypeDesc, error) {
	switch v := value.(type) {
	case nil:
		return NullType, nil
	case TypedValue:
		return v.Type, nil
	case BinaryObject:
		return BinaryObjectType, nil
	}
	t := reflect.TypeOf(value)
	if desc, ok := inferredTypes[t]; ok {
		return desc, nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return ObjectArrayType, nil
	case reflect.Map:
		return MapType, nil
	default:
		return 0, newUnsupportedTypeError("type '%T' is not supported", value)
	}
}

// GetTypeId returns the type code a value is written with.
func GetTypeId(val interface{}) (TypeDesc, error) {
	return inferTypeDesc(val)
}

func (c *binaryCodec) marshal(ctx context.Context, w *wire.Output, value interface{}) error {
	if tv, ok := value.(TypedValue); ok {
		return c.marshalAs(ctx, w, tv.Value, tv.Type)
	}
	desc, err := inferTypeDesc(value)
	if err != nil {
		return err
	}
	return c.marshalAs(ctx, w, value, desc)
}

func (c *binaryCodec) marshalAs(ctx context.Context, w *wire.Output, value interface{}, desc TypeDesc) error {
	if tv, ok := value.(TypedValue); ok {
		value = tv.Value
	}
	canonical, err := castValue(value, desc)
	if err != nil {
		return err
	}
	if canonical == nil {
		w.WriteInt8(NullType)
		return nil
	}
	return c.writeValue(ctx, w, desc, canonical)
}

// unmarshal reads one value. Truncated input panics with *wire.UnderflowError, callers recover it
// at the response boundary.
func (c *binaryCodec) unmarshal(ctx context.Context, r *wire.Input) (interface{}, error) {
	return c.readValue(ctx, r, r.ReadInt8())
}

// unmarshalSafe is unmarshal for callers outside a response boundary, truncated input is reported as
// a SerializationError.
func (c *binaryCodec) unmarshalSafe(ctx context.Context, r *wire.Input) (ret interface{}, err error) {
	defer recoverSerialization(&err)
	return c.unmarshal(ctx, r)
}

func recoverSerialization(err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	switch e := rec.(type) {
	case *wire.UnderflowError:
		*err = newSerializationError(e, "truncated binary data")
	case *SerializationError:
		*err = e
	default:
		panic(rec)
	}
}

func (c *binaryCodec) readValue(ctx context.Context, r *wire.Input, code TypeDesc) (interface{}, error) {
	switch code {
	case NullType:
		return nil, nil
	case BoolType:
		return r.ReadBool(), nil
	case ByteType:
		return r.ReadInt8(), nil
	case ShortType:
		return r.ReadInt16(), nil
	case CharType:
		return r.ReadUInt16(), nil
	case IntType:
		return r.ReadInt32(), nil
	case LongType:
		return r.ReadInt64(), nil
	case FloatType:
		return r.ReadFloat32(), nil
	case DoubleType:
		return r.ReadFloat64(), nil
	case StringType:
		return r.ReadString(), nil
	case UuidType:
		return readUuid(r), nil
	case DateType:
		return Date(r.ReadInt64()), nil
	case TimestampType:
		return readTimestamp(r), nil
	case TimeType:
		return Time(r.ReadInt64()), nil
	case DecimalType:
		return readDecimal(r)
	case ByteArrayType:
		return r.ReadBytes(readLength(r)), nil
	case ShortArrayType:
		return wire.ReadSlice[int16](r, readLength(r)), nil
	case IntArrayType:
		return wire.ReadSlice[int32](r, readLength(r)), nil
	case LongArrayType:
		return wire.ReadSlice[int64](r, readLength(r)), nil
	case FloatArrayType:
		return wire.ReadSlice[float32](r, readLength(r)), nil
	case DoubleArrayType:
		return wire.ReadSlice[float64](r, readLength(r)), nil
	case CharArrayType:
		return wire.ReadSlice[uint16](r, readLength(r)), nil
	case BoolArrayType:
		return wire.ReadSlice[bool](r, readLength(r)), nil
	case StringArrayType:
		return readNullableArray(r, StringType, func(r *wire.Input) (*string, error) {
			s := r.ReadString()
			return &s, nil
		})
	case UuidArrayType:
		return readNullableArray(r, UuidType, func(r *wire.Input) (*uuid.UUID, error) {
			u := readUuid(r)
			return &u, nil
		})
	case DateArrayType:
		return readNullableArray(r, DateType, func(r *wire.Input) (*Date, error) {
			d := Date(r.ReadInt64())
			return &d, nil
		})
	case TimestampArrayType:
		return readNullableArray(r, TimestampType, func(r *wire.Input) (*time.Time, error) {
			t := readTimestamp(r)
			return &t, nil
		})
	case TimeArrayType:
		return readNullableArray(r, TimeType, func(r *wire.Input) (*Time, error) {
			t := Time(r.ReadInt64())
			return &t, nil
		})
	case DecimalArrayType:
		return readNullableArray(r, DecimalType, readDecimal)
	case EnumArrayType:
		readComponentType(r)
		return readNullableArray(r, EnumType, func(r *wire.Input) (*EnumItem, error) {
			item := readEnum(r)
			return &item, nil
		})
	case EnumType, BinaryEnumType:
		return readEnum(r), nil
	case ObjectArrayType:
		readComponentType(r)
		return c.readObjects(ctx, r, readLength(r))
	case CollectionType:
		n := readLength(r)
		kind := r.ReadInt8()
		values, err := c.readObjects(ctx, r, n)
		if err != nil {
			return nil, err
		}
		return Collection{kind: kind, values: values}, nil
	case MapType:
		return c.readMap(ctx, r)
	case BinaryObjectType:
		start := r.Position() - 1
		r.SetPosition(start + lenPos)
		size := int(r.ReadInt32())
		r.SetPosition(start)
		return newBinaryObjectFromBytes(c, r.ReadBytes(size))
	case wrappedObjectType:
		data := r.ReadBytes(readLength(r))
		offset := int(r.ReadInt32())
		if offset < 0 || offset >= len(data) {
			return nil, newSerializationError(nil, "invalid wrapped object offset %d", offset)
		}
		return newBinaryObjectFromBytes(c, data[offset:])
	case handleType:
		start := r.Position() - 1
		back := int(r.ReadInt32())
		if back <= 0 || back > start {
			return nil, newSerializationError(nil, "invalid handle offset %d at %d", back, start)
		}
		ret := r.Position()
		r.SetPosition(start - back)
		v, err := c.unmarshal(ctx, r)
		r.SetPosition(ret)
		return v, err
	default:
		return nil, newUnsupportedTypeError("type code %d is not supported", code)
	}
}

func (c *binaryCodec) readObjects(ctx context.Context, r *wire.Input, n int) ([]interface{}, error) {
	ret := make([]interface{}, n)
	for i := 0; i < n; i++ {
		v, err := c.unmarshal(ctx, r)
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}

func (c *binaryCodec) readMap(ctx context.Context, r *wire.Input) (Map, error) {
	n := readLength(r)
	ret := Map{kind: r.ReadInt8(), entries: make([]KeyValue, n)}
	for i := 0; i < n; i++ {
		k, err := c.unmarshal(ctx, r)
		if err != nil {
			return Map{}, err
		}
		v, err := c.unmarshal(ctx, r)
		if err != nil {
			return Map{}, err
		}
		ret.entries[i] = KeyValue{Key: k, Value: v}
	}
	return ret, nil
}

// readLength reads an int32 element count and rejects counts the remaining input cannot hold.
func readLength(r *wire.Input) int {
	n := int(r.ReadInt32())
	if n < 0 || n > r.Remaining() {
		panic(&wire.UnderflowError{Position: r.Position(), Need: n, Length: len(r.Buffer())})
	}
	return n
}
