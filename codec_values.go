package ignite

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// writeValue writes the type code and payload of a value already in canonical form.
func (c *binaryCodec) writeValue(ctx context.Context, w *wire.Output, desc TypeDesc, v interface{}) error {
	if desc == BinaryObjectType {
		w.WriteBytes(v.(BinaryObject).Data())
		return nil
	}
	w.WriteInt8(desc)
	switch desc {
	case BoolType:
		w.WriteBool(v.(bool))
	case ByteType:
		w.WriteInt8(v.(int8))
	case ShortType:
		w.WriteInt16(v.(int16))
	case CharType:
		w.WriteUInt16(v.(uint16))
	case IntType:
		w.WriteInt32(v.(int32))
	case LongType:
		w.WriteInt64(v.(int64))
	case FloatType:
		w.WriteFloat32(v.(float32))
	case DoubleType:
		w.WriteFloat64(v.(float64))
	case StringType:
		w.WriteString(v.(string))
	case UuidType:
		writeUuid(w, v.(uuid.UUID))
	case DateType:
		w.WriteInt64(int64(v.(Date)))
	case TimestampType:
		writeTimestamp(w, v.(time.Time))
	case TimeType:
		w.WriteInt64(int64(v.(Time)))
	case DecimalType:
		writeDecimal(w, v.(*apd.Decimal))
	case ByteArrayType:
		data := v.([]byte)
		w.WriteInt32(int32(len(data)))
		w.WriteBytes(data)
	case ShortArrayType:
		writePrimitiveArray(w, v.([]int16))
	case IntArrayType:
		writePrimitiveArray(w, v.([]int32))
	case LongArrayType:
		writePrimitiveArray(w, v.([]int64))
	case FloatArrayType:
		writePrimitiveArray(w, v.([]float32))
	case DoubleArrayType:
		writePrimitiveArray(w, v.([]float64))
	case CharArrayType:
		writePrimitiveArray(w, v.([]uint16))
	case BoolArrayType:
		writePrimitiveArray(w, v.([]bool))
	case StringArrayType:
		writeNullableArray(w, StringType, v.([]*string), func(w *wire.Output, s *string) error {
			w.WriteString(*s)
			return nil
		})
	case UuidArrayType:
		writeNullableArray(w, UuidType, v.([]*uuid.UUID), func(w *wire.Output, u *uuid.UUID) error {
			writeUuid(w, *u)
			return nil
		})
	case DateArrayType:
		writeNullableArray(w, DateType, v.([]*Date), func(w *wire.Output, d *Date) error {
			w.WriteInt64(int64(*d))
			return nil
		})
	case TimestampArrayType:
		writeNullableArray(w, TimestampType, v.([]*time.Time), func(w *wire.Output, t *time.Time) error {
			writeTimestamp(w, *t)
			return nil
		})
	case TimeArrayType:
		writeNullableArray(w, TimeType, v.([]*Time), func(w *wire.Output, t *Time) error {
			w.WriteInt64(int64(*t))
			return nil
		})
	case DecimalArrayType:
		writeNullableArray(w, DecimalType, v.([]*apd.Decimal), func(w *wire.Output, d *apd.Decimal) error {
			writeDecimal(w, d)
			return nil
		})
	case EnumArrayType:
		items := v.([]*EnumItem)
		w.WriteInt32(enumComponentType(items))
		return writeNullableArray(w, EnumType, items, func(w *wire.Output, item *EnumItem) error {
			return c.writeEnum(ctx, w, *item)
		})
	case EnumType, BinaryEnumType:
		return c.writeEnum(ctx, w, v.(EnumItem))
	case ObjectArrayType:
		values := v.([]interface{})
		w.WriteInt32(int32(objectType))
		w.WriteInt32(int32(len(values)))
		return c.writeObjects(ctx, w, values)
	case CollectionType:
		col := v.(Collection)
		w.WriteInt32(int32(len(col.values)))
		w.WriteInt8(col.kind)
		return c.writeObjects(ctx, w, col.values)
	case MapType:
		m := v.(Map)
		w.WriteInt32(int32(len(m.entries)))
		w.WriteInt8(m.kind)
		for _, entry := range m.entries {
			if err := c.marshal(ctx, w, entry.Key); err != nil {
				return err
			}
			if err := c.marshal(ctx, w, entry.Value); err != nil {
				return err
			}
		}
	default:
		return newUnsupportedTypeError("type code %d cannot be written", desc)
	}
	return nil
}

func (c *binaryCodec) writeObjects(ctx context.Context, w *wire.Output, values []interface{}) error {
	for _, value := range values {
		if err := c.marshal(ctx, w, value); err != nil {
			return err
		}
	}
	return nil
}

func writePrimitiveArray[T wire.Primitive](w *wire.Output, values []T) {
	w.WriteInt32(int32(len(values)))
	wire.WriteSlice(w, values)
}

func writeNullableArray[T any](w *wire.Output, elemType TypeDesc, values []*T, elemWriter func(w *wire.Output, el *T) error) error {
	w.WriteInt32(int32(len(values)))
	for _, el := range values {
		if el == nil {
			w.WriteInt8(NullType)
			continue
		}
		w.WriteInt8(elemType)
		if err := elemWriter(w, el); err != nil {
			return err
		}
	}
	return nil
}

func readNullableArray[T any](r *wire.Input, elemType TypeDesc, elemReader func(r *wire.Input) (*T, error)) ([]*T, error) {
	n := readLength(r)
	ret := make([]*T, n)
	for i := 0; i < n; i++ {
		switch code := r.ReadInt8(); code {
		case NullType:
		case elemType:
			el, err := elemReader(r)
			if err != nil {
				return nil, err
			}
			ret[i] = el
		default:
			return nil, newSerializationError(nil, "unexpected type code %d in array of %d", code, elemType)
		}
	}
	return ret, nil
}

// readComponentType skips the element type of an object or enum array.
func readComponentType(r *wire.Input) {
	if r.ReadInt32() == int32(unregisteredType) {
		readObjectString(r)
	}
}

func writeUuid(w *wire.Output, val uuid.UUID) {
	w.WriteUInt64(binary.BigEndian.Uint64(val[:8]))
	w.WriteUInt64(binary.BigEndian.Uint64(val[8:]))
}

func readUuid(r *wire.Input) uuid.UUID {
	ret := uuid.UUID{}
	binary.BigEndian.PutUint64(ret[:8], r.ReadUInt64())
	binary.BigEndian.PutUint64(ret[8:], r.ReadUInt64())
	return ret
}

// uuidHalves returns the most and least significant halves as the server sees them.
func uuidHalves(val uuid.UUID) (int64, int64) {
	return int64(binary.BigEndian.Uint64(val[:8])), int64(binary.BigEndian.Uint64(val[8:]))
}

func writeTimestamp(w *wire.Output, val time.Time) {
	millis := val.Unix()*1000 + int64(val.Nanosecond()/int(time.Millisecond))
	w.WriteInt64(millis)
	w.WriteInt32(int32(val.Nanosecond() % int(time.Millisecond)))
}

func readTimestamp(r *wire.Input) time.Time {
	millis := r.ReadInt64()
	nanos := int64(r.ReadInt32()) + (millis%1000)*int64(time.Millisecond)
	return time.Unix(millis/1000, nanos)
}

// writeDecimal writes the scale followed by the big-endian magnitude, the sign lives in the top bit
// of the first byte.
func writeDecimal(w *wire.Output, val *apd.Decimal) {
	w.WriteInt32(-val.Exponent)
	coeff := val.Coeff.Bytes()
	if len(coeff) == 0 || coeff[0] > 0x7F {
		tmp := make([]byte, len(coeff)+1)
		copy(tmp[1:], coeff)
		coeff = tmp
	}
	if val.Negative {
		coeff[0] |= 0x80
	}
	w.WriteInt32(int32(len(coeff)))
	w.WriteBytes(coeff)
}

func readDecimal(r *wire.Input) (*apd.Decimal, error) {
	exp := -r.ReadInt32()
	coeff := r.ReadBytes(readLength(r))
	if len(coeff) == 0 {
		return nil, newSerializationError(nil, "invalid decimal: empty magnitude")
	}
	negative := coeff[0]&0x80 == 0x80
	coeff[0] &= 0x7F
	mag := new(apd.BigInt)
	mag.SetBytes(coeff)
	if negative {
		mag.Neg(mag)
	}
	return apd.NewWithBigInt(mag, exp), nil
}

// writeObjectString writes a string as a typed value, an empty string is written as null.
func writeObjectString(w *wire.Output, val string) {
	if len(val) == 0 {
		w.WriteInt8(NullType)
		return
	}
	w.WriteInt8(StringType)
	w.WriteString(val)
}

// readObjectString reads a typed string value, null yields "".
func readObjectString(r *wire.Input) string {
	switch code := r.ReadInt8(); code {
	case NullType:
		return ""
	case StringType:
		return r.ReadString()
	default:
		panic(newSerializationError(nil, "expected string, got type code %d", code))
	}
}
