package ignite

import (
	"fmt"
	"math"
	"reflect"
	"time"
	"unicode/utf16"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// TypedValue pins the wire type of a value instead of letting the codec infer it.
type TypedValue struct {
	Value interface{}
	Type  TypeDesc
}

// As wraps value so that it is written as typ, e.g. As(42, ShortType) or As("…uuid…", UuidType).
// The conversion happens when the value is serialized: a value of the wrong shape fails with
// [TypeCastError], a value that does not fit the target fails with [ValueCastError].
func As(value interface{}, typ TypeDesc) TypedValue {
	return TypedValue{Value: value, Type: typ}
}

func newTypeCastError(value interface{}, target TypeDesc) *TypeCastError {
	return &TypeCastError{
		ClientError: ClientError{Message: fmt.Sprintf("cannot cast value of type %T to type code %d", value, target)},
		Target:      target,
	}
}

func newValueCastError(value interface{}, target TypeDesc, cause error) *ValueCastError {
	return &ValueCastError{
		ClientError: ClientError{Message: fmt.Sprintf("value %v is not representable as type code %d", value, target), Cause: cause},
		Target:      target,
	}
}

// castValue converts value to the canonical Go form written for desc. A nil value stays nil.
func castValue(value interface{}, desc TypeDesc) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch desc {
	case NullType:
		return nil, nil
	case ByteType:
		n, err := castInteger(value, desc, 8)
		return int8(n), err
	case ShortType:
		n, err := castInteger(value, desc, 16)
		return int16(n), err
	case IntType:
		n, err := castInteger(value, desc, 32)
		return int32(n), err
	case LongType:
		return castInteger(value, desc, 64)
	case FloatType:
		f, err := castFloat(value, desc)
		if err == nil && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return nil, newValueCastError(value, desc, nil)
		}
		return float32(f), err
	case DoubleType:
		return castFloat(value, desc)
	case CharType:
		return castChar(value)
	case BoolType:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Bool {
			return nil, newTypeCastError(value, desc)
		}
		return rv.Bool(), nil
	case StringType:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.String {
			return nil, newTypeCastError(value, desc)
		}
		return rv.String(), nil
	case UuidType:
		return castUuid(value)
	case DateType:
		switch v := value.(type) {
		case Date:
			return v, nil
		case time.Time:
			return NewDate(v), nil
		case Time:
			return Date(v), nil
		case int64:
			return Date(v), nil
		}
		return nil, newTypeCastError(value, desc)
	case TimestampType:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case Date:
			return v.Time(), nil
		}
		return nil, newTypeCastError(value, desc)
	case TimeType:
		switch v := value.(type) {
		case Time:
			return v, nil
		case time.Time:
			return NewTime(v), nil
		case time.Duration:
			return Time(v.Milliseconds()), nil
		}
		return nil, newTypeCastError(value, desc)
	case DecimalType:
		return castDecimal(value)
	case ByteArrayType:
		if v, ok := value.([]byte); ok {
			return v, nil
		}
		signed, err := castPrimitiveSlice[int8](value, desc, ByteType)
		if err != nil {
			return nil, err
		}
		ret := make([]byte, len(signed))
		for i, b := range signed {
			ret[i] = byte(b)
		}
		return ret, nil
	case ShortArrayType:
		return castPrimitiveSlice[int16](value, desc, ShortType)
	case IntArrayType:
		return castPrimitiveSlice[int32](value, desc, IntType)
	case LongArrayType:
		return castPrimitiveSlice[int64](value, desc, LongType)
	case FloatArrayType:
		return castPrimitiveSlice[float32](value, desc, FloatType)
	case DoubleArrayType:
		return castPrimitiveSlice[float64](value, desc, DoubleType)
	case CharArrayType:
		if s, ok := value.(string); ok {
			return utf16.Encode([]rune(s)), nil
		}
		return castPrimitiveSlice[uint16](value, desc, CharType)
	case BoolArrayType:
		return castPrimitiveSlice[bool](value, desc, BoolType)
	case StringArrayType:
		return castNullableSlice(value, desc, elementCaster[string](StringType))
	case UuidArrayType:
		return castNullableSlice(value, desc, elementCaster[uuid.UUID](UuidType))
	case DateArrayType:
		return castNullableSlice(value, desc, elementCaster[Date](DateType))
	case TimestampArrayType:
		return castNullableSlice(value, desc, elementCaster[time.Time](TimestampType))
	case TimeArrayType:
		return castNullableSlice(value, desc, elementCaster[Time](TimeType))
	case DecimalArrayType:
		return castNullableSlice(value, desc, func(el interface{}) (*apd.Decimal, error) {
			d, err := castDecimal(el)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
	case EnumArrayType:
		return castNullableSlice(value, desc, elementCaster[EnumItem](EnumType))
	case ObjectArrayType:
		if v, ok := value.([]interface{}); ok {
			return v, nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, newTypeCastError(value, desc)
		}
		ret := make([]interface{}, rv.Len())
		for i := range ret {
			ret[i] = rv.Index(i).Interface()
		}
		return ret, nil
	case CollectionType:
		switch v := value.(type) {
		case Collection:
			return v, nil
		case *Collection:
			return *v, nil
		}
		values, err := castValue(value, ObjectArrayType)
		if err != nil {
			return nil, newTypeCastError(value, desc)
		}
		return Collection{kind: ArrayList, values: values.([]interface{})}, nil
	case MapType:
		switch v := value.(type) {
		case Map:
			return v, nil
		case *Map:
			return *v, nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map {
			return nil, newTypeCastError(value, desc)
		}
		entries := make([]KeyValue, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, KeyValue{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
		}
		return Map{kind: HashMap, entries: entries}, nil
	case EnumType, BinaryEnumType:
		switch v := value.(type) {
		case EnumItem:
			return v, nil
		case *EnumItem:
			return *v, nil
		}
		return nil, newTypeCastError(value, desc)
	case BinaryObjectType:
		if v, ok := value.(BinaryObject); ok {
			return v, nil
		}
		return nil, newTypeCastError(value, desc)
	default:
		return nil, newUnsupportedTypeError("type code %d cannot be written", desc)
	}
}

// castInteger returns value as a signed integer of the given width. Unsigned values of the same
// width are reinterpreted bit for bit, everything else is range checked.
func castInteger(value interface{}, desc TypeDesc, bits int) (int64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if bits < 64 && (n < -(int64(1)<<(bits-1)) || n > int64(1)<<(bits-1)-1) {
			return 0, newValueCastError(value, desc, nil)
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if rv.Type().Bits() == bits {
			shift := 64 - bits
			return int64(n<<shift) >> shift, nil
		}
		if n > uint64(1)<<(bits-1)-1 {
			return 0, newValueCastError(value, desc, nil)
		}
		return int64(n), nil
	default:
		return 0, newTypeCastError(value, desc)
	}
}

func castFloat(value interface{}, desc TypeDesc) (float64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	default:
		return 0, newTypeCastError(value, desc)
	}
}

func castChar(value interface{}) (uint16, error) {
	if s, ok := value.(string); ok {
		units := utf16.Encode([]rune(s))
		if len(units) != 1 {
			return 0, newValueCastError(value, CharType, nil)
		}
		return units[0], nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 || n > math.MaxUint16 {
			return 0, newValueCastError(value, CharType, nil)
		}
		return uint16(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > math.MaxUint16 {
			return 0, newValueCastError(value, CharType, nil)
		}
		return uint16(n), nil
	default:
		return 0, newTypeCastError(value, CharType)
	}
}

func castUuid(value interface{}) (uuid.UUID, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case *uuid.UUID:
		return *v, nil
	case [16]byte:
		return v, nil
	case []byte:
		ret, err := uuid.FromBytes(v)
		if err != nil {
			return uuid.Nil, newValueCastError(value, UuidType, err)
		}
		return ret, nil
	case string:
		ret, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, newValueCastError(value, UuidType, err)
		}
		return ret, nil
	default:
		return uuid.Nil, newTypeCastError(value, UuidType)
	}
}

func castDecimal(value interface{}) (*apd.Decimal, error) {
	switch v := value.(type) {
	case *apd.Decimal:
		return v, nil
	case apd.Decimal:
		return &v, nil
	case string:
		ret, _, err := apd.NewFromString(v)
		if err != nil {
			return nil, newValueCastError(value, DecimalType, err)
		}
		return ret, nil
	case float32, float64:
		f, _ := castFloat(v, DecimalType)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, newValueCastError(value, DecimalType, nil)
		}
		ret := new(apd.Decimal)
		if _, err := ret.SetFloat64(f); err != nil {
			return nil, newValueCastError(value, DecimalType, err)
		}
		return ret, nil
	}
	n, err := castInteger(value, DecimalType, 64)
	if err != nil {
		return nil, newTypeCastError(value, DecimalType)
	}
	return apd.New(n, 0), nil
}

func castPrimitiveSlice[T wire.Primitive](value interface{}, desc TypeDesc, elemDesc TypeDesc) ([]T, error) {
	if v, ok := value.([]T); ok {
		return v, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, newTypeCastError(value, desc)
	}
	ret := make([]T, rv.Len())
	for i := range ret {
		el, err := castValue(rv.Index(i).Interface(), elemDesc)
		if err != nil {
			return nil, err
		}
		v, ok := el.(T)
		if !ok {
			return nil, newTypeCastError(rv.Index(i).Interface(), elemDesc)
		}
		ret[i] = v
	}
	return ret, nil
}

func elementCaster[T any](elemDesc TypeDesc) func(interface{}) (*T, error) {
	return func(el interface{}) (*T, error) {
		v, err := castValue(el, elemDesc)
		if err != nil {
			return nil, err
		}
		ret := v.(T)
		return &ret, nil
	}
}

// castNullableSlice converts a slice of values or pointers into a slice of pointers, nil elements
// are kept as nil.
func castNullableSlice[T any](value interface{}, desc TypeDesc, conv func(interface{}) (*T, error)) ([]*T, error) {
	if v, ok := value.([]*T); ok {
		return v, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, newTypeCastError(value, desc)
	}
	ret := make([]*T, rv.Len())
	for i := range ret {
		el := rv.Index(i)
		if el.Kind() == reflect.Interface {
			if el.IsNil() {
				continue
			}
			el = el.Elem()
		}
		if el.Kind() == reflect.Pointer {
			if el.IsNil() {
				continue
			}
			el = el.Elem()
		}
		v, err := conv(el.Interface())
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}
