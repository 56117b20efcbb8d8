package ignite

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal"
)

// calculatePartition maps a key hash to a partition the way the rendezvous affinity function does.
func calculatePartition(hash int32, parts int) int {
	if parts <= 0 {
		return -1
	}
	if parts&(parts-1) == 0 {
		mask := int32(parts - 1)
		return int((hash ^ int32(uint32(hash)>>16)) & mask)
	}
	part := int(hash % int32(parts))
	if part < 0 {
		part = -part
	}
	return part
}

// javaHashCode returns the hash code the server computes for value. The second result is false for
// values the affinity function cannot be evaluated on locally.
func javaHashCode(value interface{}) (int32, bool) {
	switch v := value.(type) {
	case int8:
		return int32(v), true
	case int16:
		return int32(v), true
	case int32:
		return v, true
	case int64:
		return internal.LongHashCode(v), true
	case int:
		return internal.LongHashCode(int64(v)), true
	case uint8:
		return int32(int8(v)), true
	case uint16:
		return int32(v), true
	case uint32:
		return int32(v), true
	case uint64:
		return internal.LongHashCode(int64(v)), true
	case uint:
		return internal.LongHashCode(int64(v)), true
	case float32:
		return internal.FloatHashCode(v), true
	case float64:
		return internal.DoubleHashCode(v), true
	case bool:
		return internal.BoolHashCode(v), true
	case string:
		return internal.HashCode(v), true
	case uuid.UUID:
		msb, lsb := uuidHalves(v)
		return internal.UuidHashCode(msb, lsb), true
	case *uuid.UUID:
		if v == nil {
			return 0, false
		}
		return javaHashCode(*v)
	case Date:
		return internal.LongHashCode(int64(v)), true
	case Time:
		return internal.LongHashCode(int64(v)), true
	case time.Time:
		return internal.LongHashCode(toMillis(v)), true
	case *apd.Decimal:
		if v == nil {
			return 0, false
		}
		return decimalHashCode(v), true
	case apd.Decimal:
		return decimalHashCode(&v), true
	case EnumItem:
		if v.Ordinal == nil {
			return 0, false
		}
		return 31*v.TypeId + *v.Ordinal, true
	case BinaryObject:
		return v.HashCode(), true
	default:
		return 0, false
	}
}

// decimalHashCode returns java.math.BigDecimal#hashCode: the unscaled value hashed over its big-endian
// 32-bit words, then combined with the scale.
func decimalHashCode(d *apd.Decimal) int32 {
	mag := d.Coeff.Bytes()
	if pad := len(mag) % 4; pad != 0 {
		mag = append(make([]byte, 4-pad), mag...)
	}
	var hash int32
	for i := 0; i < len(mag); i += 4 {
		hash = 31*hash + int32(binary.BigEndian.Uint32(mag[i:]))
	}
	if d.Negative && d.Coeff.Sign() != 0 {
		hash = -hash
	}
	return 31*hash + (-d.Exponent)
}

// affinityHash returns the hash of the part of key that decides its partition. For binary objects that
// is the affinity key field, taken from the cache key configuration or from the type metadata.
func (c *binaryCodec) affinityHash(ctx context.Context, key interface{}, keyConfig map[int32]int32) (int32, bool) {
	if tv, ok := key.(TypedValue); ok {
		cast, err := castValue(tv.Value, tv.Type)
		if err != nil {
			return 0, false
		}
		key = cast
	}
	obj, ok := key.(*binaryObjectImpl)
	if !ok {
		return javaHashCode(key)
	}
	fieldId, found := keyConfig[obj.TypeId()]
	if !found {
		meta, err := c.types.getType(ctx, obj.TypeId())
		if err != nil || meta == nil || meta.affKeyName == "" {
			return obj.HashCode(), true
		}
		fld := meta.field(meta.affKeyName)
		if fld == nil {
			return obj.HashCode(), true
		}
		fieldId = fld.fieldId
	}
	val, err := obj.fieldById(ctx, fieldId)
	if err != nil || val == nil {
		return obj.HashCode(), true
	}
	return javaHashCode(val)
}
