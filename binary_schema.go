package ignite

import (
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	// 0x811C9DC5 as a signed 32-bit value
	fnv1OffsetBasis int32  = -0x7EE3623B
	fnv1Prime       uint32 = 0x01000193
	maxOffset1             = 1 << 8
	maxOffset2             = 1 << 16
)

// binarySchema is the ordered list of field ids of one object layout.
type binarySchema struct {
	schemaId int32
	fieldIds []int32
}

// fieldIndex returns the position of fieldId in the schema or -1.
func (s *binarySchema) fieldIndex(fieldId int32) int {
	for idx, id := range s.fieldIds {
		if id == fieldId {
			return idx
		}
	}
	return -1
}

// schemaBuilder collects (field id, offset) pairs while an object is written and produces its
// footer and schema id.
type schemaBuilder struct {
	schemaId int32
	fieldIds []int32
	offsets  []int32
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{schemaId: fnv1OffsetBasis}
}

func (b *schemaBuilder) addField(fieldId int32, offset int32) {
	b.fieldIds = append(b.fieldIds, fieldId)
	b.offsets = append(b.offsets, offset)
	b.schemaId = updateSchemaId(b.schemaId, fieldId)
}

func (b *schemaBuilder) build() *binarySchema {
	ids := make([]int32, len(b.fieldIds))
	copy(ids, b.fieldIds)
	return &binarySchema{schemaId: b.schemaId, fieldIds: ids}
}

// writeFooter writes the offset table and returns the width of one offset in bytes, 0 when the object
// has no fields. A full footer also carries the field id in front of each offset.
func (b *schemaBuilder) writeFooter(w *wire.Output, compact bool) int {
	if len(b.offsets) == 0 {
		return 0
	}
	width := offsetWidth(b.offsets[len(b.offsets)-1])
	for idx, offset := range b.offsets {
		if !compact {
			w.WriteInt32(b.fieldIds[idx])
		}
		switch width {
		case 1:
			w.WriteUInt8(uint8(offset))
		case 2:
			w.WriteUInt16(uint16(offset))
		default:
			w.WriteInt32(offset)
		}
	}
	return width
}

// offsetWidth picks the smallest offset width able to address lastOffset.
func offsetWidth(lastOffset int32) int {
	switch {
	case lastOffset < maxOffset1:
		return 1
	case lastOffset < maxOffset2:
		return 2
	default:
		return 4
	}
}

// updateSchemaId folds the four bytes of fieldId into the FNV-1 hash.
func updateSchemaId(schemaId int32, fieldId int32) int32 {
	h := uint32(schemaId)
	for shift := 0; shift < 32; shift += 8 {
		h ^= uint32(fieldId>>shift) & 0xFF
		h *= fnv1Prime
	}
	return int32(h)
}
