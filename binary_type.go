package ignite

import (
	"fmt"
	"strings"

	"github.com/source-c/go-gridgain-thin/internal"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// BinaryType contains binary object type metadata.
type BinaryType interface {
	// TypeId returns type identificator.
	TypeId() int32
	// TypeName returns type name
	TypeName() string
	// AffinityKeyName returns field that is used as affinity key.
	AffinityKeyName() string
	// IsEnum returns true if binary enum, false otherwise.
	IsEnum() bool
	// Fields returns fields of the binary object.
	Fields() []string
	// FieldType returns the type code of a field and false if the type has no such field.
	FieldType(name string) (TypeDesc, bool)
	// EnumValues returns the declared constants of an enum type in ordinal order.
	EnumValues() []EnumValue
}

// EnumValue is a named constant of an enum type, its ordinal is its position in the type.
type EnumValue struct {
	Name  string
	Value int32
}

type BinaryIdMapper interface {
	TypeId(typeName string) int32
	FieldId(typeId int32, fldName string) int32
}

// BinaryBasicIdMapper derives ids from Java hash codes of the lower-cased type name and the field name.
type BinaryBasicIdMapper struct {
}

func (b BinaryBasicIdMapper) TypeId(typeName string) int32 {
	return internal.HashCode(strings.ToLower(typeName))
}

func (b BinaryBasicIdMapper) FieldId(_ int32, fldName string) int32 {
	return internal.HashCode(fldName)
}

type binaryFieldMeta struct {
	name    string
	typeId  int32
	fieldId int32
}

// binaryMetadata is never modified after it has been published to the type storage, merges produce
// a new value.
type binaryMetadata struct {
	typeId     int32
	typeName   string
	affKeyName string
	isEnum     bool
	fields     []binaryFieldMeta
	enumValues []EnumValue
	schemas    map[int32]*binarySchema
}

func newBinaryMetadata(typeId int32, typeName string, affKeyName string) *binaryMetadata {
	return &binaryMetadata{
		typeId:     typeId,
		typeName:   typeName,
		affKeyName: affKeyName,
		schemas:    make(map[int32]*binarySchema),
	}
}

func (meta *binaryMetadata) TypeId() int32 {
	return meta.typeId
}

func (meta *binaryMetadata) TypeName() string {
	return meta.typeName
}

func (meta *binaryMetadata) AffinityKeyName() string {
	return meta.affKeyName
}

func (meta *binaryMetadata) IsEnum() bool {
	return meta.isEnum
}

func (meta *binaryMetadata) Fields() []string {
	ret := make([]string, len(meta.fields))
	for i, f := range meta.fields {
		ret[i] = f.name
	}
	return ret
}

func (meta *binaryMetadata) FieldType(name string) (TypeDesc, bool) {
	if f := meta.field(name); f != nil {
		return TypeDesc(f.typeId), true
	}
	return 0, false
}

func (meta *binaryMetadata) EnumValues() []EnumValue {
	ret := make([]EnumValue, len(meta.enumValues))
	copy(ret, meta.enumValues)
	return ret
}

func (meta *binaryMetadata) field(name string) *binaryFieldMeta {
	for i := range meta.fields {
		if meta.fields[i].name == name {
			return &meta.fields[i]
		}
	}
	return nil
}

func (meta *binaryMetadata) addField(name string, typeId int32, fieldId int32) {
	meta.fields = append(meta.fields, binaryFieldMeta{name: name, typeId: typeId, fieldId: fieldId})
}

func (meta *binaryMetadata) addSchema(schema *binarySchema) {
	meta.schemas[schema.schemaId] = schema
}

func (meta *binaryMetadata) marshal(w *wire.Output) {
	w.WriteInt32(meta.typeId)
	writeObjectString(w, meta.typeName)
	writeObjectString(w, meta.affKeyName)
	w.WriteInt32(int32(len(meta.fields)))
	for _, f := range meta.fields {
		writeObjectString(w, f.name)
		w.WriteInt32(f.typeId)
		w.WriteInt32(f.fieldId)
	}
	w.WriteBool(meta.isEnum)
	if meta.isEnum {
		w.WriteInt32(int32(len(meta.enumValues)))
		for _, v := range meta.enumValues {
			writeObjectString(w, v.Name)
			w.WriteInt32(v.Value)
		}
	}
	w.WriteInt32(int32(len(meta.schemas)))
	for _, s := range meta.schemas {
		w.WriteInt32(s.schemaId)
		w.WriteInt32(int32(len(s.fieldIds)))
		for _, id := range s.fieldIds {
			w.WriteInt32(id)
		}
	}
}

func unmarshalBinaryMetadata(r *wire.Input) *binaryMetadata {
	meta := &binaryMetadata{
		typeId:     r.ReadInt32(),
		typeName:   readObjectString(r),
		affKeyName: readObjectString(r),
	}
	n := readLength(r)
	meta.fields = make([]binaryFieldMeta, n)
	for i := 0; i < n; i++ {
		meta.fields[i] = binaryFieldMeta{name: readObjectString(r), typeId: r.ReadInt32(), fieldId: r.ReadInt32()}
	}
	meta.isEnum = r.ReadBool()
	if meta.isEnum {
		n = readLength(r)
		meta.enumValues = make([]EnumValue, n)
		for i := 0; i < n; i++ {
			meta.enumValues[i] = EnumValue{Name: readObjectString(r), Value: r.ReadInt32()}
		}
	}
	n = readLength(r)
	meta.schemas = make(map[int32]*binarySchema, n)
	for i := 0; i < n; i++ {
		schema := &binarySchema{schemaId: r.ReadInt32()}
		schema.fieldIds = wire.ReadSlice[int32](r, readLength(r))
		meta.schemas[schema.schemaId] = schema
	}
	return meta
}

// mergeMetadata appends what upd adds to old. It returns the merged value and whether anything was
// added, fields and enum constants are never changed or removed.
func mergeMetadata(old *binaryMetadata, upd *binaryMetadata) (*binaryMetadata, bool, error) {
	if old == nil {
		return upd, true, nil
	}
	if old.typeId != upd.typeId {
		return nil, false, fmt.Errorf("type ids do not match: %d vs %d", old.typeId, upd.typeId)
	}
	if old.typeName != upd.typeName {
		return nil, false, fmt.Errorf("types have the same typeId %d: %s vs %s", upd.typeId, old.typeName, upd.typeName)
	}
	if old.affKeyName != upd.affKeyName {
		return nil, false, fmt.Errorf("type %s has different affinity key fields: %s vs %s", upd.typeName,
			old.affKeyName, upd.affKeyName)
	}
	if old.isEnum != upd.isEnum {
		return nil, false, fmt.Errorf("type %s is registered as enum=%t", upd.typeName, old.isEnum)
	}
	merged := &binaryMetadata{
		typeId:     old.typeId,
		typeName:   old.typeName,
		affKeyName: old.affKeyName,
		isEnum:     old.isEnum,
		fields:     append([]binaryFieldMeta(nil), old.fields...),
		enumValues: append([]EnumValue(nil), old.enumValues...),
		schemas:    make(map[int32]*binarySchema, len(old.schemas)+len(upd.schemas)),
	}
	changed := false
	for _, f := range upd.fields {
		prev := old.field(f.name)
		if prev == nil {
			merged.fields = append(merged.fields, f)
			changed = true
		} else if prev.typeId != f.typeId {
			return nil, false, fmt.Errorf("type %s with typeId %d has different type for field %s: %d vs %d",
				upd.typeName, upd.typeId, f.name, prev.typeId, f.typeId)
		}
	}
	for _, v := range upd.enumValues {
		found := false
		for _, prev := range old.enumValues {
			if prev.Name == v.Name {
				if prev.Value != v.Value {
					return nil, false, fmt.Errorf("enum %s has different values for %s: %d vs %d",
						upd.typeName, v.Name, prev.Value, v.Value)
				}
				found = true
				break
			}
		}
		if !found {
			merged.enumValues = append(merged.enumValues, v)
			changed = true
		}
	}
	for id, s := range old.schemas {
		merged.schemas[id] = s
	}
	for id, s := range upd.schemas {
		if _, ok := merged.schemas[id]; !ok {
			merged.schemas[id] = s
			changed = true
		}
	}
	return merged, changed, nil
}
