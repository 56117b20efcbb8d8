package ignite

import (
	"context"
	"fmt"
	"strings"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

type boField struct {
	name   string
	typeId TypeDesc
	typed  bool
	value  interface{}
}

type binaryObjectOptions struct {
	typeName     string
	affKeyName   string
	fields       []*boField
	isRegistered bool // false only in tests, writes the type name into the object
}

func (opts *binaryObjectOptions) addField(field *boField) {
	field.name = strings.TrimSpace(field.name)
	if len(field.name) == 0 {
		return
	}
	for _, f := range opts.fields {
		if f.name == field.name {
			return
		}
	}
	opts.fields = append(opts.fields, field)
}

// BinaryObjectOption sets a property of a binary object being created.
type BinaryObjectOption func(opt *binaryObjectOptions)

// WithAffinityKeyName sets affinity key field for binary object.
func WithAffinityKeyName(affKeyName string) BinaryObjectOption {
	return func(opt *binaryObjectOptions) {
		opt.affKeyName = strings.TrimSpace(affKeyName)
	}
}

// WithField sets field with specified name and value for binary object. The field type is inferred from
// the value, a [TypedValue] pins it.
func WithField(name string, value interface{}) BinaryObjectOption {
	return func(opt *binaryObjectOptions) {
		if tv, ok := value.(TypedValue); ok {
			opt.addField(&boField{name: name, typeId: tv.Type, typed: true, value: tv.Value})
			return
		}
		opt.addField(&boField{name: name, value: value})
	}
}

// WithTypedField sets field with specified name, value and type for binary object.
func WithTypedField(name string, value interface{}, typeId TypeDesc) BinaryObjectOption {
	return WithField(name, As(value, typeId))
}

// WithNullField sets field with specified name, type and nil value for binary object.
func WithNullField(name string, typeId TypeDesc) BinaryObjectOption {
	return func(opt *binaryObjectOptions) {
		opt.addField(&boField{name: name, typeId: typeId, typed: true})
	}
}

// CreateBinaryObject creates BinaryObject with specified type name and options.
func (cli *Client) CreateBinaryObject(ctx context.Context, typeName string, opts ...BinaryObjectOption) (BinaryObject, error) {
	if err := cli.checkOpen(); err != nil {
		return nil, err
	}
	boOpts := &binaryObjectOptions{
		typeName:     strings.TrimSpace(typeName),
		isRegistered: true,
	}
	for _, opt := range opts {
		opt(boOpts)
	}
	return cli.codec.buildObject(ctx, boOpts)
}

// buildObject writes the header with placeholders, then the fields in declaration order, then the
// footer, and finally backpatches length, hash code, schema id and schema offset.
func (c *binaryCodec) buildObject(ctx context.Context, opts *binaryObjectOptions) (BinaryObject, error) {
	if len(opts.typeName) == 0 {
		return nil, newIllegalArgumentError("type name is empty")
	}
	typeId := c.idMapper.TypeId(opts.typeName)
	old, err := c.types.getType(ctx, typeId)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	affKeyName := opts.affKeyName
	if old != nil {
		if old.typeName != opts.typeName {
			return nil, newIllegalArgumentError("types have the same typeId %d: old %s vs %s", typeId,
				old.typeName, opts.typeName)
		}
		if affKeyName == "" {
			affKeyName = old.affKeyName
		} else if affKeyName != old.affKeyName {
			return nil, newIllegalArgumentError("type %s with typeId %d has different affinity key field: %s vs %s",
				opts.typeName, typeId, old.affKeyName, affKeyName)
		}
	}
	meta := newBinaryMetadata(typeId, opts.typeName, affKeyName)
	compact := c.isCompactFooter()

	out := wire.NewOutput(headerLength + 16*len(opts.fields))
	out.WriteInt8(BinaryObjectType)
	out.WriteInt8(protoVersion)
	out.Reserve(headerLength - 2)
	flags := flagUserType
	if compact {
		flags |= flagCompactFooter
	}
	if !opts.isRegistered {
		writeObjectString(out, opts.typeName)
	}
	fieldsStart := out.Position()
	schema := newSchemaBuilder()
	for _, field := range opts.fields {
		fieldType, err := c.fieldType(field, old)
		if err != nil {
			return nil, err
		}
		fieldId := c.idMapper.FieldId(typeId, field.name)
		meta.addField(field.name, int32(fieldType), fieldId)
		schema.addField(fieldId, int32(out.Position()))
		if err = c.marshalAs(ctx, out, field.value, fieldType); err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", field.name, err)
		}
	}
	schemaOffset := out.Position()
	if len(opts.fields) > 0 {
		flags |= flagHasSchema
		switch schema.writeFooter(out, compact) {
		case 1:
			flags |= flagOffsetOneByte
		case 2:
			flags |= flagOffsetTwoBytes
		}
	} else {
		schemaOffset = fieldsStart
	}
	built := schema.build()
	meta.addSchema(built)
	if err = c.types.putType(ctx, meta); err != nil {
		return nil, err
	}

	out.PutUInt16At(flagsPos, flags)
	if opts.isRegistered {
		out.PutInt32At(typeIdPos, typeId)
	} else {
		out.PutInt32At(typeIdPos, int32(unregisteredType))
	}
	out.PutInt32At(hashCodePos, out.HashCode(fieldsStart, schemaOffset))
	out.PutInt32At(lenPos, int32(out.Position()))
	out.PutInt32At(schemaIdPos, built.schemaId)
	out.PutInt32At(schemaOffsetPos, int32(schemaOffset))
	return newBinaryObjectFromBytes(c, out.Data())
}

// fieldType decides the type code of a field: an explicit type first, then the registered type of the
// field, then the type inferred from the value.
func (c *binaryCodec) fieldType(field *boField, old *binaryMetadata) (TypeDesc, error) {
	var registered *binaryFieldMeta
	if old != nil {
		registered = old.field(field.name)
	}
	var typ TypeDesc
	switch {
	case field.typed:
		typ = field.typeId
	case field.value != nil:
		inferred, err := inferTypeDesc(field.value)
		if err != nil {
			return 0, fmt.Errorf("failed to get type id for field %s: %w", field.name, err)
		}
		typ = inferred
	case registered != nil:
		typ = TypeDesc(registered.typeId)
	default:
		typ = BinaryObjectType
	}
	if registered != nil && int32(typ) != registered.typeId {
		return 0, newIllegalArgumentError("field %s is registered with type %d, got %d", field.name,
			registered.typeId, typ)
	}
	return typ, nil
}
