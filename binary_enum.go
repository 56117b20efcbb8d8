package ignite

import (
	"context"
	"strings"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// EnumItem is a constant of a binary enum type. It may be selected by ordinal, name or value; when
// several selectors are set they are tried in that order against the registered type.
type EnumItem struct {
	TypeId  int32
	Ordinal *int32
	Name    *string
	Value   *int32
}

// NewEnumItemByOrdinal selects the constant of enum typeId with the given ordinal.
func NewEnumItemByOrdinal(typeId int32, ordinal int32) EnumItem {
	return EnumItem{TypeId: typeId, Ordinal: &ordinal}
}

// NewEnumItemByName selects the constant of enum typeId with the given name.
func NewEnumItemByName(typeId int32, name string) EnumItem {
	return EnumItem{TypeId: typeId, Name: &name}
}

// NewEnumItemByValue selects the constant of enum typeId with the given value.
func NewEnumItemByValue(typeId int32, value int32) EnumItem {
	return EnumItem{TypeId: typeId, Value: &value}
}

// resolveEnum returns item with all three selectors filled from the registered enum type.
func (c *binaryCodec) resolveEnum(ctx context.Context, item EnumItem) (EnumItem, error) {
	if item.Ordinal == nil && item.Name == nil && item.Value == nil {
		return item, newIllegalArgumentError("enum item of type %d has no ordinal, name or value", item.TypeId)
	}
	meta, err := c.types.getType(ctx, item.TypeId)
	if err != nil {
		return item, err
	}
	if meta == nil || !meta.isEnum {
		return item, newEnumSerializationError("type %d is not a registered enum type", item.TypeId)
	}
	ordinal := -1
	if item.Ordinal != nil && *item.Ordinal >= 0 && int(*item.Ordinal) < len(meta.enumValues) {
		ordinal = int(*item.Ordinal)
	}
	if ordinal < 0 && item.Name != nil {
		for idx, v := range meta.enumValues {
			if v.Name == *item.Name {
				ordinal = idx
				break
			}
		}
	}
	if ordinal < 0 && item.Value != nil {
		for idx, v := range meta.enumValues {
			if v.Value == *item.Value {
				ordinal = idx
				break
			}
		}
	}
	if ordinal < 0 {
		return item, newEnumSerializationError("enum item does not match any constant of type %s", meta.typeName)
	}
	v := meta.enumValues[ordinal]
	return NewEnumItemWith(item.TypeId, int32(ordinal), v.Name, v.Value), nil
}

// NewEnumItemWith builds a fully resolved item.
func NewEnumItemWith(typeId int32, ordinal int32, name string, value int32) EnumItem {
	return EnumItem{TypeId: typeId, Ordinal: &ordinal, Name: &name, Value: &value}
}

func (c *binaryCodec) writeEnum(ctx context.Context, w *wire.Output, item EnumItem) error {
	resolved, err := c.resolveEnum(ctx, item)
	if err != nil {
		return err
	}
	w.WriteInt32(resolved.TypeId)
	w.WriteInt32(*resolved.Ordinal)
	return nil
}

func readEnum(r *wire.Input) EnumItem {
	typeId := r.ReadInt32()
	return NewEnumItemByOrdinal(typeId, r.ReadInt32())
}

// enumComponentType returns the type id shared by all items, or the generic object id.
func enumComponentType(items []*EnumItem) int32 {
	ret := int32(objectType)
	for _, item := range items {
		if item == nil {
			continue
		}
		if ret == int32(objectType) {
			ret = item.TypeId
		} else if ret != item.TypeId {
			return int32(objectType)
		}
	}
	return ret
}

// registerEnum declares an enum type with its constants, ordinals follow the order of values.
func (c *binaryCodec) registerEnum(ctx context.Context, typeName string, values []EnumValue) (int32, error) {
	typeName = strings.TrimSpace(typeName)
	if len(typeName) == 0 {
		return 0, newIllegalArgumentError("enum type name is empty")
	}
	if len(values) == 0 {
		return 0, newIllegalArgumentError("enum type %s has no values", typeName)
	}
	names := make(map[string]struct{}, len(values))
	ords := make(map[int32]struct{}, len(values))
	for _, v := range values {
		if len(v.Name) == 0 {
			return 0, newIllegalArgumentError("enum type %s has a constant with empty name", typeName)
		}
		if _, ok := names[v.Name]; ok {
			return 0, newIllegalArgumentError("enum type %s declares %s twice", typeName, v.Name)
		}
		if _, ok := ords[v.Value]; ok {
			return 0, newIllegalArgumentError("enum type %s declares value %d twice", typeName, v.Value)
		}
		names[v.Name] = struct{}{}
		ords[v.Value] = struct{}{}
	}
	typeId := c.idMapper.TypeId(typeName)
	if _, err := c.types.getType(ctx, typeId); err != nil {
		return 0, err
	}
	meta := newBinaryMetadata(typeId, typeName, "")
	meta.isEnum = true
	meta.enumValues = append([]EnumValue(nil), values...)
	if err := c.types.putType(ctx, meta); err != nil {
		return 0, err
	}
	return typeId, nil
}

// RegisterEnumType registers an enum type with the cluster and returns its type id. Registering the
// same type again with additional constants appends them.
func (cli *Client) RegisterEnumType(ctx context.Context, typeName string, values ...EnumValue) (int32, error) {
	if err := cli.checkOpen(); err != nil {
		return 0, err
	}
	return cli.codec.registerEnum(ctx, typeName, values)
}

// ResolveEnumItem fills ordinal, name and value of item from its registered type.
func (cli *Client) ResolveEnumItem(ctx context.Context, item EnumItem) (EnumItem, error) {
	if err := cli.checkOpen(); err != nil {
		return item, err
	}
	return cli.codec.resolveEnum(ctx, item)
}
