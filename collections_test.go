package ignite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func (suite *CacheTestSuite) TestCollections() {
	factories := []struct {
		name    string
		factory func(elems []interface{}) Collection
	}{
		{"ArrayList", func(elems []interface{}) Collection { return NewArrayList(elems...) }},
		{"LinkedList", func(elems []interface{}) Collection { return NewLinkedList(elems...) }},
		{"HashSet", func(elems []interface{}) Collection { return NewHashSet(elems...) }},
		{"LinkedHashSet", func(elems []interface{}) Collection { return NewLinkedHashSet(elems...) }},
		{"UserCollection", func(elems []interface{}) Collection { return NewUserCollection(elems...) }},
	}
	fixtures := [][]interface{}{
		{"test", "bucket"},
		{int32(10), int32(20)},
		{nil, "test", int32(10), int64(20)},
		{},
	}

	for _, factory := range factories {
		for _, fixture := range fixtures {
			suite.T().Run(fmt.Sprintf("%s: %v", factory.name, fixture), func(t *testing.T) {
				val := factory.factory(fixture)
				suite.putGetCollectionTest(t, "col-key", val, val)
			})
		}
	}

	for _, fixture := range fixtures {
		suite.T().Run(fmt.Sprintf("ObjectArray: %v", fixture), func(t *testing.T) {
			suite.putGetCollectionTest(t, "obj-arr-key", fixture, fixture)
		})
	}
}

func (suite *CacheTestSuite) TestPrimitiveArrays() {
	fixtures := []struct {
		name     string
		arr      interface{}
		expected interface{}
	}{
		{"BoolArray", []bool{true, false, true}, []bool{true, false, true}},
		{"ByteArray", []byte{1, 2, 255}, []byte{1, 2, 255}},
		{"ShortArray", []int16{-1, 0, 1 << 14}, []int16{-1, 0, 1 << 14}},
		{"CharArray", []uint16{'a', 'z'}, []uint16{'a', 'z'}},
		{"Int32Array", []int32{1 << 30, -7}, []int32{1 << 30, -7}},
		{"IntArray", []int{1, 2}, []int64{1, 2}},
		{"Int64Array", []int64{1 << 40, -1}, []int64{1 << 40, -1}},
		{"FloatArray", []float32{0.25, -1}, []float32{0.25, -1}},
		{"DoubleArray", []float64{0.5, 1e100}, []float64{0.5, 1e100}},
	}
	for _, fixture := range fixtures {
		suite.T().Run(fixture.name, func(t *testing.T) {
			suite.putGetCollectionTest(t, "primitive-arr-key", fixture.arr, fixture.expected)
		})
	}
}

func (suite *CacheTestSuite) TestMaps() {
	fixtures := []struct {
		name string
		m    Map
	}{
		{"HashMap-fromKV", NewHashMap(KeyValue{"test1", int32(1)}, KeyValue{"test2", int32(2)}, KeyValue{int32(3), nil})},
		{"LinkedHashMap-fromKV", NewLinkedHashMap(KeyValue{"test1", int32(1)}, KeyValue{int32(3), "three"})},
		{"LinkedHashMap-empty", NewLinkedHashMap([]KeyValue{}...)},
	}
	for _, fixture := range fixtures {
		suite.T().Run(fixture.name, func(t *testing.T) {
			suite.putGetCollectionTest(t, "map-key", fixture.m, fixture.m)
		})
	}
}

func (suite *CacheTestSuite) TestGoMapConversions() {
	ctx := context.Background()
	t := suite.T()
	goMap := map[string]int32{"test1": 1, "test2": 2, "test3": 3}
	for _, m := range []interface{}{goMap, ToHashMap(goMap), ToLinkedHashMap(goMap)} {
		require.NoError(t, suite.cache.Put(ctx, "go-map", m))
		ret, err := suite.cache.Get(ctx, "go-map")
		require.NoError(t, err)
		igniteMap, ok := ret.(Map)
		require.True(t, ok, "%T must be decoded as Map", ret)
		converted, err := ToMap[string, int32](igniteMap)
		require.NoError(t, err)
		require.Equal(t, goMap, converted)
	}

	_, err := ToMap[int64, int32](ToHashMap(goMap))
	require.Error(t, err)
}

func (suite *CacheTestSuite) TestCollectionOfBinaryObjects() {
	ctx := context.Background()
	t := suite.T()
	first, err := suite.client.CreateBinaryObject(ctx, "Item", WithField("id", int32(1)))
	require.NoError(t, err)
	second, err := suite.client.CreateBinaryObject(ctx, "Item", WithField("id", int32(2)))
	require.NoError(t, err)

	require.NoError(t, suite.cache.Put(ctx, "items", NewArrayList[interface{}](first, nil, second)))
	ret, err := suite.cache.Get(ctx, "items")
	require.NoError(t, err)
	items, ok := ret.(Collection)
	require.True(t, ok)
	require.Equal(t, ArrayList, items.Kind())
	require.Equal(t, 3, items.Size())
	require.Nil(t, items.Values()[1])
	for i, expected := range []BinaryObject{first, second} {
		obj, ok := items.Values()[i*2].(BinaryObject)
		require.True(t, ok)
		id, err := obj.Field(ctx, "id")
		require.NoError(t, err)
		require.Equal(t, int32(i+1), id)
		require.Equal(t, expected.Data(), obj.Data())
	}
}

func (suite *CacheTestSuite) putGetCollectionTest(t *testing.T, key interface{}, val interface{}, expected interface{}) {
	ctx := context.Background()
	defer func() {
		_ = suite.cache.ClearAll(ctx)
	}()
	sz, err := suite.cache.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), sz, "cache must be empty")

	ok, err := suite.cache.ContainsKey(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, suite.cache.Put(ctx, key, val), "failed to put value")

	ok, err = suite.cache.ContainsKey(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	actual, err := suite.cache.Get(ctx, key)
	require.NoError(t, err, "failed to get value")
	require.Equal(t, expected, actual)
}
