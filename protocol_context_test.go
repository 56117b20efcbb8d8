package ignite

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/source-c/go-gridgain-thin/internal/bitset"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	invalid := []string{
		" 1. 7. 0 ",
		"1.7.0.ver",
		"a.c.d",
		"asdasd",
		"1.2",
		"1.2.3.4",
	}
	for _, ver := range invalid {
		_, ok := ParseVersion(ver)
		require.False(t, ok, ver)
	}
	ver, ok := ParseVersion("1.7.0")
	require.True(t, ok)
	require.Equal(t, ProtocolVersion{1, 7, 0}, ver)
	require.Equal(t, "1.7.0", ver.String())
}

func TestCompareVersion(t *testing.T) {
	var fixtures []ProtocolVersion
	var k, i, j int16
	for k = 0; k < 3; k++ {
		for i = 0; i < 10; i++ {
			for j = 0; j < 10; j++ {
				fixtures = append(fixtures, ProtocolVersion{k, i, j})
			}
		}
	}
	test := make([]ProtocolVersion, len(fixtures))
	copy(test, fixtures)
	rand.Shuffle(len(test), func(i, j int) {
		test[i], test[j] = test[j], test[i]
	})
	sort.Slice(test, func(i, j int) bool {
		return test[i].Compare(test[j]) < 0
	})
	require.Equal(t, fixtures, test)
}

func TestProtocolFeatures(t *testing.T) {
	ctx := NewProtocolContext(ProtocolVersion{1, 6, 0}, UserAttributesFeature)
	require.Equal(t, ProtocolVersion{1, 6, 0}, ctx.Version())
	require.Nil(t, ctx.features)
	for f := _minFeature; f <= _maxFeature; f++ {
		require.False(t, ctx.SupportsAttributeFeature(f))
	}
	require.False(t, ctx.SupportsBitmapFeatures())
	require.True(t, ctx.SupportsPartitionAwareness())

	var features []AttributeFeature
	for f := _minFeature; f <= _maxFeature; f++ {
		features = append(features, f)
	}
	ctx = NewProtocolContext(ProtocolVersion{1, 7, 0}, features...)
	require.True(t, ctx.SupportsBitmapFeatures())
	for f := _minFeature; f <= _maxFeature; f++ {
		require.True(t, ctx.SupportsAttributeFeature(f))
	}
	server := bitset.New()
	server.Set(uint(BinaryConfigurationFeature))
	ctx.intersectFeatures(server)
	for f := _minFeature; f <= _maxFeature; f++ {
		require.Equal(t, f == BinaryConfigurationFeature, ctx.SupportsAttributeFeature(f))
	}
	ctx.intersectFeatures(nil)
	require.False(t, ctx.SupportsAttributeFeature(BinaryConfigurationFeature))
}

func TestProtocolContextWithVersion(t *testing.T) {
	ctx := NewProtocolContext(ProtocolVersion{1, 7, 0}, UserAttributesFeature)
	older := ctx.withVersion(ProtocolVersion{1, 4, 0})
	require.Equal(t, ProtocolVersion{1, 4, 0}, older.Version())
	require.False(t, older.SupportsAttributeFeature(UserAttributesFeature))
	newer := older.withVersion(ProtocolVersion{1, 7, 0})
	require.False(t, newer.SupportsAttributeFeature(UserAttributesFeature))
	again := ctx.withVersion(ProtocolVersion{1, 7, 0})
	require.True(t, again.SupportsAttributeFeature(UserAttributesFeature))
}

func TestProtocolContextMarshal(t *testing.T) {
	out := wire.NewOutput(16)
	NewProtocolContext(ProtocolVersion{1, 4, 0}).marshal(out)
	require.Equal(t, []byte{1, 0, 4, 0, 0, 0, 2}, out.Data())

	out = wire.NewOutput(16)
	NewProtocolContext(ProtocolVersion{1, 7, 0}, BinaryConfigurationFeature).marshal(out)
	require.Equal(t, []byte{1, 0, 7, 0, 0, 0, 2, 12, 2, 0, 0, 0, 0, 1}, out.Data())
}

func TestSupportedVersions(t *testing.T) {
	require.True(t, isSupportedVersion(defaultProtocolVersion))
	require.True(t, isSupportedVersion(minProtocolVersion))
	require.False(t, isSupportedVersion(ProtocolVersion{1, 8, 0}))
	require.False(t, isSupportedVersion(ProtocolVersion{2, 0, 0}))
}
