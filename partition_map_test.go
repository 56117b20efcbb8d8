package ignite

import (
	"testing"

	"github.com/google/uuid"
	testing2 "github.com/source-c/go-gridgain-thin/internal/testing"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestReadCachePartitions(t *testing.T) {
	node1, node2 := uuid.New(), uuid.New()
	body := testing2.PartitionsBody(testing2.TopologyVersion{Major: 3, Minor: 2},
		testing2.PartitionGroup{
			Applicable:      true,
			CacheKeyConfigs: map[int32]map[int32]int32{10: {100: 1000}, 11: nil},
			Owners:          map[uuid.UUID][]int32{node1: {0, 2}, node2: {1, 3}},
		},
		testing2.PartitionGroup{
			CacheKeyConfigs: map[int32]map[int32]int32{12: nil},
		},
	)

	in := wire.NewInput(body, 0)
	ver, caches := readCachePartitions(in)
	require.Zero(t, in.Remaining())
	require.Equal(t, AffinityTopologyVersion{Major: 3, Minor: 2}, ver)
	require.Len(t, caches, 3)

	owners := []uuid.UUID{node1, node2, node1, node2}
	require.Equal(t, &cacheAffinity{applicable: true, keyConfig: map[int32]int32{100: 1000}, owners: owners}, caches[10])
	require.Equal(t, &cacheAffinity{applicable: true, owners: owners}, caches[11])
	require.Equal(t, &cacheAffinity{}, caches[12])

	require.Equal(t, 4, caches[10].partitionCount())
	owner, ok := caches[10].owner(2)
	require.True(t, ok)
	require.Equal(t, node1, owner)
	_, ok = caches[10].owner(4)
	require.False(t, ok)
	_, ok = caches[12].owner(0)
	require.False(t, ok)
}

func TestReadCachePartitionsWithGaps(t *testing.T) {
	node := uuid.New()
	body := testing2.PartitionsBody(testing2.TopologyVersion{Major: 1},
		testing2.PartitionGroup{
			Applicable:      true,
			CacheKeyConfigs: map[int32]map[int32]int32{1: nil},
			Owners:          map[uuid.UUID][]int32{node: {0, 3}},
		})
	_, caches := readCachePartitions(wire.NewInput(body, 0))
	require.Equal(t, 4, caches[1].partitionCount())
	_, ok := caches[1].owner(1)
	require.False(t, ok)
	owner, ok := caches[1].owner(3)
	require.True(t, ok)
	require.Equal(t, node, owner)
}

func TestPartitionMapMerge(t *testing.T) {
	a := &cacheAffinity{applicable: true, owners: []uuid.UUID{uuid.New()}}
	b := &cacheAffinity{applicable: true, owners: []uuid.UUID{uuid.New()}}
	c := &cacheAffinity{}

	v1 := AffinityTopologyVersion{Major: 1}
	v2 := AffinityTopologyVersion{Major: 1, Minor: 1}

	m := newPartitionMap(AffinityTopologyVersion{}).merge(v1, map[int32]*cacheAffinity{1: a})
	require.Equal(t, v1, m.version)
	require.Same(t, a, m.affinity(1))

	// same topology accumulates caches
	same := m.merge(v1, map[int32]*cacheAffinity{2: b})
	require.Same(t, a, same.affinity(1))
	require.Same(t, b, same.affinity(2))
	require.Nil(t, m.affinity(2))

	// older topology is ignored
	require.Same(t, same, same.merge(AffinityTopologyVersion{}, map[int32]*cacheAffinity{1: c}))

	// newer topology drops what it does not carry
	newer := same.merge(v2, map[int32]*cacheAffinity{1: c})
	require.Equal(t, v2, newer.version)
	require.Same(t, c, newer.affinity(1))
	require.Nil(t, newer.affinity(2))
}

func TestAffinityTopologyVersionCompare(t *testing.T) {
	require.Zero(t, AffinityTopologyVersion{1, 1}.Compare(AffinityTopologyVersion{1, 1}))
	require.Positive(t, AffinityTopologyVersion{2, 0}.Compare(AffinityTopologyVersion{1, 5}))
	require.Negative(t, AffinityTopologyVersion{1, 0}.Compare(AffinityTopologyVersion{1, 5}))
	require.Equal(t, "2.1", AffinityTopologyVersion{2, 1}.String())
}

func TestWriteCachePartitionsRequest(t *testing.T) {
	out := wire.NewOutput(16)
	writeCachePartitionsRequest(out, []int32{5, -7})
	in := wire.NewInput(out.Data(), 0)
	require.Equal(t, int32(2), in.ReadInt32())
	require.Equal(t, int32(5), in.ReadInt32())
	require.Equal(t, int32(-7), in.ReadInt32())
}
