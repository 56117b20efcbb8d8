package ignite

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const opCachePartitions int16 = 1101

// AffinityTopologyVersion identifies a state of the cluster topology as seen by the affinity function.
type AffinityTopologyVersion struct {
	Major int64
	Minor int32
}

// Compare returns 0 if versions are equal, a positive number if v is newer than other and a negative one
// otherwise.
func (v AffinityTopologyVersion) Compare(other AffinityTopologyVersion) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

func (v AffinityTopologyVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// cacheAffinity is the partition distribution of one cache.
type cacheAffinity struct {
	// applicable is false when the cache uses a custom affinity function the client cannot evaluate.
	applicable bool
	// keyConfig maps a key type id to the id of its affinity key field.
	keyConfig map[int32]int32
	owners    []uuid.UUID
}

func (a *cacheAffinity) partitionCount() int {
	return len(a.owners)
}

// owner returns the primary node of part.
func (a *cacheAffinity) owner(part int) (uuid.UUID, bool) {
	if part < 0 || part >= len(a.owners) {
		return uuid.Nil, false
	}
	id := a.owners[part]
	return id, id != uuid.Nil
}

// partitionMap is an immutable snapshot, a refresh publishes a new value.
type partitionMap struct {
	version AffinityTopologyVersion
	caches  map[int32]*cacheAffinity
}

func newPartitionMap(version AffinityTopologyVersion) *partitionMap {
	return &partitionMap{version: version, caches: make(map[int32]*cacheAffinity)}
}

func (m *partitionMap) affinity(cacheId int32) *cacheAffinity {
	return m.caches[cacheId]
}

// merge returns a snapshot with the caches of update replacing the ones of m. Mappings of an older
// topology are ignored.
func (m *partitionMap) merge(version AffinityTopologyVersion, update map[int32]*cacheAffinity) *partitionMap {
	switch cmp := version.Compare(m.version); {
	case cmp < 0:
		return m
	case cmp > 0:
		ret := newPartitionMap(version)
		for id, aff := range update {
			ret.caches[id] = aff
		}
		return ret
	}
	ret := newPartitionMap(version)
	for id, aff := range m.caches {
		ret.caches[id] = aff
	}
	for id, aff := range update {
		ret.caches[id] = aff
	}
	return ret
}

func writeCachePartitionsRequest(w *wire.Output, cacheIds []int32) {
	w.WriteInt32(int32(len(cacheIds)))
	for _, id := range cacheIds {
		w.WriteInt32(id)
	}
}

// readCachePartitions decodes a partitions response: the topology version followed by groups of caches
// sharing one distribution.
func readCachePartitions(r *wire.Input) (AffinityTopologyVersion, map[int32]*cacheAffinity) {
	ver := AffinityTopologyVersion{Major: r.ReadInt64(), Minor: r.ReadInt32()}
	ret := make(map[int32]*cacheAffinity)
	groups := readLength(r)
	for i := 0; i < groups; i++ {
		applicable := r.ReadBool()
		cacheCnt := readLength(r)
		cacheIds := make([]int32, cacheCnt)
		keyConfigs := make([]map[int32]int32, cacheCnt)
		for j := 0; j < cacheCnt; j++ {
			cacheIds[j] = r.ReadInt32()
			if applicable {
				keyConfigs[j] = readKeyConfig(r)
			}
		}
		var owners []uuid.UUID
		if applicable {
			owners = readPartitionOwners(r)
		}
		for j, id := range cacheIds {
			ret[id] = &cacheAffinity{applicable: applicable, keyConfig: keyConfigs[j], owners: owners}
		}
	}
	return ver, ret
}

func readKeyConfig(r *wire.Input) map[int32]int32 {
	n := readLength(r)
	if n == 0 {
		return nil
	}
	ret := make(map[int32]int32, n)
	for i := 0; i < n; i++ {
		keyTypeId := r.ReadInt32()
		ret[keyTypeId] = r.ReadInt32()
	}
	return ret
}

// readPartitionOwners reads node id → partitions and inverts it into a partition-indexed slice.
func readPartitionOwners(r *wire.Input) []uuid.UUID {
	nodes := readLength(r)
	byNode := make(map[uuid.UUID][]int32, nodes)
	maxPart := int32(-1)
	for i := 0; i < nodes; i++ {
		nodeId := readUuid(r)
		parts := wire.ReadSlice[int32](r, readLength(r))
		for _, p := range parts {
			if p < 0 {
				panic(newSerializationError(nil, "negative partition %d", p))
			}
			if p > maxPart {
				maxPart = p
			}
		}
		byNode[nodeId] = append(byNode[nodeId], parts...)
	}
	owners := make([]uuid.UUID, maxPart+1)
	for nodeId, parts := range byNode {
		for _, p := range parts {
			owners[p] = nodeId
		}
	}
	return owners
}
