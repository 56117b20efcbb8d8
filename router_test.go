package ignite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	testing2 "github.com/source-c/go-gridgain-thin/internal/testing"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPartitions = 16

func ownedBy(parts int, node *testing2.FakeNode) map[uuid.UUID][]int32 {
	return testing2.RoundRobinOwners(parts, node)
}

// servePartitions makes the cluster answer partition requests for cacheName with owners.
func servePartitions(cluster *testing2.FakeCluster, cacheName string, owners func() map[uuid.UUID][]int32) {
	cluster.HandlePartitions(func() []testing2.PartitionGroup {
		return []testing2.PartitionGroup{{
			Applicable:      true,
			CacheKeyConfigs: map[int32]map[int32]int32{cacheId(cacheName): {}},
			Owners:          owners(),
		}}
	})
}

func servedPuts(nodes []*testing2.FakeNode) []int {
	ret := make([]int, len(nodes))
	for i, node := range nodes {
		ret[i] = node.Served(opCachePut)
	}
	return ret
}

func ownerIndex(t *testing.T, key interface{}, nodes int) int {
	hash, ok := javaHashCode(key)
	require.True(t, ok)
	return calculatePartition(hash, testPartitions) % nodes
}

func TestKeyedRequestsGoToPrimaryNode(t *testing.T) {
	cluster, _, nodes := startGrid(t, 3)
	servePartitions(cluster, "routed", func() map[uuid.UUID][]int32 {
		return testing2.RoundRobinOwners(testPartitions, nodes...)
	})
	cli := startClient(t, nodes)
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "routed")
	require.NoError(t, err)

	keys := []interface{}{int32(1), int32(7), int64(1 << 40), "alpha", "beta", 3.5, true, uuid.New()}
	for i := 0; i < 20; i++ {
		keys = append(keys, int32(i*31))
	}
	for _, key := range keys {
		before := servedPuts(nodes)
		require.NoError(t, cache.Put(ctx, key, "value"))
		after := servedPuts(nodes)
		expected := ownerIndex(t, key, len(nodes))
		for i := range nodes {
			if i == expected {
				require.Equal(t, before[i]+1, after[i], "key %v must go to node %d", key, i)
			} else {
				require.Equal(t, before[i], after[i], "key %v must not go to node %d", key, i)
			}
		}
	}

	total := 0
	for _, node := range nodes {
		total += node.Served(opCachePartitions)
	}
	require.Equal(t, 1, total)
}

func TestKeyedRequestsWithoutPartitionAwareness(t *testing.T) {
	cluster, _, nodes := startGrid(t, 2)
	servePartitions(cluster, "plain", func() map[uuid.UUID][]int32 {
		return testing2.RoundRobinOwners(testPartitions, nodes...)
	})
	cli := startClient(t, nodes, WithPartitionAwareness(false))
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "plain")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, cache.Put(ctx, int32(i), int32(i)))
	}
	require.Equal(t, 1, nodes[0].Connections()+nodes[1].Connections())
	require.Equal(t, 10, nodes[0].Served(opCachePut)+nodes[1].Served(opCachePut))
	require.Zero(t, nodes[0].Served(opCachePartitions)+nodes[1].Served(opCachePartitions))
}

func TestNotApplicableAffinity(t *testing.T) {
	cluster, _, nodes := startGrid(t, 2)
	cluster.HandlePartitions(func() []testing2.PartitionGroup {
		return []testing2.PartitionGroup{{CacheKeyConfigs: map[int32]map[int32]int32{cacheId("custom"): nil}}}
	})
	cli := startClient(t, nodes)
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "custom")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, cache.Put(ctx, int32(i), int32(i)))
	}
	require.Equal(t, 10, nodes[0].Served(opCachePut)+nodes[1].Served(opCachePut))
	require.Equal(t, 1, nodes[0].Served(opCachePartitions)+nodes[1].Served(opCachePartitions))

	aff := cli.router.partitions.Load().affinity(cacheId("custom"))
	require.NotNil(t, aff)
	require.False(t, aff.applicable)
}

func TestPartitionsRefreshOnTopologyChange(t *testing.T) {
	cluster, _, nodes := startGrid(t, 2)
	var owner atomic.Int32
	servePartitions(cluster, "moving", func() map[uuid.UUID][]int32 {
		return ownedBy(testPartitions, nodes[owner.Load()])
	})
	cli := startClient(t, nodes)
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "moving")
	require.NoError(t, err)

	require.NoError(t, cache.Put(ctx, int32(1), "a"))
	require.Equal(t, 1, nodes[0].Served(opCachePut))
	require.Zero(t, nodes[1].Served(opCachePut))

	owner.Store(1)
	ver := cluster.ChangeTopology()
	require.Equal(t, int64(2), ver.Major)

	require.Eventually(t, func() bool {
		before := nodes[1].Served(opCachePut)
		if err := cache.Put(ctx, int32(1), "b"); err != nil {
			return false
		}
		return nodes[1].Served(opCachePut) > before
	}, 3*time.Second, 20*time.Millisecond)
	require.GreaterOrEqual(t, nodes[0].Served(opCachePartitions)+nodes[1].Served(opCachePartitions), 2)

	topVer := cli.router.topVer.Load()
	require.NotNil(t, topVer)
	require.Equal(t, AffinityTopologyVersion{Major: 2}, *topVer)

	val, err := cache.Get(ctx, int32(1))
	require.NoError(t, err)
	require.Equal(t, "b", val)
}

func TestPartitionScanGoesToOwner(t *testing.T) {
	cluster, _, nodes := startGrid(t, 2)
	servePartitions(cluster, "scanned", func() map[uuid.UUID][]int32 {
		return testing2.RoundRobinOwners(testPartitions, nodes...)
	})
	cli := startClient(t, nodes)
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "scanned")
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, int32(1), "one"))

	for part, owner := range []int{0, 1, 0, 1} {
		before := nodes[owner].Served(opQueryScan)
		query := NewScanQuery()
		query.Partition = part
		cursor, err := cache.Scan(ctx, query)
		require.NoError(t, err)
		_, err = cursor.GetAll(ctx)
		require.NoError(t, err)
		require.Equal(t, before+1, nodes[owner].Served(opQueryScan), "partition %d must be scanned on node %d", part, owner)
	}
}

func TestFailoverToAnotherNode(t *testing.T) {
	cluster, _, nodes := startGrid(t, 2)
	servePartitions(cluster, "failover", func() map[uuid.UUID][]int32 {
		return ownedBy(testPartitions, nodes[0])
	})
	cli := startClient(t, nodes)
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "failover")
	require.NoError(t, err)

	require.NoError(t, cache.Put(ctx, "key", int32(1)))
	require.Equal(t, 1, nodes[0].Served(opCachePut))

	require.NoError(t, nodes[0].Kill())
	require.NoError(t, cache.Put(ctx, "key", int32(2)))
	require.Equal(t, 1, nodes[1].Served(opCachePut))

	val, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, int32(2), val)

	require.NoError(t, nodes[1].Kill())
	require.Eventually(t, func() bool {
		_, err := cache.Get(ctx, "key")
		return IsClusterUnavailable(err)
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReconnectAfterConnectionDrop(t *testing.T) {
	_, _, nodes := startGrid(t, 1)
	cli := startClient(t, nodes, WithPartitionAwareness(false))
	ctx := context.Background()
	cache, err := cli.GetOrCreateCache(ctx, "drop")
	require.NoError(t, err)

	nodes[0].DropConnections()
	require.Eventually(t, func() bool {
		return nodes[0].Connections() == 0
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, cache.Put(ctx, "key", "value"))
	require.Equal(t, 2, len(nodes[0].Handshakes()))
}

func TestStartFailsWithoutNodes(t *testing.T) {
	cluster := testing2.NewFakeCluster()
	node, err := cluster.StartNode()
	require.NoError(t, err)
	addr := node.Address()
	require.NoError(t, node.Kill())

	_, err = Start(context.Background(), WithAddresses(addr), WithRequestTimeout(time.Second))
	require.True(t, IsClusterUnavailable(err))
}

// echoCluster answers Get requests of int32 keys with key*10, key 0 is answered after delay.
func echoCluster(t *testing.T, delay time.Duration) *testing2.FakeNode {
	cluster := testing2.NewFakeCluster()
	cluster.Handle(opCacheGet, func(req *testing2.Request) testing2.Reply {
		in := req.Payload
		in.ReadInt32()
		in.ReadUInt8()
		if code := in.ReadInt8(); code != IntType {
			return testing2.Reply{Status: int32(Failed), Message: "int key expected"}
		}
		key := in.ReadInt32()
		out := wire.NewOutput(16)
		out.WriteInt8(IntType)
		out.WriteInt32(key * 10)
		reply := testing2.Reply{Body: out.Data()}
		if key == 0 {
			reply.Delay = delay
		}
		return reply
	})
	node, err := cluster.StartNode()
	require.NoError(t, err)
	t.Cleanup(cluster.Shutdown)
	return node
}

func TestResponsesOutOfOrder(t *testing.T) {
	node := echoCluster(t, 300*time.Millisecond)
	cli := startClient(t, []*testing2.FakeNode{node}, WithPartitionAwareness(false))
	cache, err := cli.Cache("echo")
	require.NoError(t, err)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int32
	var wg sync.WaitGroup
	get := func(key int32) {
		defer wg.Done()
		val, err := cache.Get(ctx, key)
		assert.NoError(t, err)
		assert.Equal(t, key*10, val)
		mu.Lock()
		order = append(order, key)
		mu.Unlock()
	}
	wg.Add(1)
	go get(0)
	time.Sleep(50 * time.Millisecond)
	for i := int32(1); i <= 5; i++ {
		wg.Add(1)
		go get(i)
	}
	wg.Wait()
	require.Len(t, order, 6)
	require.Equal(t, int32(0), order[5])
	require.Equal(t, 1, node.Connections())
}

func TestRequestTimeout(t *testing.T) {
	node := echoCluster(t, time.Second)
	cli := startClient(t, []*testing2.FakeNode{node}, WithPartitionAwareness(false),
		WithRequestTimeout(200*time.Millisecond))
	cache, err := cli.Cache("echo")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Get(ctx, int32(0))
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	val, err := cache.Get(ctx, int32(4))
	require.NoError(t, err)
	require.Equal(t, int32(40), val)
}

func TestIdleConnectionIsClosed(t *testing.T) {
	node := echoCluster(t, 0)
	cli := startClient(t, []*testing2.FakeNode{node}, WithPartitionAwareness(false),
		WithIdleTimeout(300*time.Millisecond))
	cache, err := cli.Cache("echo")
	require.NoError(t, err)
	ctx := context.Background()

	require.Equal(t, 1, node.Connections())
	require.Eventually(t, func() bool {
		return node.Connections() == 0
	}, 3*time.Second, 50*time.Millisecond)

	val, err := cache.Get(ctx, int32(2))
	require.NoError(t, err)
	require.Equal(t, int32(20), val)
	require.Len(t, node.Handshakes(), 2)
}
