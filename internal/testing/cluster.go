package testing

import (
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	opResourceClose   int16 = 0
	opCachePartitions int16 = 1101
)

// FakeCluster is a set of fake nodes sharing one handler table and one topology version.
type FakeCluster struct {
	mu       sync.RWMutex
	nodes    []*FakeNode
	handlers map[int16]Handler
	topVer   TopologyVersion
}

func NewFakeCluster() *FakeCluster {
	c := &FakeCluster{handlers: make(map[int16]Handler), topVer: TopologyVersion{Major: 1}}
	c.handlers[opResourceClose] = func(*Request) Reply { return Reply{} }
	return c
}

// Handle registers the handler of an op code, replacing the previous one.
func (c *FakeCluster) Handle(opCode int16, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[opCode] = h
}

func (c *FakeCluster) handle(req *Request) Reply {
	c.mu.RLock()
	h, ok := c.handlers[req.OpCode]
	c.mu.RUnlock()
	if !ok {
		return Reply{Status: statusFailed, Message: fmt.Sprintf("unsupported operation %d", req.OpCode)}
	}
	return h(req)
}

// StartNode starts a node listening on a random local port.
func (c *FakeCluster) StartNode(opts ...NodeOption) (*FakeNode, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	node := &FakeNode{
		id:       uuid.New(),
		cluster:  c,
		listener: listener,
		version:  Version{1, 7, 0},
		conns:    make(map[net.Conn]struct{}),
		served:   make(map[int16]int),
	}
	for _, opt := range opts {
		opt(node)
	}
	if node.tlsConfig != nil {
		node.listener = tls.NewListener(listener, node.tlsConfig)
	}
	c.mu.Lock()
	c.nodes = append(c.nodes, node)
	c.mu.Unlock()
	node.wg.Add(1)
	go node.serve()
	return node, nil
}

// Nodes returns the nodes started so far, killed ones included.
func (c *FakeCluster) Nodes() []*FakeNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*FakeNode(nil), c.nodes...)
}

func (c *FakeCluster) TopologyVersion() TopologyVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topVer
}

// ChangeTopology bumps the topology version and makes the next response of every node announce it.
func (c *FakeCluster) ChangeTopology() TopologyVersion {
	c.mu.Lock()
	c.topVer.Major++
	ver := c.topVer
	nodes := append([]*FakeNode(nil), c.nodes...)
	c.mu.Unlock()
	for _, node := range nodes {
		node.announce(ver)
	}
	return ver
}

// Shutdown kills every node.
func (c *FakeCluster) Shutdown() {
	for _, node := range c.Nodes() {
		_ = node.Kill()
	}
}

// PartitionGroup is a set of caches sharing one partition distribution.
type PartitionGroup struct {
	Applicable bool
	// CacheKeyConfigs maps a cache id to its key type id → affinity field id configuration.
	CacheKeyConfigs map[int32]map[int32]int32
	Owners          map[uuid.UUID][]int32
}

// HandlePartitions serves cache partition requests from a distribution computed on every call.
func (c *FakeCluster) HandlePartitions(groups func() []PartitionGroup) {
	c.Handle(opCachePartitions, func(req *Request) Reply {
		return Reply{Body: PartitionsBody(c.TopologyVersion(), groups()...)}
	})
}

// PartitionsBody encodes a cache partitions response.
func PartitionsBody(ver TopologyVersion, groups ...PartitionGroup) []byte {
	out := wire.NewOutput(256)
	out.WriteInt64(ver.Major)
	out.WriteInt32(ver.Minor)
	out.WriteInt32(int32(len(groups)))
	for _, group := range groups {
		out.WriteBool(group.Applicable)
		out.WriteInt32(int32(len(group.CacheKeyConfigs)))
		for _, cacheId := range sortedKeys(group.CacheKeyConfigs) {
			out.WriteInt32(cacheId)
			if !group.Applicable {
				continue
			}
			keyCfg := group.CacheKeyConfigs[cacheId]
			out.WriteInt32(int32(len(keyCfg)))
			for _, typeId := range sortedKeys(keyCfg) {
				out.WriteInt32(typeId)
				out.WriteInt32(keyCfg[typeId])
			}
		}
		if !group.Applicable {
			continue
		}
		out.WriteInt32(int32(len(group.Owners)))
		for nodeId, parts := range group.Owners {
			writeUuid(out, nodeId)
			out.WriteInt32(int32(len(parts)))
			for _, p := range parts {
				out.WriteInt32(p)
			}
		}
	}
	return out.Data()
}

// RoundRobinOwners assigns partitions 0..parts-1 to nodes in turn.
func RoundRobinOwners(parts int, nodes ...*FakeNode) map[uuid.UUID][]int32 {
	ret := make(map[uuid.UUID][]int32, len(nodes))
	for p := 0; p < parts; p++ {
		id := nodes[p%len(nodes)].Id()
		ret[id] = append(ret[id], int32(p))
	}
	return ret
}

func sortedKeys[V any](m map[int32]V) []int32 {
	ret := make([]int32, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}
