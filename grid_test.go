package ignite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/source-c/go-gridgain-thin/internal"
	testing2 "github.com/source-c/go-gridgain-thin/internal/testing"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/stretchr/testify/require"
)

// statusError makes a grid handler answer with a specific status code.
type statusError struct {
	status ErrorCode
	msg    string
}

func (e *statusError) Error() string {
	return e.msg
}

type memoryEntry struct {
	key   []byte
	value []byte
}

type memoryCache struct {
	config  CacheConfiguration
	order   []string
	entries map[string]memoryEntry
}

func (c *memoryCache) put(key []byte, value []byte) {
	if _, ok := c.entries[string(key)]; !ok {
		c.order = append(c.order, string(key))
	}
	c.entries[string(key)] = memoryEntry{key: key, value: value}
}

func (c *memoryCache) remove(key []byte) bool {
	if _, ok := c.entries[string(key)]; !ok {
		return false
	}
	delete(c.entries, string(key))
	for i, k := range c.order {
		if k == string(key) {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *memoryCache) rows() [][]byte {
	ret := make([][]byte, 0, len(c.order))
	for _, k := range c.order {
		entry := c.entries[k]
		ret = append(ret, append(append([]byte(nil), entry.key...), entry.value...))
	}
	return ret
}

// cacheHeader is the cache id and flags prefix of a request as the grid received it.
type cacheHeader struct {
	opCode int16
	flags  uint8
	expiry *ExpiryPolicy
}

type memoryCursor struct {
	rows     [][]byte
	pageSize int
}

type sqlFieldsRequest struct {
	schema            string
	pageSize          int32
	maxRows           int32
	sql               string
	args              []interface{}
	statementType     int8
	flags             [6]bool
	timeout           int64
	includeFieldNames bool
}

// memoryGrid serves cache, query and binary metadata requests of a fake cluster from memory. Keys
// are compared by their serialized form.
type memoryGrid struct {
	meta  *metaServer
	codec *binaryCodec
	pCtx  *ProtocolContext

	mu          sync.Mutex
	caches      map[int32]*memoryCache
	cursors     map[int64]*memoryCursor
	nextCursor  int64
	closed      []int64
	headers     []cacheHeader
	lastSql     []string
	fieldsQuery *sqlFieldsRequest
}

func newMemoryGrid() *memoryGrid {
	meta := newMetaServer()
	return &memoryGrid{
		meta:    meta,
		codec:   newTestCodec(meta, true),
		pCtx:    NewProtocolContext(defaultProtocolVersion),
		caches:  make(map[int32]*memoryCache),
		cursors: make(map[int64]*memoryCursor),
	}
}

// install registers the grid handlers on cluster. Partition requests are answered with an empty
// distribution unless the test installs its own handler afterwards.
func (g *memoryGrid) install(cluster *testing2.FakeCluster) {
	cluster.Handle(opCachePartitions, func(*testing2.Request) testing2.Reply {
		return testing2.Reply{Body: testing2.PartitionsBody(cluster.TopologyVersion())}
	})
	cluster.Handle(opGetBinaryType, g.forwardMeta(opGetBinaryType))
	cluster.Handle(opPutBinaryType, g.forwardMeta(opPutBinaryType))
	cluster.Handle(opResourceClose, g.serve(func(in *wire.Input, _ *wire.Output) error {
		id := in.ReadInt64()
		g.closed = append(g.closed, id)
		if _, ok := g.cursors[id]; !ok {
			return &statusError{ResourceDoesNotExists, fmt.Sprintf("resource %d does not exist", id)}
		}
		delete(g.cursors, id)
		return nil
	}))

	cluster.Handle(opCacheGetNames, g.serve(func(_ *wire.Input, out *wire.Output) error {
		out.WriteInt32(int32(len(g.caches)))
		for _, c := range g.caches {
			writeObjectString(out, c.config.Name)
		}
		return nil
	}))
	cluster.Handle(opCacheCreateWithName, g.serve(func(in *wire.Input, _ *wire.Output) error {
		return g.create(CacheConfiguration{Name: readObjectString(in)}, true)
	}))
	cluster.Handle(opCacheGetOrCreateWithName, g.serve(func(in *wire.Input, _ *wire.Output) error {
		return g.create(CacheConfiguration{Name: readObjectString(in)}, false)
	}))
	cluster.Handle(opCacheCreateWithConfig, g.serve(func(in *wire.Input, _ *wire.Output) error {
		cfg, err := readCacheConfigurationRequest(context.Background(), g.codec, g.pCtx, in)
		if err != nil {
			return err
		}
		return g.create(cfg, true)
	}))
	cluster.Handle(opCacheGetOrCreateWithConfig, g.serve(func(in *wire.Input, _ *wire.Output) error {
		cfg, err := readCacheConfigurationRequest(context.Background(), g.codec, g.pCtx, in)
		if err != nil {
			return err
		}
		return g.create(cfg, false)
	}))
	cluster.Handle(opCacheDestroy, g.serve(func(in *wire.Input, _ *wire.Output) error {
		id := in.ReadInt32()
		if _, ok := g.caches[id]; !ok {
			return &statusError{CacheDoesNotExists, fmt.Sprintf("cache %d does not exist", id)}
		}
		delete(g.caches, id)
		return nil
	}))
	cluster.Handle(opCacheGetConfig, g.cacheOp(opCacheGetConfig, func(c *memoryCache, _ *wire.Input, out *wire.Output) error {
		return writeCacheConfigurationReply(context.Background(), g.codec, g.pCtx, out, c.config)
	}))

	cluster.Handle(opCacheGet, g.cacheOp(opCacheGet, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		g.writeValue(out, c, g.object(in))
		return nil
	}))
	cluster.Handle(opCachePut, g.cacheOp(opCachePut, func(c *memoryCache, in *wire.Input, _ *wire.Output) error {
		c.put(g.object(in), g.object(in))
		return nil
	}))
	cluster.Handle(opCachePutIfAbsent, g.cacheOp(opCachePutIfAbsent, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, value := g.object(in), g.object(in)
		_, exists := c.entries[string(key)]
		if !exists {
			c.put(key, value)
		}
		out.WriteBool(!exists)
		return nil
	}))
	cluster.Handle(opCacheGetAll, g.cacheOp(opCacheGetAll, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		keys := g.objects(in)
		cnt := out.Reserve(wire.IntBytes)
		found := 0
		for _, key := range keys {
			if entry, ok := c.entries[string(key)]; ok {
				out.WriteBytes(entry.key)
				out.WriteBytes(entry.value)
				found++
			}
		}
		out.PutInt32At(cnt, int32(found))
		return nil
	}))
	cluster.Handle(opCachePutAll, g.cacheOp(opCachePutAll, func(c *memoryCache, in *wire.Input, _ *wire.Output) error {
		n := int(in.ReadInt32())
		for i := 0; i < n; i++ {
			c.put(g.object(in), g.object(in))
		}
		return nil
	}))
	cluster.Handle(opCacheGetAndPut, g.cacheOp(opCacheGetAndPut, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, value := g.object(in), g.object(in)
		g.writeValue(out, c, key)
		c.put(key, value)
		return nil
	}))
	cluster.Handle(opCacheGetAndReplace, g.cacheOp(opCacheGetAndReplace, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, value := g.object(in), g.object(in)
		g.writeValue(out, c, key)
		if _, ok := c.entries[string(key)]; ok {
			c.put(key, value)
		}
		return nil
	}))
	cluster.Handle(opCacheGetAndRemove, g.cacheOp(opCacheGetAndRemove, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key := g.object(in)
		g.writeValue(out, c, key)
		c.remove(key)
		return nil
	}))
	cluster.Handle(opCacheGetAndPutIfAbsent, g.cacheOp(opCacheGetAndPutIfAbsent, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, value := g.object(in), g.object(in)
		g.writeValue(out, c, key)
		if _, ok := c.entries[string(key)]; !ok {
			c.put(key, value)
		}
		return nil
	}))
	cluster.Handle(opCacheReplace, g.cacheOp(opCacheReplace, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, value := g.object(in), g.object(in)
		_, exists := c.entries[string(key)]
		if exists {
			c.put(key, value)
		}
		out.WriteBool(exists)
		return nil
	}))
	cluster.Handle(opCacheReplaceIfEquals, g.cacheOp(opCacheReplaceIfEquals, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, expected, value := g.object(in), g.object(in), g.object(in)
		entry, exists := c.entries[string(key)]
		ok := exists && string(entry.value) == string(expected)
		if ok {
			c.put(key, value)
		}
		out.WriteBool(ok)
		return nil
	}))
	cluster.Handle(opCacheContainsKey, g.cacheOp(opCacheContainsKey, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		_, ok := c.entries[string(g.object(in))]
		out.WriteBool(ok)
		return nil
	}))
	cluster.Handle(opCacheContainsKeys, g.cacheOp(opCacheContainsKeys, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		all := true
		for _, key := range g.objects(in) {
			if _, ok := c.entries[string(key)]; !ok {
				all = false
			}
		}
		out.WriteBool(all)
		return nil
	}))
	cluster.Handle(opCacheClear, g.cacheOp(opCacheClear, func(c *memoryCache, _ *wire.Input, _ *wire.Output) error {
		c.order, c.entries = nil, make(map[string]memoryEntry)
		return nil
	}))
	cluster.Handle(opCacheRemoveAll, g.cacheOp(opCacheRemoveAll, func(c *memoryCache, _ *wire.Input, _ *wire.Output) error {
		c.order, c.entries = nil, make(map[string]memoryEntry)
		return nil
	}))
	cluster.Handle(opCacheClearKey, g.cacheOp(opCacheClearKey, func(c *memoryCache, in *wire.Input, _ *wire.Output) error {
		c.remove(g.object(in))
		return nil
	}))
	cluster.Handle(opCacheClearKeys, g.cacheOp(opCacheClearKeys, func(c *memoryCache, in *wire.Input, _ *wire.Output) error {
		for _, key := range g.objects(in) {
			c.remove(key)
		}
		return nil
	}))
	cluster.Handle(opCacheRemoveKey, g.cacheOp(opCacheRemoveKey, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		out.WriteBool(c.remove(g.object(in)))
		return nil
	}))
	cluster.Handle(opCacheRemoveIfEquals, g.cacheOp(opCacheRemoveIfEquals, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		key, expected := g.object(in), g.object(in)
		entry, exists := c.entries[string(key)]
		ok := exists && string(entry.value) == string(expected)
		if ok {
			c.remove(key)
		}
		out.WriteBool(ok)
		return nil
	}))
	cluster.Handle(opCacheRemoveKeys, g.cacheOp(opCacheRemoveKeys, func(c *memoryCache, in *wire.Input, _ *wire.Output) error {
		for _, key := range g.objects(in) {
			c.remove(key)
		}
		return nil
	}))
	cluster.Handle(opCacheGetSize, g.cacheOp(opCacheGetSize, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		in.Skip(int(in.ReadInt32()))
		out.WriteInt64(int64(len(c.entries)))
		return nil
	}))

	cluster.Handle(opQueryScan, g.cacheOp(opQueryScan, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		if code := in.ReadInt8(); code != NullType {
			return fmt.Errorf("unexpected filter type %d", code)
		}
		pageSize := int(in.ReadInt32())
		in.ReadInt32() // partition
		in.ReadBool()  // local
		g.openCursor(out, c.rows(), pageSize, nil)
		return nil
	}))
	cluster.Handle(opQuerySql, g.cacheOp(opQuerySql, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		typeName := readObjectString(in)
		sql := readObjectString(in)
		g.lastSql = append(g.lastSql, typeName+": "+sql)
		g.objectValues(in)
		in.ReadBool()
		in.ReadBool()
		in.ReadBool()
		pageSize := int(in.ReadInt32())
		in.ReadInt64()
		g.openCursor(out, c.rows(), pageSize, nil)
		return nil
	}))
	cluster.Handle(opQuerySqlFields, g.cacheOp(opQuerySqlFields, func(c *memoryCache, in *wire.Input, out *wire.Output) error {
		req := &sqlFieldsRequest{
			schema:   readObjectString(in),
			pageSize: in.ReadInt32(),
			maxRows:  in.ReadInt32(),
			sql:      readObjectString(in),
			args:     g.objectValues(in),
		}
		req.statementType = in.ReadInt8()
		for i := range req.flags {
			req.flags[i] = in.ReadBool()
		}
		req.timeout = in.ReadInt64()
		req.includeFieldNames = in.ReadBool()
		g.fieldsQuery = req
		rows := c.rows()
		if req.maxRows > 0 && int(req.maxRows) < len(rows) {
			rows = rows[:req.maxRows]
		}
		g.openCursor(out, rows, int(req.pageSize), func(out *wire.Output) {
			out.WriteInt32(2)
			if req.includeFieldNames {
				writeObjectString(out, "_KEY")
				writeObjectString(out, "_VAL")
			}
		})
		return nil
	}))
	for _, op := range []int16{opQueryScanPage, opQuerySqlPage, opQuerySqlFieldsPage} {
		cluster.Handle(op, g.serve(func(in *wire.Input, out *wire.Output) error {
			id := in.ReadInt64()
			cursor, ok := g.cursors[id]
			if !ok {
				return &statusError{ResourceDoesNotExists, fmt.Sprintf("cursor %d does not exist", id)}
			}
			if !g.writePage(out, cursor) {
				delete(g.cursors, id)
			}
			return nil
		}))
	}
}

// serve adapts fn to a node handler. fn runs under the grid lock, decoding panics become errors.
func (g *memoryGrid) serve(fn func(in *wire.Input, out *wire.Output) error) testing2.Handler {
	return func(req *testing2.Request) testing2.Reply {
		out := wire.NewOutput(64)
		err := func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("malformed request: %v", rec)
				}
			}()
			g.mu.Lock()
			defer g.mu.Unlock()
			return fn(req.Payload, out)
		}()
		if err != nil {
			status := int32(Failed)
			var se *statusError
			if errors.As(err, &se) {
				status = int32(se.status)
			}
			return testing2.Reply{Status: status, Message: err.Error()}
		}
		return testing2.Reply{Body: out.Data()}
	}
}

// cacheOp reads the cache header before calling fn.
func (g *memoryGrid) cacheOp(opCode int16, fn func(c *memoryCache, in *wire.Input, out *wire.Output) error) testing2.Handler {
	return g.serve(func(in *wire.Input, out *wire.Output) error {
		id := in.ReadInt32()
		hdr := cacheHeader{opCode: opCode, flags: in.ReadUInt8()}
		if hdr.flags&expiryPolicyMask != 0 {
			hdr.expiry = &ExpiryPolicy{
				Creation: millisToDuration(in.ReadInt64()),
				Update:   millisToDuration(in.ReadInt64()),
				Access:   millisToDuration(in.ReadInt64()),
			}
		}
		g.headers = append(g.headers, hdr)
		c, ok := g.caches[id]
		if !ok {
			return &statusError{CacheDoesNotExists, fmt.Sprintf("cache %d does not exist", id)}
		}
		return fn(c, in, out)
	})
}

func (g *memoryGrid) forwardMeta(opCode int16) testing2.Handler {
	return func(req *testing2.Request) testing2.Reply {
		payload := req.Payload.Buffer()[req.Payload.Position():]
		var body []byte
		err := g.meta.send(context.Background(), opCode, func(output *wire.Output) error {
			output.WriteBytes(payload)
			return nil
		}, func(input *wire.Input) error {
			body = append([]byte(nil), input.Buffer()[input.Position():]...)
			return nil
		})
		if err != nil {
			return testing2.Reply{Status: int32(Failed), Message: err.Error()}
		}
		return testing2.Reply{Body: body}
	}
}

func (g *memoryGrid) create(cfg CacheConfiguration, failIfExists bool) error {
	id := cacheId(cfg.Name)
	if _, ok := g.caches[id]; ok {
		if failIfExists {
			return &statusError{CacheExists, fmt.Sprintf("cache %s already exists", cfg.Name)}
		}
		return nil
	}
	g.caches[id] = &memoryCache{config: cfg, entries: make(map[string]memoryEntry)}
	return nil
}

// object returns the serialized form of the next value of in.
func (g *memoryGrid) object(in *wire.Input) []byte {
	start := in.Position()
	if _, err := g.codec.unmarshal(context.Background(), in); err != nil {
		panic(err)
	}
	return append([]byte(nil), in.Buffer()[start:in.Position()]...)
}

func (g *memoryGrid) objects(in *wire.Input) [][]byte {
	ret := make([][]byte, in.ReadInt32())
	for i := range ret {
		ret[i] = g.object(in)
	}
	return ret
}

func (g *memoryGrid) objectValues(in *wire.Input) []interface{} {
	ret := make([]interface{}, in.ReadInt32())
	for i := range ret {
		val, err := g.codec.unmarshal(context.Background(), in)
		if err != nil {
			panic(err)
		}
		ret[i] = val
	}
	return ret
}

func (g *memoryGrid) writeValue(out *wire.Output, c *memoryCache, key []byte) {
	if entry, ok := c.entries[string(key)]; ok {
		out.WriteBytes(entry.value)
	} else {
		out.WriteInt8(NullType)
	}
}

func (g *memoryGrid) openCursor(out *wire.Output, rows [][]byte, pageSize int, header func(out *wire.Output)) {
	g.nextCursor++
	id := g.nextCursor
	cursor := &memoryCursor{rows: rows, pageSize: pageSize}
	out.WriteInt64(id)
	if header != nil {
		header(out)
	}
	if g.writePage(out, cursor) {
		g.cursors[id] = cursor
	}
}

// writePage writes the next page of cursor and reports whether more pages remain.
func (g *memoryGrid) writePage(out *wire.Output, cursor *memoryCursor) bool {
	n := min(cursor.pageSize, len(cursor.rows))
	out.WriteInt32(int32(n))
	for _, row := range cursor.rows[:n] {
		out.WriteBytes(row)
	}
	cursor.rows = cursor.rows[n:]
	more := len(cursor.rows) > 0
	out.WriteBool(more)
	return more
}

func (g *memoryGrid) lastHeader() cacheHeader {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.headers[len(g.headers)-1]
}

func (g *memoryGrid) openCursors() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cursors)
}

func (g *memoryGrid) closedCursors() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.closed...)
}

func (g *memoryGrid) lastFieldsQuery() *sqlFieldsRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fieldsQuery
}

func cacheId(name string) int32 {
	return internal.HashCode(name)
}

// readCacheConfigurationRequest decodes the property list a client sends on cache creation.
func readCacheConfigurationRequest(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, in *wire.Input) (CacheConfiguration, error) {
	var cfg CacheConfiguration
	size := int(in.ReadInt32())
	if size != in.Remaining() {
		return cfg, fmt.Errorf("configuration length %d does not match payload %d", size, in.Remaining())
	}
	n := int(in.ReadInt16())
	for i := 0; i < n; i++ {
		switch code := in.ReadInt16(); code {
		case cacheNameProp:
			cfg.Name = readObjectString(in)
		case cacheModeProp:
			cfg.CacheMode = CacheMode(in.ReadInt32())
		case cacheAtomicityModeProp:
			cfg.AtomicityMode = CacheAtomicityMode(in.ReadInt32())
		case backupsProp:
			cfg.Backups = int(in.ReadInt32())
		case writeSyncModeProp:
			cfg.WriteSynchronizationMode = CacheWriteSynchronizationMode(in.ReadInt32())
		case copyOnReadProp:
			cfg.CopyOnRead = in.ReadBool()
		case readFromBackupProp:
			cfg.ReadFromBackup = in.ReadBool()
		case dataRegionNameProp:
			cfg.DataRegionName = readObjectString(in)
		case onHeapCacheEnabledProp:
			cfg.OnHeapCacheEnabled = in.ReadBool()
		case queryEntitiesProp:
			cfg.QueryEntities = make([]QueryEntity, in.ReadInt32())
			for j := range cfg.QueryEntities {
				entity, err := unmarshalQueryEntity(ctx, codec, pCtx, in)
				if err != nil {
					return cfg, err
				}
				cfg.QueryEntities[j] = entity
			}
		case queryParallelismProp:
			cfg.QueryParallelism = int(in.ReadInt32())
		case queryDetailsMetricSizeProp:
			cfg.QueryDetailsMetricsSize = int(in.ReadInt32())
		case sqlSchemaProp:
			cfg.SqlSchema = readObjectString(in)
		case sqlIndexMaxInlineSizeProp:
			cfg.SqlIndexMaxInlineSize = int(in.ReadInt32())
		case sqlEscapeAllProp:
			cfg.SqlEscapeAll = in.ReadBool()
		case maxQueryIteratorsProp:
			cfg.MaxQueryIteratorsCount = int(in.ReadInt32())
		case rebalanceModeProp:
			cfg.RebalanceMode = CacheRebalanceMode(in.ReadInt32())
		case rebalanceOrderProp:
			cfg.RebalanceOrder = int(in.ReadInt32())
		case groupNameProp:
			cfg.GroupName = readObjectString(in)
		case cacheKeyConfigProp:
			cfg.KeyConfiguration = make([]CacheKeyConfig, in.ReadInt32())
			for j := range cfg.KeyConfiguration {
				cfg.KeyConfiguration[j] = CacheKeyConfig{TypeName: readObjectString(in), AffinityKeyFieldName: readObjectString(in)}
			}
		case maxAsyncOpsProp:
			cfg.MaxConcurrentAsyncOperations = int(in.ReadInt32())
		case partitionLossPolicyProp:
			cfg.PartitionLossPolicy = PartitionLossPolicy(in.ReadInt32())
		case eagerTtlProp:
			cfg.EagerTtl = in.ReadBool()
		case statsEnabledProp:
			cfg.StatsEnabled = in.ReadBool()
		case expirePolicyProp:
			if in.ReadBool() {
				cfg.ExpiryPolicy = &ExpiryPolicy{
					Creation: millisToDuration(in.ReadInt64()),
					Update:   millisToDuration(in.ReadInt64()),
					Access:   millisToDuration(in.ReadInt64()),
				}
			}
		default:
			return cfg, fmt.Errorf("unknown cache property %d", code)
		}
	}
	if in.Remaining() != 0 {
		return cfg, fmt.Errorf("%d bytes left after cache configuration", in.Remaining())
	}
	return cfg, nil
}

// writeCacheConfigurationReply writes cfg in the fixed layout a node describes a cache with.
func writeCacheConfigurationReply(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, out *wire.Output, cfg CacheConfiguration) error {
	lenPos := out.Reserve(wire.IntBytes)
	out.WriteInt32(int32(cfg.AtomicityMode))
	out.WriteInt32(int32(cfg.Backups))
	out.WriteInt32(int32(cfg.CacheMode))
	out.WriteBool(cfg.CopyOnRead)
	writeObjectString(out, cfg.DataRegionName)
	out.WriteBool(cfg.EagerTtl)
	out.WriteBool(cfg.StatsEnabled)
	writeObjectString(out, cfg.GroupName)
	out.WriteInt64(0) // default lock timeout
	out.WriteInt32(int32(cfg.MaxConcurrentAsyncOperations))
	out.WriteInt32(int32(cfg.MaxQueryIteratorsCount))
	writeObjectString(out, cfg.Name)
	out.WriteBool(cfg.OnHeapCacheEnabled)
	out.WriteInt32(int32(cfg.PartitionLossPolicy))
	out.WriteInt32(int32(cfg.QueryDetailsMetricsSize))
	out.WriteInt32(int32(cfg.QueryParallelism))
	out.WriteBool(cfg.ReadFromBackup)
	out.WriteInt32(512 * 1024) // rebalance batch size
	out.WriteInt64(2)          // rebalance batches prefetch count
	out.WriteInt64(0)          // rebalance delay
	out.WriteInt32(int32(cfg.RebalanceMode))
	out.WriteInt32(int32(cfg.RebalanceOrder))
	out.WriteInt64(0)     // rebalance throttle
	out.WriteInt64(10000) // rebalance timeout
	out.WriteBool(cfg.SqlEscapeAll)
	out.WriteInt32(int32(cfg.SqlIndexMaxInlineSize))
	writeObjectString(out, cfg.SqlSchema)
	out.WriteInt32(int32(cfg.WriteSynchronizationMode))
	out.WriteInt32(int32(len(cfg.KeyConfiguration)))
	for _, keyCfg := range cfg.KeyConfiguration {
		writeObjectString(out, keyCfg.TypeName)
		writeObjectString(out, keyCfg.AffinityKeyFieldName)
	}
	out.WriteInt32(int32(len(cfg.QueryEntities)))
	for i := range cfg.QueryEntities {
		if err := marshalQueryEntity(ctx, codec, pCtx, out, &cfg.QueryEntities[i]); err != nil {
			return err
		}
	}
	if pCtx.SupportsExpiryPolicy() {
		writeExpiryPolicy(out, cfg.ExpiryPolicy)
	}
	out.PutInt32At(lenPos, int32(out.Position()-lenPos-wire.IntBytes))
	return nil
}

// startGrid starts nodes serving one memory grid and stops them when the test ends.
func startGrid(t *testing.T, nodes int, opts ...testing2.NodeOption) (*testing2.FakeCluster, *memoryGrid, []*testing2.FakeNode) {
	cluster := testing2.NewFakeCluster()
	grid := newMemoryGrid()
	grid.install(cluster)
	started := make([]*testing2.FakeNode, 0, nodes)
	for i := 0; i < nodes; i++ {
		node, err := cluster.StartNode(opts...)
		require.NoError(t, err)
		started = append(started, node)
	}
	t.Cleanup(cluster.Shutdown)
	return cluster, grid, started
}

func nodeAddresses(nodes ...*testing2.FakeNode) []string {
	ret := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ret = append(ret, node.Address())
	}
	return ret
}

// startClient connects a client to nodes and closes it when the test ends.
func startClient(t *testing.T, nodes []*testing2.FakeNode, opts ...ClientConfigurationOption) *Client {
	opts = append([]ClientConfigurationOption{WithAddresses(nodeAddresses(nodes...)...)}, opts...)
	cli, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cli.Close(context.Background())
	})
	return cli
}
