package ignite

import (
	"context"
	"sort"
	"time"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// CacheAtomicityMode controls whether cache should maintain fully transactional semantics or more light-weight atomic behavior.
type CacheAtomicityMode int32

const (
	TransactionalAtomicityMode CacheAtomicityMode = 0 // Enables fully ACID-compliant transactional cache behavior.
	AtomicAtomicityMode        CacheAtomicityMode = 1 // Enables atomic-only cache behaviour.
)

// CacheMode specifies caching modes.
type CacheMode int32

const (
	ReplicatedCacheMode  CacheMode = 1 // All the keys are distributed to all participating nodes.
	PartitionedCacheMode CacheMode = 2 // Keys are split into partitions owned by primary and backup nodes.
)

// PartitionLossPolicy defines how a cache behaves when one or more partitions are lost because of node failures.
type PartitionLossPolicy int32

const (
	ReadOnlySafeLossPolicy  PartitionLossPolicy = 0 // Writes fail, reads from lost partitions fail.
	ReadOnlyAllLossPolicy   PartitionLossPolicy = 1 // Writes fail, reads proceed as if nothing was lost.
	ReadWriteSafeLossPolicy PartitionLossPolicy = 2 // Operations on lost partitions fail.
	ReadWriteAllLossPolicy  PartitionLossPolicy = 3 // Operations proceed as if nothing was lost.
	IgnoreLossPolicy        PartitionLossPolicy = 4 // Partition loss is ignored.
)

// CacheWriteSynchronizationMode indicates how the cluster waits for write replies from backups.
type CacheWriteSynchronizationMode int32

const (
	FullSyncSynchronizationMode    CacheWriteSynchronizationMode = 0 // Wait for all nodes.
	FullAsyncSynchronizationMode   CacheWriteSynchronizationMode = 1 // Do not wait for any node.
	PrimarySyncSynchronizationMode CacheWriteSynchronizationMode = 2 // Wait for the primary node only.
)

// CacheRebalanceMode specifies how distributed caches rebalance data from other nodes.
type CacheRebalanceMode int32

const (
	SyncRebalanceMode  CacheRebalanceMode = 0 // The cache starts after all data is loaded.
	AsyncRebalanceMode CacheRebalanceMode = 1 // The cache starts immediately and loads data in the background.
	NoneRebalanceMode  CacheRebalanceMode = 2 // No rebalancing.
)

// CacheKeyConfig names the affinity key field of a key type. Keys of that type are collocated by the
// value of the field and the client routes them by it.
type CacheKeyConfig struct {
	TypeName             string
	AffinityKeyFieldName string
}

// IndexType defines type of the query index.
type IndexType int8

const (
	Sorted     IndexType = 0
	FullText   IndexType = 1
	GeoSpatial IndexType = 2
)

// IndexField is a field participating in an index.
type IndexField struct {
	Name string
	Asc  bool
}

// QueryIndex defines query index metadata. InlineSize -1 means that size is determined automatically.
type QueryIndex struct {
	Name       string
	Type       IndexType
	InlineSize int
	Fields     []IndexField
}

// QueryField is a column of a query entity. Precision and Scale -1 mean not set.
type QueryField struct {
	Name         string
	TypeName     string
	IsKey        bool
	NotNull      bool
	DefaultValue interface{}
	Precision    int
	Scale        int
}

// NewQueryField creates a field without precision and scale.
func NewQueryField(name string, typeName string) QueryField {
	return QueryField{Name: name, TypeName: typeName, Precision: -1, Scale: -1}
}

// QueryEntity describes how cache entries of a key and value type are exposed to SQL.
type QueryEntity struct {
	KeyType        string
	ValueType      string
	TableName      string
	KeyFieldName   string
	ValueFieldName string
	Fields         []QueryField
	Aliases        map[string]string
	Indexes        []QueryIndex
}

type propertyCode = int16

const (
	cacheNameProp              propertyCode = 0
	cacheModeProp              propertyCode = 1
	cacheAtomicityModeProp     propertyCode = 2
	backupsProp                propertyCode = 3
	writeSyncModeProp          propertyCode = 4
	copyOnReadProp             propertyCode = 5
	readFromBackupProp         propertyCode = 6
	dataRegionNameProp         propertyCode = 100
	onHeapCacheEnabledProp     propertyCode = 101
	queryEntitiesProp          propertyCode = 200
	queryParallelismProp       propertyCode = 201
	queryDetailsMetricSizeProp propertyCode = 202
	sqlSchemaProp              propertyCode = 203
	sqlIndexMaxInlineSizeProp  propertyCode = 204
	sqlEscapeAllProp           propertyCode = 205
	maxQueryIteratorsProp      propertyCode = 206
	rebalanceModeProp          propertyCode = 300
	rebalanceOrderProp         propertyCode = 305
	groupNameProp              propertyCode = 400
	cacheKeyConfigProp         propertyCode = 401
	maxAsyncOpsProp            propertyCode = 403
	partitionLossPolicyProp    propertyCode = 404
	eagerTtlProp               propertyCode = 405
	statsEnabledProp           propertyCode = 406
	expirePolicyProp           propertyCode = 407
)

// CacheConfiguration holds the parameters of a cache. Only properties with a non-zero value or set
// through an option are sent on creation, the server applies its defaults to the rest.
type CacheConfiguration struct {
	Name                         string
	CacheMode                    CacheMode
	AtomicityMode                CacheAtomicityMode
	Backups                      int
	WriteSynchronizationMode     CacheWriteSynchronizationMode
	CopyOnRead                   bool
	ReadFromBackup               bool
	DataRegionName               string
	OnHeapCacheEnabled           bool
	QueryEntities                []QueryEntity
	QueryParallelism             int
	QueryDetailsMetricsSize      int
	SqlSchema                    string
	SqlIndexMaxInlineSize        int
	SqlEscapeAll                 bool
	MaxQueryIteratorsCount       int
	RebalanceMode                CacheRebalanceMode
	RebalanceOrder               int
	GroupName                    string
	KeyConfiguration             []CacheKeyConfig
	MaxConcurrentAsyncOperations int
	PartitionLossPolicy          PartitionLossPolicy
	EagerTtl                     bool
	StatsEnabled                 bool
	ExpiryPolicy                 *ExpiryPolicy

	explicit map[propertyCode]struct{}
}

type CacheConfigurationOption func(*CacheConfiguration)

// NewCacheConfiguration creates a configuration of the cache name.
func NewCacheConfiguration(name string, opts ...CacheConfigurationOption) CacheConfiguration {
	ret := CacheConfiguration{Name: name}
	for _, opt := range opts {
		opt(&ret)
	}
	return ret
}

func (config *CacheConfiguration) mark(code propertyCode) {
	if config.explicit == nil {
		config.explicit = make(map[propertyCode]struct{})
	}
	config.explicit[code] = struct{}{}
}

func (config *CacheConfiguration) isSet(code propertyCode, nonZero bool) bool {
	if nonZero {
		return true
	}
	_, ok := config.explicit[code]
	return ok
}

// marshal writes the configuration as a length-prefixed list of (property code, value) pairs.
func (config *CacheConfiguration) marshal(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, w *wire.Output) error {
	if config.ExpiryPolicy != nil && !pCtx.SupportsExpiryPolicy() {
		return newIllegalArgumentError("expiry policies are not supported on protocol version %s", pCtx.Version())
	}
	lenPos := w.Reserve(wire.IntBytes)
	countPos := w.Reserve(wire.ShortBytes)
	count := 0
	var err error
	put := func(code propertyCode, nonZero bool, write func() error) {
		if err != nil || !config.isSet(code, nonZero) {
			return
		}
		w.WriteInt16(code)
		err = write()
		count++
	}
	putInt := func(code propertyCode, val int32) {
		put(code, val != 0, func() error {
			w.WriteInt32(val)
			return nil
		})
	}
	putBool := func(code propertyCode, val bool) {
		put(code, val, func() error {
			w.WriteBool(val)
			return nil
		})
	}
	putString := func(code propertyCode, val string) {
		put(code, val != "", func() error {
			writeObjectString(w, val)
			return nil
		})
	}

	putString(cacheNameProp, config.Name)
	putInt(cacheModeProp, int32(config.CacheMode))
	putInt(cacheAtomicityModeProp, int32(config.AtomicityMode))
	putInt(backupsProp, int32(config.Backups))
	putInt(writeSyncModeProp, int32(config.WriteSynchronizationMode))
	putBool(copyOnReadProp, config.CopyOnRead)
	putBool(readFromBackupProp, config.ReadFromBackup)
	putString(dataRegionNameProp, config.DataRegionName)
	putBool(onHeapCacheEnabledProp, config.OnHeapCacheEnabled)
	put(queryEntitiesProp, len(config.QueryEntities) > 0, func() error {
		w.WriteInt32(int32(len(config.QueryEntities)))
		for i := range config.QueryEntities {
			if err := marshalQueryEntity(ctx, codec, pCtx, w, &config.QueryEntities[i]); err != nil {
				return err
			}
		}
		return nil
	})
	putInt(queryParallelismProp, int32(config.QueryParallelism))
	putInt(queryDetailsMetricSizeProp, int32(config.QueryDetailsMetricsSize))
	putString(sqlSchemaProp, config.SqlSchema)
	putInt(sqlIndexMaxInlineSizeProp, int32(config.SqlIndexMaxInlineSize))
	putBool(sqlEscapeAllProp, config.SqlEscapeAll)
	putInt(maxQueryIteratorsProp, int32(config.MaxQueryIteratorsCount))
	putInt(rebalanceModeProp, int32(config.RebalanceMode))
	putInt(rebalanceOrderProp, int32(config.RebalanceOrder))
	putString(groupNameProp, config.GroupName)
	put(cacheKeyConfigProp, len(config.KeyConfiguration) > 0, func() error {
		w.WriteInt32(int32(len(config.KeyConfiguration)))
		for _, keyCfg := range config.KeyConfiguration {
			writeObjectString(w, keyCfg.TypeName)
			writeObjectString(w, keyCfg.AffinityKeyFieldName)
		}
		return nil
	})
	putInt(maxAsyncOpsProp, int32(config.MaxConcurrentAsyncOperations))
	putInt(partitionLossPolicyProp, int32(config.PartitionLossPolicy))
	putBool(eagerTtlProp, config.EagerTtl)
	putBool(statsEnabledProp, config.StatsEnabled)
	put(expirePolicyProp, config.ExpiryPolicy != nil, func() error {
		writeExpiryPolicy(w, config.ExpiryPolicy)
		return nil
	})
	if err != nil {
		return err
	}
	w.PutInt32At(lenPos, int32(w.Position()-lenPos-wire.IntBytes))
	w.PutUInt16At(countPos, uint16(count))
	return nil
}

func writeExpiryPolicy(w *wire.Output, policy *ExpiryPolicy) {
	if policy == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteInt64(durationToMillis(policy.Creation))
	w.WriteInt64(durationToMillis(policy.Update))
	w.WriteInt64(durationToMillis(policy.Access))
}

// unmarshalCacheConfiguration reads the fixed layout the server uses to describe a cache.
func unmarshalCacheConfiguration(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, r *wire.Input) (CacheConfiguration, error) {
	var config CacheConfiguration
	r.ReadInt32()
	config.AtomicityMode = CacheAtomicityMode(r.ReadInt32())
	config.Backups = int(r.ReadInt32())
	config.CacheMode = CacheMode(r.ReadInt32())
	config.CopyOnRead = r.ReadBool()
	config.DataRegionName = readObjectString(r)
	config.EagerTtl = r.ReadBool()
	config.StatsEnabled = r.ReadBool()
	config.GroupName = readObjectString(r)
	r.Skip(wire.LongBytes) // default lock timeout
	config.MaxConcurrentAsyncOperations = int(r.ReadInt32())
	config.MaxQueryIteratorsCount = int(r.ReadInt32())
	config.Name = readObjectString(r)
	config.OnHeapCacheEnabled = r.ReadBool()
	config.PartitionLossPolicy = PartitionLossPolicy(r.ReadInt32())
	config.QueryDetailsMetricsSize = int(r.ReadInt32())
	config.QueryParallelism = int(r.ReadInt32())
	config.ReadFromBackup = r.ReadBool()
	r.Skip(wire.IntBytes + 2*wire.LongBytes) // rebalance batch size, batches prefetch count, delay
	config.RebalanceMode = CacheRebalanceMode(r.ReadInt32())
	config.RebalanceOrder = int(r.ReadInt32())
	r.Skip(2 * wire.LongBytes) // rebalance throttle, timeout
	config.SqlEscapeAll = r.ReadBool()
	config.SqlIndexMaxInlineSize = int(r.ReadInt32())
	config.SqlSchema = readObjectString(r)
	config.WriteSynchronizationMode = CacheWriteSynchronizationMode(r.ReadInt32())
	if n := readLength(r); n > 0 {
		config.KeyConfiguration = make([]CacheKeyConfig, n)
		for i := range config.KeyConfiguration {
			config.KeyConfiguration[i] = CacheKeyConfig{TypeName: readObjectString(r), AffinityKeyFieldName: readObjectString(r)}
		}
	}
	if n := readLength(r); n > 0 {
		config.QueryEntities = make([]QueryEntity, n)
		for i := range config.QueryEntities {
			entity, err := unmarshalQueryEntity(ctx, codec, pCtx, r)
			if err != nil {
				return config, err
			}
			config.QueryEntities[i] = entity
		}
	}
	if pCtx.SupportsExpiryPolicy() && r.ReadBool() {
		config.ExpiryPolicy = &ExpiryPolicy{
			Creation: millisToDuration(r.ReadInt64()),
			Update:   millisToDuration(r.ReadInt64()),
			Access:   millisToDuration(r.ReadInt64()),
		}
	}
	return config, nil
}

func marshalQueryEntity(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, w *wire.Output, entity *QueryEntity) error {
	writeObjectString(w, entity.KeyType)
	writeObjectString(w, entity.ValueType)
	writeObjectString(w, entity.TableName)
	writeObjectString(w, entity.KeyFieldName)
	writeObjectString(w, entity.ValueFieldName)
	w.WriteInt32(int32(len(entity.Fields)))
	for i := range entity.Fields {
		field := &entity.Fields[i]
		writeObjectString(w, field.Name)
		writeObjectString(w, field.TypeName)
		w.WriteBool(field.IsKey)
		w.WriteBool(field.NotNull)
		if err := codec.marshal(ctx, w, field.DefaultValue); err != nil {
			return err
		}
		if pCtx.SupportsQueryEntityPrecisionAndScale() {
			w.WriteInt32(int32(field.Precision))
			w.WriteInt32(int32(field.Scale))
		}
	}
	aliases := make([]string, 0, len(entity.Aliases))
	for orig := range entity.Aliases {
		aliases = append(aliases, orig)
	}
	sort.Strings(aliases)
	w.WriteInt32(int32(len(aliases)))
	for _, orig := range aliases {
		writeObjectString(w, orig)
		writeObjectString(w, entity.Aliases[orig])
	}
	w.WriteInt32(int32(len(entity.Indexes)))
	for _, index := range entity.Indexes {
		writeObjectString(w, index.Name)
		w.WriteInt8(int8(index.Type))
		w.WriteInt32(int32(index.InlineSize))
		w.WriteInt32(int32(len(index.Fields)))
		for _, field := range index.Fields {
			writeObjectString(w, field.Name)
			w.WriteBool(field.Asc)
		}
	}
	return nil
}

func unmarshalQueryEntity(ctx context.Context, codec *binaryCodec, pCtx *ProtocolContext, r *wire.Input) (QueryEntity, error) {
	entity := QueryEntity{
		KeyType:        readObjectString(r),
		ValueType:      readObjectString(r),
		TableName:      readObjectString(r),
		KeyFieldName:   readObjectString(r),
		ValueFieldName: readObjectString(r),
	}
	entity.Fields = make([]QueryField, readLength(r))
	for i := range entity.Fields {
		field := NewQueryField(readObjectString(r), readObjectString(r))
		field.IsKey = r.ReadBool()
		field.NotNull = r.ReadBool()
		dflt, err := codec.unmarshal(ctx, r)
		if err != nil {
			return entity, err
		}
		field.DefaultValue = dflt
		if pCtx.SupportsQueryEntityPrecisionAndScale() {
			field.Precision = int(r.ReadInt32())
			field.Scale = int(r.ReadInt32())
		}
		entity.Fields[i] = field
	}
	n := readLength(r)
	entity.Aliases = make(map[string]string, n)
	for i := 0; i < n; i++ {
		orig := readObjectString(r)
		entity.Aliases[orig] = readObjectString(r)
	}
	entity.Indexes = make([]QueryIndex, readLength(r))
	for i := range entity.Indexes {
		index := QueryIndex{Name: readObjectString(r), Type: IndexType(r.ReadInt8()), InlineSize: int(r.ReadInt32())}
		index.Fields = make([]IndexField, readLength(r))
		for j := range index.Fields {
			index.Fields[j] = IndexField{Name: readObjectString(r), Asc: r.ReadBool()}
		}
		entity.Indexes[i] = index
	}
	return entity, nil
}

// WithCacheGroupName returns [CacheConfigurationOption] that sets a cache group name.
func WithCacheGroupName(name string) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.GroupName = name
	}
}

// WithBackupsCount returns [CacheConfigurationOption] that sets a number of cache backups.
func WithBackupsCount(cnt int) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.Backups = cnt
		config.mark(backupsProp)
	}
}

// WithWriteSynchronizationMode returns [CacheConfigurationOption] that sets a write synchronization mode.
func WithWriteSynchronizationMode(mode CacheWriteSynchronizationMode) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.WriteSynchronizationMode = mode
		config.mark(writeSyncModeProp)
	}
}

// WithCopyOnRead returns [CacheConfigurationOption] that enables copying of values on read.
func WithCopyOnRead(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.CopyOnRead = enabled
		config.mark(copyOnReadProp)
	}
}

// WithReadFromBackup returns [CacheConfigurationOption] that allows reads from backup copies.
func WithReadFromBackup(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.ReadFromBackup = enabled
		config.mark(readFromBackupProp)
	}
}

// WithDataRegionName returns [CacheConfigurationOption] that sets a data region name.
func WithDataRegionName(name string) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.DataRegionName = name
	}
}

// WithOnHeapCacheEnabled returns [CacheConfigurationOption] that enables the on-heap cache.
func WithOnHeapCacheEnabled(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.OnHeapCacheEnabled = enabled
		config.mark(onHeapCacheEnabledProp)
	}
}

// WithCacheMode returns [CacheConfigurationOption] that sets a cache mode.
func WithCacheMode(mode CacheMode) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.CacheMode = mode
		config.mark(cacheModeProp)
	}
}

// WithCacheAtomicityMode returns [CacheConfigurationOption] that sets a cache atomicity mode.
func WithCacheAtomicityMode(mode CacheAtomicityMode) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.AtomicityMode = mode
		config.mark(cacheAtomicityModeProp)
	}
}

// WithQueryParallelism returns [CacheConfigurationOption] that sets the number of query threads per node.
func WithQueryParallelism(parallelism int) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.QueryParallelism = parallelism
	}
}

// WithSqlSchema returns [CacheConfigurationOption] that sets the SQL schema of the cache.
func WithSqlSchema(schema string) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.SqlSchema = schema
	}
}

// WithSqlEscapeAll returns [CacheConfigurationOption] that makes SQL identifiers case sensitive.
func WithSqlEscapeAll(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.SqlEscapeAll = enabled
		config.mark(sqlEscapeAllProp)
	}
}

// WithRebalanceMode returns [CacheConfigurationOption] that sets a rebalance mode.
func WithRebalanceMode(mode CacheRebalanceMode) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.RebalanceMode = mode
		config.mark(rebalanceModeProp)
	}
}

// WithPartitionLossPolicy returns [CacheConfigurationOption] that sets a partition loss policy.
func WithPartitionLossPolicy(policy PartitionLossPolicy) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.PartitionLossPolicy = policy
		config.mark(partitionLossPolicyProp)
	}
}

// WithEagerTtl returns [CacheConfigurationOption] that enables eager removal of expired entries.
func WithEagerTtl(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.EagerTtl = enabled
		config.mark(eagerTtlProp)
	}
}

// WithStatsEnabled returns [CacheConfigurationOption] that enables cache statistics.
func WithStatsEnabled(enabled bool) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.StatsEnabled = enabled
		config.mark(statsEnabledProp)
	}
}

// WithExpiryPolicy sets the default expiry policy of the cache, see [DurationUnchanged] and [DurationEternal].
func WithExpiryPolicy(creation time.Duration, access time.Duration, update time.Duration) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.ExpiryPolicy = &ExpiryPolicy{Creation: creation, Access: access, Update: update}
	}
}

// WithCacheKeyConfiguration declares the affinity key field of a key type.
func WithCacheKeyConfiguration(typeName string, affinityKeyField string) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		for i, keyCfg := range config.KeyConfiguration {
			if keyCfg.TypeName == typeName {
				config.KeyConfiguration[i].AffinityKeyFieldName = affinityKeyField
				return
			}
		}
		config.KeyConfiguration = append(config.KeyConfiguration, CacheKeyConfig{typeName, affinityKeyField})
	}
}

// WithQueryEntity adds a query entity to the cache.
func WithQueryEntity(entity QueryEntity) CacheConfigurationOption {
	return func(config *CacheConfiguration) {
		config.QueryEntities = append(config.QueryEntities, entity)
	}
}
