package ignite

import (
	"context"
	"time"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// CachePeekMode define cache peek modes.
type CachePeekMode uint8

const (
	PeekAll     CachePeekMode = iota // Peeks into all available cache storages.
	PeekNear                         // Peek into near cache only.
	PeekPrimary                      // Peek value from primary copy of partitioned cache only (skip near cache).
	PeekBackup                       // Peek value from backup copies of partitioned cache only (skip near cache).
	PeekOnHeap                       // Peeks value from the on-heap storage only.
	PeekOffHeap                      // Peeks value from the off-heap storage only, without loading off-heap value into cache.
)

const (
	DurationUnchanged time.Duration = -2 // Skip setting and leave as is a duration of specific expiry policy.
	DurationEternal   time.Duration = -1 // Set specific expiry policy as eternal.
	DurationZero      time.Duration = 0  // Set zero duration of specific expiry policy
)

const (
	keepBinaryMask   uint8 = 0x01
	expiryPolicyMask uint8 = 0x04
)

const (
	opCacheGet               int16 = 1000
	opCachePut               int16 = 1001
	opCachePutIfAbsent       int16 = 1002
	opCacheGetAll            int16 = 1003
	opCachePutAll            int16 = 1004
	opCacheGetAndPut         int16 = 1005
	opCacheGetAndReplace     int16 = 1006
	opCacheGetAndRemove      int16 = 1007
	opCacheGetAndPutIfAbsent int16 = 1008
	opCacheReplace           int16 = 1009
	opCacheReplaceIfEquals   int16 = 1010
	opCacheContainsKey       int16 = 1011
	opCacheContainsKeys      int16 = 1012
	opCacheClear             int16 = 1013
	opCacheClearKey          int16 = 1014
	opCacheClearKeys         int16 = 1015
	opCacheRemoveKey         int16 = 1016
	opCacheRemoveIfEquals    int16 = 1017
	opCacheRemoveKeys        int16 = 1018
	opCacheRemoveAll         int16 = 1019
	opCacheGetSize           int16 = 1020
)

// ExpiryPolicy determines when entries expire after creation, access and modification. See
// [DurationUnchanged] and [DurationEternal] for the special values.
type ExpiryPolicy struct {
	Creation time.Duration
	Access   time.Duration
	Update   time.Duration
}

// Cache is a handle of a named cache. It is cheap and safe for concurrent use, single-key operations
// go to the node owning the key when partition awareness is on.
type Cache struct {
	cli          *Client
	expiryPolicy *ExpiryPolicy
	name         string
	id           int32
}

// Get gets an entry from the cache by key, nil if there is none.
func (cache *Cache) Get(ctx context.Context, key interface{}) (interface{}, error) {
	var ret interface{}
	err := cache.keyed(ctx, opCacheGet, key, nil, cache.valueReader(ctx, &ret))
	return ret, err
}

// GetAndPut puts a new value to the cache by key, returns old value if exists or nil.
func (cache *Cache) GetAndPut(ctx context.Context, key interface{}, value interface{}) (interface{}, error) {
	var ret interface{}
	err := cache.keyed(ctx, opCacheGetAndPut, key, []interface{}{value}, cache.valueReader(ctx, &ret))
	return ret, err
}

// GetAndReplace replaces the value of an existing key, returns the old value or nil if the key is absent.
func (cache *Cache) GetAndReplace(ctx context.Context, key interface{}, value interface{}) (interface{}, error) {
	var ret interface{}
	err := cache.keyed(ctx, opCacheGetAndReplace, key, []interface{}{value}, cache.valueReader(ctx, &ret))
	return ret, err
}

// Put associates value with key.
func (cache *Cache) Put(ctx context.Context, key interface{}, value interface{}) error {
	return cache.keyed(ctx, opCachePut, key, []interface{}{value}, nil)
}

// PutIfAbsent puts value only if key is absent, returns true if the value was put.
func (cache *Cache) PutIfAbsent(ctx context.Context, key interface{}, value interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCachePutIfAbsent, key, []interface{}{value}, boolReader(&ret))
	return ret, err
}

// GetAndPutIfAbsent puts value only if key is absent, returns the current value otherwise.
func (cache *Cache) GetAndPutIfAbsent(ctx context.Context, key interface{}, value interface{}) (interface{}, error) {
	var ret interface{}
	err := cache.keyed(ctx, opCacheGetAndPutIfAbsent, key, []interface{}{value}, cache.valueReader(ctx, &ret))
	return ret, err
}

// ContainsKey returns true if the cache has an entry for key.
func (cache *Cache) ContainsKey(ctx context.Context, key interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCacheContainsKey, key, nil, boolReader(&ret))
	return ret, err
}

// ContainsKeys returns true if the cache has entries for all keys.
func (cache *Cache) ContainsKeys(ctx context.Context, keys ...interface{}) (bool, error) {
	var ret bool
	err := cache.multiKey(ctx, opCacheContainsKeys, keys, boolReader(&ret))
	return ret, err
}

// GetAll returns the entries of keys that are present in the cache.
func (cache *Cache) GetAll(ctx context.Context, keys ...interface{}) ([]KeyValue, error) {
	if len(keys) == 0 {
		return []KeyValue{}, nil
	}
	var ret []KeyValue
	err := cache.multiKey(ctx, opCacheGetAll, keys, func(input *wire.Input) error {
		n := readLength(input)
		ret = make([]KeyValue, 0, n)
		for i := 0; i < n; i++ {
			key, err := cache.cli.codec.unmarshal(ctx, input)
			if err != nil {
				return err
			}
			value, err := cache.cli.codec.unmarshal(ctx, input)
			if err != nil {
				return err
			}
			ret = append(ret, KeyValue{Key: key, Value: value})
		}
		return nil
	})
	return ret, err
}

// PutAll puts key-value pairs.
func (cache *Cache) PutAll(ctx context.Context, keysAndValues ...KeyValue) error {
	if len(keysAndValues) == 0 {
		return nil
	}
	for _, kv := range keysAndValues {
		if kv.Key == nil || kv.Value == nil {
			return newIllegalArgumentError("nil key or value passed to PutAll")
		}
	}
	if err := cache.cli.checkOpen(); err != nil {
		return err
	}
	return cache.cli.router.send(ctx, opCachePutAll, func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		output.WriteInt32(int32(len(keysAndValues)))
		for _, kv := range keysAndValues {
			if err := cache.cli.codec.marshal(ctx, output, kv.Key); err != nil {
				return err
			}
			if err := cache.cli.codec.marshal(ctx, output, kv.Value); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// ReplaceIfEquals replaces the value of key only if it is currently oldValue.
func (cache *Cache) ReplaceIfEquals(ctx context.Context, key interface{}, oldValue interface{}, newValue interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCacheReplaceIfEquals, key, []interface{}{oldValue, newValue}, boolReader(&ret))
	return ret, err
}

// Replace replaces the value of key only if the key is present.
func (cache *Cache) Replace(ctx context.Context, key interface{}, value interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCacheReplace, key, []interface{}{value}, boolReader(&ret))
	return ret, err
}

// Remove removes the entry of key, returns false if there was none.
func (cache *Cache) Remove(ctx context.Context, key interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCacheRemoveKey, key, nil, boolReader(&ret))
	return ret, err
}

// GetAndRemove removes the entry of key and returns its value.
func (cache *Cache) GetAndRemove(ctx context.Context, key interface{}) (interface{}, error) {
	var ret interface{}
	err := cache.keyed(ctx, opCacheGetAndRemove, key, nil, cache.valueReader(ctx, &ret))
	return ret, err
}

// RemoveIfEquals removes the entry of key only if its value is oldValue.
func (cache *Cache) RemoveIfEquals(ctx context.Context, key interface{}, oldValue interface{}) (bool, error) {
	var ret bool
	err := cache.keyed(ctx, opCacheRemoveIfEquals, key, []interface{}{oldValue}, boolReader(&ret))
	return ret, err
}

// RemoveKeys removes the entries of keys, notifying listeners and writers.
func (cache *Cache) RemoveKeys(ctx context.Context, keys ...interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	return cache.multiKey(ctx, opCacheRemoveKeys, keys, nil)
}

// RemoveAll removes all entries, notifying listeners and writers.
func (cache *Cache) RemoveAll(ctx context.Context) error {
	return cache.whole(ctx, opCacheRemoveAll, nil, nil)
}

// Clear clears the entry of key without notifying listeners or writers.
func (cache *Cache) Clear(ctx context.Context, key interface{}) error {
	return cache.keyed(ctx, opCacheClearKey, key, nil, nil)
}

// ClearKeys clears the entries of keys without notifying listeners or writers.
func (cache *Cache) ClearKeys(ctx context.Context, keys ...interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	return cache.multiKey(ctx, opCacheClearKeys, keys, nil)
}

// ClearAll clears the cache without notifying listeners or writers.
func (cache *Cache) ClearAll(ctx context.Context) error {
	return cache.whole(ctx, opCacheClear, nil, nil)
}

func (cache *Cache) Name() string {
	return cache.name
}

// WithExpiryPolicy returns a handle of the same cache that applies the expiry policy to every
// operation. It does not create a new cache.
func (cache *Cache) WithExpiryPolicy(creation time.Duration, access time.Duration, update time.Duration) *Cache {
	return &Cache{
		cli:          cache.cli,
		expiryPolicy: &ExpiryPolicy{Creation: creation, Access: access, Update: update},
		name:         cache.name,
		id:           cache.id,
	}
}

// Size returns cache size according to specified peek modes, all entries if none is given.
func (cache *Cache) Size(ctx context.Context, peekModes ...CachePeekMode) (uint64, error) {
	var size uint64
	err := cache.whole(ctx, opCacheGetSize, func(output *wire.Output) error {
		output.WriteInt32(int32(len(peekModes)))
		for _, peekMode := range peekModes {
			output.WriteInt8(int8(peekMode))
		}
		return nil
	}, func(input *wire.Input) error {
		size = input.ReadUInt64()
		return nil
	})
	return size, err
}

// Configuration returns the [CacheConfiguration] of this cache.
func (cache *Cache) Configuration(ctx context.Context) (CacheConfiguration, error) {
	var cfg CacheConfiguration
	err := cache.whole(ctx, opCacheGetConfig, nil, func(input *wire.Input) error {
		var err error
		cfg, err = unmarshalCacheConfiguration(ctx, cache.cli.codec, cache.cli.protocolContext(), input)
		return err
	})
	return cfg, err
}

// keyed sends a request made of the cache header, key and args to the primary node of key.
func (cache *Cache) keyed(ctx context.Context, opCode int16, key interface{}, args []interface{},
	reader func(input *wire.Input) error) error {
	if key == nil {
		return newIllegalArgumentError("nil key")
	}
	for _, arg := range args {
		if arg == nil {
			return newIllegalArgumentError("nil value")
		}
	}
	if err := cache.cli.checkOpen(); err != nil {
		return err
	}
	return cache.cli.router.sendKeyed(ctx, cache.id, key, opCode, func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		if err := cache.cli.codec.marshal(ctx, output, key); err != nil {
			return err
		}
		for _, arg := range args {
			if err := cache.cli.codec.marshal(ctx, output, arg); err != nil {
				return err
			}
		}
		return nil
	}, reader)
}

// multiKey sends the cache header followed by a counted list of keys.
func (cache *Cache) multiKey(ctx context.Context, opCode int16, keys []interface{}, reader func(input *wire.Input) error) error {
	for _, key := range keys {
		if key == nil {
			return newIllegalArgumentError("nil key")
		}
	}
	return cache.whole(ctx, opCode, func(output *wire.Output) error {
		output.WriteInt32(int32(len(keys)))
		for _, key := range keys {
			if err := cache.cli.codec.marshal(ctx, output, key); err != nil {
				return err
			}
		}
		return nil
	}, reader)
}

// whole sends a request addressed to the cache as a whole to any node.
func (cache *Cache) whole(ctx context.Context, opCode int16, writer func(output *wire.Output) error,
	reader func(input *wire.Input) error) error {
	if err := cache.cli.checkOpen(); err != nil {
		return err
	}
	return cache.cli.router.send(ctx, opCode, func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		if writer != nil {
			return writer(output)
		}
		return nil
	}, reader)
}

func (cache *Cache) valueReader(ctx context.Context, ret *interface{}) func(input *wire.Input) error {
	return func(input *wire.Input) error {
		var err error
		*ret, err = cache.cli.codec.unmarshal(ctx, input)
		return err
	}
}

func boolReader(ret *bool) func(input *wire.Input) error {
	return func(input *wire.Input) error {
		*ret = input.ReadBool()
		return nil
	}
}

func (cache *Cache) writeCacheInfo(output *wire.Output) error {
	output.WriteInt32(cache.id)
	flag := keepBinaryMask
	if cache.expiryPolicy != nil {
		if pCtx := cache.cli.protocolContext(); !pCtx.SupportsExpiryPolicy() {
			return newIllegalArgumentError("expiry policies are not supported on protocol version %s", pCtx.Version())
		}
		flag |= expiryPolicyMask
	}
	output.WriteUInt8(flag)
	if flag&expiryPolicyMask != 0 {
		output.WriteInt64(durationToMillis(cache.expiryPolicy.Creation))
		output.WriteInt64(durationToMillis(cache.expiryPolicy.Update))
		output.WriteInt64(durationToMillis(cache.expiryPolicy.Access))
	}
	return nil
}

func durationToMillis(dur time.Duration) int64 {
	switch {
	case dur > 0:
		return dur.Milliseconds()
	case dur <= DurationUnchanged:
		return int64(DurationUnchanged)
	default:
		return int64(dur)
	}
}

func millisToDuration(millis int64) time.Duration {
	if millis > 0 {
		return time.Duration(millis) * time.Millisecond
	}
	return time.Duration(millis)
}
