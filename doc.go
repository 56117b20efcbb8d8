// Package ignite provides a go thin client for GridGain and Apache Ignite clusters.
//
// # Introduction
//
// Basic usage of the driver starts with creating [Client] using function [Start]
//
//	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
//	defer cancel()
//	client, err := ignite.Start(ctx, ignite.WithAddresses("127.0.0.1:10800", "127.0.0.1:10801"))
//	if err != nil {
//		return err
//	}
//	defer func() {
//		_ = client.Close(context.Background())
//	}()
//
// It is possible to pass multiple [ClientConfigurationOption] parameters to method Start that specify various
// client options. Package config loads the same options from a file and IGNITE_* environment variables.
//
// # Partition awareness
//
// By default the client connects to every address it is given and sends key-based requests straight to the
// node that holds the primary copy of the key. Partition distribution is requested lazily per cache and
// refreshed when a response reports a topology change. Requests without a key, and keys whose partition
// cannot be computed, go to any live connection. Use [WithPartitionAwareness] to keep a single connection.
//
// A request that fails because its connection dropped is retried once on another connection, see
// [WithRetryLimit]. When no node can be reached the error satisfies [IsClusterUnavailable].
//
// # Cache creation
//
// Cache can be created or obtained with help of these methods:
//   - [Client.GetOrCreateCache] gets/creates cache by name.
//   - [Client.CreateCache] creates cache by name.
//   - [Client.GetOrCreateCacheWithConfiguration] gets/creates cache by [CacheConfiguration].
//   - [Client.CreateCacheWithConfiguration] creates cache by [CacheConfiguration].
//   - [Client.Cache] returns a handle to an existing cache without a round trip.
//
// A list of already created caches can be obtained using [Client.CacheNames]. A cache can be destroyed with
// [Client.DestroyCache].
//
// # Cache operations
//
//	cache, err := client.GetOrCreateCacheWithConfiguration(ctx, ignite.NewCacheConfiguration("test",
//		ignite.WithCacheAtomicityMode(ignite.AtomicAtomicityMode),
//		ignite.WithCacheMode(ignite.ReplicatedCacheMode),
//		ignite.WithReadFromBackup(true),
//	))
//	if err != nil {
//		return err
//	}
//	if err = cache.Put(ctx, "test", int32(42)); err != nil {
//		return err
//	}
//	val, err := cache.Get(ctx, "test")
//
// Go values are mapped to wire types by their Go type: int32 is Int, int and int64 are Long, string is
// String and so on. Use [TypedValue] to send a value as another wire type, e.g. an int as Short.
//
// # Binary objects
//
// Complex values are [BinaryObject] instances built with [Client.CreateBinaryObject]. Their type metadata is
// registered in the cluster on first use and cached by the client. Enums are sent as [EnumItem] values.
//
//	person, err := client.CreateBinaryObject(ctx, "Person",
//		ignite.WithField("name", "Alice"), ignite.WithField("age", int32(30)))
//
// # Queries
//
// [Cache.Scan], [Cache.Query] and [Cache.QueryFields] return a [QueryCursor] that fetches further pages on
// demand. A cursor that was not read to the end must be closed to release its server resources.
//
//	cursor, err := cache.QueryFields(ctx, ignite.SqlFieldsQuery{Sql: "select name from Person where age > ?",
//		Args: []interface{}{int32(18)}, IncludeFieldNames: true})
//	if err != nil {
//		return err
//	}
//	defer cursor.Close(ctx)
//	for {
//		row, ok, err := cursor.Next(ctx)
//		if err != nil || !ok {
//			return err
//		}
//		fmt.Println(row[0])
//	}
//
// # TTL (ExpiryPolicy) support
//
// You can set ExpiryPolicy to entries by creating special decorator by [Cache.WithExpiryPolicy]. It requires
// protocol version 1.6.0 or later.
//
//	cache = cache.WithExpiryPolicy(1*time.Second, ignite.DurationZero, ignite.DurationZero)
//	err = cache.Put(ctx, "test", "test")
//
// Also, you can set ExpiryPolicy for all cache on creation by passing [WithExpiryPolicy] to
// [NewCacheConfiguration].
package ignite
