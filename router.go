package ignite

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/source-c/go-gridgain-thin/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	reconnectAttempts = 3
	reconnectBackoff  = 100 * time.Millisecond
)

// connectionPool is an immutable set of open connections, indexed by node id.
type connectionPool struct {
	conns  []*connection
	byNode map[uuid.UUID]*connection
}

func newConnectionPool(conns ...*connection) *connectionPool {
	p := &connectionPool{conns: conns, byNode: make(map[uuid.UUID]*connection, len(conns))}
	for _, c := range conns {
		if _, ok := p.byNode[c.nodeId]; !ok && c.nodeId != uuid.Nil {
			p.byNode[c.nodeId] = c
		}
	}
	return p
}

func (p *connectionPool) with(conn *connection) *connectionPool {
	conns := make([]*connection, 0, len(p.conns)+1)
	conns = append(conns, p.conns...)
	return newConnectionPool(append(conns, conn)...)
}

func (p *connectionPool) without(conn *connection) (*connectionPool, bool) {
	conns := make([]*connection, 0, len(p.conns))
	found := false
	for _, c := range p.conns {
		if c == conn {
			found = true
			continue
		}
		conns = append(conns, c)
	}
	return newConnectionPool(conns...), found
}

func (p *connectionPool) hasAddr(addr string) bool {
	for _, c := range p.conns {
		if c.addr == addr && c.isOpen() {
			return true
		}
	}
	return false
}

// router owns the connections of a client. With partition awareness it keeps one connection per node
// and sends keyed requests to the primary node of the key, otherwise it keeps a single connection and
// fails over between the configured addresses.
type router struct {
	cfg   *clientConfiguration
	log   *logger.Logger
	codec *binaryCodec

	pool       atomic.Pointer[connectionPool]
	partitions atomic.Pointer[partitionMap]
	topVer     atomic.Pointer[AffinityTopologyVersion]
	touched    sync.Map
	refresh    singleflight.Group
	rr         atomic.Uint64

	mu           sync.Mutex
	reconnecting sync.Map
	closed       atomic.Bool
	bgCtx        context.Context
	bgCancel     context.CancelFunc
	bgWg         sync.WaitGroup
}

func newRouter(ctx context.Context, cfg *clientConfiguration) (*router, error) {
	if cfg.addressesSupplier == nil {
		return nil, newIllegalArgumentError("address supplier is nil")
	}
	r := &router{
		cfg: cfg,
		log: cfg.logger.With("component", "router"),
	}
	r.bgCtx, r.bgCancel = context.WithCancel(context.Background())
	r.pool.Store(newConnectionPool())
	r.partitions.Store(newPartitionMap(AffinityTopologyVersion{}))
	if err := r.connectAll(ctx); err != nil {
		r.bgCancel()
		r.log.Errorf("connection failed: %s", err)
		return nil, err
	}
	return r, nil
}

func (r *router) hooks() connectionHooks {
	return connectionHooks{
		onTopologyChange: r.onTopologyChange,
		onClose:          r.onConnectionClose,
	}
}

func (r *router) addresses(ctx context.Context) ([]string, error) {
	addrs, err := r.cfg.addressesSupplier(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain addresses: %w", err)
	}
	if len(addrs) == 0 {
		return nil, newIllegalArgumentError("addresses are empty")
	}
	addrs = append([]string(nil), addrs...)
	if len(addrs) > 1 && r.cfg.shuffleAddresses {
		rand.Shuffle(len(addrs), func(i, j int) {
			addrs[i], addrs[j] = addrs[j], addrs[i]
		})
	}
	return addrs, nil
}

// connectAll opens connections to the endpoints that have none. It fails only if the pool stays empty.
func (r *router) connectAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	addrs, err := r.addresses(ctx)
	if err != nil {
		return err
	}
	if r.cfg.partitionAwareness {
		err = r.connectConcurrently(ctx, addrs)
	} else {
		err = r.connectFirst(ctx, addrs)
	}
	if len(r.pool.Load().conns) > 0 {
		return nil
	}
	if isHandshakeError(err) {
		return err
	}
	return &ClusterUnavailableError{ClientError{
		Message: fmt.Sprintf("failed to connect to any of [%s]", strings.Join(addrs, ", ")),
		Cause:   err,
	}}
}

func (r *router) connectConcurrently(ctx context.Context, addrs []string) error {
	pool := r.pool.Load()
	var g errgroup.Group
	errs := make([]error, len(addrs))
	for i, addr := range addrs {
		if pool.hasAddr(addr) {
			continue
		}
		i, addr := i, addr
		g.Go(func() error {
			r.log.Debug(func() string {
				return fmt.Sprintf("trying to init connection to %s", addr)
			})
			conn, err := connect(ctx, addr, r.cfg, r.hooks())
			if err != nil {
				errs[i] = err
				return nil
			}
			r.addConnection(conn)
			return nil
		})
	}
	_ = g.Wait()
	return joinHandshakeFirst(errs)
}

// connectFirst keeps one connection, trying addresses in order until one succeeds.
func (r *router) connectFirst(ctx context.Context, addrs []string) error {
	for _, c := range r.pool.Load().conns {
		if c.isOpen() {
			return nil
		}
	}
	var errs []error
	for _, addr := range addrs {
		r.log.Debug(func() string {
			return fmt.Sprintf("trying to init connection to %s", addr)
		})
		conn, err := connect(ctx, addr, r.cfg, r.hooks())
		if err == nil {
			r.addConnection(conn)
			return nil
		}
		errs = append(errs, err)
		if isHandshakeError(err) {
			break
		}
	}
	return joinHandshakeFirst(errs)
}

// joinHandshakeFirst returns a handshake error as is, it must not be hidden behind connection errors.
func joinHandshakeFirst(errs []error) error {
	for _, err := range errs {
		if isHandshakeError(err) {
			return err
		}
	}
	return errors.Join(errs...)
}

func isHandshakeError(err error) bool {
	var authErr *AuthenticationError
	var protoErr *ProtocolError
	return err != nil && (errors.As(err, &authErr) || errors.As(err, &protoErr))
}

func (r *router) addConnection(conn *connection) {
	if r.closed.Load() {
		conn.close(context.Background())
		return
	}
	for {
		old := r.pool.Load()
		if r.pool.CompareAndSwap(old, old.with(conn)) {
			break
		}
	}
	r.log.Debug(func() string {
		return fmt.Sprintf("successfully connected to %s", conn)
	})
	if !conn.isOpen() {
		r.removeConnection(conn)
	}
}

func (r *router) removeConnection(conn *connection) bool {
	for {
		old := r.pool.Load()
		next, found := old.without(conn)
		if !found {
			return false
		}
		if r.pool.CompareAndSwap(old, next) {
			return true
		}
	}
}

func (r *router) onConnectionClose(conn *connection, err error) {
	if !r.removeConnection(conn) || err == nil || r.closed.Load() {
		return
	}
	if r.cfg.partitionAwareness {
		r.scheduleReconnect(conn.addr)
	}
}

// scheduleReconnect restores the connection to addr in the background.
func (r *router) scheduleReconnect(addr string) {
	if _, running := r.reconnecting.LoadOrStore(addr, struct{}{}); running {
		return
	}
	r.bgWg.Add(1)
	go func() {
		defer r.bgWg.Done()
		defer r.reconnecting.Delete(addr)
		delay := reconnectBackoff
		for attempt := 1; attempt <= reconnectAttempts; attempt++ {
			select {
			case <-r.bgCtx.Done():
				return
			case <-time.After(delay):
			}
			if r.pool.Load().hasAddr(addr) {
				return
			}
			conn, err := connect(r.bgCtx, addr, r.cfg, r.hooks())
			if err == nil {
				r.addConnection(conn)
				return
			}
			r.log.Warnf("reconnect to %s failed, attempt %d of %d: %s", addr, attempt, reconnectAttempts, err)
			if isHandshakeError(err) {
				return
			}
			delay *= 2
		}
	}()
}

func (r *router) retries() int {
	if r.cfg.retryLimit > 0 {
		return r.cfg.retryLimit
	}
	return 1
}

// send performs a request that is not bound to a key.
func (r *router) send(ctx context.Context, opCode int16, writer func(output *wire.Output) error,
	reader func(input *wire.Input) error) error {
	_, err := r.sendVia(ctx, nil, opCode, writer, reader)
	return err
}

// sendKeyed performs a request on the primary node of key in cache cacheId when it is known.
func (r *router) sendKeyed(ctx context.Context, cacheId int32, key interface{}, opCode int16,
	writer func(output *wire.Output) error, reader func(input *wire.Input) error) error {
	_, err := r.sendVia(ctx, r.nodeForKey(ctx, cacheId, key), opCode, writer, reader)
	return err
}

// sendToPartition performs a request on the primary node of a partition of cache cacheId.
func (r *router) sendToPartition(ctx context.Context, cacheId int32, part int, opCode int16,
	writer func(output *wire.Output) error, reader func(input *wire.Input) error) (*connection, error) {
	var preferred *connection
	if aff := r.affinity(ctx, cacheId); aff != nil && aff.applicable {
		preferred = r.nodeForPartition(aff, part)
	}
	return r.sendVia(ctx, preferred, opCode, writer, reader)
}

// sendVia performs a request on preferred if it is open, otherwise on any open connection. A request
// lost with its connection is retried on another one. The connection that served the request is
// returned.
func (r *router) sendVia(ctx context.Context, preferred *connection, opCode int16,
	writer func(output *wire.Output) error, reader func(input *wire.Input) error) (*connection, error) {
	if r.closed.Load() {
		return nil, newIllegalStateError("client is closed")
	}
	for attempt := 0; ; attempt++ {
		conn := preferred
		if conn == nil || !conn.isOpen() {
			var err error
			if conn, err = r.pick(ctx); err != nil {
				return nil, err
			}
		}
		err := conn.send(ctx, opCode, writer, reader)
		var lostErr *LostConnectionError
		if err == nil || !errors.As(err, &lostErr) {
			return conn, err
		}
		r.removeConnection(conn)
		if attempt >= r.retries() {
			return conn, err
		}
		r.log.Debug(func() string {
			return fmt.Sprintf("request[op=%d] lost on %s, retrying on another connection", opCode, conn)
		})
		preferred = nil
	}
}

// pick returns an open connection chosen round-robin, reconnecting once if there is none.
func (r *router) pick(ctx context.Context) (*connection, error) {
	if conn := r.nextOpen(); conn != nil {
		return conn, nil
	}
	if err := r.connectAll(ctx); err != nil {
		var unavailable *ClusterUnavailableError
		if errors.As(err, &unavailable) || isHandshakeError(err) {
			return nil, err
		}
		return nil, &ClusterUnavailableError{ClientError{Message: "no connection to the cluster", Cause: err}}
	}
	if conn := r.nextOpen(); conn != nil {
		return conn, nil
	}
	return nil, &ClusterUnavailableError{ClientError{Message: "no connection to the cluster"}}
}

func (r *router) nextOpen() *connection {
	conns := r.pool.Load().conns
	n := len(conns)
	if n == 0 {
		return nil
	}
	start := int(r.rr.Add(1) % uint64(n))
	for i := 0; i < n; i++ {
		if conn := conns[(start+i)%n]; conn.isOpen() {
			return conn
		}
	}
	return nil
}

// protocolContext returns the protocol context of an open connection, nil if there is none.
func (r *router) protocolContext() *ProtocolContext {
	for _, conn := range r.pool.Load().conns {
		if conn.isOpen() {
			return conn.protocolContext()
		}
	}
	return nil
}

func (r *router) partitionAware() bool {
	if !r.cfg.partitionAwareness {
		return false
	}
	pCtx := r.protocolContext()
	return pCtx != nil && pCtx.SupportsPartitionAwareness()
}

// nodeForKey returns the open connection to the primary node of key, nil when it is unknown.
func (r *router) nodeForKey(ctx context.Context, cacheId int32, key interface{}) *connection {
	if !r.partitionAware() || r.codec == nil {
		return nil
	}
	aff := r.affinity(ctx, cacheId)
	if aff == nil || !aff.applicable || aff.partitionCount() == 0 {
		return nil
	}
	hash, ok := r.codec.affinityHash(ctx, key, aff.keyConfig)
	if !ok {
		return nil
	}
	return r.nodeForPartition(aff, calculatePartition(hash, aff.partitionCount()))
}

func (r *router) nodeForPartition(aff *cacheAffinity, part int) *connection {
	nodeId, ok := aff.owner(part)
	if !ok {
		return nil
	}
	conn := r.pool.Load().byNode[nodeId]
	if conn == nil || !conn.isOpen() {
		return nil
	}
	return conn
}

// affinity returns the partition distribution of a cache, fetching it when it is not cached.
func (r *router) affinity(ctx context.Context, cacheId int32) *cacheAffinity {
	if !r.partitionAware() {
		return nil
	}
	r.touched.Store(cacheId, struct{}{})
	if aff := r.partitions.Load().affinity(cacheId); aff != nil {
		return aff
	}
	if err := r.refreshPartitions(ctx, []int32{cacheId}); err != nil {
		r.log.Warnf("failed to fetch partitions of cache %d: %s", cacheId, err)
		return nil
	}
	return r.partitions.Load().affinity(cacheId)
}

// refreshPartitions fetches the distribution of caches and publishes a new partition map. Concurrent
// refreshes of the same caches share one request.
func (r *router) refreshPartitions(ctx context.Context, cacheIds []int32) error {
	sort.Slice(cacheIds, func(i, j int) bool { return cacheIds[i] < cacheIds[j] })
	var sb strings.Builder
	for _, id := range cacheIds {
		sb.WriteString(strconv.FormatInt(int64(id), 10))
		sb.WriteRune(',')
	}
	ch := r.refresh.DoChan(sb.String(), func() (interface{}, error) {
		var ver AffinityTopologyVersion
		var update map[int32]*cacheAffinity
		err := r.send(context.WithoutCancel(ctx), opCachePartitions, func(output *wire.Output) error {
			writeCachePartitionsRequest(output, cacheIds)
			return nil
		}, func(input *wire.Input) error {
			ver, update = readCachePartitions(input)
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, id := range cacheIds {
			if _, ok := update[id]; !ok {
				update[id] = &cacheAffinity{}
			}
		}
		r.publishPartitions(ver, update)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *router) publishPartitions(ver AffinityTopologyVersion, update map[int32]*cacheAffinity) {
	for {
		old := r.partitions.Load()
		next := old.merge(ver, update)
		if next == old || r.partitions.CompareAndSwap(old, next) {
			break
		}
	}
	r.log.Debug(func() string {
		return fmt.Sprintf("partition map updated to topology version %s, %d cache(s)", ver, len(update))
	})
}

// onTopologyChange refreshes the partitions of every cache used so far when a response reports a
// newer topology.
func (r *router) onTopologyChange(_ *connection, ver AffinityTopologyVersion) {
	for {
		old := r.topVer.Load()
		if old != nil && old.Compare(ver) >= 0 {
			return
		}
		if r.topVer.CompareAndSwap(old, &ver) {
			break
		}
	}
	if r.closed.Load() || !r.cfg.partitionAwareness {
		return
	}
	var cacheIds []int32
	r.touched.Range(func(key, _ any) bool {
		cacheIds = append(cacheIds, key.(int32))
		return true
	})
	r.log.Debug(func() string {
		return fmt.Sprintf("affinity topology changed to %s, refreshing %d cache(s)", ver, len(cacheIds))
	})
	if len(cacheIds) == 0 {
		return
	}
	r.bgWg.Add(1)
	go func() {
		defer r.bgWg.Done()
		if err := r.refreshPartitions(r.bgCtx, cacheIds); err != nil && !r.closed.Load() {
			r.log.Warnf("failed to refresh partitions: %s", err)
		}
	}()
}

// close closes every connection and waits for background work until ctx expires.
func (r *router) close(ctx context.Context) {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.bgCancel()
	for _, conn := range r.pool.Load().conns {
		r.log.Infof("closing %s", conn)
		conn.close(ctx)
	}
	r.pool.Store(newConnectionPool())
	waitCh := make(chan struct{})
	go func() {
		r.bgWg.Wait()
		close(waitCh)
	}()
	ctx, cancel := setContextDeadline(ctx, r.cfg.requestTimeout)
	defer cancel()
	select {
	case <-waitCh:
	case <-ctx.Done():
		r.log.Warnf("waiting for background tasks timed out")
	}
}
