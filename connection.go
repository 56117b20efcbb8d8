package ignite

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/bitset"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/source-c/go-gridgain-thin/logger"
)

const (
	handshakeCode  int8 = 1
	clientTypeCode int8 = 2
	handshakeId         = int64(-1)
	pollInterval        = time.Second
)

type connState int32

const (
	stateConnecting connState = iota
	stateHandshaking
	stateOpen
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateHandshaking:
		return "handshaking"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// connectionHooks lets the owner of a connection observe it.
type connectionHooks struct {
	// onTopologyChange is called from the read loop for every response that carries a new affinity
	// topology version.
	onTopologyChange func(conn *connection, ver AffinityTopologyVersion)
	// onClose is called once, err is nil when the connection was closed locally or went idle.
	onClose func(conn *connection, err error)
}

// connection is a single multiplexed TCP session with a cluster node. Requests are written in FIFO
// order by a write loop, responses are matched to waiters by request id in a read loop.
type connection struct {
	addr     string
	socket   net.Conn
	cfg      *clientConfiguration
	log      *logger.Logger
	hooks    connectionHooks
	state    atomic.Int32
	protoCtx atomic.Pointer[ProtocolContext]
	nodeId   uuid.UUID

	idGen        atomic.Int64
	pending      sync.Map
	inflight     atomic.Int32
	lastActivity atomic.Int64
	writeCh      chan *pendingRequest
	doneCh       chan struct{}
	closeErr     atomic.Value
	closeWg      sync.WaitGroup
}

type pendingRequest struct {
	id       int64
	opCode   int16
	data     []byte
	response []byte
	header   responseHeader
	err      error
	doneCh   chan struct{}
}

func (req *pendingRequest) complete(response []byte, hdr responseHeader, err error) {
	req.response = response
	req.header = hdr
	req.err = err
	close(req.doneCh)
}

// connect dials addr, performs the handshake and returns an open connection.
func connect(ctx context.Context, addr string, cfg *clientConfiguration, hooks connectionHooks) (*connection, error) {
	ctx, cancel := setContextDeadline(ctx, cfg.requestTimeout)
	defer cancel()
	if !isSupportedVersion(cfg.protocolContext.Version()) {
		return nil, newProtocolError(nil, "version %s is not supported", cfg.protocolContext.Version())
	}
	var d net.Dialer
	socket, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newLostConnectionError(fmt.Sprintf("failed to connect to %s", addr), err)
	}
	if cfg.tlsConfigSupplier != nil {
		var tlsCfg *tls.Config
		tlsCfg, err = cfg.tlsConfigSupplier()
		if err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("failed to obtain tls config: %w", err)
		}
		if tlsCfg.ServerName == "" && !tlsCfg.InsecureSkipVerify {
			tlsCfg = tlsCfg.Clone()
			tlsCfg.ServerName = serverName(addr)
		}
		tlsConn := tls.Client(socket, tlsCfg)
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			_ = socket.Close()
			return nil, newLostConnectionError(fmt.Sprintf("tls handshake with %s failed", addr), err)
		}
		socket = tlsConn
	}
	conn := &connection{
		addr:    addr,
		socket:  socket,
		cfg:     cfg,
		log:     cfg.logger.With("addr", addr),
		hooks:   hooks,
		writeCh: make(chan *pendingRequest, 1024),
		doneCh:  make(chan struct{}),
	}
	conn.touch()
	conn.closeWg.Add(2)
	go conn.writeLoop()
	go conn.readLoop()
	conn.state.Store(int32(stateHandshaking))
	if err = conn.handshake(ctx, cfg.protocolContext); err != nil {
		conn.beginClose(nil)
		return nil, err
	}
	if !conn.state.CompareAndSwap(int32(stateHandshaking), int32(stateOpen)) {
		return nil, conn.lostError(fmt.Sprintf("connection to %s closed during handshake", addr))
	}
	return conn, nil
}

// serverName returns the host part of addr, the name a certificate is verified against.
func serverName(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (c *connection) protocolContext() *ProtocolContext {
	return c.protoCtx.Load()
}

func (c *connection) isOpen() bool {
	return connState(c.state.Load()) == stateOpen
}

func (c *connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// send performs a request and passes the response body to reader. A server error status is returned as
// *OperationError, a broken connection as *LostConnectionError.
func (c *connection) send(ctx context.Context, opCode int16, writer func(output *wire.Output) error,
	reader func(input *wire.Input) error) error {
	if !c.isOpen() {
		return c.lostError("connection is closed")
	}
	reqId := c.idGen.Add(1)
	c.log.Trace(func() string {
		return fmt.Sprintf("start performing request[id=%d, op=%d] on %s", reqId, opCode, c)
	})
	err := c.send0(ctx, reqId, opCode, writer, reader)
	c.log.Trace(func() string {
		if err != nil {
			return fmt.Sprintf("request[id=%d, op=%d] failed on %s: %s", reqId, opCode, c, err)
		}
		return fmt.Sprintf("request[id=%d, op=%d] succeeded on %s", reqId, opCode, c)
	})
	return err
}

func (c *connection) send0(ctx context.Context, id int64, opCode int16, writer func(output *wire.Output) error,
	reader func(input *wire.Input) error) error {
	ctx, cancel := setContextDeadline(ctx, c.cfg.requestTimeout)
	defer cancel()

	var data []byte
	var err error
	if id == handshakeId {
		data = buildHandshake(func(output *wire.Output) { _ = writer(output) })
	} else if data, err = buildRequest(id, opCode, writer); err != nil {
		return err
	}
	req := &pendingRequest{id: id, opCode: opCode, data: data, doneCh: make(chan struct{})}
	c.pending.Store(id, req)
	c.inflight.Add(1)
	defer func() {
		c.pending.Delete(id)
		c.inflight.Add(-1)
	}()
	c.touch()

	select {
	case c.writeCh <- req:
	case <-c.doneCh:
		return c.lostError("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.doneCh:
		select {
		case <-req.doneCh:
		default:
			return c.lostError("connection closed")
		}
	}
	if req.err != nil {
		return req.err
	}
	if id == handshakeId {
		return readBody(wire.NewInput(req.response, 0), reader)
	}
	if err = req.header.err(); err != nil {
		return err
	}
	return readBody(wire.NewInput(req.response, req.header.bodyPosition), reader)
}

func readBody(in *wire.Input, reader func(input *wire.Input) error) (err error) {
	if reader == nil {
		return nil
	}
	defer recoverMalformed(&err)
	return reader(in)
}

func (c *connection) lostError(msg string) error {
	if closeErr, ok := c.closeErr.Load().(error); ok {
		return newLostConnectionError(msg, closeErr)
	}
	return newLostConnectionError(msg, nil)
}

// beginClose closes the socket and fails every waiting request, only the first call has effect.
func (c *connection) beginClose(err error) {
	for {
		st := c.state.Load()
		if connState(st) == stateClosed {
			return
		}
		if c.state.CompareAndSwap(st, int32(stateClosed)) {
			break
		}
	}
	if err != nil {
		c.log.Errorf("%s closed with error: %s", c, err)
		c.closeErr.Store(err)
	} else {
		c.log.Debug(func() string {
			return fmt.Sprintf("%s closed", c)
		})
	}
	close(c.doneCh)
	_ = c.socket.Close()
	c.pending.Range(func(id, val any) bool {
		if _, ok := c.pending.LoadAndDelete(id); ok {
			val.(*pendingRequest).complete(nil, responseHeader{}, c.lostError("connection closed"))
		}
		return true
	})
	if c.hooks.onClose != nil {
		c.hooks.onClose(c, err)
	}
}

// close closes the connection and waits for its loops to finish until ctx expires.
func (c *connection) close(ctx context.Context) {
	c.beginClose(nil)

	ctx, cancel := setContextDeadline(ctx, c.cfg.requestTimeout)
	defer cancel()
	waitCh := make(chan struct{})
	go func() {
		c.closeWg.Wait()
		close(waitCh)
	}()
	select {
	case <-ctx.Done():
		c.log.Warnf("waiting for %s to close timed out", c)
	case <-waitCh:
	}
}

func (c *connection) String() string {
	var sb strings.Builder
	sb.WriteString("connection[addr=")
	sb.WriteString(c.addr)
	if pCtx := c.protocolContext(); pCtx != nil {
		sb.WriteString(", protoVer=")
		sb.WriteString(pCtx.Version().String())
	}
	if c.nodeId != uuid.Nil {
		sb.WriteString(", nodeId=")
		sb.WriteString(c.nodeId.String())
	}
	sb.WriteString(", state=")
	sb.WriteString(connState(c.state.Load()).String())
	sb.WriteRune(']')
	return sb.String()
}

func (c *connection) writeLoop() {
	defer c.closeWg.Done()
	writer := bufio.NewWriterSize(c.socket, writeBufferSize)
	for {
		select {
		case req := <-c.writeCh:
			if _, ok := c.pending.Load(req.id); !ok {
				continue
			}
			_, err := writer.Write(req.data)
			if err == nil && len(c.writeCh) == 0 {
				err = writer.Flush()
			}
			if err != nil {
				c.beginClose(err)
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

func (c *connection) readLoop() {
	defer c.closeWg.Done()
	buf := make([]byte, messageBufferSize)
	acc := newPacketAccumulator()
	for {
		if connState(c.state.Load()) == stateClosed {
			return
		}
		if err := c.socket.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			c.beginClose(err)
			return
		}
		n, err := c.socket.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if c.idleExpired() {
					c.log.Debug(func() string {
						return fmt.Sprintf("%s is idle for %s, closing", c, c.cfg.idleTimeout)
					})
					c.beginClose(nil)
					return
				}
				continue
			}
			c.beginClose(err)
			return
		}
		if n == 0 {
			continue
		}
		c.touch()
		acc.append(buf[:n])
		for {
			packet, err := acc.next()
			if err != nil {
				c.beginClose(newProtocolError(err, "broken stream from %s", c.addr))
				return
			}
			if packet == nil {
				break
			}
			if err = c.dispatch(packet); err != nil {
				c.beginClose(err)
				return
			}
		}
	}
}

// dispatch hands a packet to its waiter. Responses nobody waits for any longer are dropped.
func (c *connection) dispatch(packet []byte) error {
	if connState(c.state.Load()) == stateHandshaking {
		if val, ok := c.pending.LoadAndDelete(handshakeId); ok {
			val.(*pendingRequest).complete(packet, responseHeader{id: handshakeId}, nil)
		}
		return nil
	}
	hdr, err := parseResponseHeader(packet, c.protocolContext())
	if err != nil {
		return err
	}
	if hdr.flags&notificationFlag != 0 {
		c.log.Trace(func() string {
			return fmt.Sprintf("dropped notification for resource %d on %s", hdr.id, c)
		})
		return nil
	}
	if hdr.topVer != nil && c.hooks.onTopologyChange != nil {
		c.hooks.onTopologyChange(c, *hdr.topVer)
	}
	if val, ok := c.pending.LoadAndDelete(hdr.id); ok {
		val.(*pendingRequest).complete(packet, hdr, nil)
	} else {
		c.log.Trace(func() string {
			return fmt.Sprintf("dropped response[id=%d] on %s, no request is waiting for it", hdr.id, c)
		})
	}
	return nil
}

func (c *connection) idleExpired() bool {
	if c.cfg.idleTimeout <= 0 || c.inflight.Load() > 0 {
		return false
	}
	return time.Since(time.Unix(0, c.lastActivity.Load())) >= c.cfg.idleTimeout
}

// handshake negotiates the protocol version. When the server rejects the proposed version but offers
// another supported one, the handshake is retried once with that version.
func (c *connection) handshake(ctx context.Context, pCtx *ProtocolContext) error {
	for attempt := 0; ; attempt++ {
		c.log.Debug(func() string {
			return fmt.Sprintf("performing handshake with %s, version=%s", c.addr, pCtx.Version())
		})
		srvVer, err := c.handshakeRound(ctx, pCtx)
		if err != nil {
			return err
		}
		if srvVer == nil {
			return nil
		}
		if attempt > 0 {
			return newProtocolError(nil, "handshake with %s failed after switching to version %s", c.addr, pCtx.Version())
		}
		pCtx = pCtx.withVersion(*srvVer)
	}
}

// handshakeRound returns the version offered by the server if it rejected the proposed one.
func (c *connection) handshakeRound(ctx context.Context, pCtx *ProtocolContext) (*ProtocolVersion, error) {
	var srvVer *ProtocolVersion
	writer := func(w *wire.Output) error {
		w.WriteInt8(handshakeCode)
		pCtx.marshal(w)
		if pCtx.SupportsAttributeFeature(UserAttributesFeature) {
			writeUserAttributes(w, c.cfg.attrs)
		}
		if pCtx.SupportsAuthorization() && len(c.cfg.user) > 0 {
			writeObjectString(w, c.cfg.user)
			writeObjectString(w, c.cfg.password)
		}
		return nil
	}
	reader := func(r *wire.Input) error {
		if r.ReadBool() {
			ctxCopy := NewProtocolContext(pCtx.Version(), pCtx.featureList()...)
			if ctxCopy.SupportsBitmapFeatures() {
				ctxCopy.intersectFeatures(readFeatures(r))
			}
			if ctxCopy.SupportsPartitionAwareness() {
				c.nodeId = readNodeId(r)
			}
			c.protoCtx.Store(ctxCopy)
			return nil
		}
		ver := ProtocolVersion{Major: r.ReadInt16(), Minor: r.ReadInt16(), Patch: r.ReadInt16()}
		msg := readObjectString(r)
		code := Failed
		if r.Remaining() >= wire.IntBytes {
			code = ErrorCode(r.ReadInt32())
		}
		switch {
		case code == AuthFailed:
			return &AuthenticationError{ClientError{Message: msg}}
		case ver == pCtx.Version():
			return &ProtocolError{ClientError{Message: msg}}
		case !isSupportedVersion(ver) || (len(c.cfg.user) > 0 && !NewProtocolContext(ver).SupportsAuthorization()):
			return newProtocolError(nil, "protocol version mismatch: client %s / server %s. Server details: %s",
				pCtx.Version(), ver, msg)
		}
		srvVer = &ver
		return nil
	}
	if err := c.send0(ctx, handshakeId, 0, writer, reader); err != nil {
		return nil, err
	}
	return srvVer, nil
}

func writeUserAttributes(w *wire.Output, attrs map[string]string) {
	if len(attrs) == 0 {
		w.WriteInt8(NullType)
		return
	}
	w.WriteInt8(MapType)
	w.WriteInt32(int32(len(attrs)))
	w.WriteInt8(int8(HashMap))
	for k, v := range attrs {
		writeObjectString(w, k)
		writeObjectString(w, v)
	}
}

func readFeatures(r *wire.Input) *bitset.BitSet {
	switch code := TypeDesc(r.ReadInt8()); code {
	case NullType:
		return nil
	case ByteArrayType:
		return bitset.FromBytes(r.ReadBytes(readLength(r)))
	default:
		panic(newSerializationError(nil, "unexpected feature bitmap type %d", code))
	}
}

func readNodeId(r *wire.Input) uuid.UUID {
	switch code := TypeDesc(r.ReadInt8()); code {
	case NullType:
		return uuid.Nil
	case UuidType:
		return readUuid(r)
	default:
		panic(newSerializationError(nil, "unexpected node id type %d", code))
	}
}

// setContextDeadline applies defaultTimeout to ctx unless it already has a deadline.
func setContextDeadline(ctx context.Context, defaultTimeout time.Duration) (context.Context, context.CancelFunc) {
	retCancel := func() {}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, deadlineSet := ctx.Deadline(); !deadlineSet && defaultTimeout > 0 {
		ctx, retCancel = context.WithTimeout(ctx, defaultTimeout)
	}
	return ctx, retCancel
}
