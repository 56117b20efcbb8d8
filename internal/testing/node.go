// Package testing runs in-process fake cluster nodes that speak the thin client handshake and
// framing over real TCP sockets. Operations are served by handlers registered on the cluster.
package testing

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	typeByteArray int8 = 12
	typeString    int8 = 9
	typeUuid      int8 = 10
	typeMap       int8 = 25
	typeNull      int8 = 101

	statusFailed     int32 = 1
	statusAuthFailed int32 = 2000
)

// Version is a protocol version spoken by a fake node.
type Version struct {
	Major int16
	Minor int16
	Patch int16
}

func (v Version) atLeast(major, minor int16) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// TopologyVersion is an affinity topology version announced by the fake cluster.
type TopologyVersion struct {
	Major int64
	Minor int32
}

// Request is a decoded request frame. Payload is positioned at the first byte after the request id.
type Request struct {
	Node    *FakeNode
	OpCode  int16
	Id      int64
	Payload *wire.Input
}

// Reply is what a handler answers. A non-zero Status is sent as an error with Message. Delay holds the
// reply back, later requests on the same connection may be answered first.
type Reply struct {
	Status  int32
	Message string
	Body    []byte
	Delay   time.Duration
}

type Handler func(req *Request) Reply

// Handshake describes a handshake received by a node.
type Handshake struct {
	Version    Version
	Attributes map[string]string
	Username   string
	Password   string
}

type NodeOption func(node *FakeNode)

// WithVersion sets the only protocol version the node accepts, 1.7.0 by default.
func WithVersion(ver Version) NodeOption {
	return func(node *FakeNode) {
		node.version = ver
	}
}

// WithFeatures sets the feature bits the node reports in the handshake.
func WithFeatures(bits ...uint) NodeOption {
	return func(node *FakeNode) {
		node.features = bits
	}
}

// WithCredentials makes the node reject handshakes without these credentials.
func WithCredentials(username string, password string) NodeOption {
	return func(node *FakeNode) {
		node.username = username
		node.password = password
	}
}

// WithNodeId sets the node id, a random one is used otherwise.
func WithNodeId(id uuid.UUID) NodeOption {
	return func(node *FakeNode) {
		node.id = id
	}
}

// WithTLS makes the node accept only TLS connections.
func WithTLS(cfg *tls.Config) NodeOption {
	return func(node *FakeNode) {
		node.tlsConfig = cfg
	}
}

// FakeNode is one listening node of a [FakeCluster].
type FakeNode struct {
	id        uuid.UUID
	cluster   *FakeCluster
	listener  net.Listener
	tlsConfig *tls.Config
	version   Version
	features  []uint
	username  string
	password  string

	mu         sync.Mutex
	conns      map[net.Conn]struct{}
	served     map[int16]int
	handshakes []Handshake
	topVer     atomic.Pointer[TopologyVersion]
	killed     atomic.Bool
	wg         sync.WaitGroup
}

func (node *FakeNode) Id() uuid.UUID {
	return node.id
}

func (node *FakeNode) Address() string {
	return node.listener.Addr().String()
}

// Served returns how many requests with the op code the node has received.
func (node *FakeNode) Served(opCode int16) int {
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.served[opCode]
}

// Handshakes returns the handshakes the node has received, rejected ones included.
func (node *FakeNode) Handshakes() []Handshake {
	node.mu.Lock()
	defer node.mu.Unlock()
	return append([]Handshake(nil), node.handshakes...)
}

// Connections returns the number of open client connections.
func (node *FakeNode) Connections() int {
	node.mu.Lock()
	defer node.mu.Unlock()
	return len(node.conns)
}

// announce makes the next response of the node carry a topology change.
func (node *FakeNode) announce(ver TopologyVersion) {
	node.topVer.Store(&ver)
}

// DropConnections closes every client connection, the node keeps listening.
func (node *FakeNode) DropConnections() {
	node.mu.Lock()
	defer node.mu.Unlock()
	for conn := range node.conns {
		_ = conn.Close()
	}
}

// Kill stops listening and drops every client connection.
func (node *FakeNode) Kill() error {
	if !node.killed.CompareAndSwap(false, true) {
		return nil
	}
	err := node.listener.Close()
	node.DropConnections()
	node.wg.Wait()
	return err
}

func (node *FakeNode) serve() {
	defer node.wg.Done()
	for {
		conn, err := node.listener.Accept()
		if err != nil {
			return
		}
		node.mu.Lock()
		if node.killed.Load() {
			node.mu.Unlock()
			_ = conn.Close()
			return
		}
		node.conns[conn] = struct{}{}
		node.mu.Unlock()
		node.wg.Add(1)
		go node.serveConn(conn)
	}
}

func (node *FakeNode) serveConn(conn net.Conn) {
	defer node.wg.Done()
	defer func() {
		node.mu.Lock()
		delete(node.conns, conn)
		node.mu.Unlock()
		_ = conn.Close()
	}()
	reader := bufio.NewReader(conn)
	var ver Version
	for accepted := false; !accepted; {
		packet, err := readFrame(reader)
		if err != nil {
			return
		}
		var retry bool
		ver, accepted, retry = node.handshake(conn, packet)
		if !accepted && !retry {
			return
		}
	}
	var writeMu sync.Mutex
	var handlers sync.WaitGroup
	defer handlers.Wait()
	for {
		packet, err := readFrame(reader)
		if err != nil {
			return
		}
		in := wire.NewInput(packet, 0)
		req := &Request{Node: node, OpCode: in.ReadInt16(), Id: in.ReadInt64(), Payload: in}
		node.mu.Lock()
		node.served[req.OpCode]++
		node.mu.Unlock()
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			reply := node.cluster.handle(req)
			if reply.Delay > 0 {
				time.Sleep(reply.Delay)
			}
			frame := node.responseFrame(ver, req.Id, reply)
			writeMu.Lock()
			defer writeMu.Unlock()
			_, _ = conn.Write(frame)
		}()
	}
}

// handshake answers a handshake frame. A version mismatch leaves the connection open for another
// attempt.
func (node *FakeNode) handshake(conn net.Conn, packet []byte) (ver Version, ok bool, retry bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, retry = false, false
		}
	}()
	in := wire.NewInput(packet, 0)
	if in.ReadInt8() != 1 {
		return ver, false, false
	}
	hs := Handshake{Version: Version{Major: in.ReadInt16(), Minor: in.ReadInt16(), Patch: in.ReadInt16()}}
	in.ReadInt8() // client type
	if hs.Version.atLeast(1, 7) && in.Remaining() > 0 {
		if in.ReadInt8() == typeByteArray {
			in.Skip(int(in.ReadInt32()))
		}
		if in.Remaining() > 0 {
			switch in.PeekInt8() {
			case typeNull:
				in.ReadInt8()
			case typeMap:
				in.ReadInt8()
				n := int(in.ReadInt32())
				in.ReadInt8() // map kind
				hs.Attributes = make(map[string]string, n)
				for i := 0; i < n; i++ {
					k := readString(in)
					hs.Attributes[k] = readString(in)
				}
			}
		}
	}
	if in.Remaining() > 0 {
		hs.Username = readString(in)
		hs.Password = readString(in)
	}
	node.mu.Lock()
	node.handshakes = append(node.handshakes, hs)
	node.mu.Unlock()

	out := wire.NewOutput(64)
	out.Reserve(wire.IntBytes)
	switch {
	case hs.Version != node.version:
		writeHandshakeFailure(out, node.version, "unsupported protocol version "+hs.Version.String(), statusFailed)
		retry = true
	case node.username != "" && (hs.Username != node.username || hs.Password != node.password):
		writeHandshakeFailure(out, node.version, "authentication failed", statusAuthFailed)
	default:
		out.WriteBool(true)
		if node.version.atLeast(1, 7) {
			bits := make([]byte, 8)
			for _, f := range node.features {
				bits[f/8] |= 1 << (f % 8)
			}
			out.WriteInt8(typeByteArray)
			out.WriteInt32(int32(len(bits)))
			out.WriteBytes(bits)
		}
		if node.version.atLeast(1, 4) {
			out.WriteInt8(typeUuid)
			writeUuid(out, node.id)
		}
		ok = true
	}
	out.PutInt32At(0, int32(out.Position()-wire.IntBytes))
	if _, err := conn.Write(out.Data()); err != nil {
		return ver, false, false
	}
	return node.version, ok, retry
}

func writeHandshakeFailure(out *wire.Output, ver Version, msg string, status int32) {
	out.WriteBool(false)
	out.WriteInt16(ver.Major)
	out.WriteInt16(ver.Minor)
	out.WriteInt16(ver.Patch)
	WriteString(out, msg)
	out.WriteInt32(status)
}

func (node *FakeNode) responseFrame(ver Version, id int64, reply Reply) []byte {
	out := wire.NewOutput(64 + len(reply.Body))
	out.Reserve(wire.IntBytes)
	out.WriteInt64(id)
	if ver.atLeast(1, 4) {
		var flags int16
		topVer := node.topVer.Swap(nil)
		if topVer != nil {
			flags |= 2
		}
		if reply.Status != 0 {
			flags |= 1
		}
		out.WriteInt16(flags)
		if topVer != nil {
			out.WriteInt64(topVer.Major)
			out.WriteInt32(topVer.Minor)
		}
		if reply.Status != 0 {
			out.WriteInt32(reply.Status)
			WriteString(out, reply.Message)
		}
	} else {
		out.WriteInt32(reply.Status)
		if reply.Status != 0 {
			WriteString(out, reply.Message)
		}
	}
	if reply.Status == 0 {
		out.WriteBytes(reply.Body)
	}
	out.PutInt32At(0, int32(out.Position()-wire.IntBytes))
	return out.Data()
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [wire.IntBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := int32(binary.LittleEndian.Uint32(hdr[:]))
	if size <= 0 {
		return nil, errors.New("invalid frame length")
	}
	packet := make([]byte, size)
	if _, err := io.ReadFull(r, packet); err != nil {
		return nil, err
	}
	return packet, nil
}

// WriteString writes a typed string value.
func WriteString(out *wire.Output, val string) {
	out.WriteInt8(typeString)
	out.WriteString(val)
}

func readString(in *wire.Input) string {
	if in.ReadInt8() == typeNull {
		return ""
	}
	return in.ReadString()
}

func writeUuid(out *wire.Output, id uuid.UUID) {
	out.WriteUInt64(binary.BigEndian.Uint64(id[:8]))
	out.WriteUInt64(binary.BigEndian.Uint64(id[8:]))
}
