package ignite

import (
	"encoding/binary"
	"fmt"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	errorFlag                   = 1
	affinityTopologyChangedFlag = 1 << 1
	notificationFlag            = 1 << 2
)

const (
	messageBufferSize = 128 * 1024
	writeBufferSize   = 16 * 1024
)

// buildRequest frames a request: int32 length, int16 op code, int64 request id, payload.
func buildRequest(id int64, opCode int16, writer func(output *wire.Output) error) ([]byte, error) {
	out := wire.NewOutput(64)
	out.Reserve(wire.IntBytes)
	out.WriteInt16(opCode)
	out.WriteInt64(id)
	if writer != nil {
		if err := writer(out); err != nil {
			return nil, err
		}
	}
	out.PutInt32At(0, int32(out.Position()-wire.IntBytes))
	return out.Data(), nil
}

// buildHandshake frames a handshake request, it has neither op code nor request id.
func buildHandshake(writer func(output *wire.Output)) []byte {
	out := wire.NewOutput(64)
	out.Reserve(wire.IntBytes)
	writer(out)
	out.PutInt32At(0, int32(out.Position()-wire.IntBytes))
	return out.Data()
}

// responseHeader is the common prefix of every response.
type responseHeader struct {
	id           int64
	flags        int16
	topVer       *AffinityTopologyVersion
	status       ErrorCode
	message      string
	bodyPosition int
}

func (h *responseHeader) err() error {
	if h.status == Success {
		return nil
	}
	return &OperationError{ClientError: ClientError{Message: h.message}, Code: h.status}
}

// parseResponseHeader decodes the header of a response packet. Since 1.4 the header carries flags,
// older servers send a bare status code.
func parseResponseHeader(packet []byte, pCtx *ProtocolContext) (hdr responseHeader, err error) {
	defer recoverMalformed(&err)
	in := wire.NewInput(packet, 0)
	hdr.id = in.ReadInt64()
	if pCtx.SupportsPartitionAwareness() {
		hdr.flags = in.ReadInt16()
		if hdr.flags&affinityTopologyChangedFlag != 0 {
			hdr.topVer = &AffinityTopologyVersion{Major: in.ReadInt64(), Minor: in.ReadInt32()}
		}
		if hdr.flags&errorFlag != 0 {
			hdr.status = ErrorCode(in.ReadInt32())
			hdr.message = readObjectString(in)
		}
	} else {
		hdr.status = ErrorCode(in.ReadInt32())
		if hdr.status != Success {
			hdr.message = readObjectString(in)
		}
	}
	hdr.bodyPosition = in.Position()
	return hdr, nil
}

// recoverMalformed turns a decoding panic into a returned error, it must be deferred directly.
func recoverMalformed(err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	switch e := rec.(type) {
	case *wire.UnderflowError:
		*err = newProtocolError(e, "malformed message")
	case *SerializationError:
		*err = e
	default:
		panic(rec)
	}
}

// packetAccumulator joins partial socket reads into complete length-prefixed packets.
type packetAccumulator struct {
	buf []byte
}

func newPacketAccumulator() *packetAccumulator {
	return &packetAccumulator{buf: make([]byte, 0, messageBufferSize)}
}

func (pa *packetAccumulator) append(data []byte) {
	pa.buf = append(pa.buf, data...)
}

// next returns the next complete packet without its length prefix, nil if more data is needed.
func (pa *packetAccumulator) next() ([]byte, error) {
	if len(pa.buf) < wire.IntBytes {
		return nil, nil
	}
	size := int(int32(binary.LittleEndian.Uint32(pa.buf)))
	if size < wire.ByteBytes {
		return nil, fmt.Errorf("invalid packet size %d", size)
	}
	if len(pa.buf)-wire.IntBytes < size {
		return nil, nil
	}
	packet := make([]byte, size)
	copy(packet, pa.buf[wire.IntBytes:wire.IntBytes+size])
	n := copy(pa.buf, pa.buf[wire.IntBytes+size:])
	pa.buf = pa.buf[:n]
	if n == 0 && cap(pa.buf) > 4*messageBufferSize {
		pa.buf = make([]byte, 0, messageBufferSize)
	}
	return packet, nil
}
