package framing

import (
	"github.com/opcua-go/uasc/buffer"
)

// HelloParams is the body of a HEL (or RHE, framed identically) message:
// the proposing side's protocol version and buffer/message/chunk-count
// limits.
type HelloParams struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
	EndpointURL       string
}

// Encode serializes a HelloParams body (the bytes following the common
// header).
func (p HelloParams) Encode() ([]byte, error) {
	buf := buffer.New(20 + 4 + len(p.EndpointURL))
	for _, v := range []uint32{p.ProtocolVersion, p.ReceiveBufferSize, p.SendBufferSize, p.MaxMessageSize, p.MaxChunkCount} {
		if err := buf.WriteUint32(v); err != nil {
			return nil, err
		}
	}
	url := p.EndpointURL
	if err := buf.WriteString(&url); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

// DecodeHelloParams parses a HEL/RHE body.
func DecodeHelloParams(data []byte) (HelloParams, error) {
	var p HelloParams
	buf := buffer.Wrap(data)
	var err error
	if p.ProtocolVersion, err = buf.ReadUint32(); err != nil {
		return p, err
	}
	if p.ReceiveBufferSize, err = buf.ReadUint32(); err != nil {
		return p, err
	}
	if p.SendBufferSize, err = buf.ReadUint32(); err != nil {
		return p, err
	}
	if p.MaxMessageSize, err = buf.ReadUint32(); err != nil {
		return p, err
	}
	if p.MaxChunkCount, err = buf.ReadUint32(); err != nil {
		return p, err
	}
	url, err := buf.ReadString()
	if err != nil {
		return p, err
	}
	if url != nil {
		p.EndpointURL = *url
	}
	return p, nil
}

// AckParams is the body of an ACK message: the server's own limits, used
// together with the client's HelloParams to derive NegotiatedLimits.
type AckParams struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

// Encode serializes an ACK body.
func (a AckParams) Encode() ([]byte, error) {
	buf := buffer.New(20)
	for _, v := range []uint32{a.ProtocolVersion, a.ReceiveBufferSize, a.SendBufferSize, a.MaxMessageSize, a.MaxChunkCount} {
		if err := buf.WriteUint32(v); err != nil {
			return nil, err
		}
	}
	return buf.Written(), nil
}

// DecodeAckParams parses an ACK body.
func DecodeAckParams(data []byte) (AckParams, error) {
	var a AckParams
	buf := buffer.Wrap(data)
	var err error
	if a.ProtocolVersion, err = buf.ReadUint32(); err != nil {
		return a, err
	}
	if a.ReceiveBufferSize, err = buf.ReadUint32(); err != nil {
		return a, err
	}
	if a.SendBufferSize, err = buf.ReadUint32(); err != nil {
		return a, err
	}
	if a.MaxMessageSize, err = buf.ReadUint32(); err != nil {
		return a, err
	}
	if a.MaxChunkCount, err = buf.ReadUint32(); err != nil {
		return a, err
	}
	return a, nil
}

// NegotiatedLimits is the effective, per-direction bound both peers must
// honor after Hello/Ack. The buffer-size fields name fixed wire
// directions, not "this side": each endpoint picks the field matching its
// own role via SendBufferFor.
type NegotiatedLimits struct {
	SendBufferSizeClientToServer uint32 // bound on chunks the client sends
	SendBufferSizeServerToClient uint32 // bound on chunks the server sends
	MaxMessageSize               uint32
	MaxChunkCount                uint32
}

// SendBufferFor resolves the outbound chunk bound for one endpoint's own
// send direction.
func (l NegotiatedLimits) SendBufferFor(isClient bool) uint32 {
	if isClient {
		return l.SendBufferSizeClientToServer
	}
	return l.SendBufferSizeServerToClient
}

// effective combines two proposals: zero means "no limit
// proposed", so the non-zero side wins; the minimum wins when both
// propose a bound.
func effective(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// Negotiate combines the client's proposed HelloParams with the server's
// configured AckParams into the absolute NegotiatedLimits both sides must
// honor. The result does not depend on which
// side calls it — server and client both derive the same NegotiatedLimits
// from the same (client, server) pair; the server sends its own unmodified
// AckParams on the wire, and the client computes Negotiate itself upon
// receiving that ACK.
func Negotiate(client HelloParams, server AckParams) NegotiatedLimits {
	return NegotiatedLimits{
		SendBufferSizeClientToServer: effective(client.SendBufferSize, server.ReceiveBufferSize),
		SendBufferSizeServerToClient: effective(server.SendBufferSize, client.ReceiveBufferSize),
		MaxMessageSize:               effective(client.MaxMessageSize, server.MaxMessageSize),
		MaxChunkCount:                effective(client.MaxChunkCount, server.MaxChunkCount),
	}
}
