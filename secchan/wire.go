package secchan

import (
	"fmt"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
)

// Numeric type ids for the OPN/CLO service bodies this package builds and
// parses itself (OPC UA Part 6 binary encoding ids). Every other MSG body
// is opaque to secchan — only its own handshake and teardown messages are
// decoded here; ordinary application payloads are forwarded to the service
// layer untouched.
var (
	TypeIDOpenSecureChannelRequest  = buffer.NodeId{NamespaceIndex: 0, Identifier: 446}
	TypeIDOpenSecureChannelResponse = buffer.NodeId{NamespaceIndex: 0, Identifier: 449}
	TypeIDCloseSecureChannelRequest = buffer.NodeId{NamespaceIndex: 0, Identifier: 452}
)

// securityTokenRequestType mirrors the OPC UA enumeration of the same name
// carried in an OpenSecureChannelRequest.
type securityTokenRequestType uint32

const (
	requestTypeIssue securityTokenRequestType = 0
	requestTypeRenew securityTokenRequestType = 1
)

// openRequestBody is OpenSecureChannelRequest, trimmed to the fields the
// secure-channel layer itself consumes. A production stack also carries a
// full RequestHeader ahead of these fields; encoding it is a built-in-type
// concern this module treats as an external serialization primitive, so it is
// omitted here and the wire-level request_id alone serves as the correlation
// key (see Channel.Send).
type openRequestBody struct {
	ClientProtocolVersion uint32
	RequestType           securityTokenRequestType
	SecurityMode          cryptoprovider.Mode
	ClientNonce           []byte
	RequestedLifetimeMs   uint32
}

func (b openRequestBody) encode() ([]byte, error) {
	buf := buffer.New(4 + 4 + 4 + 4 + len(b.ClientNonce) + 4)
	if err := buf.WriteUint32(b.ClientProtocolVersion); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(uint32(b.RequestType)); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(uint32(securityModeWire(b.SecurityMode))); err != nil {
		return nil, err
	}
	if err := buf.WriteByteString(b.ClientNonce); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(b.RequestedLifetimeMs); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

func decodeOpenRequestBody(data []byte) (openRequestBody, error) {
	var b openRequestBody
	// The body travels behind its type NodeId (see encodeTypedBody).
	_, payload, err := decodeTypedBody(data)
	if err != nil {
		return b, err
	}
	buf := buffer.Wrap(payload)

	v, err := buf.ReadUint32()
	if err != nil {
		return b, err
	}
	b.ClientProtocolVersion = v

	rt, err := buf.ReadUint32()
	if err != nil {
		return b, err
	}
	b.RequestType = securityTokenRequestType(rt)

	mode, err := buf.ReadUint32()
	if err != nil {
		return b, err
	}
	b.SecurityMode = securityModeFromWire(mode)

	nonce, err := buf.ReadByteString()
	if err != nil {
		return b, err
	}
	b.ClientNonce = nonce

	lifetime, err := buf.ReadUint32()
	if err != nil {
		return b, err
	}
	b.RequestedLifetimeMs = lifetime

	return b, nil
}

// openResponseBody is OpenSecureChannelResponse, trimmed the same way as
// openRequestBody.
type openResponseBody struct {
	ServerProtocolVersion uint32
	TokenID               uint32
	CreatedAtUnixMs       uint64
	RevisedLifetimeMs     uint32
	ServerNonce           []byte
}

func (b openResponseBody) encode() ([]byte, error) {
	buf := buffer.New(4 + 4 + 8 + 4 + 4 + len(b.ServerNonce))
	if err := buf.WriteUint32(b.ServerProtocolVersion); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(b.TokenID); err != nil {
		return nil, err
	}
	if err := buf.WriteUint64(b.CreatedAtUnixMs); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(b.RevisedLifetimeMs); err != nil {
		return nil, err
	}
	if err := buf.WriteByteString(b.ServerNonce); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

func decodeOpenResponseBody(data []byte) (openResponseBody, error) {
	var b openResponseBody
	// The body travels behind its type NodeId (see encodeTypedBody).
	_, payload, err := decodeTypedBody(data)
	if err != nil {
		return b, err
	}
	buf := buffer.Wrap(payload)

	if b.ServerProtocolVersion, err = buf.ReadUint32(); err != nil {
		return b, err
	}
	if b.TokenID, err = buf.ReadUint32(); err != nil {
		return b, err
	}
	if b.CreatedAtUnixMs, err = buf.ReadUint64(); err != nil {
		return b, err
	}
	if b.RevisedLifetimeMs, err = buf.ReadUint32(); err != nil {
		return b, err
	}
	nonce, err := buf.ReadByteString()
	if err != nil {
		return b, err
	}
	b.ServerNonce = nonce
	return b, nil
}

// securityModeWire/securityModeFromWire map cryptoprovider.Mode to/from the
// OPC UA MessageSecurityMode enumeration (1=None, 2=Sign, 3=SignAndEncrypt;
// 0 is the reserved Invalid value).
func securityModeWire(m cryptoprovider.Mode) uint32 {
	switch m {
	case cryptoprovider.ModeSign:
		return 2
	case cryptoprovider.ModeSignAndEncrypt:
		return 3
	default:
		return 1
	}
}

func securityModeFromWire(v uint32) cryptoprovider.Mode {
	switch v {
	case 2:
		return cryptoprovider.ModeSign
	case 3:
		return cryptoprovider.ModeSignAndEncrypt
	default:
		return cryptoprovider.ModeNone
	}
}

func encodeTypedBody(id buffer.NodeId, body []byte) ([]byte, error) {
	buf := buffer.New(4 + len(body))
	if err := buf.WriteNodeId(id); err != nil {
		return nil, fmt.Errorf("secchan: encode type id: %w", err)
	}
	if err := buf.WriteBytes(body); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

func decodeTypedBody(data []byte) (buffer.NodeId, []byte, error) {
	buf := buffer.Wrap(data)
	id, err := buf.ReadNodeId()
	if err != nil {
		return buffer.NodeId{}, nil, fmt.Errorf("secchan: decode type id: %w", err)
	}
	rest, err := buf.ReadBytes(buf.Len())
	if err != nil {
		return buffer.NodeId{}, nil, err
	}
	return id, rest, nil
}
