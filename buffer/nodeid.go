package buffer

import "fmt"

// NodeId identifies the service type (the request/response body's encoding
// id) in a namespace/identifier pair. Only the numeric encodings are
// implemented — string, GUID and opaque NodeIds belong to the application
// type system the secure-channel layer never needs to construct, only
// forward as opaque bytes once the request header has been peeled off.
type NodeId struct {
	NamespaceIndex uint16
	Identifier     uint32
}

// Encoding-byte values for the numeric NodeId variants (OPC UA binary
// encoding, part 6 §5.2.2.9). Two-byte form is used when namespace 0 and the
// identifier fits in a byte; four-byte form when namespace fits in a byte
// and identifier in uint16; numeric form otherwise.
const (
	nodeIDTwoByte   = 0x00
	nodeIDFourByte  = 0x01
	nodeIDNumeric   = 0x02
	nodeIDMaxTwoByteID  = 0xFF
	nodeIDMaxFourByteNS = 0xFF
	nodeIDMaxFourByteID = 0xFFFF
)

// WriteNodeId encodes a numeric NodeId using the most compact applicable
// encoding, mirroring the reference encoder's selection rule.
func (b *Buffer) WriteNodeId(id NodeId) error {
	switch {
	case id.NamespaceIndex == 0 && id.Identifier <= nodeIDMaxTwoByteID:
		if err := b.WriteByte(nodeIDTwoByte); err != nil {
			return err
		}
		return b.WriteByte(byte(id.Identifier))
	case id.NamespaceIndex <= nodeIDMaxFourByteNS && id.Identifier <= nodeIDMaxFourByteID:
		if err := b.WriteByte(nodeIDFourByte); err != nil {
			return err
		}
		if err := b.WriteByte(byte(id.NamespaceIndex)); err != nil {
			return err
		}
		return b.WriteUint16(uint16(id.Identifier))
	default:
		if err := b.WriteByte(nodeIDNumeric); err != nil {
			return err
		}
		if err := b.WriteUint16(id.NamespaceIndex); err != nil {
			return err
		}
		return b.WriteUint32(id.Identifier)
	}
}

// ReadNodeId decodes a numeric NodeId, dispatching on the encoding byte.
func (b *Buffer) ReadNodeId() (NodeId, error) {
	tag, err := b.ReadByte()
	if err != nil {
		return NodeId{}, err
	}
	switch tag {
	case nodeIDTwoByte:
		v, err := b.ReadByte()
		if err != nil {
			return NodeId{}, err
		}
		return NodeId{NamespaceIndex: 0, Identifier: uint32(v)}, nil
	case nodeIDFourByte:
		ns, err := b.ReadByte()
		if err != nil {
			return NodeId{}, err
		}
		id, err := b.ReadUint16()
		if err != nil {
			return NodeId{}, err
		}
		return NodeId{NamespaceIndex: uint16(ns), Identifier: uint32(id)}, nil
	case nodeIDNumeric:
		ns, err := b.ReadUint16()
		if err != nil {
			return NodeId{}, err
		}
		id, err := b.ReadUint32()
		if err != nil {
			return NodeId{}, err
		}
		return NodeId{NamespaceIndex: ns, Identifier: id}, nil
	default:
		return NodeId{}, fmt.Errorf("buffer: unsupported NodeId encoding byte 0x%02x", tag)
	}
}

func (id NodeId) String() string {
	return fmt.Sprintf("ns=%d;i=%d", id.NamespaceIndex, id.Identifier)
}
