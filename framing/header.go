package framing

import (
	"fmt"

	"github.com/opcua-go/uasc/buffer"
)

// MessageType is the 3-byte ASCII type tag of the common header.
type MessageType string

const (
	TypeHello        MessageType = "HEL"
	TypeAcknowledge  MessageType = "ACK"
	TypeError        MessageType = "ERR"
	TypeReverseHello MessageType = "RHE"
	TypeOpen         MessageType = "OPN"
	TypeMessage      MessageType = "MSG"
	TypeClose        MessageType = "CLO"
)

// FinalFlag is the fourth byte of the common header, naming a chunk's
// position within its logical message.
type FinalFlag byte

const (
	FlagIntermediate FinalFlag = 'C'
	FlagFinal        FinalFlag = 'F'
	FlagAbort        FinalFlag = 'A'
)

// HeaderSize is the fixed common-header length every chunk carries.
const HeaderSize = 8

// Header is the common 8-byte chunk header: 3-byte ASCII
// type, 1-byte final flag, 4-byte little-endian total chunk size
// including this header.
type Header struct {
	Type      MessageType
	Flag      FinalFlag
	TotalSize uint32
}

// Encode writes the header's 8 bytes.
func (h Header) Encode() ([]byte, error) {
	if len(h.Type) != 3 {
		return nil, fmt.Errorf("framing: message type %q must be 3 ASCII characters", h.Type)
	}
	buf := buffer.New(HeaderSize)
	if err := buf.WriteBytes([]byte(h.Type)); err != nil {
		return nil, err
	}
	if err := buf.WriteByte(byte(h.Flag)); err != nil {
		return nil, err
	}
	if err := buf.WriteUint32(h.TotalSize); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

// DecodeHeader parses the 8-byte common header from the front of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("framing: short header: need %d bytes, have %d", HeaderSize, len(data))
	}
	buf := buffer.Wrap(data[:HeaderSize])
	typeBytes, err := buf.ReadBytes(3)
	if err != nil {
		return Header{}, err
	}
	flag, err := buf.ReadByte()
	if err != nil {
		return Header{}, err
	}
	size, err := buf.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	return Header{Type: MessageType(typeBytes), Flag: FinalFlag(flag), TotalSize: size}, nil
}
