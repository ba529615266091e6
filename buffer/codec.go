package buffer

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrNegativeLength is returned when a length-prefixed field decodes to a
// value below the OPC UA null sentinel (-1) — a malformed or hostile frame.
var ErrNegativeLength = errors.New("buffer: invalid negative length prefix")

// All scalar fields are little-endian on the wire.

func (b *Buffer) WriteUint16(v uint16) error {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return b.WriteBytes(tmp[:])
}

func (b *Buffer) WriteUint32(v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return b.WriteBytes(tmp[:])
}

func (b *Buffer) WriteUint64(v uint64) error {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return b.WriteBytes(tmp[:])
}

func (b *Buffer) WriteInt32(v int32) error { return b.WriteUint32(uint32(v)) }

func (b *Buffer) WriteFloat64(v float64) error {
	return b.WriteUint64(math.Float64bits(v))
}

func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// WriteString writes a length-prefixed (i32 length, -1 for null) UTF-8
// string.
func (b *Buffer) WriteString(s *string) error {
	if s == nil {
		return b.WriteInt32(-1)
	}
	if err := b.WriteInt32(int32(len(*s))); err != nil {
		return err
	}
	return b.WriteBytes([]byte(*s))
}

// ReadString reads a length-prefixed string; a -1 length decodes to nil.
func (b *Buffer) ReadString() (*string, error) {
	data, err := b.readByteStringRaw()
	if err != nil || data == nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// WriteByteString writes a length-prefixed opaque byte string, identical
// framing to WriteString.
func (b *Buffer) WriteByteString(p []byte) error {
	if p == nil {
		return b.WriteInt32(-1)
	}
	if err := b.WriteInt32(int32(len(p))); err != nil {
		return err
	}
	return b.WriteBytes(p)
}

func (b *Buffer) ReadByteString() ([]byte, error) {
	return b.readByteStringRaw()
}

func (b *Buffer) readByteStringRaw() ([]byte, error) {
	n, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, ErrNegativeLength
	}
	return b.ReadBytes(int(n))
}
