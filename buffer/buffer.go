package buffer

import (
	"errors"
)

// ErrOverflow is returned when a write would exceed the buffer's fixed
// capacity, or a read would run past the end of the written region.
var ErrOverflow = errors.New("buffer: capacity exceeded")

// Buffer is a fixed-capacity byte buffer with independent read and write
// cursors. It backs every chunk plaintext/ciphertext region in chunk and
// framing; callers size it once to the negotiated chunk size and reuse it
// across chunks to keep the hot path allocation-free.
type Buffer struct {
	data  []byte
	wpos  int
	rpos  int
	limit int // logical end of written data; may be < cap(data)
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Wrap builds a Buffer over an existing slice for reading, with the write
// cursor parked at the end (read-only use, e.g. decoding a received chunk).
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, wpos: len(data), limit: len(data)}
}

// Reset clears both cursors so the buffer can be reused for a new chunk.
func (b *Buffer) Reset() {
	b.wpos = 0
	b.rpos = 0
	b.limit = 0
}

// Len returns the number of unread bytes remaining.
func (b *Buffer) Len() int { return b.limit - b.rpos }

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Written returns the bytes written so far (from offset 0 to the write
// cursor), useful for handing a completed chunk to the transport.
func (b *Buffer) Written() []byte { return b.data[:b.wpos] }

// Remaining returns the unread tail of the buffer.
func (b *Buffer) Remaining() []byte { return b.data[b.rpos:b.limit] }

func (b *Buffer) WriteBytes(p []byte) error {
	if b.wpos+len(p) > cap(b.data) {
		return ErrOverflow
	}
	n := copy(b.data[b.wpos:cap(b.data)], p)
	b.wpos += n
	if b.wpos > b.limit {
		b.limit = b.wpos
	}
	return nil
}

func (b *Buffer) WriteByte(c byte) error {
	if b.wpos+1 > cap(b.data) {
		return ErrOverflow
	}
	b.data[b.wpos] = c
	b.wpos++
	if b.wpos > b.limit {
		b.limit = b.wpos
	}
	return nil
}

func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.rpos+n > b.limit {
		return nil, ErrOverflow
	}
	out := b.data[b.rpos : b.rpos+n]
	b.rpos += n
	return out, nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.rpos+1 > b.limit {
		return 0, ErrOverflow
	}
	c := b.data[b.rpos]
	b.rpos++
	return c, nil
}

// PeekAt reads n bytes starting at absolute offset off without moving the
// read cursor — used by the framing decoder to inspect the common header
// before deciding how much of the chunk to buffer.
func (b *Buffer) PeekAt(off, n int) ([]byte, error) {
	if off+n > b.limit {
		return nil, ErrOverflow
	}
	return b.data[off : off+n], nil
}
