package secret

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// ErrDestroyed is returned when a Buffer is borrowed or copied after Destroy
// has already run.
var ErrDestroyed = errors.New("secret: buffer already destroyed")

// Buffer owns a slice of keying material and guarantees it is zeroed
// exactly once, on Destroy. It is not safe for concurrent Borrow calls
// against the same Buffer: a borrow is exclusive for the duration of one
// primitive call, which the caller (token/chunk) already serializes on
// its single-mailbox channel goroutine.
type Buffer struct {
	data  []byte
	wiped bool
}

// New takes ownership of data, copying it so the caller's slice can be
// independently reused or wiped.
func New(data []byte) *Buffer {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Buffer{data: owned}
}

// Len reports the size of the owned material.
func (b *Buffer) Len() int { return len(b.data) }

// Borrow invokes fn with the owned bytes for the duration of the call only;
// fn must not retain the slice past return. This is the sole sanctioned
// access path — there is no exported accessor that returns the slice
// itself, by design.
func (b *Buffer) Borrow(fn func(data []byte) error) error {
	if b.wiped {
		return ErrDestroyed
	}
	return fn(b.data)
}

// Destroy zeroes the owned bytes using a self-XOR the compiler cannot
// optimize away, then marks the Buffer unusable. Safe to call more than
// once.
func (b *Buffer) Destroy() {
	if b.wiped {
		return
	}
	subtle.XORBytes(b.data, b.data, b.data)
	runtime.KeepAlive(b.data)
	b.wiped = true
}

// Destroyed reports whether Destroy has already run.
func (b *Buffer) Destroyed() bool { return b.wiped }
