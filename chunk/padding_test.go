package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePaddingAlignsToBlockSize(t *testing.T) {
	for unpaddedLen := 0; unpaddedLen < 64; unpaddedLen++ {
		pad := computePadding(unpaddedLen, 16)
		total := unpaddedLen + pad + 1
		assert.Equal(t, 0, total%16, "unpaddedLen=%d pad=%d total=%d", unpaddedLen, pad, total)
	}
}

func TestAppendAndStripPaddingRoundTrip(t *testing.T) {
	body := []byte("hello, secure channel")
	pad := computePadding(len(body), 16)
	padded := appendPadding(body, pad)
	assert.Equal(t, 0, len(padded)%16)

	stripped, ok := stripPadding(padded)
	assert.True(t, ok)
	assert.Equal(t, body, stripped)
}

func TestStripPaddingRejectsCorruptTrailer(t *testing.T) {
	body := []byte("hello, secure channel")
	pad := computePadding(len(body), 16)
	padded := appendPadding(body, pad)
	padded[len(padded)-2] ^= 0xFF // corrupt one padding byte

	_, ok := stripPadding(padded)
	assert.False(t, ok)
}

func TestEffectiveIVVariesByChunkIndex(t *testing.T) {
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	iv0 := effectiveIV(iv, 0)
	iv1 := effectiveIV(iv, 1)
	assert.Equal(t, iv, iv0)
	assert.NotEqual(t, iv0, iv1)
	assert.Equal(t, len(iv), len(iv1))
}
