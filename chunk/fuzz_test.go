package chunk

import (
	"testing"

	"github.com/opcua-go/uasc/cryptoprovider"
)

// The decoders below face peer-controlled bytes before any signature has
// been checked, so none of them may panic on arbitrary input.

func FuzzPeekAsymmetricHeader(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff})
	f.Add([]byte{1, 0, 0, 0, 4, 0, 0, 0, 'u', 'r', 'i', '!', 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _ = PeekAsymmetricHeader(data)
	})
}

func FuzzDecodeSymmetricUnprotected(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 'h', 'i'})
	f.Fuzz(func(t *testing.T, data []byte) {
		provider := cryptoprovider.NewDefaultProvider()
		commonHeader := []byte("MSGF\x00\x00\x00\x00")
		_, _ = DecodeSymmetric(provider, cryptoprovider.PolicyNone, cryptoprovider.ModeNone, commonHeader, data, nil, nil, nil, 0)
	})
}

func FuzzStripPadding(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{'a', 'b', 2, 2, 2})
	f.Add([]byte{255})
	f.Fuzz(func(t *testing.T, data []byte) {
		stripPadding(data)
	})
}
