package framing

import "testing"

// Fuzz targets cover the three decoders that face raw peer bytes before
// any authentication: a panic in any of them is a remote crash.

func FuzzDecodeHeader(f *testing.F) {
	f.Add([]byte("MSGF\x10\x00\x00\x00"))
	f.Add([]byte("HELF\x20\x00\x00\x00"))
	f.Add([]byte("XXXZ\xff\xff\xff\xff"))
	f.Fuzz(func(t *testing.T, data []byte) {
		hdr, err := DecodeHeader(data)
		if err != nil {
			return
		}
		if _, err := hdr.Encode(); err != nil {
			t.Fatalf("decoded header failed to re-encode: %v", err)
		}
	})
}

func FuzzDecodeHelloParams(f *testing.F) {
	seed, _ := HelloParams{
		ReceiveBufferSize: 65535,
		SendBufferSize:    65535,
		EndpointURL:       "opc.tcp://localhost:4840",
	}.Encode()
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := DecodeHelloParams(data)
		if err != nil {
			return
		}
		if _, err := p.Encode(); err != nil {
			t.Fatalf("decoded hello failed to re-encode: %v", err)
		}
	})
}

func FuzzDecodeErrorBody(f *testing.F) {
	seed, _ := ErrorBody{Code: 0x80560000, Reason: "closed"}.Encode()
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{1, 2, 3})
	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic; malformed input degrades to (0, "").
		DecodeErrorBody(data)
	})
}
