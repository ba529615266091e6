package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNegotiateUnboundedClientProposal checks that a client proposing
// zero (no limit) for message size and chunk count inherits the server's
// bounds, while buffer sizes take the pairwise minimum.
func TestNegotiateUnboundedClientProposal(t *testing.T) {
	client := HelloParams{
		ProtocolVersion:   0,
		ReceiveBufferSize: 65535,
		SendBufferSize:    65535,
		MaxMessageSize:    0,
		MaxChunkCount:     0,
	}
	server := AckParams{
		ReceiveBufferSize: 131072,
		SendBufferSize:    131072,
		MaxMessageSize:    1048576,
		MaxChunkCount:     16,
	}

	got := Negotiate(client, server)
	assert.EqualValues(t, 65535, got.SendBufferSizeClientToServer)
	assert.EqualValues(t, 65535, got.SendBufferSizeServerToClient)
	assert.EqualValues(t, 1048576, got.MaxMessageSize)
	assert.EqualValues(t, 16, got.MaxChunkCount)
}

// TestNegotiateAsymmetricBufferSizes pins each direction to its own pair
// of proposals: client→server is min(client send, server receive),
// server→client is min(server send, client receive). The four values are
// all distinct so a swapped field cannot pass.
func TestNegotiateAsymmetricBufferSizes(t *testing.T) {
	client := HelloParams{ReceiveBufferSize: 200000, SendBufferSize: 50000}
	server := AckParams{ReceiveBufferSize: 300000, SendBufferSize: 400000}

	got := Negotiate(client, server)
	assert.EqualValues(t, 50000, got.SendBufferSizeClientToServer)
	assert.EqualValues(t, 200000, got.SendBufferSizeServerToClient)
	assert.EqualValues(t, 50000, got.SendBufferFor(true))
	assert.EqualValues(t, 200000, got.SendBufferFor(false))
}

func TestNegotiateBothZeroIsUnbounded(t *testing.T) {
	got := Negotiate(HelloParams{}, AckParams{})
	assert.EqualValues(t, 0, got.MaxMessageSize)
	assert.EqualValues(t, 0, got.MaxChunkCount)
}

func TestHelloParamsEncodeDecodeRoundTrip(t *testing.T) {
	p := HelloParams{
		ProtocolVersion:   0,
		ReceiveBufferSize: 65536,
		SendBufferSize:    65536,
		MaxMessageSize:    1 << 20,
		MaxChunkCount:     16,
		EndpointURL:       "opc.tcp://localhost:4840",
	}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodeHelloParams(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestAckParamsEncodeDecodeRoundTrip(t *testing.T) {
	a := AckParams{ProtocolVersion: 0, ReceiveBufferSize: 131072, SendBufferSize: 131072, MaxMessageSize: 1048576, MaxChunkCount: 16}
	encoded, err := a.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAckParams(encoded)
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}
