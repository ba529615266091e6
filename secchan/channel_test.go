package secchan

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/eventbus"
	"github.com/opcua-go/uasc/pki"
	"github.com/opcua-go/uasc/ua"
)

type identity struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

var (
	identOnce   sync.Once
	clientIdent identity
	srvIdent    identity
)

// testIdentities generates one RSA key pair per side, shared across tests
// to keep key generation off every test's critical path.
func testIdentities(t *testing.T) (client, server identity) {
	t.Helper()
	identOnce.Do(func() {
		clientIdent = newIdentity("client")
		srvIdent = newIdentity("server")
	})
	return clientIdent, srvIdent
}

func newIdentity(cn string) identity {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return identity{cert: cert, key: key}
}

type received struct {
	typeID buffer.NodeId
	body   []byte
	handle uint32
}

type reqFailure struct {
	handle uint32
	status ua.StatusCode
}

// recordingDispatcher collects every service-layer callback on buffered
// channels so tests can await them with deadlines.
type recordingDispatcher struct {
	opened   chan ua.ChannelID
	receives chan received
	closed   chan ua.StatusCode
	failures chan reqFailure
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{
		opened:   make(chan ua.ChannelID, 16),
		receives: make(chan received, 16),
		closed:   make(chan ua.StatusCode, 16),
		failures: make(chan reqFailure, 16),
	}
}

func (d *recordingDispatcher) OnOpen(id ua.ChannelID) { d.opened <- id }
func (d *recordingDispatcher) OnReceive(id ua.ChannelID, typeID buffer.NodeId, body []byte, handle uint32) {
	d.receives <- received{typeID: typeID, body: body, handle: handle}
}
func (d *recordingDispatcher) OnClose(id ua.ChannelID, status ua.StatusCode) { d.closed <- status }
func (d *recordingDispatcher) OnRequestFailure(id ua.ChannelID, handle uint32, status ua.StatusCode) {
	d.failures <- reqFailure{handle: handle, status: status}
}

// echoDispatcher answers every delivered message with its own body,
// echoing the request handle the way a real service layer answers a
// request.
type echoDispatcher struct {
	*recordingDispatcher
	mu sync.Mutex
	ch *Channel
}

func newEchoDispatcher() *echoDispatcher {
	return &echoDispatcher{recordingDispatcher: newRecordingDispatcher()}
}

func (d *echoDispatcher) setChannel(ch *Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ch = ch
}

func (d *echoDispatcher) OnReceive(id ua.ChannelID, typeID buffer.NodeId, body []byte, handle uint32) {
	d.mu.Lock()
	ch := d.ch
	d.mu.Unlock()
	if ch != nil {
		_ = ch.Send(typeID, body, handle, 0)
	}
}

type pairOption func(clientCfg, serverCfg *Config)

// startPair stands up a connected client/server channel pair over an
// in-memory pipe under the Basic256Sha256 policy and returns them once
// the client side is Active.
func startPair(t *testing.T, timers eventbus.TimerSource, srvDisp *echoDispatcher, cliDisp *recordingDispatcher, opts ...pairOption) (*Channel, *Channel, func()) {
	t.Helper()
	cliIdent, serverIdent := testIdentities(t)

	policy := cryptoprovider.PolicyBasic256Sha256
	mode := cryptoprovider.ModeSignAndEncrypt

	serverCfg := NewConfig(
		WithIdentity(serverIdent.cert, serverIdent.key),
		WithTrustedPKI(pki.Permissive{}),
		WithPolicy(policy, mode),
	)
	clientCfg := NewConfig(
		WithIdentity(cliIdent.cert, cliIdent.key),
		WithTrustedPKI(pki.Permissive{}),
		WithPolicy(policy, mode),
	)
	for _, opt := range opts {
		opt(clientCfg, serverCfg)
	}

	clientConn, serverConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	srv := NewServerChannel(gctx, g, serverCfg, serverConn, srvDisp, timers)
	srvDisp.setChannel(srv)

	cli, err := NewClientChannel(gctx, g, clientCfg, clientConn, cliDisp,
		"opc.tcp://localhost:4840", PolicySpec{Policy: policy, AllowedModes: []cryptoprovider.Mode{mode}},
		mode, serverIdent.cert, timers)
	require.NoError(t, err)
	require.Equal(t, StateActive, cli.State())

	cleanup := func() {
		cancel()
		_ = g.Wait()
	}
	return cli, srv, cleanup
}

func awaitState(t *testing.T, ch *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.State() == want },
		5*time.Second, 10*time.Millisecond, "channel never reached %s", want.String())
}

func TestOpenSendEchoClose(t *testing.T) {
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, nil, srvDisp, cliDisp)
	defer cleanup()

	awaitState(t, srv, StateActive)

	// Both sides announced Active to their service layers.
	select {
	case <-cliDisp.opened:
	case <-time.After(5 * time.Second):
		t.Fatal("client OnOpen never fired")
	}
	select {
	case <-srvDisp.opened:
	case <-time.After(5 * time.Second):
		t.Fatal("server OnOpen never fired")
	}

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	payload := []byte("read the temperature of boiler 7")
	require.NoError(t, cli.Send(typeID, payload, 77, 30*time.Second))

	select {
	case got := <-cliDisp.receives:
		assert.Equal(t, typeID, got.typeID)
		assert.Equal(t, payload, got.body)
		assert.Equal(t, uint32(77), got.handle)
	case <-time.After(5 * time.Second):
		t.Fatal("echo response never arrived")
	}

	cli.Close()
	awaitState(t, cli, StateClosed)
	awaitState(t, srv, StateClosed)

	select {
	case status := <-srvDisp.closed:
		assert.Equal(t, ua.Good, status)
	case <-time.After(5 * time.Second):
		t.Fatal("server OnClose never fired")
	}

	// A channel never revives: sends after close fail locally.
	err := cli.Send(typeID, payload, 78, time.Second)
	require.Error(t, err)
}

func TestMultiChunkMessageRoundTrip(t *testing.T) {
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, nil, srvDisp, cliDisp, func(clientCfg, serverCfg *Config) {
		// Small chunks force the 200KB body below across many chunks.
		clientCfg.MaxChunkSizeRX, clientCfg.MaxChunkSizeTX = 8192, 8192
		serverCfg.MaxChunkSizeRX, serverCfg.MaxChunkSizeTX = 8192, 8192
	})
	defer cleanup()
	awaitState(t, srv, StateActive)

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	payload := make([]byte, 200*1024)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	require.NoError(t, cli.Send(typeID, payload, 5, 30*time.Second))

	select {
	case got := <-cliDisp.receives:
		assert.Equal(t, payload, got.body)
		assert.Equal(t, uint32(5), got.handle)
	case <-time.After(10 * time.Second):
		t.Fatal("multi-chunk echo never arrived")
	}
}

func TestSendRejectsOverChunkCountBeforeEmitting(t *testing.T) {
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, nil, srvDisp, cliDisp, func(clientCfg, serverCfg *Config) {
		clientCfg.MaxChunkSizeRX, clientCfg.MaxChunkSizeTX = 8192, 8192
		serverCfg.MaxChunkSizeRX, serverCfg.MaxChunkSizeTX = 8192, 8192
		clientCfg.MaxChunkCountRX, serverCfg.MaxChunkCountRX = 2, 2
	})
	defer cleanup()
	awaitState(t, srv, StateActive)

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	payload := make([]byte, 200*1024) // far more than two 8KB chunks can carry
	err := cli.Send(typeID, payload, 4, 0)
	require.Error(t, err)
	var ce *ua.ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ua.BadEncodingLimitsExceeded, ce.Code)
	assert.False(t, ce.Fatal)

	// The refusal is local: the channel is still usable.
	assert.Equal(t, StateActive, cli.State())
	require.NoError(t, cli.Send(typeID, []byte("small enough"), 5, 0))
	select {
	case got := <-cliDisp.receives:
		assert.Equal(t, []byte("small enough"), got.body)
	case <-time.After(5 * time.Second):
		t.Fatal("post-refusal echo never arrived")
	}
}

func TestSendRejectsOversizeMessageBeforeEmitting(t *testing.T) {
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, nil, srvDisp, cliDisp, func(clientCfg, serverCfg *Config) {
		clientCfg.MaxMessageSizeRX, serverCfg.MaxMessageSizeRX = 64*1024, 64*1024
	})
	defer cleanup()
	awaitState(t, srv, StateActive)

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	err := cli.Send(typeID, make([]byte, 128*1024), 4, 0)
	require.Error(t, err)
	var ce *ua.ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ua.BadTcpMessageTooLarge, ce.Code)
	assert.False(t, ce.Fatal)
	assert.Equal(t, StateActive, cli.State())
}

// TestAsymmetricBufferSizesChunkAgainstOwnDirection negotiates different
// bounds per direction: the client may send at most 8KB chunks while the
// server may send 64KB ones. A client chunking against the wrong
// direction's bound would emit chunks the server's inbound size check
// rejects, killing the channel instead of echoing.
func TestAsymmetricBufferSizesChunkAgainstOwnDirection(t *testing.T) {
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, nil, srvDisp, cliDisp, func(clientCfg, serverCfg *Config) {
		clientCfg.MaxChunkSizeRX, clientCfg.MaxChunkSizeTX = 65536, 8192
		serverCfg.MaxChunkSizeRX, serverCfg.MaxChunkSizeTX = 8192, 65536
	})
	defer cleanup()
	awaitState(t, srv, StateActive)

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	payload := make([]byte, 100*1024)
	for i := range payload {
		payload[i] = byte(i * 17)
	}
	require.NoError(t, cli.Send(typeID, payload, 6, 0))

	select {
	case got := <-cliDisp.receives:
		assert.Equal(t, payload, got.body)
	case <-time.After(10 * time.Second):
		t.Fatal("asymmetric-direction echo never arrived")
	}
	assert.Equal(t, StateActive, cli.State())
}

func TestRenewRolloverKeepsChannelUp(t *testing.T) {
	timers := eventbus.NewManualTimerSource(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, timers, srvDisp, cliDisp, func(clientCfg, serverCfg *Config) {
		clientCfg.RequestedLifetimeMin, clientCfg.RequestedLifetimeMax = time.Hour, time.Hour
		serverCfg.RequestedLifetimeMin, serverCfg.RequestedLifetimeMax = time.Hour, time.Hour
	})
	defer cleanup()
	awaitState(t, srv, StateActive)

	// Pre-renew traffic proves the first token works.
	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	require.NoError(t, cli.Send(typeID, []byte("before renew"), 1, 0))
	select {
	case <-cliDisp.receives:
	case <-time.After(5 * time.Second):
		t.Fatal("pre-renew echo never arrived")
	}

	// 75% of the one-hour lifetime: the client initiates Renew.
	timers.Advance(46 * time.Minute)
	awaitState(t, cli, StateRenewPending)

	// Renew handshake completes in the background; traffic under the new
	// token retires the old one and settles both sides back to Active.
	require.Eventually(t, func() bool {
		if err := cli.Send(typeID, []byte("after renew"), 2, 0); err != nil {
			return false
		}
		select {
		case <-cliDisp.receives:
			return true
		case <-time.After(time.Second):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond, "post-renew echo never arrived")

	awaitState(t, cli, StateActive)
	awaitState(t, srv, StateActive)
}

func TestOpenDeadlineTearsDownSilentPeer(t *testing.T) {
	timers := eventbus.NewManualTimerSource(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	srvDisp := newEchoDispatcher()

	serverIdent := newIdentity("deadline-server")
	cfg := NewConfig(
		WithIdentity(serverIdent.cert, serverIdent.key),
		WithTrustedPKI(pki.Permissive{}),
		WithPolicy(cryptoprovider.PolicyBasic256Sha256, cryptoprovider.ModeSignAndEncrypt),
	)

	_, serverConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	srv := NewServerChannel(gctx, g, cfg, serverConn, srvDisp, timers)

	// The peer never sends HEL. Advance until the armed open deadline
	// fires; the first Advance may race timer creation, so keep nudging.
	require.Eventually(t, func() bool {
		timers.Advance(11 * time.Second)
		return srv.State() == StateClosed
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case status := <-srvDisp.closed:
		assert.Equal(t, ua.BadTimeout, status)
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose never fired for open deadline")
	}

	cancel()
	_ = g.Wait()
}

func TestPendingRequestTimeoutIsLocal(t *testing.T) {
	timers := eventbus.NewManualTimerSource(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	// The server dispatcher records but never echoes, so the client's
	// pending request can only resolve by timeout.
	srvDisp := newEchoDispatcher()
	cliDisp := newRecordingDispatcher()
	cli, srv, cleanup := startPair(t, timers, srvDisp, cliDisp)
	defer cleanup()
	awaitState(t, srv, StateActive)
	srvDisp.setChannel(nil) // drop instead of echoing

	typeID := buffer.NodeId{NamespaceIndex: 0, Identifier: 631}
	require.NoError(t, cli.Send(typeID, []byte("doomed"), 9, 30*time.Second))

	require.Eventually(t, func() bool {
		timers.Advance(31 * time.Second)
		select {
		case f := <-cliDisp.failures:
			assert.Equal(t, uint32(9), f.handle)
			assert.Equal(t, ua.BadTimeout, f.status)
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond, "pending timeout never reported")

	// The channel itself survives a per-request timeout.
	assert.Equal(t, StateActive, cli.State())
}
