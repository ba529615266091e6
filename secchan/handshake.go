package secchan

import (
	"context"
	"crypto/x509"

	"golang.org/x/sync/errgroup"

	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/eventbus"
	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/interfaces"
	"github.com/opcua-go/uasc/transport"
	"github.com/opcua-go/uasc/ua"
)

// NewServerChannel attaches a freshly accepted transport.Conn to a new
// server-role Channel and starts it awaiting the client's HEL. Callers
// are typically listener.Facade.
func NewServerChannel(ctx context.Context, g *errgroup.Group, cfg *Config, conn transport.Conn, dispatcher interfaces.Dispatcher, timers eventbus.TimerSource) *Channel {
	c := newChannel(ctx, g, ua.RoleServer, cfg, conn, dispatcher, timers)
	c.wireChannelID = nextWireChannelID()
	c.mailbox.Submit(func() {
		c.setState(StateTCPHandshake)
		c.scheduleOpenDeadline()
	})
	return c
}

// NewClientChannel dials nothing itself — conn must already be an
// established transport.Conn (listener.Facade.Connect owns dialing) — and
// drives the client side of the handshake: send HEL, await ACK, send OPN
// Issue, await OPN response. It blocks until the channel reaches Active or
// the open deadline elapses.
func NewClientChannel(ctx context.Context, g *errgroup.Group, cfg *Config, conn transport.Conn, dispatcher interfaces.Dispatcher, endpointURL string, policy PolicySpec, mode cryptoprovider.Mode, serverCert *x509.Certificate, timers eventbus.TimerSource) (*Channel, error) {
	c := newChannel(ctx, g, ua.RoleClient, cfg, conn, dispatcher, timers)
	c.endpointURL = endpointURL
	c.policy = policy.Policy
	c.mode = mode
	c.peerCert = serverCert

	done := make(chan error, 1)
	c.mailbox.Submit(func() {
		c.openDone = done
		c.setState(StateTCPHandshake)
		c.scheduleOpenDeadline()
		if err := c.sendHello(); err != nil {
			c.fail(ua.BadTcpNotEnoughResources, "failed to send HEL", err)
		}
	})

	if err := c.waitOpen(ctx, done); err != nil {
		return nil, err
	}
	return c, nil
}

// NewReverseClientChannel is NewClientChannel for a reverse connection:
// the server dialed us, so this side holds the accepted conn and waits
// for the server's RHE — which names the endpoint to open — before
// sending HEL. From the HEL exchange onward the handshake is identical.
func NewReverseClientChannel(ctx context.Context, g *errgroup.Group, cfg *Config, conn transport.Conn, dispatcher interfaces.Dispatcher, policy PolicySpec, mode cryptoprovider.Mode, serverCert *x509.Certificate, timers eventbus.TimerSource) (*Channel, error) {
	c := newChannel(ctx, g, ua.RoleClient, cfg, conn, dispatcher, timers)
	c.policy = policy.Policy
	c.mode = mode
	c.peerCert = serverCert
	c.awaitingReverse = true

	done := make(chan error, 1)
	c.mailbox.Submit(func() {
		c.openDone = done
		c.setState(StateTCPHandshake)
		c.scheduleOpenDeadline()
	})

	if err := c.waitOpen(ctx, done); err != nil {
		return nil, err
	}
	return c, nil
}

// NewReverseServerChannel dials out to a client endpoint as a server:
// conn must already be established toward the client's listening side.
// The channel sends RHE naming endpointURL, then proceeds exactly as an
// accepted server channel awaiting HEL.
func NewReverseServerChannel(ctx context.Context, g *errgroup.Group, cfg *Config, conn transport.Conn, dispatcher interfaces.Dispatcher, endpointURL string, timers eventbus.TimerSource) *Channel {
	c := newChannel(ctx, g, ua.RoleServer, cfg, conn, dispatcher, timers)
	c.wireChannelID = nextWireChannelID()
	c.endpointURL = endpointURL
	c.mailbox.Submit(func() {
		c.setState(StateTCPHandshake)
		c.scheduleOpenDeadline()
		if err := c.sendReverseHello(); err != nil {
			c.fail(ua.BadTcpNotEnoughResources, "failed to send RHE", err)
		}
	})
	return c
}

func (c *Channel) sendReverseHello() error {
	params := framing.HelloParams{
		ProtocolVersion:   0,
		ReceiveBufferSize: c.cfg.MaxChunkSizeRX,
		SendBufferSize:    c.cfg.MaxChunkSizeTX,
		MaxMessageSize:    c.cfg.MaxMessageSizeRX,
		MaxChunkCount:     c.cfg.MaxChunkCountRX,
		EndpointURL:       c.endpointURL,
	}
	body, err := params.Encode()
	if err != nil {
		return err
	}
	hdr := framing.Header{Type: framing.TypeReverseHello, Flag: framing.FlagFinal, TotalSize: uint32(framing.HeaderSize + len(body))}
	return c.writeFrame(hdr, body)
}

func (c *Channel) sendHello() error {
	c.helloParams = framing.HelloParams{
		ProtocolVersion:   0,
		ReceiveBufferSize: c.cfg.MaxChunkSizeRX,
		SendBufferSize:    c.cfg.MaxChunkSizeTX,
		MaxMessageSize:    c.cfg.MaxMessageSizeRX,
		MaxChunkCount:     c.cfg.MaxChunkCountRX,
		EndpointURL:       c.endpointURL,
	}
	body, err := c.helloParams.Encode()
	if err != nil {
		return err
	}
	hdr := framing.Header{Type: framing.TypeHello, Flag: framing.FlagFinal, TotalSize: uint32(framing.HeaderSize + len(body))}
	return c.writeFrame(hdr, body)
}

func (c *Channel) handleHello(body []byte) {
	if c.role != ua.RoleServer || c.state != StateTCPHandshake {
		c.fail(ua.BadTcpMessageTypeInvalid, "unexpected HEL", nil)
		return
	}
	client, err := framing.DecodeHelloParams(body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed HEL", err)
		return
	}
	c.helloParams = client

	ack := framing.AckParams{
		ProtocolVersion:   0,
		ReceiveBufferSize: c.cfg.MaxChunkSizeRX,
		SendBufferSize:    c.cfg.MaxChunkSizeTX,
		MaxMessageSize:    c.cfg.MaxMessageSizeRX,
		MaxChunkCount:     c.cfg.MaxChunkCountRX,
	}
	c.installLimits(framing.Negotiate(client, ack))

	body2, err := ack.Encode()
	if err != nil {
		c.fail(ua.BadEncodingLimitsExceeded, "failed to encode ACK", err)
		return
	}
	hdr := framing.Header{Type: framing.TypeAcknowledge, Flag: framing.FlagFinal, TotalSize: uint32(framing.HeaderSize + len(body2))}
	if err := c.writeFrame(hdr, body2); err != nil {
		c.fail(ua.BadTcpNotEnoughResources, "failed to send ACK", err)
		return
	}
	// state stays TcpHandshake until the first OPN arrives; the move to
	// OpenPending is implicit in handling that OPN.
}

func (c *Channel) handleAck(body []byte) {
	if c.role != ua.RoleClient || c.state != StateTCPHandshake {
		c.fail(ua.BadTcpMessageTypeInvalid, "unexpected ACK", nil)
		return
	}
	ack, err := framing.DecodeAckParams(body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed ACK", err)
		return
	}
	c.installLimits(framing.Negotiate(c.helloParams, ack))
	c.setState(StateOpenPending)

	if err := c.sendOpen(requestTypeIssue); err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to send OPN", err)
	}
}

func (c *Channel) handleError(body []byte) {
	code, reason := framing.DecodeErrorBody(body)
	c.fail(ua.StatusCode(code), "peer sent ERR: "+reason, nil)
}

// sendError best-efforts one detail-free ERR frame before tearing down;
// failure to send it is not itself escalated, and no reason text goes on
// the wire.
func (c *Channel) sendError(status ua.StatusCode) {
	body, err := framing.ErrorBody{Code: uint32(status)}.Encode()
	if err != nil {
		return
	}
	hdr := framing.Header{Type: framing.TypeError, Flag: framing.FlagFinal, TotalSize: uint32(framing.HeaderSize + len(body))}
	_ = c.writeFrame(hdr, body)
}
