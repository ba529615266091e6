package secchan

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/eventbus"
	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/interfaces"
	"github.com/opcua-go/uasc/token"
	"github.com/opcua-go/uasc/transport"
	"github.com/opcua-go/uasc/ua"
)

// seqWrapAt is the last sequence number usable before the counter wraps
// back to 1 (2^32 - 1025, leaving the reserved tail of the u32 range
// unused).
const seqWrapAt uint32 = 4_294_966_271

// wireChannelIDCounter assigns the secure_channel_id a server hands back
// to a client in its first OPN response; the wire id is distinct from
// Channel.id (an opaque process-local string) since the wire format fixes
// it at 4 bytes.
var wireChannelIDCounter uint32

func nextWireChannelID() uint32 {
	return atomic.AddUint32(&wireChannelIDCounter, 1)
}

// Channel is one secure-channel instance: the state machine, its tokens,
// sequence and request-id bookkeeping, reassembly buffer, and timers. All
// mutable fields below are touched only from the task functions submitted
// to mailbox — never from readLoop directly and never from a Send
// caller's own goroutine — so the struct carries no mutex.
type Channel struct {
	id   ua.ChannelID
	role ua.Role
	cfg  *Config
	conn transport.Conn

	ctx        context.Context
	g          *errgroup.Group
	mailbox    *eventbus.Mailbox
	svcBox     *eventbus.Mailbox
	timers     eventbus.TimerSource
	dispatcher interfaces.Dispatcher
	log        *logrus.Entry

	state State

	wireChannelID uint32 // secure_channel_id as carried on the wire
	policy        cryptoprovider.Policy
	mode          cryptoprovider.Mode
	peerCert      *x509.Certificate

	endpointURL     string // client role: server endpoint dialed
	awaitingReverse bool   // reverse-connect client: no HEL until RHE arrives
	helloParams     framing.HelloParams
	limits          framing.NegotiatedLimits
	sendBufferSize  uint32 // this role's own outbound bound, resolved from limits
	reassembler     *framing.Reassembler

	tokens *token.Registry
	nonces *token.NonceTracker

	openRequestID uint32 // client: request_id of the in-flight OPN request
	nonceLocal    []byte // our nonce for the in-flight Open/Renew

	sendSeq    uint32
	recvSeq    uint32
	recvSeqSet bool

	sendChunkIndex uint32 // chunk position within the logical message currently being sent
	recvChunkIndex uint32 // chunk position within the logical message currently being reassembled

	nextRequestID uint32 // client-originated request_id counter
	pending       map[uint32]*pendingRequest

	openDeadlineTimer eventbus.Timer
	tokenExpiryTimer  eventbus.Timer
	tokenRenewalTimer eventbus.Timer

	openDone chan error // closed/sent to once after Open completes or fails (client)

	closedFlag atomic.Bool // mirrors state==StateClosed for readLoop
}

// newChannel builds the common skeleton both NewClientChannel and
// NewServerChannel specialize.
func newChannel(ctx context.Context, g *errgroup.Group, role ua.Role, cfg *Config, conn transport.Conn, dispatcher interfaces.Dispatcher, timers eventbus.TimerSource) *Channel {
	if timers == nil {
		timers = eventbus.RealTimerSource{}
	}
	id := ua.NewChannelID()
	c := &Channel{
		id:         id,
		role:       role,
		cfg:        cfg,
		conn:       conn,
		ctx:        ctx,
		g:          g,
		mailbox:    eventbus.NewMailbox(ctx, g, "secchan:"+string(id)),
		svcBox:     eventbus.NewMailbox(ctx, g, "services:"+string(id)),
		timers:     timers,
		dispatcher: dispatcher,
		state:      StateInitial,
		pending:    make(map[uint32]*pendingRequest),
		nonces:     token.NewNonceTracker(),
		log: logrus.WithFields(logrus.Fields{
			"component":  "secchan.Channel",
			"channel_id": string(id),
			"role":       role.String(),
		}),
	}
	g.Go(func() error {
		c.readLoop()
		return nil
	})
	return c
}

// ID returns the channel's locally unique identifier.
func (c *Channel) ID() ua.ChannelID { return c.id }

// installLimits records the negotiated bounds and resolves this role's
// own outbound chunk budget, so the send path never has to reason about
// which wire direction it occupies. Run once per Hello/Ack exchange.
func (c *Channel) installLimits(limits framing.NegotiatedLimits) {
	c.limits = limits
	c.sendBufferSize = limits.SendBufferFor(c.role == ua.RoleClient)
	c.reassembler = framing.NewReassembler(limits)
}

// dispatch hands one service-layer callback to the channel's service
// mailbox. Dispatcher code never runs on the state-machine goroutine, so
// a dispatcher is free to call Send synchronously from any callback;
// callbacks for one channel still arrive in submission order.
func (c *Channel) dispatch(fn func()) { c.svcBox.Submit(fn) }

// State reports the channel's current lifecycle state. Safe to call from
// any goroutine: it is read through the mailbox to observe a consistent
// snapshot.
func (c *Channel) State() State {
	var s State
	c.mailbox.Call(func() error {
		s = c.state
		return nil
	})
	return s
}

// setState transitions the channel, logging and validating against the
// transition table. Must only be called from a mailbox task.
func (c *Channel) setState(to State) {
	from := c.state
	if from != StateInitial && !canTransition(from, to) {
		c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
			Warn("non-canonical state transition")
	}
	c.state = to
	c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("state transition")
}

// nextSendSeq advances and returns the send-direction sequence number,
// wrapping back to 1 past seqWrapAt.
func (c *Channel) nextSendSeq() uint32 {
	if c.sendSeq == 0 || c.sendSeq >= seqWrapAt {
		c.sendSeq = 1
	} else {
		c.sendSeq++
	}
	return c.sendSeq
}

// resetSequencing resets both directions' counters to "fresh start", run
// once per Open/Renew completion so the first chunk under a new token
// carries sequence number 1.
func (c *Channel) resetSequencing() {
	c.sendSeq = 0
	c.recvSeq = 0
	c.recvSeqSet = false
}

// validateRecvSeq enforces the strictly +1 (or wrap) progression on
// received chunks. The first chunk observed after a (re)set establishes
// the baseline.
func (c *Channel) validateRecvSeq(seq uint32) error {
	if !c.recvSeqSet {
		c.recvSeq = seq
		c.recvSeqSet = true
		return nil
	}
	var want uint32
	if c.recvSeq >= seqWrapAt {
		want = 1
	} else {
		want = c.recvSeq + 1
	}
	if seq != want {
		return fmt.Errorf("sequence number %d, expected %d", seq, want)
	}
	c.recvSeq = seq
	return nil
}

// allocateRequestID returns the wire request_id a new client-originated
// request should carry; ids are monotonic per channel.
func (c *Channel) allocateRequestID() uint32 {
	c.nextRequestID++
	return c.nextRequestID
}

// fail tears the channel down: a best-effort detail-free ERR to the peer,
// then teardown in the order pending requests, previous token, current
// token, reassembly buffer, transport.
func (c *Channel) fail(status ua.StatusCode, reason string, err error) {
	if c.state == StateClosed {
		return
	}
	c.log.WithFields(logrus.Fields{"status": status.String(), "reason": reason}).
		WithError(err).Warn("secure channel closing")

	if status.IsBad() {
		c.sendError(status)
	}
	c.cancelAllPending()
	if c.tokens != nil {
		c.tokens.Close()
	}
	c.reassembler = nil
	c.stopTimers()
	c.setState(StateClosed)
	c.closedFlag.Store(true)
	_ = c.conn.Close()

	// OnClose fires for every channel, including one that never reached
	// Active: pool accounting upstream depends on seeing each death.
	c.dispatch(func() { c.dispatcher.OnClose(c.id, status) })
	c.signalOpenDone(ua.Fatalf(status, reason, err))
}

func (c *Channel) stopTimers() {
	if c.openDeadlineTimer != nil {
		c.openDeadlineTimer.Stop()
	}
	if c.tokenExpiryTimer != nil {
		c.tokenExpiryTimer.Stop()
	}
	if c.tokenRenewalTimer != nil {
		c.tokenRenewalTimer.Stop()
	}
}

func (c *Channel) signalOpenDone(err error) {
	if c.openDone == nil {
		return
	}
	select {
	case c.openDone <- err:
	default:
	}
	close(c.openDone)
	c.openDone = nil
}

// Close begins a graceful shutdown: sends CLO (if the channel ever
// reached Active) and tears down locally. Channels never revive past
// Closed.
func (c *Channel) Close() {
	c.mailbox.Submit(func() {
		if c.state == StateClosed || c.state == StateClosing {
			return
		}
		if c.state == StateActive || c.state == StateRenewPending {
			c.setState(StateClosing)
			if err := c.sendClose(); err != nil {
				c.log.WithError(err).Debug("failed to send CLO, closing anyway")
			}
		}
		c.fail(ua.Good, "local close", nil)
	})
}

// waitOpen blocks the caller until the client-role Open/Renew handshake
// either reaches Active or fails, bounded by ctx.
func (c *Channel) waitOpen(ctx context.Context, done chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.OpenDeadline + time.Second):
		return fmt.Errorf("secchan: open handshake did not complete")
	}
}
