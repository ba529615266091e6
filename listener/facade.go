package listener

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/eventbus"
	"github.com/opcua-go/uasc/interfaces"
	"github.com/opcua-go/uasc/secchan"
	"github.com/opcua-go/uasc/transport"
	"github.com/opcua-go/uasc/ua"
)

// Facade owns a bounded pool of secure channels over one endpoint
// configuration. Inbound channels are admitted by Serve, outbound ones by
// Connect; both count against the same capacity, and a channel's slot is
// returned when the service layer sees its OnClose.
type Facade struct {
	cfg        *secchan.Config
	dispatcher interfaces.Dispatcher
	timers     eventbus.TimerSource
	g          *errgroup.Group
	ctx        context.Context
	sem        *semaphore.Weighted
	log        *logrus.Entry

	mu       sync.Mutex
	channels map[ua.ChannelID]*secchan.Channel
	orphaned map[ua.ChannelID]bool
}

// New builds a Facade admitting at most maxChannels concurrent channels.
// All channel goroutines run under one errgroup derived from ctx; Wait
// blocks until ctx is cancelled and every channel worker has drained.
// timers may be nil for wall-clock time.
func New(ctx context.Context, cfg *secchan.Config, dispatcher interfaces.Dispatcher, maxChannels int64, timers eventbus.TimerSource) *Facade {
	g, gctx := errgroup.WithContext(ctx)
	f := &Facade{
		cfg:      cfg,
		timers:   timers,
		g:        g,
		ctx:      gctx,
		sem:      semaphore.NewWeighted(maxChannels),
		channels: make(map[ua.ChannelID]*secchan.Channel),
		orphaned: make(map[ua.ChannelID]bool),
		log: logrus.WithFields(logrus.Fields{
			"component":    "listener.Facade",
			"max_channels": maxChannels,
		}),
	}
	f.dispatcher = &poolDispatcher{inner: dispatcher, facade: f}
	return f
}

// Serve accepts transports from ln until ctx is cancelled or Accept
// fails, attaching a server-role channel to each. It blocks; run it on
// its own goroutine (or errgroup) alongside Connect callers.
func (f *Facade) Serve(ln transport.Listener) error {
	f.g.Go(func() error {
		<-f.ctx.Done()
		return ln.Close()
	})
	for {
		if err := f.sem.Acquire(f.ctx, 1); err != nil {
			return fmt.Errorf("listener: admission: %w", err)
		}
		conn, err := ln.Accept()
		if err != nil {
			f.sem.Release(1)
			if f.ctx.Err() != nil {
				return f.ctx.Err()
			}
			return fmt.Errorf("listener: accept: %w", err)
		}
		ch := secchan.NewServerChannel(f.ctx, f.g, f.cfg, conn, f.dispatcher, f.timers)
		f.register(ch)
	}
}

// ServeReverse is Serve for a client that lets servers dial in: each
// accepted transport is expected to open with the server's RHE, after
// which this side drives the ordinary client handshake under the given
// policy, mode, and pinned server certificate.
func (f *Facade) ServeReverse(ln transport.Listener, policy secchan.PolicySpec, mode cryptoprovider.Mode, serverCert *x509.Certificate) error {
	f.g.Go(func() error {
		<-f.ctx.Done()
		return ln.Close()
	})
	for {
		if err := f.sem.Acquire(f.ctx, 1); err != nil {
			return fmt.Errorf("listener: admission: %w", err)
		}
		conn, err := ln.Accept()
		if err != nil {
			f.sem.Release(1)
			if f.ctx.Err() != nil {
				return f.ctx.Err()
			}
			return fmt.Errorf("listener: accept: %w", err)
		}
		ch, err := secchan.NewReverseClientChannel(f.ctx, f.g, f.cfg, conn, f.dispatcher, policy, mode, serverCert, f.timers)
		if err != nil {
			f.sem.Release(1)
			f.log.WithError(err).Warn("reverse-connect handshake failed")
			continue
		}
		f.register(ch)
	}
}

// Connect dials address, runs the client handshake toward endpointURL,
// and returns the channel once it is Active. ctx bounds admission and
// dialing only; the channel's own lifetime is the Facade's. The channel
// counts against the pool until it closes.
func (f *Facade) Connect(ctx context.Context, dialer transport.Dialer, address, endpointURL string, policy secchan.PolicySpec, mode cryptoprovider.Mode, serverCert *x509.Certificate) (*secchan.Channel, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("listener: admission: %w", err)
	}
	conn, err := dialer.Dial(ctx, address)
	if err != nil {
		f.sem.Release(1)
		return nil, err
	}
	ch, err := secchan.NewClientChannel(f.ctx, f.g, f.cfg, conn, f.dispatcher, endpointURL, policy, mode, serverCert, f.timers)
	if err != nil {
		f.sem.Release(1)
		return nil, err
	}
	f.register(ch)
	return ch, nil
}

// ConnectReverse dials out as a server toward a client's reverse-connect
// listener, announcing endpointURL in the RHE. The returned channel is
// still in its handshake; the service layer learns of Active via OnOpen.
func (f *Facade) ConnectReverse(ctx context.Context, dialer transport.Dialer, address, endpointURL string) (*secchan.Channel, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("listener: admission: %w", err)
	}
	conn, err := dialer.Dial(ctx, address)
	if err != nil {
		f.sem.Release(1)
		return nil, err
	}
	ch := secchan.NewReverseServerChannel(f.ctx, f.g, f.cfg, conn, f.dispatcher, endpointURL, f.timers)
	f.register(ch)
	return ch, nil
}

// Send routes one application message to the channel named by channelID,
// satisfying interfaces.Sender for the service layer.
func (f *Facade) Send(channelID ua.ChannelID, typeID buffer.NodeId, body []byte, requestHandle uint32, timeout time.Duration) error {
	f.mu.Lock()
	ch, ok := f.channels[channelID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("listener: no such channel %s", channelID)
	}
	return ch.Send(typeID, body, requestHandle, timeout)
}

// Channel looks up a live channel by id.
func (f *Facade) Channel(id ua.ChannelID) (*secchan.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	return ch, ok
}

// Len reports the number of live channels.
func (f *Facade) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// Close shuts every live channel down gracefully.
func (f *Facade) Close() {
	f.mu.Lock()
	chans := make([]*secchan.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		chans = append(chans, ch)
	}
	f.mu.Unlock()
	for _, ch := range chans {
		ch.Close()
	}
}

// Wait blocks until every channel worker goroutine has stopped.
func (f *Facade) Wait() error { return f.g.Wait() }

// register adds a channel to the pool. A channel can die before its
// registration lands (the pool dispatcher saw OnClose first); the
// orphaned set makes that race resolve to an immediate release rather
// than a leaked slot.
func (f *Facade) register(ch *secchan.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ch.ID()
	if f.orphaned[id] {
		delete(f.orphaned, id)
		f.sem.Release(1)
		return
	}
	f.channels[id] = ch
	f.log.WithField("channel_id", string(id)).Debug("channel registered")
}

// release returns a channel's pool slot once it has closed.
func (f *Facade) release(id ua.ChannelID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; ok {
		delete(f.channels, id)
		f.sem.Release(1)
		f.log.WithField("channel_id", string(id)).Debug("channel released")
		return
	}
	f.orphaned[id] = true
}

// poolDispatcher interposes on the service layer's Dispatcher so the
// Facade observes channel deaths without the channels knowing about pool
// accounting.
type poolDispatcher struct {
	inner  interfaces.Dispatcher
	facade *Facade
}

func (d *poolDispatcher) OnOpen(id ua.ChannelID) { d.inner.OnOpen(id) }

func (d *poolDispatcher) OnReceive(id ua.ChannelID, typeID buffer.NodeId, body []byte, requestHandle uint32) {
	d.inner.OnReceive(id, typeID, body, requestHandle)
}

func (d *poolDispatcher) OnClose(id ua.ChannelID, status ua.StatusCode) {
	d.facade.release(id)
	d.inner.OnClose(id, status)
}

func (d *poolDispatcher) OnRequestFailure(id ua.ChannelID, requestHandle uint32, status ua.StatusCode) {
	d.inner.OnRequestFailure(id, requestHandle, status)
}
