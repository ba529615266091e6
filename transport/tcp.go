package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// TCPListener wraps a *net.TCPListener as a Listener: a long-lived
// listener handed off to a caller-driven accept loop rather than owning
// its own goroutine, so listener.Facade can bound concurrent accepts with
// a semaphore instead of spawning unboundedly.
type TCPListener struct {
	ln  *net.TCPListener
	log *logrus.Entry
}

// ListenTCP opens a TCP listener on address (host:port, or ":0" for an
// ephemeral port).
func ListenTCP(address string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", address, err)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("transport: %s did not yield a TCP listener", address)
	}
	return &TCPListener{
		ln:  tl,
		log: logrus.WithFields(logrus.Fields{"component": "transport.TCPListener", "addr": tl.Addr().String()}),
	}, nil
}

func (l *TCPListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	l.log.WithField("remote_addr", conn.RemoteAddr().String()).Debug("accepted inbound connection")
	return conn, nil
}

func (l *TCPListener) Close() error { return l.ln.Close() }

func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// TCPDialer is the Dialer port's concrete TCP implementation.
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", address, err)
	}
	return conn, nil
}
