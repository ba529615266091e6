package eventbus

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Mailbox runs submitted tasks one at a time, strictly in submission
// order, on a single dedicated goroutine supervised by an errgroup.Group.
// It is the serialization primitive secchan.Channel builds its state
// machine on: every externally triggered event (a received chunk, an
// application send, a timer firing) becomes one Submit call, so the state
// machine body itself never needs locking.
type Mailbox struct {
	tasks chan func()
	log   *logrus.Entry
}

// NewMailbox creates a Mailbox and registers its run loop with g. The
// Mailbox stops, and g.Wait returns, when ctx is cancelled.
func NewMailbox(ctx context.Context, g *errgroup.Group, name string) *Mailbox {
	m := &Mailbox{
		tasks: make(chan func(), 64),
		log:   logrus.WithFields(logrus.Fields{"component": "eventbus.Mailbox", "name": name}),
	}
	g.Go(func() error {
		return m.run(ctx)
	})
	return m
}

func (m *Mailbox) run(ctx context.Context) error {
	m.log.Debug("mailbox started")
	defer m.log.Debug("mailbox stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-m.tasks:
			task()
		}
	}
}

// Submit enqueues task for execution on the mailbox goroutine. It blocks
// only if the mailbox's internal queue is full, never waiting for the
// task itself to run.
func (m *Mailbox) Submit(task func()) {
	m.tasks <- task
}

// Call enqueues task and blocks until it has run, returning its error.
// Used by synchronous callers (the service-layer send path) that need the
// outcome of one state-machine step before proceeding.
func (m *Mailbox) Call(task func() error) error {
	done := make(chan error, 1)
	m.tasks <- func() {
		done <- task()
	}
	return <-done
}

// SubmitCtx is Submit with cancellation: if ctx is done before task could
// be enqueued (an overloaded or shutting-down mailbox), it returns ctx's
// error instead of blocking forever.
func (m *Mailbox) SubmitCtx(ctx context.Context, task func()) error {
	select {
	case m.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("eventbus: mailbox submit: %w", ctx.Err())
	}
}
