package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestMailboxProcessesInSubmissionOrder: tasks submitted from one
// goroutine run strictly in order, the property the secure-channel state
// machine is built on.
func TestMailboxProcessesInSubmissionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	m := NewMailbox(gctx, g, "test")

	var got []int
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		i := i
		m.Submit(func() {
			got = append(got, i)
			if i == 49 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mailbox did not drain")
	}
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}

	cancel()
	_ = g.Wait()
}

// TestMailboxCallReturnsTaskError: Call blocks until the task ran and
// propagates its error.
func TestMailboxCallReturnsTaskError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	m := NewMailbox(gctx, g, "test")

	ran := false
	err := m.Call(func() error {
		ran = true
		return assert.AnError
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, assert.AnError)
}

// TestManualTimerSourceFiresOnAdvance: timers fire only when the manual
// clock passes their deadline, in deadline order, and a stopped timer
// never fires.
func TestManualTimerSourceFiresOnAdvance(t *testing.T) {
	src := NewManualTimerSource(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	early := src.NewTimer(time.Minute)
	late := src.NewTimer(time.Hour)
	stopped := src.NewTimer(time.Minute)
	require.True(t, stopped.Stop())

	src.Advance(30 * time.Second)
	select {
	case <-early.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	src.Advance(time.Minute)
	select {
	case <-early.C():
	default:
		t.Fatal("timer past its deadline did not fire")
	}
	select {
	case <-stopped.C():
		t.Fatal("stopped timer fired")
	default:
	}
	select {
	case <-late.C():
		t.Fatal("one-hour timer fired after ninety seconds")
	default:
	}

	src.Advance(time.Hour)
	select {
	case <-late.C():
	default:
		t.Fatal("one-hour timer did not fire")
	}
}
