package eventbus

import "time"

// TimerSource abstracts time and timer creation so secchan's deadline
// logic (open deadline, token renewal due, token expiry, pending-request
// timeout) can be driven deterministically in tests, generalizing
// crypto/time_provider.go's Now()-only port to cover timer firing.
type TimerSource interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer secchan needs: a fire channel, Stop,
// and Reset.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealTimerSource is the production TimerSource, backed by the standard
// library.
type RealTimerSource struct{}

func (RealTimerSource) Now() time.Time { return time.Now() }

func (RealTimerSource) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
