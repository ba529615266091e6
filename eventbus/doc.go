// Package eventbus provides the single-goroutine event serialization
// secchan's state machine runs on: one Mailbox per channel processes
// received chunks, application send requests, and timer firings strictly
// in submission order, so the state machine itself never needs a mutex.
//
// TimerSource is the injectable clock-and-timer port; ManualTimerSource
// makes every deadline-driven transition deterministic under test.
package eventbus
