package ua

import "fmt"

// ChannelError is the error type every secure-channel layer returns instead
// of an ad-hoc sentinel. Fatal splits the failure taxonomy in two: a fatal
// ChannelError means the originating secure channel must close; a
// non-fatal one is local to a single pending request (application decoding
// failure, for instance) and the channel stays up.
type ChannelError struct {
	Code   StatusCode
	Fatal  bool
	Reason string
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Fatalf builds a fatal ChannelError: protocol violation, cryptographic
// failure, bound violation, peer policy rejection, lifetime/open timeout,
// or transport loss.
func Fatalf(code StatusCode, reason string, err error) *ChannelError {
	return &ChannelError{Code: code, Fatal: true, Reason: reason, Err: err}
}

// Recoverable builds a non-fatal ChannelError, local to one pending request
// (application decoding failure, per-request timeout).
func Recoverable(code StatusCode, reason string, err error) *ChannelError {
	return &ChannelError{Code: code, Fatal: false, Reason: reason, Err: err}
}

// IsFatal reports whether err is a ChannelError with Fatal set.
func IsFatal(err error) bool {
	ce, ok := err.(*ChannelError)
	return ok && ce.Fatal
}
