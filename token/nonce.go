package token

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// NonceTracker rejects a client or server nonce that has already been used
// to derive a key set on this channel, preventing a peer from replaying a
// stale nonce into a fresh Renew and collapsing two token generations onto
// the same key material. The set is in-memory and per-channel: a token's
// nonce history does not need to survive a process restart, since the
// channel itself does not.
type NonceTracker struct {
	mu   sync.Mutex
	seen [][]byte
	log  *logrus.Entry
}

// NewNonceTracker builds an empty tracker.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{
		log: logrus.WithField("component", "token.NonceTracker"),
	}
}

// Observe records nonce as used, reporting false if it was already seen on
// this channel (a replay).
func (t *NonceTracker) Observe(nonce []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, prior := range t.seen {
		if bytes.Equal(prior, nonce) {
			t.log.Warn("nonce reuse detected on channel")
			return false
		}
	}

	cp := make([]byte, len(nonce))
	copy(cp, nonce)
	t.seen = append(t.seen, cp)
	return true
}
