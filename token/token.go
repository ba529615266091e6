package token

import (
	"time"

	"github.com/opcua-go/uasc/ua"
)

// Token is one security-token generation of a channel: an id, the channel
// it belongs to, when it was created, its revised lifetime, the two key
// sets (what we use to protect outgoing chunks, and what we use to
// unprotect incoming ones), and the nonce pair that produced them.
type Token struct {
	ID              ua.TokenID
	ChannelID       ua.ChannelID
	CreatedAt       time.Time
	RevisedLifetime time.Duration

	Sender   KeySet // protects chunks this side sends
	Receiver KeySet // unprotects chunks this side receives

	NonceLocal  []byte
	NonceRemote []byte
}

// ExpiresAt is when the sender must stop encrypting under this token.
func (t *Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.RevisedLifetime)
}

// ReceiveGraceDeadline is how long past rollover a superseded token may
// still decrypt in-flight messages: 25% of its revised lifetime.
func (t *Token) ReceiveGraceDeadline() time.Time {
	grace := time.Duration(float64(t.RevisedLifetime) * 0.25)
	return t.ExpiresAt().Add(grace)
}

// RenewalDueAt is when the client should initiate Renew: 75% of revised
// lifetime.
func (t *Token) RenewalDueAt() time.Time {
	due := time.Duration(float64(t.RevisedLifetime) * 0.75)
	return t.CreatedAt.Add(due)
}

// Destroy zeroes both key sets.
func (t *Token) Destroy() {
	t.Sender.Destroy()
	t.Receiver.Destroy()
}
