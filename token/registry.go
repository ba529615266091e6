package token

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/ua"
)

// Registry tracks the current and previous security token of one channel,
// deriving fresh key sets on Issue and enforcing the rollover grace
// period: a superseded token keeps decrypting for 25% of its own revised
// lifetime past expiry, so in-flight chunks encrypted just before a Renew
// are not spuriously rejected.
type Registry struct {
	mu sync.Mutex

	channelID ua.ChannelID
	provider  cryptoprovider.Provider
	policy    cryptoprovider.Policy
	now       func() time.Time
	log       *logrus.Entry

	nextID   uint32
	current  *Token
	previous *Token
}

// NewRegistry builds a Registry for one channel. now defaults to time.Now
// when nil; tests pass a fixed clock to exercise rollover deterministically.
func NewRegistry(channelID ua.ChannelID, provider cryptoprovider.Provider, policy cryptoprovider.Policy, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		channelID: channelID,
		provider:  provider,
		policy:    policy,
		now:       now,
		log: logrus.WithFields(logrus.Fields{
			"component":  "token.Registry",
			"channel_id": string(channelID),
		}),
	}
}

// Issue derives a new token from the given nonce pair and revised lifetime,
// rotating the previous current token into the previous slot. The
// oldest generation, if any, is destroyed. The id is the next in this
// registry's monotonic sequence; the side that assigns ids (the server)
// uses this form.
func (r *Registry) Issue(nonceLocal, nonceRemote []byte, revisedLifetime time.Duration) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issueLocked(ua.TokenID(r.nextID+1), nonceLocal, nonceRemote, revisedLifetime)
}

// IssueWithID installs a token under an id assigned by the peer (the
// client side of an Open/Renew, which learns the id from the response).
// The id must be strictly greater than any id this registry has seen.
func (r *Registry) IssueWithID(id ua.TokenID, nonceLocal, nonceRemote []byte, revisedLifetime time.Duration) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uint32(id) <= r.nextID {
		return nil, ua.Fatalf(ua.BadSecurityChecksFailed, "token id is not monotonic", nil)
	}
	return r.issueLocked(id, nonceLocal, nonceRemote, revisedLifetime)
}

func (r *Registry) issueLocked(id ua.TokenID, nonceLocal, nonceRemote []byte, revisedLifetime time.Duration) (*Token, error) {
	sizes := r.provider.Sizes(r.policy)
	sigLen := symmetricSignKeyLength(r.policy)
	encLen := r.policy.SymmetricKeyLength
	ivLen := sizes.SymmetricIVLength

	// This side sends under P-SHA(nonce_remote, nonce_local) and receives
	// under P-SHA(nonce_local, nonce_remote).
	sender, err := DeriveKeySet(r.provider, r.policy, nonceRemote, nonceLocal, sigLen, encLen, ivLen)
	if err != nil {
		return nil, err
	}
	receiver, err := DeriveKeySet(r.provider, r.policy, nonceLocal, nonceRemote, sigLen, encLen, ivLen)
	if err != nil {
		sender.Destroy()
		return nil, err
	}

	r.nextID = uint32(id)
	tok := &Token{
		ID:              id,
		ChannelID:       r.channelID,
		CreatedAt:       r.now(),
		RevisedLifetime: revisedLifetime,
		Sender:          sender,
		Receiver:        receiver,
		NonceLocal:      nonceLocal,
		NonceRemote:     nonceRemote,
	}

	if r.previous != nil {
		r.previous.Destroy()
	}
	r.previous = r.current
	r.current = tok

	r.log.WithFields(logrus.Fields{
		"token_id": uint32(tok.ID),
		"lifetime": revisedLifetime,
	}).Debug("issued security token")

	return tok, nil
}

// Current returns the active token, or nil before the first Issue.
func (r *Registry) Current() *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SelectForReceive resolves the token a received chunk's token_id names.
// The current token always matches; the previous token matches until its
// receive grace deadline passes, after which it is evicted and treated as
// unknown. Any other id is BadSecureChannelTokenUnknown.
func (r *Registry) SelectForReceive(id ua.TokenID) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.ID == id {
		return r.current, nil
	}

	if r.previous != nil && r.previous.ID == id {
		if r.now().After(r.previous.ReceiveGraceDeadline()) {
			r.log.WithField("token_id", uint32(id)).Warn("previous token's receive grace period elapsed")
			r.previous.Destroy()
			r.previous = nil
		} else {
			return r.previous, nil
		}
	}

	r.log.WithField("token_id", uint32(id)).Warn("received chunk for unknown token")
	return nil, ua.Fatalf(ua.BadSecureChannelTokenUnknown, "unknown security token id", nil)
}

// DropPrevious destroys the superseded generation, if any. Called once the
// first chunk under the new current token has been processed, ending the
// rollover overlap early.
func (r *Registry) DropPrevious() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.previous != nil {
		r.previous.Destroy()
		r.previous = nil
	}
}

// Close destroys both tracked generations, oldest first.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.previous != nil {
		r.previous.Destroy()
		r.previous = nil
	}
	if r.current != nil {
		r.current.Destroy()
		r.current = nil
	}
}
