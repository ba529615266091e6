// Package token implements security tokens and key-set derivation: a
// Token binds one channel to a sender/receiver KeySet pair and a lifetime
// window; Registry tracks the current and previous token across a Renew,
// enforcing the rollover grace period.
//
// Key-set derivation splits one P-SHA(nonce_remote, nonce_local) stream
// into signing key, then encrypting key, then IV, in that order.
package token
