// Package secret implements the owned, zeroed-on-destroy container for
// keying material: a token's sign/encrypt/iv key set, and any private key
// bytes handed briefly to a crypto provider primitive.
//
// A Buffer never exposes its backing array directly; callers obtain a
// short-lived borrow for the duration of exactly one primitive call.
package secret
