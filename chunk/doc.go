// Package chunk implements the per-chunk cryptographic envelope:
// asymmetric chunk construction/verification for the Open/Renew handshake
// (sign-then-encrypt, RSA), and symmetric chunk construction/verification
// for everything else (encrypt-then-sign, AES + HMAC). Both share the
// common 8-byte transport header from framing, whose wire layout this
// package's header types extend.
package chunk
