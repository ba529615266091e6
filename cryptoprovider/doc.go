// Package cryptoprovider defines the crypto provider port: the abstract
// surface of symmetric/asymmetric sign-verify-encrypt-decrypt, the P-SHA
// pseudo-random function for key derivation, entropy, certificate
// parsing/thumbprinting, and per-algorithm size introspection that token
// and chunk depend on without caring which concrete engine backs it.
//
// DefaultProvider is the one concrete implementation this module ships,
// backed by the standard library (crypto/rsa, crypto/aes, crypto/cipher,
// crypto/sha1, crypto/sha256, crypto/hmac, crypto/x509): OPC UA's
// security policies are specified in terms of RSA/AES/SHA, so that is
// what the default engine speaks. A production deployment may swap in a
// hardware-backed or FIPS-validated Provider; the port is the contract.
package cryptoprovider
