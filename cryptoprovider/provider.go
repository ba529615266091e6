package cryptoprovider

import "crypto/x509"

// Sizes collects the per-policy size introspection the chunk layer needs:
// key length, block size, IV length, signature size and RSA block sizes.
// Header overhead is not part of Sizes; the chunk layer adds its own fixed
// header sizes when it computes the per-chunk plaintext budget.
type Sizes struct {
	SymmetricKeyLength     int
	SymmetricBlockSize     int
	SymmetricSignatureSize int
	SymmetricIVLength      int

	AsymmetricSignatureSize    int // equals the RSA modulus size in bytes
	AsymmetricPlaintextMaxSize int // max bytes encryptable in one RSA-OAEP/PKCS15 operation
	AsymmetricCipherTextSize   int // equals the RSA modulus size in bytes
}

// Provider is the crypto provider port. Every method takes the
// negotiated Policy so one Provider instance can serve channels running
// different policies concurrently.
type Provider interface {
	// SymmetricSign computes a MAC over data using key (policy's
	// SymmetricSignatureAlgorithm).
	SymmetricSign(policy Policy, key, data []byte) ([]byte, error)
	// SymmetricVerify checks a MAC previously produced by SymmetricSign.
	SymmetricVerify(policy Policy, key, data, signature []byte) error

	// SymmetricEncrypt encrypts plaintext (already padded to a block
	// multiple by the caller) under key/iv.
	SymmetricEncrypt(policy Policy, key, iv, plaintext []byte) ([]byte, error)
	// SymmetricDecrypt is the inverse of SymmetricEncrypt.
	SymmetricDecrypt(policy Policy, key, iv, ciphertext []byte) ([]byte, error)

	// AsymmetricSign signs data with the given RSA private key (DER/PKCS8
	// or PKCS1 already parsed by the caller into crypto-standard form via
	// ParsePrivateKey).
	AsymmetricSign(policy Policy, priv any, data []byte) ([]byte, error)
	// AsymmetricVerify checks a signature against an X.509 certificate's
	// public key.
	AsymmetricVerify(policy Policy, cert *x509.Certificate, data, signature []byte) error

	// AsymmetricEncrypt encrypts plaintext to the recipient certificate's
	// public key.
	AsymmetricEncrypt(policy Policy, cert *x509.Certificate, plaintext []byte) ([]byte, error)
	// AsymmetricDecrypt decrypts ciphertext with the local private key.
	AsymmetricDecrypt(policy Policy, priv any, ciphertext []byte) ([]byte, error)

	// PSHA stretches secret/seed into length bytes of key material.
	PSHA(policy Policy, secret, seed []byte, length int) ([]byte, error)

	// RandomBytes returns n cryptographically secure random bytes, used
	// for nonces and IVs.
	RandomBytes(n int) ([]byte, error)

	// ParseCertificate parses a DER-encoded certificate.
	ParseCertificate(der []byte) (*x509.Certificate, error)
	// Thumbprint computes the certificate thumbprint used to identify the
	// receiver in an asymmetric chunk header.
	Thumbprint(cert *x509.Certificate) ([]byte, error)

	// ParsePrivateKey parses a PEM or DER private key into the form this
	// Provider's Asymmetric* methods accept as priv.
	ParsePrivateKey(pemOrDER []byte) (any, error)

	// Sizes reports the per-algorithm sizes for policy.
	Sizes(policy Policy) Sizes
}
