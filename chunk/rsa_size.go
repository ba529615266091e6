package chunk

import (
	"crypto/rsa"
	"crypto/x509"
)

// rsaModulusBytes returns the RSA public modulus size in bytes for a
// certificate, or 0 if its key is not RSA.
func rsaModulusBytes(cert *x509.Certificate) int {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return 0
	}
	return pub.Size()
}

// rsaPrivateModulusBytes returns the RSA modulus size in bytes for a
// private key as returned by cryptoprovider.Provider.ParsePrivateKey, or 0
// if it is not RSA.
func rsaPrivateModulusBytes(priv any) int {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return k.Size()
	default:
		return 0
	}
}
