package pki

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// LoadPFX decodes a PKCS#12 (.pfx/.p12) bundle, the common shipping
// format for OPC UA application instance certificates in industrial
// deployments, into a certificate and RSA private key pair.
func LoadPFX(data []byte, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: LoadPFX: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("pki: LoadPFX: unsupported key type %T, want RSA", key)
	}
	return cert, rsaKey, nil
}
