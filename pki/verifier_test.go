package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "peer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestPermissiveAcceptsAnything(t *testing.T) {
	assert.NoError(t, Permissive{}.Verify(selfSigned(t)))
}

func TestRejectAllRejectsEverything(t *testing.T) {
	assert.ErrorIs(t, RejectAll{}.Verify(selfSigned(t)), ErrRejected)
}

func TestTrustedThumbprintsPinning(t *testing.T) {
	cert := selfSigned(t)
	thumb := func(c *x509.Certificate) ([]byte, error) {
		sum := sha1.Sum(c.Raw)
		return sum[:], nil
	}
	good, _ := thumb(cert)
	v := NewTrustedThumbprints(thumb, hexEncode(good))
	assert.NoError(t, v.Verify(cert))

	other := selfSigned(t)
	assert.Error(t, v.Verify(other))
}
