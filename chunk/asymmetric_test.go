package chunk

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcua-go/uasc/cryptoprovider"
)

func genCert(t *testing.T, bits int) (*x509.Certificate, *rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
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
	return cert, key, der
}

func TestAsymmetricEncodeDecodeRoundTrip(t *testing.T) {
	p := cryptoprovider.NewDefaultProvider()
	policy := cryptoprovider.PolicyBasic256Sha256

	clientCert, clientKey, clientDER := genCert(t, 2048)
	serverCert, serverKey, _ := genCert(t, 2048)

	thumb, err := p.Thumbprint(serverCert)
	require.NoError(t, err)

	commonHeader := []byte("OPNF\x00\x00\x00\x00")
	header := AsymmetricHeader{
		SecureChannelID:               0,
		SecurityPolicyURI:             policy.URI,
		SenderCertificateDER:          clientDER,
		ReceiverCertificateThumbprint: thumb,
	}
	body := []byte("open secure channel request body")

	encoded, err := EncodeAsymmetric(p, policy, commonHeader, header, serverCert, clientKey, 1, 1000, body)
	require.NoError(t, err)

	decoded, err := DecodeAsymmetric(p, policy, commonHeader, encoded, serverKey, clientCert)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), decoded.SequenceNumber)
	assert.Equal(t, uint32(1000), decoded.RequestID)
	assert.Equal(t, body, decoded.Body)
	assert.Equal(t, thumb, decoded.Header.ReceiverCertificateThumbprint)
}

func TestAsymmetricDecodeRejectsWrongSenderCertificate(t *testing.T) {
	p := cryptoprovider.NewDefaultProvider()
	policy := cryptoprovider.PolicyBasic256Sha256

	_, clientKey, clientDER := genCert(t, 2048)
	serverCert, serverKey, _ := genCert(t, 2048)
	impostorCert, _, _ := genCert(t, 2048)

	thumb, err := p.Thumbprint(serverCert)
	require.NoError(t, err)

	commonHeader := []byte("OPNF\x00\x00\x00\x00")
	header := AsymmetricHeader{
		SecurityPolicyURI:             policy.URI,
		SenderCertificateDER:          clientDER,
		ReceiverCertificateThumbprint: thumb,
	}

	encoded, err := EncodeAsymmetric(p, policy, commonHeader, header, serverCert, clientKey, 1, 1, []byte("body"))
	require.NoError(t, err)

	_, err = DecodeAsymmetric(p, policy, commonHeader, encoded, serverKey, impostorCert)
	assert.Error(t, err)
}

func TestAsymmetricEncodeDecodeMultiBlockBody(t *testing.T) {
	p := cryptoprovider.NewDefaultProvider()
	policy := cryptoprovider.PolicyBasic256Sha256

	clientCert, clientKey, clientDER := genCert(t, 2048)
	serverCert, serverKey, _ := genCert(t, 2048)
	thumb, err := p.Thumbprint(serverCert)
	require.NoError(t, err)

	commonHeader := []byte("OPNF\x00\x00\x00\x00")
	header := AsymmetricHeader{
		SecurityPolicyURI:             policy.URI,
		SenderCertificateDER:          clientDER,
		ReceiverCertificateThumbprint: thumb,
	}

	// Large enough body to require more than one RSA block at 2048 bits
	// (OAEP-SHA1 plaintext block is well under 256 bytes).
	body := make([]byte, 500)
	for i := range body {
		body[i] = byte(i)
	}

	encoded, err := EncodeAsymmetric(p, policy, commonHeader, header, serverCert, clientKey, 1, 1, body)
	require.NoError(t, err)

	decoded, err := DecodeAsymmetric(p, policy, commonHeader, encoded, serverKey, clientCert)
	require.NoError(t, err)
	assert.Equal(t, body, decoded.Body)
}
