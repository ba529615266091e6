package cryptoprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymmetricSignVerifyRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	key := []byte("0123456789abcdef0123456789abcdef")
	data := []byte("hello secure channel")

	sig, err := p.SymmetricSign(PolicyBasic256Sha256, key, data)
	require.NoError(t, err)
	require.NoError(t, p.SymmetricVerify(PolicyBasic256Sha256, key, data, sig))

	err = p.SymmetricVerify(PolicyBasic256Sha256, key, append(data, 0), sig)
	assert.Error(t, err)
}

func TestSymmetricEncryptDecryptRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	key := make([]byte, 32)
	iv := make([]byte, 16)
	plaintext := make([]byte, 32) // block-aligned
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	ct, err := p.SymmetricEncrypt(PolicyBasic256Sha256, key, iv, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ct)

	pt, err := p.SymmetricDecrypt(PolicyBasic256Sha256, key, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestSymmetricEncryptRejectsUnalignedPlaintext(t *testing.T) {
	p := NewDefaultProvider()
	_, err := p.SymmetricEncrypt(PolicyBasic256Sha256, make([]byte, 32), make([]byte, 16), make([]byte, 15))
	assert.Error(t, err)
}

func TestAsymmetricSignVerifyRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	cert, key, _ := generateTestCert(t, 2048)
	data := []byte("open secure channel request")

	sig, err := p.AsymmetricSign(PolicyBasic256Sha256, key, data)
	require.NoError(t, err)
	require.NoError(t, p.AsymmetricVerify(PolicyBasic256Sha256, cert, data, sig))

	assert.Error(t, p.AsymmetricVerify(PolicyBasic256Sha256, cert, append(data, 1), sig))
}

func TestAsymmetricEncryptDecryptRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	cert, key, _ := generateTestCert(t, 2048)
	plaintext := []byte("nonce-and-key-material")

	ct, err := p.AsymmetricEncrypt(PolicyBasic256Sha256, cert, plaintext)
	require.NoError(t, err)

	pt, err := p.AsymmetricDecrypt(PolicyBasic256Sha256, key, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestThumbprintDeterministic(t *testing.T) {
	p := NewDefaultProvider()
	cert, _, _ := generateTestCert(t, 2048)

	a, err := p.Thumbprint(cert)
	require.NoError(t, err)
	b, err := p.Thumbprint(cert)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 20) // SHA1
}

func TestPSHADeterministicAndLengthExact(t *testing.T) {
	p := NewDefaultProvider()
	secret := []byte("client-nonce-32-bytes-of-entropy")
	seed := []byte("server-nonce-32-bytes-of-entropy")

	out1, err := p.PSHA(PolicyBasic256Sha256, secret, seed, 96)
	require.NoError(t, err)
	out2, err := p.PSHA(PolicyBasic256Sha256, secret, seed, 96)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Len(t, out1, 96)
}

func TestPSHASwappedArgsDiffer(t *testing.T) {
	p := NewDefaultProvider()
	a := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	clientView, err := p.PSHA(PolicyBasic256Sha256, b, a, 64) // P-SHA(nonce_remote=b, nonce_local=a)
	require.NoError(t, err)
	serverView, err := p.PSHA(PolicyBasic256Sha256, a, b, 64) // P-SHA(nonce_remote=a, nonce_local=b)
	require.NoError(t, err)

	assert.NotEqual(t, clientView, serverView)
}

func TestRandomBytesLengthAndNonZeroEntropy(t *testing.T) {
	p := NewDefaultProvider()
	a, err := p.RandomBytes(32)
	require.NoError(t, err)
	b, err := p.RandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestAsymmetricSizesForKeyOAEPOverhead(t *testing.T) {
	sizes := AsymmetricSizesForKey(PolicyBasic256Sha256, 256) // 2048-bit key
	assert.Equal(t, 256, sizes.AsymmetricCipherTextSize)
	assert.Equal(t, 256-2*20-2, sizes.AsymmetricPlaintextMaxSize)
}
