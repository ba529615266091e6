package cryptoprovider

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultProvider implements Provider entirely on the standard library. See
// package doc and DESIGN.md for why no pack dependency can serve this role.
type DefaultProvider struct{}

// NewDefaultProvider constructs the stdlib-backed Provider.
func NewDefaultProvider() *DefaultProvider { return &DefaultProvider{} }

func (DefaultProvider) hashFor(alg MACAlg) (func() crypto.Hash, error) {
	switch alg {
	case MACHmacSHA1:
		return func() crypto.Hash { return crypto.SHA1 }, nil
	case MACHmacSHA256, "":
		return func() crypto.Hash { return crypto.SHA256 }, nil
	default:
		return nil, fmt.Errorf("cryptoprovider: unsupported MAC algorithm %q", alg)
	}
}

func (p DefaultProvider) SymmetricSign(policy Policy, key, data []byte) ([]byte, error) {
	hf, err := p.hashFor(policy.SymmetricSignatureAlgorithm)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(hf().New, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (p DefaultProvider) SymmetricVerify(policy Policy, key, data, signature []byte) error {
	expected, err := p.SymmetricSign(policy, key, data)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, signature) {
		return errors.New("cryptoprovider: symmetric signature mismatch")
	}
	return nil
}

func (p DefaultProvider) SymmetricEncrypt(policy Policy, key, iv, plaintext []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{"component": "cryptoprovider", "op": "SymmetricEncrypt", "policy": policy.URI})
	if len(plaintext)%aes.BlockSize != 0 {
		logger.Error("plaintext not block-aligned")
		return nil, fmt.Errorf("cryptoprovider: plaintext length %d is not a multiple of the AES block size", len(plaintext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprovider: aes.NewCipher: %w", err)
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	logger.Debug("symmetric encrypt complete")
	return out, nil
}

func (p DefaultProvider) SymmetricDecrypt(policy Policy, key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprovider: ciphertext length %d is not a multiple of the AES block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprovider: aes.NewCipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func rsaPrivateKey(priv any) (*rsa.PrivateKey, error) {
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprovider: expected *rsa.PrivateKey, got %T", priv)
	}
	return key, nil
}

func (p DefaultProvider) AsymmetricSign(policy Policy, priv any, data []byte) ([]byte, error) {
	key, err := rsaPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	switch policy.AsymmetricSignatureAlgorithm {
	case SigRSAPKCS15SHA1:
		sum := sha1.Sum(data)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, sum[:])
	case SigRSAPKCS15SHA256, "":
		sum := sha256.Sum256(data)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	default:
		return nil, fmt.Errorf("cryptoprovider: unsupported signature algorithm %q", policy.AsymmetricSignatureAlgorithm)
	}
}

func (p DefaultProvider) AsymmetricVerify(policy Policy, cert *x509.Certificate, data, signature []byte) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("cryptoprovider: certificate public key is %T, want *rsa.PublicKey", cert.PublicKey)
	}
	switch policy.AsymmetricSignatureAlgorithm {
	case SigRSAPKCS15SHA1:
		sum := sha1.Sum(data)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA1, sum[:], signature)
	case SigRSAPKCS15SHA256, "":
		sum := sha256.Sum256(data)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], signature)
	default:
		return fmt.Errorf("cryptoprovider: unsupported signature algorithm %q", policy.AsymmetricSignatureAlgorithm)
	}
}

func (p DefaultProvider) AsymmetricEncrypt(policy Policy, cert *x509.Certificate, plaintext []byte) ([]byte, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprovider: certificate public key is %T, want *rsa.PublicKey", cert.PublicKey)
	}
	switch policy.AsymmetricEncryptionAlgorithm {
	case AsymRSA15:
		return rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	case AsymRSAOAEP, "":
		return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil)
	default:
		return nil, fmt.Errorf("cryptoprovider: unsupported encryption algorithm %q", policy.AsymmetricEncryptionAlgorithm)
	}
}

func (p DefaultProvider) AsymmetricDecrypt(policy Policy, priv any, ciphertext []byte) ([]byte, error) {
	key, err := rsaPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	switch policy.AsymmetricEncryptionAlgorithm {
	case AsymRSA15:
		return rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
	case AsymRSAOAEP, "":
		return rsa.DecryptOAEP(sha1.New(), rand.Reader, key, ciphertext, nil)
	default:
		return nil, fmt.Errorf("cryptoprovider: unsupported encryption algorithm %q", policy.AsymmetricEncryptionAlgorithm)
	}
}

func (p DefaultProvider) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptoprovider: RandomBytes: %w", err)
	}
	return buf, nil
}

func (p DefaultProvider) ParseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("cryptoprovider: ParseCertificate: %w", err)
	}
	return cert, nil
}

func (p DefaultProvider) Thumbprint(cert *x509.Certificate) ([]byte, error) {
	if cert == nil {
		return nil, errors.New("cryptoprovider: Thumbprint: nil certificate")
	}
	sum := sha1.Sum(cert.Raw)
	return sum[:], nil
}

func (p DefaultProvider) ParsePrivateKey(pemOrDER []byte) (any, error) {
	data := pemOrDER
	if block, _ := pem.Decode(pemOrDER); block != nil {
		data = block.Bytes
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("cryptoprovider: ParsePrivateKey: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprovider: ParsePrivateKey: key is %T, want RSA", key)
	}
	return rsaKey, nil
}

func (p DefaultProvider) Sizes(policy Policy) Sizes {
	s := Sizes{
		SymmetricKeyLength: policy.SymmetricKeyLength,
		SymmetricBlockSize: aes.BlockSize,
		SymmetricIVLength:  aes.BlockSize,
	}
	switch policy.SymmetricSignatureAlgorithm {
	case MACHmacSHA1:
		s.SymmetricSignatureSize = sha1.Size
	default:
		s.SymmetricSignatureSize = sha256.Size
	}
	// Asymmetric sizes depend on the peer's RSA modulus and are filled in
	// by the caller once a certificate is in hand (see AsymmetricSizesForKey).
	return s
}

// AsymmetricSizesForKey derives the RSA-modulus-dependent sizes that Sizes
// cannot know without a certificate in hand.
func AsymmetricSizesForKey(policy Policy, modulusBytes int) Sizes {
	s := Sizes{AsymmetricSignatureSize: modulusBytes, AsymmetricCipherTextSize: modulusBytes}
	switch policy.AsymmetricEncryptionAlgorithm {
	case AsymRSA15:
		s.AsymmetricPlaintextMaxSize = modulusBytes - 11
	default: // RSA-OAEP with SHA1: overhead 2*hashLen+2
		s.AsymmetricPlaintextMaxSize = modulusBytes - 2*sha1.Size - 2
	}
	return s
}
