package pki

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
)

// KeyStore keeps an endpoint's private-key material encrypted at rest:
// AES-256-GCM under a key stretched from an operator passphrase. An
// endpoint that loads its identity through a KeyStore never leaves the
// raw key DER readable on disk.
type KeyStore struct {
	encryptionKey [32]byte
	dir           string
}

const (
	keyStoreIterations = 100_000
	keyStoreVersion    = 1
	keyStoreSaltSize   = 32
)

// NewKeyStore opens (or initializes) the key store rooted at dir,
// deriving the at-rest encryption key from passphrase via PBKDF2 over a
// per-store random salt. The passphrase slice is wiped before return.
func NewKeyStore(dir string, passphrase []byte) (*KeyStore, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("pki: keystore passphrase cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("pki: create keystore directory: %w", err)
	}

	ks := &KeyStore{dir: dir}
	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, err
	}

	derived := pbkdf2.Key(passphrase, salt, keyStoreIterations, 32, sha256.New)
	copy(ks.encryptionKey[:], derived)
	subtle.XORBytes(derived, derived, derived)
	subtle.XORBytes(passphrase, passphrase, passphrase)

	logrus.WithFields(logrus.Fields{
		"component": "pki.KeyStore",
		"dir":       dir,
	}).Info("keystore opened")
	return ks, nil
}

func (ks *KeyStore) loadOrGenerateSalt() ([]byte, error) {
	saltFile := filepath.Join(ks.dir, ".salt")

	data, err := os.ReadFile(saltFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("pki: read keystore salt: %w", err)
		}
		salt := make([]byte, keyStoreSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("pki: generate keystore salt: %w", err)
		}
		if err := os.WriteFile(saltFile, salt, 0o600); err != nil {
			return nil, fmt.Errorf("pki: save keystore salt: %w", err)
		}
		return salt, nil
	}
	if len(data) != keyStoreSaltSize {
		return nil, fmt.Errorf("pki: keystore salt is %d bytes, want %d", len(data), keyStoreSaltSize)
	}
	return data, nil
}

// StoreKey encrypts and writes one named key blob (PEM or DER).
// On-disk format: [version:2][nonce:12][ciphertext+tag].
func (ks *KeyStore) StoreKey(name string, keyMaterial []byte) error {
	block, err := aes.NewCipher(ks.encryptionKey[:])
	if err != nil {
		return fmt.Errorf("pki: keystore cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("pki: keystore gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("pki: keystore nonce: %w", err)
	}

	out := make([]byte, 0, 2+len(nonce)+len(keyMaterial)+gcm.Overhead())
	out = append(out, 0, keyStoreVersion)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, keyMaterial, nil)

	path := filepath.Join(ks.dir, name)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("pki: write key %q: %w", name, err)
	}
	return nil
}

// LoadKey reads and decrypts one named key blob.
func (ks *KeyStore) LoadKey(name string) ([]byte, error) {
	path := filepath.Join(ks.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pki: read key %q: %w", name, err)
	}

	block, err := aes.NewCipher(ks.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("pki: keystore cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pki: keystore gcm: %w", err)
	}

	minLen := 2 + gcm.NonceSize() + gcm.Overhead()
	if len(data) < minLen {
		return nil, fmt.Errorf("pki: key %q truncated: %d bytes", name, len(data))
	}
	if data[0] != 0 || data[1] != keyStoreVersion {
		return nil, fmt.Errorf("pki: key %q has unsupported format version %d", name, int(data[0])<<8|int(data[1]))
	}

	nonce := data[2 : 2+gcm.NonceSize()]
	ciphertext := data[2+gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("pki: decrypt key %q: %w", name, err)
	}
	return plaintext, nil
}
