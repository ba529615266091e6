package cryptoprovider

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
)

// PSHA implements the TLS-1.0-style P-SHA pseudo-random function OPC UA
// uses to stretch two nonces into a key-set's sign/encrypt/iv bytes:
//
//	A(0) = seed
//	A(i) = HMAC(secret, A(i-1))
//	P-SHA(secret, seed) = HMAC(secret, A(1) + seed) + HMAC(secret, A(2) + seed) + ...
// truncated to the requested length.
func (p DefaultProvider) PSHA(policy Policy, secret, seed []byte, length int) ([]byte, error) {
	newHash, err := pshaHashFor(policy.KeyDerivationAlgorithm)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	a := seed
	for len(out) < length {
		a = hmacSum(newHash, secret, a)
		block := hmacSum(newHash, secret, append(append([]byte{}, a...), seed...))
		out = append(out, block...)
	}
	return out[:length], nil
}

func pshaHashFor(alg PRFAlg) (func() hash.Hash, error) {
	switch alg {
	case PRFPSHA1:
		return sha1.New, nil
	case PRFPSHA256, "":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("cryptoprovider: unsupported key derivation algorithm %q", alg)
	}
}

func hmacSum(newHash func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil)
}
