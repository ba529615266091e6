package token

import (
	"fmt"

	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/secret"
)

// KeySet is the three-piece symmetric material one direction of a token
// needs: sign key, encrypt key, IV.
type KeySet struct {
	SignKey    *secret.Buffer
	EncryptKey *secret.Buffer
	IV         *secret.Buffer
}

// Destroy zeroes all three secret buffers.
func (k KeySet) Destroy() {
	if k.SignKey != nil {
		k.SignKey.Destroy()
	}
	if k.EncryptKey != nil {
		k.EncryptKey.Destroy()
	}
	if k.IV != nil {
		k.IV.Destroy()
	}
}

// DeriveKeySet stretches secret/seed via the policy's P-SHA into a
// KeySet, splitting signing key, then encrypt key, then IV, in that
// order. Passing (nonce_remote, nonce_local) as (secret, seed) derives
// the keys this side uses to send; passing them swapped derives the keys
// used to receive.
func DeriveKeySet(provider cryptoprovider.Provider, policy cryptoprovider.Policy, secretNonce, seedNonce []byte, sigKeyLen, encKeyLen, ivLen int) (KeySet, error) {
	total := sigKeyLen + encKeyLen + ivLen
	material, err := provider.PSHA(policy, secretNonce, seedNonce, total)
	if err != nil {
		return KeySet{}, fmt.Errorf("token: DeriveKeySet: %w", err)
	}

	sign := material[:sigKeyLen]
	enc := material[sigKeyLen : sigKeyLen+encKeyLen]
	iv := material[sigKeyLen+encKeyLen : total]

	return KeySet{
		SignKey:    secret.New(sign),
		EncryptKey: secret.New(enc),
		IV:         secret.New(iv),
	}, nil
}

// symmetricSignKeyLength returns the HMAC key length for a policy's
// symmetric signature algorithm — equal to the underlying hash's output
// size for the algorithms this module supports.
func symmetricSignKeyLength(policy cryptoprovider.Policy) int {
	switch policy.SymmetricSignatureAlgorithm {
	case cryptoprovider.MACHmacSHA1:
		return 20
	default:
		return 32
	}
}
