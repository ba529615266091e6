package chunk

import (
	"crypto/x509"
	"fmt"

	"github.com/opcua-go/uasc/cryptoprovider"
)

// commonHeaderSize is the fixed 8-byte transport header every chunk
// carries; chunk does not own framing's header type but needs
// its size to compute budgets.
const commonHeaderSize = 8

// symmetricHeaderSize is SecureChannelID + TokenID.
const symmetricHeaderSize = 8

// sequenceHeaderSize is SequenceNumber + RequestID, common to both chunk
// kinds.
const sequenceHeaderSize = 8

// SymmetricPlaintextBudget computes the maximum application-body bytes one
// symmetric chunk can carry within sendBufferSize, after reserving room
// for the common header, security header, sequence header, worst-case
// padding, and the trailing signature. Returns an error if the buffer is too
// small to carry even an empty body.
func SymmetricPlaintextBudget(provider cryptoprovider.Provider, policy cryptoprovider.Policy, mode cryptoprovider.Mode, sendBufferSize int) (int, error) {
	sizes := provider.Sizes(policy)

	overhead := commonHeaderSize + symmetricHeaderSize + sequenceHeaderSize
	sigSize := 0
	maxPadding := 0
	if mode != cryptoprovider.ModeNone {
		sigSize = sizes.SymmetricSignatureSize
	}
	if mode == cryptoprovider.ModeSignAndEncrypt && sizes.SymmetricBlockSize > 0 {
		maxPadding = sizes.SymmetricBlockSize
	}

	budget := sendBufferSize - overhead - sigSize - maxPadding
	if budget <= 0 {
		return 0, fmt.Errorf("chunk: send buffer size %d too small for overhead %d", sendBufferSize, overhead+sigSize+maxPadding)
	}
	return budget, nil
}

// AsymmetricPlaintextBudget is the OPN-chunk analogue of
// SymmetricPlaintextBudget: how many application-body bytes fit in one
// asymmetric chunk, accounting for the variable-length security header
// (certificate and thumbprint), the sequence header, and the RSA
// block-expansion of the body-plus-signature region.
func AsymmetricPlaintextBudget(provider cryptoprovider.Provider, policy cryptoprovider.Policy, senderCertDER []byte, receiverCert *x509.Certificate, receiverThumbprint []byte, sendBufferSize int) (int, error) {
	modulusBytes := rsaModulusBytes(receiverCert)
	sizes := cryptoprovider.AsymmetricSizesForKey(policy, modulusBytes)
	if sizes.AsymmetricPlaintextMaxSize <= 0 {
		return 0, fmt.Errorf("chunk: non-positive asymmetric plaintext block size")
	}

	headerOverhead := commonHeaderSize + 4 /* secure_channel_id */ + 4 + len(policy.URI) + 4 + len(senderCertDER) + 4 + len(receiverThumbprint)
	available := sendBufferSize - headerOverhead
	if available <= 0 {
		return 0, fmt.Errorf("chunk: send buffer size %d too small for asymmetric header %d", sendBufferSize, headerOverhead)
	}

	// available bytes must hold whole RSA blocks of ciphertext; each block
	// carries AsymmetricPlaintextMaxSize bytes of the sequence header,
	// body, and signature combined.
	blocks := available / sizes.AsymmetricCipherTextSize
	if blocks <= 0 {
		return 0, fmt.Errorf("chunk: send buffer size %d cannot hold one asymmetric block", sendBufferSize)
	}

	capacity := blocks*sizes.AsymmetricPlaintextMaxSize - sequenceHeaderSize - sizes.AsymmetricSignatureSize
	if capacity <= 0 {
		return 0, fmt.Errorf("chunk: asymmetric budget leaves no room for application body")
	}
	return capacity, nil
}

// SymmetricChunkTotalSize predicts the exact on-wire length of one
// symmetric chunk carrying a bodyLen-byte application body under mode,
// before any byte is encrypted or signed. secchan needs this to fill in
// the common header's TotalSize field ahead of calling
// EncodeSymmetric, since that header's bytes are themselves part of the
// signed region.
// The prediction is exact, not an upper bound: padding and signature size
// are both deterministic functions of bodyLen and the policy.
func SymmetricChunkTotalSize(provider cryptoprovider.Provider, policy cryptoprovider.Policy, mode cryptoprovider.Mode, bodyLen int) int {
	sizes := provider.Sizes(policy)

	plainRegion := sequenceHeaderSize + bodyLen
	protectedLen := plainRegion
	if mode == cryptoprovider.ModeSignAndEncrypt && sizes.SymmetricBlockSize > 0 {
		pad := computePadding(plainRegion, sizes.SymmetricBlockSize)
		protectedLen = plainRegion + pad + 1
	}

	sigSize := 0
	if mode != cryptoprovider.ModeNone {
		sigSize = sizes.SymmetricSignatureSize
	}

	return commonHeaderSize + symmetricHeaderSize + protectedLen + sigSize
}

// AsymmetricChunkTotalSize is SymmetricChunkTotalSize's OPN analogue: the
// exact on-wire chunk length for a bodyLen-byte application body, given the
// variable-length security header fields. Like the symmetric case, this
// must be known before EncodeAsymmetric runs because the common header it
// returns is signed along with the rest of the chunk.
func AsymmetricChunkTotalSize(policy cryptoprovider.Policy, senderCertDER []byte, receiverCert *x509.Certificate, receiverThumbprint []byte, bodyLen int) (int, error) {
	modulusBytes := rsaModulusBytes(receiverCert)
	sizes := cryptoprovider.AsymmetricSizesForKey(policy, modulusBytes)
	if sizes.AsymmetricPlaintextMaxSize <= 0 {
		return 0, fmt.Errorf("chunk: non-positive asymmetric plaintext block size")
	}

	headerLen := 4 /* secure_channel_id */ + 4 + len(policy.URI) + 4 + len(senderCertDER) + 4 + len(receiverThumbprint)

	totalPlain := sequenceHeaderSize + bodyLen + sizes.AsymmetricSignatureSize
	blocks := (totalPlain + sizes.AsymmetricPlaintextMaxSize - 1) / sizes.AsymmetricPlaintextMaxSize
	if blocks <= 0 {
		blocks = 1
	}
	ciphertextLen := blocks * sizes.AsymmetricCipherTextSize

	return commonHeaderSize + headerLen + ciphertextLen, nil
}
