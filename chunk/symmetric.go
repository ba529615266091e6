package chunk

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
)

// SymmetricHeader is the security header on every MSG/CLO chunk and the
// symmetrically-secured body of a Renew-OPN.
type SymmetricHeader struct {
	SecureChannelID uint32
	TokenID         uint32
}

func (h SymmetricHeader) encode(buf *buffer.Buffer) error {
	if err := buf.WriteUint32(h.SecureChannelID); err != nil {
		return err
	}
	return buf.WriteUint32(h.TokenID)
}

func decodeSymmetricHeader(buf *buffer.Buffer) (SymmetricHeader, error) {
	var h SymmetricHeader
	id, err := buf.ReadUint32()
	if err != nil {
		return h, err
	}
	tok, err := buf.ReadUint32()
	if err != nil {
		return h, err
	}
	h.SecureChannelID = id
	h.TokenID = tok
	return h, nil
}

// SymmetricChunk is one decoded, verified, decrypted MSG/CLO chunk.
type SymmetricChunk struct {
	Header         SymmetricHeader
	SequenceNumber uint32
	RequestID      uint32
	Body           []byte
}

// EncodeSymmetric builds the security-header-onward bytes of one MSG/CLO
// chunk: pad and encrypt the sequence header + body under
// encryptKey/iv (iv perturbed by chunkIndex), then MAC the header and
// ciphertext together under signKey.
// mode controls whether encryption and/or signing apply; ModeNone chunks
// are carried unprotected.
func EncodeSymmetric(provider cryptoprovider.Provider, policy cryptoprovider.Policy, mode cryptoprovider.Mode, commonHeader []byte, header SymmetricHeader, signKey, encryptKey, iv []byte, chunkIndex, sequenceNumber, requestID uint32, body []byte) ([]byte, error) {
	log := logrus.WithFields(logrus.Fields{"component": "chunk", "op": "EncodeSymmetric", "policy": policy.URI, "mode": mode.String()})

	headerBuf := buffer.New(8)
	if err := header.encode(headerBuf); err != nil {
		return nil, err
	}

	plainBuf := buffer.New(8 + len(body) + 32)
	if err := plainBuf.WriteUint32(sequenceNumber); err != nil {
		return nil, err
	}
	if err := plainBuf.WriteUint32(requestID); err != nil {
		return nil, err
	}
	if err := plainBuf.WriteBytes(body); err != nil {
		return nil, err
	}
	plainRegion := plainBuf.Written()

	var protected []byte
	if mode == cryptoprovider.ModeSignAndEncrypt {
		sizes := provider.Sizes(policy)
		padCount := computePadding(len(plainRegion), sizes.SymmetricBlockSize)
		padded := appendPadding(plainRegion, padCount)

		civ := effectiveIV(iv, chunkIndex)
		ciphertext, err := provider.SymmetricEncrypt(policy, encryptKey, civ, padded)
		if err != nil {
			log.WithError(err).Error("symmetric encryption failed")
			return nil, fmt.Errorf("chunk: EncodeSymmetric: encrypt: %w", err)
		}
		protected = ciphertext
	} else {
		protected = plainRegion
	}

	out := make([]byte, 0, len(headerBuf.Written())+len(protected)+64)
	out = append(out, headerBuf.Written()...)
	out = append(out, protected...)

	if mode == cryptoprovider.ModeNone {
		return out, nil
	}

	toSign := make([]byte, 0, len(commonHeader)+len(out))
	toSign = append(toSign, commonHeader...)
	toSign = append(toSign, out...)
	signature, err := provider.SymmetricSign(policy, signKey, toSign)
	if err != nil {
		log.WithError(err).Error("symmetric signing failed")
		return nil, fmt.Errorf("chunk: EncodeSymmetric: sign: %w", err)
	}

	return append(out, signature...), nil
}

// DecodeSymmetric is the inverse of EncodeSymmetric: verify the MAC over
// header+ciphertext, then decrypt and unpad.
func DecodeSymmetric(provider cryptoprovider.Provider, policy cryptoprovider.Policy, mode cryptoprovider.Mode, commonHeader []byte, data []byte, signKey, encryptKey, iv []byte, chunkIndex uint32) (SymmetricChunk, error) {
	var out SymmetricChunk

	buf := buffer.Wrap(data)
	header, err := decodeSymmetricHeader(buf)
	if err != nil {
		return out, fmt.Errorf("chunk: DecodeSymmetric: header: %w", err)
	}
	headerLen := len(data) - buf.Len()

	body := data
	if mode != cryptoprovider.ModeNone {
		sizes := provider.Sizes(policy)
		sigSize := sizes.SymmetricSignatureSize
		if sigSize <= 0 || len(data) < headerLen+sigSize {
			return out, fmt.Errorf("chunk: DecodeSymmetric: chunk too short for signature")
		}
		unsigned := data[:len(data)-sigSize]
		signature := data[len(data)-sigSize:]

		toVerify := make([]byte, 0, len(commonHeader)+len(unsigned))
		toVerify = append(toVerify, commonHeader...)
		toVerify = append(toVerify, unsigned...)
		if err := provider.SymmetricVerify(policy, signKey, toVerify, signature); err != nil {
			return out, fmt.Errorf("chunk: DecodeSymmetric: signature verification failed: %w", err)
		}
		body = unsigned
	}

	ciphertext := body[headerLen:]

	var plainRegion []byte
	if mode == cryptoprovider.ModeSignAndEncrypt {
		civ := effectiveIV(iv, chunkIndex)
		padded, err := provider.SymmetricDecrypt(policy, encryptKey, civ, ciphertext)
		if err != nil {
			return out, fmt.Errorf("chunk: DecodeSymmetric: decrypt: %w", err)
		}
		unpadded, ok := stripPadding(padded)
		if !ok {
			return out, fmt.Errorf("chunk: DecodeSymmetric: invalid padding")
		}
		plainRegion = unpadded
	} else {
		plainRegion = ciphertext
	}

	region := buffer.Wrap(plainRegion)
	seq, err := region.ReadUint32()
	if err != nil {
		return out, err
	}
	reqID, err := region.ReadUint32()
	if err != nil {
		return out, err
	}
	appBody, err := region.ReadBytes(region.Len())
	if err != nil {
		return out, err
	}

	out.Header = header
	out.SequenceNumber = seq
	out.RequestID = reqID
	out.Body = appBody
	return out, nil
}
