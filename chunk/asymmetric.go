package chunk

import (
	"crypto/x509"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
)

// AsymmetricHeader is the security header that precedes the sequence
// header on every OPN chunk: channel id, negotiated policy,
// sender's own certificate, and the thumbprint identifying which of the
// receiver's certificates this chunk was encrypted for.
type AsymmetricHeader struct {
	SecureChannelID               uint32
	SecurityPolicyURI             string
	SenderCertificateDER          []byte
	ReceiverCertificateThumbprint []byte
}

func (h AsymmetricHeader) encode(buf *buffer.Buffer) error {
	if err := buf.WriteUint32(h.SecureChannelID); err != nil {
		return err
	}
	uri := h.SecurityPolicyURI
	if err := buf.WriteString(&uri); err != nil {
		return err
	}
	if err := buf.WriteByteString(h.SenderCertificateDER); err != nil {
		return err
	}
	return buf.WriteByteString(h.ReceiverCertificateThumbprint)
}

func decodeAsymmetricHeader(buf *buffer.Buffer) (AsymmetricHeader, error) {
	var h AsymmetricHeader
	id, err := buf.ReadUint32()
	if err != nil {
		return h, err
	}
	uri, err := buf.ReadString()
	if err != nil {
		return h, err
	}
	cert, err := buf.ReadByteString()
	if err != nil {
		return h, err
	}
	thumb, err := buf.ReadByteString()
	if err != nil {
		return h, err
	}
	h.SecureChannelID = id
	if uri != nil {
		h.SecurityPolicyURI = *uri
	}
	h.SenderCertificateDER = cert
	h.ReceiverCertificateThumbprint = thumb
	return h, nil
}

// AsymmetricChunk is one decoded OPN chunk: the security header plus the
// sequence header fields and the verified, decrypted application body.
type AsymmetricChunk struct {
	Header         AsymmetricHeader
	SequenceNumber uint32
	RequestID      uint32
	Body           []byte
}

// PeekAsymmetricHeader parses just the plaintext AsymmetricHeader prefix of
// a received OPN chunk's security-header-onward bytes, returning it
// alongside the still-encrypted remainder. The receiver needs the header's
// SecurityPolicyURI and SenderCertificateDER to resolve which policy and
// sender certificate to hand to DecodeAsymmetric before the ciphertext can
// be touched at all.
func PeekAsymmetricHeader(data []byte) (AsymmetricHeader, []byte, error) {
	buf := buffer.Wrap(data)
	header, err := decodeAsymmetricHeader(buf)
	if err != nil {
		return AsymmetricHeader{}, nil, fmt.Errorf("chunk: PeekAsymmetricHeader: %w", err)
	}
	headerLen := len(data) - buf.Len()
	return header, data[headerLen:], nil
}

// EncodeAsymmetric builds the security-header-onward bytes of one OPN
// chunk: sign the header+sequence+body with the sender's private key, then
// RSA-encrypt the sequence header, body, and signature under the
// receiver's public key. commonHeader is
// the already-serialized 8-byte transport header, included in the
// signature but not otherwise touched by this function — framing owns it.
func EncodeAsymmetric(provider cryptoprovider.Provider, policy cryptoprovider.Policy, commonHeader []byte, header AsymmetricHeader, receiverCert *x509.Certificate, senderPrivateKey any, sequenceNumber, requestID uint32, body []byte) ([]byte, error) {
	log := logrus.WithFields(logrus.Fields{"component": "chunk", "op": "EncodeAsymmetric", "policy": policy.URI})

	headerBuf := buffer.New(8 + 4 + len(header.SecurityPolicyURI) + 4 + len(header.SenderCertificateDER) + 4 + len(header.ReceiverCertificateThumbprint))
	if err := header.encode(headerBuf); err != nil {
		return nil, fmt.Errorf("chunk: EncodeAsymmetric: header: %w", err)
	}

	plainBuf := buffer.New(8 + len(body))
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

	toSign := make([]byte, 0, len(commonHeader)+len(headerBuf.Written())+len(plainRegion))
	toSign = append(toSign, commonHeader...)
	toSign = append(toSign, headerBuf.Written()...)
	toSign = append(toSign, plainRegion...)

	signature, err := provider.AsymmetricSign(policy, senderPrivateKey, toSign)
	if err != nil {
		log.WithError(err).Error("asymmetric signing failed")
		return nil, fmt.Errorf("chunk: EncodeAsymmetric: sign: %w", err)
	}

	toEncrypt := make([]byte, 0, len(plainRegion)+len(signature))
	toEncrypt = append(toEncrypt, plainRegion...)
	toEncrypt = append(toEncrypt, signature...)

	ciphertext, err := asymmetricEncryptBlocks(provider, policy, receiverCert, toEncrypt)
	if err != nil {
		log.WithError(err).Error("asymmetric encryption failed")
		return nil, fmt.Errorf("chunk: EncodeAsymmetric: encrypt: %w", err)
	}

	out := make([]byte, 0, len(headerBuf.Written())+len(ciphertext))
	out = append(out, headerBuf.Written()...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecodeAsymmetric parses and decrypts the security-header-onward bytes of
// a received OPN chunk, verifying the sign-then-encrypt envelope against
// the sender's certificate.
func DecodeAsymmetric(provider cryptoprovider.Provider, policy cryptoprovider.Policy, commonHeader []byte, data []byte, receiverPrivateKey any, senderCert *x509.Certificate) (AsymmetricChunk, error) {
	var out AsymmetricChunk

	buf := buffer.Wrap(data)
	header, err := decodeAsymmetricHeader(buf)
	if err != nil {
		return out, fmt.Errorf("chunk: DecodeAsymmetric: header: %w", err)
	}
	headerLen := len(data) - buf.Len()
	headerBytes := data[:headerLen]
	ciphertext := data[headerLen:]

	plaintext, err := asymmetricDecryptBlocks(provider, policy, receiverPrivateKey, ciphertext)
	if err != nil {
		return out, fmt.Errorf("chunk: DecodeAsymmetric: decrypt: %w", err)
	}

	sigSize := rsaModulusBytes(senderCert)
	if sigSize == 0 || len(plaintext) < sigSize+8 {
		return out, fmt.Errorf("chunk: DecodeAsymmetric: decrypted region too short for signature")
	}

	plainRegion := plaintext[:len(plaintext)-sigSize]
	signature := plaintext[len(plaintext)-sigSize:]

	toVerify := make([]byte, 0, len(commonHeader)+len(headerBytes)+len(plainRegion))
	toVerify = append(toVerify, commonHeader...)
	toVerify = append(toVerify, headerBytes...)
	toVerify = append(toVerify, plainRegion...)

	if err := provider.AsymmetricVerify(policy, senderCert, toVerify, signature); err != nil {
		return out, fmt.Errorf("chunk: DecodeAsymmetric: signature verification failed: %w", err)
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
	body, err := region.ReadBytes(region.Len())
	if err != nil {
		return out, err
	}

	out.Header = header
	out.SequenceNumber = seq
	out.RequestID = reqID
	out.Body = body
	return out, nil
}

// asymmetricEncryptBlocks RSA-encrypts data one plaintext-sized block at a
// time, concatenating the fixed-size ciphertext blocks — the standard OPC
// UA scheme for bodies larger than a single RSA operation can cover.
func asymmetricEncryptBlocks(provider cryptoprovider.Provider, policy cryptoprovider.Policy, cert *x509.Certificate, data []byte) ([]byte, error) {
	modulusBytes := rsaModulusBytes(cert)
	sizes := cryptoprovider.AsymmetricSizesForKey(policy, modulusBytes)
	maxPlain := sizes.AsymmetricPlaintextMaxSize
	if maxPlain <= 0 {
		return nil, fmt.Errorf("chunk: non-positive asymmetric plaintext block size")
	}

	var out []byte
	for off := 0; off < len(data); off += maxPlain {
		end := off + maxPlain
		if end > len(data) {
			end = len(data)
		}
		block, err := provider.AsymmetricEncrypt(policy, cert, data[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// asymmetricDecryptBlocks is the inverse of asymmetricEncryptBlocks.
func asymmetricDecryptBlocks(provider cryptoprovider.Provider, policy cryptoprovider.Policy, priv any, ciphertext []byte) ([]byte, error) {
	modulusBytes := rsaPrivateModulusBytes(priv)
	if modulusBytes <= 0 {
		return nil, fmt.Errorf("chunk: unsupported private key type for asymmetric decryption")
	}
	if len(ciphertext)%modulusBytes != 0 {
		return nil, fmt.Errorf("chunk: ciphertext length %d not a multiple of modulus size %d", len(ciphertext), modulusBytes)
	}

	var out []byte
	for off := 0; off < len(ciphertext); off += modulusBytes {
		block, err := provider.AsymmetricDecrypt(policy, priv, ciphertext[off:off+modulusBytes])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}
