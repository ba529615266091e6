package pki

import (
	"crypto/x509"
	"errors"
)

// Verifier is the opaque PKI validation policy port. A server-role secure
// channel calls Verify once, on the client certificate carried by the
// first (asymmetric) Open request. The client role does not call Verify on
// the server certificate it was configured with, and a Renew does not call
// Verify again.
type Verifier interface {
	Verify(cert *x509.Certificate) error
}

// Permissive accepts any certificate. It exists for development and
// interoperability testing where standing up a full PKI is not worth the
// cost; never deploy it.
type Permissive struct{}

func (Permissive) Verify(*x509.Certificate) error { return nil }

// RejectAll refuses every certificate; a safe default for an endpoint that
// has not yet been configured with a real trust policy.
type RejectAll struct{}

var ErrRejected = errors.New("pki: no trust policy configured, rejecting all certificates")

func (RejectAll) Verify(*x509.Certificate) error { return ErrRejected }

// TrustedThumbprints is a minimal allow-list Verifier: a certificate is
// accepted iff its SHA-1 thumbprint is present in the set. Useful for
// pinning a small number of known peers without a full chain-validation
// stack.
type TrustedThumbprints struct {
	allowed map[string]struct{}
	thumb   func(*x509.Certificate) ([]byte, error)
}

// NewTrustedThumbprints builds an allow-list Verifier. thumb computes the
// thumbprint the same way the channel's crypto provider does, so pinned
// values line up with what peers present on the wire.
func NewTrustedThumbprints(thumb func(*x509.Certificate) ([]byte, error), hexThumbprints ...string) *TrustedThumbprints {
	allowed := make(map[string]struct{}, len(hexThumbprints))
	for _, h := range hexThumbprints {
		allowed[h] = struct{}{}
	}
	return &TrustedThumbprints{allowed: allowed, thumb: thumb}
}

func (t *TrustedThumbprints) Verify(cert *x509.Certificate) error {
	sum, err := t.thumb(cert)
	if err != nil {
		return err
	}
	if _, ok := t.allowed[hexEncode(sum)]; !ok {
		return errors.New("pki: certificate thumbprint not in trust list")
	}
	return nil
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xF]
	}
	return string(out)
}
