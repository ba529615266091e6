// Package pki defines the certificate-store / trust-verifier port.
// Validation policy is consumed as an opaque verifier: a server-role
// secchan channel calls Verifier.Verify once, on the client certificate at
// the first Open, and otherwise never looks inside a certificate.
//
// Three simple implementations are provided: Permissive (accepts
// anything), RejectAll (default-deny) and TrustedThumbprints (a thumbprint
// allow-list with no chain validation). None of them is suitable for a
// production deployment, which should supply an OS-trust-store- or
// CRL-aware Verifier instead.
package pki
