package secchan

import (
	"crypto/x509"
	"time"

	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/pki"
)

// PolicySpec binds one security policy to the modes an endpoint accepts
// under it.
type PolicySpec struct {
	Policy       cryptoprovider.Policy
	AllowedModes []cryptoprovider.Mode
}

// Allows reports whether mode is permitted under this spec.
func (s PolicySpec) Allows(mode cryptoprovider.Mode) bool {
	for _, m := range s.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Config is the immutable, per-endpoint configuration every Channel is
// built from. It is built once via NewConfig and never mutated afterward,
// so it may be shared by every Channel a listener.Facade attaches.
type Config struct {
	Certificate *x509.Certificate
	PrivateKey  any
	TrustedPKI  pki.Verifier

	SecurityPolicies []PolicySpec

	MaxChunkSizeRX   uint32
	MaxChunkSizeTX   uint32
	MaxChunkCountRX  uint32
	MaxChunkCountTX  uint32
	MaxMessageSizeRX uint32
	MaxMessageSizeTX uint32

	RequestedLifetimeMin time.Duration
	RequestedLifetimeMax time.Duration

	Provider cryptoprovider.Provider

	// OpenDeadline is the hard ceiling between TCP establishment and
	// Active.
	OpenDeadline time.Duration
}

// Option configures a Config built by NewConfig.
type Option func(*Config)

// WithPolicy appends one accepted security policy/mode combination.
func WithPolicy(policy cryptoprovider.Policy, modes ...cryptoprovider.Mode) Option {
	return func(c *Config) {
		c.SecurityPolicies = append(c.SecurityPolicies, PolicySpec{Policy: policy, AllowedModes: modes})
	}
}

// WithIdentity sets the endpoint's own certificate and private key.
func WithIdentity(cert *x509.Certificate, key any) Option {
	return func(c *Config) { c.Certificate = cert; c.PrivateKey = key }
}

// WithTrustedPKI sets the peer-certificate trust verifier.
func WithTrustedPKI(v pki.Verifier) Option {
	return func(c *Config) { c.TrustedPKI = v }
}

// WithChunkLimits sets the negotiated chunk and message size bounds.
func WithChunkLimits(chunkSizeRX, chunkSizeTX, chunkCountRX, chunkCountTX, messageSizeRX, messageSizeTX uint32) Option {
	return func(c *Config) {
		c.MaxChunkSizeRX, c.MaxChunkSizeTX = chunkSizeRX, chunkSizeTX
		c.MaxChunkCountRX, c.MaxChunkCountTX = chunkCountRX, chunkCountTX
		c.MaxMessageSizeRX, c.MaxMessageSizeTX = messageSizeRX, messageSizeTX
	}
}

// WithLifetimeBounds sets the server's requested-lifetime clamp range.
func WithLifetimeBounds(min, max time.Duration) Option {
	return func(c *Config) { c.RequestedLifetimeMin, c.RequestedLifetimeMax = min, max }
}

// WithProvider overrides the crypto provider (defaults to
// cryptoprovider.NewDefaultProvider()).
func WithProvider(p cryptoprovider.Provider) Option {
	return func(c *Config) { c.Provider = p }
}

// WithOpenDeadline overrides the TCP-to-Active timeout.
func WithOpenDeadline(d time.Duration) Option {
	return func(c *Config) { c.OpenDeadline = d }
}

// NewConfig builds a Config with OPC UA's conventional defaults (64KB
// chunk size, 4096 chunk count, 10s open deadline, 1min..24h lifetime
// clamp), applying opts over them.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		MaxChunkSizeRX:       65536,
		MaxChunkSizeTX:       65536,
		MaxChunkCountRX:      4096,
		MaxChunkCountTX:      4096,
		MaxMessageSizeRX:     16 * 1024 * 1024,
		MaxMessageSizeTX:     16 * 1024 * 1024,
		RequestedLifetimeMin: time.Minute,
		RequestedLifetimeMax: 24 * time.Hour,
		OpenDeadline:         10 * time.Second,
		TrustedPKI:           pki.RejectAll{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Provider == nil {
		c.Provider = cryptoprovider.NewDefaultProvider()
	}
	return c
}

// PolicyFor looks up the PolicySpec matching uri, or reports found=false.
func (c *Config) PolicyFor(uri string) (PolicySpec, bool) {
	for _, p := range c.SecurityPolicies {
		if p.Policy.URI == uri {
			return p, true
		}
	}
	return PolicySpec{}, false
}

// ClampLifetime clamps a client-requested token lifetime into
// [RequestedLifetimeMin, RequestedLifetimeMax].
func (c *Config) ClampLifetime(requested time.Duration) time.Duration {
	if requested < c.RequestedLifetimeMin {
		return c.RequestedLifetimeMin
	}
	if requested > c.RequestedLifetimeMax {
		return c.RequestedLifetimeMax
	}
	return requested
}
