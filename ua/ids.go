package ua

import "github.com/google/uuid"

// ChannelID locally identifies one secure channel instance within a
// process. It doubles as a correlation id in log fields; uuid.New keeps
// it unique across restarts without a counter that would need to survive
// process lifetime.
type ChannelID string

// NewChannelID mints a fresh locally-unique channel identifier.
func NewChannelID() ChannelID {
	return ChannelID(uuid.NewString())
}

// RequestID is the per-channel monotonic identifier a client assigns to a
// request and a server echoes on every chunk of the matching response.
type RequestID uint32

// SequenceNumber is a per-chunk, per-direction counter.
type SequenceNumber uint32

// TokenID identifies a security token, monotonic per channel and never
// reused.
type TokenID uint32

// Role distinguishes which end of a secure channel a Channel instance plays.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
