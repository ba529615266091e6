// Package framing turns a reliable bidirectional byte stream into a
// sequence of typed logical OPC UA TCP messages and back: the common
// 8-byte header, the Hello/Ack negotiation that fixes the effective
// buffer and chunk-count limits for a connection, and the bound
// enforcement those negotiated limits imply on every subsequent chunk.
package framing
