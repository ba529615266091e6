// Package ua defines the small set of types shared across every layer of the
// secure-channel stack: status codes, channel/security identifiers, and the
// channel-level error used to distinguish fatal from recoverable failures.
//
// Nothing in this package touches the wire or a socket; it exists so that
// buffer, cryptoprovider, chunk, framing, secchan and listener can all refer
// to the same vocabulary without importing one another.
package ua
