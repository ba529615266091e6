// Package secchan implements the OPC UA secure-channel state machine: the
// Open/Renew/Close lifecycle, sequence-number and token discipline, and
// the dispatch contract to the service layer (package interfaces). There
// is no session or subscription facade here; those belong to the service
// layer that consumes this package.
//
// A Channel owns exactly one transport.Conn and runs its state transitions
// on a single eventbus.Mailbox, so the state machine body itself never
// needs a lock. Cryptographic work is delegated to a
// cryptoprovider.Provider and chunk's header/padding/signing functions;
// token derivation and rollover go through token.Registry.
package secchan
