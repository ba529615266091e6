// Package buffer implements a fixed-capacity byte buffer with independent
// read and write cursors, plus a typed encoder/decoder for a subset of the
// OPC UA built-in scalar types (UInt16, UInt32, UInt64, Int32, Double,
// String, ByteString) and the one composite type the secure-channel layer
// itself needs to read off the wire: the numeric NodeId (for the service
// type id). Boolean, Float, Guid and Variant have no codec here.
//
// The codec stops at what the chunk header and request/response header
// require. The buffer never grows past its configured capacity; writes
// that would overflow return an error instead of reallocating, since every
// caller in this module already knows its negotiated maximum size up front.
package buffer
