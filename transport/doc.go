// Package transport defines the byte-stream port a secure channel runs
// over and a concrete TCP implementation of it. Concrete socket I/O stays
// behind the Conn/Listener/Dialer interfaces; framing and secchan never
// import net directly. This package exists so listener.Facade and the
// cmd/uascd demo have something real to accept and dial.
package transport
