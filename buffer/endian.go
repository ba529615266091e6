package buffer

import (
	"sync"
	"unsafe"
)

var (
	endianOnce   sync.Once
	hostIsBigEnd bool
)

// HostIsBigEndian reports the native byte order of the running process,
// probed once and cached. OPC UA is little-endian on the wire
// regardless of this value; the codec in this package always emits and
// expects little-endian and never consults HostIsBigEndian itself — it
// exists for the rare platform-specific fast path a concrete transport
// might want (e.g. bulk network-order swaps) without re-probing per call.
func HostIsBigEndian() bool {
	endianOnce.Do(func() {
		var x uint16 = 1
		b := (*[2]byte)(unsafe.Pointer(&x))
		hostIsBigEnd = b[0] == 0
	})
	return hostIsBigEnd
}
