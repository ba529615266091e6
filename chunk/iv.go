package chunk

// effectiveIV XORs the low 32 bits of the derived IV with chunkIndex
// (big-endian), so consecutive chunks of one message under CBC never
// reuse an identical IV/key pair. The rest of the IV is untouched.
func effectiveIV(iv []byte, chunkIndex uint32) []byte {
	out := make([]byte, len(iv))
	copy(out, iv)
	if len(out) < 4 {
		return out
	}
	tail := out[len(out)-4:]
	tail[0] ^= byte(chunkIndex >> 24)
	tail[1] ^= byte(chunkIndex >> 16)
	tail[2] ^= byte(chunkIndex >> 8)
	tail[3] ^= byte(chunkIndex)
	return out
}
