package framing

// Reassembler accumulates the chunks of one logical message and enforces
// the negotiated chunk-count and message-size bounds as they arrive.
// Chunk-level concerns — sequence numbers, decryption,
// signature verification — are the chunk package's and secchan's; by the
// time a fragment reaches Reassembler it is already an authenticated
// application-layer body.
type Reassembler struct {
	limits NegotiatedLimits

	buf        []byte
	chunkCount int
	active     bool
}

// NewReassembler builds a Reassembler bound by limits.
func NewReassembler(limits NegotiatedLimits) *Reassembler {
	return &Reassembler{limits: limits}
}

// Accept folds one chunk's body into the in-progress message.
// flag == FlagAbort discards the reassembly buffer and reports aborted —
// the channel itself stays up.
// flag == FlagFinal returns the complete reassembled message.
// flag == FlagIntermediate accumulates silently (both return values nil,
// err nil) unless a bound is violated, which is fatal to the channel.
func (r *Reassembler) Accept(flag FinalFlag, body []byte) (message []byte, aborted bool, err error) {
	if flag == FlagAbort {
		r.reset()
		return nil, true, nil
	}

	r.active = true
	r.buf = append(r.buf, body...)
	r.chunkCount++

	if err := ValidateChunkCount(r.chunkCount, r.limits.MaxChunkCount); err != nil {
		r.reset()
		return nil, false, err
	}
	if err := ValidateMessageSize(len(r.buf), r.limits.MaxMessageSize); err != nil {
		r.reset()
		return nil, false, err
	}

	if flag == FlagFinal {
		complete := r.buf
		r.reset()
		return complete, false, nil
	}

	return nil, false, nil
}

// InProgress reports whether a partial message is currently buffered.
func (r *Reassembler) InProgress() bool { return r.active }

func (r *Reassembler) reset() {
	r.buf = nil
	r.chunkCount = 0
	r.active = false
}
