package framing

import "errors"

// ErrChunkTooLarge is returned when a chunk (inbound or outbound) exceeds
// the negotiated send buffer size for its direction.
var ErrChunkTooLarge = errors.New("framing: chunk exceeds negotiated buffer size")

// ErrChunkCountExceeded is returned when a logical message accumulates
// more chunks than the negotiated max_chunk_count allows.
var ErrChunkCountExceeded = errors.New("framing: chunk count exceeds negotiated maximum")

// ErrMessageTooLarge is returned when a reassembled message's cumulative
// payload exceeds the negotiated max_message_size.
var ErrMessageTooLarge = errors.New("framing: message exceeds negotiated maximum size")

// ValidateOutboundChunkSize rejects an outbound chunk before any byte of
// it is emitted; callers map the error to BadTcpMessageTooLarge.
func ValidateOutboundChunkSize(chunkSize int, negotiatedSendBufferSize uint32) error {
	if negotiatedSendBufferSize != 0 && uint32(chunkSize) > negotiatedSendBufferSize {
		return ErrChunkTooLarge
	}
	return nil
}

// ValidateInboundChunkSize rejects an oversize received chunk; the caller
// must close the transport on this error.
func ValidateInboundChunkSize(chunkSize int, negotiatedReceiveBufferSize uint32) error {
	if negotiatedReceiveBufferSize != 0 && uint32(chunkSize) > negotiatedReceiveBufferSize {
		return ErrChunkTooLarge
	}
	return nil
}

// ValidateChunkCount rejects a message whose accumulated chunk count
// exceeds the negotiated maximum.
func ValidateChunkCount(chunkCount int, negotiatedMaxChunkCount uint32) error {
	if negotiatedMaxChunkCount != 0 && uint32(chunkCount) > negotiatedMaxChunkCount {
		return ErrChunkCountExceeded
	}
	return nil
}

// ValidateMessageSize rejects a reassembled message whose cumulative
// payload exceeds the negotiated maximum.
func ValidateMessageSize(totalBytes int, negotiatedMaxMessageSize uint32) error {
	if negotiatedMaxMessageSize != 0 && uint32(totalBytes) > negotiatedMaxMessageSize {
		return ErrMessageTooLarge
	}
	return nil
}
