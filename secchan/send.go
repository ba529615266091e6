package secchan

import (
	"fmt"
	"time"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/chunk"
	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/token"
	"github.com/opcua-go/uasc/ua"
)

// sendSymmetricChunk protects and transmits one complete MSG/OPN/CLO
// frame's worth of payload as a single final chunk under tok, at chunk
// index 0 of its logical message. Multi-chunk application sends go through
// Send instead; OPN and CLO bodies are always small enough to fit in one
// chunk.
func (c *Channel) sendSymmetricChunk(msgType framing.MessageType, flag framing.FinalFlag, requestID uint32, tok *token.Token, payload []byte) error {
	totalSize := chunk.SymmetricChunkTotalSize(c.cfg.Provider, c.policy, c.mode, len(payload))
	hdr := framing.Header{Type: msgType, Flag: flag, TotalSize: uint32(totalSize)}
	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}
	secHeader := chunk.SymmetricHeader{SecureChannelID: c.wireChannelID, TokenID: uint32(tok.ID)}
	seq := c.nextSendSeq()

	body, err := c.encodeSymmetricBody(hdrBytes, secHeader, tok, 0, seq, requestID, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(hdr, body)
}

func (c *Channel) encodeSymmetricBody(commonHeader []byte, secHeader chunk.SymmetricHeader, tok *token.Token, chunkIndex, seq, requestID uint32, payload []byte) ([]byte, error) {
	var out []byte
	err := tok.Sender.SignKey.Borrow(func(sign []byte) error {
		return tok.Sender.EncryptKey.Borrow(func(enc []byte) error {
			return tok.Sender.IV.Borrow(func(iv []byte) error {
				var encErr error
				out, encErr = chunk.EncodeSymmetric(c.cfg.Provider, c.policy, c.mode, commonHeader, secHeader, sign, enc, iv, chunkIndex, seq, requestID, payload)
				return encErr
			})
		})
	})
	return out, err
}

func (c *Channel) decodeSymmetricChunk(commonHeader, body []byte, tok *token.Token, chunkIndex uint32) (chunk.SymmetricChunk, error) {
	var out chunk.SymmetricChunk
	err := tok.Receiver.SignKey.Borrow(func(sign []byte) error {
		return tok.Receiver.EncryptKey.Borrow(func(enc []byte) error {
			return tok.Receiver.IV.Borrow(func(iv []byte) error {
				var decErr error
				out, decErr = chunk.DecodeSymmetric(c.cfg.Provider, c.policy, c.mode, commonHeader, body, sign, enc, iv, chunkIndex)
				return decErr
			})
		})
	})
	return out, err
}

// Send encodes typeID and body as one application message, splits it into
// as many symmetric chunks as the negotiated send-direction budget
// requires, protects and transmits each, and registers a pending request
// under requestHandle bounded by timeout. It is the Channel half of
// interfaces.Sender;
// listener.Facade supplies the channelID-keyed routing the interface
// exposes to the service layer.
func (c *Channel) Send(typeID buffer.NodeId, body []byte, requestHandle uint32, timeout time.Duration) error {
	var sendErr error
	c.mailbox.Call(func() error {
		sendErr = c.doSend(typeID, body, requestHandle, timeout)
		return sendErr
	})
	return sendErr
}

func (c *Channel) doSend(typeID buffer.NodeId, body []byte, requestHandle uint32, timeout time.Duration) error {
	if c.state != StateActive && c.state != StateRenewPending {
		return fmt.Errorf("secchan: cannot send on channel in state %s", c.state.String())
	}
	tok := c.tokens.Current()
	if tok == nil {
		return fmt.Errorf("secchan: no current security token")
	}

	payload, err := encodeTypedBody(typeID, body)
	if err != nil {
		return err
	}

	budget, err := chunk.SymmetricPlaintextBudget(c.cfg.Provider, c.policy, c.mode, int(c.sendBufferSize))
	if err != nil {
		return err
	}

	// The originator of a request-response pair picks the request_id; the
	// responder echoes it. On the server side requestHandle is the wire
	// request_id deliver handed to the service layer, so a response sent
	// through here carries the id the client chose.
	var requestID uint32
	if c.role == ua.RoleServer {
		requestID = requestHandle
	} else {
		requestID = c.allocateRequestID()
	}

	var chunks [][]byte
	for off := 0; off < len(payload); off += budget {
		end := off + budget
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	// Bound violations are detected here, before any byte is emitted: a
	// partially transmitted message would be fatal to the channel, while a
	// refused send is local to this one request. The status codes mirror
	// what the receive side reports for the same violations.
	if err := framing.ValidateMessageSize(len(payload), c.limits.MaxMessageSize); err != nil {
		return ua.Recoverable(ua.BadTcpMessageTooLarge, "message exceeds negotiated maximum size", err)
	}
	if err := framing.ValidateChunkCount(len(chunks), c.limits.MaxChunkCount); err != nil {
		return ua.Recoverable(ua.BadEncodingLimitsExceeded, "message exceeds negotiated chunk count", err)
	}

	c.sendChunkIndex = 0
	for i, part := range chunks {
		flag := framing.FlagIntermediate
		if i == len(chunks)-1 {
			flag = framing.FlagFinal
		}
		totalSize := chunk.SymmetricChunkTotalSize(c.cfg.Provider, c.policy, c.mode, len(part))
		hdr := framing.Header{Type: framing.TypeMessage, Flag: flag, TotalSize: uint32(totalSize)}
		hdrBytes, err := hdr.Encode()
		if err != nil {
			return err
		}
		secHeader := chunk.SymmetricHeader{SecureChannelID: c.wireChannelID, TokenID: uint32(tok.ID)}
		seq := c.nextSendSeq()

		out, err := c.encodeSymmetricBody(hdrBytes, secHeader, tok, c.sendChunkIndex, seq, requestID, part)
		if err != nil {
			return err
		}
		if err := c.writeFrame(hdr, out); err != nil {
			return err
		}
		c.sendChunkIndex++
	}

	if c.role == ua.RoleClient {
		c.registerPending(requestID, requestHandle, timeout)
	}
	return nil
}

func (c *Channel) registerPending(requestID, requestHandle uint32, timeout time.Duration) {
	if timeout <= 0 {
		c.pending[requestID] = &pendingRequest{handle: requestHandle}
		return
	}
	t := c.timers.NewTimer(timeout)
	pr := &pendingRequest{handle: requestHandle, deadline: c.timers.Now().Add(timeout), timer: t}
	c.pending[requestID] = pr
	c.watch(t, func() {
		c.failPending(requestID, ua.BadTimeout)
	})
}

// sendClose transmits a final CLO frame under the channel's current
// token.
func (c *Channel) sendClose() error {
	tok := c.tokens.Current()
	if tok == nil {
		return fmt.Errorf("secchan: no current token to protect CLO")
	}
	requestID := c.allocateRequestID()
	payload, err := encodeTypedBody(TypeIDCloseSecureChannelRequest, nil)
	if err != nil {
		return err
	}
	return c.sendSymmetricChunk(framing.TypeClose, framing.FlagFinal, requestID, tok, payload)
}
