package secchan

import (
	"errors"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/ua"
)

// handleFrame routes one received chunk by its transport-header type. It
// runs as a mailbox task, so every branch below may mutate channel state
// freely. Arrivals after Closed are discarded.
func (c *Channel) handleFrame(hdr framing.Header, body []byte) {
	if c.state == StateClosed {
		return
	}
	switch hdr.Type {
	case framing.TypeHello:
		c.handleHello(body)
	case framing.TypeAcknowledge:
		c.handleAck(body)
	case framing.TypeReverseHello:
		c.handleReverseHello(body)
	case framing.TypeError:
		c.handleError(body)
	case framing.TypeOpen:
		c.handleOpen(hdr, body)
	case framing.TypeMessage:
		c.handleSecured(hdr, body, false)
	case framing.TypeClose:
		c.handleSecured(hdr, body, true)
	default:
		c.fail(ua.BadTcpMessageTypeInvalid, "unknown message type "+string(hdr.Type), nil)
	}
}

// handleSecured unprotects one symmetric MSG/CLO chunk, enforces sequence
// and token discipline, and feeds the cleartext into reassembly. isClose
// marks CLO chunks, whose reassembled body tears the channel down instead
// of reaching the service layer.
func (c *Channel) handleSecured(hdr framing.Header, body []byte, isClose bool) {
	if c.state != StateActive && c.state != StateRenewPending {
		c.fail(ua.BadTcpMessageTypeInvalid, "secured chunk received in state "+c.state.String(), nil)
		return
	}

	tokenID, err := peekTokenID(body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed symmetric security header", err)
		return
	}
	tok, err := c.tokens.SelectForReceive(ua.TokenID(tokenID))
	if err != nil {
		c.fail(ua.BadSecureChannelTokenUnknown, "chunk carries unknown token id", err)
		return
	}

	commonHeader, err := hdr.Encode()
	if err != nil {
		c.fail(ua.BadDecodingError, "failed to re-encode common header", err)
		return
	}
	decoded, err := c.decodeSymmetricChunk(commonHeader, body, tok, c.recvChunkIndex)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "symmetric chunk unprotect failed", err)
		return
	}
	if err := c.validateRecvSeq(decoded.SequenceNumber); err != nil {
		c.fail(ua.BadSecurityChecksFailed, "sequence number violation", err)
		return
	}

	// Lazy completion of a renew: the first chunk actually carried under
	// the new current token retires the superseded one.
	if c.state == StateRenewPending {
		if cur := c.tokens.Current(); cur != nil && tok.ID == cur.ID {
			c.tokens.DropPrevious()
			c.setState(StateActive)
		}
	}

	if hdr.Flag == framing.FlagAbort {
		c.recvChunkIndex = 0
		_, _, _ = c.reassembler.Accept(framing.FlagAbort, nil)
		status, _ := framing.DecodeErrorBody(decoded.Body)
		handle := c.takePendingHandle(decoded.RequestID)
		c.log.WithField("request_id", decoded.RequestID).Debug("message aborted by peer")
		c.dispatch(func() { c.dispatcher.OnRequestFailure(c.id, handle, ua.StatusCode(status)) })
		return
	}

	message, _, err := c.reassembler.Accept(hdr.Flag, decoded.Body)
	if err != nil {
		c.recvChunkIndex = 0
		switch {
		case errors.Is(err, framing.ErrChunkCountExceeded):
			c.fail(ua.BadEncodingLimitsExceeded, "chunk count exceeded", err)
		default:
			c.fail(ua.BadTcpMessageTooLarge, "message size exceeded", err)
		}
		return
	}
	if message == nil {
		c.recvChunkIndex++
		return
	}
	c.recvChunkIndex = 0

	if isClose {
		c.handleCloseMessage()
		return
	}
	c.deliver(decoded.RequestID, message)
}

// deliver decodes the reassembled message's type id and hands the body to
// the service layer, pairing client-side responses with their pending
// request. A body that will not decode is local to that one request; the
// channel stays up.
func (c *Channel) deliver(requestID uint32, message []byte) {
	typeID, appBody, err := decodeTypedBody(message)
	if err != nil {
		handle := c.takePendingHandle(requestID)
		c.log.WithField("request_id", requestID).WithError(err).Warn("undecodable message body")
		c.dispatch(func() { c.dispatcher.OnRequestFailure(c.id, handle, ua.BadDecodingError) })
		return
	}

	if c.role == ua.RoleClient {
		pr, ok := c.pending[requestID]
		if !ok {
			// Unmatched or late response: the timeout already reported it.
			c.log.WithField("request_id", requestID).Debug("dropping unmatched response")
			return
		}
		delete(c.pending, requestID)
		if pr.timer != nil {
			pr.timer.Stop()
		}
		handle := pr.handle
		c.dispatch(func() { c.dispatcher.OnReceive(c.id, typeID, appBody, handle) })
		return
	}

	// Server role: the wire request_id doubles as the handle the service
	// layer must echo back through Send so the response carries it.
	c.dispatch(func() { c.dispatcher.OnReceive(c.id, typeID, appBody, requestID) })
}

// handleCloseMessage completes a peer-initiated teardown. The CLO body
// itself carries nothing the channel needs beyond its authenticity, which
// the symmetric unprotect already established.
func (c *Channel) handleCloseMessage() {
	c.setState(StateClosing)
	c.fail(ua.Good, "peer closed the channel", nil)
}

// handleReverseHello accepts an RHE frame on a reverse-connect client:
// the listening side learns which endpoint the dialing server wants it to
// open, then proceeds with the ordinary HEL exchange. Framed identically
// to HEL; any other arrival context is a protocol violation.
func (c *Channel) handleReverseHello(body []byte) {
	if c.role != ua.RoleClient || c.state != StateTCPHandshake || !c.awaitingReverse {
		c.fail(ua.BadTcpMessageTypeInvalid, "unexpected RHE", nil)
		return
	}
	c.awaitingReverse = false
	params, err := framing.DecodeHelloParams(body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed RHE", err)
		return
	}
	if params.EndpointURL != "" {
		c.endpointURL = params.EndpointURL
	}
	if err := c.sendHello(); err != nil {
		c.fail(ua.BadTcpNotEnoughResources, "failed to send HEL after RHE", err)
	}
}

// takePendingHandle removes and returns the local handle registered for
// requestID, or zero when this side never registered one (server role, or
// an already-resolved request).
func (c *Channel) takePendingHandle(requestID uint32) uint32 {
	pr, ok := c.pending[requestID]
	if !ok {
		return 0
	}
	delete(c.pending, requestID)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	return pr.handle
}

// peekTokenID reads the token_id out of a symmetric security header
// without consuming the chunk; token selection must happen before any key
// material can be chosen for the unprotect.
func peekTokenID(body []byte) (uint32, error) {
	buf := buffer.Wrap(body)
	if _, err := buf.ReadUint32(); err != nil { // secure_channel_id
		return 0, err
	}
	return buf.ReadUint32()
}
