package secchan

import (
	"bytes"
	"fmt"
	"time"

	"github.com/opcua-go/uasc/chunk"
	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/token"
	"github.com/opcua-go/uasc/ua"
)

// sendOpen builds and transmits one OpenSecureChannelRequest: Issue is
// protected asymmetrically (no token exists yet); Renew reuses the
// channel's current symmetric token, since both sides already share it at
// the moment Renew is initiated.
func (c *Channel) sendOpen(reqType securityTokenRequestType) error {
	spec, ok := c.cfg.PolicyFor(c.policy.URI)
	if !ok {
		return fmt.Errorf("secchan: no local configuration for policy %q", c.policy.URI)
	}
	if !spec.Allows(c.mode) {
		return fmt.Errorf("secchan: security mode %s not allowed under policy %q", c.mode, c.policy.URI)
	}

	nonceLen := c.policy.SymmetricKeyLength
	var nonce []byte
	if nonceLen > 0 {
		var err error
		nonce, err = c.cfg.Provider.RandomBytes(nonceLen)
		if err != nil {
			return fmt.Errorf("secchan: sendOpen: nonce: %w", err)
		}
	}
	c.nonceLocal = nonce

	reqBody := openRequestBody{
		ClientProtocolVersion: 0,
		RequestType:           reqType,
		SecurityMode:          c.mode,
		ClientNonce:           nonce,
		RequestedLifetimeMs:   uint32(c.cfg.RequestedLifetimeMax.Milliseconds()),
	}
	payload, err := reqBody.encode()
	if err != nil {
		return fmt.Errorf("secchan: sendOpen: encode request: %w", err)
	}
	typed, err := encodeTypedBody(TypeIDOpenSecureChannelRequest, payload)
	if err != nil {
		return err
	}

	c.openRequestID = c.allocateRequestID()

	if reqType == requestTypeIssue {
		return c.sendOpenAsymmetric(typed)
	}
	return c.sendOpenSymmetric(typed)
}

func (c *Channel) sendOpenAsymmetric(payload []byte) error {
	if c.cfg.Certificate == nil || c.cfg.PrivateKey == nil {
		return fmt.Errorf("secchan: no local identity configured for asymmetric open")
	}
	if c.peerCert == nil {
		return fmt.Errorf("secchan: no peer certificate known for asymmetric open")
	}

	thumbprint, err := c.cfg.Provider.Thumbprint(c.peerCert)
	if err != nil {
		return err
	}
	senderCertDER := c.cfg.Certificate.Raw

	totalSize, err := chunk.AsymmetricChunkTotalSize(c.policy, senderCertDER, c.peerCert, thumbprint, len(payload))
	if err != nil {
		return err
	}
	hdr := framing.Header{Type: framing.TypeOpen, Flag: framing.FlagFinal, TotalSize: uint32(totalSize)}
	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}

	secHeader := chunk.AsymmetricHeader{
		SecureChannelID:               c.wireChannelID,
		SecurityPolicyURI:             c.policy.URI,
		SenderCertificateDER:          senderCertDER,
		ReceiverCertificateThumbprint: thumbprint,
	}
	seq := c.nextSendSeq()
	body, err := chunk.EncodeAsymmetric(c.cfg.Provider, c.policy, hdrBytes, secHeader, c.peerCert, c.cfg.PrivateKey, seq, c.openRequestID, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(hdr, body)
}

func (c *Channel) sendOpenSymmetric(payload []byte) error {
	tok := c.tokens.Current()
	if tok == nil {
		return fmt.Errorf("secchan: no current token to protect Renew OPN")
	}
	return c.sendSymmetricChunk(framing.TypeOpen, framing.FlagFinal, c.openRequestID, tok, payload)
}

// handleOpen dispatches an inbound OPN frame by role and by whether the
// channel already has an established symmetric token.
func (c *Channel) handleOpen(hdr framing.Header, body []byte) {
	commonHeader, err := hdr.Encode()
	if err != nil {
		c.fail(ua.BadDecodingError, "failed to re-encode common header", err)
		return
	}

	switch c.role {
	case ua.RoleServer:
		c.handleOpenRequest(commonHeader, body)
	case ua.RoleClient:
		c.handleOpenResponse(commonHeader, body)
	}
}

func (c *Channel) handleOpenRequest(commonHeader, body []byte) {
	switch c.state {
	case StateTCPHandshake, StateOpenPending:
		c.handleOpenRequestAsymmetric(commonHeader, body)
	case StateActive:
		c.handleOpenRequestSymmetric(commonHeader, body)
	default:
		c.fail(ua.BadTcpMessageTypeInvalid, "OPN request received in unexpected state "+c.state.String(), nil)
	}
}

func (c *Channel) handleOpenRequestAsymmetric(commonHeader, body []byte) {
	if c.reassembler == nil {
		c.fail(ua.BadTcpMessageTypeInvalid, "OPN received before HEL", nil)
		return
	}
	if c.cfg.Certificate == nil || c.cfg.PrivateKey == nil {
		c.fail(ua.BadSecurityChecksFailed, "server has no identity configured", nil)
		return
	}

	peeked, _, err := chunk.PeekAsymmetricHeader(body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed OPN asymmetric header", err)
		return
	}
	spec, ok := c.cfg.PolicyFor(peeked.SecurityPolicyURI)
	if !ok {
		c.fail(ua.BadSecurityPolicyRejected, "unsupported security policy "+peeked.SecurityPolicyURI, nil)
		return
	}

	ourThumbprint, err := c.cfg.Provider.Thumbprint(c.cfg.Certificate)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to compute own thumbprint", err)
		return
	}
	if !bytes.Equal(ourThumbprint, peeked.ReceiverCertificateThumbprint) {
		c.fail(ua.BadCertificateInvalid, "OPN addressed to a different certificate", nil)
		return
	}

	senderCert, err := c.cfg.Provider.ParseCertificate(peeked.SenderCertificateDER)
	if err != nil {
		c.fail(ua.BadCertificateInvalid, "malformed sender certificate", err)
		return
	}
	if err := c.cfg.TrustedPKI.Verify(senderCert); err != nil {
		c.fail(ua.BadCertificateInvalid, "sender certificate rejected by trust policy", err)
		return
	}

	decoded, err := chunk.DecodeAsymmetric(c.cfg.Provider, spec.Policy, commonHeader, body, c.cfg.PrivateKey, senderCert)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "asymmetric open decode failed", err)
		return
	}

	req, err := decodeOpenRequestBody(decoded.Body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed OpenSecureChannelRequest body", err)
		return
	}
	if !spec.Allows(req.SecurityMode) {
		c.fail(ua.BadSecurityPolicyRejected, "security mode not allowed under policy", nil)
		return
	}
	if len(req.ClientNonce) > 0 && !c.nonces.Observe(req.ClientNonce) {
		c.fail(ua.BadSecurityChecksFailed, "client nonce reused", nil)
		return
	}

	c.policy = spec.Policy
	c.mode = req.SecurityMode
	c.peerCert = senderCert

	if c.state == StateTCPHandshake {
		c.setState(StateOpenPending)
	}
	if err := c.issueAndRespond(commonHeader, decoded.RequestID, req, true); err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to issue security token", err)
		return
	}
	c.resetSequencing()
	c.setState(StateActive)
	c.dispatch(func() { c.dispatcher.OnOpen(c.id) })
}

func (c *Channel) handleOpenRequestSymmetric(commonHeader, body []byte) {
	tok := c.tokens.Current()
	if tok == nil {
		c.fail(ua.BadSecureChannelTokenUnknown, "Renew OPN received with no current token", nil)
		return
	}
	decoded, err := c.decodeSymmetricChunk(commonHeader, body, tok, 0)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "renew OPN decode failed", err)
		return
	}

	req, err := decodeOpenRequestBody(decoded.Body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed renew OpenSecureChannelRequest body", err)
		return
	}
	if len(req.ClientNonce) > 0 && !c.nonces.Observe(req.ClientNonce) {
		c.fail(ua.BadSecurityChecksFailed, "client nonce reused on renew", nil)
		return
	}

	if err := c.issueAndRespond(commonHeader, decoded.RequestID, req, false); err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to issue renewed security token", err)
		return
	}
	c.resetSequencing()
	c.setState(StateRenewPending)
}

// issueAndRespond derives a fresh token from the peer's nonce and this
// side's own freshly generated nonce, then sends the OPN response
// protected under whichever envelope the request arrived under: asymmetric
// for the first Open, the about-to-be-superseded symmetric token for a
// Renew.
func (c *Channel) issueAndRespond(commonHeader []byte, clientRequestID uint32, req openRequestBody, asymmetric bool) error {
	if c.tokens == nil {
		c.tokens = token.NewRegistry(c.id, c.cfg.Provider, c.policy, c.timers.Now)
	}

	nonceLen := c.policy.SymmetricKeyLength
	var serverNonce []byte
	if nonceLen > 0 {
		var err error
		serverNonce, err = c.cfg.Provider.RandomBytes(nonceLen)
		if err != nil {
			return err
		}
	}

	revised := c.cfg.ClampLifetime(time.Duration(req.RequestedLifetimeMs) * time.Millisecond)

	oldToken := c.tokens.Current()
	newTok, err := c.tokens.Issue(serverNonce, req.ClientNonce, revised)
	if err != nil {
		return err
	}
	c.scheduleTokenTimers(newTok)

	resp := openResponseBody{
		ServerProtocolVersion: 0,
		TokenID:               uint32(newTok.ID),
		CreatedAtUnixMs:       uint64(newTok.CreatedAt.UnixMilli()),
		RevisedLifetimeMs:     uint32(revised.Milliseconds()),
		ServerNonce:           serverNonce,
	}
	payload, err := resp.encode()
	if err != nil {
		return err
	}
	typed, err := encodeTypedBody(TypeIDOpenSecureChannelResponse, payload)
	if err != nil {
		return err
	}

	if asymmetric {
		return c.sendOpenResponseAsymmetric(clientRequestID, typed)
	}
	// Renew: reply under the token that was current when the request
	// arrived, not the freshly minted one the client cannot derive until it
	// has processed this very response.
	return c.sendSymmetricChunk(framing.TypeOpen, framing.FlagFinal, clientRequestID, oldToken, typed)
}

func (c *Channel) sendOpenResponseAsymmetric(clientRequestID uint32, payload []byte) error {
	thumbprint, err := c.cfg.Provider.Thumbprint(c.peerCert)
	if err != nil {
		return err
	}
	senderCertDER := c.cfg.Certificate.Raw

	totalSize, err := chunk.AsymmetricChunkTotalSize(c.policy, senderCertDER, c.peerCert, thumbprint, len(payload))
	if err != nil {
		return err
	}
	hdr := framing.Header{Type: framing.TypeOpen, Flag: framing.FlagFinal, TotalSize: uint32(totalSize)}
	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}
	secHeader := chunk.AsymmetricHeader{
		SecureChannelID:               c.wireChannelID,
		SecurityPolicyURI:             c.policy.URI,
		SenderCertificateDER:          senderCertDER,
		ReceiverCertificateThumbprint: thumbprint,
	}
	seq := c.nextSendSeq()
	body, err := chunk.EncodeAsymmetric(c.cfg.Provider, c.policy, hdrBytes, secHeader, c.peerCert, c.cfg.PrivateKey, seq, clientRequestID, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(hdr, body)
}

func (c *Channel) handleOpenResponse(commonHeader, body []byte) {
	switch c.state {
	case StateOpenPending:
		c.handleOpenResponseAsymmetric(commonHeader, body)
	case StateRenewPending:
		c.handleOpenResponseSymmetric(commonHeader, body)
	default:
		c.fail(ua.BadTcpMessageTypeInvalid, "OPN response received in unexpected state "+c.state.String(), nil)
	}
}

func (c *Channel) handleOpenResponseAsymmetric(commonHeader, body []byte) {
	if c.peerCert == nil {
		c.fail(ua.BadSecurityChecksFailed, "no configured server certificate for asymmetric open", nil)
		return
	}
	decoded, err := chunk.DecodeAsymmetric(c.cfg.Provider, c.policy, commonHeader, body, c.cfg.PrivateKey, c.peerCert)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "asymmetric open response decode failed", err)
		return
	}
	if decoded.RequestID != c.openRequestID {
		c.fail(ua.BadSecurityChecksFailed, "open response request_id mismatch", nil)
		return
	}
	c.wireChannelID = decoded.Header.SecureChannelID

	resp, err := decodeOpenResponseBody(decoded.Body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed OpenSecureChannelResponse body", err)
		return
	}
	if len(resp.ServerNonce) > 0 && !c.nonces.Observe(resp.ServerNonce) {
		c.fail(ua.BadSecurityChecksFailed, "server nonce reused", nil)
		return
	}

	c.tokens = token.NewRegistry(c.id, c.cfg.Provider, c.policy, c.timers.Now)
	revised := time.Duration(resp.RevisedLifetimeMs) * time.Millisecond
	newTok, err := c.tokens.IssueWithID(ua.TokenID(resp.TokenID), c.nonceLocal, resp.ServerNonce, revised)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to install security token", err)
		return
	}
	c.scheduleTokenTimers(newTok)

	c.resetSequencing()
	c.setState(StateActive)
	c.dispatch(func() { c.dispatcher.OnOpen(c.id) })
	c.signalOpenDone(nil)
}

func (c *Channel) handleOpenResponseSymmetric(commonHeader, body []byte) {
	// The response to a Renew is still wrapped under whichever token was
	// current when we sent the request: the server's previous slot, since
	// issueAndRespond on the server rotated current->previous before
	// replying under the pre-rotation token; symmetrically we must still
	// hold that same token as our own current at this point, since we have
	// not yet processed the response that carries the new one.
	tok := c.tokens.Current()
	if tok == nil {
		c.fail(ua.BadSecureChannelTokenUnknown, "no token available to decode renew response", nil)
		return
	}
	decoded, err := c.decodeSymmetricChunk(commonHeader, body, tok, 0)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "renew response decode failed", err)
		return
	}
	if decoded.RequestID != c.openRequestID {
		c.fail(ua.BadSecurityChecksFailed, "renew response request_id mismatch", nil)
		return
	}

	resp, err := decodeOpenResponseBody(decoded.Body)
	if err != nil {
		c.fail(ua.BadDecodingError, "malformed renew OpenSecureChannelResponse body", err)
		return
	}
	if len(resp.ServerNonce) > 0 && !c.nonces.Observe(resp.ServerNonce) {
		c.fail(ua.BadSecurityChecksFailed, "server nonce reused on renew", nil)
		return
	}

	revised := time.Duration(resp.RevisedLifetimeMs) * time.Millisecond
	newTok, err := c.tokens.IssueWithID(ua.TokenID(resp.TokenID), c.nonceLocal, resp.ServerNonce, revised)
	if err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to install renewed security token", err)
		return
	}
	c.scheduleTokenTimers(newTok)
	c.resetSequencing()
	// Stay in RenewPending: the transition back to Active happens lazily,
	// on the first MSG actually carrying the new token_id, not the moment
	// the handshake completes.
}
