package secchan

import (
	"fmt"
	"io"
	"time"

	"github.com/opcua-go/uasc/framing"
	"github.com/opcua-go/uasc/ua"
)

// frameWriteTimeout bounds one chunk write so a wedged peer cannot stall
// the mailbox goroutine forever. Reads carry no deadline: a healthy
// channel may legitimately sit idle far longer than any reasonable read
// timeout, and teardown unblocks the read by closing the conn.
const frameWriteTimeout = 60 * time.Second

// readLoop is the one goroutine per Channel that touches conn.Read. Every
// frame it decodes is handed to the mailbox as a single task, so frame
// handling itself runs serialized with timers and outbound Sends; readLoop
// never mutates Channel state directly.
func (c *Channel) readLoop() {
	for {
		hdr, body, err := c.readFrame()
		if err != nil {
			if err == io.EOF {
				c.mailbox.Submit(func() {
					c.fail(ua.BadSecureChannelClosed, "transport closed", err)
				})
			} else {
				c.mailbox.Submit(func() {
					c.fail(ua.BadSecureChannelClosed, "transport read error", err)
				})
			}
			return
		}

		h, b := hdr, body
		c.mailbox.Submit(func() {
			c.handleFrame(h, b)
		})

		// handleFrame may have closed the channel; stop reading once it
		// has, rather than attempting another blocking read on a closed
		// conn. closedFlag is set from the mailbox goroutine in fail()
		// and only ever read here, so a plain atomic is enough.
		if c.closedFlag.Load() {
			return
		}
	}
}

func (c *Channel) readFrame() (framing.Header, []byte, error) {
	hdrBuf := make([]byte, framing.HeaderSize)
	if _, err := io.ReadFull(c.conn, hdrBuf); err != nil {
		return framing.Header{}, nil, err
	}
	hdr, err := framing.DecodeHeader(hdrBuf)
	if err != nil {
		return framing.Header{}, nil, err
	}
	if hdr.TotalSize < framing.HeaderSize {
		return framing.Header{}, nil, fmt.Errorf("secchan: chunk total size %d smaller than header", hdr.TotalSize)
	}
	if err := framing.ValidateInboundChunkSize(int(hdr.TotalSize), c.cfg.MaxChunkSizeRX); err != nil {
		return framing.Header{}, nil, err
	}
	body := make([]byte, hdr.TotalSize-framing.HeaderSize)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return framing.Header{}, nil, err
	}
	return hdr, body, nil
}

// writeFrame sends one already-assembled chunk (header + body) to the
// peer; writes of one chunk are atomic from the caller's perspective since
// conn.Write is only ever invoked from the mailbox goroutine.
func (c *Channel) writeFrame(hdr framing.Header, securityBody []byte) error {
	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}
	// Before Hello/Ack completes only our own configured bound exists;
	// afterwards the negotiated own-direction bound governs.
	bound := c.cfg.MaxChunkSizeTX
	if c.sendBufferSize != 0 {
		bound = c.sendBufferSize
	}
	if err := framing.ValidateOutboundChunkSize(len(hdrBytes)+len(securityBody), bound); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(hdrBytes); err != nil {
		return err
	}
	_, err = c.conn.Write(securityBody)
	return err
}
