package interfaces

import (
	"time"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/ua"
)

// Dispatcher is the ingress half of the service-layer contract:
// on_open, on_receive, on_close. A secure channel calls these exactly once
// per corresponding event, on its service mailbox goroutine (a second
// per-channel mailbox, separate from the one running the state machine).
type Dispatcher interface {
	// OnOpen fires once a channel reaches Active for the first time.
	OnOpen(channelID ua.ChannelID)

	// OnReceive delivers one reassembled, authenticated application message:
	// the service type id decoded from the front of the body, the
	// remaining encoded body, and the request handle correlating it to a
	// pending request on the originating side.
	OnReceive(channelID ua.ChannelID, typeID buffer.NodeId, body []byte, requestHandle uint32)

	// OnClose fires once, when a channel transitions to Closed, carrying
	// the status that caused the close (Good on a clean CLO exchange).
	OnClose(channelID ua.ChannelID, status ua.StatusCode)

	// OnRequestFailure reports a failure scoped to a single request while
	// the channel itself stays up: a pending request that timed out
	// (BadTimeout), a peer-aborted message (the abort chunk's status), or
	// a response body that would not decode (BadDecodingError).
	// requestHandle is the handle supplied to Send for client-originated
	// requests; it is zero when the failure concerns an inbound request
	// that never had a local handle.
	OnRequestFailure(channelID ua.ChannelID, requestHandle uint32, status ua.StatusCode)
}

// Sender is the egress half of the service-layer contract: the single
// entry point the service layer uses to push an application message onto
// a channel's wire. Implemented by secchan.Channel.
type Sender interface {
	// Send encodes typeID and body into one logical message, chunks it per
	// the channel's negotiated limits, protects and transmits each chunk,
	// and registers a pending request under requestHandle with the given
	// timeout. Returns once the message is queued for transmission, not
	// once a response arrives — responses surface through Dispatcher.OnReceive.
	Send(channelID ua.ChannelID, typeID buffer.NodeId, body []byte, requestHandle uint32, timeout time.Duration) error
}
