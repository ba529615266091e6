// Package interfaces defines the dispatch contract between a secure channel
// and the service layer that owns it.
//
// # Core Interfaces
//
// [Dispatcher] is implemented by the service layer and called by a
// secchan.Channel on every ingress event: channel up, an authenticated
// application message, and channel down. [Sender] is the egress half,
// implemented by a secchan.Channel and called by the service layer to push
// an application message onto the wire.
//
//	type sessionLayer struct{}
//	func (sessionLayer) OnOpen(id ua.ChannelID) { /* session manager learns of a new channel */ }
//	func (sessionLayer) OnReceive(id ua.ChannelID, typeID buffer.NodeId, body []byte, handle uint32) {
//	    // decode and route by typeID
//	}
//	func (sessionLayer) OnClose(id ua.ChannelID, status ua.StatusCode) { /* tear down sessions on this channel */ }
//	func (sessionLayer) OnRequestFailure(id ua.ChannelID, handle uint32, status ua.StatusCode) { /* fail the one pending call */ }
//
// The service layer's own state machine (sessions, subscriptions,
// browse/read/write semantics) is an external collaborator this
// module never constructs, only calls into through this boundary.
//
// # Thread Safety
//
// A Dispatcher's methods are invoked from the owning channel's service
// mailbox goroutine (separate from the mailbox that runs the channel's
// state machine), strictly in submission order for that
// channel; a Dispatcher shared across channels must still expect concurrent
// calls from different channels' mailboxes.
package interfaces
