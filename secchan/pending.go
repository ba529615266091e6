package secchan

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opcua-go/uasc/ua"
)

// pendingRequest tracks one sent request awaiting its response: the
// service-layer handle to report against, the deadline the service layer
// supplied, and the timer driving that deadline.
type pendingRequest struct {
	handle   uint32
	deadline time.Time
	timer    interface {
		Stop() bool
	}
}

// failPending resolves one outstanding request with a failure status and
// no wire traffic. Runs on the channel mailbox; firing after the request
// was already matched is a no-op.
func (c *Channel) failPending(requestID uint32, status ua.StatusCode) {
	pr, ok := c.pending[requestID]
	if !ok {
		return
	}
	delete(c.pending, requestID)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"status":     status.String(),
	}).Debug("pending request failed")
	handle := pr.handle
	c.dispatch(func() { c.dispatcher.OnRequestFailure(c.id, handle, status) })
}

// cancelAllPending fails every outstanding request with
// BadSecureChannelClosed, in request-id order so teardown reporting is
// deterministic.
func (c *Channel) cancelAllPending() {
	ids := make([]uint32, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		pr := c.pending[id]
		delete(c.pending, id)
		if pr.timer != nil {
			pr.timer.Stop()
		}
		handle := pr.handle
		c.dispatch(func() { c.dispatcher.OnRequestFailure(c.id, handle, ua.BadSecureChannelClosed) })
	}
}
