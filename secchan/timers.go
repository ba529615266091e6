package secchan

import (
	"github.com/opcua-go/uasc/eventbus"
	"github.com/opcua-go/uasc/token"
	"github.com/opcua-go/uasc/ua"
)

// watch spawns one supervised goroutine that waits for t to fire (or the
// channel's context to be cancelled) and, on fire, submits onFire to the
// mailbox so the timer callback runs serialized with every other event.
func (c *Channel) watch(t eventbus.Timer, onFire func()) {
	c.g.Go(func() error {
		select {
		case <-t.C():
			c.mailbox.Submit(onFire)
		case <-c.ctx.Done():
		}
		return nil
	})
}

// scheduleOpenDeadline arms the hard ceiling between TCP establishment and
// Active.
func (c *Channel) scheduleOpenDeadline() {
	c.openDeadlineTimer = c.timers.NewTimer(c.cfg.OpenDeadline)
	c.watch(c.openDeadlineTimer, func() {
		if c.state == StateActive || c.state == StateClosed || c.state == StateClosing {
			return
		}
		c.fail(ua.BadTimeout, "open deadline elapsed before channel reached Active", nil)
	})
}

// scheduleTokenTimers (re)arms the renewal-due and expiry timers against a
// freshly issued token, replacing whatever was previously scheduled. Only the
// client side proactively initiates Renew; both sides enforce the hard expiry.
func (c *Channel) scheduleTokenTimers(tok *token.Token) {
	if c.tokenRenewalTimer != nil {
		c.tokenRenewalTimer.Stop()
		c.tokenRenewalTimer = nil
	}
	if c.tokenExpiryTimer != nil {
		c.tokenExpiryTimer.Stop()
		c.tokenExpiryTimer = nil
	}

	now := c.timers.Now()

	if c.role == ua.RoleClient {
		renewIn := tok.RenewalDueAt().Sub(now)
		if renewIn < 0 {
			renewIn = 0
		}
		c.tokenRenewalTimer = c.timers.NewTimer(renewIn)
		c.watch(c.tokenRenewalTimer, c.onRenewalDue)
	}

	expireIn := tok.ExpiresAt().Sub(now)
	if expireIn < 0 {
		expireIn = 0
	}
	c.tokenExpiryTimer = c.timers.NewTimer(expireIn)
	c.watch(c.tokenExpiryTimer, func() {
		c.fail(ua.BadSecureChannelClosed, "security token lifetime exceeded without renewal", nil)
	})
}

// onRenewalDue fires at 75% of the current token's lifetime. A renewal already
// in flight or a channel that is no longer Active is left alone.
func (c *Channel) onRenewalDue() {
	if c.state != StateActive {
		return
	}
	c.setState(StateRenewPending)
	if err := c.sendOpen(requestTypeRenew); err != nil {
		c.fail(ua.BadSecurityChecksFailed, "failed to send renew OPN", err)
	}
}
