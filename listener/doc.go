// Package listener accepts or initiates transports and attaches a secure
// channel to each, owning the bounded connection pool. A Facade is the
// single object a server or client process stands up: it tracks every
// live channel, routes service-layer sends to the right one, and releases
// pool capacity as channels die.
package listener
