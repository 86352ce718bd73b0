package application

import "relaytunnel/domain/wire"

// Mailbox is the per-flow inbound queue the flow multiplexer (C5) delivers
// tunnel records into, and a handler (C8) or pipe (C6/C7) drains. It is a
// bounded FIFO channel wrapped behind an interface so handlers don't reach
// into multiplexer internals.
type Mailbox interface {
	// Receive returns the channel a handler selects on. The channel is
	// closed when the flow is removed from the multiplexer (on tunnel
	// reconnect, explicit close, or handler teardown).
	Receive() <-chan wire.Record
}
