package application

import "relaytunnel/domain/wire"

// Tunnel is the C4 tunnel transport port: one long-lived encrypted TCP
// connection to a remote relay.
type Tunnel interface {
	// Write encodes and sends rec; it fails loudly if the socket is down.
	Write(rec wire.Record) error

	// Status reports the current lifecycle state.
	Status() wire.Status

	// Close tears down the reader goroutine and the socket.
	Close() error

	// Upload and Download sample-and-reset the byte counters: each call
	// returns the delta accumulated since the previous call.
	Upload() int64
	Download() int64

	// PingDelay returns the last measured round-trip time in milliseconds,
	// or -1 if no pong has been observed yet.
	PingDelay() int32
}

// InboundSink receives the CloseConnect/TData records a Tunnel's reader
// loop decodes, so it can hand them to the flow multiplexer (C5) without
// the transport needing to know about routing.
type InboundSink interface {
	Deliver(rec wire.Record)
}
