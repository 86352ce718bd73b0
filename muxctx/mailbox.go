package muxctx

import "relaytunnel/domain/wire"

const mailboxCapacity = 64

// mailbox is the concrete application.Mailbox: a bounded FIFO channel plus
// the means to close it when the flow is removed.
type mailbox struct {
	ch chan wire.Record
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan wire.Record, mailboxCapacity)}
}

func (m *mailbox) Receive() <-chan wire.Record { return m.ch }

// deliver is best-effort: a full mailbox means a stuck handler, and the
// inbound demultiplexer must never block on one slow flow (SPEC_FULL.md
// §5 "cross-flow ordering is unspecified").
func (m *mailbox) deliver(rec wire.Record) bool {
	select {
	case m.ch <- rec:
		return true
	default:
		return false
	}
}

func (m *mailbox) close() { close(m.ch) }
