// Package tunengine implements the C7 TUN packet engine: the pipe table
// keyed by TCP 4-tuple, the ingest dispatch that drives C6 pipes and the
// flow multiplexer from raw packets read off the TUN device, and the
// outbound queue of synthesized packets to write back to it.
package tunengine

import (
	"fmt"
	"sync"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
	"relaytunnel/ipstack"
	"relaytunnel/tunpipe"
)

const outboundQueueCapacity = 256

type pipeEntry struct {
	pipe      *tunpipe.Pipe
	clientSeq uint32
}

// Engine implements application.TunEngine.
type Engine struct {
	mux application.Multiplexer
	log application.Logger

	mu    sync.Mutex
	pipes map[string]*pipeEntry

	outbound chan []byte
}

var _ application.TunEngine = (*Engine)(nil)

// New creates an Engine driving mux for every flow it opens.
func New(mux application.Multiplexer, log application.Logger) *Engine {
	return &Engine{
		mux:      mux,
		log:      log,
		pipes:    make(map[string]*pipeEntry),
		outbound: make(chan []byte, outboundQueueCapacity),
	}
}

func fourTuple(pkt *ipstack.Packet, srcPort, dstPort uint16) string {
	return fmt.Sprintf("%s:%d>%s:%d", pkt.SourceIP(), srcPort, pkt.DestIP(), dstPort)
}

// Outbound implements application.TunEngine.
func (e *Engine) Outbound() <-chan []byte { return e.outbound }

func (e *Engine) enqueue(b []byte) {
	select {
	case e.outbound <- b:
	default:
		if e.log != nil {
			e.log.Printf("tunengine: outbound queue full, dropping a packet")
		}
	}
}

// Ingest implements application.TunEngine: parses raw_ip_bytes and drives
// the pipe table per SPEC_FULL.md §4.7. Non-IPv4, non-TCP, or truncated
// frames are dropped silently.
func (e *Engine) Ingest(rawIPBytes []byte) {
	pkt, err := ipstack.Parse(rawIPBytes)
	if err != nil {
		return
	}
	if pkt.Protocol() != 6 {
		return
	}
	srcPort, err := pkt.SourcePort()
	if err != nil {
		return
	}
	dstPort, err := pkt.DestPort()
	if err != nil {
		return
	}
	key := fourTuple(pkt, srcPort, dstPort)

	switch {
	case pkt.HasFlag(ipstack.FlagSYN):
		e.ingestSyn(rawIPBytes, pkt, key)
	case pkt.HasFlag(ipstack.FlagFIN):
		e.ingestFin(rawIPBytes, key)
	case pkt.HasFlag(ipstack.FlagPSH):
		e.ingestPsh(rawIPBytes, pkt, key)
	default:
		// Pure ACKs and other control segments need no synthesized
		// reply in this design; drop them.
	}
}

func (e *Engine) ingestSyn(raw []byte, pkt *ipstack.Packet, key string) {
	clientSeq := pkt.Seq()

	e.mu.Lock()
	if existing, ok := e.pipes[key]; ok && existing.clientSeq == clientSeq {
		e.mu.Unlock()
		return // retransmission of an in-flight SYN
	}
	p, err := tunpipe.NewFromSyn(raw)
	if err != nil {
		e.mu.Unlock()
		if e.log != nil {
			e.log.Printf("tunengine: bad SYN packet: %v", err)
		}
		return
	}
	e.pipes[key] = &pipeEntry{pipe: p, clientSeq: clientSeq}
	e.mu.Unlock()

	mb, err := e.mux.AddMailbox(p.Key())
	if err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: AddMailbox(%s): %v", p.Key(), err)
		}
		return
	}
	if err := e.mux.SendNewConnect(p.Key(), p.TargetKey(), wire.TCP); err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: SendNewConnect(%s): %v", p.Key(), err)
		}
	}
	out, err := p.ReplySyn(raw)
	if err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: ReplySyn: %v", err)
		}
	} else {
		e.enqueue(out)
	}

	go e.pumpInbound(key, p, mb)
}

func (e *Engine) ingestPsh(raw []byte, pkt *ipstack.Packet, key string) {
	e.mu.Lock()
	entry, ok := e.pipes[key]
	e.mu.Unlock()
	if !ok {
		return
	}

	payload, err := pkt.Payload()
	if err == nil && len(payload) > 0 {
		if sendErr := e.mux.SendData(entry.pipe.Key(), entry.pipe.TargetKey(), wire.TCP, payload); sendErr != nil {
			if e.log != nil {
				e.log.Printf("tunengine: SendData(%s): %v", entry.pipe.Key(), sendErr)
			}
		}
	}

	out, err := entry.pipe.ReplyPsh(raw)
	if err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: ReplyPsh: %v", err)
		}
		return
	}
	e.enqueue(out)
}

func (e *Engine) ingestFin(raw []byte, key string) {
	e.mu.Lock()
	entry, ok := e.pipes[key]
	if ok {
		delete(e.pipes, key)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if err := e.mux.SendClose(entry.pipe.Key()); err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: SendClose(%s): %v", entry.pipe.Key(), err)
		}
	}
	out, err := entry.pipe.ReplyFin(raw)
	if err != nil {
		if e.log != nil {
			e.log.Printf("tunengine: ReplyFin: %v", err)
		}
		return
	}
	e.enqueue(out)
}

// pumpInbound is the per-pipe inbound task described in SPEC_FULL.md §4.7:
// it drains the mailbox registered for this flow and turns tunnel frames
// into outbound TUN packets until the flow closes.
func (e *Engine) pumpInbound(key string, p *tunpipe.Pipe, mb application.Mailbox) {
	for rec := range mb.Receive() {
		switch rec.Cmd {
		case wire.TData:
			segments, err := p.Push(rec.Data)
			if err != nil {
				if e.log != nil {
					e.log.Printf("tunengine: push(%s): %v", p.Key(), err)
				}
				continue
			}
			for _, seg := range segments {
				e.enqueue(seg)
			}
		case wire.CloseConnect:
			out, err := p.SendFin()
			if err == nil {
				e.enqueue(out)
			}
			e.mu.Lock()
			delete(e.pipes, key)
			e.mu.Unlock()
			e.mux.RemoveMailbox(p.Key())
			return
		}
	}
}
