// Package tunpipe implements the C6 per-flow TCP pipe: the synthetic TCP
// conversation state held at the TUN boundary for one flow, and the
// IP/TCP segments it emits back toward the TUN device.
package tunpipe

import (
	"fmt"
	"net"

	"relaytunnel/application"
	"relaytunnel/ipstack"
)

// DefaultSegmentSize bounds how much payload one Push call frames into a
// single PSH segment; a larger payload is split by the same call into
// several segments.
const DefaultSegmentSize = 1000

// Pipe implements application.TunPipe.
type Pipe struct {
	sourceIP   net.IP
	sourcePort uint16
	targetIP   net.IP
	targetPort uint16

	ident uint16
	seq   uint32
	ack   uint32
}

var _ application.TunPipe = (*Pipe)(nil)

// NewFromSyn creates a pipe for the 4-tuple found in a client SYN packet.
// seq/ack/ident start at zero; ReplySyn performs the first handshake step.
func NewFromSyn(synPacket []byte) (*Pipe, error) {
	pkt, err := ipstack.Parse(synPacket)
	if err != nil {
		return nil, err
	}
	srcPort, err := pkt.SourcePort()
	if err != nil {
		return nil, err
	}
	dstPort, err := pkt.DestPort()
	if err != nil {
		return nil, err
	}
	return &Pipe{
		sourceIP:   append(net.IP(nil), pkt.SourceIP().To4()...),
		sourcePort: srcPort,
		targetIP:   append(net.IP(nil), pkt.DestIP().To4()...),
		targetPort: dstPort,
	}, nil
}

// Key implements application.TunPipe: the client-side flow key "sip:sport".
func (p *Pipe) Key() string {
	return fmt.Sprintf("%s:%d", p.sourceIP, p.sourcePort)
}

// TargetKey is the "dip:dport" string used as the NewConnect target.
func (p *Pipe) TargetKey() string {
	return fmt.Sprintf("%s:%d", p.targetIP, p.targetPort)
}

// reply builds a packet impersonating the target toward the client: the
// local side swaps source/target so the kernel sees a reply from the
// remote endpoint (SPEC_FULL.md §4.6).
func (p *Pipe) reply(flags uint8, payload []byte) ([]byte, error) {
	pkt := ipstack.Build(p.ident, p.targetIP, p.sourceIP, p.targetPort, p.sourcePort, payload)
	pkt.SetFlags(flags)
	pkt.SetSeq(p.seq)
	pkt.SetAck(p.ack)
	pkt.ComputeIPChecksum()
	if err := pkt.ComputeTCPChecksum(); err != nil {
		return nil, err
	}
	return pkt.Bytes(), nil
}

// ReplySyn implements application.TunPipe.
func (p *Pipe) ReplySyn(clientSynPacket []byte) ([]byte, error) {
	pkt, err := ipstack.Parse(clientSynPacket)
	if err != nil {
		return nil, err
	}
	p.ack = pkt.Seq() + 1
	out, err := p.reply(ipstack.FlagSYN|ipstack.FlagACK, nil)
	if err != nil {
		return nil, err
	}
	p.seq++
	return out, nil
}

// ReplyPsh implements application.TunPipe.
func (p *Pipe) ReplyPsh(clientPshPacket []byte) ([]byte, error) {
	pkt, err := ipstack.Parse(clientPshPacket)
	if err != nil {
		return nil, err
	}
	payload, err := pkt.Payload()
	if err != nil {
		return nil, err
	}
	p.seq = pkt.Ack()
	p.ack = pkt.Seq() + uint32(len(payload))
	p.ident++
	return p.reply(ipstack.FlagACK, nil)
}

// Push implements application.TunPipe: chunks payload into ≤DefaultSegmentSize
// PSH segments, each advancing seq by its own length.
func (p *Pipe) Push(payload []byte) ([][]byte, error) {
	var out [][]byte
	for len(payload) > 0 {
		n := DefaultSegmentSize
		if n > len(payload) {
			n = len(payload)
		}
		chunk := payload[:n]
		payload = payload[n:]

		p.ident++
		segment, err := p.reply(ipstack.FlagACK|ipstack.FlagPSH, chunk)
		if err != nil {
			return nil, err
		}
		p.seq += uint32(n)
		out = append(out, segment)
	}
	return out, nil
}

// SendFin implements application.TunPipe.
func (p *Pipe) SendFin() ([]byte, error) {
	out, err := p.reply(ipstack.FlagACK|ipstack.FlagFIN, nil)
	if err != nil {
		return nil, err
	}
	p.seq++
	return out, nil
}

// ReplyFin implements application.TunPipe.
func (p *Pipe) ReplyFin(clientFinPacket []byte) ([]byte, error) {
	pkt, err := ipstack.Parse(clientFinPacket)
	if err != nil {
		return nil, err
	}
	p.ack = pkt.Seq() + 1
	p.ident++
	return p.reply(ipstack.FlagACK|ipstack.FlagFIN, nil)
}
