// Package ipstack implements the C2 IP/TCP packet view: parsing and
// synthesizing minimal IPv4+TCP frames with standard one's-complement
// checksums, operating on a caller-owned mutable byte buffer.
package ipstack

import (
	"encoding/binary"
	"errors"
	"net"
)

const (
	minIPv4HeaderLen = 20
	minTCPHeaderLen  = 20
)

// TCP flag bits, as they sit in the low byte of the TCP flags field.
const (
	FlagFIN = 1 << 0
	FlagSYN = 1 << 1
	FlagRST = 1 << 2
	FlagPSH = 1 << 3
	FlagACK = 1 << 4
)

var (
	ErrNotIPv4   = errors.New("ipstack: not an IPv4 packet")
	ErrTruncated = errors.New("ipstack: truncated packet")
	ErrNotTCP    = errors.New("ipstack: not a TCP packet")
)

// Packet is a view over a mutable IPv4+TCP byte buffer. It does not copy
// buf; mutators write through to it.
type Packet struct {
	buf []byte
}

// Parse validates buf as a well-formed IPv4 packet and returns a view over
// it. It does not require the transport protocol to be TCP; callers check
// Protocol() before calling TCP-specific accessors.
func Parse(buf []byte) (*Packet, error) {
	if len(buf) < minIPv4HeaderLen {
		return nil, ErrTruncated
	}
	version := buf[0] >> 4
	if version != 4 {
		return nil, ErrNotIPv4
	}
	ihl := int(buf[0]&0x0F) * 4
	if ihl < minIPv4HeaderLen || len(buf) < ihl {
		return nil, ErrTruncated
	}
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if totalLen > len(buf) {
		return nil, ErrTruncated
	}
	return &Packet{buf: buf[:totalLen]}, nil
}

func (p *Packet) Version() int { return int(p.buf[0] >> 4) }
func (p *Packet) IHL() int     { return int(p.buf[0]&0x0F) * 4 }
func (p *Packet) TotalLen() int {
	return int(binary.BigEndian.Uint16(p.buf[2:4]))
}
func (p *Packet) SetTotalLen(n int) {
	binary.BigEndian.PutUint16(p.buf[2:4], uint16(n))
}
func (p *Packet) Identification() uint16 {
	return binary.BigEndian.Uint16(p.buf[4:6])
}
func (p *Packet) SetIdentification(id uint16) {
	binary.BigEndian.PutUint16(p.buf[4:6], id)
}
func (p *Packet) Protocol() uint8 { return p.buf[9] }

func (p *Packet) SourceIP() net.IP { return net.IP(p.buf[12:16]) }
func (p *Packet) DestIP() net.IP  { return net.IP(p.buf[16:20]) }

func (p *Packet) SetSourceIP(ip net.IP) { copy(p.buf[12:16], ip.To4()) }
func (p *Packet) SetDestIP(ip net.IP)   { copy(p.buf[16:20], ip.To4()) }

func (p *Packet) tcpOffset() int { return p.IHL() }

func (p *Packet) tcp() []byte { return p.buf[p.tcpOffset():] }

func (p *Packet) requireTCP() error {
	if p.Protocol() != 6 {
		return ErrNotTCP
	}
	if len(p.buf) < p.tcpOffset()+minTCPHeaderLen {
		return ErrTruncated
	}
	return nil
}

func (p *Packet) SourcePort() (uint16, error) {
	if err := p.requireTCP(); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p.tcp()[0:2]), nil
}

func (p *Packet) DestPort() (uint16, error) {
	if err := p.requireTCP(); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p.tcp()[2:4]), nil
}

func (p *Packet) SetSourcePort(port uint16) { binary.BigEndian.PutUint16(p.tcp()[0:2], port) }
func (p *Packet) SetDestPort(port uint16)   { binary.BigEndian.PutUint16(p.tcp()[2:4], port) }

func (p *Packet) Seq() uint32 { return binary.BigEndian.Uint32(p.tcp()[4:8]) }
func (p *Packet) SetSeq(v uint32) { binary.BigEndian.PutUint32(p.tcp()[4:8], v) }

func (p *Packet) Ack() uint32 { return binary.BigEndian.Uint32(p.tcp()[8:12]) }
func (p *Packet) SetAck(v uint32) { binary.BigEndian.PutUint32(p.tcp()[8:12], v) }

func (p *Packet) DataOffset() int { return int(p.tcp()[12]>>4) * 4 }

func (p *Packet) Flags() uint8      { return p.tcp()[13] }
func (p *Packet) SetFlags(f uint8) { p.tcp()[13] = f }

func (p *Packet) HasFlag(f uint8) bool { return p.Flags()&f != 0 }

func (p *Packet) SetWindow(w uint16) { binary.BigEndian.PutUint16(p.tcp()[14:16], w) }

func (p *Packet) Payload() ([]byte, error) {
	if err := p.requireTCP(); err != nil {
		return nil, err
	}
	off := p.tcpOffset() + p.DataOffset()
	if off > len(p.buf) {
		return nil, ErrTruncated
	}
	return p.buf[off:], nil
}

// Bytes returns the raw buffer backing this view.
func (p *Packet) Bytes() []byte { return p.buf }
