package ipstack

import (
	"encoding/binary"
	"net"
)

const (
	defaultTTL    = 128
	defaultWindow = 0xFFFF
)

// Build constructs a minimal IPv4+TCP packet: 20-byte IP header, 20-byte
// TCP header, optional payload, TTL 128, window 0xFFFF, flags cleared.
// Callers set flags/sequence/ack and call ComputeIPChecksum/
// ComputeTCPChecksum before emitting the packet.
func Build(id uint16, srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte) *Packet {
	total := minIPv4HeaderLen + minTCPHeaderLen + len(payload)
	buf := make([]byte, total)

	buf[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	binary.BigEndian.PutUint16(buf[4:6], id)
	buf[8] = defaultTTL
	buf[9] = 6 // TCP

	p := &Packet{buf: buf}
	p.SetSourceIP(srcIP)
	p.SetDestIP(dstIP)

	tcp := p.tcp()
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	tcp[12] = byte(minTCPHeaderLen/4) << 4 // data offset = 5 words
	binary.BigEndian.PutUint16(tcp[14:16], defaultWindow)
	copy(tcp[minTCPHeaderLen:], payload)

	return p
}
