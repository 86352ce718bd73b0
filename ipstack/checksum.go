package ipstack

import "encoding/binary"

// sum16 computes the standard one's-complement sum of data folded to 16
// bits, padding a trailing odd byte with zero.
func sum16(data []byte) uint32 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum
}

func checksumFold(sum uint32) uint16 {
	return ^uint16(sum)
}

// ComputeIPChecksum recomputes and writes the IPv4 header checksum. It
// covers the IP header only, with the checksum field itself zeroed first.
func (p *Packet) ComputeIPChecksum() {
	header := p.buf[:p.IHL()]
	header[10] = 0
	header[11] = 0
	cs := checksumFold(sum16(header))
	binary.BigEndian.PutUint16(header[10:12], cs)
}

// ComputeTCPChecksum recomputes and writes the TCP checksum, covering the
// IPv4 pseudo-header, the TCP header, and the payload (zero-padded to an
// even length if necessary).
func (p *Packet) ComputeTCPChecksum() error {
	if err := p.requireTCP(); err != nil {
		return err
	}
	tcpSegment := p.tcp()
	tcpSegment[16] = 0
	tcpSegment[17] = 0

	pseudo := make([]byte, 12)
	copy(pseudo[0:4], p.SourceIP().To4())
	copy(pseudo[4:8], p.DestIP().To4())
	pseudo[9] = 6 // protocol = TCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(tcpSegment)))

	full := append(pseudo, tcpSegment...)
	cs := checksumFold(sum16(full))
	binary.BigEndian.PutUint16(tcpSegment[16:18], cs)
	return nil
}
