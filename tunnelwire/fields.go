package tunnelwire

import "encoding/binary"

// appendLP appends a 4-byte little-endian length prefix followed by data,
// per the plaintext record field encoding in SPEC_FULL.md §3. A nil/empty
// slice is written as a zero-length field, not omitted.
func appendLP(dst []byte, data []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, data...)
	return dst
}

// readLP reads one length-prefixed field from buf and returns the field
// bytes plus the number of bytes consumed.
func readLP(buf []byte) (field []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, errTruncatedField
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if uint64(4)+uint64(n) > uint64(len(buf)) {
		return nil, 0, errTruncatedField
	}
	return buf[4 : 4+n], 4 + int(n), nil
}
