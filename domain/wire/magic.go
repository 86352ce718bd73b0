package wire

// MagicByte1 and MagicByte2 mark the start of both the outer frame (before
// the ciphertext) and the plaintext record (after decryption).
const (
	MagicByte1 = 0x0F
	MagicByte2 = 0x2F
)

// Magic is the two-byte marker shared by frame and record.
var Magic = [2]byte{MagicByte1, MagicByte2}

// FramePrefixSize is magic(2) + length(4).
const FramePrefixSize = 6

// MaxRecordSize bounds the rolling decode buffer. A peer that claims a
// larger ciphertext length than this is treated as desynchronized rather
// than given an unbounded allocation.
const MaxRecordSize = 256 * 1024
