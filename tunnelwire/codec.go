// Package tunnelwire implements the C1 frame codec: the wire encoding of a
// tunnel frame (magic, big-endian ciphertext length, AES-256-ECB/PKCS7
// ciphertext) and the plaintext record it carries.
package tunnelwire

import (
	"crypto/aes"
	"encoding/binary"
	"errors"
	"fmt"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
	"relaytunnel/relayerr"
)

var (
	errTruncatedField = errors.New("tunnelwire: truncated length-prefixed field")
	errBadMagic       = errors.New("tunnelwire: bad magic")
)

// Codec implements application.FrameCodec for one fixed password.
type Codec struct {
	key []byte
}

// NewCodec derives the AES key from password and returns a ready Codec.
func NewCodec(password string) *Codec {
	return &Codec{key: DeriveKey(password)}
}

var _ application.FrameCodec = (*Codec)(nil)

// Encode implements application.FrameCodec.
func (c *Codec) Encode(rec wire.Record) ([]byte, error) {
	plain := marshalRecord(rec)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("tunnelwire: new cipher: %w", err)
	}
	padded := pkcs7Pad(plain, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	newECBEncrypter(block).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, wire.FramePrefixSize+len(ciphertext))
	out = append(out, wire.Magic[0], wire.Magic[1])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	out = append(out, lenBuf[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decode implements application.FrameCodec. It consumes as many complete
// frames as buf holds and reports how many leading bytes were consumed.
// A bad magic byte is fatal for the stream (relayerr.ErrFraming); a
// decryption or parse failure for one otherwise well-framed record is
// skipped so the stream can keep resynchronizing on the next frame.
func (c *Codec) Decode(buf []byte) ([]wire.Record, int, error) {
	var records []wire.Record
	offset := 0

	for {
		remaining := buf[offset:]
		if len(remaining) < wire.FramePrefixSize {
			return records, offset, nil
		}
		if remaining[0] != wire.Magic[0] || remaining[1] != wire.Magic[1] {
			return records, offset, fmt.Errorf("%w: %v", relayerr.ErrFraming, errBadMagic)
		}
		length := binary.BigEndian.Uint32(remaining[2:6])
		if length > wire.MaxRecordSize {
			return records, offset, fmt.Errorf("%w: record length %d exceeds cap", relayerr.ErrFraming, length)
		}
		if uint64(len(remaining)) < uint64(wire.FramePrefixSize)+uint64(length) {
			// Truncated length: wait for more bytes.
			return records, offset, nil
		}

		ciphertext := remaining[wire.FramePrefixSize : wire.FramePrefixSize+int(length)]
		offset += wire.FramePrefixSize + int(length)

		rec, err := c.decodeOne(ciphertext)
		if err != nil {
			// Skip this record; framing (magic+length) survived.
			continue
		}
		records = append(records, rec)
	}
}

func (c *Codec) decodeOne(ciphertext []byte) (wire.Record, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return wire.Record{}, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return wire.Record{}, errors.New("tunnelwire: ciphertext not block aligned")
	}
	padded := make([]byte, len(ciphertext))
	newECBDecrypter(block).CryptBlocks(padded, ciphertext)
	plain, err := pkcs7Unpad(padded, block.BlockSize())
	if err != nil {
		return wire.Record{}, err
	}
	return unmarshalRecord(plain)
}

func marshalRecord(rec wire.Record) []byte {
	buf := make([]byte, 0, 4+len(rec.SourceAddress)+len(rec.TargetAddress)+len(rec.Data))
	buf = append(buf, wire.Magic[0], wire.Magic[1])
	buf = append(buf, byte(rec.Cmd), byte(rec.Protocol))
	buf = appendLP(buf, []byte(rec.SourceAddress))
	buf = appendLP(buf, []byte(rec.TargetAddress))
	buf = appendLP(buf, rec.Data)
	return buf
}

func unmarshalRecord(plain []byte) (wire.Record, error) {
	if len(plain) < 4 {
		return wire.Record{}, errTruncatedField
	}
	if plain[0] != wire.Magic[0] || plain[1] != wire.Magic[1] {
		return wire.Record{}, errBadMagic
	}
	rec := wire.Record{Cmd: wire.Cmd(plain[2]), Protocol: wire.Protocol(plain[3])}
	rest := plain[4:]

	source, n, err := readLP(rest)
	if err != nil {
		return wire.Record{}, err
	}
	rec.SourceAddress = string(source)
	rest = rest[n:]

	target, n, err := readLP(rest)
	if err != nil {
		return wire.Record{}, err
	}
	rec.TargetAddress = string(target)
	rest = rest[n:]

	data, n, err := readLP(rest)
	if err != nil {
		return wire.Record{}, err
	}
	if len(data) > 0 {
		rec.Data = append([]byte(nil), data...)
	}
	rest = rest[n:]
	_ = rest

	return rec, nil
}
