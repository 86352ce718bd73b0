package application

import "relaytunnel/domain/wire"

// FrameCodec is the C1 frame codec port: encode one plaintext record into
// wire bytes, and decode a rolling byte buffer into zero or more records.
type FrameCodec interface {
	Encode(rec wire.Record) ([]byte, error)

	// Decode consumes as much of buf as forms complete records and returns
	// the decoded records plus the number of leading bytes of buf that were
	// consumed. Callers retain buf[consumed:] for the next call.
	Decode(buf []byte) (records []wire.Record, consumed int, err error)
}
