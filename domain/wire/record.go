package wire

// Record is the plaintext payload carried inside a tunnel frame's
// ciphertext, per the wire layout in SPEC_FULL.md §3.
type Record struct {
	Cmd            Cmd
	Protocol       Protocol
	SourceAddress  string
	TargetAddress  string
	Data           []byte
}

// NewLogin builds a Login record whose Data is the ASCII-hex MD5 digest of
// the shared password, per §4.4 step 1.
func NewLogin(passwordHexMD5 string) Record {
	return Record{Cmd: Login, Data: []byte(passwordHexMD5)}
}

// NewPing builds an empty Ping record.
func NewPing() Record {
	return Record{Cmd: Ping}
}

// NewConnectRecord builds a NewConnect record for a flow opening `target`
// from `source`.
func NewConnectRecord(source, target string, proto Protocol) Record {
	return Record{Cmd: NewConnect, Protocol: proto, SourceAddress: source, TargetAddress: target}
}

// NewCloseRecord builds a CloseConnect record for the flow keyed by source.
func NewCloseRecord(source string) Record {
	return Record{Cmd: CloseConnect, SourceAddress: source}
}

// NewDataRecord builds a TData record carrying payload bytes for a flow.
func NewDataRecord(source, target string, proto Protocol, payload []byte) Record {
	return Record{Cmd: TData, Protocol: proto, SourceAddress: source, TargetAddress: target, Data: payload}
}
