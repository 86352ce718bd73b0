package tunnelwire

import (
	"bytes"
	"errors"
	"testing"

	"relaytunnel/domain/wire"
	"relaytunnel/relayerr"
)

func roundTrip(t *testing.T, c *Codec, rec wire.Record) wire.Record {
	t.Helper()
	encoded, err := c.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	records, consumed, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	return records[0]
}

func TestRoundTripAllCmds(t *testing.T) {
	c := NewCodec("hunter2")
	cases := []wire.Record{
		wire.NewLogin("deadbeef"),
		wire.NewPing(),
		wire.NewConnectRecord("10.0.0.2:5555", "93.184.216.34:80", wire.TCP),
		wire.NewCloseRecord("10.0.0.2:5555"),
		wire.NewDataRecord("10.0.0.2:5555", "93.184.216.34:80", wire.UDP, []byte("hello")),
		{Cmd: wire.LoginSuccess},
		{Cmd: wire.LoginFail},
		{Cmd: wire.ProtocolError},
		{Cmd: wire.Pong},
	}
	for _, want := range cases {
		got := roundTrip(t, c, want)
		if got.Cmd != want.Cmd || got.Protocol != want.Protocol ||
			got.SourceAddress != want.SourceAddress || got.TargetAddress != want.TargetAddress ||
			!bytes.Equal(got.Data, want.Data) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestRoundTripEmptyAndMaximalFields(t *testing.T) {
	c := NewCodec("pw")
	empty := wire.Record{Cmd: wire.TData}
	got := roundTrip(t, c, empty)
	if got.SourceAddress != "" || got.TargetAddress != "" || len(got.Data) != 0 {
		t.Fatalf("expected all-empty fields, got %+v", got)
	}

	big := wire.Record{
		Cmd:           wire.TData,
		SourceAddress: string(bytes.Repeat([]byte("a"), 2000)),
		TargetAddress: string(bytes.Repeat([]byte("b"), 2000)),
		Data:          bytes.Repeat([]byte{0xAB}, 8192),
	}
	got = roundTrip(t, c, big)
	if got.SourceAddress != big.SourceAddress || got.TargetAddress != big.TargetAddress || !bytes.Equal(got.Data, big.Data) {
		t.Fatalf("maximal-length round trip mismatch")
	}
}

func TestDecodePartialTailWaits(t *testing.T) {
	c := NewCodec("pw")
	full, err := c.Encode(wire.NewPing())
	if err != nil {
		t.Fatal(err)
	}
	partial := full[:len(full)-2]
	records, consumed, err := c.Decode(partial)
	if err != nil {
		t.Fatalf("unexpected error on partial tail: %v", err)
	}
	if len(records) != 0 || consumed != 0 {
		t.Fatalf("expected no records consumed from a partial tail, got %d records consumed=%d", len(records), consumed)
	}
}

func TestDecodeBadMagicIsFatal(t *testing.T) {
	c := NewCodec("pw")
	bad := []byte{0x00, 0x00, 0, 0, 0, 0}
	_, _, err := c.Decode(bad)
	if !errors.Is(err, relayerr.ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestDecodeTwoRecordsBackToBack(t *testing.T) {
	c := NewCodec("pw")
	a, _ := c.Encode(wire.NewPing())
	b, _ := c.Encode(wire.NewCloseRecord("1.2.3.4:80"))
	buf := append(append([]byte{}, a...), b...)

	records, consumed, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d want %d", consumed, len(buf))
	}
	if len(records) != 2 || records[0].Cmd != wire.Ping {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[1].Cmd != wire.CloseConnect || records[1].SourceAddress != "1.2.3.4:80" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestDecryptFailureSkipsOneRecordAndResyncs(t *testing.T) {
	c1 := NewCodec("pw-one")
	c2 := NewCodec("pw-two")

	corrupted, _ := c1.Encode(wire.NewPing())
	good, _ := c2.Encode(wire.NewCloseRecord("9.9.9.9:1"))
	buf := append(append([]byte{}, corrupted...), good...)

	records, consumed, err := c2.Decode(buf)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d want %d", consumed, len(buf))
	}
	if len(records) != 1 || records[0].Cmd != wire.CloseConnect {
		t.Fatalf("expected only the second, correctly-keyed record to survive, got %+v", records)
	}
}
