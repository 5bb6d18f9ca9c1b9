package peerlink

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------
// Encode/Decode round trip
// ---------------------------------------------------------------------

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Packet{
		Type:       PacketTypeHIDReport,
		Slot:       2,
		IsChording: true,
		Payload:    []byte{0x01, 0x02, 0x03},
		Sequence:   42,
	}
	raw, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != p.Type || got.Slot != p.Slot || got.IsChording != p.IsChording || got.Sequence != p.Sequence {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("payload = %v, want %v", got.Payload, p.Payload)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Packet{Payload: make([]byte, MaxPayload+1)})
	if err != ErrPayloadTooLong {
		t.Errorf("err = %v, want ErrPayloadTooLong", err)
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err != ErrTooShort {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}

func TestDecodeClampsOverstatedLength(t *testing.T) {
	raw := []byte{PacketTypeHIDReport, 0, 0, 200, 0, 0, 0, 0, 0xAA, 0xBB}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Payload) != 2 {
		t.Errorf("payload len = %d, want clamped to 2", len(got.Payload))
	}
}

func TestEncodeHeartbeatHasNoPayload(t *testing.T) {
	raw, err := Encode(Packet{Type: PacketTypeHeartbeat, Sequence: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(raw) != headerSize {
		t.Errorf("len(raw) = %d, want %d", len(raw), headerSize)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != PacketTypeHeartbeat || got.Sequence != 7 {
		t.Errorf("got %+v", got)
	}
}
