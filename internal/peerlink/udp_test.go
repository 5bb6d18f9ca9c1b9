package peerlink

import (
	"net"
	"testing"
)

// ---------------------------------------------------------------------
// Sequence-gap counting (mirrors m4g_espnow's process_rx_packet)
// ---------------------------------------------------------------------

func rawHIDPacket(t *testing.T, seq uint32) []byte {
	t.Helper()
	raw, err := Encode(Packet{Type: PacketTypeHIDReport, Sequence: seq, Payload: []byte{0x01}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return raw
}

func TestHandleCountsNoLossOnConsecutiveSequence(t *testing.T) {
	l := &Link{}
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7770}

	l.handle(rawHIDPacket(t, 1), from)
	l.handle(rawHIDPacket(t, 2), from)
	l.handle(rawHIDPacket(t, 3), from)

	if got := l.Stats().PacketsLost; got != 0 {
		t.Errorf("PacketsLost = %d, want 0", got)
	}
	if got := l.Stats().PacketsReceived; got != 3 {
		t.Errorf("PacketsReceived = %d, want 3", got)
	}
}

func TestHandleCountsGapOnSkippedSequence(t *testing.T) {
	l := &Link{}
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7770}

	l.handle(rawHIDPacket(t, 1), from)
	l.handle(rawHIDPacket(t, 5), from)

	if got := l.Stats().PacketsLost; got != 3 {
		t.Errorf("PacketsLost = %d, want 3 (sequences 2,3,4 skipped)", got)
	}
}

func TestHandleFirstPacketNeverCountsLoss(t *testing.T) {
	l := &Link{}
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7770}

	l.handle(rawHIDPacket(t, 99), from)

	if got := l.Stats().PacketsLost; got != 0 {
		t.Errorf("PacketsLost = %d, want 0 on first packet regardless of sequence", got)
	}
}

func TestHandleLearnsPeerAddress(t *testing.T) {
	l := &Link{}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 7770}

	if l.IsPeerConnected() {
		t.Fatal("IsPeerConnected should be false before any packet")
	}
	l.handle(rawHIDPacket(t, 1), from)
	if !l.IsPeerConnected() {
		t.Error("IsPeerConnected should be true right after a packet arrives")
	}
}

func TestHandleDispatchesHIDReportsOnly(t *testing.T) {
	var got []byte
	l := &Link{onReport: func(slot uint8, payload []byte, isChording bool) {
		got = append(got, payload...)
	}}
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7770}

	hb, err := Encode(Packet{Type: PacketTypeHeartbeat, Sequence: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	l.handle(hb, from)
	if got != nil {
		t.Error("heartbeat packet should not invoke onReport")
	}

	l.handle(rawHIDPacket(t, 2), from)
	if len(got) != 1 || got[0] != 0x01 {
		t.Errorf("got %v, want onReport called with HID payload", got)
	}
}
