// Package peerlink decodes and transports the split-keyboard peer link of
// spec.md §6 ("Peer link"), adapted from
// original_source/components/m4g_espnow's broadcast HID-forwarding
// protocol. ESP-NOW has no Linux host analog, so the concrete transport
// (udp.go) is a UDP broadcast socket carrying the same packet shape.
package peerlink

import (
	"encoding/binary"
	"errors"
)

// Packet type byte, matching m4g_espnow.h's M4G_ESPNOW_PKT_* enum.
const (
	PacketTypeHIDReport byte = 1
	PacketTypeHeartbeat byte = 2
)

// MaxPayload bounds the embedded HID report, matching
// M4G_ESPNOW_MAX_HID_SIZE.
const MaxPayload = 64

// ErrTooShort is returned by Decode when the buffer is smaller than the
// fixed packet header.
var ErrTooShort = errors.New("peerlink: packet too short")

// ErrPayloadTooLong is returned by Encode when payload exceeds MaxPayload.
var ErrPayloadTooLong = errors.New("peerlink: payload exceeds max size")

// headerSize is {type(1), slot(1), is_chording(1), length(1), sequence(4)}.
const headerSize = 8

// Packet is one decoded peer-link frame: {type, slot, is_chording, length,
// payload<=64, seq}, exactly as spec.md §6 describes it.
type Packet struct {
	Type       byte
	Slot       uint8
	IsChording bool
	Payload    []byte
	Sequence   uint32
}

// Encode renders p as wire bytes: a fixed 8-byte header followed by
// Payload.
func Encode(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooLong
	}
	out := make([]byte, headerSize+len(p.Payload))
	out[0] = p.Type
	out[1] = p.Slot
	if p.IsChording {
		out[2] = 1
	}
	out[3] = uint8(len(p.Payload))
	binary.LittleEndian.PutUint32(out[4:8], p.Sequence)
	copy(out[headerSize:], p.Payload)
	return out, nil
}

// Decode parses raw wire bytes into a Packet. The payload slice aliases
// raw; callers that retain it beyond the current read should copy.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < headerSize {
		return Packet{}, ErrTooShort
	}
	length := int(raw[3])
	if headerSize+length > len(raw) {
		length = len(raw) - headerSize
	}
	return Packet{
		Type:       raw[0],
		Slot:       raw[1],
		IsChording: raw[2] != 0,
		Payload:    raw[headerSize : headerSize+length],
		Sequence:   binary.LittleEndian.Uint32(raw[4:8]),
	}, nil
}
