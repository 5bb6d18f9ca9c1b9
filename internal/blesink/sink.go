// Package blesink is the BLE/HOGP collaborator of spec.md §6: it exposes a
// GATT HID-over-GATT service over github.com/muka/go-bluetooth and
// implements bridge.Sink by writing notifications on its single input report
// characteristic, with a report-id prefix selecting keyboard or mouse.
package blesink

import "github.com/pkwdata/m4g-ble-bridge/internal/bridge"

// NopSink discards every report, satisfying bridge.Sink for tests and for
// running the orchestrator with BLE disabled (e.g. `-ble=false`).
type NopSink struct {
	LastKeyboard [8]byte
	LastMouse    [3]byte
	HaveKeyboard bool
	HaveMouse    bool
}

func (s *NopSink) SendKeyboard(report [8]byte) bool {
	s.LastKeyboard = report
	s.HaveKeyboard = true
	return true
}

func (s *NopSink) SendMouse(report [3]byte) bool {
	s.LastMouse = report
	s.HaveMouse = true
	return true
}

var _ bridge.Sink = (*NopSink)(nil)
