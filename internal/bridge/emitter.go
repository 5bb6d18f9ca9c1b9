package bridge

// Stats mirrors spec.md §4.9's diagnostics structure.
type Stats struct {
	KeyboardReportsSent   uint32
	MouseReportsSent      uint32
	ChordReportsProcessed uint32
	ChordReportsDelayed   uint32
	KeyboardSendFailures  uint32
	MouseSendFailures     uint32
}

// emitter deduplicates and forwards reports to the BLE Sink, per spec.md
// §4.5, and owns the Stats counters and "last emitted" bytes of §4.9.
type emitter struct {
	sink Sink
	log  Logger

	haveLastKeyboard bool
	lastKeyboard     [8]byte
	haveLastMouse    bool
	lastMouse        [3]byte

	stats Stats
}

func newEmitter(sink Sink, log Logger) *emitter {
	return &emitter{sink: sink, log: log}
}

// buildKeyboardReport renders a keyboardFrame as the wire-shaped 8-byte
// report of spec.md §4.5: "[mod, 0, k0..k5]".
func buildKeyboardReport(f keyboardFrame) [8]byte {
	var out [8]byte
	out[0] = f.modifiers
	out[1] = 0
	for i := 0; i < f.n && i < MaxKeys; i++ {
		out[2+i] = f.keys[i]
	}
	return out
}

// emitKeyboard sends one keyboard frame, applying duplicate suppression
// when enabled (spec.md §4.5, invariant 4).
func (e *emitter) emitKeyboard(f keyboardFrame, suppressDuplicates bool) {
	report := buildKeyboardReport(f)
	if suppressDuplicates && e.haveLastKeyboard && report == e.lastKeyboard {
		return
	}
	if e.sink.SendKeyboard(report) {
		e.stats.KeyboardReportsSent++
		e.haveLastKeyboard = true
		e.lastKeyboard = report
	} else {
		e.stats.KeyboardSendFailures++
		e.log.Warnf("keyboard report send failed: %x", report)
	}
}

// emitMouse sends one mouse delta, saturating each axis to the signed byte
// range [-128, 127] and deduplicating independently of the keyboard channel
// (spec.md §4.5).
func (e *emitter) emitMouse(dx, dy int16, buttons uint8, suppressDuplicates bool) {
	report := [3]byte{buttons, saturateI16(dx), saturateI16(dy)}
	if suppressDuplicates && e.haveLastMouse && report == e.lastMouse {
		return
	}
	if e.sink.SendMouse(report) {
		e.stats.MouseReportsSent++
		e.haveLastMouse = true
		e.lastMouse = report
	} else {
		e.stats.MouseSendFailures++
		e.log.Warnf("mouse report send failed: %x", report)
	}
}

func saturateI16(v int16) byte {
	if v > 127 {
		v = 127
	}
	if v < -128 {
		v = -128
	}
	return byte(int8(v))
}

// lastKeyboardReport returns the most recently sent keyboard report, for
// the diagnostics accessor of spec.md §4.9.
func (e *emitter) lastKeyboardReport() (out [8]byte, ok bool) {
	return e.lastKeyboard, e.haveLastKeyboard
}

// lastMouseReport returns the most recently sent mouse report.
func (e *emitter) lastMouseReport() (out [3]byte, ok bool) {
	return e.lastMouse, e.haveLastMouse
}
