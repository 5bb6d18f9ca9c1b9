// Package bridge implements the chord-aware input translation pipeline of
// spec.md §1-§9: it merges per-slot USB HID reports into one logical
// keyboard+mouse device, detects chords synthesized by a chording keyboard,
// filters the chording device's post-chord cleanup keystrokes, turns arrow
// keys into mouse motion, applies mouse acceleration, drives key-repeat,
// and forwards deduplicated reports to a BLE Sink.
//
// Everything in this package is written for the single cooperative thread
// of control spec.md §5 describes: Core holds no goroutines, starts no
// timers, and every exported method is meant to be called from one thread
// (the caller serializes USB report delivery and the periodic tick).
package bridge

import "fmt"

// reportKindUnknown/Keyboard/Mouse classify a raw USB report per spec.md
// §4.1's "Accepted shapes".
type reportKind int

const (
	reportUnknown reportKind = iota
	reportKeyboard
	reportMouse
)

const (
	keyboardReportID = 0x01
	mouseReportID    = 0x02
)

// classifyReport decodes the wire shapes of spec.md §4.1 and §6: a keyboard
// report is 8 bytes ([mod, reserved, k0..k5]) or 9+ bytes prefixed with
// report id 0x01; a mouse report is 3 bytes ([buttons, dx, dy]) or 4+ bytes
// prefixed with report id 0x02. A report of exactly 8 bytes is always an
// unprefixed keyboard report, even when its modifier byte is 0x02 (Left
// Shift).
func classifyReport(raw []byte) (kind reportKind, payload []byte) {
	if len(raw) >= 9 && raw[0] == keyboardReportID {
		return reportKeyboard, raw[1:9]
	}
	if len(raw) == 8 {
		return reportKeyboard, raw
	}
	if len(raw) >= 4 && raw[0] == mouseReportID {
		return reportMouse, raw[1:4]
	}
	if len(raw) == 3 {
		return reportMouse, raw
	}
	return reportUnknown, nil
}

// isMalformedChordingSignature matches the known-bad chording-device
// pattern of spec.md §7 error kind 1: "length > 15 with byte 0 == 0x01 and
// byte 4 == 0x01".
func isMalformedChordingSignature(raw []byte) bool {
	return len(raw) > 15 && raw[0] == 0x01 && raw[4] == 0x01
}

// decodeKeyboardPayload splits a keyboard payload (already stripped of any
// report-id prefix) into modifiers + up to 6 usage codes, per spec.md §3's
// wire layout "[modifiers, reserved, k0..k5]".
func decodeKeyboardPayload(payload []byte) (modifiers uint8, keys [MaxKeys]uint8) {
	if len(payload) > 0 {
		modifiers = payload[0]
	}
	n := 0
	for i := 2; i < len(payload) && n < MaxKeys; i++ {
		if payload[i] != 0 {
			keys[n] = payload[i]
			n++
		}
	}
	return modifiers, keys
}

// decodeMousePayload splits a mouse payload (already stripped of any
// report-id prefix) into [buttons, dx, dy], per spec.md §6.
func decodeMousePayload(payload []byte) (buttons uint8, dx, dy int8) {
	buttons = payload[0]
	dx = int8(payload[1])
	dy = int8(payload[2])
	return buttons, dx, dy
}

// Core owns all process-wide state of the bridge: the slot registry, the
// chord buffer, the key filter, both mouse accelerators, the repeat engine,
// and the emitter. The zero value is not usable; construct with NewCore.
type Core struct {
	settings SettingsAccessor
	status   StatusAccessor
	log      Logger

	slots      slotRegistry
	filter     keyFilter
	chord      *chordFSM
	usbAccel   usbMouseAccelerator
	arrowAccel arrowAccelerator
	repeat     repeatEngine
	emit       *emitter

	warnedInvalidSlot bool
}

// NewCore builds a Core wired to the given Sink, SettingsAccessor, and
// StatusAccessor. log may be nil, in which case a NopLogger is used.
func NewCore(sink Sink, settings SettingsAccessor, status StatusAccessor, log Logger) *Core {
	if log == nil {
		log = NopLogger{}
	}
	return &Core{
		settings: settings,
		status:   status,
		log:      log,
		chord:    newChordFSM(),
		emit:     newEmitter(sink, log),
	}
}

// Stats returns a snapshot of the diagnostics counters of spec.md §4.9.
func (c *Core) Stats() Stats {
	return c.emit.stats
}

// LastKeyboardReport returns the most recently sent 8-byte keyboard report.
func (c *Core) LastKeyboardReport() ([8]byte, bool) {
	return c.emit.lastKeyboardReport()
}

// LastMouseReport returns the most recently sent 3-byte mouse report.
func (c *Core) LastMouseReport() ([3]byte, bool) {
	return c.emit.lastMouseReport()
}

// Ingest is the inbound USB operation of spec.md §6: classify, filter,
// write the slot row, then run one full aggregate+process cycle.
func (c *Core) Ingest(slotID uint8, raw []byte, isChordingDevice bool, now Tick) {
	if !c.slots.valid(slotID) {
		if !c.warnedInvalidSlot {
			c.log.Warnf("ingest: invalid slot id %d", slotID)
			c.warnedInvalidSlot = true
		}
		return
	}
	if len(raw) == 0 {
		return
	}
	if isMalformedChordingSignature(raw) {
		c.log.Warnf("ingest: rejecting malformed report from slot %d (len=%d)", slotID, len(raw))
		return
	}

	kind, payload := classifyReport(raw)
	switch kind {
	case reportKeyboard:
		modifiers, keys := decodeKeyboardPayload(payload)
		filtered, n := c.filter.apply(keys, isChordingDevice, now)
		if isChordingDevice && c.filter.consumeFilteredBackspace() {
			c.chord.onFilteredBackspace(now, c.log)
		}
		var clipped [MaxKeys]uint8
		copy(clipped[:], filtered[:n])
		c.slots.updateKeyboard(slotID, modifiers, clipped, isChordingDevice, now)
		c.runCycle(now)

	case reportMouse:
		buttons, dx, dy := decodeMousePayload(payload)
		adx, ady := c.usbAccel.apply(dx, dy, now)
		c.emit.emitMouse(int16(adx), int16(ady), buttons, c.settings.DuplicateSuppression())

	default:
		c.log.Warnf("ingest: dropping unrecognized report from slot %d (len=%d)", slotID, len(raw))
	}
}

// ResetSlot clears a slot (USB disconnect, endpoint stall, or malformed
// pattern recovery) and emits an all-zero keyboard report regardless of
// duplicate suppression, per spec.md §4.8. Resetting a slot that is not
// present (never reported, or already reset) emits nothing.
func (c *Core) ResetSlot(slotID uint8, now Tick) {
	if !c.slots.valid(slotID) {
		c.log.Warnf("reset_slot: invalid slot id %d", slotID)
		return
	}
	if !c.slots.rows[slotID].present {
		return
	}
	c.slots.reset(slotID)
	c.emit.emitKeyboard(keyboardFrame{}, false)
	c.repeat.afterEmission(keyboardFrame{}, now)
}

// useChordDecision evaluates spec.md §4.4's "use-chord" predicate.
func (c *Core) useChordDecision(agg aggregatedState) bool {
	if c.repeat.isArmed() {
		return false
	}
	if c.settings.RawMode() {
		return false
	}
	if !c.status.ChordingDevicePresent() {
		return false
	}
	halvesOK := !c.settings.RequireBothHalves() || c.status.BothHalvesPresent()
	return agg.anyChording && halvesOK
}

// runCycle performs the aggregate+process cycle spec.md §4.1 describes,
// emitting in keyboard-then-mouse order (spec.md §5 ordering guarantees).
func (c *Core) runCycle(now Tick) {
	agg := aggregate(&c.slots, c.settings, &c.arrowAccel, now)
	useChord := c.useChordDecision(agg)

	outcome := c.chord.process(agg, useChord, c.repeat.isArmed(), c.settings, c.log, now)

	if outcome.armBackspaceFilter {
		c.filter.arm(now)
	}
	if outcome.disarmFilter {
		c.filter.disarm()
	}
	if outcome.enteredExpectingMultiKey {
		c.emit.stats.ChordReportsDelayed++
	}
	if outcome.chordProcessed {
		c.emit.stats.ChordReportsProcessed++
	}
	if outcome.seedRepeat && c.settings.KeyRepeatEnabled() {
		c.repeat.armedKey = outcome.seedRepeatKey
		c.repeat.armedMods = outcome.seedRepeatMods
		c.repeat.pressTick = now
		c.repeat.lastRepeatTick = now
		c.repeat.repeating = false
		c.repeat.active = true
	}

	dup := c.settings.DuplicateSuppression()
	for _, f := range outcome.frames {
		c.emit.emitKeyboard(f, dup)
		c.repeat.afterEmission(f, now)
	}
	if outcome.releaseWhileRepeatArmed {
		c.repeat.disarm()
		c.emit.emitKeyboard(releaseFrame, dup)
	}

	if agg.mouseDX != 0 || agg.mouseDY != 0 {
		c.emit.emitMouse(agg.mouseDX, agg.mouseDY, 0, dup)
	}
}

// Tick is the periodic (~10ms) entry point of spec.md §5/§4.7: it drives
// key-repeat and the chord FSM's EXPECTING_OUTPUT timeout, independently of
// USB traffic.
func (c *Core) Tick(now Tick) {
	if outcome := c.chord.checkTimeout(c.settings, c.log, now); outcome != nil {
		if outcome.disarmFilter {
			c.filter.disarm()
		}
	}

	result := c.repeat.tick(c.chord, c.settings, c.log, now)
	if len(result.frames) == 0 {
		return
	}
	c.repeat.beginSelfEmit()
	dup := c.settings.DuplicateSuppression()
	for _, f := range result.frames {
		c.emit.emitKeyboard(f, dup)
	}
	c.repeat.endSelfEmit()
}

// String implements fmt.Stringer for debugging/log lines.
func (c *Core) String() string {
	return fmt.Sprintf("bridge.Core{state=%s}", c.chord.state())
}
