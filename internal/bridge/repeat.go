package bridge

// repeatEngine implements the Key-Repeat Engine of spec.md §4.7 and the
// process-wide "Key-repeat state" of §3.
type repeatEngine struct {
	armedKey       uint8
	armedMods      uint8
	pressTick      Tick
	lastRepeatTick Tick
	repeating      bool
	active         bool
	inRepeatEmit   bool
}

// isArmed reports whether a single key is currently tracked for repeat.
func (r *repeatEngine) isArmed() bool {
	return r.active && r.armedKey != 0
}

// beginSelfEmit/endSelfEmit bracket an emission the repeat engine itself
// originated, so afterEmission's re-entry guard (spec.md §4.7: "the
// re-entry guard ensures the emitter does not re-arm while the engine is
// itself emitting") sees it and does nothing. Core.Tick calls these around
// the actual Sink/Emitter call, since the frames tick() returns are not
// emitted until the caller forwards them.
func (r *repeatEngine) beginSelfEmit() { r.inRepeatEmit = true }
func (r *repeatEngine) endSelfEmit()   { r.inRepeatEmit = false }

// afterEmission implements spec.md §4.5's post-emission re-arming rule,
// called by the emitter after every keyboard emission:
// "if exactly one non-zero key is present and it matches the previously
// armed key, preserve press_tick; if it differs, rearm with the new key
// and press_tick = now; if zero or ≥2 keys, disarm."
func (r *repeatEngine) afterEmission(frame keyboardFrame, now Tick) {
	if r.inRepeatEmit {
		return
	}
	if frame.n != 1 {
		r.disarm()
		return
	}
	key := frame.keys[0]
	if r.active && r.armedKey == key {
		return // preserve press_tick
	}
	r.armedKey = key
	r.armedMods = frame.modifiers
	r.pressTick = now
	r.lastRepeatTick = now
	r.repeating = false
	r.active = true
}

// disarm clears repeat state: key release, key change away from a single
// key, or a multi-key state (spec.md §3 invariant 5).
func (r *repeatEngine) disarm() {
	r.armedKey = 0
	r.armedMods = 0
	r.repeating = false
	r.active = false
}

// repeatTickResult is what Core.Tick must do with the outcome of one
// repeatEngine.tick call: emit the frames (if any) while the self-emission
// guard is held, and force the chord FSM to IDLE if a seize happened (the
// FSM already transitioned itself; this is informational for callers that
// log it).
type repeatTickResult struct {
	frames []keyboardFrame
	seized bool
}

// tick is the periodic (≥100Hz recommended) entry point of spec.md §4.7. It
// may seize a single-key COLLECTING buffer, and thereafter emits
// release+press pairs at the configured repeat rate. The caller must emit
// the returned frames (in order) bracketed by beginSelfEmit/endSelfEmit.
func (r *repeatEngine) tick(fsm *chordFSM, settings SettingsAccessor, log Logger, now Tick) repeatTickResult {
	if !settings.KeyRepeatEnabled() {
		return repeatTickResult{}
	}

	if !r.active {
		key, mods, ok := fsm.seizeSingleFromCollecting(settings.KeyRepeatDelayMS(), log, now)
		if !ok {
			return repeatTickResult{}
		}
		var keys [MaxKeys]uint8
		keys[0] = key
		r.armedKey = key
		r.armedMods = mods
		r.pressTick = now
		r.lastRepeatTick = now
		// The delay window was already satisfied while COLLECTING (that is
		// what made the seize eligible), so repeats begin at the rate
		// cadence immediately rather than waiting out a second full delay.
		r.repeating = true
		r.active = true
		return repeatTickResult{frames: []keyboardFrame{frameOf(mods, keys, 1)}, seized: true}
	}

	if r.armedKey == 0 {
		return repeatTickResult{}
	}

	if !r.repeating {
		if now.Since(r.pressTick) < int64(settings.KeyRepeatDelayMS()) {
			return repeatTickResult{}
		}
		r.repeating = true
		r.lastRepeatTick = now
		return repeatTickResult{frames: r.repeatPair()}
	}

	if now.Since(r.lastRepeatTick) < int64(settings.KeyRepeatRateMS()) {
		return repeatTickResult{}
	}
	r.lastRepeatTick = now
	return repeatTickResult{frames: r.repeatPair()}
}

func (r *repeatEngine) repeatPair() []keyboardFrame {
	var keys [MaxKeys]uint8
	keys[0] = r.armedKey
	return []keyboardFrame{releaseFrame, frameOf(r.armedMods, keys, 1)}
}
