package bridge

// aggregatedState is the transient, recomputed-per-report merged view of
// spec.md §3 "Aggregated state".
type aggregatedState struct {
	modifiers    uint8
	keys         [MaxKeys]uint8
	keyCount     int
	anyChording  bool
	mouseDX      int16
	mouseDY      int16
}

// hasActivity reports the FSM's "A" event (spec.md §4.4): any modifier,
// keyboard key, or mouse motion present in this cycle.
func (a aggregatedState) hasActivity() bool {
	return a.modifiers != 0 || a.keyCount != 0 || a.mouseDX != 0 || a.mouseDY != 0
}

// addKey deduplicates k into the union, truncating at MaxKeys (spec.md §3
// invariant 1).
func (a *aggregatedState) addKey(k uint8) {
	if k == 0 || a.keyCount >= MaxKeys {
		return
	}
	for i := 0; i < a.keyCount; i++ {
		if a.keys[i] == k {
			return
		}
	}
	a.keys[a.keyCount] = k
	a.keyCount++
}

// removeKey drops k from the union if present, compacting the remaining
// entries (used to strip arrow keys re-purposed as mouse motion, spec.md
// §4.3: "keys which are strictly non-arrow when motion is non-zero").
func (a *aggregatedState) removeKey(k uint8) {
	for i := 0; i < a.keyCount; i++ {
		if a.keys[i] == k {
			copy(a.keys[i:], a.keys[i+1:a.keyCount])
			a.keyCount--
			a.keys[a.keyCount] = 0
			return
		}
	}
}

// aggregate walks all present slots and merges them into one logical
// report, per spec.md §4.3. arrowAccel, when non-nil, is consulted to turn
// held arrow keys into mouse deltas; it is nil when arrow-to-mouse is
// disabled.
func aggregate(reg *slotRegistry, st SettingsAccessor, arrowAccel *arrowAccelerator, now Tick) aggregatedState {
	var a aggregatedState
	for i := range reg.rows {
		s := &reg.rows[i]
		if !s.present {
			continue
		}
		a.modifiers |= s.modifiers
		for _, k := range s.keys {
			a.addKey(k)
		}
		if s.isChording {
			a.anyChording = true
		}
	}

	if st.ArrowMouseEnabled() && arrowAccel != nil {
		arrows := [4]uint8{st.ArrowUsageUp(), st.ArrowUsageDown(), st.ArrowUsageLeft(), st.ArrowUsageRight()}
		held := [4]bool{}
		for i := 0; i < a.keyCount; i++ {
			for dir, code := range arrows {
				if code != 0 && a.keys[i] == code {
					held[dir] = true
				}
			}
		}
		for dir, isHeld := range held {
			dx, dy := arrowAccel.step(arrowDirection(dir), isHeld, now)
			a.mouseDX += dx
			a.mouseDY += dy
		}
		for _, code := range arrows {
			if code != 0 {
				a.removeKey(code)
			}
		}
	}

	return a
}
