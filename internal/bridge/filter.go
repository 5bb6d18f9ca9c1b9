package bridge

// Usage codes the HID spec reserves as error/rollover sentinels. These are
// dropped from every report regardless of origin (spec.md §4.2).
const (
	usageErrorRollOver = 0x01
	usageKeyboardPOSTFail = 0x02
	usageErrorUndefined = 0x03
	usageBackspace = 0x2A
)

// backspaceGraceMS is how long the backspace filter stays armed after a
// chord releases (spec.md §3 invariant 6, §4.2).
const backspaceGraceMS = 500

// keyFilter implements the post-chord cleanup filter of spec.md §4.2: it
// always strips the three HID error sentinels, and strips a chording
// device's Backspace usage while armed.
type keyFilter struct {
	armed       bool
	armedAt     Tick
	filteredOne bool // one-shot: set when a backspace was actually dropped this cycle
}

// arm opens the backspace grace window starting at now.
func (f *keyFilter) arm(now Tick) {
	f.armed = true
	f.armedAt = now
}

// extend pushes the grace window's start forward. Core does not call it: the
// EXPECTING_OUTPUT postponement on a filtered backspace (spec.md §4.4
// "filtered-backspace tick") is chordFSM.onFilteredBackspace, which leaves
// this filter's window unchanged.
func (f *keyFilter) extend(now Tick) {
	f.armedAt = now
}

// disarm closes the grace window immediately (FSM left EXPECTING_OUTPUT).
func (f *keyFilter) disarm() {
	f.armed = false
	f.filteredOne = false
}

// active reports whether the grace window is still open at now. It also
// self-closes the window once the 500ms budget has elapsed.
func (f *keyFilter) active(now Tick) bool {
	if !f.armed {
		return false
	}
	if now.Since(f.armedAt) > backspaceGraceMS {
		f.armed = false
		return false
	}
	return true
}

// apply filters raw keys from a chording-device report in place, dropping
// the three error sentinels always and Backspace while the grace window is
// open. It returns the filtered count and sets filteredOne if a backspace
// was actually dropped this call.
func (f *keyFilter) apply(keys [MaxKeys]uint8, isChordingDevice bool, now Tick) (out [MaxKeys]uint8, n int) {
	f.filteredOne = false
	graceOpen := isChordingDevice && f.active(now)
	for _, k := range keys {
		if k == 0 {
			continue
		}
		switch k {
		case usageErrorRollOver, usageKeyboardPOSTFail, usageErrorUndefined:
			continue
		case usageBackspace:
			if graceOpen {
				f.filteredOne = true
				continue
			}
		}
		if n < MaxKeys {
			out[n] = k
			n++
		}
	}
	return out, n
}

// consumeFilteredBackspace reports whether a backspace was filtered during
// the most recent apply call and clears the one-shot flag.
func (f *keyFilter) consumeFilteredBackspace() bool {
	v := f.filteredOne
	f.filteredOne = false
	return v
}
