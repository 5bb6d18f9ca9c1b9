package bridge

import "testing"

// ---------------------------------------------------------------------
// Error sentinel stripping (always active, any source)
// ---------------------------------------------------------------------

func TestApplyStripsErrorSentinelsAlways(t *testing.T) {
	var f keyFilter
	keys := [MaxKeys]uint8{usageErrorRollOver, usageKeyboardPOSTFail, usageErrorUndefined, 0x04}
	out, n := f.apply(keys, false, 0)
	if n != 1 || out[0] != 0x04 {
		t.Errorf("filtered = %v (n=%d), want only 0x04", out[:n], n)
	}
}

// ---------------------------------------------------------------------
// Backspace grace window
// ---------------------------------------------------------------------

func TestApplyDropsBackspaceOnlyWhileArmedAndChording(t *testing.T) {
	var f keyFilter
	keys := [MaxKeys]uint8{usageBackspace}

	out, n := f.apply(keys, true, 0)
	if n != 1 || out[0] != usageBackspace {
		t.Fatalf("backspace should pass through while unarmed: out=%v n=%d", out[:n], n)
	}

	f.arm(0)
	out, n = f.apply(keys, true, 10)
	if n != 0 {
		t.Errorf("backspace should be dropped while armed and chording: out=%v n=%d", out[:n], n)
	}
	if !f.consumeFilteredBackspace() {
		t.Error("consumeFilteredBackspace should report true after a drop")
	}
	if f.consumeFilteredBackspace() {
		t.Error("consumeFilteredBackspace should be one-shot")
	}
}

func TestApplyDoesNotFilterBackspaceFromNonChordingSlot(t *testing.T) {
	var f keyFilter
	f.arm(0)
	keys := [MaxKeys]uint8{usageBackspace}
	out, n := f.apply(keys, false, 5)
	if n != 1 || out[0] != usageBackspace {
		t.Errorf("non-chording backspace should pass through even while armed: out=%v n=%d", out[:n], n)
	}
}

func TestActiveSelfClosesAfterGraceWindow(t *testing.T) {
	var f keyFilter
	f.arm(0)
	if !f.active(backspaceGraceMS) {
		t.Fatal("grace window should still be open exactly at the boundary")
	}
	if f.active(backspaceGraceMS + 1) {
		t.Error("grace window should have closed just past the boundary")
	}
}

func TestExtendPushesGraceWindowForward(t *testing.T) {
	var f keyFilter
	f.arm(0)
	f.extend(400)
	if !f.active(400 + backspaceGraceMS) {
		t.Error("extend should reopen the full grace window from the new tick")
	}
}

func TestDisarmClosesWindowImmediately(t *testing.T) {
	var f keyFilter
	f.arm(0)
	f.disarm()
	if f.active(0) {
		t.Error("active should be false immediately after disarm")
	}
}
