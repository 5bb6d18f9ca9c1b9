package bridge

import "testing"

// ---------------------------------------------------------------------
// aggregatedState helpers
// ---------------------------------------------------------------------

func TestAddKeyDeduplicatesAndTruncates(t *testing.T) {
	var a aggregatedState
	for _, k := range []uint8{1, 2, 2, 3, 4, 5, 6, 7} {
		a.addKey(k)
	}
	if a.keyCount != MaxKeys {
		t.Fatalf("keyCount = %d, want %d (truncated)", a.keyCount, MaxKeys)
	}
	for i := 0; i < a.keyCount; i++ {
		if a.keys[i] == 7 {
			t.Error("7th distinct key should have been dropped, not 2's duplicate")
		}
	}
}

func TestAddKeyIgnoresZero(t *testing.T) {
	var a aggregatedState
	a.addKey(0)
	if a.keyCount != 0 {
		t.Errorf("keyCount = %d, want 0 (zero is not a key)", a.keyCount)
	}
}

func TestRemoveKeyCompacts(t *testing.T) {
	var a aggregatedState
	a.addKey(1)
	a.addKey(2)
	a.addKey(3)
	a.removeKey(2)
	if a.keyCount != 2 {
		t.Fatalf("keyCount = %d, want 2", a.keyCount)
	}
	if a.keys[0] != 1 || a.keys[1] != 3 {
		t.Errorf("keys = %v, want [1 3]", a.keys[:a.keyCount])
	}
}

func TestHasActivity(t *testing.T) {
	var a aggregatedState
	if a.hasActivity() {
		t.Error("zero-value aggregatedState should have no activity")
	}
	a.modifiers = 0x01
	if !a.hasActivity() {
		t.Error("a set modifier bit should count as activity")
	}
}

// ---------------------------------------------------------------------
// aggregate()
// ---------------------------------------------------------------------

func TestAggregateMergesModifiersAndDedupsKeys(t *testing.T) {
	var reg slotRegistry
	reg.updateKeyboard(0, 0x01, [MaxKeys]uint8{0x04, 0x05}, false, 0)
	reg.updateKeyboard(1, 0x02, [MaxKeys]uint8{0x05, 0x06}, true, 0)

	a := aggregate(&reg, defaultFakeSettings(), nil, 0)
	if a.modifiers != 0x03 {
		t.Errorf("modifiers = %#x, want 0x03", a.modifiers)
	}
	if a.keyCount != 3 {
		t.Fatalf("keyCount = %d, want 3 (0x04,0x05,0x06 deduped)", a.keyCount)
	}
	if !a.anyChording {
		t.Error("anyChording should be true: slot 1 is a chording slot")
	}
}

func TestAggregateSkipsAbsentSlots(t *testing.T) {
	var reg slotRegistry
	reg.updateKeyboard(0, 0, [MaxKeys]uint8{0x04}, false, 0)
	reg.reset(0)

	a := aggregate(&reg, defaultFakeSettings(), nil, 0)
	if a.hasActivity() {
		t.Error("a reset slot should not contribute to the aggregate")
	}
}

func TestAggregateArrowKeysBecomeMotionAndAreRemoved(t *testing.T) {
	var reg slotRegistry
	reg.updateKeyboard(0, 0, [MaxKeys]uint8{0x29, 0x04}, false, 0) // up=0x29 plus an ordinary key

	settings := defaultFakeSettings()
	settings.arrowMouseEnabled = true
	settings.arrowUp = 0x29
	settings.arrowDown = 0x2A
	settings.arrowLeft = 0x38
	settings.arrowRight = 0x2E

	var accel arrowAccelerator
	a := aggregate(&reg, settings, &accel, 0)

	if a.mouseDY >= 0 {
		t.Errorf("mouseDY = %d, want negative (up arrow)", a.mouseDY)
	}
	for i := 0; i < a.keyCount; i++ {
		if a.keys[i] == 0x29 {
			t.Error("the arrow usage code should have been removed from the keyboard portion")
		}
	}
	if a.keyCount != 1 || a.keys[0] != 0x04 {
		t.Errorf("keys = %v, want only 0x04 remaining", a.keys[:a.keyCount])
	}
}

func TestAggregateLeavesKeysAloneWhenArrowMouseDisabled(t *testing.T) {
	var reg slotRegistry
	reg.updateKeyboard(0, 0, [MaxKeys]uint8{0x29}, false, 0)

	a := aggregate(&reg, defaultFakeSettings(), nil, 0)
	if a.mouseDX != 0 || a.mouseDY != 0 {
		t.Error("arrow-to-mouse disabled should produce zero motion")
	}
	if a.keyCount != 1 || a.keys[0] != 0x29 {
		t.Error("0x29 should remain an ordinary key when arrow-to-mouse is disabled")
	}
}
