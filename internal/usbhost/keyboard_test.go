package usbhost

import (
	"testing"

	"github.com/pkwdata/m4g-ble-bridge/internal/bridge"
)

// ---------------------------------------------------------------------
// Keyboard report assembly
// ---------------------------------------------------------------------

func TestBuildKeyboardReport8SplitsModifiers(t *testing.T) {
	report := buildKeyboardReport8([]uint16{usageLeftShift, 4, 5})
	if report[0] != leftShift {
		t.Errorf("modifiers = %#x, want leftShift", report[0])
	}
	if report[1] != 0 {
		t.Errorf("reserved byte = %#x, want 0", report[1])
	}
	if report[2] != 4 || report[3] != 5 {
		t.Errorf("keys = %v, want [4 5 0 0 0 0]", report[2:])
	}
}

func TestBuildKeyboardReport8TruncatesAtSix(t *testing.T) {
	report := buildKeyboardReport8([]uint16{4, 5, 6, 7, 8, 9, 10})
	count := 0
	for _, k := range report[2:] {
		if k != 0 {
			count++
		}
	}
	if count != 6 {
		t.Errorf("got %d non-zero keys, want 6 (truncated)", count)
	}
}

func TestBuildKeyboardReport8CombinesMultipleModifiers(t *testing.T) {
	report := buildKeyboardReport8([]uint16{usageLeftCtrl, usageRightShift})
	want := uint8(leftControl | rightShift)
	if report[0] != want {
		t.Errorf("modifiers = %#x, want %#x", report[0], want)
	}
}

func TestContainsAndRemoveU16(t *testing.T) {
	xs := []uint16{1, 2, 3}
	if !containsU16(xs, 2) {
		t.Error("containsU16(xs, 2) = false, want true")
	}
	xs = removeU16(xs, 2)
	if containsU16(xs, 2) {
		t.Error("removeU16 did not remove 2")
	}
	if len(xs) != 2 {
		t.Errorf("len(xs) = %d, want 2", len(xs))
	}
}

// ---------------------------------------------------------------------
// Slot assignment
// ---------------------------------------------------------------------

type fakeIngester struct {
	resets []uint8
}

func (f *fakeIngester) Ingest(uint8, []byte, bool, bridge.Tick) {}
func (f *fakeIngester) ResetSlot(slotID uint8, _ bridge.Tick)   { f.resets = append(f.resets, slotID) }

func zeroClock() bridge.Tick { return bridge.Tick(0) }

func TestAssignSlotStableAndBounded(t *testing.T) {
	m := NewManager(&fakeIngester{}, zeroClock)

	id1, ok := m.assignSlot("/dev/input/event0", false)
	if !ok {
		t.Fatal("assignSlot failed")
	}
	id2, ok := m.assignSlot("/dev/input/event0", false)
	if !ok || id2 != id1 {
		t.Fatalf("repeat assignSlot for same device = %d, want stable %d", id2, id1)
	}

	for i := 1; i < bridge.MaxSlots; i++ {
		if _, ok := m.assignSlot(deviceName(i), false); !ok {
			t.Fatalf("assignSlot failed before exhausting slots at i=%d", i)
		}
	}
	if _, ok := m.assignSlot("/dev/input/event-overflow", false); ok {
		t.Error("assignSlot should fail once all slots are taken")
	}
}

func TestForgetResetsSlot(t *testing.T) {
	fi := &fakeIngester{}
	m := NewManager(fi, zeroClock)
	m.assignSlot("/dev/input/event0", false)
	m.Forget("/dev/input/event0")
	if len(fi.resets) != 1 {
		t.Fatalf("ResetSlot called %d times, want 1", len(fi.resets))
	}
}

func deviceName(i int) string {
	return "/dev/input/event" + string(rune('a'+i))
}

func TestAnyChordingDeviceRegisteredTracksAssignmentAndForget(t *testing.T) {
	m := NewManager(&fakeIngester{}, zeroClock)
	if m.AnyChordingDeviceRegistered() {
		t.Fatal("empty manager should report no chording device")
	}

	m.assignSlot("/dev/input/event0", false)
	if m.AnyChordingDeviceRegistered() {
		t.Error("a non-chording slot should not count")
	}

	m.assignSlot("/dev/input/event1", true)
	if !m.AnyChordingDeviceRegistered() {
		t.Error("a chording slot should be reported once assigned")
	}

	m.Forget("/dev/input/event1")
	if m.AnyChordingDeviceRegistered() {
		t.Error("a forgotten chording slot should no longer count")
	}
}
