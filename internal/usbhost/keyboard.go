package usbhost

import (
	"strings"
	"syscall"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
)

// HID modifier bit positions, unchanged from rosmo-go-hidproxy.
const (
	rightMeta    = 1 << 7
	rightAlt     = 1 << 6
	rightShift   = 1 << 5
	rightControl = 1 << 4
	leftMeta     = 1 << 3
	leftAlt      = 1 << 2
	leftShift    = 1 << 1
	leftControl  = 1 << 0
)

// hid modifier usage codes, used to split modifiers out of the down-key
// set before building a report.
const (
	usageLeftCtrl   = 224
	usageLeftShift  = 225
	usageLeftAlt    = 226
	usageLeftMeta   = 227
	usageRightCtrl  = 228
	usageRightShift = 229
	usageRightAlt   = 230
	usageRightMeta  = 231
)

// scancodes maps Linux evdev scancodes to HID usage codes, carried over
// verbatim from rosmo-go-hidproxy's Scancodes table.
var scancodes = map[uint16]uint16{
	2: 30, 3: 31, 4: 32, 5: 33, 6: 34, 7: 35, 8: 36, 9: 37, 10: 38, 11: 39,
	57: 44, 14: 42, 28: 40, 1: 41,
	106: 79, 105: 80, 108: 81, 103: 82,
	59: 58, 60: 59, 61: 60, 62: 61, 63: 62, 64: 63, 65: 64, 66: 65, 67: 66, 68: 67, 69: 68, 70: 69,
	12: 45, 13: 46, 15: 43, 26: 47, 27: 48, 39: 51, 40: 52, 51: 54, 52: 55, 53: 56, 41: 50, 43: 49,
	30: 4, 48: 5, 46: 6, 32: 7, 18: 8, 33: 9, 34: 10, 35: 11, 23: 12, 36: 13, 37: 14, 38: 15,
	50: 16, 49: 17, 24: 18, 25: 19, 16: 20, 19: 21, 31: 22, 20: 23, 22: 24, 47: 25, 17: 26, 45: 27,
	21: 28, 44: 29, 86: 49,
	104: 75, 109: 78, 102: 74, 107: 77, 110: 73, 119: 72, 99: 70, 87: 68, 88: 69,
	113: 127, 114: 129, 115: 128, 58: 57,
	158: 122, 159: 121,
	29: usageLeftCtrl, 125: usageLeftMeta, 42: usageLeftShift, 56: usageLeftAlt,
	100: usageRightAlt, 127: usageRightMeta, 97: usageRightCtrl, 54: usageRightShift,
}

// buildKeyboardReport8 renders the currently-down HID usage codes as the
// 8-byte wire report of spec.md §3, splitting out modifier usage codes into
// the modifier byte exactly as rosmo-go-hidproxy's HandleKeyboard does.
func buildKeyboardReport8(keysDown []uint16) [8]byte {
	var modifiers uint8
	keys := make([]uint8, 0, 6)
	for _, k := range keysDown {
		switch k {
		case usageLeftCtrl:
			modifiers |= leftControl
		case usageLeftMeta:
			modifiers |= leftMeta
		case usageLeftShift:
			modifiers |= leftShift
		case usageLeftAlt:
			modifiers |= leftAlt
		case usageRightCtrl:
			modifiers |= rightControl
		case usageRightMeta:
			modifiers |= rightMeta
		case usageRightShift:
			modifiers |= rightShift
		case usageRightAlt:
			modifiers |= rightAlt
		default:
			if len(keys) < 6 {
				keys = append(keys, uint8(k))
			}
		}
	}
	var out [8]byte
	out[0] = modifiers
	for i, k := range keys {
		out[2+i] = k
	}
	return out
}

// runKeyboard is the per-device reader goroutine, adapted from
// rosmo-go-hidproxy's HandleKeyboard: grab the device, track down-keys,
// and push a fresh 8-byte report into m.reports on every change.
func (m *Manager) runKeyboard(dev evdev.InputDevice, slotID uint8, isChordingDevice bool, repeatRate, repeatDelay uint) {
	defer m.wg.Done()

	if err := dev.Grab(); err != nil {
		log.Warnf("usbhost: failed to grab keyboard %s (%s): %v", dev.Name, dev.Fn, err)
		return
	}
	defer dev.Release()
	log.Infof("usbhost: grabbed keyboard-like device %s (%s)", dev.Name, dev.Fn)
	syscall.SetNonblock(int(dev.File.Fd()), true)
	dev.SetRepeatRate(repeatRate, repeatDelay)

	var keysDown []uint16
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		if err := dev.File.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			log.Warnf("usbhost: keyboard read deadline: %v", err)
			return
		}
		event, err := dev.ReadOne()
		if err != nil {
			if strings.Contains(err.Error(), "i/o timeout") {
				continue
			}
			log.Warnf("usbhost: keyboard read error on %s: %v", dev.Name, err)
			return
		}
		if event.Type != evdev.EV_KEY {
			continue
		}
		keyEvent := evdev.NewKeyEvent(event)
		code, ok := scancodes[keyEvent.Scancode]
		if !ok {
			log.Warnf("usbhost: unknown scancode %d on %s", keyEvent.Scancode, dev.Name)
			continue
		}
		switch keyEvent.State {
		case 1: // down
			if !containsU16(keysDown, code) {
				keysDown = append(keysDown, code)
			}
		case 0: // up
			keysDown = removeU16(keysDown, code)
		default:
			continue
		}

		report := buildKeyboardReport8(keysDown)
		select {
		case m.reports <- rawReport{slotID: slotID, raw: report[:], isChordingDevice: isChordingDevice, timestamp: hrtime.Now()}:
		case <-m.stop:
			return
		}
	}
}

func containsU16(xs []uint16, v uint16) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func removeU16(xs []uint16, v uint16) []uint16 {
	out := xs[:0]
	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
