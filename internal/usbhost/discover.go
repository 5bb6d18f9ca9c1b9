package usbhost

import (
	evdev "github.com/gvalkov/golang-evdev"
	log "github.com/sirupsen/logrus"
)

// ChordingMatcher decides whether a discovered keyboard device is the
// chording keyboard (as opposed to an ordinary USB keyboard sharing the
// host), e.g. by matching device name against a configured substring.
type ChordingMatcher func(dev evdev.InputDevice) bool

// DiscoverDevices polls /dev/input once (mirroring the teacher's
// main()-loop poll of evdev.ListInputDevices) and registers any keyboard-
// or mouse-capable device not already known to m. known tracks device file
// names already registered so repeated polls are idempotent.
func DiscoverDevices(m *Manager, known map[string]bool, isChording ChordingMatcher, repeatRate, repeatDelay uint, wantKeyboard, wantMouse bool) map[string]string {
	devFnByName := make(map[string]string)

	devices, err := evdev.ListInputDevices()
	if err != nil {
		log.Warnf("usbhost: listing input devices: %v", err)
		return devFnByName
	}

	for _, dev := range devices {
		isMouse, isKeyboard := false, false
		for k := range dev.Capabilities {
			switch k.Name {
			case "EV_REL":
				isMouse = true
			case "EV_KEY":
				isKeyboard = true
			}
		}
		if !isKeyboard && !isMouse {
			continue
		}
		devFnByName[dev.Name] = dev.Fn
		if known[dev.Fn] {
			continue
		}
		known[dev.Fn] = true

		if isKeyboard && !isMouse && wantKeyboard {
			chording := isChording != nil && isChording(*dev)
			m.RegisterKeyboard(*dev, chording, repeatRate, repeatDelay)
		}
		if isMouse && wantMouse {
			m.RegisterMouse(*dev)
		}
	}
	return devFnByName
}
