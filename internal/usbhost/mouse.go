package usbhost

import (
	"strings"
	"syscall"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
)

// Mouse button bits, unchanged from rosmo-go-hidproxy.
const (
	buttonLeft   = 1 << 0
	buttonRight  = 1 << 1
	buttonMiddle = 1 << 2
)

// evdev button/axis codes the teacher's HandleMouse recognizes.
const (
	evCodeBtnLeft   = 272
	evCodeBtnRight  = 273
	evCodeBtnMiddle = 274
	evCodeRelX      = 0
	evCodeRelY      = 1
	evCodeRelWheel  = 11
)

// runMouse is the per-device reader goroutine, adapted from
// rosmo-go-hidproxy's HandleMouse: grab the device, track button state,
// and push a 3-byte [buttons, dx, dy] report on every button or motion
// event.
func (m *Manager) runMouse(dev evdev.InputDevice, slotID uint8) {
	defer m.wg.Done()

	if err := dev.Grab(); err != nil {
		log.Warnf("usbhost: failed to grab mouse %s (%s): %v", dev.Name, dev.Fn, err)
		return
	}
	defer dev.Release()
	log.Infof("usbhost: grabbed mouse-like device %s (%s)", dev.Name, dev.Fn)
	syscall.SetNonblock(int(dev.File.Fd()), true)

	var buttons uint8
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		if err := dev.File.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			log.Warnf("usbhost: mouse read deadline: %v", err)
			return
		}
		event, err := dev.ReadOne()
		if err != nil {
			if strings.Contains(err.Error(), "i/o timeout") {
				continue
			}
			log.Warnf("usbhost: mouse read error on %s: %v", dev.Name, err)
			return
		}

		buttonOp := false
		if event.Type == evdev.EV_KEY {
			switch event.Code {
			case evCodeBtnLeft:
				buttons = setBit(buttons, buttonLeft, event.Value > 0)
				buttonOp = true
			case evCodeBtnRight:
				buttons = setBit(buttons, buttonRight, event.Value > 0)
				buttonOp = true
			case evCodeBtnMiddle:
				buttons = setBit(buttons, buttonMiddle, event.Value > 0)
				buttonOp = true
			}
		}
		if event.Type != evdev.EV_REL && !buttonOp {
			continue
		}

		var dx, dy uint8
		if event.Type == evdev.EV_REL {
			switch event.Code {
			case evCodeRelX:
				dx = uint8(event.Value)
			case evCodeRelY:
				dy = uint8(event.Value)
			case evCodeRelWheel:
				// scroll wheel has no home in the 3-byte mouse report;
				// dropped, matching the teacher's report shape.
			}
		}

		report := [3]byte{buttons, dx, dy}
		select {
		case m.reports <- rawReport{slotID: slotID, raw: report[:], timestamp: hrtime.Now()}:
		case <-m.stop:
			return
		}
	}
}

func setBit(v uint8, bit uint8, set bool) uint8 {
	if set {
		return v | bit
	}
	return v &^ bit
}
