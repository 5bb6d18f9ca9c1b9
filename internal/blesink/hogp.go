package blesink

import (
	"sync"

	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/api/service"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	log "github.com/sirupsen/logrus"

	"github.com/pkwdata/m4g-ble-bridge/internal/bridge"
)

// HID-over-GATT UUIDs (Bluetooth SIG assigned numbers), combined into one
// composite device exposing report id 1 (keyboard) and report id 2
// (mouse), matching the wire report IDs bridge.Core's Ingest/Sink already
// use (keyboardReportID/mouseReportID in internal/bridge/bridge.go).
const (
	uuidHIDService        = "00001812-0000-1000-8000-00805f9b34fb"
	uuidReportMap          = "00002a4b-0000-1000-8000-00805f9b34fb"
	uuidHIDInformation      = "00002a4a-0000-1000-8000-00805f9b34fb"
	uuidHIDControlPoint     = "00002a4c-0000-1000-8000-00805f9b34fb"
	uuidProtocolMode        = "00002a4e-0000-1000-8000-00805f9b34fb"
	uuidReport              = "00002a4d-0000-1000-8000-00805f9b34fb"
)

// reportMap is the composite HID report descriptor: report id 1 is an
// 8-byte boot-keyboard-shaped report (modifier, reserved, 6 keys), report
// id 2 is a 3-byte relative mouse report (buttons, x, y), the same shapes
// rosmo-go-hidproxy's two USB HID gadget functions (hid.usb0/hid.usb1)
// expose separately, merged here into one GATT characteristic set via
// report IDs since BLE HOGP has no equivalent of separate USB interfaces.
var reportMap = []byte{
	0x05, 0x01, 0x09, 0x06, 0xA1, 0x01, 0x85, 0x01,
	0x05, 0x07, 0x19, 0xE0, 0x29, 0xE7, 0x15, 0x00, 0x25, 0x01,
	0x75, 0x01, 0x95, 0x08, 0x81, 0x02,
	0x95, 0x01, 0x75, 0x08, 0x81, 0x03,
	0x95, 0x06, 0x75, 0x08, 0x15, 0x00, 0x25, 0x65,
	0x05, 0x07, 0x19, 0x00, 0x29, 0x65, 0x81, 0x00,
	0xC0,
	0x05, 0x01, 0x09, 0x02, 0xA1, 0x01, 0x85, 0x02, 0x09, 0x01, 0xA1, 0x00,
	0x05, 0x09, 0x19, 0x01, 0x29, 0x03, 0x15, 0x00, 0x25, 0x01,
	0x95, 0x03, 0x75, 0x01, 0x81, 0x02,
	0x95, 0x01, 0x75, 0x05, 0x81, 0x03,
	0x05, 0x01, 0x09, 0x30, 0x09, 0x31, 0x15, 0x81, 0x25, 0x7F, 0x75, 0x08, 0x95, 0x02, 0x81, 0x06,
	0xC0, 0xC0,
}

// HOGP is the GATT HID-over-GATT service, implementing bridge.Sink by
// notifying the report characteristic with a report-id prefix.
type HOGP struct {
	mu sync.Mutex

	app        *service.App
	reportChar *service.Char

	notificationsEnabled bool
	connected            bool

	stats struct {
		sendFailures int
	}
}

// Options configures the advertised device.
type Options struct {
	AdapterID    string
	LocalName    string
	AppearanceID uint16 // 0x03C1 = keyboard, per Bluetooth SIG assigned numbers
}

// DefaultOptions matches the split-keyboard-to-BLE-HID bridge this module
// implements.
func DefaultOptions() Options {
	return Options{
		AdapterID:    "hci0",
		LocalName:    "m4g-ble-bridge",
		AppearanceID: 0x03C1,
	}
}

// NewHOGP builds and exposes the GATT HOGP service on the given adapter,
// then starts advertising. It does not block; call Close to tear down.
func NewHOGP(opts Options) (*HOGP, error) {
	a, err := adapter.GetAdapter(opts.AdapterID)
	if err != nil {
		return nil, err
	}
	if err := api.On("discovery", adapter.DiscoveryFilter{}); err != nil {
		log.Debugf("blesink: discovery filter setup: %v", err)
	}

	app, err := service.NewApp(service.AppOptions{
		AdapterID: opts.AdapterID,
	})
	if err != nil {
		return nil, err
	}
	app.SetName(opts.LocalName)

	svc, err := app.NewService(uuidHIDService)
	if err != nil {
		return nil, err
	}
	if err := app.AddService(svc); err != nil {
		return nil, err
	}

	h := &HOGP{app: app}

	reportMapChar, err := svc.NewChar(uuidReportMap)
	if err != nil {
		return nil, err
	}
	reportMapChar.Properties.Flags = []string{gatt.FlagCharacteristicRead}
	reportMapChar.OnRead(func(c *service.Char, opt map[string]interface{}) ([]byte, error) {
		return reportMap, nil
	})
	if err := svc.AddChar(reportMapChar); err != nil {
		return nil, err
	}

	protoChar, err := svc.NewChar(uuidProtocolMode)
	if err != nil {
		return nil, err
	}
	protoChar.Properties.Flags = []string{gatt.FlagCharacteristicRead, gatt.FlagCharacteristicWriteWithoutResponse}
	protoChar.OnRead(func(c *service.Char, opt map[string]interface{}) ([]byte, error) {
		return []byte{0x01}, nil // report protocol mode
	})
	if err := svc.AddChar(protoChar); err != nil {
		return nil, err
	}

	infoChar, err := svc.NewChar(uuidHIDInformation)
	if err != nil {
		return nil, err
	}
	infoChar.Properties.Flags = []string{gatt.FlagCharacteristicRead}
	infoChar.OnRead(func(c *service.Char, opt map[string]interface{}) ([]byte, error) {
		return []byte{0x11, 0x01, 0x00, 0x02}, nil // bcdHID 1.11, country 0, flags: normally connectable
	})
	if err := svc.AddChar(infoChar); err != nil {
		return nil, err
	}

	controlChar, err := svc.NewChar(uuidHIDControlPoint)
	if err != nil {
		return nil, err
	}
	controlChar.Properties.Flags = []string{gatt.FlagCharacteristicWriteWithoutResponse}
	controlChar.OnWrite(func(c *service.Char, value []byte) ([]byte, error) {
		return nil, nil // suspend/exit-suspend, not acted on
	})
	if err := svc.AddChar(controlChar); err != nil {
		return nil, err
	}

	reportChar, err := svc.NewChar(uuidReport)
	if err != nil {
		return nil, err
	}
	reportChar.Properties.Flags = []string{gatt.FlagCharacteristicRead, gatt.FlagCharacteristicNotify}
	reportChar.OnRead(func(c *service.Char, opt map[string]interface{}) ([]byte, error) {
		return make([]byte, 9), nil
	})
	if err := svc.AddChar(reportChar); err != nil {
		return nil, err
	}
	h.reportChar = reportChar

	if err := app.Run(); err != nil {
		return nil, err
	}
	if err := app.Expose(); err != nil {
		return nil, err
	}

	cancel, err := advertising.NewAdvertisement1(a.Path())
	if err != nil {
		log.Warnf("blesink: advertisement setup: %v", err)
	} else {
		_ = cancel
	}

	return h, nil
}

// sendReport notifies reportChar with a report-id-prefixed payload.
func (h *HOGP) sendReport(reportID byte, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reportChar == nil {
		return false
	}
	out := append([]byte{reportID}, payload...)
	if err := h.reportChar.WriteValue(out, nil); err != nil {
		h.stats.sendFailures++
		log.Warnf("blesink: notify failed: %v", err)
		return false
	}
	return true
}

// SendKeyboard implements bridge.Sink.
func (h *HOGP) SendKeyboard(report [8]byte) bool {
	return h.sendReport(0x01, report[:])
}

// SendMouse implements bridge.Sink.
func (h *HOGP) SendMouse(report [3]byte) bool {
	return h.sendReport(0x02, report[:])
}

// Connected returns the connected flag. Nothing in this package tracks
// BLE central connections or sets that flag, so Connected always returns
// false.
func (h *HOGP) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Close tears down the GATT application.
func (h *HOGP) Close() {
	if h.app != nil {
		h.app.Close()
	}
}

var _ bridge.Sink = (*HOGP)(nil)
