package usbhost

import (
	"context"
	"strings"

	udev "github.com/jochenvg/go-udev"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	log "github.com/sirupsen/logrus"
)

// HotplugWatcher monitors udev bluetooth-subsystem events and BlueZ adapter
// state, driving Manager.Forget for devices that disappear — adapted from
// rosmo-go-hidproxy's udev monitor + GetDisconnectedDevices, which the
// teacher uses to stop per-device goroutines on BLE disconnect.
type HotplugWatcher struct {
	manager   *Manager
	adapterID string
	cancel    context.CancelFunc
}

// NewHotplugWatcher builds a watcher that will call manager.Forget for
// devices whose name prefix matches a disconnected BlueZ device.
func NewHotplugWatcher(manager *Manager, adapterID string) *HotplugWatcher {
	return &HotplugWatcher{manager: manager, adapterID: adapterID}
}

// Run starts monitoring in the background. Call Stop to end it.
func (w *HotplugWatcher) Run(devFnByName map[string]string) {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	monitor.FilterAddMatchSubsystem("bluetooth")

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	ch, _ := monitor.DeviceChan(ctx)

	go func() {
		for {
			select {
			case d, ok := <-ch:
				if !ok {
					return
				}
				if d.Action() != "add" && d.Action() != "remove" {
					continue
				}
				disconnected, err := disconnectedDevices(w.adapterID)
				if err != nil {
					log.Errorf("usbhost: checking disconnected devices: %v", err)
					continue
				}
				for _, name := range disconnected {
					for devName, devFn := range devFnByName {
						if strings.HasPrefix(devName, name) {
							log.Infof("usbhost: %s disconnected, forgetting %s", devName, devFn)
							w.manager.Forget(devFn)
						}
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the background monitor goroutine.
func (w *HotplugWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// disconnectedDevices lists BlueZ devices on adapterID that are known but
// currently not connected, adapted from rosmo-go-hidproxy's
// GetDisconnectedDevices.
func disconnectedDevices(adapterID string) ([]string, error) {
	a, err := adapter.GetAdapter(adapterID)
	if err != nil {
		return nil, err
	}
	devices, err := a.GetDevices()
	if err != nil {
		return nil, err
	}

	var disconnected, connected []string
	for _, dev := range devices {
		name, err := dev.GetName()
		if err != nil {
			name = "?"
		}
		isConnected, err := dev.GetConnected()
		if err != nil {
			continue
		}
		if isConnected {
			connected = append(connected, name)
		} else {
			disconnected = append(disconnected, name)
		}
	}

	seen := make(map[string]bool)
	var results []string
	for _, name := range disconnected {
		if contains(connected, name) || seen[name] {
			continue
		}
		seen[name] = true
		results = append(results, name)
	}
	return results, nil
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
