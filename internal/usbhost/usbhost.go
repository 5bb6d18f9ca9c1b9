// Package usbhost is the USB host collaborator of spec.md §6: it captures
// evdev keyboard/mouse events (as rosmo-go-hidproxy's HandleKeyboard and
// HandleMouse do) and feeds decoded reports into a bridge.Core, and watches
// for device removal via udev to drive Core.ResetSlot.
//
// Unlike the teacher, which hands each device its own independent output
// channel read by a channel-per-report-kind sink, every device here funnels
// through one Manager-owned channel read by a single dispatcher goroutine,
// so bridge.Core — which spec.md §5 requires be driven from one cooperative
// thread — only ever sees Ingest calls from that one goroutine. Forget is
// the exception: it calls Core.ResetSlot from its caller's goroutine.
package usbhost

import (
	"sync"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"

	"github.com/pkwdata/m4g-ble-bridge/internal/bridge"
)

// Ingester is the subset of bridge.Core the dispatcher drives. Kept as an
// interface so tests can substitute a recording fake.
type Ingester interface {
	Ingest(slotID uint8, raw []byte, isChordingDevice bool, now bridge.Tick)
	ResetSlot(slotID uint8, now bridge.Tick)
}

// rawReport is one decoded device event queued for the dispatcher.
type rawReport struct {
	slotID           uint8
	raw              []byte
	isChordingDevice bool
	timestamp        time.Duration
}

// Manager owns the slot assignment table, the single report channel, and
// the dispatcher goroutine that is the only caller of Ingester.Ingest.
type Manager struct {
	core  Ingester
	clock func() bridge.Tick

	reports chan rawReport

	mu          sync.Mutex
	slotByDev   map[string]uint8
	chordSlots  map[uint8]bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewManager builds a Manager driving core. clock supplies the monotonic
// tick used to timestamp Ingest calls (production wiring passes
// bridge.HRClock.Now; tests pass a bridge.FakeClock's Now).
func NewManager(core Ingester, clock func() bridge.Tick) *Manager {
	return &Manager{
		core:       core,
		clock:      clock,
		reports:    make(chan rawReport, 64),
		slotByDev:  make(map[string]uint8),
		chordSlots: make(map[uint8]bool),
		stop:       make(chan struct{}),
	}
}

// assignSlot returns the slot id for devFn, assigning the next free one
// (0..bridge.MaxSlots-1) and remembering whether it is a chording device.
func (m *Manager) assignSlot(devFn string, isChording bool) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.slotByDev[devFn]; ok {
		return id, true
	}
	used := make(map[uint8]bool, len(m.slotByDev))
	for _, id := range m.slotByDev {
		used[id] = true
	}
	for i := 0; i < bridge.MaxSlots; i++ {
		id := uint8(i)
		if used[id] {
			continue
		}
		m.slotByDev[devFn] = id
		m.chordSlots[id] = isChording
		return id, true
	}
	return 0, false
}

func (m *Manager) releaseSlot(devFn string) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.slotByDev[devFn]
	if ok {
		delete(m.slotByDev, devFn)
	}
	return id, ok
}

// AnyChordingDeviceRegistered reports whether a currently-assigned slot was
// registered as the chording keyboard, feeding the single-MCU topology's
// half of bridge.StatusAccessor.ChordingDevicePresent.
func (m *Manager) AnyChordingDeviceRegistered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slotID := range m.slotByDev {
		if m.chordSlots[slotID] {
			return true
		}
	}
	return false
}

// Run starts the dispatcher goroutine, the only goroutine that calls
// core.Ingest. Call Stop to shut it down.
func (m *Manager) Run() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var loop int
		var avgLatency time.Duration
		for {
			select {
			case r := <-m.reports:
				m.core.Ingest(r.slotID, r.raw, r.isChordingDevice, m.clock())
				latency := hrtime.Since(r.timestamp)
				avgLatency = (avgLatency + latency) / 2
				loop++
				if loop > 100 {
					log.Debugf("usbhost: dispatch latency avg=%s", avgLatency)
					loop = 0
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the dispatcher and waits for in-flight device goroutines
// started by RegisterKeyboard and RegisterMouse to be accounted for.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// RegisterKeyboard starts a reader goroutine for dev, classifying it as a
// chording-device slot when isChordingDevice is true (e.g. matched by
// vendor/product id against a configured chording keyboard).
func (m *Manager) RegisterKeyboard(dev evdev.InputDevice, isChordingDevice bool, repeatRate, repeatDelay uint) {
	slotID, ok := m.assignSlot(dev.Fn, isChordingDevice)
	if !ok {
		log.Warnf("usbhost: no free slot for keyboard %s (%s)", dev.Name, dev.Fn)
		return
	}
	m.wg.Add(1)
	go m.runKeyboard(dev, slotID, isChordingDevice, repeatRate, repeatDelay)
}

// RegisterMouse starts a reader goroutine for a mouse-capable device.
func (m *Manager) RegisterMouse(dev evdev.InputDevice) {
	slotID, ok := m.assignSlot(dev.Fn, false)
	if !ok {
		log.Warnf("usbhost: no free slot for mouse %s (%s)", dev.Name, dev.Fn)
		return
	}
	m.wg.Add(1)
	go m.runMouse(dev, slotID)
}

// Forget releases devFn's slot assignment and resets the corresponding
// bridge slot, called on udev-reported removal.
func (m *Manager) Forget(devFn string) {
	id, ok := m.releaseSlot(devFn)
	if !ok {
		return
	}
	m.core.ResetSlot(id, m.clock())
}
