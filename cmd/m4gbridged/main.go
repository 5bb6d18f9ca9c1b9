package main

// m4gbridged is the host-process orchestrator: it wires internal/usbhost,
// internal/blesink, internal/peerlink, and internal/settings around an
// internal/bridge.Core and drives it with a ~10ms tick loop, the same
// overall shape as rosmo-go-hidproxy's main() but generalized from a raw
// USB gadget proxy to the chord-aware bridge described by spec.md.

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	log "github.com/sirupsen/logrus"

	"github.com/pkwdata/m4g-ble-bridge/internal/blesink"
	"github.com/pkwdata/m4g-ble-bridge/internal/bridge"
	"github.com/pkwdata/m4g-ble-bridge/internal/diag"
	"github.com/pkwdata/m4g-ble-bridge/internal/peerlink"
	"github.com/pkwdata/m4g-ble-bridge/internal/settings"
	"github.com/pkwdata/m4g-ble-bridge/internal/usbhost"
)

// peerSlotID is the slot the split-topology peer half's reports land on,
// disjoint from the local USB slots usbhost assigns starting at 0, per the
// Open Question decision in SPEC_FULL.md §5.
const peerSlotID uint8 = 1

// guardedCore serializes every call into bridge.Core behind one mutex, so
// the usbhost dispatcher goroutine, the peerlink dispatcher goroutine, and
// the tick loop together behave as the single cooperative thread of
// control spec.md §5 requires, without forcing all three onto one
// physical goroutine.
type guardedCore struct {
	mu   sync.Mutex
	core *bridge.Core
}

func (g *guardedCore) Ingest(slotID uint8, raw []byte, isChordingDevice bool, now bridge.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.core.Ingest(slotID, raw, isChordingDevice, now)
}

func (g *guardedCore) ResetSlot(slotID uint8, now bridge.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.core.ResetSlot(slotID, now)
}

func (g *guardedCore) Tick(now bridge.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.core.Tick(now)
}

func (g *guardedCore) Stats() bridge.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.core.Stats()
}

// status composes bridge.StatusAccessor out of collaborators Core itself
// doesn't own: the USB host's chording-slot bookkeeping, and (in the split
// topology) the peer link's recency check.
type status struct {
	usb  *usbhost.Manager
	peer *peerlink.Link
}

func (s *status) ChordingDevicePresent() bool { return s.usb.AnyChordingDeviceRegistered() }
func (s *status) BothHalvesPresent() bool {
	if s.peer == nil {
		return true
	}
	return s.peer.BothHalvesPresent()
}

func main() {
	logLevelFlag := flag.String("loglevel", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	adapterID := flag.String("bluez-adapter", "hci0", "BlueZ adapter (default hci0)")
	bleEnabled := flag.Bool("ble", true, "advertise and notify over BLE HOGP (false uses a no-op sink)")
	localName := flag.String("ble-name", "m4g-ble-bridge", "advertised BLE local name")

	settingsPath := flag.String("settings-path", "/var/lib/m4gbridged/settings.db", "persisted settings store path")
	logBufPath := flag.String("logbuf-path", "/var/lib/m4gbridged/lastboot.log", "per-boot log ring backing file")

	chordingName := flag.String("chording-name", "CharaChorder", "substring matched against device names to detect the chording keyboard")
	kbdRepeat := flag.Uint("kbdrepeat", 62, "evdev key repeat rate")
	kbdDelay := flag.Uint("kbddelay", 300, "evdev key repeat delay in ms")
	pollInterval := flag.Duration("poll-interval", time.Second, "how often to poll /dev/input for new devices")
	monitorUdev := flag.Bool("monitor-udev", true, "watch udev/BlueZ for device disconnects")

	splitTopology := flag.Bool("split-topology", false, "receive the other keyboard half's reports over the peer link instead of local USB only")
	peerListen := flag.String("peer-listen", ":7770", "peer link UDP listen address")
	peerBroadcast := flag.String("peer-broadcast", "255.255.255.255:7770", "peer link UDP broadcast address")

	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "log an idle transition after this long without any HID activity")
	statsInterval := flag.Duration("stats-interval", time.Minute, "period for goroutine/heap-stat logging")

	flag.Parse()

	logLevel, err := log.ParseLevel(*logLevelFlag)
	if err != nil {
		panic(err)
	}
	log.SetLevel(logLevel)

	store := settings.New(*settingsPath)
	if err := store.Load(); err != nil {
		log.Warnf("settings: load failed, continuing with defaults: %v", err)
	}

	logBuf := diag.NewLogBuffer(*logBufPath)
	for _, line := range logBuf.LoadPreviousBoot() {
		log.Infof("previous boot: %s", line)
	}
	log.AddHook(diag.NewHook(logBuf))

	sink, hogp := buildSink(*bleEnabled, *adapterID, *localName)
	if hogp != nil {
		defer hogp.Close()
	}

	// guarded.core is filled in below once every collaborator
	// bridge.StatusAccessor needs to consult has been constructed; usbManager
	// and peerLink only need guarded itself (as their Ingester), not a
	// finished Core, so this ordering has no startup race.
	guarded := &guardedCore{}
	clock := func() bridge.Tick { return bridge.HRClock{}.Now() }

	usbManager := usbhost.NewManager(guarded, clock)

	var peerLink *peerlink.Link
	if *splitTopology {
		peerLink, err = peerlink.NewLink(*peerListen, *peerBroadcast, func(slot uint8, payload []byte, isChording bool) {
			guarded.Ingest(peerSlotID, payload, isChording, clock())
		})
		if err != nil {
			log.Fatalf("peerlink: failed to open: %v", err)
		}
		defer peerLink.Close()
	}

	st := &status{usb: usbManager, peer: peerLink}
	guarded.core = bridge.NewCore(sink, store, st, coreLogger{})

	usbManager.Run()
	defer usbManager.Stop()
	if peerLink != nil {
		go peerLink.Run()
		go peerLink.RunHeartbeat()
	}

	var hotplug *usbhost.HotplugWatcher
	if *monitorUdev {
		hotplug = usbhost.NewHotplugWatcher(usbManager, *adapterID)
	}

	diag.RunStartupChecks(log.StandardLogger(), diag.Checker{
		SettingsReadable: func() bool { return store.Load() == nil },
		BLEAdapterPresent: func() bool {
			return hogp != nil
		},
		InputCollaboratorCount: func() int {
			n := 0
			if usbManager.AnyChordingDeviceRegistered() {
				n++
			}
			if peerLink != nil && peerLink.IsPeerConnected() {
				n++
			}
			return n
		},
	})

	known := make(map[string]bool)
	isChording := func(dev evdev.InputDevice) bool {
		return *chordingName != "" && strings.Contains(dev.Name, *chordingName)
	}

	devFnByName := usbhost.DiscoverDevices(usbManager, known, isChording, *kbdRepeat, *kbdDelay, true, true)
	if hotplug != nil {
		hotplug.Run(devFnByName)
		defer hotplug.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pollTicker := time.NewTicker(*pollInterval)
	defer pollTicker.Stop()
	coreTicker := time.NewTicker(10 * time.Millisecond)
	defer coreTicker.Stop()
	statsTicker := time.NewTicker(*statsInterval)
	defer statsTicker.Stop()

	lastActivity := time.Now()
	var lastTotal uint32
	idle := false

	log.Info("m4gbridged running")
	for {
		select {
		case <-sigCh:
			log.Info("shutting down")
			flushAndExit(store, logBuf)
			return

		case <-coreTicker.C:
			guarded.Tick(clock())
			if isBridgeActive(guarded, &lastActivity, &lastTotal) {
				if idle {
					log.Info("activity resumed, leaving idle state")
					idle = false
				}
			} else if !idle && time.Since(lastActivity) > *idleTimeout {
				log.Info("no HID activity for idle-timeout, entering idle state")
				idle = true
			}

		case <-pollTicker.C:
			for devFn, devName := range usbhost.DiscoverDevices(usbManager, known, isChording, *kbdRepeat, *kbdDelay, true, true) {
				devFnByName[devFn] = devName
			}

		case <-statsTicker.C:
			logRuntimeStats()
		}
	}
}

// buildSink wires the BLE HOGP sink, or falls back to a no-op sink when BLE
// is disabled or the adapter can't be opened — nothing in the orchestrator
// is fatal on a missing adapter, matching internal/diag's startup checks.
func buildSink(enabled bool, adapterID, localName string) (bridge.Sink, *blesink.HOGP) {
	if !enabled {
		return &blesink.NopSink{}, nil
	}
	opts := blesink.DefaultOptions()
	opts.AdapterID = adapterID
	opts.LocalName = localName
	hogp, err := blesink.NewHOGP(opts)
	if err != nil {
		log.Warnf("blesink: failed to start HOGP (%v), falling back to no-op sink", err)
		return &blesink.NopSink{}, nil
	}
	return hogp, hogp
}

// isBridgeActive reports whether Core has emitted any report since the
// previous call, advancing lastActivity when it has. Report counters are
// monotonic, so activity is detected as a change in the running total
// rather than the total being merely nonzero.
func isBridgeActive(g *guardedCore, lastActivity *time.Time, lastTotal *uint32) bool {
	stats := g.Stats()
	total := stats.KeyboardReportsSent + stats.MouseReportsSent
	if total == *lastTotal {
		return false
	}
	*lastTotal = total
	*lastActivity = time.Now()
	return true
}

// logRuntimeStats reproduces main.c's log_stack_watermarks: Go has no
// FreeRTOS task stack watermarks, so goroutine count and heap stats stand
// in as the nearest equivalent resource-pressure signal.
func logRuntimeStats() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.Infof("runtime: goroutines=%d heap_alloc=%d heap_sys=%d",
		runtime.NumGoroutine(), mem.HeapAlloc, mem.HeapSys)
}

// flushAndExit persists the settings store (if dirty) and the log buffer
// before the process exits, mirroring the firmware's shutdown path.
func flushAndExit(store *settings.Store, logBuf *diag.LogBuffer) {
	if store.Dirty() {
		if err := store.Commit(); err != nil {
			log.Warnf("settings: commit on exit failed: %v", err)
		}
	}
	if err := logBuf.Flush(); err != nil {
		log.Warnf("diag: log buffer flush on exit failed: %v", err)
	}
}

// coreLogger adapts logrus's package-level functions to bridge.Logger.
type coreLogger struct{}

func (coreLogger) Debugf(format string, args ...any) { log.Debugf(format, args...) }
func (coreLogger) Warnf(format string, args ...any)  { log.Warnf(format, args...) }
